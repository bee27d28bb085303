package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pflauncher/launcher/internal/history"
	"github.com/pflauncher/launcher/internal/updater"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit     int
		component string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Resolve(a.cfg.HistoryFile)
			if path == "" {
				return fmt.Errorf("sync history is disabled (launcher.history is empty)")
			}

			store, err := history.Open(cmd.Context(), path, history.DefaultKeep)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if component != "" {
				outcomes, err := store.Component(cmd.Context(), component, limit)
				if err != nil {
					return err
				}
				if len(outcomes) == 0 {
					fmt.Fprintf(out, "No history for %s\n", component)
					return nil
				}
				t := table.New().
					Border(lipgloss.NormalBorder()).
					Headers("RUN", "RESULT", "VERSION", "ERROR")
				for _, o := range outcomes {
					t.Row(shortID(o.RunID), o.Kind, o.Version, o.Error)
				}
				fmt.Fprintln(out, t.String())
				return nil
			}

			passes, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(passes) == 0 {
				fmt.Fprintln(out, "No sync passes recorded yet")
				return nil
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("RUN", "STARTED", "DURATION", "STATUS", "UPDATED", "FAILED")
			for _, p := range passes {
				updated, failed := 0, 0
				for _, o := range p.Outcomes {
					switch o.Kind {
					case string(updater.Updated):
						updated++
					case string(updater.Failed):
						failed++
					}
				}
				status := p.Status
				if p.ErrorKind != "" {
					status += " (" + p.ErrorKind + ")"
				}
				t.Row(
					shortID(p.RunID),
					humanize.Time(p.Started),
					p.Duration.Round(time.Millisecond).String(),
					status,
					fmt.Sprint(updated),
					fmt.Sprint(failed),
				)
			}
			fmt.Fprintln(out, t.String())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of entries to show")
	cmd.Flags().StringVar(&component, "component", "", "show the history of one component")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
