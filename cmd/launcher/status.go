package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/pflauncher/launcher/internal/ui"
	"github.com/pflauncher/launcher/internal/updater"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Compare installed and published versions without downloading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := a.orchestrator(updater.Options{})
			if err != nil {
				return err
			}
			report, err := orch.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			console := ui.NewConsole(out)
			if report.Offline {
				fmt.Fprintln(out, "Update server unreachable, showing installed versions only")
			}

			rows := make([][]string, 0, len(report.Components))
			for _, c := range report.Components {
				rows = append(rows, []string{c.Component, orDash(c.Installed), orDash(c.Available), componentState(c, report.Offline)})
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("COMPONENT", "INSTALLED", "AVAILABLE", "STATE").
				Rows(rows...)
			fmt.Fprintln(out, t.String())

			if report.Playable {
				fmt.Fprintf(out, "%s %s\n", console.Label("Executable:"), report.Executable)
			} else {
				fmt.Fprintln(out, "Game not installed")
			}
			return nil
		},
	}
}

func componentState(c updater.ComponentStatus, offline bool) string {
	switch {
	case offline:
		return "unknown"
	case !c.Published:
		return "not published"
	case c.Installed == "":
		return "not installed"
	case c.Stale():
		return "update available"
	default:
		return "up to date"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
