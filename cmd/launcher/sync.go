package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pflauncher/launcher/internal/history"
	"github.com/pflauncher/launcher/internal/metrics"
	"github.com/pflauncher/launcher/internal/ui"
	"github.com/pflauncher/launcher/internal/updater"
)

// sinkBuffer bounds the events queued between a pass and the console.
const sinkBuffer = 64

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Download and install every component that changed",
		Long: `Fetch the manifest, then update each component whose published version
differs from the installed one. A component that fails keeps its previous
installation; the others are still updated.

Exit codes:
  0  all components are current
  1  the pass could not run (no manifest, record locked, ...)
  2  one or more components failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd)
		},
	}
}

func (a *app) runSync(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	console := ui.NewConsole(out)
	async := ui.NewAsyncSink(console, sinkBuffer)

	opts := updater.Options{
		// The console is a terminal, not a web view
		Sink: ui.NewGuard(async, ui.NoEscape),
	}

	if path := a.cfg.Resolve(a.cfg.HistoryFile); path != "" {
		store, err := history.Open(ctx, path, history.DefaultKeep)
		if err != nil {
			a.logger.Warn("sync history disabled", "path", path, "error", err)
		} else {
			defer store.Close()
			opts.Journal = store
		}
	}

	var m *metrics.Metrics
	if a.cfg.MetricsFile != "" {
		m = metrics.New()
		opts.Observers = append(opts.Observers, m)
	}

	orch, err := a.orchestrator(opts)
	if err != nil {
		return err
	}

	var (
		res     *updater.Result
		syncErr error
	)
	go func() {
		defer async.Close()
		res, syncErr = orch.Sync(ctx)
	}()
	async.Run()

	if m != nil {
		path := a.cfg.Resolve(a.cfg.MetricsFile)
		if err := m.WriteTextfile(path); err != nil {
			a.logger.Warn("write metrics", "path", path, "error", err)
		}
	}

	if syncErr != nil {
		return &exitError{code: exitFailure, err: syncErr}
	}

	printOutcomes(out, console, res)
	if res.Status == updater.StatusPartialFailure {
		return &exitError{code: exitPartialFailure}
	}
	return nil
}

func printOutcomes(w io.Writer, console *ui.Console, res *updater.Result) {
	rows := make([][]string, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		rows = append(rows, []string{o.Component, string(o.Kind), versionChange(o), outcomeDetail(o)})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("COMPONENT", "RESULT", "VERSION", "DETAIL").
		Rows(rows...)
	fmt.Fprintln(w, t.String())

	if res.Playable {
		fmt.Fprintf(w, "%s %s\n", console.Label("Executable:"), res.Executable)
	}
}

func versionChange(o updater.Outcome) string {
	switch {
	case o.Kind == updater.Updated && o.PreviousVersion != "":
		return o.PreviousVersion + " -> " + o.Version
	case o.Version != "":
		return o.Version
	default:
		return o.PreviousVersion
	}
}

func outcomeDetail(o updater.Outcome) string {
	switch {
	case o.Err != nil:
		return o.ErrorKind()
	case o.Kind == updater.Updated && !o.Verified:
		return humanize.IBytes(uint64(o.Bytes)) + ", unverified"
	case o.Kind == updater.Updated:
		return humanize.IBytes(uint64(o.Bytes))
	default:
		return ""
	}
}
