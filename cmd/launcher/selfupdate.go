package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pflauncher/launcher/internal/selfupdate"
	"github.com/pflauncher/launcher/internal/ui"
)

func newSelfUpdateCmd(a *app) *cobra.Command {
	var (
		checkOnly bool
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Update the launcher binary from its signed release channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			sink := ui.NewGuard(ui.NewConsole(out), ui.NoEscape)

			u, err := selfupdate.New(a.cfg, selfupdate.Options{
				CurrentVersion: a.version,
				Force:          force,
				Logger:         a.logger,
				Fetcher:        a.fetcher(),
				OnProgress: func(done, total int64) {
					if pct, ok := ui.Percent(done, total); ok {
						sink.SetProgress(pct)
					}
				},
			})
			if errors.Is(err, selfupdate.ErrNotConfigured) {
				return fmt.Errorf("%w: set launcher.self_update in launcher.lua", err)
			}
			if err != nil {
				return err
			}

			rel, apply, err := u.Check(cmd.Context())
			if err != nil {
				return err
			}
			if !apply {
				sink.Log(fmt.Sprintf("Launcher %s is up to date (latest %s)", a.version, rel.Version))
				return nil
			}
			if checkOnly {
				sink.Log(fmt.Sprintf("Launcher %s is available (running %s)", rel.Version, a.version))
				return nil
			}

			sink.Log(fmt.Sprintf("Updating launcher %s -> %s", a.version, rel.Version))
			if err := u.Apply(cmd.Context(), rel); err != nil {
				return err
			}
			sink.SetProgress(100)
			sink.Log(fmt.Sprintf("Launcher updated to %s, restart to use it", rel.Version))
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "only report whether an update is available")
	cmd.Flags().BoolVar(&force, "force", false, "reinstall even when the release is not newer")
	return cmd
}
