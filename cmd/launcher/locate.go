package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pflauncher/launcher/internal/locate"
	"github.com/pflauncher/launcher/internal/updater"
)

func newLocateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "locate",
		Short: "Print the installed game executable",
		Long: `Print the path of the game executable, for scripts that launch the game
themselves. Exits 1 when the game is not installed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := a.orchestrator(updater.Options{})
			if err != nil {
				return err
			}
			exe, err := orch.Executable()
			if errors.Is(err, locate.ErrNotFound) {
				return &exitError{code: exitFailure, err: fmt.Errorf("game not installed: %w", err)}
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), exe)
			return nil
		},
	}
}
