package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pflauncher/launcher/internal/config"
	"github.com/pflauncher/launcher/internal/platform"
)

func newInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the install root and a launcher.lua",
		Long: `Create the install root with one directory per component and write a
launcher.lua holding the effective configuration, including any values given
as flags (for example --manifest-url).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			explicit, _ := cmd.Flags().GetString(config.KeyConfig)
			if explicit == "" {
				explicit = os.Getenv("LAUNCHER_CONFIG")
			}
			path := config.ConfigPath(explicit, a.cfg.Home)

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := createDirectoryStructure(a.cfg); err != nil {
				return fmt.Errorf("create directories: %w", err)
			}
			fmt.Fprintf(out, "✓ Created %s\n", a.cfg.Home)

			detector := a.detector
			if detector == nil {
				detector = platform.NewDetector()
			}
			if info, err := detector.Detect(cmd.Context()); err == nil {
				fmt.Fprintf(out, "✓ Detected %s\n", info.Tag())
			} else {
				a.logger.Warn("platform detection failed", "error", err)
			}

			if err := writeConfig(path, a.cfg); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Wrote %s\n", path)

			printNextSteps(out, a.cfg)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing launcher.lua")
	return cmd
}

// createDirectoryStructure creates the install root and every component
// directory. Safe to call more than once.
func createDirectoryStructure(cfg *config.Config) error {
	if cfg.Home == "" {
		return fmt.Errorf("install root cannot be empty")
	}

	dirs := []string{cfg.Home}
	for _, comp := range cfg.Components {
		dirs = append(dirs, cfg.ComponentDir(comp))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func writeConfig(path string, cfg *config.Config) error {
	content, err := config.NewGenerator().Generate(cfg)
	if err != nil {
		return fmt.Errorf("generate config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	// Write atomically: temp file, then rename
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func printNextSteps(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	if cfg.ManifestURL == "" {
		fmt.Fprintln(w, "  1. Set launcher.manifest_url in launcher.lua")
		fmt.Fprintln(w, "  2. Run: launcher sync")
		return
	}
	fmt.Fprintln(w, "  1. Run: launcher sync")
}
