package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pflauncher/launcher/internal/payload"
)

func newHashCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file|url>...",
		Short: "Print SHA-256 digests for manifest authors",
		Long: `Print the SHA-256 digest of local files and remote URLs in the format
expected by the manifest's <component>_hash keys. URLs are downloaded to a
temporary file and removed afterwards.`,
		Example: `  launcher hash build/game-1.4.zip
  launcher hash https://cdn.example.com/core.py`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, arg := range args {
				sum, err := a.digest(cmd.Context(), arg)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", arg, err)
					failed++
					continue
				}
				fmt.Fprintf(out, "%s  %s\n", sum, arg)
			}
			if failed > 0 {
				return &exitError{code: exitFailure, err: fmt.Errorf("%d of %d inputs could not be hashed", failed, len(args))}
			}
			return nil
		},
	}
}

func (a *app) digest(ctx context.Context, source string) (string, error) {
	if !isURL(source) {
		return payload.DigestFile(source)
	}

	tmp, err := os.CreateTemp("", "launcher-hash-*.download")
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn("remove temporary download", "path", path, "error", err)
		}
	}()

	if _, err := a.fetcher().FetchStream(ctx, source, path, nil); err != nil {
		return "", err
	}
	return payload.DigestFile(path)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
