package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	seclog "github.com/nao1215/surfacefuzz/internal/log"
)

// NewRootCmd creates the root command for surfacefuzz.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "surfacefuzz",
		Short: "Web attack-surface discovery and input fuzzing",
		Long: `surfacefuzz crawls one web origin, records every page, form, input and
cookie it finds, tries the configured credentials on login forms, guesses
unlinked pages and submits attack vectors to every input it discovered.

Each target is described by a site configuration file; run 'surfacefuzz init'
to create one. Runs are stored in a local history database so later scans
can be compared with 'surfacefuzz compare'.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewDiscoverCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getBoolFlag reads a flag from the command or, failing that, from the
// root's persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	return getBoolFlag(cmd, "verbose")
}

// setupLogger creates the masking logger every component receives.
func setupLogger(w io.Writer, verbose, jsonOutput bool) *slog.Logger {
	if jsonOutput {
		return seclog.NewSecureJSONLogger(w, verbose)
	}
	return seclog.NewSecureLogger(w, verbose)
}
