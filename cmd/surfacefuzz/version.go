package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
var (
	version = ""
	commit  = ""
	date    = ""
)

// buildSetting returns a VCS setting recorded by the Go toolchain.
func buildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// getVersion prefers ldflags, then the module version, then "(devel)".
func getVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

// getCommit returns the short commit hash or "unknown".
func getCommit() string {
	c := commit
	if c == "" {
		c = buildSetting("vcs.revision")
	}
	switch {
	case c == "":
		return "unknown"
	case len(c) > 7:
		return c[:7]
	default:
		return c
	}
}

// getDate returns the build date or "unknown".
func getDate() string {
	d := date
	if d == "" {
		d = buildSetting("vcs.time")
	}
	if d == "" {
		return "unknown"
	}
	return d
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, build date and Go version of surfacefuzz.`,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "surfacefuzz version %s\n", getVersion())
			fmt.Fprintf(out, "  commit: %s\n", getCommit())
			fmt.Fprintf(out, "  built:  %s\n", getDate())
			fmt.Fprintf(out, "  go:     %s\n", runtime.Version())
		},
	}
}
