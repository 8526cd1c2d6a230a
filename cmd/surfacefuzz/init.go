package main

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/surfacefuzz/internal/datafile"
)

//go:embed templates/surfacefuzz.yaml
var configTemplate embed.FS

const (
	// configFileName is the default site configuration file name.
	configFileName = "surfacefuzz.yaml"

	// templateSiteURL is the placeholder seed URL of the template.
	templateSiteURL = "http://localhost:8080/"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a site configuration file",
		Long: `Init writes an annotated site configuration file describing every option.

With --data-file it also writes a copy of the built-in data file (attack
vectors, sensitive data markers, password dictionary, sanitization probes and
page guesses) and points the configuration at it, ready for editing.

Examples:
  # Create surfacefuzz.yaml in the current directory
  surfacefuzz init

  # Prefill the seed URL and write an editable data file
  surfacefuzz init --site http://127.0.0.1:8080/app/ --data-file lists.txt

  # Force overwrite existing files
  surfacefuzz init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing files")
	cmd.Flags().StringP("site", "s", "",
		"Seed URL written into the configuration")
	cmd.Flags().StringP("data-file", "d", "",
		"Also write the built-in data file to this path")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	siteURL, err := cmd.Flags().GetString("site")
	if err != nil {
		return err
	}
	dataPath, err := cmd.Flags().GetString("data-file")
	if err != nil {
		return err
	}

	content, err := configTemplate.ReadFile("templates/" + configFileName)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}
	text := string(content)
	if siteURL != "" {
		text = strings.Replace(text, strconv.Quote(templateSiteURL), strconv.Quote(siteURL), 1)
	}
	if dataPath != "" {
		ref := dataFileRef(outputPath, dataPath)
		text = strings.Replace(text, `# app_data_file: "surfacefuzz.txt"`, "app_data_file: "+strconv.Quote(ref), 1)
	}

	if err := writeNewFile(outputPath, []byte(text), force); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)

	if dataPath != "" {
		if err := writeNewFile(dataPath, []byte(datafile.DefaultContent()), force); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created data file: %s\n", dataPath)
	}

	printInitHints(out, outputPath)
	return nil
}

// writeNewFile writes data to path, creating parent directories. An
// existing file is only replaced when force is set.
func writeNewFile(path string, data []byte, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s (use -f to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", path, err)
		}
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	// Configurations may hold passwords and cookies.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// dataFileRef returns dataPath relative to the directory of configPath,
// which is how app_data_file is resolved.
func dataFileRef(configPath, dataPath string) string {
	absData, err := filepath.Abs(dataPath)
	if err != nil {
		return dataPath
	}
	absDir, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return absData
	}
	rel, err := filepath.Rel(absDir, absData)
	if err != nil {
		return absData
	}
	return filepath.ToSlash(rel)
}

func printInitHints(out io.Writer, configPath string) {
	fmt.Fprintln(out, "\nEdit this file to set:")
	fmt.Fprintln(out, "  - the seed URL (site_url)")
	fmt.Fprintln(out, "  - credentials for login forms")
	fmt.Fprintln(out, "  - pacing, page caps and URL patterns")
	fmt.Fprintf(out, "\nThen run: surfacefuzz scan %s\n", configPath)
}
