package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the name of the optional defaults file.
const DefaultConfigFile = ".surfacefuzz.yaml"

// File is the optional defaults file. Its options fill whatever a site
// configuration leaves unset.
type File struct {
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// LoadSiteConfig reads, normalizes and validates one site configuration.
// Every error it returns is a configuration error and wraps one of the
// package's sentinel errors or the YAML decoding error.
func LoadSiteConfig(path string) (*SiteConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrConfigNotFound)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var sc SiteConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: invalid configuration: %w", path, err)
	}

	sc.resolveDataFile(filepath.Dir(path))
	sc.ApplyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &sc, nil
}

// LoadConfigFile loads the defaults file.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	cf.Defaults.resolveDataFile(filepath.Dir(path))
	return &cf, nil
}

// FindConfigFile locates the defaults file: the explicit path when given,
// otherwise .surfacefuzz.yaml in the current directory, then config.yaml in
// the XDG config directory, then .surfacefuzz.yaml in the home directory.
// It returns "" when nothing is found.
func FindConfigFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func (sc *SiteConfig) resolveDataFile(dir string) {
	if sc.AppDataFile != "" && !filepath.IsAbs(sc.AppDataFile) {
		sc.AppDataFile = filepath.Join(dir, sc.AppDataFile)
	}
}
