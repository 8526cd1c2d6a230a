package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNewConfig documents the runtime defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default Timeout is 30 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 30*time.Second {
			t.Errorf("expected 30s, got %v", cfg.Timeout)
		}
	})

	t.Run("default Workers is 1", func(t *testing.T) {
		t.Parallel()
		if cfg.Workers != 1 {
			t.Errorf("expected 1, got %d", cfg.Workers)
		}
	})

	t.Run("default BatchSize is 1", func(t *testing.T) {
		t.Parallel()
		if cfg.BatchSize != 1 {
			t.Errorf("expected 1, got %d", cfg.BatchSize)
		}
	})

	t.Run("history is saved by default", func(t *testing.T) {
		t.Parallel()
		if !cfg.SaveToDB || cfg.DBDir == "" {
			t.Error("expected SaveToDB with a DBDir")
		}
	})

	t.Run("default transport is direct", func(t *testing.T) {
		t.Parallel()
		if cfg.UseTor || cfg.ProxyAddress != "" || cfg.UseBrowser {
			t.Error("expected direct net/http transport by default")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.ConfigFiles = []string{"site.yaml"}
		return cfg
	}

	testCases := []struct {
		name     string
		mutate   func(*Config)
		expected error
	}{
		{"valid config", func(*Config) {}, nil},
		{"no config files", func(c *Config) { c.ConfigFiles = nil }, ErrNoConfigFile},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"zero workers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"negative max pages", func(c *Config) { c.MaxPages = -1 }, ErrInvalidMaxPages},
		{"json and markdown", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
		{"tor and proxy", func(c *Config) { c.UseTor, c.ProxyAddress = true, "127.0.0.1:9050" }, ErrConflictingTransports},
		{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tc.expected) {
				t.Errorf("expected %v, got %v", tc.expected, err)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadSiteConfig(t *testing.T) {
	t.Parallel()

	t.Run("legacy key value file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeFile(t, dir, "site.txt", strings.Join([]string{
			"app_data_file: data.txt",
			"username: admin",
			"password: 123",
			"password_guessing: on",
			"authentication_success_string: Welcome",
			"site_url: http://localhost:8080/bodgeit/",
			"time_gap: 250",
			"completeness: random",
		}, "\n"))

		sc, err := LoadSiteConfig(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sc.Password != "123" {
			t.Errorf("numeric password must decode as text, got %q", sc.Password)
		}
		if !sc.PasswordGuessing {
			t.Error("expected password_guessing: on to decode as true")
		}
		if sc.TimeGapDuration() != 250*time.Millisecond {
			t.Errorf("unexpected time gap %v", sc.TimeGapDuration())
		}
		if sc.Completeness != CompletenessRandom {
			t.Errorf("unexpected completeness %q", sc.Completeness)
		}
		if sc.AppDataFile != filepath.Join(dir, "data.txt") {
			t.Errorf("data file not resolved against config dir: %q", sc.AppDataFile)
		}
		if sc.Origin() != "http://localhost:8080/bodgeit/" {
			t.Errorf("unexpected origin %q", sc.Origin())
		}
		if sc.BaseURL() != "http://localhost:8080" {
			t.Errorf("unexpected base URL %q", sc.BaseURL())
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), "site.yaml", "site_url: http://ex.test/\n")
		sc, err := LoadSiteConfig(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sc.Completeness != CompletenessFull || sc.SuccessCriterion != CriterionAny {
			t.Errorf("unexpected defaults: %+v", sc)
		}
		if sc.RandomSample != DefaultRandomSample {
			t.Errorf("expected default sample, got %d", sc.RandomSample)
		}
		if sc.AuthenticationEnabled() {
			t.Error("authentication must be off without a username")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := LoadSiteConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("empty file has no site url", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), "empty.yaml", "")
		if _, err := LoadSiteConfig(path); !errors.Is(err, ErrNoSiteURL) {
			t.Errorf("expected ErrNoSiteURL, got %v", err)
		}
	})

	t.Run("unknown option is rejected", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), "typo.yaml", "site_url: http://ex.test/\nsite_ulr: x\n")
		if _, err := LoadSiteConfig(path); err == nil {
			t.Error("expected error for unknown key")
		}
	})
}

func TestSiteConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() SiteConfig {
		sc := SiteConfig{SiteURL: "http://ex.test/"}
		sc.ApplyDefaults()
		return sc
	}

	testCases := []struct {
		name     string
		mutate   func(*SiteConfig)
		expected error
	}{
		{"valid", func(*SiteConfig) {}, nil},
		{"missing url", func(sc *SiteConfig) { sc.SiteURL = "" }, ErrNoSiteURL},
		{"relative url", func(sc *SiteConfig) { sc.SiteURL = "/relative" }, ErrInvalidSiteURL},
		{"ftp url", func(sc *SiteConfig) { sc.SiteURL = "ftp://ex.test/" }, ErrInvalidSiteURL},
		{"bad onion", func(sc *SiteConfig) { sc.SiteURL = "http://notanonion.onion/" }, ErrInvalidOnionAddress},
		{"negative gap", func(sc *SiteConfig) { sc.TimeGap = -1 }, ErrInvalidTimeGap},
		{"bad completeness", func(sc *SiteConfig) { sc.Completeness = "partial" }, ErrInvalidCompleteness},
		{"bad criterion", func(sc *SiteConfig) { sc.SuccessCriterion = "most" }, ErrInvalidSuccessCriterion},
		{"negative workers", func(sc *SiteConfig) { sc.Workers = -2 }, ErrNegativeLimit},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sc := valid()
			tc.mutate(&sc)
			if err := sc.Validate(); !errors.Is(err, tc.expected) {
				t.Errorf("expected %v, got %v", tc.expected, err)
			}
		})
	}
}

func TestSiteConfigHelpers(t *testing.T) {
	t.Parallel()

	t.Run("authentication requires username and a password source", func(t *testing.T) {
		t.Parallel()

		testCases := []struct {
			sc       SiteConfig
			expected bool
		}{
			{SiteConfig{Username: "u", Password: "p"}, true},
			{SiteConfig{Username: "u", PasswordGuessing: true}, true},
			{SiteConfig{Username: "u"}, false},
			{SiteConfig{Password: "p"}, false},
		}
		for _, tc := range testCases {
			if got := tc.sc.AuthenticationEnabled(); got != tc.expected {
				t.Errorf("%+v: got %v", tc.sc, got)
			}
		}
	})

	t.Run("site overrides fall back to runtime values", func(t *testing.T) {
		t.Parallel()

		sc := SiteConfig{MaxPages: 5}
		if sc.PageCap(100) != 5 || sc.WorkerCount(3) != 3 {
			t.Errorf("unexpected effective limits %d/%d", sc.PageCap(100), sc.WorkerCount(3))
		}
	})
}

func TestMergeDefaults(t *testing.T) {
	t.Parallel()

	t.Run("fills unset options", func(t *testing.T) {
		t.Parallel()

		sc := SiteConfig{SiteURL: "http://ex.test/"}
		sc.MergeDefaults(SiteConfig{Cookie: "a=b", TimeGap: 100, IgnorePatterns: []string{"/logout*"}})
		if sc.Cookie != "a=b" || sc.TimeGap != 100 || len(sc.IgnorePatterns) != 1 {
			t.Errorf("defaults not applied: %+v", sc)
		}
	})

	t.Run("site values win", func(t *testing.T) {
		t.Parallel()

		sc := SiteConfig{Cookie: "mine=1", Headers: map[string]string{"X-A": "site"}}
		sc.MergeDefaults(SiteConfig{Cookie: "a=b", Headers: map[string]string{"X-A": "default", "X-B": "default"}})
		if sc.Cookie != "mine=1" {
			t.Errorf("cookie overridden: %q", sc.Cookie)
		}
		if sc.Headers["X-A"] != "site" || sc.Headers["X-B"] != "default" {
			t.Errorf("unexpected merged headers: %v", sc.Headers)
		}
	})
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("loads defaults and resolves data file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeFile(t, dir, DefaultConfigFile, "defaults:\n  time_gap: 50\n  app_data_file: lists.txt\n")
		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf.Defaults.TimeGap != 50 || cf.Defaults.AppDataFile != filepath.Join(dir, "lists.txt") {
			t.Errorf("unexpected defaults: %+v", cf.Defaults)
		}
	})

	t.Run("invalid YAML", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), "bad.yaml", "defaults: [unclosed")
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected error")
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit path", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), "x.yaml", "")
		if got := FindConfigFile(path); got != path {
			t.Errorf("got %q", got)
		}
	})

	t.Run("missing explicit path", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile(filepath.Join(t.TempDir(), "absent")); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if !strings.HasSuffix(XDGDataDir(), AppName) {
		t.Errorf("unexpected data dir %q", XDGDataDir())
	}
	if !strings.HasSuffix(XDGConfigDir(), AppName) {
		t.Errorf("unexpected config dir %q", XDGConfigDir())
	}
}
