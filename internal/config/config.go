// Package config manages site builder configuration from environment variables and flags.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const envPrefix = "SITEGEN_"

// Config holds runtime configuration for the builder, watcher, and HTTP publisher.
type Config struct {
	ContentDir string
	OutputDir  string
	Addr       string
	Debounce   time.Duration
	Verbose    bool
	FailFast   bool
}

// Default returns ready-to-use defaults prior to env/flag overrides.
func Default() Config {
	return Config{
		ContentDir: "content",
		OutputDir:  "public",
		Addr:       "127.0.0.1:8080",
		Debounce:   300 * time.Millisecond,
	}
}

// RegisterFlags attaches configuration flags to the provided FlagSet.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.ContentDir, "content", "c", cfg.ContentDir, "directory containing markdown documents")
	fs.StringVarP(&cfg.OutputDir, "out", "o", cfg.OutputDir, "directory receiving the generated site (wiped on every build)")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "address the HTTP publisher listens on")
	fs.DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "quiet period before a change triggers a rebuild")
	fs.BoolVar(&cfg.FailFast, "fail-fast", cfg.FailFast, "exit when a triggered rebuild fails instead of keeping the last good site")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable verbose logging (builds and HTTP requests)")
}

// ApplyEnvOverrides reads supported environment variables and overrides cfg in place.
func ApplyEnvOverrides(cfg *Config) {
	applyStringEnv("CONTENT", func(v string) { cfg.ContentDir = v })
	applyStringEnv("OUT", func(v string) { cfg.OutputDir = v })
	applyStringEnv("ADDR", func(v string) { cfg.Addr = v })
	applyDurationEnv("DEBOUNCE", func(v time.Duration) { cfg.Debounce = v })
	applyBoolEnv("FAIL_FAST", func(v bool) { cfg.FailFast = v })
	applyBoolEnv("VERBOSE", func(v bool) { cfg.Verbose = v })
}

func applyStringEnv(key string, apply func(string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		apply(raw)
	}
}

func applyDurationEnv(key string, apply func(time.Duration)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := time.ParseDuration(raw); err == nil {
			apply(value)
		}
	}
}

func applyBoolEnv(key string, apply func(bool)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseBool(raw); err == nil {
			apply(value)
		}
	}
}

func lookupNonEmpty(key string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

// Finalize validates and normalizes paths.
func Finalize(cfg *Config) error {
	if strings.TrimSpace(cfg.ContentDir) == "" {
		cfg.ContentDir = "content"
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		cfg.OutputDir = "public"
	}

	content, err := filepath.Abs(cfg.ContentDir)
	if err != nil {
		return fmt.Errorf("resolve content directory: %w", err)
	}
	cfg.ContentDir = content

	output, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	cfg.OutputDir = output

	if within(output, content) {
		return fmt.Errorf("output directory %s must not contain the content directory %s", output, content)
	}

	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", cfg.Addr, err)
	}

	if cfg.Debounce < 0 {
		return fmt.Errorf("invalid debounce: %s", cfg.Debounce)
	}

	return nil
}

// within reports whether path equals parent or lives below it.
func within(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
