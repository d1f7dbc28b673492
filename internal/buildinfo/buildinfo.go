// Package buildinfo exposes version metadata injected at link time.
package buildinfo

import "strings"

// Version metadata is injected at build time via ldflags, e.g.
// -X github.com/euforicio/sitegen/internal/buildinfo.Version=v1.2.0.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Summary returns a human-readable version string such as "v1.2.0 (abc123 2026-01-02)".
func Summary() string {
	version := strings.TrimSpace(Version)
	if version == "" {
		version = "dev"
	}
	var extra []string
	if Commit != "" {
		extra = append(extra, Commit)
	}
	if Date != "" {
		extra = append(extra, Date)
	}
	if len(extra) == 0 {
		return version
	}
	return version + " (" + strings.Join(extra, " ") + ")"
}
