// Package version resolves the engramd release string reported by the
// version subcommand, the MCP server implementation info, and
// get_status. Resolution order: the release injected at link time, the
// module version stamped by the Go toolchain, then a pseudo-version
// derived from embedded VCS metadata.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const fallbackModule = "pkt.systems/engramd"

// release is injected with
// -ldflags "-X pkt.systems/engramd/internal/version.release=v1.2.3".
var release = ""

// Current returns the most specific version string available.
func Current() string {
	if v := strings.TrimSpace(release); v != "" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return v
		}
		if v := vcsPseudoVersion(info); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

// Module returns this module's import path, preferring build info over
// the compiled-in fallback.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return fallbackModule
}

// vcsPseudoVersion synthesizes a v0.0.0 pseudo-version from the VCS
// stamp the toolchain embeds in non-tagged builds. Returns "" when the
// stamp is absent or incomplete.
func vcsPseudoVersion(info *debug.BuildInfo) string {
	if info == nil {
		return ""
	}
	settings := map[string]string{}
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	revision := settings["vcs.revision"]
	stamped, err := time.Parse(time.RFC3339, settings["vcs.time"])
	if revision == "" || err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := "v0.0.0-" + stamped.UTC().Format("20060102150405") + "-" + revision
	if settings["vcs.modified"] == "true" {
		v += "+dirty"
	}
	return v
}
