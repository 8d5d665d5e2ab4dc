// Package version exposes build metadata of the updater binary.
//
// Version, Commit and BuildTime are injected via ldflags by the release
// build and default to sensible values for local builds. Short and Full
// render them for CLI output; the version subcommand prints Full.
package version
