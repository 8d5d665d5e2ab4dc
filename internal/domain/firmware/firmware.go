package firmware

import "time"

// UnknownVersion is reported when a device answer lacks a usable field.
// Comparison treats it as "assume an update is needed".
const UnknownVersion = "Unknown"

// Info is the firmware descriptor a device reports about itself.
type Info struct {
	// Version is the Tasmota firmware version string, e.g. "12.5.0(tasmota)".
	Version string `json:"version" yaml:"version"`
	// CoreVersion is the Arduino core version of the build.
	CoreVersion string `json:"core_version" yaml:"core_version"`
	// SDKVersion is the Espressif SDK version of the build.
	SDKVersion string `json:"sdk_version" yaml:"sdk_version"`
	// IsMinimal reports whether the device runs a tasmota-minimal build.
	IsMinimal bool `json:"is_minimal" yaml:"is_minimal"`
}

// Clone returns a copy of the descriptor.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}

	cloned := *i

	return &cloned
}

// Release describes the latest published upstream firmware release.
// Once fetched it is treated as immutable for the cache validity window.
type Release struct {
	// Version is the release version without the "v" tag prefix.
	Version string `json:"version"`
	// ReleaseDate is the publish date in YYYY-MM-DD form.
	ReleaseDate string `json:"release_date"`
	// ReleaseNotes is the release body text.
	ReleaseNotes string `json:"release_notes"`
	// DownloadURL points at the selected firmware binary asset, if any.
	DownloadURL string `json:"download_url,omitempty"`
	// ReleaseURL points at the human-readable release page.
	ReleaseURL string `json:"release_url"`
}

// UpdateResult is the outcome of one per-device orchestration call.
// It is produced once and never mutated after return.
type UpdateResult struct {
	// Address is the device network address the result belongs to.
	Address string `json:"ip"`
	// Success reports whether the requested operation completed.
	Success bool `json:"success"`
	// Message is a human-readable outcome description.
	Message string `json:"message"`
	// CurrentVersion is the firmware version the device reported.
	CurrentVersion string `json:"current_version"`
	// LatestVersion is the upstream version used for comparison.
	LatestVersion string `json:"latest_version"`
	// NeedsUpdate reports whether the device is behind the latest release.
	NeedsUpdate bool `json:"needs_update"`
	// TimeoutSeconds is the restart window used, set only when one applied.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	// DNSName is the resolved or pre-configured device name, if known.
	DNSName string `json:"dns_name,omitempty"`
}

// Summary aggregates a batch run.
type Summary struct {
	// Total is the number of devices processed.
	Total int `json:"total"`
	// Succeeded counts results with Success set.
	Succeeded int `json:"success"`
	// NeedsUpdate counts devices reported behind the latest release.
	NeedsUpdate int `json:"needs_update"`
	// Updated counts devices an upgrade was actually performed on.
	Updated int `json:"updated"`
}

// BatchResult holds per-device results and their aggregate for one run.
type BatchResult struct {
	// StartedAt is when the batch began.
	StartedAt time.Time `json:"started_at"`
	// Results holds one entry per processed device, in processing order.
	Results []UpdateResult `json:"results"`
	// Summary is the aggregate over Results.
	Summary Summary `json:"summary"`
}

// Summarize computes the aggregate for a result list.
// Updated counts devices that needed an update and were successfully mutated.
func Summarize(results []UpdateResult, checkOnly bool) Summary {
	s := Summary{Total: len(results)}

	for _, r := range results {
		if r.Success {
			s.Succeeded++
		}

		if r.NeedsUpdate {
			s.NeedsUpdate++
		}

		if r.NeedsUpdate && r.Success && !checkOnly {
			s.Updated++
		}
	}

	return s
}
