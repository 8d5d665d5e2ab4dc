package firmware

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestInfoClone ensures clones do not share storage with the original.
func TestInfoClone(t *testing.T) {
	t.Parallel()

	var nilInfo *Info
	require.Nil(t, nilInfo.Clone())

	original := &Info{
		Version:     "12.5.0(tasmota)",
		CoreVersion: "2.7.4.9",
		SDKVersion:  "3.0.2",
	}

	cloned := original.Clone()
	require.NotSame(t, original, cloned)
	require.Equal(t, original, cloned)

	cloned.Version = "changed"
	require.Equal(t, "12.5.0(tasmota)", original.Version)
}

// TestSummarize verifies batch aggregation in both modes.
func TestSummarize(t *testing.T) {
	t.Parallel()

	results := []UpdateResult{
		{Address: "192.168.1.10", Success: true, NeedsUpdate: false},
		{Address: "192.168.1.11", Success: true, NeedsUpdate: true},
		{Address: "192.168.1.12", Success: false, NeedsUpdate: true},
		{Address: "192.168.1.13", Success: false},
	}

	s := Summarize(results, false)
	require.Equal(t, 4, s.Total)
	require.Equal(t, 2, s.Succeeded)
	require.Equal(t, 2, s.NeedsUpdate)
	require.Equal(t, 1, s.Updated)

	// Check-only never counts anything as updated.
	s = Summarize(results, true)
	require.Equal(t, 0, s.Updated)
	require.Equal(t, 2, s.NeedsUpdate)

	s = Summarize(nil, false)
	require.Equal(t, Summary{}, s)
}
