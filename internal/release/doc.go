// Package release talks to the upstream firmware release feed. Fetched
// descriptors are cached for a day so batch runs and repeated CLI calls
// do not hammer the feed; the firmware binary of a release can be
// downloaded and placed atomically.
package release
