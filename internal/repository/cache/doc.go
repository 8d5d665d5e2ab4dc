// Package cache persists time-bounded records of upstream metadata.
// A record older than the caller's max age is treated as a miss, never
// served; read and write failures degrade gracefully instead of erroring.
package cache
