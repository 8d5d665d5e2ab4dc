package updater

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/tasmota-updater/internal/logger"
)

const (
	// MarkerFilename marks that a mutating run is in progress to avoid
	// parallel execution against the same fleet.
	MarkerFilename = "tasmota-updater-run-marker.bin"

	// baseExecutable is the updater binary name without platform extension.
	baseExecutable = "tasmota-updater"

	// markerLifetime is the period after which a leftover marker is
	// considered stale. A live run refreshes the marker between devices,
	// so only a crashed run ever ages past this.
	markerLifetime = 30 * time.Minute
)

// errUpdaterAlreadyRunning is returned when another mutating run holds the marker.
var errUpdaterAlreadyRunning = errors.New("an update run is already in progress")

// IsUpdaterRunningNow checks presence of a marker file and attempts recovery
// when it looks stale (leftover from a crashed run).
func IsUpdaterRunningNow(ctx context.Context) bool {
	fileInfo, err := os.Stat(MarkerFilename)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The run marker is too old, attempting cleanup")

		if err = terminateProcessByName(updaterExecutable()); err != nil {
			return true
		}

		if err = os.Remove(MarkerFilename); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	logger.Infof(ctx, "Unable to read run marker: %v", err)

	return false
}

// refreshRunMarker bumps the marker mtime. A single device can block for
// its whole restart window, so a large batch legitimately outlives
// markerLifetime; refreshing between devices keeps the marker fresh for
// as long as the run is actually alive.
func refreshRunMarker(ctx context.Context) {
	now := time.Now()

	if err := os.Chtimes(MarkerFilename, now, now); err != nil {
		logger.Warnf(ctx, "Unable to refresh run marker: %v", err)
	}
}

// terminateProcessByName tries to kill other processes with the provided
// executable name.
func terminateProcessByName(processName string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}

// updaterExecutable returns the platform-specific updater binary name.
func updaterExecutable() string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return baseExecutable + ".exe"
	}

	return baseExecutable
}
