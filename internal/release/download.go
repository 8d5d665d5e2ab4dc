package release

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
	"github.com/oshokin/tasmota-updater/internal/logger"
)

// errNoDownloadURL is returned when the release carries no firmware asset.
var errNoDownloadURL = errors.New("release has no firmware download URL")

// firmwareFileMode is the permission for downloaded firmware images.
const firmwareFileMode os.FileMode = 0o644

// Download fetches the release's firmware binary and applies it to the
// target path atomically, so a torn download never replaces a previously
// fetched image.
func (c *Client) Download(ctx context.Context, rel *firmware.Release, targetPath string) error {
	if rel == nil || rel.DownloadURL == "" {
		return errNoDownloadURL
	}

	logger.InfoKV(ctx, "Downloading firmware image",
		"version", rel.Version, "url", rel.DownloadURL, "target", targetPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rel.DownloadURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download firmware image: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("download firmware image: %w: status code %d",
			ErrUpstreamUnavailable, response.StatusCode)
	}

	targetPath = filepath.Clean(targetPath)

	if err = os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("prepare download directory: %w", err)
	}

	// go-update requires an existing target to replace.
	if _, err = os.Stat(targetPath); err != nil && os.IsNotExist(err) {
		if err = os.WriteFile(targetPath, nil, firmwareFileMode); err != nil {
			return fmt.Errorf("create firmware target: %w", err)
		}
	}

	options := goupdate.Options{
		TargetPath: targetPath,
		TargetMode: firmwareFileMode,
	}

	if err = goupdate.Apply(response.Body, options); err != nil {
		return fmt.Errorf("apply firmware image: %w", err)
	}

	oldPath := targetPath + ".old"
	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	logger.InfoKV(ctx, "Firmware image saved", "target", targetPath)

	return nil
}
