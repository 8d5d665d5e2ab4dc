package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oshokin/tasmota-updater/internal/config"
	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
	"github.com/oshokin/tasmota-updater/internal/logger"
)

// Client is the capability surface the update workflow needs from a device.
type Client interface {
	// FirmwareInfo queries the device for its firmware descriptor.
	FirmwareInfo(ctx context.Context, dev *config.Device) (*firmware.Info, error)
	// SendUpgrade triggers an in-place upgrade to the latest release.
	SendUpgrade(ctx context.Context, dev *config.Device) error
	// ProbeReachable reports whether the device answers 200 on the path.
	ProbeReachable(ctx context.Context, dev *config.Device, path string) bool
}

var (
	// ErrInvalidConfiguration marks a device whose address failed validation.
	ErrInvalidConfiguration = errors.New("invalid device configuration")
	// ErrUnreachable marks a connection or timeout failure.
	ErrUnreachable = errors.New("device unreachable")
	// ErrInvalidResponse marks a malformed or unexpected device answer.
	ErrInvalidResponse = errors.New("invalid device response")
	// ErrUpgradeRejected marks a non-200 answer to the upgrade command.
	ErrUpgradeRejected = errors.New("upgrade command rejected")
)

const (
	// commandPath is the Tasmota HTTP command endpoint.
	commandPath = "/cm"
	// statusCommand asks the device for its firmware report.
	statusCommand = "Status 2"
	// upgradeCommand triggers an in-place upgrade to the latest release.
	upgradeCommand = "Upgrade 1"

	// DefaultProbeTimeout bounds a single liveness probe.
	DefaultProbeTimeout = 2 * time.Second
)

// HTTPClient issues authenticated plain-HTTP requests to real devices.
type HTTPClient struct {
	// httpClient performs the requests. Swappable for tests.
	httpClient *http.Client
	// callTimeout bounds a single command request.
	callTimeout time.Duration
	// probeTimeout bounds a single liveness probe.
	probeTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*HTTPClient)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCallTimeout sets the timeout for command requests.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithProbeTimeout sets the timeout for liveness probes.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.probeTimeout = timeout
		}
	}
}

// NewHTTPClient creates a client for real devices.
func NewHTTPClient(opts ...Option) *HTTPClient {
	client := &HTTPClient{
		httpClient:   http.DefaultClient,
		callTimeout:  config.DefaultTimeout,
		probeTimeout: DefaultProbeTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// statusResponse is the relevant slice of a `Status 2` answer.
type statusResponse struct {
	// StatusFWR is the firmware report section.
	StatusFWR *struct {
		Version string `json:"Version"`
		Core    string `json:"Core"`
		SDK     string `json:"SDK"`
	} `json:"StatusFWR"`
}

// FirmwareInfo queries the device with `Status 2` and parses the firmware
// report. Missing fields default to the Unknown sentinel rather than failing.
func (c *HTTPClient) FirmwareInfo(ctx context.Context, dev *config.Device) (*firmware.Info, error) {
	body, _, err := c.command(ctx, dev, statusCommand, c.callTimeout)
	if err != nil {
		return nil, err
	}

	var status statusResponse
	if err = json.Unmarshal(body, &status); err != nil {
		logger.Warnf(ctx, "%s: Invalid JSON response from device", dev.Address)
		return nil, fmt.Errorf("decode status response: %w", ErrInvalidResponse)
	}

	if status.StatusFWR == nil {
		logger.Warnf(ctx, "%s: StatusFWR not found in device response", dev.Address)
		return nil, fmt.Errorf("firmware report missing: %w", ErrInvalidResponse)
	}

	info := &firmware.Info{
		Version:     orUnknown(status.StatusFWR.Version),
		CoreVersion: orUnknown(status.StatusFWR.Core),
		SDKVersion:  orUnknown(status.StatusFWR.SDK),
	}
	info.IsMinimal = firmware.IsMinimalBuild(info.Version)

	logger.DebugKV(ctx, "Device firmware report",
		"address", dev.Address,
		"version", info.Version,
		"core", info.CoreVersion,
		"sdk", info.SDKVersion)

	return info, nil
}

// SendUpgrade triggers `Upgrade 1` on the device. A non-200 answer is a
// typed failure carrying the status code, not something callers must
// distinguish from a crash.
func (c *HTTPClient) SendUpgrade(ctx context.Context, dev *config.Device) error {
	_, statusCode, err := c.command(ctx, dev, upgradeCommand, c.callTimeout)
	if err != nil {
		if errors.Is(err, ErrInvalidResponse) {
			return fmt.Errorf("%w: status code %d", ErrUpgradeRejected, statusCode)
		}

		return err
	}

	return nil
}

// ProbeReachable issues a GET on the path and reports whether the device
// answered 200. Any failure is a plain false, suitable for retry loops.
func (c *HTTPClient) ProbeReachable(ctx context.Context, dev *config.Device, path string) bool {
	target, err := buildDeviceURL(dev, path, nil)
	if err != nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return false
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}

	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	return response.StatusCode == http.StatusOK
}

// command runs one Tasmota command request and returns the body and status
// code. Network failures map to ErrUnreachable, non-200 answers to
// ErrInvalidResponse with the status code also returned.
func (c *HTTPClient) command(
	ctx context.Context,
	dev *config.Device,
	cmnd string,
	timeout time.Duration,
) ([]byte, int, error) {
	target, err := buildDeviceURL(dev, commandPath, url.Values{"cmnd": []string{cmnd}})
	if err != nil {
		return nil, 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("build device request: %w", err)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warnf(ctx, "%s: Error connecting to device: %s", dev.Address, Redact(err.Error()))
		return nil, 0, fmt.Errorf("%w: %s", ErrUnreachable, Redact(err.Error()))
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, response.StatusCode, fmt.Errorf("%w: %s", ErrUnreachable, Redact(err.Error()))
	}

	if response.StatusCode != http.StatusOK {
		return body, response.StatusCode,
			fmt.Errorf("status code %d: %w", response.StatusCode, ErrInvalidResponse)
	}

	return body, response.StatusCode, nil
}

// buildDeviceURL composes the request target from the device address,
// optional inline credentials and query. The address must pass validation.
func buildDeviceURL(dev *config.Device, path string, query url.Values) (string, error) {
	if dev == nil || dev.Address == "" {
		return "", fmt.Errorf("missing device address: %w", ErrInvalidConfiguration)
	}

	if err := ValidateAddress(dev.Address); err != nil {
		return "", fmt.Errorf("%s: %w", err.Error(), ErrInvalidConfiguration)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	target := url.URL{
		Scheme: "http",
		Host:   dev.Address,
		Path:   path,
	}

	if dev.HasCredentials() {
		target.User = url.UserPassword(dev.Username, dev.Password)
	}

	if query != nil {
		target.RawQuery = query.Encode()
	}

	return target.String(), nil
}

// ResolveName returns the device's DNS name: the pre-configured one when
// present (simulated devices cannot be resolved), else a reverse lookup.
// Empty means no name is known; resolution failures are not errors.
func ResolveName(ctx context.Context, dev *config.Device) string {
	if dev.DNSName != "" || dev.Simulated {
		return dev.DNSName
	}

	names, err := net.DefaultResolver.LookupAddr(ctx, dev.Address)
	if err != nil || len(names) == 0 {
		return ""
	}

	name := strings.TrimSuffix(names[0], ".")
	if name == dev.Address {
		return ""
	}

	return name
}

// orUnknown substitutes the Unknown sentinel for empty report fields.
func orUnknown(s string) string {
	if s == "" {
		return firmware.UnknownVersion
	}

	return s
}
