package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oshokin/tasmota-updater/internal/domain/firmware"
	"github.com/oshokin/tasmota-updater/internal/logger"
	"github.com/oshokin/tasmota-updater/internal/repository/cache"
)

const (
	// DefaultFeedURL is the official Tasmota latest-release API endpoint.
	DefaultFeedURL = "https://api.github.com/repos/arendst/Tasmota/releases/latest"

	// ReleasePageURL is the human-readable release notes page.
	ReleasePageURL = "https://github.com/arendst/Tasmota/releases/"

	// CacheKey names the cached release descriptor record.
	CacheKey = "latest_release"

	// firmwareAssetName is the preferred firmware binary asset.
	firmwareAssetName = "tasmota.bin"

	// feedTimeout bounds a single feed request.
	feedTimeout = 10 * time.Second
)

// ErrUpstreamUnavailable marks a failed feed fetch with no valid cache.
var ErrUpstreamUnavailable = errors.New("release feed unavailable")

// Client fetches the latest upstream release, serving from the day-scoped
// cache whenever possible to stay clear of feed rate limits.
type Client struct {
	// feedURL is the release feed endpoint.
	feedURL string
	// httpClient performs feed requests.
	httpClient *http.Client
	// store caches the fetched descriptor.
	store cache.Store
	// maxAge is the cache validity window.
	maxAge time.Duration
}

// Option configures the feed client.
type Option func(*Client)

// WithFeedURL overrides the feed endpoint.
func WithFeedURL(feedURL string) Option {
	return func(c *Client) {
		if feedURL != "" {
			c.feedURL = feedURL
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxAge sets the cache validity window.
func WithMaxAge(maxAge time.Duration) Option {
	return func(c *Client) {
		if maxAge > 0 {
			c.maxAge = maxAge
		}
	}
}

// NewClient creates a feed client backed by the provided cache store.
func NewClient(store cache.Store, opts ...Option) *Client {
	client := &Client{
		feedURL:    DefaultFeedURL,
		httpClient: http.DefaultClient,
		store:      store,
		maxAge:     24 * time.Hour,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// feedResponse is the relevant slice of the release feed answer.
type feedResponse struct {
	// TagName is the release tag, optionally "v"-prefixed.
	TagName string `json:"tag_name"`
	// PublishedAt is the RFC3339 publish timestamp.
	PublishedAt string `json:"published_at"`
	// Body is the release notes text.
	Body string `json:"body"`
	// Assets lists downloadable release artifacts.
	Assets []feedAsset `json:"assets"`
}

// feedAsset is one downloadable artifact of a release.
type feedAsset struct {
	// Name is the artifact filename.
	Name string `json:"name"`
	// BrowserDownloadURL is the direct download location.
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Latest returns the latest release descriptor, from cache when fresh,
// otherwise from the feed. A fetched descriptor is cached best-effort; a
// failed cache write never fails the call.
func (c *Client) Latest(ctx context.Context) (*firmware.Release, error) {
	if payload, valid := c.store.Get(ctx, CacheKey, c.maxAge); valid {
		var cached firmware.Release
		if err := json.Unmarshal(payload, &cached); err == nil {
			return &cached, nil
		}

		logger.Warnf(ctx, "Discarding unreadable cached release descriptor")
	}

	fetched, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if !c.store.Put(ctx, CacheKey, fetched) {
		logger.Warnf(ctx, "Unable to cache release descriptor, continuing without cache")
	}

	return fetched, nil
}

// fetch performs one feed request and maps the answer to a descriptor.
func (c *Client) fetch(ctx context.Context) (*firmware.Release, error) {
	logger.Debug(ctx, "Fetching latest release information from the feed")

	callCtx, cancel := context.WithTimeout(ctx, feedTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.feedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, err.Error())
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrUpstreamUnavailable, response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, err.Error())
	}

	var feed feedResponse
	if err = json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%w: unreadable feed answer", ErrUpstreamUnavailable)
	}

	rel := &firmware.Release{
		Version:      strings.TrimPrefix(feed.TagName, "v"),
		ReleaseDate:  publishDate(feed.PublishedAt),
		ReleaseNotes: feed.Body,
		DownloadURL:  selectFirmwareAsset(feed.Assets),
		ReleaseURL:   ReleasePageURL,
	}

	logger.InfoKV(ctx, "Latest release", "version", rel.Version, "published", rel.ReleaseDate)

	return rel, nil
}

// publishDate trims an RFC3339 timestamp to its date part.
func publishDate(publishedAt string) string {
	date, _, _ := strings.Cut(publishedAt, "T")

	return date
}

// selectFirmwareAsset picks the firmware binary download: the exact
// tasmota.bin name when present, else the first .bin asset.
func selectFirmwareAsset(assets []feedAsset) string {
	for _, asset := range assets {
		if strings.EqualFold(asset.Name, firmwareAssetName) {
			return asset.BrowserDownloadURL
		}
	}

	for _, asset := range assets {
		if strings.HasSuffix(strings.ToLower(asset.Name), ".bin") {
			return asset.BrowserDownloadURL
		}
	}

	return ""
}
