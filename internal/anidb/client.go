package anidb

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/animeta/animeta/internal/config"
)

// protoVersion is the AniDB HTTP API protocol version this client speaks.
const protoVersion = 1

var (
	ErrClientMissing = errors.New("AniDB client name is not configured")
	ErrAPIError      = errors.New("AniDB API error")
)

// Client fetches raw series documents from the AniDB HTTP API.
//
// It performs exactly one request per call and no retries; pacing and retry
// policy belong to the rate limiter and the caller.
type Client struct {
	httpClient *http.Client
	fs         afero.Fs
	config     config.AniDBConfig
	logger     zerolog.Logger
}

// NewClient creates a new AniDB client.
func NewClient(cfg config.AniDBConfig, fs afero.Fs, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		fs:     fs,
		config: cfg,
		logger: logger.With().Str("component", "anidb-client").Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// IsConfigured returns true if the registered client name is set.
func (c *Client) IsConfigured() bool {
	return c.config.Client != ""
}

// FetchSeries downloads the raw document for one series, decompresses it and
// writes the bytes to destPath. Network failures and cancellation propagate
// unmodified; nothing is written on failure.
func (c *Client) FetchSeries(ctx context.Context, seriesID, destPath string) error {
	if !c.IsConfigured() {
		return ErrClientMissing
	}

	params := url.Values{}
	params.Set("request", "anime")
	params.Set("client", c.config.Client)
	params.Set("clientver", strconv.Itoa(c.config.ClientVersion))
	params.Set("protover", strconv.Itoa(protoVersion))
	params.Set("aid", seriesID)

	reqURL := fmt.Sprintf("%s?%s", c.config.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("seriesId", seriesID).Msg("HTTP request failed")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	// The API always gzips the response body, regardless of headers.
	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to decompress response: %w", err)
	}
	defer gz.Close()

	out, err := c.fs.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	if _, err := io.Copy(out, gz); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", destPath, err)
	}

	c.logger.Debug().Str("seriesId", seriesID).Str("path", destPath).Msg("Downloaded series document")
	return nil
}
