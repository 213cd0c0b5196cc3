package compute

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"skymosaic/internal/config"
	"skymosaic/internal/logger"
	"skymosaic/internal/raster"
)

// Client is the HTTP implementation of Service.
type Client struct {
	http       *resty.Client
	dl         *resty.Client
	baseURL    string
	retryDelay time.Duration
}

// NewClient creates a compute client for the given service base URL.
// Catalog and stats calls get resty's built-in retry; raster downloads use
// the explicit backoff loop in Download because their failure modes need
// to be told apart.
func NewClient(baseURL, token string) *Client {
	http := resty.New()
	http.SetTimeout(120 * time.Second)
	http.SetRetryCount(3)
	http.SetRetryWaitTime(2 * time.Second)
	if token != "" {
		http.SetAuthToken(token)
	}

	// Downloads manage their own retries so retry here would compound.
	dl := resty.New()
	dl.SetTimeout(10 * time.Minute)
	if token != "" {
		dl.SetAuthToken(token)
	}

	return &Client{
		http:       http,
		dl:         dl,
		baseURL:    baseURL,
		retryDelay: config.DownloadRetryDelay,
	}
}

// apiError is the service's JSON error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// mapError translates the service's error envelope into package errors.
func mapError(status int, body []byte) error {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Code != "" {
		switch e.Code {
		case "payload_too_large":
			return ErrTileTooLarge
		case "unsupported_operation":
			return ErrUnsupportedOp
		case "no_images":
			return ErrNoImages
		}
		return fmt.Errorf("compute service error %s: %s", e.Code, e.Message)
	}
	if status == 413 {
		return ErrTileTooLarge
	}
	return fmt.Errorf("compute service returned status %d", status)
}

// Catalog lists images matching the query.
func (c *Client) Catalog(ctx context.Context, q CatalogQuery) ([]CatalogEntry, error) {
	var entries []CatalogEntry
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetBody(q).
		SetResult(&entries).
		Post(c.baseURL + "/v1/catalog")
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, mapError(resp.StatusCode(), resp.Body())
	}
	return entries, nil
}

// RegionStats reduces one band over a region.
func (c *Client) RegionStats(ctx context.Context, req StatsRequest) (Stats, error) {
	var stats Stats
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetBody(req).
		SetResult(&stats).
		Post(c.baseURL + "/v1/stats")
	if err != nil {
		return Stats{}, fmt.Errorf("region stats failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return Stats{}, mapError(resp.StatusCode(), resp.Body())
	}
	return stats, nil
}

// DownloadURL renders an expression into a short-lived download URL.
func (c *Client) DownloadURL(ctx context.Context, expr Expression) (string, error) {
	var result struct {
		URL string `json:"url"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetBody(expr).
		SetResult(&result).
		Post(c.baseURL + "/v1/expression/url")
	if err != nil {
		return "", fmt.Errorf("expression render failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return "", mapError(resp.StatusCode(), resp.Body())
	}
	if result.URL == "" {
		return "", fmt.Errorf("expression render returned empty URL")
	}
	return result.URL, nil
}

// Download fetches a rendered raster payload with explicit exponential
// backoff. A payload-too-large rejection is permanent and never retried;
// transient failures are retried up to the configured count with the
// delay doubling each attempt.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	delay := c.retryDelay

	for attempt := 1; attempt <= config.DownloadRetries; attempt++ {
		resp, err := c.dl.R().
			SetContext(ctx).
			Get(url)

		switch {
		case err != nil:
			lastErr = fmt.Errorf("download attempt %d: %w", attempt, err)
		case resp.StatusCode() == 413:
			return nil, ErrTileTooLarge
		case resp.StatusCode() != 200:
			lastErr = mapError(resp.StatusCode(), resp.Body())
			if lastErr == ErrTileTooLarge {
				return nil, lastErr
			}
		default:
			body := resp.Body()
			if len(body) > config.MaxDownloadSizeBytes {
				return nil, ErrTileTooLarge
			}
			if len(body) == 0 {
				lastErr = fmt.Errorf("download attempt %d: empty payload", attempt)
				break
			}
			// Services deliver error pages with HTTP 200; those count as
			// transient failures, not payloads.
			format := raster.DetectFormat(body)
			if format == raster.FormatGeoTIFF || format == raster.FormatZIP {
				return body, nil
			}
			lastErr = fmt.Errorf("download attempt %d: %s payload instead of raster data: %q",
				attempt, format, snippet(body))
		}

		if attempt < config.DownloadRetries {
			logger.Warnf("Download failed (attempt %d/%d), retrying in %s: %v",
				attempt, config.DownloadRetries, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}
	return nil, fmt.Errorf("download failed after %d attempts: %w", config.DownloadRetries, lastErr)
}

// snippet truncates a body for log and error messages.
func snippet(body []byte) string {
	const max = 120
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
