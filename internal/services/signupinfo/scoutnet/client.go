// Package scoutnet fetches project documents from the Scoutnet project API.
package scoutnet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Scouterna/j26-signupinfo/internal/platform/timeouts"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is the production project API root.
const DefaultBaseURL = "https://www.scoutnet.se/api/project/get"

const tracerName = "github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/scoutnet"

// maxResponseBytes bounds one upstream body.
const maxResponseBytes = 64 << 20

// UpstreamError reports a failed call to the project API: a transport error,
// a non-2xx status or a body that is not valid JSON.
type UpstreamError struct {
	// URL is the request URL with API keys redacted.
	URL        string
	StatusCode int
	Cause      error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream %s: status %d", e.URL, e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("upstream %s: %v", e.URL, e.Cause)
	default:
		return fmt.Sprintf("upstream %s: failed", e.URL)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// ClientConfig configures a Client. Zero values take defaults.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	// ResponseCache memoizes responses for local development. Nil disables it.
	ResponseCache storage.ResponseCache
	Logf          func(string, ...any)
}

// Client issues GET requests against the project API.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	cache      storage.ResponseCache
	logf       func(string, ...any)
	tracer     trace.Tracer
}

// NewClient builds a client from cfg.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = timeouts.UpstreamRequest
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Client{
		baseURL:    baseURL,
		timeout:    cfg.RequestTimeout,
		httpClient: cfg.HTTPClient,
		cache:      cfg.ResponseCache,
		logf:       cfg.Logf,
		tracer:     otel.Tracer(tracerName),
	}
}

// Get fetches rawURL and decodes the JSON body into target. Each call is
// bounded by the request timeout and is not retried.
func (c *Client) Get(ctx context.Context, rawURL string, target any) (err error) {
	redacted := RedactURL(rawURL)
	ctx, span := c.tracer.Start(ctx, "scoutnet.get", trace.WithAttributes(attribute.String("url.full", redacted)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var key string
	if c.cache != nil {
		key = CacheKey(rawURL)
		cached, cacheErr := c.cache.GetResponse(ctx, key)
		switch {
		case cacheErr == nil:
			span.SetAttributes(attribute.Bool("scoutnet.dev_cache_hit", true))
			if err := json.Unmarshal(cached.Body, target); err != nil {
				return &UpstreamError{URL: redacted, Cause: fmt.Errorf("decode cached response: %w", err)}
			}
			return nil
		case !errors.Is(cacheErr, storage.ErrNotFound):
			c.logf("dev cache read %s: %v", key, cacheErr)
		}
	}

	body, err := c.fetch(ctx, rawURL, redacted)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return &UpstreamError{URL: redacted, Cause: fmt.Errorf("decode response: %w", err)}
	}

	if c.cache != nil {
		if err := c.cache.PutResponse(ctx, storage.CachedResponse{Key: key, Body: body}); err != nil {
			c.logf("dev cache write %s: %v", key, err)
		}
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, rawURL, redacted string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &UpstreamError{URL: redacted, Cause: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: redacted, Cause: scrubURLError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamError{URL: redacted, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &UpstreamError{URL: redacted, Cause: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// scrubURLError drops the request URL that net/http embeds in transport
// errors, since it carries the API key.
func scrubURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// CacheKey derives the development cache key of a URL: the first 16 hex
// characters of its SHA-256 digest.
func CacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:16]
}

// RedactURL replaces the key query parameter so URLs can be logged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	query := u.Query()
	if _, ok := query["key"]; !ok {
		return u.String()
	}
	query.Set("key", "REDACTED")
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) endpoint(name string, params url.Values) string {
	return c.baseURL + "/" + name + "?" + params.Encode()
}
