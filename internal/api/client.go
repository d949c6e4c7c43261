// Package api is the HTTP client for the deals marketplace
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"dealgrip/internal/domain"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// DefaultRetryInterval is the first wait between GET retries
	DefaultRetryInterval = 200 * time.Millisecond

	// MaxResponseSize is the maximum allowed response size (10MB)
	MaxResponseSize = 10 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "dealgrip/1.0"

	// RequestIDHeader carries a fresh uuid per request
	RequestIDHeader = "X-Request-ID"
)

// Options configures a Client
type Options struct {
	BaseURL string
	Token   string
	// Timeout bounds a single attempt
	Timeout time.Duration
	// MaxRetries is how many times a failed GET is repeated
	MaxRetries    uint
	RetryInterval time.Duration
	PageSize      int
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client talks to the deals API. It implements pagination.Fetcher and
// mutation.Mutator.
type Client struct {
	base          *url.URL
	token         string
	maxRetries    uint
	retryInterval time.Duration
	pageSize      int
	client        *http.Client
	logger        *slog.Logger
}

// NewClient creates a client for the API at opts.BaseURL
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryInterval == 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	return &Client{
		base:          base,
		token:         opts.Token,
		maxRetries:    opts.MaxRetries,
		retryInterval: opts.RetryInterval,
		pageSize:      opts.PageSize,
		client:        opts.HTTPClient,
		logger:        opts.Logger,
	}, nil
}

// FetchPage fetches one page of the listing addressed by sel
func (c *Client) FetchPage(ctx context.Context, sel domain.Selector, page int) (domain.DealPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if c.pageSize > 0 {
		q.Set("per_page", strconv.Itoa(c.pageSize))
	}

	var path string
	switch sel.Mode {
	case domain.ModeSearch:
		path = "/api/v1/deals"
		if sel.Query != "" {
			q.Set("q", sel.Query)
		}
		keys := make([]string, 0, len(sel.Filters))
		for k := range sel.Filters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			q.Set(k, sel.Filters[k])
		}
	case domain.ModeBrowse:
		path = "/api/v1/browse"
		if sel.Category != "" {
			q.Set("category", sel.Category)
		}
		if sel.Shop != "" {
			q.Set("shop", sel.Shop)
		}
	case domain.ModeFavorites:
		path = "/api/v1/favorites"
	default:
		return domain.DealPage{}, fmt.Errorf("unsupported selector mode %q", sel.Mode)
	}

	var result domain.DealPage
	if err := c.getJSON(ctx, path, q, &result); err != nil {
		return domain.DealPage{}, err
	}
	result.Page = page
	return result, nil
}

// ListFavorites fetches one page of the user's favorites
func (c *Client) ListFavorites(ctx context.Context, page int) (domain.DealPage, error) {
	return c.FetchPage(ctx, domain.FavoritesSelector(), page)
}

// GetDeal fetches a single deal
func (c *Client) GetDeal(ctx context.Context, id string) (domain.Deal, error) {
	var deal domain.Deal
	if err := c.getJSON(ctx, "/api/v1/deals/"+url.PathEscape(id), nil, &deal); err != nil {
		return domain.Deal{}, err
	}
	return deal, nil
}

type favoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// SetFavorite sets the favorite flag of a deal and returns the updated deal.
// It is never retried.
func (c *Client) SetFavorite(ctx context.Context, id string, favorite bool) (domain.Deal, error) {
	body, err := json.Marshal(favoriteRequest{Favorite: favorite})
	if err != nil {
		return domain.Deal{}, fmt.Errorf("failed to encode request: %w", err)
	}
	var deal domain.Deal
	path := "/api/v1/deals/" + url.PathEscape(id) + "/favorite"
	if err := c.do(ctx, http.MethodPut, path, nil, body, &deal); err != nil {
		return domain.Deal{}, err
	}
	return deal, nil
}

// getJSON performs a GET with exponential backoff on retryable errors
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxInterval = 10 * c.retryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		if err != nil && !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.maxRetries+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Debug("api: retrying request", "path", path, "error", err, "wait", wait)
		}),
	)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	target := u.String()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.logger.Debug("api: response", "method", method, "url", target, "status", resp.StatusCode,
		"request_id", requestID, "duration", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := resp.Status
		if b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)); len(bytes.TrimSpace(b)) > 0 {
			msg = extractMessage(b)
		}
		return NewHTTPError(resp.StatusCode, target, msg)
	}

	if resp.ContentLength > MaxResponseSize {
		return fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{URL: target, Err: err}
	}
	return nil
}

// extractMessage pulls "message" out of a JSON error body
func extractMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}
