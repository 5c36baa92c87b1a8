package apiclient

import (
	"bytes"
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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/feedsync/internal/apierr"
	"github.com/feedsync/internal/retry"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultConnectTimeout = 5 * time.Second
	maxErrorBody          = 4096
)

// Options configures a Client
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	Burst      int
	Retry      retry.Config
	HTTPClient *http.Client
	UserAgent  string
}

// Client is the JSON transport shared by every gateway. Reads are retried
// with backoff; writes are sent once.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Config
	userAgent  string
	logger     zerolog.Logger

	token string
}

// New creates a client for the backend at opts.BaseURL
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https: %s", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		dialer := &net.Dialer{Timeout: defaultConnectTimeout}
		httpClient = &http.Client{
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: defaultConnectTimeout,
			},
			Timeout: timeout,
		}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "feedsync"
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		limiter:    limiter,
		retry:      opts.Retry,
		userAgent:  userAgent,
		logger:     log.With().Str("component", "apiclient").Logger(),
		token:      opts.Token,
	}, nil
}

// Request describes one API call
type Request struct {
	Op     string // short operation name used in errors and logs
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
}

// Get performs an idempotent read, retrying transport failures. It returns
// the response status; a 204 leaves out untouched.
func (c *Client) Get(ctx context.Context, op, path string, query url.Values, out interface{}) (int, error) {
	var status int
	result := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var err error
		status, err = c.Do(ctx, Request{Op: op, Method: http.MethodGet, Path: path, Query: query}, out)
		return err
	}, &c.logger)
	return status, result.LastError
}

// Do sends req once and decodes a JSON response into out (which may be nil).
// Non-2xx responses become *apierr.StatusError; network failures wrap
// apierr.ErrTransport.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("%s: rate limiter: %w", req.Op, err)
		}
	}

	u := *c.baseURL
	u.Path = u.Path + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return 0, fmt.Errorf("%s: failed to encode request: %w", req.Op, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to create request: %w", req.Op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug().Str("op", req.Op).Str("method", req.Method).Str("url", u.String()).Msg("api request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%s: %w", req.Op, ctx.Err())
		}
		return 0, apierr.Transport(req.Op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &apierr.StatusError{
			Op:         req.Op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return resp.StatusCode, nil
		}
		return resp.StatusCode, fmt.Errorf("%s: failed to decode response: %w", req.Op, err)
	}
	return resp.StatusCode, nil
}

// errorMessage extracts {"error": "..."} or falls back to the raw body
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
