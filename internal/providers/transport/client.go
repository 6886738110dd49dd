// Package transport is the HTTP plumbing shared by the source adapters.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/zxtrader/pricing-sub000/internal/types"
)

// ErrorDecoder extracts a source's error message from a response body; "" if none.
type ErrorDecoder func(body []byte) string

// Config represents the connection settings of one source
type Config struct {
	Source    string
	BaseURL   string
	Timeout   time.Duration
	RateLimit int // requests per minute
	Burst     int
	Headers   map[string]string
	// Decodes error bodies; optional
	DecodeError ErrorDecoder
}

// Client issues rate limited GET requests and maps failures onto the source error taxonomy
type Client struct {
	source      string
	baseURL     string
	headers     map[string]string
	decodeError ErrorDecoder
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a new source client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 60
	}
	if config.Burst == 0 {
		config.Burst = 10
	}

	return &Client{
		source:      config.Source,
		baseURL:     config.BaseURL,
		headers:     config.Headers,
		decodeError: config.DecodeError,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RateLimit)), config.Burst),
	}
}

// Source returns the source id errors are attributed to
func (c *Client) Source() string {
	return c.source
}

// Get performs GET baseURL+endpoint?params and returns the body of a 200 response.
// A cancelled ctx is returned as ctx.Err(), not as a source error.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	// Wait for rate limiter
	if err := c.rateLimiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewCommunicationError(c.source, types.ErrorCodeRateLimit, "rate limit wait failed", err)
	}

	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, types.NewBrokenAPIError(c.source, types.ErrorCodeBadRequest, "failed to create request: "+err.Error())
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pricing/1.0")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewCommunicationError(c.source, types.ErrorCodeNetworkError, "network error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewCommunicationError(c.source, types.ErrorCodeNetworkError, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	return body, nil
}

// handleErrorResponse maps throttling and server failures to communication errors, anything else to a broken API
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	errorMsg := fmt.Sprintf("HTTP %d", statusCode)
	if c.decodeError != nil {
		if msg := c.decodeError(body); msg != "" {
			errorMsg = msg
		}
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewCommunicationError(c.source, types.ErrorCodeRateLimit, errorMsg, nil)
	case statusCode >= http.StatusInternalServerError:
		return types.NewCommunicationError(c.source, types.ErrorCodeServerError, errorMsg, nil)
	default:
		return types.NewBrokenAPIError(c.source, strconv.Itoa(statusCode), errorMsg)
	}
}

// ParseError reports a response that does not have the expected shape
func (c *Client) ParseError(format string, args ...interface{}) error {
	return types.NewBrokenAPIError(c.source, types.ErrorCodeParseError, fmt.Sprintf(format, args...))
}
