/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/acronis/inference-gateway/httpclient"
	"github.com/acronis/inference-gateway/log"
)

// RequestType is used as the request type in the outgoing HTTP client logs and metrics.
const RequestType = "inference-backend"

const contentTypeAppJSON = "application/json"

// Response is a fully buffered backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Opts represents options for the backend Client.
type Opts struct {
	// Transport is the lowest-level RoundTripper. A transport with configured timeouts is used by default.
	Transport http.RoundTripper

	// MetricsCollector is used for outgoing requests metrics if they are enabled in the config.
	MetricsCollector httpclient.MetricsCollector

	// LoggerProvider returns a request-scoped logger. The logger from the context is used by default.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// Client is a client for the inference backend.
// It's safe for concurrent use.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	requestTimeout   time.Duration
	streamBufferSize int
	maxErrorBodySize int64
	healthCheckPath  string
}

// New creates a new backend Client.
func New(cfg *Config, opts Opts) (*Client, error) {
	httpClient, err := httpclient.NewWithOpts(&cfg.HTTPClient, httpclient.Opts{
		UserAgent:      cfg.UserAgent,
		RequestType:    RequestType,
		Delegate:       opts.Transport,
		LoggerProvider: opts.LoggerProvider,
		Collector:      opts.MetricsCollector,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	healthCheckPath := cfg.HealthCheck.Path
	if healthCheckPath == "" {
		healthCheckPath = DefaultHealthCheckPath
	}
	streamBufferSize := int(cfg.StreamBufferSize)
	if streamBufferSize <= 0 {
		streamBufferSize = DefaultStreamBufferSize
	}
	return &Client{
		httpClient:       httpClient,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		requestTimeout:   cfg.HTTPClient.Timeouts.Request,
		streamBufferSize: streamBufferSize,
		maxErrorBodySize: int64(cfg.MaxErrorBodySize), //nolint:gosec // size is validated in config
		healthCheckPath:  healthCheckPath,
	}, nil
}

// BaseURL returns the backend base URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create backend request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeAppJSON)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // closed by callers
	if err != nil {
		return nil, &UnavailableError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	return resp, nil
}

// Do sends a request and reads the whole response body.
// Non-2xx statuses are not errors: the response is returned as is, so it may be passed through to the client.
// If the backend cannot be reached or the body cannot be read, *UnavailableError is returned.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Method: method, URL: req.URL.String(), Err: fmt.Errorf("read response body: %w", err)}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// Stream sends a request and returns a Stream for reading the response body incrementally.
// The request is bound to ctx: canceling it aborts the backend connection.
// On non-2xx status the (size-limited) body is read, the connection is closed and *StatusError is returned.
// The caller must Close the returned Stream.
func (c *Client) Stream(ctx context.Context, method, path string, body []byte) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.send(req)
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer cancel()
		defer func() { _ = resp.Body.Close() }()
		var reader io.Reader = resp.Body
		if c.maxErrorBodySize > 0 {
			// One byte more to find out whether the body is cut.
			reader = io.LimitReader(resp.Body, c.maxErrorBodySize+1)
		}
		errBody, readErr := io.ReadAll(reader)
		if readErr != nil && len(errBody) == 0 {
			return nil, &UnavailableError{Method: method, URL: req.URL.String(), Err: fmt.Errorf("read error body: %w", readErr)}
		}
		statusErr := &StatusError{StatusCode: resp.StatusCode, Header: resp.Header, Body: errBody}
		if c.maxErrorBodySize > 0 && int64(len(errBody)) > c.maxErrorBodySize {
			statusErr.Body = errBody[:c.maxErrorBodySize]
			statusErr.Truncated = true
		}
		return nil, statusErr
	}

	return newStream(resp, cancel, c.streamBufferSize), nil
}

// Ping checks the backend health endpoint. Any 2xx status means the backend is healthy.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.healthCheckPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxErrorBodySize))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{StatusCode: resp.StatusCode, Header: resp.Header}
	}
	return nil
}
