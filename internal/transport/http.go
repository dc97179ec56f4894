package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/eshaffer321/qbproxy-go/internal/types"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// Request is a fully built wire request
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Timeout bounds the whole exchange when positive
	Timeout time.Duration
}

// Response is a received wire response with its body fully read
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Outcome is the settlement of a sent request. Err is set when no response
// was received.
type Outcome struct {
	Response *Response
	Err      error
}

// HTTPTransport sends requests over net/http
type HTTPTransport struct {
	httpClient  *http.Client
	retryClient *retryablehttp.Client
	rateLimiter types.RateLimiter
	logger      types.Logger
	hooks       *types.Hooks
}

// NewHTTPTransport creates a new HTTP transport
func NewHTTPTransport(opts *Options) *HTTPTransport {
	if opts == nil {
		opts = &Options{}
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout: types.DefaultTimeout,
		}
	}

	// Create retry client if configured
	var retryClient *retryablehttp.Client
	if opts.RetryConfig != nil {
		retryClient = retryablehttp.NewClient()
		retryClient.HTTPClient = opts.HTTPClient
		retryClient.RetryMax = opts.RetryConfig.MaxRetries
		retryClient.RetryWaitMin = opts.RetryConfig.RetryWait
		retryClient.RetryWaitMax = opts.RetryConfig.MaxWait
		// Non-2xx responses are classified by the caller, not turned into errors
		retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

		if opts.Logger != nil {
			retryClient.Logger = &retryLogger{logger: opts.Logger}
		} else {
			retryClient.Logger = nil
		}
	}

	return &HTTPTransport{
		httpClient:  opts.HTTPClient,
		retryClient: retryClient,
		rateLimiter: opts.RateLimiter,
		logger:      opts.Logger,
		hooks:       opts.Hooks,
	}
}

// Send issues req and returns a channel that yields exactly one Outcome.
// The request is on its way when Send returns.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		resp, err := t.Do(ctx, req)
		out <- Outcome{Response: resp, Err: err}
	}()
	return out
}

// Do performs req and blocks until the response body has been read
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// Rate limiting
	if t.rateLimiter != nil {
		if err := t.rateLimiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	// Call request hook
	if t.hooks != nil && t.hooks.OnRequest != nil {
		t.hooks.OnRequest(ctx, httpReq)
	}

	start := time.Now()
	resp, err := t.doRequest(httpReq)
	duration := time.Since(start)

	if err != nil {
		if t.hooks != nil && t.hooks.OnError != nil {
			t.hooks.OnError(ctx, err)
		}
		if errors.Is(err, io.EOF) {
			return nil, errors.Wrap(types.ErrEmptyResponse, err.Error())
		}
		return nil, err
	}
	defer resp.Body.Close()

	// Call response hook
	if t.hooks != nil && t.hooks.OnResponse != nil {
		t.hooks.OnResponse(ctx, resp, duration)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if t.logger != nil {
		t.logger.Debug("HTTP response", "status", resp.StatusCode, "duration", duration, "size", len(respBody))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// doRequest executes the HTTP request with retry if configured
func (t *HTTPTransport) doRequest(req *http.Request) (*http.Response, error) {
	if t.retryClient != nil {
		// Convert to retryable request
		retryReq, err := retryablehttp.FromRequest(req)
		if err != nil {
			return nil, err
		}
		return t.retryClient.Do(retryReq)
	}
	return t.httpClient.Do(req)
}

// StatusDescription returns a human-readable description for common HTTP status codes.
// This helps users understand errors like 525 (SSL Handshake Failed) which are Cloudflare-specific.
func StatusDescription(statusCode int) string {
	if desc, ok := statusDescriptions[statusCode]; ok {
		return desc
	}
	return http.StatusText(statusCode)
}

var statusDescriptions = map[int]string{
	520: "Web Server Error",
	521: "Web Server Is Down",
	522: "Connection Timed Out",
	523: "Origin Is Unreachable",
	524: "A Timeout Occurred",
	525: "SSL Handshake Failed",
	526: "Invalid SSL Certificate",
	527: "Railgun Error",
	530: "Origin DNS Error",
}

// Options for the HTTP transport
type Options struct {
	HTTPClient  *http.Client
	RetryConfig *types.RetryConfig
	RateLimiter types.RateLimiter
	Logger      types.Logger
	Hooks       *types.Hooks
}

// retryLogger adapts our logger to retryablehttp
type retryLogger struct {
	logger types.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keysAndValues...)
}
