package qbproxy

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/eshaffer321/qbproxy-go/internal/transport"
	internalTypes "github.com/eshaffer321/qbproxy-go/internal/types"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

const (
	// DefaultAPIEndpoint is the default API base URL
	DefaultAPIEndpoint = internalTypes.DefaultAPIEndpoint

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = internalTypes.DefaultTimeout

	// DefaultMaxSessionRenewals bounds renewal retries per request
	DefaultMaxSessionRenewals = internalTypes.DefaultMaxSessionRenewals
)

// Proxy orchestrates API requests: it encodes payloads, holds requests back
// while the account settings call is in flight, and renews expired sessions.
type Proxy struct {
	id        string
	options   *Options
	transport Transport
	session   sessionStore
	state     *dispatchState
	renewal   *renewalCoordinator
	now       func() time.Time
}

// Endpoints locates the remote API
type Endpoints struct {
	// API is the base URL used by URL
	API string

	// Account marks the account settings URL. A request whose URL contains
	// it is the bootstrap call.
	Account string
}

// Credentials identify the application and account
type Credentials struct {
	AppID      int
	AuthKey    string
	AuthSecret string
	AccountKey string
}

// Options configures the proxy
type Options struct {
	Endpoints Endpoints

	// StorageHost identifies binary storage URLs, which get no API headers
	StorageHost string

	Credentials Credentials

	// Timeout is passed to the transport for every request
	Timeout time.Duration

	// Version is reported in the QB-SDK header
	Version string

	// AddISOTime adds iso_created_at/iso_updated_at to decoded responses
	AddISOTime bool

	// OnSessionExpired is consulted when the server reports an unknown session
	OnSessionExpired SessionExpiredHandler

	// MaxSessionRenewals bounds renewal retries per request. Zero means
	// DefaultMaxSessionRenewals, a negative value means unbounded.
	MaxSessionRenewals int

	// Session is the initial session
	Session *Session

	// HTTPClient allows using a custom HTTP client
	HTTPClient *http.Client

	// RetryConfig configures transport level retries
	RetryConfig *internalTypes.RetryConfig

	// RateLimiter for rate limiting
	RateLimiter RateLimiter

	// Hooks for observability
	Hooks *internalTypes.Hooks

	// Logger for debug logging
	Logger Logger

	// SentryDSN enables Sentry error tracking when set
	SentryDSN string

	// SentryOptions allows custom Sentry configuration
	SentryOptions *sentry.ClientOptions
}

// Logger interface for logging. *slog.Logger satisfies it.
type Logger = internalTypes.Logger

// RateLimiter interface for rate limiting
type RateLimiter = internalTypes.RateLimiter

// Transport issues wire requests. Send must not block: it returns a channel
// that later yields exactly one outcome.
type Transport interface {
	Send(ctx context.Context, req *transport.Request) <-chan transport.Outcome
}

// NewProxy creates a new proxy
func NewProxy(opts *Options) (*Proxy, error) {
	if opts == nil {
		opts = &Options{}
	}

	// Initialize Sentry if DSN is provided
	if opts.SentryDSN != "" || opts.SentryOptions != nil {
		sentryOpts := sentry.ClientOptions{}
		if opts.SentryOptions != nil {
			sentryOpts = *opts.SentryOptions
		}
		if opts.SentryDSN != "" {
			sentryOpts.Dsn = opts.SentryDSN
		}
		if sentryOpts.Environment == "" {
			sentryOpts.Environment = "production"
		}
		if err := sentry.Init(sentryOpts); err != nil {
			// Log error but don't fail proxy creation
			if opts.Logger != nil {
				opts.Logger.Error("Failed to initialize Sentry", "error", err)
			}
		}
	}

	applyDefaults(opts)

	trans := transport.NewHTTPTransport(&transport.Options{
		HTTPClient:  opts.HTTPClient,
		RetryConfig: opts.RetryConfig,
		RateLimiter: opts.RateLimiter,
		Logger:      opts.Logger,
		Hooks:       opts.Hooks,
	})

	return newProxy(opts, trans), nil
}

func newProxy(opts *Options, trans Transport) *Proxy {
	p := &Proxy{
		id:        uuid.New().String(),
		options:   opts,
		transport: trans,
		state:     &dispatchState{},
		now:       time.Now,
	}
	p.session.set(opts.Session)
	p.renewal = &renewalCoordinator{
		handler:     opts.OnSessionExpired,
		maxRenewals: opts.MaxSessionRenewals,
		logger:      opts.Logger,
		resume:      p.deliver,
		retry:       p.retryWithSession,
	}
	return p
}

func applyDefaults(opts *Options) {
	if opts.Endpoints.API == "" {
		opts.Endpoints.API = DefaultAPIEndpoint
	}
	opts.Endpoints.API = strings.TrimRight(opts.Endpoints.API, "/")
	if opts.Endpoints.Account == "" {
		opts.Endpoints.Account = internalTypes.DefaultAccountEndpoint
	}
	if opts.StorageHost == "" {
		opts.StorageHost = internalTypes.DefaultStorageHost
	}
	if opts.Version == "" {
		opts.Version = internalTypes.DefaultVersion
	}
	if opts.MaxSessionRenewals == 0 {
		opts.MaxSessionRenewals = DefaultMaxSessionRenewals
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Timeout: DefaultTimeout,
		}
	}
}

// ID identifies this proxy in logs
func (p *Proxy) ID() string {
	return p.id
}

// Session returns a copy of the current session, or nil until one is
// installed with SetSession or CreateSession
func (p *Proxy) Session() *Session {
	return p.session.get()
}

// SetSession installs session as the current session
func (p *Proxy) SetSession(session *Session) {
	p.session.set(session)
}

// SetSessionExpiredHandler replaces the handler consulted when the server
// reports an unknown session. A nil handler delivers such failures as-is.
func (p *Proxy) SetSessionExpiredHandler(h SessionExpiredHandler) {
	p.renewal.setHandler(h)
}

// URL builds an API resource URL: the API endpoint, parts joined by '/',
// and the .json suffix
func (p *Proxy) URL(parts ...string) string {
	return p.options.Endpoints.API + "/" + strings.Join(parts, "/") + internalTypes.URLSuffix
}

// Close flushes any pending Sentry events and performs cleanup
func (p *Proxy) Close() {
	// Flush Sentry events with a 2 second timeout
	sentry.Flush(2 * time.Second)
}

// captureError reports a delivered failure to Sentry
func (p *Proxy) captureError(ctx context.Context, req *Request, err error) {
	report := func(hub *sentry.Hub) {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("request.method", req.method())
			scope.SetContext("request", map[string]interface{}{
				"url":   req.URL,
				"proxy": p.id,
			})
			hub.CaptureException(err)
		})
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		report(hub)
		return
	}
	report(sentry.CurrentHub())
}

// sdkHeader is the QB-SDK header value
func (p *Proxy) sdkHeader() string {
	return "Go " + p.options.Version + " - Client"
}

// clientOS is the QB-OS header value
func clientOS() string {
	switch runtime.GOOS {
	case "darwin":
		return "Mac OS"
	case "windows":
		return "Windows"
	case "linux":
		return "Linux"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	default:
		return runtime.GOOS
	}
}
