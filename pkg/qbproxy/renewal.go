package qbproxy

import (
	"context"
	"fmt"
	"sync"
)

// SessionExpiredHandler decides how to recover from an expired session.
//
// Returning a session with a token retries the failed request with it.
// Returning nil, or an error, resumes: the original failure is delivered to
// the caller. The handler may take as long as it needs; the caller is not
// called back until it returns.
type SessionExpiredHandler interface {
	SessionExpired(ctx context.Context, cause *Error) (*Session, error)
}

// SessionExpiredFunc adapts a function to SessionExpiredHandler
type SessionExpiredFunc func(ctx context.Context, cause *Error) (*Session, error)

// SessionExpired calls f
func (f SessionExpiredFunc) SessionExpired(ctx context.Context, cause *Error) (*Session, error) {
	return f(ctx, cause)
}

// renewalCoordinator intercepts expired-session failures. A request is
// either resumed with its original failure or retried with a new session.
type renewalCoordinator struct {
	mu          sync.RWMutex
	handler     SessionExpiredHandler
	maxRenewals int
	logger      Logger

	resume func(ctx context.Context, c *call, resp *Response, cause *Error)
	retry  func(ctx context.Context, c *call, session *Session)
}

func (r *renewalCoordinator) setHandler(h SessionExpiredHandler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

func (r *renewalCoordinator) currentHandler() SessionExpiredHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handler
}

func (r *renewalCoordinator) applies(err *Error) bool {
	return err.sessionExpired() && r.currentHandler() != nil
}

func (r *renewalCoordinator) renew(ctx context.Context, c *call, cause *Error) {
	if r.maxRenewals >= 0 && c.renewals >= r.maxRenewals {
		if r.logger != nil {
			r.logger.Warn("session renewal limit reached", "url", c.req.URL, "renewals", c.renewals)
		}
		limited := *cause
		limited.Err = fmt.Errorf("%w after %d attempts", ErrRenewalLimitExceeded, c.renewals)
		r.resume(ctx, c, nil, &limited)
		return
	}

	handler := r.currentHandler()
	if handler == nil {
		r.resume(ctx, c, nil, cause)
		return
	}

	session, err := handler.SessionExpired(ctx, cause)
	if err != nil || session == nil || session.Token == "" {
		if r.logger != nil {
			r.logger.Info("session not renewed", "url", c.req.URL, "error", err)
		}
		r.resume(ctx, c, nil, cause)
		return
	}

	if r.logger != nil {
		r.logger.Debug("session renewed, retrying", "url", c.req.URL, "renewals", c.renewals+1)
	}
	r.retry(ctx, c, session)
}
