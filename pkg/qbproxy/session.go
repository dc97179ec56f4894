package qbproxy

import (
	"sync/atomic"
	"time"
)

// sessionStore holds the current session as an immutable value. Writers
// publish a fresh copy, so a reader always sees a complete session. The
// latest reported expiration is kept apart so that recording it never
// creates a session.
type sessionStore struct {
	current atomic.Pointer[Session]
	latest  atomic.Pointer[expiration]
}

// expiration is the session expiration reported by a response
type expiration struct {
	date      time.Time
	raw       string
	hasHeader bool
}

func (s *sessionStore) get() *Session {
	cur := s.current.Load()
	if cur == nil {
		return nil
	}
	cp := *cur
	return &cp
}

func (s *sessionStore) set(session *Session) {
	if session == nil {
		s.current.Store(nil)
		return
	}
	cp := *session
	s.current.Store(&cp)
}

func (s *sessionStore) token() string {
	if cur := s.current.Load(); cur != nil {
		return cur.Token
	}
	return ""
}

// lastExpiration returns the latest reported expiration, or nil
func (s *sessionStore) lastExpiration() *expiration {
	return s.latest.Load()
}

// updateExpiration records the expiration reported by a response and
// applies it to the installed session, if any
func (s *sessionStore) updateExpiration(date time.Time, raw string, hasHeader bool) {
	s.latest.Store(&expiration{date: date, raw: raw, hasHeader: hasHeader})

	for {
		old := s.current.Load()
		if old == nil {
			return
		}
		next := *old
		next.ExpirationDate = date
		next.ExpirationHeader = raw
		next.HasExpirationHeader = hasHeader
		if s.current.CompareAndSwap(old, &next) {
			return
		}
	}
}

var expirationLayouts = []string{
	time.RFC3339,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02T15:04:05Z0700",
}

// parseExpiration parses a qb-token-expirationdate header value. The zero
// time is returned for values in an unknown layout.
func parseExpiration(raw string) time.Time {
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
