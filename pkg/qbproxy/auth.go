package qbproxy

import (
	"context"
	"net/http"

	"github.com/eshaffer321/qbproxy-go/internal/auth"
	"github.com/pkg/errors"
)

// UserCredentials bind a new session to a user. Login takes precedence
// over Email.
type UserCredentials struct {
	Login    string
	Email    string
	Password string
}

type sessionResponse struct {
	Session struct {
		Token         string `json:"token"`
		ApplicationID int    `json:"application_id"`
		UserID        int    `json:"user_id"`
	} `json:"session"`
}

// CreateSession creates a session with a signed request and installs it.
// user may be nil for an application session.
func (p *Proxy) CreateSession(ctx context.Context, user *UserCredentials) (*Session, error) {
	creds := p.options.Credentials

	var u *auth.User
	if user != nil {
		u = &auth.User{Login: user.Login, Email: user.Email, Password: user.Password}
	}

	nonce := auth.Nonce()
	params, err := auth.SessionParams(auth.Credentials{
		AppID:      creds.AppID,
		AuthKey:    creds.AuthKey,
		AuthSecret: creds.AuthSecret,
	}, u, p.now(), nonce)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build session request")
	}

	if p.options.Logger != nil {
		p.options.Logger.Debug("creating session", "proxy", p.id, "nonce", auth.FormatNonce(nonce))
	}

	resp, err := p.do(ctx, &call{
		req: &Request{
			URL:    p.URL("session"),
			Method: http.MethodPost,
			Data:   params,
		},
		noRenewal: true,
	})
	if err != nil {
		return nil, err
	}

	var out sessionResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.Session.Token == "" {
		return nil, ErrNoToken
	}

	session := &Session{
		Token:         out.Session.Token,
		ApplicationID: out.Session.ApplicationID,
		UserID:        out.Session.UserID,
	}
	// keep the expiration this response just reported
	if exp := p.session.lastExpiration(); exp != nil {
		session.ExpirationDate = exp.date
		session.ExpirationHeader = exp.raw
		session.HasExpirationHeader = exp.hasHeader
	}

	p.SetSession(session)
	return session, nil
}

// CredentialsRenewer returns a handler that renews expired sessions by
// creating a new one with the proxy's credentials
func CredentialsRenewer(p *Proxy, user *UserCredentials) SessionExpiredHandler {
	return SessionExpiredFunc(func(ctx context.Context, cause *Error) (*Session, error) {
		return p.CreateSession(ctx, user)
	})
}
