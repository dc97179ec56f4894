// Package auth builds signed session creation parameters.
package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/eshaffer321/qbproxy-go/internal/encoding"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrMissingCredentials is returned when application credentials are incomplete
var ErrMissingCredentials = errors.New("application id, auth key and auth secret are required")

// Credentials identify the application
type Credentials struct {
	AppID      int
	AuthKey    string
	AuthSecret string
}

// User optionally binds the session to a user
type User struct {
	Login    string
	Email    string
	Password string
}

// SessionParams returns the signed parameters of a session creation request
func SessionParams(creds Credentials, user *User, now time.Time, nonce int64) (map[string]interface{}, error) {
	if creds.AppID == 0 || creds.AuthKey == "" || creds.AuthSecret == "" {
		return nil, ErrMissingCredentials
	}

	params := map[string]interface{}{
		"application_id": creds.AppID,
		"auth_key":       creds.AuthKey,
		"nonce":          nonce,
		"timestamp":      now.Unix(),
	}

	if user != nil {
		u := map[string]interface{}{"password": user.Password}
		if user.Login != "" {
			u["login"] = user.Login
		} else {
			u["email"] = user.Email
		}
		params["user"] = u
	}

	signature, err := Signature(params, creds.AuthSecret)
	if err != nil {
		return nil, err
	}
	params["signature"] = signature

	return params, nil
}

// Signature signs params with HMAC-SHA1. The message is the sorted,
// unescaped name=value pairs joined with '&'.
func Signature(params map[string]interface{}, secret string) (string, error) {
	pairs, err := encoding.Pairs(params)
	if err != nil {
		return "", errors.Wrap(err, "failed to flatten signature params")
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.Name == "signature" {
			continue
		}
		parts = append(parts, p.Name+"="+p.Value)
	}

	h := hmac.New(sha1.New, []byte(secret))
	h.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Nonce returns a random positive nonce
func Nonce() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint32(id[:4]) & 0x7fffffff)
}

// FormatNonce renders a nonce for logs
func FormatNonce(n int64) string {
	return strconv.FormatInt(n, 10)
}
