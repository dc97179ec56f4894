package qbproxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eshaffer321/qbproxy-go/internal/transport"
	internalTypes "github.com/eshaffer321/qbproxy-go/internal/types"
)

// emptyBody stands in for an empty success body
const emptyBody = " "

// normalize classifies a transport outcome into a response or an error
func (p *Proxy) normalize(n int64, req *Request, method string, outcome transport.Outcome) (*Response, *Error) {
	raw := outcome.Response
	if outcome.Err != nil {
		if !errors.Is(outcome.Err, ErrEmptyResponse) {
			apiErr := newTransportError(outcome.Err)
			p.logFailure(n, 0, apiErr.Message)
			return nil, apiErr
		}
		// The server answered without a response: treat it as an empty success
		raw = &transport.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(emptyBody)}
	}

	if method == http.MethodGet || method == http.MethodPost {
		p.recordExpiration(raw.Header)
	}

	resp := &Response{StatusCode: raw.StatusCode, Header: raw.Header}
	success := internalTypes.SuccessStatuses[raw.StatusCode]

	if success && len(bytes.TrimSpace(raw.Body)) == 0 {
		p.logSuccess(n, "empty body")
		if req.DataType == DataTypeText {
			resp.Body = raw.Body
			resp.Data = string(raw.Body)
			return resp, nil
		}
		// nothing to decode
		resp.Body = []byte(emptyBody)
		resp.Data = emptyBody
		return resp, nil
	}

	if !success {
		var decoded interface{}
		_ = json.Unmarshal(raw.Body, &decoded)
		apiErr := newHTTPError(raw.StatusCode, raw.Body, decoded)
		p.logFailure(n, raw.StatusCode, apiErr.Message)
		return nil, apiErr
	}

	resp.Body = raw.Body
	if req.DataType == DataTypeText {
		resp.Data = string(raw.Body)
		p.logSuccess(n, resp.Data)
		return resp, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(raw.Body, &decoded); err != nil {
		apiErr := newParseError(raw.StatusCode, raw.Body, err)
		p.logFailure(n, raw.StatusCode, apiErr.Message)
		return nil, apiErr
	}

	if p.options.AddISOTime {
		decoded = injectISOTimes(decoded)
		if body, err := json.Marshal(decoded); err == nil {
			resp.Body = body
		}
	}
	resp.Data = decoded

	p.logSuccess(n, decoded)
	return resp, nil
}

// recordExpiration stores the session expiration reported by a response.
// Without the header the session has no explicit expiration and the current
// time is stamped.
func (p *Proxy) recordExpiration(header http.Header) {
	values := header.Values(internalTypes.HeaderTokenExpiresAt)
	if len(values) == 0 {
		p.session.updateExpiration(p.now(), "", false)
	} else {
		p.session.updateExpiration(parseExpiration(values[0]), values[0], true)
	}

	if p.options.Logger != nil {
		p.options.Logger.Debug("session expiration updated", "proxy", p.id, "has_header", len(values) > 0)
	}
}

func (p *Proxy) logSuccess(n int64, body interface{}) {
	if p.options.Logger != nil {
		p.options.Logger.Debug("response", "proxy", p.id, "n", n, "body", body)
	}
}

func (p *Proxy) logFailure(n int64, status int, message string) {
	if p.options.Logger != nil {
		p.options.Logger.Debug("response error", "proxy", p.id, "n", n, "status", status, "message", message)
	}
}
