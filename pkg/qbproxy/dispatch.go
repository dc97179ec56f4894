package qbproxy

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/eshaffer321/qbproxy-go/internal/encoding"
	"github.com/eshaffer321/qbproxy-go/internal/transport"
	internalTypes "github.com/eshaffer321/qbproxy-go/internal/types"
)

// dispatchState is owned by a single proxy.
//
// bootstrapInFlight is true while an account settings call is outstanding;
// no other request reaches the transport then. draining is true while the
// queue is being replayed; new requests queue behind the replayed ones.
type dispatchState struct {
	mu                sync.Mutex
	bootstrapInFlight bool
	draining          bool
	queue             requestQueue
	requestCount      int64
}

// call is one caller request across all of its attempts
type call struct {
	req      *Request
	callback Callback

	// renewals counts retries after session renewal
	renewals int

	// noRenewal delivers expired-session failures without consulting the
	// handler. Session creation uses it so renewal cannot recurse.
	noRenewal bool
}

type result struct {
	resp *Response
	err  error
}

// Dispatch sends req and reports the outcome to callback exactly once, on
// another goroutine. While the account settings call is in flight the
// request is queued and sent, in arrival order, once that call finishes.
func (p *Proxy) Dispatch(ctx context.Context, req *Request, callback Callback) {
	if callback == nil {
		callback = func(*Response, error) {}
	}
	p.dispatch(ctx, &call{req: req, callback: callback}, false)
}

// Do sends req and waits for the outcome
func (p *Proxy) Do(ctx context.Context, req *Request) (*Response, error) {
	return p.do(ctx, &call{req: req})
}

func (p *Proxy) do(ctx context.Context, c *call) (*Response, error) {
	done := make(chan result, 1)
	c.callback = func(resp *Response, err error) {
		done <- result{resp: resp, err: err}
	}
	p.dispatch(ctx, c, false)

	select {
	case res := <-done:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Proxy) dispatch(ctx context.Context, c *call, replay bool) {
	s := p.state

	s.mu.Lock()
	s.requestCount++
	n := s.requestCount
	p.logRequest(n, c.req)

	if s.bootstrapInFlight || (s.draining && !replay) {
		entry := queueEntry{ctx: ctx, call: c}
		if replay {
			s.queue.pushFront(entry)
		} else {
			s.queue.push(entry)
		}
		s.mu.Unlock()
		if p.options.Logger != nil {
			p.options.Logger.Debug("request queued", "n", n, "url", c.req.URL)
		}
		return
	}

	wire, bootstrap, err := p.buildRequest(c.req)
	if err != nil {
		s.mu.Unlock()
		go p.deliver(ctx, c, nil, newEncodingError(err))
		return
	}
	if bootstrap {
		s.bootstrapInFlight = true
	}

	// Send does not block; calling it under the lock fixes the issue order
	pending := p.transport.Send(ctx, wire)
	s.mu.Unlock()

	go p.settle(ctx, n, c, wire.Method, bootstrap, pending)
}

// buildRequest encodes the payload and attaches headers. bootstrap reports
// whether req is the account settings call.
func (p *Proxy) buildRequest(req *Request) (*transport.Request, bool, error) {
	method := req.method()
	wire := &transport.Request{
		Method:  method,
		URL:     req.URL,
		Header:  http.Header{},
		Timeout: p.options.Timeout,
	}

	var multipartType string
	if req.Data != nil {
		body, err := encoding.Encode(req.Data, encodeOptions(req))
		if err != nil {
			return nil, false, err
		}
		if encoding.IsQueryMethod(method) {
			wire.URL += "?" + string(body.Data)
		} else {
			wire.Body = body.Data
		}
		multipartType = body.ContentType
	}

	switch {
	case !req.Multipart && req.ContentType != "":
		wire.Header.Set(internalTypes.HeaderContentType, req.ContentType)
	case !req.Multipart:
		wire.Header.Set(internalTypes.HeaderContentType, internalTypes.DefaultContentType)
	case multipartType != "":
		// the multipart boundary, as a form data body would set it
		wire.Header.Set(internalTypes.HeaderContentType, multipartType)
	}

	if strings.Contains(req.URL, p.options.StorageHost) {
		return wire, false, nil
	}

	wire.Header.Set(internalTypes.HeaderOS, clientOS())
	wire.Header.Set(internalTypes.HeaderSDK, p.sdkHeader())
	if token := p.session.token(); token != "" {
		wire.Header.Set(internalTypes.HeaderToken, token)
	}

	bootstrap := strings.Contains(req.URL, p.options.Endpoints.Account)
	if bootstrap {
		wire.Header.Set(internalTypes.HeaderAccountKey, p.options.Credentials.AccountKey)
	}

	return wire, bootstrap, nil
}

func encodeOptions(req *Request) encoding.Options {
	opts := encoding.Options{FileToCustomObject: req.FileToCustomObject}
	switch {
	case req.Multipart:
		opts.Mode = encoding.ModeMultipart
	case req.NeedStringify:
		opts.Mode = encoding.ModeJSON
	default:
		opts.Mode = encoding.ModeURLEncoded
	}
	return opts
}

// settle waits for the transport, hands the outcome on and, for the
// bootstrap call, releases the queue
func (p *Proxy) settle(ctx context.Context, n int64, c *call, method string, bootstrap bool, pending <-chan transport.Outcome) {
	outcome := <-pending

	resp, apiErr := p.normalize(n, c.req, method, outcome)
	if apiErr != nil && !c.noRenewal && p.renewal.applies(apiErr) {
		go p.renewal.renew(ctx, c, apiErr)
	} else if apiErr != nil {
		p.deliver(ctx, c, nil, apiErr)
	} else {
		p.deliver(ctx, c, resp, nil)
	}

	if bootstrap {
		p.finishBootstrap()
	}
}

// deliver reports the final outcome to the caller
func (p *Proxy) deliver(ctx context.Context, c *call, resp *Response, apiErr *Error) {
	if apiErr != nil {
		p.captureError(ctx, c.req, apiErr)
		c.callback(nil, apiErr)
		return
	}
	c.callback(resp, nil)
}

// retryWithSession installs session and sends the call again
func (p *Proxy) retryWithSession(ctx context.Context, c *call, session *Session) {
	p.SetSession(session)
	c.renewals++
	p.dispatch(ctx, c, false)
}

// finishBootstrap clears the bootstrap gate and replays queued requests in
// order. Requests that arrive meanwhile are appended and replayed by the
// same loop. If a replayed request is itself a bootstrap call, the rest of
// the queue waits for it.
func (p *Proxy) finishBootstrap() {
	s := p.state

	s.mu.Lock()
	s.bootstrapInFlight = false
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if s.bootstrapInFlight || s.queue.len() == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		entry, _ := s.queue.pop()
		s.mu.Unlock()

		p.dispatch(entry.ctx, entry.call, true)
	}
}

// logRequest logs an outgoing request with file payloads redacted
func (p *Proxy) logRequest(n int64, req *Request) {
	if p.options.Logger == nil {
		return
	}

	var data interface{}
	if req.Data != nil {
		if _, ok := req.Data["file"]; ok {
			redacted := make(map[string]interface{}, len(req.Data))
			for k, v := range req.Data {
				redacted[k] = v
			}
			redacted["file"] = "..."
			data = redacted
		} else {
			data = req.Data
		}
	}

	p.options.Logger.Debug("request", "proxy", p.id, "n", n, "method", req.method(), "url", req.URL, "data", data)
}
