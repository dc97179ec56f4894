package qbproxy

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/eshaffer321/qbproxy-go/internal/transport"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// sentRequest is a request the fake transport received. The test settles it.
type sentRequest struct {
	req *transport.Request
	out chan transport.Outcome
}

func (s *sentRequest) respond(status int, body string) {
	s.respondWithHeader(status, body, http.Header{})
}

func (s *sentRequest) respondWithHeader(status int, body string, header http.Header) {
	s.out <- transport.Outcome{Response: &transport.Response{StatusCode: status, Header: header, Body: []byte(body)}}
}

func (s *sentRequest) fail(err error) {
	s.out <- transport.Outcome{Err: err}
}

// fakeTransport records requests in issue order. Requests are held until
// the test settles them, unless an auto responder answers them.
type fakeTransport struct {
	mu   sync.Mutex
	sent []*sentRequest
	auto func(req *transport.Request) (transport.Outcome, bool)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) Send(ctx context.Context, req *transport.Request) <-chan transport.Outcome {
	s := &sentRequest{req: req, out: make(chan transport.Outcome, 1)}

	f.mu.Lock()
	f.sent = append(f.sent, s)
	auto := f.auto
	f.mu.Unlock()

	if auto != nil {
		if outcome, ok := auto(req); ok {
			s.out <- outcome
		}
	}
	return s.out
}

func (f *fakeTransport) respondWith(fn func(req *transport.Request) (transport.Outcome, bool)) {
	f.mu.Lock()
	f.auto = fn
	f.mu.Unlock()
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) request(i int) *sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[i]
}

func (f *fakeTransport) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	urls := make([]string, len(f.sent))
	for i, s := range f.sent {
		urls[i] = s.req.URL
	}
	return urls
}

// waitSent waits until at least n requests were sent and returns the n-th
func (f *fakeTransport) waitSent(t *testing.T, n int) *sentRequest {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() >= n }, waitTimeout, time.Millisecond,
		"expected %d sent requests", n)
	return f.request(n - 1)
}

func reply(status int, body string) transport.Outcome {
	return transport.Outcome{Response: &transport.Response{StatusCode: status, Header: http.Header{}, Body: []byte(body)}}
}

func newTestProxy(opts *Options) (*Proxy, *fakeTransport) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Endpoints.API == "" {
		opts.Endpoints.API = "https://api.example.com"
	}
	if opts.Endpoints.Account == "" {
		opts.Endpoints.Account = "/account"
	}
	applyDefaults(opts)

	ft := newFakeTransport()
	return newProxy(opts, ft), ft
}

func (p *Proxy) bootstrapInFlight() bool {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	return p.state.bootstrapInFlight
}

func (p *Proxy) queued() int {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	return p.state.queue.len()
}

// recorder collects callback invocations
type recorder struct {
	ch chan result
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan result, 64)}
}

func (r *recorder) callback() Callback {
	return func(resp *Response, err error) {
		r.ch <- result{resp: resp, err: err}
	}
}

func (r *recorder) wait(t *testing.T) result {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(waitTimeout):
		t.Fatal("callback was not invoked")
		return result{}
	}
}

func (r *recorder) assertNotCalled(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case res := <-r.ch:
		t.Fatalf("unexpected callback: resp=%v err=%v", res.resp, res.err)
	case <-time.After(within):
	}
}

// mockHandler is a testify mock of SessionExpiredHandler
type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) SessionExpired(ctx context.Context, cause *Error) (*Session, error) {
	args := m.Called(ctx, cause)
	session, _ := args.Get(0).(*Session)
	return session, args.Error(1)
}

// memLogger records log messages
type memLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *memLogger) log(level, msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s %s %v", level, msg, kv))
}

func (l *memLogger) Debug(msg string, kv ...interface{}) { l.log("DEBUG", msg, kv...) }
func (l *memLogger) Info(msg string, kv ...interface{})  { l.log("INFO", msg, kv...) }
func (l *memLogger) Warn(msg string, kv ...interface{})  { l.log("WARN", msg, kv...) }
func (l *memLogger) Error(msg string, kv ...interface{}) { l.log("ERROR", msg, kv...) }

func (l *memLogger) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}
