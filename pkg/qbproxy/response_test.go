package qbproxy

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatchAndSettle(t *testing.T, proxy *Proxy, ft *fakeTransport, req *Request, settle func(*sentRequest)) result {
	t.Helper()
	rec := newRecorder()
	before := ft.count()
	proxy.Dispatch(context.Background(), req, rec.callback())
	settle(ft.waitSent(t, before+1))
	return rec.wait(t)
}

func TestNormalize_EmptyResponseFallback(t *testing.T) {
	proxy, ft := newTestProxy(nil)

	res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users/1.json", Method: "DELETE"},
		func(s *sentRequest) { s.fail(ErrEmptyResponse) })

	require.NoError(t, res.err)
	assert.Equal(t, 200, res.resp.StatusCode)
	assert.Equal(t, " ", res.resp.Text())
	assert.Equal(t, " ", res.resp.Data)
}

func TestNormalize_EmptySuccessBody(t *testing.T) {
	proxy, ft := newTestProxy(nil)

	res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users/1.json", Method: "PUT"},
		func(s *sentRequest) { s.respond(202, "") })

	require.NoError(t, res.err)
	assert.Equal(t, 202, res.resp.StatusCode)
	assert.Equal(t, " ", res.resp.Text())
}

func TestNormalize_EmptyTextBodyPassesThrough(t *testing.T) {
	logger := &memLogger{}
	proxy, ft := newTestProxy(&Options{Logger: logger})

	res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/ping", DataType: DataTypeText},
		func(s *sentRequest) { s.respond(200, "") })

	require.NoError(t, res.err)
	assert.Equal(t, 200, res.resp.StatusCode)
	assert.Equal(t, "", res.resp.Text())
	assert.Equal(t, "", res.resp.Data)
	assert.Contains(t, logger.all(), "DEBUG response [proxy "+proxy.ID()+" n 1 body empty body]")
}

func TestNormalize_EmptyResponseFallbackText(t *testing.T) {
	proxy, ft := newTestProxy(nil)

	res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/ping", DataType: DataTypeText},
		func(s *sentRequest) { s.fail(ErrEmptyResponse) })

	require.NoError(t, res.err)
	assert.Equal(t, 200, res.resp.StatusCode)
	assert.Equal(t, " ", res.resp.Text())
}

func TestNormalize_TextDataType(t *testing.T) {
	proxy, ft := newTestProxy(nil)

	res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/ping", DataType: DataTypeText},
		func(s *sentRequest) { s.respond(200, "pong") })

	require.NoError(t, res.err)
	assert.Equal(t, "pong", res.resp.Data)
	assert.Equal(t, "pong", res.resp.Text())
}

func TestNormalize_ParseFailure(t *testing.T) {
	proxy, ft := newTestProxy(nil)

	res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users.json"},
		func(s *sentRequest) { s.respond(200, "<html>") })

	assert.Nil(t, res.resp)
	assert.ErrorIs(t, res.err, ErrParseFailure)
	var apiErr *Error
	require.ErrorAs(t, res.err, &apiErr)
	assert.Equal(t, 200, apiErr.Code)
	assert.Equal(t, "<html>", apiErr.Message)
}

func TestNormalize_HTTPErrorShape(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		body           string
		expectedDetail interface{}
	}{
		{
			name:           "errors object",
			status:         422,
			body:           `{"errors":{"login":["has already been taken"]}}`,
			expectedDetail: map[string]interface{}{"login": []interface{}{"has already been taken"}},
		},
		{
			name:           "errors array",
			status:         404,
			body:           `{"errors":["Not found"]}`,
			expectedDetail: []interface{}{"Not found"},
		},
		{
			name:           "non JSON body",
			status:         502,
			body:           `<html>Bad Gateway</html>`,
			expectedDetail: nil,
		},
		{
			name:           "empty body",
			status:         403,
			body:           ``,
			expectedDetail: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxy, ft := newTestProxy(nil)

			res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users.json"},
				func(s *sentRequest) { s.respond(tt.status, tt.body) })

			assert.Nil(t, res.resp)
			var apiErr *Error
			require.ErrorAs(t, res.err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Code)
			assert.Equal(t, "error", apiErr.Status)
			assert.Equal(t, tt.body, apiErr.Message)
			assert.Equal(t, tt.expectedDetail, apiErr.Detail)
		})
	}
}

func TestNormalize_TransportError(t *testing.T) {
	proxy, ft := newTestProxy(nil)
	cause := errors.New("dial tcp: connection refused")

	res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users.json"},
		func(s *sentRequest) { s.fail(cause) })

	var apiErr *Error
	require.ErrorAs(t, res.err, &apiErr)
	assert.Equal(t, 0, apiErr.Code)
	assert.Equal(t, "dial tcp: connection refused", apiErr.Message)
	assert.ErrorIs(t, res.err, ErrTransport)
	assert.ErrorIs(t, res.err, cause)
	assert.True(t, IsRetryable(res.err))
}

func TestNormalize_ExpirationHeader(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("header present on GET", func(t *testing.T) {
		proxy, ft := newTestProxy(&Options{Session: &Session{Token: "t"}})
		header := http.Header{}
		header.Set("qb-token-expirationdate", "2024-05-01T14:00:00Z")

		res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users.json"},
			func(s *sentRequest) { s.respondWithHeader(200, `{}`, header) })
		require.NoError(t, res.err)

		session := proxy.Session()
		require.NotNil(t, session)
		assert.Equal(t, "t", session.Token)
		assert.True(t, session.HasExpirationHeader)
		assert.Equal(t, "2024-05-01T14:00:00Z", session.ExpirationHeader)
		assert.True(t, session.ExpirationDate.Equal(time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)))
	})

	t.Run("header absent on POST stamps now", func(t *testing.T) {
		proxy, ft := newTestProxy(&Options{Session: &Session{Token: "t"}})
		proxy.now = func() time.Time { return fixed }

		res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users.json", Method: "POST"},
			func(s *sentRequest) { s.respond(201, `{}`) })
		require.NoError(t, res.err)

		session := proxy.Session()
		assert.False(t, session.HasExpirationHeader)
		assert.Equal(t, fixed, session.ExpirationDate)
	})

	t.Run("error responses are read too", func(t *testing.T) {
		proxy, ft := newTestProxy(&Options{Session: &Session{Token: "t"}})
		header := http.Header{}
		header.Set("qb-token-expirationdate", "2024-05-01T14:00:00Z")

		res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users.json"},
			func(s *sentRequest) { s.respondWithHeader(404, `{"errors":["x"]}`, header) })
		require.Error(t, res.err)

		assert.True(t, proxy.Session().HasExpirationHeader)
	})

	t.Run("empty response fallback stamps now", func(t *testing.T) {
		proxy, ft := newTestProxy(&Options{Session: &Session{Token: "t"}})
		proxy.now = func() time.Time { return fixed }

		res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users.json", Method: "POST"},
			func(s *sentRequest) { s.fail(ErrEmptyResponse) })
		require.NoError(t, res.err)

		assert.Equal(t, fixed, proxy.Session().ExpirationDate)
	})

	t.Run("no session is created", func(t *testing.T) {
		proxy, ft := newTestProxy(nil)
		header := http.Header{}
		header.Set("qb-token-expirationdate", "2024-05-01T14:00:00Z")

		res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users.json"},
			func(s *sentRequest) { s.respondWithHeader(200, `{}`, header) })
		require.NoError(t, res.err)

		assert.Nil(t, proxy.Session())
		exp := proxy.session.lastExpiration()
		require.NotNil(t, exp)
		assert.True(t, exp.hasHeader)
		assert.Equal(t, "2024-05-01T14:00:00Z", exp.raw)
	})

	t.Run("cleared session stays cleared", func(t *testing.T) {
		proxy, ft := newTestProxy(&Options{Session: &Session{Token: "t"}})
		proxy.SetSession(nil)

		res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users.json", Method: "POST"},
			func(s *sentRequest) { s.respond(201, `{}`) })
		require.NoError(t, res.err)

		assert.Nil(t, proxy.Session())
	})

	t.Run("other methods leave the session alone", func(t *testing.T) {
		proxy, ft := newTestProxy(&Options{Session: &Session{Token: "t"}})
		header := http.Header{}
		header.Set("qb-token-expirationdate", "2024-05-01T14:00:00Z")

		res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users/1.json", Method: "PUT"},
			func(s *sentRequest) { s.respondWithHeader(200, `{}`, header) })
		require.NoError(t, res.err)

		session := proxy.Session()
		assert.False(t, session.HasExpirationHeader)
		assert.True(t, session.ExpirationDate.IsZero())
	})
}

func TestNormalize_AddISOTime(t *testing.T) {
	proxy, ft := newTestProxy(&Options{AddISOTime: true})

	res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users.json"},
		func(s *sentRequest) { s.respond(200, `{"items":[{"id":1,"created_at":1700000000,"updated_at":1700000060}]}`) })
	require.NoError(t, res.err)

	var out struct {
		Items []struct {
			ISOCreatedAt string `json:"iso_created_at"`
			ISOUpdatedAt string `json:"iso_updated_at"`
		} `json:"items"`
	}
	require.NoError(t, res.resp.Decode(&out))
	require.Len(t, out.Items, 1)
	assert.Equal(t, "2023-11-14T22:13:20.000Z", out.Items[0].ISOCreatedAt)
	assert.Equal(t, "2023-11-14T22:14:20.000Z", out.Items[0].ISOUpdatedAt)
}

func TestInjectISOTimes(t *testing.T) {
	obj := injectISOTimes(map[string]interface{}{
		"created_at": float64(0),
		"updated_at": "not a number",
	}).(map[string]interface{})

	assert.Equal(t, "1970-01-01T00:00:00.000Z", obj["iso_created_at"])
	assert.NotContains(t, obj, "iso_updated_at")

	assert.Equal(t, "plain", injectISOTimes("plain"))
	assert.Equal(t, []interface{}{1.0}, injectISOTimes([]interface{}{1.0}))
}

func TestNormalize_LogsEmptyBodyPlaceholder(t *testing.T) {
	logger := &memLogger{}
	proxy, ft := newTestProxy(&Options{Logger: logger})

	res := dispatchAndSettle(t, proxy, ft, &Request{URL: "https://api.example.com/users/1.json", Method: "DELETE"},
		func(s *sentRequest) { s.respond(200, "") })
	require.NoError(t, res.err)

	found := false
	for _, line := range logger.all() {
		if line == "DEBUG response [proxy "+proxy.ID()+" n 1 body empty body]" {
			found = true
		}
	}
	assert.True(t, found, "expected an empty body placeholder in %v", logger.all())
}
