package qbproxy

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/eshaffer321/qbproxy-go/internal/encoding"
	"github.com/pkg/errors"
)

// DataType selects how a response body is read
type DataType string

const (
	DataTypeJSON DataType = "json"
	DataTypeText DataType = "text"
)

// Session is the authenticated API session
type Session struct {
	Token         string `json:"token"`
	ApplicationID int    `json:"application_id,omitempty"`
	UserID        int    `json:"user_id,omitempty"`

	// ExpirationDate is taken from the qb-token-expirationdate response
	// header, or stamped with the response time when the header is absent
	ExpirationDate time.Time `json:"expiration_date"`

	// ExpirationHeader is the raw header value
	ExpirationHeader string `json:"expiration_header,omitempty"`

	HasExpirationHeader bool `json:"has_expiration_header"`
}

// Request describes one API call. It is not modified by the proxy and is
// reused as-is when a call is retried after session renewal.
type Request struct {
	URL string

	// Method defaults to GET
	Method string

	Data map[string]interface{}

	// ContentType defaults to application/x-www-form-urlencoded
	ContentType string

	// Multipart sends Data as multipart/form-data
	Multipart bool

	// DataType defaults to DataTypeJSON
	DataType DataType

	// NeedStringify sends Data as its JSON serialization
	NeedStringify bool

	// FileToCustomObject sends the File under the "file" key with its own name
	FileToCustomObject bool
}

// File is a file-like payload value for multipart requests
type File = encoding.File

// method returns the request method with the default applied
func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Response is a successful API response
type Response struct {
	StatusCode int
	Header     http.Header

	// Body is the raw body. An empty success body is reported as a single space.
	Body []byte

	// Data is the decoded JSON value, or the body string for DataTypeText
	Data interface{}
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

// Text returns the body as a string
func (r *Response) Text() string {
	return string(r.Body)
}

// Callback receives the outcome of a dispatched request. Exactly one of
// resp and err is non-nil.
type Callback func(resp *Response, err error)
