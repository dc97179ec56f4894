// Package encoding turns request payloads into wire bodies.
package encoding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/eshaffer321/qbproxy-go/internal/types"
	"github.com/pkg/errors"
)

// Mode selects how a payload is encoded
type Mode int

const (
	// ModeURLEncoded emits sorted key=value pairs with bracket notation
	ModeURLEncoded Mode = iota
	// ModeJSON emits the JSON serialization of the payload
	ModeJSON
	// ModeMultipart emits a multipart/form-data body
	ModeMultipart
)

// File is a file-like payload value
type File struct {
	Name        string
	Data        []byte
	ContentType string
}

// Body is an encoded payload
type Body struct {
	Data []byte

	// ContentType is only set for multipart bodies, where it carries the boundary
	ContentType string
}

// Options describes how a payload should be encoded
type Options struct {
	Mode Mode

	// FileToCustomObject sends a File under the "file" key with its own name
	FileToCustomObject bool
}

// Encode encodes data according to opts
func Encode(data map[string]interface{}, opts Options) (*Body, error) {
	switch opts.Mode {
	case ModeMultipart:
		return encodeMultipart(data, opts.FileToCustomObject)
	case ModeJSON:
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrap(types.ErrEncoding, err.Error())
		}
		return &Body{Data: raw}, nil
	default:
		encoded, err := URLEncode(data)
		if err != nil {
			return nil, err
		}
		return &Body{Data: []byte(encoded)}, nil
	}
}

// IsQueryMethod reports whether the encoded body travels in the query string
func IsQueryMethod(method string) bool {
	return method == "" || method == http.MethodGet || method == http.MethodHead
}

// Pair is a single flattened name/value pair
type Pair struct {
	Name  string
	Value string
}

// URLEncode flattens data into bracket notation, escapes every name and
// value, sorts the pairs and joins them with '&'. The result is stable for
// equal input, which request signatures depend on.
func URLEncode(data map[string]interface{}) (string, error) {
	pairs, err := flatten(data)
	if err != nil {
		return "", err
	}

	encoded := make([]string, len(pairs))
	for i, p := range pairs {
		encoded[i] = EscapeComponent(p.Name) + "=" + EscapeComponent(p.Value)
	}
	sort.Strings(encoded)

	return strings.Join(encoded, "&"), nil
}

// Pairs returns the flattened, unescaped pairs sorted by name then value
func Pairs(data map[string]interface{}) ([]Pair, error) {
	pairs, err := flatten(data)
	if err != nil {
		return nil, err
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Name != pairs[j].Name {
			return pairs[i].Name < pairs[j].Name
		}
		return pairs[i].Value < pairs[j].Value
	})
	return pairs, nil
}

func flatten(data map[string]interface{}) ([]Pair, error) {
	var pairs []Pair
	for k, v := range data {
		var err error
		pairs, err = appendValue(pairs, k, reflect.ValueOf(v))
		if err != nil {
			return nil, err
		}
	}
	return pairs, nil
}

func appendValue(pairs []Pair, name string, v reflect.Value) ([]Pair, error) {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return append(pairs, Pair{Name: name, Value: "null"}), nil
		}
		v = v.Elem()
	}

	if !v.IsValid() {
		return append(pairs, Pair{Name: name, Value: "null"}), nil
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, errors.Wrapf(types.ErrEncoding, "unsupported map key type %s for %q", v.Type().Key(), name)
		}
		iter := v.MapRange()
		for iter.Next() {
			var err error
			pairs, err = appendValue(pairs, name+"["+iter.Key().String()+"]", iter.Value())
			if err != nil {
				return nil, err
			}
		}
		return pairs, nil
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return append(pairs, Pair{Name: name, Value: string(v.Bytes())}), nil
		}
		for i := 0; i < v.Len(); i++ {
			var err error
			pairs, err = appendValue(pairs, name+"[]", v.Index(i))
			if err != nil {
				return nil, err
			}
		}
		return pairs, nil
	case reflect.Struct, reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, errors.Wrapf(types.ErrEncoding, "unsupported value of type %s for %q", v.Type(), name)
	}

	return append(pairs, Pair{Name: name, Value: scalarString(v)}), nil
}

// scalarString formats a scalar the way the remote API expects: integers
// and floats in their shortest decimal form, booleans as true/false.
func scalarString(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	}
	return fmt.Sprint(v.Interface())
}

// EscapeComponent percent-encodes s leaving only A-Z a-z 0-9 and -_.!~*'()
// unescaped. Reserved characters such as #$&+,/:;=?@[] are always escaped.
func EscapeComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

func encodeMultipart(data map[string]interface{}, fileToCustomObject bool) (*Body, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := writePart(w, key, data[key], fileToCustomObject); err != nil {
			return nil, errors.Wrapf(types.ErrEncoding, "multipart field %q: %v", key, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close multipart writer")
	}

	return &Body{Data: buf.Bytes(), ContentType: w.FormDataContentType()}, nil
}

func writePart(w *multipart.Writer, key string, value interface{}, fileToCustomObject bool) error {
	switch v := value.(type) {
	case File:
		return writeFile(w, key, &v, fileToCustomObject)
	case *File:
		return writeFile(w, key, v, fileToCustomObject)
	case []byte:
		return writeBlob(w, key, "blob", bytes.NewReader(v))
	case io.Reader:
		return writeBlob(w, key, "blob", v)
	case nil:
		return w.WriteField(key, "null")
	default:
		pairs, err := appendValue(nil, key, reflect.ValueOf(v))
		if err != nil {
			return err
		}
		if len(pairs) == 1 && pairs[0].Name == key {
			return w.WriteField(key, pairs[0].Value)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return w.WriteField(key, string(raw))
	}
}

func writeFile(w *multipart.Writer, key string, f *File, fileToCustomObject bool) error {
	if f == nil {
		return w.WriteField(key, "null")
	}
	name := "blob"
	if fileToCustomObject && key == "file" && f.Name != "" {
		name = f.Name
	}
	return writeBlob(w, key, name, bytes.NewReader(f.Data))
}

func writeBlob(w *multipart.Writer, key, filename string, r io.Reader) error {
	part, err := w.CreateFormFile(key, filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, r)
	return err
}
