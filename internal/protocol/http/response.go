package http

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// BodyKind identifies the body source of a ResponseDescriptor.
type BodyKind int

const (
	// BodyNone means the response carries headers only.
	BodyNone BodyKind = iota

	// BodyBytes means the body is a fixed in-memory buffer written as
	// one block.
	BodyBytes

	// BodyStream means the body comes from a sized streaming source
	// transmitted by the chunked streaming pump.
	BodyStream
)

// ResponseDescriptor is a response about to be transmitted: status code,
// ordered headers, and exactly one body source. It is built fresh per
// request and consumed immediately by the transmission step.
type ResponseDescriptor struct {
	Status int

	fields []headerField

	kind   BodyKind
	data   []byte
	stream io.ReadCloser
	length int64
}

// NewResponse builds a headers-only response with Content-Length: 0.
// Every error response in the engine takes this shape.
func NewResponse(status int) *ResponseDescriptor {
	r := &ResponseDescriptor{Status: status}
	r.SetHeader("Content-Length", "0")
	return r
}

// NewBytesResponse builds a response whose body is the given buffer.
func NewBytesResponse(status int, body []byte) *ResponseDescriptor {
	r := &ResponseDescriptor{Status: status, kind: BodyBytes, data: body, length: int64(len(body))}
	r.SetHeader("Content-Length", strconv.FormatInt(r.length, 10))
	return r
}

// NewStreamResponse builds a response streamed from src. The declared
// length sets Content-Length; the pump still detects end-of-stream by a
// zero-length read, so an approximate length does not hang the connection.
func NewStreamResponse(status int, src io.ReadCloser, length int64) *ResponseDescriptor {
	r := &ResponseDescriptor{Status: status, kind: BodyStream, stream: src, length: length}
	r.SetHeader("Content-Length", strconv.FormatInt(length, 10))
	return r
}

// SetHeader sets a header field, replacing an existing field with the same
// name (case-insensitive) while keeping its position.
func (r *ResponseDescriptor) SetHeader(name, value string) {
	for i, f := range r.fields {
		if strings.EqualFold(f.name, name) {
			r.fields[i].value = value
			return
		}
	}
	r.fields = append(r.fields, headerField{name: name, value: value})
}

// Header returns the value of the named header field.
func (r *ResponseDescriptor) Header(name string) (string, bool) {
	for _, f := range r.fields {
		if strings.EqualFold(f.name, name) {
			return f.value, true
		}
	}
	return "", false
}

// Kind returns the body source kind.
func (r *ResponseDescriptor) Kind() BodyKind {
	return r.kind
}

// Data returns the fixed body buffer for BodyBytes responses.
func (r *ResponseDescriptor) Data() []byte {
	return r.data
}

// Stream returns the streaming source for BodyStream responses. The
// transmission step owns closing it.
func (r *ResponseDescriptor) Stream() io.ReadCloser {
	return r.stream
}

// ContentLength returns the declared body length.
func (r *ResponseDescriptor) ContentLength() int64 {
	return r.length
}

// WithoutBody strips the body source, keeping status and headers intact.
// Used for HEAD replies, which must carry the same headers as the
// corresponding GET.
func (r *ResponseDescriptor) WithoutBody() *ResponseDescriptor {
	if r.stream != nil {
		_ = r.stream.Close()
	}
	stripped := &ResponseDescriptor{Status: r.Status, fields: r.fields, length: r.length}
	return stripped
}

// MarshalHeader serializes the status line and header block, including the
// terminating empty line.
func (r *ResponseDescriptor) MarshalHeader() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s\r\n", Version11, r.Status, StatusText(r.Status))
	for _, f := range r.fields {
		fmt.Fprintf(&b, "%s: %s\r\n", f.name, f.value)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
