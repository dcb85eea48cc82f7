// Package http implements HTTP/1.1 message framing for the dhttpd engine:
// request accumulation and parsing, and response descriptors with header
// serialization.
//
// Only the Authorization header is interpreted semantically by the engine;
// everything else is carried as opaque name/value pairs.
package http

import (
	"fmt"
	"strings"
)

// headerField is a single name/value pair. Fields keep their arrival order;
// lookups are case-insensitive with last-value-wins on duplicate names.
type headerField struct {
	name  string
	value string
}

// Request accumulates header lines until the empty line that terminates the
// header block, then exposes the parsed request line and header fields.
//
// A Request is mutable only during accumulation. Once Complete() reports
// true the parsed view is fixed; the connection discards it and starts a
// fresh Request after each response cycle.
type Request struct {
	// rawLen tracks total accumulated header bytes for the size limit
	rawLen int

	// lineCount distinguishes the request line from header lines
	lineCount int

	method  string
	target  string
	version string

	fields   []headerField
	complete bool
}

// NewRequest returns an empty Request ready for accumulation.
func NewRequest() *Request {
	return &Request{}
}

// AppendLine feeds one header line (without its CRLF terminator) into the
// request. It returns true once the empty terminator line has been seen and
// the header block is complete.
//
// Returns ErrMalformedRequest if the request line or a header line fails
// the message grammar, and ErrHeaderTooLarge if the accumulated block
// exceeds MaxHeaderBytes. Any error is terminal for the request.
func (r *Request) AppendLine(line string) (bool, error) {
	if r.complete {
		return true, fmt.Errorf("append to completed request: %w", ErrMalformedRequest)
	}

	r.rawLen += len(line) + 2
	if r.rawLen > MaxHeaderBytes {
		return false, ErrHeaderTooLarge
	}

	// Empty line terminates the header block
	if line == "" {
		if r.lineCount == 0 {
			// Bare CRLF before any request line
			return false, ErrMalformedRequest
		}
		r.complete = true
		return true, nil
	}

	r.lineCount++

	if r.lineCount == 1 {
		return false, r.parseRequestLine(line)
	}
	return false, r.parseHeaderLine(line)
}

// parseRequestLine splits "METHOD target HTTP/x.y" into its three parts.
func (r *Request) parseRequestLine(line string) error {
	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return fmt.Errorf("request line %q: %w", line, ErrMalformedRequest)
	}

	r.method = parts[0]
	r.target = parts[1]
	r.version = parts[2]
	return nil
}

// parseHeaderLine splits "Name: value" with optional whitespace after the
// colon. The name must be non-empty and colon-separated.
func (r *Request) parseHeaderLine(line string) error {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return fmt.Errorf("header line %q: %w", line, ErrMalformedRequest)
	}

	name := line[:colon]
	if strings.ContainsAny(name, " \t") {
		return fmt.Errorf("header name %q: %w", name, ErrMalformedRequest)
	}

	value := strings.TrimSpace(line[colon+1:])
	r.fields = append(r.fields, headerField{name: name, value: value})
	return nil
}

// Started reports whether any line of this request has arrived. A
// connection whose current request has not started is idle.
func (r *Request) Started() bool {
	return r.lineCount > 0
}

// Complete reports whether the terminating empty line has been seen.
func (r *Request) Complete() bool {
	return r.complete
}

// Method returns the request method verbatim (methods are case-sensitive).
func (r *Request) Method() string {
	return r.method
}

// Target returns the request target URI exactly as sent.
func (r *Request) Target() string {
	return r.target
}

// Version returns the HTTP version token from the request line.
func (r *Request) Version() string {
	return r.version
}

// Header returns the value of the named header field. Names compare
// case-insensitively; when a name appears more than once the last value
// wins.
func (r *Request) Header(name string) (string, bool) {
	value := ""
	found := false
	for _, f := range r.fields {
		if strings.EqualFold(f.name, name) {
			value = f.value
			found = true
		}
	}
	return value, found
}

// HeaderCount returns the number of header fields received.
func (r *Request) HeaderCount() int {
	return len(r.fields)
}
