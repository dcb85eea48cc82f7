package http

import "errors"

// These errors provide a consistent way for the connection state machine to
// map parsing failures to response paths. The connection checks for them
// with errors.Is and translates them to status codes.
//
// Usage pattern:
//
//	complete, err := req.AppendLine(line)
//	if err != nil {
//	    // Any parse error takes the 400 path and closes the connection
//	}

var (
	// ErrMalformedRequest indicates the header bytes failed HTTP/1.1
	// message framing (bad request line, bad header line).
	ErrMalformedRequest = errors.New("malformed request")

	// ErrHeaderTooLarge indicates the accumulated header block exceeded
	// MaxHeaderBytes. Treated as a framing failure.
	ErrHeaderTooLarge = errors.New("request header too large")
)
