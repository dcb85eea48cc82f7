package http

// Version11 is the only protocol version the engine serves.
const Version11 = "HTTP/1.1"

// Methods understood by the reply pipeline. Anything else takes
// the 405 path.
const (
	MethodGet  = "GET"
	MethodHead = "HEAD"
)

// Status codes produced by the engine.
const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusUnauthorized        = 401
	StatusNotFound            = 404
	StatusMethodNotAllowed    = 405
	StatusVersionNotSupported = 505
)

// MaxHeaderBytes bounds the accumulated request header block. A header
// that grows past this limit is treated as malformed.
const MaxHeaderBytes = 64 * 1024

// statusText maps status codes to their reason phrases.
var statusText = map[int]string{
	StatusOK:                  "OK",
	StatusBadRequest:          "Bad Request",
	StatusUnauthorized:        "Unauthorized",
	StatusNotFound:            "Not Found",
	StatusMethodNotAllowed:    "Method Not Allowed",
	StatusVersionNotSupported: "HTTP Version Not Supported",
}

// StatusText returns the reason phrase for a status code, or "Unknown"
// for codes the engine never produces.
func StatusText(code int) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return "Unknown"
}
