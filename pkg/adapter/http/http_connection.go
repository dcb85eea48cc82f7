package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/marmos91/dhttpd/internal/logger"
	httpproto "github.com/marmos91/dhttpd/internal/protocol/http"
	"github.com/marmos91/dhttpd/internal/protocol/http/digest"
)

// connState enumerates the phases of the per-connection state machine.
// Transitions are driven by exactly two events - a header line arriving
// and a write completing - plus disconnection. There is no terminal state
// while the socket is open: the machine restarts after every completed
// exchange, which is what makes persistent connections work.
type connState int

const (
	stateAwaitingHeaderLine connState = iota
	stateHeaderComplete
	stateUnauthorized
	stateReplying
	stateWritingHeader
	stateStreamingBody
)

// errCloseConnection signals that the current exchange finished with a
// response that must be the last one on this connection (400, 505).
var errCloseConnection = errors.New("close connection after response")

// HTTPConnection is the per-socket protocol state machine.
//
// All state transitions happen inside the connection's serve goroutine, so
// no event for the same connection is ever processed concurrently and the
// fields need no locking. The connection owns its Request, its cached
// authentication nonce state, and whatever streaming source is in flight;
// teardown releases all of them.
type HTTPConnection struct {
	server *HTTPAdapter
	conn   net.Conn
	reader *bufio.Reader

	state connState
	req   *httpproto.Request

	// authState caches the adopted nonce and last accepted
	// nonce-count across requests on this connection
	authState digest.ConnState
}

func newHTTPConnection(server *HTTPAdapter, conn net.Conn) *HTTPConnection {
	return &HTTPConnection{
		server: server,
		conn:   conn,
		reader: bufio.NewReader(conn),
		state:  stateAwaitingHeaderLine,
		req:    httpproto.NewRequest(),
	}
}

// Serve drives the connection until the client disconnects, a fatal
// protocol or transport error occurs, or the server shuts down.
//
// Panic recovery keeps a single misbehaving connection from taking the
// server down. The deferred close is the single teardown point; the
// adapter's accept loop observes it and reports the death exactly once.
func (c *HTTPConnection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler from %s: %v",
				c.conn.RemoteAddr().String(), r)
		}
		_ = c.conn.Close()
	}()

	clientAddr := c.conn.RemoteAddr().String()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Connection from %s closed due to shutdown", clientAddr)
			return
		default:
		}

		line, err := c.readHeaderLine()
		if err != nil {
			if errors.Is(err, httpproto.ErrHeaderTooLarge) {
				logger.Debug("Oversized header from %s: %v", clientAddr, err)
				_ = c.transmit(httpproto.NewResponse(httpproto.StatusBadRequest), false)
				return
			}
			c.logReadError(clientAddr, err)
			return
		}

		if err := c.onHeaderLine(ctx, line); err != nil {
			if !errors.Is(err, errCloseConnection) {
				logger.Debug("Connection from %s: %v", clientAddr, err)
			}
			return
		}
	}
}

// readHeaderLine performs one line-delimited read. Header reads carry no
// protocol timeout; only the transport-level idle timeout applies, and
// only while the connection sits between requests, before any line of
// the next request has arrived.
func (c *HTTPConnection) readHeaderLine() (string, error) {
	if c.server.config.IdleTimeout > 0 && c.state == stateAwaitingHeaderLine && !c.req.Started() {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.server.config.IdleTimeout)); err != nil {
			return "", fmt.Errorf("set read deadline: %w", err)
		}
	} else {
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return "", fmt.Errorf("clear read deadline: %w", err)
		}
	}

	// ReadSlice rather than ReadString so an unterminated line cannot
	// grow an unbounded buffer; the accumulated length is checked against
	// the header size limit on every fill.
	var line []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > httpproto.MaxHeaderBytes {
			return "", httpproto.ErrHeaderTooLarge
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return "", err
	}

	s := strings.TrimSuffix(string(line), "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, nil
}

// onHeaderLine is the bytes-received event: it feeds the line to the
// accumulating request and, once the header block completes, runs the
// reply pipeline synchronously within the event.
func (c *HTTPConnection) onHeaderLine(ctx context.Context, line string) error {
	complete, err := c.req.AppendLine(line)
	if err != nil {
		// Framing failure: answer 400, then drop the connection
		logger.Debug("Malformed request from %s: %v", c.conn.RemoteAddr().String(), err)
		_ = c.transmit(httpproto.NewResponse(httpproto.StatusBadRequest), false)
		return errCloseConnection
	}

	if !complete {
		// Request the next header line
		return nil
	}

	c.state = stateHeaderComplete
	return c.executeExchange(ctx)
}

// executeExchange runs the reply pipeline for the completed request and
// resets the machine for the next one.
//
// Pipeline order, short-circuiting on the first applicable outcome:
// version check, method check, authentication, content resolution,
// transmission.
func (c *HTTPConnection) executeExchange(ctx context.Context) error {
	started := time.Now()
	method := c.req.Method()

	status, err := c.reply(ctx)

	c.server.metrics.RecordRequest(method, status, time.Since(started))

	if err != nil {
		return err
	}

	// Exchange complete: discard the request and await the next one
	c.req = httpproto.NewRequest()
	c.state = stateAwaitingHeaderLine
	return nil
}

// reply resolves the request to a response and transmits it. It returns
// the status code sent (for metrics) and a non-nil error when the
// connection must not serve another request.
func (c *HTTPConnection) reply(ctx context.Context) (int, error) {
	method := c.req.Method()
	target := c.req.Target()

	// 1. Version gate: anything but HTTP/1.1 is answered 505 and the
	// connection closes after the write.
	if c.req.Version() != httpproto.Version11 {
		logger.Debug("Unsupported version %q from %s", c.req.Version(), c.conn.RemoteAddr().String())
		resp := httpproto.NewResponse(httpproto.StatusVersionNotSupported)
		if err := c.transmit(resp, false); err != nil {
			return resp.Status, err
		}
		return resp.Status, errCloseConnection
	}

	// 2. Method gate: only GET and HEAD carry retrieval semantics.
	// The connection stays open.
	if method != httpproto.MethodGet && method != httpproto.MethodHead {
		logger.Debug("Method %q not allowed", method)
		resp := httpproto.NewResponse(httpproto.StatusMethodNotAllowed)
		return resp.Status, c.transmit(resp, false)
	}

	// 3. Authentication gate for protected URIs.
	if c.server.credentials.IsProtected(target) && !c.authenticate(ctx, method, target) {
		c.server.metrics.RecordAuthFailure()

		challenge, err := c.server.validator.Challenge(ctx)
		if err != nil {
			return 0, fmt.Errorf("build challenge: %w", err)
		}
		c.server.metrics.RecordNonceIssued()

		c.state = stateUnauthorized
		resp := httpproto.NewResponse(httpproto.StatusUnauthorized)
		resp.SetHeader("WWW-Authenticate", challenge)
		return resp.Status, c.transmit(resp, false)
	}

	c.state = stateReplying

	// 4. Content resolution: in-memory bytes first, then a sized
	// streaming source. A zero size means not found.
	if data, ok := c.server.resolver.Data(ctx, target); ok {
		resp := httpproto.NewBytesResponse(httpproto.StatusOK, data)
		return resp.Status, c.transmit(resp, method == httpproto.MethodGet)
	}

	size := c.server.resolver.Size(ctx, target)
	if size <= 0 {
		resp := httpproto.NewResponse(httpproto.StatusNotFound)
		return resp.Status, c.transmit(resp, false)
	}

	// 5. HEAD carries the same headers as GET but no body, so the
	// streaming source is never opened.
	if method == httpproto.MethodHead {
		resp := httpproto.NewStreamResponse(httpproto.StatusOK, nil, size).WithoutBody()
		return resp.Status, c.transmit(resp, false)
	}

	src, openedSize, err := c.server.resolver.Open(ctx, target)
	if err != nil {
		logger.Debug("Open %s failed after size probe: %v", target, err)
		resp := httpproto.NewResponse(httpproto.StatusNotFound)
		return resp.Status, c.transmit(resp, false)
	}

	resp := httpproto.NewStreamResponse(httpproto.StatusOK, src, openedSize)
	return resp.Status, c.transmit(resp, true)
}

// authenticate parses and validates the request's Digest credentials
// against the connection's cached nonce state.
func (c *HTTPConnection) authenticate(ctx context.Context, method, target string) bool {
	header, _ := c.req.Header("Authorization")
	creds, ok := digest.ParseCredentials(header)
	if !ok {
		return false
	}
	return c.server.validator.Validate(ctx, method, target, creds,
		c.server.credentials.PasswordFor, &c.authState)
}

// transmit writes the response: header block first, then the body when
// includeBody is true.
//
// Header and error writes are bounded by WriteTimeout; a timeout is fatal
// for the connection. Body writes are unbounded since large files may
// take arbitrarily long.
func (c *HTTPConnection) transmit(resp *httpproto.ResponseDescriptor, includeBody bool) error {
	c.state = stateWritingHeader

	if c.server.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if _, err := c.conn.Write(resp.MarshalHeader()); err != nil {
		c.discardBody(resp)
		return fmt.Errorf("write response header: %w", err)
	}

	if !includeBody || resp.Kind() == httpproto.BodyNone {
		c.discardBody(resp)
		return nil
	}

	// Header written; lift the deadline for the body phase
	if err := c.conn.SetWriteDeadline(time.Time{}); err != nil {
		c.discardBody(resp)
		return fmt.Errorf("clear write deadline: %w", err)
	}

	switch resp.Kind() {
	case httpproto.BodyBytes:
		if data := resp.Data(); len(data) > 0 {
			if _, err := c.conn.Write(data); err != nil {
				return fmt.Errorf("write response body: %w", err)
			}
		}
		return nil

	case httpproto.BodyStream:
		streamed, err := c.streamBody(resp.Stream())
		c.server.metrics.RecordBytesStreamed(streamed)
		if err != nil {
			return fmt.Errorf("stream response body: %w", err)
		}
		if streamed != resp.ContentLength() {
			// The source length changed between probe and
			// transmission; the client got a short or long body,
			// so the framing on this connection can no longer be
			// trusted.
			logger.Warn("Streamed %d bytes for a %d byte response", streamed, resp.ContentLength())
			return errCloseConnection
		}
		return nil

	default:
		return nil
	}
}

// streamBody is the chunked streaming pump.
//
// At most one write is outstanding: the next chunk is read only after the
// previous Write returned, which is the write-completion event of the
// transport. That completion-driven loop is the backpressure mechanism -
// a slow client throttles reads from the source, and memory use stays
// bounded by one chunk.
//
// End-of-stream is a zero-length read, not a byte counter, so sources
// whose announced size was approximate still terminate cleanly.
func (c *HTTPConnection) streamBody(src io.ReadCloser) (int64, error) {
	defer func() {
		_ = src.Close()
	}()

	c.state = stateStreamingBody

	buf := make([]byte, c.server.config.ChunkSize)
	var total int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := c.conn.Write(buf[:n]); err != nil {
				return total, err
			}
			// Write completed; the pump may request the next chunk
			total += int64(n)
		}

		if readErr != nil {
			if readErr == io.EOF {
				return total, nil
			}
			return total, readErr
		}
		if n == 0 {
			// Zero-length read without error also ends the stream
			return total, nil
		}
	}
}

// discardBody releases an unconsumed body source, e.g. when the header
// write failed or a HEAD response carried a stream descriptor.
func (c *HTTPConnection) discardBody(resp *httpproto.ResponseDescriptor) {
	if src := resp.Stream(); src != nil {
		_ = src.Close()
	}
}

// logReadError classifies the read failure that ended the connection.
func (c *HTTPConnection) logReadError(clientAddr string, err error) {
	var netErr net.Error
	switch {
	case err == io.EOF:
		logger.Debug("Connection from %s closed by client", clientAddr)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("Connection from %s idle timeout: %v", clientAddr, err)
	default:
		logger.Debug("Error reading from %s: %v", clientAddr, err)
	}
}
