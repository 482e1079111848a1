// Package transport defines the byte-stream contract that IMAP and SMTP
// sessions are built on (spec C1), plus a net.Conn-backed implementation
// and the optional STARTTLS/compression capability interfaces sessions
// probe for via type assertion.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// Transport is the byte-stream contract a session drives. Both the
// blocking and the cooperative session flavors talk to the same
// interface; what differs is how ReadAvailable behaves under the hood
// (blocking on the caller's goroutine vs. suspending behind ctx).
type Transport interface {
	// Open establishes the connection. Dialing happens here, not in a
	// constructor, so proxy tunnels and TLS can be layered in first.
	Open(ctx context.Context) error

	// Close releases the underlying connection. Idempotent.
	Close() error

	// Write writes p in full or returns an error; it never short-writes
	// silently.
	Write(ctx context.Context, p []byte) (int, error)

	// ReadAvailable blocks (or suspends, for a cooperative transport)
	// until at least one byte is available, up to max bytes, and
	// returns an empty, non-nil slice on a clean EOF. It never returns
	// both a non-empty slice and io.EOF in the same call.
	ReadAvailable(ctx context.Context, max int) ([]byte, error)
}

// TLSUpgrader is implemented by transports that can hand off to TLS
// in-band (STARTTLS). StartTLS must not be called twice on one
// transport, and no bytes may be read from the plaintext transport
// after the upgrade begins.
type TLSUpgrader interface {
	StartTLS(ctx context.Context, validateCertificate bool) (Transport, error)
}

// Compressor is implemented by transports that can wrap subsequent
// reads/writes in a compression stream (COMPRESS=DEFLATE).
type Compressor interface {
	StartCompression(ctx context.Context, algorithm string) (Transport, error)
}

// TCPTransport is a Transport backed by a net.Conn, dialed with an
// optional proxy tunnel in front of it. It implements TLSUpgrader.
type TCPTransport struct {
	Addr string

	// Dial is the low-level dialer; defaults to (&net.Dialer{}).DialContext.
	// Tests substitute this to avoid real sockets.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	// ReadTimeout bounds each ReadAvailable call in the blocking flavor.
	// Zero means no deadline is set (ReadAvailable blocks indefinitely).
	ReadTimeout time.Duration

	conn net.Conn
}

// NewTCPTransport returns a TCPTransport that will dial addr on Open.
func NewTCPTransport(addr string, readTimeout time.Duration) *TCPTransport {
	return &TCPTransport{Addr: addr, ReadTimeout: readTimeout}
}

func (t *TCPTransport) dialer() func(ctx context.Context, network, addr string) (net.Conn, error) {
	if t.Dial != nil {
		return t.Dial
	}
	d := &net.Dialer{}
	return d.DialContext
}

// Open dials t.Addr, unless conn is already set (as it is for a
// TCPTransport built from FromConn after a proxy handshake), in which
// case Open is a no-op so Session.Connect can call it unconditionally —
// see cmd/mailproto-dial's dialThroughProxy for a dial-then-handshake
// composition.
func (t *TCPTransport) Open(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	conn, err := t.dialer()(ctx, "tcp", t.Addr)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

// FromConn wraps an already-established net.Conn (e.g. after a proxy
// handshake) in a TCPTransport, skipping Open/dialing entirely.
func FromConn(conn net.Conn, readTimeout time.Duration) *TCPTransport {
	return &TCPTransport{conn: conn, ReadTimeout: readTimeout}
}

func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *TCPTransport) Write(ctx context.Context, p []byte) (int, error) {
	if dl, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(dl)
	} else {
		t.conn.SetWriteDeadline(time.Time{})
	}
	return t.conn.Write(p)
}

// ReadAvailable reads up to max bytes. A clean EOF yields an empty,
// non-nil slice and a nil error, which signals that the peer closed the
// connection; any other read error is returned as is.
func (t *TCPTransport) ReadAvailable(ctx context.Context, max int) ([]byte, error) {
	deadline, hasCtxDeadline := ctx.Deadline()
	if !hasCtxDeadline && t.ReadTimeout > 0 {
		deadline = time.Now().Add(t.ReadTimeout)
		hasCtxDeadline = true
	}
	if hasCtxDeadline {
		t.conn.SetReadDeadline(deadline)
	} else {
		t.conn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, max)
	n, err := t.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		if isEOF(err) {
			return []byte{}, nil
		}
		return nil, err
	}
	return []byte{}, nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// StartTLS performs the TLS client handshake in-place, handing back a
// new TCPTransport wrapping the upgraded connection. The caller (the
// session) must discard the old Transport value and use only the
// returned one — see DESIGN.md on the STARTTLS handoff invariant.
func (t *TCPTransport) StartTLS(ctx context.Context, validateCertificate bool) (Transport, error) {
	upgraded, err := upgradeTLS(ctx, t.conn, validateCertificate, serverNameFromAddr(t.Addr))
	if err != nil {
		return nil, err
	}
	return FromConn(upgraded, t.ReadTimeout), nil
}

func serverNameFromAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
