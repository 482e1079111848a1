// Package proxy implements the one-shot tunnel handshakes (spec C2) that
// run on a freshly opened transport.Transport before any IMAP/SMTP
// traffic flows: HTTP CONNECT, SOCKS4/4a, and SOCKS5.
package proxy

import (
	"context"

	"mailproto/mailerr"
	"mailproto/transport"
)

// Kind names the proxy protocol, matching spec.md §6's config enum.
type Kind string

const (
	None    Kind = "none"
	HTTP    Kind = "http"
	SOCKS4  Kind = "socks4"
	SOCKS4A Kind = "socks4a"
	SOCKS5  Kind = "socks5"
)

// Credentials holds optional proxy auth.
type Credentials struct {
	User string
	Pass string
}

// Config describes a proxy hop, mirroring spec.md §6's `proxy` config shape.
type Config struct {
	Kind        Kind
	Host        string
	Port        int
	Credentials *Credentials
}

// Dialer performs a proxy handshake on an already-open transport,
// tunnelling to targetHost:targetPort.
type Dialer interface {
	Dial(ctx context.Context, t transport.Transport, targetHost string, targetPort int) error
}

// NewDialer returns the Dialer for cfg.Kind, or nil for Kind == None.
func NewDialer(cfg Config) Dialer {
	switch cfg.Kind {
	case HTTP:
		return &HTTPConnectDialer{Credentials: cfg.Credentials}
	case SOCKS5:
		return &SOCKS5Dialer{Credentials: cfg.Credentials}
	case SOCKS4:
		return &SOCKS4Dialer{SOCKS4A: false}
	case SOCKS4A:
		return &SOCKS4Dialer{SOCKS4A: true}
	default:
		return nil
	}
}

// readExactly reads exactly len(buf) bytes via repeated ReadAvailable
// calls, since transport.Transport has no io.Reader-shaped full-read
// helper of its own.
func readExactly(ctx context.Context, t transport.Transport, buf []byte) error {
	got := 0
	for got < len(buf) {
		chunk, err := t.ReadAvailable(ctx, len(buf)-got)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return &mailerr.ConnectionClosed{Msg: "proxy handshake: connection closed by peer"}
		}
		copy(buf[got:], chunk)
		got += len(chunk)
	}
	return nil
}

// readLine reads bytes one chunk at a time until a bare LF is seen,
// returning the line including its terminator.
func readLine(ctx context.Context, t transport.Transport) ([]byte, error) {
	var line []byte
	one := make([]byte, 1)
	for {
		chunk, err := t.ReadAvailable(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			return nil, &mailerr.ConnectionClosed{Msg: "proxy handshake: connection closed by peer"}
		}
		one[0] = chunk[0]
		line = append(line, one[0])
		if one[0] == '\n' {
			return line, nil
		}
	}
}
