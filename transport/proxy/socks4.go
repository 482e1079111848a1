package proxy

import (
	"context"
	"net"

	"mailproto/mailerr"
	"mailproto/transport"
)

const (
	socks4Version   = 0x04
	socks4CmdConnect = 0x01
	socks4ReplyOK    = 0x5A
)

// SOCKS4Dialer tunnels via SOCKS4, or SOCKS4a when SOCKS4A is set (domain
// names are sent to the proxy instead of being resolved locally).
type SOCKS4Dialer struct {
	SOCKS4A bool
	UserID  string
}

func (d *SOCKS4Dialer) Dial(ctx context.Context, t transport.Transport, host string, port int) error {
	req := make([]byte, 0, 9+len(host)+len(d.UserID)+1)
	req = append(req, socks4Version, socks4CmdConnect, byte(port>>8), byte(port))

	ip := net.ParseIP(host)
	useHostAppend := false
	if ip != nil {
		v4 := ip.To4()
		if v4 == nil {
			return &mailerr.ProxyError{Kind: mailerr.ProxyProtocolViolation, Msg: "SOCKS4 does not support IPv6 addresses"}
		}
		req = append(req, v4...)
	} else if d.SOCKS4A {
		// RFC: invalid IP with the final octet non-zero signals SOCKS4a.
		req = append(req, 0, 0, 0, 1)
		useHostAppend = true
	} else {
		resolved, err := net.ResolveIPAddr("ip4", host)
		if err != nil {
			return &mailerr.ProxyError{Kind: mailerr.ProxyHostUnreachable, Msg: err.Error()}
		}
		req = append(req, resolved.IP.To4()...)
	}

	req = append(req, []byte(d.UserID)...)
	req = append(req, 0x00)

	if useHostAppend {
		req = append(req, []byte(host)...)
		req = append(req, 0x00)
	}

	if _, err := t.Write(ctx, req); err != nil {
		return err
	}

	reply := make([]byte, 8)
	if err := readExactly(ctx, t, reply); err != nil {
		return err
	}
	if reply[1] != socks4ReplyOK {
		return &mailerr.ProxyError{Kind: socks4ReplyKind(reply[1]), Msg: socks4ReplyMessage(reply[1])}
	}
	return nil
}

func socks4ReplyKind(code byte) mailerr.ProxyErrorKind {
	switch code {
	case 0x5B:
		return mailerr.ProxyRejected
	case 0x5C, 0x5D:
		return mailerr.ProxyAuthFailed
	default:
		return mailerr.ProxyRejected
	}
}

func socks4ReplyMessage(code byte) string {
	switch code {
	case 0x5B:
		return "request rejected or failed"
	case 0x5C:
		return "request rejected: client is not running identd"
	case 0x5D:
		return "request rejected: client's identd could not confirm the user ID"
	default:
		return "unknown SOCKS4 reply code"
	}
}
