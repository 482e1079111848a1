package proxy

import (
	"context"
	"net"
	"strconv"

	"mailproto/mailerr"
	"mailproto/transport"
)

const (
	socks5Version = 0x05

	socks5MethodNoAuth   = 0x00
	socks5MethodUserPass = 0x02
	socks5MethodNoAccept = 0xFF

	socks5CmdConnect = 0x01

	socks5AtypIPv4   = 0x01
	socks5AtypDomain = 0x03
	socks5AtypIPv6   = 0x04
)

// SOCKS5Dialer tunnels via RFC 1928 SOCKS5, with RFC 1929 user/pass auth
// (method 0x02) when Credentials is set.
type SOCKS5Dialer struct {
	Credentials *Credentials
}

func (d *SOCKS5Dialer) Dial(ctx context.Context, t transport.Transport, host string, port int) error {
	methods := []byte{socks5MethodNoAuth}
	if d.Credentials != nil {
		methods = append(methods, socks5MethodUserPass)
	}

	greeting := append([]byte{socks5Version, byte(len(methods))}, methods...)
	if _, err := t.Write(ctx, greeting); err != nil {
		return err
	}

	sel := make([]byte, 2)
	if err := readExactly(ctx, t, sel); err != nil {
		return err
	}
	if sel[0] != socks5Version {
		return &mailerr.ProxyError{Kind: mailerr.ProxyProtocolViolation, Msg: "bad SOCKS version in method selection"}
	}

	switch sel[1] {
	case socks5MethodNoAuth:
		// nothing further.
	case socks5MethodUserPass:
		if d.Credentials == nil {
			return &mailerr.ProxyError{Kind: mailerr.ProxyAuthRequired, Msg: "server selected user/pass but no credentials configured"}
		}
		if err := d.authenticate(ctx, t); err != nil {
			return err
		}
	case socks5MethodNoAccept:
		return &mailerr.ProxyError{Kind: mailerr.ProxyAuthRequired, Msg: "server accepted no offered method"}
	default:
		return &mailerr.ProxyError{Kind: mailerr.ProxyProtocolViolation, Msg: "unsupported method selected"}
	}

	atyp, addrBytes, err := encodeSocksAddr(host)
	if err != nil {
		return &mailerr.ProxyError{Kind: mailerr.ProxyProtocolViolation, Msg: err.Error()}
	}

	req := make([]byte, 0, 6+len(addrBytes))
	req = append(req, socks5Version, socks5CmdConnect, 0x00, atyp)
	req = append(req, addrBytes...)
	req = append(req, byte(port>>8), byte(port))
	if _, err := t.Write(ctx, req); err != nil {
		return err
	}

	hdr := make([]byte, 4)
	if err := readExactly(ctx, t, hdr); err != nil {
		return err
	}
	if hdr[0] != socks5Version {
		return &mailerr.ProxyError{Kind: mailerr.ProxyProtocolViolation, Msg: "bad SOCKS version in reply"}
	}
	if hdr[1] != 0x00 {
		return &mailerr.ProxyError{Kind: socks5ReplyKind(hdr[1]), Msg: socks5ReplyMessage(hdr[1])}
	}
	if err := discardBoundAddr(ctx, t, hdr[3]); err != nil {
		return err
	}
	return nil
}

func (d *SOCKS5Dialer) authenticate(ctx context.Context, t transport.Transport) error {
	user := []byte(d.Credentials.User)
	pass := []byte(d.Credentials.Pass)
	if len(user) > 255 || len(pass) > 255 {
		return &mailerr.ProxyError{Kind: mailerr.ProxyProtocolViolation, Msg: "user/pass too long for SOCKS5 auth"}
	}
	req := make([]byte, 0, 3+len(user)+len(pass))
	req = append(req, 0x01, byte(len(user)))
	req = append(req, user...)
	req = append(req, byte(len(pass)))
	req = append(req, pass...)
	if _, err := t.Write(ctx, req); err != nil {
		return err
	}
	resp := make([]byte, 2)
	if err := readExactly(ctx, t, resp); err != nil {
		return err
	}
	if resp[1] != 0x00 {
		return &mailerr.ProxyError{Kind: mailerr.ProxyAuthFailed, Msg: "SOCKS5 user/pass authentication rejected"}
	}
	return nil
}

func encodeSocksAddr(host string) (atyp byte, addr []byte, err error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return socks5AtypIPv4, []byte(v4), nil
		}
		return socks5AtypIPv6, []byte(ip.To16()), nil
	}
	if len(host) > 255 {
		return 0, nil, errHostTooLong
	}
	return socks5AtypDomain, append([]byte{byte(len(host))}, []byte(host)...), nil
}

var errHostTooLong = &mailerr.ProxyError{Kind: mailerr.ProxyProtocolViolation, Msg: "hostname too long for SOCKS5 domain encoding"}

func discardBoundAddr(ctx context.Context, t transport.Transport, atyp byte) error {
	var n int
	switch atyp {
	case socks5AtypIPv4:
		n = 4
	case socks5AtypIPv6:
		n = 16
	case socks5AtypDomain:
		lenBuf := make([]byte, 1)
		if err := readExactly(ctx, t, lenBuf); err != nil {
			return err
		}
		n = int(lenBuf[0])
	default:
		return &mailerr.ProxyError{Kind: mailerr.ProxyProtocolViolation, Msg: "unknown ATYP " + strconv.Itoa(int(atyp)) + " in reply"}
	}
	return readExactly(ctx, t, make([]byte, n+2)) // +2 for BND.PORT
}

func socks5ReplyKind(rep byte) mailerr.ProxyErrorKind {
	switch rep {
	case 0x02:
		return mailerr.ProxyRejected // connection not allowed by ruleset
	case 0x03, 0x04, 0x05:
		return mailerr.ProxyHostUnreachable
	default:
		return mailerr.ProxyRejected
	}
}

func socks5ReplyMessage(rep byte) string {
	switch rep {
	case 0x01:
		return "general SOCKS server failure"
	case 0x02:
		return "connection not allowed by ruleset"
	case 0x03:
		return "network unreachable"
	case 0x04:
		return "host unreachable"
	case 0x05:
		return "connection refused"
	case 0x06:
		return "TTL expired"
	case 0x07:
		return "command not supported"
	case 0x08:
		return "address type not supported"
	default:
		return "unknown SOCKS5 reply code"
	}
}
