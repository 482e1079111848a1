package proxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"mailproto/mailerr"
	"mailproto/transport"
)

// HTTPConnectDialer tunnels via an HTTP/1.1 CONNECT request.
type HTTPConnectDialer struct {
	Credentials *Credentials
}

func (d *HTTPConnectDialer) Dial(ctx context.Context, t transport.Transport, host string, port int) error {
	target := host + ":" + strconv.Itoa(port)

	var req bytes.Buffer
	fmt.Fprintf(&req, "CONNECT %s HTTP/1.1\r\n", target)
	fmt.Fprintf(&req, "Host: %s\r\n", target)
	if d.Credentials != nil {
		token := base64.StdEncoding.EncodeToString(
			[]byte(d.Credentials.User + ":" + d.Credentials.Pass))
		fmt.Fprintf(&req, "Proxy-Authorization: Basic %s\r\n", token)
	}
	req.WriteString("\r\n")

	if _, err := t.Write(ctx, req.Bytes()); err != nil {
		return err
	}

	statusLine, err := readLine(ctx, t)
	if err != nil {
		return err
	}

	// Drain headers up to the blank line.
	for {
		line, err := readLine(ctx, t)
		if err != nil {
			return err
		}
		if isBlankLine(line) {
			break
		}
	}

	code, err := parseStatusCode(statusLine)
	if err != nil {
		return &mailerr.ProxyError{Kind: mailerr.ProxyProtocolViolation, Msg: err.Error()}
	}
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == 407:
		return &mailerr.ProxyError{Kind: mailerr.ProxyAuthRequired, Msg: strings.TrimSpace(string(statusLine))}
	case code == 401:
		return &mailerr.ProxyError{Kind: mailerr.ProxyAuthFailed, Msg: strings.TrimSpace(string(statusLine))}
	default:
		return &mailerr.ProxyError{Kind: mailerr.ProxyRejected, Msg: strings.TrimSpace(string(statusLine))}
	}
}

func isBlankLine(line []byte) bool {
	trimmed := bytes.TrimRight(line, "\r\n")
	return len(trimmed) == 0
}

func parseStatusCode(statusLine []byte) (int, error) {
	fields := strings.Fields(string(statusLine))
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed status line: %q", statusLine)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("malformed status code: %q", fields[1])
	}
	return code, nil
}
