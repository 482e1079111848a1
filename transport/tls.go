package transport

import (
	"context"
	"crypto/tls"
	"net"

	"mailproto/mailerr"
)

// upgradeTLS runs a client-side TLS handshake over conn, mirroring the
// teacher's dialUpstream STARTTLS branch but as a standalone helper so
// both TCPTransport.StartTLS and a future non-TCP transport can reuse it.
func upgradeTLS(ctx context.Context, conn net.Conn, validateCertificate bool, serverName string) (net.Conn, error) {
	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: !validateCertificate,
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		tlsConn.Close()
		return nil, &mailerr.TLSUpgradeFailed{Msg: err.Error()}
	}
	return tlsConn, nil
}
