// Command mailproto-dial is a demo client exercising the imap and smtp
// packages end to end: load a dial target from TOML, optionally tunnel
// through a proxy, connect, and run a handful of read-only commands
// against whichever protocol the endpoint speaks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"mailproto/internal/config"
	"mailproto/imap"
	"mailproto/smtp"
	"mailproto/transport"
	"mailproto/transport/proxy"
)

func main() {
	configPath := flag.String("config", "mailproto-dial.toml", "path to config file")
	protocol := flag.String("protocol", "imap", "imap or smtp")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	readTimeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	t := transport.NewTCPTransport(cfg.Endpoint, readTimeout)

	if cfg.Proxy != nil {
		if err := dialThroughProxy(ctx, t, cfg); err != nil {
			logger.Error("proxy dial failed", "err", err)
			os.Exit(1)
		}
	} else if err := t.Open(ctx); err != nil {
		logger.Error("dial failed", "err", err)
		os.Exit(1)
	}

	switch strings.ToLower(*protocol) {
	case "smtp":
		runSMTP(ctx, t, logger)
	default:
		runIMAP(ctx, t, logger, cfg)
	}
}

// dialThroughProxy opens t's transport toward cfg.Proxy's host:port, then
// runs the proxy handshake so the tunnel lands at cfg.Endpoint.
func dialThroughProxy(ctx context.Context, t *transport.TCPTransport, cfg *config.Config) error {
	targetHost, targetPort, err := splitHostPort(cfg.Endpoint)
	if err != nil {
		return err
	}

	proxyAddr := fmt.Sprintf("%s:%d", cfg.Proxy.Host, cfg.Proxy.Port)
	tunnel := transport.NewTCPTransport(proxyAddr, t.ReadTimeout)
	if err := tunnel.Open(ctx); err != nil {
		return err
	}

	var creds *proxy.Credentials
	if cfg.Proxy.User != "" {
		creds = &proxy.Credentials{User: cfg.Proxy.User, Pass: cfg.Proxy.Pass}
	}
	dialer := proxy.NewDialer(proxy.Config{Kind: proxy.Kind(strings.ToLower(cfg.Proxy.Kind)), Credentials: creds})
	if dialer == nil {
		return fmt.Errorf("unknown proxy kind %q", cfg.Proxy.Kind)
	}
	if err := dialer.Dial(ctx, tunnel, targetHost, targetPort); err != nil {
		return err
	}

	*t = *tunnel
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return host, port, nil
}

func runIMAP(ctx context.Context, t transport.Transport, logger *slog.Logger, cfg *config.Config) {
	sess := imap.NewSession(t, logger)
	if cfg.MaxReads > 0 {
		sess.MaxReads = cfg.MaxReads
	}
	if err := sess.Connect(ctx); err != nil {
		logger.Error("connect failed", "err", err)
		os.Exit(1)
	}
	defer sess.Close()

	caps, err := sess.Capability(ctx)
	if err != nil {
		logger.Error("capability failed", "err", err)
		os.Exit(1)
	}
	logger.Info("connected", "capabilities", len(caps))

	if err := sess.Select(ctx, "INBOX"); err != nil {
		logger.Error("select failed", "err", err)
		os.Exit(1)
	}
	mailbox := sess.Mailbox()
	logger.Info("selected INBOX", "exists", mailbox.Exists, "recent", mailbox.Recent)

	if err := sess.Logout(ctx); err != nil {
		logger.Error("logout failed", "err", err)
		os.Exit(1)
	}
}

func runSMTP(ctx context.Context, t transport.Transport, logger *slog.Logger) {
	sess := smtp.NewSession(t, logger)
	greeting, err := sess.Connect(ctx)
	if err != nil {
		logger.Error("connect failed", "err", err)
		os.Exit(1)
	}
	logger.Info("greeted", "code", greeting.Code)

	reply, err := sess.EHLO(ctx, "mailproto-dial")
	if err != nil {
		logger.Error("ehlo failed", "err", err)
		os.Exit(1)
	}
	logger.Info("ehlo ok", "extensions", len(sess.Extensions()), "code", reply.Code)

	if err := sess.Quit(ctx); err != nil {
		logger.Error("quit failed", "err", err)
		os.Exit(1)
	}
}
