package imap

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestAsyncSessionCancelAbortsTransport(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	go func() {
		io.WriteString(server, "* OK Ready\r\n")
		r.ReadString('\n') // SELECT, never answered
	}()

	ctx := context.Background()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	async := NewAsyncSession(sess)
	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := async.Select(cancelCtx, "INBOX")
	if err != context.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	// A second call on the now-aborted session must fail fast rather
	// than block.
	if err := async.Select(ctx, "INBOX"); err == nil {
		t.Fatalf("expected an error from a session closed by cancellation")
	}
}

func TestAsyncSessionSerializesCalls(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	go func() {
		io.WriteString(server, "* OK Ready\r\n")
		r.ReadString('\n') // LOGIN
		io.WriteString(server, "A0001 OK LOGIN completed\r\n")
		r.ReadString('\n') // SELECT
		io.WriteString(server, "* 1 EXISTS\r\n")
		io.WriteString(server, "A0002 OK SELECT completed\r\n")
	}()

	ctx := context.Background()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	async := NewAsyncSession(sess)

	if err := async.Login(ctx, "user", "pass"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := async.Select(ctx, "INBOX"); err != nil {
		t.Fatalf("select: %v", err)
	}
}
