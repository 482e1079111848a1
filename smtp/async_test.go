package smtp

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
		io.WriteString(server, "220 ready\r\n")
		r.ReadString('\n') // EHLO, never answered
	}()

	ctx := context.Background()
	async := NewAsyncSession(sess)
	if _, err := async.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := async.EHLO(cancelCtx, "client.example.com"); err != context.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	if _, err := async.EHLO(ctx, "client.example.com"); err == nil {
		t.Fatalf("expected an error from a session closed by cancellation")
	}
}
