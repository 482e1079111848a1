package smtp

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"mailproto/mech"
	"mailproto/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipeSession(t *testing.T) (*Session, net.Conn, *bufio.Reader) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	serverConn.SetDeadline(time.Now().Add(5 * time.Second))
	clientConn.SetDeadline(time.Now().Add(5 * time.Second))

	tr := transport.FromConn(clientConn, 0)
	sess := NewSession(tr, testLogger())
	return sess, serverConn, bufio.NewReader(serverConn)
}

func TestSessionConnectEHLO(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	go func() {
		io.WriteString(server, "220 mail.example.com ESMTP ready\r\n")
		r.ReadString('\n') // EHLO
		io.WriteString(server, "250-mail.example.com Hello\r\n")
		io.WriteString(server, "250-PIPELINING\r\n")
		io.WriteString(server, "250-SIZE 35651584\r\n")
		io.WriteString(server, "250 STARTTLS\r\n")
	}()

	ctx := context.Background()
	if _, err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	reply, err := sess.EHLO(ctx, "client.example.com")
	if err != nil {
		t.Fatalf("ehlo: %v", err)
	}
	if reply.Code != 250 {
		t.Fatalf("unexpected code %d", reply.Code)
	}
	if !sess.hasExtension("PIPELINING") {
		t.Fatalf("expected PIPELINING extension recorded")
	}
	if !sess.hasExtension("STARTTLS") {
		t.Fatalf("expected STARTTLS extension recorded")
	}
}

func TestSessionDataDotStuffing(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	var gotData string
	done := make(chan struct{})
	go func() {
		defer close(done)
		io.WriteString(server, "220 ready\r\n")
		r.ReadString('\n') // MAIL FROM
		io.WriteString(server, "250 OK\r\n")
		r.ReadString('\n') // RCPT TO
		io.WriteString(server, "250 OK\r\n")
		r.ReadString('\n') // DATA
		io.WriteString(server, "354 go ahead\r\n")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			gotData += line
			if line == ".\r\n" {
				io.WriteString(server, "250 OK queued\r\n")
				return
			}
		}
	}()

	ctx := context.Background()
	if _, err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := sess.MailFrom(ctx, "a@example.com"); err != nil {
		t.Fatalf("mail from: %v", err)
	}
	if _, err := sess.RcptTo(ctx, "b@example.com"); err != nil {
		t.Fatalf("rcpt to: %v", err)
	}
	reply, err := sess.Data(ctx, []byte("Subject: hi\r\n\r\n.leading dot\r\nplain line\r\n"))
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	if reply.Code != 250 {
		t.Fatalf("unexpected final code %d", reply.Code)
	}
	<-done
	want := "Subject: hi\r\n\r\n..leading dot\r\nplain line\r\n.\r\n"
	if gotData != want {
		t.Fatalf("got %q want %q", gotData, want)
	}
}

func TestSessionBDATNoStuffing(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	done := make(chan string, 1)
	go func() {
		io.WriteString(server, "220 ready\r\n")
		header, _ := r.ReadString('\n')
		body := make([]byte, len(".leading dot\r\n"))
		io.ReadFull(r, body)
		io.WriteString(server, "250 2.0.0 OK\r\n")
		done <- header + string(body)
	}()

	ctx := context.Background()
	if _, err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	chunk := []byte(".leading dot\r\n")
	reply, err := sess.SendBDAT(ctx, chunk, true)
	if err != nil {
		t.Fatalf("bdat: %v", err)
	}
	if reply.Code != 250 {
		t.Fatalf("unexpected code %d", reply.Code)
	}
	got := <-done
	want := "BDAT 14 LAST\r\n.leading dot\r\n"
	if got != want {
		t.Fatalf("got %q want %q (no dot-stuffing expected on BDAT)", got, want)
	}
}

func TestSessionSendMailPipelined(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	go func() {
		io.WriteString(server, "220 ready\r\n")
		r.ReadString('\n') // EHLO
		io.WriteString(server, "250-mail.example.com\r\n250 PIPELINING\r\n")

		// MAIL FROM, RCPT TO x2, DATA arrive as one batched write.
		r.ReadString('\n')
		r.ReadString('\n')
		r.ReadString('\n')
		r.ReadString('\n')
		io.WriteString(server, "250 OK\r\n")
		io.WriteString(server, "250 OK\r\n")
		io.WriteString(server, "250 OK\r\n")
		io.WriteString(server, "354 go ahead\r\n")

		for {
			line, err := r.ReadString('\n')
			if err != nil || line == ".\r\n" {
				break
			}
		}
		io.WriteString(server, "250 queued\r\n")
	}()

	ctx := context.Background()
	if _, err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := sess.EHLO(ctx, "client.example.com"); err != nil {
		t.Fatalf("ehlo: %v", err)
	}
	reply, err := sess.SendMailPipelined(ctx, "a@example.com", []string{"b@example.com", "c@example.com"}, []byte("hi\r\n"))
	if err != nil {
		t.Fatalf("pipelined send: %v", err)
	}
	if reply.Code != 250 {
		t.Fatalf("unexpected final code %d", reply.Code)
	}
}

func TestSessionAuthPlainSASL(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	lineCh := make(chan string, 1)
	go func() {
		io.WriteString(server, "220 ready\r\n")
		line, _ := r.ReadString('\n')
		lineCh <- line
		io.WriteString(server, "235 2.7.0 Authentication successful\r\n")
	}()

	ctx := context.Background()
	if _, err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	client := mech.NewPlainClient("", "user", "pass")
	if err := sess.Auth(ctx, client); err != nil {
		t.Fatalf("auth: %v", err)
	}

	line := <-lineCh
	const prefix = "AUTH PLAIN "
	if !strings.HasPrefix(line, prefix) {
		t.Fatalf("unexpected line: %q", line)
	}
	encoded := strings.TrimSuffix(strings.TrimPrefix(line, prefix), "\r\n")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode initial response: %v", err)
	}
	if want := "\x00user\x00pass"; string(decoded) != want {
		t.Fatalf("initial response = %q, want %q", decoded, want)
	}
}

func TestSessionPipelinedRequiresCapability(t *testing.T) {
	sess, server, _ := newPipeSession(t)
	defer server.Close()

	go io.WriteString(server, "220 ready\r\n")

	ctx := context.Background()
	if _, err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := sess.SendMailPipelined(ctx, "a@example.com", []string{"b@example.com"}, []byte("hi\r\n")); err == nil {
		t.Fatalf("expected CapabilityMissing without PIPELINING")
	}
}
