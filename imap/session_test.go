package imap

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"mailproto/mailerr"
	"mailproto/mech"
	"mailproto/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newPipeSession wires a Session to one end of a net.Pipe and hands the
// test the other end, pre-loaded with a bufio.Reader so the fake-server
// side can be scripted line by line, the shape the teacher's
// session_test.go uses around net.Pipe.
func newPipeSession(t *testing.T) (*Session, net.Conn, *bufio.Reader) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	serverConn.SetDeadline(time.Now().Add(5 * time.Second))
	clientConn.SetDeadline(time.Now().Add(5 * time.Second))

	tr := transport.FromConn(clientConn, 0)
	sess := NewSession(tr, testLogger())
	sess.MaxReads = 200
	return sess, serverConn, bufio.NewReader(serverConn)
}

func TestSessionConnectAndLogin(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		io.WriteString(server, "* OK Ready\r\n")
		line, err := r.ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		if line != "A0001 LOGIN user pass\r\n" {
			errCh <- fmt.Errorf("unexpected LOGIN line: %q", line)
			return
		}
		io.WriteString(server, "A0001 OK LOGIN completed\r\n")
		errCh <- nil
	}()

	ctx := context.Background()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := sess.Login(ctx, "user", "pass"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("server side: %v", err)
	}
}

func TestSessionGetACL(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	go func() {
		io.WriteString(server, "* OK Ready\r\n")
		r.ReadString('\n') // LOGIN
		io.WriteString(server, "A0001 OK LOGIN completed\r\n")
		r.ReadString('\n') // GETACL
		io.WriteString(server, "* ACL \"INBOX\" \"fred\" \"rw\"\r\n")
		io.WriteString(server, "A0002 OK GETACL completed\r\n")
	}()

	ctx := context.Background()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := sess.Login(ctx, "user", "pass"); err != nil {
		t.Fatalf("login: %v", err)
	}
	acl, err := sess.GetACL(ctx, "INBOX")
	if err != nil {
		t.Fatalf("getacl: %v", err)
	}
	if len(acl.Entries) != 1 || acl.Entries[0].Identifier != "fred" || acl.Entries[0].Rights != "rw" {
		t.Fatalf("unexpected ACL result: %+v", acl)
	}
}

func TestSessionSortGatingRejectsBeforeWrite(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	wrote := make(chan bool, 1)
	go func() {
		io.WriteString(server, "* OK Ready\r\n")
		server.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, err := r.ReadString('\n')
		wrote <- err == nil
	}()

	ctx := context.Background()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sess.caps = NewCapabilitySet([]string{"IMAP4rev1", "SORT"})

	_, err := sess.Sort(ctx, []OrderBy{{Column: SortDisplayFrom}}, "ALL")
	if _, ok := err.(*mailerr.SortDisplayNotSupported); !ok {
		t.Fatalf("expected *mailerr.SortDisplayNotSupported, got %T (%v)", err, err)
	}
	if <-wrote {
		t.Fatalf("SORT must be rejected before any bytes are written")
	}
}

func TestSessionUnsolicitedBYECloses(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	go func() {
		io.WriteString(server, "* OK Ready\r\n")
		r.ReadString('\n') // SELECT INBOX
		io.WriteString(server, "* BYE shutting down\r\n")
		server.Close()
	}()

	ctx := context.Background()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	err := sess.Select(ctx, "INBOX")
	if err == nil {
		t.Fatalf("expected an error after unsolicited BYE")
	}
	if err.Error() != "shutting down" {
		t.Fatalf("unexpected error text: %v", err)
	}

	if _, ferr := sess.Capability(ctx); ferr == nil {
		t.Fatalf("expected session to remain closed")
	}
}

func TestSessionConnectionDropMidCommand(t *testing.T) {
	sess, server, r := newPipeSession(t)

	go func() {
		io.WriteString(server, "* OK Ready\r\n")
		r.ReadString('\n') // SELECT INBOX
		server.Close()
	}()

	ctx := context.Background()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	err := sess.Select(ctx, "INBOX")
	if err == nil {
		t.Fatalf("expected ConnectionClosed")
	}
	if err.Error() != "Connection closed by server." {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSessionAuthenticatePlainSASL(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	lineCh := make(chan string, 1)
	go func() {
		io.WriteString(server, "* OK Ready\r\n")
		line, _ := r.ReadString('\n')
		lineCh <- line
		io.WriteString(server, "A0001 OK AUTHENTICATE completed\r\n")
	}()

	ctx := context.Background()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	client := mech.NewPlainClient("", "user", "pass")
	if err := sess.Authenticate(ctx, client); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	line := <-lineCh
	const prefix = "A0001 AUTHENTICATE PLAIN "
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

func TestSessionTagMonotonicity(t *testing.T) {
	sess, server, r := newPipeSession(t)
	defer server.Close()

	const n = 5
	go func() {
		io.WriteString(server, "* OK Ready\r\n")
		for i := 1; i <= n; i++ {
			r.ReadString('\n')
			io.WriteString(server, fmt.Sprintf("A%04d OK CAPABILITY completed\r\n", i))
		}
	}()

	ctx := context.Background()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		tag := sess.nextTag()
		if seen[tag] {
			t.Fatalf("duplicate tag %q", tag)
		}
		seen[tag] = true
		if want := fmt.Sprintf("A%04d", i+1); tag != want {
			t.Fatalf("tag %d: got %q want %q", i, tag, want)
		}
		if _, _, err := sess.execute(ctx, buildCapability(tag)); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}
}
