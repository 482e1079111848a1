package secret

import (
	"bytes"
	"testing"
)

func classifyWhole(t *testing.T, buf []byte) []Span {
	t.Helper()
	var r Redactor
	r.SetAuthenticating(true)
	return r.Classify(buf, 0, len(buf))
}

func classifyByteByByte(t *testing.T, buf []byte) []Span {
	t.Helper()
	var r Redactor
	r.SetAuthenticating(true)
	var spans []Span
	// Merge adjacent 1-byte spans the same way Classify would merge a
	// contiguous run, so whole-buffer and byte-by-byte calls compare
	// equal.
	for i := range buf {
		got := r.Classify(buf, i, 1)
		for _, s := range got {
			abs := i + s.Start
			if n := len(spans); n > 0 && spans[n-1].Start+spans[n-1].Length == abs {
				spans[n-1].Length += s.Length
			} else {
				spans = append(spans, Span{Start: abs, Length: s.Length})
			}
		}
	}
	return spans
}

func assertSpansEqual(t *testing.T, got, want []Span) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("span count mismatch: got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("span %d mismatch: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestRedactorLoginAtoms(t *testing.T) {
	buf := []byte("A0001 LOGIN user pass\r\n")
	spans := classifyWhole(t, buf)
	// "user" occupies [12,16); "pass" occupies [17,21).
	assertSpansEqual(t, spans, []Span{{12, 4}, {17, 4}})
}

func TestRedactorLoginQuotedWithEscapes(t *testing.T) {
	buf := []byte(`A0001 LOGIN "us\"er" "pa\\ss"` + "\r\n")
	spans := classifyWhole(t, buf)
	if len(spans) != 2 {
		t.Fatalf("want 2 spans, got %v", spans)
	}
	// The delimiting quotes stay outside each span; the escape sequences
	// between them are part of the secret.
	want := []string{`us\"er`, `pa\\ss`}
	for i, s := range spans {
		content := buf[s.Start : s.Start+s.Length]
		if !bytes.Equal(content, []byte(want[i])) {
			t.Fatalf("span %d = %q, want %q (delimiting quotes must not be classified as secret)", i, content, want[i])
		}
	}
}

func TestRedactorLoginSynchronizingLiteral(t *testing.T) {
	var r Redactor
	r.SetAuthenticating(true)

	line := []byte("A0001 LOGIN {4}\r\n")
	spans := r.Classify(line, 0, len(line))
	if len(spans) != 0 {
		t.Fatalf("literal marker itself must not be secret, got %v", spans)
	}

	// Continuation "+ \r\n" arrives from the server; the client then
	// writes the literal payload as a separate write.
	payload := []byte("user")
	spans = r.Classify(payload, 0, len(payload))
	assertSpansEqual(t, spans, []Span{{0, 4}})

	rest := []byte(" pass\r\n")
	spans = r.Classify(rest, 0, len(rest))
	assertSpansEqual(t, spans, []Span{{1, 4}})
}

func TestRedactorNonSynchronizingLiteral(t *testing.T) {
	var r Redactor
	r.SetAuthenticating(true)

	line := []byte("A0001 LOGIN {4+}\r\nuser {4+}\r\npass\r\n")
	spans := r.Classify(line, 0, len(line))
	assertSpansEqual(t, spans, []Span{
		{18, 4}, // "user"
		{29, 4}, // "pass"
	})
}

func TestRedactorAuthenticateSASLIR(t *testing.T) {
	var r Redactor
	r.SetAuthenticating(true)
	buf := []byte("A0002 AUTHENTICATE PLAIN AGFsaWNlAHBhc3M=\r\n")
	spans := r.Classify(buf, 0, len(buf))
	if len(spans) != 1 {
		t.Fatalf("want 1 span for the initial response, got %v", spans)
	}
	got := string(buf[spans[0].Start : spans[0].Start+spans[0].Length])
	if got != "AGFsaWNlAHBhc3M=" {
		t.Fatalf("unexpected IR span content: %q", got)
	}
}

func TestRedactorAuthenticateMultiLineChallenge(t *testing.T) {
	var r Redactor
	r.SetAuthenticating(true)

	first := []byte("A0003 AUTHENTICATE LOGIN\r\n")
	if spans := r.Classify(first, 0, len(first)); len(spans) != 0 {
		t.Fatalf("mechanism name must not be secret, got %v", spans)
	}

	// Server challenges are not fed through the redactor (it only sees
	// client writes); each subsequent client line is fully secret.
	resp1 := []byte("dXNlcg==\r\n")
	assertSpansEqual(t, r.Classify(resp1, 0, len(resp1)), []Span{{0, 8}})

	resp2 := []byte("cGFzcw==\r\n")
	assertSpansEqual(t, r.Classify(resp2, 0, len(resp2)), []Span{{0, 8}})

	r.SetAuthenticating(false)
	idle := []byte("A0004 NOOP\r\n")
	if spans := r.Classify(idle, 0, len(idle)); len(spans) != 0 {
		t.Fatalf("classifier must be silent once authentication window closes, got %v", spans)
	}
}

func TestRedactorByteByByteEquivalence(t *testing.T) {
	cases := [][]byte{
		[]byte("A0001 LOGIN user pass\r\n"),
		[]byte(`A0001 LOGIN "us\"er" "pa\\ss"` + "\r\n"),
		[]byte("A0001 LOGIN {4}\r\nuser pass\r\n"),
		[]byte("A0001 LOGIN {4+}\r\nuser {4+}\r\npass\r\n"),
		[]byte("A0002 AUTHENTICATE PLAIN AGFsaWNlAHBhc3M=\r\n"),
		[]byte("A0003 AUTHENTICATE LOGIN\r\ndXNlcg==\r\ncGFzcw==\r\n"),
	}
	for _, buf := range cases {
		whole := classifyWhole(t, buf)
		byByte := classifyByteByByte(t, buf)
		assertSpansEqual(t, byByte, whole)
	}
}
