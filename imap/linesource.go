package imap

import (
	"bytes"
	"context"

	"mailproto/mailerr"
	"mailproto/transport"
)

// lineSource adapts a transport.Transport into the imapwire.Source
// shape (ReadLine/ReadLiteral), buffering whatever ReadAvailable hands
// back between calls so a logical line split across several reads
// still comes out whole. Grounded on the teacher's bufio.Reader-backed
// line reading in internal/proxy/session.go, generalized from "a
// bufio.Reader over a net.Conn" to "a byte slice fed by the Transport
// contract" so the same source works for both session flavors.
type lineSource struct {
	ctx      context.Context
	t        transport.Transport
	buf      []byte
	reads    int
	maxReads int
}

func newLineSource(ctx context.Context, t transport.Transport, maxReads int) *lineSource {
	return &lineSource{ctx: ctx, t: t, maxReads: maxReads}
}

func (s *lineSource) resetBudget() { s.reads = 0 }

func (s *lineSource) fill() error {
	if s.maxReads > 0 && s.reads >= s.maxReads {
		return &mailerr.TimedOut{}
	}
	chunk, err := s.t.ReadAvailable(s.ctx, 4096)
	s.reads++
	if err != nil {
		return err
	}
	if len(chunk) == 0 {
		return &mailerr.ConnectionClosed{Msg: "Connection closed by server."}
	}
	s.buf = append(s.buf, chunk...)
	return nil
}

// ReadLine returns the next CRLF-terminated line, delimiter included.
func (s *lineSource) ReadLine() ([]byte, error) {
	for {
		if idx := bytes.IndexByte(s.buf, '\n'); idx >= 0 {
			line := s.buf[:idx+1]
			s.buf = s.buf[idx+1:]
			return line, nil
		}
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
}

// ReadLiteral returns exactly n bytes.
func (s *lineSource) ReadLiteral(n int64) ([]byte, error) {
	for int64(len(s.buf)) < n {
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
	data := s.buf[:n]
	s.buf = s.buf[n:]
	return data, nil
}

// replayLine lets a line already pulled off a lineSource (to check for
// a "+" continuation, or to peek a tag) be fed into imapwire.Tokenize
// as if it had just been read.
type replayLine struct {
	first     []byte
	firstUsed bool
	rest      *lineSource
}

func (r *replayLine) ReadLine() ([]byte, error) {
	if !r.firstUsed {
		r.firstUsed = true
		return r.first, nil
	}
	return r.rest.ReadLine()
}

func (r *replayLine) ReadLiteral(n int64) ([]byte, error) {
	return r.rest.ReadLiteral(n)
}
