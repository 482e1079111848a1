package smtp

import (
	"context"
	"sync"

	"mailproto/mailerr"
)

// AsyncSession is SMTP's cooperative session flavor (C9), the same
// single-flight-plus-hard-abort wrapper as imap.AsyncSession.
type AsyncSession struct {
	sess *Session

	mu     sync.Mutex
	once   sync.Once
	closed bool
}

func NewAsyncSession(sess *Session) *AsyncSession {
	return &AsyncSession{sess: sess}
}

func (a *AsyncSession) abort() {
	a.once.Do(func() {
		a.sess.t.Close()
	})
}

func (a *AsyncSession) Do(ctx context.Context, op func(*Session) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return &mailerr.ConnectionClosed{Msg: "session already closed"}
	}

	done := make(chan error, 1)
	go func() { done <- op(a.sess) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.abort()
		<-done
		a.closed = true
		return ctx.Err()
	}
}

func (a *AsyncSession) Connect(ctx context.Context) (*Reply, error) {
	var out *Reply
	err := a.Do(ctx, func(s *Session) error {
		var connErr error
		out, connErr = s.Connect(ctx)
		return connErr
	})
	return out, err
}

func (a *AsyncSession) EHLO(ctx context.Context, host string) (*Reply, error) {
	var out *Reply
	err := a.Do(ctx, func(s *Session) error {
		var ehloErr error
		out, ehloErr = s.EHLO(ctx, host)
		return ehloErr
	})
	return out, err
}

func (a *AsyncSession) SendMailPipelined(ctx context.Context, from string, to []string, data []byte) (*Reply, error) {
	var out *Reply
	err := a.Do(ctx, func(s *Session) error {
		var sendErr error
		out, sendErr = s.SendMailPipelined(ctx, from, to, data)
		return sendErr
	})
	return out, err
}

func (a *AsyncSession) Quit(ctx context.Context) error {
	err := a.Do(ctx, func(s *Session) error { return s.Quit(ctx) })
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return err
}

func (a *AsyncSession) Close() error {
	a.abort()
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}
