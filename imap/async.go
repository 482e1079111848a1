package imap

import (
	"context"
	"sync"

	"mailproto/mailerr"
)

// AsyncSession is the cooperative flavor of Session (C9): it guards a
// single blocking Session so that at most one operation is in flight at
// a time, and turns context cancellation into a hard abort by closing
// the transport rather than leaving a goroutine blocked on it forever.
// It is grounded on the teacher's runPostAuth cleanup pattern in
// internal/proxy/session.go — one sync.Once guarding the transport
// close, reached from either side of a select.
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

// Do serializes op against any other in-flight call on this session and
// races it against ctx. If ctx is cancelled first, the transport is
// closed so op's blocked read/write unblocks with a ConnectionClosed
// rather than leaking the goroutine; Do waits for op to return, discards
// its error, and returns ctx.Err().
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
		<-done // op observes the closed transport and returns; discard its error.
		a.closed = true
		return ctx.Err()
	}
}

func (a *AsyncSession) Connect(ctx context.Context) error {
	return a.Do(ctx, func(s *Session) error { return s.Connect(ctx) })
}

func (a *AsyncSession) Login(ctx context.Context, user, pass string) error {
	return a.Do(ctx, func(s *Session) error { return s.Login(ctx, user, pass) })
}

func (a *AsyncSession) Select(ctx context.Context, mailbox string) error {
	return a.Do(ctx, func(s *Session) error { return s.Select(ctx, mailbox) })
}

func (a *AsyncSession) Fetch(ctx context.Context, set, attrs string) ([]PayloadFetch, error) {
	var out []PayloadFetch
	err := a.Do(ctx, func(s *Session) error {
		var fetchErr error
		out, fetchErr = s.Fetch(ctx, set, attrs)
		return fetchErr
	})
	return out, err
}

func (a *AsyncSession) Search(ctx context.Context, criteria string) ([]uint32, error) {
	var out []uint32
	err := a.Do(ctx, func(s *Session) error {
		var searchErr error
		out, searchErr = s.Search(ctx, criteria)
		return searchErr
	})
	return out, err
}

func (a *AsyncSession) Logout(ctx context.Context) error {
	err := a.Do(ctx, func(s *Session) error { return s.Logout(ctx) })
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return err
}

// Close releases the underlying transport without running a LOGOUT
// round-trip, for callers tearing down after a failed or cancelled Do.
func (a *AsyncSession) Close() error {
	a.abort()
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}
