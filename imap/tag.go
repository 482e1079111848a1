package imap

import "fmt"

// TagAllocator mints monotonic, session-lifetime-unique command tags in
// the "A%04d" shape the teacher's Command.Tag parsing expects on the
// way in; here we mint them on the way out.
type TagAllocator struct {
	counter uint32
}

// Next returns the next tag, starting at "A0001".
func (t *TagAllocator) Next() string {
	t.counter++
	return fmt.Sprintf("A%04d", t.counter)
}
