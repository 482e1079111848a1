// Package secret implements the IMAP authentication-secret redactor
// (spec C6): a byte-streaming classifier that marks which ranges of an
// outbound write carry LOGIN or AUTHENTICATE credential bytes, so a
// caller can skip logging or telemetering them.
//
// The classifier is adapted from the teacher's imap.Filter
// (internal/imap/filter.go): that type returns a small decision value
// (Allow/Block/Rewrite) for one parsed inbound command line. Span does
// the same kind of thing — a structured verdict rather than a boolean —
// but streamed byte-by-byte over outbound writes instead of decided
// once per parsed line.
package secret

import "strings"

// Span is a half-open byte range, relative to the offset passed to
// Classify, that must not be logged or telemetered.
type Span struct {
	Start  int
	Length int
}

type state int

const (
	stTag state = iota
	stVerb
	stSkipSpaceBeforeArg
	stLoginAtom
	stLoginQString
	stLoginQStringEscape
	stAfterArgWaitSep
	stLoginLiteralDigits
	stLoginLiteralAwaitLF
	stLoginLiteralPayload
	stAuthMech
	stAuthIRStart
	stAuthIR
	stAuthContinuation
	stPassthroughLine
)

// Redactor is a per-session, stateful classifier. It must be driven
// exclusively by the session's command dispatcher: SetAuthenticating
// is called true right before a LOGIN/AUTHENTICATE command is
// serialized, and false once the session knows the outcome (a tagged
// response for LOGIN, or SASL completion/failure for AUTHENTICATE).
type Redactor struct {
	authenticating bool
	state          state

	tokenBuf []byte
	argIndex int

	literalDigits    []byte
	literalNonSync   bool
	literalRemaining int64
}

// SetAuthenticating toggles the redactor's active window. Going active
// resets the internal FSM to start scanning a fresh command's tag and
// verb.
func (r *Redactor) SetAuthenticating(active bool) {
	r.authenticating = active
	if active {
		r.state = stTag
		r.tokenBuf = nil
		r.argIndex = 0
	}
}

// IsAuthenticating reports the current window state.
func (r *Redactor) IsAuthenticating() bool { return r.authenticating }

// Classify scans buf[offset:offset+count] and returns the secret spans
// within it, relative to offset. Calling Classify once on a whole
// buffer or many times with arbitrary slice boundaries (including
// count==1) yields the same union of spans — the FSM advances exactly
// one byte at a time internally regardless of call granularity.
func (r *Redactor) Classify(buf []byte, offset, count int) []Span {
	var spans []Span
	runStart := -1
	for i := 0; i < count; i++ {
		b := buf[offset+i]
		if r.step(b) {
			if runStart == -1 {
				runStart = i
			}
		} else if runStart != -1 {
			spans = append(spans, Span{Start: runStart, Length: i - runStart})
			runStart = -1
		}
	}
	if runStart != -1 {
		spans = append(spans, Span{Start: runStart, Length: count - runStart})
	}
	return spans
}

// step advances the FSM by one byte and reports whether that byte is
// secret.
func (r *Redactor) step(b byte) bool {
	if !r.authenticating {
		return false
	}

	switch r.state {
	case stTag:
		if b == ' ' {
			r.state = stVerb
			r.tokenBuf = r.tokenBuf[:0]
		}
		return false

	case stVerb:
		if b == ' ' || b == '\r' || b == '\n' {
			verb := strings.ToUpper(string(r.tokenBuf))
			switch verb {
			case "LOGIN":
				r.argIndex = 0
				if b == ' ' {
					r.state = stSkipSpaceBeforeArg
				} else {
					r.state = stPassthroughLine
				}
			case "AUTHENTICATE":
				if b == ' ' {
					r.state = stAuthMech
					r.tokenBuf = r.tokenBuf[:0]
				} else {
					r.state = stPassthroughLine
				}
			default:
				r.state = stPassthroughLine
			}
			return false
		}
		r.tokenBuf = append(r.tokenBuf, b)
		return false

	case stSkipSpaceBeforeArg:
		switch {
		case b == ' ':
			return false
		case b == '"':
			r.state = stLoginQString
			return false
		case b == '{':
			r.state = stLoginLiteralDigits
			r.literalDigits = r.literalDigits[:0]
			r.literalNonSync = false
			return false
		default:
			r.state = stLoginAtom
			return true
		}

	case stLoginAtom:
		if b == ' ' || b == '\r' || b == '\n' {
			r.advanceLoginArgNoSep()
			return false
		}
		return true

	case stLoginQString:
		if b == '\\' {
			r.state = stLoginQStringEscape
			return true
		}
		if b == '"' {
			r.state = stAfterArgWaitSep
			return false
		}
		return true

	case stLoginQStringEscape:
		r.state = stLoginQString
		return true

	case stAfterArgWaitSep:
		if b == ' ' || b == '\r' || b == '\n' {
			r.advanceLoginArgNoSep()
		}
		return false

	case stLoginLiteralDigits:
		switch {
		case b >= '0' && b <= '9':
			r.literalDigits = append(r.literalDigits, b)
			return false
		case b == '+' && len(r.literalDigits) > 0:
			r.literalNonSync = true
			return false
		case b == '}':
			r.literalRemaining = parseDigits(r.literalDigits)
			r.state = stLoginLiteralAwaitLF
			return false
		default:
			return false
		}

	case stLoginLiteralAwaitLF:
		if b == '\n' {
			if r.literalRemaining <= 0 {
				r.advanceLoginArgNoSep()
			} else {
				r.state = stLoginLiteralPayload
			}
		}
		return false

	case stLoginLiteralPayload:
		r.literalRemaining--
		if r.literalRemaining <= 0 {
			r.advanceLoginArgNoSep()
		}
		return true

	case stAuthMech:
		if b == ' ' || b == '\r' || b == '\n' {
			if b == ' ' {
				r.state = stAuthIRStart
			} else {
				r.state = stAuthContinuation
			}
			return false
		}
		r.tokenBuf = append(r.tokenBuf, b)
		return false

	case stAuthIRStart:
		if b == '\r' || b == '\n' {
			r.state = stAuthContinuation
			return false
		}
		r.state = stAuthIR
		return true

	case stAuthIR:
		if b == '\r' || b == '\n' {
			r.state = stAuthContinuation
			return false
		}
		return true

	case stAuthContinuation:
		if b == '\r' || b == '\n' {
			return false
		}
		return true

	case stPassthroughLine:
		if b == '\n' {
			r.state = stTag
			r.tokenBuf = nil
		}
		return false
	}
	return false
}

// advanceLoginArgNoSep moves to the next LOGIN argument, or to
// line-passthrough once both have been consumed, without itself
// consuming a separator byte (used when a literal's length alone
// determines the argument boundary).
func (r *Redactor) advanceLoginArgNoSep() {
	if r.argIndex == 0 {
		r.argIndex = 1
		r.state = stSkipSpaceBeforeArg
		return
	}
	r.state = stPassthroughLine
}

func parseDigits(d []byte) int64 {
	var n int64
	for _, c := range d {
		n = n*10 + int64(c-'0')
	}
	return n
}
