package imap

import "strings"

// AccessMode selects SELECT vs EXAMINE (spec.md §4.6).
type AccessMode int

const (
	ReadWrite AccessMode = iota // SELECT
	ReadOnly                    // EXAMINE
)

func buildCapability(tag string) Command {
	return newBuilder(tag, "CAPABILITY").build()
}

func buildLogin(tag, user, pass string) Command {
	b := newBuilder(tag, "LOGIN")
	for _, arg := range []string{user, pass} {
		if isPlainAtom(arg) {
			b.atom(arg)
		} else {
			b.quotedOrLiteral(arg)
		}
	}
	return b.build()
}

// isPlainAtom reports whether s can go on the wire as a bare IMAP atom.
func isPlainAtom(s string) bool {
	if s == "" || strings.ContainsAny(s, "(){ %*\"\\]") {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= 0x20 || s[i] >= 0x7f {
			return false
		}
	}
	return true
}

// buildAuthenticateStart serializes "TAG AUTHENTICATE MECH [initial-response]".
// When ir is non-nil, it is sent as a SASL-IR base64 token inline.
func buildAuthenticateStart(tag, mech string, ir []byte) Command {
	b := newBuilder(tag, "AUTHENTICATE")
	b.atom(strings.ToUpper(mech))
	if ir != nil {
		b.atom(base64Encode(ir))
	}
	return b.build()
}

// buildContinuationLine serializes a bare SASL response line (no tag),
// used to answer an AUTHENTICATE continuation challenge.
func buildContinuationLine(resp []byte) []byte {
	line := base64Encode(resp)
	return append([]byte(line), '\r', '\n')
}

func buildSelectOrExamine(tag, mailbox string, mode AccessMode) Command {
	verb := "SELECT"
	if mode == ReadOnly {
		verb = "EXAMINE"
	}
	b := newBuilder(tag, verb)
	b.quotedOrLiteral(mailbox)
	return b.build()
}

func buildID(tag string, params map[string]*string) Command {
	b := newBuilder(tag, "ID")
	if params == nil {
		b.sp().raw("NIL")
		return b.build()
	}
	b.listOpen()
	for i, k := range sortedKeys(params) {
		if i > 0 {
			b.sp()
		}
		b.buf.WriteString(quoteIMAPString(k))
		b.sp()
		b.nilOrRaw(params[k])
	}
	b.listClose()
	return b.build()
}

// nilOrRaw appends NIL or a quoted string without a leading separator
// beyond what the caller already wrote.
func (b *builder) nilOrRaw(s *string) *builder {
	if s == nil {
		b.buf.WriteString("NIL")
		return b
	}
	b.buf.WriteString(quoteIMAPString(*s))
	return b
}

func sortedKeys(m map[string]*string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// sort lexically so the serialized order is deterministic.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func buildList(tag, ref, pattern string) Command {
	b := newBuilder(tag, "LIST")
	b.quotedOrLiteral(ref)
	b.quotedOrLiteral(pattern)
	return b.build()
}

func buildLsub(tag, ref, pattern string) Command {
	b := newBuilder(tag, "LSUB")
	b.quotedOrLiteral(ref)
	b.quotedOrLiteral(pattern)
	return b.build()
}

func buildNamespace(tag string) Command {
	return newBuilder(tag, "NAMESPACE").build()
}

func buildEnable(tag string, caps []string) Command {
	b := newBuilder(tag, "ENABLE")
	for _, c := range caps {
		b.atom(c)
	}
	return b.build()
}

func buildFetch(tag string, uid bool, set string, attrs string) Command {
	b := newBuilder(tag, fetchVerb(uid))
	b.atom(set)
	b.sp().raw(attrs)
	return b.build()
}

func fetchVerb(uid bool) string {
	if uid {
		return "UID FETCH"
	}
	return "FETCH"
}

func buildStore(tag string, uid bool, set, item string) Command {
	verb := "STORE"
	if uid {
		verb = "UID STORE"
	}
	b := newBuilder(tag, verb)
	b.atom(set)
	b.sp().raw(item)
	return b.build()
}

func buildSearch(tag string, uid bool, criteria string) Command {
	verb := "SEARCH"
	if uid {
		verb = "UID SEARCH"
	}
	b := newBuilder(tag, verb)
	b.sp().raw(criteria)
	return b.build()
}

func buildSort(tag string, uid bool, orderBy []OrderBy, criteria string) Command {
	verb := "SORT"
	if uid {
		verb = "UID SORT"
	}
	b := newBuilder(tag, verb)
	b.listOpen()
	for i, ob := range orderBy {
		if i > 0 {
			b.sp()
		}
		if ob.Reverse {
			b.buf.WriteString("REVERSE ")
		}
		b.buf.WriteString(ob.Column.String())
	}
	b.listClose()
	b.atom("UTF-8")
	b.sp().raw(criteria)
	return b.build()
}

func buildGetACL(tag, mailbox string) Command {
	b := newBuilder(tag, "GETACL")
	b.quotedOrLiteral(mailbox)
	return b.build()
}

func buildSetACL(tag, mailbox, identifier, rights string) Command {
	b := newBuilder(tag, "SETACL")
	b.quotedOrLiteral(mailbox)
	b.quotedOrLiteral(identifier)
	b.quotedOrLiteral(rights)
	return b.build()
}

func buildListRights(tag, mailbox, identifier string) Command {
	b := newBuilder(tag, "LISTRIGHTS")
	b.quotedOrLiteral(mailbox)
	b.quotedOrLiteral(identifier)
	return b.build()
}

func buildMyRights(tag, mailbox string) Command {
	b := newBuilder(tag, "MYRIGHTS")
	b.quotedOrLiteral(mailbox)
	return b.build()
}

func buildGetQuota(tag, root string) Command {
	b := newBuilder(tag, "GETQUOTA")
	b.quotedOrLiteral(root)
	return b.build()
}

func buildGetQuotaRoot(tag, mailbox string) Command {
	b := newBuilder(tag, "GETQUOTAROOT")
	b.quotedOrLiteral(mailbox)
	return b.build()
}

func buildGetAnnotation(tag, mailbox string, entries, attrs []string) Command {
	b := newBuilder(tag, "GETANNOTATION")
	b.quotedOrLiteral(mailbox)
	b.listOpen()
	for i, e := range entries {
		if i > 0 {
			b.buf.WriteByte(' ')
		}
		b.buf.WriteString(quoteIMAPString(e))
	}
	b.listClose()
	b.listOpen()
	for i, a := range attrs {
		if i > 0 {
			b.buf.WriteByte(' ')
		}
		b.buf.WriteString(quoteIMAPString(a))
	}
	b.listClose()
	return b.build()
}

// AnnotationSet is one (name, value) pair for SETANNOTATION; Value ==
// nil serializes as the bare NIL token (spec.md §4.6).
type AnnotationSet struct {
	Name  string
	Value *string
}

func buildSetAnnotation(tag, mailbox, entry string, sets []AnnotationSet) Command {
	b := newBuilder(tag, "SETANNOTATION")
	b.quotedOrLiteral(mailbox)
	b.quotedOrLiteral(entry)
	b.listOpen()
	for i, s := range sets {
		if i > 0 {
			b.buf.WriteByte(' ')
		}
		b.buf.WriteString(quoteIMAPString(s.Name))
		b.buf.WriteByte(' ')
		b.nilOrRaw(s.Value)
	}
	b.listClose()
	return b.build()
}

func buildGetMetadata(tag, mailbox string, entries []string) Command {
	b := newBuilder(tag, "GETMETADATA")
	b.quotedOrLiteral(mailbox)
	b.listOpen()
	for i, e := range entries {
		if i > 0 {
			b.buf.WriteByte(' ')
		}
		b.buf.WriteString(quoteIMAPString(e))
	}
	b.listClose()
	return b.build()
}

func buildSetMetadata(tag, mailbox string, sets []AnnotationSet) Command {
	b := newBuilder(tag, "SETMETADATA")
	b.quotedOrLiteral(mailbox)
	b.listOpen()
	for i, s := range sets {
		if i > 0 {
			b.buf.WriteByte(' ')
		}
		b.buf.WriteString(quoteIMAPString(s.Name))
		b.buf.WriteByte(' ')
		b.nilOrRaw(s.Value)
	}
	b.listClose()
	return b.build()
}

func buildCompress(tag, algorithm string) Command {
	b := newBuilder(tag, "COMPRESS")
	b.atom(strings.ToUpper(algorithm))
	return b.build()
}

func buildStartTLS(tag string) Command {
	return newBuilder(tag, "STARTTLS").build()
}

func buildLogout(tag string) Command {
	return newBuilder(tag, "LOGOUT").build()
}
