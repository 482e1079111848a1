package imap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mailproto/imapwire"
	"mailproto/mailerr"
	"mailproto/secret"
	"mailproto/transport"
)

// MailboxState is the session's view of the currently selected mailbox,
// kept up to date by unsolicited EXISTS/RECENT pushes (spec.md §4.6).
type MailboxState struct {
	Name   string
	Mode   AccessMode
	Exists uint32
	Recent uint32
}

// Session is the blocking IMAP session flavor (C7): every operation
// runs on the caller's goroutine and blocks until its tagged response
// arrives. Concurrent calls on one Session are not supported, mirroring
// the teacher's single-goroutine-per-direction Session in
// internal/proxy/session.go — here collapsed to a single caller thread
// since there is no separate upstream/client pair to pump.
type Session struct {
	t      transport.Transport
	logger *slog.Logger

	tags TagAllocator
	src  *lineSource

	caps     CapabilitySet
	redactor secret.Redactor

	closed   bool
	closeErr error

	mailbox *MailboxState

	// MaxReads bounds read_available calls per command (spec.md §6);
	// zero means unbounded. Set before the first operation.
	MaxReads int

	// Events receives every untagged response as it is parsed, in
	// addition to it being attached to the in-flight command's result
	// (spec.md §9's fan-out note, decided in DESIGN.md).
	Events func(Untagged)
}

// NewSession wraps an already-constructed Transport. Callers still need
// to call Connect to open it and consume the greeting.
func NewSession(t transport.Transport, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		t:      t,
		logger: logger,
		caps:   CapabilitySet{},
	}
}

// Connect opens the transport and consumes the server's greeting line.
// A greeting of "* BYE ..." fails the session before any command is
// ever sent.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.t.Open(ctx); err != nil {
		return err
	}
	s.src = newLineSource(ctx, s.t, s.MaxReads)
	line, err := s.src.ReadLine()
	if err != nil {
		return s.fail(classifyReadErr(err))
	}
	toks, err := imapwire.Tokenize(&replayLine{first: line, rest: s.src})
	if err != nil {
		return s.fail(&mailerr.ProtocolViolation{Detail: err.Error()})
	}
	_, untagged, err := ParseResponse(toks)
	if err != nil {
		return s.fail(&mailerr.ProtocolViolation{Detail: err.Error()})
	}
	if untagged != nil {
		s.applyServerPush(*untagged)
		if s.closeErr != nil {
			return s.closeErr
		}
	}
	return nil
}

func (s *Session) Close() error {
	s.closed = true
	return s.t.Close()
}

// Capabilities returns the last-seen capability set (from greeting,
// CAPABILITY command, or a response code on any tagged reply).
func (s *Session) Capabilities() CapabilitySet { return s.caps }

// Mailbox returns the current SELECT/EXAMINE state, or nil before any
// mailbox has been selected.
func (s *Session) Mailbox() *MailboxState { return s.mailbox }

func classifyReadErr(err error) error {
	if _, ok := err.(*mailerr.ConnectionClosed); ok {
		return err
	}
	if _, ok := err.(*mailerr.TimedOut); ok {
		return err
	}
	if te, ok := err.(interface{ Timeout() bool }); ok && te.Timeout() {
		return &mailerr.TimedOut{}
	}
	return &mailerr.ConnectionClosed{Msg: err.Error()}
}

// fail records a connection-level failure as terminal: every subsequent
// operation on this session returns the same error (spec.md §7).
func (s *Session) fail(err error) error {
	if !s.closed {
		s.closed = true
		s.closeErr = err
	}
	return err
}

// applyServerPush updates session state for EXISTS/RECENT/EXPUNGE/BYE
// and folds CAPABILITY data in, regardless of whether a command is in
// flight (spec.md §4.6).
func (s *Session) applyServerPush(u Untagged) {
	switch u.Kind {
	case KindExists:
		if s.mailbox != nil {
			s.mailbox.Exists = u.Payload.(uint32)
		}
	case KindRecent:
		if s.mailbox != nil {
			s.mailbox.Recent = u.Payload.(uint32)
		}
	case KindExpunge:
		if s.mailbox != nil && s.mailbox.Exists > 0 {
			s.mailbox.Exists--
		}
	case KindCapability:
		s.caps.Add(u.Payload.([]string))
	case KindStatus:
		p := u.Payload.(PayloadStatus)
		if p.Code != nil && strings.EqualFold(p.Code.Keyword, "CAPABILITY") {
			s.caps.Add(p.Code.Args)
		}
		if p.BYE {
			msg := p.Text
			if msg == "" {
				msg = "Connection closed by server."
			}
			s.fail(&mailerr.ConnectionClosed{Msg: msg})
		}
	}
	if s.Events != nil {
		s.Events(u)
	}
}

// send writes every leg of cmd, waiting for a "+" continuation before
// each synchronizing literal and logging a redacted line when the
// session is mid-authentication.
func (s *Session) send(ctx context.Context, cmd Command) error {
	for i, line := range cmd.Lines {
		s.logLine(line)
		if _, err := s.t.Write(ctx, line); err != nil {
			return classifyWriteErr(err)
		}
		if i < len(cmd.Literals) {
			lit := cmd.Literals[i]
			if !lit.NonSync {
				if err := s.awaitContinuation(ctx); err != nil {
					return err
				}
			}
			if _, err := s.t.Write(ctx, lit.Bytes); err != nil {
				return classifyWriteErr(err)
			}
		}
	}
	return nil
}

func classifyWriteErr(err error) error {
	return &mailerr.ConnectionClosed{Msg: err.Error()}
}

func (s *Session) logLine(line []byte) {
	if !s.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	spans := s.redactor.Classify(line, 0, len(line))
	s.logger.Debug("imap >>", "line", redactSpans(line, spans))
}

func redactSpans(line []byte, spans []Span) string {
	if len(spans) == 0 {
		return strings.TrimRight(string(line), "\r\n")
	}
	out := make([]byte, 0, len(line))
	last := 0
	for _, sp := range spans {
		out = append(out, line[last:sp.Start]...)
		out = append(out, []byte("████")...)
		last = sp.Start + sp.Length
	}
	out = append(out, line[last:]...)
	return strings.TrimRight(string(out), "\r\n")
}

// Span re-exposes secret.Span so callers inspecting redactor output
// don't need to import the secret package directly.
type Span = secret.Span

// awaitContinuation blocks until the server sends "+ ...\r\n". A tagged
// rejection in its place (some servers refuse a literal outright)
// surfaces as CommandRejected instead of forcing the caller to send a
// payload the server already declined.
func (s *Session) awaitContinuation(ctx context.Context) error {
	line, err := s.src.ReadLine()
	if err != nil {
		return s.fail(classifyReadErr(err))
	}
	if len(line) > 0 && line[0] == '+' {
		return nil
	}
	toks, err := imapwire.Tokenize(&replayLine{first: line, rest: s.src})
	if err != nil {
		return s.fail(&mailerr.ProtocolViolation{Detail: err.Error()})
	}
	tagged, untagged, err := ParseResponse(toks)
	if err != nil {
		return s.fail(&mailerr.ProtocolViolation{Detail: err.Error()})
	}
	if untagged != nil {
		s.applyServerPush(*untagged)
		return s.awaitContinuation(ctx)
	}
	return &mailerr.CommandRejected{Status: tagged.Status.String(), Code: codeKeyword(tagged.Code), Text: tagged.Text}
}

func codeKeyword(c *ResponseCode) string {
	if c == nil {
		return ""
	}
	return c.Keyword
}

// readUntil reads response lines until tag's tagged completion arrives,
// attaching every untagged response seen along the way.
func (s *Session) readUntil(ctx context.Context, tag string) (*Tagged, []Untagged, error) {
	var collected []Untagged
	for {
		line, err := s.src.ReadLine()
		if err != nil {
			return nil, collected, s.fail(classifyReadErr(err))
		}
		if len(line) > 0 && line[0] == '+' {
			// A stray continuation outside literal handling: ignore.
			continue
		}
		toks, err := imapwire.Tokenize(&replayLine{first: line, rest: s.src})
		if err != nil {
			return nil, collected, s.fail(&mailerr.ProtocolViolation{Detail: err.Error()})
		}
		tagged, untagged, err := ParseResponse(toks)
		if err != nil {
			return nil, collected, s.fail(&mailerr.ProtocolViolation{Detail: err.Error()})
		}
		if untagged != nil {
			collected = append(collected, *untagged)
			s.applyServerPush(*untagged)
			if s.closeErr != nil {
				return nil, collected, s.closeErr
			}
			continue
		}
		if tagged.Tag != tag {
			return nil, collected, s.fail(&mailerr.ProtocolViolation{Detail: fmt.Sprintf("unexpected tag %q, want %q", tagged.Tag, tag)})
		}
		return tagged, collected, nil
	}
}

// execute drives one full command/response round trip: serialize,
// send, wait for the matching tag, and translate a non-OK completion
// into CommandRejected. NO/BAD never marks the session closed on their
// own (spec.md §7) — only transport/protocol failures or a BYE do,
// both of which are funneled through s.fail before reaching here.
func (s *Session) execute(ctx context.Context, cmd Command) (*Tagged, []Untagged, error) {
	if s.closed {
		return nil, nil, s.closeErr
	}
	s.src.maxReads = s.MaxReads
	s.src.resetBudget()

	if err := s.send(ctx, cmd); err != nil {
		return nil, nil, s.fail(err)
	}
	tagged, untagged, err := s.readUntil(ctx, cmd.Tag)
	if err != nil {
		return nil, untagged, err
	}
	if tagged.Code != nil && strings.EqualFold(tagged.Code.Keyword, "CAPABILITY") {
		s.caps.Add(tagged.Code.Args)
	}
	if tagged.Status != StatusOK {
		return tagged, untagged, &mailerr.CommandRejected{
			Status: tagged.Status.String(),
			Code:   codeKeyword(tagged.Code),
			Text:   tagged.Text,
		}
	}
	return tagged, untagged, nil
}

func (s *Session) nextTag() string { return s.tags.Next() }

// Capability issues CAPABILITY and returns the updated set.
func (s *Session) Capability(ctx context.Context) (CapabilitySet, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildCapability(tag))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindCapability {
			s.caps.Add(u.Payload.([]string))
		}
	}
	return s.caps, nil
}

// Login authenticates with a plaintext username/password, redacting
// both on the wire log for the duration of the command.
func (s *Session) Login(ctx context.Context, user, pass string) error {
	s.redactor.SetAuthenticating(true)
	defer s.redactor.SetAuthenticating(false)
	tag := s.nextTag()
	_, _, err := s.execute(ctx, buildLogin(tag, user, pass))
	return err
}

// Authenticate drives one SASL AUTHENTICATE exchange (spec.md §4.3/§4.6).
// client supplies the mechanism name via Start and answers each base64
// challenge via Next; the wire bytes are redacted for the whole exchange.
func (s *Session) Authenticate(ctx context.Context, client SASLClient) error {
	mech, ir, err := client.Start()
	if err != nil {
		return err
	}
	s.redactor.SetAuthenticating(true)
	defer s.redactor.SetAuthenticating(false)

	tag := s.nextTag()
	cmd := buildAuthenticateStart(tag, mech, ir)
	if s.closed {
		return s.closeErr
	}
	s.src.maxReads = s.MaxReads
	s.src.resetBudget()
	if err := s.send(ctx, cmd); err != nil {
		return s.fail(err)
	}

	for {
		line, err := s.src.ReadLine()
		if err != nil {
			return s.fail(classifyReadErr(err))
		}
		if len(line) > 0 && line[0] == '+' {
			challenge, decodeErr := decodeContinuation(line)
			if decodeErr != nil {
				return s.fail(&mailerr.ProtocolViolation{Detail: decodeErr.Error()})
			}
			resp, nextErr := client.Next(challenge)
			if nextErr != nil {
				return nextErr
			}
			out := buildContinuationLine(resp)
			s.logLine(out)
			if _, werr := s.t.Write(ctx, out); werr != nil {
				return s.fail(classifyWriteErr(werr))
			}
			continue
		}
		toks, terr := imapwire.Tokenize(&replayLine{first: line, rest: s.src})
		if terr != nil {
			return s.fail(&mailerr.ProtocolViolation{Detail: terr.Error()})
		}
		tagged, untagged, perr := ParseResponse(toks)
		if perr != nil {
			return s.fail(&mailerr.ProtocolViolation{Detail: perr.Error()})
		}
		if untagged != nil {
			s.applyServerPush(*untagged)
			if s.closeErr != nil {
				return s.closeErr
			}
			continue
		}
		if tagged.Tag != tag {
			return s.fail(&mailerr.ProtocolViolation{Detail: fmt.Sprintf("unexpected tag %q during AUTHENTICATE", tagged.Tag)})
		}
		if tagged.Status != StatusOK {
			return &mailerr.AuthenticationFailed{ServerReply: tagged.Text}
		}
		return nil
	}
}

func decodeContinuation(line []byte) ([]byte, error) {
	s := strings.TrimRight(string(line), "\r\n")
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return base64Decode(s)
}

func (s *Session) selectOrExamine(ctx context.Context, mailbox string, mode AccessMode) error {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildSelectOrExamine(tag, mailbox, mode))
	if err != nil {
		return err
	}
	mb := &MailboxState{Name: mailbox, Mode: mode}
	for _, u := range untagged {
		switch u.Kind {
		case KindExists:
			mb.Exists = u.Payload.(uint32)
		case KindRecent:
			mb.Recent = u.Payload.(uint32)
		}
	}
	s.mailbox = mb
	return nil
}

func (s *Session) Select(ctx context.Context, mailbox string) error {
	return s.selectOrExamine(ctx, mailbox, ReadWrite)
}

func (s *Session) Examine(ctx context.Context, mailbox string) error {
	return s.selectOrExamine(ctx, mailbox, ReadOnly)
}

// ID exchanges client/server identification parameters (spec.md §4.3/§8).
func (s *Session) ID(ctx context.Context, params map[string]*string) (*PayloadIDParams, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildID(tag, params))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindID {
			return u.Payload.(*PayloadIDParams), nil
		}
	}
	return newIDParams(), nil
}

func (s *Session) List(ctx context.Context, ref, pattern string) ([]PayloadListEntry, error) {
	return s.listLike(ctx, buildList(s.nextTag(), ref, pattern), KindList)
}

func (s *Session) Lsub(ctx context.Context, ref, pattern string) ([]PayloadListEntry, error) {
	return s.listLike(ctx, buildLsub(s.nextTag(), ref, pattern), KindLSub)
}

func (s *Session) listLike(ctx context.Context, cmd Command, kind UntaggedKind) ([]PayloadListEntry, error) {
	_, untagged, err := s.execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	var out []PayloadListEntry
	for _, u := range untagged {
		if u.Kind == kind {
			out = append(out, u.Payload.(PayloadListEntry))
		}
	}
	return out, nil
}

func (s *Session) Namespace(ctx context.Context) (*PayloadNamespace, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildNamespace(tag))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindNamespace {
			p := u.Payload.(PayloadNamespace)
			return &p, nil
		}
	}
	return &PayloadNamespace{}, nil
}

func (s *Session) Enable(ctx context.Context, caps []string) ([]string, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildEnable(tag, caps))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindEnabled {
			return u.Payload.(PayloadEnabled).Capabilities, nil
		}
	}
	return nil, nil
}

func (s *Session) fetchLike(ctx context.Context, uid bool, set, attrs string) ([]PayloadFetch, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildFetch(tag, uid, set, attrs))
	if err != nil {
		return nil, err
	}
	var out []PayloadFetch
	for _, u := range untagged {
		if u.Kind == KindFetch {
			out = append(out, u.Payload.(PayloadFetch))
		}
	}
	return out, nil
}

func (s *Session) Fetch(ctx context.Context, set, attrs string) ([]PayloadFetch, error) {
	return s.fetchLike(ctx, false, set, attrs)
}

func (s *Session) UIDFetch(ctx context.Context, set, attrs string) ([]PayloadFetch, error) {
	return s.fetchLike(ctx, true, set, attrs)
}

func (s *Session) store(ctx context.Context, uid bool, set, item string) ([]PayloadFetch, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildStore(tag, uid, set, item))
	if err != nil {
		return nil, err
	}
	var out []PayloadFetch
	for _, u := range untagged {
		if u.Kind == KindFetch {
			out = append(out, u.Payload.(PayloadFetch))
		}
	}
	return out, nil
}

func (s *Session) Store(ctx context.Context, set, item string) ([]PayloadFetch, error) {
	return s.store(ctx, false, set, item)
}

func (s *Session) UIDStore(ctx context.Context, set, item string) ([]PayloadFetch, error) {
	return s.store(ctx, true, set, item)
}

func (s *Session) search(ctx context.Context, uid bool, criteria string) ([]uint32, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildSearch(tag, uid, criteria))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindSearch {
			return u.Payload.(PayloadSearch).IDs, nil
		}
	}
	return nil, nil
}

func (s *Session) Search(ctx context.Context, criteria string) ([]uint32, error) {
	return s.search(ctx, false, criteria)
}

func (s *Session) UIDSearch(ctx context.Context, criteria string) ([]uint32, error) {
	return s.search(ctx, true, criteria)
}

// sort validates the requested order-by columns against the
// last-seen capability set before serializing a single byte, per
// spec.md §4.6's SORT gating rule.
func (s *Session) sort(ctx context.Context, uid bool, orderBy []OrderBy, criteria string) ([]uint32, error) {
	if err := gateSort(s.caps, orderBy); err != nil {
		return nil, err
	}
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildSort(tag, uid, orderBy, criteria))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindSort {
			return u.Payload.(PayloadSearch).IDs, nil
		}
	}
	return nil, nil
}

func (s *Session) Sort(ctx context.Context, orderBy []OrderBy, criteria string) ([]uint32, error) {
	return s.sort(ctx, false, orderBy, criteria)
}

func (s *Session) UIDSort(ctx context.Context, orderBy []OrderBy, criteria string) ([]uint32, error) {
	return s.sort(ctx, true, orderBy, criteria)
}

func (s *Session) GetACL(ctx context.Context, mailbox string) (*PayloadACL, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildGetACL(tag, mailbox))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindACL {
			p := u.Payload.(PayloadACL)
			return &p, nil
		}
	}
	return &PayloadACL{Mailbox: mailbox}, nil
}

func (s *Session) SetACL(ctx context.Context, mailbox, identifier, rights string) error {
	tag := s.nextTag()
	_, _, err := s.execute(ctx, buildSetACL(tag, mailbox, identifier, rights))
	return err
}

func (s *Session) ListRights(ctx context.Context, mailbox, identifier string) (*PayloadListRights, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildListRights(tag, mailbox, identifier))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindListRights {
			p := u.Payload.(PayloadListRights)
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Session) MyRights(ctx context.Context, mailbox string) (*PayloadMyRights, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildMyRights(tag, mailbox))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindMyRights {
			p := u.Payload.(PayloadMyRights)
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Session) GetQuota(ctx context.Context, root string) (*PayloadQuota, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildGetQuota(tag, root))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindQuota {
			p := u.Payload.(PayloadQuota)
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Session) GetQuotaRoot(ctx context.Context, mailbox string) (*PayloadQuotaRoot, []PayloadQuota, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildGetQuotaRoot(tag, mailbox))
	if err != nil {
		return nil, nil, err
	}
	var root *PayloadQuotaRoot
	var quotas []PayloadQuota
	for _, u := range untagged {
		switch u.Kind {
		case KindQuotaRoot:
			p := u.Payload.(PayloadQuotaRoot)
			root = &p
		case KindQuota:
			quotas = append(quotas, u.Payload.(PayloadQuota))
		}
	}
	return root, quotas, nil
}

func (s *Session) GetAnnotation(ctx context.Context, mailbox string, entries, attrs []string) (*PayloadAnnotation, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildGetAnnotation(tag, mailbox, entries, attrs))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindAnnotation {
			p := u.Payload.(PayloadAnnotation)
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Session) SetAnnotation(ctx context.Context, mailbox, entry string, sets []AnnotationSet) error {
	tag := s.nextTag()
	_, _, err := s.execute(ctx, buildSetAnnotation(tag, mailbox, entry, sets))
	return err
}

func (s *Session) GetMetadata(ctx context.Context, mailbox string, entries []string) (*PayloadMetadata, error) {
	tag := s.nextTag()
	_, untagged, err := s.execute(ctx, buildGetMetadata(tag, mailbox, entries))
	if err != nil {
		return nil, err
	}
	for _, u := range untagged {
		if u.Kind == KindMetadata {
			p := u.Payload.(PayloadMetadata)
			return &p, nil
		}
	}
	return nil, nil
}

func (s *Session) SetMetadata(ctx context.Context, mailbox string, sets []AnnotationSet) error {
	tag := s.nextTag()
	_, _, err := s.execute(ctx, buildSetMetadata(tag, mailbox, sets))
	return err
}

// Compress upgrades the session's transport to COMPRESS=DEFLATE,
// swapping s.t only after the server accepts (spec.md §4.10).
func (s *Session) Compress(ctx context.Context, algorithm string) error {
	if !s.caps.Has("COMPRESS=DEFLATE") {
		return &mailerr.CapabilityMissing{Name: "COMPRESS=DEFLATE"}
	}
	comp, ok := s.t.(transport.Compressor)
	if !ok {
		return &mailerr.FeatureUnavailable{Name: "compression"}
	}
	tag := s.nextTag()
	_, _, err := s.execute(ctx, buildCompress(tag, algorithm))
	if err != nil {
		return err
	}
	if len(s.src.buf) != 0 {
		return s.fail(&mailerr.ProtocolViolation{Detail: "plaintext bytes buffered across COMPRESS handoff"})
	}
	next, err := comp.StartCompression(ctx, algorithm)
	if err != nil {
		return err
	}
	s.t = next
	s.src = newLineSource(ctx, s.t, s.MaxReads)
	return nil
}

// StartTLS upgrades the session's transport in place, per spec.md
// §4.10's "replace the Transport reference atomically" rule.
func (s *Session) StartTLS(ctx context.Context, validateCertificate bool) error {
	up, ok := s.t.(transport.TLSUpgrader)
	if !ok {
		return &mailerr.FeatureUnavailable{Name: "STARTTLS"}
	}
	tag := s.nextTag()
	_, _, err := s.execute(ctx, buildStartTLS(tag))
	if err != nil {
		return err
	}
	if len(s.src.buf) != 0 {
		return s.fail(&mailerr.ProtocolViolation{Detail: "plaintext bytes buffered across STARTTLS handoff"})
	}
	next, err := up.StartTLS(ctx, validateCertificate)
	if err != nil {
		return s.fail(&mailerr.TLSUpgradeFailed{Msg: err.Error()})
	}
	s.t = next
	s.src = newLineSource(ctx, s.t, s.MaxReads)
	s.caps = CapabilitySet{}
	return nil
}

// Logout sends LOGOUT and closes the transport regardless of outcome.
func (s *Session) Logout(ctx context.Context) error {
	tag := s.nextTag()
	_, _, err := s.execute(ctx, buildLogout(tag))
	closeErr := s.Close()
	if err != nil {
		return err
	}
	return closeErr
}
