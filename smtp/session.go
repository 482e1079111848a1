package smtp

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"strconv"
	"strings"

	"mailproto/mailerr"
	"mailproto/transport"
)

// SASLClient mirrors imap.SASLClient's shape (and go-sasl's Client
// interface) so the same mechanism implementations serve both protocols.
type SASLClient interface {
	Start() (mech string, ir []byte, err error)
	Next(challenge []byte) (response []byte, err error)
}

// Session is the blocking SMTP session flavor (C8): one caller
// goroutine, one command in flight at a time except during
// SendMailPipelined's deliberate batching.
type Session struct {
	t      transport.Transport
	logger *slog.Logger

	decoder Decoder
	pending []Reply

	extensions map[string]string

	// MaxReads bounds ReadAvailable calls per reply wait; zero means
	// unbounded, matching imap.Session's knob of the same name.
	MaxReads int
	reads    int
}

func NewSession(t transport.Transport, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{t: t, logger: logger, extensions: map[string]string{}}
}

func (s *Session) Close() error { return s.t.Close() }

func (s *Session) Extensions() map[string]string { return s.extensions }

func (s *Session) hasExtension(name string) bool {
	_, ok := s.extensions[strings.ToUpper(name)]
	return ok
}

func classifyReadErr(err error) error {
	if _, ok := err.(*mailerr.ConnectionClosed); ok {
		return err
	}
	if te, ok := err.(interface{ Timeout() bool }); ok && te.Timeout() {
		return &mailerr.TimedOut{}
	}
	return &mailerr.ConnectionClosed{Msg: err.Error()}
}

func classifyWriteErr(err error) error {
	return &mailerr.ConnectionClosed{Msg: err.Error()}
}

func (s *Session) readReplies(ctx context.Context, n int) ([]Reply, error) {
	for len(s.pending) < n {
		if s.MaxReads > 0 && s.reads >= s.MaxReads {
			return nil, &mailerr.TimedOut{}
		}
		chunk, err := s.t.ReadAvailable(ctx, 4096)
		s.reads++
		if err != nil {
			return nil, classifyReadErr(err)
		}
		if len(chunk) == 0 {
			return nil, &mailerr.ConnectionClosed{Msg: "Connection closed by server."}
		}
		s.pending = append(s.pending, s.decoder.Feed(chunk)...)
	}
	out := append([]Reply(nil), s.pending[:n]...)
	s.pending = s.pending[n:]
	return out, nil
}

func (s *Session) readReply(ctx context.Context) (*Reply, error) {
	s.reads = 0
	rs, err := s.readReplies(ctx, 1)
	if err != nil {
		return nil, err
	}
	return &rs[0], nil
}

func rejected(r Reply) error {
	return &mailerr.CommandRejected{Status: strconv.Itoa(r.Code), Text: strings.Join(r.Lines, " ")}
}

// Connect opens the transport and consumes the server's 220 greeting.
func (s *Session) Connect(ctx context.Context) (*Reply, error) {
	if err := s.t.Open(ctx); err != nil {
		return nil, err
	}
	return s.readReply(ctx)
}

func (s *Session) send(ctx context.Context, line string) error {
	if _, err := s.t.Write(ctx, []byte(line)); err != nil {
		return classifyWriteErr(err)
	}
	return nil
}

// EHLO issues EHLO and parses the extension lines into s.extensions.
func (s *Session) EHLO(ctx context.Context, host string) (*Reply, error) {
	if err := s.send(ctx, "EHLO "+host+"\r\n"); err != nil {
		return nil, err
	}
	reply, err := s.readReply(ctx)
	if err != nil {
		return nil, err
	}
	if reply.Code/100 == 2 {
		s.extensions = map[string]string{}
		for _, line := range reply.Lines {
			kw, rest, _ := strings.Cut(line, " ")
			s.extensions[strings.ToUpper(kw)] = rest
		}
	}
	return reply, nil
}

// HELO issues the non-extended greeting; no capability parsing follows.
func (s *Session) HELO(ctx context.Context, host string) (*Reply, error) {
	if err := s.send(ctx, "HELO "+host+"\r\n"); err != nil {
		return nil, err
	}
	return s.readReply(ctx)
}

// StartTLS upgrades the transport in place after a 220 response,
// mirroring imap.Session.StartTLS's atomic-swap rule (spec.md §4.10).
func (s *Session) StartTLS(ctx context.Context, validateCertificate bool) error {
	up, ok := s.t.(transport.TLSUpgrader)
	if !ok {
		return &mailerr.FeatureUnavailable{Name: "STARTTLS"}
	}
	if err := s.send(ctx, "STARTTLS\r\n"); err != nil {
		return err
	}
	reply, err := s.readReply(ctx)
	if err != nil {
		return err
	}
	if reply.Code != 220 {
		return rejected(*reply)
	}
	if len(s.pending) != 0 {
		return &mailerr.ProtocolViolation{Detail: "buffered bytes across STARTTLS handoff"}
	}
	next, err := up.StartTLS(ctx, validateCertificate)
	if err != nil {
		return &mailerr.TLSUpgradeFailed{Msg: err.Error()}
	}
	s.t = next
	s.extensions = map[string]string{}
	return nil
}

// Auth drives one SASL AUTH exchange: 334 continuations carry a
// base64 challenge, 235 is success, anything else is a failure
// (spec.md §4.7/§6's AUTH extension).
func (s *Session) Auth(ctx context.Context, client SASLClient) error {
	mech, ir, err := client.Start()
	if err != nil {
		return err
	}
	line := "AUTH " + strings.ToUpper(mech)
	if ir != nil {
		line += " " + base64.StdEncoding.EncodeToString(ir)
	}
	if err := s.send(ctx, line+"\r\n"); err != nil {
		return err
	}
	for {
		reply, err := s.readReply(ctx)
		if err != nil {
			return err
		}
		switch {
		case reply.Code == 334:
			var challenge []byte
			if len(reply.Lines) > 0 {
				challenge, err = base64.StdEncoding.DecodeString(reply.Lines[0])
				if err != nil {
					return &mailerr.ProtocolViolation{Detail: err.Error()}
				}
			}
			resp, nextErr := client.Next(challenge)
			if nextErr != nil {
				return nextErr
			}
			encoded := base64.StdEncoding.EncodeToString(resp)
			if err := s.send(ctx, encoded+"\r\n"); err != nil {
				return err
			}
		case reply.Code == 235:
			return nil
		default:
			return &mailerr.AuthenticationFailed{ServerReply: strings.Join(reply.Lines, " ")}
		}
	}
}

func (s *Session) MailFrom(ctx context.Context, from string) (*Reply, error) {
	if err := s.send(ctx, "MAIL FROM:<"+from+">\r\n"); err != nil {
		return nil, err
	}
	return s.readReply(ctx)
}

func (s *Session) RcptTo(ctx context.Context, to string) (*Reply, error) {
	if err := s.send(ctx, "RCPT TO:<"+to+">\r\n"); err != nil {
		return nil, err
	}
	return s.readReply(ctx)
}

// dotStuffTerminate applies classic DATA dot-stuffing and appends the
// CRLF.CRLF terminator (spec.md §4.7 — BDAT never dot-stuffs).
func dotStuffTerminate(data []byte) []byte {
	lines := bytes.Split(data, []byte("\r\n"))
	for i, l := range lines {
		if len(l) > 0 && l[0] == '.' {
			lines[i] = append([]byte{'.'}, l...)
		}
	}
	out := bytes.Join(lines, []byte("\r\n"))
	if !bytes.HasSuffix(out, []byte("\r\n")) {
		out = append(out, '\r', '\n')
	}
	return append(out, '.', '\r', '\n')
}

// Data sends DATA, waits for the 354 go-ahead, then writes the
// dot-stuffed payload and reads the final reply.
func (s *Session) Data(ctx context.Context, payload []byte) (*Reply, error) {
	if err := s.send(ctx, "DATA\r\n"); err != nil {
		return nil, err
	}
	ready, err := s.readReply(ctx)
	if err != nil {
		return nil, err
	}
	if ready.Code != 354 {
		return ready, rejected(*ready)
	}
	if _, err := s.t.Write(ctx, dotStuffTerminate(payload)); err != nil {
		return nil, classifyWriteErr(err)
	}
	return s.readReply(ctx)
}

// SendBDAT writes "BDAT <n> [LAST]\r\n" as one write and the exact n
// payload bytes as a second write, with no dot-stuffing, then reads
// one reply (spec.md §4.7).
func (s *Session) SendBDAT(ctx context.Context, chunk []byte, last bool) (*Reply, error) {
	header := "BDAT " + strconv.Itoa(len(chunk))
	if last {
		header += " LAST"
	}
	if err := s.send(ctx, header+"\r\n"); err != nil {
		return nil, err
	}
	if _, err := s.t.Write(ctx, chunk); err != nil {
		return nil, classifyWriteErr(err)
	}
	return s.readReply(ctx)
}

// SendMailPipelined batches MAIL FROM, every RCPT TO, and DATA into one
// write when PIPELINING is advertised, then reads all N+1 envelope
// replies before emitting the payload (spec.md §4.7).
func (s *Session) SendMailPipelined(ctx context.Context, from string, to []string, data []byte) (*Reply, error) {
	if !s.hasExtension("PIPELINING") {
		return nil, &mailerr.CapabilityMissing{Name: "PIPELINING"}
	}

	var buf bytes.Buffer
	buf.WriteString("MAIL FROM:<" + from + ">\r\n")
	for _, rcpt := range to {
		buf.WriteString("RCPT TO:<" + rcpt + ">\r\n")
	}
	buf.WriteString("DATA\r\n")
	if _, err := s.t.Write(ctx, buf.Bytes()); err != nil {
		return nil, classifyWriteErr(err)
	}

	s.reads = 0
	replies, err := s.readReplies(ctx, len(to)+2)
	if err != nil {
		return nil, err
	}
	mailReply := replies[0]
	if mailReply.Code >= 500 {
		return &mailReply, rejected(mailReply)
	}
	dataReply := replies[len(replies)-1]
	if dataReply.Code != 354 {
		return &dataReply, rejected(dataReply)
	}

	if _, err := s.t.Write(ctx, dotStuffTerminate(data)); err != nil {
		return nil, classifyWriteErr(err)
	}
	return s.readReply(ctx)
}

// MailboxResult is one VRFY/EXPN result line: an address, with the
// display name preserved when the server supplied one.
type MailboxResult struct {
	DisplayName string
	Address     string
}

func parseMailboxLine(line string) MailboxResult {
	line = strings.TrimSpace(line)
	if i := strings.LastIndexByte(line, ' '); i >= 0 {
		return MailboxResult{DisplayName: line[:i], Address: line[i+1:]}
	}
	return MailboxResult{Address: line}
}

func (s *Session) Vrfy(ctx context.Context, arg string) ([]MailboxResult, *Reply, error) {
	if err := s.send(ctx, "VRFY "+arg+"\r\n"); err != nil {
		return nil, nil, err
	}
	reply, err := s.readReply(ctx)
	if err != nil {
		return nil, nil, err
	}
	if reply.Code/100 != 2 {
		return nil, reply, rejected(*reply)
	}
	out := make([]MailboxResult, len(reply.Lines))
	for i, l := range reply.Lines {
		out[i] = parseMailboxLine(l)
	}
	return out, reply, nil
}

func (s *Session) Expn(ctx context.Context, list string) ([]MailboxResult, *Reply, error) {
	if err := s.send(ctx, "EXPN "+list+"\r\n"); err != nil {
		return nil, nil, err
	}
	reply, err := s.readReply(ctx)
	if err != nil {
		return nil, nil, err
	}
	if reply.Code/100 != 2 {
		return nil, reply, rejected(*reply)
	}
	out := make([]MailboxResult, len(reply.Lines))
	for i, l := range reply.Lines {
		out[i] = parseMailboxLine(l)
	}
	return out, reply, nil
}

// HelpResult is HELP's raw lines plus their newline-joined concatenation.
type HelpResult struct {
	Lines []string
	Text  string
}

func (s *Session) Help(ctx context.Context, arg string) (*HelpResult, error) {
	cmd := "HELP"
	if arg != "" {
		cmd += " " + arg
	}
	if err := s.send(ctx, cmd+"\r\n"); err != nil {
		return nil, err
	}
	reply, err := s.readReply(ctx)
	if err != nil {
		return nil, err
	}
	if reply.Code/100 != 2 {
		return nil, rejected(*reply)
	}
	return &HelpResult{Lines: reply.Lines, Text: strings.Join(reply.Lines, "\n")}, nil
}

func (s *Session) Noop(ctx context.Context) error {
	if err := s.send(ctx, "NOOP\r\n"); err != nil {
		return err
	}
	reply, err := s.readReply(ctx)
	if err != nil {
		return err
	}
	if reply.Code/100 != 2 {
		return rejected(*reply)
	}
	return nil
}

func (s *Session) Quit(ctx context.Context) error {
	sendErr := s.send(ctx, "QUIT\r\n")
	if sendErr == nil {
		s.readReply(ctx)
	}
	closeErr := s.Close()
	if sendErr != nil {
		return sendErr
	}
	return closeErr
}
