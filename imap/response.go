// Package imap implements the client-side IMAP command/response state
// machine: command serialization with tag allocation (C7), the response
// parser built on imapwire's tokenizer (C4), and both session flavors
// (blocking and cooperative) that share this core.
package imap

import (
	"fmt"
	"strings"

	"mailproto/imapwire"
)

// Status is a tagged response's completion status.
type Status int

const (
	StatusOK Status = iota
	StatusNO
	StatusBAD
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNO:
		return "NO"
	case StatusBAD:
		return "BAD"
	default:
		return "?"
	}
}

// ResponseCode is the optional bracketed code on a status response, e.g.
// "[CAPABILITY ...]" or "[ALERT]".
type ResponseCode struct {
	Keyword string
	Args    []string
}

// Tagged is a completion response for a specific command.
type Tagged struct {
	Tag    string
	Status Status
	Code   *ResponseCode
	Text   string
}

// UntaggedKind enumerates the closed family of untagged response
// records the parser produces; everything not on this list becomes
// KindOther rather than being silently discarded (spec.md §9).
type UntaggedKind int

const (
	KindStatus UntaggedKind = iota // OK / BAD / BYE (untagged; an untagged NO is KindOther)
	KindCapability
	KindFlags
	KindList
	KindLSub
	KindSearch
	KindSort
	KindESearch
	KindStatusInfo // the "STATUS mailbox (...)" response
	KindFetch
	KindExists
	KindRecent
	KindExpunge
	KindID
	KindACL
	KindListRights
	KindMyRights
	KindQuota
	KindQuotaRoot
	KindAnnotation
	KindMetadata
	KindEnabled
	KindNamespace
	KindOther
)

// Untagged is one server-pushed record (`* ...`). Payload holds the
// kind-specific data; callers type-assert it against the Payload* type
// whose doc names that Kind. KindCapability and KindFlags carry a
// []string, KindExists/KindRecent/KindExpunge a uint32, and KindID a
// *PayloadIDParams.
type Untagged struct {
	Kind    UntaggedKind
	Keyword string // the raw second token, useful for KindOther
	Payload any
}

// PayloadStatus backs KindStatus.
type PayloadStatus struct {
	Status Status // OK or BAD; a BYE sets the BYE field and leaves Status at OK
	BYE    bool
	Code   *ResponseCode
	Text   string
}

// PayloadListEntry backs KindList/KindLSub.
type PayloadListEntry struct {
	Attributes []string
	Delimiter  string // "" when NIL
	Mailbox    string
}

// PayloadSearch backs KindSearch/KindSort: an ordered id sequence.
type PayloadSearch struct {
	IDs []uint32
}

// PayloadESearch backs KindESearch.
type PayloadESearch struct {
	Tag   string
	IsUID bool
	Count *uint32
	Min   *uint32
	Max   *uint32
	All   []uint32
}

// PayloadStatusInfo backs KindStatusInfo.
type PayloadStatusInfo struct {
	Mailbox string
	Attrs   map[string]uint32
}

// PayloadFetch backs KindFetch.
type PayloadFetch struct {
	SeqNum uint32
	Attrs  map[string]FetchValue
}

// FetchValue is one FETCH data-item value. Text, Number, List or IsNil
// carries it, with IsNumber/IsList marking the numeric and list forms; a
// list value also fills Flags with its atoms.
type FetchValue struct {
	Text     string
	Number   uint32
	Flags    []string
	List     []Token
	IsNil    bool
	IsNumber bool
	IsList   bool
}

// Token re-exposes imapwire.Token so callers that walk a raw FETCH BODY
// structure don't need to import imapwire directly.
type Token = imapwire.Token

// PayloadIDParams backs KindID. Present keys map to Some(value); NIL
// maps to an explicit Null marker distinct from the key being absent
// entirely (spec.md §4.3).
type PayloadIDParams struct {
	keys   []string
	values map[string]IDValue
}

// IDValue distinguishes a present-but-null ID parameter from a present
// string value.
type IDValue struct {
	Null  bool
	Value string
}

func newIDParams() *PayloadIDParams {
	return &PayloadIDParams{values: make(map[string]IDValue)}
}

func (p *PayloadIDParams) set(key string, v IDValue) {
	lk := strings.ToUpper(key)
	if _, exists := p.values[lk]; !exists {
		p.keys = append(p.keys, lk)
	}
	p.values[lk] = v
}

// Get looks up a parameter case-insensitively.
func (p *PayloadIDParams) Get(key string) (IDValue, bool) {
	v, ok := p.values[strings.ToUpper(key)]
	return v, ok
}

// Keys returns the parameter names, upper-cased, in the order first seen.
func (p *PayloadIDParams) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// PayloadACL backs KindACL: ordered (identifier, rights) pairs.
type PayloadACL struct {
	Mailbox string
	Entries []ACLEntry
}

type ACLEntry struct {
	Identifier string
	Rights     string
}

// PayloadListRights backs KindListRights.
type PayloadListRights struct {
	Mailbox        string
	Identifier     string
	RequiredRights string
	OptionalRights []string
}

// PayloadMyRights backs KindMyRights.
type PayloadMyRights struct {
	Mailbox string
	Rights  string
}

// PayloadQuota backs KindQuota.
type PayloadQuota struct {
	Root      string
	Resources []QuotaResource
}

type QuotaResource struct {
	Name  string
	Usage uint64
	Limit uint64
}

// PayloadQuotaRoot backs KindQuotaRoot.
type PayloadQuotaRoot struct {
	Mailbox string
	Roots   []string
}

// PayloadAnnotation backs KindAnnotation.
type PayloadAnnotation struct {
	Mailbox string
	Entry   string
	Attrs   []AnnotationAttr
}

type AnnotationAttr struct {
	Name  string
	Value string
}

// PayloadMetadata backs KindMetadata.
type PayloadMetadata struct {
	Mailbox string
	Entries []MetadataEntry
}

type MetadataEntry struct {
	Name  string
	Value string
	Null  bool
}

// PayloadEnabled backs KindEnabled.
type PayloadEnabled struct {
	Capabilities []string
}

// PayloadNamespace backs KindNamespace.
type PayloadNamespace struct {
	Personal, Other, Shared []NamespaceDescriptor
}

type NamespaceDescriptor struct {
	Prefix    string
	Delimiter string
}

// PayloadOther backs KindOther: an unrecognized untagged response kept
// verbatim instead of being discarded.
type PayloadOther struct {
	Raw []Token
}

// ParseResponse classifies one tokenized server line as either a
// Tagged completion or an Untagged record.
func ParseResponse(toks []Token) (tagged *Tagged, untagged *Untagged, err error) {
	if len(toks) == 0 {
		return nil, nil, fmt.Errorf("imap: empty response")
	}
	if toks[0].Kind == imapwire.Atom && toks[0].Text == "*" {
		u, err := parseUntagged(toks[1:])
		return nil, u, err
	}
	if toks[0].Kind != imapwire.Atom {
		return nil, nil, fmt.Errorf("imap: malformed response tag")
	}
	t, err := parseTagged(toks[0].Text, toks[1:])
	return t, nil, err
}

func parseTagged(tag string, rest []Token) (*Tagged, error) {
	if len(rest) == 0 || rest[0].Kind != imapwire.Atom {
		return nil, fmt.Errorf("imap: tagged response %s missing status", tag)
	}
	status, ok := parseStatusWord(rest[0].Text)
	if !ok {
		return nil, fmt.Errorf("imap: tagged response %s unknown status %q", tag, rest[0].Text)
	}
	code, textToks := extractCode(rest[1:])
	return &Tagged{Tag: tag, Status: status, Code: code, Text: joinText(textToks)}, nil
}

func parseStatusWord(w string) (Status, bool) {
	switch strings.ToUpper(w) {
	case "OK":
		return StatusOK, true
	case "NO":
		return StatusNO, true
	case "BAD":
		return StatusBAD, true
	default:
		return 0, false
	}
}

// extractCode pulls a leading "[KEYWORD args...]" response code off rest,
// returning it plus whatever tokens remain as free text.
func extractCode(rest []Token) (*ResponseCode, []Token) {
	if len(rest) == 0 || rest[0].Kind != imapwire.Atom || !strings.HasPrefix(rest[0].Text, "[") {
		return nil, rest
	}
	// The tokenizer splits on spaces, so "[CAPABILITY" arrives as one
	// atom; find the closing "]" atom among the following tokens.
	kw := strings.TrimPrefix(rest[0].Text, "[")
	var args []string
	i := 1
	if strings.HasSuffix(kw, "]") {
		kw = strings.TrimSuffix(kw, "]")
		return &ResponseCode{Keyword: kw}, rest[1:]
	}
	for i < len(rest) {
		text := tokenText(rest[i])
		if strings.HasSuffix(text, "]") {
			args = append(args, strings.TrimSuffix(text, "]"))
			i++
			break
		}
		args = append(args, text)
		i++
	}
	return &ResponseCode{Keyword: kw, Args: args}, rest[i:]
}

func tokenText(t Token) string {
	switch t.Kind {
	case imapwire.Number:
		return t.Text
	default:
		return t.Text
	}
}

func joinText(toks []Token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = tokenText(t)
	}
	return strings.Join(parts, " ")
}

func parseUntagged(rest []Token) (*Untagged, error) {
	if len(rest) == 0 {
		return nil, fmt.Errorf("imap: empty untagged response")
	}

	// A leading number means "<n> EXISTS|RECENT|EXPUNGE|FETCH ...".
	if rest[0].Kind == imapwire.Number {
		if len(rest) < 2 || rest[1].Kind != imapwire.Atom {
			return nil, fmt.Errorf("imap: malformed numbered untagged response")
		}
		return parseNumberedUntagged(uint32(rest[0].Num), rest[1].Text, rest[2:])
	}

	if rest[0].Kind != imapwire.Atom {
		return nil, fmt.Errorf("imap: malformed untagged response")
	}
	keyword := strings.ToUpper(rest[0].Text)
	args := rest[1:]

	switch keyword {
	case "OK", "BAD", "BYE":
		status, _ := parseStatusWord(keyword)
		code, textToks := extractCode(args)
		return &Untagged{Kind: KindStatus, Keyword: keyword, Payload: PayloadStatus{
			Status: status, BYE: keyword == "BYE", Code: code, Text: joinText(textToks),
		}}, nil
	case "CAPABILITY":
		return &Untagged{Kind: KindCapability, Keyword: keyword, Payload: atomList(args)}, nil
	case "FLAGS":
		return &Untagged{Kind: KindFlags, Keyword: keyword, Payload: flagList(args)}, nil
	case "LIST", "LSUB":
		entry, err := parseListEntry(args)
		if err != nil {
			return nil, err
		}
		kind := KindList
		if keyword == "LSUB" {
			kind = KindLSub
		}
		return &Untagged{Kind: kind, Keyword: keyword, Payload: entry}, nil
	case "SEARCH":
		return &Untagged{Kind: KindSearch, Keyword: keyword, Payload: PayloadSearch{IDs: numberList(args)}}, nil
	case "SORT":
		return &Untagged{Kind: KindSort, Keyword: keyword, Payload: PayloadSearch{IDs: numberList(args)}}, nil
	case "ESEARCH":
		p, err := parseESearch(args)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindESearch, Keyword: keyword, Payload: p}, nil
	case "STATUS":
		p, err := parseStatusInfo(args)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindStatusInfo, Keyword: keyword, Payload: p}, nil
	case "ID":
		p, err := parseIDParams(args)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindID, Keyword: keyword, Payload: p}, nil
	case "ACL":
		p, err := parseACL(args)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindACL, Keyword: keyword, Payload: p}, nil
	case "LISTRIGHTS":
		p, err := parseListRights(args)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindListRights, Keyword: keyword, Payload: p}, nil
	case "MYRIGHTS":
		p, err := parseMyRights(args)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindMyRights, Keyword: keyword, Payload: p}, nil
	case "QUOTA":
		p, err := parseQuota(args)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindQuota, Keyword: keyword, Payload: p}, nil
	case "QUOTAROOT":
		p, err := parseQuotaRoot(args)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindQuotaRoot, Keyword: keyword, Payload: p}, nil
	case "ANNOTATION":
		p, err := parseAnnotation(args)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindAnnotation, Keyword: keyword, Payload: p}, nil
	case "METADATA":
		p, err := parseMetadata(args)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindMetadata, Keyword: keyword, Payload: p}, nil
	case "ENABLED":
		return &Untagged{Kind: KindEnabled, Keyword: keyword, Payload: PayloadEnabled{Capabilities: atomList(args)}}, nil
	case "NAMESPACE":
		p, err := parseNamespace(args)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindNamespace, Keyword: keyword, Payload: p}, nil
	default:
		return &Untagged{Kind: KindOther, Keyword: keyword, Payload: PayloadOther{Raw: args}}, nil
	}
}

func parseNumberedUntagged(n uint32, keyword string, rest []Token) (*Untagged, error) {
	switch strings.ToUpper(keyword) {
	case "EXISTS":
		return &Untagged{Kind: KindExists, Keyword: "EXISTS", Payload: n}, nil
	case "RECENT":
		return &Untagged{Kind: KindRecent, Keyword: "RECENT", Payload: n}, nil
	case "EXPUNGE":
		return &Untagged{Kind: KindExpunge, Keyword: "EXPUNGE", Payload: n}, nil
	case "FETCH":
		p, err := parseFetch(n, rest)
		if err != nil {
			return nil, err
		}
		return &Untagged{Kind: KindFetch, Keyword: "FETCH", Payload: p}, nil
	default:
		return &Untagged{Kind: KindOther, Keyword: keyword, Payload: PayloadOther{Raw: rest}}, nil
	}
}

func atomList(toks []Token) []string {
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if t.Kind == imapwire.Atom {
			out = append(out, t.Text)
		}
	}
	return out
}

func flagList(toks []Token) []string {
	var out []string
	for _, t := range toks {
		if t.Kind == imapwire.ListOpen || t.Kind == imapwire.ListClose {
			continue
		}
		if t.Kind == imapwire.Flag {
			out = append(out, "\\"+t.Text)
		} else if t.Kind == imapwire.Atom {
			out = append(out, t.Text)
		}
	}
	return out
}

func numberList(toks []Token) []uint32 {
	var out []uint32
	for _, t := range toks {
		if t.Kind == imapwire.Number {
			out = append(out, uint32(t.Num))
		}
	}
	return out
}

func parseListEntry(toks []Token) (PayloadListEntry, error) {
	// (attr attr ...) delimiter mailbox
	i := 0
	var attrs []string
	if i < len(toks) && toks[i].Kind == imapwire.ListOpen {
		i++
		for i < len(toks) && toks[i].Kind != imapwire.ListClose {
			attrs = append(attrs, "\\"+toks[i].Text)
			i++
		}
		if i < len(toks) {
			i++ // consume ListClose
		}
	}
	if i >= len(toks) {
		return PayloadListEntry{}, fmt.Errorf("imap: LIST missing delimiter")
	}
	delim := ""
	if toks[i].Kind != imapwire.Nil {
		delim = toks[i].Text
	}
	i++
	if i >= len(toks) {
		return PayloadListEntry{}, fmt.Errorf("imap: LIST missing mailbox")
	}
	return PayloadListEntry{Attributes: attrs, Delimiter: delim, Mailbox: toks[i].Text}, nil
}

func parseESearch(toks []Token) (PayloadESearch, error) {
	p := PayloadESearch{}
	i := 0
	if i < len(toks) && toks[i].Kind == imapwire.ListOpen {
		// (TAG "A001")
		i++
		for i < len(toks) && toks[i].Kind != imapwire.ListClose {
			if toks[i].Kind == imapwire.Atom && strings.EqualFold(toks[i].Text, "TAG") && i+1 < len(toks) {
				p.Tag = toks[i+1].Text
				i += 2
				continue
			}
			i++
		}
		if i < len(toks) {
			i++
		}
	}
	for i < len(toks) {
		t := toks[i]
		if t.Kind != imapwire.Atom {
			i++
			continue
		}
		word := strings.ToUpper(t.Text)
		switch word {
		case "UID":
			p.IsUID = true
			i++
		case "COUNT", "MIN", "MAX":
			if i+1 >= len(toks) || toks[i+1].Kind != imapwire.Number {
				return p, fmt.Errorf("imap: ESEARCH %s missing value", word)
			}
			v := uint32(toks[i+1].Num)
			switch word {
			case "COUNT":
				p.Count = &v
			case "MIN":
				p.Min = &v
			case "MAX":
				p.Max = &v
			}
			i += 2
		case "ALL":
			i++
			// ALL is followed by a sequence-set of numbers/ranges; collect plain numbers.
			for i < len(toks) && toks[i].Kind == imapwire.Number {
				p.All = append(p.All, uint32(toks[i].Num))
				i++
			}
		default:
			i++
		}
	}
	return p, nil
}

// CoerceUID applies spec.md §4.3's defaultIsUid assertion when the
// server's ESEARCH response omitted the UID marker.
func (p PayloadESearch) CoerceUID(defaultIsUID bool) PayloadESearch {
	if !p.IsUID {
		p.IsUID = defaultIsUID
	}
	return p
}

func parseStatusInfo(toks []Token) (PayloadStatusInfo, error) {
	if len(toks) == 0 {
		return PayloadStatusInfo{}, fmt.Errorf("imap: STATUS missing mailbox")
	}
	p := PayloadStatusInfo{Mailbox: toks[0].Text, Attrs: map[string]uint32{}}
	i := 1
	if i < len(toks) && toks[i].Kind == imapwire.ListOpen {
		i++
		for i+1 < len(toks) && toks[i].Kind != imapwire.ListClose {
			name := strings.ToUpper(toks[i].Text)
			val := uint32(toks[i+1].Num)
			p.Attrs[name] = val
			i += 2
		}
	}
	return p, nil
}

func parseFetch(seq uint32, toks []Token) (PayloadFetch, error) {
	p := PayloadFetch{SeqNum: seq, Attrs: map[string]FetchValue{}}
	if len(toks) == 0 || toks[0].Kind != imapwire.ListOpen {
		return p, fmt.Errorf("imap: FETCH missing data list")
	}
	i := 1
	for i < len(toks) && toks[i].Kind != imapwire.ListClose {
		if toks[i].Kind != imapwire.Atom {
			i++
			continue
		}
		name := strings.ToUpper(toks[i].Text)
		i++
		if i >= len(toks) {
			break
		}
		val, next := parseFetchValue(toks, i)
		p.Attrs[name] = val
		i = next
	}
	return p, nil
}

func parseFetchValue(toks []Token, i int) (FetchValue, int) {
	t := toks[i]
	switch t.Kind {
	case imapwire.Nil:
		return FetchValue{IsNil: true}, i + 1
	case imapwire.Number:
		return FetchValue{Number: uint32(t.Num), IsNumber: true}, i + 1
	case imapwire.QString:
		return FetchValue{Text: t.Text}, i + 1
	case imapwire.Literal:
		return FetchValue{Text: string(t.LiteralBytes)}, i + 1
	case imapwire.ListOpen:
		depth := 1
		j := i + 1
		var inner []Token
		for j < len(toks) && depth > 0 {
			switch toks[j].Kind {
			case imapwire.ListOpen:
				depth++
			case imapwire.ListClose:
				depth--
				if depth == 0 {
					j++
					return FetchValue{List: inner, IsList: true, Flags: flagList(inner)}, j
				}
			}
			inner = append(inner, toks[j])
			j++
		}
		return FetchValue{List: inner, IsList: true}, j
	case imapwire.Flag:
		return FetchValue{Text: "\\" + t.Text}, i + 1
	default:
		return FetchValue{Text: t.Text}, i + 1
	}
}

func parseIDParams(toks []Token) (*PayloadIDParams, error) {
	p := newIDParams()
	if len(toks) == 0 {
		return p, nil
	}
	if toks[0].Kind == imapwire.Nil {
		return p, nil
	}
	if toks[0].Kind != imapwire.ListOpen {
		return nil, fmt.Errorf("imap: ID expects NIL or a list")
	}
	i := 1
	for i+1 < len(toks) && toks[i].Kind != imapwire.ListClose {
		key := toks[i].Text
		valTok := toks[i+1]
		if valTok.Kind == imapwire.Nil {
			p.set(key, IDValue{Null: true})
		} else {
			p.set(key, IDValue{Value: tokenText(valTok)})
		}
		i += 2
	}
	return p, nil
}

func parseACL(toks []Token) (PayloadACL, error) {
	if len(toks) == 0 {
		return PayloadACL{}, fmt.Errorf("imap: ACL missing mailbox")
	}
	p := PayloadACL{Mailbox: toks[0].Text}
	i := 1
	for i+1 < len(toks) {
		p.Entries = append(p.Entries, ACLEntry{Identifier: toks[i].Text, Rights: toks[i+1].Text})
		i += 2
	}
	return p, nil
}

func parseListRights(toks []Token) (PayloadListRights, error) {
	if len(toks) < 3 {
		return PayloadListRights{}, fmt.Errorf("imap: LISTRIGHTS malformed")
	}
	p := PayloadListRights{Mailbox: toks[0].Text, Identifier: toks[1].Text, RequiredRights: toks[2].Text}
	for i := 3; i < len(toks); i++ {
		p.OptionalRights = append(p.OptionalRights, toks[i].Text)
	}
	return p, nil
}

func parseMyRights(toks []Token) (PayloadMyRights, error) {
	if len(toks) < 2 {
		return PayloadMyRights{}, fmt.Errorf("imap: MYRIGHTS malformed")
	}
	return PayloadMyRights{Mailbox: toks[0].Text, Rights: toks[1].Text}, nil
}

func parseQuota(toks []Token) (PayloadQuota, error) {
	if len(toks) < 2 {
		return PayloadQuota{}, fmt.Errorf("imap: QUOTA malformed")
	}
	p := PayloadQuota{Root: toks[0].Text}
	if toks[1].Kind != imapwire.ListOpen {
		return p, fmt.Errorf("imap: QUOTA missing resource list")
	}
	i := 2
	for i+2 < len(toks) && toks[i].Kind != imapwire.ListClose {
		p.Resources = append(p.Resources, QuotaResource{
			Name:  toks[i].Text,
			Usage: uint64(toks[i+1].Num),
			Limit: uint64(toks[i+2].Num),
		})
		i += 3
	}
	return p, nil
}

func parseQuotaRoot(toks []Token) (PayloadQuotaRoot, error) {
	if len(toks) == 0 {
		return PayloadQuotaRoot{}, fmt.Errorf("imap: QUOTAROOT missing mailbox")
	}
	p := PayloadQuotaRoot{Mailbox: toks[0].Text}
	for i := 1; i < len(toks); i++ {
		p.Roots = append(p.Roots, toks[i].Text)
	}
	return p, nil
}

func parseAnnotation(toks []Token) (PayloadAnnotation, error) {
	if len(toks) < 2 {
		return PayloadAnnotation{}, fmt.Errorf("imap: ANNOTATION malformed")
	}
	p := PayloadAnnotation{Mailbox: toks[0].Text, Entry: toks[1].Text}
	i := 2
	if i < len(toks) && toks[i].Kind == imapwire.ListOpen {
		i++
		for i+1 < len(toks) && toks[i].Kind != imapwire.ListClose {
			name := toks[i].Text
			value := fetchTokenString(toks[i+1])
			p.Attrs = append(p.Attrs, AnnotationAttr{Name: name, Value: value})
			i += 2
		}
	}
	return p, nil
}

func fetchTokenString(t Token) string {
	if t.Kind == imapwire.Literal {
		return string(t.LiteralBytes)
	}
	return t.Text
}

func parseMetadata(toks []Token) (PayloadMetadata, error) {
	if len(toks) == 0 {
		return PayloadMetadata{}, fmt.Errorf("imap: METADATA missing mailbox")
	}
	p := PayloadMetadata{Mailbox: toks[0].Text}
	i := 1
	if i < len(toks) && toks[i].Kind == imapwire.ListOpen {
		i++
		for i < len(toks) && toks[i].Kind != imapwire.ListClose {
			name := toks[i].Text
			i++
			if i >= len(toks) {
				break
			}
			if toks[i].Kind == imapwire.Nil {
				p.Entries = append(p.Entries, MetadataEntry{Name: name, Null: true})
			} else {
				p.Entries = append(p.Entries, MetadataEntry{Name: name, Value: fetchTokenString(toks[i])})
			}
			i++
		}
	}
	return p, nil
}

func parseNamespace(toks []Token) (PayloadNamespace, error) {
	groups := [3]*[]NamespaceDescriptor{}
	p := PayloadNamespace{}
	groups[0] = &p.Personal
	groups[1] = &p.Other
	groups[2] = &p.Shared
	i := 0
	for g := 0; g < 3 && i < len(toks); g++ {
		if toks[i].Kind == imapwire.Nil {
			i++
			continue
		}
		if toks[i].Kind != imapwire.ListOpen {
			return p, fmt.Errorf("imap: NAMESPACE malformed group %d", g)
		}
		i++
		for i < len(toks) && toks[i].Kind != imapwire.ListClose {
			if toks[i].Kind != imapwire.ListOpen {
				i++
				continue
			}
			i++ // inner ListOpen
			var desc NamespaceDescriptor
			if i < len(toks) {
				desc.Prefix = toks[i].Text
				i++
			}
			if i < len(toks) {
				if toks[i].Kind != imapwire.Nil {
					desc.Delimiter = toks[i].Text
				}
				i++
			}
			// skip any extension data until inner ListClose
			for i < len(toks) && toks[i].Kind != imapwire.ListClose {
				i++
			}
			if i < len(toks) {
				i++ // inner ListClose
			}
			*groups[g] = append(*groups[g], desc)
		}
		if i < len(toks) {
			i++ // outer ListClose
		}
	}
	return p, nil
}
