package imap

import (
	"strings"

	"mailproto/mailerr"
)

// CapabilitySet is an unordered, case-insensitive set of capability
// tokens, populated from CAPABILITY responses and "OK [CAPABILITY ...]"
// response codes (spec.md §3).
type CapabilitySet map[string]struct{}

// NewCapabilitySet builds a CapabilitySet from raw tokens.
func NewCapabilitySet(tokens []string) CapabilitySet {
	c := make(CapabilitySet, len(tokens))
	for _, t := range tokens {
		c[strings.ToUpper(t)] = struct{}{}
	}
	return c
}

// Has reports capability membership, case-insensitively.
func (c CapabilitySet) Has(name string) bool {
	_, ok := c[strings.ToUpper(name)]
	return ok
}

// Add merges tokens into c.
func (c CapabilitySet) Add(tokens []string) {
	for _, t := range tokens {
		c[strings.ToUpper(t)] = struct{}{}
	}
}

// SortColumn is a SORT/UID SORT order-by column.
type SortColumn int

const (
	SortArrival SortColumn = iota
	SortCc
	SortDate
	SortFrom
	SortSize
	SortSubject
	SortTo
	SortDisplayFrom
	SortDisplayTo
	SortAnnotation
	SortModSeq // named explicitly so the gate can reject it by kind
)

func (c SortColumn) String() string {
	switch c {
	case SortArrival:
		return "ARRIVAL"
	case SortCc:
		return "CC"
	case SortDate:
		return "DATE"
	case SortFrom:
		return "FROM"
	case SortSize:
		return "SIZE"
	case SortSubject:
		return "SUBJECT"
	case SortTo:
		return "TO"
	case SortDisplayFrom:
		return "DISPLAYFROM"
	case SortDisplayTo:
		return "DISPLAYTO"
	case SortAnnotation:
		return "ANNOTATION"
	case SortModSeq:
		return "MODSEQ"
	default:
		return "?"
	}
}

// OrderBy is one SORT key: a column plus an optional REVERSE modifier.
type OrderBy struct {
	Column  SortColumn
	Reverse bool
}

// gateSort validates a SORT request against the session's last-seen
// capability set before any bytes are serialized or written, exactly
// the "decide allow/reject before acting" shape of the teacher's
// imap.Filter (internal/imap/filter.go) — generalized here from a
// block/allow/rewrite verdict on an inbound command to a pass/fail
// verdict on an outbound one.
func gateSort(caps CapabilitySet, orderBy []OrderBy) error {
	if !caps.Has("SORT") {
		return &mailerr.SortNotSupported{}
	}
	for _, ob := range orderBy {
		switch ob.Column {
		case SortArrival, SortCc, SortDate, SortFrom, SortSize, SortSubject, SortTo:
			// always expressible.
		case SortDisplayFrom, SortDisplayTo:
			if !caps.Has("SORT=DISPLAY") {
				return &mailerr.SortDisplayNotSupported{}
			}
		case SortAnnotation:
			if !caps.Has("ANNOTATE-EXPERIMENT-1") {
				return &mailerr.AnnotationNotSupported{}
			}
		default:
			return &mailerr.UnsupportedOrderByType{Kind: ob.Column.String()}
		}
	}
	return nil
}
