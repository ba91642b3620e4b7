// Package datatype defines the object categories an actor can store and
// which of them are restricted to the private bucket.
package datatype

import (
	"sort"
	"strings"

	"github.com/koustreak/omem/internal/errs"
)

// Tag is a canonical (upper-case) data-type tag such as "LOGO".
type Tag string

func (t Tag) String() string { return string(t) }

// Tags recognised by a default deployment.
const (
	Logo          Tag = "LOGO"
	Aussenansicht Tag = "AUSSENANSICHT"
	Innenansicht1 Tag = "INNENANSICHT_1"
	Innenansicht2 Tag = "INNENANSICHT_2"
	TeamBild      Tag = "TEAM_BILD"
)

// DefaultRecognized lists the tags accepted when none are configured.
var DefaultRecognized = []string{
	string(Aussenansicht), string(Innenansicht1), string(Innenansicht2), string(TeamBild), string(Logo),
}

// DefaultRestricted lists the tags served only from the private bucket.
var DefaultRestricted = []string{string(TeamBild)}

// Set is the immutable collection of recognised tags and the restricted subset.
type Set struct {
	recognized map[Tag]struct{}
	restricted map[Tag]struct{}
}

// NewSet builds a Set. Every restricted tag must also be recognised.
func NewSet(recognized, restricted []string) (*Set, error) {
	s := &Set{
		recognized: make(map[Tag]struct{}, len(recognized)),
		restricted: make(map[Tag]struct{}, len(restricted)),
	}
	for _, raw := range recognized {
		t := canonical(raw)
		if t == "" {
			return nil, errs.New(errs.ErrKindInvalidInput, "empty data type in recognised set")
		}
		s.recognized[t] = struct{}{}
	}
	if len(s.recognized) == 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, "at least one data type must be recognised")
	}
	for _, raw := range restricted {
		t := canonical(raw)
		if _, ok := s.recognized[t]; !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "restricted data type %q is not recognised", raw)
		}
		s.restricted[t] = struct{}{}
	}
	return s, nil
}

// Default returns the pharmacy deployment set.
func Default() *Set {
	s, err := NewSet(DefaultRecognized, DefaultRestricted)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse canonicalises raw and checks it against the recognised set.
func (s *Set) Parse(raw string) (Tag, error) {
	t := canonical(raw)
	if t == "" {
		return "", errs.New(errs.ErrKindUnsupportedDataType, "data type is required")
	}
	if _, ok := s.recognized[t]; !ok {
		return "", errs.Newf(errs.ErrKindUnsupportedDataType, "unsupported data type %q", raw)
	}
	return t, nil
}

// IsRestricted reports whether objects of tag t live in the private bucket.
func (s *Set) IsRestricted(t Tag) bool {
	_, ok := s.restricted[t]
	return ok
}

// All returns the recognised tags in lexical order.
func (s *Set) All() []Tag {
	out := make([]Tag, 0, len(s.recognized))
	for t := range s.recognized {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func canonical(raw string) Tag {
	return Tag(strings.ToUpper(strings.TrimSpace(raw)))
}
