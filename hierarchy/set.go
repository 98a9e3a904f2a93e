package hierarchy

import "sort"

// Set is an unordered collection of agent NPNs.
type Set map[string]struct{}

// NewSet builds a set from the given identifiers.
func NewSet(npns ...string) Set {
	s := make(Set, len(npns))
	for _, n := range npns {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts npn and reports whether it was not already present.
func (s Set) Add(npn string) bool {
	if _, ok := s[npn]; ok {
		return false
	}
	s[npn] = struct{}{}
	return true
}

func (s Set) Has(npn string) bool {
	_, ok := s[npn]
	return ok
}

func (s Set) Len() int { return len(s) }

// Slice returns the members in ascending order.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for n := range s {
		out[n] = struct{}{}
	}
	return out
}
