package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Segment is one step of a Path: a map key or a list index
type Segment struct {
	key     string
	index   int
	isIndex bool
}

// Key creates a map key segment
func Key(k string) Segment { return Segment{key: k} }

// Index creates a list index segment. Negative indexes panic.
func Index(i int) Segment {
	if i < 0 {
		panic(fmt.Sprintf("model: negative path index %d", i))
	}
	return Segment{index: i, isIndex: true}
}

// IsIndex reports whether the segment addresses a list slot
func (s Segment) IsIndex() bool { return s.isIndex }

// Name returns the map key; empty for index segments
func (s Segment) Name() string { return s.key }

// Pos returns the list index; zero for key segments
func (s Segment) Pos() int { return s.index }

// String renders key segments verbatim and index segments as [n]
func (s Segment) String() string {
	if s.isIndex {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	return s.key
}

// Path is an immutable sequence of segments. The zero value is the root path.
type Path struct {
	segs []Segment
}

// Root addresses the whole tree
var Root = Path{}

// NewPath builds a path of key segments
func NewPath(keys ...string) Path {
	segs := make([]Segment, len(keys))
	for i, k := range keys {
		segs[i] = Key(k)
	}
	return Path{segs: segs}
}

// PathOf builds a path from segments
func PathOf(segs ...Segment) Path {
	out := make([]Segment, len(segs))
	copy(out, segs)
	return Path{segs: out}
}

// ParsePath parses the String form: keys separated by "/", list indexes as [n].
// Keys containing "/" cannot be expressed in this form.
func ParsePath(s string) (Path, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return Root, nil
	}
	parts := strings.Split(s, "/")
	segs := make([]Segment, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "[") && strings.HasSuffix(part, "]") {
			n, err := strconv.Atoi(part[1 : len(part)-1])
			if err != nil || n < 0 {
				return Root, fmt.Errorf("invalid list index %q in path %q", part, s)
			}
			segs = append(segs, Index(n))
			continue
		}
		segs = append(segs, Key(part))
	}
	return Path{segs: segs}, nil
}

// MustParsePath is ParsePath for literals known to be valid
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Append returns a new path with seg added
func (p Path) Append(seg Segment) Path {
	segs := make([]Segment, len(p.segs)+1)
	copy(segs, p.segs)
	segs[len(p.segs)] = seg
	return Path{segs: segs}
}

// Key returns p / k
func (p Path) Key(k string) Path { return p.Append(Key(k)) }

// Index returns p / i
func (p Path) Index(i int) Path { return p.Append(Index(i)) }

// Concat returns p followed by all segments of q
func (p Path) Concat(q Path) Path {
	segs := make([]Segment, 0, len(p.segs)+len(q.segs))
	segs = append(segs, p.segs...)
	segs = append(segs, q.segs...)
	return Path{segs: segs}
}

// Len returns the number of segments
func (p Path) Len() int { return len(p.segs) }

// IsRoot reports whether p addresses the whole tree
func (p Path) IsRoot() bool { return len(p.segs) == 0 }

// At returns segment i
func (p Path) At(i int) Segment { return p.segs[i] }

// Last returns the final segment. It panics on the root path.
func (p Path) Last() Segment { return p.segs[len(p.segs)-1] }

// Parent returns p without its final segment; the root is its own parent
func (p Path) Parent() Path {
	if len(p.segs) == 0 {
		return p
	}
	return Path{segs: p.segs[:len(p.segs)-1:len(p.segs)-1]}
}

// Prefix returns the first n segments
func (p Path) Prefix(n int) Path {
	return Path{segs: p.segs[:n:n]}
}

// Segments returns a copy of the segments
func (p Path) Segments() []Segment {
	out := make([]Segment, len(p.segs))
	copy(out, p.segs)
	return out
}

// Equal reports segment-wise equality
func (p Path) Equal(q Path) bool {
	if len(p.segs) != len(q.segs) {
		return false
	}
	for i := range p.segs {
		if p.segs[i] != q.segs[i] {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether q starts with p. A path is a prefix of itself.
func (p Path) IsPrefixOf(q Path) bool {
	if len(p.segs) > len(q.segs) {
		return false
	}
	for i := range p.segs {
		if p.segs[i] != q.segs[i] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether p is a strict prefix of q
func (p Path) IsAncestorOf(q Path) bool {
	return len(p.segs) < len(q.segs) && p.IsPrefixOf(q)
}

// Related reports whether one path is a prefix of the other
func (p Path) Related(q Path) bool {
	return p.IsPrefixOf(q) || q.IsPrefixOf(p)
}

// ID returns an unambiguous encoding of the path, suitable as a map key
func (p Path) ID() string {
	var b strings.Builder
	for _, s := range p.segs {
		if s.isIndex {
			b.WriteByte('i')
			b.WriteString(strconv.Itoa(s.index))
			b.WriteByte(';')
			continue
		}
		b.WriteByte('k')
		b.WriteString(strconv.Itoa(len(s.key)))
		b.WriteByte(':')
		b.WriteString(s.key)
	}
	return b.String()
}

// Hash returns the xxhash of the path's ID
func (p Path) Hash() uint64 {
	return xxhash.Sum64String(p.ID())
}

// String renders the path as a/b/[0]/c
func (p Path) String() string {
	parts := make([]string, len(p.segs))
	for i, s := range p.segs {
		parts[i] = s.String()
	}
	return strings.Join(parts, "/")
}

// Slashed renders the path with bare list indexes (a/b/0/c), the form glob
// patterns are matched against
func (p Path) Slashed() string {
	parts := make([]string, len(p.segs))
	for i, s := range p.segs {
		if s.isIndex {
			parts[i] = strconv.Itoa(s.index)
		} else {
			parts[i] = s.key
		}
	}
	return strings.Join(parts, "/")
}

// Compare orders paths segment by segment; keys sort before indexes
func (p Path) Compare(q Path) int {
	n := len(p.segs)
	if len(q.segs) < n {
		n = len(q.segs)
	}
	for i := 0; i < n; i++ {
		a, b := p.segs[i], q.segs[i]
		if a == b {
			continue
		}
		switch {
		case !a.isIndex && b.isIndex:
			return -1
		case a.isIndex && !b.isIndex:
			return 1
		case a.isIndex:
			if a.index < b.index {
				return -1
			}
			return 1
		default:
			return strings.Compare(a.key, b.key)
		}
	}
	switch {
	case len(p.segs) < len(q.segs):
		return -1
	case len(p.segs) > len(q.segs):
		return 1
	}
	return 0
}
