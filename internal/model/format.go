package model

import (
	"strconv"
	"strings"
)

// Format renders m as a compact single-line document in insertion order,
// e.g. {a: {tags: ["editor"]}, n: 3}. Holes in lists print as _.
func Format(m Model) string {
	var b strings.Builder
	writeModel(&b, m)
	return b.String()
}

func writeModel(b *strings.Builder, m Model) {
	switch n := normalize(m).(type) {
	case *MapModel:
		b.WriteByte('{')
		first := true
		n.Range(func(k string, v Model) bool {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(formatKey(k))
			b.WriteString(": ")
			writeModel(b, v)
			return true
		})
		b.WriteByte('}')
	case *ListModel:
		b.WriteByte('[')
		for i, it := range n.items {
			if i > 0 {
				b.WriteString(", ")
			}
			writeModel(b, it)
		}
		b.WriteByte(']')
	case PrimitiveModel:
		b.WriteString(formatPrimitive(n))
	default:
		b.WriteByte('_')
	}
}

func formatKey(k string) string {
	if k == "" {
		return `""`
	}
	for _, r := range k {
		if !(r == '_' || r == '-' || r == '.' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return strconv.Quote(k)
		}
	}
	return k
}

func formatPrimitive(p PrimitiveModel) string {
	switch v := p.value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return "?"
	}
}

func (m *MapModel) String() string     { return Format(m) }
func (l *ListModel) String() string    { return Format(l) }
func (p PrimitiveModel) String() string { return formatPrimitive(p) }
func (AbsentModel) String() string      { return "_" }
