package model

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Equal reports structural equality. Map key order does not matter; list
// order does. Shared subtrees and differing fingerprints short-circuit.
func Equal(a, b Model) bool {
	a, b = normalize(a), normalize(b)
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case AbsentModel:
		return true
	case PrimitiveModel:
		return primitiveEqual(x, b.(PrimitiveModel))
	case *MapModel:
		y := b.(*MapModel)
		if x == y {
			return true
		}
		if x.Len() != y.Len() || Fingerprint(x) != Fingerprint(y) {
			return false
		}
		return diffTries(x.root, y.root, 0, func(o, n *trieEntry) bool {
			return o != nil && n != nil && Equal(o.value, n.value)
		})
	case *ListModel:
		y := b.(*ListModel)
		if x == y {
			return true
		}
		if x.Len() != y.Len() || Fingerprint(x) != Fingerprint(y) {
			return false
		}
		for i := range x.items {
			if !Equal(x.items[i], y.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

const (
	tagAbsent byte = iota + 1
	tagNull
	tagString
	tagInt
	tagFloat
	tagBool
	tagMap
	tagList
)

// Fingerprint returns a structural 64-bit hash of m. Equal models have equal
// fingerprints. Container fingerprints are computed once and cached.
func Fingerprint(m Model) uint64 {
	switch n := normalize(m).(type) {
	case PrimitiveModel:
		return primitiveFingerprint(n)
	case *MapModel:
		if fp := n.fp.Load(); fp != 0 {
			return fp
		}
		// Entry hashes are summed so key order does not affect the result.
		var sum uint64
		n.root.each(func(e *trieEntry) bool {
			d := xxhash.New()
			_, _ = d.WriteString(e.key)
			writeUint64(d, Fingerprint(e.value))
			sum += d.Sum64()
			return true
		})
		d := xxhash.New()
		_, _ = d.Write([]byte{tagMap})
		writeUint64(d, uint64(n.size))
		writeUint64(d, sum)
		fp := nonZero(d.Sum64())
		n.fp.Store(fp)
		return fp
	case *ListModel:
		if fp := n.fp.Load(); fp != 0 {
			return fp
		}
		d := xxhash.New()
		_, _ = d.Write([]byte{tagList})
		writeUint64(d, uint64(len(n.items)))
		for _, it := range n.items {
			writeUint64(d, Fingerprint(it))
		}
		fp := nonZero(d.Sum64())
		n.fp.Store(fp)
		return fp
	default:
		return xxhash.Sum64([]byte{tagAbsent})
	}
}

func primitiveFingerprint(p PrimitiveModel) uint64 {
	d := xxhash.New()
	switch v := p.value.(type) {
	case nil:
		_, _ = d.Write([]byte{tagNull})
	case string:
		_, _ = d.Write([]byte{tagString})
		_, _ = d.WriteString(v)
	case int64:
		_, _ = d.Write([]byte{tagInt})
		writeUint64(d, uint64(v))
	case float64:
		_, _ = d.Write([]byte{tagFloat})
		writeUint64(d, math.Float64bits(canonicalFloat(v)))
	case bool:
		_, _ = d.Write([]byte{tagBool})
		if v {
			_, _ = d.Write([]byte{1})
		} else {
			_, _ = d.Write([]byte{0})
		}
	}
	return d.Sum64()
}

// primitiveEqual is == except that every NaN equals every other NaN
func primitiveEqual(a, b PrimitiveModel) bool {
	if x, ok := a.value.(float64); ok {
		if y, ok := b.value.(float64); ok && math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
	}
	return a.value == b.value
}

// canonicalFloat folds -0 into 0 and every NaN into one bit pattern so
// Equal floats hash alike
func canonicalFloat(f float64) float64 {
	switch {
	case f == 0:
		return 0
	case math.IsNaN(f):
		return math.NaN()
	}
	return f
}

func writeUint64(d *xxhash.Digest, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = d.Write(buf[:])
}

// nonZero keeps 0 free as the "not cached" marker
func nonZero(h uint64) uint64 {
	if h == 0 {
		return 1
	}
	return h
}
