package model

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// FromGo converts a plain Go value into a Model. Maps with string keys become
// MapModels (keys sorted, since Go maps have no order), slices and arrays
// become ListModels, scalars become primitives. Models pass through unchanged.
func FromGo(v interface{}) (Model, error) {
	switch x := v.(type) {
	case Model:
		return normalize(x), nil
	case time.Time:
		return String(x.Format(time.RFC3339Nano)), nil
	case fmt.Stringer:
		if p, err := NewPrimitive(v); err == nil {
			return p, nil
		}
		return String(x.String()), nil
	}
	if p, err := NewPrimitive(v); err == nil {
		return p, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key type %s is not a string", rv.Type().Key())
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		entries := make([]Entry, 0, len(keys))
		for _, k := range keys {
			child, err := FromGo(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			entries = append(entries, Entry{Key: k, Value: child})
		}
		return NewMap(entries...), nil
	case reflect.Slice, reflect.Array:
		items := make([]Model, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			child, err := FromGo(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = child
		}
		return NewList(items...), nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return FromGo(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("cannot convert %T to a model", v)
}

// ToGo converts a Model into plain Go values: map[string]interface{},
// []interface{} (holes become nil), scalars, and nil for Absent.
func ToGo(m Model) interface{} {
	return Visit[interface{}](m, toGoVisitor{})
}

type toGoVisitor struct{}

func (toGoVisitor) Map(m *MapModel) interface{} {
	out := make(map[string]interface{}, m.Len())
	m.Range(func(k string, v Model) bool {
		out[k] = ToGo(v)
		return true
	})
	return out
}

func (toGoVisitor) List(l *ListModel) interface{} {
	out := make([]interface{}, l.Len())
	for i, it := range l.items {
		out[i] = ToGo(it)
	}
	return out
}

func (toGoVisitor) Primitive(p PrimitiveModel) interface{} { return p.value }

func (toGoVisitor) Absent() interface{} { return nil }
