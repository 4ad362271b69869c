package adat

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindTuple
	KindMap
	KindDocument
)

var kindNames = [...]string{
	KindNull:     "null",
	KindString:   "string",
	KindInt:      "int",
	KindFloat:    "float",
	KindBool:     "bool",
	KindList:     "list",
	KindTuple:    "tuple",
	KindMap:      "map",
	KindDocument: "document",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a typed header value. The zero Value is Null.
//
// Every kind has a fixed textual form (Canonical) used when the header is
// written, so values built in code and values read back from a file compare
// equal through Canonical.
type Value struct {
	kind    Kind
	str     string
	num     int64
	flt     float64
	items   []Value
	entries []MapEntry
	doc     interface{}
}

// MapEntry is one key/value pair of a Map value. Keys may be any Value,
// including tuples.
type MapEntry struct {
	Key   Value
	Value Value
}

// Null returns the absent value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, num: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, flt: f} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// List returns a sequence value.
func List(items ...Value) Value {
	return Value{kind: KindList, items: append([]Value(nil), items...)}
}

// Tuple returns an immutable sequence value. Tuples are usable as map keys.
func Tuple(items ...Value) Value {
	return Value{kind: KindTuple, items: append([]Value(nil), items...)}
}

// Map returns an insertion-ordered mapping value.
func Map(entries ...MapEntry) Value {
	return Value{kind: KindMap, entries: append([]MapEntry(nil), entries...)}
}

// Entry is shorthand for building a MapEntry.
func Entry(key, value Value) MapEntry {
	return MapEntry{Key: key, Value: value}
}

// Document returns a structured value decoded from raw. The raw text is kept
// and is what gets written back, so a decoded field survives a round trip
// byte for byte.
func Document(raw string, decoded interface{}) Value {
	return Value{kind: KindDocument, str: raw, doc: decoded}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the absent value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string held by a String value, or the raw text of a
// Document.
func (v Value) Str() (string, bool) {
	switch v.kind {
	case KindString, KindDocument:
		return v.str, true
	}
	return "", false
}

// IntValue returns the integer held by an Int value.
func (v Value) IntValue() (int64, bool) {
	return v.num, v.kind == KindInt
}

// FloatValue returns the number held by a Float value.
func (v Value) FloatValue() (float64, bool) {
	return v.flt, v.kind == KindFloat
}

// BoolValue returns the flag held by a Bool value.
func (v Value) BoolValue() (bool, bool) {
	return v.num == 1, v.kind == KindBool
}

// Items returns the elements of a List or Tuple.
func (v Value) Items() []Value {
	if v.kind != KindList && v.kind != KindTuple {
		return nil
	}
	return append([]Value(nil), v.items...)
}

// Entries returns the pairs of a Map in insertion order.
func (v Value) Entries() []MapEntry {
	if v.kind != KindMap {
		return nil
	}
	return append([]MapEntry(nil), v.entries...)
}

// Decoded returns the structured content of a Document.
func (v Value) Decoded() interface{} {
	if v.kind != KindDocument {
		return nil
	}
	return v.doc
}

// String implements fmt.Stringer with the canonical form.
func (v Value) String() string { return v.Canonical() }

// Canonical returns the text written to an ADAT header for v.
func (v Value) Canonical() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString, KindDocument:
		return v.str
	case KindBool:
		if v.num == 1 {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return formatPyFloat(v.flt)
	default:
		return v.Repr()
	}
}

// Repr returns the quoted form of v used inside containers.
func (v Value) Repr() string {
	switch v.kind {
	case KindNull:
		return "None"
	case KindString, KindDocument:
		return quote(v.str)
	case KindBool, KindInt, KindFloat:
		return v.Canonical()
	case KindList:
		return "[" + joinRepr(v.items) + "]"
	case KindTuple:
		if len(v.items) == 1 {
			return "(" + v.items[0].Repr() + ",)"
		}
		return "(" + joinRepr(v.items) + ")"
	case KindMap:
		var b strings.Builder
		b.WriteByte('{')
		for i, e := range v.entries {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(e.Key.Repr())
			b.WriteString(": ")
			b.WriteString(e.Value.Repr())
		}
		b.WriteByte('}')
		return b.String()
	}
	return ""
}

// Equal reports whether two values hold the same kind and content.
// Documents compare by raw text.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return math.Float64bits(v.flt) == math.Float64bits(o.flt)
	case KindList, KindTuple:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.entries) != len(o.entries) {
			return false
		}
		for i := range v.entries {
			if !v.entries[i].Key.Equal(o.entries[i].Key) || !v.entries[i].Value.Equal(o.entries[i].Value) {
				return false
			}
		}
		return true
	default:
		return v.str == o.str && v.num == o.num
	}
}

func joinRepr(items []Value) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.Repr()
	}
	return strings.Join(parts, ", ")
}

// quote renders s with single quotes, switching to double quotes when s
// contains a single quote and no double quote.
func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == rune(q):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}

// formatPyFloat renders f as the shortest decimal that parses back to f,
// positional for exponents in [-4, 16) and scientific otherwise.
// Whole numbers keep a trailing ".0".
func formatPyFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
