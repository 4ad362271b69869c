package adat

import (
	"github.com/SomaLogic/Canopy/pkg/errors"
)

// DefaultFieldType is the declared type of a field without one.
const DefaultFieldType = "String"

// Well-known column metadata fields.
const (
	FieldSeqID        = "SeqId"
	FieldSeqIDVersion = "SeqIdVersion"
	FieldSomaID       = "SomaId"
)

// Field is one named metadata field with a value per row or column.
type Field struct {
	Name   string
	Type   string
	Values []string
}

// Metadata is an ordered list of fields of equal width. Field order is the
// order fields were added and is preserved on write.
type Metadata struct {
	fields []Field
}

// NewMetadata builds metadata from fields, checking names and widths.
func NewMetadata(fields ...Field) (Metadata, error) {
	var m Metadata
	for _, f := range fields {
		if err := m.Add(f); err != nil {
			return Metadata{}, err
		}
	}
	return m, nil
}

// Len returns the number of fields.
func (m Metadata) Len() int { return len(m.fields) }

// Width returns the number of values per field, or 0 with no fields.
func (m Metadata) Width() int {
	if len(m.fields) == 0 {
		return 0
	}
	return len(m.fields[0].Values)
}

// Names returns the field names in order.
func (m Metadata) Names() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.Name
	}
	return names
}

// Types returns the declared field types in order.
func (m Metadata) Types() []string {
	types := make([]string, len(m.fields))
	for i, f := range m.fields {
		types[i] = f.Type
	}
	return types
}

// Index returns the position of name, or -1.
func (m Metadata) Index(name string) int {
	for i, f := range m.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether a field named name exists.
func (m Metadata) Has(name string) bool { return m.Index(name) >= 0 }

// Field returns a copy of the named field.
func (m Metadata) Field(name string) (Field, bool) {
	i := m.Index(name)
	if i < 0 {
		return Field{}, false
	}
	return m.At(i), true
}

// At returns a copy of the field at position i.
func (m Metadata) At(i int) Field {
	f := m.fields[i]
	f.Values = append([]string(nil), f.Values...)
	return f
}

// Fields returns copies of all fields in order.
func (m Metadata) Fields() []Field {
	out := make([]Field, len(m.fields))
	for i := range m.fields {
		out[i] = m.At(i)
	}
	return out
}

// Values returns a copy of the named field's values, or nil.
func (m Metadata) Values(name string) []string {
	i := m.Index(name)
	if i < 0 {
		return nil
	}
	return append([]string(nil), m.fields[i].Values...)
}

// Value returns the value of the named field at position i.
func (m Metadata) Value(name string, i int) (string, bool) {
	idx := m.Index(name)
	if idx < 0 || i < 0 || i >= len(m.fields[idx].Values) {
		return "", false
	}
	return m.fields[idx].Values[i], true
}

// Add appends a field.
func (m *Metadata) Add(f Field) error {
	return m.Insert(len(m.fields), f)
}

// Insert places a field at position i.
func (m *Metadata) Insert(i int, f Field) error {
	if err := m.check(f); err != nil {
		return err
	}
	if i < 0 || i > len(m.fields) {
		return errors.Newf(errors.ErrorTypeValidation, "field position %d out of range [0, %d]", i, len(m.fields))
	}
	f = normalizeField(f)
	fields := make([]Field, 0, len(m.fields)+1)
	fields = append(fields, m.fields[:i]...)
	fields = append(fields, f)
	fields = append(fields, m.fields[i:]...)
	m.fields = fields
	return nil
}

// Set replaces the values of an existing field, keeping its position and
// type, or appends a new String field.
func (m *Metadata) Set(name string, values []string) error {
	i := m.Index(name)
	if i < 0 {
		return m.Add(Field{Name: name, Values: values})
	}
	if len(m.fields) > 1 && len(values) != m.Width() {
		return errors.Newf(errors.ErrorTypeValidation, "field %q has %d values, expected %d", name, len(values), m.Width()).
			WithDetail("field", name)
	}
	fields := append([]Field(nil), m.fields...)
	fields[i].Values = append([]string(nil), values...)
	m.fields = fields
	return nil
}

// Delete removes the named field and reports whether it existed.
func (m *Metadata) Delete(name string) bool {
	i := m.Index(name)
	if i < 0 {
		return false
	}
	fields := make([]Field, 0, len(m.fields)-1)
	fields = append(fields, m.fields[:i]...)
	fields = append(fields, m.fields[i+1:]...)
	m.fields = fields
	return true
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	return Metadata{fields: m.Fields()}
}

// Select returns metadata restricted to the given value positions, in the
// order given.
func (m Metadata) Select(indices []int) Metadata {
	out := Metadata{fields: make([]Field, len(m.fields))}
	for i, f := range m.fields {
		vals := make([]string, len(indices))
		for j, idx := range indices {
			vals[j] = f.Values[idx]
		}
		out.fields[i] = Field{Name: f.Name, Type: f.Type, Values: vals}
	}
	return out
}

// Equal reports whether both hold the same fields, types and values in order.
func (m Metadata) Equal(o Metadata) bool {
	if len(m.fields) != len(o.fields) {
		return false
	}
	for i, f := range m.fields {
		g := o.fields[i]
		if f.Name != g.Name || f.Type != g.Type || len(f.Values) != len(g.Values) {
			return false
		}
		for j := range f.Values {
			if f.Values[j] != g.Values[j] {
				return false
			}
		}
	}
	return true
}

func (m Metadata) check(f Field) error {
	if f.Name == "" {
		return errors.New(errors.ErrorTypeValidation, "metadata field name is empty")
	}
	if m.Has(f.Name) {
		return errors.Newf(errors.ErrorTypeValidation, "duplicate metadata field %q", f.Name).
			WithDetail("field", f.Name)
	}
	if len(m.fields) > 0 && len(f.Values) != m.Width() {
		return errors.Newf(errors.ErrorTypeValidation, "field %q has %d values, expected %d", f.Name, len(f.Values), m.Width()).
			WithDetail("field", f.Name)
	}
	return nil
}

func normalizeField(f Field) Field {
	if f.Type == "" {
		f.Type = DefaultFieldType
	}
	f.Values = append([]string(nil), f.Values...)
	return f
}
