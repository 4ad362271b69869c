// Package strings provides string interning for parsers that keep many
// repeated values.
//
// Values cut from a large input buffer share that buffer's memory, so
// keeping even one of them alive keeps the whole input alive. Interning
// copies each distinct value once and hands out the copy for every repeat.
package strings

import "strings"

// Clone returns a copy of s that does not share memory with it.
func Clone(s string) string {
	return strings.Clone(s)
}

// Intern deduplicates strings. It is not safe for concurrent use.
type Intern struct {
	strings map[string]string
	hits    int
}

// NewIntern creates a new string interner
func NewIntern() *Intern {
	return &Intern{
		strings: make(map[string]string),
	}
}

// Get returns an interned version of the string
func (intern *Intern) Get(s string) string {
	if interned, exists := intern.strings[s]; exists {
		intern.hits++
		return interned
	}

	cloned := Clone(s)
	intern.strings[cloned] = cloned
	return cloned
}

// All interns every value of values in place and returns it.
func (intern *Intern) All(values []string) []string {
	for i, v := range values {
		values[i] = intern.Get(v)
	}
	return values
}

// Size returns the number of interned strings
func (intern *Intern) Size() int {
	return len(intern.strings)
}

// Hits returns how many calls to Get were served by an existing copy.
func (intern *Intern) Hits() int {
	return intern.hits
}

// Clear removes all interned strings
func (intern *Intern) Clear() {
	intern.strings = make(map[string]string)
	intern.hits = 0
}
