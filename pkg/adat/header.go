package adat

// Well-known header keys.
const (
	KeyAssayVersion     = "AssayVersion"
	KeyAssayVersionBang = "!AssayVersion"
	KeySignalSpace      = "SignalSpace"
	KeyStudyMatrix      = "StudyMatrix"
	KeyProcessSteps     = "!ProcessSteps"
	KeyReportConfig     = "ReportConfig"
)

// Header is the ordered key/value block at the top of an ADAT file.
// The zero Header is empty and ready to use.
type Header struct {
	keys   []string
	values map[string]Value
}

// NewHeader returns an empty header.
func NewHeader() Header {
	return Header{values: make(map[string]Value)}
}

// Set stores v under key. An existing key keeps its position.
func (h *Header) Set(key string, v Value) {
	if h.values == nil {
		h.values = make(map[string]Value)
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = v
}

// SetString stores a String value under key.
func (h *Header) SetString(key, value string) {
	h.Set(key, String(value))
}

// Get returns the value stored under key.
func (h Header) Get(key string) (Value, bool) {
	v, ok := h.values[key]
	return v, ok
}

// Lookup returns the canonical text stored under key.
func (h Header) Lookup(key string) (string, bool) {
	v, ok := h.values[key]
	if !ok {
		return "", false
	}
	return v.Canonical(), true
}

// Has reports whether key is present.
func (h Header) Has(key string) bool {
	_, ok := h.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (h Header) Keys() []string {
	return append([]string(nil), h.keys...)
}

// Len returns the number of entries.
func (h Header) Len() int { return len(h.keys) }

// Delete removes key and reports whether it was present.
func (h *Header) Delete(key string) bool {
	if _, ok := h.values[key]; !ok {
		return false
	}
	delete(h.values, key)
	keys := make([]string, 0, len(h.keys)-1)
	for _, k := range h.keys {
		if k != key {
			keys = append(keys, k)
		}
	}
	h.keys = keys
	return true
}

// Clone returns an independent copy. Values are immutable, so only the
// containers are copied.
func (h Header) Clone() Header {
	c := Header{
		keys:   append([]string(nil), h.keys...),
		values: make(map[string]Value, len(h.values)),
	}
	for k, v := range h.values {
		c.values[k] = v
	}
	return c
}

// Equal reports whether both headers hold the same keys in the same order
// with equal canonical text.
func (h Header) Equal(o Header) bool {
	if len(h.keys) != len(o.keys) {
		return false
	}
	for i, k := range h.keys {
		if o.keys[i] != k {
			return false
		}
		if h.values[k].Canonical() != o.values[k].Canonical() {
			return false
		}
	}
	return true
}
