package hdr

import (
	"io"
	"strings"
)

// Store is a case-normalised multimap of HTTP header fields. Unlike
// Header (a bare map, unordered), Store remembers the order fields
// were first added so iteration reproduces wire order — the property
// Connection/RequestHandler/HttpClient all rely on when echoing
// headers back out. Add joins the combined value for a name with a
// comma, matching the single-value Get a caller normally wants; Set
// replaces both the list and the joined value; GetList exposes the
// raw per-occurrence values.
type Store struct {
	order  []string
	values map[string][]string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{values: make(map[string][]string)}
}

// Add appends value to name's list, canonicalizing name first.
func (s *Store) Add(name, value string) {
	key := CanonicalHeaderKey(name)
	if _, ok := s.values[key]; !ok {
		s.order = append(s.order, key)
	}
	s.values[key] = append(s.values[key], value)
}

// Set replaces name's entire value list with the single element
// value.
func (s *Store) Set(name, value string) {
	key := CanonicalHeaderKey(name)
	if _, ok := s.values[key]; !ok {
		s.order = append(s.order, key)
	}
	s.values[key] = []string{value}
}

// Get returns the comma-joined combined value for name, or "" if
// absent.
func (s *Store) Get(name string) string {
	vv := s.values[CanonicalHeaderKey(name)]
	if len(vv) == 0 {
		return ""
	}
	return strings.Join(vv, ", ")
}

// GetList returns the raw list of values added for name, possibly
// empty. The returned slice must not be mutated by the caller.
func (s *Store) GetList(name string) []string {
	return s.values[CanonicalHeaderKey(name)]
}

// Has reports whether name has at least one value.
func (s *Store) Has(name string) bool {
	return len(s.values[CanonicalHeaderKey(name)]) > 0
}

// Del removes every value for name.
func (s *Store) Del(name string) {
	key := CanonicalHeaderKey(name)
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Each calls fn once per (name, value) pair in addition order, with
// each list element delivered as its own pair.
func (s *Store) Each(fn func(name, value string)) {
	for _, key := range s.order {
		for _, v := range s.values[key] {
			fn(key, v)
		}
	}
}

// Clone returns a deep copy.
func (s *Store) Clone() *Store {
	cp := NewStore()
	cp.order = append([]string(nil), s.order...)
	for k, vv := range s.values {
		cp.values[k] = append([]string(nil), vv...)
	}
	return cp
}

// WriteTo serializes the store in "Name: value\r\n" wire format,
// addition order, one line per raw value — the format
// Connection.writeHeaders and HttpClient's request writer both use.
func (s *Store) WriteTo(w io.Writer) error {
	ws, ok := w.(writeStringer)
	if !ok {
		ws = stringWriter{w}
	}
	var err error
	s.Each(func(name, value string) {
		if err != nil {
			return
		}
		value = HeaderNewlineToSpace.Replace(value)
		value = TrimString(value)
		for _, part := range []string{name, ": ", value, "\r\n"} {
			if _, werr := ws.WriteString(part); werr != nil {
				err = werr
				return
			}
		}
	})
	return err
}

// ToHeader converts the Store into a plain Header, for interop with
// the parts of the module still built around net/http-style header
// maps (multipart parsing, the mime package).
func (s *Store) ToHeader() Header {
	h := make(Header, len(s.order))
	for _, key := range s.order {
		h[key] = append([]string(nil), s.values[key]...)
	}
	return h
}

// FromHeader builds a Store from a plain Header, preserving only the
// map's (unordered) iteration as the addition order — used once, at
// parse time, when a HeaderReader has already produced a Header.
func FromHeader(h Header) *Store {
	s := NewStore()
	for k, vv := range h {
		key := CanonicalHeaderKey(k)
		s.order = append(s.order, key)
		s.values[key] = append([]string(nil), vv...)
	}
	return s
}
