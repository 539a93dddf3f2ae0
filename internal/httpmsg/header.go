package httpmsg

import "strings"

// Header is a single (name, value) pair. Names are stored verbatim for
// display; comparisons are always case-insensitive.
type Header struct {
	Name  string
	Value string
}

// HeaderList is an ordered sequence of headers. Sequence order is
// preserved; a lookup returns the first case-insensitive match.
type HeaderList []Header

// Get returns the first value for name (case-insensitive), or "" if absent.
func (h HeaderList) Get(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Add appends a header, preserving duplicates. Request parsing uses Set
// instead, which calls Add only when the name is not yet present.
func (h *HeaderList) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Set replaces the value of the first case-insensitive match, or appends a
// new header if none exists. This realizes the request reader's
// last-write-wins duplicate handling (spec §4.2).
func (h *HeaderList) Set(name, value string) {
	for i, hdr := range *h {
		if strings.EqualFold(hdr.Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	h.Add(name, value)
}

// HasToken reports whether the comma-separated value of header name
// contains token (case-insensitive), matching how Connection/Upgrade-style
// headers carry multiple tokens.
func (h HeaderList) HasToken(name, token string) bool {
	v, ok := h.Get(name)
	if !ok {
		return false
	}
	for _, part := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
