package model

// HTTP/2 pseudo-header names.
const (
	PseudoMethod    = ":method"
	PseudoScheme    = ":scheme"
	PseudoAuthority = ":authority"
	PseudoPath      = ":path"
	PseudoStatus    = ":status"
)

// Header is a single header field.
// Name and Value are raw strings: they may carry upper case letters, colons,
// CR or LF. Nothing in this package validates or normalizes them.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeaderList is an ordered list of header fields.
// Order is significant and duplicates are allowed.
type HeaderList []Header

// Get returns the value of the first field whose name equals name exactly.
func (h HeaderList) Get(name string) (string, bool) {
	for _, f := range h {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Status returns the :status value, or "" when absent.
func (h HeaderList) Status() string {
	v, _ := h.Get(PseudoStatus)
	return v
}

// Clone returns a copy that shares no backing array with h.
func (h HeaderList) Clone() HeaderList {
	if h == nil {
		return nil
	}
	out := make(HeaderList, len(h))
	copy(out, h)
	return out
}

// With returns a copy of h in which the first field named name has the given
// value. If no such field exists the field is appended.
func (h HeaderList) With(name, value string) HeaderList {
	out := h.Clone()
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Header{Name: name, Value: value})
}

// Append returns a copy of h with the given fields added at the end.
func (h HeaderList) Append(fields ...Header) HeaderList {
	out := make(HeaderList, 0, len(h)+len(fields))
	out = append(out, h...)
	return append(out, fields...)
}
