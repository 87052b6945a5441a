// Package euphid implements the snowflake-style message and session
// identifiers used throughout grove: 64-bit values whose ordering tracks
// time, encoded on the wire as fixed-width base-36 strings.
package euphid

import (
	"fmt"
	"strings"
)

// Max is the largest usable id value. It fits a signed 64-bit column, which
// is why it is one bit short of the full unsigned range.
const Max uint64 = 1<<63 - 1

// width is the fixed wire width of an encoded id: 13 base-36 digits is
// enough to represent Max with room to spare, and padding keeps ids
// lexicographically sortable as strings.
const width = 13

const digits = "0123456789abcdefghijklmnopqrstuvwxyz"

// ID is a message or session identifier. The zero value is not a valid id;
// callers should use the None/IsZero helpers rather than relying on it.
type ID uint64

// None is the sentinel used where the spec allows an id field to be absent
// (e.g. span endpoints at ±infinity, a root message's parent).
const None ID = 0

// IsZero reports whether id is the None sentinel.
func (id ID) IsZero() bool { return id == None }

// String renders id as its fixed-width base-36 encoding.
func (id ID) String() string {
	return encode(uint64(id))
}

func encode(v uint64) string {
	var buf [width]byte
	for i := width - 1; i >= 0; i-- {
		buf[i] = digits[v%36]
		v /= 36
	}
	return string(buf[:])
}

// Parse decodes a 13-character base-36 string into an ID. It rejects
// inputs of the wrong length, inputs containing characters outside
// [0-9a-z] (case-insensitive), and values exceeding Max.
func Parse(s string) (ID, error) {
	if len(s) != width {
		return 0, fmt.Errorf("euphid: invalid id %q: want length %d, got %d", s, width, len(s))
	}
	s = strings.ToLower(s)
	var v uint64
	for i := 0; i < width; i++ {
		c := s[i]
		d := strings.IndexByte(digits, c)
		if d < 0 {
			return 0, fmt.Errorf("euphid: invalid id %q: bad digit %q at position %d", s, c, i)
		}
		v = v*36 + uint64(d)
	}
	if v > Max {
		return 0, fmt.Errorf("euphid: invalid id %q: exceeds maximum %d", s, Max)
	}
	return ID(v), nil
}

// MarshalText implements encoding.TextMarshaler so IDs round-trip through
// JSON as plain strings.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
