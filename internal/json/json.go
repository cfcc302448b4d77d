// Package json routes all claims encoding through a single codec.
package json

import (
	"io"

	gojson "github.com/goccy/go-json"
)

type (
	Number     = gojson.Number
	RawMessage = gojson.RawMessage
	Marshaler  = gojson.Marshaler
)

var (
	Marshal       = gojson.Marshal
	MarshalIndent = gojson.MarshalIndent
	Unmarshal     = gojson.Unmarshal
	Valid         = gojson.Valid
)

// NewDecoder returns a decoder that keeps numbers as Number so integer
// claims are never rounded through float64.
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// ValidNumber reports whether s is a number literal as defined by RFC 8259
// section 6. The decoder is lenient about leading zeros and a bare trailing
// dot, so decoded Numbers are checked with this before they are trusted.
func ValidNumber(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
		if s == "" {
			return false
		}
	}
	switch {
	case s[0] == '0':
		s = s[1:]
	case s[0] >= '1' && s[0] <= '9':
		s = skipDigits(s[1:])
	default:
		return false
	}
	if len(s) > 0 && s[0] == '.' {
		rest := skipDigits(s[1:])
		if len(rest) == len(s)-1 {
			return false
		}
		s = rest
	}
	if len(s) > 0 && (s[0] == 'e' || s[0] == 'E') {
		s = s[1:]
		if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
			s = s[1:]
		}
		rest := skipDigits(s)
		if len(rest) == len(s) {
			return false
		}
		s = rest
	}
	return s == ""
}

func skipDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[i:]
}
