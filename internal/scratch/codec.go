package scratch

import (
	"errors"  // Decode failures
	"strings" // Builder for decoded text
)

// Cloud variables only carry numerals, so request and reply text moves
// as digit strings: each UTF-8 byte becomes three decimal digits.

// ErrBadDigits is returned when a payload is not a whole number of
// three-digit byte codes
var ErrBadDigits = errors.New("scratch: malformed digit payload")

// Encode turns text into the digit form a cloud variable can hold
func Encode(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		b.WriteByte('0' + c/100)   // Hundreds digit
		b.WriteByte('0' + c/10%10) // Tens digit
		b.WriteByte('0' + c%10)    // Ones digit
	}
	return b.String()
}

// Decode turns a digit payload back into text
func Decode(digits string) (string, error) {
	if len(digits)%3 != 0 {
		return "", ErrBadDigits
	}
	raw := make([]byte, 0, len(digits)/3)
	for i := 0; i < len(digits); i += 3 {
		var v int
		for j := 0; j < 3; j++ {
			d := digits[i+j]
			if d < '0' || d > '9' {
				return "", ErrBadDigits
			}
			v = v*10 + int(d-'0')
		}
		if v > 255 {
			return "", ErrBadDigits
		}
		raw = append(raw, byte(v))
	}
	return string(raw), nil
}
