package scratch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	for _, text := range []string{
		"",
		"pong",
		"give 30 bob alicesmith",
		"Welcome dave!",
		"héllo wörld", // Multi-byte runes travel as their UTF-8 bytes
		"a\x1fb\x1ec", // Field and record separators survive
	} {
		decoded, err := Decode(Encode(text))
		require.NoError(t, err)
		assert.Equal(t, text, decoded)
	}
}

func TestEncode_DigitsOnly(t *testing.T) {
	digits := Encode("ping")
	assert.Len(t, digits, 12)
	for _, r := range digits {
		assert.True(t, r >= '0' && r <= '9')
	}
}

func TestDecode_RejectsMalformedPayloads(t *testing.T) {
	for _, digits := range []string{
		"12",   // Not a whole number of byte codes
		"1234", // Not a whole number of byte codes
		"12a",  // Non-digit
		"999",  // Out of byte range
	} {
		_, err := Decode(digits)
		assert.ErrorIs(t, err, ErrBadDigits, "payload %q", digits)
	}
}
