package base64url_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/splitsecure/go-webauthn/base64url"
)

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{0x00},
		{0xff, 0xfe, 0xfd},
		[]byte("challenge-value-1234"),
		{0xfb, 0xff, 0xbf, 0xef}, // encodes to characters from the url-safe range
	}
	for _, p := range payloads {
		enc := base64url.Encode(p)
		require.True(t, base64url.IsValid(enc), "encoded value %q should be valid", enc)
		dec, err := base64url.Decode(enc)
		require.NoError(t, err)
		require.Equal(t, []byte(p), append([]byte{}, dec...))
	}
}

func TestDecodeRejectsPaddingAndStandardAlphabet(t *testing.T) {
	for _, s := range []string{
		"aGVsbG8=",  // padded
		"aGവsbG8",   // non-ascii
		"ab+c",      // standard alphabet
		"ab/c",      // standard alphabet
		"abc de",    // whitespace
		"a",         // impossible length
		"ab\ncd",    // newline
		"YWJjZA==",  // double padding
	} {
		_, err := base64url.Decode(s)
		require.Error(t, err, "input %q", s)
		require.True(t, errors.Is(err, base64url.ErrEncoding))
		require.False(t, base64url.IsValid(s))
	}
}

func TestIsValidDoesNotAllocate(t *testing.T) {
	s := base64url.Encode(make([]byte, 1024))
	allocs := testing.AllocsPerRun(10, func() {
		if !base64url.IsValid(s) {
			t.Fatal("expected valid")
		}
	})
	require.Zero(t, allocs)
}
