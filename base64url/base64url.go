// Package base64url implements the strict unpadded base64url encoding used
// for all binary fields in WebAuthn JSON payloads.
//
// The WebAuthn serialization forbids padding; inputs containing '=', '+' or
// '/' are rejected rather than tolerated.
package base64url

import (
	"encoding/base64"
	"fmt"

	"github.com/pkg/errors"
)

// ErrEncoding is returned when an input is not valid unpadded base64url.
var ErrEncoding = errors.New("invalid base64url encoding")

// IsValid reports whether s is valid unpadded base64url. It performs no
// allocation.
func IsValid(s string) bool {
	// A single leftover character can never encode a full byte.
	if len(s)%4 == 1 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z':
		case 'a' <= c && c <= 'z':
		case '0' <= c && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// Decode decodes an unpadded base64url string.
func Decode(s string) ([]byte, error) {
	if !IsValid(s) {
		return nil, fmt.Errorf("%w: %q", ErrEncoding, s)
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(ErrEncoding, err.Error())
	}
	return b, nil
}

// Encode encodes b as unpadded base64url.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
