package attestation

import (
	"context"
	"fmt"
)

// verifyNone handles the "none" format: the authenticator declined to
// attest. The statement must be an empty map.
//
// https://www.w3.org/TR/webauthn-3/#sctn-none-attestation
func verifyNone(_ context.Context, in *verifyInput) (*Result, error) {
	// An empty CBOR map encodes to a single 0xa0 byte.
	if len(in.object.Statement) != 0 && string(in.object.Statement) != "\xa0" {
		return nil, fmt.Errorf("%w: none format carries a non-empty statement", ErrMalformedStatement)
	}
	return &Result{Format: FormatNone, Type: TypeNone}, nil
}
