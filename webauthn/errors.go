package webauthn

import "github.com/pkg/errors"

// Structural errors: the response is not a well-formed ceremony response.
var (
	ErrMissingCredentialID      = errors.New("response has no credential id")
	ErrCredentialIDMismatch     = errors.New("credential id and rawId differ")
	ErrUnexpectedCredentialType = errors.New("credential type is not public-key")
	ErrMissingResponseField     = errors.New("response field missing")
	ErrInvalidEncoding          = errors.New("response field is not valid base64url")
)

// Policy violations: the response is well-formed but fails a check the
// caller configured. These never downgrade to a verified:false result.
var (
	ErrTypeMismatch      = errors.New("client data type mismatch")
	ErrChallengeMismatch = errors.New("challenge mismatch")
	ErrOriginMismatch    = errors.New("origin not in expected set")
	ErrRPIDMismatch      = errors.New("rp id hash matches no expected rp id")
	ErrUserNotPresent    = errors.New("user presence flag not set")
	ErrUserNotVerified   = errors.New("user verification flag not set")
	ErrCounterRegression = errors.New("signature counter did not increase")

	// ErrMissingAttestedCredentialData rejects a registration whose
	// authenticator data carries no attested credential block.
	ErrMissingAttestedCredentialData = errors.New("authenticator data has no attested credential data")
)
