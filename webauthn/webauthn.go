// Package webauthn verifies browser-submitted WebAuthn registration and
// authentication responses on behalf of a relying party. It orchestrates the
// clientdata, authenticatordata, cosekey and attestation packages and
// enforces the ceremony's policy checks in order.
//
// All verification is pure computation over the inputs. The only suspension
// points are the caller-supplied challenge predicate and the trust anchor
// lookup, both of which receive the caller's context.
package webauthn

import (
	"github.com/splitsecure/go-webauthn/attestation"
)

// CredentialDeviceType reports whether a credential is bound to one
// authenticator or eligible to sync across devices, derived from the BE flag.
type CredentialDeviceType string

const (
	SingleDevice CredentialDeviceType = "singleDevice"
	MultiDevice  CredentialDeviceType = "multiDevice"
)

// UserVerificationRequirement selects the advanced flag-policy mode for
// authentication. Supplying any value switches the verifier away from the
// standard RequireUserVerification policy.
type UserVerificationRequirement string

const (
	UserVerificationRequired    UserVerificationRequirement = "required"
	UserVerificationPreferred   UserVerificationRequirement = "preferred"
	UserVerificationDiscouraged UserVerificationRequirement = "discouraged"
)

// Credential is the caller-owned stored credential state consulted during
// authentication. The verifier only reads it; persisting the returned
// NewCounter is the caller's job.
type Credential struct {
	// ID is the credential id as raw bytes.
	ID []byte

	// PublicKey is the CBOR COSE public key captured at registration.
	PublicKey []byte

	// SignCount is the counter stored after the last successful ceremony.
	SignCount uint32
}

// Verifier verifies ceremony responses. Construct with New; the zero value
// verifies with no attestation trust anchors.
type Verifier struct {
	anchors attestation.TrustAnchorSource
}

type optionsState struct {
	anchors attestation.TrustAnchorSource
}

type option struct {
	apply func(*optionsState)
}

func newoption(fn func(*optionsState)) option {
	return option{
		apply: fn,
	}
}

// WithTrustAnchors supplies the external trust anchor store consulted when
// verifying attestation certificate chains. Without it every attestation
// result degrades to untrusted.
func WithTrustAnchors(src attestation.TrustAnchorSource) option {
	return newoption(func(s *optionsState) {
		s.anchors = src
	})
}

func New(options ...option) (*Verifier, error) {
	state := optionsState{}
	for _, option := range options {
		option.apply(&state)
	}

	return &Verifier{
		anchors: state.anchors,
	}, nil
}
