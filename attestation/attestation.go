// Package attestation parses WebAuthn attestation objects and verifies
// attestation statements for the registered statement formats.
//
// https://www.w3.org/TR/webauthn-3/#sctn-defined-attestation-formats
package attestation

import (
	"context"
	"crypto/x509"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/splitsecure/go-webauthn/authenticatordata"
)

var (
	// ErrUnsupportedFormat is returned for attestation formats this package
	// does not implement.
	ErrUnsupportedFormat = errors.New("unsupported attestation format")

	// ErrMalformedStatement is returned when the attestation object or a
	// format statement is structurally invalid.
	ErrMalformedStatement = errors.New("malformed attestation statement")

	// ErrVerification is returned when a statement is well-formed but its
	// cryptographic claims do not hold (bad signature, nonce or certificate
	// mismatch). Callers treat this as a failed verdict rather than a
	// malformed request.
	ErrVerification = errors.New("attestation verification failed")
)

// Format identifies an attestation statement format.
type Format string

const (
	FormatNone             Format = "none"
	FormatPacked           Format = "packed"
	FormatFIDOU2F          Format = "fido-u2f"
	FormatAndroidKey       Format = "android-key"
	FormatAndroidSafetyNet Format = "android-safetynet"
	FormatTPM              Format = "tpm"
	FormatApple            Format = "apple"
)

// Type classifies the provenance a verified statement conveys.
//
// https://www.w3.org/TR/webauthn-3/#sctn-attestation-types
type Type int

const (
	// TypeNone: the authenticator provided no attestation.
	TypeNone Type = iota
	// TypeSelf: signed with the credential key itself.
	TypeSelf
	// TypeBasic: signed with a shared attestation key.
	TypeBasic
	// TypeAttCA: signed with a key certified by an attestation CA (tpm).
	TypeAttCA
	// TypeAnonCA: signed through an anonymization CA (apple).
	TypeAnonCA
)

var typeStrings = map[Type]string{
	TypeNone:   "none",
	TypeSelf:   "self",
	TypeBasic:  "basic",
	TypeAttCA:  "attca",
	TypeAnonCA: "anonca",
}

func (t Type) String() string {
	if s, ok := typeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// TrustAnchorSource supplies trusted roots for an attestation format and
// authenticator model. It is an external collaborator; implementations may
// perform I/O and should honor ctx. A nil pool means no anchors are
// configured for that format, which degrades the result to untrusted rather
// than failing.
type TrustAnchorSource interface {
	Roots(ctx context.Context, format Format, aaguid authenticatordata.AAGUID) (*x509.CertPool, error)
}

// Result is the verdict of a statement verification.
type Result struct {
	Format Format
	Type   Type

	// TrustPath is the certificate chain from the statement, leaf first.
	// Empty for none and self attestation.
	TrustPath []*x509.Certificate

	// Trusted reports whether TrustPath chains to a configured trust
	// anchor. False when no anchors are configured: the statement is then
	// treated as self-asserted, which is a policy concern, not a protocol
	// failure.
	Trusted bool
}

// Object is a parsed attestation object.
type Object struct {
	Format    Format          `cbor:"fmt"`
	Statement cbor.RawMessage `cbor:"attStmt"`
	AuthData  []byte          `cbor:"authData"`
}

// Parse decodes the CBOR attestation object.
func Parse(b []byte) (*Object, error) {
	obj := &Object{}
	if err := cbor.Unmarshal(b, obj); err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, err.Error())
	}
	if len(obj.AuthData) == 0 {
		return nil, fmt.Errorf("%w: attestation object has no authData", ErrMalformedStatement)
	}
	if obj.Format == "" {
		return nil, fmt.Errorf("%w: attestation object has no format", ErrMalformedStatement)
	}
	return obj, nil
}

// verifyInput bundles what every format verifier needs: the raw and parsed
// authenticator data, the client data hash, and the trust anchor
// collaborator.
type verifyInput struct {
	object         *Object
	authData       *authenticatordata.Data
	clientDataHash []byte
	anchors        TrustAnchorSource
}

// Verify dispatches to the statement format's verifier. authData must be
// the parsed form of o.AuthData; clientDataHash is SHA-256 over the exact
// clientDataJSON bytes.
func (o *Object) Verify(ctx context.Context, authData *authenticatordata.Data, clientDataHash []byte, anchors TrustAnchorSource) (*Result, error) {
	in := &verifyInput{
		object:         o,
		authData:       authData,
		clientDataHash: clientDataHash,
		anchors:        anchors,
	}
	switch o.Format {
	case FormatNone:
		return verifyNone(ctx, in)
	case FormatPacked:
		return verifyPacked(ctx, in)
	case FormatFIDOU2F:
		return verifyFIDOU2F(ctx, in)
	case FormatAndroidKey:
		return verifyAndroidKey(ctx, in)
	case FormatAndroidSafetyNet:
		return verifyAndroidSafetyNet(ctx, in)
	case FormatTPM:
		return verifyTPM(ctx, in)
	case FormatApple:
		return verifyApple(ctx, in)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, o.Format)
}

// signedData returns authenticatorData || clientDataHash, the byte string
// most statement formats sign.
func (in *verifyInput) signedData() []byte {
	data := make([]byte, 0, len(in.object.AuthData)+len(in.clientDataHash))
	data = append(data, in.object.AuthData...)
	data = append(data, in.clientDataHash...)
	return data
}

func (in *verifyInput) aaguid() authenticatordata.AAGUID {
	if in.authData.AttestedCredentialData == nil {
		return authenticatordata.AAGUID{}
	}
	return in.authData.AttestedCredentialData.AAGUID
}
