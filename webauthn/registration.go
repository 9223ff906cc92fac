package webauthn

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/pkg/errors"

	"github.com/splitsecure/go-webauthn/attestation"
	"github.com/splitsecure/go-webauthn/authenticatordata"
	"github.com/splitsecure/go-webauthn/clientdata"
)

type VerifyRegistrationInput struct {
	// Response is the parsed PublicKeyCredential from the browser.
	Response *RegistrationResponse

	// ExpectedChallenge is compared literally against the client data
	// challenge. Supply VerifyChallenge instead to decide with a predicate;
	// the two are alternatives and the predicate wins when both are set.
	ExpectedChallenge string
	VerifyChallenge   ChallengeFunc

	// ExpectedOrigin/ExpectedOrigins and ExpectedRPID/ExpectedRPIDs are
	// one-or-many pairs; the singular value is reported back in the result
	// when it matches.
	ExpectedOrigin  string
	ExpectedOrigins []string
	ExpectedRPID    string
	ExpectedRPIDs   []string

	// ExpectedType overrides the default "webauthn.create" ceremony type
	// check. ExpectedTypes allows a set.
	ExpectedType  string
	ExpectedTypes []string

	// RequireUserVerification demands the UV flag. Nil defaults to true.
	RequireUserVerification *bool
}

// VerifiedRegistration is the durable outcome of a create ceremony. The
// caller persists CredentialID, PublicKey and SignCount.
type VerifiedRegistration struct {
	Verified bool `json:"verified"`

	CredentialID []byte `json:"credentialId"`

	// PublicKey is the credential public key as CBOR COSE bytes, the form
	// VerifyAuthentication consumes later.
	PublicKey []byte `json:"publicKey"`

	SignCount uint32 `json:"signCount"`

	AAGUID               string               `json:"aaguid"`
	UserVerified         bool                 `json:"userVerified"`
	CredentialDeviceType CredentialDeviceType `json:"credentialDeviceType"`
	CredentialBackedUp   bool                 `json:"credentialBackedUp"`

	Attestation *attestation.Result `json:"-"`

	Extensions map[string]any `json:"extensions,omitempty"`

	Origin string `json:"origin"`
	RPID   string `json:"rpId"`
}

// VerifyRegistration validates a create ceremony response. Structural and
// policy failures return an error with no result; a failed attestation
// signature returns Verified=false.
func (v *Verifier) VerifyRegistration(ctx context.Context, in *VerifyRegistrationInput) (*VerifiedRegistration, error) {
	if in.Response == nil {
		return nil, fmt.Errorf("%w: response", ErrMissingResponseField)
	}
	if err := in.Response.check(); err != nil {
		return nil, err
	}

	exp := &expectations{
		types:      oneOrMany(in.ExpectedType, in.ExpectedTypes),
		origins:    oneOrMany(in.ExpectedOrigin, in.ExpectedOrigins),
		rpIDs:      oneOrMany(in.ExpectedRPID, in.ExpectedRPIDs),
		challenge:  in.ExpectedChallenge,
		challengeF: in.VerifyChallenge,
	}

	cd, cdRaw, err := clientdata.Decode(in.Response.Response.ClientDataJSON)
	if err != nil {
		return nil, err
	}
	if err := exp.checkType(clientdata.TypeCreate, cd.Type); err != nil {
		return nil, err
	}
	if err := exp.checkChallenge(ctx, cd.Challenge); err != nil {
		return nil, err
	}
	if err := exp.checkOrigin(cd.Origin); err != nil {
		return nil, err
	}

	attObjRaw, err := decodeField("response.attestationObject", in.Response.Response.AttestationObject)
	if err != nil {
		return nil, err
	}
	attObj, err := attestation.Parse(attObjRaw)
	if err != nil {
		return nil, err
	}
	ad, err := authenticatordata.Unmarshal(attObj.AuthData)
	if err != nil {
		return nil, err
	}

	rpID, err := exp.matchRPID(ad.RPIDHash)
	if err != nil {
		return nil, err
	}
	if !ad.Flags.UserPresent() {
		return nil, ErrUserNotPresent
	}
	requireUV := in.RequireUserVerification == nil || *in.RequireUserVerification
	if requireUV && !ad.Flags.UserVerified() {
		return nil, ErrUserNotVerified
	}
	if ad.AttestedCredentialData == nil {
		return nil, ErrMissingAttestedCredentialData
	}

	out := &VerifiedRegistration{
		CredentialID:         ad.AttestedCredentialData.CredentialID,
		PublicKey:            ad.AttestedCredentialData.RawPublicKey,
		SignCount:            ad.SignCount,
		AAGUID:               ad.AttestedCredentialData.AAGUID.String(),
		UserVerified:         ad.Flags.UserVerified(),
		CredentialDeviceType: deviceType(ad.Flags),
		CredentialBackedUp:   ad.Flags.BackupEligible() && ad.Flags.BackupState(),
		Extensions:           ad.Extensions,
		Origin:               cd.Origin,
		RPID:                 rpID,
	}

	clientDataHash := sha256.Sum256(cdRaw)
	result, err := attObj.Verify(ctx, ad, clientDataHash[:], v.anchors)
	if err != nil {
		// A failed cryptographic claim is a verdict, not a malformed
		// request.
		if errors.Is(err, attestation.ErrVerification) {
			return out, nil
		}
		return nil, err
	}

	out.Verified = true
	out.Attestation = result
	return out, nil
}

func deviceType(f authenticatordata.Flags) CredentialDeviceType {
	if f.BackupEligible() {
		return MultiDevice
	}
	return SingleDevice
}
