package webauthn

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/splitsecure/go-webauthn/authenticatordata"
	"github.com/splitsecure/go-webauthn/clientdata"
	"github.com/splitsecure/go-webauthn/cosekey"
)

type VerifyAuthenticationInput struct {
	// Response is the parsed PublicKeyCredential from the browser.
	Response *AuthenticationResponse

	// Credential is the stored credential state looked up by the response
	// id. Its counter and public key drive the replay and signature checks.
	Credential *Credential

	ExpectedChallenge string
	VerifyChallenge   ChallengeFunc

	ExpectedOrigin  string
	ExpectedOrigins []string
	ExpectedRPID    string
	ExpectedRPIDs   []string

	// ExpectedType overrides the default "webauthn.get" ceremony type
	// check. ExpectedTypes allows a set.
	ExpectedType  string
	ExpectedTypes []string

	// RequireUserVerification selects the standard flag policy: UP must be
	// set, and UV must be set unless this is explicitly false. Nil defaults
	// to true.
	RequireUserVerification *bool

	// UserVerification switches to the conformance flag policy: UV is
	// demanded only for "required" and no other flag constraint applies.
	// Mutually exclusive with RequireUserVerification.
	UserVerification UserVerificationRequirement
}

// VerifiedAuthentication is the outcome of a get ceremony. NewCounter must
// be persisted by the caller before the next ceremony for this credential.
type VerifiedAuthentication struct {
	Verified bool `json:"verified"`

	CredentialID         []byte               `json:"credentialId"`
	NewCounter           uint32               `json:"newCounter"`
	UserVerified         bool                 `json:"userVerified"`
	CredentialDeviceType CredentialDeviceType `json:"credentialDeviceType"`
	CredentialBackedUp   bool                 `json:"credentialBackedUp"`

	UserHandle []byte `json:"userHandle,omitempty"`

	Extensions map[string]any `json:"extensions,omitempty"`

	Origin string `json:"origin"`
	RPID   string `json:"rpId"`
}

// VerifyAuthentication validates a get ceremony response against a stored
// credential. Structural and policy failures return an error with no
// result; a signature that does not verify returns Verified=false.
func (v *Verifier) VerifyAuthentication(ctx context.Context, in *VerifyAuthenticationInput) (*VerifiedAuthentication, error) {
	if in.Response == nil {
		return nil, fmt.Errorf("%w: response", ErrMissingResponseField)
	}
	if in.Credential == nil {
		return nil, fmt.Errorf("%w: credential", ErrMissingResponseField)
	}
	if in.RequireUserVerification != nil && in.UserVerification != "" {
		return nil, fmt.Errorf("webauthn: RequireUserVerification and UserVerification are mutually exclusive")
	}
	if err := in.Response.check(); err != nil {
		return nil, err
	}

	credID, err := decodeField("id", in.Response.ID)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(credID, in.Credential.ID) {
		return nil, fmt.Errorf("%w: response id does not name the supplied credential", ErrCredentialIDMismatch)
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
	if err := exp.checkType(clientdata.TypeGet, cd.Type); err != nil {
		return nil, err
	}
	if err := exp.checkChallenge(ctx, cd.Challenge); err != nil {
		return nil, err
	}
	if err := exp.checkOrigin(cd.Origin); err != nil {
		return nil, err
	}

	adRaw, err := decodeField("response.authenticatorData", in.Response.Response.AuthenticatorData)
	if err != nil {
		return nil, err
	}
	sig, err := decodeField("response.signature", in.Response.Response.Signature)
	if err != nil {
		return nil, err
	}
	userHandle, err := in.Response.userHandle()
	if err != nil {
		return nil, err
	}

	ad, err := authenticatordata.Unmarshal(adRaw)
	if err != nil {
		return nil, err
	}
	rpID, err := exp.matchRPID(ad.RPIDHash)
	if err != nil {
		return nil, err
	}
	if err := checkFlagPolicy(in, ad.Flags); err != nil {
		return nil, err
	}

	// Counter before signature: a cloned-authenticator signal rejects the
	// ceremony even when the signature would verify.
	if err := checkCounter(ad.SignCount, in.Credential.SignCount); err != nil {
		return nil, err
	}

	pub, err := cosekey.Decode(in.Credential.PublicKey)
	if err != nil {
		return nil, err
	}

	clientDataHash := sha256.Sum256(cdRaw)
	signed := make([]byte, 0, len(adRaw)+len(clientDataHash))
	signed = append(signed, adRaw...)
	signed = append(signed, clientDataHash[:]...)

	ok, err := pub.Verify(signed, sig)
	if err != nil {
		return nil, err
	}

	return &VerifiedAuthentication{
		Verified:             ok,
		CredentialID:         credID,
		NewCounter:           ad.SignCount,
		UserVerified:         ad.Flags.UserVerified(),
		CredentialDeviceType: deviceType(ad.Flags),
		CredentialBackedUp:   ad.Flags.BackupEligible() && ad.Flags.BackupState(),
		UserHandle:           userHandle,
		Extensions:           ad.Extensions,
		Origin:               cd.Origin,
		RPID:                 rpID,
	}, nil
}

// checkFlagPolicy applies whichever of the two flag-policy modes the input
// selects. The standard mode always demands user presence; the conformance
// mode constrains UV only.
func checkFlagPolicy(in *VerifyAuthenticationInput, f authenticatordata.Flags) error {
	if in.UserVerification != "" {
		if in.UserVerification == UserVerificationRequired && !f.UserVerified() {
			return ErrUserNotVerified
		}
		return nil
	}

	if !f.UserPresent() {
		return ErrUserNotPresent
	}
	requireUV := in.RequireUserVerification == nil || *in.RequireUserVerification
	if requireUV && !f.UserVerified() {
		return ErrUserNotVerified
	}
	return nil
}

// checkCounter enforces counter monotonicity. Authenticators that never
// increment report zero forever; a pair of exact zeros is tolerated.
func checkCounter(observed, stored uint32) error {
	if (observed > 0 || stored > 0) && observed <= stored {
		return fmt.Errorf("%w: observed %d, stored %d", ErrCounterRegression, observed, stored)
	}
	return nil
}
