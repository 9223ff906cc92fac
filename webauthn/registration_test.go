package webauthn_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/splitsecure/go-webauthn/attestation"
	"github.com/splitsecure/go-webauthn/authenticatordata"
	"github.com/splitsecure/go-webauthn/cosekey"
	"github.com/splitsecure/go-webauthn/mint"
	"github.com/splitsecure/go-webauthn/webauthn"
)

func TestVerifyRegistration(t *testing.T) {
	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	aaguid := authenticatordata.AAGUID{0xab, 0xab, 0xab, 0xab}
	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "reg-challenge",
		AAGUID:     aaguid,
	})
	require.NoError(t, err)

	result, err := newVerifier(t).VerifyRegistration(context.Background(), &webauthn.VerifyRegistrationInput{
		Response:          out.Response,
		ExpectedChallenge: "reg-challenge",
		ExpectedOrigin:    "https://example.com",
		ExpectedRPID:      "example.com",
	})
	require.NoError(t, err)
	require.True(t, result.Verified)
	require.Equal(t, cred.ID, result.CredentialID)
	require.Equal(t, cred.COSEKey, result.PublicKey)
	require.Equal(t, aaguid.String(), result.AAGUID)
	require.NotNil(t, result.Attestation)
	require.Equal(t, attestation.TypeSelf, result.Attestation.Type)
	require.Equal(t, "example.com", result.RPID)

	// The stored record verifies a follow-up authentication.
	authOut := mintAuth(t, &mint.AuthenticationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "auth-challenge",
		SignCount:  1,
	})
	authResult, err := newVerifier(t).VerifyAuthentication(context.Background(), &webauthn.VerifyAuthenticationInput{
		Response: authOut.Response,
		Credential: &webauthn.Credential{
			ID:        result.CredentialID,
			PublicKey: result.PublicKey,
			SignCount: result.SignCount,
		},
		ExpectedChallenge: "auth-challenge",
		ExpectedOrigin:    "https://example.com",
		ExpectedRPID:      "example.com",
	})
	require.NoError(t, err)
	require.True(t, authResult.Verified)
}

func TestVerifyRegistrationFromJSON(t *testing.T) {
	cred, err := mint.NewCredential(cosekey.AlgEdDSA)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "reg-challenge",
	})
	require.NoError(t, err)

	resp := &webauthn.RegistrationResponse{}
	require.NoError(t, json.Unmarshal(out.ResponseJSON, resp))

	result, err := newVerifier(t).VerifyRegistration(context.Background(), &webauthn.VerifyRegistrationInput{
		Response:          resp,
		ExpectedChallenge: "reg-challenge",
		ExpectedOrigin:    "https://example.com",
		ExpectedRPID:      "example.com",
	})
	require.NoError(t, err)
	require.True(t, result.Verified)
}

func TestVerifyRegistrationTrustedChain(t *testing.T) {
	mc, err := mint.NewMintContext()
	require.NoError(t, err)

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "reg-challenge",
		Chain:      mc,
	})
	require.NoError(t, err)

	v, err := webauthn.New(webauthn.WithTrustAnchors(mc.AnchorSource()))
	require.NoError(t, err)

	result, err := v.VerifyRegistration(context.Background(), &webauthn.VerifyRegistrationInput{
		Response:          out.Response,
		ExpectedChallenge: "reg-challenge",
		ExpectedOrigin:    "https://example.com",
		ExpectedRPID:      "example.com",
	})
	require.NoError(t, err)
	require.True(t, result.Verified)
	require.Equal(t, attestation.TypeBasic, result.Attestation.Type)
	require.True(t, result.Attestation.Trusted)
}

func TestVerifyRegistrationMissingAttestedCredentialData(t *testing.T) {
	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "reg-challenge",
		Format:     attestation.FormatNone,
		Flags: authenticatordata.FlagUserPresent |
			authenticatordata.FlagUserVerified,
	})
	require.NoError(t, err)

	_, err = newVerifier(t).VerifyRegistration(context.Background(), &webauthn.VerifyRegistrationInput{
		Response:          out.Response,
		ExpectedChallenge: "reg-challenge",
		ExpectedOrigin:    "https://example.com",
		ExpectedRPID:      "example.com",
	})
	require.ErrorIs(t, err, webauthn.ErrMissingAttestedCredentialData)
}

func TestVerifyRegistrationBadAttestationSignature(t *testing.T) {
	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential:       cred,
		RPID:             "example.com",
		Origin:           "https://example.com",
		Challenge:        "reg-challenge",
		CorruptSignature: true,
	})
	require.NoError(t, err)

	result, err := newVerifier(t).VerifyRegistration(context.Background(), &webauthn.VerifyRegistrationInput{
		Response:          out.Response,
		ExpectedChallenge: "reg-challenge",
		ExpectedOrigin:    "https://example.com",
		ExpectedRPID:      "example.com",
	})
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, cred.ID, result.CredentialID)
}

func TestVerifyRegistrationPolicyChecks(t *testing.T) {
	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)
	v := newVerifier(t)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "reg-challenge",
	})
	require.NoError(t, err)

	base := func() *webauthn.VerifyRegistrationInput {
		return &webauthn.VerifyRegistrationInput{
			Response:          out.Response,
			ExpectedChallenge: "reg-challenge",
			ExpectedOrigin:    "https://example.com",
			ExpectedRPID:      "example.com",
		}
	}

	t.Run("challenge mismatch", func(t *testing.T) {
		in := base()
		in.ExpectedChallenge = "other"
		_, err := v.VerifyRegistration(context.Background(), in)
		require.ErrorIs(t, err, webauthn.ErrChallengeMismatch)
	})

	t.Run("origin mismatch", func(t *testing.T) {
		in := base()
		in.ExpectedOrigin = "https://other.example"
		_, err := v.VerifyRegistration(context.Background(), in)
		require.ErrorIs(t, err, webauthn.ErrOriginMismatch)
	})

	t.Run("rp id mismatch", func(t *testing.T) {
		in := base()
		in.ExpectedRPID = "other.example"
		_, err := v.VerifyRegistration(context.Background(), in)
		require.ErrorIs(t, err, webauthn.ErrRPIDMismatch)
	})

	t.Run("origin set membership", func(t *testing.T) {
		in := base()
		in.ExpectedOrigin = ""
		in.ExpectedOrigins = []string{"https://other.example", "https://example.com"}
		result, err := v.VerifyRegistration(context.Background(), in)
		require.NoError(t, err)
		require.True(t, result.Verified)
	})
}

func TestVerifyRegistrationUserVerificationPolicy(t *testing.T) {
	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)
	v := newVerifier(t)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "reg-challenge",
		Flags: authenticatordata.FlagUserPresent |
			authenticatordata.FlagAttestedCredentialData,
	})
	require.NoError(t, err)

	in := &webauthn.VerifyRegistrationInput{
		Response:          out.Response,
		ExpectedChallenge: "reg-challenge",
		ExpectedOrigin:    "https://example.com",
		ExpectedRPID:      "example.com",
	}
	_, err = v.VerifyRegistration(context.Background(), in)
	require.ErrorIs(t, err, webauthn.ErrUserNotVerified)

	relax := false
	in.RequireUserVerification = &relax
	result, err := v.VerifyRegistration(context.Background(), in)
	require.NoError(t, err)
	require.True(t, result.Verified)
	require.False(t, result.UserVerified)
}
