package attestation_test

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/splitsecure/go-webauthn/attestation"
	"github.com/splitsecure/go-webauthn/authenticatordata"
	"github.com/splitsecure/go-webauthn/base64url"
	"github.com/splitsecure/go-webauthn/cosekey"
	"github.com/splitsecure/go-webauthn/mint"
)

// verifyMinted parses a minted registration and runs statement verification.
func verifyMinted(t *testing.T, out mint.RegistrationOutput, anchors attestation.TrustAnchorSource) (*attestation.Result, error) {
	t.Helper()

	raw, err := base64url.Decode(out.Response.Response.AttestationObject)
	require.NoError(t, err)

	obj, err := attestation.Parse(raw)
	require.NoError(t, err)

	ad, err := authenticatordata.Unmarshal(obj.AuthData)
	require.NoError(t, err)

	cdHash := sha256.Sum256(out.ClientDataJSON)
	return obj.Verify(context.Background(), ad, cdHash[:], anchors)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := attestation.Parse([]byte{0xde, 0xad, 0xbe, 0xef})
	require.ErrorIs(t, err, attestation.ErrMalformedStatement)
}

func TestVerifyNone(t *testing.T) {
	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		Format:     attestation.FormatNone,
	})
	require.NoError(t, err)

	result, err := verifyMinted(t, out, nil)
	require.NoError(t, err)
	require.Equal(t, attestation.FormatNone, result.Format)
	require.Equal(t, attestation.TypeNone, result.Type)
	require.Empty(t, result.TrustPath)
	require.False(t, result.Trusted)
}

func TestVerifyNoneRejectsNonEmptyStatement(t *testing.T) {
	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		Format:     attestation.FormatNone,
		MutateStatement: func(stmt map[string]any) {
			stmt["alg"] = -7
		},
	})
	require.NoError(t, err)

	_, err = verifyMinted(t, out, nil)
	require.ErrorIs(t, err, attestation.ErrMalformedStatement)
}

func TestVerifyPackedSelf(t *testing.T) {
	for _, alg := range []cosekey.Algorithm{
		cosekey.AlgES256,
		cosekey.AlgES384,
		cosekey.AlgRS256,
		cosekey.AlgPS256,
		cosekey.AlgEdDSA,
	} {
		t.Run(alg.String(), func(t *testing.T) {
			cred, err := mint.NewCredential(alg)
			require.NoError(t, err)

			out, err := mint.MintRegistration(&mint.RegistrationInput{
				Credential: cred,
				RPID:       "example.com",
				Origin:     "https://example.com",
				Challenge:  "abc123",
			})
			require.NoError(t, err)

			result, err := verifyMinted(t, out, nil)
			require.NoError(t, err)
			require.Equal(t, attestation.FormatPacked, result.Format)
			require.Equal(t, attestation.TypeSelf, result.Type)
			require.Empty(t, result.TrustPath)
		})
	}
}

func TestVerifyPackedSelfBadSignature(t *testing.T) {
	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential:       cred,
		RPID:             "example.com",
		Origin:           "https://example.com",
		Challenge:        "abc123",
		CorruptSignature: true,
	})
	require.NoError(t, err)

	_, err = verifyMinted(t, out, nil)
	require.ErrorIs(t, err, attestation.ErrVerification)
}

func TestVerifyPackedSelfAlgMismatch(t *testing.T) {
	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		MutateStatement: func(stmt map[string]any) {
			stmt["alg"] = int(cosekey.AlgES384)
		},
	})
	require.NoError(t, err)

	_, err = verifyMinted(t, out, nil)
	require.ErrorIs(t, err, attestation.ErrVerification)
}

func TestVerifyPackedBasic(t *testing.T) {
	mc, err := mint.NewMintContext()
	require.NoError(t, err)

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	aaguid := authenticatordata.AAGUID{0x01, 0x02, 0x03, 0x04}
	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		AAGUID:     aaguid,
		Chain:      mc,
	})
	require.NoError(t, err)

	result, err := verifyMinted(t, out, mc.AnchorSource())
	require.NoError(t, err)
	require.Equal(t, attestation.FormatPacked, result.Format)
	require.Equal(t, attestation.TypeBasic, result.Type)
	require.Len(t, result.TrustPath, 2)
	require.True(t, result.Trusted)
}

func TestVerifyPackedBasicWithoutAnchorsIsUntrusted(t *testing.T) {
	mc, err := mint.NewMintContext()
	require.NoError(t, err)

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		Chain:      mc,
	})
	require.NoError(t, err)

	result, err := verifyMinted(t, out, nil)
	require.NoError(t, err)
	require.Equal(t, attestation.TypeBasic, result.Type)
	require.False(t, result.Trusted)
}

func TestVerifyPackedBasicWrongAnchorFails(t *testing.T) {
	mc, err := mint.NewMintContext()
	require.NoError(t, err)
	other, err := mint.NewMintContext()
	require.NoError(t, err)

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		Chain:      mc,
	})
	require.NoError(t, err)

	_, err = verifyMinted(t, out, other.AnchorSource())
	require.ErrorIs(t, err, attestation.ErrVerification)
}

func TestVerifyFIDOU2F(t *testing.T) {
	mc, err := mint.NewMintContext()
	require.NoError(t, err)

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		Format:     attestation.FormatFIDOU2F,
		Chain:      mc,
	})
	require.NoError(t, err)

	result, err := verifyMinted(t, out, mc.AnchorSource())
	require.NoError(t, err)
	require.Equal(t, attestation.FormatFIDOU2F, result.Format)
	require.Equal(t, attestation.TypeBasic, result.Type)
	require.Len(t, result.TrustPath, 1)
	require.True(t, result.Trusted)
}

func TestVerifyFIDOU2FBadSignature(t *testing.T) {
	mc, err := mint.NewMintContext()
	require.NoError(t, err)

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential:       cred,
		RPID:             "example.com",
		Origin:           "https://example.com",
		Challenge:        "abc123",
		Format:           attestation.FormatFIDOU2F,
		Chain:            mc,
		CorruptSignature: true,
	})
	require.NoError(t, err)

	_, err = verifyMinted(t, out, mc.AnchorSource())
	require.ErrorIs(t, err, attestation.ErrVerification)
}

func TestVerifyAndroidKey(t *testing.T) {
	mc, err := mint.NewMintContext()
	require.NoError(t, err)

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		Format:     attestation.FormatAndroidKey,
		Chain:      mc,
	})
	require.NoError(t, err)

	result, err := verifyMinted(t, out, mc.AnchorSource())
	require.NoError(t, err)
	require.Equal(t, attestation.FormatAndroidKey, result.Format)
	require.Equal(t, attestation.TypeBasic, result.Type)
	require.True(t, result.Trusted)
}

func TestVerifyAndroidKeyBadSignature(t *testing.T) {
	mc, err := mint.NewMintContext()
	require.NoError(t, err)

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential:       cred,
		RPID:             "example.com",
		Origin:           "https://example.com",
		Challenge:        "abc123",
		Format:           attestation.FormatAndroidKey,
		Chain:            mc,
		CorruptSignature: true,
	})
	require.NoError(t, err)

	_, err = verifyMinted(t, out, mc.AnchorSource())
	require.ErrorIs(t, err, attestation.ErrVerification)
}

func TestVerifyApple(t *testing.T) {
	mc, err := mint.NewMintContext()
	require.NoError(t, err)

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		Format:     attestation.FormatApple,
		Chain:      mc,
	})
	require.NoError(t, err)

	result, err := verifyMinted(t, out, mc.AnchorSource())
	require.NoError(t, err)
	require.Equal(t, attestation.FormatApple, result.Format)
	require.Equal(t, attestation.TypeAnonCA, result.Type)
	require.True(t, result.Trusted)
}

func TestVerifyAppleNonceMismatch(t *testing.T) {
	mc, err := mint.NewMintContext()
	require.NoError(t, err)

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	// Changing the challenge after the nonce was fixed into the certificate
	// shifts the computed nonce away from the embedded one.
	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		Format:     attestation.FormatApple,
		Chain:      mc,
	})
	require.NoError(t, err)
	out.ClientDataJSON = append([]byte{}, out.ClientDataJSON...)
	out.ClientDataJSON[len(out.ClientDataJSON)-2] ^= 0x01

	_, err = verifyMinted(t, out, mc.AnchorSource())
	require.ErrorIs(t, err, attestation.ErrVerification)
}

// rawObject builds an attestation object by hand for formats mint does not
// fabricate end to end.
func rawObject(t *testing.T, format string, stmt map[string]any) ([]byte, []byte) {
	t.Helper()

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)
	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		Format:     attestation.FormatNone,
	})
	require.NoError(t, err)

	obj := struct {
		Format   string         `cbor:"fmt"`
		AttStmt  map[string]any `cbor:"attStmt"`
		AuthData []byte         `cbor:"authData"`
	}{
		Format:   format,
		AttStmt:  stmt,
		AuthData: out.AuthData,
	}
	b, err := cbor.Marshal(&obj)
	require.NoError(t, err)
	return b, out.ClientDataJSON
}

func verifyRaw(t *testing.T, raw, cdJSON []byte) error {
	t.Helper()
	obj, err := attestation.Parse(raw)
	require.NoError(t, err)
	ad, err := authenticatordata.Unmarshal(obj.AuthData)
	require.NoError(t, err)
	cdHash := sha256.Sum256(cdJSON)
	_, err = obj.Verify(context.Background(), ad, cdHash[:], nil)
	return err
}

func TestVerifySafetyNetRejectsMalformedJWS(t *testing.T) {
	raw, cdJSON := rawObject(t, "android-safetynet", map[string]any{
		"ver":      "14799021",
		"response": []byte("not-a-jws-at-all"),
	})
	err := verifyRaw(t, raw, cdJSON)
	require.ErrorIs(t, err, attestation.ErrMalformedStatement)
}

func TestVerifyTPMRejectsWrongVersion(t *testing.T) {
	raw, cdJSON := rawObject(t, "tpm", map[string]any{
		"ver":      "1.2",
		"alg":      int(cosekey.AlgRS256),
		"sig":      []byte{0x01},
		"pubArea":  []byte{0x01},
		"certInfo": []byte{0x01},
	})
	err := verifyRaw(t, raw, cdJSON)
	require.ErrorIs(t, err, attestation.ErrMalformedStatement)
}

func TestVerifyUnknownFormat(t *testing.T) {
	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		Format:     attestation.FormatNone,
	})
	require.NoError(t, err)

	raw, err := base64url.Decode(out.Response.Response.AttestationObject)
	require.NoError(t, err)
	obj, err := attestation.Parse(raw)
	require.NoError(t, err)
	obj.Format = "android-sometimes"

	ad, err := authenticatordata.Unmarshal(obj.AuthData)
	require.NoError(t, err)

	cdHash := sha256.Sum256(out.ClientDataJSON)
	_, err = obj.Verify(context.Background(), ad, cdHash[:], nil)
	require.ErrorIs(t, err, attestation.ErrUnsupportedFormat)
}

// anchorError simulates a trust anchor store that fails its lookup; the
// error must surface rather than degrade to untrusted.
type anchorError struct{}

var errStoreOffline = errors.New("store offline")

func (anchorError) Roots(context.Context, attestation.Format, authenticatordata.AAGUID) (*x509.CertPool, error) {
	return nil, errStoreOffline
}

func TestTrustAnchorLookupErrorPropagates(t *testing.T) {
	mc, err := mint.NewMintContext()
	require.NoError(t, err)

	cred, err := mint.NewCredential(cosekey.AlgES256)
	require.NoError(t, err)

	out, err := mint.MintRegistration(&mint.RegistrationInput{
		Credential: cred,
		RPID:       "example.com",
		Origin:     "https://example.com",
		Challenge:  "abc123",
		Chain:      mc,
	})
	require.NoError(t, err)

	_, err = verifyMinted(t, out, anchorError{})
	require.ErrorIs(t, err, errStoreOffline)
}
