package attestation

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/splitsecure/go-webauthn/cosekey"
)

type fidoU2FStatement struct {
	Sig []byte   `cbor:"sig"`
	X5C [][]byte `cbor:"x5c"`
}

// verifyFIDOU2F handles the "fido-u2f" format produced by U2F-era security
// keys. The statement signs a reconstruction of the U2F registration data
// message rather than authenticatorData || clientDataHash.
//
// https://www.w3.org/TR/webauthn-3/#sctn-fido-u2f-attestation
func verifyFIDOU2F(ctx context.Context, in *verifyInput) (*Result, error) {
	stmt := fidoU2FStatement{}
	if err := cbor.Unmarshal(in.object.Statement, &stmt); err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, err.Error())
	}
	if len(stmt.Sig) == 0 {
		return nil, fmt.Errorf("%w: fido-u2f statement has no signature", ErrMalformedStatement)
	}
	if len(stmt.X5C) != 1 {
		return nil, fmt.Errorf("%w: fido-u2f requires exactly one certificate, got %d", ErrMalformedStatement, len(stmt.X5C))
	}

	certs, err := parseCertificates(stmt.X5C)
	if err != nil {
		return nil, err
	}
	leaf := certs[0]

	leafPub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok || leafPub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: fido-u2f attestation certificate key must be ECDSA P-256", ErrVerification)
	}

	acd := in.authData.AttestedCredentialData
	if acd == nil {
		return nil, fmt.Errorf("%w: fido-u2f statement without attested credential data", ErrMalformedStatement)
	}
	credKey := acd.PublicKey
	if credKey.Kty != cosekey.KeyTypeEC2 || credKey.EC2.Curve != cosekey.CurveP256 {
		return nil, fmt.Errorf("%w: fido-u2f credential key must be EC2 P-256", ErrVerification)
	}

	// publicKeyU2F is the credential key in X9.62 uncompressed point form.
	publicKeyU2F := make([]byte, 0, 65)
	publicKeyU2F = append(publicKeyU2F, 0x04)
	publicKeyU2F = append(publicKeyU2F, credKey.EC2.X...)
	publicKeyU2F = append(publicKeyU2F, credKey.EC2.Y...)

	// verificationData = 0x00 || rpIdHash || clientDataHash || credentialId || publicKeyU2F
	verificationData := bytes.Buffer{}
	verificationData.WriteByte(0x00)
	verificationData.Write(in.authData.RPIDHash)
	verificationData.Write(in.clientDataHash)
	verificationData.Write(acd.CredentialID)
	verificationData.Write(publicKeyU2F)

	ok, err = cosekey.VerifyWithKey(leaf.PublicKey, cosekey.AlgES256, verificationData.Bytes(), stmt.Sig)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: fido-u2f attestation signature", ErrVerification)
	}

	trusted, err := verifyTrustPath(ctx, in.anchors, FormatFIDOU2F, in.aaguid(), certs)
	if err != nil {
		return nil, err
	}
	return &Result{Format: FormatFIDOU2F, Type: TypeBasic, TrustPath: certs, Trusted: trusted}, nil
}
