package attestation

import (
	"bytes"
	"context"
	"crypto"
	"encoding/asn1"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/splitsecure/go-webauthn/cosekey"
)

// Android Keystore key description certificate extension.
var androidKeyDescriptionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}

type androidKeyStatement struct {
	Alg int64    `cbor:"alg"`
	Sig []byte   `cbor:"sig"`
	X5C [][]byte `cbor:"x5c"`
}

// keyDescription is the Android Keystore attestation extension payload, up
// to the two authorization lists which are kept raw.
type keyDescription struct {
	AttestationVersion       int
	AttestationSecurityLevel asn1.Enumerated
	KeymasterVersion         int
	KeymasterSecurityLevel   asn1.Enumerated
	AttestationChallenge     []byte
	UniqueID                 []byte
	SoftwareEnforced         asn1.RawValue
	TeeEnforced              asn1.RawValue
}

// verifyAndroidKey handles the "android-key" format: a hardware-backed
// keystore signs authenticatorData || clientDataHash with the credential
// key, and the keystore certificate's attestation extension binds the
// ceremony's client data hash as the attestation challenge.
//
// https://www.w3.org/TR/webauthn-3/#sctn-android-key-attestation
func verifyAndroidKey(ctx context.Context, in *verifyInput) (*Result, error) {
	stmt := androidKeyStatement{}
	if err := cbor.Unmarshal(in.object.Statement, &stmt); err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, err.Error())
	}
	if stmt.Alg == 0 || len(stmt.Sig) == 0 {
		return nil, fmt.Errorf("%w: android-key statement missing alg or sig", ErrMalformedStatement)
	}

	certs, err := parseCertificates(stmt.X5C)
	if err != nil {
		return nil, err
	}
	leaf := certs[0]

	ok, err := cosekey.VerifyWithKey(leaf.PublicKey, cosekey.Algorithm(stmt.Alg), in.signedData(), stmt.Sig)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: android-key attestation signature", ErrVerification)
	}

	// The certified key must be the credential key.
	acd := in.authData.AttestedCredentialData
	if acd == nil {
		return nil, fmt.Errorf("%w: android-key statement without attested credential data", ErrMalformedStatement)
	}
	credPub, err := acd.PublicKey.Crypto()
	if err != nil {
		return nil, err
	}
	type equaler interface {
		Equal(crypto.PublicKey) bool
	}
	leafKey, ok2 := leaf.PublicKey.(equaler)
	if !ok2 || !leafKey.Equal(credPub) {
		return nil, fmt.Errorf("%w: leaf certificate key does not match credential key", ErrVerification)
	}

	var extValue []byte
	for _, ext := range leaf.Extensions {
		if ext.Id.Equal(androidKeyDescriptionOID) {
			extValue = ext.Value
			break
		}
	}
	if extValue == nil {
		return nil, fmt.Errorf("%w: leaf certificate has no key description extension", ErrMalformedStatement)
	}
	desc := keyDescription{}
	if _, err := asn1.Unmarshal(extValue, &desc); err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, "parsing key description extension")
	}
	if !bytes.Equal(desc.AttestationChallenge, in.clientDataHash) {
		return nil, fmt.Errorf("%w: attestation challenge does not match client data hash", ErrVerification)
	}

	trusted, err := verifyTrustPath(ctx, in.anchors, FormatAndroidKey, in.aaguid(), certs)
	if err != nil {
		return nil, err
	}
	return &Result{Format: FormatAndroidKey, Type: TypeBasic, TrustPath: certs, Trusted: trusted}, nil
}
