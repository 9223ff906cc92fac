package attestation

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Apple anonymous attestation nonce certificate extension.
var appleNonceOID = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 8, 2}

type appleStatement struct {
	X5C [][]byte `cbor:"x5c"`
}

type appleNonceContainer struct {
	Nonce []byte `asn1:"tag:1,explicit"`
}

// verifyApple handles the "apple" anonymous attestation format. There is no
// signature field: the proof is a nonce, derived from the signed ceremony
// data, that Apple's CA embedded into the freshly issued leaf certificate.
//
// https://www.w3.org/TR/webauthn-3/#sctn-apple-anonymous-attestation
func verifyApple(ctx context.Context, in *verifyInput) (*Result, error) {
	stmt := appleStatement{}
	if err := cbor.Unmarshal(in.object.Statement, &stmt); err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, err.Error())
	}

	certs, err := parseCertificates(stmt.X5C)
	if err != nil {
		return nil, err
	}
	leaf := certs[0]

	nonce := sha256.Sum256(in.signedData())

	var extValue []byte
	for _, ext := range leaf.Extensions {
		if ext.Id.Equal(appleNonceOID) {
			extValue = ext.Value
			break
		}
	}
	if extValue == nil {
		return nil, fmt.Errorf("%w: leaf certificate has no apple nonce extension", ErrMalformedStatement)
	}
	container := appleNonceContainer{}
	if _, err := asn1.Unmarshal(extValue, &container); err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, "parsing apple nonce extension")
	}
	if !bytes.Equal(container.Nonce, nonce[:]) {
		return nil, fmt.Errorf("%w: certificate nonce does not match computed nonce", ErrVerification)
	}

	// The leaf certificate must certify exactly the credential key.
	acd := in.authData.AttestedCredentialData
	if acd == nil {
		return nil, fmt.Errorf("%w: apple statement without attested credential data", ErrMalformedStatement)
	}
	credPub, err := acd.PublicKey.Crypto()
	if err != nil {
		return nil, err
	}
	type equaler interface {
		Equal(crypto.PublicKey) bool
	}
	leafKey, ok := leaf.PublicKey.(equaler)
	if !ok || !leafKey.Equal(credPub) {
		return nil, fmt.Errorf("%w: leaf certificate key does not match credential key", ErrVerification)
	}

	trusted, err := verifyTrustPath(ctx, in.anchors, FormatApple, in.aaguid(), certs)
	if err != nil {
		return nil, err
	}
	return &Result{Format: FormatApple, Type: TypeAnonCA, TrustPath: certs, Trusted: trusted}, nil
}
