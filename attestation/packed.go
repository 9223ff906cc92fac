package attestation

import (
	"context"
	"encoding/asn1"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/splitsecure/go-webauthn/cosekey"
)

// id-fido-gen-ce-aaguid, the certificate extension carrying the
// authenticator model id.
var idFIDOGenCEAAGUID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

type packedStatement struct {
	Alg int64    `cbor:"alg"`
	Sig []byte   `cbor:"sig"`
	X5C [][]byte `cbor:"x5c"`
}

// verifyPacked handles the "packed" format, covering both self attestation
// (no x5c, signed with the credential key) and basic attestation (signed
// with a per-model attestation certificate).
//
// https://www.w3.org/TR/webauthn-3/#sctn-packed-attestation
func verifyPacked(ctx context.Context, in *verifyInput) (*Result, error) {
	stmt := packedStatement{}
	if err := cbor.Unmarshal(in.object.Statement, &stmt); err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, err.Error())
	}
	if stmt.Alg == 0 {
		return nil, fmt.Errorf("%w: packed statement has no algorithm", ErrMalformedStatement)
	}
	if len(stmt.Sig) == 0 {
		return nil, fmt.Errorf("%w: packed statement has no signature", ErrMalformedStatement)
	}

	signed := in.signedData()

	if len(stmt.X5C) == 0 {
		// Self attestation: the signature is made with the freshly created
		// credential key and alg must agree with it.
		acd := in.authData.AttestedCredentialData
		if acd == nil {
			return nil, fmt.Errorf("%w: packed self attestation without attested credential data", ErrMalformedStatement)
		}
		if cosekey.Algorithm(stmt.Alg) != acd.PublicKey.Alg {
			return nil, fmt.Errorf("%w: statement algorithm %s does not match credential algorithm %s",
				ErrVerification, cosekey.Algorithm(stmt.Alg), acd.PublicKey.Alg)
		}
		ok, err := acd.PublicKey.Verify(signed, stmt.Sig)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: packed self attestation signature", ErrVerification)
		}
		return &Result{Format: FormatPacked, Type: TypeSelf}, nil
	}

	certs, err := parseCertificates(stmt.X5C)
	if err != nil {
		return nil, err
	}
	leaf := certs[0]

	ok, err := cosekey.VerifyWithKey(leaf.PublicKey, cosekey.Algorithm(stmt.Alg), signed, stmt.Sig)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: packed attestation signature", ErrVerification)
	}

	// Packed attestation statement certificate requirements.
	// https://www.w3.org/TR/webauthn-3/#sctn-packed-attestation-cert-requirements
	if leaf.Version != 3 {
		return nil, fmt.Errorf("%w: attestation certificate is version %d, must be 3", ErrVerification, leaf.Version)
	}
	if ou := leaf.Subject.OrganizationalUnit; len(ou) != 1 || ou[0] != "Authenticator Attestation" {
		return nil, fmt.Errorf("%w: attestation certificate Subject-OU is %v, must be [\"Authenticator Attestation\"]", ErrVerification, ou)
	}
	if leaf.IsCA {
		return nil, fmt.Errorf("%w: attestation certificate must not be a CA", ErrVerification)
	}

	// When the certificate carries id-fido-gen-ce-aaguid it must agree with
	// the authenticator data.
	for _, ext := range leaf.Extensions {
		if !ext.Id.Equal(idFIDOGenCEAAGUID) {
			continue
		}
		var raw []byte
		if _, err := asn1.Unmarshal(ext.Value, &raw); err != nil {
			return nil, fmt.Errorf("%w: parsing id-fido-gen-ce-aaguid extension: %v", ErrMalformedStatement, err)
		}
		if len(raw) != 16 {
			return nil, fmt.Errorf("%w: id-fido-gen-ce-aaguid extension is %d bytes, want 16", ErrMalformedStatement, len(raw))
		}
		aaguid := in.aaguid()
		for i := range raw {
			if raw[i] != aaguid[i] {
				return nil, fmt.Errorf("%w: certificate aaguid does not match authenticator data aaguid %s",
					ErrVerification, aaguid)
			}
		}
		break
	}

	trusted, err := verifyTrustPath(ctx, in.anchors, FormatPacked, in.aaguid(), certs)
	if err != nil {
		return nil, err
	}
	return &Result{Format: FormatPacked, Type: TypeBasic, TrustPath: certs, Trusted: trusted}, nil
}
