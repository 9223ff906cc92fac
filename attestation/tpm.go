package attestation

import (
	"bytes"
	"context"
	"crypto"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-tpm/legacy/tpm2"
	"github.com/pkg/errors"

	"github.com/splitsecure/go-webauthn/cosekey"
)

// tpmGeneratedMagic prefixes every TPMS_ATTEST structure produced by a TPM.
const tpmGeneratedMagic = 0xff544347

// tcg-kp-AIKCertificate, required in the EKU of TPM attestation certs.
var tcgKpAIKCertificateOID = asn1.ObjectIdentifier{2, 23, 133, 8, 3}

type tpmStatement struct {
	Ver      string   `cbor:"ver"`
	Alg      int64    `cbor:"alg"`
	Sig      []byte   `cbor:"sig"`
	X5C      [][]byte `cbor:"x5c"`
	PubArea  []byte   `cbor:"pubArea"`
	CertInfo []byte   `cbor:"certInfo"`
}

var tpmHashes = map[tpm2.Algorithm]crypto.Hash{
	tpm2.AlgSHA1:   crypto.SHA1,
	tpm2.AlgSHA256: crypto.SHA256,
	tpm2.AlgSHA384: crypto.SHA384,
	tpm2.AlgSHA512: crypto.SHA512,
}

// verifyTPM handles the "tpm" format: the platform TPM certifies the
// credential key with an attestation identity key, producing a TPMS_ATTEST
// over the key's public area.
//
// https://www.w3.org/TR/webauthn-3/#sctn-tpm-attestation
func verifyTPM(ctx context.Context, in *verifyInput) (*Result, error) {
	stmt := tpmStatement{}
	if err := cbor.Unmarshal(in.object.Statement, &stmt); err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, err.Error())
	}
	if stmt.Ver != "2.0" {
		return nil, fmt.Errorf("%w: tpm statement version %q, want \"2.0\"", ErrMalformedStatement, stmt.Ver)
	}
	if stmt.Alg == 0 || len(stmt.Sig) == 0 || len(stmt.PubArea) == 0 || len(stmt.CertInfo) == 0 {
		return nil, fmt.Errorf("%w: tpm statement missing required field", ErrMalformedStatement)
	}

	pubArea, err := tpm2.DecodePublic(stmt.PubArea)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, "decoding pubArea")
	}

	// The certified public area must describe the credential key.
	acd := in.authData.AttestedCredentialData
	if acd == nil {
		return nil, fmt.Errorf("%w: tpm statement without attested credential data", ErrMalformedStatement)
	}
	if err := tpmPublicMatchesCredential(&pubArea, acd.PublicKey); err != nil {
		return nil, err
	}

	certInfo, err := tpm2.DecodeAttestationData(stmt.CertInfo)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, "decoding certInfo")
	}
	if certInfo.Magic != tpmGeneratedMagic {
		return nil, fmt.Errorf("%w: certInfo magic 0x%x", ErrVerification, certInfo.Magic)
	}
	if certInfo.Type != tpm2.TagAttestCertify {
		return nil, fmt.Errorf("%w: certInfo type 0x%x is not TPM_ST_ATTEST_CERTIFY", ErrVerification, certInfo.Type)
	}

	// extraData commits to the ceremony: hash of authData || clientDataHash
	// using the statement algorithm's digest.
	h, err := cosekey.Algorithm(stmt.Alg).Hash()
	if err != nil {
		return nil, err
	}
	hh := h.New()
	hh.Write(in.signedData())
	if !bytes.Equal(certInfo.ExtraData, hh.Sum(nil)) {
		return nil, fmt.Errorf("%w: certInfo extraData does not match ceremony data", ErrVerification)
	}

	// attested name must be the name of pubArea under its own name
	// algorithm.
	if certInfo.AttestedCertifyInfo == nil || certInfo.AttestedCertifyInfo.Name.Digest == nil {
		return nil, fmt.Errorf("%w: certInfo has no attested name", ErrMalformedStatement)
	}
	nameHash, ok := tpmHashes[certInfo.AttestedCertifyInfo.Name.Digest.Alg]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported name algorithm 0x%x", ErrMalformedStatement, certInfo.AttestedCertifyInfo.Name.Digest.Alg)
	}
	nh := nameHash.New()
	nh.Write(stmt.PubArea)
	if !bytes.Equal(certInfo.AttestedCertifyInfo.Name.Digest.Value, nh.Sum(nil)) {
		return nil, fmt.Errorf("%w: attested name does not match pubArea", ErrVerification)
	}

	certs, err := parseCertificates(stmt.X5C)
	if err != nil {
		return nil, err
	}
	leaf := certs[0]

	ok, err = cosekey.VerifyWithKey(leaf.PublicKey, cosekey.Algorithm(stmt.Alg), stmt.CertInfo, stmt.Sig)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: tpm attestation signature", ErrVerification)
	}

	// AIK certificate requirements.
	if leaf.Version != 3 {
		return nil, fmt.Errorf("%w: attestation certificate is version %d, must be 3", ErrVerification, leaf.Version)
	}
	hasAIK := false
	for _, eku := range leaf.UnknownExtKeyUsage {
		if eku.Equal(tcgKpAIKCertificateOID) {
			hasAIK = true
			break
		}
	}
	if !hasAIK {
		return nil, fmt.Errorf("%w: attestation certificate lacks the tcg-kp-AIKCertificate EKU", ErrVerification)
	}

	trusted, err := verifyTrustPath(ctx, in.anchors, FormatTPM, in.aaguid(), certs)
	if err != nil {
		return nil, err
	}
	return &Result{Format: FormatTPM, Type: TypeAttCA, TrustPath: certs, Trusted: trusted}, nil
}

// tpmPublicMatchesCredential compares a decoded TPMT_PUBLIC against the
// credential's COSE key.
func tpmPublicMatchesCredential(pub *tpm2.Public, cred *cosekey.PublicKey) error {
	switch {
	case pub.Type == tpm2.AlgRSA && cred.Kty == cosekey.KeyTypeRSA:
		params := pub.RSAParameters
		if params == nil {
			return fmt.Errorf("%w: rsa pubArea without parameters", ErrMalformedStatement)
		}
		mod := new(big.Int).SetBytes(params.ModulusRaw)
		if mod.Cmp(new(big.Int).SetBytes(cred.RSA.N)) != 0 {
			return fmt.Errorf("%w: pubArea modulus does not match credential key", ErrVerification)
		}
		exp := params.ExponentRaw
		if exp == 0 {
			exp = 65537
		}
		if new(big.Int).SetBytes(cred.RSA.E).Cmp(big.NewInt(int64(exp))) != 0 {
			return fmt.Errorf("%w: pubArea exponent does not match credential key", ErrVerification)
		}
	case pub.Type == tpm2.AlgECC && cred.Kty == cosekey.KeyTypeEC2:
		params := pub.ECCParameters
		if params == nil {
			return fmt.Errorf("%w: ecc pubArea without parameters", ErrMalformedStatement)
		}
		x := new(big.Int).SetBytes(params.Point.XRaw)
		y := new(big.Int).SetBytes(params.Point.YRaw)
		if x.Cmp(new(big.Int).SetBytes(cred.EC2.X)) != 0 || y.Cmp(new(big.Int).SetBytes(cred.EC2.Y)) != 0 {
			return fmt.Errorf("%w: pubArea point does not match credential key", ErrVerification)
		}
	default:
		return fmt.Errorf("%w: pubArea type 0x%x does not match credential key type", ErrVerification, pub.Type)
	}
	return nil
}
