package cosekey

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// Hash returns the digest the algorithm signs over. EdDSA signs the raw
// message and reports 0.
func (a Algorithm) Hash() (crypto.Hash, error) {
	switch a {
	case AlgES256, AlgRS256, AlgPS256:
		return crypto.SHA256, nil
	case AlgES384, AlgRS384, AlgPS384:
		return crypto.SHA384, nil
	case AlgES512, AlgRS512, AlgPS512:
		return crypto.SHA512, nil
	case AlgRS1:
		return crypto.SHA1, nil
	case AlgEdDSA:
		return 0, nil
	}
	return 0, fmt.Errorf("%w: no digest for algorithm %s", ErrUnsupportedKey, a)
}

type ecdsaSignature struct {
	R, S *big.Int
}

// Verify reports whether sig is a valid signature over data. A signature
// that simply fails to verify yields (false, nil); an error is returned only
// for structurally invalid key or signature material.
func (p *PublicKey) Verify(data, sig []byte) (bool, error) {
	pub, err := p.Crypto()
	if err != nil {
		return false, err
	}
	return VerifyWithKey(pub, p.Alg, data, sig)
}

// VerifyWithKey verifies sig over data using an already-parsed public key,
// typically one extracted from an attestation certificate, with the digest
// and scheme selected by the COSE algorithm identifier.
func VerifyWithKey(pub crypto.PublicKey, alg Algorithm, data, sig []byte) (bool, error) {
	switch alg {
	case AlgES256, AlgES384, AlgES512:
		ecdsaPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: %s requires an ECDSA key, got %T", ErrUnsupportedKey, alg, pub)
		}
		// WebAuthn ECDSA signatures are ASN.1 DER SEQUENCEs of r and s.
		var parsed ecdsaSignature
		if rest, err := asn1.Unmarshal(sig, &parsed); err != nil || len(rest) != 0 {
			return false, fmt.Errorf("%w: ecdsa signature is not a DER sequence", ErrInvalidSignatureEncoding)
		}
		h, err := alg.Hash()
		if err != nil {
			return false, err
		}
		digest := hashSum(h, data)
		return ecdsa.VerifyASN1(ecdsaPub, digest, sig), nil

	case AlgRS256, AlgRS384, AlgRS512, AlgRS1:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: %s requires an RSA key, got %T", ErrUnsupportedKey, alg, pub)
		}
		h, err := alg.Hash()
		if err != nil {
			return false, err
		}
		digest := hashSum(h, data)
		return rsa.VerifyPKCS1v15(rsaPub, h, digest, sig) == nil, nil

	case AlgPS256, AlgPS384, AlgPS512:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: %s requires an RSA key, got %T", ErrUnsupportedKey, alg, pub)
		}
		h, err := alg.Hash()
		if err != nil {
			return false, err
		}
		digest := hashSum(h, data)
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: h}
		return rsa.VerifyPSS(rsaPub, h, digest, sig, opts) == nil, nil

	case AlgEdDSA:
		edPub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return false, fmt.Errorf("%w: EdDSA requires an Ed25519 key, got %T", ErrUnsupportedKey, pub)
		}
		if len(edPub) != ed25519.PublicKeySize {
			return false, fmt.Errorf("%w: Ed25519 key is %d bytes", ErrUnsupportedKey, len(edPub))
		}
		if len(sig) != ed25519.SignatureSize {
			return false, fmt.Errorf("%w: Ed25519 signature is %d bytes, want %d",
				ErrInvalidSignatureEncoding, len(sig), ed25519.SignatureSize)
		}
		return ed25519.Verify(edPub, data, sig), nil
	}
	return false, fmt.Errorf("%w: algorithm %s", ErrUnsupportedKey, alg)
}

func hashSum(h crypto.Hash, data []byte) []byte {
	hh := h.New()
	hh.Write(data)
	return hh.Sum(nil)
}
