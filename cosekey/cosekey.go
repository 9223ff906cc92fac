// Package cosekey decodes CBOR-encoded COSE public keys into a closed tagged
// variant and verifies signatures with them.
//
// https://www.rfc-editor.org/rfc/rfc9052#section-7
package cosekey

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/iana"
	cose_key "github.com/ldclabs/cose/key"
	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedKey is returned for unknown key types, unknown curves,
	// or keys missing required parameters.
	ErrUnsupportedKey = errors.New("unsupported public key")

	// ErrInvalidSignatureEncoding is returned for structurally invalid
	// signature material, as opposed to a signature that simply does not
	// verify.
	ErrInvalidSignatureEncoding = errors.New("invalid signature encoding")
)

// Algorithm is a COSE algorithm identifier.
//
// https://www.iana.org/assignments/cose/cose.xhtml#algorithms
type Algorithm int

const (
	AlgES256 Algorithm = -7
	AlgES384 Algorithm = -35
	AlgES512 Algorithm = -36
	AlgEdDSA Algorithm = -8
	AlgPS256 Algorithm = -37
	AlgPS384 Algorithm = -38
	AlgPS512 Algorithm = -39
	AlgRS256 Algorithm = -257
	AlgRS384 Algorithm = -258
	AlgRS512 Algorithm = -259
	// AlgRS1 is deprecated but still emitted by deployed TPM authenticators.
	AlgRS1 Algorithm = -65535
)

var algStrings = map[Algorithm]string{
	AlgES256: "ES256",
	AlgES384: "ES384",
	AlgES512: "ES512",
	AlgEdDSA: "EdDSA",
	AlgPS256: "PS256",
	AlgPS384: "PS384",
	AlgPS512: "PS512",
	AlgRS256: "RS256",
	AlgRS384: "RS384",
	AlgRS512: "RS512",
	AlgRS1:   "RS1",
}

func (a Algorithm) String() string {
	if s, ok := algStrings[a]; ok {
		return s
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// KeyType is a COSE key type (kty).
type KeyType int

const (
	KeyTypeOKP = KeyType(iana.KeyTypeOKP)
	KeyTypeEC2 = KeyType(iana.KeyTypeEC2)
	KeyTypeRSA = KeyType(iana.KeyTypeRSA)
)

// Curve is a COSE elliptic curve identifier.
type Curve int

const (
	CurveP256    = Curve(iana.EllipticCurveP_256)
	CurveP384    = Curve(iana.EllipticCurveP_384)
	CurveP521    = Curve(iana.EllipticCurveP_521)
	CurveEd25519 = Curve(iana.EllipticCurveEd25519)
)

// coordinateSize returns the byte length of a coordinate on the curve.
func (c Curve) coordinateSize() int {
	switch c {
	case CurveP256:
		return 32
	case CurveP384:
		return 48
	case CurveP521:
		return 66
	case CurveEd25519:
		return ed25519.PublicKeySize
	}
	return 0
}

// EC2Params holds an elliptic curve key in x/y coordinate form.
type EC2Params struct {
	Curve Curve
	X     []byte
	Y     []byte
}

// RSAParams holds an RSA modulus and public exponent, both big-endian.
type RSAParams struct {
	N []byte
	E []byte
}

// OKPParams holds an octet key pair key (Ed25519).
type OKPParams struct {
	Curve Curve
	X     []byte
}

// PublicKey is a decoded COSE public key. Exactly one of EC2, RSA and OKP is
// set, indicated by Kty.
type PublicKey struct {
	Kty KeyType
	Alg Algorithm

	EC2 *EC2Params
	RSA *RSAParams
	OKP *OKPParams
}

// Decode decodes a single CBOR-encoded COSE key. Trailing bytes after the
// key map are rejected.
func Decode(b []byte) (*PublicKey, error) {
	var k cose_key.Key
	if err := cbor.Unmarshal(b, &k); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
	}
	return FromCOSE(k)
}

// FromCOSE converts a raw COSE key map into the tagged variant.
func FromCOSE(k cose_key.Key) (*PublicKey, error) {
	pub := &PublicKey{
		Kty: KeyType(k.Kty()),
		Alg: Algorithm(k.Alg()),
	}

	switch pub.Kty {
	case KeyTypeEC2:
		if !k.Has(iana.EC2KeyParameterCrv) || !k.Has(iana.EC2KeyParameterX) || !k.Has(iana.EC2KeyParameterY) {
			return nil, errors.Wrap(ErrUnsupportedKey, "ec2 key missing curve or coordinates")
		}
		crv, err := k.GetInt(iana.EC2KeyParameterCrv)
		if err != nil {
			return nil, errors.Wrap(ErrUnsupportedKey, "ec2 key curve is not an integer")
		}
		x, err := k.GetBytes(iana.EC2KeyParameterX)
		if err != nil {
			return nil, errors.Wrap(ErrUnsupportedKey, "ec2 key x coordinate is not a byte string")
		}
		y, err := k.GetBytes(iana.EC2KeyParameterY)
		if err != nil {
			return nil, errors.Wrap(ErrUnsupportedKey, "ec2 key y coordinate is not a byte string")
		}
		ec2 := &EC2Params{Curve: Curve(crv), X: x, Y: y}
		size := ec2.Curve.coordinateSize()
		if size == 0 || ec2.Curve == CurveEd25519 {
			return nil, fmt.Errorf("%w: unknown ec2 curve %d", ErrUnsupportedKey, crv)
		}
		if len(x) != size || len(y) != size {
			return nil, fmt.Errorf("%w: ec2 coordinates are %d/%d bytes, curve requires %d",
				ErrUnsupportedKey, len(x), len(y), size)
		}
		pub.EC2 = ec2
		if pub.Alg == 0 {
			switch ec2.Curve {
			case CurveP256:
				pub.Alg = AlgES256
			case CurveP384:
				pub.Alg = AlgES384
			case CurveP521:
				pub.Alg = AlgES512
			}
		}

	case KeyTypeRSA:
		if !k.Has(iana.RSAKeyParameterN) || !k.Has(iana.RSAKeyParameterE) {
			return nil, errors.Wrap(ErrUnsupportedKey, "rsa key missing modulus or exponent")
		}
		n, err := k.GetBytes(iana.RSAKeyParameterN)
		if err != nil {
			return nil, errors.Wrap(ErrUnsupportedKey, "rsa key modulus is not a byte string")
		}
		e, err := k.GetBytes(iana.RSAKeyParameterE)
		if err != nil {
			return nil, errors.Wrap(ErrUnsupportedKey, "rsa key exponent is not a byte string")
		}
		if len(n) == 0 || len(e) == 0 {
			return nil, errors.Wrap(ErrUnsupportedKey, "rsa key modulus or exponent is empty")
		}
		pub.RSA = &RSAParams{N: n, E: e}
		if pub.Alg == 0 {
			pub.Alg = AlgRS256
		}

	case KeyTypeOKP:
		if !k.Has(iana.OKPKeyParameterCrv) || !k.Has(iana.OKPKeyParameterX) {
			return nil, errors.Wrap(ErrUnsupportedKey, "okp key missing curve or x")
		}
		crv, err := k.GetInt(iana.OKPKeyParameterCrv)
		if err != nil {
			return nil, errors.Wrap(ErrUnsupportedKey, "okp key curve is not an integer")
		}
		if Curve(crv) != CurveEd25519 {
			return nil, fmt.Errorf("%w: okp curve %d, only Ed25519 is supported", ErrUnsupportedKey, crv)
		}
		x, err := k.GetBytes(iana.OKPKeyParameterX)
		if err != nil {
			return nil, errors.Wrap(ErrUnsupportedKey, "okp key x is not a byte string")
		}
		if len(x) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: Ed25519 key is %d bytes, want %d", ErrUnsupportedKey, len(x), ed25519.PublicKeySize)
		}
		pub.OKP = &OKPParams{Curve: CurveEd25519, X: x}
		if pub.Alg == 0 {
			pub.Alg = AlgEdDSA
		}

	default:
		return nil, fmt.Errorf("%w: kty %d", ErrUnsupportedKey, k.Kty())
	}

	return pub, nil
}

// Crypto converts the key into its crypto package equivalent.
func (p *PublicKey) Crypto() (crypto.PublicKey, error) {
	switch p.Kty {
	case KeyTypeEC2:
		var curve elliptic.Curve
		switch p.EC2.Curve {
		case CurveP256:
			curve = elliptic.P256()
		case CurveP384:
			curve = elliptic.P384()
		case CurveP521:
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("%w: ec2 curve %d", ErrUnsupportedKey, p.EC2.Curve)
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(p.EC2.X),
			Y:     new(big.Int).SetBytes(p.EC2.Y),
		}, nil
	case KeyTypeRSA:
		e := new(big.Int).SetBytes(p.RSA.E)
		if !e.IsInt64() || e.Int64() > int64(1)<<31 || e.Int64() < 2 {
			return nil, fmt.Errorf("%w: rsa exponent out of range", ErrUnsupportedKey)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(p.RSA.N),
			E: int(e.Int64()),
		}, nil
	case KeyTypeOKP:
		return ed25519.PublicKey(p.OKP.X), nil
	}
	return nil, fmt.Errorf("%w: kty %d", ErrUnsupportedKey, p.Kty)
}
