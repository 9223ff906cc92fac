package mint

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/iana"
	cose_key "github.com/ldclabs/cose/key"

	"github.com/splitsecure/go-webauthn/cosekey"
)

// Credential is a fabricated authenticator credential: a fresh key pair of
// the requested algorithm, a random credential id, and the COSE encoding of
// the public key as an authenticator would emit it.
type Credential struct {
	Alg cosekey.Algorithm
	ID  []byte

	// COSEKey is the CBOR-encoded COSE public key.
	COSEKey []byte

	ecKey  *ecdsa.PrivateKey
	rsaKey *rsa.PrivateKey
	edKey  ed25519.PrivateKey
}

// NewCredential generates a credential for one of the supported algorithms:
// ES256/ES384/ES512, RS256, PS256, EdDSA.
func NewCredential(alg cosekey.Algorithm) (*Credential, error) {
	c := &Credential{Alg: alg}

	c.ID = make([]byte, 32)
	if _, err := rand.Read(c.ID); err != nil {
		return nil, err
	}

	var err error
	switch alg {
	case cosekey.AlgES256:
		c.ecKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case cosekey.AlgES384:
		c.ecKey, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case cosekey.AlgES512:
		c.ecKey, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case cosekey.AlgRS256, cosekey.AlgPS256:
		c.rsaKey, err = rsa.GenerateKey(rand.Reader, 2048)
	case cosekey.AlgEdDSA:
		_, c.edKey, err = ed25519.GenerateKey(rand.Reader)
	default:
		return nil, fmt.Errorf("mint: no credential generator for %s", alg)
	}
	if err != nil {
		return nil, err
	}

	c.COSEKey, err = c.encodeCOSE()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Public returns the credential public key.
func (c *Credential) Public() crypto.PublicKey {
	switch {
	case c.ecKey != nil:
		return &c.ecKey.PublicKey
	case c.rsaKey != nil:
		return &c.rsaKey.PublicKey
	default:
		return c.edKey.Public()
	}
}

// Sign produces a signature over data the way an authenticator of this
// algorithm would: ASN.1 DER for ECDSA, PKCS1v15 or PSS for RSA, raw for
// Ed25519.
func (c *Credential) Sign(data []byte) ([]byte, error) {
	switch c.Alg {
	case cosekey.AlgES256, cosekey.AlgES384, cosekey.AlgES512:
		digest := c.digest(data)
		return ecdsa.SignASN1(rand.Reader, c.ecKey, digest)
	case cosekey.AlgRS256:
		digest := c.digest(data)
		return rsa.SignPKCS1v15(rand.Reader, c.rsaKey, crypto.SHA256, digest)
	case cosekey.AlgPS256:
		digest := c.digest(data)
		return rsa.SignPSS(rand.Reader, c.rsaKey, crypto.SHA256, digest, nil)
	case cosekey.AlgEdDSA:
		return ed25519.Sign(c.edKey, data), nil
	}
	return nil, fmt.Errorf("mint: no signer for %s", c.Alg)
}

func (c *Credential) digest(data []byte) []byte {
	h, err := c.Alg.Hash()
	if err != nil {
		panic(err)
	}
	hh := h.New()
	hh.Write(data)
	return hh.Sum(nil)
}

func (c *Credential) encodeCOSE() ([]byte, error) {
	k := cose_key.Key{}
	switch {
	case c.ecKey != nil:
		size := (c.ecKey.Curve.Params().BitSize + 7) / 8
		x := c.ecKey.PublicKey.X.FillBytes(make([]byte, size))
		y := c.ecKey.PublicKey.Y.FillBytes(make([]byte, size))
		k[iana.KeyParameterKty] = iana.KeyTypeEC2
		k[iana.KeyParameterAlg] = int(c.Alg)
		k[iana.EC2KeyParameterCrv] = ec2Curve(c.ecKey.Curve)
		k[iana.EC2KeyParameterX] = x
		k[iana.EC2KeyParameterY] = y
	case c.rsaKey != nil:
		k[iana.KeyParameterKty] = iana.KeyTypeRSA
		k[iana.KeyParameterAlg] = int(c.Alg)
		k[iana.RSAKeyParameterN] = c.rsaKey.PublicKey.N.Bytes()
		k[iana.RSAKeyParameterE] = []byte{0x01, 0x00, 0x01}
	default:
		k[iana.KeyParameterKty] = iana.KeyTypeOKP
		k[iana.KeyParameterAlg] = int(c.Alg)
		k[iana.OKPKeyParameterCrv] = iana.EllipticCurveEd25519
		k[iana.OKPKeyParameterX] = []byte(c.edKey.Public().(ed25519.PublicKey))
	}
	return cbor.Marshal(k)
}

func ec2Curve(curve elliptic.Curve) int {
	switch curve {
	case elliptic.P384():
		return iana.EllipticCurveP_384
	case elliptic.P521():
		return iana.EllipticCurveP_521
	default:
		return iana.EllipticCurveP_256
	}
}
