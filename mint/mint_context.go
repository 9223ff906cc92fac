// Package mint fabricates browser-shaped WebAuthn ceremony responses for
// tests: credential keys for every supported algorithm, attestation
// certificate chains, and complete registration/authentication responses,
// valid or deliberately corrupted.
package mint

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/splitsecure/go-webauthn/attestation"
	"github.com/splitsecure/go-webauthn/authenticatordata"
)

type MintContext struct {
	CAKey     *ecdsa.PrivateKey
	CACertDer []byte

	IntKey     *ecdsa.PrivateKey
	IntCertDer []byte
}

func (mc *MintContext) DumpToDir(p string) error {
	err := os.MkdirAll(p, 0700)
	if err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}

	blk := pem.Block{
		Bytes: mc.CACertDer,
		Type:  "CERTIFICATE",
	}

	if err := os.WriteFile(filepath.Join(p, "ca.crt"), pem.EncodeToMemory(&blk), 0755); err != nil {
		return err
	}

	cakeybuf, err := x509.MarshalECPrivateKey(mc.CAKey)
	if err != nil {
		return err
	}
	blk = pem.Block{
		Bytes: cakeybuf,
		Type:  "EC PRIVATE KEY",
	}
	if err := os.WriteFile(filepath.Join(p, "ca.key"), pem.EncodeToMemory(&blk), 0755); err != nil {
		return err
	}

	blk = pem.Block{
		Bytes: mc.IntCertDer,
		Type:  "CERTIFICATE",
	}
	if err := os.WriteFile(filepath.Join(p, "int.crt"), pem.EncodeToMemory(&blk), 0755); err != nil {
		return err
	}

	intkeybuf, err := x509.MarshalECPrivateKey(mc.IntKey)
	if err != nil {
		return err
	}
	blk = pem.Block{
		Bytes: intkeybuf,
		Type:  "EC PRIVATE KEY",
	}
	if err := os.WriteFile(filepath.Join(p, "int.key"), pem.EncodeToMemory(&blk), 0755); err != nil {
		return err
	}

	return nil
}

// AnchorSource returns a trust anchor source that trusts this context's CA
// for every attestation format and authenticator model.
func (mc *MintContext) AnchorSource() attestation.TrustAnchorSource {
	pool := x509.NewCertPool()
	if ca, err := x509.ParseCertificate(mc.CACertDer); err == nil {
		pool.AddCert(ca)
	}
	return staticAnchors{pool: pool}
}

type staticAnchors struct {
	pool *x509.CertPool
}

func (s staticAnchors) Roots(_ context.Context, _ attestation.Format, _ authenticatordata.AAGUID) (*x509.CertPool, error) {
	return s.pool, nil
}

func NewMintContext() (*MintContext, error) {

	cader, capriv, err := generateCACert("SplitSecure WebAuthn Dev/Mock CA")
	if err != nil {
		return nil, err
	}

	intder, intpriv, err := generateIntermediateCert("SplitSecure WebAuthn Dev/Mock Intermediate", cader, capriv)
	if err != nil {
		return nil, err
	}

	return &MintContext{
		CAKey:     capriv,
		CACertDer: cader,

		IntKey:     intpriv,
		IntCertDer: intder,
	}, nil
}

func generateCACert(commonName string) ([]byte, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(50, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            2,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}

	return certDER, key, nil
}

func generateIntermediateCert(commonName string, parentCertDER []byte, parentKey *ecdsa.PrivateKey) ([]byte, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	parentCert, _ := x509.ParseCertificate(parentCertDER)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(49, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}

	certDER, _ := x509.CreateCertificate(rand.Reader, &template, parentCert, &key.PublicKey, parentKey)
	return certDER, key, nil
}

func generateLeafCert(
	pubkey any,
	commonName string,
	orgUnit []string,
	parentCertDER []byte,
	parentKey *ecdsa.PrivateKey,
	exts []pkix.Extension,
	mutateLeaf func(cert *x509.Certificate),
) ([]byte, error) {
	parentCert, err := x509.ParseCertificate(parentCertDER)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName, OrganizationalUnit: orgUnit},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		ExtraExtensions:       exts,
	}

	if mutateLeaf != nil {
		mutateLeaf(&template)
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, parentCert, pubkey, parentKey)
	if err != nil {
		return nil, err
	}
	return certDER, nil
}
