package attestation

import (
	"context"
	"crypto/x509"
	"fmt"

	"github.com/pkg/errors"

	"github.com/splitsecure/go-webauthn/authenticatordata"
)

// parseCertificates parses an x5c chain, leaf first.
func parseCertificates(x5c [][]byte) ([]*x509.Certificate, error) {
	if len(x5c) == 0 {
		return nil, fmt.Errorf("%w: empty x5c certificate chain", ErrMalformedStatement)
	}
	certs := make([]*x509.Certificate, 0, len(x5c))
	for i, der := range x5c {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedStatement, "parsing x5c[%d]: %v", i, err)
		}
		certs = append(certs, cert)
	}
	if err := rejectWeakSignatureAlgorithms(certs); err != nil {
		return nil, err
	}
	return certs, nil
}

// rejectWeakSignatureAlgorithms refuses chains carrying MD2/MD5/SHA1 RSA
// signatures.
func rejectWeakSignatureAlgorithms(certs []*x509.Certificate) error {
	for i, cert := range certs {
		switch cert.SignatureAlgorithm {
		case x509.MD2WithRSA, x509.MD5WithRSA, x509.SHA1WithRSA:
			return fmt.Errorf("%w: x5c[%d] uses weak signature algorithm %v", ErrVerification, i, cert.SignatureAlgorithm)
		}
	}
	return nil
}

// verifyTrustPath chains the statement's certificates to roots supplied by
// the trust anchor collaborator. A nil source or nil pool reports
// (false, nil): attestation trust is policy, and its absence must not fail
// an otherwise valid statement. A configured anchor set that the chain does
// not reach is a verification failure.
func verifyTrustPath(ctx context.Context, anchors TrustAnchorSource, format Format, aaguid authenticatordata.AAGUID, chain []*x509.Certificate) (bool, error) {
	if anchors == nil {
		return false, nil
	}
	roots, err := anchors.Roots(ctx, format, aaguid)
	if err != nil {
		return false, errors.Wrapf(err, "fetching trust anchors for format %q", format)
	}
	if roots == nil {
		return false, nil
	}

	opts := x509.VerifyOptions{
		Roots: roots,
		// Attestation certificates rarely carry server-auth EKUs.
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if len(chain) > 1 {
		opts.Intermediates = x509.NewCertPool()
		for _, cert := range chain[1:] {
			opts.Intermediates.AddCert(cert)
		}
	}
	if _, err := chain[0].Verify(opts); err != nil {
		return false, fmt.Errorf("%w: certificate chain does not reach a configured anchor: %v", ErrVerification, err)
	}
	return true, nil
}
