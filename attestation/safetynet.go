package attestation

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// safetyNetHostname is the hostname Google issues the SafetyNet signing
// certificate for.
const safetyNetHostname = "attest.android.com"

type safetyNetStatement struct {
	Ver      string `cbor:"ver"`
	Response []byte `cbor:"response"`
}

// verifyAndroidSafetyNet handles the "android-safetynet" format. The
// statement is a JWS signed by Google's SafetyNet service; its nonce claim
// commits to SHA-256(authenticatorData || clientDataHash).
//
// https://www.w3.org/TR/webauthn-3/#sctn-android-safetynet-attestation
func verifyAndroidSafetyNet(ctx context.Context, in *verifyInput) (*Result, error) {
	stmt := safetyNetStatement{}
	if err := cbor.Unmarshal(in.object.Statement, &stmt); err != nil {
		return nil, errors.Wrap(ErrMalformedStatement, err.Error())
	}
	if stmt.Ver == "" || len(stmt.Response) == 0 {
		return nil, fmt.Errorf("%w: android-safetynet statement missing ver or response", ErrMalformedStatement)
	}

	var certs []*x509.Certificate
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "ES256"}))
	token, err := parser.Parse(string(stmt.Response), func(tok *jwt.Token) (any, error) {
		rawChain, ok := tok.Header["x5c"].([]any)
		if !ok || len(rawChain) == 0 {
			return nil, fmt.Errorf("%w: JWS header has no x5c chain", ErrMalformedStatement)
		}
		der := make([][]byte, 0, len(rawChain))
		for i, raw := range rawChain {
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: x5c[%d] is not a string", ErrMalformedStatement, i)
			}
			// x5c entries are standard base64 with padding per RFC 7515.
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("%w: decoding x5c[%d]: %v", ErrMalformedStatement, i, err)
			}
			der = append(der, b)
		}
		var err error
		if certs, err = parseCertificates(der); err != nil {
			return nil, err
		}
		return certs[0].PublicKey, nil
	})
	if err != nil {
		if errors.Is(err, ErrMalformedStatement) || errors.Is(err, ErrVerification) {
			return nil, err
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("%w: SafetyNet JWS signature: %v", ErrVerification, err)
		}
		return nil, errors.Wrap(ErrMalformedStatement, err.Error())
	}

	leaf := certs[0]
	if err := leaf.VerifyHostname(safetyNetHostname); err != nil {
		return nil, fmt.Errorf("%w: SafetyNet certificate is not issued to %s", ErrVerification, safetyNetHostname)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: SafetyNet response claims", ErrMalformedStatement)
	}
	nonce, _ := claims["nonce"].(string)
	if nonce == "" {
		return nil, fmt.Errorf("%w: SafetyNet response has no nonce", ErrMalformedStatement)
	}
	expected := sha256.Sum256(in.signedData())
	if nonce != base64.StdEncoding.EncodeToString(expected[:]) {
		return nil, fmt.Errorf("%w: SafetyNet nonce does not match ceremony data", ErrVerification)
	}
	if cts, _ := claims["ctsProfileMatch"].(bool); !cts {
		return nil, fmt.Errorf("%w: SafetyNet ctsProfileMatch is false", ErrVerification)
	}

	trusted, err := verifyTrustPath(ctx, in.anchors, FormatAndroidSafetyNet, in.aaguid(), certs)
	if err != nil {
		return nil, err
	}
	return &Result{Format: FormatAndroidSafetyNet, Type: TypeBasic, TrustPath: certs, Trusted: trusted}, nil
}
