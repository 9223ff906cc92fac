package mint

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/splitsecure/go-webauthn/attestation"
	"github.com/splitsecure/go-webauthn/authenticatordata"
	"github.com/splitsecure/go-webauthn/base64url"
	"github.com/splitsecure/go-webauthn/cosekey"
	"github.com/splitsecure/go-webauthn/webauthn"
)

var idFIDOGenCEAAGUID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

type RegistrationInput struct {
	Credential *Credential

	RPID      string
	Origin    string
	Challenge string

	// Format selects the attestation statement. Zero value means packed;
	// packed yields self attestation unless Chain is set.
	Format attestation.Format

	SignCount uint32
	AAGUID    authenticatordata.AAGUID

	// Flags is the authenticator data flag byte. Zero defaults to
	// UP | UV | AT.
	Flags byte

	// Chain supplies the CA used to mint attestation certificates for
	// packed basic and fido-u2f statements.
	Chain *MintContext

	// MutateClientData edits the client data object before serialization.
	MutateClientData func(map[string]any)

	// MutateStatement edits the attestation statement before it is encoded.
	MutateStatement func(map[string]any)

	// MutateLeafTemplate edits the attestation certificate template before
	// it is signed.
	MutateLeafTemplate func(*x509.Certificate)

	// CorruptSignature flips one bit of the statement signature.
	CorruptSignature bool
}

type RegistrationOutput struct {
	Response     *webauthn.RegistrationResponse
	ResponseJSON []byte

	AuthData       []byte
	ClientDataJSON []byte
}

// MintRegistration fabricates a complete create ceremony response the way a
// browser would serialize it.
func MintRegistration(in *RegistrationInput) (RegistrationOutput, error) {
	flags := in.Flags
	if flags == 0 {
		flags = authenticatordata.FlagUserPresent |
			authenticatordata.FlagUserVerified |
			authenticatordata.FlagAttestedCredentialData
	}

	clientData := map[string]any{
		"type":      "webauthn.create",
		"challenge": in.Challenge,
		"origin":    in.Origin,
	}
	if in.MutateClientData != nil {
		in.MutateClientData(clientData)
	}
	cdJSON, err := json.Marshal(clientData)
	if err != nil {
		return RegistrationOutput{}, err
	}
	cdHash := sha256.Sum256(cdJSON)

	rpIDHash := sha256.Sum256([]byte(in.RPID))
	ad := authenticatordata.Data{
		RPIDHash:  rpIDHash[:],
		Flags:     authenticatordata.Flags(flags),
		SignCount: in.SignCount,
	}
	if ad.Flags.HasAttestedCredentialData() {
		ad.AttestedCredentialData = &authenticatordata.AttestedCredentialData{
			AAGUID:       in.AAGUID,
			CredentialID: in.Credential.ID,
			RawPublicKey: in.Credential.COSEKey,
		}
	}
	adb, err := authenticatordata.Marshal(&ad)
	if err != nil {
		return RegistrationOutput{}, err
	}

	signed := append(append([]byte{}, adb...), cdHash[:]...)

	format := in.Format
	if format == "" {
		format = attestation.FormatPacked
	}
	stmt, err := mintStatement(in, format, signed, cdHash[:])
	if err != nil {
		return RegistrationOutput{}, err
	}
	if in.CorruptSignature {
		if sig, ok := stmt["sig"].([]byte); ok && len(sig) > 0 {
			sig[len(sig)-1] ^= 0x01
		}
	}
	if in.MutateStatement != nil {
		in.MutateStatement(stmt)
	}

	attObj := struct {
		Format   string         `cbor:"fmt"`
		AttStmt  map[string]any `cbor:"attStmt"`
		AuthData []byte         `cbor:"authData"`
	}{
		Format:   string(format),
		AttStmt:  stmt,
		AuthData: adb,
	}
	aob, err := cbor.Marshal(&attObj)
	if err != nil {
		return RegistrationOutput{}, err
	}

	resp := &webauthn.RegistrationResponse{
		ID:    base64url.Encode(in.Credential.ID),
		RawID: base64url.Encode(in.Credential.ID),
		Type:  "public-key",
	}
	resp.Response.ClientDataJSON = base64url.Encode(cdJSON)
	resp.Response.AttestationObject = base64url.Encode(aob)

	respJSON, err := json.Marshal(resp)
	if err != nil {
		return RegistrationOutput{}, err
	}

	return RegistrationOutput{
		Response:       resp,
		ResponseJSON:   respJSON,
		AuthData:       adb,
		ClientDataJSON: cdJSON,
	}, nil
}

func mintStatement(in *RegistrationInput, format attestation.Format, signed, cdHash []byte) (map[string]any, error) {
	switch format {
	case attestation.FormatNone:
		return map[string]any{}, nil

	case attestation.FormatPacked:
		if in.Chain == nil {
			sig, err := in.Credential.Sign(signed)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"alg": int(in.Credential.Alg),
				"sig": sig,
			}, nil
		}
		return mintPackedBasic(in, signed)

	case attestation.FormatFIDOU2F:
		return mintFIDOU2F(in, cdHash)

	case attestation.FormatAndroidKey:
		return mintAndroidKey(in, signed, cdHash)

	case attestation.FormatApple:
		return mintApple(in, signed)
	}
	return nil, fmt.Errorf("mint: no statement minter for format %q", format)
}

// mintPackedBasic signs with a fresh attestation key whose certificate meets
// the packed certificate requirements, chained leaf -> intermediate -> CA.
func mintPackedBasic(in *RegistrationInput, signed []byte) (map[string]any, error) {
	attKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	aaguidDER, err := asn1.Marshal(in.AAGUID[:])
	if err != nil {
		return nil, err
	}
	exts := []pkix.Extension{{Id: idFIDOGenCEAAGUID, Value: aaguidDER}}

	leafDER, err := generateLeafCert(
		&attKey.PublicKey,
		"mock packed attestation",
		[]string{"Authenticator Attestation"},
		in.Chain.IntCertDer,
		in.Chain.IntKey,
		exts,
		in.MutateLeafTemplate,
	)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(signed)
	sig, err := ecdsa.SignASN1(rand.Reader, attKey, digest[:])
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"alg": int(cosekey.AlgES256),
		"sig": sig,
		"x5c": [][]byte{leafDER, in.Chain.IntCertDer},
	}, nil
}

var androidKeyDescriptionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}

// keyDescription mirrors the Android Keystore attestation extension layout.
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

// mintAndroidKey certifies the credential key itself: the leaf carries the
// credential public key and a keystore extension binding the client data
// hash, and the credential key signs the ceremony data.
func mintAndroidKey(in *RegistrationInput, signed, cdHash []byte) (map[string]any, error) {
	if in.Chain == nil {
		return nil, fmt.Errorf("mint: android-key requires a certificate chain")
	}

	emptySeq := asn1.RawValue{FullBytes: []byte{0x30, 0x00}}
	descDER, err := asn1.Marshal(keyDescription{
		AttestationVersion:   3,
		KeymasterVersion:     4,
		AttestationChallenge: cdHash,
		UniqueID:             []byte{},
		SoftwareEnforced:     emptySeq,
		TeeEnforced:          emptySeq,
	})
	if err != nil {
		return nil, err
	}
	exts := []pkix.Extension{{Id: androidKeyDescriptionOID, Value: descDER}}

	leafDER, err := generateLeafCert(
		in.Credential.Public(),
		"mock android keystore",
		nil,
		in.Chain.IntCertDer,
		in.Chain.IntKey,
		exts,
		in.MutateLeafTemplate,
	)
	if err != nil {
		return nil, err
	}

	sig, err := in.Credential.Sign(signed)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"alg": int(in.Credential.Alg),
		"sig": sig,
		"x5c": [][]byte{leafDER, in.Chain.IntCertDer},
	}, nil
}

var appleNonceOID = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 8, 2}

type appleNonceContainer struct {
	Nonce []byte `asn1:"tag:1,explicit"`
}

// mintApple embeds the nonce the CA would have computed over the ceremony
// data into a leaf certificate carrying the credential key. The statement
// itself has no signature.
func mintApple(in *RegistrationInput, signed []byte) (map[string]any, error) {
	if in.Chain == nil {
		return nil, fmt.Errorf("mint: apple requires a certificate chain")
	}

	nonce := sha256.Sum256(signed)
	nonceDER, err := asn1.Marshal(appleNonceContainer{Nonce: nonce[:]})
	if err != nil {
		return nil, err
	}
	exts := []pkix.Extension{{Id: appleNonceOID, Value: nonceDER}}

	leafDER, err := generateLeafCert(
		in.Credential.Public(),
		"mock apple anonymous attestation",
		nil,
		in.Chain.IntCertDer,
		in.Chain.IntKey,
		exts,
		in.MutateLeafTemplate,
	)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"x5c": [][]byte{leafDER, in.Chain.IntCertDer},
	}, nil
}

// mintFIDOU2F signs the reconstructed U2F registration data message. The
// format allows exactly one certificate, so the leaf is issued by the CA
// directly.
func mintFIDOU2F(in *RegistrationInput, cdHash []byte) (map[string]any, error) {
	if in.Chain == nil {
		return nil, fmt.Errorf("mint: fido-u2f requires a certificate chain")
	}
	if in.Credential.Alg != cosekey.AlgES256 {
		return nil, fmt.Errorf("mint: fido-u2f requires an ES256 credential")
	}

	attKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	leafDER, err := generateLeafCert(
		&attKey.PublicKey,
		"mock u2f attestation",
		nil,
		in.Chain.CACertDer,
		in.Chain.CAKey,
		nil,
		in.MutateLeafTemplate,
	)
	if err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(in.RPID))
	pub := in.Credential.ecKey.PublicKey
	x := pub.X.FillBytes(make([]byte, 32))
	y := pub.Y.FillBytes(make([]byte, 32))

	verificationData := []byte{0x00}
	verificationData = append(verificationData, rpIDHash[:]...)
	verificationData = append(verificationData, cdHash...)
	verificationData = append(verificationData, in.Credential.ID...)
	verificationData = append(verificationData, 0x04)
	verificationData = append(verificationData, x...)
	verificationData = append(verificationData, y...)

	digest := sha256.Sum256(verificationData)
	sig, err := ecdsa.SignASN1(rand.Reader, attKey, digest[:])
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"sig": sig,
		"x5c": [][]byte{leafDER},
	}, nil
}
