package mint

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/splitsecure/go-webauthn/authenticatordata"
	"github.com/splitsecure/go-webauthn/base64url"
	"github.com/splitsecure/go-webauthn/webauthn"
)

type AuthenticationInput struct {
	Credential *Credential

	RPID      string
	Origin    string
	Challenge string

	SignCount uint32

	// Flags is the authenticator data flag byte. Zero defaults to UP | UV.
	Flags byte

	UserHandle []byte

	// MutateClientData edits the client data object before serialization.
	MutateClientData func(map[string]any)

	// MutateResponse edits the assembled response before JSON encoding.
	MutateResponse func(*webauthn.AuthenticationResponse)

	// CorruptSignature flips one bit of the assertion signature.
	CorruptSignature bool
}

type AuthenticationOutput struct {
	Response     *webauthn.AuthenticationResponse
	ResponseJSON []byte

	AuthData       []byte
	ClientDataJSON []byte
}

// MintAuthentication fabricates a complete get ceremony response: the
// signature covers authenticatorData || SHA-256(clientDataJSON) with the
// credential key.
func MintAuthentication(in *AuthenticationInput) (AuthenticationOutput, error) {
	flags := in.Flags
	if flags == 0 {
		flags = authenticatordata.FlagUserPresent | authenticatordata.FlagUserVerified
	}

	clientData := map[string]any{
		"type":      "webauthn.get",
		"challenge": in.Challenge,
		"origin":    in.Origin,
	}
	if in.MutateClientData != nil {
		in.MutateClientData(clientData)
	}
	cdJSON, err := json.Marshal(clientData)
	if err != nil {
		return AuthenticationOutput{}, err
	}
	cdHash := sha256.Sum256(cdJSON)

	rpIDHash := sha256.Sum256([]byte(in.RPID))
	ad := authenticatordata.Data{
		RPIDHash:  rpIDHash[:],
		Flags:     authenticatordata.Flags(flags),
		SignCount: in.SignCount,
	}
	adb, err := authenticatordata.Marshal(&ad)
	if err != nil {
		return AuthenticationOutput{}, err
	}

	signed := append(append([]byte{}, adb...), cdHash[:]...)
	sig, err := in.Credential.Sign(signed)
	if err != nil {
		return AuthenticationOutput{}, err
	}
	if in.CorruptSignature {
		sig[len(sig)-1] ^= 0x01
	}

	resp := &webauthn.AuthenticationResponse{
		ID:    base64url.Encode(in.Credential.ID),
		RawID: base64url.Encode(in.Credential.ID),
		Type:  "public-key",
	}
	resp.Response.ClientDataJSON = base64url.Encode(cdJSON)
	resp.Response.AuthenticatorData = base64url.Encode(adb)
	resp.Response.Signature = base64url.Encode(sig)
	if in.UserHandle != nil {
		handle, err := json.Marshal(base64url.Encode(in.UserHandle))
		if err != nil {
			return AuthenticationOutput{}, err
		}
		resp.Response.UserHandle = handle
	}
	if in.MutateResponse != nil {
		in.MutateResponse(resp)
	}

	respJSON, err := json.Marshal(resp)
	if err != nil {
		return AuthenticationOutput{}, err
	}

	return AuthenticationOutput{
		Response:       resp,
		ResponseJSON:   respJSON,
		AuthData:       adb,
		ClientDataJSON: cdJSON,
	}, nil
}

// StoredCredential returns the caller-side credential record a relying
// party would have persisted at registration time.
func (c *Credential) StoredCredential(signCount uint32) *webauthn.Credential {
	return &webauthn.Credential{
		ID:        c.ID,
		PublicKey: c.COSEKey,
		SignCount: signCount,
	}
}
