package webauthn

import (
	"encoding/json"
	"fmt"

	"github.com/splitsecure/go-webauthn/base64url"
)

// credentialType is the only type the PublicKeyCredential interface defines.
const credentialType = "public-key"

// RegistrationResponse is the JSON serialization of a PublicKeyCredential
// produced by a create ceremony. Binary fields are unpadded base64url.
type RegistrationResponse struct {
	ID    string `json:"id"`
	RawID string `json:"rawId"`
	Type  string `json:"type"`

	Response struct {
		ClientDataJSON    string `json:"clientDataJSON"`
		AttestationObject string `json:"attestationObject"`
	} `json:"response"`
}

// AuthenticationResponse is the JSON serialization of a PublicKeyCredential
// produced by a get ceremony.
type AuthenticationResponse struct {
	ID    string `json:"id"`
	RawID string `json:"rawId"`
	Type  string `json:"type"`

	Response struct {
		ClientDataJSON    string          `json:"clientDataJSON"`
		AuthenticatorData string          `json:"authenticatorData"`
		Signature         string          `json:"signature"`
		UserHandle        json.RawMessage `json:"userHandle,omitempty"`
	} `json:"response"`
}

// checkCredential enforces the shared envelope rules for both ceremonies.
func checkCredential(id, rawID, typ string) error {
	if id == "" {
		return ErrMissingCredentialID
	}
	if id != rawID {
		return fmt.Errorf("%w: id %q, rawId %q", ErrCredentialIDMismatch, id, rawID)
	}
	if typ != credentialType {
		return fmt.Errorf("%w: %q", ErrUnexpectedCredentialType, typ)
	}
	return nil
}

func (r *RegistrationResponse) check() error {
	if err := checkCredential(r.ID, r.RawID, r.Type); err != nil {
		return err
	}
	if r.Response.ClientDataJSON == "" {
		return fmt.Errorf("%w: response.clientDataJSON", ErrMissingResponseField)
	}
	if r.Response.AttestationObject == "" {
		return fmt.Errorf("%w: response.attestationObject", ErrMissingResponseField)
	}
	return nil
}

func (r *AuthenticationResponse) check() error {
	if err := checkCredential(r.ID, r.RawID, r.Type); err != nil {
		return err
	}
	if r.Response.ClientDataJSON == "" {
		return fmt.Errorf("%w: response.clientDataJSON", ErrMissingResponseField)
	}
	if r.Response.AuthenticatorData == "" {
		return fmt.Errorf("%w: response.authenticatorData", ErrMissingResponseField)
	}
	if r.Response.Signature == "" {
		return fmt.Errorf("%w: response.signature", ErrMissingResponseField)
	}
	return nil
}

// userHandle decodes the optional userHandle field. Absent and JSON null are
// both treated as no handle; a present non-string value is an encoding error.
func (r *AuthenticationResponse) userHandle() ([]byte, error) {
	raw := r.Response.UserHandle
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: response.userHandle is not a string", ErrInvalidEncoding)
	}
	b, err := base64url.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: response.userHandle", ErrInvalidEncoding)
	}
	return b, nil
}

// decodeField decodes one base64url response field, wrapping failures with
// the field name for audit logs.
func decodeField(name, value string) ([]byte, error) {
	b, err := base64url.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEncoding, name)
	}
	return b, nil
}
