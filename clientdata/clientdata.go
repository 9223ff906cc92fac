// Package clientdata decodes the collected client data produced by the
// browser during a WebAuthn ceremony.
//
// https://www.w3.org/TR/webauthn-3/#dictionary-client-data
package clientdata

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/splitsecure/go-webauthn/base64url"
)

var (
	// ErrMalformed is returned when the client data blob is not valid
	// base64url, not UTF-8 JSON, or is missing a required field.
	ErrMalformed = errors.New("malformed client data")

	// ErrInvalidTokenBinding is returned when a tokenBinding member is
	// present but does not carry one of the enumerated status values.
	ErrInvalidTokenBinding = errors.New("invalid token binding")
)

// Ceremony types reported in the client data "type" member.
const (
	TypeCreate = "webauthn.create"
	TypeGet    = "webauthn.get"
)

// TokenBindingStatus is the status member of a tokenBinding object.
type TokenBindingStatus string

const (
	TokenBindingPresent      TokenBindingStatus = "present"
	TokenBindingSupported    TokenBindingStatus = "supported"
	TokenBindingNotSupported TokenBindingStatus = "not-supported"
)

// TokenBinding is the deprecated token binding member of client data. It is
// still validated when a client sends it.
type TokenBinding struct {
	Status TokenBindingStatus `json:"status"`
	ID     string             `json:"id,omitempty"`
}

// Validate checks the status against the enumerated values.
func (tb *TokenBinding) Validate() error {
	switch tb.Status {
	case TokenBindingPresent, TokenBindingSupported, TokenBindingNotSupported:
		return nil
	case "":
		return fmt.Errorf("%w: missing status", ErrInvalidTokenBinding)
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTokenBinding, tb.Status)
	}
}

// ClientData is the parsed collected client data. It is constructed once per
// verification call and never mutated.
type ClientData struct {
	Type      string
	Challenge string
	Origin    string

	// TopOrigin and CrossOrigin are populated for cross-origin iframe
	// ceremonies.
	TopOrigin   string
	CrossOrigin bool

	TokenBinding *TokenBinding
}

// Decode decodes a base64url clientDataJSON field and returns the parsed
// client data along with the exact JSON bytes, which callers need to hash
// when reconstructing signed data.
func Decode(b64 string) (*ClientData, []byte, error) {
	raw, err := base64url.Decode(b64)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: clientDataJSON: %v", ErrMalformed, err)
	}
	cd, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return cd, raw, nil
}

// Parse parses raw clientDataJSON bytes.
func Parse(raw []byte) (*ClientData, error) {
	var fields struct {
		Type        *string         `json:"type"`
		Challenge   *string         `json:"challenge"`
		Origin      *string         `json:"origin"`
		TopOrigin   string          `json:"topOrigin"`
		CrossOrigin bool            `json:"crossOrigin"`
		TokenBind   json.RawMessage `json:"tokenBinding"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&fields); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if fields.Type == nil {
		return nil, fmt.Errorf("%w: missing required field %q", ErrMalformed, "type")
	}
	if fields.Challenge == nil {
		return nil, fmt.Errorf("%w: missing required field %q", ErrMalformed, "challenge")
	}
	if fields.Origin == nil {
		return nil, fmt.Errorf("%w: missing required field %q", ErrMalformed, "origin")
	}

	cd := &ClientData{
		Type:        *fields.Type,
		Challenge:   *fields.Challenge,
		Origin:      *fields.Origin,
		TopOrigin:   fields.TopOrigin,
		CrossOrigin: fields.CrossOrigin,
	}

	if len(fields.TokenBind) != 0 && !bytes.Equal(fields.TokenBind, []byte("null")) {
		tb := &TokenBinding{}
		if err := json.Unmarshal(fields.TokenBind, tb); err != nil {
			return nil, fmt.Errorf("%w: tokenBinding is not an object: %v", ErrInvalidTokenBinding, err)
		}
		if err := tb.Validate(); err != nil {
			return nil, err
		}
		cd.TokenBinding = tb
	}
	return cd, nil
}
