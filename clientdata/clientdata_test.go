package clientdata_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/splitsecure/go-webauthn/base64url"
	"github.com/splitsecure/go-webauthn/clientdata"
)

func TestDecode(t *testing.T) {
	raw := []byte(`{"type":"webauthn.get","challenge":"abc123","origin":"https://example.com","crossOrigin":false}`)
	cd, gotRaw, err := clientdata.Decode(base64url.Encode(raw))
	require.NoError(t, err)
	require.Equal(t, raw, gotRaw)
	require.Equal(t, clientdata.TypeGet, cd.Type)
	require.Equal(t, "abc123", cd.Challenge)
	require.Equal(t, "https://example.com", cd.Origin)
	require.Nil(t, cd.TokenBinding)
}

func TestDecodeRejectsPaddedBase64(t *testing.T) {
	_, _, err := clientdata.Decode("eyJ0eXBlIjoid2ViYXV0aG4uZ2V0In0=")
	require.True(t, errors.Is(err, clientdata.ErrMalformed))
}

func TestParseRequiredFields(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  string
	}{
		{"not json", `what is this`},
		{"not an object", `["webauthn.get"]`},
		{"missing type", `{"challenge":"c","origin":"o"}`},
		{"missing challenge", `{"type":"webauthn.get","origin":"o"}`},
		{"missing origin", `{"type":"webauthn.get","challenge":"c"}`},
		{"type not a string", `{"type":7,"challenge":"c","origin":"o"}`},
		{"challenge not a string", `{"type":"webauthn.get","challenge":{},"origin":"o"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := clientdata.Parse([]byte(tc.raw))
			require.True(t, errors.Is(err, clientdata.ErrMalformed), "got %v", err)
		})
	}
}

func TestParseTokenBinding(t *testing.T) {
	cd, err := clientdata.Parse([]byte(`{"type":"webauthn.get","challenge":"c","origin":"o","tokenBinding":{"status":"supported"}}`))
	require.NoError(t, err)
	require.NotNil(t, cd.TokenBinding)
	require.Equal(t, clientdata.TokenBindingSupported, cd.TokenBinding.Status)

	_, err = clientdata.Parse([]byte(`{"type":"webauthn.get","challenge":"c","origin":"o","tokenBinding":{"status":"sideways"}}`))
	require.True(t, errors.Is(err, clientdata.ErrInvalidTokenBinding))

	_, err = clientdata.Parse([]byte(`{"type":"webauthn.get","challenge":"c","origin":"o","tokenBinding":"supported"}`))
	require.True(t, errors.Is(err, clientdata.ErrInvalidTokenBinding))

	_, err = clientdata.Parse([]byte(`{"type":"webauthn.get","challenge":"c","origin":"o","tokenBinding":{}}`))
	require.True(t, errors.Is(err, clientdata.ErrInvalidTokenBinding))

	// explicit null is treated as absent
	cd, err = clientdata.Parse([]byte(`{"type":"webauthn.get","challenge":"c","origin":"o","tokenBinding":null}`))
	require.NoError(t, err)
	require.Nil(t, cd.TokenBinding)
}
