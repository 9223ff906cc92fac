package authenticatordata

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	cose_key "github.com/ldclabs/cose/key"
	"github.com/pkg/errors"

	"github.com/splitsecure/go-webauthn/cosekey"
)

// ErrMalformed is returned for truncated, over-long, or otherwise
// structurally invalid authenticator data.
var ErrMalformed = errors.New("malformed authenticator data")

// headerLen is the fixed prefix: 32 byte rpIdHash, 1 flag byte, 4 byte
// big-endian counter.
const headerLen = 32 + 1 + 4

// Unmarshal parses authenticator data. Every byte must be accounted for:
// trailing bytes that are not announced by the AT or ED flags fail with
// ErrMalformed.
func Unmarshal(src []byte) (*Data, error) {
	if len(src) < headerLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformed, len(src), headerLen)
	}

	d := &Data{
		RPIDHash:  src[0:32],
		Flags:     Flags(src[32]),
		SignCount: binary.BigEndian.Uint32(src[33:headerLen]),
	}
	rest := src[headerLen:]

	if d.Flags.HasAttestedCredentialData() {
		acd, consumed, err := unmarshalAttestedCredentialData(rest)
		if err != nil {
			return nil, err
		}
		d.AttestedCredentialData = acd
		rest = rest[consumed:]
	}

	if d.Flags.HasExtensionData() {
		dec := cbor.NewDecoder(bytes.NewReader(rest))
		ext := map[string]any{}
		if err := dec.Decode(&ext); err != nil {
			return nil, errors.Wrap(ErrMalformed, "decoding extension map")
		}
		d.Extensions = ext
		d.RawExtensions = rest[:dec.NumBytesRead()]
		rest = rest[dec.NumBytesRead():]
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	return d, nil
}

// unmarshalAttestedCredentialData parses the attested credential data block
// and reports how many bytes it consumed. The credential public key has no
// length prefix; the CBOR decoder's read position determines its extent.
func unmarshalAttestedCredentialData(src []byte) (*AttestedCredentialData, int, error) {
	if len(src) < 18 {
		return nil, 0, fmt.Errorf("%w: %d bytes of attested credential data, need at least 18", ErrMalformed, len(src))
	}

	acd := &AttestedCredentialData{}
	copy(acd.AAGUID[:], src[0:16])

	credLen := int(binary.BigEndian.Uint16(src[16:18]))
	if len(src) < 18+credLen {
		return nil, 0, fmt.Errorf("%w: credential id length %d exceeds remaining %d bytes", ErrMalformed, credLen, len(src)-18)
	}
	acd.CredentialID = src[18 : 18+credLen]

	keyStart := 18 + credLen
	dec := cbor.NewDecoder(bytes.NewReader(src[keyStart:]))

	var k cose_key.Key
	if err := dec.Decode(&k); err != nil {
		return nil, 0, errors.Wrap(ErrMalformed, "decoding credential public key")
	}
	pub, err := cosekey.FromCOSE(k)
	if err != nil {
		return nil, 0, err
	}

	consumed := keyStart + dec.NumBytesRead()
	acd.PublicKey = pub
	acd.RawPublicKey = src[keyStart:consumed]
	return acd, consumed, nil
}
