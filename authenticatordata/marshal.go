package authenticatordata

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Marshal serializes authenticator data back to the wire layout. The
// attested credential data block is written when the AT flag is set, using
// RawPublicKey as the credential public key bytes.
func Marshal(d *Data) ([]byte, error) {
	if len(d.RPIDHash) != 32 {
		return nil, fmt.Errorf("%w: rpIdHash is %d bytes, want 32", ErrMalformed, len(d.RPIDHash))
	}

	buf := bytes.Buffer{}
	buf.Write(d.RPIDHash)
	buf.WriteByte(byte(d.Flags))

	counter := [4]byte{}
	binary.BigEndian.PutUint32(counter[:], d.SignCount)
	buf.Write(counter[:])

	if d.Flags.HasAttestedCredentialData() {
		acd := d.AttestedCredentialData
		if acd == nil {
			return nil, fmt.Errorf("%w: AT flag set without attested credential data", ErrMalformed)
		}
		if len(acd.CredentialID) > 0xffff {
			return nil, fmt.Errorf("%w: credential id is %d bytes", ErrMalformed, len(acd.CredentialID))
		}
		buf.Write(acd.AAGUID[:])

		credLen := [2]byte{}
		binary.BigEndian.PutUint16(credLen[:], uint16(len(acd.CredentialID)))
		buf.Write(credLen[:])
		buf.Write(acd.CredentialID)
		buf.Write(acd.RawPublicKey)
	}

	if d.Flags.HasExtensionData() {
		buf.Write(d.RawExtensions)
	}

	return buf.Bytes(), nil
}
