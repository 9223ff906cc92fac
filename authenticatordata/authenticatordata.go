// Package authenticatordata parses the binary authenticator data structure
// according to https://www.w3.org/TR/webauthn-3/#sctn-authenticator-data
package authenticatordata

import (
	"github.com/google/uuid"

	"github.com/splitsecure/go-webauthn/cosekey"
)

// Flag bits of the authenticator data flags byte.
const (
	FlagUserPresent            = byte(1)
	FlagRFU1                   = byte(1 << 1)
	FlagUserVerified           = byte(1 << 2)
	FlagBackupEligible         = byte(1 << 3)
	FlagBackupState            = byte(1 << 4)
	FlagRFU2                   = byte(1 << 5)
	FlagAttestedCredentialData = byte(1 << 6)
	FlagExtensionData          = byte(1 << 7)
)

// Flags is the packed flag byte of authenticator data.
type Flags byte

// UserPresent reports whether the authenticator performed a successful user
// presence test.
func (f Flags) UserPresent() bool { return byte(f)&FlagUserPresent != 0 }

// UserVerified reports whether the authenticator verified the user through
// PIN, biometric, or an equivalent gesture.
func (f Flags) UserVerified() bool { return byte(f)&FlagUserVerified != 0 }

// BackupEligible reports whether the credential can be synced across devices.
func (f Flags) BackupEligible() bool { return byte(f)&FlagBackupEligible != 0 }

// BackupState reports whether the credential is currently backed up. Only
// meaningful when BackupEligible is set.
func (f Flags) BackupState() bool { return byte(f)&FlagBackupState != 0 }

// HasAttestedCredentialData reports whether an attested credential data
// block follows the counter.
func (f Flags) HasAttestedCredentialData() bool { return byte(f)&FlagAttestedCredentialData != 0 }

// HasExtensionData reports whether a trailing CBOR extension map is present.
func (f Flags) HasExtensionData() bool { return byte(f)&FlagExtensionData != 0 }

// AAGUID identifies the authenticator model or credential provider.
type AAGUID [16]byte

func (a AAGUID) String() string {
	id, err := uuid.FromBytes(a[:])
	if err != nil {
		return "00000000-0000-0000-0000-000000000000"
	}
	return id.String()
}

// AttestedCredentialData is the optional block carrying the new credential
// during registration.
type AttestedCredentialData struct {
	AAGUID       AAGUID
	CredentialID []byte

	// PublicKey is the decoded credential public key and RawPublicKey the
	// exact CBOR bytes it was decoded from, suitable for storage.
	PublicKey    *cosekey.PublicKey
	RawPublicKey []byte
}

// Data is parsed authenticator data. It is derived purely from the input
// bytes and never mutated after parse; the parser performs no policy checks.
type Data struct {
	RPIDHash  []byte
	Flags     Flags
	SignCount uint32

	// AttestedCredentialData is nil unless the AT flag is set.
	AttestedCredentialData *AttestedCredentialData

	// Extensions is nil unless the ED flag is set. RawExtensions holds the
	// undecoded extension map bytes.
	Extensions    map[string]any
	RawExtensions []byte
}
