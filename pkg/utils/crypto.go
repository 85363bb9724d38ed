package utils

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base32"
	"encoding/hex"
	"fmt"
)

const addressChecksumLen = 4

var addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateID generates a random hex ID
func GenerateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// EncodeAddress derives the ledger address for an ed25519 public key:
// base32(pubkey || last 4 bytes of sha512/256(pubkey)).
func EncodeAddress(pub ed25519.PublicKey) string {
	checksum := sha512.Sum512_256(pub)
	raw := make([]byte, 0, ed25519.PublicKeySize+addressChecksumLen)
	raw = append(raw, pub...)
	raw = append(raw, checksum[len(checksum)-addressChecksumLen:]...)
	return addressEncoding.EncodeToString(raw)
}

// DecodePublicKey recovers the ed25519 public key from an address and
// validates its checksum.
func DecodePublicKey(address string) (ed25519.PublicKey, error) {
	raw, err := addressEncoding.DecodeString(address)
	if err != nil {
		return nil, NewAppError(ErrCodeInvalidArgument, "Malformed address", err.Error())
	}
	if len(raw) != ed25519.PublicKeySize+addressChecksumLen {
		return nil, NewAppError(ErrCodeInvalidArgument, "Malformed address",
			fmt.Sprintf("expected %d bytes, got %d", ed25519.PublicKeySize+addressChecksumLen, len(raw)))
	}

	pub := ed25519.PublicKey(raw[:ed25519.PublicKeySize])
	checksum := sha512.Sum512_256(pub)
	expected := checksum[len(checksum)-addressChecksumLen:]
	for i, b := range raw[ed25519.PublicKeySize:] {
		if expected[i] != b {
			return nil, NewAppError(ErrCodeInvalidArgument, "Address checksum mismatch")
		}
	}

	return pub, nil
}

// IsValidAddress checks whether a string is a well-formed ledger address
func IsValidAddress(address string) bool {
	_, err := DecodePublicKey(address)
	return err == nil
}

// AddressFromDigest derives a deterministic non-signing address from
// arbitrary seed bytes, for accounts owned by applications rather than keys.
func AddressFromDigest(seed []byte) string {
	digest := sha512.Sum512_256(seed)
	return EncodeAddress(digest[:])
}

// TransactionID derives the identifier of a raw signed transaction
func TransactionID(signed []byte) string {
	digest := sha512.Sum512_256(signed)
	return addressEncoding.EncodeToString(digest[:])
}
