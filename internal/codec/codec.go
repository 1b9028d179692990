// Package codec implements the reversible byte-name encoding used for
// persisted metadata: arbitrary filesystem byte names are encoded into a
// restricted ASCII alphabet so they can live inside JSON metadata and as
// components of remote object paths, while pack artifact names (which
// always contain a literal '.') are left unencoded since base32's alphabet
// never produces one. Base32 rather than base64 because remote object
// stores and some archivers are not reliably case-preserving.
package codec

import (
	"encoding/base32"
	"regexp"
)

// childEncoding is base32 without padding; decoding restores padding
// before inverting.
var childEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeChild encodes an arbitrary byte filename into the restricted
// alphabet used for JSON keys and remote path components.
func EncodeChild(name []byte) string {
	return childEncoding.EncodeToString(name)
}

// DecodeChild inverts EncodeChild.
func DecodeChild(encoded string) ([]byte, error) {
	return childEncoding.DecodeString(encoded)
}

// reservedPrefixPattern is the character class the reserved prefix must
// match: `[0-9A-Z_]*`.
var reservedPrefixPattern = regexp.MustCompile(`^[0-9A-Z_]*$`)

// ValidReservedPrefix reports whether prefix is a legal reserved prefix.
func ValidReservedPrefix(prefix string) bool {
	return reservedPrefixPattern.MatchString(prefix)
}

// compressionSuffixPattern is the character class a user-specified
// compression suffix must match: alphanumeric, '.', or '_'.
var compressionSuffixPattern = regexp.MustCompile(`^[0-9a-zA-Z_.]*$`)

// ValidCompressionSuffix reports whether suffix is a legal compression
// suffix specification.
func ValidCompressionSuffix(suffix string) bool {
	return compressionSuffixPattern.MatchString(suffix)
}
