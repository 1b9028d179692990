package checksum

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
)

// HashFactoryFor resolves a hash algorithm name (as accepted by
// --checksum-choice) to a constructor function. The choice is restricted
// to the small set of algorithms vendored by the standard library's
// crypto packages.
func HashFactoryFor(name string) (func() hash.Hash, error) {
	switch name {
	case "", "sha1":
		return sha1.New, nil
	case "sha256":
		return sha256.New, nil
	case "sha512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unknown hash function: %s", name)
	}
}

// DefaultHashName is the hash algorithm used when none is specified.
const DefaultHashName = "sha1"
