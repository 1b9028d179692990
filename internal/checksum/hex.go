package checksum

import "encoding/hex"

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// Hex hex-encodes a digest, exposed for callers (such as the upload
// planner) that need to store a checksum in the same textual form
// ChecksumWalk returns.
func Hex(b []byte) string {
	return hexEncode(b)
}
