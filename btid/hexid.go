package btid

import "encoding/hex"

// Fixed-width binary forms for hex-shaped identifiers. An id that is
// exactly 16 lowercase hex characters packs to 8 raw bytes and one that is
// exactly 32 packs to 16; anything else rides in the token's JSON blob.
// Packing only applies when re-encoding the bytes reproduces the original
// string, so mixed-case ids fall back to the blob and still round-trip.

type hexID8 [8]byte

type hexID16 [16]byte

func (x hexID8) String() string  { return hex.EncodeToString(x[:]) }
func (x hexID16) String() string { return hex.EncodeToString(x[:]) }

func parseHexID8(s string) (hexID8, bool) {
	var x hexID8
	return x, parseHex(x[:], s)
}

func parseHexID16(s string) (hexID16, bool) {
	var x hexID16
	return x, parseHex(x[:], s)
}

func parseHex(dest []byte, s string) bool {
	if len(s) != len(dest)*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return false
	}
	copy(dest, b)
	return true
}
