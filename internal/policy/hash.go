package policy

import "strings"

// hashDelimiter joins the fields of a gate key before hashing.
const hashDelimiter = "|"

// Hash is the rolling multiplicative hash used by every gate: starting at
// zero, h = h*31 + b for each UTF-8 byte b, wrapping at 32 bits.
func Hash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}

// Score reduces the hash of the delimiter-joined fields to [0,100).
func Score(fields ...string) int {
	return int(Hash(strings.Join(fields, hashDelimiter)) % 100)
}
