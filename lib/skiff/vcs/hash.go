package vcs

import (
	"fmt"
	"strings"
)

// Hash is a 40-character hex content identifier. The all-zero NullHash is
// the "no parent" sentinel used for root commits.
type Hash string

const hashLength = 40

// NullHash denotes the absence of a revision.
var NullHash = Hash(strings.Repeat("0", hashLength))

// ParseHash validates s as a full lowercase hex revision identifier.
func ParseHash(s string) (Hash, error) {
	if len(s) != hashLength {
		return "", fmt.Errorf("invalid hash %q: expected %d characters, got %d", s, hashLength, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("invalid hash %q: non-hex character %q at offset %d", s, c, i)
		}
	}
	return Hash(s), nil
}

func (h Hash) IsNull() bool {
	return h == NullHash
}

// Abbreviate returns the customary short form of the hash.
func (h Hash) Abbreviate() string {
	if len(h) < 8 {
		return string(h)
	}
	return string(h[:8])
}

func (h Hash) String() string {
	return string(h)
}
