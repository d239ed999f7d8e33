package protocol

import (
	"strings"

	"github.com/google/uuid"
)

const HexIDLength = 32

// IDSource yields message and task identifiers. Tests swap it for a
// deterministic sequence.
type IDSource func() (string, error)

// NewID returns 32 lowercase hex characters drawn from crypto/rand.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}

func IsHexID(s string) bool {
	if len(s) != HexIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
