package uploads

import (
	"github.com/google/uuid"
)

const keyPrefix = "uploads/"

// GenerateKey returns a fresh object-storage key. v7 UUIDs keep keys
// roughly time-ordered in bucket listings.
func GenerateKey() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return keyPrefix + u.String(), nil
}
