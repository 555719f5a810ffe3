/*
Package randx provides functions for generating unique identifiers.

It generates UUID identifiers for messages and connections, and fixed-length
Base62 room identifiers using a cryptographically secure random source.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// RoomIDLength is the fixed length of generated room identifiers.
	RoomIDLength = 8
)

// MessageID returns a new UUID string used as a server-assigned message identifier.
func MessageID() string {
	return uuid.NewString()
}

// ConnectionID returns a new UUID string used to tag a live connection in logs.
func ConnectionID() string {
	return uuid.NewString()
}

// RoomID generates a Base62 room identifier of RoomIDLength characters using
// crypto/rand. It returns the identifier and any error encountered.
func RoomID() (string, error) {
	result := make([]byte, RoomIDLength)
	max := big.NewInt(int64(len(Base62Chars)))

	for i := range result {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for room id: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}
