package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ReferenceLength is the length of attempt and withdrawal references handed to processors.
const ReferenceLength = 16

// GenerateReference returns a random upper-case alphanumeric reference of the given length.
func GenerateReference(length int) (string, error) {
	max := big.NewInt(int64(len(referenceAlphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate reference: %w", err)
		}
		b[i] = referenceAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NewReference returns a reference of the default length.
func NewReference() (string, error) {
	return GenerateReference(ReferenceLength)
}
