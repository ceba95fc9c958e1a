package testutil

import (
	"noteshare-go/internal/encryption"
	"noteshare-go/internal/ns"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() ns.Encryptor {
	return encryption.NewTestEncryptor()
}
