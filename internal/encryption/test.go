package encryption

import (
	"bytes"
	"fmt"
	"io"

	"noteshare-go/internal/ns"
)

var testMagic = []byte("NSTEST\x00\x01")

// TestEncryptor frames data with a fixed header instead of encrypting it.
// Output differs from the input and is trivially reversible, which is all
// snapshot tests need.
type TestEncryptor struct{}

var _ ns.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor { return &TestEncryptor{} }

func (*TestEncryptor) Setup(string) error { return nil }

func (*TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testMagic); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (*TestEncryptor) Unlock(string) (ns.DecryptionContext, error) {
	return testDecryptor{}, nil
}

func (*TestEncryptor) IsConfigured() bool { return true }

type testDecryptor struct{}

func (testDecryptor) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testMagic) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
