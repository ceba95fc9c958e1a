package ns

import (
	"crypto/sha256"
	"math/big"
	"strings"
)

// digestWidth is the number of base-36 digits needed for any SHA-256 value.
const digestWidth = 50

// DeriveName returns the content-derived name for a file: the SHA-256 digest
// rendered in base 36, fixed to the category's name length. The result only
// depends on the bytes and the category.
func DeriveName(content []byte, category Category) string {
	sum := sha256.Sum256(content)
	digits := new(big.Int).SetBytes(sum[:]).Text(36)
	if len(digits) < digestWidth {
		digits = strings.Repeat("0", digestWidth-len(digits)) + digits
	}
	// Low-order digits are uniformly distributed; the leading ones are not.
	return digits[len(digits)-category.NameLength():]
}
