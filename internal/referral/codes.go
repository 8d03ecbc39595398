package referral

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet omits lowercase to keep codes easy to read back over the
// phone. Codes are matched case-sensitively against this alphabet.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode produces a referral code: the prefix followed immediately by
// `length` random characters (DOTCTL + 6 by default, 12 chars total).
// Uniqueness is enforced by the database; callers retry on collision.
func GenerateCode(prefix string, length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate referral code: %w", err)
	}
	for i := range b {
		// 256 % 36 != 0, so this carries a slight modulo bias. Referral
		// codes are not secrets; uniform-enough is fine here.
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return prefix + string(b), nil
}
