package ticket

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength = 8
)

// New builds a shareable ticket code of the form SLUG-XXXXXXXX, with the slug
// uppercased and 8 random uppercase alphanumerics from crypto/rand. Bytes at
// or above the largest multiple of the alphabet size are rejected so every
// character stays equally likely. Collisions within an event are negligible
// but still caught by the unique index; the repository retries generation
// once before giving up.
func New(slug string) (string, error) {
	// 252 for a 36-character alphabet.
	limit := byte(256 - 256%len(alphabet))

	code := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength)
	for len(code) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit || len(code) == codeLength {
				continue
			}
			code = append(code, alphabet[int(b)%len(alphabet)])
		}
	}
	return strings.ToUpper(slug) + "-" + string(code), nil
}
