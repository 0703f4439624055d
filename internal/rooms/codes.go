package rooms

import (
	"crypto/rand"
	"fmt"
)

// Alphabet excludes characters that are easy to misread on a phone screen:
// 0, O, 1, I, L
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 4

// maxUnbiased is the largest multiple of len(alphabet) that fits in a byte;
// bytes at or above it are rejected so every letter is equally likely.
const maxUnbiased = 256 - 256%len(alphabet)

// GenerateCode returns a short join code for a room.
func GenerateCode() (string, error) {
	code := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(code) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			code = append(code, alphabet[int(b)%len(alphabet)])
			if len(code) == codeLength {
				break
			}
		}
	}
	return string(code), nil
}
