package id

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// DefaultLen is the length of a generated id, not counting its prefix.
const DefaultLen = 20

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// New generates an id with an optional prefix.  The id only contains
// base62 characters, so it is safe to use in URL query parameters.
func New(optionalPrefix string) (string, error) {
	return NewLen(optionalPrefix, DefaultLen)
}

// NewLen generates an id of the given length with an optional prefix.
func NewLen(optionalPrefix string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid id length %d", length)
	}
	out := make([]byte, 0, length)
	for len(out) < length {
		buf, err := uuid.GenerateRandomBytes(length * 2)
		if err != nil {
			return "", fmt.Errorf("unable to generate id: %w", err)
		}
		for _, b := range buf {
			// reject values that would bias the distribution
			if b >= byte(len(charset)*4) {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == length {
				break
			}
		}
	}
	switch {
	case optionalPrefix != "":
		return fmt.Sprintf("%s_%s", optionalPrefix, out), nil
	default:
		return string(out), nil
	}
}
