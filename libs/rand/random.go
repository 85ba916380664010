package rand

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
)

// CodeAlphabet is the alphabet of delivery codes: digits and upper-case
// letters, so codes survive being read aloud or typed from an email.
const CodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Code returns a uniformly random string of length n over alphabet, read
// from the OS CSPRNG. Bytes that would bias the distribution are rejected.
func Code(alphabet string, n int) (string, error) {
	return CodeFrom(crand.Reader, alphabet, n)
}

// CodeFrom is Code with an explicit entropy source.
func CodeFrom(r io.Reader, alphabet string, n int) (string, error) {
	if n <= 0 {
		return "", errors.New("code length must be positive")
	}
	if len(alphabet) < 2 || len(alphabet) > 256 {
		return "", fmt.Errorf("alphabet size %d out of range", len(alphabet))
	}

	// largest multiple of len(alphabet) that fits in a byte
	limit := 256 - 256%len(alphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("reading entropy: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
