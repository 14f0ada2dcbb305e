package crypto

import (
	"crypto/rand"
	"io"

	"github.com/fwupdate/cycloneboot/pkg/ferr"
)

// Rng is the randomness capability the builder needs to generate an IV.
// Production code uses DefaultRng; tests can substitute a deterministic or
// failing implementation to exercise the reject-if-PRNG-fails path.
type Rng interface {
	Read(p []byte) (int, error)
}

// DefaultRng reads from crypto/rand.Reader.
var DefaultRng Rng = rand.Reader

// GenerateIV returns size random bytes from r, or ferr.ErrInternalCryptoFailure
// if the source cannot fill the buffer.
func GenerateIV(r Rng, size int) ([]byte, error) {
	buf := make([]byte, size)

	n, err := io.ReadFull(r, buf)
	if err != nil || n != size {
		return nil, ferr.ErrInternalCryptoFailure
	}

	return buf, nil
}
