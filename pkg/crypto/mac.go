package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/fwupdate/cycloneboot/pkg/ferr"
	"github.com/fwupdate/cycloneboot/pkg/image"
)

// MAC is the streaming authentication-tag primitive: init(key) is
// NewMAC, update is Write, finalize is Sum.
type MAC interface {
	Write(p []byte) (int, error)
	Sum() []byte
}

type macWrap struct{ h hash.Hash }

func (w macWrap) Write(p []byte) (int, error) { return w.h.Write(p) }
func (w macWrap) Sum() []byte                 { return w.h.Sum(nil) }

// macMinKeyLen is the minimum accepted key length per algorithm: the
// digest size, matching common HMAC key-length guidance (RFC 2104 §3).
func macMinKeyLen(algo image.AuthAlgo) int {
	switch algo {
	case image.AuthHMACSHA256:
		return sha256.Size
	case image.AuthHMACSHA512:
		return sha512.Size
	default:
		return 0
	}
}

// NewMAC constructs a MAC for algo keyed with key. algo must not be
// image.AuthNone. Returns ferr.ErrKeyTooShort if key is shorter than the
// algorithm's minimum.
func NewMAC(algo image.AuthAlgo, key []byte) (MAC, error) {
	if len(key) < macMinKeyLen(algo) {
		return nil, ferr.ErrKeyTooShort
	}

	switch algo {
	case image.AuthHMACSHA256:
		return macWrap{hmac.New(sha256.New, key)}, nil
	case image.AuthHMACSHA512:
		return macWrap{hmac.New(sha512.New, key)}, nil
	default:
		return nil, ferr.ErrUnknownAlgorithm
	}
}
