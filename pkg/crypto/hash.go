package crypto

import (
	"crypto/md5" //nolint:gosec // MD5 is a selectable wire-format algorithm, not a security choice made here
	"crypto/sha1" //nolint:gosec // ditto
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"hash/crc32"

	"github.com/fwupdate/cycloneboot/pkg/ferr"
	"github.com/fwupdate/cycloneboot/pkg/image"
)

// Hash is the streaming integrity-digest primitive: init is implicit in
// NewHash, update is Write, finalize is Sum. Hashing never fails.
type Hash interface {
	Write(p []byte) (int, error)
	Sum() []byte
}

type hashWrap struct{ h hash.Hash }

func (w hashWrap) Write(p []byte) (int, error) { return w.h.Write(p) }
func (w hashWrap) Sum() []byte                 { return w.h.Sum(nil) }

// NewHash constructs a Hash for algo. algo must not be image.HashNone; the
// caller (verify engine, builder) only constructs a Hash when the trailer
// layout says a digest section is present.
func NewHash(algo image.HashAlgo) (Hash, error) {
	switch algo {
	case image.HashCRC32:
		return hashWrap{crc32.NewIEEE()}, nil
	case image.HashMD5:
		return hashWrap{md5.New()}, nil //nolint:gosec
	case image.HashSHA1:
		return hashWrap{sha1.New()}, nil //nolint:gosec
	case image.HashSHA224:
		return hashWrap{sha256.New224()}, nil
	case image.HashSHA256:
		return hashWrap{sha256.New()}, nil
	case image.HashSHA384:
		return hashWrap{sha512.New384()}, nil
	case image.HashSHA512:
		return hashWrap{sha512.New()}, nil
	default:
		return nil, ferr.ErrUnknownAlgorithm
	}
}
