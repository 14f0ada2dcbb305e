package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/fwupdate/cycloneboot/pkg/ferr"
	"github.com/fwupdate/cycloneboot/pkg/image"
)

// Encryptor is the builder-side counterpart of Decryptor: it encrypts a
// plaintext body and applies PKCS#7 padding (CBC) at Finalize.
type Encryptor interface {
	Update(plaintext []byte) (ciphertext []byte, err error)
	Finalize() (ciphertext []byte, err error)
}

// NewEncryptor constructs an Encryptor for algo using a fresh key/iv pair.
// algo must not be image.EncNone.
func NewEncryptor(algo image.EncAlgo, key, iv []byte) (Encryptor, error) {
	block, err := newAESBlock(algo, key)
	if err != nil {
		return nil, err
	}

	switch algo {
	case image.EncAES128CBC, image.EncAES256CBC:
		if len(iv) != aes.BlockSize {
			return nil, ferr.ErrInternalCryptoFailure
		}

		return &cbcEncryptor{mode: cipher.NewCBCEncrypter(block, iv), blockSize: aes.BlockSize}, nil
	case image.EncAES128CTR, image.EncAES256CTR:
		if len(iv) != aes.BlockSize {
			return nil, ferr.ErrInternalCryptoFailure
		}

		return &ctrCipher{stream: cipher.NewCTR(block, iv)}, nil
	default:
		return nil, ferr.ErrUnknownAlgorithm
	}
}

// cbcEncryptor buffers less-than-one-block of plaintext until enough bytes
// (or Finalize) arrive to emit a full block.
type cbcEncryptor struct {
	mode      cipher.BlockMode
	blockSize int
	pending   []byte
}

func (e *cbcEncryptor) Update(plaintext []byte) ([]byte, error) {
	buf := append(e.pending, plaintext...) //nolint:gocritic // intentional: pending is consumed here

	fullBlocks := len(buf) / e.blockSize
	cut := fullBlocks * e.blockSize

	toEncrypt := buf[:cut]
	e.pending = append([]byte(nil), buf[cut:]...)

	if len(toEncrypt) == 0 {
		return nil, nil
	}

	out := make([]byte, len(toEncrypt))
	e.mode.CryptBlocks(out, toEncrypt)

	return out, nil
}

func (e *cbcEncryptor) Finalize() ([]byte, error) {
	padded := pkcs7Pad(e.pending, e.blockSize)
	e.pending = nil

	out := make([]byte, len(padded))
	e.mode.CryptBlocks(out, padded)

	return out, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - (len(data) % blockSize)

	out := make([]byte, len(data)+pad)
	copy(out, data)

	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}

	return out
}
