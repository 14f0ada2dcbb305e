package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/fwupdate/cycloneboot/pkg/ferr"
	"github.com/fwupdate/cycloneboot/pkg/image"
)

// Decryptor is the streaming block-cipher decryption primitive.
// Update consumes ciphertext and returns however much plaintext it
// can release immediately; Finalize must be called exactly once, after
// all ciphertext has been fed through Update, and returns any remaining
// plaintext with PKCS#7 padding removed (CBC) or nothing (CTR, which is
// stateless per-counter and never pads).
type Decryptor interface {
	Update(ciphertext []byte) (plaintext []byte, err error)
	Finalize() (plaintext []byte, err error)
}

// NewDecryptor constructs a Decryptor for algo. algo must not be
// image.EncNone.
func NewDecryptor(algo image.EncAlgo, key, iv []byte) (Decryptor, error) {
	block, err := newAESBlock(algo, key)
	if err != nil {
		return nil, err
	}

	switch algo {
	case image.EncAES128CBC, image.EncAES256CBC:
		if len(iv) != aes.BlockSize {
			return nil, ferr.ErrInternalCryptoFailure
		}

		return &cbcDecryptor{mode: cipher.NewCBCDecrypter(block, iv), blockSize: aes.BlockSize}, nil
	case image.EncAES128CTR, image.EncAES256CTR:
		if len(iv) != aes.BlockSize {
			return nil, ferr.ErrInternalCryptoFailure
		}

		return &ctrCipher{stream: cipher.NewCTR(block, iv)}, nil
	default:
		return nil, ferr.ErrUnknownAlgorithm
	}
}

func newAESBlock(algo image.EncAlgo, key []byte) (cipher.Block, error) {
	want := image.CipherKeySize(algo)
	if want == 0 {
		return nil, ferr.ErrUnknownAlgorithm
	}

	if len(key) != want {
		return nil, ferr.ErrInternalCryptoFailure
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ferr.ErrInternalCryptoFailure
	}

	return block, nil
}

// cbcDecryptor holds back exactly one block (plus any trailing partial
// bytes) so PKCS#7 unpadding can be deferred to Finalize: the last block
// must never be released before the stream is known to have ended.
type cbcDecryptor struct {
	mode      cipher.BlockMode
	blockSize int
	pending   []byte
}

func (d *cbcDecryptor) Update(ciphertext []byte) ([]byte, error) {
	buf := append(d.pending, ciphertext...) //nolint:gocritic // intentional: pending is consumed here

	fullBlocks := len(buf) / d.blockSize
	if fullBlocks == 0 {
		d.pending = buf

		return nil, nil
	}

	// Always hold back the final full block (and any dangling partial
	// bytes after it) until Finalize, so unpadding never sees a block
	// it has already emitted to the caller.
	blocksToDecrypt := fullBlocks - 1
	cut := blocksToDecrypt * d.blockSize

	toDecrypt := buf[:cut]
	d.pending = buf[cut:]

	if len(toDecrypt) == 0 {
		return nil, nil
	}

	out := make([]byte, len(toDecrypt))
	d.mode.CryptBlocks(out, toDecrypt)

	return out, nil
}

func (d *cbcDecryptor) Finalize() ([]byte, error) {
	if len(d.pending) != d.blockSize {
		return nil, ferr.ErrDecryptPadInvalid
	}

	out := make([]byte, d.blockSize)
	d.mode.CryptBlocks(out, d.pending)
	d.pending = nil

	unpadded, err := pkcs7Unpad(out, d.blockSize)
	if err != nil {
		return nil, err
	}

	return unpadded, nil
}

// ctrCipher is stateless per-counter: every byte fed in can be released
// immediately, and Finalize never pads.
type ctrCipher struct{ stream cipher.Stream }

func (c *ctrCipher) Update(ciphertext []byte) ([]byte, error) {
	out := make([]byte, len(ciphertext))
	c.stream.XORKeyStream(out, ciphertext)

	return out, nil
}

func (c *ctrCipher) Finalize() ([]byte, error) { return nil, nil }

func pkcs7Unpad(block []byte, blockSize int) ([]byte, error) {
	if len(block) == 0 {
		return nil, ferr.ErrDecryptPadInvalid
	}

	pad := int(block[len(block)-1])
	if pad == 0 || pad > blockSize || pad > len(block) {
		return nil, ferr.ErrDecryptPadInvalid
	}

	for _, b := range block[len(block)-pad:] {
		if int(b) != pad {
			return nil, ferr.ErrDecryptPadInvalid
		}
	}

	return block[:len(block)-pad], nil
}
