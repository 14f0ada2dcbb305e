// Package builder implements the offline ImageBuilder pipeline:
// compose the plaintext body, optionally encrypt it, encode the
// header, and append the integrity/auth/signature trailer in the order
// that lets a one-pass verifier finalize each primitive at its own
// boundary.
package builder

import (
	"bytes"
	"crypto"
	"errors"
	"io"
	"log/slog"

	"github.com/natefinch/atomic"

	fwcrypto "github.com/fwupdate/cycloneboot/pkg/crypto"
	"github.com/fwupdate/cycloneboot/pkg/ferr"
	"github.com/fwupdate/cycloneboot/pkg/image"
)

// discardLogger is the default Logger when Options.Logger is nil: a
// real *slog.Logger whose handler drops everything, so Build's logging
// calls are always safe to make without a nil check at every call site.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// defaultVTORAlignment is the vector-table alignment builders pad to
// when --vtor-align is given: a build-time constant, not a
// runtime-detected value, since every target in scope shares it.
const defaultVTORAlignment = 128

// ErrSigningKeyAlgoMismatch indicates the loaded signing key's type does
// not match the requested signature algorithm.
var ErrSigningKeyAlgoMismatch = errors.New("builder: signing key does not match --sign-algo")

// Options configures one Build invocation.
type Options struct {
	Binary     []byte
	FWVersion  image.Version
	BuildTime  uint64
	VTORAlign  bool

	EncAlgo image.EncAlgo
	EncKey  []byte

	HashAlgo image.HashAlgo

	AuthAlgo image.AuthAlgo
	AuthKey  []byte

	SigAlgo    image.SigAlgo
	SigningKey crypto.PrivateKey

	Rng fwcrypto.Rng

	// Logger receives Debug-level progress for each pipeline stage and
	// an Info-level summary on success. Nil uses a logger that discards
	// everything, so callers that don't care about --verbose need not
	// construct one.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return discardLogger
	}

	return o.Logger
}

// Build runs the full pipeline and returns the finished image bytes.
func Build(opts Options) ([]byte, error) {
	if opts.Rng == nil {
		opts.Rng = fwcrypto.DefaultRng
	}

	log := opts.logger()
	log.Debug("composing body", "input_bytes", len(opts.Binary), "vtor_align", opts.VTORAlign)

	plain, err := composeBody(opts)
	if err != nil {
		return nil, err
	}

	log.Debug("body composed", "plain_len", len(plain))

	cipherBytes, iv, err := encryptBody(opts, plain)
	if err != nil {
		return nil, err
	}

	if opts.EncAlgo != image.EncNone {
		log.Debug("body encrypted", "enc_algo", opts.EncAlgo, "cipher_len", len(cipherBytes))
	}

	h := image.Header{
		EncAlgo:   opts.EncAlgo,
		HashAlgo:  opts.HashAlgo,
		AuthAlgo:  opts.AuthAlgo,
		SigAlgo:   opts.SigAlgo,
		FWVersion: opts.FWVersion,
		PlainLen:  uint32(len(plain)),
		CipherLen: uint32(len(cipherBytes)),
	}
	copy(h.IV[:], iv)

	antiRollback := opts.FWVersion != image.Version{}
	headerBytes := image.EncodeHeader(h, antiRollback, opts.VTORAlign)

	log.Debug("header encoded", "header_len", len(headerBytes), "fw_version", opts.FWVersion, "anti_rollback", antiRollback)

	trailer, err := buildTrailer(opts, headerBytes, cipherBytes)
	if err != nil {
		return nil, err
	}

	log.Debug("trailer computed", "trailer_len", len(trailer),
		"hash_algo", opts.HashAlgo, "auth_algo", opts.AuthAlgo, "sig_algo", opts.SigAlgo)

	out := make([]byte, 0, len(headerBytes)+len(cipherBytes)+len(trailer))
	out = append(out, headerBytes...)
	out = append(out, cipherBytes...)
	out = append(out, trailer...)

	log.Info("image built", "total_len", len(out))

	return out, nil
}

// BuildToFile runs Build and atomically renames the result into path.
// No partial file is ever left at path on error.
func BuildToFile(opts Options, path string) error {
	data, err := Build(opts)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return ferr.ErrFlashProgramFailed
	}

	opts.logger().Info("wrote image file", "path", path, "bytes", len(data))

	return nil
}

func composeBody(opts Options) ([]byte, error) {
	pad := 0
	if opts.VTORAlign {
		pad = (defaultVTORAlignment - image.DescriptorSize%defaultVTORAlignment) % defaultVTORAlignment
	}

	binary := opts.Binary
	if len(binary) < 8 {
		return nil, ferr.ErrSizeOutOfBounds
	}

	desc := image.AppDescriptor{
		StackTop:   leUint32(binary[0:4]),
		EntryPoint: leUint32(binary[4:8]),
		ImageSize:  uint32(image.DescriptorSize + pad + len(binary)),
		AppVersion: opts.FWVersion,
		BuildTime:  opts.BuildTime,
	}

	body := make([]byte, 0, image.DescriptorSize+pad+len(binary))
	body = append(body, image.EncodeAppDescriptor(desc)...)
	body = append(body, make([]byte, pad)...)
	body = append(body, binary...)

	if uint32(len(body)) > image.MaxImageSize {
		return nil, ferr.ErrSizeOutOfBounds
	}

	return body, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func encryptBody(opts Options, plain []byte) (cipherBytes, iv []byte, err error) {
	if opts.EncAlgo == image.EncNone {
		return plain, nil, nil
	}

	iv, err = fwcrypto.GenerateIV(opts.Rng, 16)
	if err != nil {
		return nil, nil, err
	}

	enc, err := fwcrypto.NewEncryptor(opts.EncAlgo, opts.EncKey, iv)
	if err != nil {
		return nil, nil, err
	}

	out, err := enc.Update(plain)
	if err != nil {
		return nil, nil, err
	}

	final, err := enc.Finalize()
	if err != nil {
		return nil, nil, err
	}

	cipherBytes = append(out, final...) //nolint:gocritic // out is a fresh buffer owned by this call

	return cipherBytes, iv, nil
}

func buildTrailer(opts Options, headerBytes, cipherBytes []byte) ([]byte, error) {
	hash, err := fwcrypto.NewHash(opts.HashAlgo)
	if err != nil {
		return nil, err
	}

	hash.Write(headerBytes) //nolint:errcheck // Hash.Write never fails
	hash.Write(cipherBytes) //nolint:errcheck // ditto
	digest := hash.Sum()

	trailer := append([]byte{}, digest...)

	if opts.AuthAlgo == image.AuthNone {
		return finishSignature(opts, headerBytes, cipherBytes, digest, nil, trailer)
	}

	mac, err := fwcrypto.NewMAC(opts.AuthAlgo, opts.AuthKey)
	if err != nil {
		return nil, err
	}

	mac.Write(headerBytes) //nolint:errcheck // MAC.Write never fails
	mac.Write(cipherBytes) //nolint:errcheck // ditto
	mac.Write(digest)      //nolint:errcheck // ditto
	tag := mac.Sum()

	trailer = append(trailer, tag...)

	return finishSignature(opts, headerBytes, cipherBytes, digest, tag, trailer)
}

func finishSignature(opts Options, headerBytes, cipherBytes, digest, tag, trailer []byte) ([]byte, error) {
	if opts.SigAlgo == image.SigNone {
		return trailer, nil
	}

	signer, err := fwcrypto.NewSigner(opts.SigAlgo, opts.SigningKey)
	if err != nil {
		return nil, ErrSigningKeyAlgoMismatch
	}

	signer.Write(headerBytes) //nolint:errcheck // hash-backed Write never fails
	signer.Write(cipherBytes) //nolint:errcheck // ditto
	signer.Write(digest)      //nolint:errcheck // ditto

	if tag != nil {
		signer.Write(tag) //nolint:errcheck // ditto
	}

	sig, err := signer.Sign()
	if err != nil {
		return nil, err
	}

	return append(trailer, sig...), nil
}
