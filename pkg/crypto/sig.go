package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"math/big"

	"github.com/fwupdate/cycloneboot/pkg/ferr"
	"github.com/fwupdate/cycloneboot/pkg/image"
)

// Verifier is the streaming signature-verification primitive: init(pubkey)
// is NewVerifier, update is Write, verify is Verify.
type Verifier interface {
	Write(p []byte) (int, error)
	Verify(signature []byte) (bool, error)
}

// Signer is the builder-side counterpart: update is Write, finalize is Sign.
type Signer interface {
	Write(p []byte) (int, error)
	Sign() ([]byte, error)
}

const ecdsaCoordSize = 32 // P-256 field element width; SigSize(ECDSA) = 2*ecdsaCoordSize

// NewVerifier constructs a Verifier for algo using a single trust-anchor
// public key. algo must not be image.SigNone.
func NewVerifier(algo image.SigAlgo, pub crypto.PublicKey) (Verifier, error) {
	switch algo {
	case image.SigECDSAP256SHA256:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok || key.Curve != elliptic.P256() {
			return nil, ferr.ErrInternalCryptoFailure
		}

		return &ecdsaVerifier{pub: key, h: sha256.New()}, nil
	case image.SigRSA2048SHA256:
		key, ok := pub.(*rsa.PublicKey)
		if !ok || key.Size() != image.SigSize(image.SigRSA2048SHA256) {
			return nil, ferr.ErrInternalCryptoFailure
		}

		return &rsaVerifier{pub: key, h: sha256.New()}, nil
	default:
		return nil, ferr.ErrUnknownAlgorithm
	}
}

// NewSigner constructs a Signer for algo using the builder's signing key.
func NewSigner(algo image.SigAlgo, priv crypto.PrivateKey) (Signer, error) {
	switch algo {
	case image.SigECDSAP256SHA256:
		key, ok := priv.(*ecdsa.PrivateKey)
		if !ok || key.Curve != elliptic.P256() {
			return nil, ferr.ErrInternalCryptoFailure
		}

		return &ecdsaSigner{priv: key, h: sha256.New()}, nil
	case image.SigRSA2048SHA256:
		key, ok := priv.(*rsa.PrivateKey)
		if !ok || key.Size() != image.SigSize(image.SigRSA2048SHA256) {
			return nil, ferr.ErrInternalCryptoFailure
		}

		return &rsaSigner{priv: key, h: sha256.New()}, nil
	default:
		return nil, ferr.ErrUnknownAlgorithm
	}
}

type ecdsaVerifier struct {
	pub *ecdsa.PublicKey
	h   hashWriter
}

func (v *ecdsaVerifier) Write(p []byte) (int, error) { return v.h.Write(p) }

func (v *ecdsaVerifier) Verify(signature []byte) (bool, error) {
	if len(signature) != 2*ecdsaCoordSize {
		return false, nil
	}

	r := new(big.Int).SetBytes(signature[:ecdsaCoordSize])
	s := new(big.Int).SetBytes(signature[ecdsaCoordSize:])

	return ecdsa.Verify(v.pub, v.h.Sum(nil), r, s), nil
}

type ecdsaSigner struct {
	priv *ecdsa.PrivateKey
	h    hashWriter
}

func (s *ecdsaSigner) Write(p []byte) (int, error) { return s.h.Write(p) }

func (s *ecdsaSigner) Sign() ([]byte, error) {
	r, sVal, err := ecdsa.Sign(rand.Reader, s.priv, s.h.Sum(nil))
	if err != nil {
		return nil, ferr.ErrInternalCryptoFailure
	}

	out := make([]byte, 2*ecdsaCoordSize)
	r.FillBytes(out[:ecdsaCoordSize])
	sVal.FillBytes(out[ecdsaCoordSize:])

	return out, nil
}

type rsaVerifier struct {
	pub *rsa.PublicKey
	h   hashWriter
}

func (v *rsaVerifier) Write(p []byte) (int, error) { return v.h.Write(p) }

func (v *rsaVerifier) Verify(signature []byte) (bool, error) {
	err := rsa.VerifyPKCS1v15(v.pub, crypto.SHA256, v.h.Sum(nil), signature)

	return err == nil, nil
}

type rsaSigner struct {
	priv *rsa.PrivateKey
	h    hashWriter
}

func (s *rsaSigner) Write(p []byte) (int, error) { return s.h.Write(p) }

func (s *rsaSigner) Sign() ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.priv, crypto.SHA256, s.h.Sum(nil))
	if err != nil {
		return nil, ferr.ErrInternalCryptoFailure
	}

	return sig, nil
}

// hashWriter is the subset of hash.Hash the signature primitives need.
type hashWriter interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
}
