package verify_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/fwupdate/cycloneboot/pkg/builder"
	"github.com/fwupdate/cycloneboot/pkg/ferr"
	"github.com/fwupdate/cycloneboot/pkg/image"
	"github.com/fwupdate/cycloneboot/pkg/slot"
	"github.com/fwupdate/cycloneboot/pkg/verify"
)

func testBinary(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xAA
	}
	// first 8 bytes are the vector table (stackTop, entryPoint); leave
	// them non-zero so DescriptorSize math has something to check.
	b[0], b[1], b[2], b[3] = 0x00, 0x00, 0x01, 0x20
	b[4], b[5], b[6], b[7] = 0x01, 0x04, 0x00, 0x08

	return b
}

func feedAll(t *testing.T, e *verify.Engine, data []byte, chunkSize int) error {
	t.Helper()

	for off := 0; off < len(data); {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}

		n, err := e.Feed(data[off:end])
		if err != nil {
			return err
		}

		off += n
	}

	return e.Finish()
}

// TestMinimalIntegrityOnlyImage_Accepted implements the first literal
// scenario: a 1024-byte binary, sha256-only integrity, no encryption, no
// auth, no signature.
func TestMinimalIntegrityOnlyImage_Accepted(t *testing.T) {
	t.Parallel()

	binary := testBinary(1024)

	data, err := builder.Build(builder.Options{
		Binary:    binary,
		FWVersion: image.Version{1, 0, 0},
		HashAlgo:  image.HashSHA256,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(data) != 1184 {
		t.Fatalf("len(data) = %d, want 1184", len(data))
	}

	out := slot.NewMemImageStore(int64(len(data)))
	e := verify.New(verify.TrustAnchors{}, image.Version{0, 9, 0}, out)

	if err := feedAll(t, e, data, 37); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if e.Phase() != verify.PhaseAccepted {
		t.Fatalf("Phase() = %v, want PhaseAccepted", e.Phase())
	}
}

func buildFullyProtectedImage(t *testing.T, binary []byte, fwVersion image.Version) ([]byte, verify.TrustAnchors, *ecdsa.PrivateKey) {
	t.Helper()

	encKey := bytes.Repeat([]byte{0x00}, 32)
	for i := range encKey {
		encKey[i] = byte(i)
	}

	authKey := bytes.Repeat([]byte{0x11}, 32)

	signingKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	data, err := builder.Build(builder.Options{
		Binary:     binary,
		FWVersion:  fwVersion,
		EncAlgo:    image.EncAES256CBC,
		EncKey:     encKey,
		HashAlgo:   image.HashSHA256,
		AuthAlgo:   image.AuthHMACSHA256,
		AuthKey:    authKey,
		SigAlgo:    image.SigECDSAP256SHA256,
		SigningKey: signingKey,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	anchors := verify.TrustAnchors{
		DecryptKey:   encKey,
		AuthKey:      authKey,
		SigPublicKey: &signingKey.PublicKey,
	}

	return data, anchors, signingKey
}

// TestFullyProtectedImage_Accepted is the second literal scenario's happy
// path: AES-256-CBC + HMAC-SHA256 + ECDSA-P256, untampered.
func TestFullyProtectedImage_Accepted(t *testing.T) {
	t.Parallel()

	data, anchors, _ := buildFullyProtectedImage(t, testBinary(512), image.Version{1, 2, 4})

	out := slot.NewMemImageStore(int64(len(data)))
	e := verify.New(anchors, image.Version{1, 2, 3}, out)

	if err := feedAll(t, e, data, 64); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if e.Phase() != verify.PhaseAccepted {
		t.Fatalf("Phase() = %v, want PhaseAccepted", e.Phase())
	}
}

// TestFullyProtectedImage_TamperedCiphertext_IntegrityMismatch covers the
// second scenario's first tamper case.
func TestFullyProtectedImage_TamperedCiphertext_IntegrityMismatch(t *testing.T) {
	t.Parallel()

	data, anchors, _ := buildFullyProtectedImage(t, testBinary(512), image.Version{1, 2, 4})

	// The body sits right after the 64-byte header.
	data[image.HeaderSize+10] ^= 0xFF

	out := slot.NewMemImageStore(int64(len(data)))
	e := verify.New(anchors, image.Version{1, 2, 3}, out)

	err := feedAll(t, e, data, 64)
	if !errors.Is(err, ferr.ErrIntegrityMismatch) {
		t.Fatalf("verify: got %v, want ErrIntegrityMismatch", err)
	}
}

// TestFullyProtectedImage_TamperedMAC_AuthMismatch covers the second
// scenario's second tamper case.
func TestFullyProtectedImage_TamperedMAC_AuthMismatch(t *testing.T) {
	t.Parallel()

	data, anchors, _ := buildFullyProtectedImage(t, testBinary(512), image.Version{1, 2, 4})

	h, err := image.DecodeHeader(data[:image.HeaderSize])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}

	layout := image.ComputeTrailerLayout(h)
	trailerStart := image.HeaderSize + int(h.CipherLen)
	macByte := trailerStart + layout.AuthOff + layout.AuthLen - 1
	data[macByte] ^= 0xFF

	out := slot.NewMemImageStore(int64(len(data)))
	e := verify.New(anchors, image.Version{1, 2, 3}, out)

	err = feedAll(t, e, data, 64)
	if !errors.Is(err, ferr.ErrAuthMismatch) {
		t.Fatalf("verify: got %v, want ErrAuthMismatch", err)
	}
}

// TestFullyProtectedImage_TamperedSignature_SignatureInvalid covers the
// second scenario's third tamper case.
func TestFullyProtectedImage_TamperedSignature_SignatureInvalid(t *testing.T) {
	t.Parallel()

	data, anchors, _ := buildFullyProtectedImage(t, testBinary(512), image.Version{1, 2, 4})

	data[len(data)-1] ^= 0xFF

	out := slot.NewMemImageStore(int64(len(data)))
	e := verify.New(anchors, image.Version{1, 2, 3}, out)

	err := feedAll(t, e, data, 64)
	if !errors.Is(err, ferr.ErrSignatureInvalid) {
		t.Fatalf("verify: got %v, want ErrSignatureInvalid", err)
	}
}

// TestRollback_OlderOrEqualVersionRejected covers the rollback scenario:
// 1.2.3 running, 1.2.3 offered -> rejected; 1.2.4 offered -> accepted.
func TestRollback_OlderOrEqualVersionRejected(t *testing.T) {
	t.Parallel()

	binary := testBinary(256)
	running := image.Version{1, 2, 3}

	sameVersionImage, err := builder.Build(builder.Options{
		Binary: binary, FWVersion: running, HashAlgo: image.HashSHA256,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	out := slot.NewMemImageStore(int64(len(sameVersionImage)))
	e := verify.New(verify.TrustAnchors{}, running, out)

	err = feedAll(t, e, sameVersionImage, 32)
	if !errors.Is(err, ferr.ErrRollback) {
		t.Fatalf("same-version image: got %v, want ErrRollback", err)
	}

	newerImage, err := builder.Build(builder.Options{
		Binary: binary, FWVersion: image.Version{1, 2, 4}, HashAlgo: image.HashSHA256,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	out2 := slot.NewMemImageStore(int64(len(newerImage)))
	e2 := verify.New(verify.TrustAnchors{}, running, out2)

	if err := feedAll(t, e2, newerImage, 32); err != nil {
		t.Fatalf("newer-version image: got %v, want Accepted", err)
	}
}

// TestTruncatedStream_SizeOutOfBounds covers the truncation scenario.
func TestTruncatedStream_SizeOutOfBounds(t *testing.T) {
	t.Parallel()

	data, err := builder.Build(builder.Options{
		Binary: testBinary(256), FWVersion: image.Version{1, 0, 0}, HashAlgo: image.HashSHA256,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	truncated := data[:len(data)-10]

	out := slot.NewMemImageStore(int64(len(data)))
	e := verify.New(verify.TrustAnchors{}, image.Version{0, 9, 0}, out)

	n, err := e.Feed(truncated)
	if err != nil {
		t.Fatalf("Feed (mid-stream): %v", err)
	}

	if n != len(truncated) {
		t.Fatalf("Feed consumed %d bytes, want %d", n, len(truncated))
	}

	if err := e.Finish(); !errors.Is(err, ferr.ErrSizeOutOfBounds) {
		t.Fatalf("Finish: got %v, want ErrSizeOutOfBounds", err)
	}
}

// TestRejectedEngine_StaysRejected verifies that once an Engine rejects,
// every subsequent Feed call returns the same error without consuming
// anything.
func TestRejectedEngine_StaysRejected(t *testing.T) {
	t.Parallel()

	data, err := builder.Build(builder.Options{
		Binary: testBinary(128), FWVersion: image.Version{1, 0, 0}, HashAlgo: image.HashSHA256,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	data[image.HeaderSize] ^= 0xFF // corrupt the body

	out := slot.NewMemImageStore(int64(len(data)))
	e := verify.New(verify.TrustAnchors{}, image.Version{0, 9, 0}, out)

	firstErr := feedAll(t, e, data, len(data))
	if firstErr == nil {
		t.Fatal("feedAll: want error for corrupted body, got nil")
	}

	n, err := e.Feed([]byte{0x00})
	if n != 0 || !errors.Is(err, firstErr) {
		t.Fatalf("Feed after rejection: n=%d err=%v, want n=0 err=%v", n, err, firstErr)
	}
}
