package crypto_test

import (
	"testing"

	fwcrypto "github.com/fwupdate/cycloneboot/pkg/crypto"
	"github.com/fwupdate/cycloneboot/pkg/image"
)

func TestHash_StreamedWritesMatchOneShot(t *testing.T) {
	t.Parallel()

	data := []byte("the quick brown fox jumps over the lazy dog")

	whole, err := fwcrypto.NewHash(image.HashSHA256)
	if err != nil {
		t.Fatalf("NewHash: %v", err)
	}

	whole.Write(data) //nolint:errcheck // test

	streamed, err := fwcrypto.NewHash(image.HashSHA256)
	if err != nil {
		t.Fatalf("NewHash: %v", err)
	}

	streamed.Write(data[:10]) //nolint:errcheck // test
	streamed.Write(data[10:]) //nolint:errcheck // test

	if string(whole.Sum()) != string(streamed.Sum()) {
		t.Fatal("streamed Sum() does not match one-shot Sum()")
	}
}

func TestNewHash_RejectsUnknownAlgo(t *testing.T) {
	t.Parallel()

	if _, err := fwcrypto.NewHash(image.HashAlgo(99)); err == nil {
		t.Fatal("NewHash: want error for unknown algorithm, got nil")
	}
}

func TestNewHash_RejectsNone(t *testing.T) {
	t.Parallel()

	if _, err := fwcrypto.NewHash(image.HashNone); err == nil {
		t.Fatal("NewHash(HashNone): want error, got nil")
	}
}
