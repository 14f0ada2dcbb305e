package builder_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fwupdate/cycloneboot/pkg/builder"
	"github.com/fwupdate/cycloneboot/pkg/image"
)

func testBinary(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xAA
	}

	b[0], b[1], b[2], b[3] = 0x00, 0x00, 0x01, 0x20
	b[4], b[5], b[6], b[7] = 0x01, 0x04, 0x00, 0x08

	return b
}

func TestBuildToFile_AtomicWriteAndLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := filepath.Join(dir, "update.img")

	opts := builder.Options{
		Binary:    testBinary(1024),
		FWVersion: image.Version{1, 0, 0},
		HashAlgo:  image.HashSHA256,
	}

	if err := builder.BuildToFile(opts, out); err != nil {
		t.Fatalf("BuildToFile: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}

	const wantLen = image.HeaderSize + image.DescriptorSize + 1024 + 32
	if len(data) != wantLen {
		t.Fatalf("len(data) = %d, want %d", len(data), wantLen)
	}

	// No temp file left behind alongside the final output.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, want 1 (temp file leaked on success)", len(entries))
	}
}

func TestBuildToFile_NoPartialFileOnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := filepath.Join(dir, "update.img")

	// Binary too short to hold a vector table -> composeBody rejects it
	// before any write happens.
	err := builder.BuildToFile(builder.Options{Binary: []byte{1, 2, 3}}, out)
	if err == nil {
		t.Fatal("BuildToFile with undersized binary: want error, got nil")
	}

	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("output file exists after failed build: %v", statErr)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if len(entries) != 0 {
		t.Fatalf("dir has %d entries, want 0 (no temp file left behind)", len(entries))
	}
}

func TestBuild_SigningKeyAlgoMismatch(t *testing.T) {
	t.Parallel()

	_, err := builder.Build(builder.Options{
		Binary:     testBinary(64),
		HashAlgo:   image.HashSHA256,
		SigAlgo:    image.SigECDSAP256SHA256,
		SigningKey: "not-a-key",
	})
	if err != builder.ErrSigningKeyAlgoMismatch { //nolint:errorlint // sentinel, not wrapped
		t.Fatalf("Build with bogus signing key: err = %v, want ErrSigningKeyAlgoMismatch", err)
	}
}
