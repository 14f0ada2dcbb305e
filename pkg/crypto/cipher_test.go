package crypto_test

import (
	"bytes"
	"testing"

	fwcrypto "github.com/fwupdate/cycloneboot/pkg/crypto"
	"github.com/fwupdate/cycloneboot/pkg/image"
)

func encryptAll(t *testing.T, algo image.EncAlgo, key, iv, plain []byte) []byte {
	t.Helper()

	enc, err := fwcrypto.NewEncryptor(algo, key, iv)
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	out, err := enc.Update(plain)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	final, err := enc.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	return append(out, final...)
}

func decryptAll(t *testing.T, algo image.EncAlgo, key, iv, cipherBytes []byte) []byte {
	t.Helper()

	dec, err := fwcrypto.NewDecryptor(algo, key, iv)
	if err != nil {
		t.Fatalf("NewDecryptor: %v", err)
	}

	out, err := dec.Update(cipherBytes)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	final, err := dec.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	return append(out, final...)
}

func TestCBC_EncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x00}, 32)
	iv := bytes.Repeat([]byte{0x01}, 16)
	plain := []byte("a plaintext that is not block aligned!!")

	cipherBytes := encryptAll(t, image.EncAES256CBC, key, iv, plain)
	if len(cipherBytes)%16 != 0 {
		t.Fatalf("ciphertext length %d is not block-aligned", len(cipherBytes))
	}

	got := decryptAll(t, image.EncAES256CBC, key, iv, cipherBytes)
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip: got %q, want %q", got, plain)
	}
}

func TestCBC_DecryptStreamedAcrossChunkBoundaries(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x00}, 32)
	iv := bytes.Repeat([]byte{0x01}, 16)
	plain := bytes.Repeat([]byte("x"), 100)

	cipherBytes := encryptAll(t, image.EncAES256CBC, key, iv, plain)

	dec, err := fwcrypto.NewDecryptor(image.EncAES256CBC, key, iv)
	if err != nil {
		t.Fatalf("NewDecryptor: %v", err)
	}

	var got []byte

	for i := 0; i < len(cipherBytes); i += 7 {
		end := i + 7
		if end > len(cipherBytes) {
			end = len(cipherBytes)
		}

		out, err := dec.Update(cipherBytes[i:end])
		if err != nil {
			t.Fatalf("Update: %v", err)
		}

		got = append(got, out...)
	}

	final, err := dec.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	got = append(got, final...)

	if !bytes.Equal(got, plain) {
		t.Fatalf("streamed round trip: got %q, want %q", got, plain)
	}
}

func TestCBC_FinalizeRejectsBadPadding(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x00}, 32)
	iv := bytes.Repeat([]byte{0x01}, 16)
	cipherBytes := encryptAll(t, image.EncAES256CBC, key, iv, []byte("hello world!!!!!"))

	// Flip a byte in the final ciphertext block: after decryption the pad
	// byte will (almost certainly) no longer describe a valid PKCS#7 tail.
	cipherBytes[len(cipherBytes)-1] ^= 0xFF

	dec, err := fwcrypto.NewDecryptor(image.EncAES256CBC, key, iv)
	if err != nil {
		t.Fatalf("NewDecryptor: %v", err)
	}

	if _, err := dec.Update(cipherBytes); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := dec.Finalize(); err == nil {
		t.Fatal("Finalize: want ErrDecryptPadInvalid on tampered padding, got nil")
	}
}

func TestCTR_EncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x02}, 16)
	iv := bytes.Repeat([]byte{0x03}, 16)
	plain := []byte("CTR mode never pads, any length goes")

	cipherBytes := encryptAll(t, image.EncAES128CTR, key, iv, plain)
	if len(cipherBytes) != len(plain) {
		t.Fatalf("CTR ciphertext length = %d, want %d (no padding)", len(cipherBytes), len(plain))
	}

	got := decryptAll(t, image.EncAES128CTR, key, iv, cipherBytes)
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip: got %q, want %q", got, plain)
	}
}
