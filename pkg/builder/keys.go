package builder

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509" //nolint:staticcheck // x509.DecryptPEMBlock is the only stdlib path for legacy encrypted PEM
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/peterh/liner"
)

// ErrNoSigningKey indicates --sign-algo was given without --sign-key.
var ErrNoSigningKey = errors.New("builder: signing key required")

// ErrUnreadablePEM indicates the PEM file held no parseable key block.
var ErrUnreadablePEM = errors.New("builder: unreadable PEM key")

// LoadSymmetricKey resolves an encryption or MAC key given on the command
// line as either raw hex or a path to a key file. Any value that decodes
// as hex is treated as hex (no key length is checked here); otherwise it
// is read as a file, and the file's content is tried as hex first, then as
// raw bytes.
func LoadSymmetricKey(arg string) ([]byte, error) {
	if key, err := hex.DecodeString(arg); err == nil {
		return key, nil
	}

	data, err := os.ReadFile(arg) //nolint:gosec // key path is intentionally operator-controlled
	if err != nil {
		return nil, fmt.Errorf("reading key file %s: %w", arg, err)
	}

	if key, err := hex.DecodeString(string(trimNewline(data))); err == nil {
		return key, nil
	}

	return data, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}

	return b
}

// LoadSigningKey reads a PEM-encoded private key from path. If the PEM
// block is encrypted, the operator is prompted once for a passphrase via
// a masked liner prompt; a wrong passphrase fails fast rather than
// retrying.
func LoadSigningKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // key path is intentionally operator-controlled
	if err != nil {
		return nil, fmt.Errorf("reading signing key %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrUnreadablePEM
	}

	der := block.Bytes

	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // see import comment
		passphrase, err := promptPassphrase(path)
		if err != nil {
			return nil, err
		}

		der, err = x509.DecryptPEMBlock(block, passphrase) //nolint:staticcheck // see import comment
		if err != nil {
			return nil, fmt.Errorf("decrypting signing key %s: %w", path, err)
		}
	}

	return parsePrivateKey(der)
}

func promptPassphrase(path string) ([]byte, error) {
	l := liner.NewLiner()
	defer l.Close()

	passphrase, err := l.PasswordPrompt(fmt.Sprintf("passphrase for %s: ", path))
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}

	return []byte(passphrase), nil
}

// LoadPublicKey reads a PEM-encoded public key from path, for the
// device-side counterpart of LoadSigningKey: verifying rather than
// producing a signature.
func LoadPublicKey(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // key path is intentionally operator-controlled
	if err != nil {
		return nil, fmt.Errorf("reading public key %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrUnreadablePEM
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadablePEM, err)
	}

	return pub, nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadablePEM, err)
	}

	switch key := key.(type) {
	case *ecdsa.PrivateKey, *rsa.PrivateKey:
		return key, nil
	default:
		return nil, ErrUnreadablePEM
	}
}
