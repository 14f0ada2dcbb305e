package builder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fwupdate/cycloneboot/pkg/image"
)

// ErrUnknownAlgoName indicates a CLI algorithm flag value has no mapping.
var ErrUnknownAlgoName = errors.New("builder: unknown algorithm name")

// ErrInvalidVersion indicates a --firmware-version value was not MAJ.MIN.PATCH.
var ErrInvalidVersion = errors.New("builder: invalid version, want MAJ.MIN.PATCH")

// ParseVersion parses a "MAJOR.MINOR.PATCH" string into an image.Version.
func ParseVersion(s string) (image.Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return image.Version{}, ErrInvalidVersion
	}

	var v image.Version

	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return image.Version{}, fmt.Errorf("%w: %s", ErrInvalidVersion, s)
		}

		v[i] = uint16(n)
	}

	return v, nil
}

// ParseEncAlgo maps a --enc-algo value to its image.EncAlgo. The CLI
// names the cipher mode but not the key size; key size is inferred from
// the decoded key's length (16 bytes -> 128-bit, 32 bytes -> 256-bit).
func ParseEncAlgo(name string, keyLen int) (image.EncAlgo, error) {
	switch name {
	case "":
		return image.EncNone, nil
	case "aes-cbc":
		return encBySize(keyLen, image.EncAES128CBC, image.EncAES256CBC)
	case "aes-ctr":
		return encBySize(keyLen, image.EncAES128CTR, image.EncAES256CTR)
	default:
		return 0, fmt.Errorf("%w: --enc-algo %s", ErrUnknownAlgoName, name)
	}
}

func encBySize(keyLen int, algo128, algo256 image.EncAlgo) (image.EncAlgo, error) {
	switch keyLen {
	case 16:
		return algo128, nil
	case 32:
		return algo256, nil
	default:
		return 0, fmt.Errorf("%w: key must be 16 or 32 bytes, got %d", ErrUnknownAlgoName, keyLen)
	}
}

// ParseHashAlgo maps a --integrity-algo value to its image.HashAlgo.
func ParseHashAlgo(name string) (image.HashAlgo, error) {
	switch name {
	case "", "none":
		return image.HashNone, nil
	case "crc32":
		return image.HashCRC32, nil
	case "md5":
		return image.HashMD5, nil
	case "sha1":
		return image.HashSHA1, nil
	case "sha224":
		return image.HashSHA224, nil
	case "sha256":
		return image.HashSHA256, nil
	case "sha384":
		return image.HashSHA384, nil
	case "sha512":
		return image.HashSHA512, nil
	default:
		return 0, fmt.Errorf("%w: --integrity-algo %s", ErrUnknownAlgoName, name)
	}
}

// ParseAuthAlgo maps a --auth-algo value to its image.AuthAlgo.
func ParseAuthAlgo(name string) (image.AuthAlgo, error) {
	switch name {
	case "":
		return image.AuthNone, nil
	case "hmac-sha256":
		return image.AuthHMACSHA256, nil
	case "hmac-sha512":
		return image.AuthHMACSHA512, nil
	default:
		return 0, fmt.Errorf("%w: --auth-algo %s", ErrUnknownAlgoName, name)
	}
}

// ParseSigAlgo maps a --sign-algo value to its image.SigAlgo.
func ParseSigAlgo(name string) (image.SigAlgo, error) {
	switch name {
	case "":
		return image.SigNone, nil
	case "ecdsa-sha256":
		return image.SigECDSAP256SHA256, nil
	case "rsa-sha256":
		return image.SigRSA2048SHA256, nil
	default:
		return 0, fmt.Errorf("%w: --sign-algo %s", ErrUnknownAlgoName, name)
	}
}
