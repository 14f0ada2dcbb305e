package cli

import (
	"errors"

	"github.com/fwupdate/cycloneboot/pkg/builder"
	"github.com/fwupdate/cycloneboot/pkg/ferr"
)

// Process exit codes: 0 success; 1 bad arguments; 2 I/O error;
// 3 crypto failure (e.g. key load); 4 input too large.
const (
	exitOK          = 0
	exitBadArgs     = 1
	exitIOError     = 2
	exitCryptoError = 3
	exitInputTooBig = 4
)

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, ferr.ErrSizeOutOfBounds):
		return exitInputTooBig
	case errors.Is(err, ferr.ErrKeyTooShort),
		errors.Is(err, ferr.ErrInternalCryptoFailure),
		errors.Is(err, builder.ErrUnreadablePEM),
		errors.Is(err, builder.ErrSigningKeyAlgoMismatch),
		errors.Is(err, builder.ErrNoSigningKey):
		return exitCryptoError
	case errors.Is(err, ferr.ErrUnknownAlgorithm), errors.Is(err, builder.ErrUnknownAlgoName),
		errors.Is(err, builder.ErrInvalidVersion),
		errors.Is(err, ErrInputRequired), errors.Is(err, ErrOutputRequired),
		errors.Is(err, ErrAuthKeyRequired), errors.Is(err, ErrEncKeyRequired):
		return exitBadArgs
	default:
		return exitIOError
	}
}
