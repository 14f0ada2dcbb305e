package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/fwupdate/cycloneboot/internal/config"
	"github.com/fwupdate/cycloneboot/pkg/builder"
	"github.com/fwupdate/cycloneboot/pkg/image"
)

// ErrInputRequired indicates --input was not given.
var ErrInputRequired = errors.New("cli: --input is required")

// ErrOutputRequired indicates --output was not given.
var ErrOutputRequired = errors.New("cli: --output is required")

// ErrAuthKeyRequired indicates --auth-algo was given without --auth-key.
var ErrAuthKeyRequired = errors.New("cli: --auth-key is required when --auth-algo is set")

// ErrEncKeyRequired indicates --enc-algo was given without --enc-key.
var ErrEncKeyRequired = errors.New("cli: --enc-key is required when --enc-algo is set")

// CreateCmd builds the "create" subcommand.
func CreateCmd() *Command {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)

	input := fs.StringP("input", "i", "", "Plaintext firmware binary (required)")
	output := fs.StringP("output", "o", "", "Output image path (required)")
	fwVersion := fs.String("firmware-version", "", "MAJ.MIN.PATCH; required when anti-rollback enabled")
	vtorAlign := fs.Bool("vtor-align", false, "Pad so vector table satisfies MCU alignment")
	encAlgo := fs.String("enc-algo", "", "aes-cbc|aes-ctr")
	encKey := fs.String("enc-key", "", "HEX or PATH")
	integrityAlgo := fs.String("integrity-algo", "", "crc32|md5|sha1|sha224|sha256|sha384|sha512")
	authAlgo := fs.String("auth-algo", "", "hmac-sha256|hmac-sha512")
	authKey := fs.String("auth-key", "", "HEX or PATH")
	signAlgo := fs.String("sign-algo", "", "ecdsa-sha256|rsa-sha256")
	signKey := fs.String("sign-key", "", "PEM path")
	cfgPath := fs.StringP("config", "c", "", "Use specified config file")
	verbose := fs.BoolP("verbose", "v", false, "Extra logging")

	return &Command{
		Flags: fs,
		Usage: "create -i <input> -o <output> [flags]",
		Short: "Build an update image from a plaintext firmware binary",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return runCreate(o, createArgs{
				input: *input, output: *output, fwVersion: *fwVersion, vtorAlign: *vtorAlign,
				encAlgo: *encAlgo, encKey: *encKey, integrityAlgo: *integrityAlgo,
				authAlgo: *authAlgo, authKey: *authKey, signAlgo: *signAlgo, signKey: *signKey,
				cfgPath: *cfgPath, verbose: *verbose, changed: fs.Changed,
			})
		},
	}
}

type createArgs struct {
	input, output, fwVersion string
	vtorAlign                bool
	encAlgo, encKey          string
	integrityAlgo            string
	authAlgo, authKey        string
	signAlgo, signKey        string
	cfgPath                  string
	verbose                  bool
	changed                  func(name string) bool
}

func runCreate(o *IO, a createArgs) error {
	if a.input == "" {
		return ErrInputRequired
	}

	if a.output == "" {
		return ErrOutputRequired
	}

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	profile, err := config.Load(workDir, a.cfgPath)
	if err != nil {
		return err
	}

	applyProfileDefaults(&a, profile)

	binary, err := os.ReadFile(a.input) //nolint:gosec // input path is operator-controlled CLI input
	if err != nil {
		return err
	}

	logger := newBuildLogger(o, a.verbose)

	opts, err := buildOptions(a, binary, logger)
	if err != nil {
		return err
	}

	return builder.BuildToFile(opts, a.output)
}

// newBuildLogger returns a *slog.Logger writing to o's stderr: at
// LevelDebug when --verbose is set, so every pipeline-stage message
// builder.Build emits is shown; at LevelWarn otherwise, so only the
// build's own warnings (none currently emitted) would show, matching
// the "extra logging" behavior --verbose has always advertised, now
// backed by an actual leveled logger instead of a single Printf gated
// on a bool.
func newBuildLogger(o *IO, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(o.ErrWriter(), &slog.HandlerOptions{Level: level}))
}

func applyProfileDefaults(a *createArgs, profile config.Profile) {
	if !a.changed("enc-algo") && profile.EncAlgo != "" {
		a.encAlgo = profile.EncAlgo
	}

	if !a.changed("integrity-algo") && profile.IntegrityAlgo != "" {
		a.integrityAlgo = profile.IntegrityAlgo
	}

	if !a.changed("auth-algo") && profile.AuthAlgo != "" {
		a.authAlgo = profile.AuthAlgo
	}

	if !a.changed("sign-algo") && profile.SignAlgo != "" {
		a.signAlgo = profile.SignAlgo
	}

	if !a.changed("vtor-align") && profile.VTORAlign {
		a.vtorAlign = true
	}
}

func buildOptions(a createArgs, binary []byte, logger *slog.Logger) (builder.Options, error) {
	var fwVersion image.Version

	if a.fwVersion != "" {
		v, err := builder.ParseVersion(a.fwVersion)
		if err != nil {
			return builder.Options{}, err
		}

		fwVersion = v
	}

	var encKey []byte

	if a.encAlgo != "" {
		if a.encKey == "" {
			return builder.Options{}, ErrEncKeyRequired
		}

		key, err := builder.LoadSymmetricKey(a.encKey)
		if err != nil {
			return builder.Options{}, err
		}

		encKey = key
	}

	encAlgo, err := builder.ParseEncAlgo(a.encAlgo, len(encKey))
	if err != nil {
		return builder.Options{}, err
	}

	hashAlgo, err := builder.ParseHashAlgo(a.integrityAlgo)
	if err != nil {
		return builder.Options{}, err
	}

	var authKey []byte

	if a.authAlgo != "" {
		if a.authKey == "" {
			return builder.Options{}, ErrAuthKeyRequired
		}

		key, err := builder.LoadSymmetricKey(a.authKey)
		if err != nil {
			return builder.Options{}, err
		}

		authKey = key
	}

	authAlgo, err := builder.ParseAuthAlgo(a.authAlgo)
	if err != nil {
		return builder.Options{}, err
	}

	sigAlgo, err := builder.ParseSigAlgo(a.signAlgo)
	if err != nil {
		return builder.Options{}, err
	}

	var signingKey any

	if sigAlgo != image.SigNone {
		if a.signKey == "" {
			return builder.Options{}, builder.ErrNoSigningKey
		}

		key, err := builder.LoadSigningKey(a.signKey)
		if err != nil {
			return builder.Options{}, err
		}

		signingKey = key
	}

	return builder.Options{
		Binary:     binary,
		FWVersion:  fwVersion,
		BuildTime:  uint64(time.Now().Unix()),
		VTORAlign:  a.vtorAlign,
		EncAlgo:    encAlgo,
		EncKey:     encKey,
		HashAlgo:   hashAlgo,
		AuthAlgo:   authAlgo,
		AuthKey:    authKey,
		SigAlgo:    sigAlgo,
		SigningKey: signingKey,
		Logger:     logger,
	}, nil
}
