package cli

import (
	"context"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/fwupdate/cycloneboot/pkg/ferr"
	"github.com/fwupdate/cycloneboot/pkg/image"
)

// InspectCmd returns the "inspect" subcommand: parse and print a built
// image's header and trailer layout without verifying any cryptographic
// section, analogous to the project's read-only ticket inspectors
// (show.go/ls.go).
func InspectCmd() *Command {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	path := fs.StringP("input", "i", "", "Image path (required)")

	return &Command{
		Flags: fs,
		Usage: "inspect -i <path>",
		Short: "Print an image's header and trailer layout",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return runInspect(o, *path)
		},
	}
}

func runInspect(o *IO, path string) error {
	if path == "" {
		return ErrInputRequired
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled CLI input
	if err != nil {
		return err
	}

	if len(data) < image.HeaderSize {
		return ferr.ErrSizeOutOfBounds
	}

	h, err := image.DecodeHeader(data[:image.HeaderSize])
	if err != nil {
		return err
	}

	trailer := image.ComputeTrailerLayout(h)
	total := image.TotalImageLen(h)

	o.Printf("headerVer:  %d\n", h.HeaderVer)
	o.Printf("flags:      0x%04x\n", h.Flags)
	o.Printf("encAlgo:    %d\n", h.EncAlgo)
	o.Printf("hashAlgo:   %d\n", h.HashAlgo)
	o.Printf("authAlgo:   %d\n", h.AuthAlgo)
	o.Printf("sigAlgo:    %d\n", h.SigAlgo)
	o.Printf("fwVersion:  %d.%d.%d\n", h.FWVersion[0], h.FWVersion[1], h.FWVersion[2])
	o.Printf("plainLen:   %d\n", h.PlainLen)
	o.Printf("cipherLen:  %d\n", h.CipherLen)
	o.Printf("trailerLen: %d (integrity=%d auth=%d sig=%d)\n",
		trailer.TotalLen, trailer.IntegrityLen, trailer.AuthLen, trailer.SigLen)
	o.Printf("totalLen:   %d (file is %d bytes)\n", total, len(data))

	if total != len(data) {
		o.Warn("decoded length does not match file size; file may be truncated or padded")
	}

	return nil
}
