// Command imagebuilder packages a plaintext firmware binary into a
// firmware update image: a bit-exact container carrying integrity,
// authenticity, confidentiality, and anti-rollback metadata alongside
// the application binary.
package main

import (
	"os"

	"github.com/fwupdate/cycloneboot/internal/cli"
)

func main() {
	commands := []*cli.Command{
		cli.CreateCmd(),
		cli.InspectCmd(),
	}

	os.Exit(cli.Run(os.Stdout, os.Stderr, os.Args[1:], commands))
}
