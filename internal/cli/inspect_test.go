package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fwupdate/cycloneboot/internal/cli"
)

func TestInspectCommand_PrintsHeaderFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "app.bin")
	out := filepath.Join(dir, "update.img")

	if err := os.WriteFile(in, testBinary(256), 0o600); err != nil {
		t.Fatalf("writing input: %v", err)
	}

	_, stderr, code := runCreate(t, []string{
		"create", "-i", in, "-o", out, "--integrity-algo", "sha256",
		"--firmware-version", "1.2.3",
	})
	if code != 0 {
		t.Fatalf("create: exit %d, stderr %q", code, stderr)
	}

	var stdout, inspectStderr bytes.Buffer

	code = cli.Run(&stdout, &inspectStderr, []string{"inspect", "-i", out},
		[]*cli.Command{cli.CreateCmd(), cli.InspectCmd()})
	if code != 0 {
		t.Fatalf("inspect: exit %d, stderr %q", code, inspectStderr.String())
	}

	got := stdout.String()
	for _, want := range []string{"fwVersion:  1.2.3", "hashAlgo:", "plainLen:", "totalLen:"} {
		if !strings.Contains(got, want) {
			t.Errorf("inspect output missing %q\ngot:\n%s", want, got)
		}
	}
}

func TestInspectCommand_MissingInput(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code := cli.Run(&stdout, &stderr, []string{"inspect"}, []*cli.Command{cli.InspectCmd()})
	if code == 0 {
		t.Fatal("inspect without -i: want non-zero exit")
	}

	if !strings.Contains(stderr.String(), cli.ErrInputRequired.Error()) {
		t.Fatalf("stderr = %q, want ErrInputRequired message", stderr.String())
	}
}

func TestInspectCommand_TruncatedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "short.img")

	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatalf("writing short file: %v", err)
	}

	var stdout, stderr bytes.Buffer

	code := cli.Run(&stdout, &stderr, []string{"inspect", "-i", path}, []*cli.Command{cli.InspectCmd()})
	if code == 0 {
		t.Fatal("inspect on truncated file: want non-zero exit")
	}
}
