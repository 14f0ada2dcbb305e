// imgtool is an interactive CLI for driving a device simulation against
// images produced by imagebuilder: it hosts a slot.Manager and an
// update.Session and lets an operator feed a built image through the
// same begin/feed/finish/arm lifecycle the bootloader itself would run,
// without needing real hardware. Application slots are always
// in-memory; the slot-state record sectors are in-memory by default but
// can be pointed at a directory with --state-dir to persist across
// relaunches.
//
// Usage:
//
//	imgtool [flags]
//
// Flags:
//
//	--slot-size     Size in bytes of each application slot (default: 262144)
//	--sector-size   Record flash sector size in bytes (default: 4096)
//	--state-dir     Directory to persist slot-state record sectors in; when
//	                 unset, records live only in memory and reset with the
//	                 process (default: "")
//	--running-version  MAJ.MIN.PATCH of the firmware imgtool pretends to be (default: 1.0.0)
//	--dec-key       Hex or path; decryption key, if images are encrypted
//	--auth-key      Hex or path; authentication (MAC) key, if images are authenticated
//	--sig-pub       Path to a PEM-encoded public key, if images are signed
//
// Commands (in REPL):
//
//	begin <a|b>              Start receiving into the named slot
//	feed <path>               Stream an image file's bytes into the session
//	finish                    Signal end-of-stream and run trailer verification
//	arm                       Promote the verified slot to ACTIVE
//	abort                     Cancel the in-flight attempt
//	boot                      Simulate a reset: loader selection + handoff sequence
//	bootok                    Mark the active image healthy
//	state                     Show session state and both slots' records
//	inspect <path>            Decode and print an image file's header
//	help                      Show this help
//	exit / quit / q           Exit
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/peterh/liner"

	"github.com/fwupdate/cycloneboot/pkg/builder"
	"github.com/fwupdate/cycloneboot/pkg/ferr"
	"github.com/fwupdate/cycloneboot/pkg/handoff"
	"github.com/fwupdate/cycloneboot/pkg/image"
	"github.com/fwupdate/cycloneboot/pkg/slot"
	"github.com/fwupdate/cycloneboot/pkg/update"
	"github.com/fwupdate/cycloneboot/pkg/verify"
)

const defaultSlotSize = 262144

const defaultSectorSize = 4096

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err) //nolint:errcheck // best-effort CLI output

		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("imgtool", flag.ContinueOnError)
	slotSize := fs.Int64("slot-size", defaultSlotSize, "application slot size in bytes")
	sectorSize := fs.Int("sector-size", defaultSectorSize, "record flash sector size in bytes")
	stateDir := fs.String("state-dir", "", "directory to persist slot-state record sectors in (default: in-memory only)")
	runningVersion := fs.String("running-version", "1.0.0", "firmware version imgtool simulates")
	decKey := fs.String("dec-key", "", "decryption key: HEX or PATH")
	authKey := fs.String("auth-key", "", "authentication key: HEX or PATH")
	sigPub := fs.String("sig-pub", "", "PEM path to a signature verification public key")

	if err := fs.Parse(args); err != nil {
		return err
	}

	anchors, err := buildAnchors(*decKey, *authKey, *sigPub)
	if err != nil {
		return err
	}

	version, err := builder.ParseVersion(*runningVersion)
	if err != nil {
		return err
	}

	recordFlash, err := newRecordFlash(*stateDir, *sectorSize)
	if err != nil {
		return err
	}

	manager, err := slot.NewManager(
		slot.NewMemImageStore(*slotSize),
		slot.NewMemImageStore(*slotSize),
		recordFlash,
	)
	if err != nil {
		return err
	}

	jumper := &handoff.Software{}

	r := &repl{
		session: update.NewSession(manager, anchors, version),
		manager: manager,
		loader:  update.NewLoader(manager, jumper, 0x08004000, 0x08044000),
		jumper:  jumper,
	}

	return r.run()
}

// newRecordFlash returns an in-memory record flash, or — when stateDir is
// set — a slot.FileBacked one rooted there, so the slot-state records an
// operator arms with "arm" survive quitting and relaunching imgtool, the
// same way they'd survive a real device's reset.
func newRecordFlash(stateDir string, sectorSize int) (slot.Flash, error) {
	if stateDir == "" {
		return slot.NewMem(sectorSize, 4), nil
	}

	return slot.NewFileBacked(stateDir, sectorSize, 4)
}

func buildAnchors(decKeyArg, authKeyArg, sigPubPath string) (verify.TrustAnchors, error) {
	var anchors verify.TrustAnchors

	if decKeyArg != "" {
		key, err := builder.LoadSymmetricKey(decKeyArg)
		if err != nil {
			return anchors, err
		}

		anchors.DecryptKey = key
	}

	if authKeyArg != "" {
		key, err := builder.LoadSymmetricKey(authKeyArg)
		if err != nil {
			return anchors, err
		}

		anchors.AuthKey = key
	}

	if sigPubPath != "" {
		pub, err := builder.LoadPublicKey(sigPubPath)
		if err != nil {
			return anchors, err
		}

		anchors.SigPublicKey = pub
	}

	return anchors, nil
}

type repl struct {
	session *update.Session
	manager *slot.Manager
	loader  *update.Loader
	jumper  *handoff.Software
	liner   *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".imgtool_history")
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close() //nolint:errcheck // best-effort cleanup

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f) //nolint:errcheck // history is best-effort
		f.Close()              //nolint:errcheck // read-only handle
	}

	fmt.Println("imgtool - firmware update device simulator")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("imgtool> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF { //nolint:errorlint // liner sentinel comparison
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		if cmd == "exit" || cmd == "quit" || cmd == "q" {
			fmt.Println("Bye!")

			break
		}

		if err := r.dispatch(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err) //nolint:errcheck // best-effort CLI output
		}
	}

	r.saveHistory()

	return nil
}

func (r *repl) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path) //nolint:gosec // fixed filename under the user's home directory
	if err != nil {
		return
	}
	defer f.Close() //nolint:errcheck // best-effort cleanup

	r.liner.WriteHistory(f) //nolint:errcheck // best-effort
}

func (r *repl) completer(line string) []string {
	candidates := []string{"begin", "feed", "finish", "arm", "abort", "boot", "bootok", "state", "inspect", "help", "exit"}

	var out []string

	for _, c := range candidates {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}

	return out
}

func (r *repl) dispatch(cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		r.printHelp()

		return nil
	case "begin":
		return r.cmdBegin(args)
	case "feed":
		return r.cmdFeed(args)
	case "finish":
		return r.session.FinishUpdate()
	case "arm":
		return r.session.ArmSwap()
	case "abort":
		return r.session.AbortUpdate()
	case "boot":
		return r.cmdBoot()
	case "bootok":
		return r.loader.MarkBootOK()
	case "state":
		r.printState()

		return nil
	case "inspect":
		return r.cmdInspect(args)
	default:
		return fmt.Errorf("unknown command: %s (try 'help')", cmd)
	}
}

func (r *repl) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  begin <a|b>     Start receiving into the named slot")
	fmt.Println("  feed <path>     Stream an image file's bytes into the session")
	fmt.Println("  finish          Signal end-of-stream and run trailer verification")
	fmt.Println("  arm             Promote the verified slot to ACTIVE")
	fmt.Println("  abort           Cancel the in-flight attempt")
	fmt.Println("  boot            Simulate a reset: run loader selection and the handoff sequence")
	fmt.Println("  bootok          Mark the active image healthy, clearing its boot-attempt count")
	fmt.Println("  state           Show session state and both slots' records")
	fmt.Println("  inspect <path>  Decode and print an image file's header")
	fmt.Println("  help            Show this help")
	fmt.Println("  exit/quit/q     Exit")
}

func (r *repl) cmdBegin(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: begin <a|b>")
	}

	id, err := parseSlotID(args[0])
	if err != nil {
		return err
	}

	return r.session.BeginUpdate(id)
}

func parseSlotID(s string) (slot.ID, error) {
	switch strings.ToLower(s) {
	case "a":
		return slot.SlotA, nil
	case "b":
		return slot.SlotB, nil
	default:
		return 0, fmt.Errorf("slot must be 'a' or 'b', got %q", s)
	}
}

const feedChunkSize = 4096

func (r *repl) cmdFeed(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: feed <path>")
	}

	data, err := os.ReadFile(args[0]) //nolint:gosec // path is operator-controlled CLI input
	if err != nil {
		return err
	}

	for off := 0; off < len(data); {
		end := off + feedChunkSize
		if end > len(data) {
			end = len(data)
		}

		n, err := r.session.FeedBytes(data[off:end])
		if err != nil {
			return err
		}

		off += n
	}

	fmt.Printf("fed %d bytes\n", len(data))

	return nil
}

func (r *repl) printState() {
	fmt.Printf("session: %s\n", sessionStateName(r.session.State()))

	for _, id := range []slot.ID{slot.SlotA, slot.SlotB} {
		rec, err := r.manager.State(id)
		if err != nil {
			fmt.Printf("  slot %s: error: %v\n", slotName(id), err)

			continue
		}

		fmt.Printf("  slot %s: status=%s generation=%d attempts=%d hash=%x\n",
			slotName(id), statusName(rec.Status), rec.Generation, rec.BootAttempts, rec.ImageHash[:4])
	}

	if info := r.session.LastError(); info.Err != nil {
		fmt.Printf("  last error: %v (in %s)\n", info.Err, sessionStateName(info.State))
	}
}

// cmdBoot simulates a device reset: the loader picks the active slot and
// runs the handoff sequence against the recording software jumper.
func (r *repl) cmdBoot() error {
	r.jumper.Calls = nil

	if err := r.loader.Boot(); err != nil {
		return err
	}

	fmt.Printf("handoff: %s\n", strings.Join(r.jumper.Calls, " -> "))

	return nil
}

func slotName(id slot.ID) string {
	if id == slot.SlotA {
		return "a"
	}

	return "b"
}

func sessionStateName(s update.State) string {
	switch s {
	case update.StateIdle:
		return "IDLE"
	case update.StateReceiving:
		return "RECEIVING"
	case update.StateVerified:
		return "VERIFIED"
	case update.StateSwapArmed:
		return "SWAP_ARMED"
	default:
		return "UNKNOWN"
	}
}

func statusName(s slot.Status) string {
	switch s {
	case slot.StatusEmpty:
		return "EMPTY"
	case slot.StatusWriting:
		return "WRITING"
	case slot.StatusValid:
		return "VALID"
	case slot.StatusActive:
		return "ACTIVE"
	case slot.StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

func (r *repl) cmdInspect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: inspect <path>")
	}

	data, err := os.ReadFile(args[0]) //nolint:gosec // path is operator-controlled CLI input
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

	fmt.Printf("headerVer:  %d\n", h.HeaderVer)
	fmt.Printf("flags:      0x%04x\n", h.Flags)
	fmt.Printf("encAlgo:    %d\n", h.EncAlgo)
	fmt.Printf("hashAlgo:   %d\n", h.HashAlgo)
	fmt.Printf("authAlgo:   %d\n", h.AuthAlgo)
	fmt.Printf("sigAlgo:    %d\n", h.SigAlgo)
	fmt.Printf("fwVersion:  %d.%d.%d\n", h.FWVersion[0], h.FWVersion[1], h.FWVersion[2])
	fmt.Printf("plainLen:   %d\n", h.PlainLen)
	fmt.Printf("cipherLen:  %d\n", h.CipherLen)
	fmt.Printf("trailerLen: %d (integrity=%d auth=%d sig=%d)\n",
		trailer.TotalLen, trailer.IntegrityLen, trailer.AuthLen, trailer.SigLen)
	fmt.Printf("totalLen:   %d (file is %d bytes)\n", total, len(data))

	if total != len(data) {
		fmt.Println("warning: decoded length does not match file size")
	}

	return nil
}
