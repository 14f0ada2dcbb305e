package verify

import (
	stdcrypto "crypto"

	fwcrypto "github.com/fwupdate/cycloneboot/pkg/crypto"
	"github.com/fwupdate/cycloneboot/pkg/ferr"
	"github.com/fwupdate/cycloneboot/pkg/image"
	"github.com/fwupdate/cycloneboot/pkg/slot"
)

// Phase is the engine's position in the AWAIT_HEADER -> AWAIT_BODY ->
// AWAIT_TRAILER -> ACCEPTED/REJECTED state machine.
type Phase int

const (
	PhaseAwaitHeader Phase = iota
	PhaseAwaitBody
	PhaseAwaitTrailer
	PhaseAccepted
	PhaseRejected
)

// TrustAnchors are the keys the engine was provisioned with out-of-band,
// never carried in the image itself.
type TrustAnchors struct {
	DecryptKey   []byte
	AuthKey      []byte
	SigPublicKey stdcrypto.PublicKey
}

// Engine is the single-pass streaming verifier. One Engine verifies
// exactly one image; construct a new one per update session.
type Engine struct {
	anchors        TrustAnchors
	runningVersion image.Version
	out            slot.ImageStore

	phase  Phase
	lastErr error

	headerBuf []byte
	header    image.Header
	trailer   image.TrailerLayout

	hash     fwcrypto.Hash
	mac      fwcrypto.MAC
	dec      fwcrypto.Decryptor
	verifier fwcrypto.Verifier

	bodyConsumed uint32
	writeOffset  int64

	trailerBuf []byte

	pendingFinalPlain []byte
	pendingPadErr     error
}

// New constructs an Engine that writes accepted plaintext into out and
// unconditionally rejects any image whose header firmware version is
// not strictly greater than runningVersion.
func New(anchors TrustAnchors, runningVersion image.Version, out slot.ImageStore) *Engine {
	return &Engine{
		anchors:        anchors,
		runningVersion: runningVersion,
		out:            out,
		phase:          PhaseAwaitHeader,
		headerBuf:      make([]byte, 0, image.HeaderSize),
	}
}

// Phase reports the engine's current state.
func (e *Engine) Phase() Phase { return e.phase }

// Feed delivers the next chunk of wire bytes, in order. A chunk is
// either consumed in full (n == len(chunk), err == nil) or the engine
// transitions to REJECTED and err names why;
// once rejected, every subsequent Feed call returns the same error without
// consuming anything. A Feed call made after the engine reached ACCEPTED
// consumes nothing, returns ErrSizeOutOfBounds and leaves it ACCEPTED.
func (e *Engine) Feed(chunk []byte) (int, error) {
	if e.phase == PhaseRejected {
		return 0, e.lastErr
	}

	if e.phase == PhaseAccepted {
		return 0, ferr.ErrSizeOutOfBounds
	}

	total := 0

	for len(chunk) > 0 {
		switch e.phase {
		case PhaseAwaitHeader:
			n, err := e.feedHeader(chunk)
			total += n
			chunk = chunk[n:]

			if err != nil {
				return total, e.reject(err)
			}
		case PhaseAwaitBody:
			n, err := e.feedBody(chunk)
			total += n
			chunk = chunk[n:]

			if err != nil {
				return total, e.reject(err)
			}
		case PhaseAwaitTrailer:
			n, err := e.feedTrailer(chunk)
			total += n
			chunk = chunk[n:]

			if err != nil {
				return total, e.reject(err)
			}
		default:
			// Accepted or Rejected reached mid-loop (trailer completed
			// inside feedTrailer): any leftover bytes are surplus.
			return total, e.reject(ferr.ErrSizeOutOfBounds)
		}
	}

	return total, nil
}

func (e *Engine) reject(err error) error {
	e.phase = PhaseRejected
	e.lastErr = err

	return err
}

func (e *Engine) feedHeader(chunk []byte) (int, error) {
	need := image.HeaderSize - len(e.headerBuf)
	n := min(need, len(chunk))
	e.headerBuf = append(e.headerBuf, chunk[:n]...)

	if len(e.headerBuf) < image.HeaderSize {
		return n, nil
	}

	h, err := image.DecodeHeader(e.headerBuf)
	if err != nil {
		return n, err
	}

	if err := e.validateHeader(h); err != nil {
		return n, err
	}

	e.header = h
	e.trailer = image.ComputeTrailerLayout(h)

	if err := e.initPrimitives(); err != nil {
		return n, err
	}

	// Every trailer section covers the header, so every enabled
	// primitive must see the header bytes before any body byte.
	e.absorb(e.headerBuf)

	e.phase = PhaseAwaitBody

	return n, nil
}

// validateHeader applies the cross-field rejection rules of AWAIT_HEADER
// beyond what image.DecodeHeader already checks.
func (e *Engine) validateHeader(h image.Header) error {
	wantFlags := uint16(0)
	if h.HasEncryption() {
		wantFlags |= image.FlagEncrypted
	}

	if h.HasAuth() {
		wantFlags |= image.FlagHasMAC
	}

	if h.HasSignature() {
		wantFlags |= image.FlagHasSignature
	}

	gotFlags := h.Flags & (image.FlagEncrypted | image.FlagHasMAC | image.FlagHasSignature)
	if gotFlags != wantFlags {
		return ferr.ErrInconsistentHeader
	}

	if h.HashAlgo == image.HashNone {
		// A trailer with no integrity section at all is never accepted:
		// there would be nothing to authenticate the body against.
		return ferr.ErrInconsistentHeader
	}

	if h.PlainLen < image.DescriptorSize || h.PlainLen > image.MaxImageSize {
		return ferr.ErrSizeOutOfBounds
	}

	if h.CipherLen == 0 || h.CipherLen != image.CiphertextLen(h.EncAlgo, h.PlainLen) {
		return ferr.ErrSizeOutOfBounds
	}

	// Anti-rollback is device-side runtime policy, not a header opt-in,
	// so this check does not gate on the ANTIROLLBACK flag bit.
	if !e.runningVersion.Less(h.FWVersion) {
		return ferr.ErrRollback
	}

	return nil
}

func (e *Engine) initPrimitives() error {
	var err error

	e.hash, err = fwcrypto.NewHash(e.header.HashAlgo)
	if err != nil {
		return err
	}

	if e.header.HasAuth() {
		e.mac, err = fwcrypto.NewMAC(e.header.AuthAlgo, e.anchors.AuthKey)
		if err != nil {
			return err
		}
	}

	if e.header.HasSignature() {
		e.verifier, err = fwcrypto.NewVerifier(e.header.SigAlgo, e.anchors.SigPublicKey)
		if err != nil {
			return err
		}
	}

	if e.header.HasEncryption() {
		e.dec, err = fwcrypto.NewDecryptor(e.header.EncAlgo, e.anchors.DecryptKey, e.header.IV[:])
		if err != nil {
			return err
		}
	}

	return nil
}

// absorb feeds wire bytes (header, then ciphertext body) into every
// enabled running primitive. Hash and MAC cover ciphertext, not
// plaintext, so a single pass suffices.
func (e *Engine) absorb(p []byte) {
	e.hash.Write(p) //nolint:errcheck // Hash.Write never fails

	if e.mac != nil {
		e.mac.Write(p) //nolint:errcheck // MAC.Write never fails
	}

	if e.verifier != nil {
		e.verifier.Write(p) //nolint:errcheck // hash-backed Write never fails
	}
}

func (e *Engine) feedBody(chunk []byte) (int, error) {
	remaining := e.header.CipherLen - e.bodyConsumed
	n := min(int(remaining), len(chunk))
	ciphertext := chunk[:n]

	e.absorb(ciphertext)
	e.bodyConsumed += uint32(n)

	if e.header.HasEncryption() {
		plain, err := e.dec.Update(ciphertext)
		if err != nil {
			return n, err
		}

		if len(plain) > 0 {
			if err := e.program(plain); err != nil {
				return n, err
			}
		}
	} else {
		if err := e.program(ciphertext); err != nil {
			return n, err
		}
	}

	if e.bodyConsumed == e.header.CipherLen {
		if err := e.finalizeBody(); err != nil {
			// Padding failure is deferred to the trailer-complete
			// decision; keep reading the trailer.
			e.pendingPadErr = err
		}

		e.trailerBuf = make([]byte, 0, e.trailer.TotalLen)
		e.phase = PhaseAwaitTrailer
	}

	return n, nil
}

func (e *Engine) finalizeBody() error {
	if !e.header.HasEncryption() {
		return nil
	}

	plain, err := e.dec.Finalize()
	if err != nil {
		return err
	}

	e.pendingFinalPlain = plain

	return nil
}

func (e *Engine) program(plaintext []byte) error {
	if err := e.out.WriteAt(e.writeOffset, plaintext); err != nil {
		return ferr.ErrFlashProgramFailed
	}

	e.writeOffset += int64(len(plaintext))

	return nil
}

func (e *Engine) feedTrailer(chunk []byte) (int, error) {
	need := e.trailer.TotalLen - len(e.trailerBuf)
	n := min(need, len(chunk))
	e.trailerBuf = append(e.trailerBuf, chunk[:n]...)

	if len(e.trailerBuf) < e.trailer.TotalLen {
		return n, nil
	}

	if err := e.finishTrailer(); err != nil {
		return n, err
	}

	return n, nil
}

// finishTrailer runs every enabled check unconditionally, in full, before
// deciding which error (if any) to report. A short-circuit on the first
// failed check would leak, via response timing, which check failed.
func (e *Engine) finishTrailer() error {
	digest := e.hash.Sum()
	integrityBytes := e.trailerBuf[e.trailer.IntegrityOff : e.trailer.IntegrityOff+e.trailer.IntegrityLen]
	integrityOK := fwcrypto.ConstantTimeEqual(digest, integrityBytes)

	// Each later trailer section covers every earlier one, so the
	// running MAC/signature must see the integrity digest (and, for the
	// signature, the auth tag) before they finalize, mirroring
	// builder.buildTrailer's own write order exactly.
	if e.verifier != nil {
		e.verifier.Write(digest) //nolint:errcheck // hash-backed Write never fails
	}

	var tag []byte

	authOK := true

	if e.mac != nil {
		e.mac.Write(digest) //nolint:errcheck // MAC.Write never fails
		tag = e.mac.Sum()
		authOK = fwcrypto.ConstantTimeEqual(
			tag, e.trailerBuf[e.trailer.AuthOff:e.trailer.AuthOff+e.trailer.AuthLen])

		if e.verifier != nil {
			e.verifier.Write(tag) //nolint:errcheck // hash-backed Write never fails
		}
	}

	sigOK := true
	if e.verifier != nil {
		ok, err := e.verifier.Verify(e.trailerBuf[e.trailer.SigOff : e.trailer.SigOff+e.trailer.SigLen])
		if err != nil {
			return ferr.ErrInternalCryptoFailure
		}

		sigOK = ok
	}

	switch {
	case !integrityOK:
		return ferr.ErrIntegrityMismatch
	case !authOK:
		return ferr.ErrAuthMismatch
	case !sigOK:
		return ferr.ErrSignatureInvalid
	case e.pendingPadErr != nil:
		return e.pendingPadErr
	}

	if len(e.pendingFinalPlain) > 0 {
		if err := e.program(e.pendingFinalPlain); err != nil {
			return err
		}
	}

	e.phase = PhaseAccepted

	return nil
}

// Finish reports the terminal outcome once the caller believes it has fed
// every byte of the image. A truncated stream (fewer bytes than the
// header promised) is reported as ErrSizeOutOfBounds, matching the rest
// of the length-validation taxonomy rather than a new "incomplete" error.
func (e *Engine) Finish() error {
	switch e.phase {
	case PhaseAccepted:
		return nil
	case PhaseRejected:
		return e.lastErr
	default:
		return e.reject(ferr.ErrSizeOutOfBounds)
	}
}

// Header returns the decoded header once AWAIT_HEADER has completed. It
// is the zero Header before then.
func (e *Engine) Header() image.Header { return e.header }

// ImageHash returns the verified integrity digest, valid only once Finish
// has returned nil. Callers (the update state machine) use this as the
// slot record's identity.
func (e *Engine) ImageHash() [32]byte {
	var out [32]byte

	if e.phase != PhaseAccepted {
		return out
	}

	sum := e.hash.Sum()
	copy(out[:], sum)

	return out
}
