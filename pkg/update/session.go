package update

import (
	"github.com/fwupdate/cycloneboot/pkg/ferr"
	"github.com/fwupdate/cycloneboot/pkg/image"
	"github.com/fwupdate/cycloneboot/pkg/slot"
	"github.com/fwupdate/cycloneboot/pkg/verify"
)

// State is the update session's position in the IDLE -> RECEIVING ->
// VERIFIED -> SWAP_ARMED lifecycle.
type State int

const (
	StateIdle State = iota
	StateReceiving
	StateVerified
	StateSwapArmed
)

// ErrorInfo describes how the most recent update attempt ended: the
// taxonomy error and the state the session occupied when the attempt
// died. It survives the session's return to IDLE so a host can report
// why the previous attempt failed; BeginUpdate clears it when a fresh
// attempt starts.
type ErrorInfo struct {
	Err   error
	State State
}

// Session drives one update attempt. Its lifetime spans beginUpdate
// through either finishUpdate+armSwap or a rejection/abort back to IDLE;
// RUNNING_NEW is reached only by a physical reset after armSwap, which is
// outside any single Session's process lifetime, and is not modeled here
// — the next boot constructs a fresh Session reading the same persisted
// slot.Manager state.
type Session struct {
	manager        *slot.Manager
	anchors        verify.TrustAnchors
	runningVersion image.Version

	state   State
	slotID  slot.ID
	engine  *verify.Engine
	lastErr ErrorInfo
}

// NewSession constructs a Session in IDLE, keyed to the device's trust
// anchors and the version of the firmware currently executing.
func NewSession(manager *slot.Manager, anchors verify.TrustAnchors, runningVersion image.Version) *Session {
	return &Session{manager: manager, anchors: anchors, runningVersion: runningVersion, state: StateIdle}
}

// State reports the session's current state.
func (s *Session) State() State { return s.state }

// CurrentVersion reports the version of the firmware currently running,
// independent of any update in progress.
func (s *Session) CurrentVersion() image.Version { return s.runningVersion }

// LastError reports how the most recent update attempt ended. Err is nil
// if no attempt has run since the last BeginUpdate, or the most recent
// one succeeded.
func (s *Session) LastError() ErrorInfo { return s.lastErr }

// BeginUpdate starts receiving a new image into slotHint. It fails with
// ferr.ErrBusy unless the session is IDLE.
func (s *Session) BeginUpdate(slotHint slot.ID) error {
	if s.state != StateIdle {
		return ferr.ErrBusy
	}

	if err := s.manager.BeginWrite(slotHint); err != nil {
		return err
	}

	s.slotID = slotHint
	s.engine = verify.New(s.anchors, s.runningVersion, s.manager.Image(slotHint))
	s.lastErr = ErrorInfo{}
	s.state = StateReceiving

	return nil
}

// FeedBytes delivers the next chunk of image bytes. Any error ends the
// attempt: the write slot is erased and the session returns to IDLE
// before FeedBytes returns.
func (s *Session) FeedBytes(chunk []byte) (int, error) {
	if s.state != StateReceiving {
		return 0, ferr.ErrBusy
	}

	n, err := s.engine.Feed(chunk)
	if err != nil {
		s.reject(err)

		return n, err
	}

	return n, nil
}

// FinishUpdate signals that the transport believes it has delivered every
// byte of the image. On success the session moves to VERIFIED and the
// slot's record becomes VALID; on any verification failure (including a
// truncated stream) the session rejects and returns to IDLE.
func (s *Session) FinishUpdate() error {
	if s.state != StateReceiving {
		return ferr.ErrBusy
	}

	if err := s.engine.Finish(); err != nil {
		s.reject(err)

		return err
	}

	if err := s.manager.MarkValid(s.slotID, s.engine.ImageHash()); err != nil {
		s.reject(err)

		return err
	}

	s.state = StateVerified

	return nil
}

func (s *Session) reject(err error) {
	// Abort, not the engine's own classification, owns erasing the
	// slot: a rejected image must never leave partially-written bytes
	// behind for a subsequent attempt to misinterpret.
	_ = s.manager.Abort(s.slotID) //nolint:errcheck // best-effort cleanup; lastErr is the reported cause
	s.lastErr = ErrorInfo{Err: err, State: s.state}
	s.state = StateIdle
	s.engine = nil
}

// ArmSwap promotes the verified slot to ACTIVE. It is idempotent: calling
// it again while already SWAP_ARMED is a no-op success, matching the
// idempotence slot.Manager.ArmSwap already provides.
func (s *Session) ArmSwap() error {
	if s.state != StateVerified && s.state != StateSwapArmed {
		return ferr.ErrBusy
	}

	if err := s.manager.ArmSwap(s.slotID); err != nil {
		return err
	}

	s.state = StateSwapArmed

	return nil
}

// AbortUpdate cancels the in-flight attempt at any phase, erasing the
// write slot. Unlike FeedBytes/FinishUpdate failures, this is never
// reported as a verification error.
func (s *Session) AbortUpdate() error {
	if s.state == StateIdle {
		return nil
	}

	if err := s.manager.Abort(s.slotID); err != nil {
		return err
	}

	s.lastErr = ErrorInfo{Err: ferr.ErrAborted, State: s.state}
	s.state = StateIdle
	s.engine = nil

	return nil
}
