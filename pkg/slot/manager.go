package slot

import "github.com/fwupdate/cycloneboot/pkg/ferr"

// Manager is the A/B slot abstraction.
// It owns each slot's image bytes and its crash-safe state record, and
// is the only component that ever mutates either.
type Manager struct {
	images  [2]ImageStore
	records [2]*pingPong
}

// NewManager builds a Manager over two image regions and a record flash
// holding four sectors: [0,1] are slot A's ping-pong pair, [2,3] are slot
// B's.
func NewManager(imageA, imageB ImageStore, recordFlash Flash) (*Manager, error) {
	if recordFlash.NumSectors() < 4 {
		return nil, ferr.ErrStorageExhausted
	}

	return &Manager{
		images:  [2]ImageStore{imageA, imageB},
		records: [2]*pingPong{newPingPong(recordFlash, 0, 1), newPingPong(recordFlash, 2, 3)},
	}, nil
}

func other(id ID) ID {
	if id == SlotA {
		return SlotB
	}

	return SlotA
}

// Image returns the byte-addressable store for slot id.
func (m *Manager) Image(id ID) ImageStore { return m.images[id] }

// State returns slot id's current record. A slot that has never been
// provisioned (blank flash) reads back as StatusEmpty, generation 0.
func (m *Manager) State(id ID) (Record, error) {
	rec, err := m.records[id].read()
	if err == nil {
		return rec, nil
	}

	if err == ErrNoValidRecord { //nolint:errorlint // sentinel comparison, not wrapped
		return Record{Slot: id, Status: StatusEmpty}, nil
	}

	return Record{}, err
}

func (m *Manager) transition(id ID, status Status, hash [32]byte) error {
	cur, err := m.State(id)
	if err != nil {
		return err
	}

	if cur.Status == status && cur.ImageHash == hash {
		return nil // already there: idempotent
	}

	next := Record{Generation: cur.Generation + 1, Status: status, Slot: id, ImageHash: hash}

	return m.records[id].write(next)
}

// BeginWrite erases slot id's image region and marks it WRITING. Callers
// must hold id exclusively for the duration of the update session; the
// running image's own slot is never written.
func (m *Manager) BeginWrite(id ID) error {
	if err := m.images[id].Erase(); err != nil {
		return ferr.ErrFlashEraseFailed
	}

	return m.transition(id, StatusWriting, [32]byte{})
}

// MarkValid transitions slot id from WRITING to VALID once the verify
// engine's trailer checks all pass, recording imageHash as the slot's
// identity. The hash identifies the image; it is not re-checked as a
// trust decision.
func (m *Manager) MarkValid(id ID, imageHash [32]byte) error {
	return m.transition(id, StatusValid, imageHash)
}

// ArmSwap promotes slot id to ACTIVE and demotes the previously active
// slot (if any) to REJECTED. It is idempotent and crash-safe: calling it
// twice in a row with no intervening state change is a no-op on the
// second call.
func (m *Manager) ArmSwap(id ID) error {
	cur, err := m.State(id)
	if err != nil {
		return err
	}

	if cur.Status == StatusActive {
		return nil
	}

	otherRec, err := m.State(other(id))
	if err != nil {
		return err
	}

	if otherRec.Status == StatusActive {
		if err := m.transition(other(id), StatusRejected, otherRec.ImageHash); err != nil {
			return err
		}
	}

	return m.transition(id, StatusActive, cur.ImageHash)
}

// Abort erases slot id's image region and returns its record to EMPTY.
// Unlike a verification failure, this path is reachable from any
// in-progress state and is never itself classified as a verify error.
func (m *Manager) Abort(id ID) error {
	if err := m.images[id].Erase(); err != nil {
		return ferr.ErrFlashEraseFailed
	}

	return m.transition(id, StatusEmpty, [32]byte{})
}

// NoteBootAttempt increments slot id's boot-attempt counter and returns
// the new count. The loader calls this immediately before handing
// control to the slot's image, so a boot that never reaches
// MarkBootOK leaves the increment behind as evidence of the failure.
func (m *Manager) NoteBootAttempt(id ID) (uint8, error) {
	cur, err := m.State(id)
	if err != nil {
		return 0, err
	}

	next := cur
	next.Generation++
	next.BootAttempts++

	if err := m.records[id].write(next); err != nil {
		return 0, err
	}

	return next.BootAttempts, nil
}

// MarkBootOK clears slot id's boot-attempt counter. The running
// application calls this once it considers itself healthy; until then,
// every reset keeps counting toward the fallback threshold.
func (m *Manager) MarkBootOK(id ID) error {
	cur, err := m.State(id)
	if err != nil {
		return err
	}

	if cur.BootAttempts == 0 {
		return nil
	}

	next := cur
	next.Generation++
	next.BootAttempts = 0

	return m.records[id].write(next)
}

// Revert demotes slot id to REJECTED and reactivates the other slot,
// undoing the most recent swap after the new image failed to boot. It
// fails with ferr.ErrStorageExhausted when the other slot holds nothing
// to fall back to.
func (m *Manager) Revert(id ID) error {
	cur, err := m.State(id)
	if err != nil {
		return err
	}

	otherRec, err := m.State(other(id))
	if err != nil {
		return err
	}

	if otherRec.Status != StatusRejected && otherRec.Status != StatusValid {
		return ferr.ErrStorageExhausted
	}

	if err := m.transition(id, StatusRejected, cur.ImageHash); err != nil {
		return err
	}

	return m.transition(other(id), StatusActive, otherRec.ImageHash)
}

// ActiveSlot reports which slot the loader should boot: the slot whose
// record is ACTIVE, preferring the one with the greater generation if
// both somehow claim ACTIVE (should not happen in a correctly operated
// system, but the loader must pick deterministically rather than panic).
func (m *Manager) ActiveSlot() (ID, bool, error) {
	recA, err := m.State(SlotA)
	if err != nil {
		return 0, false, err
	}

	recB, err := m.State(SlotB)
	if err != nil {
		return 0, false, err
	}

	switch {
	case recA.Status == StatusActive && recB.Status == StatusActive:
		if recA.Generation >= recB.Generation {
			return SlotA, true, nil
		}

		return SlotB, true, nil
	case recA.Status == StatusActive:
		return SlotA, true, nil
	case recB.Status == StatusActive:
		return SlotB, true, nil
	default:
		return 0, false, nil
	}
}
