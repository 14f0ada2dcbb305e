package slot

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// ErrNoValidRecord indicates neither mirror sector of a ping-pong pair
// holds a record with valid magic and CRC — both copies are corrupt,
// which should only be reachable on a blank/never-provisioned device.
var ErrNoValidRecord = errors.New("slot: no valid record in ping-pong pair")

// ID identifies one of the two application slots.
type ID uint8

const (
	SlotA ID = iota
	SlotB
)

// Status is the lifecycle state of one slot's image:
// EMPTY -> WRITING -> VALID -> ACTIVE, and ACTIVE -> REJECTED when a
// newer slot is promoted.
type Status uint8

const (
	StatusEmpty Status = iota
	StatusWriting
	StatusValid
	StatusActive
	StatusRejected
)

const recordMagic uint32 = 0x53524543 // "SREC"

// recordWireSize is the encoded size before sector padding:
// magic(4) + generation(4) + status(1) + slot(1) + imageHash(32) +
// bootAttempts(1) + crc32(4).
const recordWireSize = 4 + 4 + 1 + 1 + 32 + 1 + 4

// Record is one slot's state record. Each application slot
// owns a dedicated ping-pong pair of sectors holding its own Record; the
// Slot field is the record's self-identity, letting a reader detect a
// sector pair that was physically swapped or misconfigured.
//
// BootAttempts counts consecutive resets that selected this slot without
// the application clearing the counter (Manager.MarkBootOK). The loader
// reverts to the previously active slot once it crosses the fallback
// threshold, so an image that wedges before reaching its own main loop
// cannot brick the device.
type Record struct {
	Generation   uint32
	Status       Status
	Slot         ID
	ImageHash    [32]byte
	BootAttempts uint8
}

// encodeRecord serializes r, padded with zero bytes to sectorSize.
func encodeRecord(r Record, sectorSize int) []byte {
	buf := make([]byte, sectorSize)

	binary.LittleEndian.PutUint32(buf[0:], recordMagic)
	binary.LittleEndian.PutUint32(buf[4:], r.Generation)
	buf[8] = byte(r.Status)
	buf[9] = byte(r.Slot)
	copy(buf[10:42], r.ImageHash[:])
	buf[42] = r.BootAttempts

	crc := crc32.ChecksumIEEE(buf[0:43])
	binary.LittleEndian.PutUint32(buf[43:47], crc)

	return buf
}

// decodeRecord parses a sector's worth of bytes into a Record. It returns
// false (not an error) when the magic or CRC do not validate — that is
// the expected, non-exceptional shape of "this mirror sector lost the
// race" in the ping-pong protocol, not a hard failure.
func decodeRecord(buf []byte) (Record, bool) {
	if len(buf) < recordWireSize {
		return Record{}, false
	}

	if binary.LittleEndian.Uint32(buf[0:]) != recordMagic {
		return Record{}, false
	}

	wantCRC := binary.LittleEndian.Uint32(buf[43:47])
	if crc32.ChecksumIEEE(buf[0:43]) != wantCRC {
		return Record{}, false
	}

	r := Record{
		Generation:   binary.LittleEndian.Uint32(buf[4:]),
		Status:       Status(buf[8]),
		Slot:         ID(buf[9]),
		BootAttempts: buf[42],
	}
	copy(r.ImageHash[:], buf[10:42])

	return r, true
}
