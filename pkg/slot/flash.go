package slot

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/fwupdate/cycloneboot/pkg/ferr"
)

// Flash is the low-level driver contract for sector erase/program/read.
// The package only names the interface it expects; production firmware
// supplies a real MCU backend, tests supply Mem or a fault-injecting
// wrapper.
type Flash interface {
	// SectorSize returns the fixed erase/program granularity in bytes.
	SectorSize() int
	// NumSectors returns the number of addressable sectors.
	NumSectors() int
	// EraseSector erases sector idx to its erased-state fill value.
	EraseSector(idx int) error
	// ProgramSector writes data (must be <= SectorSize bytes) starting at
	// the beginning of sector idx. The sector must have been erased since
	// its last program to behave like real NOR/NAND flash.
	ProgramSector(idx int, data []byte) error
	// ReadSector returns a copy of sector idx's current contents.
	ReadSector(idx int) ([]byte, error)
}

// erasedFill is the byte value flash reads as after an erase, matching
// the convention of the NOR/NAND parts the original firmware targets.
const erasedFill = 0xFF

// Mem is an in-memory Flash used by tests and the non-hardware reference
// backend. It is not durable across process restarts; FileBacked is used
// where that matters.
type Mem struct {
	sectorSize int
	sectors    [][]byte
}

// NewMem creates a Mem with the given sector geometry, fully erased.
func NewMem(sectorSize, numSectors int) *Mem {
	m := &Mem{sectorSize: sectorSize, sectors: make([][]byte, numSectors)}
	for i := range m.sectors {
		m.sectors[i] = fill(sectorSize)
	}

	return m
}

func fill(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = erasedFill
	}

	return b
}

func (m *Mem) SectorSize() int { return m.sectorSize }
func (m *Mem) NumSectors() int { return len(m.sectors) }

func (m *Mem) checkIdx(idx int) error {
	if idx < 0 || idx >= len(m.sectors) {
		return ferr.ErrFlashProgramFailed
	}

	return nil
}

func (m *Mem) EraseSector(idx int) error {
	if err := m.checkIdx(idx); err != nil {
		return ferr.ErrFlashEraseFailed
	}

	m.sectors[idx] = fill(m.sectorSize)

	return nil
}

func (m *Mem) ProgramSector(idx int, data []byte) error {
	if err := m.checkIdx(idx); err != nil {
		return err
	}

	if len(data) > m.sectorSize {
		return ferr.ErrStorageExhausted
	}

	copy(m.sectors[idx], data)

	return nil
}

func (m *Mem) ReadSector(idx int) ([]byte, error) {
	if err := m.checkIdx(idx); err != nil {
		return nil, err
	}

	out := make([]byte, m.sectorSize)
	copy(out, m.sectors[idx])

	return out, nil
}

// FileBacked is a Flash that is durable across process restarts: each
// sector is one file in dir, and every EraseSector/ProgramSector call
// lands via github.com/natefinch/atomic's rename-based commit, so a
// process killed mid-write leaves the previous sector contents intact
// rather than a half-written file. Used where the record sector
// genuinely needs to survive a restart, e.g. cmd/imgtool's device
// simulation; Mem remains the default for tests that don't care.
type FileBacked struct {
	dir        string
	sectorSize int
	numSectors int
}

// NewFileBacked opens (creating if necessary) a FileBacked flash rooted
// at dir with the given sector geometry. Sectors missing on disk are
// erased on open, matching a never-provisioned device's blank flash.
func NewFileBacked(dir string, sectorSize, numSectors int) (*FileBacked, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, ferr.ErrFlashProgramFailed
	}

	f := &FileBacked{dir: dir, sectorSize: sectorSize, numSectors: numSectors}

	for idx := 0; idx < numSectors; idx++ {
		if _, err := os.Stat(f.path(idx)); os.IsNotExist(err) {
			if err := f.EraseSector(idx); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}

func (f *FileBacked) path(idx int) string {
	return filepath.Join(f.dir, fmt.Sprintf("sector%04d.bin", idx))
}

func (f *FileBacked) SectorSize() int { return f.sectorSize }
func (f *FileBacked) NumSectors() int { return f.numSectors }

func (f *FileBacked) checkIdx(idx int) error {
	if idx < 0 || idx >= f.numSectors {
		return ferr.ErrFlashProgramFailed
	}

	return nil
}

func (f *FileBacked) EraseSector(idx int) error {
	if err := f.checkIdx(idx); err != nil {
		return ferr.ErrFlashEraseFailed
	}

	if err := atomic.WriteFile(f.path(idx), bytes.NewReader(fill(f.sectorSize))); err != nil {
		return ferr.ErrFlashEraseFailed
	}

	return nil
}

// ProgramSector reads the sector's current (erased or previously
// programmed) contents, overlays data at the start, and atomically
// rewrites the whole sector file — the file-backed analog of real NOR
// flash only ever clearing bits within a sector that was erased since
// its last program.
func (f *FileBacked) ProgramSector(idx int, data []byte) error {
	if err := f.checkIdx(idx); err != nil {
		return err
	}

	if len(data) > f.sectorSize {
		return ferr.ErrStorageExhausted
	}

	cur, err := f.ReadSector(idx)
	if err != nil {
		return ferr.ErrFlashProgramFailed
	}

	copy(cur, data)

	if err := atomic.WriteFile(f.path(idx), bytes.NewReader(cur)); err != nil {
		return ferr.ErrFlashProgramFailed
	}

	return nil
}

func (f *FileBacked) ReadSector(idx int) ([]byte, error) {
	if err := f.checkIdx(idx); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path(idx)) //nolint:gosec // path is built from a bounded sector index
	if err != nil {
		return nil, ferr.ErrFlashProgramFailed
	}

	if len(data) != f.sectorSize {
		return nil, ferr.ErrFlashProgramFailed
	}

	return data, nil
}
