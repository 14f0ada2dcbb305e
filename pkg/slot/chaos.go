package slot

import "github.com/fwupdate/cycloneboot/pkg/ferr"

// PowerCut is a test-only Flash wrapper that simulates a power loss
// partway through a sector program, leaving the sector torn: some prefix
// of the intended bytes landed, the rest reads as whatever was there
// before. It wraps a real Flash the same
// way the reference's crash/chaos filesystem wraps a real [fs.FS].
type PowerCut struct {
	inner Flash
	// cutAfterBytes, if set (via ArmCut), truncates the NEXT ProgramSector
	// call to this many bytes instead of writing the whole payload, then
	// disarms itself — modeling a single power-cut event.
	cutAfterBytes int
	armed         bool
}

// NewPowerCut wraps inner.
func NewPowerCut(inner Flash) *PowerCut { return &PowerCut{inner: inner} }

// ArmCut arms a one-shot power cut: the next ProgramSector call writes
// only the first n bytes of its payload (the rest of the sector keeps
// its pre-write contents) and then the cut disarms.
func (p *PowerCut) ArmCut(n int) {
	p.cutAfterBytes = n
	p.armed = true
}

func (p *PowerCut) SectorSize() int { return p.inner.SectorSize() }
func (p *PowerCut) NumSectors() int { return p.inner.NumSectors() }
func (p *PowerCut) EraseSector(idx int) error { return p.inner.EraseSector(idx) }
func (p *PowerCut) ReadSector(idx int) ([]byte, error) { return p.inner.ReadSector(idx) }

func (p *PowerCut) ProgramSector(idx int, data []byte) error {
	if !p.armed {
		return p.inner.ProgramSector(idx, data)
	}

	p.armed = false

	n := p.cutAfterBytes
	if n > len(data) {
		n = len(data)
	}

	if err := p.inner.ProgramSector(idx, data[:n]); err != nil {
		return err
	}

	return ferr.ErrFlashProgramFailed
}
