package slot

// pingPong owns one pair of mirror sectors holding a single Record,
// written alternately so that the copy with the greater generation (and
// a valid CRC) is always authoritative, and a torn write can only ever
// land on the sector not currently authoritative.
type pingPong struct {
	flash      Flash
	sectorA    int
	sectorB    int
	lastWriter int // index (0=sectorA, 1=sectorB) of the sector last written, -1 if unknown
}

func newPingPong(flash Flash, sectorA, sectorB int) *pingPong {
	return &pingPong{flash: flash, sectorA: sectorA, sectorB: sectorB, lastWriter: -1}
}

// read returns the authoritative record: whichever of the two mirror
// sectors validates and has the greater generation. ErrNoValidRecord is
// returned only if neither sector holds a valid record.
func (p *pingPong) read() (Record, error) {
	recA, okA := p.readSector(p.sectorA)
	recB, okB := p.readSector(p.sectorB)

	switch {
	case okA && okB:
		if recA.Generation >= recB.Generation {
			p.lastWriter = 0

			return recA, nil
		}

		p.lastWriter = 1

		return recB, nil
	case okA:
		p.lastWriter = 0

		return recA, nil
	case okB:
		p.lastWriter = 1

		return recB, nil
	default:
		return Record{}, ErrNoValidRecord
	}
}

func (p *pingPong) readSector(idx int) (Record, bool) {
	buf, err := p.flash.ReadSector(idx)
	if err != nil {
		return Record{}, false
	}

	return decodeRecord(buf)
}

// write persists rec to whichever mirror sector is NOT currently
// authoritative, erasing it first. The caller is responsible for setting
// rec.Generation to one greater than the previously-read generation;
// write does not read-modify-write itself so that callers can implement
// idempotent retries (armSwap; armSwap() with the same target record
// must not bump the generation twice).
func (p *pingPong) write(rec Record) error {
	target := p.sectorB
	next := 1

	if p.lastWriter == 1 {
		target = p.sectorA
		next = 0
	}

	if err := p.flash.EraseSector(target); err != nil {
		return err
	}

	if err := p.flash.ProgramSector(target, encodeRecord(rec, p.flash.SectorSize())); err != nil {
		return err
	}

	p.lastWriter = next

	return nil
}
