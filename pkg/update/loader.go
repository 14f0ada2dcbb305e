package update

import (
	"errors"

	"github.com/fwupdate/cycloneboot/pkg/handoff"
	"github.com/fwupdate/cycloneboot/pkg/image"
	"github.com/fwupdate/cycloneboot/pkg/slot"
)

// ErrNoBootableImage indicates neither slot holds an image the loader can
// hand control to.
var ErrNoBootableImage = errors.New("update: no bootable image")

// defaultMaxBootAttempts is how many consecutive resets may select the
// active slot without the application clearing the counter before the
// loader falls back: the first two resets boot the new image, the third
// finds the counter at this limit and reverts.
const defaultMaxBootAttempts = 2

// Loader is the boot-time selector: it reads both slot records, picks
// the active slot, sanity-checks the image stored there, and hands
// control to it through the handoff sequence. When the active image has
// burned through its boot attempts without ever reporting healthy, the
// loader reverts to the previously active slot instead.
type Loader struct {
	manager *slot.Manager
	jumper  handoff.Jumper

	// vtorBase maps each slot to the vector-table base address its image
	// executes from (platform config).
	vtorBase [2]uint32

	maxBootAttempts uint8
}

// NewLoader constructs a Loader over manager and jumper. vtorBaseA and
// vtorBaseB are the two slots' execution base addresses.
func NewLoader(manager *slot.Manager, jumper handoff.Jumper, vtorBaseA, vtorBaseB uint32) *Loader {
	return &Loader{
		manager:         manager,
		jumper:          jumper,
		vtorBase:        [2]uint32{vtorBaseA, vtorBaseB},
		maxBootAttempts: defaultMaxBootAttempts,
	}
}

// Boot runs one boot-time selection and jump. On real hardware it does
// not return on success; with the Software jumper it returns nil after
// the recorded sequence completes.
func (l *Loader) Boot() error {
	id, ok, err := l.manager.ActiveSlot()
	if err != nil {
		return err
	}

	if !ok {
		return ErrNoBootableImage
	}

	rec, err := l.manager.State(id)
	if err != nil {
		return err
	}

	if rec.BootAttempts >= l.maxBootAttempts {
		if err := l.manager.Revert(id); err != nil {
			return err
		}

		id = otherSlot(id)
	}

	desc, err := l.readDescriptor(id)
	if err != nil {
		return err
	}

	if _, err := l.manager.NoteBootAttempt(id); err != nil {
		return err
	}

	return handoff.Execute(l.jumper, desc, l.vtorBase[id])
}

// MarkBootOK clears the active slot's boot-attempt counter. The running
// application calls this once it considers itself healthy; an image that
// never does is reverted after its attempts run out.
func (l *Loader) MarkBootOK() error {
	id, ok, err := l.manager.ActiveSlot()
	if err != nil {
		return err
	}

	if !ok {
		return ErrNoBootableImage
	}

	return l.manager.MarkBootOK(id)
}

// readDescriptor is the loader's quick sanity check on the slot's
// contents before jumping: the descriptor must decode (magic intact) and
// describe an image that fits the slot. This is not a security decision
// — the image was cryptographically verified when it was written — only
// a guard against jumping into a slot whose flash was disturbed since.
func (l *Loader) readDescriptor(id slot.ID) (image.AppDescriptor, error) {
	store := l.manager.Image(id)

	buf, err := store.ReadAt(0, image.DescriptorSize)
	if err != nil {
		return image.AppDescriptor{}, err
	}

	desc, err := image.DecodeAppDescriptor(buf)
	if err != nil {
		return image.AppDescriptor{}, err
	}

	if int64(desc.ImageSize) > store.Size() || desc.ImageSize < image.DescriptorSize {
		return image.AppDescriptor{}, ErrNoBootableImage
	}

	return desc, nil
}

func otherSlot(id slot.ID) slot.ID {
	if id == slot.SlotA {
		return slot.SlotB
	}

	return slot.SlotA
}
