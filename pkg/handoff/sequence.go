package handoff

import "github.com/fwupdate/cycloneboot/pkg/image"

// Execute runs the six-step handoff against j, jumping to
// desc's entry point with the vector table relocated to vtorBase (the
// active slot's base address in the device's memory map). Any error
// aborts the sequence before the point of no return; a verified slot
// should never actually produce one, so this path exists for the
// Software backend's tests rather than for production recovery logic.
func Execute(j Jumper, desc image.AppDescriptor, vtorBase uint32) error {
	if err := j.LockFlash(); err != nil {
		return err
	}

	if err := j.QuiesceInterrupts(); err != nil {
		return err
	}

	if err := j.SwitchToMainStack(); err != nil {
		return err
	}

	if err := j.SetVectorTable(vtorBase); err != nil {
		return err
	}

	if err := j.EnableInterrupts(); err != nil {
		return err
	}

	return j.Jump(desc.StackTop, desc.EntryPoint)
}
