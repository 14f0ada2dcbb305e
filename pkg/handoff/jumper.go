package handoff

// Jumper is the per-core backend Execute orchestrates. A real target
// implements it with inline assembly or core-support-package calls;
// Software is the reference backend used off target and in tests.
type Jumper interface {
	// LockFlash disables further flash programming for the remainder of
	// this boot.
	LockFlash() error
	// QuiesceInterrupts masks all interrupts, clears pending interrupt
	// controller flags, and disables SysTick and individual fault
	// handlers.
	QuiesceInterrupts() error
	// SwitchToMainStack copies the current stack pointer to the main
	// stack if execution is not already on it.
	SwitchToMainStack() error
	// SetVectorTable points the vector-table base register at base.
	SetVectorTable(base uint32) error
	// EnableInterrupts re-enables interrupts at the last possible
	// moment before Jump.
	EnableInterrupts() error
	// Jump loads stackTop into SP and transfers control to entryPoint in
	// a single atomic sequence; it does not return on success.
	Jump(stackTop, entryPoint uint32) error
}

// Software is the default backend: it performs no real hardware
// operation and instead records the call sequence, so the orchestration
// can be verified off target.
type Software struct {
	Calls []string
}

func (s *Software) record(name string) {
	s.Calls = append(s.Calls, name)
}

func (s *Software) LockFlash() error {
	s.record("LockFlash")

	return nil
}

func (s *Software) QuiesceInterrupts() error {
	s.record("QuiesceInterrupts")

	return nil
}

func (s *Software) SwitchToMainStack() error {
	s.record("SwitchToMainStack")

	return nil
}

func (s *Software) SetVectorTable(base uint32) error {
	s.record("SetVectorTable")

	return nil
}

func (s *Software) EnableInterrupts() error {
	s.record("EnableInterrupts")

	return nil
}

func (s *Software) Jump(stackTop, entryPoint uint32) error {
	s.record("Jump")

	return nil
}
