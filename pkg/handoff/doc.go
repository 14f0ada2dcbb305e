// Package handoff implements the deterministic MCU-jump sequence that
// hands control from the bootloader to a verified application.
// The sequence itself is architecture-specific (ARM Cortex-M's
// MSR MSP + BX, or equivalent on another core); Jumper is the narrow
// interface a concrete core backend implements, and Execute is the
// orchestration logic that is the same regardless of which backend is
// wired in.
package handoff
