// Package slot implements the A/B flash-slot abstraction: translating
// logical slot read/write/erase into flash operations, and persisting
// each slot's state record crash-safely via a two-sector ping-pong
// scheme.
//
// State record storage uses the ping-pong pattern because it is the
// language-neutral way to make single-writer metadata updates
// reset-safe on raw flash: writes alternate
// between two mirror sectors with a monotonic generation counter, so a
// torn write can only ever corrupt the sector not currently considered
// authoritative.
package slot
