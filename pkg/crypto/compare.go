package crypto

import "crypto/subtle"

// ConstantTimeEqual reports whether a and b hold identical bytes, in time
// independent of where they first differ. Differing
// lengths are not a secret in this protocol — every trailer section's
// length is fixed by the header's algorithm selector, which is public —
// so a length mismatch short-circuits to false without comparing bytes.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	return subtle.ConstantTimeCompare(a, b) == 1
}
