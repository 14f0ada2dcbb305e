// Package crypto is the streaming façade over the cryptographic primitives
// the update pipeline needs: hashing, MAC, block-cipher decryption and
// encryption, and signature verify/sign. Every primitive exposes the same
// shape: construct for one algorithm, feed bytes incrementally, finalize
// once.
//
// This is the only place concrete algorithms are named. Every other
// package in the module is parametric over these interfaces, constructed
// from a tagged image.*Algo selector rather than a virtual dispatch
// table.
//
// The backend is the Go standard library: crypto/sha256, crypto/aes and
// friends already are the streaming contract the pipeline needs, not a
// hand-rolled replacement for a missing third-party dependency.
package crypto
