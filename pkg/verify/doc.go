// Package verify implements the streaming image-verification engine: the
// heart of the on-device BootManager. It is single-pass and
// single-threaded. Its memory footprint is bounded by the largest
// primitive's internal state plus one trailer's worth of buffer,
// independent of the image size being verified.
//
// The engine never trusts a byte before its ciphertext has been folded
// into the running integrity digest and MAC: hashing and authentication
// happen over ciphertext as it arrives, decryption and flash programming
// happen after, and nothing is accepted until every enabled trailer
// section has validated.
package verify
