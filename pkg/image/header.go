package image

import "github.com/fwupdate/cycloneboot/pkg/ferr"

// Header field offsets, bytes from the start of the 64-byte header.
//
// The reserved region is 22 bytes (not the 14 a naive field count gives)
// so that the fixed fields land on the byte-exact 64-byte total the wire
// format and the builder's length arithmetic (scenario: 64+64+1024+32 =
// 1184) both require; the extra 8 bytes are unused and must be zero.
const (
	offMagic      = 0x00 // [4]byte
	offHeaderVer  = 0x04 // uint16
	offFlags      = 0x06 // uint16
	offEncAlgo    = 0x08 // uint8
	offHashAlgo   = 0x09 // uint8
	offAuthAlgo   = 0x0A // uint8
	offSigAlgo    = 0x0B // uint8
	offFWVersion  = 0x0C // [3]uint16 = 6 bytes
	offReserved   = 0x12 // 22 bytes, zero
	offPlainLen   = 0x28 // uint32
	offCipherLen  = 0x2C // uint32
	offIV         = 0x30 // [16]byte
	reservedBytes = 22
)

// Version is a 3-component firmware version (major, minor, patch).
type Version [3]uint16

// Less reports whether v is strictly less than other, compared
// lexicographically major, then minor, then patch.
func (v Version) Less(other Version) bool {
	for i := range v {
		if v[i] != other[i] {
			return v[i] < other[i]
		}
	}

	return false
}

// Header is the decoded form of the 64-byte image header.
type Header struct {
	HeaderVer uint16
	Flags     uint16
	EncAlgo   EncAlgo
	HashAlgo  HashAlgo
	AuthAlgo  AuthAlgo
	SigAlgo   SigAlgo
	FWVersion Version
	PlainLen  uint32
	CipherLen uint32
	IV        [16]byte
}

// HasEncryption reports whether the header's cipher selector says the body
// is encrypted. The flag bits are not consulted here.
func (h Header) HasEncryption() bool { return h.EncAlgo != EncNone }

// HasAuth reports whether the header's MAC selector says a MAC trailer
// section is present. The flag bits are not consulted here.
func (h Header) HasAuth() bool { return h.AuthAlgo != AuthNone }

// HasSignature reports whether a signature trailer section is present.
func (h Header) HasSignature() bool { return h.SigAlgo != SigNone }

// HasAntiRollback reports whether the ANTIROLLBACK flag is set.
func (h Header) HasAntiRollback() bool { return h.Flags&FlagAntiRollback != 0 }

// HasVTORAlign reports whether the VTOR_ALIGNED flag is set.
func (h Header) HasVTORAlign() bool { return h.Flags&FlagVTORAligned != 0 }

// computedFlags derives the flags word from the algorithm selectors: each
// flag bit is set iff the corresponding algorithm field is non-NONE, plus
// the caller-supplied antiRollback/vtorAlign intent which have no
// algorithm field to derive from.
func computedFlags(h Header, antiRollback, vtorAlign bool) uint16 {
	var f uint16
	if h.EncAlgo != EncNone {
		f |= FlagEncrypted
	}

	if h.AuthAlgo != AuthNone {
		f |= FlagHasMAC
	}

	if h.SigAlgo != SigNone {
		f |= FlagHasSignature
	}

	if antiRollback {
		f |= FlagAntiRollback
	}

	if vtorAlign {
		f |= FlagVTORAligned
	}

	return f
}

// EncodeHeader serializes h to a 64-byte slice. antiRollback and vtorAlign
// set the two flag bits that have no corresponding algorithm selector.
func EncodeHeader(h Header, antiRollback, vtorAlign bool) []byte {
	buf := make([]byte, HeaderSize)

	putUint32(buf[offMagic:], Magic)
	putUint16(buf[offHeaderVer:], HeaderVersion1)
	putUint16(buf[offFlags:], computedFlags(h, antiRollback, vtorAlign))
	buf[offEncAlgo] = byte(h.EncAlgo)
	buf[offHashAlgo] = byte(h.HashAlgo)
	buf[offAuthAlgo] = byte(h.AuthAlgo)
	buf[offSigAlgo] = byte(h.SigAlgo)

	for i, v := range h.FWVersion {
		putUint16(buf[offFWVersion+i*2:], v)
	}

	putUint32(buf[offPlainLen:], h.PlainLen)
	putUint32(buf[offCipherLen:], h.CipherLen)

	if h.HasEncryption() {
		copy(buf[offIV:offIV+16], h.IV[:])
	}

	return buf
}

// DecodeHeader parses a 64-byte slice into a Header. It validates magic,
// header version, and that every algorithm selector byte names a known
// algorithm; it does not validate cross-field consistency (see
// verify.validateHeader for the full set of rejection rules).
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, ferr.ErrSizeOutOfBounds
	}

	if getUint32(buf[offMagic:]) != Magic {
		return Header{}, ferr.ErrInvalidMagic
	}

	if getUint16(buf[offHeaderVer:]) != HeaderVersion1 {
		return Header{}, ferr.ErrUnsupportedVersion
	}

	h := Header{
		HeaderVer: getUint16(buf[offHeaderVer:]),
		Flags:     getUint16(buf[offFlags:]),
		EncAlgo:   EncAlgo(buf[offEncAlgo]),
		HashAlgo:  HashAlgo(buf[offHashAlgo]),
		AuthAlgo:  AuthAlgo(buf[offAuthAlgo]),
		SigAlgo:   SigAlgo(buf[offSigAlgo]),
		PlainLen:  getUint32(buf[offPlainLen:]),
		CipherLen: getUint32(buf[offCipherLen:]),
	}

	for i := range h.FWVersion {
		h.FWVersion[i] = getUint16(buf[offFWVersion+i*2:])
	}

	copy(h.IV[:], buf[offIV:offIV+16])

	if err := validateAlgoSelectors(h); err != nil {
		return Header{}, err
	}

	return h, nil
}

func validAlgo[T ~uint8](v T, max T) bool { return v <= max }

func validateAlgoSelectors(h Header) error {
	switch {
	case !validAlgo(h.EncAlgo, EncAES256CTR):
		return ferr.ErrUnknownAlgorithm
	case !validAlgo(h.HashAlgo, HashSHA512):
		return ferr.ErrUnknownAlgorithm
	case !validAlgo(h.AuthAlgo, AuthHMACSHA512):
		return ferr.ErrUnknownAlgorithm
	case !validAlgo(h.SigAlgo, SigRSA2048SHA256):
		return ferr.ErrUnknownAlgorithm
	default:
		return nil
	}
}
