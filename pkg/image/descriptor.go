package image

import "github.com/fwupdate/cycloneboot/pkg/ferr"

// AppDescriptor field offsets, bytes from the start of the plaintext body.
const (
	offDescMagic      = 0x00 // uint32
	offEntryPoint     = 0x04 // uint32
	offStackTop       = 0x08 // uint32
	offImageSize      = 0x0C // uint32
	offAppVersion     = 0x10 // [3]uint16 = 6 bytes
	offBuildTime      = 0x16 // uint64
	offDescReserved   = 0x1E // 34 bytes, zero
	descReservedBytes = 34
)

// AppDescriptor is the fixed 64-byte header prefixed to every plaintext
// body, describing the application it carries.
type AppDescriptor struct {
	EntryPoint uint32
	StackTop   uint32
	ImageSize  uint32
	AppVersion Version
	BuildTime  uint64
}

// EncodeAppDescriptor serializes d to a 64-byte slice.
func EncodeAppDescriptor(d AppDescriptor) []byte {
	buf := make([]byte, DescriptorSize)

	putUint32(buf[offDescMagic:], DescriptorMagic)
	putUint32(buf[offEntryPoint:], d.EntryPoint)
	putUint32(buf[offStackTop:], d.StackTop)
	putUint32(buf[offImageSize:], d.ImageSize)

	for i, v := range d.AppVersion {
		putUint16(buf[offAppVersion+i*2:], v)
	}

	putUint64(buf[offBuildTime:], d.BuildTime)

	return buf
}

// DecodeAppDescriptor parses the first 64 bytes of a plaintext body.
func DecodeAppDescriptor(buf []byte) (AppDescriptor, error) {
	if len(buf) < DescriptorSize {
		return AppDescriptor{}, ferr.ErrSizeOutOfBounds
	}

	if getUint32(buf[offDescMagic:]) != DescriptorMagic {
		return AppDescriptor{}, ferr.ErrInvalidMagic
	}

	d := AppDescriptor{
		EntryPoint: getUint32(buf[offEntryPoint:]),
		StackTop:   getUint32(buf[offStackTop:]),
		ImageSize:  getUint32(buf[offImageSize:]),
		BuildTime:  getUint64(buf[offBuildTime:]),
	}

	for i := range d.AppVersion {
		d.AppVersion[i] = getUint16(buf[offAppVersion+i*2:])
	}

	return d, nil
}

// WrapAppDescriptor builds the plaintext body: a 64-byte AppDescriptor
// followed by binary. entryPoint and stackTop are taken from the first 8
// bytes of binary per the ARM-Cortex vector table convention: word 0 is the
// initial main stack pointer, word 1 is the reset handler address.
func WrapAppDescriptor(binary []byte, version Version, buildTime uint64) ([]byte, error) {
	if len(binary) < 8 {
		return nil, ferr.ErrSizeOutOfBounds
	}

	d := AppDescriptor{
		StackTop:   getUint32(binary[0:4]),
		EntryPoint: getUint32(binary[4:8]),
		ImageSize:  uint32(DescriptorSize + len(binary)),
		AppVersion: version,
		BuildTime:  buildTime,
	}

	body := make([]byte, 0, DescriptorSize+len(binary))
	body = append(body, EncodeAppDescriptor(d)...)
	body = append(body, binary...)

	return body, nil
}
