package object

import (
	"encoding/binary"

	"github.com/odvcencio/minigit/pkg/errkind"
)

const (
	packHeaderSize       = 12
	supportedPackVersion = 2
)

var packMagic = [4]byte{'P', 'A', 'C', 'K'}

// PackObjectType is the 3-bit type code in a pack entry header.
type PackObjectType uint8

const (
	PackCommit   PackObjectType = 1
	PackTree     PackObjectType = 2
	PackBlob     PackObjectType = 3
	PackTag      PackObjectType = 4
	PackOfsDelta PackObjectType = 6
	PackRefDelta PackObjectType = 7
)

func (t PackObjectType) String() string {
	switch t {
	case PackCommit:
		return "commit"
	case PackTree:
		return "tree"
	case PackBlob:
		return "blob"
	case PackTag:
		return "tag"
	case PackOfsDelta:
		return "ofs_delta"
	case PackRefDelta:
		return "ref_delta"
	default:
		return "unknown"
	}
}

// objectType maps a non-delta pack type onto the object model.
func (t PackObjectType) objectType() (ObjectType, bool) {
	switch t {
	case PackCommit:
		return TypeCommit, true
	case PackTree:
		return TypeTree, true
	case PackBlob:
		return TypeBlob, true
	case PackTag:
		return TypeTag, true
	default:
		return TypeInvalid, false
	}
}

// packTypeOf is the inverse of objectType.
func packTypeOf(t ObjectType) (PackObjectType, bool) {
	switch t {
	case TypeCommit:
		return PackCommit, true
	case TypeTree:
		return PackTree, true
	case TypeBlob:
		return PackBlob, true
	case TypeTag:
		return PackTag, true
	default:
		return 0, false
	}
}

// PackHeader is the fixed 12-byte pack header:
//
//	0..3   "PACK"
//	4..7   version, big-endian
//	8..11  object count, big-endian
type PackHeader struct {
	Version    uint32
	NumObjects uint32
}

// Marshal serializes the header.
func (h PackHeader) Marshal() []byte {
	buf := make([]byte, packHeaderSize)
	copy(buf[:4], packMagic[:])
	binary.BigEndian.PutUint32(buf[4:8], h.Version)
	binary.BigEndian.PutUint32(buf[8:12], h.NumObjects)
	return buf
}

// ParsePackHeader validates and decodes the first 12 bytes of a pack. A
// short buffer or wrong magic is MalformedPack; any version other than 2 is
// UnsupportedPackVersion.
func ParsePackHeader(data []byte) (PackHeader, error) {
	if len(data) < packHeaderSize {
		return PackHeader{}, errkind.Errorf(errkind.MalformedPack, "pack header too short: got %d bytes", len(data))
	}
	if string(data[:4]) != string(packMagic[:]) {
		return PackHeader{}, errkind.Errorf(errkind.MalformedPack, "invalid pack magic %q", data[:4])
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version != supportedPackVersion {
		return PackHeader{}, errkind.Errorf(errkind.UnsupportedPackVersion, "unsupported pack version %d", version)
	}
	return PackHeader{
		Version:    version,
		NumObjects: binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// encodePackEntryHeader encodes the type+size header of a pack entry: the
// first byte carries a continuation bit, 3 type bits and the low 4 size
// bits; each following byte carries 7 more size bits, little-endian.
func encodePackEntryHeader(objType PackObjectType, size uint64) []byte {
	first := byte(objType&0x7)<<4 | byte(size&0x0f)
	size >>= 4

	out := make([]byte, 0, 10)
	if size > 0 {
		first |= 0x80
	}
	out = append(out, first)
	for size > 0 {
		next := byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			next |= 0x80
		}
		out = append(out, next)
	}
	return out
}

// decodePackEntryHeader decodes a pack entry header and returns the type,
// the inflated size and the number of header bytes. ok is false if data
// ends before the header does.
func decodePackEntryHeader(data []byte) (objType PackObjectType, size uint64, n int, ok bool) {
	if len(data) == 0 {
		return 0, 0, 0, false
	}
	b := data[0]
	objType = PackObjectType((b >> 4) & 0x7)
	size = uint64(b & 0x0f)
	shift := uint(4)
	n = 1
	for b&0x80 != 0 {
		if n >= len(data) || shift > 57 {
			return objType, size, n, false
		}
		b = data[n]
		size |= uint64(b&0x7f) << shift
		shift += 7
		n++
	}
	return objType, size, n, true
}
