package object

import (
	"bytes"
	"fmt"
	"io"
)

const (
	deltaCopyFlag     = 0x80
	deltaMaxInsert    = 0x7f
	deltaDefaultCopy  = 0x10000
	deltaMaxCopyChunk = 0xffffff
)

// appendDeltaVarint appends v as a little-endian base-128 varint, the size
// encoding used at the start of a delta stream.
func appendDeltaVarint(out []byte, v uint64) []byte {
	for v >= 0x80 {
		out = append(out, byte(v)|0x80)
		v >>= 7
	}
	return append(out, byte(v))
}

func readDeltaVarint(r io.ByteReader) (uint64, error) {
	var value uint64
	for shift := uint(0); ; shift += 7 {
		if shift > 63 {
			return 0, fmt.Errorf("delta varint too large")
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, nil
		}
	}
}

// encodeOfsDeltaDistance encodes the backward distance of an ofs_delta base.
// Each continuation step adds one before shifting, so the encoding has no
// redundant forms.
func encodeOfsDeltaDistance(distance uint64) []byte {
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(distance & 0x7f)
	for distance >>= 7; distance > 0; distance >>= 7 {
		distance--
		i--
		tmp[i] = byte(distance&0x7f) | 0x80
	}
	return append([]byte(nil), tmp[i:]...)
}

// decodeOfsDeltaDistance is the inverse of encodeOfsDeltaDistance. It
// returns the distance and the number of bytes read.
func decodeOfsDeltaDistance(data []byte) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("ofs_delta distance truncated")
	}
	c := data[0]
	n := 1
	distance := uint64(c & 0x7f)
	for c&0x80 != 0 {
		if n >= len(data) {
			return 0, 0, fmt.Errorf("ofs_delta distance truncated")
		}
		if distance > (1<<56)-1 {
			return 0, 0, fmt.Errorf("ofs_delta distance overflows")
		}
		c = data[n]
		n++
		distance = ((distance + 1) << 7) | uint64(c&0x7f)
	}
	return distance, n, nil
}

// appendDeltaInsert emits literal bytes as insert instructions of at most
// 127 bytes each.
func appendDeltaInsert(out, lit []byte) []byte {
	for len(lit) > 0 {
		n := len(lit)
		if n > deltaMaxInsert {
			n = deltaMaxInsert
		}
		out = append(out, byte(n))
		out = append(out, lit[:n]...)
		lit = lit[n:]
	}
	return out
}

// appendDeltaCopy emits copy instructions for base[offset:offset+size].
// Only the non-zero offset and size bytes are written; their presence is
// flagged in the low 7 bits of the command byte.
func appendDeltaCopy(out []byte, offset, size uint64) []byte {
	for size > 0 {
		chunk := size
		if chunk > deltaMaxCopyChunk {
			chunk = deltaMaxCopyChunk
		}
		cmd := byte(deltaCopyFlag)
		var args []byte
		for i := uint(0); i < 4; i++ {
			if b := byte(offset >> (8 * i)); b != 0 {
				cmd |= 1 << i
				args = append(args, b)
			}
		}
		for i := uint(0); i < 3; i++ {
			if b := byte(chunk >> (8 * i)); b != 0 {
				cmd |= 1 << (4 + i)
				args = append(args, b)
			}
		}
		out = append(out, cmd)
		out = append(out, args...)
		offset += chunk
		size -= chunk
	}
	return out
}

// EncodeDelta encodes target as a delta stream against base. It copies the
// longest common prefix and suffix from base and inserts the middle
// literally.
func EncodeDelta(base, target []byte) []byte {
	out := appendDeltaVarint(nil, uint64(len(base)))
	out = appendDeltaVarint(out, uint64(len(target)))

	prefix := 0
	for prefix < len(base) && prefix < len(target) && base[prefix] == target[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(base)-prefix && suffix < len(target)-prefix &&
		base[len(base)-1-suffix] == target[len(target)-1-suffix] {
		suffix++
	}

	out = appendDeltaCopy(out, 0, uint64(prefix))
	out = appendDeltaInsert(out, target[prefix:len(target)-suffix])
	out = appendDeltaCopy(out, uint64(len(base)-suffix), uint64(suffix))
	return out
}

// applyDelta reconstructs a target object from base and a delta stream.
// The declared base size must match base and the output must match the
// declared result size.
func applyDelta(base, delta []byte) ([]byte, error) {
	dr := bytes.NewReader(delta)

	baseSize, err := readDeltaVarint(dr)
	if err != nil {
		return nil, fmt.Errorf("delta base size: %w", err)
	}
	if baseSize != uint64(len(base)) {
		return nil, fmt.Errorf("delta base size mismatch: got %d want %d", baseSize, len(base))
	}
	resultSize, err := readDeltaVarint(dr)
	if err != nil {
		return nil, fmt.Errorf("delta result size: %w", err)
	}

	capHint := resultSize
	if limit := uint64(len(base) + len(delta)); capHint > limit {
		capHint = limit
	}
	out := make([]byte, 0, capHint)
	for dr.Len() > 0 {
		cmd, _ := dr.ReadByte()
		switch {
		case cmd&deltaCopyFlag != 0:
			offset, size, err := readDeltaCopyArgs(dr, cmd)
			if err != nil {
				return nil, err
			}
			if offset+size > uint64(len(base)) {
				return nil, fmt.Errorf("delta copy out of bounds: offset %d size %d base %d", offset, size, len(base))
			}
			out = append(out, base[offset:offset+size]...)
		case cmd == 0:
			return nil, fmt.Errorf("invalid delta command 0")
		default:
			start := len(out)
			out = append(out, make([]byte, int(cmd))...)
			if _, err := io.ReadFull(dr, out[start:]); err != nil {
				return nil, fmt.Errorf("delta insert of %d bytes: %w", cmd, err)
			}
		}
		if uint64(len(out)) > resultSize {
			return nil, fmt.Errorf("delta result exceeds declared size %d", resultSize)
		}
	}

	if uint64(len(out)) != resultSize {
		return nil, fmt.Errorf("delta result size mismatch: got %d want %d", len(out), resultSize)
	}
	return out, nil
}

// readDeltaCopyArgs reads the offset and size bytes flagged by cmd. Offset
// bytes are flagged by bits 0..3 and size bytes by bits 4..6; a size of zero
// means 0x10000.
func readDeltaCopyArgs(r io.ByteReader, cmd byte) (offset, size uint64, err error) {
	for i := uint(0); i < 7; i++ {
		if cmd&(1<<i) == 0 {
			continue
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("delta copy argument %d truncated", i)
		}
		if i < 4 {
			offset |= uint64(b) << (8 * i)
		} else {
			size |= uint64(b) << (8 * (i - 4))
		}
	}
	if size == 0 {
		size = deltaDefaultCopy
	}
	return offset, size, nil
}
