package object

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/odvcencio/minigit/pkg/errkind"
)

// UnpackResult summarizes one Unpack call.
type UnpackResult struct {
	Header PackHeader
	// Hashes lists every object written, in pack order.
	Hashes []Hash
	// Checksum is the verified trailer, or "" when the pack had none.
	Checksum Hash
}

// unpackContext is the decode state of a single Unpack call. The offset
// map lets ofs_delta records find their base; it never outlives the call.
type unpackContext struct {
	store   *Store
	data    []byte
	cursor  int
	offsets map[int]Hash
}

// Unpack decodes a version 2 pack and writes every object it contains into
// store. Delta records are reconstructed against their base before being
// written under the base's type.
//
// Records are processed in order and written as they are decoded, so a
// failure part-way leaves the earlier objects in the store. A trailing SHA-1
// checksum is verified when present.
func Unpack(store *Store, data []byte) (*UnpackResult, error) {
	header, err := ParsePackHeader(data)
	if err != nil {
		return nil, err
	}

	uc := &unpackContext{
		store:   store,
		data:    data,
		cursor:  packHeaderSize,
		offsets: make(map[int]Hash, header.NumObjects),
	}
	result := &UnpackResult{
		Header: header,
		Hashes: make([]Hash, 0, header.NumObjects),
	}

	for i := uint32(0); i < header.NumObjects; i++ {
		start := uc.cursor
		h, err := uc.next()
		if err != nil {
			return result, errkind.Wrap(errkind.MalformedPack, err, fmt.Sprintf("unpack entry %d at offset %d", i, start))
		}
		uc.offsets[start] = h
		result.Hashes = append(result.Hashes, h)
	}

	checksum, err := uc.verifyTrailer()
	if err != nil {
		return result, err
	}
	result.Checksum = checksum
	return result, nil
}

// next decodes the record at the cursor, writes it and returns its hash.
func (uc *unpackContext) next() (Hash, error) {
	start := uc.cursor
	packType, size, n, ok := decodePackEntryHeader(uc.data[uc.cursor:])
	if !ok {
		return "", errkind.Errorf(errkind.MalformedPack, "entry header truncated")
	}
	uc.cursor += n

	switch packType {
	case PackCommit, PackTree, PackBlob, PackTag:
		objType, _ := packType.objectType()
		payload, err := uc.inflate(size)
		if err != nil {
			return "", err
		}
		return uc.store.Write(objType, payload)

	case PackRefDelta:
		if len(uc.data)-uc.cursor < HashSize {
			return "", errkind.Errorf(errkind.MalformedPack, "ref_delta base hash truncated")
		}
		base := HashFromRaw(uc.data[uc.cursor : uc.cursor+HashSize])
		uc.cursor += HashSize
		return uc.resolveDelta(base, size)

	case PackOfsDelta:
		distance, n, err := decodeOfsDeltaDistance(uc.data[uc.cursor:])
		if err != nil {
			return "", errkind.Errorf(errkind.MalformedPack, "%s", err)
		}
		uc.cursor += n
		if distance == 0 || distance > uint64(start) {
			return "", errkind.Errorf(errkind.MalformedPack, "ofs_delta distance %d out of range", distance)
		}
		baseOffset := start - int(distance)
		base, ok := uc.offsets[baseOffset]
		if !ok {
			return "", errkind.Errorf(errkind.ObjectNotFound, "ofs_delta base: no record starts at offset %d", baseOffset)
		}
		return uc.resolveDelta(base, size)

	default:
		return "", errkind.Errorf(errkind.UnsupportedObjectType, "unsupported pack object type %d", packType)
	}
}

// resolveDelta inflates a delta stream of the given size, applies it to
// base and writes the result with the base's type.
func (uc *unpackContext) resolveDelta(base Hash, size uint64) (Hash, error) {
	delta, err := uc.inflate(size)
	if err != nil {
		return "", err
	}
	baseType, baseData, err := uc.store.Read(base)
	if err != nil {
		return "", errkind.Wrap(errkind.ObjectNotFound, err, "delta base "+string(base))
	}
	target, err := applyDelta(baseData, delta)
	if err != nil {
		return "", errkind.Errorf(errkind.MalformedPack, "delta against %s: %s", base, err)
	}
	return uc.store.Write(baseType, target)
}

// inflate decompresses the zlib stream at the cursor and advances past the
// bytes zlib actually consumed. The inflated length must equal size.
func (uc *unpackContext) inflate(size uint64) ([]byte, error) {
	if uc.cursor >= len(uc.data) {
		return nil, errkind.Errorf(errkind.MalformedPack, "missing compressed payload")
	}
	sub := bytes.NewReader(uc.data[uc.cursor:])
	zr, err := zlib.NewReader(sub)
	if err != nil {
		return nil, errkind.Errorf(errkind.MalformedPack, "zlib header: %s", err)
	}
	var buf bytes.Buffer
	if size < 1<<26 {
		buf.Grow(int(size))
	}
	// One byte past size is enough to detect an oversized stream.
	if _, err := io.Copy(&buf, io.LimitReader(zr, int64(size)+1)); err != nil {
		_ = zr.Close()
		return nil, errkind.Errorf(errkind.MalformedPack, "decompress: %s", err)
	}
	if uint64(buf.Len()) != size {
		_ = zr.Close()
		return nil, errkind.Errorf(errkind.MalformedPack, "size mismatch: header=%d decoded=%d", size, buf.Len())
	}
	// Drain to the end of the deflate stream so the adler32 trailer is read
	// and the consumed count is exact.
	if _, err := io.Copy(io.Discard, zr); err != nil {
		_ = zr.Close()
		return nil, errkind.Errorf(errkind.MalformedPack, "decompress: %s", err)
	}
	if err := zr.Close(); err != nil {
		return nil, errkind.Errorf(errkind.MalformedPack, "close zlib stream: %s", err)
	}
	uc.cursor += len(uc.data[uc.cursor:]) - sub.Len()
	return buf.Bytes(), nil
}

// verifyTrailer checks the SHA-1 trailer when at least HashSize bytes
// remain after the last record. Packs without a trailer are accepted.
func (uc *unpackContext) verifyTrailer() (Hash, error) {
	rest := uc.data[uc.cursor:]
	if len(rest) < HashSize {
		return "", nil
	}
	sum := sha1.Sum(uc.data[:uc.cursor])
	if !bytes.Equal(sum[:], rest[:HashSize]) {
		return "", errkind.Errorf(errkind.MalformedPack, "pack checksum mismatch: trailer %s, computed %s",
			HashFromRaw(rest[:HashSize]), HashFromRaw(sum[:]))
	}
	return HashFromRaw(sum[:]), nil
}
