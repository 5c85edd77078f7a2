package object

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/zlib"
)

type packCountedWriter struct {
	w io.Writer
	n uint64
}

func (cw *packCountedWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}

func deflatePackPayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PackWriter writes version 2 packs. Entries are zlib-compressed and the
// trailer is the SHA-1 of every byte before it.
type PackWriter struct {
	out      io.Writer
	hasher   hash.Hash
	hashedW  io.Writer
	counter  *packCountedWriter
	expected uint32
	written  uint32
	finished bool
}

// NewPackWriter writes the pack header for numObjects entries and returns
// a writer for them.
func NewPackWriter(out io.Writer, numObjects uint32) (*PackWriter, error) {
	hasher := sha1.New()
	counter := &packCountedWriter{w: out}
	pw := &PackWriter{
		out:      out,
		hasher:   hasher,
		hashedW:  io.MultiWriter(counter, hasher),
		counter:  counter,
		expected: numObjects,
	}

	header := PackHeader{Version: supportedPackVersion, NumObjects: numObjects}
	if _, err := pw.hashedW.Write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("write pack header: %w", err)
	}
	return pw, nil
}

// CurrentOffset is the offset the next entry will start at.
func (p *PackWriter) CurrentOffset() uint64 {
	return p.counter.n
}

func (p *PackWriter) checkWritable() error {
	if p.finished {
		return fmt.Errorf("pack writer already finished")
	}
	if p.written >= p.expected {
		return fmt.Errorf("pack object count exceeded: expected %d", p.expected)
	}
	return nil
}

// WriteObject appends a full (non-delta) entry and returns its offset.
func (p *PackWriter) WriteObject(objType ObjectType, data []byte) (uint64, error) {
	packType, ok := packTypeOf(objType)
	if !ok {
		return 0, fmt.Errorf("cannot pack object type %s", objType)
	}
	offset := p.CurrentOffset()
	return offset, p.WriteEntry(packType, data)
}

// WriteEntry appends an entry with an arbitrary type code. Delta codes need
// their base reference, so they go through WriteOfsDelta and WriteRefDelta.
func (p *PackWriter) WriteEntry(packType PackObjectType, data []byte) error {
	if packType == PackOfsDelta || packType == PackRefDelta {
		return fmt.Errorf("%s entries need a base; use WriteOfsDelta or WriteRefDelta", packType)
	}
	return p.writeEntry(packType, nil, data)
}

// WriteOfsDelta appends an ofs_delta entry whose base starts at baseOffset.
// delta is a complete delta stream, for example from EncodeDelta.
func (p *PackWriter) WriteOfsDelta(baseOffset uint64, delta []byte) error {
	current := p.CurrentOffset()
	if baseOffset >= current {
		return fmt.Errorf("base offset %d must be before current offset %d", baseOffset, current)
	}
	return p.writeEntry(PackOfsDelta, encodeOfsDeltaDistance(current-baseOffset), delta)
}

// WriteRefDelta appends a ref_delta entry against the object named base.
func (p *PackWriter) WriteRefDelta(base Hash, delta []byte) error {
	raw, err := base.Raw()
	if err != nil {
		return fmt.Errorf("ref_delta base: %w", err)
	}
	return p.writeEntry(PackRefDelta, raw[:], delta)
}

// writeEntry emits the type+size header, the base reference (if any) and
// the compressed payload.
func (p *PackWriter) writeEntry(packType PackObjectType, baseRef, data []byte) error {
	if err := p.checkWritable(); err != nil {
		return err
	}
	compressed, err := deflatePackPayload(data)
	if err != nil {
		return fmt.Errorf("compress %s entry: %w", packType, err)
	}

	if _, err := p.hashedW.Write(encodePackEntryHeader(packType, uint64(len(data)))); err != nil {
		return fmt.Errorf("write %s entry header: %w", packType, err)
	}
	if len(baseRef) > 0 {
		if _, err := p.hashedW.Write(baseRef); err != nil {
			return fmt.Errorf("write %s base reference: %w", packType, err)
		}
	}
	if _, err := p.hashedW.Write(compressed); err != nil {
		return fmt.Errorf("write %s entry payload: %w", packType, err)
	}
	p.written++
	return nil
}

// Finish checks the entry count, writes the trailer and returns it.
func (p *PackWriter) Finish() (Hash, error) {
	if p.finished {
		return "", fmt.Errorf("pack writer already finished")
	}
	if p.written != p.expected {
		return "", fmt.Errorf("pack object count mismatch: wrote %d, expected %d", p.written, p.expected)
	}
	sum := p.hasher.Sum(nil)
	if _, err := p.out.Write(sum); err != nil {
		return "", fmt.Errorf("write pack trailer: %w", err)
	}
	p.finished = true
	return HashFromRaw(sum), nil
}
