package remote

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Pkt-line framing: four lowercase hex digits giving the total packet length
// (including the four digits), then the payload. Lengths 0, 1 and 2 are
// special packets with no payload.
const (
	pktLenSize    = 4
	maxPktPayload = 65516
)

// PacketKind distinguishes data packets from the special packets.
type PacketKind uint8

const (
	PacketData PacketKind = iota
	PacketFlush
	PacketDelim
	PacketResponseEnd
)

var (
	flushPkt = []byte("0000")
	delimPkt = []byte("0001")
)

// PktLineWriter writes pkt-line framed packets.
type PktLineWriter struct {
	w io.Writer
}

func NewPktLineWriter(w io.Writer) *PktLineWriter {
	return &PktLineWriter{w: w}
}

// WritePacket frames payload as one data packet.
func (pw *PktLineWriter) WritePacket(payload []byte) error {
	if len(payload) > maxPktPayload {
		return fmt.Errorf("pkt-line payload too large: %d bytes", len(payload))
	}
	var hdr [pktLenSize]byte
	n := len(payload) + pktLenSize
	const digits = "0123456789abcdef"
	hdr[0] = digits[(n>>12)&0xf]
	hdr[1] = digits[(n>>8)&0xf]
	hdr[2] = digits[(n>>4)&0xf]
	hdr[3] = digits[n&0xf]
	if _, err := pw.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := pw.w.Write(payload)
	return err
}

// WriteLine writes s followed by LF as one data packet.
func (pw *PktLineWriter) WriteLine(s string) error {
	return pw.WritePacket([]byte(s + "\n"))
}

// Flush writes a flush packet (0000).
func (pw *PktLineWriter) Flush() error {
	_, err := pw.w.Write(flushPkt)
	return err
}

// Delim writes a delimiter packet (0001).
func (pw *PktLineWriter) Delim() error {
	_, err := pw.w.Write(delimPkt)
	return err
}

// PktLineReader reads pkt-line framed packets.
type PktLineReader struct {
	r   io.Reader
	hdr [pktLenSize]byte
}

func NewPktLineReader(r io.Reader) *PktLineReader {
	return &PktLineReader{r: r}
}

// ReadPacket returns the next packet. The payload is only set for data
// packets. io.EOF is returned when the stream ends on a packet boundary.
func (pr *PktLineReader) ReadPacket() (PacketKind, []byte, error) {
	if _, err := io.ReadFull(pr.r, pr.hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, nil, fmt.Errorf("pkt-line length truncated")
		}
		return 0, nil, err
	}
	n, err := strconv.ParseUint(string(pr.hdr[:]), 16, 16)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid pkt-line length %q", pr.hdr[:])
	}
	switch n {
	case 0:
		return PacketFlush, nil, nil
	case 1:
		return PacketDelim, nil, nil
	case 2:
		return PacketResponseEnd, nil, nil
	case 3:
		return 0, nil, fmt.Errorf("invalid pkt-line length %q", pr.hdr[:])
	}
	payload := make([]byte, int(n)-pktLenSize)
	if _, err := io.ReadFull(pr.r, payload); err != nil {
		return 0, nil, fmt.Errorf("pkt-line payload truncated: want %d bytes: %w", len(payload), err)
	}
	return PacketData, payload, nil
}

// trimLF drops one trailing LF, which pkt-line text lines usually carry.
func trimLF(b []byte) []byte {
	return bytes.TrimSuffix(b, []byte("\n"))
}
