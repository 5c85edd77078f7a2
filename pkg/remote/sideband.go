package remote

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/minigit/pkg/errkind"
)

// Sideband channel identifiers: the first payload byte of each packet in a
// multiplexed packfile section.
const (
	SidebandData     byte = 0x01
	SidebandProgress byte = 0x02
	SidebandError    byte = 0x03
)

// maxSidebandChunk is the largest data chunk one side-band-64k packet
// carries.
const maxSidebandChunk = maxPktPayload - 1

// SidebandWriter multiplexes data, progress and error messages over
// pkt-lines.
type SidebandWriter struct {
	pw *PktLineWriter
}

func NewSidebandWriter(w io.Writer) *SidebandWriter {
	return &SidebandWriter{pw: NewPktLineWriter(w)}
}

func (sw *SidebandWriter) writeBand(band byte, data []byte) error {
	for {
		chunk := data
		if len(chunk) > maxSidebandChunk {
			chunk = chunk[:maxSidebandChunk]
		}
		pkt := make([]byte, 0, len(chunk)+1)
		pkt = append(pkt, band)
		pkt = append(pkt, chunk...)
		if err := sw.pw.WritePacket(pkt); err != nil {
			return fmt.Errorf("write sideband %d: %w", band, err)
		}
		data = data[len(chunk):]
		if len(data) == 0 {
			return nil
		}
	}
}

func (sw *SidebandWriter) WriteData(data []byte) error {
	return sw.writeBand(SidebandData, data)
}

func (sw *SidebandWriter) WriteProgress(msg string) error {
	return sw.writeBand(SidebandProgress, []byte(msg))
}

func (sw *SidebandWriter) WriteError(msg string) error {
	return sw.writeBand(SidebandError, []byte(msg))
}

// Flush ends the multiplexed section.
func (sw *SidebandWriter) Flush() error {
	return sw.pw.Flush()
}

// SidebandDataReader presents band 1 of a multiplexed section as a plain
// io.Reader. Band 2 goes to onProgress when set; band 3 fails the read. A
// flush or response-end packet ends the stream.
type SidebandDataReader struct {
	pr         *PktLineReader
	onProgress func(string)
	buf        []byte
	done       bool
}

func NewSidebandDataReader(r io.Reader, onProgress func(string)) *SidebandDataReader {
	return &SidebandDataReader{pr: NewPktLineReader(r), onProgress: onProgress}
}

func (dr *SidebandDataReader) Read(p []byte) (int, error) {
	for len(dr.buf) == 0 {
		if dr.done {
			return 0, io.EOF
		}
		kind, payload, err := dr.pr.ReadPacket()
		if err == io.EOF {
			dr.done = true
			return 0, io.EOF
		}
		if err != nil {
			return 0, err
		}
		if kind != PacketData {
			dr.done = true
			return 0, io.EOF
		}
		if len(payload) == 0 {
			continue
		}
		switch payload[0] {
		case SidebandData:
			dr.buf = payload[1:]
		case SidebandProgress:
			if dr.onProgress != nil {
				dr.onProgress(string(payload[1:]))
			}
		case SidebandError:
			return 0, errkind.Errorf(errkind.PackDownloadFailed, "remote error: %s", strings.TrimSpace(string(payload[1:])))
		default:
			return 0, fmt.Errorf("unknown sideband channel %d", payload[0])
		}
	}

	n := copy(p, dr.buf)
	dr.buf = dr.buf[n:]
	return n, nil
}

var packSignature = []byte("PACK")

// ExtractPack returns the raw pack carried by an upload-pack response.
//
// A body that already starts with "PACK" is returned unchanged. Otherwise
// the body is read as pkt-lines: sections before "packfile" (acknowledgments,
// shallow-info, wanted-refs) and v0 "NAK"/"ACK" lines are skipped, then the
// packfile section is demultiplexed. A v0 response may also switch to a raw
// pack right after its NAK.
func ExtractPack(body []byte, onProgress func(string)) ([]byte, error) {
	if bytes.HasPrefix(body, packSignature) {
		return body, nil
	}

	rd := bytes.NewReader(body)
	pr := NewPktLineReader(rd)
	for {
		start := len(body) - rd.Len()
		if bytes.HasPrefix(body[start:], packSignature) {
			return body[start:], nil
		}
		kind, payload, err := pr.ReadPacket()
		if err == io.EOF {
			return nil, errkind.Errorf(errkind.PackDownloadFailed, "response has no packfile section")
		}
		if err != nil {
			return nil, errkind.Errorf(errkind.PackDownloadFailed, "read response: %s", err)
		}
		if kind != PacketData {
			continue
		}
		line := string(trimLF(payload))
		switch {
		case line == "packfile":
			return readPackfileSection(rd, onProgress)
		case strings.HasPrefix(line, "ERR "):
			return nil, errkind.Errorf(errkind.PackDownloadFailed, "remote error: %s", strings.TrimPrefix(line, "ERR "))
		case len(payload) > 0 && payload[0] == SidebandData && bytes.HasPrefix(payload[1:], packSignature):
			// v0 side-band response: no section header, bands start
			// right after NAK.
			return readPackfileSection(bytes.NewReader(body[start:]), onProgress)
		}
	}
}

func readPackfileSection(r io.Reader, onProgress func(string)) ([]byte, error) {
	pack, err := io.ReadAll(NewSidebandDataReader(r, onProgress))
	if err != nil {
		return nil, errkind.Wrap(errkind.PackDownloadFailed, err, "read packfile section")
	}
	if !bytes.HasPrefix(pack, packSignature) {
		return nil, errkind.Errorf(errkind.PackDownloadFailed, "packfile section does not start with PACK (%d bytes)", len(pack))
	}
	return pack, nil
}
