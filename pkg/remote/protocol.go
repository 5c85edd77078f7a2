package remote

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/odvcencio/minigit/pkg/object"
)

const (
	uploadPackService = "git-upload-pack"

	headerProtocol  = "Git-Protocol"
	protocolVersion = "version=2"

	contentTypeUploadPackRequest = "application/x-git-upload-pack-request"
	contentTypeUploadPackResult  = "application/x-git-upload-pack-result"
	contentTypeAdvertisement     = "application/x-git-upload-pack-advertisement"
)

// Capabilities is the capability list a server sends after the first ref
// in its advertisement: space-separated names, some with "=value".
type Capabilities struct {
	list []string
}

// ParseCapabilities parses a space-separated capability string.
func ParseCapabilities(raw string) Capabilities {
	return Capabilities{list: strings.Fields(raw)}
}

// Has reports whether a capability with the given name is present, with or
// without a value.
func (c Capabilities) Has(name string) bool {
	for _, capability := range c.list {
		if capability == name || strings.HasPrefix(capability, name+"=") {
			return true
		}
	}
	return false
}

// Values returns every value advertised for name, in order.
func (c Capabilities) Values(name string) []string {
	var out []string
	for _, capability := range c.list {
		if v, ok := strings.CutPrefix(capability, name+"="); ok {
			out = append(out, v)
		}
	}
	return out
}

// Symref returns the target of a symbolic ref advertised as
// symref=<name>:<target>.
func (c Capabilities) Symref(name string) (string, bool) {
	for _, v := range c.Values("symref") {
		if src, dst, ok := strings.Cut(v, ":"); ok && src == name {
			return dst, true
		}
	}
	return "", false
}

// String returns a sorted space-separated capability string.
func (c Capabilities) String() string {
	names := append([]string(nil), c.list...)
	sort.Strings(names)
	return strings.Join(names, " ")
}

// peeledSuffix marks an advertised line for the object an annotated tag
// points to.
const peeledSuffix = "^{}"

// parseAdvertisement decodes a ref advertisement. Flush and delimiter
// packets, "#" lines and lines with fewer than two fields are skipped. The
// capability list after the first NUL is returned separately. The
// placeholder line an empty repository advertises is dropped.
func parseAdvertisement(r io.Reader) (map[string]object.Hash, Capabilities, error) {
	refs := make(map[string]object.Hash)
	var caps Capabilities
	pr := NewPktLineReader(r)
	for {
		kind, payload, err := pr.ReadPacket()
		if err == io.EOF {
			return refs, caps, nil
		}
		if err != nil {
			return nil, Capabilities{}, err
		}
		if kind != PacketData {
			continue
		}

		line := trimLF(payload)
		if bytes.HasPrefix(line, []byte("#")) {
			continue
		}
		if ref, capList, ok := bytes.Cut(line, []byte{0}); ok {
			line = ref
			caps = ParseCapabilities(string(capList))
		}
		fields := strings.Fields(string(line))
		if len(fields) < 2 {
			continue
		}
		h, name := object.Hash(fields[0]), fields[1]
		if h == object.ZeroHash && name == "capabilities"+peeledSuffix {
			continue
		}
		if err := object.ValidateHash(h); err != nil {
			return nil, Capabilities{}, fmt.Errorf("ref %q: %w", name, err)
		}
		refs[name] = h
	}
}

// buildFetchRequest encodes a protocol v2 fetch command. Wants are
// deduplicated and sorted so the request is deterministic.
func buildFetchRequest(wants []object.Hash) ([]byte, error) {
	var buf bytes.Buffer
	pw := NewPktLineWriter(&buf)
	if err := pw.WriteLine("command=fetch"); err != nil {
		return nil, err
	}
	if err := pw.Delim(); err != nil {
		return nil, err
	}
	if err := pw.WriteLine("no-progress"); err != nil {
		return nil, err
	}
	for _, h := range uniqueSortedHashes(wants) {
		if err := pw.WriteLine("want " + string(h)); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteLine("done"); err != nil {
		return nil, err
	}
	if err := pw.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func uniqueSortedHashes(in []object.Hash) []object.Hash {
	seen := make(map[object.Hash]struct{}, len(in))
	out := make([]object.Hash, 0, len(in))
	for _, h := range in {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
