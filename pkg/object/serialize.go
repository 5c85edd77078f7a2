package object

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/minigit/pkg/errkind"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj. Entries are sorted by name as raw bytes,
// so the output depends only on the set of entries. Each entry is
//
//	<mode> <name>\0<20 raw hash bytes>
func MarshalTree(tr *TreeObj) ([]byte, error) {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		if e.Name == "" || strings.ContainsRune(e.Name, 0) {
			return nil, errkind.Errorf(errkind.MalformedObject, "tree entry name %q is invalid", e.Name)
		}
		raw, err := e.Hash.Raw()
		if err != nil {
			return nil, errkind.Errorf(errkind.MalformedObject, "tree entry %q: %s", e.Name, err)
		}
		buf.WriteString(treeModeOrDefault(e.Mode))
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(raw[:])
	}
	return buf.Bytes(), nil
}

func treeModeOrDefault(mode string) string {
	if strings.TrimSpace(mode) == "" {
		return TreeModeFile
	}
	return mode
}

// ParseTreeEntries decodes the binary entry stream of a tree payload. It is
// lenient: a malformed or truncated entry ends the stream and the entries
// decoded so far are returned. ok is false when trailing bytes were dropped.
func ParseTreeEntries(payload []byte) (entries []TreeEntry, ok bool) {
	cursor := 0
	for cursor < len(payload) {
		sp := bytes.IndexByte(payload[cursor:], ' ')
		if sp <= 0 {
			return entries, false
		}
		mode := string(payload[cursor : cursor+sp])
		cursor += sp + 1

		nul := bytes.IndexByte(payload[cursor:], 0)
		if nul <= 0 {
			return entries, false
		}
		name := string(payload[cursor : cursor+nul])
		cursor += nul + 1

		if len(payload)-cursor < HashSize {
			return entries, false
		}
		h := HashFromRaw(payload[cursor : cursor+HashSize])
		cursor += HashSize

		entries = append(entries, TreeEntry{Mode: mode, Name: name, Hash: h})
	}
	return entries, true
}

// UnmarshalTree parses a tree payload strictly: trailing garbage is an error.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	entries, ok := ParseTreeEntries(data)
	if !ok {
		return nil, errkind.Errorf(errkind.MalformedObject, "unmarshal tree: malformed entry after %d entries", len(entries))
	}
	return &TreeObj{Entries: entries}, nil
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (zero or more)
//	author A
//	committer C
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "committer %s\n", c.Committer)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj. Headers other than tree, parent,
// author and committer (gpgsig, encoding, mergetag and their continuation
// lines) are skipped.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	header, message, err := splitHeaderBlock(data)
	if err != nil {
		return nil, errkind.Errorf(errkind.MalformedObject, "unmarshal commit: %s", err)
	}

	c := &CommitObj{Message: message}
	for _, line := range header {
		key, val, _ := strings.Cut(line, " ")
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			c.Author = val
		case "committer":
			c.Committer = val
		}
	}
	if err := ValidateHash(c.TreeHash); err != nil {
		return nil, errkind.Errorf(errkind.MalformedObject, "unmarshal commit: tree: %s", err)
	}
	for _, p := range c.Parents {
		if err := ValidateHash(p); err != nil {
			return nil, errkind.Errorf(errkind.MalformedObject, "unmarshal commit: parent: %s", err)
		}
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// TagObj
// ---------------------------------------------------------------------------

// UnmarshalTag parses an annotated tag payload.
func UnmarshalTag(data []byte) (*TagObj, error) {
	header, message, err := splitHeaderBlock(data)
	if err != nil {
		return nil, errkind.Errorf(errkind.MalformedObject, "unmarshal tag: %s", err)
	}

	t := &TagObj{Message: message}
	for _, line := range header {
		key, val, _ := strings.Cut(line, " ")
		switch key {
		case "object":
			t.Object = Hash(val)
		case "type":
			objType, err := ParseObjectType(val)
			if err != nil {
				return nil, err
			}
			t.Type = objType
		case "tag":
			t.Tag = val
		case "tagger":
			t.Tagger = val
		}
	}
	if err := ValidateHash(t.Object); err != nil {
		return nil, errkind.Errorf(errkind.MalformedObject, "unmarshal tag: object: %s", err)
	}
	return t, nil
}

// splitHeaderBlock splits "key value" header lines from the message that
// follows the first blank line. Continuation lines (leading space) are
// dropped. A payload without a blank line is all header.
func splitHeaderBlock(data []byte) ([]string, string, error) {
	text := string(data)
	head, message, found := strings.Cut(text, "\n\n")
	if !found {
		head = strings.TrimSuffix(text, "\n")
	}
	if head == "" {
		return nil, "", fmt.Errorf("missing header")
	}

	var lines []string
	for _, line := range strings.Split(head, "\n") {
		if strings.HasPrefix(line, " ") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, message, nil
}
