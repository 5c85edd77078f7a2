package object

import (
	"bytes"
	"strings"
	"testing"

	"github.com/odvcencio/minigit/pkg/errkind"
)

func TestMarshalUnmarshalBlob(t *testing.T) {
	orig := &Blob{Data: []byte("hello world\nline two")}
	got, err := UnmarshalBlob(MarshalBlob(orig))
	if err != nil {
		t.Fatalf("UnmarshalBlob: %v", err)
	}
	if !bytes.Equal(got.Data, orig.Data) {
		t.Errorf("Blob round-trip mismatch: got %q, want %q", got.Data, orig.Data)
	}
}

func TestMarshalTreeBinaryLayout(t *testing.T) {
	tr := &TreeObj{Entries: []TreeEntry{
		{Mode: TreeModeFile, Name: "a.txt", Hash: emptyBlobHash},
	}}
	data, err := MarshalTree(tr)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	raw, _ := emptyBlobHash.Raw()
	want := append([]byte("100644 a.txt\x00"), raw[:]...)
	if !bytes.Equal(data, want) {
		t.Fatalf("MarshalTree = %q, want %q", data, want)
	}
}

func TestMarshalTreeKnownHash(t *testing.T) {
	// A tree holding one empty file named "a.txt", as git writes it.
	tr := &TreeObj{Entries: []TreeEntry{
		{Mode: TreeModeFile, Name: "a.txt", Hash: emptyBlobHash},
	}}
	data, err := MarshalTree(tr)
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	const want Hash = "65a457425a679cbe9adf0d2741785d3ceabb44a7"
	if got := HashObject(TypeTree, data); got != want {
		t.Fatalf("tree hash = %s, want %s", got, want)
	}
}

func TestMarshalTreeSortsEntries(t *testing.T) {
	entries := []TreeEntry{
		{Mode: TreeModeFile, Name: "zeta", Hash: emptyBlobHash},
		{Mode: TreeModeDir, Name: "beta", Hash: emptyBlobHash},
		{Mode: TreeModeExecutable, Name: "alpha", Hash: emptyBlobHash},
	}
	reversed := []TreeEntry{entries[2], entries[0], entries[1]}

	d1, err := MarshalTree(&TreeObj{Entries: entries})
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	d2, err := MarshalTree(&TreeObj{Entries: reversed})
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}
	if !bytes.Equal(d1, d2) {
		t.Fatal("tree serialization depends on entry order")
	}

	got, err := UnmarshalTree(d1)
	if err != nil {
		t.Fatalf("UnmarshalTree: %v", err)
	}
	names := []string{got.Entries[0].Name, got.Entries[1].Name, got.Entries[2].Name}
	if strings.Join(names, ",") != "alpha,beta,zeta" {
		t.Fatalf("entry order = %v", names)
	}
	if !got.Entries[1].IsDir() || got.Entries[0].Mode != TreeModeExecutable {
		t.Fatalf("modes not preserved: %+v", got.Entries)
	}
}

func TestMarshalTreeRejectsBadEntries(t *testing.T) {
	cases := map[string]TreeEntry{
		"empty name": {Mode: TreeModeFile, Name: "", Hash: emptyBlobHash},
		"nul name":   {Mode: TreeModeFile, Name: "a\x00b", Hash: emptyBlobHash},
		"bad hash":   {Mode: TreeModeFile, Name: "a", Hash: "nope"},
	}
	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MarshalTree(&TreeObj{Entries: []TreeEntry{e}})
			if !errkind.Is(err, errkind.MalformedObject) {
				t.Fatalf("MarshalTree error = %v, want MalformedObject", err)
			}
		})
	}
}

func TestParseTreeEntriesTruncated(t *testing.T) {
	data, err := MarshalTree(&TreeObj{Entries: []TreeEntry{
		{Mode: TreeModeFile, Name: "a", Hash: emptyBlobHash},
		{Mode: TreeModeFile, Name: "b", Hash: emptyBlobHash},
	}})
	if err != nil {
		t.Fatalf("MarshalTree: %v", err)
	}

	entries, ok := ParseTreeEntries(data[:len(data)-5])
	if ok {
		t.Fatal("expected ok=false for truncated stream")
	}
	if len(entries) != 1 || entries[0].Name != "a" {
		t.Fatalf("entries = %+v, want only a", entries)
	}
	if _, err := UnmarshalTree(data[:len(data)-5]); !errkind.Is(err, errkind.MalformedObject) {
		t.Fatalf("UnmarshalTree error = %v, want MalformedObject", err)
	}

	entries, ok = ParseTreeEntries(nil)
	if !ok || len(entries) != 0 {
		t.Fatalf("empty tree: entries=%v ok=%v", entries, ok)
	}
}

func TestMarshalUnmarshalCommit(t *testing.T) {
	orig := &CommitObj{
		TreeHash:  emptyBlobHash,
		Parents:   []Hash{"3b18e512dba79e4c8300dd08aeb37f8e728b8dad"},
		Author:    "Alice <alice@example.com> 1700000000 +0000",
		Committer: "Bob <bob@example.com> 1700000001 +0100",
		Message:   "subject\n\nbody line\n",
	}
	data := MarshalCommit(orig)
	want := "tree e69de29bb2d1d6434b8b29ae775ad8c2e48c5391\n" +
		"parent 3b18e512dba79e4c8300dd08aeb37f8e728b8dad\n" +
		"author Alice <alice@example.com> 1700000000 +0000\n" +
		"committer Bob <bob@example.com> 1700000001 +0100\n" +
		"\n" +
		"subject\n\nbody line\n"
	if string(data) != want {
		t.Fatalf("MarshalCommit =\n%s\nwant\n%s", data, want)
	}

	got, err := UnmarshalCommit(data)
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	if got.TreeHash != orig.TreeHash || len(got.Parents) != 1 || got.Parents[0] != orig.Parents[0] {
		t.Fatalf("hashes = %+v", got)
	}
	if got.Author != orig.Author || got.Committer != orig.Committer || got.Message != orig.Message {
		t.Fatalf("commit round trip = %+v", got)
	}
}

func TestMarshalCommitNoParents(t *testing.T) {
	data := MarshalCommit(&CommitObj{
		TreeHash:  emptyBlobHash,
		Author:    "a <a@b> 0 +0000",
		Committer: "a <a@b> 0 +0000",
		Message:   "root\n",
	})
	if bytes.Contains(data, []byte("parent ")) {
		t.Fatalf("root commit has a parent line:\n%s", data)
	}
}

func TestUnmarshalCommitSkipsUnknownHeaders(t *testing.T) {
	data := []byte("tree e69de29bb2d1d6434b8b29ae775ad8c2e48c5391\n" +
		"author a <a@b> 0 +0000\n" +
		"committer a <a@b> 0 +0000\n" +
		"gpgsig -----BEGIN PGP SIGNATURE-----\n" +
		" abcdef\n" +
		" -----END PGP SIGNATURE-----\n" +
		"\n" +
		"signed\n")
	got, err := UnmarshalCommit(data)
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	if got.Message != "signed\n" || got.TreeHash != emptyBlobHash {
		t.Fatalf("commit = %+v", got)
	}
}

func TestUnmarshalCommitRejectsBadTree(t *testing.T) {
	_, err := UnmarshalCommit([]byte("tree nothex\n\nmsg\n"))
	if !errkind.Is(err, errkind.MalformedObject) {
		t.Fatalf("error = %v, want MalformedObject", err)
	}
}

func TestUnmarshalTag(t *testing.T) {
	data := []byte("object e69de29bb2d1d6434b8b29ae775ad8c2e48c5391\n" +
		"type blob\n" +
		"tag v1.0\n" +
		"tagger T <t@example.com> 1700000000 +0000\n" +
		"\n" +
		"release\n")
	tag, err := UnmarshalTag(data)
	if err != nil {
		t.Fatalf("UnmarshalTag: %v", err)
	}
	if tag.Object != emptyBlobHash || tag.Type != TypeBlob || tag.Tag != "v1.0" || tag.Message != "release\n" {
		t.Fatalf("tag = %+v", tag)
	}

	if _, err := UnmarshalTag([]byte("object e69de29bb2d1d6434b8b29ae775ad8c2e48c5391\ntype widget\n\n")); !errkind.Is(err, errkind.MalformedObject) {
		t.Fatalf("unknown tag type error = %v, want MalformedObject", err)
	}
}
