package object

import (
	"github.com/odvcencio/minigit/pkg/errkind"
)

// Hash is a 40-character lowercase hex-encoded SHA-1 digest.
type Hash string

// ObjectType identifies the kind of object stored. The set is closed:
// every switch over ObjectType in this module is exhaustive.
type ObjectType uint8

const (
	TypeInvalid ObjectType = iota
	TypeBlob
	TypeTree
	TypeCommit
	TypeTag
)

// String returns the type name used in object envelopes.
func (t ObjectType) String() string {
	switch t {
	case TypeBlob:
		return "blob"
	case TypeTree:
		return "tree"
	case TypeCommit:
		return "commit"
	case TypeTag:
		return "tag"
	default:
		return "invalid"
	}
}

// ParseObjectType maps an envelope type name back to an ObjectType.
func ParseObjectType(name string) (ObjectType, error) {
	switch name {
	case "blob":
		return TypeBlob, nil
	case "tree":
		return TypeTree, nil
	case "commit":
		return TypeCommit, nil
	case "tag":
		return TypeTag, nil
	default:
		return TypeInvalid, errkind.Errorf(errkind.MalformedObject, "unknown object type %q", name)
	}
}

const (
	// Tree mode constants in git's canonical (unpadded) form.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Mode string
	Name string
	Hash Hash
}

// IsDir reports whether the entry points at a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Mode == TreeModeDir
}

// TreeObj holds the entries of a tree. MarshalTree sorts them by name.
type TreeObj struct {
	Entries []TreeEntry
}

// CommitObj represents a commit pointing to a tree with metadata.
//
// Commits written locally carry at most one parent. Commits received from a
// remote may carry several; they are kept so reachability walks see every
// parent.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    string // "Name <email> unix-seconds tz"
	Committer string
	Message   string
}

// TagObj is an annotated tag. Tags are recognized when received in a pack
// but never produced locally.
type TagObj struct {
	Object  Hash
	Type    ObjectType
	Tag     string
	Tagger  string
	Message string
}
