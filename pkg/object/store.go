package object

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"

	"github.com/odvcencio/minigit/pkg/errkind"
)

// Store is a content-addressed loose object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123...
//
// Each file holds the zlib-compressed envelope "type len\0payload", which is
// byte-compatible with git's loose objects.
type Store struct {
	root  string
	level int
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// CompressionLevel is a zlib level: -1 for the library default,
	// 0 (none) through 9 (best).
	CompressionLevel int
}

// NewStore creates a Store rooted at the given directory (usually .git)
// with default compression. The objects/ subdirectory is created lazily on
// first write.
func NewStore(root string) *Store {
	return NewStoreWithOptions(root, StoreOptions{CompressionLevel: zlib.DefaultCompression})
}

// NewStoreWithOptions creates a Store with explicit options. Out-of-range
// compression levels fall back to the default.
func NewStoreWithOptions(root string, opts StoreOptions) *Store {
	level := opts.CompressionLevel
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		level = zlib.DefaultCompression
	}
	return &Store{root: root, level: level}
}

// Root returns the directory the store was opened on.
func (s *Store) Root() string {
	return s.root
}

// objectPath returns the filesystem path for a given hash.
func (s *Store) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	if ValidateHash(h) != nil {
		return false
	}
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write stores an object and returns its content hash. Writing an object
// that already exists is a no-op: identity implies equal content, so the
// existing file is not re-read. New objects are written to a temp file in
// the shard directory and renamed into place.
func (s *Store) Write(objType ObjectType, payload []byte) (Hash, error) {
	_, full := Frame(objType, payload)
	h := HashBytes(full)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	compressed, err := s.compress(full)
	if err != nil {
		return "", errkind.Errorf(errkind.IoFailure, "object write %s: compress: %s", h, err)
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errkind.Errorf(errkind.IoFailure, "object write %s: mkdir %s: %s", h, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", errkind.Errorf(errkind.IoFailure, "object write %s: tmpfile in %s: %s", h, dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errkind.Errorf(errkind.IoFailure, "object write %s: %s: %s", h, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", errkind.Errorf(errkind.IoFailure, "object write %s: close %s: %s", h, tmpName, err)
	}

	dest := s.objectPath(h)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", errkind.Errorf(errkind.IoFailure, "object write %s: rename to %s: %s", h, dest, err)
	}
	return h, nil
}

func (s *Store) compress(full []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, s.level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(full); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Read retrieves an object by hash, returning its type and payload.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	if err := ValidateHash(h); err != nil {
		return TypeInvalid, nil, err
	}
	path := s.objectPath(h)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TypeInvalid, nil, errkind.Errorf(errkind.ObjectNotFound, "object read %s: not found", h)
		}
		return TypeInvalid, nil, errkind.Errorf(errkind.IoFailure, "object read %s: %s", h, err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return TypeInvalid, nil, errkind.Errorf(errkind.CorruptObject, "object read %s: zlib header: %s", h, err)
	}
	full, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return TypeInvalid, nil, errkind.Errorf(errkind.CorruptObject, "object read %s: decompress: %s", h, err)
	}
	if err := zr.Close(); err != nil {
		return TypeInvalid, nil, errkind.Errorf(errkind.CorruptObject, "object read %s: close zlib stream: %s", h, err)
	}

	objType, payload, err := ParseFramed(full)
	if err != nil {
		return TypeInvalid, nil, errkind.Errorf(errkind.CorruptObject, "object read %s: %s", h, err)
	}
	return objType, payload, nil
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, errkind.Errorf(errkind.CorruptObject, "object %s: type mismatch: got %s, want %s", h, objType, want)
	}
	return data, nil
}

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return UnmarshalBlob(data)
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	data, err := MarshalTree(tr)
	if err != nil {
		return "", err
	}
	return s.Write(TypeTree, data)
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	tr, err := UnmarshalTree(data)
	if err != nil {
		return nil, errkind.Errorf(errkind.CorruptObject, "object %s: %s", h, err)
	}
	return tr, nil
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	c, err := UnmarshalCommit(data)
	if err != nil {
		return nil, errkind.Errorf(errkind.CorruptObject, "object %s: %s", h, err)
	}
	return c, nil
}

// ReadTag reads and deserializes an annotated TagObj.
func (s *Store) ReadTag(h Hash) (*TagObj, error) {
	data, err := s.readTyped(h, TypeTag)
	if err != nil {
		return nil, err
	}
	t, err := UnmarshalTag(data)
	if err != nil {
		return nil, errkind.Errorf(errkind.CorruptObject, "object %s: %s", h, err)
	}
	return t, nil
}
