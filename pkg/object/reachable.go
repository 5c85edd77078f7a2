package object

import (
	"sort"

	"github.com/odvcencio/minigit/pkg/errkind"
)

// ReachableSet returns every stored object reachable from roots through
// commit, tree and tag references. Hashes the store does not hold are
// skipped.
func (s *Store) ReachableSet(roots []Hash) (map[Hash]struct{}, error) {
	present, _, err := s.walk(roots)
	return present, err
}

// MissingFrom returns the referenced hashes that are absent from the store,
// sorted. An empty result means the whole graph under roots is present.
func (s *Store) MissingFrom(roots []Hash) ([]Hash, error) {
	_, missing, err := s.walk(roots)
	if err != nil {
		return nil, err
	}
	out := make([]Hash, 0, len(missing))
	for h := range missing {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) walk(roots []Hash) (present, missing map[Hash]struct{}, err error) {
	present = make(map[Hash]struct{})
	missing = make(map[Hash]struct{})

	stack := uniqueHashes(roots)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := present[h]; ok {
			continue
		}
		if _, ok := missing[h]; ok {
			continue
		}
		if !s.Has(h) {
			missing[h] = struct{}{}
			continue
		}
		present[h] = struct{}{}

		objType, data, err := s.Read(h)
		if err != nil {
			return nil, nil, err
		}
		refs, err := referencedHashes(objType, data)
		if err != nil {
			return nil, nil, errkind.Errorf(errkind.CorruptObject, "object %s (%s): %s", h, objType, err)
		}
		stack = append(stack, refs...)
	}
	return present, missing, nil
}

func referencedHashes(objType ObjectType, data []byte) ([]Hash, error) {
	switch objType {
	case TypeBlob:
		return nil, nil
	case TypeTag:
		tag, err := UnmarshalTag(data)
		if err != nil {
			return nil, err
		}
		return []Hash{tag.Object}, nil
	case TypeCommit:
		commit, err := UnmarshalCommit(data)
		if err != nil {
			return nil, err
		}
		return append([]Hash{commit.TreeHash}, commit.Parents...), nil
	case TypeTree:
		tree, err := UnmarshalTree(data)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			// Submodule commits (mode 160000) live in another repository.
			if e.Mode == treeModeGitlink {
				continue
			}
			refs = append(refs, e.Hash)
		}
		return refs, nil
	default:
		return nil, errkind.Errorf(errkind.MalformedObject, "unsupported object type %s", objType)
	}
}

const treeModeGitlink = "160000"

func uniqueHashes(in []Hash) []Hash {
	seen := make(map[Hash]struct{}, len(in))
	out := make([]Hash, 0, len(in))
	for _, h := range in {
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
