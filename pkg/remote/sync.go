package remote

import (
	"context"
	"strings"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/object"
)

// FetchIntoStore requests a pack for wants, unpacks it into store and then
// checks that the object graph under wants is complete locally. onProgress,
// when set, receives sideband progress messages.
func FetchIntoStore(ctx context.Context, c *Client, store *object.Store, wants []object.Hash, onProgress func(string)) (*object.UnpackResult, error) {
	roots := uniqueSortedHashes(wants)
	if len(roots) == 0 {
		return nil, errkind.Errorf(errkind.Usage, "at least one want hash is required")
	}

	body, err := c.RequestPack(ctx, roots)
	if err != nil {
		return nil, err
	}
	pack, err := ExtractPack(body, onProgress)
	if err != nil {
		return nil, err
	}
	result, err := object.Unpack(store, pack)
	if err != nil {
		return nil, err
	}
	c.log.Info("unpacked pack", "objects", result.Header.NumObjects, "checksum", string(result.Checksum))

	missing, err := store.MissingFrom(roots)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, errkind.Errorf(errkind.ObjectNotFound, "pack left %d object(s) unresolved: %s", len(missing), summarizeHashes(missing, 5))
	}
	return result, nil
}

func summarizeHashes(hs []object.Hash, max int) string {
	parts := make([]string, 0, max+1)
	for i, h := range hs {
		if i == max {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, string(h))
	}
	return strings.Join(parts, ", ")
}
