// Package errkind defines the error categories returned by minigit.
//
// Errors are built with go-errcat so callers can branch on the category
// without matching message text:
//
//	switch errcat.Category(err) {
//	case errkind.ObjectNotFound:
//		...
//	}
package errkind

import (
	"github.com/warpfork/go-errcat"
)

// Kind is an error category. Values are stable strings so they survive
// serialization through errcat.ErrorStruct.
type Kind string

const (
	// Usage marks invalid caller input: a malformed hash, an empty URL.
	Usage Kind = "minigit-usage"

	// IoFailure marks filesystem errors. Messages include the path.
	IoFailure Kind = "minigit-io-failure"

	// MalformedObject marks framing errors in an object envelope or payload.
	MalformedObject Kind = "minigit-malformed-object"
	// CorruptObject marks a stored object that cannot be decompressed or
	// parsed. Messages include the hash.
	CorruptObject Kind = "minigit-corrupt-object"
	// ObjectNotFound marks a lookup of a hash the store does not hold.
	ObjectNotFound Kind = "minigit-object-not-found"

	// MalformedPack marks a structurally invalid pack stream.
	MalformedPack Kind = "minigit-malformed-pack"
	// UnsupportedPackVersion marks a pack header with a version other than 2.
	UnsupportedPackVersion Kind = "minigit-unsupported-pack-version"
	// UnsupportedObjectType marks a pack record with an unknown type code.
	UnsupportedObjectType Kind = "minigit-unsupported-object-type"

	// RefDiscoveryFailed marks any failure while listing remote refs.
	RefDiscoveryFailed Kind = "minigit-ref-discovery-failed"
	// PackDownloadFailed marks any failure while fetching a pack.
	PackDownloadFailed Kind = "minigit-pack-download-failed"
)

// Errorf returns an error carrying kind k.
func Errorf(k Kind, format string, args ...interface{}) error {
	return errcat.Errorf(k, format, args...)
}

// Of returns the category of err, or "" when err is nil or uncategorized.
func Of(err error) Kind {
	if err == nil {
		return ""
	}
	k, _ := errcat.Category(err).(Kind)
	return k
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return err != nil && Of(err) == k
}

// Wrap re-categorizes err under kind k, prefixing msg. A nil err stays nil.
// If err already carries a category it is preserved, so the most specific
// failure reaches the caller.
func Wrap(k Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	if existing := Of(err); existing != "" {
		return errcat.Errorf(existing, "%s: %s", msg, err)
	}
	return errcat.Errorf(k, "%s: %s", msg, err)
}
