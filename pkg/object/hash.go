package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"strconv"

	"github.com/odvcencio/minigit/pkg/errkind"
)

// HashSize is the length of a raw SHA-1 digest.
const HashSize = sha1.Size

// ZeroHash is the all-zero digest git uses for "no object".
const ZeroHash Hash = "0000000000000000000000000000000000000000"

// Frame builds the envelope "type len\0" for payload and returns both the
// header and the full framed bytes (header followed by payload).
func Frame(objType ObjectType, payload []byte) (header, full []byte) {
	header = frameHeader(objType, len(payload))
	full = make([]byte, 0, len(header)+len(payload))
	full = append(full, header...)
	full = append(full, payload...)
	return header, full
}

func frameHeader(objType ObjectType, size int) []byte {
	header := make([]byte, 0, 16)
	header = append(header, objType.String()...)
	header = append(header, ' ')
	header = strconv.AppendInt(header, int64(size), 10)
	return append(header, 0)
}

// HashBytes computes the SHA-1 of data and returns it as a lowercase
// hex-encoded Hash. SHA-1 is used as git's content fingerprint, not for
// security.
func HashBytes(data []byte) Hash {
	sum := sha1.Sum(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the SHA-1 of the envelope "type len\0payload".
func HashObject(objType ObjectType, payload []byte) Hash {
	h := sha1.New()
	h.Write(frameHeader(objType, len(payload)))
	h.Write(payload)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// ParseFramed splits framed object bytes into type and payload. It fails
// with MalformedObject when there is no NUL separator, the type is unknown,
// or the declared length disagrees with the payload.
func ParseFramed(full []byte) (ObjectType, []byte, error) {
	nul := bytes.IndexByte(full, 0)
	if nul < 0 {
		return TypeInvalid, nil, errkind.Errorf(errkind.MalformedObject, "object envelope has no NUL separator")
	}
	header := full[:nul]
	payload := full[nul+1:]

	sp := bytes.IndexByte(header, ' ')
	if sp < 0 {
		return TypeInvalid, nil, errkind.Errorf(errkind.MalformedObject, "invalid object header %q", header)
	}
	objType, err := ParseObjectType(string(header[:sp]))
	if err != nil {
		return TypeInvalid, nil, err
	}
	length, err := strconv.Atoi(string(header[sp+1:]))
	if err != nil || length < 0 {
		return TypeInvalid, nil, errkind.Errorf(errkind.MalformedObject, "invalid object length %q", header[sp+1:])
	}
	if length != len(payload) {
		return TypeInvalid, nil, errkind.Errorf(errkind.MalformedObject, "object length mismatch (header=%d, actual=%d)", length, len(payload))
	}
	return objType, payload, nil
}

// Raw decodes h into its 20 raw bytes.
func (h Hash) Raw() ([HashSize]byte, error) {
	var raw [HashSize]byte
	if err := ValidateHash(h); err != nil {
		return raw, err
	}
	if _, err := hex.Decode(raw[:], []byte(h)); err != nil {
		return raw, errkind.Errorf(errkind.Usage, "hash %q: %s", h, err)
	}
	return raw, nil
}

// HashFromRaw hex-encodes a raw 20-byte digest.
func HashFromRaw(raw []byte) Hash {
	return Hash(hex.EncodeToString(raw))
}

// ValidateHash checks that h is a 40-character lowercase hex string.
func ValidateHash(h Hash) error {
	if len(h) != 2*HashSize {
		return errkind.Errorf(errkind.Usage, "hash %q: length %d, expected %d", h, len(h), 2*HashSize)
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return errkind.Errorf(errkind.Usage, "hash %q: non-hex character %q", h, c)
		}
	}
	return nil
}
