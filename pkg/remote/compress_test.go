package remote

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func TestDecodeContentEncodingZstd(t *testing.T) {
	original := bytes.Repeat([]byte("minigit compression test data\n"), 100)
	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	if _, err := enc.Write(original); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}

	rc, err := decodeContentEncoding("zstd", &compressed)
	if err != nil {
		t.Fatalf("decodeContentEncoding: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Fatalf("zstd round-trip mismatch: got %d bytes, want %d", len(got), len(original))
	}
}

func TestDecodeContentEncodingGzip(t *testing.T) {
	original := []byte("hello world, this is a test of gzip decoding")
	for _, name := range []string{"gzip", "x-gzip", " GZIP "} {
		var compressed bytes.Buffer
		zw := gzip.NewWriter(&compressed)
		if _, err := zw.Write(original); err != nil {
			t.Fatalf("gzip write: %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("gzip close: %v", err)
		}

		rc, err := decodeContentEncoding(name, &compressed)
		if err != nil {
			t.Fatalf("decodeContentEncoding(%q): %v", name, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("ReadAll(%q): %v", name, err)
		}
		if !bytes.Equal(got, original) {
			t.Fatalf("%q round-trip mismatch", name)
		}
	}
}

func TestDecodeContentEncodingIdentity(t *testing.T) {
	for _, name := range []string{"", "identity"} {
		rc, err := decodeContentEncoding(name, bytes.NewReader([]byte("plain")))
		if err != nil {
			t.Fatalf("decodeContentEncoding(%q): %v", name, err)
		}
		got, _ := io.ReadAll(rc)
		if string(got) != "plain" {
			t.Fatalf("identity body = %q", got)
		}
	}
}

func TestDecodeContentEncodingRejectsUnknown(t *testing.T) {
	if _, err := decodeContentEncoding("br", bytes.NewReader(nil)); err == nil {
		t.Fatalf("expected error for brotli encoding")
	}
}

func TestDecodeContentEncodingRejectsBadGzip(t *testing.T) {
	if _, err := decodeContentEncoding("gzip", bytes.NewReader([]byte("not gzip"))); err == nil {
		t.Fatalf("expected error for invalid gzip header")
	}
}
