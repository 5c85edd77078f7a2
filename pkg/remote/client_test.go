package remote

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/object"
)

func TestNewClientURLValidation(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantURL    string
		shouldFail bool
	}{
		{name: "https", in: "https://example.com/alice/proj.git", wantURL: "https://example.com/alice/proj.git"},
		{name: "trailing slashes", in: "http://example.com/proj//", wantURL: "http://example.com/proj"},
		{name: "query dropped", in: "http://example.com/proj?x=1#frag", wantURL: "http://example.com/proj"},
		{name: "empty", in: "  ", shouldFail: true},
		{name: "ssh scheme", in: "ssh://example.com/proj", shouldFail: true},
		{name: "scp style", in: "git@example.com:proj.git", shouldFail: true},
		{name: "no host", in: "http:///proj", shouldFail: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewClient(tc.in)
			if tc.shouldFail {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if !errkind.Is(err, errkind.Usage) {
					t.Fatalf("error kind = %q, want %q", errkind.Of(err), errkind.Usage)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			if c.URL() != tc.wantURL {
				t.Fatalf("URL() = %q, want %q", c.URL(), tc.wantURL)
			}
		})
	}
}

func TestDiscoverRefs(t *testing.T) {
	var gotReq *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		w.Header().Set("Content-Type", contentTypeAdvertisement)
		_, _ = w.Write(advertisement(t,
			string(hashA)+" HEAD\x00symref=HEAD:refs/heads/main side-band-64k",
			string(hashA)+" refs/heads/main",
		))
	}))
	defer ts.Close()

	var logs bytes.Buffer
	c, err := NewClientWithOptions(ts.URL+"/repo.git/", ClientOptions{
		UserAgent: "minigit-test/1",
		Logger:    slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	if err != nil {
		t.Fatalf("NewClientWithOptions: %v", err)
	}
	refs, err := c.DiscoverRefs(context.Background())
	if err != nil {
		t.Fatalf("DiscoverRefs: %v", err)
	}

	if gotReq.Method != http.MethodGet || gotReq.URL.Path != "/repo.git/info/refs" {
		t.Fatalf("request = %s %s", gotReq.Method, gotReq.URL.Path)
	}
	if gotReq.URL.Query().Get("service") != "git-upload-pack" {
		t.Fatalf("service = %q", gotReq.URL.Query().Get("service"))
	}
	if v := gotReq.Header.Get(headerProtocol); v != "" {
		t.Fatalf("discovery sent %s: %q", headerProtocol, v)
	}
	if v := gotReq.Header.Get("User-Agent"); v != "minigit-test/1" {
		t.Fatalf("User-Agent = %q", v)
	}
	if len(refs) != 2 || refs["HEAD"] != hashA || refs["refs/heads/main"] != hashA {
		t.Fatalf("refs = %v", refs)
	}
	if target, ok := c.Capabilities().Symref("HEAD"); !ok || target != "refs/heads/main" {
		t.Fatalf("HEAD symref = %q, %v", target, ok)
	}
	if !strings.Contains(logs.String(), "discovered refs") {
		t.Fatalf("logs = %q", logs.String())
	}
}

func TestDiscoverRefsFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "repository not found", http.StatusNotFound)
			},
		},
		{
			name: "bad advertisement",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("this is not pkt-line"))
			},
		},
		{
			name: "bad hash",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(advertisement(t, "xyz refs/heads/main"))
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(tc.handler)
			defer ts.Close()
			c, err := NewClient(ts.URL)
			if err != nil {
				t.Fatal(err)
			}
			_, err = c.DiscoverRefs(context.Background())
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errkind.Is(err, errkind.RefDiscoveryFailed) {
				t.Fatalf("error kind = %q, want %q", errkind.Of(err), errkind.RefDiscoveryFailed)
			}
		})
	}
}

func TestDiscoverRefsUnreachableHost(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := NewClientWithOptions(url, ClientOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.DiscoverRefs(context.Background()); !errkind.Is(err, errkind.RefDiscoveryFailed) {
		t.Fatalf("error = %v, want %q", err, errkind.RefDiscoveryFailed)
	}
}

func TestRequestPack(t *testing.T) {
	var gotReq *http.Request
	var gotBody []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", contentTypeUploadPackResult)
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write(packfileSection(t, testPack))
		_ = zw.Close()
	}))
	defer ts.Close()

	c, err := NewClient(ts.URL + "/repo")
	if err != nil {
		t.Fatal(err)
	}
	body, err := c.RequestPack(context.Background(), []object.Hash{hashB, hashA})
	if err != nil {
		t.Fatalf("RequestPack: %v", err)
	}

	if gotReq.Method != http.MethodPost || gotReq.URL.Path != "/repo/git-upload-pack" {
		t.Fatalf("request = %s %s", gotReq.Method, gotReq.URL.Path)
	}
	for header, want := range map[string]string{
		headerProtocol:    protocolVersion,
		"Content-Type":    contentTypeUploadPackRequest,
		"Accept":          contentTypeUploadPackResult,
		"Accept-Encoding": acceptEncoding,
	} {
		if got := gotReq.Header.Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	wantBody, _ := buildFetchRequest([]object.Hash{hashA, hashB})
	if !bytes.Equal(gotBody, wantBody) {
		t.Fatalf("request body = %q, want %q", gotBody, wantBody)
	}

	pack, err := ExtractPack(body, nil)
	if err != nil {
		t.Fatalf("ExtractPack: %v", err)
	}
	if !bytes.Equal(pack, testPack) {
		t.Fatalf("pack = %q", pack)
	}
}

func TestRequestPackFailures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upload-pack crashed", http.StatusInternalServerError)
		}))
		defer ts.Close()
		c, _ := NewClient(ts.URL)
		_, err := c.RequestPack(context.Background(), []object.Hash{hashA})
		if !errkind.Is(err, errkind.PackDownloadFailed) {
			t.Fatalf("error = %v, want %q", err, errkind.PackDownloadFailed)
		}
		if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "upload-pack crashed") {
			t.Fatalf("error %q lacks status detail", err)
		}
	})

	t.Run("response over limit", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
		}))
		defer ts.Close()
		c, _ := NewClientWithOptions(ts.URL, ClientOptions{MaxResponseBytes: 16})
		_, err := c.RequestPack(context.Background(), []object.Hash{hashA})
		if !errkind.Is(err, errkind.PackDownloadFailed) {
			t.Fatalf("error = %v, want %q", err, errkind.PackDownloadFailed)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(testPack)
		}))
		defer ts.Close()
		c, _ := NewClient(ts.URL)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.RequestPack(ctx, []object.Hash{hashA})
		if !errkind.Is(err, errkind.PackDownloadFailed) {
			t.Fatalf("error = %v, want %q", err, errkind.PackDownloadFailed)
		}
	})

	t.Run("no wants", func(t *testing.T) {
		c, _ := NewClient("http://example.invalid/repo")
		if _, err := c.RequestPack(context.Background(), nil); !errkind.Is(err, errkind.Usage) {
			t.Fatalf("error = %v, want %q", err, errkind.Usage)
		}
	})

	t.Run("invalid want", func(t *testing.T) {
		c, _ := NewClient("http://example.invalid/repo")
		if _, err := c.RequestPack(context.Background(), []object.Hash{"abc"}); !errkind.Is(err, errkind.Usage) {
			t.Fatalf("error = %v, want %q", err, errkind.Usage)
		}
	})
}
