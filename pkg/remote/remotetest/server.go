// Package remotetest runs an in-process smart-HTTP upload-pack server over
// an object.Store, for exercising clients without a real git host.
package remotetest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/odvcencio/minigit/pkg/object"
	"github.com/odvcencio/minigit/pkg/remote"
)

// Options controls how the server answers.
type Options struct {
	// HeadTarget, when set, is advertised as symref=HEAD:<target>.
	HeadTarget string
	// RawPack answers fetches with a bare pack instead of a sideband
	// packfile section.
	RawPack bool
	// OmitTrailer strips the 20-byte checksum from served packs.
	OmitTrailer bool
	// Encoding is "", "gzip" or "zstd"; responses are compressed with it.
	Encoding string
	// Progress messages are sent on band 2 before the pack data.
	Progress []string
	// RemoteError, when set, is sent on band 3 instead of the pack.
	RemoteError string
	// RefsStatus and PackStatus override the HTTP status of each endpoint.
	RefsStatus int
	PackStatus int
	// Prefix is the repository path under the server root, e.g. "/repo.git".
	Prefix string
}

// Request is one request the server received.
type Request struct {
	Method   string
	Path     string
	Header   http.Header
	Body     []byte
	Wants    []object.Hash
	Commands []string
}

// Server serves refs and objects from a store.
type Server struct {
	*httptest.Server

	store *object.Store
	refs  map[string]object.Hash
	opts  Options

	mu       sync.Mutex
	requests []Request
}

// NewServer starts a server advertising refs and serving objects from
// store. Call Close when done.
func NewServer(store *object.Store, refs map[string]object.Hash, opts Options) *Server {
	s := &Server{store: store, refs: refs, opts: opts}
	mux := http.NewServeMux()
	mux.HandleFunc(opts.Prefix+"/info/refs", s.handleInfoRefs)
	mux.HandleFunc(opts.Prefix+"/git-upload-pack", s.handleUploadPack)
	s.Server = httptest.NewServer(mux)
	return s
}

// RepoURL is the URL a client should clone from.
func (s *Server) RepoURL() string {
	return s.URL + s.opts.Prefix
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) record(r *http.Request, body []byte, wants []object.Hash, commands []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		Header:   r.Header.Clone(),
		Body:     body,
		Wants:    wants,
		Commands: commands,
	})
}

func (s *Server) handleInfoRefs(w http.ResponseWriter, r *http.Request) {
	s.record(r, nil, nil, nil)
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get("service") != "git-upload-pack" {
		http.Error(w, "service not supported", http.StatusForbidden)
		return
	}
	if s.opts.RefsStatus != 0 && s.opts.RefsStatus != http.StatusOK {
		http.Error(w, "refs unavailable", s.opts.RefsStatus)
		return
	}

	var buf bytes.Buffer
	pw := remote.NewPktLineWriter(&buf)
	_ = pw.WriteLine("# service=git-upload-pack")
	_ = pw.Flush()

	caps := "multi_ack side-band-64k ofs-delta no-progress agent=remotetest/1"
	if s.opts.HeadTarget != "" {
		caps = "symref=HEAD:" + s.opts.HeadTarget + " " + caps
	}
	names := s.refNames()
	if len(names) == 0 {
		_ = pw.WritePacket([]byte(string(object.ZeroHash) + " capabilities^{}\x00" + caps + "\n"))
	}
	for i, name := range names {
		line := string(s.refs[name]) + " " + name
		if i == 0 {
			line += "\x00" + caps
		}
		_ = pw.WriteLine(line)
	}
	_ = pw.Flush()

	w.Header().Set("Content-Type", "application/x-git-upload-pack-advertisement")
	w.Header().Set("Cache-Control", "no-cache")
	s.writeBody(w, buf.Bytes())
}

// refNames lists HEAD first, then the rest sorted.
func (s *Server) refNames() []string {
	names := make([]string, 0, len(s.refs))
	for name := range s.refs {
		if name != "HEAD" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := s.refs["HEAD"]; ok {
		names = append([]string{"HEAD"}, names...)
	}
	return names
}

func (s *Server) handleUploadPack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wants, commands, err := parseFetch(body)
	s.record(r, body, wants, commands)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.PackStatus != 0 && s.opts.PackStatus != http.StatusOK {
		http.Error(w, "pack unavailable", s.opts.PackStatus)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
	if s.opts.RemoteError != "" {
		var buf bytes.Buffer
		pw := remote.NewPktLineWriter(&buf)
		_ = pw.WriteLine("packfile")
		sw := remote.NewSidebandWriter(&buf)
		_ = sw.WriteError(s.opts.RemoteError)
		_ = sw.Flush()
		s.writeBody(w, buf.Bytes())
		return
	}

	pack, err := s.buildPack(wants)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if s.opts.RawPack {
		s.writeBody(w, pack)
		return
	}

	var buf bytes.Buffer
	pw := remote.NewPktLineWriter(&buf)
	_ = pw.WriteLine("packfile")
	sw := remote.NewSidebandWriter(&buf)
	for _, msg := range s.opts.Progress {
		_ = sw.WriteProgress(msg)
	}
	_ = sw.WriteData(pack)
	_ = sw.Flush()
	s.writeBody(w, buf.Bytes())
}

// parseFetch pulls the command lines and wants out of a v2 fetch request.
func parseFetch(body []byte) ([]object.Hash, []string, error) {
	pr := remote.NewPktLineReader(bytes.NewReader(body))
	var wants []object.Hash
	var commands []string
	for {
		kind, payload, err := pr.ReadPacket()
		if err == io.EOF {
			return wants, commands, nil
		}
		if err != nil {
			return nil, nil, err
		}
		if kind != remote.PacketData {
			continue
		}
		line := strings.TrimSuffix(string(payload), "\n")
		commands = append(commands, line)
		if h, ok := strings.CutPrefix(line, "want "); ok {
			if err := object.ValidateHash(object.Hash(h)); err != nil {
				return nil, nil, fmt.Errorf("bad want: %w", err)
			}
			wants = append(wants, object.Hash(h))
		}
	}
}

// buildPack packs every object reachable from wants that the store has, in
// sorted hash order.
func (s *Server) buildPack(wants []object.Hash) ([]byte, error) {
	reachable, err := s.store.ReachableSet(wants)
	if err != nil {
		return nil, err
	}
	hashes := make([]object.Hash, 0, len(reachable))
	for h := range reachable {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	var buf bytes.Buffer
	pw, err := object.NewPackWriter(&buf, uint32(len(hashes)))
	if err != nil {
		return nil, err
	}
	for _, h := range hashes {
		objType, data, err := s.store.Read(h)
		if err != nil {
			return nil, err
		}
		if _, err := pw.WriteObject(objType, data); err != nil {
			return nil, err
		}
	}
	if _, err := pw.Finish(); err != nil {
		return nil, err
	}
	pack := buf.Bytes()
	if s.opts.OmitTrailer {
		pack = pack[:len(pack)-object.HashSize]
	}
	return pack, nil
}

func (s *Server) writeBody(w http.ResponseWriter, body []byte) {
	switch s.opts.Encoding {
	case "gzip":
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write(body)
		_ = zw.Close()
	case "zstd":
		w.Header().Set("Content-Encoding", "zstd")
		enc, err := zstd.NewWriter(w)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = enc.Write(body)
		_ = enc.Close()
	default:
		_, _ = w.Write(body)
	}
}
