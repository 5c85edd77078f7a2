package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odvcencio/minigit/pkg/errkind"
	"github.com/odvcencio/minigit/pkg/object"
)

// Defaults applied to zero-value ClientOptions fields.
const (
	DefaultTimeout          = 60 * time.Second
	DefaultUserAgent        = "minigit/0.1"
	DefaultMaxResponseBytes = 512 << 20
)

// ClientOptions configures the smart-HTTP client.
type ClientOptions struct {
	Timeout          time.Duration // per-request timeout (default 60s)
	UserAgent        string
	MaxResponseBytes int64 // cap on any decoded response body (default 512MB)
	Logger           *slog.Logger
	// HTTPClient replaces the default client; Timeout still applies when
	// the supplied client has none.
	HTTPClient *http.Client
}

// Client speaks git's smart-HTTP protocol to one repository URL. It makes
// exactly one attempt per request; failures are returned to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	log        *slog.Logger
	caps       Capabilities
}

// NewClient creates a client with default options.
func NewClient(remoteURL string) (*Client, error) {
	return NewClientWithOptions(remoteURL, ClientOptions{})
}

// NewClientWithOptions creates a client. Zero-value or negative fields in
// opts receive defaults.
func NewClientWithOptions(remoteURL string, opts ClientOptions) (*Client, error) {
	base, err := normalizeRemoteURL(remoteURL)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Timeout == 0 {
		clone := *hc
		clone.Timeout = opts.Timeout
		hc = &clone
	}

	return &Client{
		baseURL:    base,
		httpClient: hc,
		userAgent:  opts.UserAgent,
		maxBytes:   opts.MaxResponseBytes,
		log:        opts.Logger.With("remote", base),
	}, nil
}

// normalizeRemoteURL checks for an http(s) URL with a host and strips
// trailing slashes, query and fragment.
func normalizeRemoteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errkind.Errorf(errkind.Usage, "remote URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errkind.Errorf(errkind.Usage, "parse remote URL %q: %s", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errkind.Errorf(errkind.Usage, "remote URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", errkind.Errorf(errkind.Usage, "remote URL %q: missing host", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// URL returns the normalized repository URL.
func (c *Client) URL() string {
	return c.baseURL
}

// Capabilities returns the capabilities from the last DiscoverRefs call.
func (c *Client) Capabilities() Capabilities {
	return c.caps
}

// DiscoverRefs lists the remote's refs from
// GET <url>/info/refs?service=git-upload-pack. Every failure is
// RefDiscoveryFailed.
func (c *Client) DiscoverRefs(ctx context.Context) (map[string]object.Hash, error) {
	endpoint := c.baseURL + "/info/refs?service=" + uploadPackService
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errkind.Errorf(errkind.RefDiscoveryFailed, "discover refs %s: %s", endpoint, err)
	}
	c.log.Debug("discover refs", "url", endpoint)

	body, err := c.do(req)
	if err != nil {
		return nil, errkind.Errorf(errkind.RefDiscoveryFailed, "discover refs %s: %s", endpoint, err)
	}
	refs, caps, err := parseAdvertisement(bytes.NewReader(body))
	if err != nil {
		return nil, errkind.Errorf(errkind.RefDiscoveryFailed, "discover refs %s: parse advertisement: %s", endpoint, err)
	}
	c.caps = caps
	c.log.Info("discovered refs", "count", len(refs), "capabilities", caps.String())
	return refs, nil
}

// RequestPack asks for a pack containing wants with a protocol v2 fetch and
// returns the raw response body. Use ExtractPack to get at the pack itself.
// Every failure is PackDownloadFailed.
func (c *Client) RequestPack(ctx context.Context, wants []object.Hash) ([]byte, error) {
	if len(wants) == 0 {
		return nil, errkind.Errorf(errkind.Usage, "request pack: at least one want is required")
	}
	for _, h := range wants {
		if err := object.ValidateHash(h); err != nil {
			return nil, err
		}
	}
	payload, err := buildFetchRequest(wants)
	if err != nil {
		return nil, errkind.Errorf(errkind.PackDownloadFailed, "build fetch request: %s", err)
	}

	endpoint := c.baseURL + "/" + uploadPackService
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errkind.Errorf(errkind.PackDownloadFailed, "request pack %s: %s", endpoint, err)
	}
	req.Header.Set("Content-Type", contentTypeUploadPackRequest)
	req.Header.Set("Accept", contentTypeUploadPackResult)
	req.Header.Set(headerProtocol, protocolVersion)
	c.log.Debug("request pack", "url", endpoint, "wants", len(uniqueSortedHashes(wants)))

	started := time.Now()
	body, err := c.do(req)
	if err != nil {
		return nil, errkind.Errorf(errkind.PackDownloadFailed, "request pack %s: %s", endpoint, err)
	}
	c.log.Info("received pack response", "bytes", len(body), "elapsed", time.Since(started))
	return body, nil
}

// do sends req once, requires a 200 and returns the decoded body, capped at
// the configured size.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", acceptEncoding)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(snippet))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &statusError{method: req.Method, path: req.URL.Path, code: resp.StatusCode, msg: msg}
	}

	decoded, err := decodeContentEncoding(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, err
	}
	defer decoded.Close()

	body, err := io.ReadAll(io.LimitReader(decoded, c.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBytes {
		return nil, &limitError{limit: c.maxBytes}
	}
	return body, nil
}

// statusError reports a non-200 response.
type statusError struct {
	method string
	path   string
	code   int
	msg    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.method, e.path, e.code, e.msg)
}

type limitError struct {
	limit int64
}

func (e *limitError) Error() string {
	return fmt.Sprintf("response exceeds %d bytes", e.limit)
}
