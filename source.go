// source.go: Deploy source resolution and guarded remote fetch
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Fetcher downloads a remote package. Implementations are only called for
// URLs the DomainGuard already accepted.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) ([]byte, error)
}

// HTTPFetcher fetches packages over http(s).
type HTTPFetcher struct {
	Client *http.Client
	// MaxBytes caps the package size; 0 means 256 MiB.
	MaxBytes int64
}

// NewHTTPFetcher creates a fetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = 256 << 20
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("package exceeds %d bytes", limit)
	}
	return data, nil
}

// DomainGuard holds the host suffixes remote sources may come from. It is
// safe for concurrent use and can be updated at runtime.
type DomainGuard struct {
	mu       sync.RWMutex
	suffixes []string
}

// NewDomainGuard creates a guard for the given suffixes.
func NewDomainGuard(suffixes []string) *DomainGuard {
	g := &DomainGuard{}
	g.Set(suffixes)
	return g
}

// Set replaces the allow-list.
func (g *DomainGuard) Set(suffixes []string) {
	normalized := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			normalized = append(normalized, s)
		}
	}
	g.mu.Lock()
	g.suffixes = normalized
	g.mu.Unlock()
}

// Domains returns the current allow-list.
func (g *DomainGuard) Domains() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.suffixes...)
}

// Allowed reports whether host ends with one of the configured suffixes.
// An empty allow-list denies every host.
func (g *DomainGuard) Allowed(host string) bool {
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, suffix := range g.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// resolvedSource is a package ready to be persisted.
type resolvedSource struct {
	payload  []byte
	fileName string
	origin   string
}

func isArchiveContentType(ct string) bool {
	mediaType, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(ct)), ";")
	switch strings.TrimSpace(mediaType) {
	case "application/zip", "application/x-zip-compressed", "application/x-zip":
		return true
	}
	return false
}

func remoteURL(locator string) (*url.URL, bool) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u, true
	}
	return nil, false
}

// targetFileName picks the name the package is persisted under.
func targetFileName(req DeployRequest) string {
	base := ""
	if req.SourceLocator != "" {
		if u, ok := remoteURL(req.SourceLocator); ok {
			base = path.Base(u.Path)
		} else {
			base = filepath.Base(req.SourceLocator)
		}
	}
	if base == "" || base == "." || base == ".." || base == "/" || base == string(filepath.Separator) {
		base = req.Name
	}
	if isArchiveContentType(req.ContentType) && !IsArchive(base) {
		base += ".zip"
	}
	return base
}

// resolveSource turns a request into bytes. Remote URLs are checked against
// guard before any network I/O.
func resolveSource(ctx context.Context, req DeployRequest, guard *DomainGuard, fetcher Fetcher) (*resolvedSource, error) {
	src := &resolvedSource{fileName: targetFileName(req), origin: "content"}

	switch {
	case len(req.Content) > 0:
		src.payload = req.Content

	case req.SourceLocator == "":
		return nil, NewMissingContentError(req.Name)

	default:
		if u, ok := remoteURL(req.SourceLocator); ok {
			if !guard.Allowed(u.Hostname()) {
				return nil, NewDomainNotAllowedError(req.SourceLocator, u.Hostname())
			}
			if fetcher == nil {
				return nil, NewSourceUnreadableError(req.SourceLocator, fmt.Errorf("no fetcher configured"))
			}
			data, err := fetcher.Fetch(ctx, u)
			if err != nil {
				return nil, NewFetchFailedError(req.SourceLocator, err)
			}
			src.payload = data
			src.origin = "remote"
			break
		}

		local := req.SourceLocator
		if u, err := url.Parse(local); err == nil && u.Scheme == "file" {
			local = u.Path
		}
		// #nosec G304 -- local sources are operator supplied
		data, err := os.ReadFile(filepath.Clean(local))
		if err != nil {
			return nil, NewSourceUnreadableError(req.SourceLocator, err)
		}
		src.payload = data
		src.origin = "local"
	}

	if len(src.payload) == 0 {
		return nil, NewMissingContentError(req.Name)
	}
	return src, nil
}
