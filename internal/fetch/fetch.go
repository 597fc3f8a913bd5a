// Package fetch discovers documents on a listing page and downloads them into a working directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/retry"
	"go.uber.org/zap"
)

// Modes select where Collect gets documents from.
const (
	ModeScrape = "scrape"
	ModeFixed  = "fixed"
	ModeLocal  = "local"
)

// Options configures a Fetcher.
type Options struct {
	Mode         string
	ListingURL   string
	Suffix       string
	PathPrefix   string
	MaxDocuments int
	MaxRedirects int
	BackupURLs   []string
	IncludeLocal bool
	UserAgent    string
	Timeout      time.Duration
}

// Fetcher lists and downloads documents.
type Fetcher struct {
	opts   Options
	client *http.Client
	policy retry.Policy
	logger *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets a logger for skipped and failed downloads.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithRetryPolicy sets the retry policy applied to each HTTP fetch.
func WithRetryPolicy(p retry.Policy) Option {
	return func(f *Fetcher) { f.policy = p }
}

// WithHTTPClient replaces the HTTP client. Its redirect policy is overridden; redirects are followed by Fetch.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		clone := *c
		f.client = &clone
	}
}

// New creates a Fetcher.
func New(opts Options, options ...Option) *Fetcher {
	if opts.Mode == "" {
		opts.Mode = ModeScrape
	}
	if opts.Suffix == "" {
		opts.Suffix = ".pdf"
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	f := &Fetcher{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		policy: retry.Once,
	}
	for _, o := range options {
		o(f)
	}
	f.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return f
}

// Fetch downloads url and returns its body. Redirects are followed up to MaxRedirects hops.
// Failures are *models.DownloadError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := f.fetch(ctx, rawURL)
	return body, err
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (body []byte, finalURL string, err error) {
	err = f.policy.Do(ctx, func(ctx context.Context) error {
		body, finalURL, err = f.fetchOnce(ctx, rawURL)
		return err
	}, nil)
	return body, finalURL, err
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) ([]byte, string, error) {
	current := rawURL
	for hops := 0; ; hops++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, current, &models.DownloadError{URL: rawURL, Err: err}
		}
		if f.opts.UserAgent != "" {
			req.Header.Set("User-Agent", f.opts.UserAgent)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, current, &models.DownloadError{URL: rawURL, Err: err}
		}

		if isRedirect(resp.StatusCode) {
			loc := resp.Header.Get("Location")
			drain(resp.Body)
			if loc == "" {
				return nil, current, &models.DownloadError{URL: rawURL, StatusCode: resp.StatusCode}
			}
			if hops >= f.opts.MaxRedirects {
				return nil, current, &models.DownloadError{URL: rawURL, Err: fmt.Errorf("stopped after %d redirects", f.opts.MaxRedirects)}
			}
			next, err := resolve(current, loc)
			if err != nil {
				return nil, current, &models.DownloadError{URL: rawURL, Err: fmt.Errorf("bad redirect location %q: %w", loc, err)}
			}
			current = next
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			drain(resp.Body)
			return nil, current, &models.DownloadError{URL: rawURL, StatusCode: resp.StatusCode}
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, current, &models.DownloadError{URL: rawURL, Err: err}
		}
		return data, current, nil
	}
}

// Download stores ref in dir under its name and returns the path. An existing file is kept and not re-fetched.
// The body is written to a temporary file and renamed, so a failed download leaves nothing behind.
func (f *Fetcher) Download(ctx context.Context, ref models.DocumentRef, dir string) (string, bool, error) {
	name := safeName(ref.Name)
	if name == "" {
		return "", false, &models.DownloadError{URL: ref.URL, Err: errors.New("document has no usable file name")}
	}
	dest := filepath.Join(dir, name)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, false, nil
	}

	data, err := f.Fetch(ctx, ref.URL)
	if err != nil {
		return "", false, err
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", false, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", false, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", false, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", false, fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return dest, true, nil
}

// Collect gathers the documents to ingest into dir according to the mode. Download failures are logged
// and skipped; the returned documents carry Path but no Content.
func (f *Fetcher) Collect(ctx context.Context, dir string) ([]models.Document, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	var refs []models.DocumentRef
	switch f.opts.Mode {
	case ModeScrape:
		listed, err := f.ListDocuments(ctx)
		switch {
		case err != nil:
			f.warn("listing failed; using backup list", zap.String("url", f.opts.ListingURL), zap.Error(err))
			refs = f.backupRefs()
		case len(listed) == 0:
			f.warn("listing has no documents; using backup list", zap.String("url", f.opts.ListingURL))
			refs = f.backupRefs()
		default:
			refs = listed
		}
	case ModeFixed:
		refs = f.backupRefs()
	case ModeLocal:
	default:
		return nil, fmt.Errorf("%w: unknown fetch mode %q", models.ErrConfiguration, f.opts.Mode)
	}

	seen := make(map[string]bool)
	var docs []models.Document
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		p, downloaded, err := f.Download(ctx, ref, dir)
		if err != nil {
			f.warn("download failed", zap.String("document", ref.Name), zap.String("url", ref.URL), zap.Error(err))
			continue
		}
		if !downloaded && f.logger != nil {
			f.logger.Debug("already downloaded", zap.String("document", ref.Name))
		}
		name := filepath.Base(p)
		if seen[name] {
			continue
		}
		seen[name] = true
		docs = append(docs, models.Document{Name: name, URL: ref.URL, Path: p})
	}

	if f.opts.Mode == ModeLocal || f.opts.IncludeLocal {
		local, err := f.localDocuments(dir, seen)
		if err != nil {
			return docs, err
		}
		docs = append(docs, local...)
	}
	return docs, nil
}

func (f *Fetcher) localDocuments(dir string, seen map[string]bool) ([]models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read work dir: %w", err)
	}
	var docs []models.Document
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || seen[name] {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(name), strings.ToLower(f.opts.Suffix)) {
			continue
		}
		seen[name] = true
		docs = append(docs, models.Document{Name: name, Path: filepath.Join(dir, name)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func (f *Fetcher) backupRefs() []models.DocumentRef {
	refs := make([]models.DocumentRef, 0, len(f.opts.BackupURLs))
	for _, raw := range f.opts.BackupURLs {
		u, err := url.Parse(raw)
		if err != nil {
			f.warn("skipping bad backup url", zap.String("url", raw), zap.Error(err))
			continue
		}
		refs = append(refs, models.DocumentRef{Name: nameFromPath(u.Path), URL: raw})
	}
	return refs
}

func (f *Fetcher) warn(msg string, fields ...zap.Field) {
	if f.logger != nil {
		f.logger.Warn(msg, fields...)
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func nameFromPath(p string) string {
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return safeName(path.Base(p))
}

// safeName reduces name to a plain file name that cannot escape the work dir.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "." || name == ".." || name == "/" || strings.HasPrefix(name, ".") {
		return ""
	}
	return name
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	body.Close()
}
