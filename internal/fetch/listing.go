package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hyperjump/tanya/internal/models"
	"golang.org/x/net/html"
)

// ListDocuments fetches the listing page and returns the linked documents whose path ends in the suffix
// (case-insensitive) and starts with the path prefix, in page order, de-duplicated and capped at MaxDocuments.
func (f *Fetcher) ListDocuments(ctx context.Context) ([]models.DocumentRef, error) {
	if f.opts.ListingURL == "" {
		return nil, fmt.Errorf("%w: no listing url", models.ErrConfiguration)
	}
	body, finalURL, err := f.fetch(ctx, f.opts.ListingURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(finalURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing url: %w", err)
	}
	return f.parseListing(body, base)
}

func (f *Fetcher) parseListing(body []byte, base *url.URL) ([]models.DocumentRef, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	suffix := strings.ToLower(f.opts.Suffix)
	seen := make(map[string]bool)
	var refs []models.DocumentRef

	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" {
			if ref, ok := f.linkRef(n, base, suffix); ok && !seen[ref.URL] {
				seen[ref.URL] = true
				refs = append(refs, ref)
				if f.opts.MaxDocuments > 0 && len(refs) >= f.opts.MaxDocuments {
					return false
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)
	return refs, nil
}

func (f *Fetcher) linkRef(n *html.Node, base *url.URL, suffix string) (models.DocumentRef, bool) {
	var href string
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, "href") {
			href = strings.TrimSpace(a.Val)
			break
		}
	}
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "mailto:") {
		return models.DocumentRef{}, false
	}
	u, err := url.Parse(href)
	if err != nil {
		return models.DocumentRef{}, false
	}
	u = base.ResolveReference(u)
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.DocumentRef{}, false
	}
	u.Fragment = ""
	if !strings.HasSuffix(strings.ToLower(u.Path), suffix) {
		return models.DocumentRef{}, false
	}
	if f.opts.PathPrefix != "" && !strings.HasPrefix(u.Path, f.opts.PathPrefix) {
		return models.DocumentRef{}, false
	}
	name := nameFromPath(u.Path)
	if name == "" {
		return models.DocumentRef{}, false
	}
	return models.DocumentRef{Name: name, URL: u.String()}, true
}
