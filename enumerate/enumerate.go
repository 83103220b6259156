// Package enumerate implements the Source Enumerator (spec.md §4.1):
// producing the ordered WorkItem sequence from a local root or a remote
// HTTP index.
package enumerate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"

	"newsxtract/pipeline"
)

// ErrEnumerationFailed is fatal at the run level: the remote index was
// unreachable (spec.md §7).
var ErrEnumerationFailed = errors.New("enumeration failed")

// ErrNoInput is fatal at the run level: zero XML files were found
// (spec.md §7).
var ErrNoInput = errors.New("no input: zero xml files found")

// Enumerator produces the ordered WorkItem sequence for a run.
type Enumerator struct {
	Client     *http.Client
	ScratchDir string // base directory under which per-run scratch dirs are created
}

// New builds an Enumerator with sane defaults, matching the bounded-timeout
// discipline resolve.New() applies to its HTTP client.
func New() *Enumerator {
	return &Enumerator{Client: &http.Client{Timeout: 30 * time.Second}}
}

// Enumerate dispatches to the local or remote strategy based on root's
// scheme.
func (e *Enumerator) Enumerate(ctx context.Context, root string) ([]pipeline.WorkItem, error) {
	if isRemote(root) {
		return e.enumerateRemote(ctx, root)
	}
	return e.enumerateLocal(root)
}

func isRemote(root string) bool {
	return strings.HasPrefix(root, "http://") || strings.HasPrefix(root, "https://")
}

// enumerateLocal performs a depth-first recursive walk selecting files whose
// extension is .xml (case-insensitive). Collected paths are sorted
// afterward into a stable, lexical order, which is what chunked resume
// indexing depends on.
func (e *Enumerator) enumerateLocal(root string) ([]pipeline.WorkItem, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumerationFailed, err)
	}
	if !info.IsDir() {
		if strings.EqualFold(filepath.Ext(root), ".xml") {
			return []pipeline.WorkItem{{Origin: root, OriginalRoot: filepath.Dir(root)}}, nil
		}
		return nil, ErrNoInput
	}

	var items []pipeline.WorkItem
	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// A single unreadable subdirectory is logged and skipped, not fatal.
			return nil
		}
		if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".xml") {
			items = append(items, pipeline.WorkItem{Origin: path, OriginalRoot: root})
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumerationFailed, walkErr)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Origin < items[j].Origin })

	if len(items) == 0 {
		return nil, ErrNoInput
	}
	return items, nil
}

// enumerateRemote fetches the directory index, parses anchor links, and
// recurses into sublinks that look like subdirectories. Each collected XML
// URL is staged to a scratch directory so C2 can read from a local file.
func (e *Enumerator) enumerateRemote(ctx context.Context, root string) ([]pipeline.WorkItem, error) {
	links, err := e.fetchIndexLinks(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumerationFailed, err)
	}

	xmlURLs := e.collectXMLURLs(ctx, root, links, 0)

	if len(xmlURLs) == 0 {
		// Fallback: the root URL itself may be the XML document.
		if strings.EqualFold(filepath.Ext(root), ".xml") {
			xmlURLs = []string{root}
		} else {
			return nil, ErrNoInput
		}
	}

	scratchDir, err := os.MkdirTemp(e.ScratchDir, "newsxtract-scratch-*")
	if err != nil {
		return nil, fmt.Errorf("%w: creating scratch directory: %v", ErrEnumerationFailed, err)
	}

	items := make([]pipeline.WorkItem, 0, len(xmlURLs))
	for i, u := range xmlURLs {
		scratchPath := filepath.Join(scratchDir, fmt.Sprintf("%04d.xml", i))
		if err := e.downloadFile(ctx, u, scratchPath); err != nil {
			continue // a single unreachable file is skipped, not fatal
		}
		items = append(items, pipeline.WorkItem{Origin: u, ScratchPath: scratchPath, OriginalRoot: root})
	}

	if len(items) == 0 {
		return nil, ErrNoInput
	}
	return items, nil
}

const maxRemoteDepth = 4

// collectXMLURLs recurses into sublinks that appear to be subdirectories
// (trailing slash, no recognizable file extension), bounded to a shallow
// depth to avoid pathological index loops.
func (e *Enumerator) collectXMLURLs(ctx context.Context, pageURL string, links []string, depth int) []string {
	var xmls []string
	for _, link := range links {
		resolved := resolveLink(pageURL, link)
		if resolved == "" {
			continue
		}
		if strings.EqualFold(filepath.Ext(resolved), ".xml") {
			xmls = append(xmls, resolved)
			continue
		}
		if depth < maxRemoteDepth && looksLikeDirectory(resolved) {
			subLinks, err := e.fetchIndexLinks(ctx, resolved)
			if err != nil {
				continue
			}
			xmls = append(xmls, e.collectXMLURLs(ctx, resolved, subLinks, depth+1)...)
		}
	}
	return xmls
}

func looksLikeDirectory(link string) bool {
	return strings.HasSuffix(link, "/") || filepath.Ext(link) == ""
}

func resolveLink(base, link string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	linkURL, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(linkURL).String()
}

// fetchIndexLinks requests pageURL and parses anchor href attributes.
func (e *Enumerator) fetchIndexLinks(ctx context.Context, pageURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("index fetch %s: status %d", pageURL, resp.StatusCode)
	}

	return parseAnchorLinks(resp.Body)
}

// parseAnchorLinks extracts every <a href="..."> target from an HTML index
// page via golang.org/x/net/html's tokenizer.
func parseAnchorLinks(r io.Reader) ([]string, error) {
	var links []string
	tokenizer := html.NewTokenizer(r)
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != nil && err != io.EOF {
				return links, err
			}
			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			if tok.Data != "a" {
				continue
			}
			for _, attr := range tok.Attr {
				if attr.Key == "href" {
					links = append(links, attr.Val)
				}
			}
		}
	}
}

func (e *Enumerator) downloadFile(ctx context.Context, fileURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return err
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download %s: status %d", fileURL, resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}
