// Package resolve implements the Image Resolver (spec.md §4.3): given an
// extracted imageHref and the document's origin, it locates the backing
// image file and measures its real size. The resolver is read-only.
package resolve

import (
	"context"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"newsxtract/pipeline"
)

// MatchType reports how (or whether) the backing image was located.
type MatchType string

const (
	MatchExact           MatchType = "exact"
	MatchCaseInsensitive  MatchType = "case-insensitive"
	MatchEnhancedPattern  MatchType = "enhanced-pattern"
	MatchNone             MatchType = "none"
	MatchError            MatchType = "error"
)

// Match describes the outcome of the local/remote search.
type Match struct {
	Type       MatchType
	Confidence string // "high", "medium", or "" when not a pattern match
	Reason     string
	FileName   string
}

// Result is what the resolver reports back to the pipeline.
type Result struct {
	ActualImagePath string
	ImageExists     bool
	ActualFileSize  int64
	Match           Match
}

// recognizedImageExtensions is the set from spec.md §4.3, used both to
// restrict the case-insensitive directory scan and to gate the mover.
var recognizedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
	".tiff": true, ".tif": true, ".webp": true, ".svg": true,
}

// IsRecognizedImageExtension reports whether ext (with or without a leading
// dot) is one of the image extensions the resolver/mover understand.
func IsRecognizedImageExtension(ext string) bool {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return recognizedImageExtensions[strings.ToLower(ext)]
}

// relatedFilePattern matches candidate base names of the form
// YYYY-MM-DD_ID_MED_NUM(_...) used by the related-filename heuristic.
var relatedFilePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_([^_]+)_([^_]+)_(\d+)`)

// Filesystem abstracts the local filesystem calls the resolver needs, so
// tests can exercise the search strategy without touching disk.
type Filesystem interface {
	Stat(path string) (size int64, err error)
	ReadDir(dir string) ([]string, error)
}

// HTTPDoer is the subset of *http.Client the resolver needs for remote HEAD
// probes.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolver resolves images for extracted records.
type Resolver struct {
	FS     Filesystem
	Client HTTPDoer
}

// New builds a Resolver backed by the real filesystem and a bounded-timeout
// HTTP client, mirroring the defensive timeout discipline the teacher's
// file-copy code applies to every I/O operation.
func New() *Resolver {
	return &Resolver{
		FS:     osFilesystem{},
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Resolve locates the image backing rec, given the document's origin (local
// path or remote URL). preboundImagePath short-circuits the search entirely
// when the directory watcher has already paired the XML with an image file.
func (r *Resolver) Resolve(ctx context.Context, rec *pipeline.ExtractedRecord, origin, preboundImagePath string) Result {
	if preboundImagePath != "" {
		return r.statLocal(preboundImagePath, Match{Type: MatchExact, Reason: "pre-bound by watcher", FileName: filepath.Base(preboundImagePath)})
	}

	if rec.ImageHref == "" {
		return Result{Match: Match{Type: MatchNone, Reason: "no imageHref"}}
	}

	if isRemote(origin) {
		return r.resolveRemote(ctx, rec.ImageHref, origin)
	}
	return r.resolveLocal(rec.ImageHref, origin)
}

func isRemote(origin string) bool {
	return strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://")
}

// resolveLocal implements the local search order from spec.md §4.3: exact,
// case-insensitive, related-filename, then the same three steps repeated in
// each alternate directory.
func (r *Resolver) resolveLocal(imageHref, xmlPath string) Result {
	dir := filepath.Dir(xmlPath)
	primary := filepath.Join(filepath.Dir(dir), "media")

	dirs := []string{primary}
	for _, alt := range []string{
		filepath.Join(filepath.Dir(dir), "media"),
		filepath.Join(filepath.Dir(dir), "images"),
		filepath.Dir(dir),
		dir,
	} {
		if alt != primary && !containsDir(dirs, alt) {
			dirs = append(dirs, alt)
		}
	}

	for _, d := range dirs {
		if res, ok := r.searchDir(d, imageHref); ok {
			return res
		}
	}

	return Result{Match: Match{Type: MatchNone, Reason: "image not found in any candidate directory", FileName: imageHref}}
}

func containsDir(dirs []string, d string) bool {
	for _, existing := range dirs {
		if existing == d {
			return true
		}
	}
	return false
}

// searchDir applies steps 1–3 of the local search order within a single
// directory: exact path, case-insensitive match, related-filename heuristic.
func (r *Resolver) searchDir(dir, imageHref string) (Result, bool) {
	exact := filepath.Join(dir, imageHref)
	if size, err := r.FS.Stat(exact); err == nil {
		return Result{ActualImagePath: exact, ImageExists: true, ActualFileSize: size,
			Match: Match{Type: MatchExact, FileName: imageHref}}, true
	}

	entries, err := r.FS.ReadDir(dir)
	if err != nil {
		return Result{}, false
	}

	lowerTarget := strings.ToLower(imageHref)
	for _, name := range entries {
		if strings.ToLower(name) == lowerTarget && IsRecognizedImageExtension(filepath.Ext(name)) {
			path := filepath.Join(dir, name)
			if size, err := r.FS.Stat(path); err == nil {
				return Result{ActualImagePath: path, ImageExists: true, ActualFileSize: size,
					Match: Match{Type: MatchCaseInsensitive, FileName: name}}, true
			}
		}
	}

	if best, ok := relatedMatch(entries, imageHref); ok {
		path := filepath.Join(dir, best.FileName)
		if size, err := r.FS.Stat(path); err == nil {
			return Result{ActualImagePath: path, ImageExists: true, ActualFileSize: size, Match: best}, true
		}
	}

	return Result{}, false
}

// relatedMatch implements the related-filename heuristic (spec.md §4.3,
// GLOSSARY): candidates whose YYYY-MM-DD date segment matches the target are
// related; confidence is "high" when the MED token also matches, else
// "medium". The highest-confidence related file wins.
func relatedMatch(entries []string, imageHref string) (Match, bool) {
	targetGroups := relatedFilePattern.FindStringSubmatch(strings.TrimSuffix(imageHref, filepath.Ext(imageHref)))
	if targetGroups == nil {
		return Match{}, false
	}
	targetDate, targetMed := targetGroups[1], targetGroups[3]

	var best Match
	found := false
	for _, name := range entries {
		if !IsRecognizedImageExtension(filepath.Ext(name)) {
			continue
		}
		groups := relatedFilePattern.FindStringSubmatch(strings.TrimSuffix(name, filepath.Ext(name)))
		if groups == nil || groups[1] != targetDate {
			continue
		}
		confidence := "medium"
		if groups[3] == targetMed {
			confidence = "high"
		}
		candidate := Match{Type: MatchEnhancedPattern, Confidence: confidence, FileName: name,
			Reason: "date segment matches " + targetDate}
		if !found || rank(confidence) > rank(best.Confidence) {
			best = candidate
			found = true
		}
	}
	return best, found
}

func rank(confidence string) int {
	if confidence == "high" {
		return 2
	}
	if confidence == "medium" {
		return 1
	}
	return 0
}

func (r *Resolver) statLocal(path string, match Match) Result {
	size, err := r.FS.Stat(path)
	if err != nil {
		return Result{Match: Match{Type: MatchNone, Reason: "pre-bound image path does not exist", FileName: filepath.Base(path)}}
	}
	return Result{ActualImagePath: path, ImageExists: true, ActualFileSize: size, Match: match}
}

// resolveRemote rewrites the XML URL's path to point at the media directory
// (spec.md §4.3: replace a "processed" segment with "media", or append
// media/<href> when no such segment exists) and performs a HEAD request.
func (r *Resolver) resolveRemote(ctx context.Context, imageHref, xmlURL string) Result {
	target := remoteImageURL(xmlURL, imageHref)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return Result{ActualImagePath: target, Match: Match{Type: MatchError, Reason: err.Error()}}
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return Result{ActualImagePath: target, Match: Match{Type: MatchError, Reason: err.Error()}}
	}
	defer resp.Body.Close()

	exists := resp.StatusCode >= 200 && resp.StatusCode < 300
	var size int64
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if parsed, err := strconv.ParseInt(cl, 10, 64); err == nil {
			size = parsed
		}
	}

	matchType := MatchNone
	if exists {
		matchType = MatchExact
	}
	return Result{ActualImagePath: target, ImageExists: exists, ActualFileSize: size,
		Match: Match{Type: matchType, FileName: filepath.Base(target)}}
}

func remoteImageURL(xmlURL, imageHref string) string {
	idx := strings.LastIndex(xmlURL, "/")
	if idx == -1 {
		return imageHref
	}
	dirURL := xmlURL[:idx]

	if i := strings.LastIndex(dirURL, "/processed"); i != -1 && (i+len("/processed") == len(dirURL) || dirURL[i+len("/processed")] == '/') {
		rewritten := dirURL[:i] + "/media" + dirURL[i+len("/processed"):]
		return rewritten + "/" + imageHref
	}
	return dirURL + "/media/" + imageHref
}
