// Package watch implements the Directory Watcher (spec.md §4.10): it detects
// created XML and image files, pairs them by shared base identifier, and
// submits each complete pair through the pool with a dedicated append-only
// CSV sink.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"newsxtract/csvsink"
	"newsxtract/filterspec"
	"newsxtract/pipeline"
	"newsxtract/resolve"
)

// PendingPair is a partially-observed {xml, image} pair, keyed by base
// identifier (spec.md §4.10, GLOSSARY).
type PendingPair struct {
	XMLPath      string
	ImagePath    string
	DiscoveredAt time.Time
}

func (p PendingPair) complete() bool {
	return p.XMLPath != "" && p.ImagePath != ""
}

// Stats mirrors the watcher's observable counters (spec.md §4.10).
type Stats struct {
	XMLFilesDetected   int
	ImageFilesDetected int
	PairsProcessed     int
	FilesMoved         int
	FilesErrored       int
	StartTime          time.Time
}

// Config configures one watcher run.
type Config struct {
	Dir              string
	NumWorkers       int
	Filter           *filterspec.Spec
	OutputFile       string
	PendingHorizon   time.Duration // incomplete pairs older than this are surfaced, not discarded
}

// Watcher monitors Config.Dir recursively for XML/image creations.
type Watcher struct {
	mu sync.Mutex

	cfg      Config
	fsw      *fsnotify.Watcher
	sink     *csvsink.Sink
	pool     *pipeline.Pool
	resolver *resolve.Resolver

	pending      map[string]*PendingPair
	isWatching   bool
	stats        Stats
}

// New builds a Watcher; it does not start watching until Start is called.
func New(cfg Config) (*Watcher, error) {
	if cfg.PendingHorizon <= 0 {
		cfg.PendingHorizon = 10 * time.Minute
	}
	resolver := resolve.New()
	return &Watcher{
		cfg:      cfg,
		resolver: resolver,
		pool:     pipeline.NewPool(cfg.NumWorkers, pipeline.Deps{Resolver: resolver, Filter: cfg.Filter}),
		pending:  make(map[string]*PendingPair),
	}, nil
}

// Start begins watching and writes the dedicated CSV header exactly once.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		return fmt.Errorf("watch: already watching")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("watch: creating fsnotify watcher: %w", err)
	}
	if err := addRecursive(fsw, w.cfg.Dir); err != nil {
		fsw.Close()
		w.mu.Unlock()
		return fmt.Errorf("watch: watching %s: %w", w.cfg.Dir, err)
	}

	sink, err := csvsink.Open(w.cfg.OutputFile, false)
	if err != nil {
		fsw.Close()
		w.mu.Unlock()
		return fmt.Errorf("watch: opening sink: %w", err)
	}

	w.fsw = fsw
	w.sink = sink
	w.isWatching = true
	w.stats.StartTime = time.Now()
	w.mu.Unlock()

	go w.loop(ctx)
	return nil
}

// Stop shuts down the underlying fsnotify watcher and closes the sink.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isWatching {
		return nil
	}
	w.isWatching = false
	fswErr := w.fsw.Close()
	sinkErr := w.sink.Close()
	if fswErr != nil {
		return fswErr
	}
	return sinkErr
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // a single unreadable subdirectory is skipped, not fatal
		}
		if info.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if evt.Op&fsnotify.Create == 0 {
				continue
			}
			w.handleCreate(ctx, evt.Name)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handleCreate(ctx context.Context, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	isXML := ext == ".xml"
	isImage := resolve.IsRecognizedImageExtension(ext)
	if !isXML && !isImage {
		return
	}

	id := baseIdentifier(filepath.Base(path))

	w.mu.Lock()
	pair, ok := w.pending[id]
	if !ok {
		pair = &PendingPair{DiscoveredAt: time.Now()}
		w.pending[id] = pair
	}
	if isXML {
		pair.XMLPath = path
		w.stats.XMLFilesDetected++
	} else {
		pair.ImagePath = path
		w.stats.ImageFilesDetected++
	}
	complete := pair.complete()
	if complete {
		delete(w.pending, id)
	}
	w.mu.Unlock()

	if complete {
		w.submitPair(ctx, *pair)
	}
}

// baseIdentifier is the first four underscore-separated tokens of the
// basename (date, id, med, num), or the full basename when fewer tokens are
// present (spec.md §4.10).
func baseIdentifier(basename string) string {
	name := strings.TrimSuffix(basename, filepath.Ext(basename))
	tokens := strings.Split(name, "_")
	if len(tokens) <= 4 {
		return name
	}
	return strings.Join(tokens[:4], "_")
}

func (w *Watcher) submitPair(ctx context.Context, pair PendingPair) {
	item := pipeline.WorkItem{Origin: pair.XMLPath, PreboundImagePath: pair.ImagePath}
	results := make(chan pipeline.ResultEnvelope, 1)
	w.pool.Submit(ctx, []pipeline.WorkItem{item}, 0, results)
	res := <-results

	w.mu.Lock()
	defer w.mu.Unlock()

	if res.IsError() {
		w.stats.FilesErrored++
		return
	}
	w.stats.PairsProcessed++
	if res.Passed {
		_ = w.sink.Append(res.Record)
		if res.Moved {
			w.stats.FilesMoved++
		}
	}
}

// Status reports the watcher's observable state (spec.md §4.10).
type Status struct {
	IsWatching    bool
	Config        Config
	Stats         Stats
	Uptime        time.Duration
	PendingPairs  []PendingPair
	CompletePairs int
}

// Status returns the watcher's current observable state, surfacing
// incomplete pairs older than the configured horizon.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	var uptime time.Duration
	if !w.stats.StartTime.IsZero() {
		uptime = time.Since(w.stats.StartTime)
	}

	var stale []PendingPair
	now := time.Now()
	for _, p := range w.pending {
		if now.Sub(p.DiscoveredAt) >= w.cfg.PendingHorizon {
			stale = append(stale, *p)
		}
	}

	return Status{
		IsWatching:   w.isWatching,
		Config:       w.cfg,
		Stats:        w.stats,
		Uptime:       uptime,
		PendingPairs: stale,
	}
}
