package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"newsxtract/csvsink"
	"newsxtract/enumerate"
	"newsxtract/pipeline"
	"newsxtract/resolve"
	"newsxtract/sessionstore"
)

// Scheduler drives the worker pool through one of the three pacing
// strategies and emits the event taxonomy (spec.md §4.8). It owns the
// process-wide pause/stop signal as the design notes describe: a cancellation
// token threaded into every suspension point, backed durably by the session
// store rather than an ambient global.
type Scheduler struct {
	store      *sessionstore.Store
	enumerator *enumerate.Enumerator
	resolver   *resolve.Resolver

	isPaused   atomic.Bool
	shouldStop atomic.Bool
}

// New builds a Scheduler backed by store.
func New(store *sessionstore.Store) *Scheduler {
	s := &Scheduler{
		store:      store,
		enumerator: enumerate.New(),
		resolver:   resolve.New(),
	}
	if saved, err := store.LoadPauseState(); err == nil && saved != nil {
		s.isPaused.Store(saved.IsPaused)
		s.shouldStop.Store(saved.ShouldStop)
	}
	return s
}

// Pause requests a pause at the next suspension point.
func (s *Scheduler) Pause() error {
	s.isPaused.Store(true)
	return s.store.SavePauseState(&sessionstore.PauseState{IsPaused: true, Timestamp: time.Now()})
}

// Stop requests a stop at the next suspension point.
func (s *Scheduler) Stop() error {
	s.shouldStop.Store(true)
	return s.store.SavePauseState(&sessionstore.PauseState{ShouldStop: true, Timestamp: time.Now()})
}

// Reset clears any persisted pause/stop signal.
func (s *Scheduler) Reset() error {
	s.isPaused.Store(false)
	s.shouldStop.Store(false)
	return s.store.ClearPauseState()
}

// pausePollInterval is how often a running scheduler re-reads pause_state.json,
// so a `newsxtract pause`/`stop` invocation from a separate process (the
// normal case: it runs as its own short-lived command, not a method call on
// the active Scheduler) becomes visible to this run's suspension points.
const pausePollInterval = 500 * time.Millisecond

// watchPauseState polls the store for an externally-written pause/stop signal
// until done is closed. Run()/Resume() already set the atomics directly when
// Pause()/Stop() are called on the same Scheduler instance; this is only for
// the cross-process case.
func (s *Scheduler) watchPauseState(done <-chan struct{}) {
	ticker := time.NewTicker(pausePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			saved, err := s.store.LoadPauseState()
			if err != nil || saved == nil {
				continue
			}
			if saved.IsPaused {
				s.isPaused.Store(true)
			}
			if saved.ShouldStop {
				s.shouldStop.Store(true)
			}
		}
	}
}

// Run starts a new session against cfg. It fails immediately (no event
// stream) if a session is already running (I4).
func (s *Scheduler) Run(ctx context.Context, cfg Config) (<-chan Event, error) {
	if err := s.store.TryAcquireRun(); err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	session := &sessionstore.SessionRecord{
		ID:        sessionID,
		StartTime: time.Now(),
		Status:    sessionstore.StatusRunning,
		Config:    configSnapshot(cfg),
	}
	if err := s.store.SaveCurrentSession(session); err != nil {
		s.store.ReleaseRun()
		return nil, fmt.Errorf("engine: saving session: %w", err)
	}

	events := make(chan Event, 64)
	go s.run(ctx, cfg, session, events)
	return events, nil
}

func configSnapshot(cfg Config) map[string]any {
	return map[string]any{
		"rootDir":            cfg.RootDir,
		"outputFile":         cfg.OutputFile,
		"numWorkers":         cfg.NumWorkers,
		"verbose":            cfg.Verbose,
		"processingMode":     string(cfg.ProcessingMode),
		"chunkSize":          cfg.ChunkSize,
		"pauseBetweenChunks": cfg.PauseBetweenChunks,
		"pauseDuration":      cfg.PauseDuration,
		"dryRun":             cfg.DryRun,
	}
}

func (s *Scheduler) run(ctx context.Context, cfg Config, session *sessionstore.SessionRecord, events chan<- Event) {
	defer close(events)
	defer s.store.ReleaseRun()

	done := make(chan struct{})
	go s.watchPauseState(done)
	defer close(done)

	events <- newEvent(EventStart)

	items, err := s.enumerator.Enumerate(ctx, cfg.RootDir)
	if err != nil {
		s.finalizeFailed(session, err, events)
		return
	}

	outputPath := cfg.OutputFile
	if cfg.OutputFolder != "" {
		outputPath = filepath.Join(cfg.OutputFolder, cfg.OutputFile)
	}
	sink, err := csvsink.Open(outputPath, false)
	if err != nil {
		s.finalizeFailed(session, err, events)
		return
	}
	defer sink.Close()

	pool := pipeline.NewPool(cfg.NumWorkers, pipeline.Deps{Resolver: s.resolver, Filter: cfg.Filter, DryRun: cfg.DryRun})

	var stats pipeline.Stats
	stats.TotalFiles = len(items)

	var outcome runOutcome
	switch cfg.ProcessingMode {
	case ModeChunked:
		outcome = s.runChunked(ctx, cfg, items, pool, sink, session, &stats, events, 0)
	case ModeOneShot:
		outcome = s.runBatch(ctx, cfg, items, pool, sink, session, &stats, events, false)
	default: // ModeStream is the default pacing
		outcome = s.runBatch(ctx, cfg, items, pool, sink, session, &stats, events, true)
	}

	s.finalize(session, &stats, outputPath, outcome, events)
}

// runOutcome distinguishes how a run's dispatch loop ended.
type runOutcome int

const (
	outcomeCompleted runOutcome = iota
	outcomeStopped
	outcomePaused
)

// runBatch implements both one-shot and streaming pacing: identical
// submission model, differing only in whether progress events and periodic
// checkpoints are emitted (spec.md §4.8 (a), (b)).
func (s *Scheduler) runBatch(ctx context.Context, cfg Config, items []pipeline.WorkItem, pool *pipeline.Pool, sink *csvsink.Sink, session *sessionstore.SessionRecord, stats *pipeline.Stats, events chan<- Event, streaming bool) runOutcome {
	results := make(chan pipeline.ResultEnvelope, len(items))

	var processed []string
	if streaming {
		processed = make([]string, 0, len(items))
	}

	go func() {
		var wg sync.WaitGroup
		for i := range items {
			// Pause ends this run just like stop does: resuming re-enters
			// the scheduler as a fresh client call (spec.md §4.8), so there
			// is nothing to wait around for here.
			if s.shouldStop.Load() || s.isPaused.Load() {
				break
			}
			wg.Add(1)
			go func(item pipeline.WorkItem, workerID int) {
				defer wg.Done()
				pool.Submit(ctx, []pipeline.WorkItem{item}, workerID, results)
			}(items[i], i)
		}
		wg.Wait()
	}()

	// suspend persists the already-processed origins for streaming resume
	// (spec.md §3: "streaming resume may re-scan and skip files already in
	// processedFilesList") before reporting the pause/stop outcome. It is a
	// no-op in one-shot mode, which has no resume path.
	suspend := func(outcome runOutcome) runOutcome {
		if streaming {
			if err := s.persistStreamState(session, cfg, items, stats, processed); err != nil {
				events <- Event{Type: EventLog, Message: "checkpoint write failed: " + err.Error(), Timestamp: time.Now()}
			}
		}
		return outcome
	}

	completions := 0
	poll := time.NewTicker(200 * time.Millisecond)
	defer poll.Stop()
	for completions < len(items) {
		select {
		case res := <-results:
			completions++
			if streaming {
				processed = append(processed, res.Item.Origin)
			}
			s.applyResult(res, sink, stats, events, cfg.DryRun)
			if streaming {
				s.emitProgress(stats, events)
				if completions%checkpointEvery == 0 {
					s.checkpointProgress(stats, items)
				}
			}
			if s.shouldStop.Load() {
				return suspend(outcomeStopped)
			}
			if s.isPaused.Load() {
				return suspend(outcomePaused)
			}
		case <-ctx.Done():
			return suspend(outcomeStopped)
		case <-poll.C:
			// Wakes the consumer even with no pending result, so a
			// stop/pause requested before all items are dispatched (the
			// producer breaks early, so fewer results than len(items) will
			// ever arrive) still unblocks this loop instead of waiting
			// forever.
			if s.shouldStop.Load() {
				return suspend(outcomeStopped)
			}
			if s.isPaused.Load() {
				return suspend(outcomePaused)
			}
		}
	}

	if s.isPaused.Load() {
		return suspend(outcomePaused)
	}
	return outcomeCompleted
}

// persistStreamState is runBatch's streaming-mode analog of persistChunkState:
// it records the full origin list plus the subset already processed, so
// Resume can re-scan and skip.
func (s *Scheduler) persistStreamState(session *sessionstore.SessionRecord, cfg Config, items []pipeline.WorkItem, stats *pipeline.Stats, processed []string) error {
	origins := make([]string, len(items))
	for i, it := range items {
		origins[i] = it.Origin
	}
	state := &sessionstore.ChunkedProcessingState{
		SessionID:     session.ID,
		Config:        configSnapshot(cfg),
		Stats:         statsMap(stats),
		XMLFiles:      origins,
		ProcessedList: processed,
		OutputPath:    cfg.OutputFile,
		StartTime:     session.StartTime,
	}
	return s.store.SaveChunkedState(state)
}

// runChunked implements pacing (c): contiguous chunks drained fully before
// the next is dispatched, with an optional inter-chunk pause countdown
// (spec.md §4.8 (c)).
func (s *Scheduler) runChunked(ctx context.Context, cfg Config, items []pipeline.WorkItem, pool *pipeline.Pool, sink *csvsink.Sink, session *sessionstore.SessionRecord, stats *pipeline.Stats, events chan<- Event, startChunk int) runOutcome {
	chunkSize := cfg.ChunkSize
	if chunkSize < 1 {
		chunkSize = 100
	}
	totalChunks := (len(items) + chunkSize - 1) / chunkSize

	for i := startChunk; i < totalChunks; i++ {
		if s.shouldStop.Load() {
			return outcomeStopped
		}
		if s.isPaused.Load() {
			return outcomePaused
		}

		lo := i * chunkSize
		hi := lo + chunkSize
		if hi > len(items) {
			hi = len(items)
		}
		chunk := items[lo:hi]

		chunkStart := newEvent(EventChunkStart)
		chunkStart.CurrentChunk = i
		chunkStart.TotalChunks = totalChunks
		events <- chunkStart

		results := make(chan pipeline.ResultEnvelope, len(chunk))
		pool.Submit(ctx, chunk, lo, results)
		for range chunk {
			res := <-results
			s.applyResult(res, sink, stats, events, cfg.DryRun)
		}

		chunkDone := newEvent(EventChunkComplete)
		chunkDone.CurrentChunk = i
		chunkDone.TotalChunks = totalChunks
		events <- chunkDone
		s.emitProgressChunked(stats, i+1, totalChunks, events)

		if err := s.persistChunkState(session, cfg, items, stats, i+1, totalChunks, chunkSize); err != nil {
			events <- Event{Type: EventLog, Message: "checkpoint write failed: " + err.Error(), Timestamp: time.Now()}
		}

		if s.shouldStop.Load() {
			return outcomeStopped
		}

		if cfg.PauseBetweenChunks && i+1 < totalChunks {
			if stopped, paused := s.countdown(cfg.PauseDuration, events); stopped {
				return outcomeStopped
			} else if paused {
				return outcomePaused
			}
		}
	}

	_ = s.store.ClearChunkedState()
	return outcomeCompleted
}

// countdown emits one pause_countdown per second for seconds ticks,
// checking pause/stop every 200ms (spec.md §4.8, §5).
func (s *Scheduler) countdown(seconds int, events chan<- Event) (stopped, paused bool) {
	for remaining := seconds; remaining > 0; remaining-- {
		evt := newEvent(EventPauseCountdown)
		evt.Remaining = remaining
		events <- evt
		for tick := 0; tick < 5; tick++ {
			time.Sleep(200 * time.Millisecond)
			if s.shouldStop.Load() {
				return true, false
			}
			if s.isPaused.Load() {
				return false, true
			}
		}
	}
	return false, false
}

func (s *Scheduler) applyResult(res pipeline.ResultEnvelope, sink *csvsink.Sink, stats *pipeline.Stats, events chan<- Event, dryRun bool) {
	stats.ProcessedFiles++

	if res.IsError() {
		stats.ErrorFiles++
		events <- Event{Type: EventError, Message: res.Err.Error(), Timestamp: time.Now()}
		return
	}

	// SuccessfulFiles counts "record produced" regardless of filter verdict
	// (spec.md §3); this keeps P1 (processedFiles == successful+errors) true
	// even for items the filter later rejects. See DESIGN.md for the
	// resolution of the apparent conflict with scenario S2's prose.
	stats.SuccessfulFiles++

	if !res.Passed {
		stats.FilteredFiles++
		return
	}

	if dryRun {
		// C7 (CSV append) is skipped: a dry run previews what C1-C4 would
		// produce without writing output (SPEC_FULL.md §10).
		return
	}

	if err := sink.Append(res.Record); err != nil {
		events <- Event{Type: EventError, Message: "sink write failed: " + err.Error(), Timestamp: time.Now()}
		return
	}
	stats.RecordsWritten++

	if res.Moved {
		stats.MovedFiles++
	}
}

func (s *Scheduler) emitProgress(stats *pipeline.Stats, events chan<- Event) {
	evt := newEvent(EventProgress)
	evt.Total = stats.TotalFiles
	evt.Processed = stats.ProcessedFiles
	evt.Successful = stats.SuccessfulFiles
	evt.Errors = stats.ErrorFiles
	evt.Filtered = stats.FilteredFiles
	evt.Moved = stats.MovedFiles
	if stats.TotalFiles > 0 {
		evt.Percentage = 100 * float64(stats.ProcessedFiles) / float64(stats.TotalFiles)
	}
	events <- evt
}

func (s *Scheduler) emitProgressChunked(stats *pipeline.Stats, currentChunk, totalChunks int, events chan<- Event) {
	evt := newEvent(EventProgress)
	evt.Total = stats.TotalFiles
	evt.Processed = stats.ProcessedFiles
	evt.Successful = stats.SuccessfulFiles
	evt.Errors = stats.ErrorFiles
	evt.Filtered = stats.FilteredFiles
	evt.Moved = stats.MovedFiles
	evt.CurrentChunk = currentChunk
	evt.TotalChunks = totalChunks
	if stats.TotalFiles > 0 {
		evt.Percentage = 100 * float64(stats.ProcessedFiles) / float64(stats.TotalFiles)
	}
	events <- evt
}

func (s *Scheduler) checkpointProgress(stats *pipeline.Stats, items []pipeline.WorkItem) {
	current, err := s.store.LoadCurrentSession()
	if err != nil || current == nil {
		return
	}
	current.Progress = progressFromStats(stats)
	_ = s.store.SaveCurrentSession(current)
}

func (s *Scheduler) persistChunkState(session *sessionstore.SessionRecord, cfg Config, items []pipeline.WorkItem, stats *pipeline.Stats, currentChunk, totalChunks, chunkSize int) error {
	origins := make([]string, len(items))
	for i, it := range items {
		origins[i] = it.Origin
	}
	state := &sessionstore.ChunkedProcessingState{
		SessionID:    session.ID,
		Config:       configSnapshot(cfg),
		Stats:        statsMap(stats),
		CurrentChunk: currentChunk,
		TotalChunks:  totalChunks,
		ChunkSize:    chunkSize,
		XMLFiles:     origins,
		OutputPath:   cfg.OutputFile,
		StartTime:    session.StartTime,
	}
	return s.store.SaveChunkedState(state)
}

func statsMap(stats *pipeline.Stats) map[string]int {
	return map[string]int{
		"totalFiles":      stats.TotalFiles,
		"processedFiles":  stats.ProcessedFiles,
		"successfulFiles": stats.SuccessfulFiles,
		"errorFiles":      stats.ErrorFiles,
		"recordsWritten":  stats.RecordsWritten,
		"filteredFiles":   stats.FilteredFiles,
		"movedFiles":      stats.MovedFiles,
	}
}

func progressFromStats(stats *pipeline.Stats) sessionstore.Progress {
	return sessionstore.Progress{
		TotalFiles:      stats.TotalFiles,
		ProcessedFiles:  stats.ProcessedFiles,
		SuccessfulFiles: stats.SuccessfulFiles,
		ErrorFiles:      stats.ErrorFiles,
		RecordsWritten:  stats.RecordsWritten,
		FilteredFiles:   stats.FilteredFiles,
		MovedFiles:      stats.MovedFiles,
	}
}

func (s *Scheduler) finalize(session *sessionstore.SessionRecord, stats *pipeline.Stats, outputPath string, outcome runOutcome, events chan<- Event) {
	now := time.Now()
	session.EndTime = &now
	session.Progress = progressFromStats(stats)

	switch outcome {
	case outcomeStopped:
		session.Status = sessionstore.StatusInterrupted
		events <- Event{Type: EventShutdown, CanResume: true, Stats: statsCopy(stats), Timestamp: now}
	case outcomePaused:
		session.Status = sessionstore.StatusPaused
		events <- Event{Type: EventPaused, CanResume: true, Timestamp: now}
	default:
		session.Status = sessionstore.StatusCompleted
		session.Results = &sessionstore.Results{OutputPath: outputPath}
		if err := pipeline.ValidateAccounting(*stats); err != nil {
			events <- Event{Type: EventError, Message: err.Error(), Timestamp: now}
		}
		events <- Event{Type: EventComplete, Stats: statsCopy(stats), OutputFile: outputPath, Message: "run complete", Timestamp: now}
	}

	_ = s.store.AddSession(*session)
	_ = s.store.ClearCurrentSession()
}

func (s *Scheduler) finalizeFailed(session *sessionstore.SessionRecord, err error, events chan<- Event) {
	now := time.Now()
	session.EndTime = &now
	session.Status = sessionstore.StatusFailed
	events <- Event{Type: EventError, Message: err.Error(), Timestamp: now}
	_ = s.store.AddSession(*session)
	_ = s.store.ClearCurrentSession()
}

func statsCopy(stats *pipeline.Stats) *pipeline.Stats {
	cp := *stats
	return &cp
}

// ErrNotChunked is returned by Resume when no chunked state is persisted.
var ErrNotChunked = errors.New("engine: no chunked processing state to resume")

// Resume reloads persisted chunked state and re-enters the scheduler at the
// saved currentChunk (spec.md §4.8: "Resuming is a fresh client call that
// reloads state and re-enters the scheduler at the saved currentChunk"). The
// same persisted file anchors streaming resume too (chunked.Config records
// which pacing mode produced it), re-scanning XMLFiles and skipping origins
// already in ProcessedList.
func (s *Scheduler) Resume(ctx context.Context, cfg Config) (<-chan Event, error) {
	chunked, err := s.store.LoadChunkedState()
	if err != nil {
		return nil, err
	}
	if chunked == nil {
		return nil, ErrNotChunked
	}
	if err := s.store.TryAcquireRun(); err != nil {
		return nil, err
	}
	if err := s.Reset(); err != nil {
		s.store.ReleaseRun()
		return nil, err
	}

	session := &sessionstore.SessionRecord{
		ID:        chunked.SessionID,
		StartTime: chunked.StartTime,
		Status:    sessionstore.StatusRunning,
		Config:    chunked.Config,
	}
	if err := s.store.SaveCurrentSession(session); err != nil {
		s.store.ReleaseRun()
		return nil, err
	}

	events := make(chan Event, 64)
	mode, _ := chunked.Config["processingMode"].(string)
	if mode == string(ModeChunked) {
		go s.resumeChunked(ctx, cfg, chunked, session, events)
	} else {
		go s.resumeStream(ctx, cfg, chunked, session, events)
	}
	return events, nil
}

func (s *Scheduler) resumeChunked(ctx context.Context, cfg Config, chunked *sessionstore.ChunkedProcessingState, session *sessionstore.SessionRecord, events chan Event) {
	defer close(events)
	defer s.store.ReleaseRun()

	done := make(chan struct{})
	go s.watchPauseState(done)
	defer close(done)

	events <- newEvent(EventStart)

	// Chunk boundaries, the output path and the pacing mode come from the
	// saved state, so CurrentChunk indexes the same items it did before and
	// later checkpoints still record a chunked run.
	cfg.ProcessingMode = ModeChunked
	cfg.ChunkSize = chunked.ChunkSize
	cfg.OutputFile = chunked.OutputPath

	items := make([]pipeline.WorkItem, len(chunked.XMLFiles))
	for i, origin := range chunked.XMLFiles {
		items[i] = pipeline.WorkItem{Origin: origin, OriginalRoot: cfg.RootDir}
	}

	outputPath := chunked.OutputPath
	sink, err := csvsink.Open(outputPath, true)
	if err != nil {
		s.finalizeFailed(session, err, events)
		return
	}
	defer sink.Close()

	pool := pipeline.NewPool(cfg.NumWorkers, pipeline.Deps{Resolver: s.resolver, Filter: cfg.Filter, DryRun: cfg.DryRun})
	stats := statsFromSaved(chunked.Stats, len(items))

	outcome := s.runChunked(ctx, cfg, items, pool, sink, session, &stats, events, chunked.CurrentChunk)
	s.finalize(session, &stats, outputPath, outcome, events)
}

// resumeStream re-enters streaming mode: it re-scans the full origin list
// persisted by the interrupted run and skips anything already present in
// ProcessedList (spec.md §3), continuing to accumulate stats from where the
// prior run left off.
func (s *Scheduler) resumeStream(ctx context.Context, cfg Config, chunked *sessionstore.ChunkedProcessingState, session *sessionstore.SessionRecord, events chan Event) {
	defer close(events)
	defer s.store.ReleaseRun()

	done := make(chan struct{})
	go s.watchPauseState(done)
	defer close(done)

	events <- newEvent(EventStart)

	cfg.ProcessingMode = ModeStream
	cfg.OutputFile = chunked.OutputPath

	alreadyDone := make(map[string]bool, len(chunked.ProcessedList))
	for _, origin := range chunked.ProcessedList {
		alreadyDone[origin] = true
	}
	items := make([]pipeline.WorkItem, 0, len(chunked.XMLFiles))
	for _, origin := range chunked.XMLFiles {
		if !alreadyDone[origin] {
			items = append(items, pipeline.WorkItem{Origin: origin, OriginalRoot: cfg.RootDir})
		}
	}

	outputPath := chunked.OutputPath
	sink, err := csvsink.Open(outputPath, true)
	if err != nil {
		s.finalizeFailed(session, err, events)
		return
	}
	defer sink.Close()

	pool := pipeline.NewPool(cfg.NumWorkers, pipeline.Deps{Resolver: s.resolver, Filter: cfg.Filter, DryRun: cfg.DryRun})
	stats := statsFromSaved(chunked.Stats, len(chunked.XMLFiles))

	outcome := s.runBatch(ctx, cfg, items, pool, sink, session, &stats, events, true)
	s.finalize(session, &stats, outputPath, outcome, events)
}

func statsFromSaved(saved map[string]int, totalFiles int) pipeline.Stats {
	return pipeline.Stats{
		TotalFiles:      totalFiles,
		ProcessedFiles:  saved["processedFiles"],
		SuccessfulFiles: saved["successfulFiles"],
		ErrorFiles:      saved["errorFiles"],
		RecordsWritten:  saved["recordsWritten"],
		FilteredFiles:   saved["filteredFiles"],
		MovedFiles:      saved["movedFiles"],
	}
}
