// Package sessionstore implements the Session State Store (spec.md §4.9):
// durable JSON for pause-state, chunked-processing-state, session history,
// and the current session, each written atomically with a .backup sibling.
package sessionstore

import "time"

// PauseState is the process-wide pause/stop signal, persisted so a fresh
// client call can observe it (spec.md §3).
type PauseState struct {
	IsPaused   bool      `json:"isPaused"`
	ShouldStop bool      `json:"shouldStop"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChunkedProcessingState is the resume anchor for both chunked mode (via
// CurrentChunk/TotalChunks/ChunkSize) and streaming mode (via ProcessedList:
// the origins already accounted for, so resume can re-scan XMLFiles and skip
// them — spec.md §3, §4.8).
type ChunkedProcessingState struct {
	SessionID     string         `json:"sessionId"`
	Config        map[string]any `json:"config"`
	Stats         map[string]int `json:"stats"`
	CurrentChunk  int            `json:"currentChunk"`
	TotalChunks   int            `json:"totalChunks"`
	ChunkSize     int            `json:"chunkSize"`
	XMLFiles      []string       `json:"xmlFiles"`
	ProcessedList []string       `json:"processedFilesList,omitempty"`
	OutputPath    string         `json:"outputPath"`
	StartTime     time.Time      `json:"startTime"`
	PauseTime     *time.Time     `json:"pauseTime,omitempty"`
}

// SessionStatus enumerates SessionRecord.Status values (spec.md §3).
type SessionStatus string

const (
	StatusRunning     SessionStatus = "running"
	StatusPaused      SessionStatus = "paused"
	StatusCompleted   SessionStatus = "completed"
	StatusFailed      SessionStatus = "failed"
	StatusInterrupted SessionStatus = "interrupted"
)

// SessionRecord is one run's durable record (spec.md §3).
type SessionRecord struct {
	ID        string         `json:"id"`
	StartTime time.Time      `json:"startTime"`
	EndTime   *time.Time     `json:"endTime,omitempty"`
	Status    SessionStatus  `json:"status"`
	Config    map[string]any `json:"config"`
	Progress  Progress       `json:"progress"`
	Results   *Results       `json:"results,omitempty"`
}

// Progress embeds one run's stats, as shown in session history and written
// to current_session.json at streaming checkpoints. The list of already-processed origins that
// backs streaming resume lives in ChunkedProcessingState, not here: Progress
// is a terminal/point-in-time snapshot, not a resume anchor.
type Progress struct {
	TotalFiles      int `json:"totalFiles"`
	ProcessedFiles  int `json:"processedFiles"`
	SuccessfulFiles int `json:"successfulFiles"`
	ErrorFiles      int `json:"errorFiles"`
	RecordsWritten  int `json:"recordsWritten"`
	FilteredFiles   int `json:"filteredFiles"`
	MovedFiles      int `json:"movedFiles"`
}

// Results records where the CSV output for a completed session lives.
type Results struct {
	OutputPath string `json:"outputPath"`
}

// history is the on-disk shape of processing_history.json.
type history struct {
	Sessions []SessionRecord `json:"sessions"`
}

const maxHistoryEntries = 100
