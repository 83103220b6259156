// Package pipeline holds the data shapes that flow between the source
// enumerator, the XML extractor, the image resolver/mover, and the CSV sink.
package pipeline

import (
	"strconv"
	"time"
)

// WorkItem identifies one XML document queued for processing.
type WorkItem struct {
	Origin       string // local path or remote URL
	ScratchPath  string // present iff Origin is remote: local staged copy
	OriginalRoot string // the root the caller requested; used to compute relative paths for moves
	WorkerID     int    // monotonic within a run, assigned on dispatch

	// PreboundImagePath short-circuits the resolver when the watcher already
	// paired this document with an on-disk image file.
	PreboundImagePath string
}

// Path returns the local file the extractor should read: ScratchPath for a
// staged remote document, otherwise Origin itself.
func (w WorkItem) Path() string {
	if w.ScratchPath != "" {
		return w.ScratchPath
	}
	return w.Origin
}

// ExtractedRecord is the flat tuple written to CSV, 37 fields in fixed order.
type ExtractedRecord struct {
	// Provenance
	City  string
	Year  string
	Month string

	// Identification
	NewsItemID string
	DateID     string
	ProviderID string

	// Editorial
	Headline      string
	Byline        string
	Dateline      string
	Creditline    string
	CopyrightLine string
	Slugline      string
	Keywords      string
	Edition       string
	Location      string
	Country       string
	CityMeta      string
	PageNumber    string

	// Management
	Status        string
	Urgency       string
	Language      string
	Subject       string
	Processed     string
	Published     string
	CreationDate  string
	RevisionDate  string

	// Rights
	UsageType    string
	RightsHolder string

	// Image
	ImageWidth     string
	ImageHeight    string
	ImageSize      string // raw XML string, may contain thousands separators
	ActualFileSize int64  // measured, non-negative
	ImageHref      string
	XMLPath        string
	ImagePath      string
	ImageExists    string // "Yes" or "No"

	// Free text
	CommentData string
}

// Columns returns the 37 column names in the fixed order §6 requires.
func Columns() []string {
	return []string{
		"city", "year", "month", "newsItemId", "dateId", "providerId",
		"headline", "byline", "dateline", "creditline", "copyrightLine",
		"slugline", "keywords", "edition", "location", "country", "city_meta",
		"pageNumber", "status", "urgency", "language", "subject", "processed",
		"published", "usageType", "rightsHolder", "imageWidth", "imageHeight",
		"imageSize", "actualFileSize", "imageHref", "xmlPath", "imagePath",
		"imageExists", "creationDate", "revisionDate", "commentData",
	}
}

// Row serializes the record to the same column order Columns() returns.
func (r *ExtractedRecord) Row() []string {
	return []string{
		r.City, r.Year, r.Month, r.NewsItemID, r.DateID, r.ProviderID,
		r.Headline, r.Byline, r.Dateline, r.Creditline, r.CopyrightLine,
		r.Slugline, r.Keywords, r.Edition, r.Location, r.Country, r.CityMeta,
		r.PageNumber, r.Status, r.Urgency, r.Language, r.Subject, r.Processed,
		r.Published, r.UsageType, r.RightsHolder, r.ImageWidth, r.ImageHeight,
		r.ImageSize, strconv.FormatInt(r.ActualFileSize, 10), r.ImageHref, r.XMLPath,
		r.ImagePath, r.ImageExists, r.CreationDate, r.RevisionDate, r.CommentData,
	}
}

// Stats are the monotonic non-decreasing per-run counters (spec §3).
type Stats struct {
	TotalFiles      int
	ProcessedFiles  int
	SuccessfulFiles int
	ErrorFiles      int
	RecordsWritten  int
	FilteredFiles   int
	MovedFiles      int
}

// ResultEnvelope is what a worker task produces for one WorkItem.
type ResultEnvelope struct {
	Item     WorkItem
	Record   *ExtractedRecord // nil on extraction/match failure
	Passed   bool             // filter verdict; meaningless if Record is nil
	Moved    bool
	Err      error
	WorkerID int
	Elapsed  time.Duration
}

// IsError reports whether this result should count against Stats.ErrorFiles:
// extraction failed, the picture component was missing, or the task timed out.
func (r *ResultEnvelope) IsError() bool {
	return r.Record == nil && r.Err != nil
}
