package pipeline

import "fmt"

// ValidateAccounting checks invariant I1 (processedFiles == successfulFiles +
// errorFiles) the way the teacher's AccountingSummary.Validate cross-checked
// its own four buckets against TotalFiles: every processed item must land in
// exactly one of the two disjoint buckets, with no double-count or gap.
func ValidateAccounting(s Stats) error {
	accounted := s.SuccessfulFiles + s.ErrorFiles
	if accounted != s.ProcessedFiles {
		return fmt.Errorf("accounting mismatch: processed %d files but successful+error accounts for %d", s.ProcessedFiles, accounted)
	}
	if s.FilteredFiles > s.SuccessfulFiles {
		return fmt.Errorf("accounting mismatch: filteredFiles (%d) exceeds successfulFiles (%d)", s.FilteredFiles, s.SuccessfulFiles)
	}
	if s.MovedFiles > s.SuccessfulFiles-s.FilteredFiles {
		return fmt.Errorf("accounting mismatch: movedFiles (%d) exceeds filter-passing files (%d)", s.MovedFiles, s.SuccessfulFiles-s.FilteredFiles)
	}
	return nil
}
