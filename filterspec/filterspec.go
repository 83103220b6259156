// Package filterspec implements the composite candidate filter (spec §3 FilterSpec,
// §4.4 Filter Evaluator): a file-type allow-list, dimension and size bounds, and five
// text predicates, applied in fixed order with short-circuit on first reject.
package filterspec

import (
	"path/filepath"
	"strconv"
	"strings"

	"newsxtract/pipeline"
)

// Operator is one of the text-predicate comparison modes (spec §3).
type Operator string

const (
	OpLike       Operator = "like"
	OpNotLike    Operator = "notLike"
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "notEquals"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpNotBlank   Operator = "notBlank"
	OpIsBlank    Operator = "isBlank"
)

// TextPredicate compares one ExtractedRecord field against Value using Operator.
// A TextPredicate with an empty Operator is a no-op.
type TextPredicate struct {
	Operator Operator
	Value    string
}

// MoveLayout selects how the Image Mover lays out its destination tree.
type MoveLayout string

const (
	LayoutReplicate MoveLayout = "replicate"
	LayoutFlat      MoveLayout = "flat"
)

// MoveSpec configures the Image Mover (C5).
type MoveSpec struct {
	Enabled     bool
	Destination string
	Layout      MoveLayout
}

// Spec is the composite filter applied to every extracted candidate record.
type Spec struct {
	Enabled bool

	AllowedExtensions map[string]bool // lowercase, no dot

	MinWidth, MaxWidth   *int
	MinHeight, MaxHeight *int

	MinFileSize, MaxFileSize *int64 // bytes

	Creditline    *TextPredicate
	CopyrightLine *TextPredicate
	UsageType     *TextPredicate
	RightsHolder  *TextPredicate
	Location      *TextPredicate

	Move MoveSpec
}

// Result is the filter's verdict plus, for telemetry, the first failing check.
type Result struct {
	Passed       bool
	FailedCheck  string // "", "extension", "dimensions", "fileSize", or the predicate field name
}

// Evaluate applies the filter to rec in the fixed order spec.md §4.4 requires:
// extension, dimensions, file size, then the five text predicates.
func Evaluate(spec *Spec, rec *pipeline.ExtractedRecord) Result {
	if !spec.Enabled {
		return Result{Passed: true}
	}

	if !checkExtension(spec, rec.ImageHref) {
		return Result{Passed: false, FailedCheck: "extension"}
	}

	if !checkDimensions(spec, rec) {
		return Result{Passed: false, FailedCheck: "dimensions"}
	}

	if !checkFileSize(spec, rec) {
		return Result{Passed: false, FailedCheck: "fileSize"}
	}

	checks := []struct {
		name      string
		predicate *TextPredicate
		value     string
	}{
		{"creditline", spec.Creditline, rec.Creditline},
		{"copyrightLine", spec.CopyrightLine, rec.CopyrightLine},
		{"usageType", spec.UsageType, rec.UsageType},
		{"rightsHolder", spec.RightsHolder, rec.RightsHolder},
		{"location", spec.Location, rec.Location},
	}
	for _, c := range checks {
		if c.predicate == nil || c.predicate.Operator == "" {
			continue
		}
		if !matchPredicate(*c.predicate, c.value) {
			return Result{Passed: false, FailedCheck: c.name}
		}
	}

	return Result{Passed: true}
}

func checkExtension(spec *Spec, imageHref string) bool {
	if imageHref == "" {
		return false
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(imageHref), "."))
	return spec.AllowedExtensions[ext]
}

func checkDimensions(spec *Spec, rec *pipeline.ExtractedRecord) bool {
	width := parseIntOrZero(rec.ImageWidth)
	height := parseIntOrZero(rec.ImageHeight)

	if spec.MinWidth != nil && width < *spec.MinWidth {
		return false
	}
	if spec.MaxWidth != nil && width > *spec.MaxWidth {
		return false
	}
	if spec.MinHeight != nil && height < *spec.MinHeight {
		return false
	}
	if spec.MaxHeight != nil && height > *spec.MaxHeight {
		return false
	}
	return true
}

func checkFileSize(spec *Spec, rec *pipeline.ExtractedRecord) bool {
	size := rec.ActualFileSize
	if size <= 0 {
		size = parseSizeWithSeparators(rec.ImageSize)
	}

	if spec.MinFileSize != nil && size < *spec.MinFileSize {
		return false
	}
	if spec.MaxFileSize != nil && size > *spec.MaxFileSize {
		return false
	}
	return true
}

// matchPredicate compares value against p.Value per spec §3/§4.4: both sides
// are lowercased and trimmed before comparison (P7: case/whitespace invariant).
func matchPredicate(p TextPredicate, value string) bool {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	v := norm(value)
	target := norm(p.Value)

	switch p.Operator {
	case OpLike:
		return strings.Contains(v, target)
	case OpNotLike:
		return !strings.Contains(v, target)
	case OpEquals:
		return v == target
	case OpNotEquals:
		return v != target
	case OpStartsWith:
		return strings.HasPrefix(v, target)
	case OpEndsWith:
		return strings.HasSuffix(v, target)
	case OpNotBlank:
		return v != ""
	case OpIsBlank:
		return v == ""
	default:
		return true
	}
}

func parseIntOrZero(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// parseSizeWithSeparators strips thousands separators (commas, ASCII spaces)
// before parsing, since ExtractedRecord.ImageSize preserves the raw XML string.
func parseSizeWithSeparators(s string) int64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
