package filterspec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"newsxtract/pipeline"
)

func intp(n int) *int     { return &n }
func i64p(n int64) *int64 { return &n }

func TestEvaluate_DisabledSpecAcceptsEverything(t *testing.T) {
	spec := &Spec{Enabled: false}
	rec := &pipeline.ExtractedRecord{ImageHref: "bogus.bmp", ImageWidth: "1"}
	result := Evaluate(spec, rec)
	assert.True(t, result.Passed)
	assert.Empty(t, result.FailedCheck)
}

func TestEvaluate_RejectsDisallowedExtension(t *testing.T) {
	spec := &Spec{Enabled: true, AllowedExtensions: map[string]bool{"jpg": true}}
	rec := &pipeline.ExtractedRecord{ImageHref: "photo.png"}
	result := Evaluate(spec, rec)
	assert.False(t, result.Passed)
	assert.Equal(t, "extension", result.FailedCheck)
}

func TestEvaluate_ChecksOrderExtensionBeforeDimensions(t *testing.T) {
	spec := &Spec{
		Enabled:           true,
		AllowedExtensions: map[string]bool{},
		MinWidth:          intp(100),
	}
	rec := &pipeline.ExtractedRecord{ImageHref: "photo.jpg", ImageWidth: "1"}
	result := Evaluate(spec, rec)
	assert.Equal(t, "extension", result.FailedCheck, "extension must be checked before dimensions")
}

func TestEvaluate_DimensionBounds(t *testing.T) {
	spec := &Spec{
		Enabled:           true,
		AllowedExtensions: map[string]bool{"jpg": true},
		MinWidth:          intp(800),
		MaxHeight:         intp(600),
	}
	cases := []struct {
		name          string
		width, height string
		wantPassed    bool
	}{
		{"below min width", "640", "400", false},
		{"above max height", "900", "700", false},
		{"within bounds", "1024", "500", true},
	}
	for _, c := range cases {
		rec := &pipeline.ExtractedRecord{ImageHref: "x.jpg", ImageWidth: c.width, ImageHeight: c.height}
		result := Evaluate(spec, rec)
		assert.Equal(t, c.wantPassed, result.Passed, c.name)
	}
}

func TestEvaluate_FileSizeFallsBackToImageSizeField(t *testing.T) {
	spec := &Spec{
		Enabled:           true,
		AllowedExtensions: map[string]bool{"jpg": true},
		MinFileSize:       i64p(1000),
	}
	rec := &pipeline.ExtractedRecord{ImageHref: "x.jpg", ImageSize: "1,200"}
	result := Evaluate(spec, rec)
	assert.True(t, result.Passed)
}

func TestEvaluate_TextPredicates_CaseAndWhitespaceInvariant(t *testing.T) {
	spec := &Spec{
		Enabled:           true,
		AllowedExtensions: map[string]bool{"jpg": true},
		Creditline:        &TextPredicate{Operator: OpEquals, Value: "  Reuters  "},
	}
	rec := &pipeline.ExtractedRecord{ImageHref: "x.jpg", Creditline: "REUTERS"}
	result := Evaluate(spec, rec)
	assert.True(t, result.Passed, "equals should be case/whitespace invariant (P7)")
}

func TestEvaluate_AllOperators(t *testing.T) {
	cases := []struct {
		op     Operator
		value  string
		target string
		want   bool
	}{
		{OpLike, "hello world", "lo wo", true},
		{OpNotLike, "hello world", "zzz", true},
		{OpEquals, "abc", "abc", true},
		{OpNotEquals, "abc", "xyz", true},
		{OpStartsWith, "abcdef", "abc", true},
		{OpEndsWith, "abcdef", "def", true},
		{OpNotBlank, "abc", "", true},
		{OpIsBlank, "", "", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, matchPredicate(TextPredicate{Operator: c.op, Value: c.target}, c.value), c.op)
	}
}

func TestEvaluate_NilPredicateIsNoOp(t *testing.T) {
	spec := &Spec{Enabled: true, AllowedExtensions: map[string]bool{"jpg": true}}
	rec := &pipeline.ExtractedRecord{ImageHref: "x.jpg", Creditline: "anything"}
	result := Evaluate(spec, rec)
	assert.True(t, result.Passed)
}
