package csvsink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsxtract/pipeline"
)

func TestOpen_FreshRunWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	sink, err := Open(path, false)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(contents), "\n"), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, strings.Join(pipeline.Columns(), ","), lines[0])
}

func TestAppend_WritesRowInColumnOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	sink, err := Open(path, false)
	require.NoError(t, err)

	rec := &pipeline.ExtractedRecord{City: "Paris", Year: "2024", Headline: "hi, there", ActualFileSize: 42}
	require.NoError(t, sink.Append(rec))
	require.NoError(t, sink.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(contents), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "Paris,2024,,"), "city, year, month must lead the row")
	assert.Contains(t, lines[1], `"hi, there"`)
	assert.Contains(t, lines[1], "42")
}

func TestOpen_ResumeDoesNotRewriteHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	sink, err := Open(path, false)
	require.NoError(t, err)
	require.NoError(t, sink.Append(&pipeline.ExtractedRecord{City: "A"}))
	require.NoError(t, sink.Close())

	sink2, err := Open(path, true)
	require.NoError(t, err)
	require.NoError(t, sink2.Append(&pipeline.ExtractedRecord{City: "B"}))
	require.NoError(t, sink2.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(contents), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(pipeline.Columns(), ","), lines[0])
}
