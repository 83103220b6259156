package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsxtract/filterspec"
	"newsxtract/sessionstore"
)

func newsMLFixture(imageHref string, width, height int) string {
	dims := ""
	if width > 0 {
		dims += `<Property FormalName="width" Value="` + strconv.Itoa(width) + `"/>`
	}
	if height > 0 {
		dims += `<Property FormalName="height" Value="` + strconv.Itoa(height) + `"/>`
	}
	return `<?xml version="1.0"?>
<NewsML>
  <NewsItem>
    <Identification><NewsIdentifier><NewsItemId>1</NewsItemId></NewsIdentifier></Identification>
    <NewsManagement><Status FormalName="Usable"/></NewsManagement>
    <NewsComponent>
      <Role FormalName="PICTURE"/>
      <NewsLines><HeadLine>a headline</HeadLine></NewsLines>
      <ContentItem Href="` + imageHref + `">
        <MediaType FormalName="HIGHRES"/>
        <Characteristics>` + dims + `</Characteristics>
      </ContentItem>
    </NewsComponent>
  </NewsItem>
</NewsML>`
}

func drain(t *testing.T, events <-chan Event, timeout time.Duration) []Event {
	t.Helper()
	var collected []Event
	deadline := time.After(timeout)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, evt)
		case <-deadline:
			t.Fatal("timed out draining events")
		}
	}
}

// TestRun_MinimalHappyPath covers scenario S1 (spec.md §8).
func TestRun_MinimalHappyPath(t *testing.T) {
	root := t.TempDir()
	processedDir := filepath.Join(root, "processed")
	mediaDir := filepath.Join(root, "media")
	require.NoError(t, os.MkdirAll(processedDir, 0o755))
	require.NoError(t, os.MkdirAll(mediaDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(processedDir, "story.xml"), []byte(newsMLFixture("a.jpg", 0, 0)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(mediaDir, "a.jpg"), make([]byte, 1234), 0o644))

	store, err := sessionstore.New(t.TempDir())
	require.NoError(t, err)
	sched := New(store)

	outPath := filepath.Join(t.TempDir(), "out.csv")
	events, err := sched.Run(context.Background(), Config{
		RootDir: processedDir, OutputFile: outPath, NumWorkers: 2,
		ProcessingMode: ModeStream, Filter: &filterspec.Spec{Enabled: false},
	})
	require.NoError(t, err)

	collected := drain(t, events, 5*time.Second)
	require.NotEmpty(t, collected)
	assert.Equal(t, EventStart, collected[0].Type)

	var complete *Event
	for i := range collected {
		if collected[i].Type == EventComplete {
			complete = &collected[i]
		}
	}
	require.NotNil(t, complete)
	require.NotNil(t, complete.Stats)
	assert.Equal(t, 1, complete.Stats.TotalFiles)
	assert.Equal(t, 1, complete.Stats.ProcessedFiles)
	assert.Equal(t, 1, complete.Stats.SuccessfulFiles)
	assert.Equal(t, 1, complete.Stats.RecordsWritten)

	body, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "1234")
	assert.Contains(t, string(body), "Yes")
}

// TestRun_FilterRejectsByDimension covers scenario S2 (spec.md §8).
func TestRun_FilterRejectsByDimension(t *testing.T) {
	root := t.TempDir()
	processedDir := filepath.Join(root, "processed")
	mediaDir := filepath.Join(root, "media")
	require.NoError(t, os.MkdirAll(processedDir, 0o755))
	require.NoError(t, os.MkdirAll(mediaDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(processedDir, "story.xml"), []byte(newsMLFixture("a.jpg", 800, 600)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(mediaDir, "a.jpg"), make([]byte, 10), 0o644))

	store, err := sessionstore.New(t.TempDir())
	require.NoError(t, err)
	sched := New(store)

	minWidth := 1024
	outPath := filepath.Join(t.TempDir(), "out.csv")
	events, err := sched.Run(context.Background(), Config{
		RootDir: processedDir, OutputFile: outPath, NumWorkers: 2,
		ProcessingMode: ModeStream,
		Filter: &filterspec.Spec{
			Enabled:           true,
			AllowedExtensions: map[string]bool{"jpg": true},
			MinWidth:          &minWidth,
		},
	})
	require.NoError(t, err)

	collected := drain(t, events, 5*time.Second)
	var complete *Event
	for i := range collected {
		if collected[i].Type == EventComplete {
			complete = &collected[i]
		}
	}
	require.NotNil(t, complete)
	assert.Equal(t, 1, complete.Stats.FilteredFiles)
	assert.Equal(t, 1, complete.Stats.ProcessedFiles)
	assert.Equal(t, 0, complete.Stats.ErrorFiles)
	assert.Equal(t, 0, complete.Stats.RecordsWritten)

	body, err := os.ReadFile(outPath)
	require.NoError(t, err)
	lines := splitLines(string(body))
	assert.Len(t, lines, 1, "only the header row should be present")
}

// TestRun_MalformedXMLCountedAsError covers scenario S5 (spec.md §8).
func TestRun_MalformedXMLCountedAsError(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.xml"), []byte("<NotNewsML/>"), 0o644))

	store, err := sessionstore.New(t.TempDir())
	require.NoError(t, err)
	sched := New(store)

	outPath := filepath.Join(t.TempDir(), "out.csv")
	events, err := sched.Run(context.Background(), Config{
		RootDir: root, OutputFile: outPath, NumWorkers: 1,
		ProcessingMode: ModeStream, Filter: &filterspec.Spec{Enabled: false},
	})
	require.NoError(t, err)

	collected := drain(t, events, 5*time.Second)
	var complete *Event
	for i := range collected {
		if collected[i].Type == EventComplete {
			complete = &collected[i]
		}
	}
	require.NotNil(t, complete)
	assert.Equal(t, 1, complete.Stats.ErrorFiles)
	assert.Equal(t, 0, complete.Stats.RecordsWritten)
}

func TestRun_RefusesConcurrentSession(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.xml"), []byte(newsMLFixture("a.jpg", 0, 0)), 0o644))

	dir := t.TempDir()
	store, err := sessionstore.New(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveCurrentSession(&sessionstore.SessionRecord{ID: "running", Status: sessionstore.StatusRunning}))

	sched := New(store)
	_, err = sched.Run(context.Background(), Config{RootDir: root, OutputFile: filepath.Join(t.TempDir(), "out.csv"), Filter: &filterspec.Spec{}})
	assert.ErrorIs(t, err, sessionstore.ErrSessionActive)
}

// TestRun_PauseDuringStreamingModeEmitsPausedAndCloses guards against the
// consumer livelock: a pause requested during streaming (or one-shot) mode
// must end the run with a paused event and a closed stream, not hang. Pause
// is requested before Run so the producer's very first dispatch check sees
// it, making the scenario deterministic instead of racing the run to finish.
func TestRun_PauseDuringStreamingModeEmitsPausedAndCloses(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("story%d.xml", i)
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(newsMLFixture("a.jpg", 0, 0)), 0o644))
	}

	store, err := sessionstore.New(t.TempDir())
	require.NoError(t, err)
	sched := New(store)
	require.NoError(t, sched.Pause())

	outPath := filepath.Join(t.TempDir(), "out.csv")
	events, err := sched.Run(context.Background(), Config{
		RootDir: root, OutputFile: outPath, NumWorkers: 2,
		ProcessingMode: ModeStream, Filter: &filterspec.Spec{Enabled: false},
	})
	require.NoError(t, err)

	collected := drain(t, events, 5*time.Second)
	require.NotEmpty(t, collected)

	var paused *Event
	for i := range collected {
		if collected[i].Type == EventPaused {
			paused = &collected[i]
		}
	}
	require.NotNil(t, paused, "expected a paused event; the run must not hang when pause is requested during streaming mode")
	assert.True(t, paused.CanResume)

	saved, err := store.LoadChunkedState()
	require.NoError(t, err)
	require.NotNil(t, saved, "pausing a streaming run must persist resume state")
	assert.Len(t, saved.XMLFiles, 3)
}

// TestResume_StreamingModeSkipsAlreadyProcessed covers the streaming resume
// path: origins already recorded in ProcessedList must not be re-submitted
// or double-written to the CSV.
func TestResume_StreamingModeSkipsAlreadyProcessed(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 2; i++ {
		name := fmt.Sprintf("story%d.xml", i)
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(newsMLFixture("a.jpg", 0, 0)), 0o644))
	}

	store, err := sessionstore.New(t.TempDir())
	require.NoError(t, err)
	sched := New(store)
	require.NoError(t, sched.Pause())

	outPath := filepath.Join(t.TempDir(), "out.csv")
	events, err := sched.Run(context.Background(), Config{
		RootDir: root, OutputFile: outPath, NumWorkers: 1,
		ProcessingMode: ModeStream, Filter: &filterspec.Spec{Enabled: false},
	})
	require.NoError(t, err)
	drain(t, events, 5*time.Second)

	saved, err := store.LoadChunkedState()
	require.NoError(t, err)
	require.NotNil(t, saved)

	resumeSched := New(store)
	resumeEvents, err := resumeSched.Resume(context.Background(), Config{NumWorkers: 1, Filter: &filterspec.Spec{Enabled: false}})
	require.NoError(t, err)
	collected := drain(t, resumeEvents, 5*time.Second)

	var complete *Event
	for i := range collected {
		if collected[i].Type == EventComplete {
			complete = &collected[i]
		}
	}
	require.NotNil(t, complete)
	assert.Equal(t, 2, complete.Stats.RecordsWritten)

	body, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Len(t, splitLines(string(body)), 3, "header plus exactly 2 rows; resume must not duplicate already-written records")
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
