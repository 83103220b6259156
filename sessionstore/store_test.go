package sessionstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPauseState_RoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	loaded, err := store.LoadPauseState()
	require.NoError(t, err)
	assert.False(t, loaded.IsPaused, "missing file should load as zero value")

	require.NoError(t, store.SavePauseState(&PauseState{IsPaused: true}))
	loaded, err = store.LoadPauseState()
	require.NoError(t, err)
	assert.True(t, loaded.IsPaused)
}

func TestLoad_CorruptFileTreatedAsMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pauseStateFile), []byte("not json"), 0o644))

	store, err := New(dir)
	require.NoError(t, err)

	loaded, err := store.LoadPauseState()
	require.NoError(t, err)
	assert.Equal(t, &PauseState{}, loaded)
}

func TestSave_KeepsBackupSibling(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SavePauseState(&PauseState{IsPaused: true}))
	require.NoError(t, store.SavePauseState(&PauseState{IsPaused: false}))

	backup, err := os.ReadFile(store.path(pauseStateFile) + ".backup")
	require.NoError(t, err)
	assert.Contains(t, string(backup), "true")
}

func TestAddSession_NewestFirstCappedAt100(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 105; i++ {
		require.NoError(t, store.AddSession(SessionRecord{ID: string(rune('a' + i%26))}))
	}

	sessions, err := store.ListSessions()
	require.NoError(t, err)
	assert.Len(t, sessions, 100)
	// Newest first: index 1 is the 104th add (i=103 -> 'z'), the last kept
	// entry is the 6th add (i=5 -> 'f').
	assert.Equal(t, "z", sessions[1].ID)
	assert.Equal(t, "f", sessions[99].ID)
}

func TestUpdateSession_PreservesOtherFields(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.AddSession(SessionRecord{ID: "s1", Status: StatusRunning}))

	require.NoError(t, store.UpdateSession("s1", func(rec *SessionRecord) {
		rec.Status = StatusCompleted
	}))

	got, err := store.GetSession("s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "s1", got.ID)
}

func TestTryAcquireRun_RefusesWhileSessionRunning(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.SaveCurrentSession(&SessionRecord{ID: "s1", Status: StatusRunning}))

	store2, err := New(dir)
	require.NoError(t, err)
	err = store2.TryAcquireRun()
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestClearHistory_Empties(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.AddSession(SessionRecord{ID: "s1"}))

	require.NoError(t, store.ClearHistory())

	sessions, err := store.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
