package scraper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenCheckpoint(dir, "test.json", "test")
	require.NoError(t, err)

	s.MarkProcessed("ev-1")
	s.MarkProcessed("ev-2")
	stats := &Stats{RunID: "run-1", Adapter: "test", MatchesStaged: 7}
	require.NoError(t, s.Save(stats))
	require.NoError(t, s.Close())

	s2, err := OpenCheckpoint(dir, "test.json", "test")
	require.NoError(t, err)
	defer s2.Close()

	cp := s2.State()
	assert.Equal(t, "test", cp.Adapter)
	assert.Equal(t, "ev-2", cp.LastEventID)
	assert.True(t, s2.IsProcessed("ev-1"))
	assert.True(t, s2.IsProcessed("ev-2"))
	assert.False(t, s2.IsProcessed("ev-3"))
	assert.False(t, cp.LastRun.IsZero())
	require.NotNil(t, cp.Stats)
	assert.Equal(t, 7, cp.Stats.MatchesStaged)
}

func TestCheckpointMarkProcessedDedups(t *testing.T) {
	cp := &Checkpoint{Adapter: "test"}
	cp.MarkProcessed("ev-1")
	cp.MarkProcessed("ev-1")
	cp.MarkProcessed("ev-2")
	assert.Equal(t, []string{"ev-1", "ev-2"}, cp.ProcessedEventIDs)
	assert.Equal(t, "ev-2", cp.LastEventID)
}

func TestCheckpointMissingFileStartsFresh(t *testing.T) {
	s, err := OpenCheckpoint(t.TempDir(), "missing.json", "test")
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.State().ProcessedEventIDs)
	assert.Equal(t, "test", s.State().Adapter)
}

func TestCheckpointLockedByAnotherRun(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenCheckpoint(dir, "test.json", "test")
	require.NoError(t, err)
	defer s.Close()

	_, err = OpenCheckpoint(dir, "test.json", "test")
	assert.ErrorContains(t, err, "another run is active")
}

func TestCheckpointReset(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenCheckpoint(dir, "test.json", "test")
	require.NoError(t, err)
	defer s.Close()

	s.MarkProcessed("ev-1")
	s.Reset()
	assert.False(t, s.IsProcessed("ev-1"))
	assert.Equal(t, "test", s.State().Adapter)
}

func TestCheckpointClearRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	s, err := OpenCheckpoint(dir, "test.json", "test")
	require.NoError(t, err)
	defer s.Close()

	s.MarkProcessed("ev-1")
	require.NoError(t, s.Save(&Stats{}))
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, s.Clear())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, s.IsProcessed("ev-1"))

	// Clearing an already-missing file is not an error.
	require.NoError(t, s.Clear())
}

func TestCheckpointCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.json"), []byte("{not json"), 0o644))

	_, err := OpenCheckpoint(dir, "test.json", "test")
	assert.ErrorContains(t, err, "delete it to start fresh")
}

func TestCheckpointSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenCheckpoint(dir, "test.json", "test")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Save(&Stats{}))

	// No temp file may linger after a successful save.
	_, err = os.Stat(filepath.Join(dir, "test.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}
