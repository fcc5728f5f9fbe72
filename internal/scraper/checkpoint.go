package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Checkpoint is the resumable state of one adapter's scrape. Saved after
// progress so an interrupted run can continue with --resume instead of
// re-burning its politeness budget on already-scraped events.
type Checkpoint struct {
	Adapter           string    `json:"adapter"`
	LastEventID       string    `json:"lastEventId"`
	ProcessedEventIDs []string  `json:"processedEventIds"`
	LastRun           time.Time `json:"lastRun"`
	Stats             *Stats    `json:"stats,omitempty"`
}

// IsProcessed reports whether an event was completed by a previous pass.
// The list stays small (runs are capped per adapter), so a scan is fine.
func (c *Checkpoint) IsProcessed(eventID string) bool {
	for _, id := range c.ProcessedEventIDs {
		if id == eventID {
			return true
		}
	}
	return false
}

// MarkProcessed records an event as done and remembers it as the most
// recent one.
func (c *Checkpoint) MarkProcessed(eventID string) {
	if !c.IsProcessed(eventID) {
		c.ProcessedEventIDs = append(c.ProcessedEventIDs, eventID)
	}
	c.LastEventID = eventID
}

// CheckpointStore owns the checkpoint file and its cross-process lock. Only
// one run per adapter may hold the lock; a second concurrent run fails fast
// instead of corrupting state or doubling request volume.
type CheckpointStore struct {
	path string
	lock *flock.Flock
	cp   *Checkpoint
}

// OpenCheckpoint locks and loads an adapter's checkpoint. A missing file
// starts fresh; a lock held elsewhere is an error.
func OpenCheckpoint(dir, file, adapterID string) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	path := filepath.Join(dir, file)

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock checkpoint: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("checkpoint %s is locked: another run is active", path)
	}

	s := &CheckpointStore{path: path, lock: lock, cp: &Checkpoint{Adapter: adapterID}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("parse checkpoint %s: %w (delete it to start fresh)", path, err)
	}
	s.cp = &cp
	return s, nil
}

// State returns the loaded checkpoint.
func (s *CheckpointStore) State() *Checkpoint { return s.cp }

// IsProcessed delegates to the loaded checkpoint.
func (s *CheckpointStore) IsProcessed(eventID string) bool { return s.cp.IsProcessed(eventID) }

// MarkProcessed delegates to the loaded checkpoint.
func (s *CheckpointStore) MarkProcessed(eventID string) { s.cp.MarkProcessed(eventID) }

// Save writes the checkpoint atomically: full write to a sibling temp file,
// then rename, so a crash mid-save can never leave a torn file behind.
func (s *CheckpointStore) Save(stats *Stats) error {
	s.cp.LastRun = time.Now().UTC()
	s.cp.Stats = stats

	data, err := json.MarshalIndent(s.cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Reset discards loaded state for a from-scratch run. The file is not
// touched until the next Save.
func (s *CheckpointStore) Reset() {
	s.cp = &Checkpoint{Adapter: s.cp.Adapter}
}

// Clear removes the checkpoint file after a fully clean run; the next run
// starts fresh.
func (s *CheckpointStore) Clear() error {
	s.cp = &Checkpoint{Adapter: s.cp.Adapter}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// Close releases the cross-process lock.
func (s *CheckpointStore) Close() error {
	return s.lock.Unlock()
}
