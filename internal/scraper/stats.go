package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Stats tracks one scrape run end to end. A copy rides in the checkpoint
// file so an interrupted run's progress is visible, and the CLI can dump it
// as JSON.
type Stats struct {
	RunID   string `json:"runId"`
	Adapter string `json:"adapter"`

	EventsFound      int `json:"eventsFound"`
	EventsProcessed  int `json:"eventsProcessed"`
	EventsSuccessful int `json:"eventsSuccessful"`
	EventsFailed     int `json:"eventsFailed"`
	EventsSkipped    int `json:"eventsSkipped"`

	MatchesFound  int `json:"matchesFound"`
	MatchesStaged int `json:"matchesStaged"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Errors []string `json:"errors,omitempty"`
}

// AddErrorf records a formatted error message.
func (s *Stats) AddErrorf(format string, args ...interface{}) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the run.
func (s *Stats) Summary() string {
	return fmt.Sprintf(
		"events=%d processed=%d ok=%d failed=%d skipped=%d matches=%d staged=%d errors=%d",
		s.EventsFound, s.EventsProcessed, s.EventsSuccessful, s.EventsFailed,
		s.EventsSkipped, s.MatchesFound, s.MatchesStaged, len(s.Errors),
	)
}

// WriteFile dumps the stats as JSON next to the checkpoints so a finished
// or failed run stays inspectable. Same temp-then-rename write as the
// checkpoint. Returns the written path.
func (s *Stats) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create stats dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal stats: %w", err)
	}

	path := filepath.Join(dir, s.Adapter+"-stats.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write stats: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("replace stats: %w", err)
	}
	return path, nil
}
