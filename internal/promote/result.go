package promote

import "fmt"

// Result tracks counts and errors from one promotion pass.
type Result struct {
	Scanned       int
	Inserted      int // new production matches
	Updated       int // re-scrapes merged onto their existing row by source key
	Merged        int // semantic-uniqueness collisions absorbed into a live match
	TeamsCreated  int
	EventsCreated int
	Failed        int
	Errors        []string
}

// AddErrorf records a formatted error message.
func (r *Result) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the pass.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"scanned=%d inserted=%d updated=%d merged=%d teams=%d events=%d failed=%d errors=%d",
		r.Scanned, r.Inserted, r.Updated, r.Merged,
		r.TeamsCreated, r.EventsCreated, r.Failed, len(r.Errors))
}
