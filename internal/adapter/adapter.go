// Package adapter defines the declarative per-source configuration the
// scraper engine is driven by. An adapter is pure data plus pure parsing
// functions: endpoints, rate limits, column maps, and transform hooks. It
// never touches sockets, files, or the database — that is the engine's job.
//
// Adding a new source means adding one adapter file. The engine, staging
// schema, and promotion path never change.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/MGMAppDev/soccerview-pipeline/internal/normalizer"
)

// ErrNotFound is returned by Engine.FetchPage for HTTP 404. Terminal: the
// engine never retries it, and ScrapeEvent hooks may treat it as "this page
// does not exist" rather than a failure.
var ErrNotFound = errors.New("page not found")

// Technology describes how a source serves its data.
type Technology string

const (
	TechHTMLStatic    Technology = "html-static"
	TechSPAJavaScript Technology = "spa-javascript"
	TechHTTPAPI       Technology = "http-api"
	TechMixed         Technology = "mixed"
)

// RequiresJS reports whether the source needs a JS-capable fetcher.
func (t Technology) RequiresJS() bool {
	return t == TechSPAJavaScript || t == TechMixed
}

// EventType mirrors the two production event tables.
type EventType string

const (
	EventLeague     EventType = "league"
	EventTournament EventType = "tournament"
)

// Event is one scrapeable competition as the source sees it.
type Event struct {
	ID    string // source event id, used in URL templates and match keys
	Name  string
	Type  EventType
	Year  int    // 0 = unknown; activeOnly treats unknown as active
	State string // optional US state hint for the whole event
}

// RawMatch is one parsed schedule row before staging. Team names are the
// source's raw strings; normalization happens at promotion.
type RawMatch struct {
	MatchNumber string
	Date        time.Time
	TimeText    string // "3:30 PM" as printed; empty when the source omits it
	HomeTeam    string
	AwayTeam    string
	HomeScore   *int // nil = not played
	AwayScore   *int
	Venue       string
	Division    string
	Gender      string // from ParseDivision
	AgeGroup    int    // U-number, 0 = unknown
	Status      string // "scheduled" | "completed", tagged by the engine
	SourceKey   string
	State       string
	EventID     string
	EventName   string
	EventType   EventType
	Columns     map[string]string // raw cell snapshot for forensic replay
}

// RateLimits is the politeness contract for one source.
type RateLimits struct {
	RequestDelayMin time.Duration // jitter window lower bound, every request
	RequestDelayMax time.Duration // jitter window upper bound (exclusive)
	ItemDelay       time.Duration // extra sleep between groups
	IterationDelay  time.Duration // extra sleep between events
	CooldownOn429   time.Duration
	CooldownOn500   time.Duration
	RetryDelays     []time.Duration // transport-error backoff schedule
	MaxRetries      int
}

// ColumnMap assigns 0-indexed schedule-table columns to match fields.
type ColumnMap struct {
	MatchNumber int
	DateTime    int
	HomeTeam    int
	Score       int
	AwayTeam    int
	Location    int
	Division    int
	Expected    int // rows with a different cell count are skipped
}

// Engine is the narrow view of the scraper the adapter hooks receive.
// Defined here so adapters never import the engine package.
type Engine interface {
	// FetchPage retrieves one URL under the adapter's politeness rules.
	FetchPage(ctx context.Context, url string) (string, error)
	// DiscoverEventsFromDB runs the universal database discovery for this
	// adapter's match-key prefix.
	DiscoverEventsFromDB(ctx context.Context, lookbackDays, forwardDays int) ([]Event, error)
	// Logger returns the run's logger.
	Logger() *slog.Logger
}

// Adapter is one source's complete declarative bundle.
type Adapter struct {
	ID         string
	Name       string
	Platform   string // source_platform value on staged rows
	Technology Technology

	// DefaultEventType is assumed for events named only by ID (--event runs)
	// where the source gives no other signal.
	DefaultEventType EventType

	// Endpoints. Paths are templates over {eventId} and {groupId}.
	BaseURL      string
	EventPath    string
	SchedulePath string

	Limits     RateLimits
	UserAgents []string

	// Parsing contract for the default group-per-event algorithm.
	Columns       ColumnMap
	GroupLinkExpr *regexp.Regexp // first capture group = groupId

	// MatchKeyTemplate produces the stable per-source key. Tokens:
	// {source}, {eventId}, {matchNumber}.
	MatchKeyTemplate string

	// Transform hooks. All pure.
	ParseDate         func(s string) (time.Time, error)
	ParseScore        func(s string) (home, away *int, err error)
	ParseDivision     func(s string) normalizer.Division
	NormalizeTeamName func(s string) string
	InferState        func(ev Event, m *RawMatch) string // optional

	// Data policy.
	MinDate         time.Time
	MaxEventsPerRun int
	IsValidMatch    func(m *RawMatch) bool // optional predicate

	// Discovery. Static list and/or dynamic hook; the engine also falls
	// back to universal DB discovery between the two.
	Events         []Event
	DiscoverEvents func(ctx context.Context, eng Engine) ([]Event, error)

	// ScrapeEvent overrides the default group-per-event algorithm.
	ScrapeEvent func(ctx context.Context, eng Engine, ev Event) ([]RawMatch, error)

	CheckpointFile    string
	SaveAfterEachItem bool
}

// MatchKey expands the adapter's key template for one match.
func (a *Adapter) MatchKey(eventID, matchNumber string) string {
	return ExpandMatchKey(a.MatchKeyTemplate, a.Platform, eventID, matchNumber)
}

// KeyPrefix is the leading fragment shared by every key this adapter
// produces; universal DB discovery filters on it.
func (a *Adapter) KeyPrefix() string {
	tmpl := a.MatchKeyTemplate
	if i := strings.Index(tmpl, "{eventId}"); i >= 0 {
		tmpl = tmpl[:i]
	}
	return strings.ReplaceAll(tmpl, "{source}", a.Platform)
}

// EventURL resolves the event page URL for an event ID.
func (a *Adapter) EventURL(eventID string) string {
	return a.BaseURL + expandPath(a.EventPath, eventID, "")
}

// ScheduleURL resolves the schedule page URL for an event and group.
func (a *Adapter) ScheduleURL(eventID, groupID string) string {
	return a.BaseURL + expandPath(a.SchedulePath, eventID, groupID)
}

// ExpandMatchKey fills the {source}, {eventId}, and {matchNumber} tokens.
func ExpandMatchKey(tmpl, source, eventID, matchNumber string) string {
	r := strings.NewReplacer(
		"{source}", source,
		"{eventId}", eventID,
		"{matchNumber}", matchNumber,
	)
	return r.Replace(tmpl)
}

func expandPath(tmpl, eventID, groupID string) string {
	r := strings.NewReplacer("{eventId}", eventID, "{groupId}", groupID)
	return r.Replace(tmpl)
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

var builtins = map[string]func(seasonYear int) *Adapter{
	"gotsport":    GotSport,
	"heartland":   Heartland,
	"playmetrics": PlayMetrics,
}

// Load builds the adapter registered under id. Unknown ids are a fatal
// engine error.
func Load(id string, seasonYear int) (*Adapter, error) {
	build, ok := builtins[id]
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q (have: %s)", id, strings.Join(IDs(), ", "))
	}
	a := build(seasonYear)
	if err := validate(a); err != nil {
		return nil, fmt.Errorf("adapter %q invalid: %w", id, err)
	}
	return a, nil
}

// IDs lists the registered adapter ids in stable order.
func IDs() []string {
	ids := make([]string, 0, len(builtins))
	for id := range builtins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func validate(a *Adapter) error {
	switch {
	case a.ID == "":
		return fmt.Errorf("missing ID")
	case a.Platform == "":
		return fmt.Errorf("missing Platform")
	case a.MatchKeyTemplate == "":
		return fmt.Errorf("missing MatchKeyTemplate")
	case len(a.UserAgents) == 0:
		return fmt.Errorf("missing UserAgents")
	case a.Limits.MaxRetries <= 0:
		return fmt.Errorf("MaxRetries must be positive")
	case a.Limits.RequestDelayMax < a.Limits.RequestDelayMin:
		return fmt.Errorf("RequestDelayMax below RequestDelayMin")
	case a.ParseDate == nil || a.ParseScore == nil:
		return fmt.Errorf("ParseDate and ParseScore hooks are required")
	case a.CheckpointFile == "":
		return fmt.Errorf("missing CheckpointFile")
	}
	if a.ScrapeEvent == nil && (a.Columns.Expected == 0 || a.GroupLinkExpr == nil) {
		return fmt.Errorf("default algorithm needs Columns.Expected and GroupLinkExpr")
	}
	return nil
}
