// Package scraper runs one adapter end to end: resolve events, fetch and
// parse their schedule pages under the adapter's politeness contract, and
// bulk-stage the results. Every database write lands in staging tables;
// production tables are promotion's territory.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MGMAppDev/soccerview-pipeline/internal/adapter"
	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
	"github.com/MGMAppDev/soccerview-pipeline/internal/intake"
	"github.com/MGMAppDev/soccerview-pipeline/internal/normalizer"
)

// Options control one scrape run.
type Options struct {
	EventID    string // scrape exactly this event, skip discovery
	ActiveOnly bool   // drop events older than last season
	Resume     bool   // keep checkpoint state from a previous run
	DryRun     bool   // fetch and validate, stage nothing
}

// Engine drives one adapter. It implements adapter.Engine so custom
// ScrapeEvent hooks fetch through the same politeness machinery.
type Engine struct {
	ad        *adapter.Adapter
	pool      *db.Pool
	cfg       *config.Config
	client    *fetchClient
	validator *intake.Validator
	logger    *slog.Logger

	runID string
	now   func() time.Time
}

// New builds an engine for one adapter. SPA sources refuse to start
// without a configured rendering command; a misconfigured nightly job
// should fail loudly, not silently scrape empty pages.
func New(ad *adapter.Adapter, pool *db.Pool, cfg *config.Config, seasonYear int, logger *slog.Logger) (*Engine, error) {
	var fetcher Fetcher = NewHTTPFetcher()
	if ad.Technology.RequiresJS() {
		if cfg.JSFetcherCmd == "" {
			return nil, fmt.Errorf("adapter %s renders with JavaScript: set JS_FETCHER_CMD", ad.ID)
		}
		fetcher = NewCommandFetcher(cfg.JSFetcherCmd)
	}

	policy, err := config.DefaultValidatorPolicy(seasonYear)
	if err != nil {
		return nil, err
	}

	return &Engine{
		ad:        ad,
		pool:      pool,
		cfg:       cfg,
		client:    newFetchClient(fetcher, ad, logger),
		validator: intake.NewValidator(policy, normalizer.New(seasonYear)),
		logger:    logger,
		runID:     uuid.NewString(),
		now:       time.Now,
	}, nil
}

// FetchPage implements adapter.Engine.
func (e *Engine) FetchPage(ctx context.Context, url string) (string, error) {
	return e.client.Get(ctx, url)
}

// Logger implements adapter.Engine.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Run executes one scrape. The write probe runs before any network traffic
// so a revoked write path is caught before the politeness budget is spent.
func (e *Engine) Run(ctx context.Context, opts Options) (*Stats, error) {
	stats := &Stats{RunID: e.runID, Adapter: e.ad.ID, StartedAt: e.now().UTC()}

	if opts.DryRun {
		return e.dryRun(ctx, opts, stats)
	}

	if err := db.WriteProbe(ctx, e.pool, e.ad.Platform, e.cfg.ProbeTimeout); err != nil {
		return stats, err
	}

	store, err := OpenCheckpoint(e.cfg.CheckpointDir, e.ad.CheckpointFile, e.ad.ID)
	if err != nil {
		return stats, err
	}
	defer store.Close()
	if !opts.Resume {
		store.Reset()
	}

	events := e.resolveEvents(ctx, opts)
	stats.EventsFound = len(events)
	e.logger.Info("scrape starting",
		"adapter", e.ad.ID, "run_id", e.runID,
		"events", len(events), "resume", opts.Resume, "dry_run", false)

	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			// Interrupted: keep the checkpoint so --resume can continue.
			if saveErr := store.Save(stats); saveErr != nil {
				e.logger.Warn("checkpoint save failed", "error", saveErr)
			}
			stats.FinishedAt = e.now().UTC()
			return stats, err
		}
		if store.IsProcessed(ev.ID) {
			stats.EventsSkipped++
			e.logger.Debug("event already processed", "event", ev.ID)
			continue
		}
		if i > 0 {
			if err := sleepCtx(ctx, e.ad.Limits.IterationDelay); err != nil {
				stats.FinishedAt = e.now().UTC()
				return stats, err
			}
		}

		found, staged, err := e.scrapeEvent(ctx, ev)
		stats.EventsProcessed++
		stats.MatchesFound += found
		stats.MatchesStaged += staged
		switch {
		case err != nil:
			stats.EventsFailed++
			stats.AddErrorf("event %s: %v", ev.ID, err)
			e.logger.Error("event failed", "event", ev.ID, "error", err)
			// Marked processed so a resume does not re-burn a broken
			// event; the next full run retries it.
			store.MarkProcessed(ev.ID)
		case found == 0:
			// Deliberately not marked: an empty event is worth another
			// look next run.
			e.logger.Info("event empty", "event", ev.ID, "name", ev.Name)
		default:
			stats.EventsSuccessful++
			store.MarkProcessed(ev.ID)
		}

		if e.ad.SaveAfterEachItem {
			if err := store.Save(stats); err != nil {
				e.logger.Warn("checkpoint save failed", "error", err)
			}
		}
	}

	stats.FinishedAt = e.now().UTC()
	if stats.EventsFailed == 0 {
		if err := store.Clear(); err != nil {
			e.logger.Warn("checkpoint clear failed", "error", err)
		}
	} else if err := store.Save(stats); err != nil {
		e.logger.Warn("checkpoint save failed", "error", err)
	}

	e.logger.Info("scrape finished", "adapter", e.ad.ID, "summary", stats.Summary())
	return stats, nil
}

// dryRun fetches and parses like a live run but stages nothing: no probe,
// no checkpoint, no writes. The intake validator previews what staging
// would accept, which is the fastest way to vet a new adapter against the
// real site.
func (e *Engine) dryRun(ctx context.Context, opts Options, stats *Stats) (*Stats, error) {
	events := e.resolveEvents(ctx, opts)
	stats.EventsFound = len(events)
	e.logger.Info("scrape starting",
		"adapter", e.ad.ID, "run_id", e.runID, "events", len(events), "dry_run", true)

	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			stats.FinishedAt = e.now().UTC()
			return stats, err
		}
		if i > 0 {
			if err := sleepCtx(ctx, e.ad.Limits.IterationDelay); err != nil {
				stats.FinishedAt = e.now().UTC()
				return stats, err
			}
		}

		matches, err := e.fetchEvent(ctx, ev)
		stats.EventsProcessed++
		if err != nil {
			stats.EventsFailed++
			stats.AddErrorf("event %s: %v", ev.ID, err)
			e.logger.Error("event failed", "event", ev.ID, "error", err)
			continue
		}
		stats.EventsSuccessful++
		stats.MatchesFound += len(matches)

		verdict := e.validator.ValidateBatch(stagingRecords(e.ad.Platform, matches))
		e.logger.Info("dry run: would stage",
			"event", ev.ID, "name", ev.Name, "matches", len(matches),
			"valid", len(verdict.Valid), "rejected", len(verdict.Rejected),
			"fixable", verdict.FixedCount)
		for _, rej := range verdict.Rejected {
			e.logger.Warn("dry run: would reject",
				"key", rej.Record.SourceMatchKey, "code", rej.Rejections[0].Code,
				"reason", rej.Rejections[0].Reason)
		}
	}

	stats.FinishedAt = e.now().UTC()
	e.logger.Info("scrape finished", "adapter", e.ad.ID, "summary", stats.Summary())
	return stats, nil
}

// scrapeEvent fetches one event and stages its matches.
func (e *Engine) scrapeEvent(ctx context.Context, ev adapter.Event) (found, staged int, err error) {
	matches, err := e.fetchEvent(ctx, ev)
	if err != nil {
		return 0, 0, err
	}
	if len(matches) == 0 {
		return 0, 0, nil
	}

	staged, err = e.stageMatches(ctx, matches)
	if err != nil {
		return len(matches), staged, err
	}
	if err := e.recordEvent(ctx, ev, len(matches)); err != nil {
		// Staging already succeeded; the ledger row is advisory.
		e.logger.Warn("record staging event failed", "event", ev.ID, "error", err)
	}

	e.logger.Info("event scraped",
		"event", ev.ID, "name", ev.Name, "matches", len(matches), "staged", staged)
	return len(matches), staged, nil
}

// fetchEvent runs the adapter's ScrapeEvent hook or the default algorithm,
// then applies the adapter's data policy to whatever came back.
func (e *Engine) fetchEvent(ctx context.Context, ev adapter.Event) ([]adapter.RawMatch, error) {
	var (
		matches []adapter.RawMatch
		err     error
	)
	if e.ad.ScrapeEvent != nil {
		matches, err = e.ad.ScrapeEvent(ctx, e, ev)
	} else {
		matches, err = e.defaultScrape(ctx, ev)
	}
	if err != nil {
		return nil, err
	}
	return e.finalizeMatches(ev, matches), nil
}

// defaultScrape is the group-per-event algorithm shared by table-oriented
// sources: fetch the event page, follow every schedule group link, and map
// each table row through the adapter's column contract.
func (e *Engine) defaultScrape(ctx context.Context, ev adapter.Event) ([]adapter.RawMatch, error) {
	page, err := e.FetchPage(ctx, e.ad.EventURL(ev.ID))
	if err != nil {
		return nil, fmt.Errorf("event page: %w", err)
	}

	groups := adapter.ExtractGroupIDs(page, e.ad.GroupLinkExpr)
	e.logger.Debug("groups discovered", "event", ev.ID, "groups", len(groups))

	var out []adapter.RawMatch
	for i, group := range groups {
		if i > 0 {
			if err := sleepCtx(ctx, e.ad.Limits.ItemDelay); err != nil {
				return out, err
			}
		}
		page, err := e.FetchPage(ctx, e.ad.ScheduleURL(ev.ID, group))
		if errors.Is(err, adapter.ErrNotFound) {
			e.logger.Debug("schedule group gone", "event", ev.ID, "group", group)
			continue
		}
		if err != nil {
			return out, fmt.Errorf("group %s: %w", group, err)
		}
		for _, cells := range adapter.ParseTableRows(page) {
			if len(cells) != e.ad.Columns.Expected {
				continue
			}
			if m, ok := e.mapRow(cells); ok {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// mapRow converts one schedule-table row through the adapter's column map
// and parse hooks. Rows without a parseable date, a match number, or both
// team names are dropped silently: schedule tables interleave section
// headers and notes with match rows, and those are not errors.
func (e *Engine) mapRow(cells []string) (adapter.RawMatch, bool) {
	cols := e.ad.Columns.Map(cells)

	date, err := e.ad.ParseDate(cols["dateTime"])
	if err != nil {
		return adapter.RawMatch{}, false
	}

	clean := e.ad.NormalizeTeamName
	if clean == nil {
		clean = adapter.CleanTeamName
	}
	home := clean(cols["homeTeam"])
	away := clean(cols["awayTeam"])
	number := strings.TrimSpace(cols["matchNumber"])
	if home == "" || away == "" || number == "" {
		return adapter.RawMatch{}, false
	}

	hs, as, _ := e.ad.ParseScore(cols["score"])
	m := adapter.RawMatch{
		MatchNumber: number,
		Date:        date,
		TimeText:    adapter.ExtractTimeText(cols["dateTime"]),
		HomeTeam:    home,
		AwayTeam:    away,
		HomeScore:   hs,
		AwayScore:   as,
		Venue:       cols["location"],
		Division:    cols["division"],
		Columns:     cols,
	}
	if e.ad.ParseDivision != nil {
		d := e.ad.ParseDivision(m.Division)
		m.Gender = d.Gender
		m.AgeGroup = d.AgeGroup
	}
	return m, true
}

// finalizeMatches applies adapter policy to parsed rows: fill event
// linkage, derive source keys and state, enforce MinDate and the validity
// predicate, tag status, and drop duplicate keys within the run.
func (e *Engine) finalizeMatches(ev adapter.Event, matches []adapter.RawMatch) []adapter.RawMatch {
	today := e.now()
	seen := make(map[string]bool, len(matches))
	out := make([]adapter.RawMatch, 0, len(matches))

	for _, m := range matches {
		m.EventID = ev.ID
		m.EventName = ev.Name
		m.EventType = ev.Type
		if m.EventType == "" {
			m.EventType = e.ad.DefaultEventType
		}
		if m.SourceKey == "" {
			m.SourceKey = e.ad.MatchKey(ev.ID, m.MatchNumber)
		}
		if e.ad.InferState != nil {
			m.State = e.ad.InferState(ev, &m)
		} else if m.State == "" {
			m.State = ev.State
		}

		if !e.ad.MinDate.IsZero() && m.Date.Before(e.ad.MinDate) {
			continue
		}
		if e.ad.IsValidMatch != nil && !e.ad.IsValidMatch(&m) {
			continue
		}
		if seen[m.SourceKey] {
			continue
		}
		seen[m.SourceKey] = true

		m.Status = "scheduled"
		if m.HomeScore != nil && m.AwayScore != nil && m.Date.Before(today) {
			m.Status = "completed"
		}
		out = append(out, m)
	}
	return out
}

// resolveEvents picks the run's event list: an explicit id wins, then the
// adapter's own discovery hook, then universal database discovery, then
// the adapter's static seed list. First non-empty source wins; discovery
// failures degrade to the next source rather than killing the run.
func (e *Engine) resolveEvents(ctx context.Context, opts Options) []adapter.Event {
	if opts.EventID != "" {
		return []adapter.Event{{ID: opts.EventID, Type: e.ad.DefaultEventType}}
	}

	var events []adapter.Event
	if e.ad.DiscoverEvents != nil {
		evs, err := e.ad.DiscoverEvents(ctx, e)
		if err != nil {
			e.logger.Warn("adapter discovery failed", "error", err)
		}
		events = evs
	}
	if len(events) == 0 {
		evs, err := e.DiscoverEventsFromDB(ctx, defaultLookbackDays, defaultForwardDays)
		if err != nil {
			e.logger.Warn("database discovery failed", "error", err)
		}
		events = evs
	}
	if len(events) == 0 {
		events = e.ad.Events
	}

	if opts.ActiveOnly {
		events = activeEvents(events, e.now().Year())
	}
	if e.ad.MaxEventsPerRun > 0 && len(events) > e.ad.MaxEventsPerRun {
		e.logger.Info("event list capped",
			"found", len(events), "cap", e.ad.MaxEventsPerRun)
		events = events[:e.ad.MaxEventsPerRun]
	}
	return events
}

// activeEvents keeps events from last season onward. Unknown years pass:
// dropping them would silently strand sources that do not publish years.
func activeEvents(events []adapter.Event, currentYear int) []adapter.Event {
	out := make([]adapter.Event, 0, len(events))
	for _, ev := range events {
		if ev.Year == 0 || ev.Year >= currentYear-1 {
			out = append(out, ev)
		}
	}
	return out
}
