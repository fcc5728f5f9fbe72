package adapter

import (
	"regexp"
	"time"

	"github.com/MGMAppDev/soccerview-pipeline/internal/normalizer"
)

// PlayMetrics covers leagues run on app.playmetrics.com. The site is a
// JavaScript SPA, so the engine must be given a rendering fetcher; once
// rendered, the schedule pages are ordinary tables and the default
// algorithm applies. There is no public event index, so events enter only
// by explicit id or from previously staged matches.
func PlayMetrics(seasonYear int) *Adapter {
	norm := normalizer.New(seasonYear)
	return &Adapter{
		ID:               "playmetrics",
		Name:             "PlayMetrics",
		Platform:         "playmetrics",
		Technology:       TechSPAJavaScript,
		DefaultEventType: EventLeague,

		BaseURL:      "https://app.playmetrics.com",
		EventPath:    "/league/{eventId}",
		SchedulePath: "/league/{eventId}/schedule?division={groupId}",

		// Rendering is expensive on both ends; go slower than the HTML
		// sources.
		Limits: RateLimits{
			RequestDelayMin: 5 * time.Second,
			RequestDelayMax: 10 * time.Second,
			ItemDelay:       5 * time.Second,
			IterationDelay:  20 * time.Second,
			CooldownOn429:   120 * time.Second,
			CooldownOn500:   60 * time.Second,
			RetryDelays:     []time.Duration{15 * time.Second, 45 * time.Second, 90 * time.Second},
			MaxRetries:      2,
		},
		UserAgents: DefaultUserAgents,

		Columns: ColumnMap{
			MatchNumber: 0,
			DateTime:    1,
			Division:    2,
			HomeTeam:    3,
			Score:       4,
			AwayTeam:    5,
			Location:    6,
			Expected:    7,
		},
		GroupLinkExpr:    regexp.MustCompile(`schedule\?division=(\d+)`),
		MatchKeyTemplate: "{source}-{eventId}-{matchNumber}",

		ParseDate:         ParseUSDateTime,
		ParseScore:        ParseDashScore,
		ParseDivision:     norm.ParseDivision,
		NormalizeTeamName: CleanTeamName,
		InferState: func(ev Event, m *RawMatch) string {
			if ev.State != "" {
				return ev.State
			}
			return StateFromEventName(ev.Name)
		},

		MinDate:         time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		MaxEventsPerRun: 10,

		CheckpointFile:    "playmetrics.json",
		SaveAfterEachItem: true,
	}
}
