package intake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/normalizer"
)

const testSeason = 2026

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	policy, err := config.DefaultValidatorPolicy(testSeason)
	require.NoError(t, err)
	return NewValidator(policy, normalizer.New(testSeason))
}

func goodRecord() Record {
	return Record{
		ID:             1,
		SourcePlatform: config.PlatformGotSport,
		SourceMatchKey: "gotsport-32412-101",
		HomeTeamName:   "One FC 2014B",
		AwayTeamName:   "Storm 14B",
		MatchDate:      time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC),
		Division:       "U12 Boys Premier",
		EventName:      "Heartland Invitational 2025 (KS)",
	}
}

func codes(res Result) []string {
	out := make([]string, len(res.Rejections))
	for i, r := range res.Rejections {
		out[i] = r.Code
	}
	return out
}

func TestValidateRecordAccepts(t *testing.T) {
	v := newTestValidator(t)
	res := v.ValidateRecord(goodRecord())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Rejections)
	assert.Empty(t, res.Fixes)
}

func TestValidateRecordRejections(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name   string
		mutate func(r *Record)
		want   string
	}{
		{"empty home", func(r *Record) { r.HomeTeamName = "  " }, CodeEmptyHomeTeam},
		{"empty away", func(r *Record) { r.AwayTeamName = "" }, CodeEmptyAwayTeam},
		{"team plays itself", func(r *Record) { r.AwayTeamName = "one fc 2014b" }, CodeSameTeam},
		{"missing date", func(r *Record) { r.MatchDate = time.Time{} }, CodeInvalidDate},
		{"ancient date", func(r *Record) { r.MatchDate = time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC) }, CodePastDate},
		{"far future date", func(r *Record) { r.MatchDate = time.Date(2028, 3, 1, 0, 0, 0, 0, time.UTC) }, CodeFutureDate},
		{"unknown platform", func(r *Record) { r.SourcePlatform = "myspace" }, CodeUnknownPlatform},
		{"impossible birth year", func(r *Record) { r.HomeTeamName = "Classics 1990 Boys" }, CodeInvalidBirthYear},
		{"recreational event", func(r *Record) { r.EventName = "Johnson County Recreational League" }, CodeRecreational},
		{"recreational division", func(r *Record) { r.Division = "U10 Rec Division" }, CodeRecreational},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := goodRecord()
			tt.mutate(&rec)
			res := v.ValidateRecord(rec)
			assert.False(t, res.Valid)
			assert.Contains(t, codes(res), tt.want)
		})
	}
}

func TestBirthYearLeniency(t *testing.T) {
	v := newTestValidator(t)

	// A founding year next to a real age marker is understood, not
	// rejected.
	rec := goodRecord()
	rec.HomeTeamName = "Founded 2001 FC U13"
	assert.True(t, v.ValidateRecord(rec).Valid)

	// A year with no valid interpretation at all is rejected.
	rec.HomeTeamName = "Classics 1990 Boys"
	res := v.ValidateRecord(rec)
	require.False(t, res.Valid)
	assert.Equal(t, CodeInvalidBirthYear, res.Rejections[0].Code)

	// No year anywhere: identity stays unknown, row passes.
	rec.HomeTeamName = "Blue Thunder"
	assert.True(t, v.ValidateRecord(rec).Valid)

	// Slightly outside the team flag window but plausible at intake.
	rec.HomeTeamName = "Lil Kickers 2021"
	assert.True(t, v.ValidateRecord(rec).Valid)
}

func TestSourceKeyAutoFix(t *testing.T) {
	v := newTestValidator(t)

	rec := goodRecord()
	rec.SourceMatchKey = " gotsport-32412-101\n<td>junk</td>"
	res := v.ValidateRecord(rec)

	assert.True(t, res.Valid)
	require.Len(t, res.Fixes, 1)
	assert.Equal(t, "gotsport-32412-101", res.Record.SourceMatchKey)

	// Re-validating the fixed record applies no further fixes.
	res = v.ValidateRecord(res.Record)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Fixes)
}

func TestMultipleRejectionsAccumulate(t *testing.T) {
	v := newTestValidator(t)

	rec := goodRecord()
	rec.HomeTeamName = ""
	rec.SourcePlatform = "myspace"
	rec.MatchDate = time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)

	res := v.ValidateRecord(rec)
	require.False(t, res.Valid)
	got := codes(res)
	assert.Contains(t, got, CodeEmptyHomeTeam)
	assert.Contains(t, got, CodeFutureDate)
	assert.Contains(t, got, CodeUnknownPlatform)
	// First rejection listed becomes the primary code in staging_rejected.
	assert.Equal(t, CodeEmptyHomeTeam, res.Rejections[0].Code)
}

func TestValidateBatch(t *testing.T) {
	v := newTestValidator(t)

	good := goodRecord()
	fixable := goodRecord()
	fixable.ID = 2
	fixable.SourceMatchKey = "gotsport-32412-102\textra"
	bad := goodRecord()
	bad.ID = 3
	bad.SourcePlatform = "myspace"

	out := v.ValidateBatch([]Record{good, fixable, bad})
	assert.Len(t, out.Valid, 2)
	assert.Len(t, out.Rejected, 1)
	assert.Equal(t, 1, out.FixedCount)
	assert.Equal(t, "gotsport-32412-102", out.Valid[1].SourceMatchKey)
}

func TestRecreationalPatternScope(t *testing.T) {
	v := newTestValidator(t)

	// Team names mentioning rec are not evidence; only key, event, and
	// division fields are checked.
	rec := goodRecord()
	rec.HomeTeamName = "Wreckers FC 2014B"
	rec.AwayTeamName = "Parks and Rec All Stars 2014"
	assert.True(t, v.ValidateRecord(rec).Valid)

	rec = goodRecord()
	rec.SourceMatchKey = "gotsport-rec-league-55"
	assert.False(t, v.ValidateRecord(rec).Valid)
}
