package adapter

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schedulePage = `
<html><body>
<table class="table schedule">
  <tr><th>#</th><th>Date</th><th>Home</th><th>Score</th><th>Away</th></tr>
  <tr class="odd">
    <td>101</td>
    <td>9/14/2025
        3:30 PM</td>
    <td><a href="/teams/1">One&nbsp;FC   2014B</a></td>
    <td><span class="score">2 - 1</span></td>
    <td><b>Storm &amp; Thunder</b></td>
  </tr>
  <tr><td colspan="5">Bracket play begins Saturday</td></tr>
</table>
</body></html>`

func TestParseTableRows(t *testing.T) {
	rows := ParseTableRows(schedulePage)
	require.Len(t, rows, 2, "header row must be dropped")

	assert.Equal(t, []string{"101", "9/14/2025 3:30 PM", "One FC 2014B", "2 - 1", "Storm & Thunder"}, rows[0])
	assert.Equal(t, []string{"Bracket play begins Saturday"}, rows[1])
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<b>Storm</b> <i>Blue</i>", "Storm Blue"},
		{"One<br>FC", "One FC"},
		{"Storm &amp; Thunder", "Storm & Thunder"},
		{"  plain  ", "plain"},
		{"<td></td>", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripTags(tt.in), "input %q", tt.in)
	}
}

func TestExtractGroupIDs(t *testing.T) {
	page := `
		<a href="/org_event/events/32412/schedules?group=110">U11 Boys</a>
		<a href="/org_event/events/32412/schedules?group=112">U12 Boys</a>
		<a href="/org_event/events/32412/schedules?group=110">U11 Boys (again)</a>
		<a href="/org_event/events/32412/standings?group=999">standings, not schedules</a>`

	ids := ExtractGroupIDs(page, regexp.MustCompile(`schedules\?group=(\d+)`))
	assert.Equal(t, []string{"110", "112"}, ids)
}

func TestColumnMapMap(t *testing.T) {
	cm := ColumnMap{
		MatchNumber: -1,
		DateTime:    0,
		Division:    2,
		HomeTeam:    3,
		Score:       4,
		AwayTeam:    5,
		Location:    6,
		Expected:    7,
	}

	got := cm.Map([]string{"9/14/2025", "8:00 AM", "U11 Boys Premier", "One FC", "2 - 1", "Storm", "Field 7"})
	assert.Equal(t, map[string]string{
		"dateTime": "9/14/2025",
		"division": "U11 Boys Premier",
		"homeTeam": "One FC",
		"score":    "2 - 1",
		"awayTeam": "Storm",
		"location": "Field 7",
	}, got)

	// Short rows yield only the cells that exist.
	got = cm.Map([]string{"9/14/2025"})
	assert.Equal(t, map[string]string{"dateTime": "9/14/2025"}, got)
}
