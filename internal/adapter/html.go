package adapter

import (
	"html"
	"regexp"
)

// Regex-based extraction tuned for the server-rendered schedule tables the
// sources serve. The pages are flat <tr>/<td> grids that never nest tables,
// so a full HTML parser buys nothing here.
var (
	rowPattern  = regexp.MustCompile(`(?s)<tr[^>]*>.*?</tr>`)
	cellPattern = regexp.MustCompile(`(?s)<td[^>]*>(.*?)</td>`)
	tagStripper = regexp.MustCompile(`<[^>]*>`)
)

// ParseTableRows returns the cell texts of every table row on the page,
// tags stripped and entities decoded. Header rows (<th> only) come back
// empty and are dropped.
func ParseTableRows(page string) [][]string {
	var rows [][]string
	for _, row := range rowPattern.FindAllString(page, -1) {
		cells := cellPattern.FindAllStringSubmatch(row, -1)
		if len(cells) == 0 {
			continue
		}
		texts := make([]string, len(cells))
		for i, c := range cells {
			texts[i] = StripTags(c[1])
		}
		rows = append(rows, texts)
	}
	return rows
}

// StripTags drops markup from one cell, decodes HTML entities, and
// collapses the whitespace the removed tags leave behind.
func StripTags(s string) string {
	s = tagStripper.ReplaceAllString(s, " ")
	return CleanTeamName(html.UnescapeString(s))
}

// ExtractGroupIDs pulls every distinct group id linked from an event page,
// in first-appearance order.
func ExtractGroupIDs(page string, linkExpr *regexp.Regexp) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range linkExpr.FindAllStringSubmatch(page, -1) {
		if len(m) < 2 || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		ids = append(ids, m[1])
	}
	return ids
}

// Map projects a row's cells through the column map. Fields mapped to a
// negative index, or beyond the row, are absent from the result.
func (c ColumnMap) Map(cells []string) map[string]string {
	out := make(map[string]string, 7)
	pick := func(key string, idx int) {
		if idx >= 0 && idx < len(cells) {
			out[key] = cells[idx]
		}
	}
	pick("matchNumber", c.MatchNumber)
	pick("dateTime", c.DateTime)
	pick("homeTeam", c.HomeTeam)
	pick("score", c.Score)
	pick("awayTeam", c.AwayTeam)
	pick("location", c.Location)
	pick("division", c.Division)
	return out
}
