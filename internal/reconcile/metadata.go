package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
	"github.com/MGMAppDev/soccerview-pipeline/internal/normalizer"
	"github.com/MGMAppDev/soccerview-pipeline/internal/registry"
)

// MetadataOptions control the NULL-metadata repair operator.
type MetadataOptions struct {
	DryRun bool
}

// RepairMetadata runs the three-phase metadata repair: fill NULL
// birth_year/gender from the display name, absorb orphaned teams into
// their match-having counterparts, then rebuild cached match stats from
// the matches table. Fills that would collide with an existing live team
// become merges instead of updates.
func (r *Reconciler) RepairMetadata(ctx context.Context, opts MetadataOptions) (*Result, error) {
	result := &Result{Operator: "metadata", DryRun: opts.DryRun}

	pairs, err := r.fillNullMetadata(ctx, result, opts.DryRun)
	if err != nil {
		return result, err
	}
	r.mergePairs(ctx, result, pairs, "metadata collision", opts.DryRun)

	orphanPairs, ambiguous, err := r.matchOrphans(ctx, result)
	if err != nil {
		return result, err
	}
	r.mergePairs(ctx, result, orphanPairs, "orphan absorption", opts.DryRun)
	if err := r.flagAmbiguousOrphans(ctx, result, ambiguous, opts.DryRun); err != nil {
		return result, err
	}

	if err := r.recomputeAllStats(ctx, result, opts.DryRun); err != nil {
		return result, err
	}

	if !opts.DryRun {
		r.refreshViews(ctx)
	}
	r.logger.Info("metadata repair finished", "summary", result.Summary())
	return result, nil
}

// metadataFill is one team whose NULL columns the normalizer can fill.
type metadataFill struct {
	id        int64
	canonical string
	birthYear int // 0 keeps NULL
	gender    string
	state     *string
}

// fillNullMetadata extracts identity from each live team whose birth_year
// or gender is NULL and applies the fills in one bulk statement. Teams
// whose repaired identity matches an existing live team are returned as
// merge pairs instead of being updated.
func (r *Reconciler) fillNullMetadata(ctx context.Context, result *Result, dryRun bool) ([][2]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, display_name, state, birth_year, gender
		FROM `+config.TeamsTable+`
		WHERE merged_into IS NULL
		  AND (birth_year IS NULL OR gender IS NULL)
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select teams with null metadata: %w", err)
	}
	defer rows.Close()

	var fills []metadataFill
	for rows.Next() {
		var (
			id        int64
			name      string
			state     *string
			birthYear *int
			gender    *string
		)
		if err := rows.Scan(&id, &name, &state, &birthYear, &gender); err != nil {
			return nil, fmt.Errorf("scan null-metadata team: %w", err)
		}
		result.Examined++

		ident := r.norm.ExtractIdentity(name)
		f := metadataFill{id: id, canonical: ident.CanonicalName, state: state}
		if birthYear != nil {
			f.birthYear = *birthYear
		} else {
			f.birthYear = ident.BirthYear
		}
		if gender != nil {
			f.gender = *gender
		} else {
			f.gender = ident.Gender
		}

		// Nothing derivable from the name: leave the row for review.
		filledYear := birthYear == nil && f.birthYear != 0
		filledGender := gender == nil && f.gender != ""
		if !filledYear && !filledGender {
			result.Remaining++
			continue
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select teams with null metadata: %w", err)
	}
	if len(fills) == 0 {
		return nil, nil
	}

	pairs, err := r.identityCollisions(ctx, fills)
	if err != nil {
		return nil, err
	}
	colliding := make(map[int64]bool, len(pairs))
	for _, p := range pairs {
		colliding[p[0]] = true
	}

	var (
		ids       []int64
		names     []string
		years     []int
		genders   []string
		statesArr []string
	)
	for _, f := range fills {
		if colliding[f.id] {
			continue
		}
		ids = append(ids, f.id)
		names = append(names, f.canonical)
		years = append(years, f.birthYear)
		genders = append(genders, f.gender)
		if f.state != nil {
			statesArr = append(statesArr, *f.state)
		} else {
			statesArr = append(statesArr, "")
		}
	}
	if len(ids) == 0 {
		return pairs, nil
	}

	err = r.runTx(ctx, dryRun, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE `+config.TeamsTable+` t SET
				birth_year     = COALESCE(t.birth_year, NULLIF(u.birth_year, 0)),
				gender         = COALESCE(t.gender, NULLIF(u.gender, '')),
				canonical_name = u.canonical_name,
				updated_at     = NOW()
			FROM unnest($1::bigint[], $2::text[], $3::int[], $4::text[])
				AS u(id, canonical_name, birth_year, gender)
			WHERE t.id = u.id AND t.merged_into IS NULL`,
			ids, names, years, genders)
		if err != nil {
			return fmt.Errorf("apply metadata fills: %w", err)
		}
		result.Updated += int(tag.RowsAffected())

		// Repaired identities feed future promotion lookups. One row per
		// identity tuple; a tuple already registered is repointed at the
		// repaired team. Fills colliding with a different live team were
		// already diverted into merge pairs above.
		_, err = tx.Exec(ctx, `
			INSERT INTO `+config.CanonicalTeamsTable+` (
				team_id, canonical_name, birth_year, gender, state, aliases,
				created_at, updated_at)
			SELECT DISTINCT ON (u.canonical_name, u.birth_year, u.gender, u.state)
			       u.id, u.canonical_name, NULLIF(u.birth_year, 0),
			       NULLIF(u.gender, ''), NULLIF(u.state, ''),
			       '{}'::text[], NOW(), NOW()
			FROM unnest($1::bigint[], $2::text[], $3::int[], $4::text[], $5::text[])
				AS u(id, canonical_name, birth_year, gender, state)
			ORDER BY u.canonical_name, u.birth_year, u.gender, u.state, u.id
			ON CONFLICT `+registry.IdentityColumns+` DO UPDATE SET
				team_id    = EXCLUDED.team_id,
				updated_at = NOW()`,
			ids, names, years, genders, statesArr)
		if err != nil {
			return fmt.Errorf("register repaired identities: %w", err)
		}
		return nil
	})
	if err != nil {
		return pairs, err
	}
	return pairs, nil
}

// identityCollisions finds fills whose repaired identity already belongs
// to a different live team. Each hit becomes a (fill, existing) pair.
func (r *Reconciler) identityCollisions(ctx context.Context, fills []metadataFill) ([][2]int64, error) {
	var (
		ids     []int64
		names   []string
		years   []int
		genders []string
		states  []string
	)
	for _, f := range fills {
		ids = append(ids, f.id)
		names = append(names, f.canonical)
		years = append(years, f.birthYear)
		genders = append(genders, f.gender)
		if f.state != nil {
			states = append(states, *f.state)
		} else {
			states = append(states, "")
		}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT u.id, t.id
		FROM unnest($1::bigint[], $2::text[], $3::int[], $4::text[], $5::text[])
			AS u(id, canonical_name, birth_year, gender, state)
		JOIN `+config.TeamsTable+` t
			ON t.merged_into IS NULL
			AND t.id <> u.id
			AND t.canonical_name = u.canonical_name
			AND t.birth_year IS NOT DISTINCT FROM NULLIF(u.birth_year, 0)
			AND t.gender IS NOT DISTINCT FROM NULLIF(u.gender, '')
			AND t.state IS NOT DISTINCT FROM NULLIF(u.state, '')
		ORDER BY u.id, t.id`,
		ids, names, years, genders, states)
	if err != nil {
		return nil, fmt.Errorf("check identity collisions: %w", err)
	}
	defer rows.Close()

	var pairs [][2]int64
	seen := make(map[int64]bool)
	for rows.Next() {
		var filled, existing int64
		if err := rows.Scan(&filled, &existing); err != nil {
			return pairs, fmt.Errorf("scan identity collision: %w", err)
		}
		if seen[filled] {
			continue
		}
		seen[filled] = true
		pairs = append(pairs, [2]int64{filled, existing})
	}
	return pairs, rows.Err()
}

// mergePairs merges each (a, b) pair with the keeper chosen by the usual
// ranking. Pairs whose teams were already merged away by an earlier pair
// are skipped. Dry run only reports what would merge.
func (r *Reconciler) mergePairs(ctx context.Context, result *Result, pairs [][2]int64, reason string, dryRun bool) {
	for _, p := range pairs {
		ranked, err := r.rankTeams(ctx, p[:])
		if err != nil {
			result.AddErrorf("rank pair %v: %v", p, err)
			continue
		}
		if len(ranked) < 2 {
			result.Skipped++
			continue
		}
		result.Groups++

		if dryRun {
			r.logger.Info("would merge",
				"reason", reason, "keeper", ranked[0], "loser", ranked[1])
			continue
		}

		var counts mergeCounts
		err = db.WithPipelineTx(ctx, r.pool, func(tx pgx.Tx) error {
			var err error
			counts, err = r.mergeGroup(ctx, tx, ranked, reason)
			return err
		})
		if err != nil {
			result.AddErrorf("merge %d into %d: %v", ranked[1], ranked[0], err)
			r.logger.Error("pair merge failed",
				"reason", reason, "loser", ranked[1], "keeper", ranked[0], "error", err)
			continue
		}
		counts.apply(result)
	}
}

// orphanTeam carries what orphan matching needs in memory.
type orphanTeam struct {
	id   int64
	name string
}

type identityBucket struct {
	birthYear int
	gender    string
}

// matchOrphans finds live teams that carry ranking data but play no
// matches, and pairs each with the unique match-having team in the same
// (birth_year, gender) bucket whose name matches. Orphans with several
// plausible counterparts are returned separately for flagging.
func (r *Reconciler) matchOrphans(ctx context.Context, result *Result) (pairs [][2]int64, ambiguous []int64, err error) {
	buckets, err := r.bucketTeams(ctx, `
		SELECT id, display_name, birth_year, gender
		FROM `+config.TeamsTable+`
		WHERE merged_into IS NULL
		  AND matches_played > 0
		  AND birth_year IS NOT NULL AND gender IS NOT NULL`)
	if err != nil {
		return nil, nil, fmt.Errorf("load match-having teams: %w", err)
	}

	orphans, err := r.bucketTeams(ctx, `
		SELECT id, display_name, birth_year, gender
		FROM `+config.TeamsTable+`
		WHERE merged_into IS NULL
		  AND matches_played = 0
		  AND (national_rank IS NOT NULL OR state_rank IS NOT NULL
		       OR regional_rank IS NOT NULL OR gotsport_points IS NOT NULL)
		  AND birth_year IS NOT NULL AND gender IS NOT NULL`)
	if err != nil {
		return nil, nil, fmt.Errorf("load orphan teams: %w", err)
	}

	for bucket, group := range orphans {
		candidates := buckets[bucket]
		for _, o := range group {
			result.Examined++
			var hits []int64
			for _, c := range candidates {
				if !nameSuffixMatch(o.name, c.name) {
					continue
				}
				if colorConflict(o.name, c.name) || levelConflict(o.name, c.name) {
					continue
				}
				hits = append(hits, c.id)
			}
			switch len(hits) {
			case 0:
				result.Skipped++
			case 1:
				pairs = append(pairs, [2]int64{o.id, hits[0]})
			default:
				ambiguous = append(ambiguous, o.id)
			}
		}
	}
	return pairs, ambiguous, nil
}

func (r *Reconciler) bucketTeams(ctx context.Context, query string) (map[identityBucket][]orphanTeam, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[identityBucket][]orphanTeam)
	for rows.Next() {
		var (
			t      orphanTeam
			bucket identityBucket
		)
		if err := rows.Scan(&t.id, &t.name, &bucket.birthYear, &bucket.gender); err != nil {
			return nil, err
		}
		out[bucket] = append(out[bucket], t)
	}
	return out, rows.Err()
}

// flagAmbiguousOrphans marks orphans with more than one plausible
// counterpart for manual review instead of guessing.
func (r *Reconciler) flagAmbiguousOrphans(ctx context.Context, result *Result, ids []int64, dryRun bool) error {
	if len(ids) == 0 {
		return nil
	}
	return r.runTx(ctx, dryRun, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE `+config.TeamsTable+` SET
				data_quality_flags = array_append(data_quality_flags, 'potential_duplicate'),
				updated_at = NOW()
			WHERE id = ANY($1)
			  AND NOT ('potential_duplicate' = ANY(data_quality_flags))`, ids)
		if err != nil {
			return fmt.Errorf("flag ambiguous orphans: %w", err)
		}
		result.Remaining += int(tag.RowsAffected())
		return nil
	})
}

// recomputeAllStats rebuilds every live team's cached match record in two
// bulk statements, then flags out-of-range birth years.
func (r *Reconciler) recomputeAllStats(ctx context.Context, result *Result, dryRun bool) error {
	minYear, maxYear := config.BirthYearBounds(r.norm.SeasonYear())

	return r.runTx(ctx, dryRun, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE `+config.TeamsTable+` t SET
				matches_played = s.played,
				wins   = s.wins,
				losses = s.losses,
				draws  = s.draws,
				updated_at = NOW()
			FROM (
				SELECT team_id,
				       COUNT(*) AS played,
				       COUNT(*) FILTER (WHERE outcome > 0) AS wins,
				       COUNT(*) FILTER (WHERE outcome < 0) AS losses,
				       COUNT(*) FILTER (WHERE outcome = 0) AS draws
				FROM (
					SELECT home_team_id AS team_id,
					       SIGN(home_score - away_score) AS outcome
					FROM `+config.MatchesTable+`
					WHERE deleted_at IS NULL AND home_score IS NOT NULL
					UNION ALL
					SELECT away_team_id,
					       SIGN(away_score - home_score)
					FROM `+config.MatchesTable+`
					WHERE deleted_at IS NULL AND home_score IS NOT NULL
				) sides
				GROUP BY team_id
			) s
			WHERE t.id = s.team_id AND t.merged_into IS NULL
			  AND (t.matches_played IS DISTINCT FROM s.played
			       OR t.wins IS DISTINCT FROM s.wins
			       OR t.losses IS DISTINCT FROM s.losses
			       OR t.draws IS DISTINCT FROM s.draws)`)
		if err != nil {
			return fmt.Errorf("recompute team stats: %w", err)
		}
		result.Updated += int(tag.RowsAffected())

		// Teams whose scored matches all went away keep stale counts the
		// aggregate above never sees.
		tag, err = tx.Exec(ctx, `
			UPDATE `+config.TeamsTable+` t SET
				matches_played = 0, wins = 0, losses = 0, draws = 0,
				updated_at = NOW()
			WHERE t.merged_into IS NULL
			  AND (t.matches_played <> 0 OR t.wins <> 0
			       OR t.losses <> 0 OR t.draws <> 0)
			  AND NOT EXISTS (
				SELECT 1 FROM `+config.MatchesTable+` m
				WHERE (m.home_team_id = t.id OR m.away_team_id = t.id)
				  AND m.deleted_at IS NULL AND m.home_score IS NOT NULL)`)
		if err != nil {
			return fmt.Errorf("zero stale team stats: %w", err)
		}
		result.Updated += int(tag.RowsAffected())

		tag, err = tx.Exec(ctx, `
			UPDATE `+config.TeamsTable+` SET
				data_quality_flags = array_append(data_quality_flags, 'invalid_birth_year'),
				updated_at = NOW()
			WHERE merged_into IS NULL
			  AND birth_year IS NOT NULL
			  AND (birth_year < $1 OR birth_year > $2)
			  AND NOT ('invalid_birth_year' = ANY(data_quality_flags))`,
			minYear, maxYear)
		if err != nil {
			return fmt.Errorf("flag invalid birth years: %w", err)
		}
		result.Remaining += int(tag.RowsAffected())
		return nil
	})
}

// Color and level vocabularies for orphan matching. A pair whose names
// carry different words from the same vocabulary is two real squads, not
// a duplicate.
var (
	colorWords = map[string]bool{
		"red": true, "blue": true, "white": true, "black": true,
		"green": true, "gold": true, "silver": true, "grey": true,
		"gray": true, "orange": true, "purple": true, "navy": true,
		"royal": true, "maroon": true, "teal": true, "yellow": true,
	}
	levelWords = map[string]bool{
		"elite": true, "premier": true, "select": true, "academy": true,
		"classic": true, "rec": true, "ecnl": true, "ecrl": true,
		"dpl": true, "npl": true,
	}
)

// nameSuffixMatch reports whether one name is a whole-word suffix of the
// other after duplicate-prefix stripping.
func nameSuffixMatch(a, b string) bool {
	a = strings.ToLower(normalizer.StripDuplicatePrefix(a))
	b = strings.ToLower(normalizer.StripDuplicatePrefix(b))
	if a == "" || b == "" {
		return false
	}
	return hasWordSuffix(a, b) || hasWordSuffix(b, a)
}

func hasWordSuffix(s, suffix string) bool {
	if !strings.HasSuffix(s, suffix) {
		return false
	}
	if len(s) == len(suffix) {
		return true
	}
	return s[len(s)-len(suffix)-1] == ' '
}

func colorConflict(a, b string) bool {
	return vocabConflict(a, b, colorWords)
}

func levelConflict(a, b string) bool {
	return vocabConflict(a, b, levelWords)
}

// vocabConflict reports whether both names use the vocabulary but with
// different word sets.
func vocabConflict(a, b string, vocab map[string]bool) bool {
	wa, wb := wordsIn(a, vocab), wordsIn(b, vocab)
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}
	if len(wa) != len(wb) {
		return true
	}
	for w := range wa {
		if !wb[w] {
			return true
		}
	}
	return false
}

func wordsIn(name string, vocab map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(name)) {
		w = strings.Trim(w, "()[]-")
		if vocab[w] {
			out[w] = true
		}
	}
	return out
}
