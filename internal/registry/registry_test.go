package registry

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MGMAppDev/soccerview-pipeline/internal/normalizer"
)

// recordingQuerier captures every statement so the SQL the registry
// emits can be checked without a database.
type recordingQuerier struct {
	sql  []string
	args [][]any
}

func (q *recordingQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.sql = append(q.sql, sql)
	q.args = append(q.args, args)
	return pgconn.CommandTag{}, nil
}

func (q *recordingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (q *recordingQuerier) QueryRow(context.Context, string, ...any) pgx.Row       { return nil }

func TestRegisterUpsertsOnIdentityTuple(t *testing.T) {
	q := &recordingQuerier{}
	ident := normalizer.Identity{CanonicalName: "one fc 2014b", BirthYear: 2014, Gender: "M"}

	require.NoError(t, Register(context.Background(), q, 7, ident, "One FC 2014B", "KS"))
	require.Len(t, q.sql, 1)

	// The registry's only unique index is the identity tuple; team_id
	// carries no uniqueness, so it can never arbitrate the upsert.
	assert.Contains(t, q.sql[0], "ON CONFLICT "+IdentityColumns)
	assert.NotContains(t, q.sql[0], "ON CONFLICT (team_id)")
	// An identity collision folds the raw spelling into aliases.
	assert.Contains(t, q.sql[0], "array_append")

	assert.Equal(t, []any{int64(7), "one fc 2014b", 2014, "M", "KS", "One FC 2014B"}, q.args[0])
}

func TestRegisterNullsUnknownIdentityFields(t *testing.T) {
	q := &recordingQuerier{}
	require.NoError(t, Register(context.Background(), q, 3, normalizer.Identity{CanonicalName: "blue thunder"}, "Blue Thunder", ""))
	require.Len(t, q.args, 1)
	assert.Equal(t, []any{int64(3), "blue thunder", nil, nil, nil, "Blue Thunder"}, q.args[0])
}
