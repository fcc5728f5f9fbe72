// Package audit writes and reads the append-only audit log. Every
// destructive pipeline operation records the affected row here, which is
// what makes the recovery operator possible: a bad dedup run can be
// reversed because the deleted rows still exist as JSON in the log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MGMAppDev/soccerview-pipeline/internal/config"
	"github.com/MGMAppDev/soccerview-pipeline/internal/db"
)

// Actions recorded in the log. Merge covers both team merges and
// semantic-duplicate match absorption, where the losing row is soft-deleted
// in favor of a keeper.
const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionMerge  = "MERGE"
)

// Entry is one audit row to be written. OldData and NewData take any
// JSON-marshalable value; nil writes SQL NULL.
type Entry struct {
	TableName string
	RecordID  int64
	Action    string
	OldData   any
	NewData   any
	ChangedBy string // operator name, e.g. "matchDedup"
}

// Record appends one entry to the audit log. Bulk reconciliation SQL writes
// its own audit rows with to_jsonb inside the statement; this path serves
// the app-side writers (promotion merges, recovery reinserts).
func Record(ctx context.Context, q db.Querier, e Entry) error {
	oldData, err := marshalData(e.OldData)
	if err != nil {
		return fmt.Errorf("marshal audit old data: %w", err)
	}
	newData, err := marshalData(e.NewData)
	if err != nil {
		return fmt.Errorf("marshal audit new data: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO `+config.AuditLogTable+` (
			table_name, record_id, action, old_data, new_data,
			changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		e.TableName, e.RecordID, e.Action, oldData, newData, e.ChangedBy)
	if err != nil {
		return fmt.Errorf("write audit entry %s/%d: %w", e.TableName, e.RecordID, err)
	}
	return nil
}

// Deletion is one recoverable row: the latest pre-delete image of a record.
type Deletion struct {
	RecordID  int64
	OldData   json.RawMessage
	ChangedAt time.Time
}

// Deletions returns the rows a named operator deleted from a table within
// the window, one per record with the most recent image winning. A record
// deleted twice in the window recovers to its latest state.
func Deletions(ctx context.Context, q db.Querier, table, changedBy string, from, to time.Time) ([]Deletion, error) {
	rows, err := q.Query(ctx, `
		SELECT DISTINCT ON (record_id) record_id, old_data, changed_at
		FROM `+config.AuditLogTable+`
		WHERE table_name = $1
		  AND changed_by = $2
		  AND action IN ($3, $4)
		  AND changed_at BETWEEN $5 AND $6
		  AND old_data IS NOT NULL
		ORDER BY record_id, changed_at DESC`,
		table, changedBy, ActionDelete, ActionMerge, from, to)
	if err != nil {
		return nil, fmt.Errorf("read audit deletions: %w", err)
	}
	defer rows.Close()

	var out []Deletion
	for rows.Next() {
		var d Deletion
		if err := rows.Scan(&d.RecordID, &d.OldData, &d.ChangedAt); err != nil {
			return out, fmt.Errorf("scan audit deletion: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("read audit deletions: %w", err)
	}
	return out, nil
}

func marshalData(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
