// Package journal records accepted invocations in a local SQLite database.
// It is an audit trail only; Job state lives in the cluster.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"taskline/internal/domain"
)

const DefaultLimit = 50

type Writer struct {
	DB *sql.DB
}

// Append stores one accepted invocation.
func (w Writer) Append(ctx context.Context, inv domain.Invocation) error {
	ts := inv.AcceptedAt.UTC().Format(time.RFC3339Nano)
	_, err := w.DB.ExecContext(ctx, `INSERT INTO invocations(request_id,job_name,namespace,task_name,accepted_at) VALUES (?,?,?,?,?)`,
		inv.RequestID, inv.JobName, inv.Namespace, inv.TaskName, ts)
	if err != nil {
		return fmt.Errorf("append invocation: %w", err)
	}
	return nil
}

// List returns the most recent invocations of a task, newest first.
func (w Writer) List(ctx context.Context, namespace, taskName string, limit int) ([]domain.Invocation, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := w.DB.QueryContext(ctx, `SELECT request_id,job_name,namespace,task_name,accepted_at FROM invocations
		WHERE namespace=? AND task_name=? ORDER BY id DESC LIMIT ?`, namespace, taskName, limit)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()
	out := []domain.Invocation{}
	for rows.Next() {
		var inv domain.Invocation
		var ts string
		if err := rows.Scan(&inv.RequestID, &inv.JobName, &inv.Namespace, &inv.TaskName, &ts); err != nil {
			return nil, err
		}
		inv.AcceptedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse accepted_at %q: %w", ts, err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
