package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const defaultListLimit = 100

type EventOperations struct {
	db *sql.DB
}

func NewEventOperations(database *sql.DB) *EventOperations {
	return &EventOperations{db: database}
}

// InsertEvents stores the events in one transaction, in slice order.
func (o *EventOperations) InsertEvents(ctx context.Context, events []*JobEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, InsertJobEvent)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		result, err := stmt.ExecContext(ctx, ev.Kind, ev.JobName, ev.FromState, ev.ToState, ev.Reason, ev.OccurredAt)
		if err != nil {
			return fmt.Errorf("failed to insert job event: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get job event id: %w", err)
		}
		ev.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job events: %w", err)
	}
	return nil
}

func (o *EventOperations) ListEvents(ctx context.Context, filter EventFilter) ([]*JobEvent, error) {
	var conditions []string
	var args []interface{}

	if filter.JobName != "" {
		conditions = append(conditions, "job_name = ?")
		args = append(args, filter.JobName)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}

	query := SelectJobEvents
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id ASC LIMIT ? OFFSET ?"

	limit := defaultListLimit
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit, filter.Offset)

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job events: %w", err)
	}
	defer rows.Close()

	var events []*JobEvent
	for rows.Next() {
		ev := &JobEvent{}
		if err := rows.Scan(
			&ev.ID, &ev.Kind, &ev.JobName, &ev.FromState, &ev.ToState,
			&ev.Reason, &ev.OccurredAt, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (o *EventOperations) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	if err := o.db.QueryRowContext(ctx, CountJobEvents).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count job events: %w", err)
	}
	return count, nil
}

// PruneEvents deletes events that occurred before the cutoff and reports how many went.
func (o *EventOperations) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	result, err := o.db.ExecContext(ctx, DeleteJobEventsBefore, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune job events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}
