package repo

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"partnerline/internal/domain"
)

type EventFilter struct {
	Type       string
	EntityKind string
	EntityID   string
	// Before returns events with smaller ids, newest first.
	Before int64
	Limit  int
}

var eventColumns = []string{"id", "ts", "type", "entity_kind", "COALESCE(entity_id,'')", "actor_id", "payload_json"}

// LatestEvents returns events newest first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	qb := builder.Select(eventColumns...).From("events").OrderBy("id DESC").Limit(uint64(f.Limit))
	if f.Type != "" {
		qb = qb.Where(sq.Eq{"type": f.Type})
	}
	if f.EntityKind != "" {
		qb = qb.Where(sq.Eq{"entity_kind": f.EntityKind})
	}
	if f.EntityID != "" {
		qb = qb.Where(sq.Eq{"entity_id": f.EntityID})
	}
	if f.Before > 0 {
		qb = qb.Where(sq.Lt{"id": f.Before})
	}
	return r.queryEvents(ctx, qb)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	qb := builder.Select(eventColumns...).From("events").Where(sq.Gt{"id": cursor}).OrderBy("id ASC").Limit(uint64(limit))
	return r.queryEvents(ctx, qb)
}

// LatestEventID returns the most recent event ID, 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, qb sq.SelectBuilder) ([]domain.Event, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
