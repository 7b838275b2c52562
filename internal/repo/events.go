package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"roadwork/internal/domain"
)

const eventColumns = `id,ts,type,COALESCE(activity_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ActivityID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventsFrom returns up to limit events older than cursor, newest
// first. A zero cursor starts from the newest event.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, activityID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if activityID != "" {
		clauses = append(clauses, "activity_id=?")
		args = append(args, activityID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	args = append(args, limit)
	return r.queryEvents(ctx, fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, eventColumns, strings.Join(clauses, " AND ")), args...)
}

// EventsAfter returns events with ids greater than cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.q().QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

// RelayCursor returns the last event id published by the named relay.
func (r Repo) RelayCursor(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.q().QueryRowContext(ctx, `SELECT last_event_id FROM relay_cursors WHERE name=?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func (r Repo) SetRelayCursor(ctx context.Context, name string, id int64, now string) error {
	_, err := r.q().ExecContext(ctx, `INSERT INTO relay_cursors(name,last_event_id,updated_at) VALUES (?,?,?)
ON CONFLICT(name) DO UPDATE SET last_event_id=excluded.last_event_id, updated_at=excluded.updated_at`, name, id, now)
	return err
}
