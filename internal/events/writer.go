// Package events appends audit events inside the caller's transaction.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	NeedCreated         = "need.created"
	NeedUpdated         = "need.updated"
	NeedAssigned        = "need.assigned"
	NeedUnassigned      = "need.unassigned"
	NeedRegistered      = "need.registered"
	ActivityCreated     = "activity.created"
	ActivityUpdated     = "activity.updated"
	ActivityStatus      = "activity.status_changed"
	ConsultationCreated = "consultation.created"
	ConsultationUpdated = "consultation.updated"
)

type Payload map[string]any

// Record is one event to append.
type Record struct {
	Type       string
	ActivityID string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, r Record) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if r.Payload == nil {
		r.Payload = Payload{}
	}
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events(ts,type,activity_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), r.Type, nullable(r.ActivityID), r.EntityKind, nullable(r.EntityID), r.ActorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", r.Type, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
