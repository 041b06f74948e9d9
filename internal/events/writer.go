// Package events appends audit events inside the caller's transaction so
// an event never outlives a rolled-back change.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type Writer struct {
	Now func() time.Time
}

type Entry struct {
	Type       string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    any
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now().UTC()
}

// Append writes one audit event using the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	var payload any
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return err
		}
		payload = string(b)
	}
	var entityID any
	if e.EntityID != "" {
		entityID = e.EntityID
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		w.now().Format(time.RFC3339), e.Type, e.EntityKind, entityID, e.ActorID, payload)
	return err
}
