// Package notify delivers in-app notifications. Delivery is best effort:
// callers run it after their own transaction commits and may drop the error.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Message struct {
	UserID  string
	Title   string
	Body    string
	Type    string
	Data    any
	Expires *time.Time
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now().UTC()
}

// Send inserts a notification row for the recipient.
func (w Writer) Send(ctx context.Context, m Message) error {
	var data any
	if m.Data != nil {
		b, err := json.Marshal(m.Data)
		if err != nil {
			return err
		}
		data = string(b)
	}
	_, err := w.DB.ExecContext(ctx,
		`INSERT INTO notifications(id,user_id,title,message,type,data_json,is_read,created_at) VALUES (?,?,?,?,?,?,0,?)`,
		uuid.NewString(), m.UserID, m.Title, m.Body, m.Type, data, w.now().Format(time.RFC3339))
	return err
}
