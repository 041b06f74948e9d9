package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pactline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const userCols = `id,email,COALESCE(name,'') AS name,partner_id,created_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var partnerID sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.Name, &partnerID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if partnerID.Valid {
		u.PartnerID = &partnerID.String
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,email,name,partner_id,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Email, nullable(u.Name), nullableStringPtr(u.PartnerID), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email=?`, email))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var partnerID sql.NullString
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &partnerID, &u.CreatedAt); err != nil {
			return nil, err
		}
		if partnerID.Valid {
			u.PartnerID = &partnerID.String
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// PartnerID returns the linked partner id for a user, or "" when unlinked.
func (r Repo) PartnerID(ctx context.Context, userID string) (string, error) {
	var partnerID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT partner_id FROM users WHERE id=?`, userID).Scan(&partnerID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if !partnerID.Valid {
		return "", nil
	}
	return partnerID.String, nil
}

func (r Repo) SetInviteTx(ctx context.Context, tx *sql.Tx, userID, token, invitedBy, invitedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET invite_token=?, invited_by=?, invited_at=? WHERE id=?`,
		token, invitedBy, invitedAt, userID)
	return err
}

// GetInvite returns the pending invite token and inviter for a user.
func (r Repo) GetInvite(ctx context.Context, userID string) (token, invitedBy string, err error) {
	var tok, by sql.NullString
	err = r.DB.QueryRowContext(ctx, `SELECT invite_token, invited_by FROM users WHERE id=?`, userID).Scan(&tok, &by)
	if err == sql.ErrNoRows {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	return tok.String, by.String, nil
}

func (r Repo) LinkPartnersTx(ctx context.Context, tx *sql.Tx, userID, partnerID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE users SET partner_id=?, invite_token=NULL, invited_by=NULL, invited_at=NULL WHERE id=?`,
		partnerID, userID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE users SET partner_id=? WHERE id=?`, userID, partnerID)
	return err
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`
	return r.queryEvents(ctx, query, cursor, limit)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
