package repo

import (
	"context"
	"database/sql"

	"pactline/internal/domain"
)

const topicCols = `id,topic,status,last_discussed,discussion_count,freeze_until,user_id,created_at`

func scanTopic(scan func(dest ...any) error) (domain.Topic, error) {
	var t domain.Topic
	var freezeUntil, userID sql.NullString
	err := scan(&t.ID, &t.Topic, &t.Status, &t.LastDiscussed, &t.DiscussionCount, &freezeUntil, &userID, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if freezeUntil.Valid {
		t.FreezeUntil = &freezeUntil.String
	}
	if userID.Valid {
		t.UserID = &userID.String
	}
	return t, err
}

func (r Repo) InsertTopicTx(ctx context.Context, tx *sql.Tx, t domain.Topic) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO communication_controls(id,topic,status,last_discussed,discussion_count,freeze_until,user_id,created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.Topic, t.Status, t.LastDiscussed, t.DiscussionCount,
		nullableStringPtr(t.FreezeUntil), nullableStringPtr(t.UserID), t.CreatedAt)
	return err
}

func (r Repo) GetTopic(ctx context.Context, id string) (domain.Topic, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+topicCols+` FROM communication_controls WHERE id=?`, id)
	return scanTopic(row.Scan)
}

func (r Repo) GetTopicTx(ctx context.Context, tx *sql.Tx, id string) (domain.Topic, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+topicCols+` FROM communication_controls WHERE id=?`, id)
	return scanTopic(row.Scan)
}

// FindTopicByName looks up a topic by its normalized name.
func (r Repo) FindTopicByName(ctx context.Context, topic string) (domain.Topic, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+topicCols+` FROM communication_controls WHERE topic=?`, topic)
	return scanTopic(row.Scan)
}

// ListTopics returns the viewer's own topics plus global ones (no owner).
func (r Repo) ListTopics(ctx context.Context, viewerID string) ([]domain.Topic, error) {
	query := `SELECT ` + topicCols + ` FROM communication_controls WHERE (user_id=? OR user_id IS NULL) ORDER BY last_discussed DESC`
	rows, err := r.DB.QueryContext(ctx, query, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Topic
	for rows.Next() {
		t, err := scanTopic(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// RecordDiscussionTx bumps the counter and, when it crossed the freeze
// threshold, the status in a single guarded update. The prevCount guard
// makes concurrent bumps retry instead of losing a count.
func (r Repo) RecordDiscussionTx(ctx context.Context, tx *sql.Tx, t domain.Topic, prevCount int) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE communication_controls
		SET status=?, last_discussed=?, discussion_count=?, freeze_until=?
		WHERE id=? AND discussion_count=?`,
		t.Status, t.LastDiscussed, t.DiscussionCount, nullableStringPtr(t.FreezeUntil), t.ID, prevCount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) UpdateTopicStatusTx(ctx context.Context, tx *sql.Tx, id, status string, freezeUntil *string) error {
	_, err := tx.ExecContext(ctx, `UPDATE communication_controls SET status=?, freeze_until=? WHERE id=?`,
		status, nullableStringPtr(freezeUntil), id)
	return err
}

func (r Repo) DeleteTopicTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM communication_controls WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
