package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"pactline/internal/domain"
	"pactline/internal/events"
	"pactline/internal/notify"
	"pactline/internal/repo"
)

type ActivateOverrideOptions struct {
	ActorID       string
	Reason        string
	DecisionID    string
	TaskID        string
	DurationHours int // 0 means the configured default
}

// ActivateOverride bypasses a decision or task under the emergency quota:
// at most five overrides per user in any trailing 24 hour window, counted
// by creation time so expiry does not refund quota. The partner is
// notified after commit; a failed notification never unwinds the
// override.
func (e *Engine) ActivateOverride(ctx context.Context, opts ActivateOverrideOptions) (domain.Override, error) {
	if strings.TrimSpace(opts.Reason) == "" {
		return domain.Override{}, &ValidationError{Field: "reason", Reason: "must not be empty"}
	}
	if (opts.DecisionID == "") == (opts.TaskID == "") {
		return domain.Override{}, &ValidationError{Field: "target", Reason: "exactly one of decision_id or task_id is required"}
	}
	hours := opts.DurationHours
	if hours == 0 {
		hours = e.Config.Defaults.OverrideHours
	}
	if hours < 1 || hours > maxOverrideHours {
		return domain.Override{}, &ValidationError{Field: "duration_hours", Reason: "must be between 1 and 24"}
	}

	var decisionID, taskID *string
	var targetTitle string
	if opts.DecisionID != "" {
		d, err := e.Repo.GetDecision(ctx, opts.DecisionID)
		if err != nil {
			return domain.Override{}, err
		}
		if d.OwnerID != opts.ActorID && d.CreatedBy != opts.ActorID {
			return domain.Override{}, repo.ErrNotFound
		}
		decisionID = &d.ID
		targetTitle = d.Title
	} else {
		t, err := e.Repo.GetTask(ctx, opts.TaskID)
		if err != nil {
			return domain.Override{}, err
		}
		if t.CreatedBy != opts.ActorID && t.AssignedTo != opts.ActorID {
			return domain.Override{}, repo.ErrNotFound
		}
		taskID = &t.ID
		targetTitle = t.Title
	}

	now := e.now()
	o := domain.Override{
		ID:         uuid.NewString(),
		Reason:     strings.TrimSpace(opts.Reason),
		UserID:     opts.ActorID,
		DecisionID: decisionID,
		TaskID:     taskID,
		Status:     "active",
		CreatedAt:  fmtTime(now),
		ExpiresAt:  fmtTime(now.Add(time.Duration(hours) * time.Hour)),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Override{}, err
	}
	defer tx.Rollback()

	since := fmtTime(now.Add(-overrideWindowHours * time.Hour))
	recent, err := e.Repo.CountRecentOverridesTx(ctx, tx, opts.ActorID, since)
	if err != nil {
		return domain.Override{}, err
	}
	if recent >= overrideLimit {
		return domain.Override{}, &RateLimitError{Limit: overrideLimit, Window: "24h"}
	}
	if err := e.Repo.InsertOverrideTx(ctx, tx, o); err != nil {
		return domain.Override{}, err
	}
	err = e.Events.Append(ctx, tx, events.Entry{
		Type:       "override.activated",
		EntityKind: "override",
		EntityID:   o.ID,
		ActorID:    opts.ActorID,
		Payload: map[string]any{
			"reason":     o.Reason,
			"expires_at": o.ExpiresAt,
		},
	})
	if err != nil {
		return domain.Override{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Override{}, err
	}

	// Best effort only: the override is already committed and a silent
	// partner must not block it.
	if partner, err := e.Guard.PartnerOf(ctx, opts.ActorID); err == nil && partner != "" {
		_ = e.Notify.Send(ctx, notify.Message{
			UserID: partner,
			Title:  "Emergency Override Activated",
			Body:   "Your partner activated an emergency override: " + o.Reason,
			Type:   "emergency",
			Data: map[string]string{
				"override_id": o.ID,
				"target":      targetTitle,
				"expires_at":  o.ExpiresAt,
			},
		})
	}
	return o, nil
}

// OverrideList partitions a user's recent overrides.
type OverrideList struct {
	All       []domain.Override
	ActiveNow []domain.Override
}

// ListOverrides returns the caller's 20 most recent overrides. Expiry is
// resolved against the clock at read time; rows are never rewritten.
func (e *Engine) ListOverrides(ctx context.Context, actorID string) (OverrideList, error) {
	list, err := e.Repo.ListOverrides(ctx, actorID, 20)
	if err != nil {
		return OverrideList{}, err
	}
	now := e.now()
	var res OverrideList
	for _, o := range list {
		expires, err := parseTime(o.ExpiresAt)
		if err != nil {
			return OverrideList{}, err
		}
		if expires.After(now) {
			res.ActiveNow = append(res.ActiveNow, o)
		} else {
			o.Status = "expired"
		}
		res.All = append(res.All, o)
	}
	return res, nil
}
