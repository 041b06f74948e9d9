package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"pactline/internal/domain"
	"pactline/internal/events"
	"pactline/internal/repo"
)

// NormalizeTopic canonicalizes a topic name for uniqueness checks.
func NormalizeTopic(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EffectiveTopicStatus resolves the stored status against the clock. A
// freeze or cooldown whose freeze_until has passed reads as active; the
// stored row is left untouched.
func EffectiveTopicStatus(status string, freezeUntil *string, now time.Time) (string, *string) {
	if status != "frozen" && status != "cooldown" {
		return "active", nil
	}
	if freezeUntil == nil {
		return "active", nil
	}
	until, err := parseTime(*freezeUntil)
	if err != nil || !until.After(now) {
		return "active", nil
	}
	return status, freezeUntil
}

func (e *Engine) overlayTopic(t domain.Topic, now time.Time) domain.Topic {
	t.Status, t.FreezeUntil = EffectiveTopicStatus(t.Status, t.FreezeUntil, now)
	return t
}

type AddTopicOptions struct {
	ActorID string
	Topic   string
}

func (e *Engine) AddTopic(ctx context.Context, opts AddTopicOptions) (domain.Topic, error) {
	name := NormalizeTopic(opts.Topic)
	if name == "" {
		return domain.Topic{}, &ValidationError{Field: "topic", Reason: "must not be empty"}
	}
	if _, err := e.Repo.FindTopicByName(ctx, name); err == nil {
		return domain.Topic{}, &ConflictError{Resource: "topic", Detail: "topic already tracked"}
	} else if err != repo.ErrNotFound {
		return domain.Topic{}, err
	}

	now := e.now()
	t := domain.Topic{
		ID:            uuid.NewString(),
		Topic:         name,
		Status:        "active",
		LastDiscussed: fmtTime(now),
		UserID:        &opts.ActorID,
		CreatedAt:     fmtTime(now),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Topic{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTopicTx(ctx, tx, t); err != nil {
		return domain.Topic{}, err
	}
	err = e.Events.Append(ctx, tx, events.Entry{
		Type:       "topic.added",
		EntityKind: "topic",
		EntityID:   t.ID,
		ActorID:    opts.ActorID,
		Payload:    map[string]string{"topic": name},
	})
	if err != nil {
		return domain.Topic{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Topic{}, err
	}
	return t, nil
}

func (e *Engine) GetTopic(ctx context.Context, id string) (domain.Topic, error) {
	t, err := e.Repo.GetTopic(ctx, id)
	if err != nil {
		return domain.Topic{}, err
	}
	return e.overlayTopic(t, e.now()), nil
}

type ListTopicsOptions struct {
	ActorID string
	Status  string // filter on the effective status
}

// ListTopics returns the caller's own topics plus global ones; other
// couples' topics stay invisible.
func (e *Engine) ListTopics(ctx context.Context, opts ListTopicsOptions) ([]domain.Topic, error) {
	list, err := e.Repo.ListTopics(ctx, opts.ActorID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	res := make([]domain.Topic, 0, len(list))
	for _, t := range list {
		t = e.overlayTopic(t, now)
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		res = append(res, t)
	}
	return res, nil
}

type RecordDiscussionOptions struct {
	ActorID string
	TopicID string
}

// RecordDiscussion bumps a topic's discussion counter. A topic still
// frozen or cooling down rejects the attempt; crossing the threshold
// freezes the topic for the automatic window. The counter is monotonic
// and survives freezes.
func (e *Engine) RecordDiscussion(ctx context.Context, opts RecordDiscussionOptions) (domain.Topic, error) {
	// The guarded update can lose a race against a concurrent bump on
	// another connection; retry with a fresh read.
	for attempt := 0; attempt < 3; attempt++ {
		t, retry, err := e.recordDiscussionOnce(ctx, opts)
		if retry {
			continue
		}
		return t, err
	}
	return domain.Topic{}, &ConflictError{Resource: "topic", Detail: "concurrent update, try again"}
}

func (e *Engine) recordDiscussionOnce(ctx context.Context, opts RecordDiscussionOptions) (domain.Topic, bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Topic{}, false, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTopicTx(ctx, tx, opts.TopicID)
	if err != nil {
		return domain.Topic{}, false, err
	}
	now := e.now()
	status, until := EffectiveTopicStatus(t.Status, t.FreezeUntil, now)
	if status != "active" {
		return domain.Topic{}, false, &LockedError{Status: status, Until: *until}
	}

	prevCount := t.DiscussionCount
	t.DiscussionCount++
	t.LastDiscussed = fmtTime(now)
	t.Status = "active"
	t.FreezeUntil = nil
	autoFrozen := false
	if t.DiscussionCount >= freezeThreshold {
		freezeUntil := fmtTime(now.Add(autoFreezeHours * time.Hour))
		t.Status = "frozen"
		t.FreezeUntil = &freezeUntil
		autoFrozen = true
	}

	updated, err := e.Repo.RecordDiscussionTx(ctx, tx, t, prevCount)
	if err != nil {
		return domain.Topic{}, false, err
	}
	if !updated {
		return domain.Topic{}, true, nil
	}
	err = e.Events.Append(ctx, tx, events.Entry{
		Type:       "topic.discussed",
		EntityKind: "topic",
		EntityID:   t.ID,
		ActorID:    opts.ActorID,
		Payload: map[string]any{
			"discussion_count": t.DiscussionCount,
			"auto_frozen":      autoFrozen,
		},
	})
	if err != nil {
		return domain.Topic{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Topic{}, false, err
	}
	return t, false, nil
}

type SetTopicStatusOptions struct {
	ActorID     string
	TopicID     string
	Status      string
	FreezeHours int // only for frozen; 0 means the configured default
}

// SetTopicStatus sets a topic's status by hand. Freezes run for the given
// number of hours, cooldowns for a fixed two, and activating clears any
// pending freeze.
func (e *Engine) SetTopicStatus(ctx context.Context, opts SetTopicStatusOptions) (domain.Topic, error) {
	now := e.now()
	var freezeUntil *string
	switch opts.Status {
	case "active":
	case "frozen":
		hours := opts.FreezeHours
		if hours == 0 {
			hours = e.Config.Defaults.FreezeHours
		}
		if hours < 1 || hours > maxFreezeHours {
			return domain.Topic{}, &ValidationError{Field: "freeze_hours", Reason: "must be between 1 and 168"}
		}
		s := fmtTime(now.Add(time.Duration(hours) * time.Hour))
		freezeUntil = &s
	case "cooldown":
		s := fmtTime(now.Add(cooldownHours * time.Hour))
		freezeUntil = &s
	default:
		return domain.Topic{}, &ValidationError{Field: "status", Reason: "must be one of active, frozen, cooldown"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Topic{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTopicTx(ctx, tx, opts.TopicID)
	if err != nil {
		return domain.Topic{}, err
	}
	if err := e.Repo.UpdateTopicStatusTx(ctx, tx, t.ID, opts.Status, freezeUntil); err != nil {
		return domain.Topic{}, err
	}
	err = e.Events.Append(ctx, tx, events.Entry{
		Type:       "topic.status_changed",
		EntityKind: "topic",
		EntityID:   t.ID,
		ActorID:    opts.ActorID,
		Payload:    map[string]any{"status": opts.Status, "freeze_until": freezeUntil},
	})
	if err != nil {
		return domain.Topic{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Topic{}, err
	}
	t.Status = opts.Status
	t.FreezeUntil = freezeUntil
	return t, nil
}

type RemoveTopicOptions struct {
	ActorID string
	TopicID string
}

// RemoveTopic deletes a topic. Owned topics can only be removed by their
// owner or the owner's partner; a stranger's attempt reads as missing.
func (e *Engine) RemoveTopic(ctx context.Context, opts RemoveTopicOptions) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTopicTx(ctx, tx, opts.TopicID)
	if err != nil {
		return err
	}
	if t.UserID != nil {
		ok, err := e.Guard.IsSelfOrPartner(ctx, opts.ActorID, *t.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return repo.ErrNotFound
		}
	}
	if err := e.Repo.DeleteTopicTx(ctx, tx, t.ID); err != nil {
		return err
	}
	err = e.Events.Append(ctx, tx, events.Entry{
		Type:       "topic.removed",
		EntityKind: "topic",
		EntityID:   t.ID,
		ActorID:    opts.ActorID,
		Payload:    map[string]string{"topic": t.Topic},
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}
