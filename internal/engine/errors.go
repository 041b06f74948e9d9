package engine

import "fmt"

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports a state transition the current state forbids.
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Detail)
}

// LockedError reports an action blocked by a freeze or cooldown. Until is
// the RFC3339 instant the block lifts.
type LockedError struct {
	Status string
	Until  string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("topic is %s until %s", e.Status, e.Until)
}

// TooEarlyError reports a lock attempted before the discussion window
// closed. LocksAt is the RFC3339 instant locking becomes possible.
type TooEarlyError struct {
	LocksAt string
}

func (e *TooEarlyError) Error() string {
	return fmt.Sprintf("discussion window open until %s", e.LocksAt)
}

// RateLimitError reports a trailing-window quota exhaustion.
type RateLimitError struct {
	Limit  int
	Window string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("limit of %d per %s reached", e.Limit, e.Window)
}
