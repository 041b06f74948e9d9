// Package guard answers couple-membership questions. Every permission
// rule in the API reduces to "is this the user or their linked partner",
// so the check lives in one place.
package guard

import (
	"context"

	"pactline/internal/repo"
)

type Service struct {
	Repo repo.Repo
}

// PartnerOf returns the linked partner id for a user, or "" when unlinked.
func (s Service) PartnerOf(ctx context.Context, userID string) (string, error) {
	return s.Repo.PartnerID(ctx, userID)
}

// IsSelfOrPartner reports whether target is the user or their partner.
func (s Service) IsSelfOrPartner(ctx context.Context, userID, target string) (bool, error) {
	if target == userID {
		return true, nil
	}
	partner, err := s.PartnerOf(ctx, userID)
	if err != nil {
		return false, err
	}
	return partner != "" && partner == target, nil
}

// CoupleIDs returns the user id plus the partner id when linked.
func (s Service) CoupleIDs(ctx context.Context, userID string) ([]string, error) {
	partner, err := s.PartnerOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := []string{userID}
	if partner != "" {
		ids = append(ids, partner)
	}
	return ids, nil
}
