package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"pactline/internal/config"
	"pactline/internal/domain"
	"pactline/internal/repo"
)

const seedEmail = "local@pactline.dev"

// ResolveConfig loads the workspace config file, falling back to defaults
// when it does not exist.
func ResolveConfig(workspace string) (config.Config, error) {
	if workspace == "" {
		workspace = "."
	}
	return config.LoadOptional(filepath.Join(workspace, ".pactline", "pactline.yaml"))
}

// ResolveUser picks the acting user for CLI commands. The override may be
// a user id or an email. Without an override a single-user database picks
// that user, and an empty database is seeded with a local user.
func ResolveUser(ctx context.Context, r repo.Repo, override string) (domain.User, error) {
	if override != "" {
		if u, err := r.GetUser(ctx, override); err == nil {
			return u, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, err
		}
		if strings.Contains(override, "@") {
			return r.GetUserByEmail(ctx, override)
		}
		return domain.User{}, repo.ErrNotFound
	}
	users, err := r.ListUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	switch len(users) {
	case 0:
		u := domain.User{
			ID:        uuid.NewString(),
			Email:     seedEmail,
			Name:      "Local User",
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := r.InsertUser(ctx, u); err != nil {
			return domain.User{}, err
		}
		return u, nil
	case 1:
		return users[0], nil
	default:
		return domain.User{}, fmt.Errorf("user not specified; use --user")
	}
}
