package users

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"consult-chat/internal/models"
	"consult-chat/internal/repositories"
)

// ProfileCache is the optional read-through layer in front of the profile table.
type ProfileCache interface {
	GetMany(ctx context.Context, ids []string) (map[string]models.Profile, []string, error)
	SetMany(ctx context.Context, profiles []models.Profile) error
}

// Directory resolves user profiles, consulting the cache before the database.
type Directory struct {
	repo   repositories.ProfileRepository
	cache  ProfileCache
	logger *slog.Logger
}

// NewDirectory builds a Directory. cache may be nil.
func NewDirectory(repo repositories.ProfileRepository, cache ProfileCache, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{repo: repo, cache: cache, logger: logger}
}

// Get returns one profile or repositories.ErrProfileNotFound.
func (d *Directory) Get(ctx context.Context, userID string) (models.Profile, error) {
	if d.cache != nil {
		found, _, err := d.cache.GetMany(ctx, []string{userID})
		if err != nil {
			d.logger.Warn("profile cache read failed", "user_id", userID, "error", err)
		} else if p, ok := found[userID]; ok {
			return p, nil
		}
	}
	p, err := d.repo.GetProfile(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}
	d.remember(ctx, []models.Profile{p})
	return p, nil
}

// Bulk returns the profiles that exist among userIDs, keyed by id.
func (d *Directory) Bulk(ctx context.Context, userIDs []string) (map[string]models.Profile, error) {
	ids := lo.Uniq(lo.Compact(userIDs))
	result := make(map[string]models.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	missing := ids
	if d.cache != nil {
		found, miss, err := d.cache.GetMany(ctx, ids)
		if err != nil {
			d.logger.Warn("profile cache read failed", "count", len(ids), "error", err)
		} else {
			for id, p := range found {
				result[id] = p
			}
			missing = miss
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	profiles, err := d.repo.GetProfiles(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		result[p.ID] = p
	}
	d.remember(ctx, profiles)
	return result, nil
}

func (d *Directory) remember(ctx context.Context, profiles []models.Profile) {
	if d.cache == nil || len(profiles) == 0 {
		return
	}
	if err := d.cache.SetMany(ctx, profiles); err != nil {
		d.logger.Warn("profile cache write failed", "count", len(profiles), "error", err)
	}
}
