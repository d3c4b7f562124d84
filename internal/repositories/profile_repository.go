package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"consult-chat/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository reads the identity subsystem's profile table.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	GetProfiles(ctx context.Context, userIDs []string) ([]models.Profile, error)
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// GetProfile fetches one profile.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var p models.Profile
	err := r.db.GetContext(ctx, &p, `SELECT id, role, first_name, last_name, avatar_url FROM profiles WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
		return models.Profile{}, ErrProfileNotFound
	}
	return p, err
}

// GetProfiles fetches the profiles that exist among userIDs. Ids that are not
// uuids cannot match a row and are skipped.
func (r *ProfileRepo) GetProfiles(ctx context.Context, userIDs []string) ([]models.Profile, error) {
	ids := lo.Filter(userIDs, func(id string, _ int) bool {
		_, err := uuid.Parse(id)
		return err == nil
	})
	if len(ids) == 0 {
		return []models.Profile{}, nil
	}
	var profiles []models.Profile
	err := r.db.SelectContext(ctx, &profiles, `SELECT id, role, first_name, last_name, avatar_url FROM profiles WHERE id = ANY($1)`, pq.Array(ids))
	if isMalformedID(err) {
		return []models.Profile{}, nil
	}
	return profiles, err
}
