package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"consult-chat/internal/models"
)

var ErrNotParticipant = errors.New("user is not a participant")

const participantUserFK = "participants_user_id_fkey"

// ParticipantRepository manages conversation membership.
type ParticipantRepository interface {
	AddParticipant(ctx context.Context, conversationID string, userID string) error
	IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]models.Participant, error)
	ListForConversations(ctx context.Context, conversationIDs []string) ([]models.Participant, error)
	MarkRead(ctx context.Context, conversationID string, userID string) (time.Time, error)
}

// ParticipantRepo is a sqlx implementation of ParticipantRepository.
type ParticipantRepo struct {
	db *sqlx.DB
}

// NewParticipantRepo constructs a ParticipantRepo.
func NewParticipantRepo(db *sqlx.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

// AddParticipant enrols a user; enrolling twice is a no-op.
func (r *ParticipantRepo) AddParticipant(ctx context.Context, conversationID string, userID string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2)
        ON CONFLICT (conversation_id, user_id) DO NOTHING`, conversationID, userID)
	if isMalformedID(err) {
		return ErrConversationNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgForeignKeyViolation {
		if pqErr.Constraint == participantUserFK {
			return ErrProfileNotFound
		}
		return ErrConversationNotFound
	}
	return err
}

// IsParticipant checks membership.
func (r *ParticipantRepo) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM participants WHERE conversation_id=$1 AND user_id=$2)`, conversationID, userID)
	if isMalformedID(err) {
		return false, nil
	}
	return exists, err
}

// ListForUser returns every membership row of the user.
func (r *ParticipantRepo) ListForUser(ctx context.Context, userID string) ([]models.Participant, error) {
	var rows []models.Participant
	err := r.db.SelectContext(ctx, &rows, `SELECT conversation_id, user_id, joined_at, last_read_at FROM participants WHERE user_id=$1`, userID)
	if isMalformedID(err) {
		return []models.Participant{}, nil
	}
	return rows, err
}

// ListForConversations returns the members of several conversations in join order.
func (r *ParticipantRepo) ListForConversations(ctx context.Context, conversationIDs []string) ([]models.Participant, error) {
	if len(conversationIDs) == 0 {
		return []models.Participant{}, nil
	}
	var rows []models.Participant
	err := r.db.SelectContext(ctx, &rows, `SELECT conversation_id, user_id, joined_at, last_read_at FROM participants
        WHERE conversation_id = ANY($1)
        ORDER BY conversation_id, joined_at ASC`, pq.Array(conversationIDs))
	return rows, err
}

// MarkRead moves the user's read cursor to the database clock and records the
// user in read_by of the messages they received up to that instant.
func (r *ParticipantRepo) MarkRead(ctx context.Context, conversationID string, userID string) (readAt time.Time, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return time.Time{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	err = tx.GetContext(ctx, &readAt, `UPDATE participants SET last_read_at=NOW()
        WHERE conversation_id=$1 AND user_id=$2
        RETURNING last_read_at`, conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
		err = ErrNotParticipant
	}
	if err != nil {
		return time.Time{}, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE messages SET read_by = array_append(read_by, $2::text)
        WHERE conversation_id=$1 AND sender_id::text<>$2::text AND created_at<=$3 AND NOT ($2::text = ANY(read_by))`, conversationID, userID, readAt); err != nil {
		return time.Time{}, err
	}
	if err = tx.Commit(); err != nil {
		return time.Time{}, err
	}
	return readAt, nil
}
