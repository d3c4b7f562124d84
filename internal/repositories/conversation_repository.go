package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"consult-chat/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

const conversationColumns = `id, kind, name, direct_key, created_at, last_activity_at`

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	FindDirect(ctx context.Context, userA, userB string) (models.Conversation, error)
	FindCohort(ctx context.Context, kind models.ConversationKind) (models.Conversation, error)
	CreateWithParticipants(ctx context.Context, conv models.Conversation, memberIDs []string) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	GetConversations(ctx context.Context, conversationIDs []string) ([]models.Conversation, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// FindDirect returns the oldest direct conversation that has both users as participants.
func (r *ConversationRepo) FindDirect(ctx context.Context, userA, userB string) (models.Conversation, error) {
	query := `SELECT c.id, c.kind, c.name, c.direct_key, c.created_at, c.last_activity_at
        FROM conversations c
        INNER JOIN participants pa ON pa.conversation_id = c.id AND pa.user_id = $1
        INNER JOIN participants pb ON pb.conversation_id = c.id AND pb.user_id = $2
        WHERE c.kind = 'direct'
        ORDER BY c.created_at ASC, c.id ASC
        LIMIT 1`
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, query, userA, userB)
	if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// FindCohort returns the standing channel for a cohort kind.
func (r *ConversationRepo) FindCohort(ctx context.Context, kind models.ConversationKind) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE kind=$1 ORDER BY created_at ASC, id ASC LIMIT 1`, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// CreateWithParticipants inserts a conversation and its initial members atomically.
// A collision with the direct or cohort uniqueness key yields ErrDuplicate.
func (r *ConversationRepo) CreateWithParticipants(ctx context.Context, conv models.Conversation, memberIDs []string) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var created models.Conversation
	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (kind, name, direct_key) VALUES ($1, $2, $3) RETURNING `+conversationColumns,
		conv.Kind, conv.Name, conv.DirectKey).StructScan(&created); err != nil {
		if isUniqueViolation(err) {
			return models.Conversation{}, ErrDuplicate
		}
		return models.Conversation{}, err
	}

	for _, id := range memberIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2)
            ON CONFLICT (conversation_id, user_id) DO NOTHING`, created.ID, id); err != nil {
			if isForeignKeyViolation(err) {
				return models.Conversation{}, ErrProfileNotFound
			}
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return created, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// GetConversations bulk-fetches conversations, most recently active first.
func (r *ConversationRepo) GetConversations(ctx context.Context, conversationIDs []string) ([]models.Conversation, error) {
	if len(conversationIDs) == 0 {
		return []models.Conversation{}, nil
	}
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, `SELECT `+conversationColumns+` FROM conversations
        WHERE id = ANY($1)
        ORDER BY last_activity_at DESC NULLS LAST, created_at DESC`, pq.Array(conversationIDs))
	return convs, err
}
