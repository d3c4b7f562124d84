package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"consult-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageConversationFK = "messages_conversation_id_fkey"

const messageWithSenderSelect = `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.read_by,
        p.id IS NOT NULL AS sender_known,
        p.first_name AS sender_first_name,
        p.last_name AS sender_last_name,
        p.avatar_url AS sender_avatar_url
        FROM messages m
        LEFT JOIN profiles p ON p.id = m.sender_id`

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID string, senderID string, content string) (models.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	LatestMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error)
	CountUnread(ctx context.Context, userID string, conversationIDs []string) (map[string]int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

type messageRow struct {
	models.Message
	SenderKnown     bool           `db:"sender_known"`
	SenderFirstName sql.NullString `db:"sender_first_name"`
	SenderLastName  sql.NullString `db:"sender_last_name"`
	SenderAvatarURL sql.NullString `db:"sender_avatar_url"`
}

func (row messageRow) toMessage() models.Message {
	msg := row.Message
	if row.SenderKnown {
		msg.Sender = &models.Sender{
			ID:        msg.SenderID,
			FirstName: row.SenderFirstName.String,
			LastName:  row.SenderLastName.String,
		}
		if row.SenderAvatarURL.Valid {
			avatar := row.SenderAvatarURL.String
			msg.Sender.AvatarURL = &avatar
		}
	}
	return msg
}

// CreateMessage stores a message and advances the conversation's last activity in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID string, senderID string, content string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	if err = tx.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, content) VALUES ($1, $2, $3)
        RETURNING id, conversation_id, sender_id, content, created_at, read_by`, conversationID, senderID, content).StructScan(&msg); err != nil {
		return models.Message{}, mapMessageWriteError(err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE conversations SET last_activity_at=$2
        WHERE id=$1 AND (last_activity_at IS NULL OR last_activity_at < $2)`, msg.ConversationID, msg.CreatedAt); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func mapMessageWriteError(err error) error {
	if isMalformedID(err) {
		return ErrConversationNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgForeignKeyViolation {
		if pqErr.Constraint == messageConversationFK {
			return ErrConversationNotFound
		}
		return ErrProfileNotFound
	}
	return err
}

// ListMessages returns one page of a conversation newest-first, with sender identity joined in.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, messageWithSenderSelect+`
        WHERE m.conversation_id=$1
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $2 OFFSET $3`, conversationID, limit, offset)
	if err != nil {
		if isMalformedID(err) {
			return []models.Message{}, nil
		}
		return nil, err
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toMessage())
	}
	return msgs, nil
}

// GetMessage retrieves a single message with its sender.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, messageWithSenderSelect+` WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) || isMalformedID(err) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toMessage(), nil
}

// LatestMessages returns the newest message of each conversation that has one.
func (r *MessageRepo) LatestMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error) {
	latest := make(map[string]models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}
	var rows []messageRow
	query := `SELECT DISTINCT ON (m.conversation_id) m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.read_by,
        p.id IS NOT NULL AS sender_known,
        p.first_name AS sender_first_name,
        p.last_name AS sender_last_name,
        p.avatar_url AS sender_avatar_url
        FROM messages m
        LEFT JOIN profiles p ON p.id = m.sender_id
        WHERE m.conversation_id = ANY($1)
        ORDER BY m.conversation_id, m.created_at DESC, m.id DESC`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(conversationIDs)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		latest[row.ConversationID] = row.toMessage()
	}
	return latest, nil
}

// CountUnread counts messages from others newer than the user's read cursor, per conversation.
func (r *MessageRepo) CountUnread(ctx context.Context, userID string, conversationIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		ConversationID string `db:"conversation_id"`
		Unread         int    `db:"unread"`
	}
	query := `SELECT p.conversation_id, COUNT(m.id) AS unread
        FROM participants p
        INNER JOIN messages m ON m.conversation_id = p.conversation_id
            AND m.sender_id <> p.user_id
            AND (p.last_read_at IS NULL OR m.created_at > p.last_read_at)
        WHERE p.user_id=$1 AND p.conversation_id = ANY($2)
        GROUP BY p.conversation_id`
	if err := r.db.SelectContext(ctx, &rows, query, userID, pq.Array(conversationIDs)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ConversationID] = row.Unread
	}
	return counts, nil
}
