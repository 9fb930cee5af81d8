package repository

import (
	"context"
	"time"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `
	id, seq, conversation_id, sender_id, receiver_id,
	content, image_url, is_read, read_at, created_at
`

// Create appends a message with a server-assigned timestamp and sequence
// number. Display order within a conversation is (created_at, seq).
func (r *MessageRepository) Create(
	ctx context.Context,
	conversationID string,
	senderID string,
	receiverID string,
	content string,
	imageURL string,
) (*models.Message, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, content, image_url, is_read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING ` + messageColumns

	var message models.Message
	err := r.db.QueryRow(ctx, query, conversationID, senderID, receiverID, content, imageURL).Scan(
		&message.ID,
		&message.Seq,
		&message.ConversationID,
		&message.SenderID,
		&message.ReceiverID,
		&message.Content,
		&message.ImageURL,
		&message.IsRead,
		&message.ReadAt,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// ListByConversation pages history in display order using a keyset cursor.
// afterAt/afterSeq identify the last message of the previous page; zero
// values start from the beginning.
func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID string,
	afterAt time.Time,
	afterSeq int64,
	limit int,
) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		  AND (created_at, seq) > ($2::timestamptz, $3::bigint)
		ORDER BY created_at ASC, seq ASC
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, conversationID, afterAt, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		if err := rows.Scan(
			&message.ID,
			&message.Seq,
			&message.ConversationID,
			&message.SenderID,
			&message.ReceiverID,
			&message.Content,
			&message.ImageURL,
			&message.IsRead,
			&message.ReadAt,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// MarkConversationRead flips every unread message addressed to readerID and
// reports how many rows changed. A second call with no new messages touches
// zero rows.
func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	conversationID string,
	readerID string,
) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = NOW()
		WHERE conversation_id = $1
		  AND receiver_id = $2
		  AND is_read = FALSE
	`, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUnread reports the live unread-row count for a participant. Used by
// consistency checks; the conversation counter must always agree with it.
func (r *MessageRepository) CountUnread(
	ctx context.Context,
	conversationID string,
	participantID string,
) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1
		  AND receiver_id = $2
		  AND is_read = FALSE
	`, conversationID, participantID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
