package repository

import (
	"context"
	"time"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
)

// CanonicalPair orders two user identifiers so an unordered pair always maps
// to the same (participant_a, participant_b) row.
func CanonicalPair(u1, u2 string) (string, string) {
	if u2 < u1 {
		return u2, u1
	}
	return u1, u2
}

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `
	id, participant_a, participant_b,
	last_message_text, last_message_sender, last_message_at,
	unread_count_a, unread_count_b, created_at, updated_at
`

// Queries joining other tables need the qualified list: id, created_at and
// updated_at exist on users too.
const conversationColumnsQualified = `
	c.id, c.participant_a, c.participant_b,
	c.last_message_text, c.last_message_sender, c.last_message_at,
	c.unread_count_a, c.unread_count_b, c.created_at, c.updated_at
`

// CreateOrGet resolves the single conversation for an unordered user pair,
// inserting it on first contact. The ON CONFLICT clause makes concurrent
// first-contact sends converge on one row instead of racing a check-then-insert.
func (r *ConversationRepository) CreateOrGet(
	ctx context.Context,
	u1 string,
	u2 string,
) (*models.Conversation, error) {
	a, b := CanonicalPair(u1, u2)

	query := `
		INSERT INTO conversations (participant_a, participant_b)
		VALUES ($1, $2)
		ON CONFLICT (participant_a, participant_b)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING ` + conversationColumns

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, a, b).Scan(
		&conversation.ID,
		&conversation.ParticipantA,
		&conversation.ParticipantB,
		&conversation.LastMessageText,
		&conversation.LastMessageSender,
		&conversation.LastMessageAt,
		&conversation.UnreadCountA,
		&conversation.UnreadCountB,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) GetByIDForParticipant(
	ctx context.Context,
	conversationID string,
	participantID string,
) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1 AND (participant_a = $2 OR participant_b = $2)
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, conversationID, participantID).Scan(
		&conversation.ID,
		&conversation.ParticipantA,
		&conversation.ParticipantB,
		&conversation.LastMessageText,
		&conversation.LastMessageSender,
		&conversation.LastMessageAt,
		&conversation.UnreadCountA,
		&conversation.UnreadCountB,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

// ListForParticipant returns conversation summaries for the user's inbox,
// most recent activity first. Presence is attached by the service layer.
func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID string,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT ` + conversationColumnsQualified + `,
			u.id, u.handle, u.display_name, u.zodiac_sign, u.created_at, u.updated_at
		FROM conversations c
		JOIN users u ON u.id = CASE
			WHEN c.participant_a = $1 THEN c.participant_b
			ELSE c.participant_a
		END
		WHERE c.participant_a = $1 OR c.participant_b = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var other models.User

		if err := rows.Scan(
			&summary.ID,
			&summary.ParticipantA,
			&summary.ParticipantB,
			&summary.LastMessageText,
			&summary.LastMessageSender,
			&summary.LastMessageAt,
			&summary.UnreadCountA,
			&summary.UnreadCountB,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&other.ID,
			&other.Handle,
			&other.DisplayName,
			&other.ZodiacSign,
			&other.CreatedAt,
			&other.UpdatedAt,
		); err != nil {
			return nil, err
		}

		summary.OtherUser = &other
		summary.UnreadCount = summary.UnreadFor(participantID)
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// RecordMessage folds a freshly appended message into the conversation row:
// last-message summary fields plus an atomic increment of the receiver's
// unread counter. The increment happens SQL-side so concurrent senders on the
// same conversation never lose updates.
func (r *ConversationRepository) RecordMessage(
	ctx context.Context,
	conversationID string,
	senderID string,
	receiverID string,
	text string,
	sentAt time.Time,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_text = $2,
		    last_message_sender = $3,
		    last_message_at = $4,
		    unread_count_a = unread_count_a + CASE WHEN participant_a = $5 THEN 1 ELSE 0 END,
		    unread_count_b = unread_count_b + CASE WHEN participant_b = $5 THEN 1 ELSE 0 END,
		    updated_at = NOW()
		WHERE id = $1
	`, conversationID, text, senderID, sentAt, receiverID)
	return err
}

// DecrementUnread lowers the reader's unread counter by the number of
// message rows their read-acknowledgement actually flipped. Decrementing
// (rather than zeroing) keeps the counter equal to the live unread-row count
// when a send commits between the flip and this update: the new message's
// increment survives.
func (r *ConversationRepository) DecrementUnread(
	ctx context.Context,
	conversationID string,
	readerID string,
	by int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET unread_count_a = CASE WHEN participant_a = $2 THEN GREATEST(unread_count_a - $3, 0) ELSE unread_count_a END,
		    unread_count_b = CASE WHEN participant_b = $2 THEN GREATEST(unread_count_b - $3, 0) ELSE unread_count_b END,
		    updated_at = NOW()
		WHERE id = $1
	`, conversationID, readerID, by)
	return err
}
