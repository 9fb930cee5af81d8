package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/repository"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type userReader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByHandle(ctx context.Context, handle string) (*models.User, error)
}

type matchGate interface {
	CanMessage(ctx context.Context, u1 string, u2 string) (bool, error)
}

type QuotaDecision struct {
	Allowed      bool `json:"allowed"`
	ResetInHours int  `json:"reset_in_hours"`
}

type quotaChecker interface {
	CheckAndConsume(ctx context.Context, userID string, action string) (QuotaDecision, error)
}

type presenceReader interface {
	GetMany(ctx context.Context, userIDs []string) (map[string]models.Presence, error)
}

type ChatService struct {
	db               txBeginner
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	userRepo         userReader
	gate             matchGate
	quota            quotaChecker
	presence         presenceReader
}

// ChatDelivery is the result of a successful send: the persisted message plus
// the routing facts the push layer needs.
type ChatDelivery struct {
	Conversation *models.Conversation
	Message      *models.Message
	ReceiverID   string
}

func NewChatService(
	db txBeginner,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	userRepo userReader,
	gate matchGate,
	quota quotaChecker,
	presence presenceReader,
) *ChatService {
	return &ChatService{
		db:               db,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		gate:             gate,
		quota:            quota,
		presence:         presence,
	}
}

// StartConversation resolves (or lazily creates) the single conversation
// between the actor and another user, identified by id or by handle.
func (s *ChatService) StartConversation(
	ctx context.Context,
	actorID string,
	otherID string,
	otherHandle string,
) (*models.Conversation, error) {
	var other *models.User
	var err error

	switch {
	case otherID != "":
		other, err = s.userRepo.GetByID(ctx, otherID)
	case otherHandle != "":
		other, err = s.userRepo.GetByHandle(ctx, otherHandle)
	default:
		return nil, ErrInvalidInput
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if other.ID == actorID {
		return nil, ErrInvalidParticipants
	}

	allowed, err := s.gate.CanMessage(ctx, actorID, other.ID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrNotAuthorized
	}

	return s.conversationRepo.CreateOrGet(ctx, actorID, other.ID)
}

// Authorize reports whether the actor participates in the conversation.
func (s *ChatService) Authorize(
	ctx context.Context,
	actorID string,
	conversationID string,
) error {
	if _, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// ListConversations returns the actor's inbox, newest activity first, with
// the other participant's presence snapshot attached. Presence may lag by up
// to one heartbeat window.
func (s *ChatService) ListConversations(
	ctx context.Context,
	actorID string,
) ([]models.ConversationSummary, error) {
	summaries, err := s.conversationRepo.ListForParticipant(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if s.presence == nil || len(summaries) == 0 {
		return summaries, nil
	}

	otherIDs := make([]string, 0, len(summaries))
	for i := range summaries {
		otherIDs = append(otherIDs, summaries[i].OtherParticipant(actorID))
	}

	snapshots, err := s.presence.GetMany(ctx, otherIDs)
	if err != nil {
		// Inbox rendering must not fail on a presence hiccup.
		return summaries, nil
	}

	for i := range summaries {
		if snap, ok := snapshots[summaries[i].OtherParticipant(actorID)]; ok {
			copied := snap
			summaries[i].Presence = &copied
		}
	}

	return summaries, nil
}

// History pages messages in display order. The returned cursor resumes after
// the last message of the page; it is empty when the page was short.
func (s *ChatService) History(
	ctx context.Context,
	actorID string,
	conversationID string,
	cursor string,
	limit int,
) (*models.MessagePage, error) {
	if limit <= 0 {
		return nil, ErrInvalidInput
	}

	if _, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, actorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	afterAt, afterSeq, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.ListByConversation(ctx, conversationID, afterAt, afterSeq, limit)
	if err != nil {
		return nil, err
	}

	page := &models.MessagePage{Messages: messages}
	if len(messages) == limit {
		last := messages[len(messages)-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.Seq)
	}

	return page, nil
}

// SendMessage appends to the conversation's log. The message insert, the
// last-message summary update and the receiver's unread increment commit as
// one transaction so the unread counter always equals the number of unread
// rows, however sends interleave.
func (s *ChatService) SendMessage(
	ctx context.Context,
	senderID string,
	conversationID string,
	content string,
	imageURL string,
) (*ChatDelivery, error) {
	content = strings.TrimSpace(content)
	imageURL = strings.TrimSpace(imageURL)
	if content == "" && imageURL == "" {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, senderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	receiverID := conversation.OtherParticipant(senderID)

	if s.quota != nil {
		decision, err := s.quota.CheckAndConsume(ctx, senderID, "message")
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			return nil, &RateLimitedError{ResetInHours: decision.ResetInHours}
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	message, err := txMessageRepo.Create(ctx, conversationID, senderID, receiverID, content, imageURL)
	if err != nil {
		return nil, err
	}

	if err := txConversationRepo.RecordMessage(
		ctx,
		conversationID,
		senderID,
		receiverID,
		previewText(message),
		message.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	applyLastMessage(conversation, message)

	return &ChatDelivery{
		Conversation: conversation,
		Message:      message,
		ReceiverID:   receiverID,
	}, nil
}

// MarkRead acknowledges everything addressed to the reader in one
// transaction: message rows flip to read and the reader's counter drops by
// the same number. The counter is decremented, not zeroed, so a send that
// commits between the two statements keeps its increment. Calling MarkRead
// again with nothing unread is a no-op.
func (s *ChatService) MarkRead(
	ctx context.Context,
	readerID string,
	conversationID string,
) (int64, error) {
	if _, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, readerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrConversationNotFound
		}
		return 0, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	flipped, err := txMessageRepo.MarkConversationRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}

	if err := txConversationRepo.DecrementUnread(ctx, conversationID, readerID, flipped); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return flipped, nil
}

func previewText(message *models.Message) string {
	if message.Content != "" {
		return message.Content
	}
	return "[image]"
}

func applyLastMessage(conversation *models.Conversation, message *models.Message) {
	text := previewText(message)
	conversation.LastMessageText = &text
	conversation.LastMessageSender = &message.SenderID
	at := message.CreatedAt
	conversation.LastMessageAt = &at
	if conversation.ParticipantA == message.ReceiverID {
		conversation.UnreadCountA++
	} else {
		conversation.UnreadCountB++
	}
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
