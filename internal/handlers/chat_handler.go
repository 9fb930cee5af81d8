package handlers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/delivery"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
	"github.com/juanrobin09-stack/Astraloves-sub001/internal/services"
	"github.com/juanrobin09-stack/Astraloves-sub001/pkg/utils"
)

type chatApplicationService interface {
	ListConversations(ctx context.Context, actorID string) ([]models.ConversationSummary, error)
	StartConversation(ctx context.Context, actorID string, otherID string, otherHandle string) (*models.Conversation, error)
	History(ctx context.Context, actorID string, conversationID string, cursor string, limit int) (*models.MessagePage, error)
	SendMessage(ctx context.Context, senderID string, conversationID string, content string, imageURL string) (*services.ChatDelivery, error)
	MarkRead(ctx context.Context, readerID string, conversationID string) (int64, error)
	Authorize(ctx context.Context, actorID string, conversationID string) error
}

type heartbeater interface {
	Heartbeat(ctx context.Context, userID string) error
}

type ChatHandler struct {
	service   chatApplicationService
	hub       *delivery.Hub
	presence  heartbeater
	storage   services.StorageService
	jwtSecret string
}

func NewChatHandler(
	service chatApplicationService,
	hub *delivery.Hub,
	presence heartbeater,
	storage services.StorageService,
	jwtSecret string,
) *ChatHandler {
	return &ChatHandler{
		service:   service,
		hub:       hub,
		presence:  presence,
		storage:   storage,
		jwtSecret: jwtSecret,
	}
}

type startConversationRequest struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
}

type sendMessageRequest struct {
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	conversations, err := h.service.ListConversations(c.Context(), userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

func (h *ChatHandler) StartConversation(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	var req startConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	conversation, err := h.service.StartConversation(c.Context(), userID, req.UserID, req.Handle)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	conversationID := c.Params("id")
	cursor := c.Query("cursor")
	limit := parseLimit(c.Query("limit"))

	page, err := h.service.History(c.Context(), userID, conversationID, cursor, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(page)
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := h.service.SendMessage(c.Context(), userID, c.Params("id"), req.Content, req.ImageURL)
	if err != nil {
		return mapChatError(c, err)
	}

	h.hub.PublishMessage(result.Message)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": result.Message})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	conversationID := c.Params("id")
	flipped, err := h.service.MarkRead(c.Context(), userID, conversationID)
	if err != nil {
		return mapChatError(c, err)
	}

	if flipped > 0 {
		h.hub.PublishRead(delivery.ReadReceipt{
			ConversationID: conversationID,
			ReaderID:       userID,
			Count:          flipped,
		})
	}

	return c.JSON(fiber.Map{"updated": flipped})
}

// UploadImage stores a chat image with the media service and returns the
// public URL the client then attaches to a send.
func (h *ChatHandler) UploadImage(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	if h.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Image uploads are not configured"})
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing image file"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unreadable image file"})
	}
	defer file.Close()

	filename := fmt.Sprintf("%d%s", time.Now().UnixNano(), filepath.Ext(fileHeader.Filename))
	url, err := h.storage.UploadFile(c.Context(), file, filename, "chat/"+userID)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Image upload failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"image_url": url})
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	client := delivery.NewClient(h.hub, conn, userID)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(h.service, h.presence)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func requireUserID(c *fiber.Ctx) (string, error) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return "", c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	return userID, nil
}

func mapChatError(c *fiber.Ctx, err error) error {
	var rateLimited *services.RateLimitedError
	if errors.As(err, &rateLimited) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":          "Message quota exceeded",
			"reset_in_hours": rateLimited.ResetInHours,
		})
	}

	switch {
	case errors.Is(err, services.ErrInvalidParticipants):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot message yourself"})
	case errors.Is(err, services.ErrNotAuthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Messaging is not available for this pair"})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	case errors.Is(err, services.ErrConversationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	case errors.Is(err, services.ErrRateLimited):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Message quota exceeded"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
