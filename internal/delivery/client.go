package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	websocket "github.com/gofiber/contrib/websocket"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// ChatPort is the slice of the chat service the socket layer needs.
type ChatPort interface {
	Authorize(ctx context.Context, actorID string, conversationID string) error
	SendMessage(ctx context.Context, senderID string, conversationID string, content string, imageURL string) (*services.ChatDelivery, error)
	MarkRead(ctx context.Context, readerID string, conversationID string) (int64, error)
}

// PresencePort renews the connected user's heartbeat.
type PresencePort interface {
	Heartbeat(ctx context.Context, userID string) error
}

// Client is one websocket session. Outbound frames go through a buffered
// channel owned by the hub's run loop; lastBeat is only touched there.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	UserID string

	send     chan []byte
	lastBeat time.Time
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		UserID: userID,
		send:   make(chan []byte, 64),
	}
}

type clientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Content        string `json:"content,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	TempID         string `json:"temp_id,omitempty"`
}

// ReadPump consumes client frames until the socket closes. Every frame also
// counts as liveness for the hub's stale-subscriber sweep.
func (c *Client) ReadPump(chat ChatPort, presence PresencePort) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.writeError("", "invalid frame")
			continue
		}

		c.hub.Beat(c)
		ctx := context.Background()

		switch frame.Type {
		case "heartbeat":
			if err := presence.Heartbeat(ctx, c.UserID); err != nil {
				c.writeError("", "heartbeat failed")
			}
		case "subscribe":
			if err := chat.Authorize(ctx, c.UserID, frame.ConversationID); err != nil {
				c.writeError("", errorCode(err))
				continue
			}
			c.hub.Subscribe(c, frame.ConversationID)
		case "unsubscribe":
			c.hub.Unsubscribe(c, frame.ConversationID)
		case "watch_presence":
			c.hub.Watch(c, frame.UserID)
		case "unwatch_presence":
			c.hub.Unwatch(c, frame.UserID)
		case "send":
			c.handleSend(ctx, chat, frame)
		case "read":
			c.handleRead(ctx, chat, frame)
		default:
			c.writeError(frame.TempID, "unsupported frame type")
		}
	}
}

// handleSend runs the append and answers the sender directly with an ack
// carrying its temp id, so the optimistic placeholder can be reconciled even
// if the fan-out copy arrives first or is lost.
func (c *Client) handleSend(ctx context.Context, chat ChatPort, frame clientFrame) {
	delivery, err := chat.SendMessage(ctx, c.UserID, frame.ConversationID, frame.Content, frame.ImageURL)
	if err != nil {
		c.writeError(frame.TempID, errorCode(err))
		return
	}

	ack, err := encodeFrame(FrameAck, frame.TempID, delivery.Message)
	if err == nil {
		c.enqueue(ack)
	}
	c.hub.PublishMessage(delivery.Message)
}

// handleRead acknowledges the conversation and broadcasts a receipt. A read
// that flips nothing is a no-op, so no receipt goes out for it.
func (c *Client) handleRead(ctx context.Context, chat ChatPort, frame clientFrame) {
	flipped, err := chat.MarkRead(ctx, c.UserID, frame.ConversationID)
	if err != nil {
		c.writeError("", errorCode(err))
		return
	}
	if flipped == 0 {
		return
	}
	c.hub.PublishRead(ReadReceipt{
		ConversationID: frame.ConversationID,
		ReaderID:       c.UserID,
		Count:          flipped,
	})
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeError(tempID string, code string) {
	payload, err := json.Marshal(Frame{Type: FrameError, TempID: tempID, Error: code})
	if err != nil {
		return
	}
	c.enqueue(payload)
}

// enqueue is the client's own non-blocking write path; a full buffer asks the
// hub to drop the session.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.hub.Unregister(c)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidParticipants):
		return "invalid_participants"
	case errors.Is(err, services.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, services.ErrConversationNotFound):
		return "conversation_not_found"
	case errors.Is(err, services.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, services.ErrInvalidInput):
		return "invalid_input"
	default:
		return "transient_io"
	}
}
