package delivery

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
)

// Server frame types.
const (
	FrameMessage  = "message"
	FramePresence = "presence"
	FrameRead     = "read"
	FrameAck      = "ack"
	FrameError    = "error"
)

type Frame struct {
	Type    string          `json:"type"`
	TempID  string          `json:"temp_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type ReadReceipt struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
	Count          int64  `json:"count"`
}

type subscription struct {
	client         *Client
	conversationID string
}

type watch struct {
	client *Client
	userID string
}

// Hub fans new messages, read receipts and presence flips out to connected
// clients. A single run loop owns all subscription state, which also gives
// every subscriber a consistent per-conversation delivery order. Delivery is
// at-least-once: a reconnecting client re-fetches history and de-duplicates
// by message id.
type Hub struct {
	register     chan *Client
	unregister   chan *Client
	subscribes   chan subscription
	unsubscribes chan subscription
	watches      chan watch
	unwatches    chan watch
	messages     chan *models.Message
	presences    chan models.Presence
	reads        chan ReadReceipt
	beats        chan *Client

	clients       map[*Client]struct{}
	byUser        map[string]map[*Client]struct{}
	convSubs      map[string]map[*Client]struct{}
	watchers      map[string]map[*Client]struct{}
	clientSubs    map[*Client]map[string]struct{}
	clientWatches map[*Client]map[string]struct{}

	staleAfter time.Duration
}

// NewHub builds a hub that garbage-collects subscribers whose last heartbeat
// is older than staleAfter.
func NewHub(staleAfter time.Duration) *Hub {
	return &Hub{
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribes:    make(chan subscription),
		unsubscribes:  make(chan subscription),
		watches:       make(chan watch),
		unwatches:     make(chan watch),
		messages:      make(chan *models.Message, 64),
		presences:     make(chan models.Presence, 64),
		reads:         make(chan ReadReceipt, 64),
		beats:         make(chan *Client, 64),
		clients:       make(map[*Client]struct{}),
		byUser:        make(map[string]map[*Client]struct{}),
		convSubs:      make(map[string]map[*Client]struct{}),
		watchers:      make(map[string]map[*Client]struct{}),
		clientSubs:    make(map[*Client]map[string]struct{}),
		clientWatches: make(map[*Client]map[string]struct{}),
		staleAfter:    staleAfter,
	}
}

func (h *Hub) Run(ctx context.Context) {
	janitor := time.NewTicker(h.staleAfter / 2)
	defer janitor.Stop()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.dropClient(client)
			}
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.dropClient(client)
		case sub := <-h.subscribes:
			h.addSubscription(sub)
		case sub := <-h.unsubscribes:
			h.removeSubscription(sub)
		case w := <-h.watches:
			h.addWatch(w)
		case w := <-h.unwatches:
			h.removeWatch(w)
		case client := <-h.beats:
			if _, ok := h.clients[client]; ok {
				client.lastBeat = time.Now()
			}
		case message := <-h.messages:
			h.deliverMessage(message)
		case snapshot := <-h.presences:
			h.deliverPresence(snapshot)
		case receipt := <-h.reads:
			h.deliverRead(receipt)
		case <-janitor.C:
			h.sweepStale()
		}
	}
}

func (h *Hub) Register(client *Client)   { h.register <- client }
func (h *Hub) Unregister(client *Client) { h.unregister <- client }
func (h *Hub) Beat(client *Client)       { h.beats <- client }

func (h *Hub) Subscribe(client *Client, conversationID string) {
	h.subscribes <- subscription{client: client, conversationID: conversationID}
}

func (h *Hub) Unsubscribe(client *Client, conversationID string) {
	h.unsubscribes <- subscription{client: client, conversationID: conversationID}
}

func (h *Hub) Watch(client *Client, userID string) {
	h.watches <- watch{client: client, userID: userID}
}

func (h *Hub) Unwatch(client *Client, userID string) {
	h.unwatches <- watch{client: client, userID: userID}
}

// PublishMessage fans a freshly committed message out to everyone subscribed
// to its conversation plus the receiver's connected clients (for inbox
// badges). Callers invoke it only after the database transaction commits.
func (h *Hub) PublishMessage(message *models.Message) {
	h.messages <- message
}

func (h *Hub) PublishPresence(snapshot models.Presence) {
	h.presences <- snapshot
}

func (h *Hub) PublishRead(receipt ReadReceipt) {
	h.reads <- receipt
}

func (h *Hub) addClient(client *Client) {
	h.clients[client] = struct{}{}
	client.lastBeat = time.Now()

	set, ok := h.byUser[client.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byUser[client.UserID] = set
	}
	set[client] = struct{}{}
}

// dropClient releases every piece of fan-out state the client holds. Safe to
// call for a client that was already dropped.
func (h *Hub) dropClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	if set, ok := h.byUser[client.UserID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byUser, client.UserID)
		}
	}

	for conversationID := range h.clientSubs[client] {
		h.removeFromRoom(h.convSubs, conversationID, client)
	}
	delete(h.clientSubs, client)

	for userID := range h.clientWatches[client] {
		h.removeFromRoom(h.watchers, userID, client)
	}
	delete(h.clientWatches, client)

	close(client.send)
}

func (h *Hub) addSubscription(sub subscription) {
	if _, ok := h.clients[sub.client]; !ok {
		return
	}
	addToRoom(h.convSubs, sub.conversationID, sub.client)
	if h.clientSubs[sub.client] == nil {
		h.clientSubs[sub.client] = make(map[string]struct{})
	}
	h.clientSubs[sub.client][sub.conversationID] = struct{}{}
}

func (h *Hub) removeSubscription(sub subscription) {
	h.removeFromRoom(h.convSubs, sub.conversationID, sub.client)
	if memberships, ok := h.clientSubs[sub.client]; ok {
		delete(memberships, sub.conversationID)
	}
}

func (h *Hub) addWatch(w watch) {
	if _, ok := h.clients[w.client]; !ok {
		return
	}
	addToRoom(h.watchers, w.userID, w.client)
	if h.clientWatches[w.client] == nil {
		h.clientWatches[w.client] = make(map[string]struct{})
	}
	h.clientWatches[w.client][w.userID] = struct{}{}
}

func (h *Hub) removeWatch(w watch) {
	h.removeFromRoom(h.watchers, w.userID, w.client)
	if watches, ok := h.clientWatches[w.client]; ok {
		delete(watches, w.userID)
	}
}

func (h *Hub) deliverMessage(message *models.Message) {
	payload, err := encodeFrame(FrameMessage, "", message)
	if err != nil {
		log.Printf("delivery hub: encode message: %v", err)
		return
	}

	targets := make(map[*Client]struct{})
	for client := range h.convSubs[message.ConversationID] {
		targets[client] = struct{}{}
	}
	for client := range h.byUser[message.ReceiverID] {
		targets[client] = struct{}{}
	}

	for client := range targets {
		h.push(client, payload)
	}
}

func (h *Hub) deliverPresence(snapshot models.Presence) {
	payload, err := encodeFrame(FramePresence, "", snapshot)
	if err != nil {
		log.Printf("delivery hub: encode presence: %v", err)
		return
	}
	for client := range h.watchers[snapshot.UserID] {
		h.push(client, payload)
	}
}

func (h *Hub) deliverRead(receipt ReadReceipt) {
	payload, err := encodeFrame(FrameRead, "", receipt)
	if err != nil {
		log.Printf("delivery hub: encode read receipt: %v", err)
		return
	}
	for client := range h.convSubs[receipt.ConversationID] {
		h.push(client, payload)
	}
}

// push enqueues without blocking the fan-out loop. A client that cannot keep
// up is dropped; it heals by reconnecting and re-fetching history.
func (h *Hub) push(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		h.dropClient(client)
	}
}

func (h *Hub) sweepStale() {
	deadline := time.Now().Add(-h.staleAfter)
	for client := range h.clients {
		if client.lastBeat.Before(deadline) {
			h.dropClient(client)
		}
	}
}

func (h *Hub) removeFromRoom(rooms map[string]map[*Client]struct{}, key string, client *Client) {
	room, ok := rooms[key]
	if !ok {
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(rooms, key)
	}
}

func addToRoom(rooms map[string]map[*Client]struct{}, key string, client *Client) {
	room, ok := rooms[key]
	if !ok {
		room = make(map[*Client]struct{})
		rooms[key] = room
	}
	room[client] = struct{}{}
}

func encodeFrame(frameType string, tempID string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: frameType, TempID: tempID, Payload: encoded})
}
