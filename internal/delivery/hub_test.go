package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
)

func startHub(t *testing.T, staleAfter time.Duration) *Hub {
	t.Helper()
	hub := NewHub(staleAfter)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func testMessage(id, conversationID, senderID, receiverID string) *models.Message {
	return &models.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        "hello",
		CreatedAt:      time.Now().UTC(),
	}
}

func receiveFrame(t *testing.T, client *Client) Frame {
	t.Helper()
	select {
	case payload, ok := <-client.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func expectNothing(t *testing.T, client *Client) {
	t.Helper()
	select {
	case payload, ok := <-client.send:
		if ok {
			t.Fatalf("unexpected frame: %s", payload)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMessageFanOut(t *testing.T) {
	hub := startHub(t, time.Minute)

	aliceTab := NewClient(hub, nil, "alice")
	aliceIdle := NewClient(hub, nil, "alice")
	bobOpen := NewClient(hub, nil, "bob")
	bobInbox := NewClient(hub, nil, "bob")
	for _, c := range []*Client{aliceTab, aliceIdle, bobOpen, bobInbox} {
		hub.Register(c)
	}
	hub.Subscribe(aliceTab, "c1")
	hub.Subscribe(bobOpen, "c1")

	hub.PublishMessage(testMessage("m1", "c1", "alice", "bob"))

	for _, c := range []*Client{aliceTab, bobOpen, bobInbox} {
		frame := receiveFrame(t, c)
		if frame.Type != FrameMessage {
			t.Fatalf("expected message frame, got %q", frame.Type)
		}
		var message models.Message
		if err := json.Unmarshal(frame.Payload, &message); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if message.ID != "m1" {
			t.Fatalf("expected m1, got %q", message.ID)
		}
	}

	// Subscribed AND receiver still means exactly one copy.
	expectNothing(t, bobOpen)
	// Sender's other tab is neither subscribed nor the receiver.
	expectNothing(t, aliceIdle)
}

func TestPerConversationDeliveryOrder(t *testing.T) {
	hub := startHub(t, time.Minute)

	bob := NewClient(hub, nil, "bob")
	hub.Register(bob)
	hub.Subscribe(bob, "c1")

	for i := 0; i < 10; i++ {
		hub.PublishMessage(testMessage(fmt.Sprintf("m%d", i), "c1", "alice", "bob"))
	}

	for i := 0; i < 10; i++ {
		frame := receiveFrame(t, bob)
		var message models.Message
		if err := json.Unmarshal(frame.Payload, &message); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if want := fmt.Sprintf("m%d", i); message.ID != want {
			t.Fatalf("out of order: expected %s, got %s", want, message.ID)
		}
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := startHub(t, time.Minute)

	bob := NewClient(hub, nil, "bob")
	hub.Register(bob)
	hub.Subscribe(bob, "c1")
	hub.Unsubscribe(bob, "c1")
	hub.Unsubscribe(bob, "c1")

	hub.PublishMessage(testMessage("m1", "c1", "alice", "carol"))
	expectNothing(t, bob)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub := startHub(t, time.Minute)

	bob := NewClient(hub, nil, "bob")
	hub.Register(bob)
	hub.Subscribe(bob, "c1")

	// One more than the send buffer; nothing drains it.
	for i := 0; i <= cap(bob.send); i++ {
		hub.PublishMessage(testMessage(fmt.Sprintf("m%d", i), "c1", "alice", "bob"))
	}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-bob.send:
			if !ok {
				return // dropped, channel closed
			}
		case <-deadline:
			t.Fatal("slow client was never dropped")
		}
	}
}

func TestJanitorDropsStaleClients(t *testing.T) {
	hub := startHub(t, 40*time.Millisecond)

	bob := NewClient(hub, nil, "bob")
	hub.Register(bob)

	select {
	case _, ok := <-bob.send:
		if ok {
			t.Fatal("unexpected frame before drop")
		}
	case <-time.After(time.Second):
		t.Fatal("stale client was never garbage-collected")
	}
}

func TestHeartbeatKeepsClientAlive(t *testing.T) {
	hub := startHub(t, 80*time.Millisecond)

	bob := NewClient(hub, nil, "bob")
	hub.Register(bob)
	hub.Subscribe(bob, "c1")

	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		hub.Beat(bob)
	}

	hub.PublishMessage(testMessage("m1", "c1", "alice", "bob"))
	frame := receiveFrame(t, bob)
	if frame.Type != FrameMessage {
		t.Fatalf("expected message frame, got %q", frame.Type)
	}
}

func TestPresenceReachesWatchersOnly(t *testing.T) {
	hub := startHub(t, time.Minute)

	watcher := NewClient(hub, nil, "bob")
	other := NewClient(hub, nil, "carol")
	hub.Register(watcher)
	hub.Register(other)
	hub.Watch(watcher, "alice")

	hub.PublishPresence(models.Presence{UserID: "alice", IsOnline: true, LastSeenAt: time.Now().UTC()})

	frame := receiveFrame(t, watcher)
	if frame.Type != FramePresence {
		t.Fatalf("expected presence frame, got %q", frame.Type)
	}
	var snapshot models.Presence
	if err := json.Unmarshal(frame.Payload, &snapshot); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if snapshot.UserID != "alice" || !snapshot.IsOnline {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	expectNothing(t, other)
}

func TestReadReceiptReachesConversationSubscribers(t *testing.T) {
	hub := startHub(t, time.Minute)

	alice := NewClient(hub, nil, "alice")
	hub.Register(alice)
	hub.Subscribe(alice, "c1")

	hub.PublishRead(ReadReceipt{ConversationID: "c1", ReaderID: "bob", Count: 3})

	frame := receiveFrame(t, alice)
	if frame.Type != FrameRead {
		t.Fatalf("expected read frame, got %q", frame.Type)
	}
	var receipt ReadReceipt
	if err := json.Unmarshal(frame.Payload, &receipt); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if receipt.ReaderID != "bob" || receipt.Count != 3 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}
