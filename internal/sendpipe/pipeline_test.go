package sendpipe

import (
	"errors"
	"testing"
	"time"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
)

const (
	convID = "c1"
	selfID = "alice"
	peerID = "bob"
)

func serverMessage(id, sender, content string) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       sender,
		ReceiverID:     peerID,
		Content:        content,
		CreatedAt:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSubmitMaterializesPlaceholder(t *testing.T) {
	p := New(convID, selfID)
	p.SetDraft("hi")

	entry, err := p.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if entry.TempID == "" || !entry.Pending {
		t.Fatalf("expected pending placeholder, got %+v", entry)
	}
	if p.Draft() != "" {
		t.Fatalf("draft should be cleared, got %q", p.Draft())
	}
	if p.State() != StateSending {
		t.Fatalf("expected Sending, got %s", p.State())
	}

	timeline := p.Timeline()
	if len(timeline) != 1 || timeline[0].Message.Content != "hi" {
		t.Fatalf("unexpected timeline: %+v", timeline)
	}
}

func TestSubmitEmptyDraftFails(t *testing.T) {
	p := New(convID, selfID)
	if _, err := p.Submit(); !errors.Is(err, ErrEmptyDraft) {
		t.Fatalf("expected ErrEmptyDraft, got %v", err)
	}
}

func TestAckReplacesPlaceholderInPlace(t *testing.T) {
	p := New(convID, selfID)
	p.LoadHistory([]models.Message{serverMessage("m1", peerID, "hey")})
	p.SetDraft("hi")
	entry, _ := p.Submit()

	confirmed := serverMessage("m2", selfID, "hi")
	if err := p.Ack(entry.TempID, confirmed); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	timeline := p.Timeline()
	if len(timeline) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(timeline))
	}
	if timeline[1].Pending || timeline[1].Message.ID != "m2" {
		t.Fatalf("placeholder not replaced: %+v", timeline[1])
	}
	if p.State() != StateConfirmed {
		t.Fatalf("expected Confirmed, got %s", p.State())
	}
	if p.PendingCount() != 0 {
		t.Fatalf("expected no pending sends, got %d", p.PendingCount())
	}
}

func TestFailRollsBackAndRestoresDraft(t *testing.T) {
	p := New(convID, selfID)
	p.SetDraft("star sign check?")
	entry, _ := p.Submit()

	cause := errors.New("network down")
	if err := p.Fail(entry.TempID, cause); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if len(p.Timeline()) != 0 {
		t.Fatalf("placeholder should be removed, got %+v", p.Timeline())
	}
	if p.Draft() != "star sign check?" {
		t.Fatalf("draft not restored, got %q", p.Draft())
	}
	if p.State() != StateFailed || !errors.Is(p.Err(), cause) {
		t.Fatalf("expected Failed with cause, got %s / %v", p.State(), p.Err())
	}
}

func TestReceiveDeduplicatesByServerID(t *testing.T) {
	p := New(convID, selfID)
	incoming := serverMessage("m9", peerID, "hello")

	if !p.Receive(incoming) {
		t.Fatal("first delivery should change the timeline")
	}
	if p.Receive(incoming) {
		t.Fatal("redelivery after reconnect must be dropped")
	}
	if len(p.Timeline()) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(p.Timeline()))
	}
}

func TestReceiveSelfPushReconcilesInflightPlaceholder(t *testing.T) {
	p := New(convID, selfID)
	p.SetDraft("hi")
	entry, _ := p.Submit()

	// Fan-out copy of our own send arrives before the ack.
	confirmed := serverMessage("m3", selfID, "hi")
	if !p.Receive(confirmed) {
		t.Fatal("self push should reconcile the placeholder")
	}

	timeline := p.Timeline()
	if len(timeline) != 1 || timeline[0].Pending || timeline[0].Message.ID != "m3" {
		t.Fatalf("expected single confirmed entry, got %+v", timeline)
	}

	// The late ack for the same send is a no-op, not a duplicate.
	if err := p.Ack(entry.TempID, confirmed); err != nil {
		t.Fatalf("late Ack: %v", err)
	}
	if len(p.Timeline()) != 1 {
		t.Fatalf("ack after push produced a duplicate: %+v", p.Timeline())
	}
}

func TestReceiveSelfPushWithoutInflightAppends(t *testing.T) {
	// Another tab sent the message; this pipeline has nothing in flight.
	p := New(convID, selfID)
	if !p.Receive(serverMessage("m4", selfID, "from other tab")) {
		t.Fatal("expected append")
	}
	if len(p.Timeline()) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(p.Timeline()))
	}
}

func TestLoadHistoryAfterReconnectSkipsKnownMessages(t *testing.T) {
	p := New(convID, selfID)
	m1 := serverMessage("m1", peerID, "one")
	m2 := serverMessage("m2", peerID, "two")
	p.Receive(m1)

	p.LoadHistory([]models.Message{m1, m2})

	if len(p.Timeline()) != 2 {
		t.Fatalf("expected 2 entries after heal, got %d", len(p.Timeline()))
	}
}

func TestMultipleInflightSendsResolveIndependently(t *testing.T) {
	p := New(convID, selfID)
	p.SetDraft("first")
	first, _ := p.Submit()
	p.SetDraft("second")
	second, _ := p.Submit()

	if p.PendingCount() != 2 {
		t.Fatalf("expected 2 pending, got %d", p.PendingCount())
	}

	if err := p.Ack(first.TempID, serverMessage("m1", selfID, "first")); err != nil {
		t.Fatalf("Ack first: %v", err)
	}
	if p.State() != StateSending {
		t.Fatalf("still one in flight, expected Sending, got %s", p.State())
	}

	if err := p.Fail(second.TempID, errors.New("boom")); err != nil {
		t.Fatalf("Fail second: %v", err)
	}

	timeline := p.Timeline()
	if len(timeline) != 1 || timeline[0].Message.ID != "m1" {
		t.Fatalf("unexpected timeline: %+v", timeline)
	}
	if p.Draft() != "second" {
		t.Fatalf("failed draft not restored, got %q", p.Draft())
	}
}

func TestAckUnknownTempIDErrors(t *testing.T) {
	p := New(convID, selfID)
	err := p.Ack("nope", serverMessage("m1", selfID, "x"))
	if !errors.Is(err, ErrUnknownPending) {
		t.Fatalf("expected ErrUnknownPending, got %v", err)
	}
}

func TestImageOnlySubmit(t *testing.T) {
	p := New(convID, selfID)
	p.AttachImage("https://cdn.example.com/chat/alice/1.png")

	entry, err := p.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if entry.Message.ImageURL == "" || entry.Message.Content != "" {
		t.Fatalf("unexpected placeholder: %+v", entry.Message)
	}
}
