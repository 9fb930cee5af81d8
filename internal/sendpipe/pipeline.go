// Package sendpipe implements the optimistic send pipeline a client runs per
// open conversation: a submitted draft appears immediately as a placeholder,
// then is either replaced in place by the server-confirmed message or rolled
// back with the draft restored. The pipeline is a pure state machine driven
// by explicit events, so it is testable without any network timing.
package sendpipe

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
)

type State int

const (
	StateComposing State = iota
	StateSending
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateComposing:
		return "composing"
	case StateSending:
		return "sending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var (
	ErrEmptyDraft     = errors.New("empty draft")
	ErrUnknownPending = errors.New("unknown pending send")
)

// Entry is one row of the locally rendered timeline. Pending entries carry a
// temp id and no server-assigned fields yet.
type Entry struct {
	TempID  string
	Pending bool
	Message models.Message
}

type pendingSend struct {
	draft    string
	imageURL string
}

// Pipeline holds one conversation view's local state: the compose field, the
// visible timeline, and the set of in-flight sends awaiting a server verdict.
type Pipeline struct {
	conversationID string
	selfID         string

	draft    string
	imageURL string
	state    State
	lastErr  error

	timeline []Entry
	inflight map[string]pendingSend
	seen     map[string]struct{}
}

func New(conversationID, selfID string) *Pipeline {
	return &Pipeline{
		conversationID: conversationID,
		selfID:         selfID,
		inflight:       make(map[string]pendingSend),
		seen:           make(map[string]struct{}),
	}
}

func (p *Pipeline) State() State  { return p.state }
func (p *Pipeline) Err() error    { return p.lastErr }
func (p *Pipeline) Draft() string { return p.draft }

// SetDraft updates the compose field.
func (p *Pipeline) SetDraft(text string) {
	p.draft = text
	if len(p.inflight) == 0 {
		p.state = StateComposing
	}
}

// AttachImage stages an uploaded image URL on the draft.
func (p *Pipeline) AttachImage(url string) {
	p.imageURL = url
	if len(p.inflight) == 0 {
		p.state = StateComposing
	}
}

// LoadHistory seeds the timeline from a history fetch, dropping anything
// already present. Used on open and after a reconnect to heal delivery gaps.
func (p *Pipeline) LoadHistory(messages []models.Message) {
	for _, message := range messages {
		if _, dup := p.seen[message.ID]; dup {
			continue
		}
		p.seen[message.ID] = struct{}{}
		p.timeline = append(p.timeline, Entry{Message: message})
	}
}

// Submit materializes the draft as a placeholder at the end of the timeline
// and clears the compose field. The returned entry's temp id keys the
// eventual Ack or Fail.
func (p *Pipeline) Submit() (Entry, error) {
	content := strings.TrimSpace(p.draft)
	if content == "" && p.imageURL == "" {
		return Entry{}, ErrEmptyDraft
	}

	entry := Entry{
		TempID:  uuid.NewString(),
		Pending: true,
		Message: models.Message{
			ConversationID: p.conversationID,
			SenderID:       p.selfID,
			Content:        content,
			ImageURL:       p.imageURL,
		},
	}

	p.inflight[entry.TempID] = pendingSend{draft: p.draft, imageURL: p.imageURL}
	p.timeline = append(p.timeline, entry)
	p.draft = ""
	p.imageURL = ""
	p.state = StateSending
	p.lastErr = nil

	return entry, nil
}

// Ack replaces the placeholder with the authoritative message, in place: same
// timeline position, no duplicate. If a fan-out push already reconciled this
// send, the ack is a harmless no-op.
func (p *Pipeline) Ack(tempID string, message models.Message) error {
	if _, ok := p.inflight[tempID]; !ok {
		if _, dup := p.seen[message.ID]; dup {
			return nil
		}
		return ErrUnknownPending
	}
	delete(p.inflight, tempID)
	p.seen[message.ID] = struct{}{}

	for i := range p.timeline {
		if p.timeline[i].TempID == tempID {
			p.timeline[i] = Entry{Message: message}
			break
		}
	}

	if len(p.inflight) == 0 {
		p.state = StateConfirmed
	}
	return nil
}

// Fail removes the placeholder and restores the draft so nothing the user
// wrote is lost; the send can be retried manually.
func (p *Pipeline) Fail(tempID string, cause error) error {
	pending, ok := p.inflight[tempID]
	if !ok {
		return ErrUnknownPending
	}
	delete(p.inflight, tempID)

	for i := range p.timeline {
		if p.timeline[i].TempID == tempID {
			p.timeline = append(p.timeline[:i], p.timeline[i+1:]...)
			break
		}
	}

	p.draft = pending.draft
	p.imageURL = pending.imageURL
	p.state = StateFailed
	p.lastErr = cause
	return nil
}

// Receive folds a delivery-channel push into the timeline. Duplicates (by
// server id) are dropped. A self-originated push matching an in-flight
// placeholder is the confirmation arriving via fan-out before the ack: the
// placeholder is replaced rather than a second copy appended. Returns true
// when the timeline changed.
func (p *Pipeline) Receive(message models.Message) bool {
	if _, dup := p.seen[message.ID]; dup {
		return false
	}

	if message.SenderID == p.selfID {
		if tempID, ok := p.matchInflight(message); ok {
			_ = p.Ack(tempID, message)
			return true
		}
	}

	p.seen[message.ID] = struct{}{}
	p.timeline = append(p.timeline, Entry{Message: message})
	return true
}

// Timeline returns the currently visible entries in display order.
func (p *Pipeline) Timeline() []Entry {
	out := make([]Entry, len(p.timeline))
	copy(out, p.timeline)
	return out
}

// PendingCount reports how many sends still await a server verdict.
func (p *Pipeline) PendingCount() int {
	return len(p.inflight)
}

func (p *Pipeline) matchInflight(message models.Message) (string, bool) {
	for i := range p.timeline {
		entry := p.timeline[i]
		if entry.Pending &&
			entry.Message.Content == message.Content &&
			entry.Message.ImageURL == message.ImageURL {
			return entry.TempID, true
		}
	}
	return "", false
}
