// Package events publishes comment lifecycle events to NATS JetStream.
// Publishing is fire-and-forget: the write has already committed, so a lost
// event only delays downstream consumers such as the counter reconciler.
package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	StreamName = "COMMENTS_EVENTS"
	SubjectAll = "comments.>"

	SubjectCreated = "comments.created"
	SubjectUpdated = "comments.updated"
	SubjectDeleted = "comments.deleted"
)

// Event is the envelope sent on every comments.* subject.
type Event struct {
	EventID      string    `json:"event_id"`
	EventName    string    `json:"event_name"`
	CommentID    string    `json:"comment_id"`
	ParentID     *string   `json:"parent_id,omitempty"`
	DeletedCount int       `json:"deleted_count,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher publishes events to JetStream.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

// New creates a Publisher. Pass js=nil to get a no-op stub.
func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	return &Publisher{js: js, log: log}
}

// Publish fills in the event id, name and timestamp and sends ev on subject.
// Failures are logged as warnings and never surface to the caller.
func (p *Publisher) Publish(subject string, ev Event) {
	if p == nil || p.js == nil {
		return
	}
	ev.EventID = uuid.NewString()
	ev.EventName = subject
	ev.OccurredAt = time.Now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Decode parses an event payload received from the stream.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	if ev.CommentID == "" {
		return Event{}, errors.New("event without comment_id")
	}
	return ev, nil
}

// EnsureStream creates the comments stream or widens its subjects.
func EnsureStream(js nats.JetStreamContext) error {
	info, err := js.StreamInfo(StreamName)
	if err == nil {
		for _, s := range info.Config.Subjects {
			if s == SubjectAll {
				return nil
			}
		}
		cfg := info.Config
		cfg.Subjects = []string{SubjectAll}
		_, err := js.UpdateStream(&cfg)
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectAll},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	return err
}
