package events

import (
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// fakeJS records PublishAsync calls; every other JetStream method panics.
type fakeJS struct {
	nats.JetStreamContext
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeJS) PublishAsync(subj string, data []byte, _ ...nats.PubOpt) (nats.PubAckFuture, error) {
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil, f.err
}

func TestPublish_NilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	p.Publish(SubjectCreated, Event{CommentID: "c1"})

	New(nil, zap.NewNop()).Publish(SubjectCreated, Event{CommentID: "c1"})
}

func TestPublish_FillsEnvelope(t *testing.T) {
	js := &fakeJS{}
	p := New(js, zap.NewNop())

	parent := "p1"
	p.Publish(SubjectDeleted, Event{CommentID: "c1", ParentID: &parent, DeletedCount: 3})

	if len(js.subjects) != 1 || js.subjects[0] != SubjectDeleted {
		t.Fatalf("expected one publish on %s, got %v", SubjectDeleted, js.subjects)
	}
	ev, err := Decode(js.payloads[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventID == "" {
		t.Fatal("expected event id to be set")
	}
	if ev.EventName != SubjectDeleted {
		t.Fatalf("expected event name %q, got %q", SubjectDeleted, ev.EventName)
	}
	if ev.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to be set")
	}
	if ev.ParentID == nil || *ev.ParentID != "p1" || ev.DeletedCount != 3 {
		t.Fatalf("unexpected payload: %+v", ev)
	}
}

func TestPublish_ErrorIsSwallowed(t *testing.T) {
	js := &fakeJS{err: errors.New("nats down")}
	New(js, zap.NewNop()).Publish(SubjectCreated, Event{CommentID: "c1"})

	if len(js.subjects) != 1 {
		t.Fatalf("expected publish attempt, got %d", len(js.subjects))
	}
}

func TestDecode_RequiresCommentID(t *testing.T) {
	if _, err := Decode([]byte(`{"event_name":"comments.created"}`)); err == nil {
		t.Fatal("expected error for event without comment_id")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
