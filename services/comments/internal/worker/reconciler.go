package worker

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/comment-tree/internal/platform/events"
)

const (
	ReconcilerDurable = "comments_reconciler"

	defaultBatchSize = 50
	defaultMaxWait   = 2 * time.Second
)

// Recounter resets a comment's child counter from its live children.
type Recounter interface {
	RecountChildren(ctx context.Context, id string) (bool, error)
}

// Reconciler consumes comments.deleted and recounts the parent of every
// deleted subtree root, repairing counters left stale by an interrupted
// delete.
type Reconciler struct {
	js        nats.JetStreamContext
	recounter Recounter
	log       *zap.Logger

	BatchSize int
	MaxWait   time.Duration
}

func NewReconciler(js nats.JetStreamContext, r Recounter, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		js:        js,
		recounter: r,
		log:       log,
		BatchSize: defaultBatchSize,
		MaxWait:   defaultMaxWait,
	}
}

// Run pulls batches until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	sub, err := r.js.PullSubscribe(events.SubjectDeleted, ReconcilerDurable,
		nats.BindStream(events.StreamName))
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	r.log.Info("reconciler started", zap.String("subject", events.SubjectDeleted))
	for {
		if ctx.Err() != nil {
			return nil
		}
		msgs, err := sub.Fetch(r.BatchSize, nats.MaxWait(r.MaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return nil
			}
			r.log.Warn("reconciler fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, m := range msgs {
			if err := r.handle(ctx, m.Data); err != nil {
				r.log.Warn("reconcile failed, will retry", zap.Error(err))
				_ = m.Nak()
				continue
			}
			_ = m.Ack()
		}
	}
}

// handle processes one event payload. Malformed payloads are dropped.
func (r *Reconciler) handle(ctx context.Context, data []byte) error {
	ev, err := events.Decode(data)
	if err != nil {
		r.log.Warn("reconciler dropped malformed event", zap.Error(err))
		return nil
	}
	if ev.ParentID == nil {
		return nil
	}

	ok, err := r.recounter.RecountChildren(ctx, *ev.ParentID)
	if err != nil {
		return err
	}
	if !ok {
		r.log.Debug("reconciler skipped, parent not live", zap.String("parent_id", *ev.ParentID))
		return nil
	}
	r.log.Debug("reconciled child count",
		zap.String("parent_id", *ev.ParentID), zap.String("comment_id", ev.CommentID))
	return nil
}
