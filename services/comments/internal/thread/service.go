// Package thread holds the comment tree logic: counter maintenance, cascade
// deletion and pagination over a store.CommentStore.
package thread

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/comment-tree/internal/platform/events"
	"github.com/example/comment-tree/services/comments/internal/store"
)

var (
	// ErrEmptyText is returned when text is blank after trimming.
	ErrEmptyText = errors.New("text must not be empty")
	// ErrParentNotFound means a reply targets a parent that is not live.
	ErrParentNotFound = errors.New("parent comment not found")
)

// Publisher receives lifecycle events after a write commits.
type Publisher interface {
	Publish(subject string, ev events.Event)
}

// Service is the entry point used by the transport layers.
type Service struct {
	store   store.CommentStore
	counter *Counter
	cascade *Cascade
	pager   *Pager
	pub     Publisher
	log     *zap.Logger
}

// NewService wires the tree components over s. pub may be nil.
func NewService(s store.CommentStore, pub Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	counter := NewCounter(log.Named("counter"))
	return &Service{
		store:   s,
		counter: counter,
		cascade: NewCascade(s, counter, log.Named("cascade")),
		pager:   NewPager(s),
		pub:     pub,
		log:     log,
	}
}

// Cascade exposes the delete engine, mainly to tune MaxDepth.
func (s *Service) Cascade() *Cascade { return s.cascade }

func (s *Service) Get(ctx context.Context, id string) (store.Comment, error) {
	return s.store.GetByID(ctx, id)
}

// Create inserts a comment and, for replies, bumps the parent counter in the
// same unit of work.
func (s *Service) Create(ctx context.Context, text string, parentID *string) (store.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Comment{}, ErrEmptyText
	}

	var created store.Comment
	err := s.store.Atomically(ctx, func(ctx context.Context, repo store.Repository) error {
		if parentID != nil {
			ok, err := repo.Exists(ctx, *parentID)
			if err != nil {
				return fmt.Errorf("check parent: %w", err)
			}
			if !ok {
				return ErrParentNotFound
			}
		}
		c, err := repo.Create(ctx, text, parentID)
		if err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		if parentID != nil {
			if err := s.counter.Adjust(ctx, repo, *parentID, 1); err != nil {
				return err
			}
		}
		created = c
		return nil
	})
	if err != nil {
		return store.Comment{}, err
	}

	s.publish(events.SubjectCreated, events.Event{CommentID: created.ID, ParentID: created.ParentID})
	return created, nil
}

func (s *Service) Update(ctx context.Context, id, text string) (store.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Comment{}, ErrEmptyText
	}
	c, err := s.store.UpdateText(ctx, id, text)
	if err != nil {
		return store.Comment{}, err
	}
	s.publish(events.SubjectUpdated, events.Event{CommentID: c.ID, ParentID: c.ParentID})
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id string) (DeleteResult, error) {
	res, err := s.cascade.Delete(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	s.publish(events.SubjectDeleted, events.Event{
		CommentID:    res.Root.ID,
		ParentID:     res.Root.ParentID,
		DeletedCount: res.DeletedCount,
	})
	return res, nil
}

func (s *Service) ListPage(ctx context.Context, q PageQuery) (Page, error) {
	return s.pager.ListPage(ctx, q)
}

func (s *Service) ListCursor(ctx context.Context, q CursorQuery) (CursorPage, error) {
	return s.pager.ListCursor(ctx, q)
}

// RecountChildren resets the counter of id to its live child count. It
// reports false when id is no longer a live comment. The comment is locked
// before counting so a create under it cannot slip between count and set.
func (s *Service) RecountChildren(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.store.Atomically(ctx, func(ctx context.Context, repo store.Repository) error {
		live, err := repo.LockComment(ctx, id)
		if err != nil {
			return fmt.Errorf("lock comment %s: %w", id, err)
		}
		if !live {
			return nil
		}
		n, err := repo.CountChildren(ctx, id)
		if err != nil {
			return fmt.Errorf("count children of %s: %w", id, err)
		}
		ok, err = repo.SetChildCount(ctx, id, n)
		if err != nil {
			return fmt.Errorf("set child count of %s: %w", id, err)
		}
		return nil
	})
	return ok, err
}

func (s *Service) publish(subject string, ev events.Event) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(subject, ev)
}
