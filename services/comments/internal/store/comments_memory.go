package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// InMemoryCommentStore is a development-only in-memory implementation.
type InMemoryCommentStore struct {
	mu    sync.RWMutex
	table memTable
}

func NewInMemoryCommentStore() *InMemoryCommentStore {
	return &InMemoryCommentStore{table: memTable{}}
}

func (s *InMemoryCommentStore) GetByID(ctx context.Context, id string) (Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.GetByID(ctx, id)
}

func (s *InMemoryCommentStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Exists(ctx, id)
}

func (s *InMemoryCommentStore) Create(ctx context.Context, text string, parentID *string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Create(ctx, text, parentID)
}

func (s *InMemoryCommentStore) UpdateText(ctx context.Context, id, text string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.UpdateText(ctx, id, text)
}

func (s *InMemoryCommentStore) FindChildrenIDs(ctx context.Context, parentIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.FindChildrenIDs(ctx, parentIDs)
}

func (s *InMemoryCommentStore) BulkMarkDeleted(ctx context.Context, ids []string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.BulkMarkDeleted(ctx, ids, at)
}

func (s *InMemoryCommentStore) AdjustChildCount(ctx context.Context, id string, delta int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.AdjustChildCount(ctx, id, delta)
}

func (s *InMemoryCommentStore) List(ctx context.Context, q ListQuery) ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.List(ctx, q)
}

func (s *InMemoryCommentStore) Count(ctx context.Context, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Count(ctx, f)
}

func (s *InMemoryCommentStore) CursorKey(ctx context.Context, id string) (Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.CursorKey(ctx, id)
}

func (s *InMemoryCommentStore) LockComment(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.LockComment(ctx, id)
}

func (s *InMemoryCommentStore) CountChildren(ctx context.Context, parentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.CountChildren(ctx, parentID)
}

func (s *InMemoryCommentStore) SetChildCount(ctx context.Context, id string, n int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.SetChildCount(ctx, id, n)
}

// Atomically runs fn against a private copy of the table while holding the
// write lock and swaps the copy in only when fn succeeds.
func (s *InMemoryCommentStore) Atomically(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := maps.Clone(s.table)
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.table = work
	return nil
}

func (s *InMemoryCommentStore) Ping(context.Context) error { return nil }

// memTable is the unguarded map behind the store; it doubles as the
// transactional view handed to Atomically callbacks.
type memTable map[string]Comment

func (t memTable) GetByID(_ context.Context, id string) (Comment, error) {
	c, ok := t[id]
	if !ok || c.IsDeleted {
		return Comment{}, ErrNotFound
	}
	return c, nil
}

func (t memTable) Exists(_ context.Context, id string) (bool, error) {
	c, ok := t[id]
	return ok && !c.IsDeleted, nil
}

func (t memTable) Create(_ context.Context, text string, parentID *string) (Comment, error) {
	id, err := NewID()
	if err != nil {
		return Comment{}, err
	}
	now := Now()
	c := Comment{
		ID:        id,
		Text:      text,
		ParentID:  cloneString(parentID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	t[id] = c
	return c, nil
}

func (t memTable) UpdateText(_ context.Context, id, text string) (Comment, error) {
	c, ok := t[id]
	if !ok || c.IsDeleted {
		return Comment{}, ErrNotFound
	}
	c.Text = text
	c.UpdatedAt = Now()
	t[id] = c
	return c, nil
}

func (t memTable) FindChildrenIDs(_ context.Context, parentIDs []string) ([]string, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	parents := make(map[string]struct{}, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = struct{}{}
	}
	var out []string
	for _, c := range t {
		if c.IsDeleted || c.ParentID == nil {
			continue
		}
		if _, ok := parents[*c.ParentID]; ok {
			out = append(out, c.ID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (t memTable) BulkMarkDeleted(_ context.Context, ids []string, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		c, ok := t[id]
		if !ok || c.IsDeleted {
			continue
		}
		ts := at
		c.IsDeleted = true
		c.DeletedAt = &ts
		c.UpdatedAt = at
		t[id] = c
		n++
	}
	return n, nil
}

func (t memTable) AdjustChildCount(_ context.Context, id string, delta int) (bool, error) {
	c, ok := t[id]
	if !ok || c.IsDeleted {
		return false, nil
	}
	c.TotalSubComments += delta
	c.UpdatedAt = Now()
	t[id] = c
	return true, nil
}

func (t memTable) List(_ context.Context, q ListQuery) ([]Comment, error) {
	var out []Comment
	for _, c := range t {
		if !matches(c, q.Filter) {
			continue
		}
		if q.After != nil && !q.Order.After(c, *q.After) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, q.Order.Compare)

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []Comment{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if out == nil {
		out = []Comment{}
	}
	return out, nil
}

func (t memTable) Count(_ context.Context, f Filter) (int64, error) {
	var n int64
	for _, c := range t {
		if matches(c, f) {
			n++
		}
	}
	return n, nil
}

func (t memTable) CursorKey(_ context.Context, id string) (Comment, error) {
	c, ok := t[id]
	if !ok {
		return Comment{}, ErrInvalidCursor
	}
	return c, nil
}

// LockComment only checks liveness; Atomically already serializes writers.
func (t memTable) LockComment(ctx context.Context, id string) (bool, error) {
	return t.Exists(ctx, id)
}

func (t memTable) CountChildren(ctx context.Context, parentID string) (int64, error) {
	return t.Count(ctx, Filter{ParentID: &parentID})
}

func (t memTable) SetChildCount(_ context.Context, id string, n int64) (bool, error) {
	c, ok := t[id]
	if !ok || c.IsDeleted {
		return false, nil
	}
	c.TotalSubComments = int(n)
	c.UpdatedAt = Now()
	t[id] = c
	return true, nil
}

func matches(c Comment, f Filter) bool {
	if c.IsDeleted {
		return false
	}
	if f.ParentID == nil {
		return c.ParentID == nil
	}
	return c.ParentID != nil && *c.ParentID == *f.ParentID
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
