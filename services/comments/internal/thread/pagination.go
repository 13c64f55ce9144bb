package thread

import (
	"context"
	"fmt"
	"math"

	"github.com/example/comment-tree/services/comments/internal/store"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// ClampLimit maps a requested page size into [1, MaxLimit]; zero or negative
// means DefaultLimit.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

// PageQuery selects one numbered page of a parent's live children.
// A nil ParentID lists root comments.
type PageQuery struct {
	ParentID *string
	Page     int
	Limit    int
	Sort     store.Sort
}

type Page struct {
	Items []store.Comment
	Page  int
	Limit int
	Total int64
}

// CursorQuery selects the page after Cursor, a previously returned id.
type CursorQuery struct {
	ParentID *string
	Cursor   string
	Limit    int
	Sort     store.Sort
}

type CursorPage struct {
	Items      []store.Comment
	NextCursor *string
	HasMore    bool
	Limit      int
	Sort       store.Sort
}

// Pager serves offset and cursor listings.
type Pager struct {
	repo store.Repository
}

func NewPager(repo store.Repository) *Pager {
	return &Pager{repo: repo}
}

// ListPage returns the page-th slice of size limit. A page past the end is
// empty, not an error.
func (p *Pager) ListPage(ctx context.Context, q PageQuery) (Page, error) {
	page := max(q.Page, 1)
	limit := ClampLimit(q.Limit)
	filter := store.Filter{ParentID: q.ParentID}

	total, err := p.repo.Count(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("count comments: %w", err)
	}
	// An offset that would overflow int lies past any real table.
	if page-1 > math.MaxInt/limit {
		return Page{Items: []store.Comment{}, Page: page, Limit: limit, Total: total}, nil
	}

	items, err := p.repo.List(ctx, store.ListQuery{
		Filter: filter,
		Order:  q.Sort.Order(),
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return Page{}, fmt.Errorf("list comments: %w", err)
	}
	return Page{Items: items, Page: page, Limit: limit, Total: total}, nil
}

// ListCursor returns up to limit items strictly after the cursor record in
// the requested order. The boundary is the cursor's (sort field, id) pair, so
// following NextCursor visits every record once under any sort.
func (p *Pager) ListCursor(ctx context.Context, q CursorQuery) (CursorPage, error) {
	limit := ClampLimit(q.Limit)
	lq := store.ListQuery{
		Filter: store.Filter{ParentID: q.ParentID},
		Order:  q.Sort.Order(),
		Limit:  limit + 1,
	}
	if q.Cursor != "" {
		key, err := p.repo.CursorKey(ctx, q.Cursor)
		if err != nil {
			return CursorPage{}, err
		}
		lq.After = &key
	}

	items, err := p.repo.List(ctx, lq)
	if err != nil {
		return CursorPage{}, fmt.Errorf("list comments: %w", err)
	}

	out := CursorPage{Items: items, Limit: limit, Sort: q.Sort}
	if len(items) > limit {
		out.Items = items[:limit]
		out.HasMore = true
		next := out.Items[limit-1].ID
		out.NextCursor = &next
	}
	if out.Items == nil {
		out.Items = []store.Comment{}
	}
	return out, nil
}
