package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means the id does not resolve to a live comment.
	ErrNotFound = errors.New("comment not found")
	// ErrInvalidCursor means a cursor id was never issued by this store.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Comment is a single node of the comment forest.
type Comment struct {
	ID               string     `json:"id" bson:"_id"`
	Text             string     `json:"text" bson:"text"`
	TotalSubComments int        `json:"totalSubComments" bson:"totalSubComments"`
	ParentID         *string    `json:"parentId" bson:"parentId"`
	IsDeleted        bool       `json:"-" bson:"isDeleted"`
	DeletedAt        *time.Time `json:"-" bson:"deletedAt"`
	CreatedAt        time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Filter selects the live children of ParentID; nil selects root comments.
type Filter struct {
	ParentID *string
}

// ListQuery describes one slice of a sorted, filtered listing.
// After, when set, restricts the result to rows strictly after that record
// under Order (keyset pagination).
type ListQuery struct {
	Filter Filter
	Order  Order
	Offset int
	Limit  int
	After  *Comment
}

// Repository is the persistence surface of the comment tree. Every read
// except CursorKey ignores soft-deleted rows.
type Repository interface {
	GetByID(ctx context.Context, id string) (Comment, error)
	Exists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, text string, parentID *string) (Comment, error)
	// UpdateText never resurrects a deleted comment; it returns ErrNotFound.
	UpdateText(ctx context.Context, id, text string) (Comment, error)
	FindChildrenIDs(ctx context.Context, parentIDs []string) ([]string, error)
	// BulkMarkDeleted reports how many rows transitioned to deleted.
	BulkMarkDeleted(ctx context.Context, ids []string, at time.Time) (int64, error)
	// AdjustChildCount reports false when id is not a live comment.
	AdjustChildCount(ctx context.Context, id string, delta int) (bool, error)
	List(ctx context.Context, q ListQuery) ([]Comment, error)
	Count(ctx context.Context, f Filter) (int64, error)
	CursorKey(ctx context.Context, id string) (Comment, error)
	// LockComment holds id against concurrent writers until the unit of work
	// ends. It reports false when id is not a live comment.
	LockComment(ctx context.Context, id string) (bool, error)
	CountChildren(ctx context.Context, parentID string) (int64, error)
	SetChildCount(ctx context.Context, id string, n int64) (bool, error)
}

// CommentStore is a Repository that can scope several calls into one unit of
// work. fn must only use the repo it is given.
type CommentStore interface {
	Repository
	Atomically(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	Ping(ctx context.Context) error
}

// NewID returns a time-ordered UUIDv7. Its canonical string form sorts in
// creation order.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Now is the store clock, truncated to the precision every backend keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
