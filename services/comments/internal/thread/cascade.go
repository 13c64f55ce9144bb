package thread

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/comment-tree/services/comments/internal/store"
)

// DefaultMaxDepth bounds the number of levels a cascade will expand.
const DefaultMaxDepth = 10000

// ErrDepthExceeded means a subtree was deeper than the cascade limit; nothing
// was deleted.
var ErrDepthExceeded = errors.New("cascade depth limit exceeded")

// DeleteResult reports a finished cascade. Root is the snapshot taken before
// deletion.
type DeleteResult struct {
	Root         store.Comment
	DeletedCount int
}

// Cascade soft-deletes a comment together with its whole subtree.
type Cascade struct {
	store    store.CommentStore
	counter  *Counter
	log      *zap.Logger
	MaxDepth int
}

func NewCascade(s store.CommentStore, counter *Counter, log *zap.Logger) *Cascade {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cascade{store: s, counter: counter, log: log, MaxDepth: DefaultMaxDepth}
}

// Delete walks the subtree under id level by level, then marks every
// collected id deleted and decrements the root's parent once, in a single
// unit of work. It returns store.ErrNotFound when id is not a live comment.
//
// Levels are marked deepest first and the root last. When the store cannot
// make the unit atomic, a failure part way leaves every deleted comment with
// a fully deleted subtree and the root still live, so retrying the delete
// finishes the job.
func (c *Cascade) Delete(ctx context.Context, id string) (DeleteResult, error) {
	root, err := c.store.GetByID(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}

	levels, err := c.collect(ctx, root.ID)
	if err != nil {
		return DeleteResult{}, err
	}
	total := 0
	for _, level := range levels {
		total += len(level)
	}

	at := store.Now()
	err = c.store.Atomically(ctx, func(ctx context.Context, repo store.Repository) error {
		for i := len(levels) - 1; i > 0; i-- {
			if _, err := repo.BulkMarkDeleted(ctx, levels[i], at); err != nil {
				return fmt.Errorf("mark subtree deleted: %w", err)
			}
		}
		// Only the delete that flips the root may touch the parent counter.
		n, err := repo.BulkMarkDeleted(ctx, levels[0], at)
		if err != nil {
			return fmt.Errorf("mark root deleted: %w", err)
		}
		if n == 0 {
			return store.ErrNotFound
		}
		if root.ParentID != nil {
			return c.counter.Adjust(ctx, repo, *root.ParentID, -1)
		}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}

	c.log.Debug("cascade delete",
		zap.String("comment_id", root.ID), zap.Int("deleted", total))
	return DeleteResult{Root: root, DeletedCount: total}, nil
}

// collect returns the subtree under rootID in level order; levels[0] holds
// only rootID.
func (c *Cascade) collect(ctx context.Context, rootID string) ([][]string, error) {
	levels := [][]string{{rootID}}
	seen := map[string]struct{}{rootID: {}}
	frontier := levels[0]

	for depth := 0; len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.MaxDepth > 0 && depth >= c.MaxDepth {
			return nil, fmt.Errorf("%w: %d levels under %s", ErrDepthExceeded, depth, rootID)
		}

		children, err := c.store.FindChildrenIDs(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("find children: %w", err)
		}
		next := make([]string, 0, len(children))
		for _, id := range children {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			next = append(next, id)
		}
		if len(next) > 0 {
			levels = append(levels, next)
		}
		frontier = next
	}
	return levels, nil
}
