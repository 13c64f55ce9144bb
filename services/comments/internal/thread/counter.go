package thread

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/comment-tree/services/comments/internal/store"
)

// Counter maintains the denormalized totalSubComments of a parent.
type Counter struct {
	log *zap.Logger
}

func NewCounter(log *zap.Logger) *Counter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Counter{log: log}
}

// Adjust adds delta to the child counter of parentID. A parent that is
// missing or already deleted is skipped without error.
func (c *Counter) Adjust(ctx context.Context, repo store.Repository, parentID string, delta int) error {
	ok, err := repo.AdjustChildCount(ctx, parentID, delta)
	if err != nil {
		return fmt.Errorf("adjust child count of %s: %w", parentID, err)
	}
	if !ok {
		c.log.Debug("counter adjust skipped, parent not live",
			zap.String("parent_id", parentID), zap.Int("delta", delta))
	}
	return nil
}
