package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const commentColumns = `id::text, text, parent_id::text, total_sub_comments, is_deleted, deleted_at, created_at, updated_at`

// PostgresCommentStore persists comments in Postgres.
type PostgresCommentStore struct {
	pgRepo
	pool *pgxpool.Pool
}

// NewPostgresCommentStore creates a store backed by Postgres. The caller owns
// the pool.
func NewPostgresCommentStore(pool *pgxpool.Pool) *PostgresCommentStore {
	return &PostgresCommentStore{pgRepo: pgRepo{q: pool}, pool: pool}
}

func (s *PostgresCommentStore) Atomically(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, pgRepo{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresCommentStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgRepo struct {
	q querier
}

func (r pgRepo) GetByID(ctx context.Context, id string) (Comment, error) {
	q := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1::uuid AND is_deleted = false`
	c, err := scanComment(r.q.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	return c, err
}

func (r pgRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM comments WHERE id = $1::uuid AND is_deleted = false)`, id).Scan(&exists)
	return exists, err
}

func (r pgRepo) Create(ctx context.Context, text string, parentID *string) (Comment, error) {
	id, err := NewID()
	if err != nil {
		return Comment{}, err
	}
	now := Now()
	q := `INSERT INTO comments (id, text, parent_id, created_at, updated_at)
	      VALUES ($1::uuid, $2, $3::uuid, $4, $4)
	      RETURNING ` + commentColumns
	return scanComment(r.q.QueryRow(ctx, q, id, text, parentID, now))
}

func (r pgRepo) UpdateText(ctx context.Context, id, text string) (Comment, error) {
	q := `UPDATE comments SET text = $2, updated_at = $3
	      WHERE id = $1::uuid AND is_deleted = false
	      RETURNING ` + commentColumns
	c, err := scanComment(r.q.QueryRow(ctx, q, id, text, Now()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	return c, err
}

func (r pgRepo) FindChildrenIDs(ctx context.Context, parentIDs []string) ([]string, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.q.Query(ctx,
		`SELECT id::text FROM comments
		 WHERE parent_id = ANY($1::uuid[]) AND is_deleted = false
		 ORDER BY id`, parentIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r pgRepo) BulkMarkDeleted(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE comments SET is_deleted = true, deleted_at = $2, updated_at = $2
		 WHERE id = ANY($1::uuid[]) AND is_deleted = false`, ids, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r pgRepo) AdjustChildCount(ctx context.Context, id string, delta int) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE comments SET total_sub_comments = total_sub_comments + $2, updated_at = $3
		 WHERE id = $1::uuid AND is_deleted = false`, id, delta, Now())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r pgRepo) List(ctx context.Context, lq ListQuery) ([]Comment, error) {
	var b strings.Builder
	args := make([]any, 0, 5)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	b.WriteString(`SELECT ` + commentColumns + ` FROM comments WHERE is_deleted = false`)
	writeParentFilter(&b, lq.Filter, arg)

	col := sortColumn(lq.Order.Field)
	op, dir := ">", "ASC"
	if lq.Order.Desc {
		op, dir = "<", "DESC"
	}
	if lq.After != nil {
		if lq.Order.Field == FieldID {
			fmt.Fprintf(&b, ` AND id %s %s::uuid`, op, arg(lq.After.ID))
		} else {
			fmt.Fprintf(&b, ` AND (%s, id) %s (%s, %s::uuid)`,
				col, op, castKey(lq.Order.Field, arg(sortValue(lq.Order.Field, *lq.After))), arg(lq.After.ID))
		}
	}
	if lq.Order.Field == FieldID {
		fmt.Fprintf(&b, ` ORDER BY id %s`, dir)
	} else {
		fmt.Fprintf(&b, ` ORDER BY %s %s, id %s`, col, dir, dir)
	}
	if lq.Limit > 0 {
		fmt.Fprintf(&b, ` LIMIT %s`, arg(lq.Limit))
	}
	if lq.Offset > 0 {
		fmt.Fprintf(&b, ` OFFSET %s`, arg(lq.Offset))
	}

	rows, err := r.q.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r pgRepo) Count(ctx context.Context, f Filter) (int64, error) {
	var b strings.Builder
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	b.WriteString(`SELECT count(*) FROM comments WHERE is_deleted = false`)
	writeParentFilter(&b, f, arg)

	var n int64
	err := r.q.QueryRow(ctx, b.String(), args...).Scan(&n)
	return n, err
}

func (r pgRepo) CursorKey(ctx context.Context, id string) (Comment, error) {
	q := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1::uuid`
	c, err := scanComment(r.q.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrInvalidCursor
	}
	return c, err
}

// LockComment takes the row lock that AdjustChildCount also needs, so a
// concurrent create under the same parent waits for the caller's transaction.
func (r pgRepo) LockComment(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.q.QueryRow(ctx,
		`SELECT 1 FROM comments WHERE id = $1::uuid AND is_deleted = false FOR UPDATE`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r pgRepo) CountChildren(ctx context.Context, parentID string) (int64, error) {
	return r.Count(ctx, Filter{ParentID: &parentID})
}

func (r pgRepo) SetChildCount(ctx context.Context, id string, n int64) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE comments SET total_sub_comments = $2, updated_at = $3
		 WHERE id = $1::uuid AND is_deleted = false`, id, n, Now())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func writeParentFilter(b *strings.Builder, f Filter, arg func(any) string) {
	if f.ParentID == nil {
		b.WriteString(` AND parent_id IS NULL`)
		return
	}
	fmt.Fprintf(b, ` AND parent_id = %s::uuid`, arg(*f.ParentID))
}

// sortColumn compares text bytewise so every backend agrees on order.
func sortColumn(f Field) string {
	switch f {
	case FieldCreatedAt:
		return "created_at"
	case FieldUpdatedAt:
		return "updated_at"
	case FieldText:
		return `text COLLATE "C"`
	}
	return "id"
}

func castKey(f Field, placeholder string) string {
	switch f {
	case FieldText:
		return placeholder + `::text COLLATE "C"`
	case FieldCreatedAt, FieldUpdatedAt:
		return placeholder + "::timestamptz"
	}
	return placeholder
}

func sortValue(f Field, c Comment) any {
	switch f {
	case FieldCreatedAt:
		return c.CreatedAt
	case FieldUpdatedAt:
		return c.UpdatedAt
	case FieldText:
		return c.Text
	}
	return c.ID
}

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.Text, &c.ParentID, &c.TotalSubComments,
		&c.IsDeleted, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Comment{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
