package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/msomdec/postwall/internal/domain"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	tablePosts    = "posts"
	tableLikes    = "post_likes"
	tableComments = "comments"
)

func postColumns() []string {
	return []string{"id", "author_id", "body", "version", "created_at"}
}

func likeColumns() []string {
	return []string{"post_id", "user_id", "position", "created_at"}
}

func commentColumns() []string {
	return []string{"id", "post_id", "author_id", "body", "position", "created_at"}
}

// PostRepository implements domain.PostRepository using SQLite. A post's
// likes and comments live in child tables and are rewritten together with
// the version bump in one transaction.
type PostRepository struct {
	db *sql.DB
}

var _ domain.PostRepository = (*PostRepository)(nil)

// NewPostRepository creates a new SQLite-backed PostRepository.
func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) Create(ctx context.Context, post *domain.Post) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = sq.Insert(tablePosts).
		Columns(postColumns()...).
		Values(post.ID, string(post.AuthorID), post.Body, 1, post.CreatedAt.UTC()).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	if err := writeChildren(ctx, tx, post); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	post.Version = 1
	return nil
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := sq.Select(postColumns()...).
		From(tablePosts).
		Where(sq.Eq{"id": id}).
		RunWith(tx).
		QueryRowContext(ctx)

	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}

	if err := loadChildren(ctx, tx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (r *PostRepository) List(ctx context.Context, params domain.ListPostsParams) ([]domain.Post, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	q := sq.Select(postColumns()...).
		From(tablePosts).
		OrderBy("created_at DESC", "id DESC")
	if params.Limit > 0 {
		q = q.Limit(uint64(params.Limit))
	}
	if params.Offset > 0 {
		if params.Limit <= 0 {
			q = q.Limit(uint64(1<<63 - 1))
		}
		q = q.Offset(uint64(params.Offset))
	}

	rows, err := q.RunWith(tx).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	posts := make([]domain.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	if err := rows.Close(); err != nil {
		slog.ErrorContext(ctx, "failed to close rows", "error", err)
	}

	for i := range posts {
		if err := loadChildren(ctx, tx, &posts[i]); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

// Save commits post if its version still matches the stored one. A write
// lock that cannot be acquired within the busy timeout is reported as
// domain.ErrConflict; the transaction is rolled back so nothing was written.
func (r *PostRepository) Save(ctx context.Context, post *domain.Post) error {
	err := r.save(ctx, post)
	if isBusy(err) {
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	return err
}

func (r *PostRepository) save(ctx context.Context, post *domain.Post) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := sq.Update(tablePosts).
		Set("version", post.Version+1).
		Where(sq.Eq{"id": post.ID, "version": post.Version}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := sq.Select("1").From(tablePosts).Where(sq.Eq{"id": post.ID}).
			RunWith(tx).QueryRowContext(ctx).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check post: %w", err)
		}
		return domain.ErrConflict
	}

	if err := deleteChildren(ctx, tx, post.ID); err != nil {
		return err
	}
	if err := writeChildren(ctx, tx, post); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	post.Version++
	return nil
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := deleteChildren(ctx, tx, id); err != nil {
		return err
	}

	result, err := sq.Delete(tablePosts).Where(sq.Eq{"id": id}).RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// isBusy reports whether err is SQLite refusing a lock held by another
// connection, including the extended BUSY codes.
func isBusy(err error) bool {
	var serr *msqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code()&0xff == sqlite3.SQLITE_BUSY
}

func scanPost(row sq.RowScanner) (*domain.Post, error) {
	var (
		post     domain.Post
		authorID string
	)
	if err := row.Scan(&post.ID, &authorID, &post.Body, &post.Version, &post.CreatedAt); err != nil {
		return nil, err
	}
	post.AuthorID = domain.UserID(authorID)
	return &post, nil
}

func loadChildren(ctx context.Context, tx *sql.Tx, post *domain.Post) error {
	likeRows, err := sq.Select("user_id", "created_at").
		From(tableLikes).
		Where(sq.Eq{"post_id": post.ID}).
		OrderBy("position").
		RunWith(tx).
		QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("query likes: %w", err)
	}
	defer likeRows.Close()

	post.Likes = nil
	for likeRows.Next() {
		var (
			userID string
			at     time.Time
		)
		if err := likeRows.Scan(&userID, &at); err != nil {
			return fmt.Errorf("scan like: %w", err)
		}
		post.Likes = append(post.Likes, domain.Like{UserID: domain.UserID(userID), CreatedAt: at})
	}
	if err := likeRows.Err(); err != nil {
		return fmt.Errorf("iterate likes: %w", err)
	}

	commentRows, err := sq.Select("id", "post_id", "author_id", "body", "created_at").
		From(tableComments).
		Where(sq.Eq{"post_id": post.ID}).
		OrderBy("position").
		RunWith(tx).
		QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("query comments: %w", err)
	}
	defer commentRows.Close()

	post.Comments = nil
	for commentRows.Next() {
		var (
			c        domain.Comment
			authorID string
		)
		if err := commentRows.Scan(&c.ID, &c.PostID, &authorID, &c.Body, &c.CreatedAt); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		c.AuthorID = domain.UserID(authorID)
		post.Comments = append(post.Comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return fmt.Errorf("iterate comments: %w", err)
	}
	return nil
}

func deleteChildren(ctx context.Context, tx *sql.Tx, postID string) error {
	if _, err := sq.Delete(tableLikes).Where(sq.Eq{"post_id": postID}).RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("delete likes: %w", err)
	}
	if _, err := sq.Delete(tableComments).Where(sq.Eq{"post_id": postID}).RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("delete comments: %w", err)
	}
	return nil
}

func writeChildren(ctx context.Context, tx *sql.Tx, post *domain.Post) error {
	if len(post.Likes) > 0 {
		q := sq.Insert(tableLikes).Columns(likeColumns()...)
		for i, l := range post.Likes {
			q = q.Values(post.ID, string(l.UserID), i, l.CreatedAt.UTC())
		}
		if _, err := q.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert likes: %w", err)
		}
	}

	if len(post.Comments) > 0 {
		q := sq.Insert(tableComments).Columns(commentColumns()...)
		for i, c := range post.Comments {
			q = q.Values(c.ID, post.ID, string(c.AuthorID), c.Body, i, c.CreatedAt.UTC())
		}
		if _, err := q.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert comments: %w", err)
		}
	}
	return nil
}
