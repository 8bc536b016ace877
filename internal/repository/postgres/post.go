package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/msomdec/postwall/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostRepository implements domain.PostRepository on PostgreSQL.
type PostRepository struct {
	pool *pgxpool.Pool
}

var _ domain.PostRepository = (*PostRepository)(nil)

// NewPostRepository creates a PostRepository on pool.
func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

func (r *PostRepository) Create(ctx context.Context, post *domain.Post) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query, args, err := psql.Insert("posts").
			Columns("id", "author_id", "body", "version", "created_at").
			Values(post.ID, string(post.AuthorID), post.Body, int64(1), post.CreatedAt.UTC()).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
		return writeChildren(ctx, tx, post)
	})
	if err != nil {
		return err
	}

	post.Version = 1
	return nil
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	var post *domain.Post
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		query, args, err := psql.Select("id", "author_id", "body", "version", "created_at").
			From("posts").
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build select: %w", err)
		}

		post, err = scanPost(tx.QueryRow(ctx, query, args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("get post: %w", err)
		}
		return loadChildren(ctx, tx, post)
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (r *PostRepository) List(ctx context.Context, params domain.ListPostsParams) ([]domain.Post, error) {
	posts := make([]domain.Post, 0)
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		q := psql.Select("id", "author_id", "body", "version", "created_at").
			From("posts").
			OrderBy("created_at DESC", "id DESC")
		if params.Limit > 0 {
			q = q.Limit(uint64(params.Limit))
		}
		if params.Offset > 0 {
			q = q.Offset(uint64(params.Offset))
		}
		query, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build select: %w", err)
		}

		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list posts: %w", err)
		}
		for rows.Next() {
			post, err := scanPost(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan post: %w", err)
			}
			posts = append(posts, *post)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate posts: %w", err)
		}

		for i := range posts {
			if err := loadChildren(ctx, tx, &posts[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// Save bumps the stored version only if it still equals post.Version and
// rewrites the likes and comments in the same transaction.
func (r *PostRepository) Save(ctx context.Context, post *domain.Post) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query, args, err := psql.Update("posts").
			Set("version", post.Version+1).
			Where(sq.Eq{"id": post.ID, "version": post.Version}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)", post.ID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check post: %w", err)
			}
			if !exists {
				return domain.ErrNotFound
			}
			return domain.ErrConflict
		}

		if err := deleteChildren(ctx, tx, post.ID); err != nil {
			return err
		}
		return writeChildren(ctx, tx, post)
	})
	if err != nil {
		return err
	}

	post.Version++
	return nil
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := deleteChildren(ctx, tx, id); err != nil {
			return err
		}

		query, args, err := psql.Delete("posts").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func scanPost(row pgx.Row) (*domain.Post, error) {
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

func loadChildren(ctx context.Context, tx pgx.Tx, post *domain.Post) error {
	rows, err := tx.Query(ctx,
		"SELECT user_id, created_at FROM post_likes WHERE post_id = $1 ORDER BY position", post.ID)
	if err != nil {
		return fmt.Errorf("query likes: %w", err)
	}
	likes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Like, error) {
		var (
			userID string
			at     time.Time
		)
		err := row.Scan(&userID, &at)
		return domain.Like{UserID: domain.UserID(userID), CreatedAt: at}, err
	})
	if err != nil {
		return fmt.Errorf("scan likes: %w", err)
	}

	rows, err = tx.Query(ctx,
		"SELECT id, post_id, author_id, body, created_at FROM comments WHERE post_id = $1 ORDER BY position", post.ID)
	if err != nil {
		return fmt.Errorf("query comments: %w", err)
	}
	comments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Comment, error) {
		var (
			c        domain.Comment
			authorID string
		)
		err := row.Scan(&c.ID, &c.PostID, &authorID, &c.Body, &c.CreatedAt)
		c.AuthorID = domain.UserID(authorID)
		return c, err
	})
	if err != nil {
		return fmt.Errorf("scan comments: %w", err)
	}

	if len(likes) > 0 {
		post.Likes = likes
	}
	if len(comments) > 0 {
		post.Comments = comments
	}
	return nil
}

func deleteChildren(ctx context.Context, tx pgx.Tx, postID string) error {
	if _, err := tx.Exec(ctx, "DELETE FROM post_likes WHERE post_id = $1", postID); err != nil {
		return fmt.Errorf("delete likes: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM comments WHERE post_id = $1", postID); err != nil {
		return fmt.Errorf("delete comments: %w", err)
	}
	return nil
}

func writeChildren(ctx context.Context, tx pgx.Tx, post *domain.Post) error {
	if len(post.Likes) > 0 {
		q := psql.Insert("post_likes").Columns("post_id", "user_id", "position", "created_at")
		for i, l := range post.Likes {
			q = q.Values(post.ID, string(l.UserID), int32(i), l.CreatedAt.UTC())
		}
		query, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build like insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert likes: %w", err)
		}
	}

	if len(post.Comments) > 0 {
		q := psql.Insert("comments").Columns("id", "post_id", "author_id", "body", "position", "created_at")
		for i, c := range post.Comments {
			q = q.Values(c.ID, post.ID, string(c.AuthorID), c.Body, int32(i), c.CreatedAt.UTC())
		}
		query, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build comment insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert comments: %w", err)
		}
	}
	return nil
}
