// Package repotest holds the behavioural tests every domain.PostRepository
// implementation must pass.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/msomdec/postwall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewPost returns an unsaved post authored by author.
func NewPost(author domain.UserID, body string) *domain.Post {
	return &domain.Post{
		ID:        uuid.NewString(),
		AuthorID:  author,
		Body:      body,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// RunPostRepository runs the contract suite against repositories produced by
// newRepo. Each subtest gets a fresh repository.
func RunPostRepository(t *testing.T, newRepo func(t *testing.T) domain.PostRepository) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		post := NewPost("u1", "hello")
		require.NoError(t, repo.Create(ctx, post))
		assert.Equal(t, int64(1), post.Version)

		got, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, post.ID, got.ID)
		assert.Equal(t, domain.UserID("u1"), got.AuthorID)
		assert.Equal(t, "hello", got.Body)
		assert.Equal(t, int64(1), got.Version)
		assert.Empty(t, got.Likes)
		assert.Empty(t, got.Comments)
		assert.True(t, post.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", post.CreatedAt, got.CreatedAt)
	})

	t.Run("CreateDuplicateKeepsVersion", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		post := NewPost("u1", "hello")
		require.NoError(t, repo.Create(ctx, post))

		dup := NewPost("u2", "again")
		dup.ID = post.ID
		require.Error(t, repo.Create(ctx, dup))
		assert.Equal(t, int64(0), dup.Version, "failed create must not stamp a version")

		got, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.UserID("u1"), got.AuthorID)
	})

	t.Run("GetMissing", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.GetByID(context.Background(), uuid.NewString())
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("SaveRoundTripsLikesAndComments", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		post := NewPost("u1", "body")
		require.NoError(t, repo.Create(ctx, post))

		now := time.Now().UTC().Truncate(time.Millisecond)
		next := post.WithLike("u2", now).WithLike("u3", now.Add(time.Second))
		next = next.WithComment(domain.Comment{ID: uuid.NewString(), PostID: post.ID, AuthorID: "u4", Body: "first", CreatedAt: now})
		next = next.WithComment(domain.Comment{ID: uuid.NewString(), PostID: post.ID, AuthorID: "u5", Body: "second", CreatedAt: now.Add(time.Second)})

		require.NoError(t, repo.Save(ctx, next))
		assert.Equal(t, int64(2), next.Version)

		got, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		require.Len(t, got.Likes, 2)
		assert.Equal(t, domain.UserID("u3"), got.Likes[0].UserID)
		assert.Equal(t, domain.UserID("u2"), got.Likes[1].UserID)
		require.Len(t, got.Comments, 2)
		assert.Equal(t, "second", got.Comments[0].Body)
		assert.Equal(t, domain.UserID("u5"), got.Comments[0].AuthorID)
		assert.Equal(t, post.ID, got.Comments[0].PostID)
		assert.Equal(t, "first", got.Comments[1].Body)

		trimmed := got.WithoutComment(got.Comments[0].ID).WithoutLike("u2")
		require.NoError(t, repo.Save(ctx, trimmed))

		got, err = repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		require.Len(t, got.Likes, 1)
		assert.Equal(t, domain.UserID("u3"), got.Likes[0].UserID)
		require.Len(t, got.Comments, 1)
		assert.Equal(t, "first", got.Comments[0].Body)
	})

	t.Run("SaveStaleVersionConflicts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		post := NewPost("u1", "body")
		require.NoError(t, repo.Create(ctx, post))

		a, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		b, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)

		require.NoError(t, repo.Save(ctx, a.WithLike("u2", time.Now().UTC())))

		err = repo.Save(ctx, b.WithLike("u3", time.Now().UTC()))
		require.ErrorIs(t, err, domain.ErrConflict)

		got, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		require.Len(t, got.Likes, 1, "rejected save must leave no trace")
		assert.Equal(t, domain.UserID("u2"), got.Likes[0].UserID)
	})

	t.Run("SaveMissing", func(t *testing.T) {
		repo := newRepo(t)

		err := repo.Save(context.Background(), NewPost("u1", "ghost"))
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ConcurrentSavesCommitOnce", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		post := NewPost("u1", "body")
		require.NoError(t, repo.Create(ctx, post))

		const n = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			committed int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				next := post.WithLike(domain.UserID(fmt.Sprintf("user-%d", i)), time.Now().UTC())
				err := repo.Save(ctx, next)
				if err == nil {
					mu.Lock()
					committed++
					mu.Unlock()
					return
				}
				if !errors.Is(err, domain.ErrConflict) {
					t.Errorf("unexpected save error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, committed)

		got, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		assert.Len(t, got.Likes, 1)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("DeleteRemovesComments", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		post := NewPost("u1", "body")
		require.NoError(t, repo.Create(ctx, post))
		next := post.WithComment(domain.Comment{ID: uuid.NewString(), PostID: post.ID, AuthorID: "u2", Body: "c", CreatedAt: time.Now().UTC()})
		require.NoError(t, repo.Save(ctx, next))

		require.NoError(t, repo.Delete(ctx, post.ID))

		_, err := repo.GetByID(ctx, post.ID)
		require.ErrorIs(t, err, domain.ErrNotFound)

		err = repo.Delete(ctx, post.ID)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		base := time.Now().UTC().Truncate(time.Millisecond)
		var ids []string
		for i := 0; i < 5; i++ {
			p := NewPost("u1", fmt.Sprintf("post %d", i))
			p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, repo.Create(ctx, p))
			ids = append(ids, p.ID)
		}

		posts, err := repo.List(ctx, domain.ListPostsParams{Limit: 2})
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, ids[4], posts[0].ID)
		assert.Equal(t, ids[3], posts[1].ID)

		posts, err = repo.List(ctx, domain.ListPostsParams{Limit: 10, Offset: 3})
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, ids[1], posts[0].ID)
		assert.Equal(t, ids[0], posts[1].ID)
	})
}
