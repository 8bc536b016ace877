// Package memory is an in-process Post Store. It holds no data across
// restarts and is meant for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/msomdec/postwall/internal/domain"
)

// DB implements domain.Database over process memory.
type DB struct {
	posts *PostRepository
}

// New returns an empty in-memory database.
func New() *DB {
	return &DB{posts: NewPostRepository()}
}

// Migrate is a no-op; there is no schema.
func (db *DB) Migrate(context.Context) error { return nil }

// Posts returns the post repository.
func (db *DB) Posts() domain.PostRepository { return db.posts }

// Close is a no-op. Stored posts stay readable.
func (db *DB) Close() error { return nil }

// PostRepository implements domain.PostRepository with a guarded map.
// Stored posts are copied on the way in and out.
type PostRepository struct {
	mu    sync.RWMutex
	posts map[string]*domain.Post
}

var _ domain.PostRepository = (*PostRepository)(nil)

// NewPostRepository creates an empty PostRepository.
func NewPostRepository() *PostRepository {
	return &PostRepository{posts: make(map[string]*domain.Post)}
}

func (r *PostRepository) Create(ctx context.Context, post *domain.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.posts[post.ID]; ok {
		return fmt.Errorf("post %s already exists", post.ID)
	}
	post.Version = 1
	r.posts[post.ID] = post.Clone()
	return nil
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.posts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PostRepository) List(ctx context.Context, params domain.ListPostsParams) ([]domain.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	posts := make([]domain.Post, 0, len(r.posts))
	for _, p := range r.posts {
		posts = append(posts, *p.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	if params.Offset >= len(posts) {
		return []domain.Post{}, nil
	}
	posts = posts[params.Offset:]
	if params.Limit > 0 && params.Limit < len(posts) {
		posts = posts[:params.Limit]
	}
	return posts, nil
}

func (r *PostRepository) Save(ctx context.Context, post *domain.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.posts[post.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != post.Version {
		return domain.ErrConflict
	}

	post.Version++
	r.posts[post.ID] = post.Clone()
	return nil
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.posts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.posts, id)
	return nil
}
