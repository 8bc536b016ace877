package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/msomdec/postwall/internal/domain"
)

const (
	// MaxPostLength is the longest accepted post body, in runes.
	MaxPostLength = 5000

	DefaultListLimit = 20
	MaxListLimit     = 100
)

// PostService handles post creation and reads.
type PostService struct {
	posts domain.PostRepository
}

// NewPostService creates a new PostService.
func NewPostService(posts domain.PostRepository) *PostService {
	return &PostService{posts: posts}
}

// Create creates a post authored by caller.
func (s *PostService) Create(ctx context.Context, caller domain.UserID, body string) (*domain.Post, error) {
	if caller == "" {
		return nil, domain.ErrMissingCredential
	}

	body, err := validateText("body", body, MaxPostLength)
	if err != nil {
		return nil, err
	}

	post := &domain.Post{
		ID:        uuid.NewString(),
		AuthorID:  caller,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// GetByID returns a post by ID.
func (s *PostService) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	return s.posts.GetByID(ctx, id)
}

// List returns posts newest first. A non-positive limit selects the default;
// limits above MaxListLimit are capped.
func (s *PostService) List(ctx context.Context, limit, offset int) ([]domain.Post, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)

	posts, err := s.posts.List(ctx, domain.ListPostsParams{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// validateText trims s and checks it is non-empty and at most maxRunes long.
func validateText(field, s string, maxRunes int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", domain.NewValidationError(field, "is required")
	}
	if utf8.RuneCountInString(s) > maxRunes {
		return "", domain.NewValidationError(field, fmt.Sprintf("must be at most %d characters", maxRunes))
	}
	return s, nil
}
