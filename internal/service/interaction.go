package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/msomdec/postwall/internal/domain"
)

// Direction selects the like transition applied by ToggleLike.
type Direction string

const (
	DirectionLike   Direction = "like"
	DirectionUnlike Direction = "unlike"
)

// MaxCommentLength is the longest accepted comment body, in runes.
const MaxCommentLength = 2000

// InteractionService applies like, comment and delete transitions to a
// single post. Each operation is read, validated and transformed into a
// new post value, then committed with one compare-and-commit save. Guards
// are evaluated against the state that is actually committed: mutations
// on one post are serialised in-process, and a version conflict from
// another writer re-runs the cycle up to the configured number of retries.
type InteractionService struct {
	posts   domain.PostRepository
	locks   *postLocks
	retries int
	now     func() time.Time
	newID   func() string
}

// NewInteractionService creates an InteractionService. retries is the number
// of additional attempts made after a commit conflict and must be at least 1.
func NewInteractionService(posts domain.PostRepository, retries int) *InteractionService {
	return &InteractionService{
		posts:   posts,
		locks:   newPostLocks(),
		retries: max(retries, 1),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// ToggleLike adds or removes the caller's like and returns the updated likes.
// Liking twice yields domain.ErrAlreadyLiked; unliking a post the caller has
// not liked yields domain.ErrNotLiked. Neither mutates the post.
func (s *InteractionService) ToggleLike(ctx context.Context, postID string, caller domain.UserID, dir Direction) ([]domain.Like, error) {
	if caller == "" {
		return nil, domain.ErrMissingCredential
	}

	var transform func(*domain.Post) (*domain.Post, error)
	switch dir {
	case DirectionLike:
		transform = func(p *domain.Post) (*domain.Post, error) {
			if p.LikedBy(caller) {
				return nil, domain.ErrAlreadyLiked
			}
			return p.WithLike(caller, s.now()), nil
		}
	case DirectionUnlike:
		transform = func(p *domain.Post) (*domain.Post, error) {
			if !p.LikedBy(caller) {
				return nil, domain.ErrNotLiked
			}
			return p.WithoutLike(caller), nil
		}
	default:
		return nil, domain.NewValidationError("direction", "must be like or unlike")
	}

	post, err := s.mutate(ctx, postID, transform)
	if err != nil {
		return nil, err
	}
	return post.Likes, nil
}

// Like is ToggleLike with DirectionLike.
func (s *InteractionService) Like(ctx context.Context, postID string, caller domain.UserID) ([]domain.Like, error) {
	return s.ToggleLike(ctx, postID, caller, DirectionLike)
}

// Unlike is ToggleLike with DirectionUnlike.
func (s *InteractionService) Unlike(ctx context.Context, postID string, caller domain.UserID) ([]domain.Like, error) {
	return s.ToggleLike(ctx, postID, caller, DirectionUnlike)
}

// AddComment prepends a new comment by caller and returns the updated comments.
// Anyone authenticated may comment.
func (s *InteractionService) AddComment(ctx context.Context, postID string, caller domain.UserID, body string) ([]domain.Comment, error) {
	if caller == "" {
		return nil, domain.ErrMissingCredential
	}

	body, err := validateText("body", body, MaxCommentLength)
	if err != nil {
		return nil, err
	}

	comment := domain.Comment{
		ID:        s.newID(),
		PostID:    postID,
		AuthorID:  caller,
		Body:      body,
		CreatedAt: s.now(),
	}

	post, err := s.mutate(ctx, postID, func(p *domain.Post) (*domain.Post, error) {
		return p.WithComment(comment), nil
	})
	if err != nil {
		return nil, err
	}
	return post.Comments, nil
}

// RemoveComment deletes a comment and returns the updated comments.
// Only the comment's own author may remove it; the post's author may not.
func (s *InteractionService) RemoveComment(ctx context.Context, postID, commentID string, caller domain.UserID) ([]domain.Comment, error) {
	if caller == "" {
		return nil, domain.ErrMissingCredential
	}

	post, err := s.mutate(ctx, postID, func(p *domain.Post) (*domain.Post, error) {
		i := p.CommentIndex(commentID)
		if i < 0 {
			return nil, fmt.Errorf("comment %s: %w", commentID, domain.ErrNotFound)
		}
		if p.Comments[i].AuthorID != caller {
			return nil, domain.ErrForbidden
		}
		return p.WithoutComment(commentID), nil
	})
	if err != nil {
		return nil, err
	}
	return post.Comments, nil
}

// DeletePost removes a post with all its comments. Only the post's author may
// delete it.
func (s *InteractionService) DeletePost(ctx context.Context, postID string, caller domain.UserID) error {
	if caller == "" {
		return domain.ErrMissingCredential
	}

	unlock := s.locks.lock(postID)
	defer unlock()

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("get post: %w", err)
	}
	if post.AuthorID != caller {
		return domain.ErrForbidden
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// mutate runs load, transform and compare-and-commit for one post while
// holding its lock. transform must not modify its argument.
func (s *InteractionService) mutate(ctx context.Context, postID string, transform func(*domain.Post) (*domain.Post, error)) (*domain.Post, error) {
	unlock := s.locks.lock(postID)
	defer unlock()

	var conflict error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, err := s.posts.GetByID(ctx, postID)
		if err != nil {
			return nil, fmt.Errorf("get post: %w", err)
		}

		next, err := transform(current)
		if err != nil {
			return nil, err
		}

		err = s.posts.Save(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("save post: %w", err)
		}

		conflict = err
		slog.DebugContext(ctx, "post commit conflict, retrying", "post_id", postID, "attempt", attempt+1)
	}

	return nil, fmt.Errorf("commit post %s after %d attempts: %w", postID, s.retries+1, conflict)
}
