package domain

import (
	"context"
	"time"
)

// Post is a user-authored entry with its likes and comments.
// ID and AuthorID never change after creation.
type Post struct {
	ID        string
	AuthorID  UserID
	Body      string
	Likes     []Like    // newest first, at most one per user
	Comments  []Comment // newest first
	Version   int64     // bumped by every committed save
	CreatedAt time.Time
}

// Like records a single user's like on a post.
type Like struct {
	UserID    UserID
	CreatedAt time.Time
}

// Comment is owned by its parent post and removable only by its author.
type Comment struct {
	ID        string
	PostID    string
	AuthorID  UserID
	Body      string
	CreatedAt time.Time
}

// Clone returns a deep copy of the post so callers can derive a new value
// without aliasing the original slices.
func (p *Post) Clone() *Post {
	c := *p
	c.Likes = append([]Like(nil), p.Likes...)
	c.Comments = append([]Comment(nil), p.Comments...)
	return &c
}

// LikedBy reports whether userID is in the post's like set.
func (p *Post) LikedBy(userID UserID) bool {
	return p.likeIndex(userID) >= 0
}

func (p *Post) likeIndex(userID UserID) int {
	for i, l := range p.Likes {
		if l.UserID == userID {
			return i
		}
	}
	return -1
}

// CommentIndex returns the position of the comment with the given ID, or -1.
func (p *Post) CommentIndex(commentID string) int {
	for i, c := range p.Comments {
		if c.ID == commentID {
			return i
		}
	}
	return -1
}

// WithLike returns a copy of the post with userID prepended to Likes.
func (p *Post) WithLike(userID UserID, at time.Time) *Post {
	c := p.Clone()
	c.Likes = append([]Like{{UserID: userID, CreatedAt: at}}, c.Likes...)
	return c
}

// WithoutLike returns a copy of the post with userID's like removed.
func (p *Post) WithoutLike(userID UserID) *Post {
	c := p.Clone()
	if i := c.likeIndex(userID); i >= 0 {
		c.Likes = append(c.Likes[:i], c.Likes[i+1:]...)
	}
	return c
}

// WithComment returns a copy of the post with comment at the head of Comments.
func (p *Post) WithComment(comment Comment) *Post {
	c := p.Clone()
	c.Comments = append([]Comment{comment}, c.Comments...)
	return c
}

// WithoutComment returns a copy of the post with the given comment removed.
// The relative order of the remaining comments is preserved.
func (p *Post) WithoutComment(commentID string) *Post {
	c := p.Clone()
	if i := c.CommentIndex(commentID); i >= 0 {
		c.Comments = append(c.Comments[:i], c.Comments[i+1:]...)
	}
	return c
}

// ListPostsParams controls post listing. Results are newest first.
type ListPostsParams struct {
	Limit  int
	Offset int
}

// PostRepository is the Post Store contract.
//
// Save is compare-and-commit: it succeeds only when the stored version
// equals post.Version, and on success increments post.Version. A stale
// version yields ErrConflict, a missing post ErrNotFound. Save and Delete
// apply all-or-nothing.
type PostRepository interface {
	Create(ctx context.Context, post *Post) error
	GetByID(ctx context.Context, id string) (*Post, error)
	List(ctx context.Context, params ListPostsParams) ([]Post, error)
	Save(ctx context.Context, post *Post) error
	Delete(ctx context.Context, id string) error
}
