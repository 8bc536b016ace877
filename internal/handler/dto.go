package handler

import (
	"time"

	"github.com/msomdec/postwall/internal/domain"
)

// PostDTO is the JSON representation of a post.
type PostDTO struct {
	ID        string       `json:"id"`
	AuthorID  string       `json:"authorId"`
	Body      string       `json:"body"`
	Likes     []LikeDTO    `json:"likes"`
	Comments  []CommentDTO `json:"comments"`
	CreatedAt string       `json:"createdAt"`
}

// LikeDTO is the JSON representation of a like.
type LikeDTO struct {
	UserID    string `json:"userId"`
	CreatedAt string `json:"createdAt"`
}

// CommentDTO is the JSON representation of a comment.
type CommentDTO struct {
	ID        string `json:"id"`
	AuthorID  string `json:"authorId"`
	Body      string `json:"body"`
	CreatedAt string `json:"createdAt"`
}

func toPostDTO(p *domain.Post) PostDTO {
	return PostDTO{
		ID:        p.ID,
		AuthorID:  string(p.AuthorID),
		Body:      p.Body,
		Likes:     toLikeDTOs(p.Likes),
		Comments:  toCommentDTOs(p.Comments),
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func toPostDTOs(posts []domain.Post) []PostDTO {
	dtos := make([]PostDTO, len(posts))
	for i := range posts {
		dtos[i] = toPostDTO(&posts[i])
	}
	return dtos
}

func toLikeDTOs(likes []domain.Like) []LikeDTO {
	dtos := make([]LikeDTO, len(likes))
	for i, l := range likes {
		dtos[i] = LikeDTO{UserID: string(l.UserID), CreatedAt: l.CreatedAt.Format(time.RFC3339)}
	}
	return dtos
}

func toCommentDTOs(comments []domain.Comment) []CommentDTO {
	dtos := make([]CommentDTO, len(comments))
	for i, c := range comments {
		dtos[i] = CommentDTO{
			ID:        c.ID,
			AuthorID:  string(c.AuthorID),
			Body:      c.Body,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}
