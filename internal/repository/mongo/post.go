package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msomdec/postwall/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type postDocument struct {
	ID        string            `bson:"_id"`
	AuthorID  string            `bson:"author_id"`
	Body      string            `bson:"body"`
	Likes     []likeDocument    `bson:"likes"`
	Comments  []commentDocument `bson:"comments"`
	Version   int64             `bson:"version"`
	CreatedAt time.Time         `bson:"created_at"`
}

type likeDocument struct {
	UserID    string    `bson:"user_id"`
	CreatedAt time.Time `bson:"created_at"`
}

type commentDocument struct {
	ID        string    `bson:"_id"`
	AuthorID  string    `bson:"author_id"`
	Body      string    `bson:"body"`
	CreatedAt time.Time `bson:"created_at"`
}

func toDocument(p *domain.Post, version int64) postDocument {
	doc := postDocument{
		ID:        p.ID,
		AuthorID:  string(p.AuthorID),
		Body:      p.Body,
		Likes:     make([]likeDocument, 0, len(p.Likes)),
		Comments:  make([]commentDocument, 0, len(p.Comments)),
		Version:   version,
		CreatedAt: p.CreatedAt.UTC(),
	}
	for _, l := range p.Likes {
		doc.Likes = append(doc.Likes, likeDocument{UserID: string(l.UserID), CreatedAt: l.CreatedAt.UTC()})
	}
	for _, c := range p.Comments {
		doc.Comments = append(doc.Comments, commentDocument{
			ID:        c.ID,
			AuthorID:  string(c.AuthorID),
			Body:      c.Body,
			CreatedAt: c.CreatedAt.UTC(),
		})
	}
	return doc
}

func (d postDocument) toDomain() *domain.Post {
	p := &domain.Post{
		ID:        d.ID,
		AuthorID:  domain.UserID(d.AuthorID),
		Body:      d.Body,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
	}
	for _, l := range d.Likes {
		p.Likes = append(p.Likes, domain.Like{UserID: domain.UserID(l.UserID), CreatedAt: l.CreatedAt})
	}
	for _, c := range d.Comments {
		p.Comments = append(p.Comments, domain.Comment{
			ID:        c.ID,
			PostID:    d.ID,
			AuthorID:  domain.UserID(c.AuthorID),
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
		})
	}
	return p
}

// PostRepository implements domain.PostRepository on a MongoDB collection.
type PostRepository struct {
	coll *mongo.Collection
}

var _ domain.PostRepository = (*PostRepository)(nil)

// NewPostRepository creates a PostRepository storing posts in coll.
func NewPostRepository(coll *mongo.Collection) *PostRepository {
	return &PostRepository{coll: coll}
}

func (r *PostRepository) Create(ctx context.Context, post *domain.Post) error {
	if _, err := r.coll.InsertOne(ctx, toDocument(post, 1)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("post %s already exists", post.ID)
		}
		return fmt.Errorf("insert post: %w", err)
	}
	post.Version = 1
	return nil
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	var doc postDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find post: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *PostRepository) List(ctx context.Context, params domain.ListPostsParams) ([]domain.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if params.Limit > 0 {
		opts.SetLimit(int64(params.Limit))
	}
	if params.Offset > 0 {
		opts.SetSkip(int64(params.Offset))
	}

	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}

	var docs []postDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}

	posts := make([]domain.Post, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, *d.toDomain())
	}
	return posts, nil
}

// Save replaces the document only while its version still equals
// post.Version, so likes, comments and the version change together.
func (r *PostRepository) Save(ctx context.Context, post *domain.Post) error {
	filter := bson.M{"_id": post.ID, "version": post.Version}
	res, err := r.coll.ReplaceOne(ctx, filter, toDocument(post, post.Version+1))
	if err != nil {
		return fmt.Errorf("replace post: %w", err)
	}

	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": post.ID})
		if err != nil {
			return fmt.Errorf("check post: %w", err)
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}

	post.Version++
	return nil
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
