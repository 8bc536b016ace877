package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/msomdec/postwall/internal/domain"
	"github.com/msomdec/postwall/internal/repository/memory"
	"github.com/msomdec/postwall/internal/repository/sqlite"
	"github.com/msomdec/postwall/internal/service"
)

func newTestInteraction(t *testing.T) (*service.InteractionService, *service.PostService, domain.PostRepository) {
	t.Helper()
	repo := memory.NewPostRepository()
	return service.NewInteractionService(repo, 3), service.NewPostService(repo), repo
}

func createPost(t *testing.T, posts *service.PostService, author domain.UserID) *domain.Post {
	t.Helper()
	post, err := posts.Create(context.Background(), author, "a post")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return post
}

func likers(likes []domain.Like) []domain.UserID {
	ids := make([]domain.UserID, 0, len(likes))
	for _, l := range likes {
		ids = append(ids, l.UserID)
	}
	return ids
}

func TestInteraction_Scenario(t *testing.T) {
	engine, posts, repo := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	likes, err := engine.ToggleLike(ctx, post.ID, "u2", service.DirectionLike)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if got := likers(likes); len(got) != 1 || got[0] != "u2" {
		t.Fatalf("expected likes [u2], got %v", got)
	}

	_, err = engine.ToggleLike(ctx, post.ID, "u2", service.DirectionLike)
	if !errors.Is(err, domain.ErrAlreadyLiked) {
		t.Fatalf("expected ErrAlreadyLiked, got %v", err)
	}
	stored, _ := repo.GetByID(ctx, post.ID)
	if got := likers(stored.Likes); len(got) != 1 || got[0] != "u2" {
		t.Fatalf("expected likes unchanged [u2], got %v", got)
	}

	comments, err := engine.AddComment(ctx, post.ID, "u3", "hi")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if len(comments) != 1 || comments[0].AuthorID != "u3" || comments[0].Body != "hi" {
		t.Fatalf("unexpected comments %+v", comments)
	}
	commentID := comments[0].ID

	_, err = engine.RemoveComment(ctx, post.ID, commentID, "u1")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for post author, got %v", err)
	}

	comments, err = engine.RemoveComment(ctx, post.ID, commentID, "u3")
	if err != nil {
		t.Fatalf("RemoveComment: %v", err)
	}
	if len(comments) != 0 {
		t.Fatalf("expected no comments, got %+v", comments)
	}
}

func TestInteraction_UnlikeNotLiked(t *testing.T) {
	engine, posts, repo := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	if _, err := engine.Like(ctx, post.ID, "u2"); err != nil {
		t.Fatalf("Like: %v", err)
	}
	before, _ := repo.GetByID(ctx, post.ID)

	_, err := engine.Unlike(ctx, post.ID, "u3")
	if !errors.Is(err, domain.ErrNotLiked) {
		t.Fatalf("expected ErrNotLiked, got %v", err)
	}

	after, _ := repo.GetByID(ctx, post.ID)
	if after.Version != before.Version || len(after.Likes) != 1 {
		t.Fatalf("rejected unlike must not mutate: before=%+v after=%+v", before, after)
	}
}

func TestInteraction_LikeThenUnlike(t *testing.T) {
	engine, posts, _ := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	// Authors may like their own posts.
	if _, err := engine.Like(ctx, post.ID, "u1"); err != nil {
		t.Fatalf("Like: %v", err)
	}
	likes, err := engine.Unlike(ctx, post.ID, "u1")
	if err != nil {
		t.Fatalf("Unlike: %v", err)
	}
	if len(likes) != 0 {
		t.Fatalf("expected no likes, got %v", likers(likes))
	}
	if _, err := engine.Unlike(ctx, post.ID, "u1"); !errors.Is(err, domain.ErrNotLiked) {
		t.Fatalf("expected ErrNotLiked on second unlike, got %v", err)
	}
}

func TestInteraction_InvalidDirection(t *testing.T) {
	engine, posts, _ := newTestInteraction(t)
	post := createPost(t, posts, "u1")

	_, err := engine.ToggleLike(context.Background(), post.ID, "u2", service.Direction("love"))
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "direction" {
		t.Fatalf("expected direction ValidationError, got %v", err)
	}
}

func TestInteraction_NotFound(t *testing.T) {
	engine, posts, _ := newTestInteraction(t)
	ctx := context.Background()

	if _, err := engine.Like(ctx, "missing", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("like: expected ErrNotFound, got %v", err)
	}
	if _, err := engine.AddComment(ctx, "missing", "u1", "hi"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("comment: expected ErrNotFound, got %v", err)
	}
	if err := engine.DeletePost(ctx, "missing", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}

	post := createPost(t, posts, "u1")
	if _, err := engine.RemoveComment(ctx, post.ID, "no-such-comment", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("remove comment: expected ErrNotFound, got %v", err)
	}
}

func TestInteraction_AddCommentValidation(t *testing.T) {
	engine, posts, repo := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	long := make([]rune, service.MaxCommentLength+1)
	for i := range long {
		long[i] = 'x'
	}

	for _, body := range []string{"", "   \n\t", string(long)} {
		_, err := engine.AddComment(ctx, post.ID, "u2", body)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Field != "body" {
			t.Fatalf("expected body ValidationError, got %v", err)
		}
	}

	stored, _ := repo.GetByID(ctx, post.ID)
	if len(stored.Comments) != 0 {
		t.Fatalf("rejected comments must not persist, got %+v", stored.Comments)
	}
}

func TestInteraction_CommentsNewestFirstAndTrimmed(t *testing.T) {
	engine, posts, _ := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	if _, err := engine.AddComment(ctx, post.ID, "u2", "first"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	comments, err := engine.AddComment(ctx, post.ID, "u3", "  second  ")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	if len(comments) != 2 || comments[0].Body != "second" || comments[1].Body != "first" {
		t.Fatalf("expected [second first], got %+v", comments)
	}
	if comments[0].ID == comments[1].ID {
		t.Fatal("comment IDs must be unique")
	}
	if comments[0].PostID != post.ID {
		t.Fatalf("expected comment post ID %s, got %s", post.ID, comments[0].PostID)
	}
}

func TestInteraction_AddRemoveRestoresSequence(t *testing.T) {
	engine, posts, _ := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	for _, body := range []string{"a", "b", "c"} {
		if _, err := engine.AddComment(ctx, post.ID, "u2", body); err != nil {
			t.Fatalf("AddComment: %v", err)
		}
	}
	before, err := posts.GetByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	added, err := engine.AddComment(ctx, post.ID, "u4", "temporary")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	restored, err := engine.RemoveComment(ctx, post.ID, added[0].ID, "u4")
	if err != nil {
		t.Fatalf("RemoveComment: %v", err)
	}

	if len(restored) != len(before.Comments) {
		t.Fatalf("expected %d comments, got %d", len(before.Comments), len(restored))
	}
	for i := range restored {
		if restored[i] != before.Comments[i] {
			t.Fatalf("comment %d differs: %+v vs %+v", i, restored[i], before.Comments[i])
		}
	}
}

func TestInteraction_RemoveCommentMiddlePreservesOrder(t *testing.T) {
	engine, posts, _ := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	var comments []domain.Comment
	for _, body := range []string{"a", "b", "c"} {
		var err error
		comments, err = engine.AddComment(ctx, post.ID, domain.UserID("author-"+body), body)
		if err != nil {
			t.Fatalf("AddComment: %v", err)
		}
	}

	remaining, err := engine.RemoveComment(ctx, post.ID, comments[1].ID, "author-b")
	if err != nil {
		t.Fatalf("RemoveComment: %v", err)
	}
	if len(remaining) != 2 || remaining[0].Body != "c" || remaining[1].Body != "a" {
		t.Fatalf("expected [c a], got %+v", remaining)
	}
}

func TestInteraction_ForbiddenLeavesCommentsUnchanged(t *testing.T) {
	engine, posts, repo := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	comments, err := engine.AddComment(ctx, post.ID, "u2", "mine")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	before, _ := repo.GetByID(ctx, post.ID)

	for _, caller := range []domain.UserID{"u1", "u3", "U2", "u2 "} {
		if _, err := engine.RemoveComment(ctx, post.ID, comments[0].ID, caller); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("caller %q: expected ErrForbidden, got %v", caller, err)
		}
	}

	after, _ := repo.GetByID(ctx, post.ID)
	if after.Version != before.Version || len(after.Comments) != 1 {
		t.Fatalf("forbidden removal must not mutate the post")
	}
}

func TestInteraction_DeletePost(t *testing.T) {
	engine, posts, repo := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	if _, err := engine.AddComment(ctx, post.ID, "u2", "hello"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	if err := engine.DeletePost(ctx, post.ID, "u2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-author, got %v", err)
	}
	if _, err := repo.GetByID(ctx, post.ID); err != nil {
		t.Fatalf("post should survive forbidden delete: %v", err)
	}

	if err := engine.DeletePost(ctx, post.ID, "u1"); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if _, err := repo.GetByID(ctx, post.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected post gone, got %v", err)
	}
}

func TestInteraction_EmptyCaller(t *testing.T) {
	engine, posts, _ := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	if _, err := engine.Like(ctx, post.ID, ""); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if _, err := engine.AddComment(ctx, post.ID, "", "x"); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if err := engine.DeletePost(ctx, post.ID, ""); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestInteraction_ConcurrentLikesSameCaller(t *testing.T) {
	engine, posts, repo := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	const n = 50
	var (
		wg           sync.WaitGroup
		successes    atomic.Int32
		alreadyLiked atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Like(ctx, post.ID, "u2")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrAlreadyLiked):
				alreadyLiked.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 || alreadyLiked.Load() != n-1 {
		t.Fatalf("expected 1 success and %d AlreadyLiked, got %d and %d", n-1, successes.Load(), alreadyLiked.Load())
	}

	stored, _ := repo.GetByID(ctx, post.ID)
	if len(stored.Likes) != 1 || stored.Likes[0].UserID != "u2" {
		t.Fatalf("expected u2 exactly once, got %v", likers(stored.Likes))
	}
}

func TestInteraction_ConcurrentDistinctCallers(t *testing.T) {
	engine, posts, repo := newTestInteraction(t)
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := domain.UserID(string(rune('A' + i)))
			if _, err := engine.Like(ctx, post.ID, caller); err != nil {
				t.Errorf("like %s: %v", caller, err)
			}
			if _, err := engine.AddComment(ctx, post.ID, caller, "hi"); err != nil {
				t.Errorf("comment %s: %v", caller, err)
			}
		}(i)
	}
	wg.Wait()

	stored, _ := repo.GetByID(ctx, post.ID)
	if len(stored.Likes) != n || len(stored.Comments) != n {
		t.Fatalf("lost update: %d likes, %d comments", len(stored.Likes), len(stored.Comments))
	}
}

// conflictingRepo simulates a writer in another process: each Save bumps the
// stored version behind the engine's back until conflicts run out.
type conflictingRepo struct {
	*memory.PostRepository
	conflicts int
	saves     atomic.Int32
}

func (r *conflictingRepo) Save(ctx context.Context, post *domain.Post) error {
	r.saves.Add(1)
	if r.conflicts > 0 {
		r.conflicts--
		current, err := r.PostRepository.GetByID(ctx, post.ID)
		if err != nil {
			return err
		}
		if err := r.PostRepository.Save(ctx, current); err != nil {
			return err
		}
	}
	return r.PostRepository.Save(ctx, post)
}

func TestInteraction_RetriesOnConflict(t *testing.T) {
	repo := &conflictingRepo{PostRepository: memory.NewPostRepository(), conflicts: 2}
	engine := service.NewInteractionService(repo, 3)
	post := createPost(t, service.NewPostService(repo), "u1")

	likes, err := engine.Like(context.Background(), post.ID, "u2")
	if err != nil {
		t.Fatalf("Like: %v", err)
	}
	if len(likes) != 1 {
		t.Fatalf("expected one like, got %v", likers(likes))
	}
	if got := repo.saves.Load(); got != 3 {
		t.Fatalf("expected 3 save attempts, got %d", got)
	}
}

func TestInteraction_ConflictSurfacesAfterRetries(t *testing.T) {
	repo := &conflictingRepo{PostRepository: memory.NewPostRepository(), conflicts: 100}
	engine := service.NewInteractionService(repo, 2)
	post := createPost(t, service.NewPostService(repo), "u1")

	_, err := engine.Like(context.Background(), post.ID, "u2")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := repo.saves.Load(); got != 3 {
		t.Fatalf("expected 1 attempt plus 2 retries, got %d", got)
	}

	stored, _ := repo.GetByID(context.Background(), post.ID)
	if len(stored.Likes) != 0 {
		t.Fatalf("failed like must not persist, got %v", likers(stored.Likes))
	}
}

func TestInteraction_CancelledContext(t *testing.T) {
	engine, posts, repo := newTestInteraction(t)
	post := createPost(t, posts, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Like(ctx, post.ID, "u2"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), post.ID)
	if len(stored.Likes) != 0 {
		t.Fatal("cancelled like must not persist")
	}
}

func TestInteraction_SQLiteStore(t *testing.T) {
	db := newTestDB(t)
	engine := service.NewInteractionService(db.Posts(), 3)
	posts := service.NewPostService(db.Posts())
	ctx := context.Background()
	post := createPost(t, posts, "u1")

	const n = 10
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Like(ctx, post.ID, "u2"); err == nil {
				successes.Add(1)
			} else if !errors.Is(err, domain.ErrAlreadyLiked) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 {
		t.Fatalf("expected exactly one successful like, got %d", successes.Load())
	}

	comments, err := engine.AddComment(ctx, post.ID, "u3", "hi")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if _, err := engine.RemoveComment(ctx, post.ID, comments[0].ID, "u1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := engine.DeletePost(ctx, post.ID, "u1"); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
}

// openSharedEngines returns n engines, each with its own database handle on
// the same SQLite file, as separate processes would have.
func openSharedEngines(t *testing.T, n int) ([]*service.InteractionService, *sqlite.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shared.db")

	var (
		engines []*service.InteractionService
		first   *sqlite.DB
	)
	for i := 0; i < n; i++ {
		db, err := sqlite.New(path)
		if err != nil {
			t.Fatalf("New handle %d: %v", i, err)
		}
		t.Cleanup(func() { db.Close() })
		if i == 0 {
			if err := db.Migrate(context.Background()); err != nil {
				t.Fatalf("Migrate: %v", err)
			}
			first = db
		}
		engines = append(engines, service.NewInteractionService(db.Posts(), 3))
	}
	return engines, first
}

func TestInteraction_SeparateHandlesSameCaller(t *testing.T) {
	engines, db := openSharedEngines(t, 3)
	ctx := context.Background()
	post := createPost(t, service.NewPostService(db.Posts()), "u1")

	const n = 40
	var (
		wg           sync.WaitGroup
		successes    atomic.Int32
		alreadyLiked atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(engine *service.InteractionService) {
			defer wg.Done()
			_, err := engine.Like(ctx, post.ID, "u2")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrAlreadyLiked):
				alreadyLiked.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(engines[i%len(engines)])
	}
	wg.Wait()

	if successes.Load() != 1 || alreadyLiked.Load() != n-1 {
		t.Fatalf("expected 1 success and %d AlreadyLiked, got %d and %d", n-1, successes.Load(), alreadyLiked.Load())
	}

	stored, err := db.Posts().GetByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(stored.Likes) != 1 || stored.Likes[0].UserID != "u2" {
		t.Fatalf("expected u2 exactly once, got %v", likers(stored.Likes))
	}
}

func TestInteraction_SeparateHandlesDistinctCallers(t *testing.T) {
	engines, db := openSharedEngines(t, 2)
	ctx := context.Background()
	post := createPost(t, service.NewPostService(db.Posts()), "u1")

	const n = 6
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := domain.UserID(fmt.Sprintf("user-%d", i))
			if _, err := engines[i%len(engines)].AddComment(ctx, post.ID, caller, "hi"); err != nil {
				t.Errorf("comment %s: %v", caller, err)
			}
		}(i)
	}
	wg.Wait()

	stored, err := db.Posts().GetByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(stored.Comments) != n {
		t.Fatalf("lost update: expected %d comments, got %d", n, len(stored.Comments))
	}
}
