package handler

import (
	"net/http"
	"strconv"

	"github.com/msomdec/postwall/internal/domain"
	"github.com/msomdec/postwall/internal/service"
)

// PostHandler handles post, like and comment HTTP requests.
type PostHandler struct {
	posts        *service.PostService
	interactions *service.InteractionService
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(posts *service.PostService, interactions *service.InteractionService) *PostHandler {
	return &PostHandler{posts: posts, interactions: interactions}
}

type bodyRequest struct {
	Body string `json:"body"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// HandleCreate creates a post authored by the caller.
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, domain.ErrMissingCredential)
		return
	}

	var req bodyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	post, err := h.posts.Create(r.Context(), identity.UserID, req.Body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostDTO(post))
}

// HandleList returns posts newest first, paginated by limit and offset.
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	posts, err := h.posts.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostDTOs(posts))
}

// HandleGet returns a single post.
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostDTO(post))
}

// HandleDelete deletes a post owned by the caller.
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, domain.ErrMissingCredential)
		return
	}

	if err := h.interactions.DeletePost(r.Context(), r.PathValue("id"), identity.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "post removed"})
}

// HandleLike adds the caller's like and returns the post's likes.
func (h *PostHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, service.DirectionLike)
}

// HandleUnlike removes the caller's like and returns the post's likes.
func (h *PostHandler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, service.DirectionUnlike)
}

func (h *PostHandler) toggleLike(w http.ResponseWriter, r *http.Request, dir service.Direction) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, domain.ErrMissingCredential)
		return
	}

	likes, err := h.interactions.ToggleLike(r.Context(), r.PathValue("id"), identity.UserID, dir)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLikeDTOs(likes))
}

// HandleAddComment adds a comment by the caller and returns the post's comments.
func (h *PostHandler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, domain.ErrMissingCredential)
		return
	}

	var req bodyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}

	comments, err := h.interactions.AddComment(r.Context(), r.PathValue("id"), identity.UserID, req.Body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentDTOs(comments))
}

// HandleRemoveComment removes one of the caller's comments and returns the
// post's remaining comments.
func (h *PostHandler) HandleRemoveComment(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, domain.ErrMissingCredential)
		return
	}

	comments, err := h.interactions.RemoveComment(r.Context(), r.PathValue("id"), r.PathValue("commentID"), identity.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentDTOs(comments))
}

// queryInt parses an optional non-negative integer query parameter.
// A missing parameter yields 0.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer")
	}
	return n, nil
}
