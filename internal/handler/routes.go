package handler

import (
	"net/http"

	"github.com/msomdec/postwall/internal/service"
)

// RegisterRoutes sets up all HTTP routes on the given mux. Every /api route
// requires a credential in tokenHeader; mutating routes are also rate limited.
func RegisterRoutes(mux *http.ServeMux, verifier Verifier, tokenHeader string, limiter Limiter, posts *service.PostService, interactions *service.InteractionService) {
	h := NewPostHandler(posts, interactions)

	read := func(fn http.HandlerFunc) http.Handler {
		return RequireAuth(verifier, tokenHeader, fn)
	}
	write := func(fn http.HandlerFunc) http.Handler {
		return RequireAuth(verifier, tokenHeader, RateLimit(limiter, fn))
	}

	mux.HandleFunc("GET /healthz", HandleHealthz)

	mux.Handle("GET /api/posts", read(h.HandleList))
	mux.Handle("POST /api/posts", write(h.HandleCreate))
	mux.Handle("GET /api/posts/{id}", read(h.HandleGet))
	mux.Handle("DELETE /api/posts/{id}", write(h.HandleDelete))
	mux.Handle("PUT /api/posts/{id}/like", write(h.HandleLike))
	mux.Handle("PUT /api/posts/{id}/unlike", write(h.HandleUnlike))
	mux.Handle("POST /api/posts/{id}/comments", write(h.HandleAddComment))
	mux.Handle("DELETE /api/posts/{id}/comments/{commentID}", write(h.HandleRemoveComment))
}
