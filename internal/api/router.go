package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dailymail/internal/cardservice"
)

// NewRouter creates the chi router mounted at /api.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *cardservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Schedules.
	r.Get("/schedules", h.ListSchedules)
	r.Post("/schedules/{action}/send", h.SendNow)

	// Decks.
	r.Get("/decks", h.ListDecks)
	r.Get("/decks/{deck}/sample", h.Sample)
	r.Get("/decks/{deck}/learned", h.ListLearned)
	r.Post("/decks/{deck}/rows/{row}/learned", h.MarkLearned)
	r.Get("/files", h.ListFiles)

	// Reviews.
	r.Get("/reviews", h.ListReviews)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// NewPublicRouter creates the unauthenticated routes reached from mail links:
// the "mark as learned" target and the review form.
func NewPublicRouter(svc *cardservice.Service) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Get("/learned/{deck}/{row}", h.LearnedPage)
	r.Get("/review", h.ReviewForm)
	r.Post("/reviews", h.SubmitReview)
	return r
}
