package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dailymail/internal/apperr"
	"github.com/starford/dailymail/internal/cardservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *cardservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *cardservice.Service) *Handler {
	return &Handler{svc: svc}
}

func rowParam(r *http.Request) (int, error) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil {
		return 0, fmt.Errorf("row must be an integer: %w", apperr.ErrInvalidInput)
	}
	return row, nil
}

// ListSchedules handles GET /api/schedules.
//
//	@Summary		List scheduled actions with their last fire date
//	@Tags			schedules
//	@Produce		json
//	@Success		200	{object}	ScheduleListResponse
//	@Security		BearerAuth
//	@Router			/schedules [get]
func (h *Handler) ListSchedules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ScheduleListResponse{Schedules: h.svc.Schedules()})
}

// SendNow handles POST /api/schedules/{action}/send.
//
//	@Summary		Send an action's digest immediately
//	@Description	Does not change the action's once-per-day watermark.
//	@Tags			schedules
//	@Produce		json
//	@Param			action	path		string	true	"Action name"
//	@Success		200		{object}	SendResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/schedules/{action}/send [post]
func (h *Handler) SendNow(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if err := h.svc.SendNow(r.Context(), action); err != nil {
		writeError(w, "send now", err)
		return
	}
	writeJSON(w, http.StatusOK, SendResponse{Action: action, Status: "sent"})
}

// ListDecks handles GET /api/decks.
//
//	@Summary		List configured decks with progress
//	@Tags			decks
//	@Produce		json
//	@Success		200	{object}	DeckListResponse
//	@Security		BearerAuth
//	@Router			/decks [get]
func (h *Handler) ListDecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DeckListResponse{Decks: h.svc.ListDecks(r.Context())})
}

// ListFiles handles GET /api/files.
//
//	@Summary		List deck files in the data directory
//	@Tags			decks
//	@Produce		json
//	@Success		200	{object}	FileListResponse
//	@Failure		500	{object}	errorBody
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, _ *http.Request) {
	files, err := h.svc.ListFiles()
	if err != nil {
		writeError(w, "list files", err)
		return
	}
	writeJSON(w, http.StatusOK, FileListResponse{Files: nonNil(files)})
}

// Sample handles GET /api/decks/{deck}/sample.
//
//	@Summary		Draw unlearned cards from a deck
//	@Tags			decks
//	@Produce		json
//	@Param			deck	path		string	true	"Deck name"
//	@Param			n		query		int		false	"Number of cards (defaults to the deck's sample size)"
//	@Success		200		{object}	SampleResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/decks/{deck}/sample [get]
func (h *Handler) Sample(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "deck")
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("n must be a non-negative integer"))
			return
		}
		n = v
	}
	cards, err := h.svc.Sample(r.Context(), name, n)
	if err != nil {
		writeError(w, "sample", err)
		return
	}
	writeJSON(w, http.StatusOK, SampleResponse{Deck: name, Cards: nonNil(cards)})
}

// ListLearned handles GET /api/decks/{deck}/learned.
//
//	@Summary		List rows marked learned in a deck
//	@Tags			decks
//	@Produce		json
//	@Param			deck	path		string	true	"Deck name"
//	@Success		200		{object}	LearnedListResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/decks/{deck}/learned [get]
func (h *Handler) ListLearned(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "deck")
	marks, err := h.svc.ListLearned(r.Context(), name)
	if err != nil {
		writeError(w, "list learned", err)
		return
	}
	writeJSON(w, http.StatusOK, LearnedListResponse{Deck: name, Learned: nonNil(marks)})
}

// MarkLearned handles POST /api/decks/{deck}/rows/{row}/learned.
//
//	@Summary		Mark a deck row as learned
//	@Tags			decks
//	@Produce		json
//	@Param			deck	path		string	true	"Deck name"
//	@Param			row		path		int		true	"Row index (header is row 1)"
//	@Success		200		{object}	LearnedResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/decks/{deck}/rows/{row}/learned [post]
func (h *Handler) MarkLearned(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "deck")
	row, err := rowParam(r)
	if err != nil {
		writeError(w, "mark learned", err)
		return
	}
	added, err := h.svc.MarkLearned(r.Context(), name, row)
	if err != nil {
		writeError(w, "mark learned", err)
		return
	}
	writeJSON(w, http.StatusOK, LearnedResponse{Deck: name, Row: row, Added: added})
}

// ListReviews handles GET /api/reviews.
//
//	@Summary		List the most recent reviews
//	@Tags			reviews
//	@Produce		json
//	@Param			limit	query		int	false	"Max results"
//	@Success		200		{object}	ReviewListResponse
//	@Security		BearerAuth
//	@Router			/reviews [get]
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	reviews, err := h.svc.ListReviews(r.Context(), limit)
	if err != nil {
		writeError(w, "list reviews", err)
		return
	}
	writeJSON(w, http.StatusOK, ReviewListResponse{Reviews: nonNil(reviews)})
}

// SubmitReview handles POST /reviews. It accepts a JSON body or the HTML
// review form.
//
//	@Summary		Submit a review
//	@Tags			reviews
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReviewRequest	true	"Review"
//	@Success		201		{object}	models.Review
//	@Failure		400		{object}	errResponse
//	@Router			/reviews [post]
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var req ReviewRequest
	isForm := strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
	if isForm {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid form body"))
			return
		}
		req.Rating, _ = strconv.Atoi(r.PostForm.Get("rating"))
		req.Comment = r.PostForm.Get("comment")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	rev, err := h.svc.SubmitReview(r.Context(), req)
	if err != nil {
		if isForm {
			writePage(w, http.StatusBadRequest, "Review not sent", "Please choose a rating from 1 to 5.")
			return
		}
		writeError(w, "submit review", err)
		return
	}
	if isForm {
		writePage(w, http.StatusCreated, "Thank you!", "Your review was sent.")
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}
