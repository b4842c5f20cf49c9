package api

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dailymail/internal/apperr"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: Arial, sans-serif; text-align: center; padding: 40px;">
<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
</body>
</html>
`))

var reviewFormTemplate = template.Must(template.New("review").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Review</title></head>
<body style="font-family: Arial, sans-serif; max-width: 480px; margin: 40px auto;">
<h2>How was today's digest?</h2>
<form method="post" action="reviews">
<p>
{{- range .}}
<label><input type="radio" name="rating" value="{{.}}" required> {{.}}</label>
{{- end}}
</p>
<p><textarea name="comment" rows="5" style="width: 100%;" placeholder="Comment"></textarea></p>
<p><button type="submit">Send</button></p>
</form>
</body>
</html>
`))

func writePage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := struct{ Title, Message string }{title, message}
	if err := pageTemplate.Execute(w, data); err != nil {
		slog.Error("page render failed", slog.String("error", err.Error()))
	}
}

// LearnedPage handles GET /learned/{deck}/{row}, the "mark as learned" link
// target in digest mails.
func (h *Handler) LearnedPage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "deck")
	row, err := rowParam(r)
	if err != nil {
		writePage(w, http.StatusBadRequest, "Invalid link", "The row number is not valid.")
		return
	}

	added, err := h.svc.MarkLearned(r.Context(), name, row)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writePage(w, http.StatusNotFound, "Card not found", "This card no longer exists in the deck.")
	case errors.Is(err, apperr.ErrInvalidInput):
		writePage(w, http.StatusBadRequest, "Invalid link", "The row number is not valid.")
	case err != nil:
		slog.Error("mark learned failed", slog.String("deck", name), slog.Int("row", row), slog.String("error", err.Error()))
		writePage(w, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
	case added:
		writePage(w, http.StatusOK, "Marked as learned", "This word will no longer appear in your digests.")
	default:
		writePage(w, http.StatusOK, "Already learned", "This word was already marked as learned.")
	}
}

// ReviewForm handles GET /review.
func (h *Handler) ReviewForm(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := reviewFormTemplate.Execute(w, []int{1, 2, 3, 4, 5}); err != nil {
		slog.Error("review form render failed", slog.String("error", err.Error()))
	}
}
