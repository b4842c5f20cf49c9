// Package cardservice coordinates decks, learned marks, reviews and manual
// sends for the HTTP and MCP front ends.
package cardservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path"
	"path/filepath"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dailymail/internal/apperr"
	"github.com/starford/dailymail/internal/deck"
	"github.com/starford/dailymail/internal/digest"
	"github.com/starford/dailymail/internal/events"
	"github.com/starford/dailymail/internal/metrics"
	"github.com/starford/dailymail/internal/models"
	"github.com/starford/dailymail/internal/scheduler"
)

// MaxSample caps the number of cards returned by Sample.
const MaxSample = 50

// ReviewStore persists reviews and lists learned marks.
type ReviewStore interface {
	AddReview(ctx context.Context, rating int, comment string) (*models.Review, error)
	ListReviews(ctx context.Context, limit int) ([]models.Review, error)
	ListLearned(ctx context.Context, deck string) ([]models.LearnedMark, error)
}

// Sender mails digests and reviews.
type Sender interface {
	Send(ctx context.Context, a digest.Action, now time.Time) error
	SendReview(ctx context.Context, r models.Review) error
}

// StatusReporter reports the scheduler's view of each action.
type StatusReporter interface {
	Status() []scheduler.ActionStatus
}

// DeckInfo summarises one configured deck.
type DeckInfo struct {
	Name          string `json:"name"`
	Source        string `json:"source"`
	LearnedColumn string `json:"learned_column"`
	SampleSize    int    `json:"sample_size"`
	Rows          int    `json:"rows"`
	Learned       int    `json:"learned"`
	Error         string `json:"error,omitempty"`
}

// DeckFile is a deck file under the data directory and the decks reading it.
type DeckFile struct {
	models.SheetMetadata
	Decks []string `json:"decks"`
}

// Card is one deck row as exposed to clients.
type Card struct {
	Deck    string            `json:"deck"`
	Row     int               `json:"row"`
	Columns []string          `json:"columns"`
	Fields  map[string]string `json:"fields"`
}

// ReviewInput is a review submission.
type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Validate checks the rating range and comment length.
func (r ReviewInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Rating, validation.Required, validation.Min(1), validation.Max(5)),
		validation.Field(&r.Comment, validation.Length(0, 2000)),
	)
}

// Service is the application layer shared by the API and MCP servers.
type Service struct {
	library *deck.Library
	reviews ReviewStore
	sender  Sender
	status  StatusReporter
	actions map[string]digest.Action
	loc     *time.Location
	now     func() time.Time
	rng     func() deck.Rand
	events  *events.Broker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSender enables manual sends and review mails.
func WithSender(s Sender) Option {
	return func(svc *Service) { svc.sender = s }
}

// WithStatus sets the scheduler status source.
func WithStatus(r StatusReporter) Option {
	return func(svc *Service) { svc.status = r }
}

// WithActions registers the actions available for manual sends.
func WithActions(actions []digest.Action) Option {
	return func(svc *Service) {
		for _, a := range actions {
			svc.actions[a.Name] = a
		}
	}
}

// WithLocation sets the zone manual sends are dated in.
func WithLocation(loc *time.Location) Option {
	return func(svc *Service) { svc.loc = loc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// WithRand sets the random source factory used by Sample.
func WithRand(f func() deck.Rand) Option {
	return func(svc *Service) { svc.rng = f }
}

// WithEvents publishes activity to broker.
func WithEvents(broker *events.Broker) Option {
	return func(svc *Service) { svc.events = broker }
}

// WithMetrics counts activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(svc *Service) { svc.logger = logger }
}

// NewService creates a service over library and reviews.
func NewService(library *deck.Library, reviews ReviewStore, opts ...Option) *Service {
	s := &Service{
		library: library,
		reviews: reviews,
		actions: make(map[string]digest.Action),
		loc:     time.UTC,
		now:     time.Now,
		rng:     func() deck.Rand { return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) },
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListDecks summarises every configured deck. A deck whose source cannot be
// loaded is reported with its error rather than failing the listing.
func (s *Service) ListDecks(ctx context.Context) []DeckInfo {
	decks := s.library.Decks()
	out := make([]DeckInfo, 0, len(decks))
	for _, d := range decks {
		info := DeckInfo{
			Name:          d.Name,
			Source:        d.Source,
			LearnedColumn: d.LearnedColumn,
			SampleSize:    d.SampleSize,
		}
		rows, err := s.library.Current(ctx, d.Name)
		if err != nil {
			info.Error = err.Error()
		}
		info.Rows = len(rows)
		for _, r := range rows {
			if deck.IsLearned(r, d.LearnedColumn) {
				info.Learned++
			}
		}
		out = append(out, info)
	}
	return out
}

// ListFiles lists the deck files under the data directory. Files no deck
// reads are included with an empty Decks list.
func (s *Service) ListFiles() ([]DeckFile, error) {
	files, err := s.library.Files()
	if err != nil {
		return nil, err
	}
	users := make(map[string][]string)
	for _, d := range s.library.Decks() {
		if !d.IsRemote() {
			src := path.Clean(filepath.ToSlash(d.Source))
			users[src] = append(users[src], d.Name)
		}
	}
	out := make([]DeckFile, len(files))
	for i, f := range files {
		decks := users[f.Path]
		if decks == nil {
			decks = []string{}
		}
		out[i] = DeckFile{SheetMetadata: f, Decks: decks}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Sample draws up to n unlearned cards from a deck; n <= 0 uses the deck's
// sample size and n is capped at MaxSample.
func (s *Service) Sample(ctx context.Context, name string, n int) ([]Card, error) {
	n = min(n, MaxSample)
	rows, err := s.library.Draw(ctx, name, n, s.rng())
	if err != nil {
		return nil, err
	}
	cards := make([]Card, len(rows))
	for i, r := range rows {
		cards[i] = Card{Deck: name, Row: r.Index, Columns: r.Columns, Fields: r.Fields}
	}
	return cards, nil
}

// MarkLearned marks a deck row as learned. It reports false when the row was
// already marked.
func (s *Service) MarkLearned(ctx context.Context, name string, row int) (bool, error) {
	added, err := s.library.MarkLearned(ctx, name, row)
	if err != nil {
		return false, err
	}
	if added {
		s.metrics.Learned(name)
		if s.events != nil {
			s.events.PublishLearned(name, row)
		}
		s.logger.Info("card learned", slog.String("deck", name), slog.Int("row", row))
	}
	return added, nil
}

// ListLearned returns the learned marks of a deck.
func (s *Service) ListLearned(ctx context.Context, name string) ([]models.LearnedMark, error) {
	if _, err := s.library.Deck(name); err != nil {
		return nil, err
	}
	return s.reviews.ListLearned(ctx, name)
}

// SubmitReview validates, stores and forwards a review. A mail failure is
// logged; the stored review is still returned.
func (s *Service) SubmitReview(ctx context.Context, in ReviewInput) (*models.Review, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	rev, err := s.reviews.AddReview(ctx, in.Rating, in.Comment)
	if err != nil {
		return nil, err
	}
	s.metrics.ReviewSubmitted()
	if s.events != nil {
		s.events.PublishReview(rev.ID, rev.Rating)
	}
	if s.sender != nil {
		if err := s.sender.SendReview(ctx, *rev); err != nil {
			s.logger.Warn("review mail failed", slog.Int64("id", rev.ID), slog.String("error", err.Error()))
		}
	}
	return rev, nil
}

// ListReviews returns the most recent reviews.
func (s *Service) ListReviews(ctx context.Context, limit int) ([]models.Review, error) {
	return s.reviews.ListReviews(ctx, limit)
}

// Schedules reports every scheduled action, sorted by name.
func (s *Service) Schedules() []scheduler.ActionStatus {
	if s.status == nil {
		return []scheduler.ActionStatus{}
	}
	st := s.status.Status()
	sort.Slice(st, func(i, j int) bool { return st[i].Action < st[j].Action })
	return st
}

// SendNow composes and mails the digest of action immediately. It does not
// touch the scheduler's watermark.
func (s *Service) SendNow(ctx context.Context, action string) error {
	a, ok := s.actions[action]
	if !ok {
		return fmt.Errorf("action %q: %w", action, apperr.ErrNotFound)
	}
	if s.sender == nil {
		return errors.New("cardservice: no mailer configured")
	}
	if err := s.sender.Send(ctx, a, s.now().In(s.loc)); err != nil {
		s.metrics.SendFailed(action)
		return err
	}
	return nil
}
