// Package digest composes the daily digest mail and sends it.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/starford/dailymail/internal/deck"
	"github.com/starford/dailymail/internal/models"
)

// Action is the content policy of one scheduled digest.
type Action struct {
	Name     string
	Title    string
	Sections []string
	// Decks restricts the vocabulary section; empty means every deck.
	Decks []string
}

// Has reports whether the action includes section.
func (a Action) Has(section string) bool {
	return slices.Contains(a.Sections, section)
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Service composes digests from the deck library and optional providers.
type Service struct {
	mailer    Mailer
	library   *deck.Library
	weather   WeatherProvider
	greeter   Greeter
	tasks     []string
	to        []string
	publicURL string
	rng       func() deck.Rand
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithWeather enables the weather section.
func WithWeather(p WeatherProvider) Option {
	return func(s *Service) { s.weather = p }
}

// WithGreeter replaces the default static greeter.
func WithGreeter(g Greeter) Option {
	return func(s *Service) { s.greeter = g }
}

// WithTasks sets the planner entries.
func WithTasks(tasks []string) Option {
	return func(s *Service) { s.tasks = tasks }
}

// WithPublicURL sets the base URL used in "mark as learned" links.
func WithPublicURL(u string) Option {
	return func(s *Service) { s.publicURL = u }
}

// WithRand sets the random source factory used for each digest.
func WithRand(f func() deck.Rand) Option {
	return func(s *Service) { s.rng = f }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a digest service that mails to recipients.
func NewService(mailer Mailer, library *deck.Library, recipients []string, opts ...Option) *Service {
	s := &Service{
		mailer:  mailer,
		library: library,
		greeter: StaticGreeter{},
		to:      recipients,
		rng:     func() deck.Rand { return globalRand{} },
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compose builds the digest of a for the local time now. Section failures are
// logged and leave the section out; they never fail the digest.
func (s *Service) Compose(ctx context.Context, a Action, now time.Time) *Digest {
	d := &Digest{
		Action: a.Name,
		Title:  a.Title,
		Date:   now.Format("Monday, 02 Jan 2006"),
	}
	if d.Title == "" {
		d.Title = "Daily digest"
	}
	dateKey := now.Format("2006-01-02")

	if a.Has(SectionGreeting) && s.greeter != nil {
		g, err := s.greeter.Greeting(ctx, a.Name, dateKey)
		if err != nil {
			s.logger.Warn("digest: greeting failed", slog.String("action", a.Name), slog.String("error", err.Error()))
		} else {
			d.Greeting = g
		}
	}

	if a.Has(SectionWeather) && s.weather != nil {
		w, err := s.weather.Current(ctx)
		if err != nil {
			s.logger.Warn("digest: weather failed", slog.String("action", a.Name), slog.String("error", err.Error()))
		} else {
			d.Weather = w
		}
	}

	if a.Has(SectionVocabulary) && s.library != nil {
		rng := s.rng()
		for _, cfg := range s.library.Decks() {
			if len(a.Decks) > 0 && !slices.Contains(a.Decks, cfg.Name) {
				continue
			}
			block := DeckCards{Deck: cfg.Name}
			rows, err := s.library.Draw(ctx, cfg.Name, 0, rng)
			if err != nil {
				s.logger.Warn("digest: deck unavailable",
					slog.String("action", a.Name),
					slog.String("deck", cfg.Name),
					slog.String("error", err.Error()))
				block.Note = "This deck could not be loaded today."
			}
			for _, r := range rows {
				block.Cards = append(block.Cards, newCard(cfg.Name, r, cfg.LearnedColumn, s.publicURL))
			}
			if err == nil && len(block.Cards) == 0 {
				block.Note = "Every word in this deck is learned."
			}
			d.Decks = append(d.Decks, block)
		}
	}

	if a.Has(SectionPlanner) {
		d.Tasks = s.tasks
	}
	return d
}

// Send composes and mails one digest.
func (s *Service) Send(ctx context.Context, a Action, now time.Time) error {
	d := s.Compose(ctx, a, now)
	html, err := Render(d)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, Message{To: s.to, Subject: d.Subject(), HTML: html}); err != nil {
		return fmt.Errorf("digest %q: %w", a.Name, err)
	}
	s.logger.Info("digest: sent",
		slog.String("action", a.Name),
		slog.Int("decks", len(d.Decks)),
		slog.Int("recipients", len(s.to)))
	return nil
}

// SendReview forwards a submitted review to the recipients.
func (s *Service) SendReview(ctx context.Context, r models.Review) error {
	html, err := RenderReview(r.Rating, r.Comment)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, Message{To: s.to, Subject: "New review", HTML: html}); err != nil {
		return fmt.Errorf("digest: review %d: %w", r.ID, err)
	}
	return nil
}
