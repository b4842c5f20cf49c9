// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dailymail/internal/api"
	"github.com/starford/dailymail/internal/cardservice"
	"github.com/starford/dailymail/internal/deck"
	"github.com/starford/dailymail/internal/digest"
	"github.com/starford/dailymail/internal/events"
	"github.com/starford/dailymail/internal/mcpserver"
	"github.com/starford/dailymail/internal/metrics"
	"github.com/starford/dailymail/internal/scheduler"
	"github.com/starford/dailymail/internal/storage"
	"github.com/starford/dailymail/internal/store"
)

// components is the wired object graph shared by every entry point.
type components struct {
	cfg     *Config
	logger  *slog.Logger
	loc     *time.Location
	db      *store.DB
	library *deck.Library
	digest  *digest.Service
	runner  *scheduler.Runner
	cards   *cardservice.Service
	broker  *events.Broker
	metrics *metrics.Metrics
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// build opens the store and wires every component from cfg.
func build(cfg *Config, logger *slog.Logger) (*components, error) {
	c := &components{cfg: cfg, logger: logger}

	loc, err := cfg.App.Location()
	if err != nil {
		logger.Warn("Unknown timezone, using fixed UTC+7",
			slog.String("timezone", cfg.App.Timezone),
			slog.String("error", err.Error()))
	}
	c.loc = loc

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	files, err := storage.NewFS(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	c.db, err = store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	c.metrics = metrics.New()
	c.broker = events.NewBroker(30 * time.Second)

	c.library, err = deck.NewLibrary(cfg.Decks, files, c.db,
		deck.WithCacheTTL(cfg.Data.CacheTTL),
		deck.WithLibraryLogger(logger),
		deck.WithFetchErrorHook(func(name string, _ error) { c.metrics.DeckFetchFailed(name) }),
	)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("init decks: %w", err)
	}

	digestOpts := []digest.Option{
		digest.WithGreeter(digest.StaticGreeter{Lines: cfg.Planner.Greetings}),
		digest.WithTasks(cfg.Planner.Tasks),
		digest.WithPublicURL(cfg.App.PublicURL),
		digest.WithLogger(logger),
	}
	if cfg.Weather.Enabled {
		digestOpts = append(digestOpts, digest.WithWeather(
			digest.NewOpenMeteo(cfg.Weather.BaseURL, cfg.Weather.Latitude, cfg.Weather.Longitude, cfg.App.Timezone)))
	}
	c.digest = digest.NewService(cfg.Mail.Mailer(), c.library, cfg.Mail.To, digestOpts...)

	actions := make([]digest.Action, 0, len(cfg.Schedules))
	jobs := make([]scheduler.Job, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		a := s.DigestAction()
		actions = append(actions, a)
		jobs = append(jobs, scheduler.Job{
			Schedule: scheduler.Schedule{Action: s.Action, Times: s.TriggerTimes()},
			Run: func(ctx context.Context) error {
				return c.digest.Send(ctx, a, time.Now().In(c.loc))
			},
		})
	}

	c.runner = scheduler.NewRunner(jobs,
		scheduler.WithLocation(c.loc),
		scheduler.WithInterval(cfg.App.TickInterval),
		scheduler.WithTimeout(cfg.App.SendTimeout),
		scheduler.WithStore(c.db),
		scheduler.WithLogger(logger),
		scheduler.WithFireHook(func(action string, key scheduler.DateKey) {
			c.metrics.Fired(action)
			c.broker.PublishFired(action, string(key))
		}),
		scheduler.WithFailureHook(func(action string, err error) {
			c.metrics.SendFailed(action)
			c.broker.PublishFailed(action, err)
		}),
	)

	c.cards = cardservice.NewService(c.library, c.db,
		cardservice.WithSender(c.digest),
		cardservice.WithStatus(c.runner),
		cardservice.WithActions(actions),
		cardservice.WithLocation(c.loc),
		cardservice.WithEvents(c.broker),
		cardservice.WithMetrics(c.metrics),
		cardservice.WithLogger(logger),
	)
	return c, nil
}

func (c *components) close() {
	if c.broker != nil {
		c.broker.Close()
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("close store", slog.String("error", err.Error()))
		}
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// handler builds the full HTTP handler: health, metrics, public mail-link
// routes and the authenticated /api.
func (c *components) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", c.metrics.Handler())

	r.Mount("/api", api.NewRouter(c.cards, c.cfg.Auth.AuthEnabled(), c.cfg.Auth.Token, c.broker))
	r.Mount("/", api.NewPublicRouter(c.cards))
	return r
}

// Run starts the service: the HTTP server, the scheduler and the deck
// watcher, until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(app.logOutput, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Data.Dir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("timezone", cfg.App.Timezone),
		slog.Int("decks", len(cfg.Decks)),
		slog.Int("schedules", len(cfg.Schedules)),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.runner.Restore(ctx); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           c.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.runner.Run(gCtx)
	})

	if cfg.Data.Watch {
		g.Go(func() error {
			err := deck.Watch(gCtx, cfg.Data.Dir, logger, func(rel string) {
				c.library.Invalidate(rel)
				c.broker.PublishDeckChanged(rel)
			})
			if err != nil {
				logger.Warn("deck watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Send composes and mails the digest of action once, outside the schedule.
func Send(ctx context.Context, action string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.logOutput, app.config.App.LogLevel)

	c, err := build(app.config, logger)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.cards.SendNow(ctx, action); err != nil {
		return err
	}
	logger.Info("Digest sent", slog.String("action", action))
	return nil
}

// ServeMCP serves the MCP tools over stdio. Logs go to the configured log
// output, which must not be stdout.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := newLogger(app.logOutput, app.config.App.LogLevel)
	slog.SetDefault(logger)

	c, err := build(app.config, logger)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.runner.Restore(ctx); err != nil {
		logger.Warn("watermarks unavailable", slog.String("error", err.Error()))
	}

	srv := mcpserver.New(c.cards, app.version)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
