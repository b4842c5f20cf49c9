// Package deck loads vocabulary decks and draws flashcard samples from them.
package deck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xuri/excelize/v2"

	"github.com/starford/dailymail/internal/apperr"
	"github.com/starford/dailymail/internal/models"
	"github.com/starford/dailymail/internal/parser"
	"github.com/starford/dailymail/internal/storage"
)

// ErrSourceUnavailable wraps any failure to fetch a deck's source.
var ErrSourceUnavailable = errors.New("deck source unavailable")

const (
	defaultCacheTTL   = 10 * time.Minute
	defaultCacheSize  = 32
	maxRemoteBodySize = 20 << 20
)

// Config describes one named deck.
type Config struct {
	Name          string `yaml:"name" json:"name"`
	Source        string `yaml:"source" json:"source"`
	LearnedColumn string `yaml:"learned_column" json:"learned_column"`
	SampleSize    int    `yaml:"sample_size" json:"sample_size"`
}

// IsRemote reports whether the source is fetched over HTTP.
func (c Config) IsRemote() bool {
	return strings.HasPrefix(c.Source, "http://") || strings.HasPrefix(c.Source, "https://")
}

// LearnedStore persists rows marked as learned out of band.
type LearnedStore interface {
	MarkLearned(ctx context.Context, deck string, row int) (bool, error)
	LearnedRows(ctx context.Context, deck string) (map[int]struct{}, error)
}

type cachedDeck struct {
	rows     []parser.Row
	checksum string
	storedAt time.Time
}

// Library resolves deck names to decoded rows.
type Library struct {
	decks   map[string]Config
	order   []string
	files   storage.Provider
	learned LearnedStore
	client  *http.Client
	cache   *lru.Cache[string, cachedDeck]
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	onError func(deck string, err error)
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithHTTPClient sets the client used for remote sources.
func WithHTTPClient(c *http.Client) LibraryOption {
	return func(l *Library) { l.client = c }
}

// WithCacheTTL sets how long decoded rows are reused.
func WithCacheTTL(d time.Duration) LibraryOption {
	return func(l *Library) { l.ttl = d }
}

// WithLibraryLogger sets the logger.
func WithLibraryLogger(logger *slog.Logger) LibraryOption {
	return func(l *Library) { l.logger = logger }
}

// WithFetchErrorHook registers a callback for failed fetches.
func WithFetchErrorHook(h func(deck string, err error)) LibraryOption {
	return func(l *Library) { l.onError = h }
}

// NewLibrary creates a library over decks. files serves local sources and
// learned may be nil when no overlay is wanted.
func NewLibrary(decks []Config, files storage.Provider, learned LearnedStore, opts ...LibraryOption) (*Library, error) {
	l := &Library{
		decks:   make(map[string]Config, len(decks)),
		files:   files,
		learned: learned,
		client:  &http.Client{Timeout: 30 * time.Second},
		ttl:     defaultCacheTTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	for _, d := range decks {
		if _, dup := l.decks[d.Name]; dup {
			return nil, fmt.Errorf("deck: duplicate deck name %q", d.Name)
		}
		l.decks[d.Name] = d
		l.order = append(l.order, d.Name)
	}

	cache, err := lru.New[string, cachedDeck](max(defaultCacheSize, len(decks)))
	if err != nil {
		return nil, fmt.Errorf("deck: create cache: %w", err)
	}
	l.cache = cache
	return l, nil
}

// Decks returns the configured decks in configuration order.
func (l *Library) Decks() []Config {
	out := make([]Config, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.decks[name])
	}
	return out
}

// Deck returns the configuration of name.
func (l *Library) Deck(name string) (Config, error) {
	d, ok := l.decks[name]
	if !ok {
		return Config{}, fmt.Errorf("deck %q: %w", name, apperr.ErrNotFound)
	}
	return d, nil
}

// Rows returns the decoded rows of a deck, without the learned overlay.
func (l *Library) Rows(ctx context.Context, name string) ([]parser.Row, error) {
	d, err := l.Deck(name)
	if err != nil {
		return nil, err
	}

	if c, ok := l.cache.Get(name); ok && l.now().Sub(c.storedAt) < l.ttl {
		return c.rows, nil
	}

	data, err := l.fetch(ctx, d.Source)
	if err != nil {
		if l.onError != nil {
			l.onError(name, err)
		}
		return nil, fmt.Errorf("deck %q: %w", name, err)
	}

	rows, err := decode(d.Source, data)
	if err != nil {
		if l.onError != nil {
			l.onError(name, err)
		}
		return nil, fmt.Errorf("deck %q: %w", name, err)
	}

	sum := storage.Checksum(data)
	if prev, ok := l.cache.Peek(name); !ok || prev.checksum != sum {
		l.logger.Info("deck: loaded",
			slog.String("deck", name),
			slog.Int("rows", len(rows)),
			slog.String("checksum", sum[:12]))
	}
	l.cache.Add(name, cachedDeck{rows: rows, checksum: sum, storedAt: l.now()})
	return rows, nil
}

// Draw samples up to n unlearned rows from a deck; n <= 0 uses the deck's
// sample size. A source failure is returned together with an empty sample so
// callers can log it and carry on.
func (l *Library) Draw(ctx context.Context, name string, n int, rng Rand) ([]parser.Row, error) {
	d, err := l.Deck(name)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = d.SampleSize
	}

	rows, err := l.Current(ctx, name)
	if err != nil {
		return nil, err
	}
	return Sample(rows, d.LearnedColumn, n, rng), nil
}

// Current returns the rows of a deck with the learned overlay applied.
func (l *Library) Current(ctx context.Context, name string) ([]parser.Row, error) {
	d, err := l.Deck(name)
	if err != nil {
		return nil, err
	}
	rows, err := l.Rows(ctx, name)
	if err != nil {
		return nil, err
	}
	return l.overlay(ctx, d, rows)
}

// MarkLearned records that row index of deck name was learned. index must
// address a data row of the current source. It reports false when the row
// was already marked.
func (l *Library) MarkLearned(ctx context.Context, name string, index int) (bool, error) {
	if _, err := l.Deck(name); err != nil {
		return false, err
	}
	if index < 2 {
		return false, fmt.Errorf("row %d: %w", index, apperr.ErrInvalidInput)
	}
	if l.learned == nil {
		return false, errors.New("deck: no learned store configured")
	}

	rows, err := l.Rows(ctx, name)
	if err != nil {
		return false, err
	}
	found := false
	for _, r := range rows {
		if r.Index == index {
			found = true
			break
		}
	}
	if !found {
		return false, fmt.Errorf("deck %q row %d: %w", name, index, apperr.ErrNotFound)
	}
	return l.learned.MarkLearned(ctx, name, index)
}

// Files lists the deck files present under the data directory, configured
// or not.
func (l *Library) Files() ([]models.SheetMetadata, error) {
	if l.files == nil {
		return nil, nil
	}
	files, err := l.files.List("")
	if err != nil {
		return nil, fmt.Errorf("deck: %w", err)
	}
	return files, nil
}

// Invalidate drops cached rows of every local deck whose source is rel
// (relative to the data directory).
func (l *Library) Invalidate(rel string) {
	rel = filepath.Clean(filepath.FromSlash(rel))
	for name, d := range l.decks {
		if d.IsRemote() {
			continue
		}
		if filepath.Clean(filepath.FromSlash(d.Source)) == rel {
			l.cache.Remove(name)
			l.logger.Debug("deck: cache invalidated", slog.String("deck", name), slog.String("path", rel))
		}
	}
}

// overlay marks rows recorded in the learned store with LearnedToken. Rows
// are copied; cached rows are never mutated.
func (l *Library) overlay(ctx context.Context, d Config, rows []parser.Row) ([]parser.Row, error) {
	if l.learned == nil {
		return rows, nil
	}
	marked, err := l.learned.LearnedRows(ctx, d.Name)
	if err != nil {
		return nil, fmt.Errorf("deck %q: %w", d.Name, err)
	}
	if len(marked) == 0 {
		return rows, nil
	}

	out := make([]parser.Row, len(rows))
	for i, r := range rows {
		if _, ok := marked[r.Index]; ok {
			fields := make(map[string]string, len(r.Fields)+1)
			for k, v := range r.Fields {
				fields[k] = v
			}
			fields[d.LearnedColumn] = LearnedToken
			r.Fields = fields
		}
		out[i] = r
	}
	return out, nil
}

func (l *Library) fetch(ctx context.Context, src string) ([]byte, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		data, err := l.files.Read(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d (is the sheet published?)", ErrSourceUnavailable, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrSourceUnavailable, err)
	}
	return data, nil
}

// decode picks the decoder from the source's extension: XLSX workbooks use
// their first sheet, everything else is treated as CSV text.
func decode(src string, data []byte) ([]parser.Row, error) {
	p := src
	if u, err := url.Parse(src); err == nil && u.Scheme != "" {
		p = u.Path
	}
	if strings.ToLower(path.Ext(p)) != ".xlsx" {
		return parser.Decode(string(data)), nil
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("deck: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("deck: read sheet %q: %w", sheets[0], err)
	}
	return parser.FromRecords(records), nil
}
