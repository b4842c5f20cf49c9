package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/dailymail/internal/testutil"
)

func testComponents(t *testing.T) *components {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "english.csv"), []byte(testutil.EnglishCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := validConfig()
	cfg.Data.Dir = dir
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "test.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	c, err := build(cfg, testutil.Logger())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(c.close)
	return c
}

func TestHandlerRoutes(t *testing.T) {
	c := testComponents(t)
	h := c.handler()

	tests := []struct {
		method, target string
		want           int
		contains       string
	}{
		{http.MethodGet, "/health/live", http.StatusOK, `"ok"`},
		{http.MethodGet, "/health/ready", http.StatusOK, `"ok"`},
		{http.MethodGet, "/api/schedules", http.StatusOK, `"morning"`},
		{http.MethodGet, "/api/decks", http.StatusOK, `"english"`},
		{http.MethodGet, "/api/files", http.StatusOK, `"english.csv"`},
		{http.MethodGet, "/learned/english/3", http.StatusOK, "Marked as learned"},
		{http.MethodGet, "/metrics", http.StatusOK, "dailymail_deck_rows_learned_total"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.target, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.target, w.Code, tt.want)
			continue
		}
		if !strings.Contains(w.Body.String(), tt.contains) {
			t.Errorf("%s %s body missing %q", tt.method, tt.target, tt.contains)
		}
	}
}

func TestBuild_RunnerRestoresFromStore(t *testing.T) {
	c := testComponents(t)
	ctx := context.Background()
	if err := c.db.SaveWatermark(ctx, "morning", "2026-03-10"); err != nil {
		t.Fatal(err)
	}
	if err := c.runner.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	st := c.cards.Schedules()
	if len(st) != 1 || st[0].LastFired != "2026-03-10" {
		t.Errorf("schedules = %+v", st)
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Error("expected error without config")
	}
}
