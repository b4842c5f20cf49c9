package deck

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/starford/dailymail/internal/apperr"
	"github.com/starford/dailymail/internal/storage"
)

const englishCSV = "Word,Meaning,Learned\n" +
	"apple,qua tao,TRUE\n" +
	"book,quyen sach,\n" +
	"\"cat, kitten\",con meo,FALSE\n"

type fakeLearned struct {
	mu    sync.Mutex
	marks map[string]map[int]struct{}
}

func (f *fakeLearned) MarkLearned(_ context.Context, deck string, row int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.marks == nil {
		f.marks = make(map[string]map[int]struct{})
	}
	if f.marks[deck] == nil {
		f.marks[deck] = make(map[int]struct{})
	}
	if _, ok := f.marks[deck][row]; ok {
		return false, nil
	}
	f.marks[deck][row] = struct{}{}
	return true, nil
}

func (f *fakeLearned) LearnedRows(_ context.Context, deck string) (map[int]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]struct{})
	for k := range f.marks[deck] {
		out[k] = struct{}{}
	}
	return out, nil
}

func testFiles(t *testing.T, files map[string]string) storage.Provider {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		_ = os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func englishLibrary(t *testing.T, learned LearnedStore) (*Library, storage.Provider) {
	t.Helper()
	files := testFiles(t, map[string]string{"english.csv": englishCSV})
	lib, err := NewLibrary([]Config{{
		Name: "english", Source: "english.csv", LearnedColumn: "Learned", SampleSize: 10,
	}}, files, learned)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	return lib, files
}

func TestLibrary_RowsFromFile(t *testing.T) {
	lib, _ := englishLibrary(t, nil)
	rows, err := lib.Rows(context.Background(), "english")
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len = %d, want 3", len(rows))
	}
	if rows[2].Fields["Word"] != "cat, kitten" {
		t.Errorf("Word = %q", rows[2].Fields["Word"])
	}
}

func TestLibrary_UnknownDeck(t *testing.T) {
	lib, _ := englishLibrary(t, nil)
	_, err := lib.Rows(context.Background(), "klingon")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLibrary_DuplicateName(t *testing.T) {
	_, err := NewLibrary([]Config{{Name: "a"}, {Name: "a"}}, nil, nil)
	if err == nil {
		t.Error("expected duplicate deck name error")
	}
}

func TestLibrary_DrawAppliesLearnedOverlay(t *testing.T) {
	learned := &fakeLearned{}
	lib, _ := englishLibrary(t, learned)
	ctx := context.Background()

	added, err := lib.MarkLearned(ctx, "english", 3)
	if err != nil {
		t.Fatalf("MarkLearned: %v", err)
	}
	if !added {
		t.Error("expected new mark")
	}

	got, err := lib.Draw(ctx, "english", 0, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if len(got) != 1 || got[0].Index != 4 {
		t.Fatalf("draw = %+v, want only row 4", got)
	}

	// Cached rows must not carry the overlay.
	rows, _ := lib.Rows(ctx, "english")
	if rows[1].Fields["Learned"] != "" {
		t.Errorf("cached row mutated: %v", rows[1].Fields)
	}
}

func TestLibrary_MarkLearnedValidation(t *testing.T) {
	lib, _ := englishLibrary(t, &fakeLearned{})
	ctx := context.Background()

	if _, err := lib.MarkLearned(ctx, "english", 1); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("header row: err = %v, want ErrInvalidInput", err)
	}
	if _, err := lib.MarkLearned(ctx, "english", 99); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing row: err = %v, want ErrNotFound", err)
	}
	if _, err := lib.MarkLearned(ctx, "nope", 2); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown deck: err = %v, want ErrNotFound", err)
	}
}

func TestLibrary_SourceUnavailable(t *testing.T) {
	files := testFiles(t, nil)
	var hookCalls atomic.Int32
	lib, err := NewLibrary([]Config{{Name: "gone", Source: "gone.csv", LearnedColumn: "Learned", SampleSize: 5}},
		files, nil, WithFetchErrorHook(func(string, error) { hookCalls.Add(1) }))
	if err != nil {
		t.Fatal(err)
	}

	got, err := lib.Draw(context.Background(), "gone", 0, rand.New(rand.NewPCG(1, 1)))
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
	if len(got) != 0 {
		t.Errorf("draw = %v, want empty", got)
	}
	if hookCalls.Load() != 1 {
		t.Errorf("hook calls = %d, want 1", hookCalls.Load())
	}
}

func TestLibrary_RemoteSourceAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("format") != "csv" {
			http.Error(w, "bad format", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(englishCSV))
	}))
	defer srv.Close()

	lib, err := NewLibrary([]Config{{
		Name: "english", Source: srv.URL + "/export?format=csv&gid=1", LearnedColumn: "Learned", SampleSize: 10,
	}}, nil, nil, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		rows, err := lib.Rows(context.Background(), "english")
		if err != nil {
			t.Fatalf("Rows: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("len = %d", len(rows))
		}
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1 (cached)", hits.Load())
	}
}

func TestLibrary_RemoteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not published", http.StatusUnauthorized)
	}))
	defer srv.Close()

	lib, _ := NewLibrary([]Config{{Name: "x", Source: srv.URL, LearnedColumn: "Learned"}}, nil, nil)
	if _, err := lib.Rows(context.Background(), "x"); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestLibrary_InvalidateReloads(t *testing.T) {
	lib, files := englishLibrary(t, nil)
	ctx := context.Background()
	if _, err := lib.Rows(ctx, "english"); err != nil {
		t.Fatal(err)
	}

	p := filepath.Join(files.Root(), "english.csv")
	if err := os.WriteFile(p, []byte("Word,Meaning,Learned\nsun,mat troi,\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, _ := lib.Rows(ctx, "english")
	if len(rows) != 3 {
		t.Fatalf("before invalidate len = %d, want cached 3", len(rows))
	}
	lib.Invalidate("english.csv")
	rows, _ = lib.Rows(ctx, "english")
	if len(rows) != 1 {
		t.Errorf("after invalidate len = %d, want 1", len(rows))
	}
}

func TestLibrary_XLSXSource(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]any{"Word", "Meaning", "Learned"})
	_ = f.SetSheetRow(sheet, "A2", &[]any{"ni hao", "xin chao", "FALSE"})
	_ = f.SetSheetRow(sheet, "A3", &[]any{"xie xie", "cam on", "TRUE"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	_ = f.Close()

	files := testFiles(t, map[string]string{"chinese.xlsx": buf.String()})
	lib, err := NewLibrary([]Config{{Name: "chinese", Source: "chinese.xlsx", LearnedColumn: "Learned", SampleSize: 10}}, files, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := lib.Draw(context.Background(), "chinese", 0, rand.New(rand.NewPCG(2, 2)))
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if len(got) != 1 || got[0].Fields["Word"] != "ni hao" || got[0].Index != 2 {
		t.Errorf("draw = %+v", got)
	}
}

func TestLibrary_Files(t *testing.T) {
	files := testFiles(t, map[string]string{
		"english.csv":      englishCSV,
		"extra/spare.xlsx": "not really a workbook",
		"notes.txt":        "ignored",
	})
	lib, err := NewLibrary([]Config{{Name: "english", Source: "english.csv", LearnedColumn: "Learned"}}, files, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := lib.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	paths := make(map[string]bool, len(got))
	for _, f := range got {
		paths[f.Path] = true
	}
	if len(got) != 2 || !paths["english.csv"] || !paths["extra/spare.xlsx"] {
		t.Errorf("files = %+v", got)
	}

	empty, _ := NewLibrary(nil, nil, nil)
	if got, err := empty.Files(); err != nil || got != nil {
		t.Errorf("no provider = %v, %v", got, err)
	}
}
