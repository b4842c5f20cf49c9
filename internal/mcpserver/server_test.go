package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/dailymail/internal/cardservice"
	"github.com/starford/dailymail/internal/deck"
	"github.com/starford/dailymail/internal/digest"
	"github.com/starford/dailymail/internal/models"
	"github.com/starford/dailymail/internal/testutil"
)

type fakeSender struct{ sends []string }

func (f *fakeSender) Send(_ context.Context, a digest.Action, _ time.Time) error {
	f.sends = append(f.sends, a.Name)
	return nil
}

func (f *fakeSender) SendReview(context.Context, models.Review) error { return nil }

func testServer(t *testing.T) (*Server, *fakeSender) {
	t.Helper()

	db := testutil.TestDB(t)
	_, files := testutil.TestDataDir(t, map[string]string{"english.csv": testutil.EnglishCSV})
	lib, err := deck.NewLibrary([]deck.Config{
		{Name: "english", Source: "english.csv", LearnedColumn: "Learned", SampleSize: 5},
	}, files, db, deck.WithLibraryLogger(testutil.Logger()))
	if err != nil {
		t.Fatal(err)
	}
	sender := &fakeSender{}
	svc := cardservice.NewService(lib, db,
		cardservice.WithSender(sender),
		cardservice.WithActions([]digest.Action{{Name: "morning"}}),
		cardservice.WithLogger(testutil.Logger()),
	)
	return New(svc, "test"), sender
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_decks":
		result, err = srv.listDecks(ctx, req)
	case "list_deck_files":
		result, err = srv.listDeckFiles(ctx, req)
	case "sample_cards":
		result, err = srv.sampleCards(ctx, req)
	case "mark_learned":
		result, err = srv.markLearned(ctx, req)
	case "list_schedules":
		result, err = srv.listSchedules(ctx, req)
	case "send_digest":
		result, err = srv.sendDigest(ctx, req)
	case "get_deck_contract":
		result, err = srv.getDeckContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListDecks(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_decks", map[string]any{})
	var decks []cardservice.DeckInfo
	if err := json.Unmarshal([]byte(resultText(r)), &decks); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decks) != 1 || decks[0].Name != "english" || decks[0].Learned != 1 {
		t.Errorf("decks = %+v", decks)
	}
}

func TestListDeckFiles(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_deck_files", map[string]any{})
	if r.IsError {
		t.Fatalf("error result: %s", resultText(r))
	}
	var files []cardservice.DeckFile
	if err := json.Unmarshal([]byte(resultText(r)), &files); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(files) != 1 || files[0].Path != "english.csv" {
		t.Errorf("files = %+v", files)
	}
}

func TestSampleCards(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "sample_cards", map[string]any{"deck": "english", "count": float64(5)})
	text := resultText(r)
	if r.IsError {
		t.Fatalf("error result: %s", text)
	}
	if strings.Contains(text, "apple") {
		t.Error("learned row should not be sampled")
	}
	if !strings.Contains(text, "Word: book") || !strings.Contains(text, "Word: cat, kitten") {
		t.Errorf("sample = %q", text)
	}
}

func TestSampleCards_UnknownDeck(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "sample_cards", map[string]any{"deck": "klingon"})
	if !r.IsError {
		t.Error("expected error for unknown deck")
	}
}

func TestMarkLearned(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "mark_learned", map[string]any{"deck": "english", "row": float64(3)})
	if got := resultText(r); got != "learned: english row 3" {
		t.Errorf("first = %q", got)
	}
	r = callTool(t, srv, "mark_learned", map[string]any{"deck": "english", "row": float64(3)})
	if got := resultText(r); got != "already learned: english row 3" {
		t.Errorf("second = %q", got)
	}

	r = callTool(t, srv, "sample_cards", map[string]any{"deck": "english"})
	if strings.Contains(resultText(r), "book") {
		t.Error("row 3 should no longer be sampled")
	}

	r = callTool(t, srv, "mark_learned", map[string]any{"deck": "english"})
	if !r.IsError {
		t.Error("expected error without row")
	}
}

func TestSendDigest(t *testing.T) {
	srv, sender := testServer(t)
	r := callTool(t, srv, "send_digest", map[string]any{"action": "morning"})
	if resultText(r) != "sent: morning" || len(sender.sends) != 1 {
		t.Errorf("result = %q, sends = %v", resultText(r), sender.sends)
	}
	r = callTool(t, srv, "send_digest", map[string]any{"action": "noon"})
	if !r.IsError {
		t.Error("expected error for unknown action")
	}
}

func TestListSchedules_Empty(t *testing.T) {
	srv, _ := testServer(t)
	if got := resultText(callTool(t, srv, "list_schedules", map[string]any{})); got != "[]" {
		t.Errorf("schedules = %q, want []", got)
	}
}

func TestDeckContract(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_deck_contract", map[string]any{}))
	if !strings.Contains(text, "header is row 1") {
		t.Error("contract missing row numbering rule")
	}
	res, err := srv.readDeckFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(res) != 1 {
		t.Fatalf("resource = %v, %v", res, err)
	}
}
