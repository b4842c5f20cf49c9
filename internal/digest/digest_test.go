package digest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/dailymail/internal/deck"
	"github.com/starford/dailymail/internal/models"
	"github.com/starford/dailymail/internal/parser"
	"github.com/starford/dailymail/internal/storage"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fixedWeather struct{ err error }

func (f fixedWeather) Current(context.Context) (*Weather, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Weather{TemperatureC: 31.5, Code: 2, Description: "Partly cloudy"}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLibrary(t *testing.T) *deck.Library {
	t.Helper()
	dir := t.TempDir()
	csv := "Word,Meaning,Learned\napple,qua tao,TRUE\nbook,quyen sach,\n"
	if err := os.WriteFile(filepath.Join(dir, "english.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	lib, err := deck.NewLibrary([]deck.Config{
		{Name: "english", Source: "english.csv", LearnedColumn: "Learned", SampleSize: 5},
		{Name: "missing", Source: "missing.csv", LearnedColumn: "Learned", SampleSize: 5},
	}, files, nil, deck.WithLibraryLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return lib
}

func seeded() deck.Rand { return rand.New(rand.NewPCG(7, 7)) }

var morning = time.Date(2026, time.March, 10, 7, 30, 0, 0, time.FixedZone("ICT", 7*3600))

func TestCompose_AllSections(t *testing.T) {
	svc := NewService(&fakeMailer{}, testLibrary(t), []string{"me@example.com"},
		WithWeather(fixedWeather{}),
		WithTasks([]string{"Gym", "Read"}),
		WithPublicURL("https://mail.example.com/"),
		WithRand(seeded),
		WithLogger(quietLogger()),
	)
	a := Action{Name: "morning", Title: "Morning digest", Sections: Sections}

	d := svc.Compose(context.Background(), a, morning)
	if d.Greeting == "" {
		t.Error("expected greeting")
	}
	if d.Weather == nil || d.Weather.Description != "Partly cloudy" {
		t.Errorf("weather = %+v", d.Weather)
	}
	if len(d.Tasks) != 2 {
		t.Errorf("tasks = %v", d.Tasks)
	}
	if len(d.Decks) != 2 {
		t.Fatalf("decks = %d, want 2", len(d.Decks))
	}

	english := d.Decks[0]
	if len(english.Cards) != 1 || english.Cards[0].Row != 3 {
		t.Fatalf("english cards = %+v", english.Cards)
	}
	card := english.Cards[0]
	for _, f := range card.Fields {
		if f.Name == "Learned" {
			t.Error("learned column must not be shown")
		}
	}
	if card.LearnLink != "https://mail.example.com/learned/english/3" {
		t.Errorf("link = %q", card.LearnLink)
	}

	if d.Decks[1].Note == "" || len(d.Decks[1].Cards) != 0 {
		t.Errorf("unavailable deck should degrade to a note, got %+v", d.Decks[1])
	}
	if got := d.Subject(); got != "Morning digest - Tuesday, 10 Mar 2026" {
		t.Errorf("subject = %q", got)
	}
}

func TestCompose_SectionsAndDeckFilter(t *testing.T) {
	svc := NewService(&fakeMailer{}, testLibrary(t), nil,
		WithWeather(fixedWeather{err: errors.New("timeout")}),
		WithTasks([]string{"Gym"}),
		WithLogger(quietLogger()),
	)
	a := Action{Name: "evening", Sections: []string{SectionWeather, SectionVocabulary}, Decks: []string{"english"}}

	d := svc.Compose(context.Background(), a, morning)
	if d.Weather != nil {
		t.Error("failed weather should be left out")
	}
	if d.Greeting != "" || d.Tasks != nil {
		t.Error("unrequested sections should be empty")
	}
	if len(d.Decks) != 1 || d.Decks[0].Deck != "english" {
		t.Errorf("decks = %+v", d.Decks)
	}
	if d.Title != "Daily digest" {
		t.Errorf("title = %q", d.Title)
	}
}

func TestSend_RendersAndMails(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewService(mailer, testLibrary(t), []string{"me@example.com"},
		WithPublicURL("https://mail.example.com"),
		WithLogger(quietLogger()),
	)
	a := Action{Name: "morning", Title: "Morning", Sections: []string{SectionVocabulary}, Decks: []string{"english"}}
	if err := svc.Send(context.Background(), a, morning); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent = %d", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if msg.To[0] != "me@example.com" {
		t.Errorf("to = %v", msg.To)
	}
	for _, want := range []string{"book", "quyen sach", "/learned/english/3", "Mark as learned"} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestSend_MailerError(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("connection refused")}
	svc := NewService(mailer, nil, []string{"me@example.com"}, WithLogger(quietLogger()))
	err := svc.Send(context.Background(), Action{Name: "morning"}, morning)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v", err)
	}
}

func TestSendReview(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewService(mailer, nil, []string{"me@example.com"})
	if err := svc.SendReview(context.Background(), models.Review{ID: 1, Rating: 4, Comment: "nice <b>words</b>"}); err != nil {
		t.Fatalf("SendReview: %v", err)
	}
	body := mailer.sent[0].HTML
	if !strings.Contains(body, "★★★★☆") {
		t.Error("expected four stars")
	}
	if strings.Contains(body, "<b>words</b>") {
		t.Error("comment must be escaped")
	}
}

func TestRender_EscapesCells(t *testing.T) {
	row := parser.Row{Index: 2, Columns: []string{"Word"}, Fields: map[string]string{"Word": "<script>"}}
	html, err := Render(&Digest{Title: "T", Decks: []DeckCards{{Deck: "x", Cards: []Card{newCard("x", row, "", "")}}}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "<script>") {
		t.Error("cell value must be escaped")
	}
	if strings.Contains(html, "Mark as learned") {
		t.Error("no link without a public URL")
	}
}

func TestLearnLink_EscapesDeck(t *testing.T) {
	got := LearnLink("http://localhost:8080", "my deck", 12)
	if got != "http://localhost:8080/learned/my%20deck/12" {
		t.Errorf("LearnLink = %q", got)
	}
}

func TestStaticGreeter_StablePerDay(t *testing.T) {
	g := StaticGreeter{Lines: []string{"a", "b", "c"}}
	first, _ := g.Greeting(context.Background(), "morning", "2026-03-10")
	again, _ := g.Greeting(context.Background(), "morning", "2026-03-10")
	if first != again {
		t.Errorf("greeting changed within a day: %q vs %q", first, again)
	}
}

func TestBuildMIME(t *testing.T) {
	now := time.Date(2026, time.March, 10, 7, 30, 0, 0, time.UTC)
	raw, err := buildMIME("bot@example.com", Message{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Chào buổi sáng",
		HTML:    "<p>x</p>",
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)
	for _, want := range []string{
		"From: bot@example.com\r\n",
		"To: a@example.com, b@example.com\r\n",
		"Subject: =?utf-8?q?",
		"Content-Type: text/html; charset=UTF-8\r\n",
		"\r\n\r\n<p>x</p>",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("message missing %q:\n%s", want, s)
		}
	}
}

func TestSMTPMailer_NoRecipients(t *testing.T) {
	m := &SMTPMailer{Host: "localhost", Port: 25}
	if err := m.Send(context.Background(), Message{Subject: "x"}); err == nil {
		t.Error("expected error for empty recipient list")
	}
}

func TestOpenMeteo_Current(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("current") != "temperature_2m,weather_code" {
			t.Errorf("current = %q", r.URL.Query().Get("current"))
		}
		_, _ = w.Write([]byte(`{"current":{"temperature_2m":29.4,"weather_code":61}}`))
	}))
	defer srv.Close()

	w, err := NewOpenMeteo(srv.URL, 10.82, 106.63, "Asia/Ho_Chi_Minh").Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if w.TemperatureC != 29.4 || w.Description != "Rain" {
		t.Errorf("weather = %+v", w)
	}
}

func TestOpenMeteo_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	if _, err := NewOpenMeteo(srv.URL, 0, 0, "").Current(context.Background()); err == nil {
		t.Error("expected error on 503")
	}
}

func TestDescribeWeather(t *testing.T) {
	tests := map[int]string{0: "Clear sky", 3: "Partly cloudy", 45: "Fog", 53: "Drizzle", 81: "Rain", 73: "Snow", 95: "Thunderstorm", 40: "Unknown"}
	for code, want := range tests {
		if got := describeWeather(code); got != want {
			t.Errorf("describeWeather(%d) = %q, want %q", code, got, want)
		}
	}
}
