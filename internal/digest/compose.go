package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"github.com/starford/dailymail/internal/parser"
)

// Section names an optional block of a digest.
const (
	SectionWeather    = "weather"
	SectionGreeting   = "greeting"
	SectionVocabulary = "vocabulary"
	SectionPlanner    = "planner"
)

// Sections lists every known section.
var Sections = []string{SectionWeather, SectionGreeting, SectionVocabulary, SectionPlanner}

// Digest is the composed content of one mail.
type Digest struct {
	Action   string
	Title    string
	Date     string
	Greeting string
	Weather  *Weather
	Decks    []DeckCards
	Tasks    []string
}

// Subject is the mail subject of the digest.
func (d *Digest) Subject() string {
	return fmt.Sprintf("%s - %s", d.Title, d.Date)
}

// DeckCards holds the flashcards drawn from one deck.
type DeckCards struct {
	Deck  string
	Cards []Card
	Note  string
}

// Card is one flashcard.
type Card struct {
	Row       int
	Fields    []Field
	LearnLink string
}

// Field is one labelled value on a card.
type Field struct {
	Name  string
	Value string
}

func newCard(deck string, row parser.Row, skipColumn, publicURL string) Card {
	c := Card{Row: row.Index}
	for _, col := range row.Columns {
		if col == skipColumn {
			continue
		}
		if v := row.Fields[col]; v != "" {
			c.Fields = append(c.Fields, Field{Name: col, Value: v})
		}
	}
	if publicURL != "" {
		c.LearnLink = LearnLink(publicURL, deck, row.Index)
	}
	return c
}

// LearnLink is the public URL that marks row of deck as learned.
func LearnLink(publicURL, deck string, row int) string {
	return strings.TrimRight(publicURL, "/") + "/learned/" + url.PathEscape(deck) + "/" + strconv.Itoa(row)
}

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
<h2>{{.Title}}</h2>
<p style="color: #888;">{{.Date}}</p>
{{- if .Greeting}}
<p>{{.Greeting}}</p>
{{- end}}
{{- with .Weather}}
<h3>Weather</h3>
<p>{{.Description}}, {{printf "%.1f" .TemperatureC}}&deg;C</p>
{{- end}}
{{- range .Decks}}
<h3>{{.Deck}}</h3>
{{- if .Note}}
<p><em>{{.Note}}</em></p>
{{- end}}
{{- range .Cards}}
<div style="margin: 10px 0; padding: 10px; background-color: #f9f9f9; border-left: 4px solid #4CAF50;">
{{- range .Fields}}
<p><strong>{{.Name}}:</strong> {{.Value}}</p>
{{- end}}
{{- if .LearnLink}}
<p><a href="{{.LearnLink}}">Mark as learned</a></p>
{{- end}}
</div>
{{- end}}
{{- end}}
{{- if .Tasks}}
<h3>Today's plan</h3>
<ul>
{{- range .Tasks}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
</div>
</body>
</html>
`))

// Render returns the HTML body of d.
func Render(d *Digest) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("digest: render: %w", err)
	}
	return buf.String(), nil
}

var reviewTemplate = template.Must(template.New("review").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
<div style="max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px;">
<h2 style="color: #4CAF50; text-align: center;">New review</h2>
<p><strong>Rating:</strong> {{.Rating}} / 5</p>
<p style="font-size: 24px; color: #f1c40f; text-align: center;">{{.Stars}}</p>
<div style="margin-top: 20px; padding: 10px; background-color: #f9f9f9; border-left: 4px solid #4CAF50;">
<p><strong>Comment:</strong></p>
<p>{{.Comment}}</p>
</div>
</div>
</body>
</html>
`))

// RenderReview returns the HTML body forwarding a review.
func RenderReview(rating int, comment string) (string, error) {
	rating = max(0, min(rating, 5))
	data := struct {
		Rating  int
		Stars   string
		Comment string
	}{
		Rating:  rating,
		Stars:   strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating),
		Comment: comment,
	}
	var buf bytes.Buffer
	if err := reviewTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("digest: render review: %w", err)
	}
	return buf.String(), nil
}
