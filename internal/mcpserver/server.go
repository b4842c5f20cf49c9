// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes dailymail tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dailymail/internal/cardservice"
)

const deckFormatURI = "dailymail://deck-format"

// Server wraps the MCP server with dailymail tools.
type Server struct {
	mcp *server.MCPServer
	svc *cardservice.Service
}

// New creates a new MCP server with all dailymail tools registered.
func New(svc *cardservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"dailymail",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_decks",
		mcp.WithDescription("List the configured vocabulary decks with row and learned counts."),
	), s.listDecks)

	s.mcp.AddTool(mcp.NewTool("list_deck_files",
		mcp.WithDescription("List the CSV and XLSX files in the data directory and which decks read them."),
	), s.listDeckFiles)

	s.mcp.AddTool(mcp.NewTool("sample_cards",
		mcp.WithDescription("Draw random unlearned cards from a deck, the same way the daily digest does."),
		mcp.WithString("deck", mcp.Required(), mcp.Description("Deck name as listed by list_decks")),
		mcp.WithNumber("count", mcp.Description("Number of cards (defaults to the deck's sample size)")),
	), s.sampleCards)

	s.mcp.AddTool(mcp.NewTool("mark_learned",
		mcp.WithDescription("Mark a deck row as learned so it is no longer sampled. "+
			"Row numbers follow the sheet: the header is row 1."),
		mcp.WithString("deck", mcp.Required(), mcp.Description("Deck name")),
		mcp.WithNumber("row", mcp.Required(), mcp.Description("Row number (2 or more)")),
	), s.markLearned)

	s.mcp.AddTool(mcp.NewTool("list_schedules",
		mcp.WithDescription("List the scheduled digests with their trigger times and last fire date."),
	), s.listSchedules)

	s.mcp.AddTool(mcp.NewTool("send_digest",
		mcp.WithDescription("Send a scheduled digest immediately. Does not affect the daily schedule."),
		mcp.WithString("action", mcp.Required(), mcp.Description("Action name as listed by list_schedules")),
	), s.sendDigest)

	s.mcp.AddTool(mcp.NewTool("get_deck_contract",
		mcp.WithDescription("Returns the spreadsheet layout decks must follow. "+
			"Call this before creating or editing a deck."),
	), s.getDeckContract)

	s.mcp.AddResource(
		mcp.NewResource(deckFormatURI, "Deck Format",
			mcp.WithResourceDescription("Spreadsheet layout that every deck must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDeckFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDecks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.ListDecks(ctx))
}

func (s *Server) listDeckFiles(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := s.svc.ListFiles()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(files)
}

func (s *Server) sampleCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("deck")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	count := req.GetInt("count", 0)
	if count < 0 {
		return mcp.NewToolResultError("count must not be negative"), nil
	}

	cards, err := s.svc.Sample(ctx, name, count)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(cards) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no unlearned cards in %s", name)), nil
	}

	var b strings.Builder
	for _, c := range cards {
		fmt.Fprintf(&b, "Row %d\n", c.Row)
		for _, col := range c.Columns {
			if v := c.Fields[col]; v != "" {
				fmt.Fprintf(&b, "  %s: %s\n", col, v)
			}
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) markLearned(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("deck")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	row, err := req.RequireInt("row")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	added, err := s.svc.MarkLearned(ctx, name, row)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !added {
		return mcp.NewToolResultText(fmt.Sprintf("already learned: %s row %d", name, row)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("learned: %s row %d", name, row)), nil
}

func (s *Server) listSchedules(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Schedules())
}

func (s *Server) sendDigest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.SendNow(ctx, action); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("sent: %s", action)), nil
}

func (s *Server) getDeckContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DeckFormatContract), nil
}

func (s *Server) readDeckFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      deckFormatURI,
			MIMEType: "text/markdown",
			Text:     DeckFormatContract,
		},
	}, nil
}
