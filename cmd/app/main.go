package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/dailymail/internal"
	"github.com/starford/dailymail/internal/deck"
	"github.com/starford/dailymail/internal/parser"
	pkgconfig "github.com/starford/dailymail/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), "config/config.example.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func send(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Send(ctx, cmd.String("action"), internal.WithConfig(cfg))
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

// decode prints the rows of a CSV file (or stdin) as JSON, optionally only an
// unlearned sample.
func decode(_ context.Context, cmd *cli.Command) error {
	var in io.Reader = os.Stdin
	if path := cmd.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	rows := parser.Decode(string(data))
	if n := int(cmd.Int("sample")); n > 0 {
		rows = deck.Sample(rows, cmd.String("learned-column"), n, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	}
	if len(rows) == 0 {
		return errors.New("no rows decoded")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:    "dailymail",
		Usage:   "Daily digest mailer with vocabulary flashcards sampled from spreadsheets",
		Version: version,
		Action:  run,
		Flags:   []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "send",
				Usage:  "Send one scheduled digest now",
				Flags:  []cli.Flag{configFlag, &cli.StringFlag{Name: "action", Aliases: []string{"a"}, Usage: "Action name", Required: true}},
				Action: send,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Flags:  []cli.Flag{configFlag},
				Action: serveMCP,
			},
			{
				Name:      "decode",
				Usage:     "Decode a CSV deck and print its rows as JSON",
				ArgsUsage: "[FILE]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "sample", Aliases: []string{"n"}, Usage: "Print only a random sample of unlearned rows"},
					&cli.StringFlag{Name: "learned-column", Value: "Learned", Usage: "Column marking learned rows"},
				},
				Action: decode,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
