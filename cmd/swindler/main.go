// Command swindler answers a single query about an endgame position:
//
//	swindler [flags] <leaf|maia|swindle|rank|choose> <fen>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/swindlechess/swindler/config"
	"github.com/swindlechess/swindler/swindle"
)

var errUsage = errors.New("usage: swindler [flags] <leaf|maia|swindle|rank|choose> <fen>")

// searcher is the part of a swindle session a query needs.
type searcher interface {
	LeafEvaluate(ctx context.Context, fen string, ourTurn bool) (swindle.Eval, error)
	MaiaEvaluate(ctx context.Context, fen string, budget int) (swindle.Eval, error)
	SwindleEvaluate(ctx context.Context, fen string, budget int) (swindle.Eval, error)
	RankMoves(ctx context.Context, fen string, budget int) ([]swindle.MoveEval, error)
	Choose(ctx context.Context, fen string, budget int) (swindle.MoveEval, error)
}

type query struct {
	cmd    string
	fen    string
	budget int
	format string
}

func parseQuery(cfg *config.Config) (query, error) {
	args := cfg.Args()
	if len(args) < 2 {
		return query{}, errUsage
	}
	q := query{
		cmd:    args[0],
		fen:    strings.Join(args[1:], " "),
		budget: cfg.GetInt(config.ConfigSearchDepth),
		format: cfg.GetString(config.ConfigOutputFormat),
	}
	switch q.cmd {
	case "leaf", "maia", "swindle", "rank", "choose":
	default:
		return query{}, fmt.Errorf("unknown command %q; %w", q.cmd, errUsage)
	}
	if q.format != "text" && q.format != "yaml" {
		return query{}, fmt.Errorf("unknown %s %q", config.ConfigOutputFormat, q.format)
	}
	if q.budget < 0 {
		return query{}, fmt.Errorf("%s cannot be negative", config.ConfigSearchDepth)
	}
	return q, nil
}

func answer(ctx context.Context, s searcher, q query) (any, error) {
	switch q.cmd {
	case "leaf":
		return s.LeafEvaluate(ctx, q.fen, true)
	case "maia":
		return s.MaiaEvaluate(ctx, q.fen, q.budget)
	case "swindle":
		return s.SwindleEvaluate(ctx, q.fen, q.budget)
	case "rank":
		return s.RankMoves(ctx, q.fen, q.budget)
	case "choose":
		return s.Choose(ctx, q.fen, q.budget)
	}
	return nil, errUsage
}

func write(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	switch t := v.(type) {
	case []swindle.MoveEval:
		for _, me := range t {
			if _, err := fmt.Fprintln(w, me); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := fmt.Fprintln(w, t)
		return err
	}
}

func run(ctx context.Context, s searcher, q query, w io.Writer) error {
	v, err := answer(ctx, s, q)
	if err != nil {
		return err
	}
	return write(w, q.format, v)
}

func main() {
	cfg := &config.Config{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.SetupLogging(os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	q, err := parseQuery(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.Debug().Interface("config", cfg.SanitizedSettings()).Msg("loaded-config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := swindle.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("starting-session")
	}
	err = run(ctx, s, q, os.Stdout)
	if derr := s.Dispose(); derr != nil {
		log.Err(derr).Msg("disposing-session")
	}
	if err != nil {
		log.Fatal().Err(err).Str("fen", q.fen).Str("cmd", q.cmd).Msg("query-failed")
	}
}
