// Command playout plays many games from one endgame position, our side
// choosing with the swindle search and the opponent sampling the policy
// model, and reports how they went:
//
//	playout [flags] <fen>
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

	"github.com/aybabtme/uniplot/histogram"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/swindlechess/swindler/config"
	"github.com/swindlechess/swindler/gamelog"
	"github.com/swindlechess/swindler/playout"
	"github.com/swindlechess/swindler/swindle"
)

const histogramBins = 10

var errUsage = errors.New("usage: playout [flags] <fen>")

func report(w io.Writer, format string, s *playout.Summary) error {
	if format == "yaml" {
		return yaml.NewEncoder(w).Encode(s)
	}
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "start:   %s\n", s.StartFEN)
	p.Fprintf(w, "games:   %d\n", s.Outcomes.Games())
	p.Fprintf(w, "wins:    %d\n", s.Outcomes.Wins)
	p.Fprintf(w, "draws:   %d\n", s.Outcomes.Draws)
	p.Fprintf(w, "losses:  %d\n", s.Outcomes.Losses)
	p.Fprintf(w, "score:   %.3f (95%% CI %.3f to %.3f)\n", s.Mean, s.Interval.Low, s.Interval.High)
	if len(s.Games) == 0 {
		return nil
	}
	p.Fprintf(w, "\ngame lengths in plies:\n")
	hist := histogram.Hist(histogramBins, s.Lengths())
	return histogram.Fprint(w, hist, histogram.Linear(40))
}

func play(ctx context.Context, cfg *config.Config, s *swindle.Swindler, fen string) (*playout.Summary, error) {
	runner := playout.NewGameRunner(s, s.PolicyOracle(), playout.Options{
		Budget:   cfg.GetInt(config.ConfigSearchDepth),
		MaxPlies: cfg.GetInt(config.ConfigPlayoutMaxPlies),
	})

	var onGame func(*playout.Game) error
	if path := cfg.GetString(config.ConfigGamelogPath); path != "" {
		gl, err := gamelog.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		defer gl.Close()
		onGame = func(g *playout.Game) error {
			log.Debug().Str("outcome", g.Outcome).Int("plies", g.Plies()).Msg("game-finished")
			return gl.Record(ctx, g)
		}
	}
	return runner.Run(ctx, fen,
		cfg.GetInt(config.ConfigPlayoutGames),
		cfg.GetInt(config.ConfigPlayoutThreads),
		onGame)
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
	if len(cfg.Args()) == 0 {
		fmt.Fprintln(os.Stderr, errUsage)
		os.Exit(2)
	}
	fen := strings.Join(cfg.Args(), " ")
	log.Info().Interface("config", cfg.SanitizedSettings()).Msg("loaded-config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := swindle.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("starting-session")
	}
	summary, err := play(ctx, cfg, s, fen)
	if derr := s.Dispose(); derr != nil {
		log.Err(derr).Msg("disposing-session")
	}
	if err != nil {
		log.Fatal().Err(err).Str("fen", fen).Msg("playout-failed")
	}
	if err := report(os.Stdout, cfg.GetString(config.ConfigOutputFormat), summary); err != nil {
		log.Fatal().Err(err).Msg("writing-report")
	}
	log.Info().Int64("games", playout.GamesPlayed.Value()).Msg("done")
}
