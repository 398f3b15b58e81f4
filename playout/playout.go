package playout

// Playing many games from one position, to measure how often the swindle
// search turns the opponent's mistakes into points.

import (
	"context"
	"errors"
	"expvar"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/swindlechess/swindler/stats"
)

var (
	GamesPlayed *expvar.Int
	IsPlaying   *expvar.Int
)

func init() {
	GamesPlayed = expvar.NewInt("playoutGamesPlayed")
	IsPlaying = expvar.NewInt("playoutIsPlaying")
}

type Summary struct {
	StartFEN string         `yaml:"start_fen"`
	Outcomes stats.Outcomes `yaml:"outcomes"`
	Mean     float64        `yaml:"mean_score"`
	Interval stats.Interval `yaml:"interval_95"`
	Games    []*Game        `yaml:"-"`
}

// Lengths returns the ply count of every game.
func (s *Summary) Lengths() []float64 {
	lengths := make([]float64, len(s.Games))
	for i, g := range s.Games {
		lengths[i] = float64(g.Plies())
	}
	return lengths
}

type job struct {
	idx int
}

// Run plays numGames games from startFEN with the given number of
// threads. Games are returned in the order they were queued. onGame, if
// not nil, is called from a single goroutine as games finish.
func (r *GameRunner) Run(ctx context.Context, startFEN string, numGames, threads int,
	onGame func(*Game) error) (*Summary, error) {

	if numGames <= 0 {
		return nil, errors.New("number of games must be positive")
	}
	threads = max(threads, 1)
	log.Debug().Int("games", numGames).Int("threads", threads).Msg("starting-playouts")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job, threads)
	type played struct {
		idx  int
		game *Game
		err  error
	}
	results := make(chan played, threads)

	var wg sync.WaitGroup
	wg.Add(threads)
	for i := 0; i < threads; i++ {
		go func() {
			defer wg.Done()
			IsPlaying.Add(1)
			defer IsPlaying.Add(-1)
			for j := range jobs {
				g, err := r.Play(ctx, startFEN)
				results <- played{idx: j.idx, game: g, err: err}
			}
		}()
	}

	go func() {
	queue:
		for i := 0; i < numGames; i++ {
			select {
			case jobs <- job{idx: i}:
			case <-ctx.Done():
				log.Info().Msg("playouts-cancelled")
				break queue
			}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	summary := &Summary{StartFEN: startFEN, Games: make([]*Game, numGames)}
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		GamesPlayed.Add(1)
		summary.Games[res.idx] = res.game
		if onGame != nil {
			if err := onGame(res.game); err != nil {
				firstErr = err
				cancel()
			}
		}
	}
	if firstErr == nil {
		// cancelled from outside between games
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		return nil, firstErr
	}

	for _, g := range summary.Games {
		summary.Outcomes.Add(g.Result)
	}
	summary.Mean = summary.Outcomes.Score().Mean()
	summary.Interval = stats.ConfidenceInterval(summary.Outcomes.Score(), 95)
	log.Info().
		Int("wins", summary.Outcomes.Wins).
		Int("draws", summary.Outcomes.Draws).
		Int("losses", summary.Outcomes.Losses).
		Float64("mean", summary.Mean).
		Msg("playouts-finished")
	return summary, nil
}
