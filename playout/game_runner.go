// Package playout plays endgames out to the end: our side moves with the
// swindle search and the opponent samples its replies from the policy
// model, the way a human of that strength might.
package playout

import (
	"context"
	"errors"
	"fmt"

	"github.com/notnil/chess"
	"github.com/rs/zerolog/log"

	"github.com/swindlechess/swindler/oracle"
	"github.com/swindlechess/swindler/position"
	"github.com/swindlechess/swindler/swindle"
)

const MethodPlyLimit = "PlyLimit"

var ErrGameOver = errors.New("game is already over")

// Chooser picks our moves.
type Chooser interface {
	Choose(ctx context.Context, fen string, budget int) (swindle.MoveEval, error)
}

// Opponent supplies the opponent's move weights.
type Opponent interface {
	Evaluate(ctx context.Context, fen string) (oracle.Policy, error)
}

// Sampler turns a policy into a move. Policy.Sample is the default.
type Sampler func(oracle.Policy) (string, error)

type Options struct {
	Budget   int
	MaxPlies int
	Sampler  Sampler
}

// Game is a finished playout. Result is from our point of view: +1 win,
// 0 draw, -1 loss.
type Game struct {
	StartFEN string   `yaml:"start_fen"`
	Moves    []string `yaml:"moves"`
	FinalFEN string   `yaml:"final_fen"`
	Outcome  string   `yaml:"outcome"`
	Method   string   `yaml:"method"`
	Result   int      `yaml:"result"`
	OurColor string   `yaml:"our_color"`
}

func (g *Game) Plies() int {
	return len(g.Moves)
}

// GameRunner plays one game at a time from a fixed start position.
type GameRunner struct {
	chooser  Chooser
	opponent Opponent
	opts     Options
}

func NewGameRunner(chooser Chooser, opponent Opponent, opts Options) *GameRunner {
	if opts.Sampler == nil {
		opts.Sampler = oracle.Policy.Sample
	}
	return &GameRunner{chooser: chooser, opponent: opponent, opts: opts}
}

// Play plays a game from startFEN, where we are to move.
func (r *GameRunner) Play(ctx context.Context, startFEN string) (*Game, error) {
	g, err := position.Decode(position.Normalize(startFEN))
	if err != nil {
		return nil, err
	}
	if g.Outcome() != chess.NoOutcome {
		return nil, fmt.Errorf("%w: %s", ErrGameOver, startFEN)
	}
	ours := g.Position().Turn()
	game := &Game{
		StartFEN: position.FEN(g.Position()),
		OurColor: ours.Name(),
	}

	for g.Outcome() == chess.NoOutcome {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.opts.MaxPlies > 0 && len(game.Moves) >= r.opts.MaxPlies {
			break
		}
		fen := position.FEN(g.Position())
		var mv string
		if g.Position().Turn() == ours {
			choice, err := r.chooser.Choose(ctx, fen, r.opts.Budget)
			if err != nil {
				return nil, err
			}
			mv = choice.Move
		} else {
			policy, err := r.opponent.Evaluate(ctx, fen)
			if err != nil {
				return nil, err
			}
			mv, err = r.opts.Sampler(policy)
			if err != nil {
				return nil, fmt.Errorf("sampling reply in %s: %w", fen, err)
			}
		}
		if err := g.MoveStr(mv); err != nil {
			return nil, fmt.Errorf("playing %s in %s: %w", mv, fen, err)
		}
		game.Moves = append(game.Moves, mv)
		log.Trace().Str("fen", fen).Str("move", mv).Msg("played")

		// repetition and the fifty move rule need a claim.
		if g.Outcome() == chess.NoOutcome {
			for _, m := range g.EligibleDraws() {
				if m == chess.ThreefoldRepetition || m == chess.FiftyMoveRule {
					if err := g.Draw(m); err != nil {
						return nil, err
					}
					break
				}
			}
		}
	}

	game.FinalFEN = position.FEN(g.Position())
	game.Outcome = string(g.Outcome())
	game.Method = g.Method().String()
	if g.Outcome() == chess.NoOutcome {
		game.Method = MethodPlyLimit
	}
	game.Result = result(g.Outcome(), ours)
	log.Debug().
		Str("start", game.StartFEN).
		Int("plies", game.Plies()).
		Str("outcome", game.Outcome).
		Str("method", game.Method).
		Msg("game-over")
	return game, nil
}

func result(outcome chess.Outcome, ours chess.Color) int {
	switch outcome {
	case chess.WhiteWon:
		if ours == chess.White {
			return 1
		}
		return -1
	case chess.BlackWon:
		if ours == chess.Black {
			return 1
		}
		return -1
	}
	return 0
}
