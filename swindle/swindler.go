// Package swindle looks for moves that give a fallible opponent the most
// chances to go wrong. Our moves are restricted to the ones that keep the
// tablebase verdict; among those the search prefers the move whose
// expected result, averaged over the opponent's likely replies, is best.
package swindle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/swindlechess/swindler/cache"
	"github.com/swindlechess/swindler/oracle"
	"github.com/swindlechess/swindler/position"
)

var (
	ErrTooManyPieces = errors.New("too many pieces for the tablebases")
	ErrUnknownMove   = errors.New("policy move not found in position")
	ErrNoMoves       = errors.New("position has no legal moves")
)

// TablebaseOracle answers exact probes, from the side to move's view.
type TablebaseOracle interface {
	Evaluate(ctx context.Context, fen string) (oracle.TablebaseResult, error)
}

// PolicyOracle gives the opponent model's weight for every legal move.
type PolicyOracle interface {
	Evaluate(ctx context.Context, fen string) (oracle.Policy, error)
}

type Options struct {
	// Opponent moves with at most this share of the policy are not
	// searched.
	Cutoff float64
	// MaxPieces is the largest piece count the tablebases cover.
	MaxPieces int
	// DTMMaxPieces is the largest piece count probed for distance to mate.
	DTMMaxPieces int
	// SafeDrawCutoff stops ranking our moves once one holds the draw and
	// we have no winning material anyway.
	SafeDrawCutoff bool
	// Parallelism bounds the sibling evaluations run at once per node.
	Parallelism   int
	EvalCacheSize int
}

func DefaultOptions() Options {
	return Options{
		Cutoff:         0.05,
		MaxPieces:      7,
		DTMMaxPieces:   5,
		SafeDrawCutoff: true,
		Parallelism:    4,
		EvalCacheSize:  1 << 20,
	}
}

// Swindler owns the position cache, the oracles and the eval cache of one
// search session. It is safe for concurrent use.
type Swindler struct {
	opts      Options
	positions *position.Cache

	syzygy  TablebaseOracle
	gaviota TablebaseOracle // optional
	maia    PolicyOracle

	evals  *cache.Cache[evalKey, Eval]
	flight singleflight.Group

	closers []io.Closer
}

type Stats struct {
	Evals     cache.Stats
	Positions cache.Stats
}

// New builds a search over the given oracles. gaviota may be nil, in which
// case no distance to mate is ever known.
func New(opts Options, positions *position.Cache, syzygy, gaviota TablebaseOracle, maia PolicyOracle) (*Swindler, error) {
	if syzygy == nil || maia == nil {
		return nil, errors.New("swindle: syzygy and maia oracles are required")
	}
	evals, err := cache.New[evalKey, Eval]("evals", opts.EvalCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Swindler{
		opts:      opts,
		positions: positions,
		syzygy:    syzygy,
		gaviota:   gaviota,
		maia:      maia,
		evals:     evals,
	}
	for _, o := range []any{syzygy, gaviota, maia} {
		if c, ok := o.(io.Closer); ok {
			s.closers = append(s.closers, c)
		}
	}
	return s, nil
}

// Positions exposes the session's position cache.
func (s *Swindler) Positions() *position.Cache {
	return s.positions
}

func (s *Swindler) Options() Options {
	return s.opts
}

// PolicyOracle returns the opponent model the session searches with.
func (s *Swindler) PolicyOracle() PolicyOracle {
	return s.maia
}

// memo returns the cached Eval for key or computes it. Concurrent callers
// asking for the same key share a single computation. Errors are not
// cached.
func (s *Swindler) memo(key evalKey, compute func() (Eval, error)) (Eval, error) {
	if e, ok := s.evals.Get(key); ok {
		return e, nil
	}
	v, err, shared := s.flight.Do(key.String(), func() (any, error) {
		// a flight for key may have finished since the lookup above.
		if e, ok := s.evals.Get(key); ok {
			return e, nil
		}
		e, err := compute()
		if err != nil {
			return nil, err
		}
		s.evals.Add(key, e)
		return e, nil
	})
	if err != nil {
		return Eval{}, err
	}
	if shared {
		log.Trace().Str("key", key.String()).Msg("shared-eval")
	}
	return v.(Eval), nil
}

// LeafEvaluate returns the exact tablebase verdict of fen. With ourTurn
// the result is from the view of the side to move in fen, otherwise from
// the view of the side that just moved.
func (s *Swindler) LeafEvaluate(ctx context.Context, fen string, ourTurn bool) (Eval, error) {
	data, err := s.positions.Get(fen)
	if err != nil {
		return Eval{}, err
	}
	kind := KindLeafTheirs
	if ourTurn {
		kind = KindLeafOurs
	}
	return s.memo(evalKey{kind: kind, hash: data.Hash}, func() (Eval, error) {
		return s.leaf(ctx, data, ourTurn)
	})
}

func (s *Swindler) leaf(ctx context.Context, data *position.Data, ourTurn bool) (Eval, error) {
	if data.IsDraw() {
		return Eval{}, nil
	}
	if data.IsCheckmate {
		// the side to move is mated
		if ourTurn {
			return Eval{WDL: -1}, nil
		}
		return Eval{WDL: 1}, nil
	}
	if data.NumPieces > s.opts.MaxPieces {
		return Eval{}, fmt.Errorf("%w: %d pieces in %s", ErrTooManyPieces, data.NumPieces, data.FEN)
	}

	var wdl, dtm oracle.TablebaseResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		wdl, err = s.syzygy.Evaluate(gctx, data.FEN)
		return err
	})
	if s.gaviota != nil && data.NumPieces <= s.opts.DTMMaxPieces {
		g.Go(func() error {
			var err error
			dtm, err = s.gaviota.Evaluate(gctx, data.FEN)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Eval{}, err
	}

	e := Eval{
		WDL: max(-1, min(1, float64(wdl.WDL))),
		DTM: float64(dtm.Distance),
	}
	if !ourTurn {
		e = e.negate()
	}
	return e, nil
}

// MaiaEvaluate values fen, where the opponent is to move, as the policy
// weighted average of the opponent's likely replies. With budget left the
// replies are searched further, otherwise they are tablebase leaves. The
// result is from our point of view.
func (s *Swindler) MaiaEvaluate(ctx context.Context, fen string, budget int) (Eval, error) {
	data, err := s.positions.Get(fen)
	if err != nil {
		return Eval{}, err
	}
	return s.memo(evalKey{kind: KindMaia, budget: budget, hash: data.Hash}, func() (Eval, error) {
		return s.maiaEval(ctx, data, budget)
	})
}

func (s *Swindler) maiaEval(ctx context.Context, data *position.Data, budget int) (Eval, error) {
	if data.IsDraw() {
		return Eval{}, nil
	}
	if data.IsCheckmate {
		// the opponent has been mated by our last move
		return Eval{WDL: 1}, nil
	}
	policy, err := s.maia.Evaluate(ctx, data.FEN)
	if err != nil {
		return Eval{}, err
	}
	candidates := s.likelyReplies(data, policy)

	nexts := make([]string, len(candidates))
	for i, mp := range candidates {
		next, ok := data.MoveMap[mp.Move]
		if !ok {
			return Eval{}, fmt.Errorf("%w: %s in %s", ErrUnknownMove, mp.Move, data.FEN)
		}
		nexts[i] = next
	}

	children := make([]Eval, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	if s.opts.Parallelism > 0 {
		g.SetLimit(s.opts.Parallelism)
	}
	for i, next := range nexts {
		i, next := i, next
		g.Go(func() error {
			var err error
			if budget > 0 {
				children[i], err = s.SwindleEvaluate(gctx, next, budget-1)
			} else {
				children[i], err = s.LeafEvaluate(gctx, next, true)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Eval{}, err
	}

	// WDL averages over every searched reply; DTM only over the replies
	// that carry a distance.
	var e Eval
	var totalProbability, totalDTMProbability float64
	for i, mp := range candidates {
		child := children[i]
		totalProbability += mp.Probability
		e.WDL += child.WDL * mp.Probability
		if child.DTM != 0 {
			totalDTMProbability += mp.Probability
			e.DTM += child.DTM * mp.Probability
		}
	}
	e.WDL /= totalProbability
	if totalDTMProbability > 0 {
		e.DTM /= totalDTMProbability
	}
	return e, nil
}

// likelyReplies returns the policy entries above the cutoff. When the
// policy is too flat for any move to clear it, every weighted move is
// used, and a policy with no weight at all counts every move equally.
func (s *Swindler) likelyReplies(data *position.Data, policy oracle.Policy) oracle.Policy {
	threshold := s.opts.Cutoff * policy.Total()
	candidates := lo.Filter(policy, func(mp oracle.MoveProbability, _ int) bool {
		return mp.Probability > threshold
	})
	if len(candidates) > 0 {
		return candidates
	}
	candidates = lo.Filter(policy, func(mp oracle.MoveProbability, _ int) bool {
		return mp.Probability > 0
	})
	if len(candidates) > 0 {
		log.Debug().Str("fen", data.FEN).Msg("no-reply-above-cutoff")
		return candidates
	}
	log.Warn().Str("fen", data.FEN).Msg("policy-without-weight")
	return lo.Map(data.Moves, func(mv string, _ int) oracle.MoveProbability {
		return oracle.MoveProbability{Move: mv, Probability: 1}
	})
}

// SwindleEvaluate values fen, where we are to move, by the best of our
// tablebase-optimal moves. The result is from our point of view.
func (s *Swindler) SwindleEvaluate(ctx context.Context, fen string, budget int) (Eval, error) {
	data, err := s.positions.Get(fen)
	if err != nil {
		return Eval{}, err
	}
	return s.memo(evalKey{kind: KindSwindle, budget: budget, hash: data.Hash}, func() (Eval, error) {
		if data.IsDraw() {
			return Eval{}, nil
		}
		if data.IsCheckmate {
			return Eval{WDL: -1}, nil
		}
		best, err := s.best(ctx, data, budget)
		if err != nil {
			return Eval{}, err
		}
		return best.Eval, nil
	})
}

// optimalMoves returns our moves that keep the best tablebase verdict,
// in generation order.
func (s *Swindler) optimalMoves(ctx context.Context, data *position.Data) ([]string, error) {
	direct := make([]Eval, len(data.Moves))
	g, gctx := errgroup.WithContext(ctx)
	if s.opts.Parallelism > 0 {
		g.SetLimit(s.opts.Parallelism)
	}
	for i, mv := range data.Moves {
		i, mv := i, mv
		next := data.MoveMap[mv]
		g.Go(func() error {
			var err error
			direct[i], err = s.LeafEvaluate(gctx, next, false)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	bestWDL := -1.0
	for _, e := range direct {
		bestWDL = max(bestWDL, e.WDL)
	}
	var optimal []string
	for i, mv := range data.Moves {
		if direct[i].WDL == bestWDL {
			optimal = append(optimal, mv)
		}
	}
	return optimal, nil
}

// best ranks our tablebase-optimal moves by swindle potential. The
// returned move is empty when none beats an outright loss.
func (s *Swindler) best(ctx context.Context, data *position.Data, budget int) (MoveEval, error) {
	optimal, err := s.optimalMoves(ctx, data)
	if err != nil {
		return MoveEval{}, err
	}
	safeDraw := s.opts.SafeDrawCutoff && !data.CanMoverWin()

	evals := make([]Eval, len(optimal))
	if !safeDraw {
		g, gctx := errgroup.WithContext(ctx)
		if s.opts.Parallelism > 0 {
			g.SetLimit(s.opts.Parallelism)
		}
		for i, mv := range optimal {
			i := i
			next := data.MoveMap[mv]
			g.Go(func() error {
				var err error
				evals[i], err = s.MaiaEvaluate(gctx, next, budget)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return MoveEval{}, err
		}
	}

	best := MoveEval{Eval: Eval{WDL: -1}}
	for i, mv := range optimal {
		next := data.MoveMap[mv]
		if safeDraw {
			// one at a time, so the search can stop at the first held draw
			evals[i], err = s.MaiaEvaluate(ctx, next, budget)
			if err != nil {
				return MoveEval{}, err
			}
		}
		if IsBetter(best.Eval, evals[i]) {
			best = MoveEval{Move: mv, FEN: next, Eval: evals[i]}
		}
		if safeDraw && best.Move != "" && best.WDL == 0 {
			log.Debug().Str("fen", data.FEN).Str("move", mv).Msg("safe-draw-cutoff")
			break
		}
	}
	log.Debug().
		Str("fen", data.FEN).
		Int("budget", budget).
		Int("optimal", len(optimal)).
		Str("best", best.Move).
		Float64("wdl", best.WDL).
		Float64("dtm", best.DTM).
		Msg("swindle-evaluated")
	return best, nil
}

// Choose returns the move SwindleEvaluate settles on for fen. If no move
// ranks above an outright loss, the first tablebase-optimal move is
// returned with its evaluation.
func (s *Swindler) Choose(ctx context.Context, fen string, budget int) (MoveEval, error) {
	data, err := s.positions.Get(fen)
	if err != nil {
		return MoveEval{}, err
	}
	if len(data.Moves) == 0 {
		return MoveEval{}, fmt.Errorf("%w: %s", ErrNoMoves, data.FEN)
	}
	best, err := s.best(ctx, data, budget)
	if err != nil {
		return MoveEval{}, err
	}
	if best.Move != "" {
		return best, nil
	}
	optimal, err := s.optimalMoves(ctx, data)
	if err != nil {
		return MoveEval{}, err
	}
	next := data.MoveMap[optimal[0]]
	e, err := s.MaiaEvaluate(ctx, next, budget)
	if err != nil {
		return MoveEval{}, err
	}
	return MoveEval{Move: optimal[0], FEN: next, Eval: e}, nil
}

// RankMoves scores every legal move of fen by MaiaEvaluate, best first.
// Unlike SwindleEvaluate it does not drop tablebase-suboptimal moves.
func (s *Swindler) RankMoves(ctx context.Context, fen string, budget int) ([]MoveEval, error) {
	data, err := s.positions.Get(fen)
	if err != nil {
		return nil, err
	}
	ranked := make([]MoveEval, len(data.Moves))
	g, gctx := errgroup.WithContext(ctx)
	if s.opts.Parallelism > 0 {
		g.SetLimit(s.opts.Parallelism)
	}
	for i, mv := range data.Moves {
		i, mv := i, mv
		next := data.MoveMap[mv]
		g.Go(func() error {
			e, err := s.MaiaEvaluate(gctx, next, budget)
			ranked[i] = MoveEval{Move: mv, FEN: next, Eval: e}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return IsBetter(ranked[j].Eval, ranked[i].Eval)
	})
	return ranked, nil
}

func (s *Swindler) Stats() Stats {
	return Stats{
		Evals:     s.evals.Stats(),
		Positions: s.positions.Stats(),
	}
}

// Dispose closes every oracle the session owns. Evaluations still running
// fail with the oracles' closed error.
func (s *Swindler) Dispose() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
