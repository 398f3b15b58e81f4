package swindle

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/swindlechess/swindler/oracle"
	"github.com/swindlechess/swindler/position"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

type queryCounter struct {
	mu      sync.Mutex
	queries map[string]int
}

func (q *queryCounter) record(fen string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queries == nil {
		q.queries = make(map[string]int)
	}
	q.queries[fen]++
}

func (q *queryCounter) total() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, c := range q.queries {
		n += c
	}
	return n
}

func (q *queryCounter) count(fen string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queries[fen]
}

func (q *queryCounter) maxPerFEN() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	m := 0
	for _, c := range q.queries {
		m = max(m, c)
	}
	return m
}

type fakeTablebase struct {
	queryCounter
	answer func(fen string) (oracle.TablebaseResult, error)
}

func (f *fakeTablebase) Evaluate(ctx context.Context, fen string) (oracle.TablebaseResult, error) {
	f.record(fen)
	return f.answer(fen)
}

type fakePolicy struct {
	queryCounter
	answer func(fen string) (oracle.Policy, error)
}

func (f *fakePolicy) Evaluate(ctx context.Context, fen string) (oracle.Policy, error) {
	f.record(fen)
	return f.answer(fen)
}

// constTablebase gives the same verdict everywhere.
func constTablebase(wdl, distance int) *fakeTablebase {
	return &fakeTablebase{answer: func(string) (oracle.TablebaseResult, error) {
		return oracle.TablebaseResult{WDL: wdl, Distance: distance}, nil
	}}
}

// bySideTablebase answers from table first, then by side to move.
func bySideTablebase(table map[string]oracle.TablebaseResult, white, black oracle.TablebaseResult) *fakeTablebase {
	return &fakeTablebase{answer: func(fen string) (oracle.TablebaseResult, error) {
		if r, ok := table[fen]; ok {
			return r, nil
		}
		if strings.Fields(fen)[1] == "w" {
			return white, nil
		}
		return black, nil
	}}
}

// uniformPolicy weighs every legal move equally.
func uniformPolicy(positions *position.Cache) *fakePolicy {
	return &fakePolicy{answer: func(fen string) (oracle.Policy, error) {
		data, err := positions.Get(fen)
		if err != nil {
			return nil, err
		}
		p := make(oracle.Policy, len(data.Moves))
		for i, mv := range data.Moves {
			p[i] = oracle.MoveProbability{Move: mv, Probability: 1 / float64(len(data.Moves))}
		}
		return p, nil
	}}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.EvalCacheSize = 10000
	return opts
}

func newTestSwindler(t *testing.T, opts Options, syzygy, gaviota TablebaseOracle, maia PolicyOracle) *Swindler {
	t.Helper()
	positions, err := position.NewCache(10000)
	if err != nil {
		t.Fatal(err)
	}
	return newTestSwindlerWith(t, opts, positions, syzygy, gaviota, maia)
}

func newTestSwindlerWith(t *testing.T, opts Options, positions *position.Cache, syzygy, gaviota TablebaseOracle, maia PolicyOracle) *Swindler {
	t.Helper()
	s, err := New(opts, positions, syzygy, gaviota, maia)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func successor(t *testing.T, positions *position.Cache, fen, move string) string {
	t.Helper()
	data, err := positions.Get(fen)
	if err != nil {
		t.Fatal(err)
	}
	next, ok := data.MoveMap[move]
	if !ok {
		t.Fatalf("%s is not legal in %s", move, fen)
	}
	return next
}
