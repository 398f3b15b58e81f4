package oracle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"

	"github.com/swindlechess/swindler/position"
)

// scriptedLc0 answers "go nodes 1" with the canned output for the last
// position it was given.
type scriptedLc0 struct {
	*fakeProcess
	mu      sync.Mutex
	scripts map[string][]string
	gos     int
}

func newScriptedLc0(t *testing.T, scripts map[string][]string) (*Maia, *scriptedLc0) {
	t.Helper()
	s := &scriptedLc0{scripts: scripts}
	var fen string
	s.fakeProcess = newScriptedProcess("maia", func(f *fakeProcess, line string) {
		switch {
		case strings.HasPrefix(line, "position fen "):
			fen = strings.TrimPrefix(line, "position fen ")
		case line == "go nodes 1":
			s.mu.Lock()
			s.gos++
			script := s.scripts[fen]
			s.mu.Unlock()
			f.respond(script...)
		case line == "uci":
			f.respond("id name Lc0 v0.30.0", "uciok")
		}
	})
	positions, err := position.NewCache(100)
	if err != nil {
		t.Fatal(err)
	}
	m, err := newMaia(s.proc, positions, 100)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m, s
}

func (s *scriptedLc0) goCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gos
}

var kpkScript = []string{
	"info string d8c7  (1208) N:       0 (+ 0) (P:  5.01%) (WL:  -.-----) (D: -.---) (M:  -.-) (Q: -0.98000) (V:  -.----) ",
	"info string d8c8  (1201) N:       0 (+ 0) (P:  3.20%) (WL:  -.-----) (D: -.---) (M:  -.-) (Q: -0.98000) (V:  -.----) ",
	"info string d8d7  (1209) N:       0 (+ 0) (P: 16.67%) (WL:  -.-----) (D: -.---) (M:  -.-) (Q: -0.98000) (V:  -.----) ",
	"info string d8e7  (1210) N:       0 (+ 0) (P: 30.00%) (WL:  -.-----) (D: -.---) (M:  -.-) (Q: -0.98000) (V:  -.----) ",
	"info string d8e8  (1202) N:       0 (+ 0) (P: 45.12%) (WL:  -.-----) (D: -.---) (M:  -.-) (Q: -0.98000) (V:  -.----) ",
	"info string node  (  20) N:       1 (+ 0) (P: 100.00%) (WL: -0.98000) (D:  0.020) (M:  0.0) (Q: -0.98000) (V: -0.9800) ",
	"info depth 1 seldepth 1 time 30 nodes 1 score cp -1200 nps 33 tbhits 0 pv d8e8",
	"bestmove d8e8",
}

func TestMaiaHandshake(t *testing.T) {
	is := is.New(t)
	_, s := newScriptedLc0(t, nil)
	is.Equal(s.next(t), "uci")
	is.Equal(s.next(t), "ucinewgame")
	is.Equal(s.next(t), "setoption name VerboseMoveStats value true")
}

func TestMaiaParsesPolicy(t *testing.T) {
	is := is.New(t)
	m, _ := newScriptedLc0(t, map[string][]string{kpkFEN: kpkScript})

	p, err := m.Evaluate(context.Background(), kpkFEN)
	is.NoErr(err)
	is.Equal(len(p), 5)
	is.Equal(p[0].Move, "Ke8")
	is.Equal(p[1].Move, "Ke7")
	assert.InDelta(t, 0.4512, p.Probability("Ke8"), 1e-9)
	assert.InDelta(t, 0.0501, p.Probability("Kc7"), 1e-9)
	assert.InDelta(t, 1.0, p.Total(), 1e-9)
}

func TestMaiaFillsMissingMovesWithZero(t *testing.T) {
	is := is.New(t)
	m, _ := newScriptedLc0(t, map[string][]string{kpkFEN: {
		"info string d8e8  (1202) N:       0 (+ 0) (P: 90.00%) (WL:  -.-----)",
		"bestmove d8e8",
	}})
	p, err := m.Evaluate(context.Background(), kpkFEN)
	is.NoErr(err)
	is.Equal(len(p), 5)
	is.Equal(p.Probability("Kd7"), 0.0)
	is.Equal(p[0], MoveProbability{Move: "Ke8", Probability: 0.9})
}

func TestMaiaCachesAndSharesCycles(t *testing.T) {
	is := is.New(t)
	m, s := newScriptedLc0(t, map[string][]string{kpkFEN: kpkScript})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := m.Evaluate(ctx, kpkFEN)
			if err != nil || p[0].Move != "Ke8" {
				t.Errorf("unexpected policy %v, %v", p, err)
			}
		}()
	}
	wg.Wait()
	_, err := m.Evaluate(ctx, kpkFEN)
	is.NoErr(err)
	is.Equal(s.goCount(), 1)
	is.Equal(m.Stats().Requests, uint64(1))
}

func TestMaiaSerializesDifferentPositions(t *testing.T) {
	is := is.New(t)
	other := "4k3/8/8/8/3K4/3P4/8/8 w - - 0 1"
	m, s := newScriptedLc0(t, map[string][]string{
		kpkFEN: kpkScript,
		other: {
			"info string d4e5  (1) N: 0 (+ 0) (P: 60.00%) (WL:  -.-----)",
			"info string d4c5  (1) N: 0 (+ 0) (P: 40.00%) (WL:  -.-----)",
			"bestmove d4e5",
		},
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	var p1, p2 Policy
	var err1, err2 error
	wg.Add(2)
	go func() { defer wg.Done(); p1, err1 = m.Evaluate(ctx, kpkFEN) }()
	go func() { defer wg.Done(); p2, err2 = m.Evaluate(ctx, other) }()
	wg.Wait()
	is.NoErr(err1)
	is.NoErr(err2)
	is.Equal(p1[0].Move, "Ke8")
	is.Equal(p2[0].Move, "Ke5")
	is.Equal(s.goCount(), 2)
}

func TestMaiaIllegalMoveIsProtocolError(t *testing.T) {
	is := is.New(t)
	m, _ := newScriptedLc0(t, map[string][]string{kpkFEN: {
		"info string a1a2  (1) N: 0 (+ 0) (P: 60.00%) (WL:  -.-----)",
		"bestmove a1a2",
	}})
	_, err := m.Evaluate(context.Background(), kpkFEN)
	is.True(errors.Is(err, ErrProtocol))

	// the stream can no longer be trusted
	_, err = m.Evaluate(context.Background(), "4k3/8/8/8/3K4/3P4/8/8 w - - 0 1")
	is.True(errors.Is(err, ErrProtocol))
}

func TestMaiaBestmoveMustBeLegal(t *testing.T) {
	is := is.New(t)
	m, _ := newScriptedLc0(t, map[string][]string{kpkFEN: {
		"info string d8e8  (1202) N: 0 (+ 0) (P: 90.00%) (WL:  -.-----)",
		"bestmove h1h2",
	}})
	_, err := m.Evaluate(context.Background(), kpkFEN)
	is.True(errors.Is(err, ErrProtocol))
}

func TestMaiaProcessExit(t *testing.T) {
	is := is.New(t)
	m, s := newScriptedLc0(t, nil)
	s.exit()
	_, err := m.Evaluate(context.Background(), kpkFEN)
	is.True(errors.Is(err, ErrProcessExited))
}

func TestMaiaCloseStopsReaderOnUndrainedOutput(t *testing.T) {
	is := is.New(t)
	f := newFakeProcess("maia")
	positions, err := position.NewCache(100)
	is.NoErr(err)
	m, err := newMaia(f.proc, positions, 100)
	is.NoErr(err)

	// after a failed cycle nobody reads lc0's output any more
	m.fail(ErrProtocol)
	go func() {
		for i := 0; i < cap(m.lines)+50; i++ {
			f.respond("info string stray output")
		}
	}()
	waitFor(t, func() bool { return len(m.lines) == cap(m.lines) })

	is.NoErr(m.Close())
	select {
	case <-m.stopped:
	case <-time.After(testTimeout):
		t.Fatal("reader still blocked after Close")
	}
	_, err = m.Evaluate(context.Background(), kpkFEN)
	is.True(errors.Is(err, ErrProtocol))
}

func TestMaiaCastlingAlias(t *testing.T) {
	is := is.New(t)
	fen := "4k3/8/8/8/8/8/8/4K2R w K - 0 1"
	m, _ := newScriptedLc0(t, map[string][]string{fen: {
		"info string e1h1  (1) N: 0 (+ 0) (P: 70.00%) (WL:  -.-----)",
		"bestmove e1g1",
	}})
	p, err := m.Evaluate(context.Background(), fen)
	is.NoErr(err)
	is.Equal(p[0].Move, "O-O")
}

func TestNewMaiaChecksOptions(t *testing.T) {
	is := is.New(t)
	positions, err := position.NewCache(10)
	is.NoErr(err)

	_, err = NewMaia(MaiaOptions{Lc0Path: "lc0", WeightsDir: t.TempDir(), Elo: 1550}, positions)
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "unsupported"))

	_, err = NewMaia(MaiaOptions{Lc0Path: "lc0", WeightsDir: t.TempDir(), Elo: 1500}, positions)
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "weights file not found"))
}
