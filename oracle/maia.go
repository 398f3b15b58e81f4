package oracle

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/swindlechess/swindler/cache"
	"github.com/swindlechess/swindler/position"
)

// SupportedElos lists the ratings maia weights exist for.
var SupportedElos = []int{1100, 1200, 1300, 1400, 1500, 1600, 1700, 1800, 1900}

// info string d8e8  (1234) N: 0 (+ 0) (P: 45.12%) (WL: ...) ...
var verboseStatRe = regexp.MustCompile(`info string ([^ ]+) .*? ?\(P: +(\d+\.\d+)%`)

// lc0 may print castling as the king taking its own rook.
var castlingAliases = map[string]string{
	"e1h1": "e1g1",
	"e1a1": "e1c1",
	"e8h8": "e8g8",
	"e8a8": "e8c8",
}

type MaiaOptions struct {
	Lc0Path    string
	WeightsDir string
	Elo        int
	CacheSize  int
}

func (o MaiaOptions) WeightsFile() string {
	return filepath.Join(o.WeightsDir, fmt.Sprintf("maia-%d.pb.gz", o.Elo))
}

// Maia asks lc0 running maia weights for the move probabilities of a
// position. lc0 handles one position/go/bestmove cycle at a time, so cycles
// are queued on a Lock.
type Maia struct {
	proc      *Process
	lock      Lock
	flight    singleflight.Group
	positions *position.Cache
	results   *cache.Cache[string, Policy]

	lines   chan string
	readErr error // set before lines is closed
	// done is closed by Close so the reader never blocks on a full lines
	// nobody drains; stopped is closed when the reader returns.
	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}

	mu  sync.Mutex
	err error

	requests atomic.Uint64
}

type MaiaStats struct {
	Requests uint64
	Cache    cache.Stats
}

func NewMaia(opts MaiaOptions, positions *position.Cache) (*Maia, error) {
	if !lo.Contains(SupportedElos, opts.Elo) {
		return nil, fmt.Errorf("unsupported maia elo %d, want one of %v", opts.Elo, SupportedElos)
	}
	weights := opts.WeightsFile()
	if _, err := os.Stat(weights); err != nil {
		return nil, fmt.Errorf("weights file not found: %s: %w", weights, err)
	}
	proc, err := StartProcess("maia", opts.Lc0Path, "--weights="+weights)
	if err != nil {
		return nil, err
	}
	return newMaia(proc, positions, opts.CacheSize)
}

func newMaia(proc *Process, positions *position.Cache, cacheSize int) (*Maia, error) {
	results, err := cache.New[string, Policy]("maia", cacheSize)
	if err != nil {
		return nil, err
	}
	m := &Maia{
		proc:      proc,
		positions: positions,
		results:   results,
		lines:     make(chan string, 1024),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go m.readLoop()

	err = proc.Send(
		"uci",
		"ucinewgame",
		"setoption name VerboseMoveStats value true",
	)
	if err != nil {
		proc.Close()
		return nil, err
	}
	return m, nil
}

func (m *Maia) readLoop() {
	defer close(m.stopped)
	defer close(m.lines)
	scanner := m.proc.Scanner()
	for scanner.Scan() {
		select {
		case m.lines <- scanner.Text():
		case <-m.done:
			m.readErr = ErrClosed
			return
		}
	}
	switch err := scanner.Err(); {
	case m.proc.Closed():
		m.readErr = ErrClosed
	case err != nil:
		m.readErr = fmt.Errorf("%w: maia: %v", ErrProcessExited, err)
	default:
		m.readErr = fmt.Errorf("%w: maia", ErrProcessExited)
	}
}

// Evaluate returns the policy for fen, which must already be normalized.
// Concurrent callers for the same position share a single cycle.
func (m *Maia) Evaluate(ctx context.Context, fen string) (Policy, error) {
	if p, ok := m.results.Get(fen); ok {
		return p, nil
	}
	ch := m.flight.DoChan(fen, func() (interface{}, error) {
		return RunExclusive(&m.lock, func() (Policy, error) {
			if err := m.failed(); err != nil {
				return nil, err
			}
			// a queued duplicate may have been answered while we waited.
			if p, ok := m.results.Get(fen); ok {
				return p, nil
			}
			p, err := m.query(fen)
			if err != nil {
				m.fail(err)
				return nil, err
			}
			return p, nil
		})
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(Policy), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Maia) query(fen string) (Policy, error) {
	data, err := m.positions.Get(fen)
	if err != nil {
		return nil, err
	}
	weights := make(map[string]float64, len(data.Moves))
	for _, san := range data.Moves {
		weights[san] = 0
	}

	m.requests.Add(1)
	log.Trace().Str("fen", fen).Msg("maia-request")
	if err := m.proc.Send("position fen "+fen, "go nodes 1"); err != nil {
		return nil, fmt.Errorf("%w: maia: %v", ErrProcessExited, err)
	}

	for line := range m.lines {
		line = strings.TrimSpace(line)
		if match := verboseStatRe.FindStringSubmatch(line); match != nil {
			if match[1] == "node" {
				continue
			}
			san, ok := lookupMove(data, match[1])
			if !ok {
				return nil, fmt.Errorf("%w: maia: move %s not legal in %s", ErrProtocol, match[1], fen)
			}
			pct, err := strconv.ParseFloat(match[2], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: maia: %q", ErrMalformedResponse, line)
			}
			weights[san] = math.Round(pct*100) / 10000
			continue
		}
		if strings.HasPrefix(line, "bestmove") {
			fields := strings.Fields(line)
			if len(data.Moves) > 0 {
				if len(fields) < 2 {
					return nil, fmt.Errorf("%w: maia: %q", ErrMalformedResponse, line)
				}
				if _, ok := lookupMove(data, fields[1]); !ok {
					return nil, fmt.Errorf("%w: maia: bestmove %s not legal in %s", ErrProtocol, fields[1], fen)
				}
			}
			policy := newPolicy(weights)
			m.results.Add(fen, policy)
			return policy, nil
		}
	}
	return nil, m.readErr
}

func lookupMove(data *position.Data, uci string) (string, bool) {
	if san, ok := data.UCIToSAN[uci]; ok {
		return san, true
	}
	if alias, ok := castlingAliases[uci]; ok {
		san, ok := data.UCIToSAN[alias]
		return san, ok && strings.HasPrefix(san, "O-O")
	}
	return "", false
}

func (m *Maia) failed() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// fail poisons the adapter: after a protocol error the output stream can
// no longer be matched to requests.
func (m *Maia) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil {
		m.err = err
		log.Error().Err(err).Msg("maia-failed")
	}
}

func (m *Maia) Stats() MaiaStats {
	return MaiaStats{
		Requests: m.requests.Load(),
		Cache:    m.results.Stats(),
	}
}

// Close kills lc0. A cycle in progress ends with ErrClosed.
func (m *Maia) Close() error {
	m.fail(ErrClosed)
	m.closeOnce.Do(func() { close(m.done) })
	return m.proc.Close()
}
