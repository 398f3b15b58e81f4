package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/swindlechess/swindler/cache"
)

// TablebaseResult is an exact probe result from the point of view of the
// side to move. Distance is DTZ for syzygy and DTM for gaviota.
type TablebaseResult struct {
	WDL      int `yaml:"wdl"`
	Distance int `yaml:"distance"`
}

type tablebaseReply struct {
	result TablebaseResult
	err    error
}

// Tablebase multiplexes probes over a single responder process. The
// responder echoes the FEN in every answer, and that FEN is the only way
// to tell answers apart: there are no request ids. All callers waiting on
// the same FEN share one request and all of them get the answer.
type Tablebase struct {
	name          string
	distanceField string
	proc          *Process
	results       *cache.Cache[string, TablebaseResult]
	// per-FEN error answers; a position the responder refused is never
	// sent again
	failures *cache.Cache[string, error]

	mu      sync.Mutex
	pending map[string][]chan tablebaseReply
	err     error

	requests atomic.Uint64
}

type TablebaseStats struct {
	Name     string
	Requests uint64
	Pending  int
	Cache    cache.Stats
}

// NewSyzygy starts `script dir`, answering {fen, wdl, dtz}.
func NewSyzygy(script, dir string, cacheSize int) (*Tablebase, error) {
	proc, err := StartProcess("syzygy", script, dir)
	if err != nil {
		return nil, err
	}
	return newTablebase("syzygy", "dtz", proc, cacheSize)
}

// NewGaviota starts `script dir`, answering {fen, wdl, dtm}.
func NewGaviota(script, dir string, cacheSize int) (*Tablebase, error) {
	proc, err := StartProcess("gaviota", script, dir)
	if err != nil {
		return nil, err
	}
	return newTablebase("gaviota", "dtm", proc, cacheSize)
}

func newTablebase(name, distanceField string, proc *Process, cacheSize int) (*Tablebase, error) {
	results, err := cache.New[string, TablebaseResult](name, cacheSize)
	if err != nil {
		return nil, err
	}
	failures, err := cache.New[string, error](name+"-errors", cacheSize)
	if err != nil {
		return nil, err
	}
	t := &Tablebase{
		name:          name,
		distanceField: distanceField,
		proc:          proc,
		results:       results,
		failures:      failures,
		pending:       make(map[string][]chan tablebaseReply),
	}
	go t.readLoop()
	return t, nil
}

func (t *Tablebase) Name() string {
	return t.name
}

// Evaluate returns the probe result for fen, which must already be
// normalized. Cancelling ctx stops this caller from waiting but does not
// withdraw the request.
func (t *Tablebase) Evaluate(ctx context.Context, fen string) (TablebaseResult, error) {
	if res, ok := t.results.Get(fen); ok {
		return res, nil
	}
	reply := make(chan tablebaseReply, 1)

	t.mu.Lock()
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return TablebaseResult{}, err
	}
	// The reader stores results under mu, so this second look cannot miss
	// an answer that arrived after the first one.
	if res, ok := t.results.Get(fen); ok {
		t.mu.Unlock()
		return res, nil
	}
	if err, ok := t.failures.Get(fen); ok {
		t.mu.Unlock()
		return TablebaseResult{}, err
	}
	waiters, inflight := t.pending[fen]
	t.pending[fen] = append(waiters, reply)
	t.mu.Unlock()

	if !inflight {
		t.requests.Add(1)
		log.Trace().Str("oracle", t.name).Str("fen", fen).Msg("tablebase-request")
		if err := t.proc.Send(fen); err != nil {
			t.fail(fmt.Errorf("%w: %s: %v", ErrProcessExited, t.name, err))
		}
	}

	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return TablebaseResult{}, ctx.Err()
	}
}

func (t *Tablebase) readLoop() {
	scanner := t.proc.Scanner()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			t.fail(fmt.Errorf("%w: %s: %q", ErrMalformedResponse, t.name, line))
			return
		}
		resp := gjson.Parse(line)
		fen := resp.Get("fen").String()

		if msg := resp.Get("error"); msg.Exists() {
			if fen == "" {
				t.fail(fmt.Errorf("%w: %s: %s", ErrOracle, t.name, msg.String()))
				return
			}
			log.Error().Str("oracle", t.name).Str("fen", fen).Str("error", msg.String()).Msg("tablebase-error")
			t.deliver(fen, TablebaseResult{}, fmt.Errorf("%w: %s: %s: %s", ErrOracle, t.name, fen, msg.String()))
			continue
		}

		wdl, dist := resp.Get("wdl"), resp.Get(t.distanceField)
		if fen == "" || wdl.Type != gjson.Number || dist.Type != gjson.Number {
			t.fail(fmt.Errorf("%w: %s: %q", ErrMalformedResponse, t.name, line))
			return
		}
		t.deliver(fen, TablebaseResult{WDL: int(wdl.Int()), Distance: int(dist.Int())}, nil)
	}

	switch err := scanner.Err(); {
	case t.proc.Closed():
		t.fail(ErrClosed)
	case err != nil:
		t.fail(fmt.Errorf("%w: %s: %v", ErrProcessExited, t.name, err))
	default:
		t.fail(fmt.Errorf("%w: %s", ErrProcessExited, t.name))
	}
}

// deliver caches the answer for fen, result or error, and hands it to
// every waiter on fen.
func (t *Tablebase) deliver(fen string, res TablebaseResult, err error) {
	t.mu.Lock()
	if err == nil {
		t.results.Add(fen, res)
	} else {
		t.failures.Add(fen, err)
	}
	waiters := t.pending[fen]
	delete(t.pending, fen)
	t.mu.Unlock()

	for _, w := range waiters {
		w <- tablebaseReply{result: res, err: err}
	}
}

// fail poisons the adapter; every current and future caller gets err.
func (t *Tablebase) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
		log.Error().Err(err).Str("oracle", t.name).Msg("tablebase-failed")
	}
	err = t.err
	pending := t.pending
	t.pending = make(map[string][]chan tablebaseReply)
	t.mu.Unlock()

	for _, waiters := range pending {
		for _, w := range waiters {
			w <- tablebaseReply{err: err}
		}
	}
}

func (t *Tablebase) Stats() TablebaseStats {
	t.mu.Lock()
	pending := len(t.pending)
	t.mu.Unlock()
	return TablebaseStats{
		Name:     t.name,
		Requests: t.requests.Load(),
		Pending:  pending,
		Cache:    t.results.Stats(),
	}
}

// Close kills the responder. Waiting callers receive ErrClosed.
func (t *Tablebase) Close() error {
	err := t.proc.Close()
	t.fail(ErrClosed)
	return err
}
