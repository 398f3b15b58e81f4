// Package oracle wraps the external evaluators the swindle search depends
// on. Each adapter owns one long-lived process and a result cache: the
// syzygy and gaviota tablebase responders speak one JSON object per line
// and may have many requests in flight, while lc0 running maia weights
// speaks UCI and is driven one position at a time.
package oracle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	ErrOracle            = errors.New("oracle returned an error")
	ErrMalformedResponse = errors.New("malformed oracle response")
	ErrProtocol          = errors.New("oracle protocol error")
	ErrProcessExited     = errors.New("oracle process exited")
	ErrClosed            = errors.New("oracle closed")
)

const maxLineLength = 1 << 20

// Process is a child process spoken to line by line over stdin/stdout.
type Process struct {
	name string
	cmd  *exec.Cmd
	in   io.WriteCloser
	w    *bufio.Writer
	out  io.Reader

	mu     sync.Mutex
	closed atomic.Bool
}

// StartProcess launches path with args. The child's stderr is forwarded
// to the log.
func StartProcess(name, path string, args ...string) (*Process, error) {
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = log.With().Str("process", name).Logger()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s (%s): %w", name, path, err)
	}
	log.Info().Str("process", name).Str("path", path).Strs("args", args).
		Int("pid", cmd.Process.Pid).Msg("started-oracle-process")
	return newProcess(name, stdin, stdout, cmd), nil
}

func newProcess(name string, in io.WriteCloser, out io.Reader, cmd *exec.Cmd) *Process {
	return &Process{
		name: name,
		cmd:  cmd,
		in:   in,
		w:    bufio.NewWriter(in),
		out:  out,
	}
}

// Send writes each line followed by a newline and flushes.
func (p *Process) Send(lines ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return ErrClosed
	}
	for _, line := range lines {
		log.Trace().Str("process", p.name).Str("line", line).Msg("send")
		if _, err := fmt.Fprintln(p.w, line); err != nil {
			return err
		}
	}
	return p.w.Flush()
}

// Scanner returns a line scanner over the process output. Only one reader
// goroutine may use it.
func (p *Process) Scanner() *bufio.Scanner {
	s := bufio.NewScanner(p.out)
	s.Buffer(make([]byte, 64*1024), maxLineLength)
	return s
}

func (p *Process) Closed() bool {
	return p.closed.Load()
}

// Close kills the process. Requests still in flight are abandoned.
func (p *Process) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.in.Close()
	if p.cmd != nil && p.cmd.Process != nil {
		if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = errors.Join(err, kerr)
		}
		// The exit status of a killed process is not interesting.
		_ = p.cmd.Wait()
	}
	log.Debug().Str("process", p.name).Msg("closed-oracle-process")
	return err
}
