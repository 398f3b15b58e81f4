package oracle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

const testTimeout = 5 * time.Second

// fakeProcess stands in for an oracle child process. Lines the adapter
// sends show up on received; the test answers with respond.
type fakeProcess struct {
	proc     *Process
	received chan string
	outW     *io.PipeWriter
}

func newFakeProcess(name string) *fakeProcess {
	return newScriptedProcess(name, nil)
}

// newScriptedProcess calls handle with every line the adapter sends, after
// the line is recorded on received.
func newScriptedProcess(name string, handle func(f *fakeProcess, line string)) *fakeProcess {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	f := &fakeProcess{
		proc:     newProcess(name, inW, outR, nil),
		received: make(chan string, 256),
		outW:     outW,
	}
	go func() {
		s := bufio.NewScanner(inR)
		for s.Scan() {
			f.received <- s.Text()
			if handle != nil {
				handle(f, s.Text())
			}
		}
		// stdin closed: the process goes away.
		outW.Close()
	}()
	return f
}

func (f *fakeProcess) respond(lines ...string) {
	for _, line := range lines {
		fmt.Fprintln(f.outW, line)
	}
}

// exit simulates the child dying on its own.
func (f *fakeProcess) exit() {
	f.outW.Close()
}

func (f *fakeProcess) next(t *testing.T) string {
	t.Helper()
	select {
	case line := <-f.received:
		return line
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for the adapter to send a line")
	}
	return ""
}

// quiet asserts nothing else was sent within a short window.
func (f *fakeProcess) quiet(t *testing.T) {
	t.Helper()
	select {
	case line := <-f.received:
		t.Fatalf("unexpected line sent: %q", line)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProcessSend(t *testing.T) {
	is := is.New(t)
	f := newFakeProcess("echo")
	is.NoErr(f.proc.Send("uci", "isready"))
	is.Equal(f.next(t), "uci")
	is.Equal(f.next(t), "isready")

	is.NoErr(f.proc.Close())
	is.True(f.proc.Closed())
	is.Equal(f.proc.Send("go"), ErrClosed)
	// closing twice is harmless
	is.NoErr(f.proc.Close())
}
