package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"

	"github.com/swindlechess/swindler/config"
	"github.com/swindlechess/swindler/position"
	"github.com/swindlechess/swindler/swindle"
)

var (
	errNoData            = errors.New("no data in command")
	errWrongOptionSyntax = errors.New("wrong format; all options need arguments")
	errNoPosition        = errors.New("no position loaded; use fen first")
)

// Searcher is what the shell needs from a swindle session.
type Searcher interface {
	LeafEvaluate(ctx context.Context, fen string, ourTurn bool) (swindle.Eval, error)
	MaiaEvaluate(ctx context.Context, fen string, budget int) (swindle.Eval, error)
	SwindleEvaluate(ctx context.Context, fen string, budget int) (swindle.Eval, error)
	RankMoves(ctx context.Context, fen string, budget int) ([]swindle.MoveEval, error)
	Choose(ctx context.Context, fen string, budget int) (swindle.MoveEval, error)
	Stats() swindle.Stats
	Positions() *position.Cache
	PolicyOracle() swindle.PolicyOracle
}

type ShellController struct {
	l *readline.Instance

	config   *config.Config
	searcher Searcher

	curFEN  string
	history []string
}

type shellcmd struct {
	cmd     string
	args    []string
	options CmdOptions
}

type Response struct {
	message string
}

func (r *Response) String() string {
	return r.message
}

func msg(message string) *Response {
	return &Response{message: message}
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func showMessage(msg string, w io.Writer) {
	io.WriteString(w, msg)
	io.WriteString(w, "\n")
}

func NewShellController(cfg *config.Config, searcher Searcher) (*ShellController, error) {
	sc := newController(cfg, searcher)
	l, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[31mswindler>\033[0m ",
		HistoryFile:     "/tmp/swindler-readline.tmp",
		AutoComplete:    NewShellCompleter(sc),
		EOFPrompt:       "exit",
		InterruptPrompt: "^C",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return nil, err
	}
	sc.l = l
	return sc, nil
}

func newController(cfg *config.Config, searcher Searcher) *ShellController {
	return &ShellController{config: cfg, searcher: searcher}
}

// extractFields splits a command line into the command, its positional
// arguments and its -key value options.
func extractFields(line string) (*shellcmd, error) {
	fields, err := shellquote.Split(line)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errNoData
	}
	cmd := &shellcmd{cmd: fields[0], options: CmdOptions{}}
	for i := 1; i < len(fields); i++ {
		f := fields[i]
		if isOption(f) {
			if i == len(fields)-1 {
				return nil, errWrongOptionSyntax
			}
			key := f[1:]
			cmd.options[key] = append(cmd.options[key], fields[i+1])
			i++
			continue
		}
		cmd.args = append(cmd.args, f)
	}
	return cmd, nil
}

// isOption is true for -name but not for negative numbers or a lone "-",
// which shows up in FENs.
func isOption(f string) bool {
	if len(f) < 2 || f[0] != '-' {
		return false
	}
	_, err := strconv.ParseFloat(f, 64)
	return err != nil
}

func (sc *ShellController) showMessage(msg string) {
	showMessage(msg, sc.l.Stdout())
}

func (sc *ShellController) showError(err error) {
	showMessage("Error: "+err.Error(), sc.l.Stderr())
}

// Execute runs one command line and returns what should be shown.
func (sc *ShellController) Execute(ctx context.Context, line string) (*Response, error) {
	cmd, err := extractFields(line)
	if err != nil {
		return nil, err
	}
	switch cmd.cmd {
	case "fen":
		return sc.fen(cmd)
	case "show":
		return sc.show(cmd)
	case "moves":
		return sc.moves(cmd)
	case "play":
		return sc.play(cmd)
	case "back":
		return sc.back(cmd)
	case "leaf":
		return sc.leaf(ctx, cmd)
	case "maia":
		return sc.maia(ctx, cmd)
	case "swindle":
		return sc.swindle(ctx, cmd)
	case "rank":
		return sc.rank(ctx, cmd)
	case "choose":
		return sc.choose(ctx, cmd)
	case "policy":
		return sc.policy(ctx, cmd)
	case "stats":
		return sc.stats(cmd)
	case "help":
		return sc.help(cmd)
	default:
		return nil, fmt.Errorf("command %v not found", strconv.Quote(cmd.cmd))
	}
}

// Loop reads commands until exit or EOF, then signals sig.
func (sc *ShellController) Loop(ctx context.Context, sig chan os.Signal) {
	defer sc.l.Close()

	for {
		line, err := sc.l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				sig <- syscall.SIGINT
				break
			}
			continue
		} else if err == io.EOF {
			sig <- syscall.SIGINT
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			sig <- syscall.SIGINT
			break
		}
		resp, err := sc.Execute(ctx, line)
		if err != nil {
			sc.showError(err)
			continue
		}
		if resp != nil && resp.message != "" {
			sc.showMessage(resp.message)
		}
	}
	log.Debug().Msg("exiting-readline-loop")
}
