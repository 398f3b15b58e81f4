package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/swindlechess/swindler/cache"
	"github.com/swindlechess/swindler/config"
	"github.com/swindlechess/swindler/position"
	"github.com/swindlechess/swindler/swindle"
)

type CmdOptions map[string][]string

func (c CmdOptions) String(key string) string {
	v := c[key]
	if len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c CmdOptions) IntDefault(key string, defaultI int) (int, error) {
	v := c[key]
	if len(v) == 0 {
		return defaultI, nil
	}
	return strconv.Atoi(v[0])
}

func (c CmdOptions) Bool(key string) bool {
	v := c[key]
	if len(v) == 0 {
		return false
	}
	return strings.ToLower(v[0]) == "true"
}

func (sc *ShellController) legalMoves() []string {
	if sc.curFEN == "" {
		return nil
	}
	data, err := sc.searcher.Positions().Get(sc.curFEN)
	if err != nil {
		return nil
	}
	return data.Moves
}

// target is the FEN a search command works on: the arguments joined
// together if given, the loaded position otherwise.
func (sc *ShellController) target(cmd *shellcmd) (string, error) {
	if len(cmd.args) > 0 {
		return strings.Join(cmd.args, " "), nil
	}
	if sc.curFEN == "" {
		return "", errNoPosition
	}
	return sc.curFEN, nil
}

func (sc *ShellController) budget(cmd *shellcmd) (int, error) {
	def := 1
	if sc.config != nil {
		def = sc.config.GetInt(config.ConfigSearchDepth)
	}
	b, err := cmd.options.IntDefault("budget", def)
	if err != nil {
		return 0, err
	}
	if b < 0 {
		return 0, errors.New("budget cannot be negative")
	}
	return b, nil
}

func (sc *ShellController) fen(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		if sc.curFEN == "" {
			return nil, errNoPosition
		}
		return msg(sc.curFEN), nil
	}
	data, err := sc.searcher.Positions().Get(strings.Join(cmd.args, " "))
	if err != nil {
		return nil, err
	}
	sc.curFEN = data.FEN
	sc.history = nil
	return sc.show(cmd)
}

func (sc *ShellController) show(cmd *shellcmd) (*Response, error) {
	if sc.curFEN == "" {
		return nil, errNoPosition
	}
	g, err := position.Decode(sc.curFEN)
	if err != nil {
		return nil, err
	}
	data, err := sc.searcher.Positions().Get(sc.curFEN)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString(g.Position().Board().Draw())
	fmt.Fprintf(&b, "%s to move, %d pieces\n", lo.Ternary(data.WhiteToMove, "White", "Black"), data.NumPieces)
	switch {
	case data.IsCheckmate:
		b.WriteString("checkmate\n")
	case data.IsStalemate:
		b.WriteString("stalemate\n")
	case data.IsInsufficientMaterial:
		b.WriteString("insufficient material\n")
	}
	b.WriteString(sc.curFEN)
	return msg(b.String()), nil
}

func (sc *ShellController) moves(cmd *shellcmd) (*Response, error) {
	mvs := sc.legalMoves()
	if sc.curFEN == "" {
		return nil, errNoPosition
	}
	if len(mvs) == 0 {
		return msg("no legal moves"), nil
	}
	return msg(strings.Join(mvs, " ")), nil
}

func (sc *ShellController) play(cmd *shellcmd) (*Response, error) {
	if sc.curFEN == "" {
		return nil, errNoPosition
	}
	if len(cmd.args) == 0 {
		return nil, errors.New("play needs a move in SAN")
	}
	for _, mv := range cmd.args {
		data, err := sc.searcher.Positions().Get(sc.curFEN)
		if err != nil {
			return nil, err
		}
		next, ok := data.MoveMap[mv]
		if !ok {
			return nil, fmt.Errorf("%w: %s in %s", swindle.ErrUnknownMove, mv, sc.curFEN)
		}
		sc.history = append(sc.history, sc.curFEN)
		sc.curFEN = next
	}
	return sc.show(cmd)
}

func (sc *ShellController) back(cmd *shellcmd) (*Response, error) {
	if len(sc.history) == 0 {
		return nil, errors.New("no earlier position")
	}
	sc.curFEN = sc.history[len(sc.history)-1]
	sc.history = sc.history[:len(sc.history)-1]
	return sc.show(cmd)
}

func (sc *ShellController) leaf(ctx context.Context, cmd *shellcmd) (*Response, error) {
	fen, err := sc.target(cmd)
	if err != nil {
		return nil, err
	}
	ours := true
	if v := cmd.options.String("ours"); v != "" {
		ours = cmd.options.Bool("ours")
	}
	e, err := sc.searcher.LeafEvaluate(ctx, fen, ours)
	if err != nil {
		return nil, err
	}
	return msg(e.String()), nil
}

func (sc *ShellController) maia(ctx context.Context, cmd *shellcmd) (*Response, error) {
	fen, err := sc.target(cmd)
	if err != nil {
		return nil, err
	}
	b, err := sc.budget(cmd)
	if err != nil {
		return nil, err
	}
	e, err := sc.searcher.MaiaEvaluate(ctx, fen, b)
	if err != nil {
		return nil, err
	}
	return msg(e.String()), nil
}

func (sc *ShellController) swindle(ctx context.Context, cmd *shellcmd) (*Response, error) {
	fen, err := sc.target(cmd)
	if err != nil {
		return nil, err
	}
	b, err := sc.budget(cmd)
	if err != nil {
		return nil, err
	}
	e, err := sc.searcher.SwindleEvaluate(ctx, fen, b)
	if err != nil {
		return nil, err
	}
	return msg(e.String()), nil
}

func (sc *ShellController) rank(ctx context.Context, cmd *shellcmd) (*Response, error) {
	fen, err := sc.target(cmd)
	if err != nil {
		return nil, err
	}
	b, err := sc.budget(cmd)
	if err != nil {
		return nil, err
	}
	top, err := cmd.options.IntDefault("top", 0)
	if err != nil {
		return nil, err
	}
	ranked, err := sc.searcher.RankMoves(ctx, fen, b)
	if err != nil {
		return nil, err
	}
	if top > 0 && top < len(ranked) {
		ranked = ranked[:top]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-4s %-8s %-8s %-8s\n", "#", "move", "wdl", "dtm")
	for i, me := range ranked {
		fmt.Fprintf(&sb, "%-4d %-8s %-8.4f %-8.2f\n", i+1, me.Move, me.WDL, me.DTM)
	}
	return msg(strings.TrimRight(sb.String(), "\n")), nil
}

func (sc *ShellController) choose(ctx context.Context, cmd *shellcmd) (*Response, error) {
	fen, err := sc.target(cmd)
	if err != nil {
		return nil, err
	}
	b, err := sc.budget(cmd)
	if err != nil {
		return nil, err
	}
	me, err := sc.searcher.Choose(ctx, fen, b)
	if err != nil {
		return nil, err
	}
	return msg(me.String()), nil
}

func (sc *ShellController) policy(ctx context.Context, cmd *shellcmd) (*Response, error) {
	fen, err := sc.target(cmd)
	if err != nil {
		return nil, err
	}
	top, err := cmd.options.IntDefault("top", 10)
	if err != nil {
		return nil, err
	}
	p, err := sc.searcher.PolicyOracle().Evaluate(ctx, position.Normalize(fen))
	if err != nil {
		return nil, err
	}
	if top > 0 && top < len(p) {
		p = p[:top]
	}
	var sb strings.Builder
	for _, mp := range p {
		fmt.Fprintf(&sb, "%-8s %6.2f%%\n", mp.Move, mp.Probability*100)
	}
	return msg(strings.TrimRight(sb.String(), "\n")), nil
}

func (sc *ShellController) stats(cmd *shellcmd) (*Response, error) {
	st := sc.searcher.Stats()
	p := message.NewPrinter(language.English)
	var sb strings.Builder
	for _, cs := range []cache.Stats{st.Evals, st.Positions} {
		total := cs.Hits + cs.Misses
		rate := 0.0
		if total > 0 {
			rate = 100 * float64(cs.Hits) / float64(total)
		}
		p.Fprintf(&sb, "%-10s %12d entries %14d hits %14d misses (%.1f%%)\n",
			cs.Name, cs.Len, cs.Hits, cs.Misses, rate)
	}
	return msg(strings.TrimRight(sb.String(), "\n")), nil
}
