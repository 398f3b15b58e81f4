package swindle

import (
	"fmt"
	"strconv"
)

// Eval is a search result. WDL is an expected outcome in [-1, 1] and DTM a
// (possibly averaged) distance to mate; zero DTM means no mate information.
type Eval struct {
	WDL float64 `yaml:"wdl"`
	DTM float64 `yaml:"dtm"`
}

func (e Eval) String() string {
	return fmt.Sprintf("wdl %.4f dtm %.2f", e.WDL, e.DTM)
}

// negate flips the point of view without producing negative zeros.
func (e Eval) negate() Eval {
	if e.WDL != 0 {
		e.WDL = -e.WDL
	}
	if e.DTM != 0 {
		e.DTM = -e.DTM
	}
	return e
}

// IsBetter reports whether better ranks strictly above worse. Higher WDL
// wins; on equal WDL a losing side prefers the longer mate and everyone
// else the shorter one.
func IsBetter(worse, better Eval) bool {
	if better.WDL != worse.WDL {
		return better.WDL > worse.WDL
	}
	if better.WDL < 0 {
		return better.DTM > worse.DTM
	}
	return better.DTM < worse.DTM
}

// MoveEval is an evaluated candidate move for the side to move.
type MoveEval struct {
	Move string `yaml:"move"`
	FEN  string `yaml:"fen"`
	Eval `yaml:",inline"`
}

func (m MoveEval) String() string {
	return m.Move + " " + m.Eval.String()
}

// Kind tags which evaluation function produced a cached Eval.
type Kind uint8

const (
	KindLeafOurs Kind = iota
	KindLeafTheirs
	KindMaia
	KindSwindle
)

func (k Kind) String() string {
	switch k {
	case KindLeafOurs:
		return "leaf-ours"
	case KindLeafTheirs:
		return "leaf-theirs"
	case KindMaia:
		return "maia"
	case KindSwindle:
		return "swindle"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

type evalKey struct {
	kind   Kind
	budget int
	hash   uint64
}

func (k evalKey) String() string {
	return k.kind.String() + "/" + strconv.Itoa(k.budget) + "/" + strconv.FormatUint(k.hash, 16)
}
