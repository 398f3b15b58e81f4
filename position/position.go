// Package position derives and caches everything the search needs to know
// about a single chess position: its legal moves, the position each move
// leads to, whether the game is over, and a coarse material verdict on
// whether either side can still win.
package position

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

var (
	ErrBadFEN = errors.New("bad fen")
)

// singlePieceWins are the piece types that can force mate on their own
// with the help of the king.
var singlePieceWins = map[chess.PieceType]bool{
	chess.Queen: true,
	chess.Rook:  true,
	chess.Pawn:  true,
}

// Normalize replaces the half-move clock and full-move number of a FEN with
// "0 1" so positions reached by different move orders share one key.
func Normalize(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return strings.TrimSpace(fen)
	}
	return strings.Join(fields[:4], " ") + " 0 1"
}

// Canonical is Normalize plus dropping an en-passant square no pawn can
// capture on, so a pasted FEN and the same position reached by a move
// share one key.
func Canonical(fen string) (string, error) {
	fen = Normalize(fen)
	fields := strings.Fields(fen)
	if len(fields) < 4 || fields[3] == "-" {
		return fen, nil
	}
	g, err := Decode(fen)
	if err != nil {
		return "", err
	}
	return FEN(g.Position()), nil
}

// Decode parses a FEN into a game rooted at that position.
func Decode(fen string) (*chess.Game, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadFEN, fen, err)
	}
	return chess.NewGame(opt), nil
}

// FEN returns the normalized FEN of pos. The en-passant square is only
// kept when an en-passant capture is actually legal.
func FEN(pos *chess.Position) string {
	fields := strings.Fields(pos.String())
	if len(fields) >= 4 && fields[3] != "-" && !hasEnPassantCapture(pos) {
		fields[3] = "-"
	}
	return Normalize(strings.Join(fields, " "))
}

func hasEnPassantCapture(pos *chess.Position) bool {
	for _, m := range pos.ValidMoves() {
		if m.HasTag(chess.EnPassant) {
			return true
		}
	}
	return false
}

// Data is the derived information for one normalized position. It is a
// pure function of the FEN and is never modified once built.
type Data struct {
	FEN string
	// Moves in SAN, in generation order.
	Moves []string
	// MoveMap maps each SAN move to the normalized FEN it leads to.
	MoveMap map[string]string
	// UCIToSAN maps long algebraic moves (as engines print them) to SAN.
	UCIToSAN map[string]string

	WhiteToMove            bool
	IsCheckmate            bool
	IsStalemate            bool
	IsInsufficientMaterial bool

	NumPieces   int
	CanWhiteWin bool
	CanBlackWin bool

	Hash uint64
}

// CanMoverWin reports the material verdict for the side to move.
func (d *Data) CanMoverWin() bool {
	if d.WhiteToMove {
		return d.CanWhiteWin
	}
	return d.CanBlackWin
}

// IsDraw is true for stalemate and dead positions.
func (d *Data) IsDraw() bool {
	return d.IsStalemate || d.IsInsufficientMaterial
}

func newData(fen string, hasher func(*chess.Position) uint64) (*Data, error) {
	g, err := Decode(fen)
	if err != nil {
		return nil, err
	}
	pos := g.Position()
	valid := pos.ValidMoves()

	d := &Data{
		FEN:         fen,
		Moves:       make([]string, 0, len(valid)),
		MoveMap:     make(map[string]string, len(valid)),
		UCIToSAN:    make(map[string]string, len(valid)),
		WhiteToMove: pos.Turn() == chess.White,
	}
	for _, m := range valid {
		san := chess.AlgebraicNotation{}.Encode(pos, m)
		d.Moves = append(d.Moves, san)
		d.MoveMap[san] = FEN(pos.Update(m))
		d.UCIToSAN[chess.UCINotation{}.Encode(pos, m)] = san
	}

	switch g.Method() {
	case chess.Checkmate:
		d.IsCheckmate = true
	case chess.Stalemate:
		d.IsStalemate = true
	case chess.InsufficientMaterial:
		d.IsInsufficientMaterial = true
	}

	var white, black []chess.PieceType
	for _, piece := range pos.Board().SquareMap() {
		d.NumPieces++
		if piece.Type() == chess.King {
			continue
		}
		if piece.Color() == chess.White {
			white = append(white, piece.Type())
		} else {
			black = append(black, piece.Type())
		}
	}
	d.CanWhiteWin = canWin(white)
	d.CanBlackWin = canWin(black)

	if hasher != nil {
		d.Hash = hasher(pos)
	}
	return d, nil
}

// simplified logic
func canWin(nonKingPieces []chess.PieceType) bool {
	return len(nonKingPieces) > 1 ||
		(len(nonKingPieces) == 1 && singlePieceWins[nonKingPieces[0]])
}
