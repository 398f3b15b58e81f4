package zobrist

import (
	"github.com/notnil/chess"
	"lukechampine.com/frand"
)

const bignum = 1<<63 - 2

const (
	numSquares = 64
	// chess.Piece values run from NoPiece (0) through BlackPawn (12).
	numPieces = 13
)

// generate a zobrist hash for a chess position.
// https://en.wikipedia.org/wiki/Zobrist_hashing
type Zobrist struct {
	blackToMove uint64

	posTable  [numSquares][numPieces]uint64
	castling  [4]uint64
	enPassant [8]uint64
}

func New() *Zobrist {
	z := &Zobrist{}
	z.Initialize()
	return z
}

func (z *Zobrist) Initialize() {
	for i := 0; i < numSquares; i++ {
		for j := 1; j < numPieces; j++ {
			z.posTable[i][j] = frand.Uint64n(bignum) + 1
		}
	}
	for i := range z.castling {
		z.castling[i] = frand.Uint64n(bignum) + 1
	}
	for i := range z.enPassant {
		z.enPassant[i] = frand.Uint64n(bignum) + 1
	}
	z.blackToMove = frand.Uint64n(bignum) + 1
}

// Hash hashes the board, side to move, castling rights and en-passant file.
// Move counters are not part of the hash.
func (z *Zobrist) Hash(pos *chess.Position) uint64 {
	key := uint64(0)
	for sq, piece := range pos.Board().SquareMap() {
		key ^= z.posTable[sq][piece]
	}
	if pos.Turn() == chess.Black {
		key ^= z.blackToMove
	}
	cr := pos.CastleRights()
	if cr.CanCastle(chess.White, chess.KingSide) {
		key ^= z.castling[0]
	}
	if cr.CanCastle(chess.White, chess.QueenSide) {
		key ^= z.castling[1]
	}
	if cr.CanCastle(chess.Black, chess.KingSide) {
		key ^= z.castling[2]
	}
	if cr.CanCastle(chess.Black, chess.QueenSide) {
		key ^= z.castling[3]
	}
	if ep := pos.EnPassantSquare(); ep != chess.NoSquare {
		key ^= z.enPassant[ep.File()]
	}
	return key
}
