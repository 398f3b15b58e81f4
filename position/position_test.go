package position

import (
	"errors"
	"os"
	"sort"
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

const (
	kpkBlackToMove = "3k4/8/8/8/3K4/3P4/8/8 b - - 0 1"
	mated          = "7k/6Q1/6K1/8/8/8/8/8 b - - 0 1"
	stalemated     = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	bareKings      = "8/8/4k3/8/8/3K4/8/8 w - - 0 1"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(100)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNormalize(t *testing.T) {
	is := is.New(t)
	is.Equal(Normalize("3k4/8/8/8/3K4/3P4/8/8 b - - 12 57"), kpkBlackToMove)
	is.Equal(Normalize(kpkBlackToMove), kpkBlackToMove)
	is.Equal(Normalize("  3k4/8/8/8/3K4/3P4/8/8 b - -  "), kpkBlackToMove)
}

func TestData(t *testing.T) {
	is := is.New(t)
	c := newTestCache(t)
	d, err := c.Get(kpkBlackToMove)
	is.NoErr(err)
	is.True(!d.WhiteToMove)
	is.Equal(d.NumPieces, 3)
	is.True(d.CanWhiteWin)
	is.True(!d.CanBlackWin)
	is.True(!d.CanMoverWin())
	is.True(!d.IsCheckmate)
	is.True(!d.IsDraw())

	moves := append([]string{}, d.Moves...)
	sort.Strings(moves)
	is.Equal(moves, []string{"Kc7", "Kc8", "Kd7", "Ke7", "Ke8"})
	is.Equal(d.MoveMap["Ke8"], "4k3/8/8/8/3K4/3P4/8/8 w - - 0 1")
	is.Equal(d.UCIToSAN["d8e8"], "Ke8")
}

func TestGetIsMemoized(t *testing.T) {
	is := is.New(t)
	c := newTestCache(t)
	d1, err := c.Get(kpkBlackToMove)
	is.NoErr(err)
	d2, err := c.Get("3k4/8/8/8/3K4/3P4/8/8 b - - 30 80")
	is.NoErr(err)
	is.True(d1 == d2)
	is.Equal(c.Stats().Len, 1)
	is.Equal(c.Stats().Hits, uint64(1))
}

func TestDeadEnPassantSquareShared(t *testing.T) {
	is := is.New(t)
	c := newTestCache(t)
	pasted := "4k3/8/8/8/4P3/8/8/4K3 b - e3 7 30"

	canon, err := Canonical(pasted)
	is.NoErr(err)
	is.Equal(canon, "4k3/8/8/8/4P3/8/8/4K3 b - - 0 1")

	d1, err := c.Get(pasted)
	is.NoErr(err)
	is.Equal(d1.FEN, canon)

	start, err := c.Get("4k3/8/8/8/8/8/4P3/4K3 w - - 0 1")
	is.NoErr(err)
	d2, err := c.Get(start.MoveMap["e4"])
	is.NoErr(err)
	is.True(d1 == d2)
	is.Equal(d1.Hash, d2.Hash)

	// a capturable en-passant square is kept
	live := "4k3/8/8/8/3pP3/8/8/4K3 b - e3 0 1"
	canon, err = Canonical(live)
	is.NoErr(err)
	is.Equal(canon, live)

	_, err = Canonical("4k3/8/8/8/4P3/8/8 b - e3 0 1")
	is.True(err != nil)
}

func TestTerminalFlags(t *testing.T) {
	is := is.New(t)
	c := newTestCache(t)

	d, err := c.Get(mated)
	is.NoErr(err)
	is.True(d.IsCheckmate)
	is.Equal(len(d.Moves), 0)

	d, err = c.Get(stalemated)
	is.NoErr(err)
	is.True(d.IsStalemate)
	is.True(d.IsDraw())

	d, err = c.Get(bareKings)
	is.NoErr(err)
	is.True(d.IsInsufficientMaterial)
	is.True(!d.CanWhiteWin)
	is.True(!d.CanBlackWin)
}

func TestCanWinMaterialRule(t *testing.T) {
	is := is.New(t)
	c := newTestCache(t)
	cases := []struct {
		fen       string
		white     bool
		black     bool
		numPieces int
		name      string
	}{
		{"4k3/8/8/8/8/8/8/R3K3 w - - 0 1", true, false, 3, "lone rook"},
		{"4k3/8/8/8/8/8/8/1N2K3 w - - 0 1", false, false, 3, "lone knight"},
		{"4k3/8/8/8/8/8/8/1NB1K3 w - - 0 1", true, false, 4, "two minors"},
		{"4k3/4p3/8/8/8/8/8/2B1K3 w - - 0 1", false, true, 4, "bishop against pawn"},
	}
	for _, tc := range cases {
		d, err := c.Get(tc.fen)
		is.NoErr(err)
		is.Equal(d.CanWhiteWin, tc.white) // white verdict
		is.Equal(d.CanBlackWin, tc.black) // black verdict
		is.Equal(d.NumPieces, tc.numPieces)
	}
}

func TestEnPassantOnlyKeptWhenCapturable(t *testing.T) {
	is := is.New(t)
	c := newTestCache(t)

	// e2e4 with no black pawn able to capture: the square is dropped.
	d, err := c.Get("4k3/8/8/8/8/8/4P3/4K3 w - - 0 1")
	is.NoErr(err)
	is.Equal(d.MoveMap["e4"], "4k3/8/8/8/4P3/8/8/4K3 b - - 0 1")

	// with a black pawn on d4 the capture is legal and the square stays.
	d, err = c.Get("4k3/8/8/8/3p4/8/4P3/4K3 w - - 0 1")
	is.NoErr(err)
	is.Equal(d.MoveMap["e4"], "4k3/8/8/8/3pP3/8/8/4K3 b - e3 0 1")
}

func TestBadFEN(t *testing.T) {
	is := is.New(t)
	c := newTestCache(t)
	_, err := c.Get("not a fen")
	is.True(errors.Is(err, ErrBadFEN))
}

func TestHashesDiffer(t *testing.T) {
	is := is.New(t)
	c := newTestCache(t)
	a, err := c.Get(kpkBlackToMove)
	is.NoErr(err)
	b, err := c.Get(a.MoveMap["Ke8"])
	is.NoErr(err)
	is.True(a.Hash != 0)
	is.True(a.Hash != b.Hash)
}
