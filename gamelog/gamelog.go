// Package gamelog stores playout games in a SQLite file so results can be
// compared across runs and settings.
package gamelog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/swindlechess/swindler/playout"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id        INTEGER PRIMARY KEY,
	start_fen TEXT NOT NULL,
	moves     TEXT NOT NULL,
	final_fen TEXT NOT NULL,
	outcome   TEXT NOT NULL,
	method    TEXT NOT NULL,
	result    INTEGER NOT NULL,
	plies     INTEGER NOT NULL,
	times     INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS games_start_fen ON games(start_fen);
`

// Log is a handle on a game database.
type Log struct {
	db *sql.DB
}

// Summary counts the recorded games for one start position. Repeats of
// an identical game count every time they were played.
type Summary struct {
	StartFEN string `yaml:"start_fen"`
	Distinct int    `yaml:"distinct"`
	Games    int    `yaml:"games"`
	Wins     int    `yaml:"wins"`
	Draws    int    `yaml:"draws"`
	Losses   int    `yaml:"losses"`
}

func Open(ctx context.Context, path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening game log %s: %w", path, err)
	}
	// one writer at a time for a sqlite file
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating game log schema: %w", err)
	}
	log.Debug().Str("path", path).Msg("opened-gamelog")
	return &Log{db: db}, nil
}

// GameID is the key of a game: the same start position and moves always
// hash to the same id.
func GameID(g *playout.Game) int64 {
	return int64(xxhash.Sum64String(g.StartFEN + "|" + strings.Join(g.Moves, " ")))
}

// Record stores g, or bumps the repeat count when the identical game is
// already stored.
func (l *Log) Record(ctx context.Context, g *playout.Game) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO games (id, start_fen, moves, final_fen, outcome, method, result, plies)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET times = times + 1`,
		GameID(g), g.StartFEN, strings.Join(g.Moves, " "), g.FinalFEN,
		g.Outcome, g.Method, g.Result, g.Plies())
	if err != nil {
		return fmt.Errorf("recording game: %w", err)
	}
	return nil
}

// RecordAll stores several games in one transaction.
func (l *Log) RecordAll(ctx context.Context, games []*playout.Game) error {
	if len(games) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO games (id, start_fen, moves, final_fen, outcome, method, result, plies)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET times = times + 1`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, g := range games {
		_, err := stmt.ExecContext(ctx,
			GameID(g), g.StartFEN, strings.Join(g.Moves, " "), g.FinalFEN,
			g.Outcome, g.Method, g.Result, g.Plies())
		if err != nil {
			return fmt.Errorf("recording game: %w", err)
		}
	}
	return tx.Commit()
}

// Summarize returns the totals for every start position in the log.
func (l *Log) Summarize(ctx context.Context) ([]Summary, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT
			start_fen,
			COUNT(*),
			SUM(times),
			SUM(CASE WHEN result > 0 THEN times ELSE 0 END),
			SUM(CASE WHEN result = 0 THEN times ELSE 0 END),
			SUM(CASE WHEN result < 0 THEN times ELSE 0 END)
		FROM games
		GROUP BY start_fen
		ORDER BY start_fen`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.StartFEN, &s.Distinct, &s.Games, &s.Wins, &s.Draws, &s.Losses); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Times returns how often the game with the given id was recorded.
func (l *Log) Times(ctx context.Context, id int64) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT times FROM games WHERE id = ?`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}

func (l *Log) Close() error {
	return l.db.Close()
}
