package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// GameRecord is one finished or abandoned session in the ledger.
type GameRecord struct {
	SessionID string    `json:"session_id"`
	Remote    string    `json:"remote"`
	Opening   string    `json:"opening"`
	Outcome   string    `json:"outcome"`
	Moves     int       `json:"moves"`
	Reason    string    `json:"reason"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Recorder persists game records.
type Recorder interface {
	Record(ctx context.Context, rec GameRecord) error
}

// GameStore is a sqlite-backed game ledger.
type GameStore struct {
	db *sql.DB
}

// OpenGameStore opens (creating if needed) the ledger at path.
func OpenGameStore(path string) (*GameStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open game store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS games (
		session_id TEXT PRIMARY KEY,
		remote TEXT,
		opening TEXT,
		outcome TEXT,
		moves INTEGER,
		reason TEXT,
		started_at INTEGER,
		ended_at INTEGER
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create games table: %w", err)
	}
	return &GameStore{db: db}, nil
}

// Record inserts rec. Recording the same session twice keeps the latest row.
func (s *GameStore) Record(ctx context.Context, rec GameRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO games
		(session_id, remote, opening, outcome, moves, reason, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			outcome=excluded.outcome, moves=excluded.moves,
			reason=excluded.reason, ended_at=excluded.ended_at`,
		rec.SessionID, rec.Remote, rec.Opening, rec.Outcome, rec.Moves, rec.Reason,
		rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record game %s: %w", rec.SessionID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *GameStore) Recent(ctx context.Context, limit int) ([]GameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, remote, opening, outcome, moves, reason, started_at, ended_at
		FROM games ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	records := make([]GameRecord, 0)
	for rows.Next() {
		var rec GameRecord
		var started, ended int64
		if err := rows.Scan(&rec.SessionID, &rec.Remote, &rec.Opening, &rec.Outcome,
			&rec.Moves, &rec.Reason, &started, &ended); err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started).UTC()
		rec.EndedAt = time.UnixMilli(ended).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *GameStore) Close() error {
	return s.db.Close()
}
