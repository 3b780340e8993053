// Package archive persists finished games. Live session state is never
// persisted; only the record of a torn-down room is written, after the
// fact and off the event path.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kapu/chess-arena-go/internal/match"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts an archived game row.
func (r *Repository) SaveResult(ctx context.Context, rec *match.Result) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}

	movesRaw, _ := json.Marshal(rec.Moves)
	duration := rec.EndedAt.Sub(rec.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO arena_games (
	    room_id, white_id, white_name, black_id, black_name,
	    end_reason, moves, pgn, started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	  ) ON CONFLICT (room_id) DO UPDATE SET
	    white_id=EXCLUDED.white_id,
	    white_name=EXCLUDED.white_name,
	    black_id=EXCLUDED.black_id,
	    black_name=EXCLUDED.black_name,
	    end_reason=EXCLUDED.end_reason,
	    moves=EXCLUDED.moves,
	    pgn=EXCLUDED.pgn,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		rec.RoomID,
		rec.White.ConnID, rec.White.Name,
		rec.Black.ConnID, rec.Black.Name,
		rec.EndReason, string(movesRaw), buildPGN(rec),
		rec.CreatedAt, rec.EndedAt, duration,
	)
	return err
}
