package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/park285/Cheese-RelayChess/internal/domain"
	"github.com/park285/Cheese-RelayChess/internal/obslog"
)

const schema = `
CREATE TABLE IF NOT EXISTS relay_games (
	game_id       TEXT PRIMARY KEY,
	mode          TEXT NOT NULL,
	room_code     TEXT NOT NULL DEFAULT '',
	player_color  TEXT NOT NULL DEFAULT '',
	bot_depth     INTEGER NOT NULL DEFAULT 0,
	result        TEXT NOT NULL,
	result_method TEXT NOT NULL DEFAULT '',
	moves_uci     JSONB NOT NULL DEFAULT '[]',
	moves_san     JSONB NOT NULL DEFAULT '[]',
	pgn           TEXT NOT NULL DEFAULT '',
	start_fen     TEXT NOT NULL DEFAULT '',
	final_fen     TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS relay_games_mode_ended_idx ON relay_games (mode, ended_at DESC);`

const selectColumns = `
	game_id, mode, room_code, player_color, bot_depth,
	result, result_method, moves_uci, moves_san, pgn,
	start_fen, final_fen, started_at, ended_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository opens a pooled connection and creates the table when missing.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
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

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	obslog.L().Info("results_postgres_open")
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a finished game keyed by its session id.
func (r *PostgresRepository) SaveResult(ctx context.Context, g *domain.GameRecord) error {
	if g == nil {
		return ErrNilRecord
	}
	Annotate(g)

	movesUCI, err := json.Marshal(nonNil(g.MovesUCI))
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(g.MovesSAN))
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}

	const q = `INSERT INTO relay_games (
		game_id, mode, room_code, player_color, bot_depth,
		result, result_method, moves_uci, moves_san, pgn,
		start_fen, final_fen, started_at, ended_at, duration_ms
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9::jsonb,$10,$11,$12,$13,$14,$15
	) ON CONFLICT (game_id) DO UPDATE SET
		result=EXCLUDED.result,
		result_method=EXCLUDED.result_method,
		moves_uci=EXCLUDED.moves_uci,
		moves_san=EXCLUDED.moves_san,
		pgn=EXCLUDED.pgn,
		final_fen=EXCLUDED.final_fen,
		ended_at=EXCLUDED.ended_at,
		duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		g.ID, g.Mode, g.RoomCode, g.PlayerColor, g.BotDepth,
		g.Result, g.ResultMethod, movesUCI, movesSAN, g.PGN,
		g.StartFEN, g.FinalFEN, g.StartedAt, g.EndedAt, g.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert relay game: %w", err)
	}
	obslog.L().Debug("results_saved", zap.String("game_id", g.ID), zap.String("result", g.Result))
	return nil
}

func (r *PostgresRepository) GetGame(ctx context.Context, id string) (*domain.GameRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+selectColumns+` FROM relay_games WHERE game_id = $1`, id)
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// RecentGames lists finished games newest first; an empty mode matches all modes.
func (r *PostgresRepository) RecentGames(ctx context.Context, mode string, limit int) ([]*domain.GameRecord, error) {
	limit = clampLimit(limit)
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+selectColumns+` FROM relay_games
		WHERE ($1 = '' OR mode = $1)
		ORDER BY ended_at DESC
		LIMIT $2`, mode, limit)
	if err != nil {
		return nil, fmt.Errorf("select relay games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.GameRecord, 0, limit)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relay games: %w", err)
	}
	return games, nil
}

func (r *PostgresRepository) Stats(ctx context.Context, mode string) (*domain.PlayerStats, error) {
	const q = `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE result = 'white'),
		COUNT(*) FILTER (WHERE result = 'black'),
		COUNT(*) FILTER (WHERE result = 'draw'),
		COUNT(*) FILTER (WHERE result = 'aborted'),
		MAX(ended_at)
	FROM relay_games
	WHERE ($1 = '' OR mode = $1)`

	stats := &domain.PlayerStats{Mode: mode}
	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, q, mode).Scan(
		&stats.GamesPlayed,
		&stats.WhiteWins,
		&stats.BlackWins,
		&stats.Draws,
		&stats.Aborted,
		&last,
	); err != nil {
		return nil, fmt.Errorf("select relay stats: %w", err)
	}
	if last.Valid {
		stats.LastPlayed = last.Time
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(s rowScanner) (*domain.GameRecord, error) {
	var (
		g            domain.GameRecord
		movesUCIJSON []byte
		movesSANJSON []byte
	)
	if err := s.Scan(
		&g.ID,
		&g.Mode,
		&g.RoomCode,
		&g.PlayerColor,
		&g.BotDepth,
		&g.Result,
		&g.ResultMethod,
		&movesUCIJSON,
		&movesSANJSON,
		&g.PGN,
		&g.StartFEN,
		&g.FinalFEN,
		&g.StartedAt,
		&g.EndedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan relay game: %w", err)
	}
	if err := json.Unmarshal(movesUCIJSON, &g.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &g.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &g, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
