package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the store can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Exchange is one completed question/answer round trip.
type Exchange struct {
	ID        string
	SessionID string
	Question  string
	Answer    string
	Attempts  int
	Duration  time.Duration
	AskedAt   time.Time
}

// Store persists exchanges to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a history store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("history"),
	}, nil
}

const createSchemaSQL = `
    CREATE TABLE IF NOT EXISTS exchanges (
        id          UUID PRIMARY KEY,
        session_id  TEXT NOT NULL,
        question    TEXT NOT NULL,
        answer      TEXT NOT NULL,
        attempts    INT NOT NULL DEFAULT 1,
        duration_ms BIGINT NOT NULL DEFAULT 0,
        asked_at    TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges (session_id, asked_at DESC);
`

// EnsureSchema creates the exchanges table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("failed to ensure history schema: %w", err)
	}
	return nil
}

const insertExchangeSQL = `
    INSERT INTO exchanges (id, session_id, question, answer, attempts, duration_ms, asked_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7);
`

// Append records a completed exchange.
func (s *Store) Append(ctx context.Context, e Exchange) error {
	_, err := s.pool.Exec(ctx, insertExchangeSQL,
		e.ID, e.SessionID, e.Question, e.Answer,
		e.Attempts, e.Duration.Milliseconds(), e.AskedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert exchange %s: %w", e.ID, err)
	}
	return nil
}

const recentExchangesSQL = `
    SELECT id, session_id, question, answer, attempts, duration_ms, asked_at
    FROM exchanges
    WHERE session_id = $1
    ORDER BY asked_at DESC
    LIMIT $2;
`

// Recent returns the most recent exchanges for one session, newest first.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	rows, err := s.pool.Query(ctx, recentExchangesSQL, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var e Exchange
		var durationMs int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Question, &e.Answer, &e.Attempts, &durationMs, &e.AskedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange row: %w", err)
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return exchanges, nil
}

const purgeExchangesSQL = `DELETE FROM exchanges WHERE asked_at < $1;`

// PurgeBefore deletes exchanges older than the cutoff and reports how many
// were removed.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, purgeExchangesSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge exchanges: %w", err)
	}
	s.log.Debug("Purged old exchanges", zap.Int64("rows", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}
