// Package postgres stores finalized rounds in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/domain"
)

// ErrUnexpectedDatabase wraps failures other than cancellation
var ErrUnexpectedDatabase = errors.New("unexpected database error")

const schema = `
CREATE TABLE IF NOT EXISTS round_results (
	id           BIGSERIAL PRIMARY KEY,
	session_id   UUID        NOT NULL,
	room_code    TEXT        NOT NULL,
	round_number INTEGER     NOT NULL,
	label        TEXT        NOT NULL,
	kind         TEXT        NOT NULL,
	quarter      INTEGER     NOT NULL,
	results      JSONB       NOT NULL,
	declared_at  TIMESTAMPTZ NOT NULL,
	finalized_at TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, round_number)
);
CREATE INDEX IF NOT EXISTS round_results_session_idx ON round_results (session_id, id);
`

// Ledger is an app.RoundLedger backed by a pgx connection pool
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger connects to connString and makes sure the schema exists
func NewLedger(ctx context.Context, connString string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Ledger{pool: pool}, nil
}

// Record inserts one finalized round
func (l *Ledger) Record(ctx context.Context, result domain.RoundResult) error {
	results, err := json.Marshal(result.Results)
	if err != nil {
		return err
	}

	_, err = l.pool.Exec(ctx,
		`INSERT INTO round_results (session_id, room_code, round_number, label, kind, quarter, results, declared_at, finalized_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		result.SessionID, result.RoomCode, result.Number, result.Label, string(result.Kind), result.Quarter, results,
		result.DeclaredAt, result.FinalizedAt,
	)
	return wrapError(err)
}

// History returns a session's rounds in the order they were recorded
func (l *Ledger) History(ctx context.Context, sessionID string) ([]domain.RoundResult, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT room_code, round_number, label, kind, quarter, results, declared_at, finalized_at
		 FROM round_results WHERE session_id = $1 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	history := make([]domain.RoundResult, 0)
	for rows.Next() {
		var (
			result  = domain.RoundResult{SessionID: sessionID}
			kind    string
			payload []byte
		)
		if err := rows.Scan(&result.RoomCode, &result.Number, &result.Label, &kind, &result.Quarter, &payload, &result.DeclaredAt, &result.FinalizedAt); err != nil {
			return nil, wrapError(err)
		}
		result.Kind = domain.RoundKind(kind)
		if err := json.Unmarshal(payload, &result.Results); err != nil {
			return nil, fmt.Errorf("decoding results of round %d: %w", result.Number, err)
		}
		history = append(history, result)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapError(err)
	}
	return history, nil
}

// Close releases the pool
func (l *Ledger) Close() {
	l.pool.Close()
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnexpectedDatabase, err)
}
