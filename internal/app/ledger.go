package app

import (
	"context"
	"sync"

	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/domain"
)

// RoundLedger keeps a record of every finalized round. Results are grouped by
// the session that ran them.
type RoundLedger interface {
	Record(ctx context.Context, result domain.RoundResult) error
	History(ctx context.Context, sessionID string) ([]domain.RoundResult, error)
}

// historyPruner is implemented by ledgers that should drop a session's
// results once the session is gone
type historyPruner interface {
	Forget(sessionID string)
}

// MemoryLedger is a RoundLedger that lives in process memory
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string][]domain.RoundResult // session id -> results
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string][]domain.RoundResult),
	}
}

// Record appends a round result
func (l *MemoryLedger) Record(ctx context.Context, result domain.RoundResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[result.SessionID] = append(l.records[result.SessionID], result)
	return nil
}

// History returns a session's round results in the order they were recorded
func (l *MemoryLedger) History(ctx context.Context, sessionID string) ([]domain.RoundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	history := make([]domain.RoundResult, len(l.records[sessionID]))
	copy(history, l.records[sessionID])
	return history, nil
}

// Forget drops every result of a session
func (l *MemoryLedger) Forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, sessionID)
}

// Sessions returns how many sessions have results in memory
func (l *MemoryLedger) Sessions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
