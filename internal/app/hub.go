package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/domain"
)

const (
	// DefaultRoomCodeLength is the default length for room codes
	DefaultRoomCodeLength = 4

	// DefaultStaleRoomTimeout is how long before an empty room is cleaned up
	DefaultStaleRoomTimeout = 2 * time.Hour

	defaultCleanupInterval = 10 * time.Minute
)

// RoomCodeChars are characters used for room codes (no ambiguous chars)
const RoomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// HubConfig holds the settings every room created by the hub shares
type HubConfig struct {
	RoomCodeLength   int
	StaleRoomTimeout time.Duration
	CleanupInterval  time.Duration
	ReconnectGrace   time.Duration
	Room             domain.RoomSettings
	Ticker           TickerFactory
	Ledger           RoundLedger
}

// GameHub manages all active room sessions
type GameHub struct {
	sessions map[string]*RoomSession
	mu       sync.RWMutex
	cfg      HubConfig
	logger   *slog.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewGameHub creates a new game hub
func NewGameHub(cfg HubConfig, logger *slog.Logger) *GameHub {
	if cfg.RoomCodeLength <= 0 {
		cfg.RoomCodeLength = DefaultRoomCodeLength
	}
	if cfg.StaleRoomTimeout <= 0 {
		cfg.StaleRoomTimeout = DefaultStaleRoomTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	if cfg.Room.MaxPlayers == 0 {
		cfg.Room = domain.DefaultRoomSettings()
	}
	if cfg.Ledger == nil {
		cfg.Ledger = NewMemoryLedger()
	}

	hub := &GameHub{
		sessions: make(map[string]*RoomSession),
		cfg:      cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}

	// Start cleanup goroutine
	go hub.cleanupLoop()

	return hub
}

// CreateRoom creates a new room with client's player as its host
func (h *GameHub) CreateRoom(client ClientConnection, name string) (*RoomSession, *domain.JoinResult, error) {
	if _, err := domain.NormalizeName(name); err != nil {
		return nil, nil, err
	}

	session, err := h.newSession()
	if err != nil {
		return nil, nil, err
	}

	result, err := session.join(client, name, domain.EventRoomCreated)
	if err != nil {
		h.DeleteSession(session)
		return nil, nil, err
	}

	return session, result, nil
}

func (h *GameHub) newSession() (*RoomSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Generate unique room code
	var roomCode string
	for attempts := 0; attempts < 10; attempts++ {
		roomCode = h.generateRoomCode()
		if _, exists := h.sessions[roomCode]; !exists {
			break
		}
	}

	// Check if we found a unique code
	if _, exists := h.sessions[roomCode]; exists {
		return nil, fmt.Errorf("failed to generate unique room code")
	}

	room := domain.NewRoom(roomCode, h.cfg.Room)
	session := NewRoomSession(room, SessionConfig{
		ReconnectGrace: h.cfg.ReconnectGrace,
		Ticker:         h.cfg.Ticker,
		Ledger:         h.cfg.Ledger,
		OnTerminated:   h.DeleteSession,
	}, h.logger)
	h.sessions[roomCode] = session

	h.logger.Info("room created", "roomCode", roomCode)

	return session, nil
}

// JoinRoom joins client to an existing room under name
func (h *GameHub) JoinRoom(client ClientConnection, roomCode, name string) (*RoomSession, *domain.JoinResult, error) {
	session, err := h.GetSession(roomCode)
	if err != nil {
		return nil, nil, err
	}

	result, err := session.Join(client, name)
	if err != nil {
		return nil, nil, err
	}

	return session, result, nil
}

// GetSession returns a room session by room code
func (h *GameHub) GetSession(roomCode string) (*RoomSession, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, ok := h.sessions[NormalizeRoomCode(roomCode)]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	return session, nil
}

// DeleteSession removes session if it is still the one registered under its
// room code. A code that was reused by a newer room is left alone.
func (h *GameHub) DeleteSession(session *RoomSession) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[session.RoomCode()] == session {
		h.removeLocked(session)
		h.logger.Info("room deleted", "roomCode", session.RoomCode())
	}
}

// removeLocked closes and unregisters a session, then drops its history from
// the ledger once its pending writes land (caller must hold lock)
func (h *GameHub) removeLocked(session *RoomSession) {
	session.Close()
	delete(h.sessions, session.RoomCode())

	if pruner, ok := h.cfg.Ledger.(historyPruner); ok {
		go func() {
			session.waitRecorded()
			pruner.Forget(session.ID())
		}()
	}
}

// History returns the finalized rounds of the room currently using roomCode
func (h *GameHub) History(ctx context.Context, roomCode string) ([]domain.RoundResult, error) {
	session, err := h.GetSession(roomCode)
	if err != nil {
		return nil, err
	}
	return h.cfg.Ledger.History(ctx, session.ID())
}

// GetSessionCount returns the number of active sessions
func (h *GameHub) GetSessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// GetTotalPlayerCount returns the total number of players across all sessions
func (h *GameHub) GetTotalPlayerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, session := range h.sessions {
		total += session.PlayerCount()
	}
	return total
}

// Close shuts down the hub and all sessions
func (h *GameHub) Close() {
	h.stopOnce.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, session := range h.sessions {
		session.Close()
	}
	h.sessions = make(map[string]*RoomSession)
}

// NormalizeRoomCode upper-cases and trims a user-entered room code
func NormalizeRoomCode(roomCode string) string {
	return strings.ToUpper(strings.TrimSpace(roomCode))
}

// generateRoomCode generates a random room code
func (h *GameHub) generateRoomCode() string {
	b := make([]byte, h.cfg.RoomCodeLength)
	rand.Read(b)

	code := make([]byte, h.cfg.RoomCodeLength)
	for i := range code {
		code[i] = RoomCodeChars[int(b[i])%len(RoomCodeChars)]
	}

	return string(code)
}

// cleanupLoop periodically cleans up stale rooms
func (h *GameHub) cleanupLoop() {
	ticker := time.NewTicker(h.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.cleanupStaleRooms(time.Now())
		}
	}
}

// cleanupStaleRooms removes rooms that ended or have sat empty for too long
func (h *GameHub) cleanupStaleRooms(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	stale := make([]string, 0)

	for roomCode, session := range h.sessions {
		info := session.Info()
		empty := info.ConnectedCount == 0 && now.Sub(info.CreatedAt) > h.cfg.StaleRoomTimeout
		if info.State == domain.StateTerminated || empty {
			stale = append(stale, roomCode)
		}
	}

	for _, roomCode := range stale {
		if session, ok := h.sessions[roomCode]; ok {
			h.removeLocked(session)
			h.logger.Info("stale room cleaned up", "roomCode", roomCode)
		}
	}

	return len(stale)
}
