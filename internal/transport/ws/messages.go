package ws

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/domain"
)

// MessageType represents the type of WebSocket message
type MessageType string

// Client → Server message types
const (
	MsgCreateRoom        MessageType = "createRoom"
	MsgJoinRoom          MessageType = "joinRoom"
	MsgLeaveRoom         MessageType = "leaveRoom"
	MsgLeaveGame         MessageType = "leaveGame"
	MsgStartGame         MessageType = "startGame"
	MsgPlayStandardCard  MessageType = "playStandardCard"
	MsgWildCardSelected  MessageType = "wildCardSelected"
	MsgWildCardConfirmed MessageType = "wildCardConfirmed"
	MsgEveryoneDrinks    MessageType = "everyoneDrinks"
	MsgAssignDrinks      MessageType = "assignDrinks"
	MsgNextQuarter       MessageType = "nextQuarter"
	MsgWildCardSwap      MessageType = "wildCardSwap"
	MsgAssignNewHost     MessageType = "assignNewHost"
	MsgPing              MessageType = "ping"
)

// Server → Client message types. Room events are sent as domain.GameEvent,
// whose types share these names.
const (
	MsgError            MessageType = MessageType(domain.EventError)
	MsgActionInProgress MessageType = MessageType(domain.EventActionInProgress)
	MsgPlayerLeft       MessageType = MessageType(domain.EventPlayerLeft)
	MsgPong             MessageType = "pong"
)

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type      MessageType `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewServerMessage creates a new server message with current timestamp
func NewServerMessage(msgType MessageType, payload interface{}) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Client message payloads

// NamePayload is the payload for createRoom
type NamePayload struct {
	Name string `json:"name"`
}

// JoinRoomPayload is the payload for joinRoom
type JoinRoomPayload struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
}

// CardPayload is the payload for playStandardCard, wildCardSelected and wildCardSwap
type CardPayload struct {
	Label string `json:"label"`
}

// WildConfirmPayload is the payload for wildCardConfirmed
type WildConfirmPayload struct {
	Label  string `json:"label"`
	Player string `json:"player"`
}

// AssignDrinksPayload is the payload for assignDrinks. Drinks and Shotguns
// are keyed by target display name.
type AssignDrinksPayload struct {
	Targets  []string       `json:"targets"`
	Drinks   map[string]int `json:"drinks"`
	Shotguns map[string]int `json:"shotguns"`
}

// Grants merges the payload into one grant per target, in target order
func (p *AssignDrinksPayload) Grants() []domain.Grant {
	grants := make([]domain.Grant, 0, len(p.Targets))
	seen := make(map[string]bool, len(p.Targets))
	for _, target := range p.Targets {
		if seen[target] {
			continue
		}
		seen[target] = true

		grant := domain.Grant{To: target, Drinks: p.Drinks[target], Shotguns: p.Shotguns[target]}
		if grant.Drinks == 0 && grant.Shotguns == 0 {
			continue
		}
		grants = append(grants, grant)
	}
	return grants
}

// NewHostPayload is the payload for assignNewHost
type NewHostPayload struct {
	NewHostID string `json:"newHostId"`
}

// Error codes
const (
	ErrCodeInvalidMessage    = "INVALID_MESSAGE"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeNotInRoom         = "NOT_IN_ROOM"
	ErrCodeAlreadyInRoom     = "ALREADY_IN_ROOM"
	ErrCodeRoomNotFound      = "ROOM_NOT_FOUND"
	ErrCodeRoomFull          = "ROOM_FULL"
	ErrCodeRoomTerminated    = "ROOM_TERMINATED"
	ErrCodeGameStarted       = "GAME_ALREADY_STARTED"
	ErrCodeNotEnoughPlayers  = "NOT_ENOUGH_PLAYERS"
	ErrCodeInvalidAction     = "INVALID_ACTION"
	ErrCodeActionInProgress  = "ACTION_IN_PROGRESS"
	ErrCodeNoRound           = "NO_ROUND_IN_PROGRESS"
	ErrCodeInsufficientCards = "INSUFFICIENT_CARDS"
	ErrCodeDuplicateIdentity = "DUPLICATE_IDENTITY"
	ErrCodePlayerNotFound    = "PLAYER_NOT_FOUND"
	ErrCodeNotHost           = "NOT_HOST"
	ErrCodeInvalidName       = "INVALID_NAME"
	ErrCodeUnknownCard       = "UNKNOWN_CARD"
	ErrCodeCardNotInHand     = "CARD_NOT_IN_HAND"
	ErrCodeNotEligible       = "NOT_ELIGIBLE"
	ErrCodeQuotaExceeded     = "QUOTA_EXCEEDED"
	ErrCodeInvalidAmount     = "INVALID_AMOUNT"
	ErrCodeSwapUnavailable   = "SWAP_UNAVAILABLE"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrRoomNotFound, ErrCodeRoomNotFound},
	{domain.ErrRoomFull, ErrCodeRoomFull},
	{domain.ErrRoomTerminated, ErrCodeRoomTerminated},
	{domain.ErrGameAlreadyStarted, ErrCodeGameStarted},
	{domain.ErrNotEnoughPlayers, ErrCodeNotEnoughPlayers},
	{domain.ErrInvalidPhase, ErrCodeInvalidAction},
	{domain.ErrActionInProgress, ErrCodeActionInProgress},
	{domain.ErrNoRoundActive, ErrCodeNoRound},
	{domain.ErrStaleFinalize, ErrCodeNoRound},
	{domain.ErrInsufficientCards, ErrCodeInsufficientCards},
	{domain.ErrDuplicateIdentity, ErrCodeDuplicateIdentity},
	{domain.ErrPlayerNotFound, ErrCodePlayerNotFound},
	{domain.ErrNotHost, ErrCodeNotHost},
	{domain.ErrInvalidName, ErrCodeInvalidName},
	{domain.ErrUnknownCard, ErrCodeUnknownCard},
	{domain.ErrCardNotInHand, ErrCodeCardNotInHand},
	{domain.ErrNotEligible, ErrCodeNotEligible},
	{domain.ErrQuotaExceeded, ErrCodeQuotaExceeded},
	{domain.ErrInvalidAmount, ErrCodeInvalidAmount},
	{domain.ErrSwapUnavailable, ErrCodeSwapUnavailable},
}

// ErrorCode maps a domain error to its wire code
func ErrorCode(err error) string {
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return ErrCodeInternalError
}
