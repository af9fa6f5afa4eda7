package domain

import "time"

// EventType represents the type of room event. Values are the outbound wire names.
type EventType string

const (
	EventRoomCreated        EventType = "roomCreated"
	EventJoinedRoom         EventType = "joinedRoom"
	EventUpdatePlayers      EventType = "updatePlayers"
	EventGameStarted        EventType = "gameStarted"
	EventDeclaredCard       EventType = "declaredCard"
	EventDistributeDrinks   EventType = "distributeDrinks"
	EventUpdateTimer        EventType = "updateTimer"
	EventUpdatePlayerStats  EventType = "updatePlayerStats"
	EventUpdatePlayerHand   EventType = "updatePlayerHand"
	EventQuarterUpdated     EventType = "quarterUpdated"
	EventNewHost            EventType = "newHost"
	EventPlayerLeft         EventType = "playerLeft"
	EventPlayerDisconnected EventType = "playerDisconnected"
	EventPlayerReconnected  EventType = "playerReconnected"
	EventHostLeft           EventType = "hostLeft"
	EventGameOver           EventType = "gameOver"
	EventActionInProgress   EventType = "actionInProgress"
	EventWildCardPending    EventType = "wildCardPending"
	EventError              EventType = "error"
)

// StatsReason tells receivers why a stats snapshot was sent
type StatsReason string

const (
	ReasonRoundFinalized StatsReason = "round_finalized"
	ReasonRosterRefresh  StatsReason = "roster_refresh"
	ReasonAssignment     StatsReason = "assignment"
)

// GameEvent represents an event that occurred in a room
type GameEvent struct {
	Type         EventType   `json:"type"`
	RoomCode     string      `json:"roomCode"`
	ConnectionID string      `json:"-"` // If event is for one connection only
	Payload      interface{} `json:"payload,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// NewEvent creates a new room-wide event
func NewEvent(eventType EventType, roomCode string, payload interface{}) *GameEvent {
	return &GameEvent{
		Type:      eventType,
		RoomCode:  roomCode,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewPlayerEvent creates a new event for a single connection
func NewPlayerEvent(eventType EventType, roomCode, connectionID string, payload interface{}) *GameEvent {
	return &GameEvent{
		Type:         eventType,
		RoomCode:     roomCode,
		ConnectionID: connectionID,
		Payload:      payload,
		Timestamp:    time.Now(),
	}
}

// Payload types for different events

// RoomJoinedPayload is sent to a connection after createRoom or joinRoom
type RoomJoinedPayload struct {
	RoomCode     string    `json:"roomCode"`
	ConnectionID string    `json:"id"`
	Name         string    `json:"name"`
	IsHost       bool      `json:"isHost"`
	State        RoomState `json:"state"`
	Reconnected  bool      `json:"reconnected"`
}

// RosterPayload is sent when membership or connection status changes
type RosterPayload struct {
	Players  []PlayerInfo `json:"players"`
	HostID   string       `json:"hostId"`
	CanStart bool         `json:"canStart"`
}

// GameStartedPayload is sent to each player with their own hand
type GameStartedPayload struct {
	Hand        Hand          `json:"hands"`
	PlayerStats []PlayerStats `json:"playerStats"`
	Quarter     int           `json:"quarter"`
}

// DeclaredCardPayload announces the label of the round in flight. Label is
// nil when the round has ended.
type DeclaredCardPayload struct {
	Label       *string   `json:"label"`
	Kind        RoundKind `json:"kind,omitempty"`
	RoundNumber int       `json:"roundNumber,omitempty"`
	Seconds     int       `json:"seconds,omitempty"`
}

// DistributePayload tells an eligible player what they may hand out
type DistributePayload struct {
	Label       string `json:"label"`
	RoundNumber int    `json:"roundNumber"`
	DrinkCount  int    `json:"drinkCount"`
	Shotguns    int    `json:"shotguns"`
}

// TimerPayload is sent every second while a round is open
type TimerPayload struct {
	SecondsRemaining int `json:"secondsRemaining"`
}

// StatsPayload is a cumulative stats snapshot. Finalized is only true when a
// round has actually been applied; receivers must not reset an open round's
// assignment UI on a snapshot with Finalized false.
type StatsPayload struct {
	Players      []PlayerStats     `json:"players"`
	RoundResults map[string]Payout `json:"roundResults,omitempty"`
	Finalized    bool              `json:"finalized"`
	Reason       StatsReason       `json:"reason"`
}

// QuarterPayload is sent when the quarter advances
type QuarterPayload struct {
	Quarter     int  `json:"quarter"`
	CanSwapWild bool `json:"canSwapWild"`
}

// HostPayload is sent when the host changes
type HostPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// PlayerStatusPayload is sent when a player leaves, drops or comes back
type PlayerStatusPayload struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// WildPendingPayload is sent when a player claims a wild card event
type WildPendingPayload struct {
	Player string `json:"player"`
	Label  string `json:"label"`
}

// MessagePayload carries a plain human-readable message
type MessagePayload struct {
	Message string `json:"message"`
}

// ErrorPayload is sent when an error occurs
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
