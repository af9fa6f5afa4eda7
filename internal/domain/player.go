package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxNameLength bounds display names
const MaxNameLength = 20

// ConnectionStatus represents a player's connection state
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// Player is the durable identity of someone in a room. Name is the identity
// key; ConnectionID changes every time the player reconnects.
type Player struct {
	ConnectionID   string           `json:"id"`
	Name           string           `json:"name"`
	StandardHand   []Card           `json:"standardHand"`
	WildHand       []Card           `json:"wildHand"`
	Drinks         int              `json:"drinks"`
	Shotguns       int              `json:"shotguns"`
	CanSwapWild    bool             `json:"canSwapWild"`
	Status         ConnectionStatus `json:"status"`
	JoinedAt       time.Time        `json:"joinedAt"`
	DisconnectedAt time.Time        `json:"disconnectedAt,omitempty"`
}

// NewPlayer creates a connected player with an empty hand and zero stats
func NewPlayer(connectionID, name string) *Player {
	return &Player{
		ConnectionID: connectionID,
		Name:         name,
		StandardHand: make([]Card, 0),
		WildHand:     make([]Card, 0),
		Status:       StatusConnected,
		JoinedAt:     time.Now(),
	}
}

// NormalizeName trims a display name and checks its length
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// IsConnected returns true if the player is currently connected
func (p *Player) IsConnected() bool {
	return p.Status == StatusConnected
}

// Disconnect marks the player as disconnected, keeping hand and stats
func (p *Player) Disconnect(at time.Time) {
	p.Status = StatusDisconnected
	p.DisconnectedAt = at
}

// Reconnect reattaches the player to a new connection
func (p *Player) Reconnect(connectionID string) {
	p.ConnectionID = connectionID
	p.Status = StatusConnected
	p.DisconnectedAt = time.Time{}
}

// HasCards reports whether the player holds any card at all
func (p *Player) HasCards() bool {
	return len(p.StandardHand)+len(p.WildHand) > 0
}

// Hand returns a copy of both hands
func (p *Player) Hand() Hand {
	return Hand{
		Standard: append([]Card{}, p.StandardHand...),
		Wild:     append([]Card{}, p.WildHand...),
	}
}

// Stats returns the player's cumulative totals
func (p *Player) Stats() PlayerStats {
	return PlayerStats{
		Name:     p.Name,
		Drinks:   p.Drinks,
		Shotguns: p.Shotguns,
	}
}

// Hand is the pair of hands a player holds
type Hand struct {
	Standard []Card `json:"standard"`
	Wild     []Card `json:"wild"`
}

// PlayerStats is a player's cumulative totals
type PlayerStats struct {
	Name     string `json:"name"`
	Drinks   int    `json:"drinks"`
	Shotguns int    `json:"shotguns"`
}

// PlayerInfo is the display-safe view of a player (no card labels)
type PlayerInfo struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	IsHost        bool             `json:"isHost"`
	Status        ConnectionStatus `json:"status"`
	StandardCount int              `json:"standardCount"`
	WildCount     int              `json:"wildCount"`
	Drinks        int              `json:"drinks"`
	Shotguns      int              `json:"shotguns"`
}

// ToInfo converts a Player to PlayerInfo
func (p *Player) ToInfo(isHost bool) PlayerInfo {
	return PlayerInfo{
		ID:            p.ConnectionID,
		Name:          p.Name,
		IsHost:        isHost,
		Status:        p.Status,
		StandardCount: len(p.StandardHand),
		WildCount:     len(p.WildHand),
		Drinks:        p.Drinks,
		Shotguns:      p.Shotguns,
	}
}

// ReconcileRoster builds the broadcast roster from players in join order.
// Entries sharing a name collapse into one, preferring the entry that holds cards.
func ReconcileRoster(players []*Player, hostID string) []PlayerInfo {
	roster := make([]PlayerInfo, 0, len(players))
	index := make(map[string]int, len(players))
	chosen := make(map[string]*Player, len(players))

	for _, p := range players {
		if p == nil {
			continue
		}
		i, seen := index[p.Name]
		if !seen {
			index[p.Name] = len(roster)
			chosen[p.Name] = p
			roster = append(roster, p.ToInfo(p.ConnectionID == hostID))
			continue
		}
		if !chosen[p.Name].HasCards() && p.HasCards() {
			chosen[p.Name] = p
			roster[i] = p.ToInfo(p.ConnectionID == hostID)
		}
	}

	return roster
}
