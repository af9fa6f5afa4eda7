package domain

import (
	"fmt"
	"strings"
	"time"
)

// RoomSettings holds configurable room parameters
type RoomSettings struct {
	MinPlayers             int           `json:"minPlayers"`
	MaxPlayers             int           `json:"maxPlayers"`
	CardRoundDuration      time.Duration `json:"cardRoundDuration"`
	EveryoneDrinksDuration time.Duration `json:"everyoneDrinksDuration"`
}

// DefaultRoomSettings returns the default room settings
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		MinPlayers:             3,
		MaxPlayers:             12,
		CardRoundDuration:      30 * time.Second,
		EveryoneDrinksDuration: 10 * time.Second,
	}
}

// WildClaim is a player's pending claim that a wild card event happened
type WildClaim struct {
	Player string `json:"player"`
	Label  string `json:"label"`
}

// Room is one game session. It owns its players, decks and at most one round.
type Room struct {
	Code            string             `json:"code"`
	HostID          string             `json:"hostId"`
	Players         map[string]*Player `json:"players"` // display name -> identity
	Order           []string           `json:"order"`   // display names in join order
	State           RoomState          `json:"state"`
	Quarter         int                `json:"quarter"`
	StandardDeck    []Card             `json:"standardDeck"`
	WildDeck        []Card             `json:"wildDeck"`
	RoundInProgress bool               `json:"roundInProgress"`
	CurrentRound    *Round             `json:"currentRound,omitempty"`
	PendingWild     *WildClaim         `json:"pendingWild,omitempty"`
	RoundsPlayed    int                `json:"roundsPlayed"`
	Settings        RoomSettings       `json:"settings"`
	CreatedAt       time.Time          `json:"createdAt"`
}

// NewRoom creates an empty room in the lobby
func NewRoom(code string, settings RoomSettings) *Room {
	return &Room{
		Code:      code,
		Players:   make(map[string]*Player),
		Order:     make([]string, 0),
		State:     StateLobby,
		Settings:  settings,
		CreatedAt: time.Now(),
	}
}

// JoinResult describes what a join did
type JoinResult struct {
	Player      *Player
	Reconnected bool
	IsHost      bool
}

// DepartureResult describes the consequences of a leave or disconnect
type DepartureResult struct {
	Player     *Player
	Removed    bool
	WasHost    bool
	NewHost    *Player
	Terminated bool
}

// Join adds a player or reattaches a disconnected one with the same name.
// A name that is already connected is rejected.
func (r *Room) Join(connectionID, name string) (*JoinResult, error) {
	if r.State == StateTerminated {
		return nil, ErrRoomTerminated
	}

	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	if existing, err := r.PlayerByConnection(connectionID); err == nil {
		return nil, fmt.Errorf("%w: connection already plays as %q", ErrDuplicateIdentity, existing.Name)
	}

	if player, ok := r.Players[name]; ok {
		if player.IsConnected() {
			return nil, ErrDuplicateIdentity
		}
		player.Reconnect(connectionID)
		if r.HostID == "" {
			r.HostID = connectionID
		}
		return &JoinResult{Player: player, Reconnected: true, IsHost: r.IsHost(connectionID)}, nil
	}

	if len(r.Players) >= r.Settings.MaxPlayers {
		return nil, ErrRoomFull
	}

	player := NewPlayer(connectionID, name)

	// Late joiners get their hand inside the join so the player never exists without cards
	if r.State == StateActive {
		standard, standardRest, err := Deal(r.StandardDeck, StandardHandSize)
		if err != nil {
			return nil, err
		}
		wild, wildRest, err := Deal(r.WildDeck, WildHandSize)
		if err != nil {
			return nil, err
		}
		r.StandardDeck, r.WildDeck = standardRest, wildRest
		player.StandardHand, player.WildHand = standard, wild
	}

	r.Players[name] = player
	r.Order = append(r.Order, name)

	// First player becomes the host
	if r.HostID == "" {
		r.HostID = connectionID
	}

	return &JoinResult{Player: player, IsHost: r.IsHost(connectionID)}, nil
}

// Leave removes a player for good and returns their cards to the decks
func (r *Room) Leave(connectionID string) (*DepartureResult, error) {
	if r.State == StateTerminated {
		return nil, ErrRoomTerminated
	}

	player, err := r.PlayerByConnection(connectionID)
	if err != nil {
		return nil, err
	}

	result := &DepartureResult{Player: player, Removed: true, WasHost: r.IsHost(connectionID)}
	r.removePlayer(player.Name)
	r.afterDeparture(result)
	return result, nil
}

// Disconnect marks a player's connection closed. In the lobby the player is
// removed; once the game is active the record is kept for reconnection.
func (r *Room) Disconnect(connectionID string, at time.Time) (*DepartureResult, error) {
	if r.State == StateTerminated {
		return nil, ErrRoomTerminated
	}

	player, err := r.PlayerByConnection(connectionID)
	if err != nil {
		return nil, err
	}

	result := &DepartureResult{Player: player, WasHost: r.IsHost(connectionID)}
	if r.State == StateLobby {
		r.removePlayer(player.Name)
		result.Removed = true
	} else {
		player.Disconnect(at)
	}

	r.afterDeparture(result)
	return result, nil
}

// ExpireDisconnected drops a record whose reconnect grace ran out. since must
// match the disconnect it was scheduled for, so a player who came back and
// dropped again is not removed early.
func (r *Room) ExpireDisconnected(name string, since time.Time) (*Player, bool) {
	player, ok := r.Players[name]
	if !ok || player.IsConnected() || !player.DisconnectedAt.Equal(since) {
		return nil, false
	}
	r.removePlayer(name)
	return player, true
}

func (r *Room) afterDeparture(result *DepartureResult) {
	if result.WasHost {
		r.HostID = ""
		if next := r.firstConnected(); next != nil {
			r.HostID = next.ConnectionID
			result.NewHost = next
		}
	}

	if r.shouldTerminate() {
		r.Terminate()
		result.Terminated = true
	}
}

func (r *Room) shouldTerminate() bool {
	if r.State == StateTerminated {
		return false
	}
	if r.State == StateLobby {
		return len(r.Players) == 0
	}
	return r.firstConnected() == nil
}

// removePlayer deletes a player record, returning its cards to the bottom of the decks
func (r *Room) removePlayer(name string) {
	player, ok := r.Players[name]
	if !ok {
		return
	}

	if r.State == StateActive {
		r.StandardDeck = append(r.StandardDeck, player.StandardHand...)
		r.WildDeck = append(r.WildDeck, player.WildHand...)
	}
	player.StandardHand = nil
	player.WildHand = nil

	if r.PendingWild != nil && r.PendingWild.Player == name {
		r.PendingWild = nil
	}

	delete(r.Players, name)
	order := r.Order[:0]
	for _, n := range r.Order {
		if n != name {
			order = append(order, n)
		}
	}
	r.Order = order
}

// Terminate ends the room and releases its decks and round
func (r *Room) Terminate() {
	r.State = StateTerminated
	r.RoundInProgress = false
	r.CurrentRound = nil
	r.PendingWild = nil
	r.StandardDeck = nil
	r.WildDeck = nil
}

// Start deals the game (host only)
func (r *Room) Start(connectionID string) error {
	if !r.State.CanTransitionTo(StateActive) {
		return ErrGameAlreadyStarted
	}
	if !r.IsHost(connectionID) {
		return ErrNotHost
	}
	if len(r.Players) < r.Settings.MinPlayers {
		return ErrNotEnoughPlayers
	}

	standard, wild := BuildDecks(len(r.Players))
	for _, name := range r.Order {
		player := r.Players[name]

		var err error
		player.StandardHand, standard, err = Deal(standard, StandardHandSize)
		if err != nil {
			return err
		}
		player.WildHand, wild, err = Deal(wild, WildHandSize)
		if err != nil {
			return err
		}
		player.Drinks = 0
		player.Shotguns = 0
		player.CanSwapWild = false
	}

	r.StandardDeck = standard
	r.WildDeck = wild
	r.Quarter = 1
	r.State = StateActive

	return nil
}

// AdvanceQuarter moves to the next quarter and lets every player swap one wild card
func (r *Room) AdvanceQuarter(connectionID string) (int, error) {
	if r.State != StateActive {
		return 0, ErrInvalidPhase
	}
	if r.RoundInProgress {
		return 0, ErrActionInProgress
	}
	if !r.IsHost(connectionID) {
		return 0, ErrNotHost
	}

	r.Quarter++
	for _, player := range r.Players {
		player.CanSwapWild = true
	}
	return r.Quarter, nil
}

// ReassignHost hands the host role to another connected member
func (r *Room) ReassignHost(connectionID, newHostID string) (*Player, error) {
	if r.State == StateTerminated {
		return nil, ErrRoomTerminated
	}
	if !r.IsHost(connectionID) {
		return nil, ErrNotHost
	}

	next, err := r.PlayerByConnection(newHostID)
	if err != nil {
		return nil, err
	}
	if !next.IsConnected() {
		return nil, ErrPlayerNotFound
	}

	r.HostID = next.ConnectionID
	return next, nil
}

// SwapWildCard discards one wild card and draws a replacement, once per quarter
func (r *Room) SwapWildCard(connectionID, label string) (Card, error) {
	if r.State != StateActive {
		return Card{}, ErrInvalidPhase
	}
	if r.RoundInProgress {
		return Card{}, ErrActionInProgress
	}

	player, err := r.PlayerByConnection(connectionID)
	if err != nil {
		return Card{}, err
	}
	if !player.CanSwapWild {
		return Card{}, ErrSwapUnavailable
	}

	index := -1
	for i, card := range player.WildHand {
		if card.Label == label {
			index = i
			break
		}
	}
	if index == -1 {
		return Card{}, ErrCardNotInHand
	}

	drawn, rest, err := Deal(r.WildDeck, 1)
	if err != nil {
		return Card{}, err
	}

	discarded := player.WildHand[index]
	hand := append([]Card{}, player.WildHand[:index]...)
	hand = append(hand, player.WildHand[index+1:]...)
	player.WildHand = append(hand, drawn[0])
	r.WildDeck = append(rest, discarded)
	player.CanSwapWild = false

	return drawn[0], nil
}

// SelectWildCard records a player's claim that the wild event on one of their cards happened
func (r *Room) SelectWildCard(connectionID, label string) (*WildClaim, error) {
	if r.State != StateActive {
		return nil, ErrInvalidPhase
	}
	if r.RoundInProgress {
		return nil, ErrActionInProgress
	}

	player, err := r.PlayerByConnection(connectionID)
	if err != nil {
		return nil, err
	}
	if !containsLabel(player.WildHand, label) {
		return nil, ErrCardNotInHand
	}

	r.PendingWild = &WildClaim{Player: player.Name, Label: label}
	return r.PendingWild, nil
}

// Declare starts a round. The round-in-progress check and set happen in this
// single call, so two declarations can never both succeed. A rejected
// declaration leaves the room untouched.
func (r *Room) Declare(connectionID string, kind RoundKind, label, claimant string, now time.Time) (*Round, error) {
	if r.State != StateActive {
		return nil, ErrInvalidPhase
	}
	if r.RoundInProgress {
		return nil, ErrActionInProgress
	}
	if !r.IsHost(connectionID) {
		return nil, ErrNotHost
	}

	duration := r.Settings.CardRoundDuration
	switch kind {
	case RoundStandard:
		if _, ok := LookupCard(KindStandard, label); !ok {
			return nil, unknownCard(KindStandard, label)
		}
	case RoundWild:
		if _, ok := LookupCard(KindWild, label); !ok {
			return nil, unknownCard(KindWild, label)
		}
		player, err := r.GetPlayer(claimant)
		if err != nil {
			return nil, err
		}
		if !containsLabel(player.WildHand, label) {
			return nil, ErrCardNotInHand
		}
	case RoundEveryone:
		label = EveryoneDrinksLabel
		duration = r.Settings.EveryoneDrinksDuration
	default:
		return nil, ErrUnknownCard
	}

	r.RoundsPlayed++
	round := NewRound(r.RoundsPlayed, label, kind, r.Quarter, duration, now)

	for _, name := range r.Order {
		player := r.Players[name]
		if !player.IsConnected() {
			continue
		}

		if kind == RoundEveryone {
			tally := round.Assignments[name]
			tally.addDrinks(1)
			round.Assignments[name] = tally
			continue
		}

		total := r.playMatching(player, label)
		if total > 0 {
			round.Quotas[name] = ConvertDrinks(total)
		}
	}

	r.PendingWild = nil
	r.RoundInProgress = true
	r.CurrentRound = round
	return round, nil
}

func unknownCard(kind CardKind, label string) error {
	return fmt.Errorf("%w: %q is not one of %s", ErrUnknownCard, label, strings.Join(Labels(kind), ", "))
}

// playMatching removes every card carrying label from both of the player's
// hands, refills from the matching deck, puts the played cards at the bottom
// of that deck and returns their drink total.
func (r *Room) playMatching(player *Player, label string) int {
	var standardPlayed, wildPlayed []Card
	player.StandardHand, standardPlayed = takeMatching(player.StandardHand, label)
	player.WildHand, wildPlayed = takeMatching(player.WildHand, label)

	player.StandardHand, r.StandardDeck = refill(player.StandardHand, r.StandardDeck, len(standardPlayed))
	player.WildHand, r.WildDeck = refill(player.WildHand, r.WildDeck, len(wildPlayed))

	r.StandardDeck = append(r.StandardDeck, standardPlayed...)
	r.WildDeck = append(r.WildDeck, wildPlayed...)

	return drinkTotal(standardPlayed) + drinkTotal(wildPlayed)
}

// refill draws up to n cards from deck into hand; an empty deck leaves the hand short
func refill(hand, deck []Card, n int) ([]Card, []Card) {
	if n > len(deck) {
		n = len(deck)
	}
	drawn, rest, _ := Deal(deck, n)
	return append(hand, drawn...), rest
}

// AssignDrinks applies a batch of grants from one eligible player. The whole
// batch is checked against the remaining quota before anything is applied.
func (r *Room) AssignDrinks(connectionID string, grants []Grant) (*Round, error) {
	round := r.CurrentRound
	if r.State != StateActive || !r.RoundInProgress || round == nil || round.Finalized {
		return nil, ErrNoRoundActive
	}

	from, err := r.PlayerByConnection(connectionID)
	if err != nil {
		return nil, err
	}
	if !round.IsEligible(from.Name) {
		return nil, ErrNotEligible
	}

	remaining := round.Remaining(from.Name)
	var drinks, shotguns int
	for _, g := range grants {
		if _, ok := r.Players[g.To]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrPlayerNotFound, g.To)
		}
		if g.Drinks < 0 || g.Shotguns < 0 {
			return nil, ErrInvalidAmount
		}
		// Checked against what is left; summing first could overflow
		if g.Drinks > remaining.Drinks-drinks || g.Shotguns > remaining.Shotguns-shotguns {
			return nil, fmt.Errorf("%w: %d drinks and %d shotguns left", ErrQuotaExceeded, remaining.Drinks, remaining.Shotguns)
		}
		drinks += g.Drinks
		shotguns += g.Shotguns
	}
	if drinks+shotguns == 0 {
		return nil, ErrInvalidAmount
	}

	for _, g := range grants {
		if g.Drinks > 0 {
			if err := round.Assign(from.Name, g.To, AssignDrinks, g.Drinks); err != nil {
				return nil, err
			}
		}
		if g.Shotguns > 0 {
			if err := round.Assign(from.Name, g.To, AssignShotguns, g.Shotguns); err != nil {
				return nil, err
			}
		}
	}

	return round, nil
}

// Grant is one recipient's share of an assignment batch
type Grant struct {
	To       string `json:"to"`
	Drinks   int    `json:"drinks"`
	Shotguns int    `json:"shotguns"`
}

// FinalizeRound applies round number's assignments to cumulative stats and
// clears it. Only the first call for a round does anything; later calls and
// calls against a terminated room return ErrStaleFinalize.
func (r *Room) FinalizeRound(number int, now time.Time) (*RoundResult, error) {
	round := r.CurrentRound
	if r.State == StateTerminated || round == nil || round.Number != number || round.Finalized {
		return nil, ErrStaleFinalize
	}

	round.Finalized = true
	for _, name := range r.Order {
		tally, ok := round.Assignments[name]
		if !ok {
			continue
		}
		player := r.Players[name]
		player.Drinks += tally.Drinks
		player.Shotguns += tally.Shotguns
	}

	r.CurrentRound = nil
	r.RoundInProgress = false

	return &RoundResult{
		RoomCode:    r.Code,
		Number:      round.Number,
		Label:       round.Label,
		Kind:        round.Kind,
		Quarter:     round.Quarter,
		Results:     round.AssignmentsCopy(),
		DeclaredAt:  round.DeclaredAt,
		FinalizedAt: now,
	}, nil
}

// PlayerByConnection finds the player currently bound to connectionID
func (r *Room) PlayerByConnection(connectionID string) (*Player, error) {
	for _, player := range r.Players {
		if player.ConnectionID == connectionID && connectionID != "" {
			return player, nil
		}
	}
	return nil, ErrPlayerNotFound
}

// GetPlayer returns a player by display name
func (r *Room) GetPlayer(name string) (*Player, error) {
	player, ok := r.Players[name]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return player, nil
}

// IsHost checks if the given connection is the host
func (r *Room) IsHost(connectionID string) bool {
	return connectionID != "" && r.HostID == connectionID
}

// Host returns the host player, or nil when the room has none
func (r *Room) Host() *Player {
	player, err := r.PlayerByConnection(r.HostID)
	if err != nil {
		return nil
	}
	return player
}

// Members returns players in join order
func (r *Room) Members() []*Player {
	members := make([]*Player, 0, len(r.Order))
	for _, name := range r.Order {
		members = append(members, r.Players[name])
	}
	return members
}

// ConnectedPlayers returns connected players in join order
func (r *Room) ConnectedPlayers() []*Player {
	connected := make([]*Player, 0, len(r.Order))
	for _, p := range r.Members() {
		if p.IsConnected() {
			connected = append(connected, p)
		}
	}
	return connected
}

// ConnectedCount returns the number of connected players
func (r *Room) ConnectedCount() int {
	return len(r.ConnectedPlayers())
}

func (r *Room) firstConnected() *Player {
	for _, name := range r.Order {
		if p := r.Players[name]; p.IsConnected() {
			return p
		}
	}
	return nil
}

// CanStart checks if the game can be started
func (r *Room) CanStart() bool {
	return r.State == StateLobby && len(r.Players) >= r.Settings.MinPlayers
}

// CanJoin reports whether a new name could join right now
func (r *Room) CanJoin() bool {
	return r.State != StateTerminated && len(r.Players) < r.Settings.MaxPlayers
}

// Roster returns the de-duplicated display roster in join order
func (r *Room) Roster() []PlayerInfo {
	return ReconcileRoster(r.Members(), r.HostID)
}

// Stats returns cumulative stats in join order
func (r *Room) Stats() []PlayerStats {
	stats := make([]PlayerStats, 0, len(r.Order))
	for _, p := range r.Members() {
		stats = append(stats, p.Stats())
	}
	return stats
}
