package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/domain"
)

const (
	// ledgerTimeout bounds a single round write to the ledger
	ledgerTimeout = 5 * time.Second

	eventQueueSize = 256
)

// ClientConnection represents a connected client
type ClientConnection interface {
	Send(message interface{}) error
	GetConnectionID() string
	Close() error
}

// SessionConfig holds the timings and collaborators of a room session
type SessionConfig struct {
	ReconnectGrace time.Duration
	Ticker         TickerFactory
	Ledger         RoundLedger
	OnTerminated   func(session *RoomSession)
}

// RoomInfo is a read-only summary of a room
type RoomInfo struct {
	Code            string           `json:"roomCode"`
	State           domain.RoomState `json:"state"`
	PlayerCount     int              `json:"playerCount"`
	ConnectedCount  int              `json:"connectedCount"`
	Host            string           `json:"host,omitempty"`
	Quarter         int              `json:"quarter"`
	RoundInProgress bool             `json:"roundInProgress"`
	CanJoin         bool             `json:"canJoin"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// RoomSession wraps a room with concurrency control and client management.
// Every exported operation runs start to finish under mu, so each one is
// atomic with respect to the others and to timer callbacks.
type RoomSession struct {
	id        string // unique per session; room codes are reused
	room      *domain.Room
	mu        sync.Mutex
	clients   map[string]ClientConnection // connectionID -> client
	clientsMu sync.RWMutex
	logger    *slog.Logger
	cfg       SessionConfig

	// Timers
	countdownDone chan struct{}
	secondsLeft   int
	graceTimers   map[string]*time.Timer // display name -> pending removal

	// In-flight ledger writes; no new ones start once closed is set
	recording sync.WaitGroup
	closed    bool

	// Event channel for broadcasting
	events    chan *domain.GameEvent
	done      chan struct{}
	flushed   chan struct{}
	closeOnce sync.Once
}

// NewRoomSession creates a new room session
func NewRoomSession(room *domain.Room, cfg SessionConfig, logger *slog.Logger) *RoomSession {
	if cfg.Ticker == nil {
		cfg.Ticker = RealTicker
	}

	id := uuid.NewString()
	session := &RoomSession{
		id:          id,
		room:        room,
		clients:     make(map[string]ClientConnection),
		logger:      logger.With("roomCode", room.Code, "sessionId", id),
		cfg:         cfg,
		graceTimers: make(map[string]*time.Timer),
		events:      make(chan *domain.GameEvent, eventQueueSize),
		done:        make(chan struct{}),
		flushed:     make(chan struct{}),
	}

	// Start event broadcaster
	go session.eventLoop()

	return session
}

// ID returns the session id that round results are recorded under
func (s *RoomSession) ID() string {
	return s.id
}

// RoomCode returns the room code
func (s *RoomSession) RoomCode() string {
	return s.room.Code
}

// CreatedAt returns when the room was created
func (s *RoomSession) CreatedAt() time.Time {
	return s.room.CreatedAt
}

// PlayerCount returns the number of player records, connected or not
func (s *RoomSession) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.room.Players)
}

// State returns the room's lifecycle state
func (s *RoomSession) State() domain.RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.State
}

// Info returns a summary of the room
func (s *RoomSession) Info() RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := RoomInfo{
		Code:            s.room.Code,
		State:           s.room.State,
		PlayerCount:     len(s.room.Players),
		ConnectedCount:  s.room.ConnectedCount(),
		Quarter:         s.room.Quarter,
		RoundInProgress: s.room.RoundInProgress,
		CanJoin:         s.room.CanJoin(),
		CreatedAt:       s.room.CreatedAt,
	}
	if host := s.room.Host(); host != nil {
		info.Host = host.Name
	}
	return info
}

// RegisterClient registers a client connection
func (s *RoomSession) RegisterClient(connectionID string, client ClientConnection) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[connectionID] = client
}

// UnregisterClient removes a client connection
func (s *RoomSession) UnregisterClient(connectionID string) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, connectionID)
}

// GetClient returns the client for a connection
func (s *RoomSession) GetClient(connectionID string) (ClientConnection, bool) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	client, ok := s.clients[connectionID]
	return client, ok
}

// Join adds a player under name, or reattaches the disconnected player of that name
func (s *RoomSession) Join(client ClientConnection, name string) (*domain.JoinResult, error) {
	return s.join(client, name, domain.EventJoinedRoom)
}

func (s *RoomSession) join(client ClientConnection, name string, reply domain.EventType) (*domain.JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isClosed() {
		return nil, domain.ErrRoomNotFound
	}

	connectionID := client.GetConnectionID()
	result, err := s.room.Join(connectionID, name)
	if err != nil {
		return nil, err
	}

	player := result.Player
	s.RegisterClient(connectionID, client)
	s.cancelGraceTimer(player.Name)

	code := s.room.Code
	s.queueEvent(domain.NewPlayerEvent(reply, code, connectionID, &domain.RoomJoinedPayload{
		RoomCode:     code,
		ConnectionID: connectionID,
		Name:         player.Name,
		IsHost:       result.IsHost,
		State:        s.room.State,
		Reconnected:  result.Reconnected,
	}))
	s.queueEvent(domain.NewEvent(domain.EventUpdatePlayers, code, s.rosterPayload()))

	switch {
	case result.Reconnected:
		s.queueEvent(domain.NewEvent(domain.EventPlayerReconnected, code, &domain.PlayerStatusPayload{
			Name:    player.Name,
			Message: player.Name + " reconnected",
		}))
		s.restoreLocked(player)
		s.queueEvent(domain.NewEvent(domain.EventUpdatePlayerStats, code, s.statsPayload(domain.ReasonRosterRefresh)))
	case s.room.State == domain.StateActive:
		s.queueEvent(domain.NewPlayerEvent(domain.EventGameStarted, code, connectionID, &domain.GameStartedPayload{
			Hand:        player.Hand(),
			PlayerStats: s.room.Stats(),
			Quarter:     s.room.Quarter,
		}))
	}

	s.logger.Info("player joined",
		"player", player.Name,
		"connectionID", connectionID,
		"reconnected", result.Reconnected,
	)

	return result, nil
}

// restoreLocked sends a reconnecting player everything they need to pick up
// where they left off. Round data comes from the open round, never rescanned.
func (s *RoomSession) restoreLocked(player *domain.Player) {
	if s.room.State != domain.StateActive {
		return
	}

	code := s.room.Code
	connectionID := player.ConnectionID
	s.queueEvent(domain.NewPlayerEvent(domain.EventUpdatePlayerHand, code, connectionID, player.Hand()))
	s.queueEvent(domain.NewPlayerEvent(domain.EventQuarterUpdated, code, connectionID, &domain.QuarterPayload{
		Quarter:     s.room.Quarter,
		CanSwapWild: player.CanSwapWild,
	}))

	round := s.room.CurrentRound
	if round == nil {
		return
	}

	label := round.Label
	s.queueEvent(domain.NewPlayerEvent(domain.EventDeclaredCard, code, connectionID, &domain.DeclaredCardPayload{
		Label:       &label,
		Kind:        round.Kind,
		RoundNumber: round.Number,
		Seconds:     s.secondsLeft,
	}))
	s.queueEvent(domain.NewPlayerEvent(domain.EventUpdateTimer, code, connectionID, &domain.TimerPayload{
		SecondsRemaining: s.secondsLeft,
	}))

	if round.IsEligible(player.Name) {
		remaining := round.Remaining(player.Name)
		if !remaining.IsZero() {
			s.queueEvent(domain.NewPlayerEvent(domain.EventDistributeDrinks, code, connectionID, &domain.DistributePayload{
				Label:       round.Label,
				RoundNumber: round.Number,
				DrinkCount:  remaining.Drinks,
				Shotguns:    remaining.Shotguns,
			}))
		}
	}
}

// Leave removes a player from the room for good
func (s *RoomSession) Leave(connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.room.Leave(connectionID)
	if err != nil {
		return err
	}

	client, hasClient := s.GetClient(connectionID)
	s.UnregisterClient(connectionID)
	s.cancelGraceTimer(result.Player.Name)

	s.publishDeparture(result, domain.EventPlayerLeft, "left the game")

	// The departing client is no longer registered, so it is told directly
	if result.Terminated && hasClient {
		if err := client.Send(domain.NewPlayerEvent(domain.EventGameOver, s.room.Code, connectionID, &domain.MessagePayload{
			Message: "The game is over",
		})); err != nil {
			s.logger.Debug("failed to send to client", "connectionID", connectionID, "error", err)
		}
	}

	s.logger.Info("player left", "player", result.Player.Name)
	return nil
}

// Disconnect handles a closed connection. Lobby players are removed; in an
// active game the record is kept until the reconnect grace runs out.
func (s *RoomSession) Disconnect(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.UnregisterClient(connectionID)

	result, err := s.room.Disconnect(connectionID, time.Now())
	if err != nil {
		return
	}

	if result.Removed {
		s.publishDeparture(result, domain.EventPlayerLeft, "left the room")
	} else {
		s.publishDeparture(result, domain.EventPlayerDisconnected, "disconnected")
		if !result.Terminated {
			s.startGraceTimer(result.Player.Name, result.Player.DisconnectedAt)
		}
	}

	s.logger.Info("player disconnected", "player", result.Player.Name, "removed", result.Removed)
}

// publishDeparture fans out the consequences of a leave or disconnect (caller must hold lock)
func (s *RoomSession) publishDeparture(result *domain.DepartureResult, eventType domain.EventType, verb string) {
	code := s.room.Code
	name := result.Player.Name

	s.queueEvent(domain.NewEvent(eventType, code, &domain.PlayerStatusPayload{
		Name:    name,
		Message: fmt.Sprintf("%s %s", name, verb),
	}))

	if result.WasHost {
		s.queueEvent(domain.NewEvent(domain.EventHostLeft, code, &domain.MessagePayload{
			Message: "The host left the game",
		}))
		if result.NewHost != nil {
			s.queueEvent(domain.NewEvent(domain.EventNewHost, code, &domain.HostPayload{
				ID:      result.NewHost.ConnectionID,
				Name:    result.NewHost.Name,
				Message: result.NewHost.Name + " is now the host",
			}))
		}
	}

	if result.Terminated {
		s.terminateLocked("Everyone has left the game")
		return
	}

	s.queueEvent(domain.NewEvent(domain.EventUpdatePlayers, code, s.rosterPayload()))
	if s.room.State == domain.StateActive {
		s.queueEvent(domain.NewEvent(domain.EventUpdatePlayerStats, code, s.statsPayload(domain.ReasonRosterRefresh)))
	}
}

// terminateLocked stops every timer, tells the room it is over and hands the
// room to the registry for eviction (caller must hold lock)
func (s *RoomSession) terminateLocked(message string) {
	s.stopCountdown()
	s.stopGraceTimers()

	s.queueEvent(domain.NewEvent(domain.EventGameOver, s.room.Code, &domain.MessagePayload{Message: message}))
	s.logger.Info("room terminated")

	// The registry takes its own lock and then ours, so this cannot run inline
	if s.cfg.OnTerminated != nil {
		go s.cfg.OnTerminated(s)
	}
}

func (s *RoomSession) startGraceTimer(name string, since time.Time) {
	if s.cfg.ReconnectGrace <= 0 {
		return
	}
	s.cancelGraceTimer(name)
	s.graceTimers[name] = time.AfterFunc(s.cfg.ReconnectGrace, func() {
		s.expireDisconnected(name, since)
	})
}

func (s *RoomSession) cancelGraceTimer(name string) {
	if timer, ok := s.graceTimers[name]; ok {
		timer.Stop()
		delete(s.graceTimers, name)
	}
}

func (s *RoomSession) stopGraceTimers() {
	for name, timer := range s.graceTimers {
		timer.Stop()
		delete(s.graceTimers, name)
	}
}

// expireDisconnected removes a player whose reconnect grace ran out
func (s *RoomSession) expireDisconnected(name string, since time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isClosed() || s.room.State == domain.StateTerminated {
		return
	}

	player, ok := s.room.ExpireDisconnected(name, since)
	if !ok {
		return
	}
	delete(s.graceTimers, name)

	s.publishDeparture(&domain.DepartureResult{Player: player, Removed: true}, domain.EventPlayerLeft, "timed out")
	s.logger.Info("disconnected player expired", "player", name)
}

// StartGame deals the cards and starts the game (host only)
func (s *RoomSession) StartGame(connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.room.Start(connectionID); err != nil {
		return err
	}

	code := s.room.Code
	stats := s.room.Stats()
	for _, player := range s.room.Members() {
		s.queueEvent(domain.NewPlayerEvent(domain.EventGameStarted, code, player.ConnectionID, &domain.GameStartedPayload{
			Hand:        player.Hand(),
			PlayerStats: stats,
			Quarter:     s.room.Quarter,
		}))
	}
	s.queueEvent(domain.NewEvent(domain.EventUpdatePlayers, code, s.rosterPayload()))
	s.queueEvent(domain.NewEvent(domain.EventQuarterUpdated, code, &domain.QuarterPayload{Quarter: s.room.Quarter}))

	s.logger.Info("game started", "players", len(s.room.Players), "standardDeck", len(s.room.StandardDeck))
	return nil
}

// PlayStandardCard declares a standard card event (host only)
func (s *RoomSession) PlayStandardCard(connectionID, label string) error {
	return s.declare(connectionID, domain.RoundStandard, label, "")
}

// ConfirmWildCard declares the wild card event claimed by player (host only)
func (s *RoomSession) ConfirmWildCard(connectionID, label, player string) error {
	return s.declare(connectionID, domain.RoundWild, label, player)
}

// EveryoneDrinks declares a round where every connected player drinks once (host only)
func (s *RoomSession) EveryoneDrinks(connectionID string) error {
	return s.declare(connectionID, domain.RoundEveryone, "", "")
}

func (s *RoomSession) declare(connectionID string, kind domain.RoundKind, label, claimant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.room.Declare(connectionID, kind, label, claimant, time.Now())
	if err != nil {
		return err
	}

	code := s.room.Code
	seconds := int(round.Duration / time.Second)
	declared := round.Label
	s.queueEvent(domain.NewEvent(domain.EventDeclaredCard, code, &domain.DeclaredCardPayload{
		Label:       &declared,
		Kind:        round.Kind,
		RoundNumber: round.Number,
		Seconds:     seconds,
	}))

	for _, player := range s.room.Members() {
		quota, ok := round.Quotas[player.Name]
		if !ok {
			continue
		}
		s.queueEvent(domain.NewPlayerEvent(domain.EventDistributeDrinks, code, player.ConnectionID, &domain.DistributePayload{
			Label:       round.Label,
			RoundNumber: round.Number,
			DrinkCount:  quota.Drinks,
			Shotguns:    quota.Shotguns,
		}))
		s.queueEvent(domain.NewPlayerEvent(domain.EventUpdatePlayerHand, code, player.ConnectionID, player.Hand()))
	}

	if kind == domain.RoundEveryone {
		s.queueEvent(domain.NewEvent(domain.EventUpdatePlayerStats, code, s.statsPayload(domain.ReasonAssignment)))
	}
	s.queueEvent(domain.NewEvent(domain.EventUpdatePlayers, code, s.rosterPayload()))

	s.logger.Info("round declared",
		"round", round.Number,
		"label", round.Label,
		"kind", round.Kind,
		"eligible", round.Eligible(),
	)

	if round.Complete() {
		s.finalizeLocked(round.Number)
		return nil
	}

	s.startCountdown(round.Number, seconds)
	return nil
}

// SelectWildCard records a player's claim on one of their wild cards and tells the room
func (s *RoomSession) SelectWildCard(connectionID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim, err := s.room.SelectWildCard(connectionID, label)
	if err != nil {
		return err
	}

	s.queueEvent(domain.NewEvent(domain.EventWildCardPending, s.room.Code, &domain.WildPendingPayload{
		Player: claim.Player,
		Label:  claim.Label,
	}))
	return nil
}

// AssignDrinks applies a batch of grants from an eligible player
func (s *RoomSession) AssignDrinks(connectionID string, grants []domain.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.room.AssignDrinks(connectionID, grants)
	if err != nil {
		return err
	}

	code := s.room.Code
	s.queueEvent(domain.NewEvent(domain.EventUpdatePlayerStats, code, s.statsPayload(domain.ReasonAssignment)))

	if player, err := s.room.PlayerByConnection(connectionID); err == nil {
		remaining := round.Remaining(player.Name)
		s.queueEvent(domain.NewPlayerEvent(domain.EventDistributeDrinks, code, connectionID, &domain.DistributePayload{
			Label:       round.Label,
			RoundNumber: round.Number,
			DrinkCount:  remaining.Drinks,
			Shotguns:    remaining.Shotguns,
		}))
	}

	// Everyone has handed out their whole quota
	if round.Complete() {
		s.finalizeLocked(round.Number)
	}

	return nil
}

// FinalizeRound applies round number if it is still open. A second call, or a
// call for a round that is gone, returns domain.ErrStaleFinalize.
func (s *RoomSession) FinalizeRound(number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizeLocked(number)
}

// finalizeLocked applies the round and announces the result (caller must hold lock)
func (s *RoomSession) finalizeLocked(number int) error {
	result, err := s.room.FinalizeRound(number, time.Now())
	if err != nil {
		s.logger.Debug("finalize ignored", "round", number, "error", err)
		return err
	}

	s.stopCountdown()
	s.secondsLeft = 0

	code := s.room.Code
	s.queueEvent(domain.NewEvent(domain.EventUpdatePlayerStats, code, &domain.StatsPayload{
		Players:      s.room.Stats(),
		RoundResults: result.Results,
		Finalized:    true,
		Reason:       domain.ReasonRoundFinalized,
	}))
	s.queueEvent(domain.NewEvent(domain.EventDeclaredCard, code, &domain.DeclaredCardPayload{Label: nil}))

	for _, player := range s.room.ConnectedPlayers() {
		s.queueEvent(domain.NewPlayerEvent(domain.EventUpdatePlayerHand, code, player.ConnectionID, player.Hand()))
	}
	s.queueEvent(domain.NewEvent(domain.EventUpdatePlayers, code, s.rosterPayload()))

	s.logger.Info("round finalized", "round", result.Number, "label", result.Label, "recipients", len(result.Results))
	s.recordRound(*result)
	return nil
}

// recordRound hands the result to the ledger without blocking the room
func (s *RoomSession) recordRound(result domain.RoundResult) {
	if s.cfg.Ledger == nil || s.closed {
		return
	}
	result.SessionID = s.id

	s.recording.Add(1)
	go func() {
		defer s.recording.Done()
		ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
		defer cancel()

		if err := s.cfg.Ledger.Record(ctx, result); err != nil {
			s.logger.Warn("failed to record round", "round", result.Number, "error", err)
		}
	}()
}

// waitRecorded blocks until every ledger write started by this session has
// returned. Only meaningful after Close.
func (s *RoomSession) waitRecorded() {
	s.recording.Wait()
}

// startCountdown starts the per-second countdown of round number (caller must hold lock)
func (s *RoomSession) startCountdown(number, seconds int) {
	s.stopCountdown()

	s.secondsLeft = seconds
	s.queueEvent(domain.NewEvent(domain.EventUpdateTimer, s.room.Code, &domain.TimerPayload{SecondsRemaining: seconds}))

	done := make(chan struct{})
	s.countdownDone = done
	ticks, stop := s.cfg.Ticker(time.Second)
	go s.roundCountdown(number, ticks, stop, done)
}

func (s *RoomSession) stopCountdown() {
	if s.countdownDone != nil {
		close(s.countdownDone)
		s.countdownDone = nil
	}
}

// roundCountdown runs the round countdown
func (s *RoomSession) roundCountdown(number int, ticks <-chan time.Time, stop func(), done chan struct{}) {
	defer stop()

	for {
		select {
		case <-done:
			return
		case <-s.done:
			return
		case <-ticks:
			if s.tick(number) {
				return
			}
		}
	}
}

// tick counts one second off round number. It reports whether the countdown is over.
func (s *RoomSession) tick(number int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Room torn down or round already finalized and possibly replaced
	round := s.room.CurrentRound
	if s.room.State == domain.StateTerminated || round == nil || round.Number != number {
		return true
	}

	s.secondsLeft--
	if s.secondsLeft < 0 {
		s.secondsLeft = 0
	}
	s.queueEvent(domain.NewEvent(domain.EventUpdateTimer, s.room.Code, &domain.TimerPayload{SecondsRemaining: s.secondsLeft}))

	if s.secondsLeft == 0 {
		s.finalizeLocked(number)
		return true
	}
	return false
}

// NextQuarter advances the quarter (host only)
func (s *RoomSession) NextQuarter(connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	quarter, err := s.room.AdvanceQuarter(connectionID)
	if err != nil {
		return err
	}

	s.queueEvent(domain.NewEvent(domain.EventQuarterUpdated, s.room.Code, &domain.QuarterPayload{
		Quarter:     quarter,
		CanSwapWild: true,
	}))
	s.logger.Info("quarter advanced", "quarter", quarter)
	return nil
}

// SwapWildCard trades one of the player's wild cards for a new one
func (s *RoomSession) SwapWildCard(connectionID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.room.SwapWildCard(connectionID, label); err != nil {
		return err
	}

	player, err := s.room.PlayerByConnection(connectionID)
	if err != nil {
		return err
	}
	s.queueEvent(domain.NewPlayerEvent(domain.EventUpdatePlayerHand, s.room.Code, connectionID, player.Hand()))
	return nil
}

// AssignNewHost hands the host role to another player (host only)
func (s *RoomSession) AssignNewHost(connectionID, newHostID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	host, err := s.room.ReassignHost(connectionID, newHostID)
	if err != nil {
		return err
	}

	code := s.room.Code
	s.queueEvent(domain.NewEvent(domain.EventNewHost, code, &domain.HostPayload{
		ID:      host.ConnectionID,
		Name:    host.Name,
		Message: host.Name + " is now the host",
	}))
	s.queueEvent(domain.NewEvent(domain.EventUpdatePlayers, code, s.rosterPayload()))
	return nil
}

func (s *RoomSession) rosterPayload() *domain.RosterPayload {
	return &domain.RosterPayload{
		Players:  s.room.Roster(),
		HostID:   s.room.HostID,
		CanStart: s.room.CanStart(),
	}
}

// statsPayload builds a snapshot that never claims to be a finalize
func (s *RoomSession) statsPayload(reason domain.StatsReason) *domain.StatsPayload {
	payload := &domain.StatsPayload{
		Players: s.room.Stats(),
		Reason:  reason,
	}
	if round := s.room.CurrentRound; round != nil {
		payload.RoundResults = round.AssignmentsCopy()
	}
	return payload
}

// queueEvent adds an event to the broadcast queue
func (s *RoomSession) queueEvent(event *domain.GameEvent) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("event queue full, dropping event", "type", event.Type)
	}
}

// eventLoop processes events and broadcasts to clients. On shutdown it
// delivers whatever is still queued before signalling flushed.
func (s *RoomSession) eventLoop() {
	defer close(s.flushed)

	for {
		select {
		case <-s.done:
			for {
				select {
				case event := <-s.events:
					s.broadcastEvent(event)
				default:
					return
				}
			}
		case event := <-s.events:
			s.broadcastEvent(event)
		}
	}
}

// broadcastEvent sends an event to appropriate clients
func (s *RoomSession) broadcastEvent(event *domain.GameEvent) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	// If connection-specific, send only to that connection
	if event.ConnectionID != "" {
		if client, ok := s.clients[event.ConnectionID]; ok {
			if err := client.Send(event); err != nil {
				s.logger.Debug("failed to send to client", "connectionID", event.ConnectionID, "error", err)
			}
		}
		return
	}

	// Broadcast to all clients
	for connectionID, client := range s.clients {
		if err := client.Send(event); err != nil {
			s.logger.Debug("failed to send to client", "connectionID", connectionID, "error", err)
		}
	}
}

func (s *RoomSession) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close shuts down the session. Queued events are delivered before the
// client connections are closed.
func (s *RoomSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.stopCountdown()
		s.stopGraceTimers()
		s.mu.Unlock()

		close(s.done)
		<-s.flushed

		// Close all client connections
		s.clientsMu.Lock()
		for _, client := range s.clients {
			client.Close()
		}
		s.clients = make(map[string]ClientConnection)
		s.clientsMu.Unlock()
	})
}
