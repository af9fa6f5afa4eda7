package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/domain"
)

const waitFor = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a ClientConnection that keeps every event it is sent
type recorder struct {
	id     string
	mu     sync.Mutex
	events []*domain.GameEvent
	closed bool
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) Send(message interface{}) error {
	if event, ok := message.(*domain.GameEvent); ok {
		r.mu.Lock()
		r.events = append(r.events, event)
		r.mu.Unlock()
	}
	return nil
}

func (r *recorder) GetConnectionID() string { return r.id }

func (r *recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *recorder) ofType(eventType domain.EventType) []*domain.GameEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.GameEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) statsWith(reason domain.StatsReason) []*domain.StatsPayload {
	var out []*domain.StatsPayload
	for _, e := range r.ofType(domain.EventUpdatePlayerStats) {
		if payload := e.Payload.(*domain.StatsPayload); payload.Reason == reason {
			out = append(out, payload)
		}
	}
	return out
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// manualTicker hands out tick channels the test drives by hand
type manualTicker struct {
	mu    sync.Mutex
	chans []chan time.Time
}

func (m *manualTicker) factory(time.Duration) (<-chan time.Time, func()) {
	ch := make(chan time.Time)
	m.mu.Lock()
	m.chans = append(m.chans, ch)
	m.mu.Unlock()
	return ch, func() {}
}

// tick fires the latest ticker and reports whether a countdown took it
func (m *manualTicker) tick() bool {
	m.mu.Lock()
	if len(m.chans) == 0 {
		m.mu.Unlock()
		return false
	}
	ch := m.chans[len(m.chans)-1]
	m.mu.Unlock()

	select {
	case ch <- time.Now():
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Record(ctx context.Context, result domain.RoundResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *mockLedger) History(ctx context.Context, sessionID string) ([]domain.RoundResult, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]domain.RoundResult), args.Error(1)
}

type fixture struct {
	session *RoomSession
	ticker  *manualTicker
	clients map[string]*recorder
}

func conn(name string) string {
	return "conn-" + name
}

// newActiveSession starts a three player game with known hands. Only bob
// holds a Touchdown; nobody holds an Interception.
func newActiveSession(t *testing.T, cfg SessionConfig) *fixture {
	t.Helper()

	settings := domain.DefaultRoomSettings()
	settings.CardRoundDuration = 3 * time.Second
	settings.EveryoneDrinksDuration = 2 * time.Second

	ticker := &manualTicker{}
	cfg.Ticker = ticker.factory
	if cfg.Ledger == nil {
		cfg.Ledger = NewMemoryLedger()
	}

	session := NewRoomSession(domain.NewRoom("ABCD", settings), cfg, discardLogger())
	t.Cleanup(session.Close)

	f := &fixture{session: session, ticker: ticker, clients: make(map[string]*recorder)}
	for _, name := range []string{"alice", "bob", "carol"} {
		client := newRecorder(conn(name))
		_, err := session.Join(client, name)
		require.NoError(t, err)
		f.clients[name] = client
	}
	require.NoError(t, session.StartGame(conn("alice")))

	card := func(label string) domain.Card {
		c, ok := domain.LookupCard(domain.KindStandard, label)
		require.True(t, ok)
		return c
	}

	session.mu.Lock()
	for _, p := range session.room.Players {
		p.StandardHand = []domain.Card{card("First Down"), card("Sack"), card("Sack"), card("Penalty Flag"), card("Field Goal")}
	}
	session.room.Players["bob"].StandardHand[0] = card("Touchdown")
	deck := make([]domain.Card, 0, 10)
	for i := 0; i < 10; i++ {
		deck = append(deck, card("Fumble"))
	}
	session.room.StandardDeck = deck
	session.mu.Unlock()

	return f
}

func (f *fixture) currentRound(t *testing.T) *domain.Round {
	t.Helper()
	f.session.mu.Lock()
	defer f.session.mu.Unlock()
	return f.session.room.CurrentRound
}

func (f *fixture) roundInProgress() bool {
	f.session.mu.Lock()
	defer f.session.mu.Unlock()
	return f.session.room.RoundInProgress
}

func (f *fixture) drinks(name string) int {
	f.session.mu.Lock()
	defer f.session.mu.Unlock()
	return f.session.room.Players[name].Drinks
}

func TestSessionJoinAnnouncesRoster(t *testing.T) {
	session := NewRoomSession(domain.NewRoom("ABCD", domain.DefaultRoomSettings()), SessionConfig{}, discardLogger())
	t.Cleanup(session.Close)

	alice := newRecorder(conn("alice"))
	result, err := session.Join(alice, "alice")
	require.NoError(t, err)
	assert.True(t, result.IsHost)

	bob := newRecorder(conn("bob"))
	_, err = session.Join(bob, "bob")
	require.NoError(t, err)

	_, err = session.Join(newRecorder("conn-imposter"), "bob")
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentity)

	require.Eventually(t, func() bool { return len(alice.ofType(domain.EventUpdatePlayers)) == 2 }, waitFor, 5*time.Millisecond)

	joined := bob.ofType(domain.EventJoinedRoom)
	require.Len(t, joined, 1)
	payload := joined[0].Payload.(*domain.RoomJoinedPayload)
	assert.Equal(t, "bob", payload.Name)
	assert.False(t, payload.IsHost)
	assert.Empty(t, alice.ofType(domain.EventJoinedRoom), "join replies go to the joining connection only")

	latest := alice.ofType(domain.EventUpdatePlayers)[1].Payload.(*domain.RosterPayload)
	assert.Len(t, latest.Players, 2)
	assert.Equal(t, conn("alice"), latest.HostID)
	assert.False(t, latest.CanStart)
}

func TestSessionCountdownFinalizes(t *testing.T) {
	ledger := &mockLedger{}
	recorded := make(chan domain.RoundResult, 1)
	ledger.On("Record", mock.Anything, mock.MatchedBy(func(r domain.RoundResult) bool {
		return r.Number == 1 && r.Label == "Touchdown"
	})).Run(func(args mock.Arguments) {
		recorded <- args.Get(1).(domain.RoundResult)
	}).Return(nil).Once()

	f := newActiveSession(t, SessionConfig{Ledger: ledger})
	bob := f.clients["bob"]

	require.NoError(t, f.session.PlayStandardCard(conn("alice"), "Touchdown"))
	require.NoError(t, f.session.AssignDrinks(conn("bob"), []domain.Grant{{To: "carol", Drinks: 2}}))
	assert.True(t, f.roundInProgress())

	for i := 0; i < 3; i++ {
		require.True(t, f.ticker.tick(), "tick %d", i+1)
	}

	require.Eventually(t, func() bool { return len(bob.statsWith(domain.ReasonRoundFinalized)) == 1 }, waitFor, 5*time.Millisecond)
	assert.False(t, f.roundInProgress())
	assert.Equal(t, 2, f.drinks("carol"))

	final := bob.statsWith(domain.ReasonRoundFinalized)[0]
	assert.True(t, final.Finalized)
	assert.Equal(t, map[string]domain.Payout{"carol": {Drinks: 2}}, final.RoundResults)

	timers := bob.ofType(domain.EventUpdateTimer)
	require.Len(t, timers, 4)
	assert.Equal(t, 3, timers[0].Payload.(*domain.TimerPayload).SecondsRemaining)
	assert.Equal(t, 0, timers[3].Payload.(*domain.TimerPayload).SecondsRemaining)

	distribute := bob.ofType(domain.EventDistributeDrinks)
	require.Len(t, distribute, 2)
	assert.Equal(t, 3, distribute[0].Payload.(*domain.DistributePayload).DrinkCount)
	assert.Equal(t, 1, distribute[1].Payload.(*domain.DistributePayload).DrinkCount)
	assert.Empty(t, f.clients["carol"].ofType(domain.EventDistributeDrinks))

	// The countdown is gone and a second finalize is a no-op
	assert.False(t, f.ticker.tick())
	assert.ErrorIs(t, f.session.FinalizeRound(1), domain.ErrStaleFinalize)
	assert.Equal(t, 2, f.drinks("carol"))

	select {
	case result := <-recorded:
		assert.Equal(t, "ABCD", result.RoomCode)
		assert.Equal(t, f.session.ID(), result.SessionID)
		assert.Equal(t, domain.RoundStandard, result.Kind)
	case <-time.After(waitFor):
		t.Fatal("round was not recorded")
	}
	ledger.AssertExpectations(t)
}

func TestSessionFinalizesWhenQuotaSpent(t *testing.T) {
	f := newActiveSession(t, SessionConfig{})
	alice := f.clients["alice"]

	require.NoError(t, f.session.PlayStandardCard(conn("alice"), "Touchdown"))
	require.NoError(t, f.session.AssignDrinks(conn("bob"), []domain.Grant{{To: "alice", Drinks: 3}}))

	require.Eventually(t, func() bool { return len(alice.statsWith(domain.ReasonRoundFinalized)) == 1 }, waitFor, 5*time.Millisecond)
	assert.False(t, f.roundInProgress())
	assert.Equal(t, 3, f.drinks("alice"))

	// A late tick does not fire a second finalize
	f.ticker.tick()
	assert.Never(t, func() bool { return len(alice.statsWith(domain.ReasonRoundFinalized)) > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	// The finalize broadcast clears the declared card
	declared := alice.ofType(domain.EventDeclaredCard)
	require.Len(t, declared, 2)
	assert.Nil(t, declared[1].Payload.(*domain.DeclaredCardPayload).Label)

	require.Eventually(t, func() bool {
		history, err := f.session.cfg.Ledger.History(context.Background(), f.session.ID())
		return err == nil && len(history) == 1
	}, waitFor, 5*time.Millisecond)
}

func TestSessionRejectsSecondDeclaration(t *testing.T) {
	f := newActiveSession(t, SessionConfig{})

	require.NoError(t, f.session.PlayStandardCard(conn("alice"), "Touchdown"))
	first := f.currentRound(t)

	assert.ErrorIs(t, f.session.EveryoneDrinks(conn("alice")), domain.ErrActionInProgress)
	assert.ErrorIs(t, f.session.PlayStandardCard(conn("alice"), "Sack"), domain.ErrActionInProgress)
	assert.Same(t, first, f.currentRound(t))
}

func TestSessionNobodyEligibleFinalizesImmediately(t *testing.T) {
	f := newActiveSession(t, SessionConfig{})
	carol := f.clients["carol"]

	require.NoError(t, f.session.PlayStandardCard(conn("alice"), "Interception"))

	assert.False(t, f.roundInProgress())
	require.Eventually(t, func() bool { return len(carol.statsWith(domain.ReasonRoundFinalized)) == 1 }, waitFor, 5*time.Millisecond)
	assert.Empty(t, carol.ofType(domain.EventUpdateTimer))
}

func TestSessionStaleTickIsIgnored(t *testing.T) {
	f := newActiveSession(t, SessionConfig{})

	require.NoError(t, f.session.PlayStandardCard(conn("alice"), "Touchdown"))
	require.NoError(t, f.session.AssignDrinks(conn("bob"), []domain.Grant{{To: "carol", Drinks: 3}}))
	require.NoError(t, f.session.EveryoneDrinks(conn("alice")))

	second := f.currentRound(t)
	require.NotNil(t, second)
	assert.Equal(t, 2, second.Number)

	f.session.mu.Lock()
	before := f.session.secondsLeft
	f.session.mu.Unlock()

	// A tick addressed to the finished round stops that countdown without touching this one
	assert.True(t, f.session.tick(1))

	f.session.mu.Lock()
	assert.Equal(t, before, f.session.secondsLeft)
	f.session.mu.Unlock()
	assert.True(t, f.roundInProgress())
}

func TestSessionEveryoneDrinks(t *testing.T) {
	f := newActiveSession(t, SessionConfig{})
	carol := f.clients["carol"]

	f.session.Disconnect(conn("carol"))
	require.NoError(t, f.session.EveryoneDrinks(conn("alice")))

	require.True(t, f.ticker.tick())
	require.True(t, f.ticker.tick())

	require.Eventually(t, func() bool { return len(f.clients["bob"].statsWith(domain.ReasonRoundFinalized)) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, f.drinks("alice"))
	assert.Equal(t, 1, f.drinks("bob"))
	assert.Zero(t, f.drinks("carol"))
	assert.Empty(t, carol.ofType(domain.EventDeclaredCard))

	snapshots := f.clients["bob"].statsWith(domain.ReasonAssignment)
	require.NotEmpty(t, snapshots)
	assert.False(t, snapshots[0].Finalized)
}

func TestSessionReconnectRestoresRound(t *testing.T) {
	f := newActiveSession(t, SessionConfig{ReconnectGrace: time.Minute})

	require.NoError(t, f.session.PlayStandardCard(conn("alice"), "Touchdown"))
	require.NoError(t, f.session.AssignDrinks(conn("bob"), []domain.Grant{{To: "carol", Drinks: 1}}))

	f.session.Disconnect(conn("bob"))
	assert.Equal(t, 3, f.session.PlayerCount())

	again := newRecorder("conn-bob-2")
	result, err := f.session.Join(again, "bob")
	require.NoError(t, err)
	assert.True(t, result.Reconnected)

	require.Eventually(t, func() bool { return len(again.statsWith(domain.ReasonRosterRefresh)) == 1 }, waitFor, 5*time.Millisecond)

	joined := again.ofType(domain.EventJoinedRoom)
	require.Len(t, joined, 1)
	assert.True(t, joined[0].Payload.(*domain.RoomJoinedPayload).Reconnected)

	require.Len(t, again.ofType(domain.EventUpdatePlayerHand), 1)
	declared := again.ofType(domain.EventDeclaredCard)
	require.Len(t, declared, 1)
	assert.Equal(t, "Touchdown", *declared[0].Payload.(*domain.DeclaredCardPayload).Label)

	distribute := again.ofType(domain.EventDistributeDrinks)
	require.Len(t, distribute, 1)
	assert.Equal(t, 2, distribute[0].Payload.(*domain.DistributePayload).DrinkCount)

	// A roster refresh mid-round is never mistaken for a finalize
	refresh := again.statsWith(domain.ReasonRosterRefresh)[0]
	assert.False(t, refresh.Finalized)
	assert.Equal(t, map[string]domain.Payout{"carol": {Drinks: 1}}, refresh.RoundResults)
	assert.Equal(t, 0, f.drinks("carol"))
	assert.True(t, f.roundInProgress())

	assert.Len(t, f.clients["alice"].ofType(domain.EventPlayerReconnected), 1)
}

func TestSessionGraceExpiryRemovesPlayer(t *testing.T) {
	f := newActiveSession(t, SessionConfig{ReconnectGrace: 20 * time.Millisecond})
	alice := f.clients["alice"]

	f.session.Disconnect(conn("bob"))

	require.Eventually(t, func() bool { return f.session.PlayerCount() == 2 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(alice.ofType(domain.EventPlayerLeft)) == 1 }, waitFor, 5*time.Millisecond)
	assert.Len(t, alice.ofType(domain.EventPlayerDisconnected), 1)

	// Too late to take the old seat back; bob joins as a new player with fresh stats
	result, err := f.session.Join(newRecorder("conn-bob-2"), "bob")
	require.NoError(t, err)
	assert.False(t, result.Reconnected)
	assert.Len(t, result.Player.StandardHand, domain.StandardHandSize)
}

func TestSessionTerminatesWhenEveryoneLeaves(t *testing.T) {
	terminated := make(chan *RoomSession, 1)
	f := newActiveSession(t, SessionConfig{OnTerminated: func(s *RoomSession) { terminated <- s }})

	require.NoError(t, f.session.PlayStandardCard(conn("alice"), "Touchdown"))
	round := f.currentRound(t)

	require.NoError(t, f.session.Leave(conn("alice")))
	require.Eventually(t, func() bool { return len(f.clients["bob"].ofType(domain.EventNewHost)) == 1 }, waitFor, 5*time.Millisecond)
	host := f.clients["bob"].ofType(domain.EventNewHost)[0].Payload.(*domain.HostPayload)
	assert.Equal(t, "bob", host.Name)

	require.NoError(t, f.session.Leave(conn("bob")))
	require.NoError(t, f.session.Leave(conn("carol")))

	select {
	case session := <-terminated:
		assert.Same(t, f.session, session)
	case <-time.After(waitFor):
		t.Fatal("room was not handed off for eviction")
	}

	assert.Len(t, f.clients["carol"].ofType(domain.EventGameOver), 1)
	assert.Equal(t, domain.StateTerminated, f.session.State())

	// A late tick changes nothing and the old round cannot be finalized
	f.ticker.tick()
	assert.Zero(t, f.session.PlayerCount())
	assert.ErrorIs(t, f.session.FinalizeRound(round.Number), domain.ErrStaleFinalize)
	assert.ErrorIs(t, f.session.Leave(conn("carol")), domain.ErrRoomTerminated)
}

func TestSessionConcurrentDeclareAndFinalize(t *testing.T) {
	f := newActiveSession(t, SessionConfig{})
	alice := f.clients["alice"]
	const attempts = 20

	var (
		wg       sync.WaitGroup
		declared atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = f.session.PlayStandardCard(conn("alice"), "Touchdown")
			} else {
				err = f.session.EveryoneDrinks(conn("alice"))
			}
			if err == nil {
				declared.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrActionInProgress)
			}
		}(i)
	}
	wg.Wait()
	require.EqualValues(t, 1, declared.Load())

	round := f.currentRound(t)
	require.NotNil(t, round)
	if round.Kind == domain.RoundStandard {
		require.NoError(t, f.session.AssignDrinks(conn("bob"), []domain.Grant{{To: "carol", Drinks: 1}}))
	}
	before := f.drinks("carol")

	// Run the countdown down to its last second, then race the final tick
	// against manual finalizes
	seconds := int(round.Duration / time.Second)
	for i := 0; i < seconds-1; i++ {
		require.True(t, f.ticker.tick())
	}

	var finalized atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.session.FinalizeRound(round.Number); err == nil {
				finalized.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrStaleFinalize)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.ticker.tick()
	}()
	wg.Wait()

	assert.LessOrEqual(t, finalized.Load(), int32(1))
	require.Eventually(t, func() bool { return len(alice.statsWith(domain.ReasonRoundFinalized)) == 1 }, waitFor, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(alice.statsWith(domain.ReasonRoundFinalized)) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.False(t, f.roundInProgress())
	assert.Equal(t, before+1, f.drinks("carol"), "round applied exactly once")
}

func TestSessionQuarterAndSwap(t *testing.T) {
	f := newActiveSession(t, SessionConfig{})
	bob := f.clients["bob"]

	assert.ErrorIs(t, f.session.NextQuarter(conn("bob")), domain.ErrNotHost)
	require.NoError(t, f.session.NextQuarter(conn("alice")))

	f.session.mu.Lock()
	label := f.session.room.Players["bob"].WildHand[0].Label
	f.session.mu.Unlock()

	require.NoError(t, f.session.SwapWildCard(conn("bob"), label))
	assert.ErrorIs(t, f.session.SwapWildCard(conn("bob"), label), domain.ErrSwapUnavailable)

	require.Eventually(t, func() bool { return len(bob.ofType(domain.EventUpdatePlayerHand)) == 1 }, waitFor, 5*time.Millisecond)
	quarters := bob.ofType(domain.EventQuarterUpdated)
	require.Len(t, quarters, 2)
	assert.Equal(t, 2, quarters[1].Payload.(*domain.QuarterPayload).Quarter)
	assert.Empty(t, f.clients["alice"].ofType(domain.EventUpdatePlayerHand))
}

func TestSessionWildCardClaim(t *testing.T) {
	f := newActiveSession(t, SessionConfig{})

	f.session.mu.Lock()
	label := f.session.room.Players["carol"].WildHand[0].Label
	f.session.mu.Unlock()

	require.NoError(t, f.session.SelectWildCard(conn("carol"), label))
	require.Eventually(t, func() bool { return len(f.clients["alice"].ofType(domain.EventWildCardPending)) == 1 }, waitFor, 5*time.Millisecond)
	pending := f.clients["alice"].ofType(domain.EventWildCardPending)[0].Payload.(*domain.WildPendingPayload)
	assert.Equal(t, "carol", pending.Player)

	assert.ErrorIs(t, f.session.ConfirmWildCard(conn("bob"), label, "carol"), domain.ErrNotHost)
	require.NoError(t, f.session.ConfirmWildCard(conn("alice"), label, "carol"))

	round := f.currentRound(t)
	require.NotNil(t, round)
	assert.True(t, round.IsEligible("carol"))
	assert.Equal(t, domain.RoundWild, round.Kind)
}

func TestSessionAssignNewHost(t *testing.T) {
	f := newActiveSession(t, SessionConfig{})

	require.NoError(t, f.session.AssignNewHost(conn("alice"), conn("carol")))
	assert.ErrorIs(t, f.session.StartGame(conn("carol")), domain.ErrGameAlreadyStarted)
	assert.ErrorIs(t, f.session.NextQuarter(conn("alice")), domain.ErrNotHost)
	require.NoError(t, f.session.NextQuarter(conn("carol")))
}

func TestSessionCloseFlushesAndClosesClients(t *testing.T) {
	f := newActiveSession(t, SessionConfig{})

	f.session.Close()

	for name, client := range f.clients {
		assert.True(t, client.isClosed(), name)
		assert.NotEmpty(t, client.ofType(domain.EventGameStarted), name)
	}

	_, err := f.session.Join(newRecorder("conn-dave"), "dave")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}
