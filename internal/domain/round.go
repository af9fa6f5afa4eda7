package domain

import (
	"fmt"
	"time"
)

// DrinksPerShotgun is how many drinks collapse into one shotgun
const DrinksPerShotgun = 10

// EveryoneDrinksLabel is the declared label of an everyone-drinks round
const EveryoneDrinksLabel = "Everyone Drinks"

// RoundKind identifies what triggered a round
type RoundKind string

const (
	RoundStandard RoundKind = "standard"
	RoundWild     RoundKind = "wild"
	RoundEveryone RoundKind = "everyone"
)

// AssignKind selects which counter an assignment adds to
type AssignKind string

const (
	AssignDrinks   AssignKind = "drinks"
	AssignShotguns AssignKind = "shotguns"
)

// Payout is a pair of drink and shotgun counts. It is used for quotas,
// for how much an assigner has handed out, and for a recipient's tally.
type Payout struct {
	Drinks   int `json:"drinks"`
	Shotguns int `json:"shotguns"`
}

// ConvertDrinks collapses a raw drink total into shotguns and leftover drinks
func ConvertDrinks(total int) Payout {
	return Payout{
		Drinks:   total % DrinksPerShotgun,
		Shotguns: total / DrinksPerShotgun,
	}
}

// IsZero reports whether nothing is owed
func (p Payout) IsZero() bool {
	return p.Drinks == 0 && p.Shotguns == 0
}

// addDrinks adds drinks, rolling every full ten into a shotgun
func (p *Payout) addDrinks(n int) {
	p.Drinks += n
	p.Shotguns += p.Drinks / DrinksPerShotgun
	p.Drinks %= DrinksPerShotgun
}

// Round is the lifecycle of one declared scoring event
type Round struct {
	Number      int               `json:"number"`
	Label       string            `json:"label"`
	Kind        RoundKind         `json:"kind"`
	Quarter     int               `json:"quarter"`
	Quotas      map[string]Payout `json:"quotas"`      // eligible name -> granted
	Given       map[string]Payout `json:"given"`       // eligible name -> handed out so far
	Assignments map[string]Payout `json:"assignments"` // recipient name -> tally
	Duration    time.Duration     `json:"duration"`
	DeclaredAt  time.Time         `json:"declaredAt"`
	Finalized   bool              `json:"finalized"`
}

// NewRound creates an empty round
func NewRound(number int, label string, kind RoundKind, quarter int, duration time.Duration, now time.Time) *Round {
	return &Round{
		Number:      number,
		Label:       label,
		Kind:        kind,
		Quarter:     quarter,
		Quotas:      make(map[string]Payout),
		Given:       make(map[string]Payout),
		Assignments: make(map[string]Payout),
		Duration:    duration,
		DeclaredAt:  now,
	}
}

// IsEligible reports whether name was granted a quota this round
func (r *Round) IsEligible(name string) bool {
	_, ok := r.Quotas[name]
	return ok
}

// Remaining returns what name may still hand out
func (r *Round) Remaining(name string) Payout {
	quota := r.Quotas[name]
	given := r.Given[name]
	return Payout{
		Drinks:   quota.Drinks - given.Drinks,
		Shotguns: quota.Shotguns - given.Shotguns,
	}
}

// Eligible returns the eligible names in no particular order
func (r *Round) Eligible() []string {
	names := make([]string, 0, len(r.Quotas))
	for name := range r.Quotas {
		names = append(names, name)
	}
	return names
}

// Assign hands count drinks or shotguns from one eligible player to a recipient.
// The running total per assigner never exceeds that assigner's own quota; quotas
// of different assigners are independent.
func (r *Round) Assign(from, to string, kind AssignKind, count int) error {
	if r.Finalized {
		return ErrNoRoundActive
	}
	if !r.IsEligible(from) {
		return ErrNotEligible
	}
	if count <= 0 {
		return ErrInvalidAmount
	}

	remaining := r.Remaining(from)
	given := r.Given[from]
	tally := r.Assignments[to]

	switch kind {
	case AssignDrinks:
		if count > remaining.Drinks {
			return fmt.Errorf("%w: %d drinks left", ErrQuotaExceeded, remaining.Drinks)
		}
		given.Drinks += count
		tally.addDrinks(count)
	case AssignShotguns:
		if count > remaining.Shotguns {
			return fmt.Errorf("%w: %d shotguns left", ErrQuotaExceeded, remaining.Shotguns)
		}
		given.Shotguns += count
		tally.Shotguns += count
	default:
		return ErrInvalidAmount
	}

	r.Given[from] = given
	r.Assignments[to] = tally
	return nil
}

// Complete reports whether every eligible player has handed out their whole quota.
// Everyone-drinks rounds only end on their timer.
func (r *Round) Complete() bool {
	if r.Kind == RoundEveryone {
		return false
	}
	for name := range r.Quotas {
		if !r.Remaining(name).IsZero() {
			return false
		}
	}
	return true
}

// AssignmentsCopy returns a snapshot of the current tallies
func (r *Round) AssignmentsCopy() map[string]Payout {
	out := make(map[string]Payout, len(r.Assignments))
	for name, p := range r.Assignments {
		out[name] = p
	}
	return out
}

// RoundResult is what a finalized round applied to the room
// SessionID is filled in by the session that ran the round, since room codes
// are reused once a room is gone.
type RoundResult struct {
	SessionID   string            `json:"sessionId"`
	RoomCode    string            `json:"roomCode"`
	Number      int               `json:"number"`
	Label       string            `json:"label"`
	Kind        RoundKind         `json:"kind"`
	Quarter     int               `json:"quarter"`
	Results     map[string]Payout `json:"results"`
	DeclaredAt  time.Time         `json:"declaredAt"`
	FinalizedAt time.Time         `json:"finalizedAt"`
}
