package domain

import (
	"fmt"
	"math/rand"
)

// CardKind identifies which deck a card belongs to
type CardKind string

const (
	KindStandard CardKind = "standard"
	KindWild     CardKind = "wild"
)

// Hand sizes dealt at game start
const (
	StandardHandSize = 5
	WildHandSize     = 2
)

// Card is an immutable playing card. Cards sharing kind and label are interchangeable.
type Card struct {
	Kind       CardKind `json:"kind"`
	Label      string   `json:"label"`
	DrinkValue int      `json:"drinkValue"`
}

// cardSpec is one row of a deck table: a label, its drink value and how many
// copies go into the deck for each player in the room.
type cardSpec struct {
	label      string
	drinkValue int
	perPlayer  int
}

var standardTable = []cardSpec{
	{"Touchdown", 3, 2},
	{"Field Goal", 2, 2},
	{"First Down", 1, 2},
	{"Interception", 4, 1},
	{"Fumble", 4, 1},
	{"Sack", 2, 1},
	{"Penalty Flag", 1, 1},
	{"Safety", 5, 1},
}

var wildTable = []cardSpec{
	{"Pick Six", 6, 1},
	{"Hail Mary", 8, 1},
	{"Onside Kick", 5, 1},
	{"Blocked Kick", 5, 1},
}

func tableFor(kind CardKind) []cardSpec {
	if kind == KindWild {
		return wildTable
	}
	return standardTable
}

// LookupCard returns the card with the given label in the deck table of kind
func LookupCard(kind CardKind, label string) (Card, bool) {
	for _, spec := range tableFor(kind) {
		if spec.label == label {
			return Card{Kind: kind, Label: spec.label, DrinkValue: spec.drinkValue}, true
		}
	}
	return Card{}, false
}

// Labels returns every label of the given kind in table order
func Labels(kind CardKind) []string {
	table := tableFor(kind)
	labels := make([]string, 0, len(table))
	for _, spec := range table {
		labels = append(labels, spec.label)
	}
	return labels
}

// BuildDecks returns freshly shuffled standard and wild decks sized for playerCount players.
func BuildDecks(playerCount int) (standard, wild []Card) {
	standard = buildDeck(KindStandard, playerCount)
	wild = buildDeck(KindWild, playerCount)
	Shuffle(standard)
	Shuffle(wild)
	return standard, wild
}

func buildDeck(kind CardKind, playerCount int) []Card {
	table := tableFor(kind)
	deck := make([]Card, 0)
	for _, spec := range table {
		card := Card{Kind: kind, Label: spec.label, DrinkValue: spec.drinkValue}
		for i := 0; i < spec.perPlayer*playerCount; i++ {
			deck = append(deck, card)
		}
	}
	return deck
}

// Shuffle permutes cards in place (Fisher-Yates over the process-wide source).
func Shuffle(cards []Card) {
	rand.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// Deal removes the first n cards from deck. The returned slices never share
// storage with each other.
func Deal(deck []Card, n int) (dealt, remainder []Card, err error) {
	if n < 0 || n > len(deck) {
		return nil, deck, fmt.Errorf("%w: need %d, have %d", ErrInsufficientCards, n, len(deck))
	}

	dealt = make([]Card, n)
	copy(dealt, deck[:n])

	remainder = make([]Card, len(deck)-n)
	copy(remainder, deck[n:])

	return dealt, remainder, nil
}

// takeMatching splits hand into the cards that do not carry label and the ones that do
func takeMatching(hand []Card, label string) (kept, matched []Card) {
	kept = make([]Card, 0, len(hand))
	for _, card := range hand {
		if card.Label == label {
			matched = append(matched, card)
		} else {
			kept = append(kept, card)
		}
	}
	return kept, matched
}

func drinkTotal(cards []Card) int {
	total := 0
	for _, card := range cards {
		total += card.DrinkValue
	}
	return total
}

func containsLabel(cards []Card, label string) bool {
	for _, card := range cards {
		if card.Label == label {
			return true
		}
	}
	return false
}
