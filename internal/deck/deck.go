package deck

import (
	"errors"
	rand "math/rand/v2"
)

// ErrExhausted is returned when a deal asks for more cards than remain. The
// deck never silently reshuffles.
var ErrExhausted = errors.New("deck exhausted")

// Deck represents a standard 52-card deck dealt from the front
type Deck struct {
	cards []Card
	next  int
	rng   *rand.Rand
}

// New creates a full 52-card deck in canonical order with an explicit RNG.
// Callers shuffle before dealing.
func New(rng *rand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}
	for suit := Hearts; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(rank, suit))
		}
	}
	return d
}

// NewExcluding creates a deck with the given cards removed, for board
// run-outs where some cards are already accounted for.
func NewExcluding(rng *rand.Rand, exclude []Card) *Deck {
	used := make(map[Card]bool, len(exclude))
	for _, c := range exclude {
		used[c] = true
	}

	d := &Deck{
		cards: make([]Card, 0, 52-len(exclude)),
		rng:   rng,
	}
	for suit := Hearts; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			c := NewCard(rank, suit)
			if !used[c] {
				d.cards = append(d.cards, c)
			}
		}
	}
	return d
}

// Shuffle randomizes the undealt portion of the deck with Fisher-Yates
func (d *Deck) Shuffle() {
	d.next = 0
	for i := len(d.cards) - 1; i > 0; i-- {
		j := d.rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal removes and returns the next n cards
func (d *Deck) Deal(n int) ([]Card, error) {
	if d.next+n > len(d.cards) {
		return nil, ErrExhausted
	}
	cards := make([]Card, n)
	copy(cards, d.cards[d.next:d.next+n])
	d.next += n
	return cards, nil
}

// Remaining returns the number of undealt cards
func (d *Deck) Remaining() int {
	return len(d.cards) - d.next
}

// Cards returns the remaining cards without dealing them. Equity enumeration
// iterates candidate run-outs over this view.
func (d *Deck) Cards() []Card {
	return d.cards[d.next:]
}
