package evaluator

import (
	rand "math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/sixmax/plosrv/internal/deck"
	"github.com/sixmax/plosrv/internal/randutil"
)

// DefaultIterations is the Monte Carlo sample count for streets that are too
// wide to enumerate exactly.
const DefaultIterations = 500

// exactFlopMaxPlayers bounds the exact turn+river enumeration on the flop;
// beyond this the C(45,2) * players * 60 combination cost is not worth it.
const exactFlopMaxPlayers = 3

// PlayerHand pairs a player id with their known hole cards for equity and EV
// calculations. Players with fewer than four known cards are skipped.
type PlayerHand struct {
	ID     string
	Hole   []deck.Card
	Folded bool
}

// CardSet represents a set of cards using a bitset for fast membership
// checks. Each card maps to a bit: index = (rank-2)*4 + suit.
type CardSet uint64

func cardIndex(c deck.Card) int {
	return (int(c.Rank)-2)*4 + int(c.Suit)
}

// Add adds a card to the set
func (cs *CardSet) Add(c deck.Card) {
	*cs |= 1 << cardIndex(c)
}

// Contains checks if a card is in the set
func (cs CardSet) Contains(c deck.Card) bool {
	return cs&(1<<cardIndex(c)) != 0
}

// NewCardSet creates a CardSet from a slice of cards
func NewCardSet(cards []deck.Card) CardSet {
	var cs CardSet
	for _, c := range cards {
		cs.Add(c)
	}
	return cs
}

// tally accumulates win shares per player plus the sample count
type tally struct {
	shares  map[string]float64
	samples int
}

func newTally(players []PlayerHand) *tally {
	shares := make(map[string]float64, len(players))
	for _, p := range players {
		shares[p.ID] = 0
	}
	return &tally{shares: shares}
}

func (t *tally) merge(o *tally) {
	for id, s := range o.shares {
		t.shares[id] += s
	}
	t.samples += o.samples
}

// Equities computes each live player's share of the pot under random
// run-outs of the board. Results sum to 1. River boards are scored exactly,
// turn boards enumerate all rivers, flop boards enumerate turn+river pairs
// for small fields, and everything else is Monte Carlo with
// DefaultIterations samples.
func Equities(rng *rand.Rand, board []deck.Card, players []PlayerHand) map[string]float64 {
	return EquitiesN(rng, board, players, DefaultIterations)
}

// EquitiesN is Equities with an explicit Monte Carlo iteration count
func EquitiesN(rng *rand.Rand, board []deck.Card, players []PlayerHand, iterations int) map[string]float64 {
	if iterations < 1 {
		iterations = 1
	}
	active := make([]PlayerHand, 0, len(players))
	dead := NewCardSet(board)
	for _, p := range players {
		if p.Folded || len(p.Hole) != 4 {
			continue
		}
		active = append(active, p)
		for _, c := range p.Hole {
			dead.Add(c)
		}
	}

	switch len(active) {
	case 0:
		return map[string]float64{}
	case 1:
		return map[string]float64{active[0].ID: 1}
	}

	remaining := make([]deck.Card, 0, 52)
	for suit := deck.Hearts; suit <= deck.Spades; suit++ {
		for rank := deck.Two; rank <= deck.Ace; rank++ {
			c := deck.NewCard(rank, suit)
			if !dead.Contains(c) {
				remaining = append(remaining, c)
			}
		}
	}

	missing := 5 - len(board)
	t := newTally(active)

	switch {
	case missing == 0:
		scoreRunout(t, board, active)
	case missing == 1:
		full := make([]deck.Card, 5)
		copy(full, board)
		for _, c := range remaining {
			full[4] = c
			scoreRunout(t, full, active)
		}
	case missing == 2 && len(active) <= exactFlopMaxPlayers:
		full := make([]deck.Card, 5)
		copy(full, board)
		for i := 0; i < len(remaining); i++ {
			for j := i + 1; j < len(remaining); j++ {
				full[3], full[4] = remaining[i], remaining[j]
				scoreRunout(t, full, active)
			}
		}
	default:
		monteCarlo(t, rng, board, remaining, active, iterations)
	}

	out := make(map[string]float64, len(active))
	for id, s := range t.shares {
		out[id] = s / float64(t.samples)
	}
	return out
}

// scoreRunout evaluates one complete board and splits a single unit of
// equity among the winners
func scoreRunout(t *tally, board []deck.Card, active []PlayerHand) {
	var best HandValue
	winners := make([]string, 0, len(active))
	for _, p := range active {
		v := bestOmaha(p.Hole, board)
		switch cmp := Compare(v, best); {
		case best.Rank == 0 || cmp > 0:
			best = v
			winners = winners[:0]
			winners = append(winners, p.ID)
		case cmp == 0:
			winners = append(winners, p.ID)
		}
	}
	share := 1.0 / float64(len(winners))
	for _, id := range winners {
		t.shares[id] += share
	}
	t.samples++
}

// monteCarlo samples random run-outs across a small worker pool. Each worker
// gets its own RNG derived up front so draws are deterministic per seed
// regardless of scheduling.
func monteCarlo(t *tally, rng *rand.Rand, board, remaining []deck.Card, active []PlayerHand, iterations int) {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if workers > iterations {
		workers = 1
	}

	seeds := make([]*rand.Rand, workers)
	for w := range seeds {
		seeds[w] = randutil.Child(rng)
	}

	var g errgroup.Group
	results := make([]*tally, workers)

	perWorker := iterations / workers
	extra := iterations % workers
	for w := 0; w < workers; w++ {
		n := perWorker
		if w < extra {
			n++
		}
		workerRng := seeds[w]
		slot := w

		g.Go(func() error {
			wt := newTally(active)
			full := make([]deck.Card, 5)
			copy(full, board)
			scratch := make([]deck.Card, len(remaining))
			missing := 5 - len(board)

			for i := 0; i < n; i++ {
				copy(scratch, remaining)
				for k := 0; k < missing; k++ {
					j := k + workerRng.IntN(len(scratch)-k)
					scratch[k], scratch[j] = scratch[j], scratch[k]
					full[len(board)+k] = scratch[k]
				}
				scoreRunout(wt, full, active)
			}

			results[slot] = wt
			return nil
		})
	}

	// Merge in worker order so float accumulation is reproducible per seed.
	g.Wait()
	for _, wt := range results {
		t.merge(wt)
	}
}
