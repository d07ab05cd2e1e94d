package engine

import (
	"errors"
	"fmt"
	rand "math/rand/v2"

	"github.com/sixmax/plosrv/internal/deck"
)

// NumSeats is the table size
const NumSeats = 6

var (
	ErrHandComplete   = errors.New("hand is complete")
	ErrNotYourTurn    = errors.New("not your turn to act")
	ErrInvalidAction  = errors.New("action is not valid")
	ErrInvalidAmount  = errors.New("amount out of bounds")
	ErrNotEnoughSeats = errors.New("need at least two active seats")
)

// Street is a betting round
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
	ShowdownStreet
)

func (s Street) String() string {
	switch s {
	case Preflop:
		return "preflop"
	case Flop:
		return "flop"
	case Turn:
		return "turn"
	case River:
		return "river"
	case ShowdownStreet:
		return "showdown"
	default:
		return "unknown"
	}
}

// ActionType is a player decision
type ActionType string

const (
	Fold  ActionType = "fold"
	Check ActionType = "check"
	Call  ActionType = "call"
	Bet   ActionType = "bet"
	Raise ActionType = "raise"
	AllIn ActionType = "allin"

	// PostBlind appears only in hand history.
	PostBlind ActionType = "post"
)

// Player is one seat's in-hand state
type Player struct {
	ID         string
	Position   string
	Chips      int
	HoleCards  []deck.Card
	CurrentBet int // committed this street
	TotalBet   int // committed this hand
	Folded     bool
	AllIn      bool
	Acted      bool
	SittingOut bool
}

// ValidAction describes one legal move with its amount bounds. Amounts are
// chips moved by the action, not bet-to totals.
type ValidAction struct {
	Action ActionType `json:"action"`
	Min    int        `json:"min"`
	Max    int        `json:"max"`
}

// HistoryEntry records one action for replay and hand records
type HistoryEntry struct {
	PlayerID string     `json:"playerId"`
	Action   ActionType `json:"action"`
	Amount   int        `json:"amount"`
	Street   Street     `json:"street"`
}

// Winner is one pot award at hand end
type Winner struct {
	PlayerID string `json:"playerId"`
	Amount   int    `json:"amount"`
	HandName string `json:"handName,omitempty"`
}

// SidePot is a tier of the pot with the seat indexes eligible to win it
type SidePot struct {
	Amount   int   `json:"amount"`
	Eligible []int `json:"eligible"`
}

// RakeConfig controls the house cut on contested showdown pots
type RakeConfig struct {
	Percent float64
	Cap     int
}

// Rake returns the cut for one contested pot
func (r RakeConfig) Rake(pot int) int {
	rake := int(float64(pot) * r.Percent)
	if rake > r.Cap {
		rake = r.Cap
	}
	if rake > pot {
		rake = pot
	}
	return rake
}

// HandState is the full authoritative state of one hand. It is owned by a
// single table queue; methods are not safe for concurrent use.
type HandState struct {
	Players          [NumSeats]*Player
	Deck             *deck.Deck
	Board            []deck.Card
	Pot              int // includes live street bets
	TotalPot         int // frozen at hand end, before distribution
	SidePots         []SidePot
	Street           Street
	DealerPos        int
	CurrentPlayer    int // -1 when nobody is to act
	CurrentBet       int
	MinRaise         int
	SmallBlind       int
	BigBlind         int
	LastRaiser       int
	LastFullRaiseBet int
	RakeRule         RakeConfig
	Rake             int
	History          []HistoryEntry
	Complete         bool
	Winners          []Winner

	// BoardAtRunOut is the board as it stood when betting ended with the
	// remaining players all-in, before the run-out. Nil when the hand saw
	// betting on every dealt street.
	BoardAtRunOut []deck.Card
}

// New creates an empty table state with the given blinds. Seats are filled
// with Seat before the first StartNewHand.
func New(smallBlind, bigBlind int) *HandState {
	return &HandState{
		SmallBlind:    smallBlind,
		BigBlind:      bigBlind,
		DealerPos:     NumSeats - 1,
		CurrentPlayer: -1,
		LastRaiser:    -1,
	}
}

// NewWithBuyIn creates a six-seat state with every seat holding the same
// stack. Convenience for tests and simulations.
func NewWithBuyIn(buyIn, smallBlind, bigBlind int) *HandState {
	h := New(smallBlind, bigBlind)
	for i := 0; i < NumSeats; i++ {
		h.Seat(i, fmt.Sprintf("p%d", i), buyIn)
	}
	return h
}

// Seat places a player at an index
func (h *HandState) Seat(idx int, id string, chips int) {
	h.Players[idx] = &Player{ID: id, Chips: chips}
}

// Unseat empties a seat
func (h *HandState) Unseat(idx int) {
	h.Players[idx] = nil
}

// SeatOf returns the seat index for a player id, or -1
func (h *HandState) SeatOf(id string) int {
	for i, p := range h.Players {
		if p != nil && p.ID == id {
			return i
		}
	}
	return -1
}

// eligible reports whether a seat can be dealt into the next hand
func (h *HandState) eligible(idx int) bool {
	p := h.Players[idx]
	return p != nil && p.Chips > 0 && !p.SittingOut
}

// nextEligible finds the next dealable seat clockwise after from
func (h *HandState) nextEligible(from int) int {
	for i := 1; i <= NumSeats; i++ {
		idx := (from + i) % NumSeats
		if h.eligible(idx) {
			return idx
		}
	}
	return -1
}

var positionNames = map[int][]string{
	2: {"BTN", "BB"},
	3: {"BTN", "SB", "BB"},
	4: {"BTN", "SB", "BB", "UTG"},
	5: {"BTN", "SB", "BB", "UTG", "CO"},
	6: {"BTN", "SB", "BB", "UTG", "HJ", "CO"},
}

// StartNewHand resets per-hand state, advances the button, posts blinds and
// deals four hole cards to every active seat. If everyone is all-in from the
// blinds the board is run out and the hand goes straight to showdown.
func (h *HandState) StartNewHand(rng *rand.Rand) error {
	active := 0
	for i := range h.Players {
		if h.eligible(i) {
			active++
		}
	}
	if active < 2 {
		return ErrNotEnoughSeats
	}

	h.Board = nil
	h.Pot = 0
	h.TotalPot = 0
	h.SidePots = nil
	h.Street = Preflop
	h.CurrentBet = 0
	h.MinRaise = h.BigBlind
	h.LastRaiser = -1
	h.LastFullRaiseBet = 0
	h.Rake = 0
	h.History = nil
	h.Complete = false
	h.Winners = nil
	h.BoardAtRunOut = nil

	for _, p := range h.Players {
		if p == nil {
			continue
		}
		out := p.SittingOut || p.Chips <= 0
		p.Folded = out
		p.Acted = out
		p.AllIn = false
		p.HoleCards = nil
		p.CurrentBet = 0
		p.TotalBet = 0
		p.Position = ""
	}

	h.DealerPos = h.nextEligible(h.DealerPos)

	// Position labels clockwise from the button.
	names := positionNames[active]
	for i, idx := 0, h.DealerPos; i < active; i++ {
		h.Players[idx].Position = names[i]
		idx = h.nextEligible(idx)
	}

	var sbPos, bbPos int
	if active == 2 {
		sbPos = h.DealerPos
		bbPos = h.nextEligible(sbPos)
	} else {
		sbPos = h.nextEligible(h.DealerPos)
		bbPos = h.nextEligible(sbPos)
	}
	h.postBlind(sbPos, h.SmallBlind)
	h.postBlind(bbPos, h.BigBlind)
	h.CurrentBet = h.BigBlind
	h.MinRaise = h.BigBlind
	// The big blind counts as the last full raise so a preflop re-raise
	// needs at least a 2x big blind total.
	h.LastFullRaiseBet = h.BigBlind

	h.Deck = deck.New(rng)
	h.Deck.Shuffle()
	for i := 0; i < NumSeats; i++ {
		p := h.Players[i]
		if p == nil || p.Folded {
			continue
		}
		cards, err := h.Deck.Deal(4)
		if err != nil {
			return err
		}
		p.HoleCards = cards
	}

	// Heads-up the small blind (button) opens; otherwise the first active
	// seat after the big blind.
	if active == 2 && !h.Players[sbPos].AllIn {
		h.CurrentPlayer = sbPos
	} else {
		h.CurrentPlayer = h.nextToAct(bbPos)
	}

	// If the blinds left at most one player able to act and that player has
	// nothing to call, there is no betting to be had.
	if h.CurrentPlayer != -1 && h.canActCount() == 1 {
		p := h.Players[h.CurrentPlayer]
		if h.CurrentBet-p.CurrentBet <= 0 {
			h.CurrentPlayer = -1
		}
	}
	if h.CurrentPlayer == -1 {
		h.runOut()
		h.showdown()
	}
	return nil
}

func (h *HandState) postBlind(idx, blind int) {
	p := h.Players[idx]
	pay := blind
	if pay > p.Chips {
		pay = p.Chips
	}
	p.Chips -= pay
	p.CurrentBet += pay
	p.TotalBet += pay
	h.Pot += pay
	if p.Chips == 0 {
		p.AllIn = true
	}
	h.History = append(h.History, HistoryEntry{
		PlayerID: p.ID,
		Action:   PostBlind,
		Amount:   pay,
		Street:   Preflop,
	})
}

// NonFolded counts players still in the hand
func (h *HandState) NonFolded() int {
	n := 0
	for _, p := range h.Players {
		if p != nil && !p.Folded {
			n++
		}
	}
	return n
}

// canActCount counts players who can still make a decision
func (h *HandState) canActCount() int {
	n := 0
	for _, p := range h.Players {
		if p != nil && !p.Folded && !p.AllIn && p.Chips > 0 {
			n++
		}
	}
	return n
}

// ChipTotal sums chips in play: stacks plus the live pot
func (h *HandState) ChipTotal() int {
	total := h.Pot
	for _, p := range h.Players {
		if p != nil {
			total += p.Chips
		}
	}
	return total
}

// Validate checks chip conservation against the total at hand start. Rake is
// the only chips allowed to leave play.
func (h *HandState) Validate(startTotal int) error {
	got := h.ChipTotal() + h.Rake
	if got != startTotal {
		return fmt.Errorf("chip conservation violated: have %d want %d", got, startTotal)
	}
	return nil
}
