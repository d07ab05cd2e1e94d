package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixmax/plosrv/internal/deck"
	"github.com/sixmax/plosrv/internal/randutil"
)

// rigged builds a hand state directly at showdown for deterministic board
// and hole card scenarios.
func rigged(blinds [2]int, board string, seats []riggedSeat) *HandState {
	h := New(blinds[0], blinds[1])
	h.Board = deck.MustParseCards(board)
	h.Street = River
	for i, s := range seats {
		h.Players[i] = &Player{
			ID:        s.id,
			Chips:     s.chips,
			TotalBet:  s.totalBet,
			Folded:    s.folded,
			HoleCards: deck.MustParseCards(s.hole),
		}
		h.Pot += s.totalBet
	}
	return h
}

type riggedSeat struct {
	id       string
	hole     string
	chips    int
	totalBet int
	folded   bool
}

func TestSidePotLadder(t *testing.T) {
	h := New(1, 2)
	h.Players[0] = &Player{ID: "p0", TotalBet: 30}
	h.Players[1] = &Player{ID: "p1", TotalBet: 70}
	h.Players[2] = &Player{ID: "p2", TotalBet: 100}

	pots := h.CalculateSidePots()
	require.Len(t, pots, 3)
	assert.Equal(t, SidePot{Amount: 90, Eligible: []int{0, 1, 2}}, pots[0])
	assert.Equal(t, SidePot{Amount: 80, Eligible: []int{1, 2}}, pots[1])
	assert.Equal(t, SidePot{Amount: 30, Eligible: []int{2}}, pots[2])

	total := 0
	for _, p := range pots {
		total += p.Amount
	}
	assert.Equal(t, 200, total, "pots partition the committed chips")
}

func TestSidePotsFoldedChipsFlowToLowTiers(t *testing.T) {
	h := New(1, 2)
	h.Players[0] = &Player{ID: "p0", TotalBet: 30}
	h.Players[1] = &Player{ID: "p1", TotalBet: 70}
	h.Players[2] = &Player{ID: "p2", TotalBet: 50, Folded: true}

	pots := h.CalculateSidePots()
	require.Len(t, pots, 2)
	// Folded 50 splits: 30 into the main tier, 20 into the next.
	assert.Equal(t, SidePot{Amount: 90, Eligible: []int{0, 1}}, pots[0])
	assert.Equal(t, SidePot{Amount: 60, Eligible: []int{1}}, pots[1])
}

func TestSidePotsFoldedOverbetStaysInTopTier(t *testing.T) {
	// The folded seat committed more than either live player; the chip above
	// the top live level must not fall out of the partition.
	h := New(1, 2)
	h.Players[0] = &Player{ID: "p0", TotalBet: 7, Folded: true}
	h.Players[1] = &Player{ID: "p1", TotalBet: 5}
	h.Players[2] = &Player{ID: "p2", TotalBet: 6}

	pots := h.CalculateSidePots()
	require.Len(t, pots, 2)
	assert.Equal(t, SidePot{Amount: 15, Eligible: []int{1, 2}}, pots[0])
	assert.Equal(t, SidePot{Amount: 3, Eligible: []int{2}}, pots[1])
}

func TestForceFoldedRaiserChipsConserved(t *testing.T) {
	h := New(1, 2)
	h.Seat(0, "p0", 500)
	h.Seat(1, "p1", 5)
	h.Seat(2, "p2", 6)
	start := h.ChipTotal()
	require.NoError(t, h.StartNewHand(randutil.New(3)))
	require.Equal(t, 0, h.CurrentPlayer, "button opens three-handed")

	// The raiser leaves the table mid-hand; the short stacks get it in.
	require.NoError(t, h.Apply(0, Raise, 7))
	h.ForceFold(0)
	require.NoError(t, h.Apply(1, AllIn, 0))
	require.NoError(t, h.Apply(2, AllIn, 0))

	require.True(t, h.Complete)
	require.NoError(t, h.Validate(start))
	assert.Equal(t, 493, h.Players[0].Chips)
}

func TestThreeWayChop(t *testing.T) {
	h := rigged([2]int{1, 2}, "Ah Kd Qc Js Th", []riggedSeat{
		{id: "p0", hole: "9h 8h 2c 3c", totalBet: 100},
		{id: "p1", hole: "9d 8d 4c 5c", totalBet: 100},
		{id: "p2", hole: "9c 8c 6d 7d", totalBet: 100},
	})

	h.showdown()

	require.True(t, h.Complete)
	require.Len(t, h.Winners, 3)
	for _, w := range h.Winners {
		assert.Equal(t, 100, w.Amount)
		assert.Equal(t, "Straight", w.HandName)
	}
}

func TestShowdownSidePotsAwardedIndependently(t *testing.T) {
	// Short stack holds the nut flush and takes the main pot; the bigger
	// stacks contest the side pot with trip kings against trip nines.
	h := rigged([2]int{1, 2}, "2h 5h 9h Kc 3d", []riggedSeat{
		{id: "short", hole: "Ah Th Jc Qc", totalBet: 30},
		{id: "mid", hole: "Kd Ks 4c 6c", totalBet: 70},
		{id: "big", hole: "9c 9d As Qs", totalBet: 70},
	})

	h.showdown()

	require.True(t, h.Complete)
	assert.Equal(t, []SidePot{
		{Amount: 90, Eligible: []int{0, 1, 2}},
		{Amount: 80, Eligible: []int{1, 2}},
	}, h.SidePots)

	assert.Equal(t, 90, h.Players[0].Chips, "flush takes the main pot")
	assert.Equal(t, 80, h.Players[1].Chips, "trip kings take the side pot")
	assert.Equal(t, 0, h.Players[2].Chips)
}

func TestShowdownTieSplitsWithOddChipToFirstSeat(t *testing.T) {
	// A folded limper leaves an odd chip in the pot.
	h := rigged([2]int{1, 2}, "2h 5d 9c Kh 3s", []riggedSeat{
		{id: "a", hole: "Ah Ad 7c 6s", totalBet: 101},
		{id: "b", hole: "As Ac 7d 6h", totalBet: 101},
		{id: "dead", hole: "2c 3c 4d 8d", totalBet: 1, folded: true},
	})

	h.showdown()

	assert.Equal(t, 102, h.Players[0].Chips, "odd chip to the first tied seat")
	assert.Equal(t, 101, h.Players[1].Chips)
}

func TestRakeOnContestedShowdownOnly(t *testing.T) {
	h := rigged([2]int{1, 2}, "2h 5h 9h Kc 3d", []riggedSeat{
		{id: "flush", hole: "Ah Th Jc Qc", totalBet: 100},
		{id: "trips", hole: "Kd Ks 4c 6c", totalBet: 100},
	})
	h.RakeRule = RakeConfig{Percent: 0.05, Cap: 8}

	h.showdown()

	assert.Equal(t, 8, h.Rake, "five percent of 200 capped at 8")
	assert.Equal(t, 192, h.Players[0].Chips)
}

func TestNoRakeOnFoldWin(t *testing.T) {
	h := New(1, 3)
	h.RakeRule = RakeConfig{Percent: 0.05, Cap: 8}
	h.Seat(0, "p0", 100)
	h.Seat(1, "p1", 100)
	require.NoError(t, h.StartNewHand(randutil.New(1)))
	require.NoError(t, h.Apply(h.CurrentPlayer, Fold, 0))

	assert.Zero(t, h.Rake)
}

func TestNoRakeOnUncontestedSidePot(t *testing.T) {
	h := rigged([2]int{1, 2}, "2h 5h 9h Kc 3d", []riggedSeat{
		{id: "short", hole: "Ah Th Jc Qc", totalBet: 30},
		{id: "big", hole: "Kd Ks 4c 6c", totalBet: 100},
	})
	h.RakeRule = RakeConfig{Percent: 0.05, Cap: 100}

	h.showdown()

	// Main pot of 60 is raked, the 70 returned to the big stack is not.
	assert.Equal(t, 3, h.Rake)
	assert.Equal(t, 70, h.Players[1].Chips)
}

func TestNonFullAllInDoesNotReopenAction(t *testing.T) {
	h := New(2, 5)
	h.Seat(0, "b", 500) // button
	h.Seat(1, "c", 35)  // small blind, covers a short all-in
	h.Seat(2, "d", 500) // big blind
	h.Seat(3, "a", 500) // first to act
	h.DealerPos = 5
	require.NoError(t, h.StartNewHand(randutil.New(1)))
	require.Equal(t, 3, h.CurrentPlayer)

	// A opens to 10, B makes a full raise to 30.
	require.NoError(t, h.Apply(3, Raise, 10))
	require.NoError(t, h.Apply(0, Raise, 30))
	assert.Equal(t, 30, h.LastFullRaiseBet)

	// C shoves 35 total: an increment of 5, below the live min raise of 20.
	require.NoError(t, h.Apply(1, AllIn, 0))
	assert.Equal(t, 35, h.CurrentBet)
	assert.Equal(t, 30, h.LastFullRaiseBet, "short all-in is not a full raise")

	// D has not acted and may still raise.
	assert.True(t, hasAction(h.ValidActions(2), Raise))
	require.NoError(t, h.Apply(2, Call, 0))

	// A already acted, so the non-full all-in leaves only call or fold.
	actions := h.ValidActions(3)
	assert.True(t, hasAction(actions, Fold))
	assert.True(t, hasAction(actions, Call))
	assert.False(t, hasAction(actions, Bet))
	assert.False(t, hasAction(actions, Raise))
}
