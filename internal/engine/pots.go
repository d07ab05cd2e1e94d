package engine

import (
	"sort"

	"github.com/sixmax/plosrv/internal/evaluator"
)

// CalculateSidePots partitions the chips committed this hand into tiers by
// the distinct all-in levels of the live players. Folded players' chips flow
// into the lowest tiers they contributed to. The tier amounts always sum to
// the total committed.
func (h *HandState) CalculateSidePots() []SidePot {
	levels := make([]int, 0, NumSeats)
	seen := make(map[int]bool)
	for _, p := range h.Players {
		if p == nil || p.Folded || p.TotalBet == 0 {
			continue
		}
		if !seen[p.TotalBet] {
			seen[p.TotalBet] = true
			levels = append(levels, p.TotalBet)
		}
	}
	sort.Ints(levels)

	pots := make([]SidePot, 0, len(levels))
	prev := 0
	for _, level := range levels {
		pot := SidePot{}
		for i, p := range h.Players {
			if p == nil {
				continue
			}
			contrib := minInt(p.TotalBet, level) - minInt(p.TotalBet, prev)
			pot.Amount += contrib
			if !p.Folded && p.TotalBet >= level {
				pot.Eligible = append(pot.Eligible, i)
			}
		}
		if pot.Amount > 0 {
			pots = append(pots, pot)
		}
		prev = level
	}

	// A folded player may have committed more than any live player, by a
	// raise followed by a forced fold. That excess is dead money above the
	// top live level; it stays in the highest pot.
	leftover := 0
	for _, p := range h.Players {
		if p == nil {
			continue
		}
		leftover += p.TotalBet - minInt(p.TotalBet, prev)
	}
	if leftover > 0 {
		if len(pots) == 0 {
			pot := SidePot{Amount: leftover}
			for i, p := range h.Players {
				if p != nil && !p.Folded {
					pot.Eligible = append(pot.Eligible, i)
				}
			}
			return []SidePot{pot}
		}
		pots[len(pots)-1].Amount += leftover
	}
	return pots
}

// awardToLast ends the hand when everyone else has folded. No rake on a
// fold win.
func (h *HandState) awardToLast() {
	for _, p := range h.Players {
		if p == nil || p.Folded {
			continue
		}
		h.TotalPot = h.Pot
		p.Chips += h.Pot
		h.Winners = []Winner{{PlayerID: p.ID, Amount: h.Pot}}
		break
	}
	h.Pot = 0
	h.Complete = true
	h.CurrentPlayer = -1
}

// showdown completes the board if needed, partitions side pots and awards
// each one. Contested pots are evaluated under the Omaha rule and raked;
// single-eligible pots return uncontested and unraked.
func (h *HandState) showdown() {
	if h.NonFolded() == 1 {
		h.awardToLast()
		return
	}

	for len(h.Board) < 5 {
		h.dealStreet()
	}
	h.Street = ShowdownStreet
	h.TotalPot = h.Pot
	h.SidePots = h.CalculateSidePots()

	values := make(map[int]evaluator.HandValue)
	for i, p := range h.Players {
		if p == nil || p.Folded {
			continue
		}
		values[i] = bestValue(p, h)
	}

	for _, pot := range h.SidePots {
		h.awardPot(pot, values)
	}

	h.Pot = 0
	h.Complete = true
	h.CurrentPlayer = -1
}

func bestValue(p *Player, h *HandState) evaluator.HandValue {
	v, err := evaluator.EvaluatePLO(p.HoleCards, h.Board)
	if err != nil {
		// Live players are always dealt four cards.
		panic(err)
	}
	return v
}

// awardPot distributes one tier, splitting ties evenly with the odd chips
// going to the earliest tied seat
func (h *HandState) awardPot(pot SidePot, values map[int]evaluator.HandValue) {
	if len(pot.Eligible) == 1 {
		seat := pot.Eligible[0]
		h.Players[seat].Chips += pot.Amount
		h.Winners = append(h.Winners, Winner{
			PlayerID: h.Players[seat].ID,
			Amount:   pot.Amount,
			HandName: values[seat].Name(),
		})
		return
	}

	best := values[pot.Eligible[0]]
	winners := []int{pot.Eligible[0]}
	for _, seat := range pot.Eligible[1:] {
		switch cmp := evaluator.Compare(values[seat], best); {
		case cmp > 0:
			best = values[seat]
			winners = []int{seat}
		case cmp == 0:
			winners = append(winners, seat)
		}
	}

	rake := h.RakeRule.Rake(pot.Amount)
	h.Rake += rake
	distributed := pot.Amount - rake

	share := distributed / len(winners)
	remainder := distributed % len(winners)
	for i, seat := range winners {
		amount := share
		if i == 0 {
			amount += remainder
		}
		h.Players[seat].Chips += amount
		h.Winners = append(h.Winners, Winner{
			PlayerID: h.Players[seat].ID,
			Amount:   amount,
			HandName: best.Name(),
		})
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
