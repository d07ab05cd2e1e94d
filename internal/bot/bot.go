// Package bot implements a deterministic decision function for filling
// seats. All randomness reads from the injected RNG so play is reproducible
// per seed.
package bot

import (
	rand "math/rand/v2"

	"github.com/sixmax/plosrv/internal/deck"
	"github.com/sixmax/plosrv/internal/engine"
	"github.com/sixmax/plosrv/internal/evaluator"
)

// Context carries the personality record and the RNG for mixed decisions
type Context struct {
	Personality Personality
	RNG         *rand.Rand
}

// Decision is the chosen action with its chip amount
type Decision struct {
	Action engine.ActionType
	Amount int
}

type handClass int

const (
	classAir handClass = iota
	classDraw
	classMedium
	classNuts
)

// Decide picks an action for the seat from the public hand state. The
// returned action is always one of the seat's valid actions; with no valid
// actions it folds.
func Decide(h *engine.HandState, seat int, ctx Context) Decision {
	valid := h.ValidActions(seat)
	if len(valid) == 0 {
		return Decision{Action: engine.Fold}
	}
	p := h.Players[seat]

	if h.Street == engine.Preflop {
		return decidePreflop(h, p, valid, ctx)
	}
	return decidePostflop(h, p, valid, ctx)
}

func decidePreflop(h *engine.HandState, p *engine.Player, valid []engine.ValidAction, ctx Context) Decision {
	score := PreflopScore(p.HoleCards) + positionBonus(p.Position)
	toCall := h.CurrentBet - p.CurrentBet
	facingBigRaise := h.CurrentBet >= 4*h.BigBlind

	if score >= ctx.Personality.RaiseThreshold {
		// Mix in flat calls so the strong range is not face-up.
		if ctx.RNG.Float64() < 0.8 {
			if d, ok := raiseBy(valid, h, toCall, 1.0); ok {
				return d
			}
		}
		return callOrCheck(valid)
	}

	if facingBigRaise && score < ctx.Personality.FoldThreshold {
		return checkOrFold(valid)
	}

	if toCall == 0 {
		// Occasionally open marginal hands in position.
		if score >= 0.55 && ctx.RNG.Float64() < 0.3*ctx.Personality.Aggression {
			if d, ok := raiseBy(valid, h, toCall, 0.8); ok {
				return d
			}
		}
		return callOrCheck(valid)
	}

	// Price in marginal hands against small bets.
	if score >= 0.45 || toCall <= 2*h.BigBlind {
		return callOrCheck(valid)
	}
	return checkOrFold(valid)
}

func decidePostflop(h *engine.HandState, p *engine.Player, valid []engine.ValidAction, ctx Context) Decision {
	class := classify(p.HoleCards, h.Board)
	toCall := h.CurrentBet - p.CurrentBet
	unbet := h.CurrentBet == 0

	switch class {
	case classNuts:
		if d, ok := raiseBy(valid, h, toCall, 0.8+0.2*ctx.Personality.Aggression); ok {
			return d
		}
		return callOrCheck(valid)

	case classMedium:
		if unbet {
			if ctx.RNG.Float64() < 0.6 {
				if d, ok := raiseBy(valid, h, toCall, 0.5); ok {
					return d
				}
			}
			return callOrCheck(valid)
		}
		if toCall*2 <= h.Pot {
			return callOrCheck(valid)
		}
		return checkOrFold(valid)

	case classDraw:
		if unbet {
			// Semi-bluff some of the time.
			if ctx.RNG.Float64() < 0.35*ctx.Personality.Aggression {
				if d, ok := raiseBy(valid, h, toCall, 0.6); ok {
					return d
				}
			}
			return callOrCheck(valid)
		}
		if toCall*3 <= h.Pot {
			return callOrCheck(valid)
		}
		return checkOrFold(valid)

	default: // air
		if unbet {
			bluff := ctx.Personality.BluffFrequency
			if p.Position == "BTN" || p.Position == "CO" {
				bluff *= 1.5
			}
			if scaryBoard(h.Board) {
				bluff *= 1.3
			}
			if ctx.RNG.Float64() < bluff {
				if d, ok := raiseBy(valid, h, toCall, 0.6); ok {
					return d
				}
			}
		}
		return checkOrFold(valid)
	}
}

// raiseBy builds a bet or raise sized as a fraction of the pot, clamped to
// the legal bounds
func raiseBy(valid []engine.ValidAction, h *engine.HandState, toCall int, potFraction float64) (Decision, bool) {
	if a, ok := find(valid, engine.Bet); ok {
		amount := clamp(int(float64(h.Pot)*potFraction), a.Min, a.Max)
		return Decision{Action: engine.Bet, Amount: amount}, true
	}
	if a, ok := find(valid, engine.Raise); ok {
		amount := clamp(toCall+int(float64(h.Pot+toCall)*potFraction), a.Min, a.Max)
		return Decision{Action: engine.Raise, Amount: amount}, true
	}
	if a, ok := find(valid, engine.AllIn); ok && potFraction >= 1.0 {
		return Decision{Action: engine.AllIn, Amount: a.Min}, true
	}
	return Decision{}, false
}

func callOrCheck(valid []engine.ValidAction) Decision {
	if a, ok := find(valid, engine.Call); ok {
		return Decision{Action: engine.Call, Amount: a.Min}
	}
	if _, ok := find(valid, engine.Check); ok {
		return Decision{Action: engine.Check}
	}
	return Decision{Action: engine.Fold}
}

func checkOrFold(valid []engine.ValidAction) Decision {
	if _, ok := find(valid, engine.Check); ok {
		return Decision{Action: engine.Check}
	}
	return Decision{Action: engine.Fold}
}

func find(valid []engine.ValidAction, want engine.ActionType) (engine.ValidAction, bool) {
	for _, a := range valid {
		if a.Action == want {
			return a, true
		}
	}
	return engine.ValidAction{}, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// classify buckets the seat's current holding on the visible board
func classify(hole, board []deck.Card) handClass {
	if len(hole) != 4 || len(board) < 3 {
		return classAir
	}

	v := currentStrength(hole, board)
	switch {
	case v.Rank >= evaluator.Straight:
		return classNuts
	case v.Rank >= evaluator.TwoPair:
		return classMedium
	case v.Rank == evaluator.OnePair && len(v.HighCards) > 0 && v.HighCards[0] >= topBoardRank(board):
		return classMedium
	}

	if hasFlushDraw(hole, board) || hasWrapDraw(hole, board) {
		return classDraw
	}
	return classAir
}

// currentStrength is the best Omaha holding using the cards dealt so far:
// exactly two hole cards and three of the visible board cards
func currentStrength(hole, board []deck.Card) evaluator.HandValue {
	var best evaluator.HandValue
	var five [5]deck.Card
	n := len(board)

	for h1 := 0; h1 < 3; h1++ {
		for h2 := h1 + 1; h2 < 4; h2++ {
			five[0], five[1] = hole[h1], hole[h2]
			for b1 := 0; b1 < n-2; b1++ {
				for b2 := b1 + 1; b2 < n-1; b2++ {
					for b3 := b2 + 1; b3 < n; b3++ {
						five[2], five[3], five[4] = board[b1], board[b2], board[b3]
						v := evaluator.EvaluateFive(five)
						if best.Rank == 0 || evaluator.Compare(v, best) > 0 {
							best = v
						}
					}
				}
			}
		}
	}
	return best
}

func topBoardRank(board []deck.Card) int {
	top := 0
	for _, c := range board {
		if int(c.Rank) > top {
			top = int(c.Rank)
		}
	}
	return top
}

// hasFlushDraw needs two hole cards of a suit with exactly two more on board
func hasFlushDraw(hole, board []deck.Card) bool {
	if len(board) >= 5 {
		return false
	}
	var holeCounts, boardCounts [4]int
	for _, c := range hole {
		holeCounts[c.Suit]++
	}
	for _, c := range board {
		boardCounts[c.Suit]++
	}
	for s := 0; s < 4; s++ {
		if holeCounts[s] >= 2 && boardCounts[s] == 2 {
			return true
		}
	}
	return false
}

// hasWrapDraw looks for at least four ranks toward a straight in a five-wide
// window, using at least two hole ranks
func hasWrapDraw(hole, board []deck.Card) bool {
	if len(board) >= 5 {
		return false
	}
	var inHole, onBoard [15]bool
	for _, c := range hole {
		inHole[c.Rank] = true
	}
	for _, c := range board {
		onBoard[c.Rank] = true
	}
	for lo := 2; lo+4 <= 14; lo++ {
		holeUsed, total := 0, 0
		for r := lo; r <= lo+4; r++ {
			if inHole[r] || onBoard[r] {
				total++
			}
			if inHole[r] {
				holeUsed++
			}
		}
		if total >= 4 && holeUsed >= 2 {
			return true
		}
	}
	return false
}

// scaryBoard is a rough texture read: paired or three to a suit
func scaryBoard(board []deck.Card) bool {
	var rankCounts [15]int
	var suitCounts [4]int
	for _, c := range board {
		rankCounts[c.Rank]++
		suitCounts[c.Suit]++
	}
	for _, n := range rankCounts {
		if n >= 2 {
			return true
		}
	}
	for _, n := range suitCounts {
		if n >= 3 {
			return true
		}
	}
	return false
}
