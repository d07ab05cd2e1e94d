package evaluator

import (
	"math"
	rand "math/rand/v2"

	"github.com/sixmax/plosrv/internal/deck"
)

// SidePot is one tier of the pot with the ids of the players who can win it
type SidePot struct {
	Amount   int
	Eligible []string
}

// AllInEVProfits computes each live player's expected profit when all
// betting is over: equity share of every pot they are eligible for, minus
// what they invested. Uncontested pots go wholly to their single eligible
// player without an equity calculation. Folded players and players with
// unknown hole cards are excluded from the result. When nobody is excluded
// the profits are zero-sum up to rounding.
func AllInEVProfits(rng *rand.Rand, board []deck.Card, players []PlayerHand, pots []SidePot, totalBets map[string]int) map[string]int {
	byID := make(map[string]PlayerHand, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}

	shares := make(map[string]float64)
	for _, pot := range pots {
		eligible := make([]PlayerHand, 0, len(pot.Eligible))
		for _, id := range pot.Eligible {
			p, ok := byID[id]
			if !ok || p.Folded || len(p.Hole) != 4 {
				continue
			}
			eligible = append(eligible, p)
		}

		switch len(eligible) {
		case 0:
			continue
		case 1:
			shares[eligible[0].ID] += float64(pot.Amount)
		default:
			for id, eq := range Equities(rng, board, eligible) {
				shares[id] += eq * float64(pot.Amount)
			}
		}
	}

	profits := make(map[string]int)
	for _, p := range players {
		if p.Folded || len(p.Hole) != 4 {
			continue
		}
		profits[p.ID] = int(math.Round(shares[p.ID])) - totalBets[p.ID]
	}
	return profits
}
