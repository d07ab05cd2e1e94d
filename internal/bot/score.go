package bot

import (
	"sort"

	"github.com/sixmax/plosrv/internal/deck"
)

// PreflopScore rates four hole cards in [0, 1] from orthogonal factors:
// high-card nuttiness, pairs, suitedness and connectivity, plus bonuses for
// the premium category combos.
func PreflopScore(hole []deck.Card) float64 {
	if len(hole) != 4 {
		return 0
	}

	ranks := make([]int, 4)
	for i, c := range hole {
		ranks[i] = int(c.Rank)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ranks)))

	score := 0.0

	// Raw high-card quality.
	for _, r := range ranks {
		score += float64(r-2) / 12.0 * 0.06
	}

	// Pairs.
	pairs := pairValues(ranks)
	for _, v := range pairs {
		switch {
		case v == int(deck.Ace):
			score += 0.28
		case v == int(deck.King):
			score += 0.20
		case v == int(deck.Queen):
			score += 0.14
		case v == int(deck.Jack):
			score += 0.10
		default:
			score += 0.05
		}
	}
	if len(pairs) == 2 {
		score += 0.05
	}

	// Suitedness.
	suited := suitedness(hole)
	switch suited {
	case 2:
		score += 0.12
	case 1:
		score += 0.07
	}
	if suited > 0 && hasSuitedAce(hole) {
		score += 0.03
	}

	// Connectivity: rundowns make wraps.
	distinct := distinctDesc(ranks)
	if len(distinct) == 4 && distinct[0]-distinct[3] <= 4 {
		score += 0.12
	} else if len(distinct) >= 3 && distinct[0]-distinct[2] <= 3 {
		score += 0.06
	}

	// Premium combo bonuses.
	if containsRanks(ranks, 14, 14, 11, 10) {
		score += 0.05
	}

	if score > 1 {
		score = 1
	}
	return score
}

// pairValues returns the rank of each pair among sorted-desc ranks
func pairValues(ranks []int) []int {
	var out []int
	for i := 0; i < len(ranks)-1; i++ {
		if ranks[i] == ranks[i+1] {
			out = append(out, ranks[i])
			i++
		}
	}
	return out
}

// suitedness counts suits holding two or more cards
func suitedness(hole []deck.Card) int {
	var counts [4]int
	for _, c := range hole {
		counts[c.Suit]++
	}
	n := 0
	for _, c := range counts {
		if c >= 2 {
			n++
		}
	}
	return n
}

func hasSuitedAce(hole []deck.Card) bool {
	var counts [4]int
	for _, c := range hole {
		counts[c.Suit]++
	}
	for _, c := range hole {
		if c.Rank == deck.Ace && counts[c.Suit] >= 2 {
			return true
		}
	}
	return false
}

func distinctDesc(ranks []int) []int {
	out := make([]int, 0, len(ranks))
	for i, r := range ranks {
		if i == 0 || ranks[i-1] != r {
			out = append(out, r)
		}
	}
	return out
}

func containsRanks(ranks []int, want ...int) bool {
	pool := append([]int(nil), ranks...)
	for _, w := range want {
		found := false
		for i, r := range pool {
			if r == w {
				pool = append(pool[:i], pool[i+1:]...)
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// positionBonus favors late position
func positionBonus(position string) float64 {
	switch position {
	case "BTN", "CO":
		return 0.05
	case "HJ":
		return 0.03
	case "BB":
		return 0.02
	default:
		return 0
	}
}
