package evaluator

import (
	"fmt"
	"sort"

	"github.com/sixmax/plosrv/internal/deck"
)

// Category ranks hand types from weakest to strongest.
type Category int

const (
	HighCard Category = iota + 1
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

// String returns the display name used in showdown events
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case OnePair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// HandValue is the strength of a five-card hand: the category plus the
// tie-break vector. HighCards holds one value per rank group, ordered by
// group size descending then rank descending, so two values compare
// lexicographically within a category.
type HandValue struct {
	Rank      Category
	HighCards []int
}

// Name returns the display name of the hand
func (v HandValue) Name() string {
	return v.Rank.String()
}

// Compare returns >0 if a beats b, <0 if b beats a, 0 on an exact tie
func Compare(a, b HandValue) int {
	if a.Rank != b.Rank {
		return int(a.Rank) - int(b.Rank)
	}
	for i := 0; i < len(a.HighCards) && i < len(b.HighCards); i++ {
		if a.HighCards[i] != b.HighCards[i] {
			return a.HighCards[i] - b.HighCards[i]
		}
	}
	return 0
}

// EvaluateFive scores exactly five cards
func EvaluateFive(cards [5]deck.Card) HandValue {
	var counts [15]int
	for _, c := range cards {
		counts[c.Rank]++
	}

	flush := true
	for _, c := range cards[1:] {
		if c.Suit != cards[0].Suit {
			flush = false
			break
		}
	}

	// Rank groups ordered by count desc then value desc.
	groups := make([]rankGroup, 0, 5)
	for v := int(deck.Ace); v >= int(deck.Two); v-- {
		if counts[v] > 0 {
			groups = append(groups, rankGroup{value: v, count: counts[v]})
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].count > groups[j].count
	})

	straightHigh := 0
	if len(groups) == 5 {
		hi, lo := groups[0].value, groups[4].value
		switch {
		case hi-lo == 4:
			straightHigh = hi
		case hi == int(deck.Ace) && groups[1].value == int(deck.Five):
			// Wheel: A,5,4,3,2 plays as a five-high straight.
			straightHigh = int(deck.Five)
		}
	}

	switch {
	case flush && straightHigh != 0:
		return HandValue{Rank: StraightFlush, HighCards: []int{straightHigh}}
	case groups[0].count == 4:
		return HandValue{Rank: FourOfAKind, HighCards: groupValues(groups)}
	case groups[0].count == 3 && groups[1].count == 2:
		return HandValue{Rank: FullHouse, HighCards: groupValues(groups)}
	case flush:
		return HandValue{Rank: Flush, HighCards: groupValues(groups)}
	case straightHigh != 0:
		return HandValue{Rank: Straight, HighCards: []int{straightHigh}}
	case groups[0].count == 3:
		return HandValue{Rank: ThreeOfAKind, HighCards: groupValues(groups)}
	case groups[0].count == 2 && groups[1].count == 2:
		return HandValue{Rank: TwoPair, HighCards: groupValues(groups)}
	case groups[0].count == 2:
		return HandValue{Rank: OnePair, HighCards: groupValues(groups)}
	default:
		return HandValue{Rank: HighCard, HighCards: groupValues(groups)}
	}
}

type rankGroup struct {
	value int
	count int
}

func groupValues(groups []rankGroup) []int {
	out := make([]int, len(groups))
	for i, g := range groups {
		out[i] = g.value
	}
	return out
}

// EvaluatePLO scores four hole cards against a five-card board under the
// Omaha rule: exactly two hole cards and exactly three board cards, best of
// the 60 combinations.
func EvaluatePLO(hole, board []deck.Card) (HandValue, error) {
	if len(hole) != 4 {
		return HandValue{}, fmt.Errorf("omaha evaluation needs 4 hole cards, got %d", len(hole))
	}
	if len(board) != 5 {
		return HandValue{}, fmt.Errorf("omaha evaluation needs 5 board cards, got %d", len(board))
	}
	return bestOmaha(hole, board), nil
}

// bestOmaha assumes lengths have been validated
func bestOmaha(hole, board []deck.Card) HandValue {
	var best HandValue
	var five [5]deck.Card

	for h1 := 0; h1 < 3; h1++ {
		for h2 := h1 + 1; h2 < 4; h2++ {
			five[0], five[1] = hole[h1], hole[h2]
			for b1 := 0; b1 < 3; b1++ {
				for b2 := b1 + 1; b2 < 4; b2++ {
					for b3 := b2 + 1; b3 < 5; b3++ {
						five[2], five[3], five[4] = board[b1], board[b2], board[b3]
						v := EvaluateFive(five)
						if best.Rank == 0 || Compare(v, best) > 0 {
							best = v
						}
					}
				}
			}
		}
	}
	return best
}
