package protocol

import (
	"time"

	"github.com/sixmax/plosrv/internal/deck"
	"github.com/sixmax/plosrv/internal/engine"
)

// SeatState is the public view of one seat
type SeatState struct {
	SeatIndex  int         `json:"seatIndex"`
	PlayerID   string      `json:"playerId"`
	Name       string      `json:"name"`
	Avatar     string      `json:"avatar,omitempty"`
	Chips      int         `json:"chips"`
	CurrentBet int         `json:"currentBet"`
	TotalBet   int         `json:"totalBet"`
	Position   string      `json:"position,omitempty"`
	Folded     bool        `json:"folded"`
	AllIn      bool        `json:"allIn"`
	SittingOut bool        `json:"sittingOut"`
	Connected  bool        `json:"connected"`
	HoleCards  []deck.Card `json:"holeCards,omitempty"` // recipient's own seat only
}

// SidePotView is a pot tier with seat-index eligibility
type SidePotView struct {
	Amount        int   `json:"amount"`
	EligibleSeats []int `json:"eligibleSeats"`
}

// ClientGameState is the per-recipient projection of a table. Hole cards of
// every seat but the recipient's are stripped.
type ClientGameState struct {
	TableID           string        `json:"tableId"`
	HandID            string        `json:"handId,omitempty"`
	Seats             []SeatState   `json:"seats"`
	Board             []deck.Card   `json:"communityCards"`
	Pot               int           `json:"pot"`
	SidePots          []SidePotView `json:"sidePots,omitempty"`
	Street            string        `json:"street"`
	DealerSeat        int           `json:"dealerSeat"`
	CurrentPlayerSeat int           `json:"currentPlayerSeat"`
	CurrentBet        int           `json:"currentBet"`
	MinRaise          int           `json:"minRaise"`
	SmallBlind        int           `json:"smallBlind"`
	BigBlind          int           `json:"bigBlind"`
	IsHandInProgress  bool          `json:"isHandInProgress"`
	ActionTimeoutAt   *time.Time    `json:"actionTimeoutAt,omitempty"`
	ActionTimeoutMs   int           `json:"actionTimeoutMs,omitempty"`
}

// SeatMeta is table-level seat information the engine does not carry
type SeatMeta struct {
	Name      string // display name, already masked when the seat opted in
	Avatar    string
	Connected bool
}

// Projection carries everything needed to build a ClientGameState
type Projection struct {
	TableID         string
	HandID          string
	Hand            *engine.HandState
	Meta            map[int]SeatMeta
	InProgress      bool
	ActionTimeoutAt time.Time
	ActionTimeoutMs int
}

// SpectatorSeat is the viewer value for projections with no hole cards
const SpectatorSeat = -1

// ForSeat builds the projection for one recipient. Pass SpectatorSeat to
// strip every seat's hole cards.
func (p Projection) ForSeat(viewer int) ClientGameState {
	h := p.Hand
	out := ClientGameState{
		TableID:           p.TableID,
		HandID:            p.HandID,
		Board:             append([]deck.Card(nil), h.Board...),
		Pot:               h.Pot,
		Street:            h.Street.String(),
		DealerSeat:        h.DealerPos,
		CurrentPlayerSeat: h.CurrentPlayer,
		CurrentBet:        h.CurrentBet,
		MinRaise:          h.MinRaise,
		SmallBlind:        h.SmallBlind,
		BigBlind:          h.BigBlind,
		IsHandInProgress:  p.InProgress,
		ActionTimeoutMs:   p.ActionTimeoutMs,
	}
	if !p.ActionTimeoutAt.IsZero() {
		at := p.ActionTimeoutAt
		out.ActionTimeoutAt = &at
	}

	for i, pl := range h.Players {
		if pl == nil {
			continue
		}
		meta := p.Meta[i]
		seat := SeatState{
			SeatIndex:  i,
			PlayerID:   pl.ID,
			Name:       meta.Name,
			Avatar:     meta.Avatar,
			Chips:      pl.Chips,
			CurrentBet: pl.CurrentBet,
			TotalBet:   pl.TotalBet,
			Position:   pl.Position,
			Folded:     pl.Folded,
			AllIn:      pl.AllIn,
			SittingOut: pl.SittingOut,
			Connected:  meta.Connected,
		}
		if i == viewer {
			seat.HoleCards = append([]deck.Card(nil), pl.HoleCards...)
		}
		out.Seats = append(out.Seats, seat)
	}

	for _, sp := range h.SidePots {
		out.SidePots = append(out.SidePots, SidePotView{
			Amount:        sp.Amount,
			EligibleSeats: append([]int(nil), sp.Eligible...),
		})
	}
	return out
}
