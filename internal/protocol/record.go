package protocol

import (
	"time"

	"github.com/sixmax/plosrv/internal/deck"
	"github.com/sixmax/plosrv/internal/engine"
)

// HandRecordSeat is one seat's outcome in a finished hand
type HandRecordSeat struct {
	SeatIndex int         `json:"seatIndex"`
	PlayerID  string      `json:"playerId"`
	HoleCards []deck.Card `json:"holeCards,omitempty"`
	Profit    int         `json:"profit"`
}

// HandRecord is the persistable summary of a finished hand. The core emits
// records to a sink; storage is owned elsewhere.
type HandRecord struct {
	HandID     string                `json:"handId"`
	TableID    string                `json:"tableId"`
	SmallBlind int                   `json:"smallBlind"`
	BigBlind   int                   `json:"bigBlind"`
	StartedAt  time.Time             `json:"startedAt"`
	EndedAt    time.Time             `json:"endedAt"`
	DealerSeat int                   `json:"dealerSeat"`
	Board      []deck.Card           `json:"communityCards"`
	Pot        int                   `json:"pot"`
	Rake       int                   `json:"rake"`
	Seats      []HandRecordSeat      `json:"seats"`
	History    []engine.HistoryEntry `json:"history"`
	Winners    []engine.Winner       `json:"winners"`
	AllInEV    map[string]int        `json:"allInEv,omitempty"`
}

// RecordSink receives finished hand records. Implementations must not block
// the table queue.
type RecordSink interface {
	RecordHand(record HandRecord)
}

// DiscardSink drops records
type DiscardSink struct{}

func (DiscardSink) RecordHand(HandRecord) {}
