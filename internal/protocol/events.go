package protocol

import (
	"time"

	"github.com/sixmax/plosrv/internal/deck"
	"github.com/sixmax/plosrv/internal/engine"
)

// Client → Server payloads

// GameActionData is a player's decision for the current hand
type GameActionData struct {
	Action engine.ActionType `json:"action"`
	Amount int               `json:"amount,omitempty"`
}

// MatchmakingJoinData asks to be seated at a table of the given stakes.
// Blinds is "sb/bb", e.g. "1/2".
type MatchmakingJoinData struct {
	Blinds     string `json:"blinds"`
	FastFold   bool   `json:"fastFold,omitempty"`
	BuyIn      int    `json:"buyIn,omitempty"`
	Name       string `json:"name,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	NameMasked bool   `json:"nameMasked,omitempty"`
}

// TableSpectateData subscribes to a table's public state
type TableSpectateData struct {
	TableID string `json:"tableId"`
}

// Server → Client payloads

// ConnectionEstablishedData acknowledges a new connection
type ConnectionEstablishedData struct {
	PlayerID string `json:"playerId"`
}

// ErrorData carries a protocol or table error message
type ErrorData struct {
	Message string `json:"message"`
}

// TableJoinedData reports the table and seat assigned by matchmaking
type TableJoinedData struct {
	TableID string `json:"tableId"`
	Seat    int    `json:"seat"`
}

// TableChangeData reports a fast-fold reseat onto a new table
type TableChangeData struct {
	TableID string `json:"tableId"`
	Seat    int    `json:"seat"`
}

// TableBustedData tells a seat it is out of chips and removed
type TableBustedData struct {
	Message string `json:"message"`
}

// TablePlayerJoinedData announces a new seat occupant
type TablePlayerJoinedData struct {
	Seat   int       `json:"seat"`
	Player SeatState `json:"player"`
}

// TablePlayerLeftData announces a seat vacating
type TablePlayerLeftData struct {
	Seat     int    `json:"seat"`
	PlayerID string `json:"playerId"`
}

// TableSpectatingData acknowledges a spectate subscription
type TableSpectatingData struct {
	TableID string `json:"tableId"`
}

// GameStateData wraps the per-recipient projection
type GameStateData struct {
	State ClientGameState `json:"state"`
}

// GameHoleCardsData delivers a seat its four cards, to that seat only
type GameHoleCardsData struct {
	Cards []deck.Card `json:"cards"`
}

// GameActionRequiredData asks a seat to act before the deadline
type GameActionRequiredData struct {
	PlayerID     string               `json:"playerId"`
	Seat         int                  `json:"seat"`
	ValidActions []engine.ValidAction `json:"validActions"`
	TimeoutMs    int                  `json:"timeoutMs"`
}

// GameActionTakenData reports a resolved action, including timeout defaults
type GameActionTakenData struct {
	PlayerID string            `json:"playerId"`
	Seat     int               `json:"seat"`
	Action   engine.ActionType `json:"action"`
	Amount   int               `json:"amount"`
}

// ShowdownPlayer reveals one seat's cards at showdown
type ShowdownPlayer struct {
	SeatIndex int         `json:"seatIndex"`
	PlayerID  string      `json:"playerId"`
	Cards     []deck.Card `json:"cards"`
	HandName  string      `json:"handName"`
}

// GameShowdownData reveals the contested result
type GameShowdownData struct {
	Winners []engine.Winner  `json:"winners"`
	Players []ShowdownPlayer `json:"players"`
}

// GameHandCompleteData closes out a hand
type GameHandCompleteData struct {
	Winners []engine.Winner `json:"winners"`
}

// GameAllHoleCardsData is the spectator-only view of every live hand
type GameAllHoleCardsData struct {
	Players []ShowdownPlayer `json:"players"`
}

// MaintenanceStatusData announces server maintenance windows
type MaintenanceStatusData struct {
	IsActive    bool      `json:"isActive"`
	Message     string    `json:"message,omitempty"`
	ActivatedAt time.Time `json:"activatedAt,omitempty"`
}
