package table

import (
	"fmt"
	"time"

	"github.com/sixmax/plosrv/internal/engine"
	"github.com/sixmax/plosrv/internal/protocol"
)

func (t *Table) broadcast(msg *protocol.Message) {
	for _, s := range t.seats {
		if s != nil {
			send(s.sink, msg)
		}
	}
	for _, sink := range t.spectators {
		send(sink, msg)
	}
}

func (t *Table) broadcastExcept(seat int, msg *protocol.Message) {
	for i, s := range t.seats {
		if s != nil && i != seat {
			send(s.sink, msg)
		}
	}
	for _, sink := range t.spectators {
		send(sink, msg)
	}
}

func (t *Table) sendTo(seat int, msg *protocol.Message) {
	if s := t.seats[seat]; s != nil {
		send(s.sink, msg)
	}
}

func (t *Table) replyError(seat int, message string) {
	t.sendTo(seat, protocol.MustMessage(protocol.EventTableError, protocol.ErrorData{Message: message}))
}

// broadcastState sends each recipient its own projection. Hole cards and
// unmasked names differ per viewer, so the state is rebuilt for every sink.
func (t *Table) broadcastState() {
	for i, s := range t.seats {
		if s != nil && s.sink != nil {
			send(s.sink, t.stateMessage(i))
		}
	}
	if len(t.spectators) > 0 {
		msg := t.stateMessage(protocol.SpectatorSeat)
		for _, sink := range t.spectators {
			send(sink, msg)
		}
	}
}

func (t *Table) sendSnapshot(seat int) {
	t.sendTo(seat, t.stateMessage(seat))
}

func (t *Table) stateMessage(viewer int) *protocol.Message {
	return protocol.MustMessage(protocol.EventGameState, protocol.GameStateData{State: t.projection(viewer)})
}

func (t *Table) projection(viewer int) protocol.ClientGameState {
	p := protocol.Projection{
		TableID:    t.ID,
		HandID:     t.handID,
		Hand:       t.hand,
		Meta:       t.seatMeta(viewer),
		InProgress: t.inProgress,
	}
	if t.pending != nil && !t.pending.deadline.IsZero() {
		p.ActionTimeoutAt = t.pending.deadline
		p.ActionTimeoutMs = int(t.cfg.ActionTimeout / time.Millisecond)
	}
	return p.ForSeat(viewer)
}

func (t *Table) seatMeta(viewer int) map[int]protocol.SeatMeta {
	meta := make(map[int]protocol.SeatMeta, engine.NumSeats)
	for i, s := range t.seats {
		if s == nil {
			continue
		}
		meta[i] = protocol.SeatMeta{
			Name:      t.displayName(i, viewer),
			Avatar:    t.displayAvatar(i, viewer),
			Connected: s.sink != nil || s.IsBot,
		}
	}
	return meta
}

func (t *Table) displayName(seat, viewer int) string {
	s := t.seats[seat]
	if s == nil {
		return ""
	}
	if s.NameMasked && seat != viewer {
		return fmt.Sprintf("Player %d", seat+1)
	}
	return s.Name
}

// displayAvatar hides the avatar along with the name for masked seats
func (t *Table) displayAvatar(seat, viewer int) string {
	s := t.seats[seat]
	if s == nil || (s.NameMasked && seat != viewer) {
		return ""
	}
	return s.Avatar
}

func (t *Table) publicSeatState(seat, viewer int) protocol.SeatState {
	s := t.seats[seat]
	state := protocol.SeatState{
		SeatIndex: seat,
		PlayerID:  s.PlayerID,
		Name:      t.displayName(seat, viewer),
		Avatar:    t.displayAvatar(seat, viewer),
		Connected: s.sink != nil || s.IsBot,
	}
	if p := t.hand.Players[seat]; p != nil {
		state.Chips = p.Chips
		state.SittingOut = p.SittingOut
	} else {
		state.Chips = s.BuyIn
		state.SittingOut = s.WaitingForNextHand
	}
	return state
}

func (t *Table) sendActionRequired(seat, timeoutMs int) {
	p := t.hand.Players[seat]
	if p == nil {
		return
	}
	t.sendTo(seat, protocol.MustMessage(protocol.EventGameActionRequired, protocol.GameActionRequiredData{
		PlayerID:     p.ID,
		Seat:         seat,
		ValidActions: t.hand.ValidActions(seat),
		TimeoutMs:    timeoutMs,
	}))
}

// sendSpectatorHoleCards reveals every live hand to spectators at deal time
func (t *Table) sendSpectatorHoleCards() {
	if len(t.spectators) == 0 {
		return
	}
	var players []protocol.ShowdownPlayer
	for i, p := range t.hand.Players {
		if p == nil || p.Folded || len(p.HoleCards) == 0 {
			continue
		}
		players = append(players, protocol.ShowdownPlayer{
			SeatIndex: i,
			PlayerID:  p.ID,
			Cards:     p.HoleCards,
		})
	}
	msg := protocol.MustMessage(protocol.EventGameAllHoleCards, protocol.GameAllHoleCardsData{Players: players})
	for _, sink := range t.spectators {
		send(sink, msg)
	}
}
