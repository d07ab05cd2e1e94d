package engine

import (
	"fmt"

	"github.com/sixmax/plosrv/internal/deck"
)

// ValidActions returns the legal moves for a seat with their amount bounds.
// Amounts are chips moved by the action. Empty when the seat cannot act.
func (h *HandState) ValidActions(seat int) []ValidAction {
	if h.Complete || seat < 0 || seat >= NumSeats {
		return nil
	}
	p := h.Players[seat]
	if p == nil || p.Folded || p.AllIn || p.Chips <= 0 {
		return nil
	}

	toCall := h.CurrentBet - p.CurrentBet
	if toCall < 0 {
		toCall = 0
	}
	// Pot-limit cap on total chips this action: call plus a pot-size raise.
	potLimit := toCall + (h.Pot + toCall)

	actions := []ValidAction{{Action: Fold}}

	if toCall == 0 {
		actions = append(actions, ValidAction{Action: Check})
	} else {
		call := toCall
		if call > p.Chips {
			call = p.Chips
		}
		actions = append(actions, ValidAction{Action: Call, Min: call, Max: call})
	}

	// A non-full all-in pushes CurrentBet above LastFullRaiseBet without
	// reopening the action: players who already acted may then only call or
	// fold until someone puts in a full raise.
	reopen := !p.Acted || h.CurrentBet <= h.LastFullRaiseBet
	if reopen && p.Chips > toCall {
		if h.CurrentBet == 0 {
			min := h.BigBlind
			max := h.Pot
			if max > p.Chips {
				max = p.Chips
			}
			if min <= max {
				actions = append(actions, ValidAction{Action: Bet, Min: min, Max: max})
			}
		} else {
			min := toCall + h.MinRaise
			max := potLimit
			if max > p.Chips {
				max = p.Chips
			}
			if min <= max {
				actions = append(actions, ValidAction{Action: Raise, Min: min, Max: max})
			}
		}
	}

	if p.Chips > 0 && p.Chips <= potLimit {
		actions = append(actions, ValidAction{Action: AllIn, Min: p.Chips, Max: p.Chips})
	}

	return actions
}

// Apply executes one action for the acting seat and resolves what happens
// next: pass the action on, advance the street, or end the hand.
func (h *HandState) Apply(seat int, action ActionType, amount int) error {
	if h.Complete {
		return ErrHandComplete
	}
	if seat != h.CurrentPlayer {
		return ErrNotYourTurn
	}
	p := h.Players[seat]

	valid := h.ValidActions(seat)
	var chosen *ValidAction
	for i := range valid {
		if valid[i].Action == action {
			chosen = &valid[i]
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("%w: %s", ErrInvalidAction, action)
	}
	if action == Bet || action == Raise {
		if amount < chosen.Min || amount > chosen.Max {
			return fmt.Errorf("%w: %s %d not in [%d, %d]", ErrInvalidAmount, action, amount, chosen.Min, chosen.Max)
		}
	}

	moved := 0
	switch action {
	case Fold:
		p.Folded = true

	case Check:

	case Call:
		moved = h.commit(p, chosen.Min)
		if p.Chips == 0 {
			p.AllIn = true
		}

	case Bet, Raise:
		moved = h.commit(p, amount)
		newBet := p.CurrentBet
		raiseBy := newBet - h.CurrentBet
		if raiseBy > h.MinRaise {
			h.MinRaise = raiseBy
		}
		h.CurrentBet = newBet
		h.LastFullRaiseBet = newBet
		h.LastRaiser = seat
		if p.Chips == 0 {
			p.AllIn = true
		}

	case AllIn:
		moved = h.commit(p, p.Chips)
		p.AllIn = true
		if p.CurrentBet > h.CurrentBet {
			raiseBy := p.CurrentBet - h.CurrentBet
			h.CurrentBet = p.CurrentBet
			if raiseBy >= h.MinRaise {
				// Full raise: betting reopens for everyone.
				h.MinRaise = raiseBy
				h.LastFullRaiseBet = p.CurrentBet
				h.LastRaiser = seat
			}
		}
	}

	p.Acted = true
	h.History = append(h.History, HistoryEntry{
		PlayerID: p.ID,
		Action:   action,
		Amount:   moved,
		Street:   h.Street,
	})

	h.resolveNext(seat)
	return nil
}

// commit moves up to amount chips from the player into the pot
func (h *HandState) commit(p *Player, amount int) int {
	if amount > p.Chips {
		amount = p.Chips
	}
	p.Chips -= amount
	p.CurrentBet += amount
	p.TotalBet += amount
	h.Pot += amount
	return amount
}

// resolveNext decides what follows an action: award on a walk, advance the
// street when betting is settled, or pass action clockwise.
func (h *HandState) resolveNext(seat int) {
	if h.NonFolded() == 1 {
		h.awardToLast()
		return
	}
	if h.bettingComplete() {
		h.advanceStreet()
		return
	}
	h.CurrentPlayer = h.nextToAct(seat)
	if h.CurrentPlayer == -1 {
		h.advanceStreet()
	}
}

// bettingComplete reports whether the current street is settled: every live
// player is all-in or has acted and matched the current bet
func (h *HandState) bettingComplete() bool {
	for _, p := range h.Players {
		if p == nil || p.Folded || p.AllIn {
			continue
		}
		if !p.Acted || p.CurrentBet != h.CurrentBet {
			return false
		}
	}
	return true
}

// nextToAct finds the next seat clockwise after from that still owes a
// decision this street
func (h *HandState) nextToAct(from int) int {
	for i := 1; i <= NumSeats; i++ {
		idx := (from + i) % NumSeats
		p := h.Players[idx]
		if p == nil || p.Folded || p.AllIn || p.Chips <= 0 {
			continue
		}
		if !p.Acted || p.CurrentBet < h.CurrentBet {
			return idx
		}
	}
	return -1
}

// advanceStreet resets per-street betting state and deals the next cards.
// When at most one player can still act the rest of the board is run out
// with no further betting.
func (h *HandState) advanceStreet() {
	if h.Street == River {
		h.showdown()
		return
	}

	h.CurrentBet = 0
	h.MinRaise = h.BigBlind
	h.LastFullRaiseBet = 0
	h.LastRaiser = -1
	for _, p := range h.Players {
		if p == nil {
			continue
		}
		p.CurrentBet = 0
		if !p.Folded && !p.AllIn {
			p.Acted = false
		}
	}

	h.dealStreet()
	h.Street++

	if h.canActCount() <= 1 {
		h.runOut()
		h.showdown()
		return
	}

	h.CurrentPlayer = h.firstToActPostflop()
	if h.CurrentPlayer == -1 {
		h.advanceStreet()
	}
}

// dealStreet deals the next board cards for the upcoming street
func (h *HandState) dealStreet() {
	n := 1
	if h.Street == Preflop {
		n = 3
	}
	cards, err := h.Deck.Deal(n)
	if err != nil {
		// A 52-card deck always covers 6 players and a full board.
		panic(err)
	}
	h.Board = append(h.Board, cards...)
}

// runOut deals any remaining board cards with no betting
func (h *HandState) runOut() {
	if h.BoardAtRunOut == nil && h.NonFolded() > 1 {
		h.BoardAtRunOut = append(make([]deck.Card, 0, len(h.Board)), h.Board...)
	}
	for h.Street < River {
		h.dealStreet()
		h.Street++
	}
	for len(h.Board) < 5 {
		h.dealStreet()
	}
}

// ForceFold folds a seat regardless of whose turn it is. Used when a player
// leaves or fast-folds mid-hand. A no-op for seats already out of the hand.
func (h *HandState) ForceFold(seat int) {
	if h.Complete || seat < 0 || seat >= NumSeats {
		return
	}
	p := h.Players[seat]
	if p == nil || p.Folded {
		return
	}

	p.Folded = true
	p.Acted = true
	h.History = append(h.History, HistoryEntry{
		PlayerID: p.ID,
		Action:   Fold,
		Street:   h.Street,
	})

	if seat == h.CurrentPlayer {
		h.resolveNext(seat)
		return
	}
	if h.NonFolded() == 1 {
		h.awardToLast()
		return
	}
	// Out of turn: action stays where it was unless this fold settled the
	// street.
	if h.CurrentPlayer != -1 && h.bettingComplete() {
		h.advanceStreet()
	}
}

// firstToActPostflop is the first live seat clockwise from the button
func (h *HandState) firstToActPostflop() int {
	for i := 1; i <= NumSeats; i++ {
		idx := (h.DealerPos + i) % NumSeats
		p := h.Players[idx]
		if p != nil && !p.Folded && !p.AllIn && p.Chips > 0 {
			return idx
		}
	}
	return -1
}
