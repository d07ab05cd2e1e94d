package table

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sixmax/plosrv/internal/bot"
	"github.com/sixmax/plosrv/internal/engine"
	"github.com/sixmax/plosrv/internal/evaluator"
	"github.com/sixmax/plosrv/internal/protocol"
)

// maybeScheduleStart arms the inter-hand timer when a hand could begin
func (t *Table) maybeScheduleStart() {
	if t.inProgress || t.closed || t.restartTimer != nil {
		return
	}
	t.fillWithBots()
	if t.eligibleCount() < 2 {
		return
	}
	t.restartTimer = t.clock.AfterFunc(t.cfg.InterHandDelay, func() {
		_ = t.q.Submit(func() error {
			t.restartTimer = nil
			t.startHand()
			return nil
		})
	})
}

func (t *Table) eligibleCount() int {
	n := 0
	for i, s := range t.seats {
		if s == nil {
			continue
		}
		if s.WaitingForNextHand {
			if s.BuyIn > 0 {
				n++
			}
			continue
		}
		if p := t.hand.Players[i]; p != nil && p.Chips > 0 && !p.SittingOut {
			n++
		}
	}
	return n
}

// fillWithBots tops the table up to the configured occupancy
func (t *Table) fillWithBots() {
	if t.cfg.BotFill <= 0 {
		return
	}
	personalities := bot.Personalities()
	for t.occupiedCount() < t.cfg.BotFill {
		idx := t.freeSeat()
		if idx == -1 {
			return
		}
		pid := "bot-" + uuid.NewString()[:8]
		personality := personalities[t.rng.IntN(len(personalities))]
		buyIn := t.cfg.Key.BigBlind * 100
		t.seats[idx] = &Seat{
			PlayerID:       pid,
			Name:           fmt.Sprintf("Bot %d", idx+1),
			IsBot:          true,
			BotPersonality: personality,
		}
		t.hand.Seat(idx, pid, buyIn)
		t.logger.Debug("bot seated", "bot", pid, "seat", idx, "personality", personality)
		t.broadcastExcept(idx, protocol.MustMessage(protocol.EventTablePlayerJoined, protocol.TablePlayerJoinedData{
			Seat:   idx,
			Player: t.publicSeatState(idx, protocol.SpectatorSeat),
		}))
	}
}

func (t *Table) startHand() {
	if t.inProgress || t.closed {
		return
	}

	// Activate seats that sat down mid-hand.
	for i, s := range t.seats {
		if s == nil || !s.WaitingForNextHand {
			continue
		}
		t.hand.Seat(i, s.PlayerID, s.BuyIn)
		s.BuyIn = 0
		s.WaitingForNextHand = false
	}
	t.fillWithBots()

	t.withdrawn = [engine.NumSeats]int{}
	for i, p := range t.hand.Players {
		if p != nil {
			t.stacksBefore[i] = p.Chips
		} else {
			t.stacksBefore[i] = 0
		}
	}
	t.startTotal = t.hand.ChipTotal()

	if err := t.hand.StartNewHand(t.rng); err != nil {
		t.logger.Debug("not enough players to start", "err", err)
		return
	}

	t.inProgress = true
	t.handID = uuid.NewString()
	t.handStartedAt = t.clock.Now()
	t.logger.Info("hand started", "hand", t.handID[:8], "dealer", t.hand.DealerPos)

	t.broadcastState()
	for i, p := range t.hand.Players {
		if p == nil || p.Folded || len(p.HoleCards) == 0 {
			continue
		}
		t.sendTo(i, protocol.MustMessage(protocol.EventGameHoleCards, protocol.GameHoleCardsData{Cards: p.HoleCards}))
	}
	t.sendSpectatorHoleCards()

	if t.hand.Complete {
		t.finishHand()
		return
	}
	t.promptAction()
}

// promptAction asks the current seat to act and arms the timeout. Bot seats
// are decided on the queue instead.
func (t *Table) promptAction() {
	t.cancelPending()
	seat := t.hand.CurrentPlayer
	if seat == -1 {
		return
	}
	t.actionSerial++
	serial := t.actionSerial

	if s := t.seats[seat]; s != nil && s.IsBot {
		t.broadcastState()
		_ = t.q.Submit(func() error {
			t.botAct(serial, seat)
			return nil
		})
		t.pending = &pendingAction{seat: seat, street: t.hand.Street, serial: serial}
		return
	}

	deadline := t.clock.Now().Add(t.cfg.ActionTimeout)
	street := t.hand.Street
	timer := t.clock.AfterFunc(t.cfg.ActionTimeout, func() {
		_ = t.q.Submit(func() error {
			t.handleTimeout(serial, seat, street)
			return nil
		})
	})
	t.pending = &pendingAction{seat: seat, street: street, serial: serial, deadline: deadline, timer: timer}

	t.broadcastState()
	t.sendActionRequired(seat, int(t.cfg.ActionTimeout.Milliseconds()))
}

func (t *Table) cancelPending() {
	if t.pending == nil {
		return
	}
	if t.pending.timer != nil {
		t.pending.timer.Stop()
	}
	t.pending = nil
}

// handleTimeout injects the default action for a seat that ran out the
// clock. Stale timers, beaten to the queue by a real action, find the serial
// moved on and do nothing.
func (t *Table) handleTimeout(serial, seat int, street engine.Street) {
	if !t.inProgress || t.pending == nil || t.pending.serial != serial {
		return
	}
	if t.hand.CurrentPlayer != seat || t.hand.Street != street {
		return
	}

	action := engine.Fold
	for _, va := range t.hand.ValidActions(seat) {
		if va.Action == engine.Check {
			action = engine.Check
			break
		}
	}
	t.logger.Info("action timeout", "seat", seat, "default", action)
	t.applyAction(seat, action, 0)
}

func (t *Table) botAct(serial, seat int) {
	if !t.inProgress || t.pending == nil || t.pending.serial != serial || t.hand.CurrentPlayer != seat {
		return
	}
	s := t.seats[seat]
	if s == nil {
		return
	}
	d := bot.Decide(t.hand, seat, bot.Context{
		Personality: bot.PersonalityByID(s.BotPersonality),
		RNG:         t.rng,
	})
	t.applyAction(seat, d.Action, d.Amount)
}

// applyAction is the single mutation path for player decisions, bot
// decisions and timeout defaults
func (t *Table) applyAction(seat int, action engine.ActionType, amount int) {
	pid := ""
	if p := t.hand.Players[seat]; p != nil {
		pid = p.ID
	}
	if err := t.hand.Apply(seat, action, amount); err != nil {
		t.replyError(seat, err.Error())
		return
	}
	t.cancelPending()

	// Report the amount as recorded, all-ins and short calls included.
	moved := amount
	if n := len(t.hand.History); n > 0 {
		last := t.hand.History[n-1]
		if last.PlayerID == pid {
			action = last.Action
			moved = last.Amount
		}
	}
	t.broadcast(protocol.MustMessage(protocol.EventGameActionTaken, protocol.GameActionTakenData{
		PlayerID: pid,
		Seat:     seat,
		Action:   action,
		Amount:   moved,
	}))

	if err := t.hand.Validate(t.startTotal); err != nil {
		t.abortHand(err)
		return
	}
	if t.hand.Complete {
		t.finishHand()
		return
	}
	t.promptAction()
}

func (t *Table) finishHand() {
	t.cancelPending()
	t.inProgress = false
	h := t.hand

	if h.Street == engine.ShowdownStreet && h.NonFolded() > 1 {
		t.broadcast(protocol.MustMessage(protocol.EventGameShowdown, protocol.GameShowdownData{
			Winners: h.Winners,
			Players: t.showdownPlayers(),
		}))
	}
	t.broadcast(protocol.MustMessage(protocol.EventGameHandComplete, protocol.GameHandCompleteData{
		Winners: h.Winners,
	}))
	t.broadcastState()

	t.records.RecordHand(t.buildRecord())
	t.logger.Info("hand complete", "hand", t.handID[:8], "pot", h.TotalPot, "rake", h.Rake)

	// Busted seats leave, departed mid-hand players get their engine slot
	// cleaned up.
	for i, p := range h.Players {
		if p == nil {
			continue
		}
		s := t.seats[i]
		if s == nil {
			h.Unseat(i)
			continue
		}
		if p.Chips <= 0 {
			t.sendTo(i, protocol.MustMessage(protocol.EventTableBusted, protocol.TableBustedData{
				Message: "out of chips",
			}))
			pid := s.PlayerID
			isBot := s.IsBot
			t.removeSeat(i)
			if !isBot && t.hooks.OnStand != nil {
				t.hooks.OnStand(pid, 0)
			}
		}
	}

	t.maybeScheduleStart()
}

func (t *Table) showdownPlayers() []protocol.ShowdownPlayer {
	var out []protocol.ShowdownPlayer
	for i, p := range t.hand.Players {
		if p == nil || p.Folded {
			continue
		}
		hv, err := evaluator.EvaluatePLO(p.HoleCards, t.hand.Board)
		name := ""
		if err == nil {
			name = hv.Name()
		}
		out = append(out, protocol.ShowdownPlayer{
			SeatIndex: i,
			PlayerID:  p.ID,
			Cards:     p.HoleCards,
			HandName:  name,
		})
	}
	return out
}

func (t *Table) buildRecord() protocol.HandRecord {
	h := t.hand
	rec := protocol.HandRecord{
		HandID:     t.handID,
		TableID:    t.ID,
		SmallBlind: h.SmallBlind,
		BigBlind:   h.BigBlind,
		StartedAt:  t.handStartedAt,
		EndedAt:    t.clock.Now(),
		DealerSeat: h.DealerPos,
		Board:      h.Board,
		Pot:        h.TotalPot,
		Rake:       h.Rake,
		History:    h.History,
		Winners:    h.Winners,
	}
	for i, p := range h.Players {
		if p == nil || t.stacksBefore[i] == 0 && p.TotalBet == 0 && p.Chips == 0 {
			continue
		}
		rec.Seats = append(rec.Seats, protocol.HandRecordSeat{
			SeatIndex: i,
			PlayerID:  p.ID,
			HoleCards: p.HoleCards,
			Profit:    p.Chips + t.withdrawn[i] - t.stacksBefore[i],
		})
	}
	rec.AllInEV = t.allInEV()
	return rec
}

// allInEV computes expected profits from the point betting ended with the
// remaining players all-in. Nil when the hand never ran out.
func (t *Table) allInEV() map[string]int {
	h := t.hand
	if h.BoardAtRunOut == nil || h.NonFolded() < 2 {
		return nil
	}
	players := make([]evaluator.PlayerHand, 0, engine.NumSeats)
	totalBets := make(map[string]int)
	for _, p := range h.Players {
		if p == nil {
			continue
		}
		players = append(players, evaluator.PlayerHand{ID: p.ID, Hole: p.HoleCards, Folded: p.Folded})
		totalBets[p.ID] = p.TotalBet
	}
	pots := make([]evaluator.SidePot, 0, len(h.SidePots))
	for _, sp := range h.SidePots {
		eligible := make([]string, 0, len(sp.Eligible))
		for _, seat := range sp.Eligible {
			if p := h.Players[seat]; p != nil {
				eligible = append(eligible, p.ID)
			}
		}
		pots = append(pots, evaluator.SidePot{Amount: sp.Amount, Eligible: eligible})
	}
	return evaluator.AllInEVProfits(t.rng, h.BoardAtRunOut, players, pots, totalBets)
}

// abortHand unwinds a hand that failed the chip conservation check. Stacks
// go back to their hand-start snapshot, less anything already withdrawn by a
// departing player; a showdown may have distributed the pot before the check
// fired, so refunding bets on top of whatever was paid out would mint chips.
func (t *Table) abortHand(cause error) {
	t.logger.Error("hand aborted", "hand", t.handID[:8], "err", cause)
	t.cancelPending()
	h := t.hand
	for i, p := range h.Players {
		if p == nil {
			continue
		}
		p.Chips = t.stacksBefore[i] - t.withdrawn[i]
		p.TotalBet = 0
		p.CurrentBet = 0
	}
	h.Pot = 0
	h.TotalPot = 0
	h.Rake = 0
	h.SidePots = nil
	h.Winners = nil
	h.Complete = true
	t.inProgress = false

	for i, p := range h.Players {
		if p != nil && t.seats[i] == nil {
			h.Unseat(i)
		}
	}

	t.broadcast(protocol.MustMessage(protocol.EventTableError, protocol.ErrorData{
		Message: "hand aborted, bets returned",
	}))
	t.broadcastState()
	t.maybeScheduleStart()
}
