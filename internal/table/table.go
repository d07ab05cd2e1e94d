// Package table runs one six-max cash game table. All state is owned by a
// single serial queue: public methods enqueue tasks and every mutation,
// including its outgoing broadcasts, happens inside one task. Timers enqueue
// too, so an action racing its own timeout is settled by queue order and the
// loser finds stale state and does nothing.
package table

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/sixmax/plosrv/internal/bot"
	"github.com/sixmax/plosrv/internal/engine"
	"github.com/sixmax/plosrv/internal/protocol"
	"github.com/sixmax/plosrv/internal/queue"
)

var (
	ErrTableFull        = errors.New("table full")
	ErrTableClosed      = errors.New("table closed")
	ErrAlreadySeated    = errors.New("already seated at this table")
	ErrNotSeated        = errors.New("not seated at this table")
	ErrFastFoldDisabled = errors.New("fast fold not enabled for this table")
	ErrActionCommitted  = errors.New("cannot fast fold after acting")
)

// Key identifies a stakes pool. Tables with the same key are interchangeable
// for matchmaking.
type Key struct {
	SmallBlind int
	BigBlind   int
	FastFold   bool
}

func (k Key) String() string {
	s := fmt.Sprintf("%d/%d", k.SmallBlind, k.BigBlind)
	if k.FastFold {
		s += "/ff"
	}
	return s
}

// Sink delivers messages to one client. A Send error means the client is
// gone; the table keeps playing the seat via timeout defaults.
type Sink interface {
	Send(msg *protocol.Message) error
}

// Profile is the display identity a player sits down with
type Profile struct {
	Name       string
	Avatar     string
	NameMasked bool
}

// Seat is table-level state for one occupied position. In-hand chip state
// lives in the engine player.
type Seat struct {
	PlayerID           string
	Name               string
	Avatar             string
	NameMasked         bool
	BuyIn              int // pending stack while waiting for the next hand
	WaitingForNextHand bool
	LeftForFastFold    bool
	IsBot              bool
	BotPersonality     bot.PersonalityID

	sink Sink
}

// Config is per-table configuration
type Config struct {
	Key            Key
	ActionTimeout  time.Duration
	InterHandDelay time.Duration
	Rake           engine.RakeConfig
	BotFill        int // top the table up to this many occupied seats with bots
}

// Hooks are callbacks into the matchmaking layer. All are optional and are
// invoked from inside the table queue; they must not call back into the same
// table synchronously.
type Hooks struct {
	// OnStand returns a player's remaining chips to their bankroll.
	OnStand func(playerID string, chips int)
	// OnFastFold re-queues a player for a fresh table at the same stakes.
	OnFastFold func(playerID string, chips int, key Key)
}

type pendingAction struct {
	seat     int
	street   engine.Street
	serial   int
	deadline time.Time
	timer    *quartz.Timer
}

// Table is one running table instance
type Table struct {
	ID     string
	cfg    Config
	q      *queue.Queue
	clock  quartz.Clock
	rng    *rand.Rand
	logger *log.Logger

	records protocol.RecordSink
	hooks   Hooks

	hand       *engine.HandState
	seats      [engine.NumSeats]*Seat
	spectators map[string]Sink

	handID        string
	handStartedAt time.Time
	inProgress    bool
	startTotal    int
	stacksBefore  [engine.NumSeats]int
	withdrawn     [engine.NumSeats]int

	pending      *pendingAction
	actionSerial int
	restartTimer *quartz.Timer
	closed       bool
}

// New creates a table and starts its queue
func New(cfg Config, clock quartz.Clock, rng *rand.Rand, logger *log.Logger, records protocol.RecordSink, hooks Hooks) *Table {
	if records == nil {
		records = protocol.DiscardSink{}
	}
	id := uuid.NewString()
	h := engine.New(cfg.Key.SmallBlind, cfg.Key.BigBlind)
	h.RakeRule = cfg.Rake
	return &Table{
		ID:         id,
		cfg:        cfg,
		q:          queue.New(),
		clock:      clock,
		rng:        rng,
		logger:     logger.WithPrefix("table").With("table", id[:8], "stakes", cfg.Key.String()),
		records:    records,
		hooks:      hooks,
		hand:       h,
		spectators: make(map[string]Sink),
	}
}

// Key returns the stakes pool this table belongs to
func (t *Table) Key() Key { return t.cfg.Key }

// Sit seats a player, mid-hand as a waiting seat. Returns the seat index.
func (t *Table) Sit(playerID string, profile Profile, buyIn int, sink Sink) (int, error) {
	seat := -1
	err := t.q.Do(func() error {
		if t.closed {
			return ErrTableClosed
		}
		if t.seatOf(playerID) != -1 {
			return ErrAlreadySeated
		}
		idx := t.freeSeat()
		if idx == -1 {
			return ErrTableFull
		}

		s := &Seat{
			PlayerID:   playerID,
			Name:       profile.Name,
			Avatar:     profile.Avatar,
			NameMasked: profile.NameMasked,
			BuyIn:      buyIn,
			sink:       sink,
		}
		t.seats[idx] = s
		if t.inProgress {
			s.WaitingForNextHand = true
		} else {
			t.hand.Seat(idx, playerID, buyIn)
			s.BuyIn = 0
		}
		seat = idx

		t.logger.Info("player seated", "player", playerID, "seat", idx, "buyIn", buyIn)
		t.broadcastExcept(idx, protocol.MustMessage(protocol.EventTablePlayerJoined, protocol.TablePlayerJoinedData{
			Seat:   idx,
			Player: t.publicSeatState(idx, protocol.SpectatorSeat),
		}))
		t.sendTo(idx, protocol.MustMessage(protocol.EventTableJoined, protocol.TableJoinedData{
			TableID: t.ID,
			Seat:    idx,
		}))
		t.sendSnapshot(idx)
		t.maybeScheduleStart()
		return nil
	})
	return seat, err
}

// Stand removes a player, folding their live hand first. Remaining chips go
// back through the OnStand hook.
func (t *Table) Stand(playerID string) error {
	return t.q.Do(func() error {
		idx := t.seatOf(playerID)
		if idx == -1 {
			return ErrNotSeated
		}
		chips := t.removeSeat(idx)
		if t.hooks.OnStand != nil {
			t.hooks.OnStand(playerID, chips)
		}
		t.settleAfterRemoval()
		return nil
	})
}

// SubmitAction applies a player's decision. Invalid submissions get an error
// reply on the player's sink and leave the hand untouched.
func (t *Table) SubmitAction(playerID string, action engine.ActionType, amount int) error {
	return t.q.Do(func() error {
		idx := t.seatOf(playerID)
		if idx == -1 {
			return ErrNotSeated
		}
		if !t.inProgress || t.hand.CurrentPlayer != idx {
			t.replyError(idx, "not your turn")
			return nil
		}
		t.applyAction(idx, action, amount)
		return nil
	})
}

// FastFold folds immediately and hands the player back to the matchmaker for
// a fresh table. Only allowed before the player has voluntarily put chips in.
func (t *Table) FastFold(playerID string) error {
	return t.q.Do(func() error {
		if !t.cfg.Key.FastFold {
			return ErrFastFoldDisabled
		}
		idx := t.seatOf(playerID)
		if idx == -1 {
			return ErrNotSeated
		}
		if t.inProgress && t.hasVoluntaryAction(playerID) {
			return ErrActionCommitted
		}
		if s := t.seats[idx]; s != nil {
			s.LeftForFastFold = true
		}
		chips := t.removeSeat(idx)
		if t.hooks.OnFastFold != nil {
			t.hooks.OnFastFold(playerID, chips, t.cfg.Key)
		}
		t.settleAfterRemoval()
		return nil
	})
}

// Reconnect reattaches a connection to a seat and resends its view
func (t *Table) Reconnect(playerID string, sink Sink) error {
	return t.q.Do(func() error {
		idx := t.seatOf(playerID)
		if idx == -1 {
			return ErrNotSeated
		}
		t.seats[idx].sink = sink
		t.sendTo(idx, protocol.MustMessage(protocol.EventTableJoined, protocol.TableJoinedData{
			TableID: t.ID,
			Seat:    idx,
		}))
		t.sendSnapshot(idx)
		if t.inProgress {
			if p := t.hand.Players[idx]; p != nil && len(p.HoleCards) > 0 {
				t.sendTo(idx, protocol.MustMessage(protocol.EventGameHoleCards, protocol.GameHoleCardsData{Cards: p.HoleCards}))
			}
			if t.pending != nil && t.pending.seat == idx {
				t.sendActionRequired(idx, int(t.pending.deadline.Sub(t.clock.Now())/time.Millisecond))
			}
		}
		return nil
	})
}

// Disconnect drops a seat's connection. The seat stays and plays on through
// timeout defaults.
func (t *Table) Disconnect(playerID string) error {
	return t.q.Do(func() error {
		idx := t.seatOf(playerID)
		if idx == -1 {
			return ErrNotSeated
		}
		t.seats[idx].sink = nil
		t.logger.Info("player disconnected", "player", playerID, "seat", idx)
		return nil
	})
}

// AddSpectator subscribes a sink to the table's public state
func (t *Table) AddSpectator(id string, sink Sink) error {
	return t.q.Do(func() error {
		if t.closed {
			return ErrTableClosed
		}
		t.spectators[id] = sink
		send(sink, protocol.MustMessage(protocol.EventTableSpectating, protocol.TableSpectatingData{TableID: t.ID}))
		send(sink, t.stateMessage(protocol.SpectatorSeat))
		return nil
	})
}

// RemoveSpectator drops a spectator subscription
func (t *Table) RemoveSpectator(id string) error {
	return t.q.Do(func() error {
		delete(t.spectators, id)
		return nil
	})
}

// SeatedCount returns the number of occupied seats
func (t *Table) SeatedCount() int {
	n := 0
	_ = t.q.Do(func() error {
		n = t.occupiedCount()
		return nil
	})
	return n
}

// HumanCount returns occupied seats excluding bots
func (t *Table) HumanCount() int {
	n := 0
	_ = t.q.Do(func() error {
		for _, s := range t.seats {
			if s != nil && !s.IsBot {
				n++
			}
		}
		return nil
	})
	return n
}

// Broadcast sends a message to every connected seat and spectator
func (t *Table) Broadcast(msg *protocol.Message) {
	_ = t.q.Do(func() error {
		t.broadcast(msg)
		return nil
	})
}

// Close stops the table. Seated players get their chips back through the
// OnStand hook.
func (t *Table) Close() {
	_ = t.q.Do(func() error {
		if t.closed {
			return nil
		}
		t.closed = true
		t.cancelPending()
		if t.restartTimer != nil {
			t.restartTimer.Stop()
			t.restartTimer = nil
		}
		for i, s := range t.seats {
			if s == nil {
				continue
			}
			pid := s.PlayerID
			isBot := s.IsBot
			chips := t.removeSeat(i)
			if !isBot && t.hooks.OnStand != nil {
				t.hooks.OnStand(pid, chips)
			}
		}
		return nil
	})
	t.q.Close()
}

func (t *Table) seatOf(playerID string) int {
	for i, s := range t.seats {
		if s != nil && s.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (t *Table) freeSeat() int {
	for i := range t.seats {
		if t.seats[i] == nil && t.hand.Players[i] == nil {
			return i
		}
	}
	return -1
}

func (t *Table) occupiedCount() int {
	n := 0
	for _, s := range t.seats {
		if s != nil {
			n++
		}
	}
	return n
}

func (t *Table) hasVoluntaryAction(playerID string) bool {
	for _, e := range t.hand.History {
		if e.PlayerID == playerID && e.Action != engine.PostBlind && e.Action != engine.Fold {
			return true
		}
	}
	return false
}

// removeSeat folds a live hand, strips the seat's remaining chips out of the
// table and returns them. The engine player lingers until hand end so pot
// accounting over its dead bets stays intact.
func (t *Table) removeSeat(idx int) int {
	s := t.seats[idx]
	if s == nil {
		return 0
	}
	chips := s.BuyIn
	p := t.hand.Players[idx]
	if p != nil {
		if t.inProgress {
			t.hand.ForceFold(idx)
			chips = p.Chips
			p.Chips = 0
			p.SittingOut = true
			t.startTotal -= chips
			t.withdrawn[idx] += chips
		} else {
			chips = p.Chips
			t.hand.Unseat(idx)
		}
	}
	t.seats[idx] = nil
	t.logger.Info("player left", "player", s.PlayerID, "seat", idx, "chips", chips, "fastFold", s.LeftForFastFold)
	t.broadcast(protocol.MustMessage(protocol.EventTablePlayerLeft, protocol.TablePlayerLeftData{
		Seat:     idx,
		PlayerID: s.PlayerID,
	}))
	send(s.sink, protocol.MustMessage(protocol.EventTableLeft, map[string]string{"tableId": t.ID}))
	return chips
}

// settleAfterRemoval deals with whatever a mid-hand removal left behind: a
// finished hand, a shifted turn, or nothing.
func (t *Table) settleAfterRemoval() {
	if !t.inProgress {
		t.maybeScheduleStart()
		return
	}
	if t.hand.Complete {
		t.finishHand()
		return
	}
	if t.pending == nil || t.pending.seat != t.hand.CurrentPlayer || t.pending.street != t.hand.Street {
		t.promptAction()
	} else {
		t.broadcastState()
	}
}

func send(sink Sink, msg *protocol.Message) {
	if sink == nil {
		return
	}
	_ = sink.Send(msg)
}
