// Package matchmaker seats players onto tables by stakes pool. A pool is a
// set of interchangeable tables at one Key; joins fill existing seats before
// spinning up new tables, and fast-fold pools move a folding player to a
// fresh table in the same pool immediately.
//
// The matchmaker lock is never held across a call into a table queue: table
// hooks run on table goroutines and reach back in, so holding the lock there
// would deadlock.
package matchmaker

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/sixmax/plosrv/internal/engine"
	"github.com/sixmax/plosrv/internal/protocol"
	"github.com/sixmax/plosrv/internal/queue"
	"github.com/sixmax/plosrv/internal/randutil"
	"github.com/sixmax/plosrv/internal/table"
)

var (
	ErrClosed         = errors.New("matchmaker closed")
	ErrAlreadyPlaying = errors.New("already seated at a table")
	ErrNotPlaying     = errors.New("not seated at any table")
)

// Config controls the tables the matchmaker creates
type Config struct {
	ActionTimeout  time.Duration
	InterHandDelay time.Duration
	IdleTimeout    time.Duration
	BotFill        int

	// RakeFor resolves the rake rule per stakes; rake caps scale with the
	// big blind. Nil means no rake.
	RakeFor func(key table.Key) engine.RakeConfig

	// OnChipsReturned receives a player's stack when they leave or bust.
	OnChipsReturned func(playerID string, chips int)
}

type playerInfo struct {
	id      string
	profile table.Profile
	sink    table.Sink
	table   *table.Table
}

// Matchmaker routes players into stakes pools
type Matchmaker struct {
	cfg     Config
	clock   quartz.Clock
	logger  *log.Logger
	records protocol.RecordSink

	mu      sync.Mutex
	rng     *rand.Rand
	pools   map[table.Key][]*table.Table
	players map[string]*playerInfo
	// idle marks tables that had at most one human at the last sweep; a
	// second idle sweep tears them down.
	idle       map[string]bool
	sweepTimer *quartz.Timer
	closed     bool
}

// New creates a matchmaker and starts its idle-table sweep
func New(cfg Config, clock quartz.Clock, rng *rand.Rand, logger *log.Logger, records protocol.RecordSink) *Matchmaker {
	m := &Matchmaker{
		cfg:     cfg,
		clock:   clock,
		logger:  logger.WithPrefix("matchmaker"),
		records: records,
		rng:     rng,
		pools:   make(map[table.Key][]*table.Table),
		players: make(map[string]*playerInfo),
		idle:    make(map[string]bool),
	}
	if cfg.IdleTimeout > 0 {
		m.scheduleSweep()
	}
	return m
}

// Join seats a player in the pool for key, creating a table when none has a
// free seat. Returns the table and seat index.
func (m *Matchmaker) Join(playerID string, profile table.Profile, key table.Key, buyIn int, sink table.Sink) (*table.Table, int, error) {
	info := &playerInfo{id: playerID, profile: profile, sink: sink}
	for {
		tb, err := m.pickTable(playerID, key, "")
		if err != nil {
			return nil, -1, err
		}
		seat, err := tb.Sit(playerID, profile, buyIn, sink)
		if retryableSitError(err) {
			continue
		}
		if err != nil {
			return nil, -1, err
		}

		m.mu.Lock()
		info.table = tb
		m.players[playerID] = info
		delete(m.idle, tb.ID)
		m.mu.Unlock()

		m.logger.Info("player matched", "player", playerID, "stakes", key.String(), "seat", seat)
		return tb, seat, nil
	}
}

// Leave removes a player from their table and the matchmaker
func (m *Matchmaker) Leave(playerID string) error {
	m.mu.Lock()
	info, ok := m.players[playerID]
	if !ok {
		m.mu.Unlock()
		return ErrNotPlaying
	}
	delete(m.players, playerID)
	tb := info.table
	m.mu.Unlock()

	if tb != nil {
		return tb.Stand(playerID)
	}
	return nil
}

// FastFold folds the player's live hand and moves them to another table in
// the same pool
func (m *Matchmaker) FastFold(playerID string) error {
	m.mu.Lock()
	info, ok := m.players[playerID]
	tb := (*table.Table)(nil)
	if ok {
		tb = info.table
	}
	m.mu.Unlock()

	if tb == nil {
		return ErrNotPlaying
	}
	return tb.FastFold(playerID)
}

// TableFor returns the table a player is seated at, or nil
func (m *Matchmaker) TableFor(playerID string) *table.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.players[playerID]; ok {
		return info.table
	}
	return nil
}

// Reconnect reattaches a sink to the player's current table
func (m *Matchmaker) Reconnect(playerID string, sink table.Sink) error {
	m.mu.Lock()
	info, ok := m.players[playerID]
	var tb *table.Table
	if ok {
		info.sink = sink
		tb = info.table
	}
	m.mu.Unlock()

	if tb == nil {
		return ErrNotPlaying
	}
	return tb.Reconnect(playerID, sink)
}

// Disconnect detaches a player's sink; the seat plays on
func (m *Matchmaker) Disconnect(playerID string) {
	m.mu.Lock()
	info, ok := m.players[playerID]
	var tb *table.Table
	if ok {
		info.sink = nil
		tb = info.table
	}
	m.mu.Unlock()

	if tb != nil {
		_ = tb.Disconnect(playerID)
	}
}

// Spectate subscribes a sink to a table by id
func (m *Matchmaker) Spectate(spectatorID, tableID string, sink table.Sink) error {
	m.mu.Lock()
	var target *table.Table
	for _, tables := range m.pools {
		for _, tb := range tables {
			if tb.ID == tableID {
				target = tb
				break
			}
		}
	}
	m.mu.Unlock()

	if target == nil {
		return errors.New("no such table")
	}
	return target.AddSpectator(spectatorID, sink)
}

// Broadcast sends a message to every table, for maintenance announcements
func (m *Matchmaker) Broadcast(msg *protocol.Message) {
	m.mu.Lock()
	var tables []*table.Table
	for _, pool := range m.pools {
		tables = append(tables, pool...)
	}
	m.mu.Unlock()

	for _, tb := range tables {
		tb.Broadcast(msg)
	}
}

// Close tears down every table
func (m *Matchmaker) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.sweepTimer != nil {
		m.sweepTimer.Stop()
	}
	var tables []*table.Table
	for _, pool := range m.pools {
		tables = append(tables, pool...)
	}
	m.pools = make(map[table.Key][]*table.Table)
	m.players = make(map[string]*playerInfo)
	m.mu.Unlock()

	for _, tb := range tables {
		tb.Close()
	}
}

// pickTable chooses a pool table with an open seat, excluding one table id,
// or creates a fresh table. The caller seats the player without the lock.
func (m *Matchmaker) pickTable(playerID string, key table.Key, exclude string) (*table.Table, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if info, ok := m.players[playerID]; ok && info.table != nil {
		m.mu.Unlock()
		return nil, ErrAlreadyPlaying
	}
	var candidates []*table.Table
	for _, tb := range m.pools[key] {
		if tb.ID != exclude {
			candidates = append(candidates, tb)
		}
	}
	m.mu.Unlock()

	for _, tb := range candidates {
		if tb.SeatedCount() < engine.NumSeats {
			return tb, nil
		}
	}
	return m.newTable(key)
}

func (m *Matchmaker) newTable(key table.Key) (*table.Table, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	var rake engine.RakeConfig
	if m.cfg.RakeFor != nil {
		rake = m.cfg.RakeFor(key)
	}
	cfg := table.Config{
		Key:            key,
		ActionTimeout:  m.cfg.ActionTimeout,
		InterHandDelay: m.cfg.InterHandDelay,
		Rake:           rake,
		BotFill:        m.cfg.BotFill,
	}
	tableRNG := randutil.Child(m.rng)
	hooks := table.Hooks{
		OnStand: func(pid string, chips int) {
			go m.playerStood(pid, chips)
		},
		OnFastFold: func(pid string, chips int, k table.Key) {
			go m.reseat(pid, chips, k)
		},
	}
	tb := table.New(cfg, m.clock, tableRNG, m.logger, m.records, hooks)
	m.pools[key] = append(m.pools[key], tb)
	m.mu.Unlock()

	m.logger.Info("table created", "table", tb.ID[:8], "stakes", key.String())
	return tb, nil
}

// playerStood clears the seat mapping after a table-initiated removal
// (bust, close) or a Leave, and forwards the chips upstream.
func (m *Matchmaker) playerStood(playerID string, chips int) {
	m.mu.Lock()
	delete(m.players, playerID)
	m.mu.Unlock()
	if m.cfg.OnChipsReturned != nil {
		m.cfg.OnChipsReturned(playerID, chips)
	}
}

// reseat moves a fast-folding player onto a different table in the pool
func (m *Matchmaker) reseat(playerID string, chips int, key table.Key) {
	m.mu.Lock()
	info, ok := m.players[playerID]
	var previous string
	if ok && info.table != nil {
		previous = info.table.ID
		info.table = nil
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	for {
		tb, err := m.pickTable(playerID, key, previous)
		if err != nil {
			m.logger.Warn("fast fold reseat failed", "player", playerID, "err", err)
			if m.cfg.OnChipsReturned != nil {
				m.cfg.OnChipsReturned(playerID, chips)
			}
			m.mu.Lock()
			delete(m.players, playerID)
			m.mu.Unlock()
			return
		}
		seat, err := tb.Sit(playerID, info.profile, chips, info.sink)
		if retryableSitError(err) {
			continue
		}
		if err != nil {
			m.logger.Warn("fast fold reseat failed", "player", playerID, "err", err)
			return
		}

		m.mu.Lock()
		info.table = tb
		m.mu.Unlock()

		if info.sink != nil {
			_ = info.sink.Send(protocol.MustMessage(protocol.EventTableChange, protocol.TableChangeData{
				TableID: tb.ID,
				Seat:    seat,
			}))
		}
		m.logger.Info("fast fold reseat", "player", playerID, "table", tb.ID[:8], "seat", seat)
		return
	}
}

func (m *Matchmaker) scheduleSweep() {
	m.sweepTimer = m.clock.AfterFunc(m.cfg.IdleTimeout, func() {
		m.sweep()
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if !closed {
			m.scheduleSweep()
		}
	})
}

// sweep closes tables that have held at most one human for two consecutive
// intervals
func (m *Matchmaker) sweep() {
	m.mu.Lock()
	type entry struct {
		key table.Key
		tb  *table.Table
	}
	var all []entry
	for key, pool := range m.pools {
		for _, tb := range pool {
			all = append(all, entry{key, tb})
		}
	}
	m.mu.Unlock()

	var toClose []entry
	nextIdle := make(map[string]bool)
	for _, e := range all {
		// A table is idle with no humans at all, or with a lone occupant
		// waiting for an opponent that never came.
		if e.tb.HumanCount() > 0 && e.tb.SeatedCount() > 1 {
			continue
		}
		if m.idleMarked(e.tb.ID) {
			toClose = append(toClose, e)
		} else {
			nextIdle[e.tb.ID] = true
		}
	}

	m.mu.Lock()
	for id := range nextIdle {
		m.idle[id] = true
	}
	for _, e := range toClose {
		pool := m.pools[e.key]
		for i, tb := range pool {
			if tb.ID == e.tb.ID {
				m.pools[e.key] = append(pool[:i], pool[i+1:]...)
				break
			}
		}
		delete(m.idle, e.tb.ID)
	}
	m.mu.Unlock()

	for _, e := range toClose {
		m.logger.Info("closing idle table", "table", e.tb.ID[:8], "stakes", e.key.String())
		e.tb.Close()
	}
}

func (m *Matchmaker) idleMarked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idle[id]
}

// retryableSitError reports whether a failed Sit should fall through to the
// next candidate table. A table closed by the idle sweep surfaces as a
// closed queue when the race lands the other way.
func retryableSitError(err error) bool {
	return errors.Is(err, table.ErrTableFull) ||
		errors.Is(err, table.ErrTableClosed) ||
		errors.Is(err, queue.ErrClosed)
}
