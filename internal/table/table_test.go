package table

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixmax/plosrv/internal/engine"
	"github.com/sixmax/plosrv/internal/protocol"
	"github.com/sixmax/plosrv/internal/randutil"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (s *recordingSink) Send(m *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *recordingSink) typed(t protocol.EventType) []*protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*protocol.Message
	for _, m := range s.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSink) count(t protocol.EventType) int {
	return len(s.typed(t))
}

func (s *recordingSink) last(t protocol.EventType) *protocol.Message {
	msgs := s.typed(t)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

type recordingRecords struct {
	mu      sync.Mutex
	records []protocol.HandRecord
}

func (r *recordingRecords) RecordHand(rec protocol.HandRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func testConfig() Config {
	return Config{
		Key:            Key{SmallBlind: 1, BigBlind: 2},
		ActionTimeout:  15 * time.Second,
		InterHandDelay: 100 * time.Millisecond,
	}
}

func newTestTable(t *testing.T, cfg Config, records protocol.RecordSink, hooks Hooks) (*Table, *quartz.Mock) {
	t.Helper()
	mock := quartz.NewMock(t)
	tb := New(cfg, mock, randutil.New(42), log.New(io.Discard), records, hooks)
	t.Cleanup(tb.Close)
	return tb, mock
}

// flush waits for every task enqueued so far to finish
func flush(tb *Table) {
	_ = tb.q.Do(func() error { return nil })
}

func advance(t *testing.T, mock *quartz.Mock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mock.Advance(d).MustWait(ctx)
}

// startHeadsUp seats two players and runs the inter-hand delay so the first
// hand is live. Seat 0 is the button/small blind and acts first.
func startHeadsUp(t *testing.T, tb *Table, mock *quartz.Mock) (*recordingSink, *recordingSink) {
	t.Helper()
	s0, s1 := &recordingSink{}, &recordingSink{}
	_, err := tb.Sit("p0", Profile{Name: "alice"}, 200, s0)
	require.NoError(t, err)
	_, err = tb.Sit("p1", Profile{Name: "bob"}, 200, s1)
	require.NoError(t, err)
	advance(t, mock, tb.cfg.InterHandDelay)
	flush(tb)
	return s0, s1
}

func inspect(tb *Table, f func()) {
	_ = tb.q.Do(func() error {
		f()
		return nil
	})
}

func TestHandStartsAfterTwoSit(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	s0, s1 := startHeadsUp(t, tb, mock)

	var hole0 protocol.GameHoleCardsData
	require.NotNil(t, s0.last(protocol.EventGameHoleCards))
	require.NoError(t, s0.last(protocol.EventGameHoleCards).DecodeData(&hole0))
	assert.Len(t, hole0.Cards, 4)
	require.NotNil(t, s1.last(protocol.EventGameHoleCards))

	// Heads-up the small blind opens.
	assert.Equal(t, 1, s0.count(protocol.EventGameActionRequired))
	assert.Equal(t, 0, s1.count(protocol.EventGameActionRequired))

	var state protocol.GameStateData
	require.NoError(t, s1.last(protocol.EventGameState).DecodeData(&state))
	assert.True(t, state.State.IsHandInProgress)
	assert.Equal(t, 0, state.State.CurrentPlayerSeat)
	for _, seat := range state.State.Seats {
		if seat.SeatIndex != 1 {
			assert.Empty(t, seat.HoleCards)
		}
	}
}

func TestTimeoutFoldsWhenFacingBet(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	s0, s1 := startHeadsUp(t, tb, mock)

	advance(t, mock, tb.cfg.ActionTimeout)
	flush(tb)

	var taken protocol.GameActionTakenData
	require.NotNil(t, s1.last(protocol.EventGameActionTaken))
	require.NoError(t, s1.last(protocol.EventGameActionTaken).DecodeData(&taken))
	assert.Equal(t, engine.Fold, taken.Action)
	assert.Equal(t, "p0", taken.PlayerID)

	var done protocol.GameHandCompleteData
	require.NotNil(t, s0.last(protocol.EventGameHandComplete))
	require.NoError(t, s0.last(protocol.EventGameHandComplete).DecodeData(&done))
	require.Len(t, done.Winners, 1)
	assert.Equal(t, "p1", done.Winners[0].PlayerID)
	assert.Equal(t, 3, done.Winners[0].Amount)
}

func TestTimeoutChecksWhenNothingToCall(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	_, s1 := startHeadsUp(t, tb, mock)

	require.NoError(t, tb.SubmitAction("p0", engine.Call, 1))
	advance(t, mock, tb.cfg.ActionTimeout)
	flush(tb)

	var taken protocol.GameActionTakenData
	require.NoError(t, s1.last(protocol.EventGameActionTaken).DecodeData(&taken))
	assert.Equal(t, engine.Check, taken.Action)
	assert.Equal(t, "p1", taken.PlayerID)

	inspect(tb, func() {
		assert.True(t, tb.inProgress)
		assert.Equal(t, engine.Flop, tb.hand.Street)
	})
}

func TestOutOfTurnActionRejectedWithoutMutation(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	s0, s1 := startHeadsUp(t, tb, mock)

	require.NoError(t, tb.SubmitAction("p1", engine.Call, 1))

	require.NotNil(t, s1.last(protocol.EventTableError))
	assert.Equal(t, 0, s0.count(protocol.EventGameActionTaken))
	inspect(tb, func() {
		assert.Equal(t, 0, tb.hand.CurrentPlayer)
		assert.Equal(t, engine.Preflop, tb.hand.Street)
	})
}

func TestActionBeatsItsOwnTimeout(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	s0, _ := startHeadsUp(t, tb, mock)

	require.NoError(t, tb.SubmitAction("p0", engine.Call, 1))
	advance(t, mock, tb.cfg.ActionTimeout)
	flush(tb)

	// One action for p0; the stale timer must not add a fold on top.
	actions := 0
	for _, m := range s0.typed(protocol.EventGameActionTaken) {
		var taken protocol.GameActionTakenData
		require.NoError(t, m.DecodeData(&taken))
		if taken.PlayerID == "p0" {
			actions++
			assert.Equal(t, engine.Call, taken.Action)
		}
	}
	assert.Equal(t, 1, actions)
}

func TestDisconnectedSeatPlaysOnByTimeout(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	_, s1 := startHeadsUp(t, tb, mock)

	require.NoError(t, tb.Disconnect("p0"))
	advance(t, mock, tb.cfg.ActionTimeout)
	flush(tb)

	var taken protocol.GameActionTakenData
	require.NoError(t, s1.last(protocol.EventGameActionTaken).DecodeData(&taken))
	assert.Equal(t, engine.Fold, taken.Action)
	assert.Equal(t, "p0", taken.PlayerID)
}

func TestReconnectResendsView(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	startHeadsUp(t, tb, mock)

	require.NoError(t, tb.Disconnect("p0"))
	fresh := &recordingSink{}
	require.NoError(t, tb.Reconnect("p0", fresh))

	assert.Equal(t, 1, fresh.count(protocol.EventTableJoined))
	assert.Equal(t, 1, fresh.count(protocol.EventGameState))
	assert.Equal(t, 1, fresh.count(protocol.EventGameHoleCards))

	var req protocol.GameActionRequiredData
	require.NotNil(t, fresh.last(protocol.EventGameActionRequired))
	require.NoError(t, fresh.last(protocol.EventGameActionRequired).DecodeData(&req))
	assert.Equal(t, "p0", req.PlayerID)
	assert.Greater(t, req.TimeoutMs, 0)
}

func TestMidHandSitWaitsForNextHand(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	startHeadsUp(t, tb, mock)

	s2 := &recordingSink{}
	seat, err := tb.Sit("p2", Profile{Name: "carol"}, 200, s2)
	require.NoError(t, err)
	assert.Equal(t, 0, s2.count(protocol.EventGameHoleCards))

	inspect(tb, func() {
		assert.Nil(t, tb.hand.Players[seat])
		assert.True(t, tb.seats[seat].WaitingForNextHand)
	})

	// Finish the hand by timeout fold, then run the inter-hand delay.
	advance(t, mock, tb.cfg.ActionTimeout)
	flush(tb)
	advance(t, mock, tb.cfg.InterHandDelay)
	flush(tb)

	assert.Equal(t, 1, s2.count(protocol.EventGameHoleCards))
	inspect(tb, func() {
		require.NotNil(t, tb.hand.Players[seat])
		assert.Equal(t, "p2", tb.hand.Players[seat].ID)
	})
}

func TestStandMidHandFoldsAndReturnsChips(t *testing.T) {
	returned := make(map[string]int)
	hooks := Hooks{OnStand: func(pid string, chips int) { returned[pid] = chips }}
	tb, mock := newTestTable(t, testConfig(), nil, hooks)
	_, s1 := startHeadsUp(t, tb, mock)

	require.NoError(t, tb.Stand("p0"))

	// Small blind already in the pot stays behind.
	assert.Equal(t, 199, returned["p0"])
	var done protocol.GameHandCompleteData
	require.NoError(t, s1.last(protocol.EventGameHandComplete).DecodeData(&done))
	require.Len(t, done.Winners, 1)
	assert.Equal(t, "p1", done.Winners[0].PlayerID)

	require.NotNil(t, s1.last(protocol.EventTablePlayerLeft))
	assert.Equal(t, 1, tb.SeatedCount())
}

func TestFastFoldRules(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	startHeadsUp(t, tb, mock)
	assert.ErrorIs(t, tb.FastFold("p0"), ErrFastFoldDisabled)

	cfg := testConfig()
	cfg.Key.FastFold = true
	var ffPlayer string
	var ffChips int
	hooks := Hooks{OnFastFold: func(pid string, chips int, key Key) {
		ffPlayer, ffChips = pid, chips
	}}
	ff, ffMock := newTestTable(t, cfg, nil, hooks)
	_, s1 := startHeadsUp(t, ff, ffMock)

	// Voluntary action forfeits the fast fold.
	require.NoError(t, ff.SubmitAction("p0", engine.Call, 1))
	assert.ErrorIs(t, ff.FastFold("p0"), ErrActionCommitted)

	// The big blind has only posted, so it may still leave.
	require.NoError(t, ff.FastFold("p1"))
	assert.Equal(t, "p1", ffPlayer)
	assert.Equal(t, 198, ffChips)

	var done protocol.GameHandCompleteData
	require.NoError(t, s1.last(protocol.EventGameHandComplete).DecodeData(&done))
	require.Len(t, done.Winners, 1)
	assert.Equal(t, "p0", done.Winners[0].PlayerID)
}

func TestChipConservationViolationAbortsHand(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	s0, s1 := startHeadsUp(t, tb, mock)

	inspect(tb, func() {
		tb.hand.Players[1].Chips += 50
	})
	require.NoError(t, tb.SubmitAction("p0", engine.Call, 1))

	require.NotNil(t, s0.last(protocol.EventTableError))
	require.NotNil(t, s1.last(protocol.EventTableError))
	assert.Equal(t, 0, s0.count(protocol.EventGameHandComplete))
	inspect(tb, func() {
		assert.False(t, tb.inProgress)
		assert.Equal(t, 0, tb.hand.Pot)
		// Stacks back to the hand-start snapshot, corruption discarded.
		assert.Equal(t, 200, tb.hand.Players[0].Chips)
		assert.Equal(t, 200, tb.hand.Players[1].Chips)
	})
}

func TestAbortAfterShowdownRestoresStartingStacks(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	s0, _ := startHeadsUp(t, tb, mock)

	// Corrupt the state between the all-in and the call so the conservation
	// check first fires on the action that completes the hand, after the
	// showdown has already paid the pot out.
	require.NoError(t, tb.SubmitAction("p0", engine.AllIn, 0))
	inspect(tb, func() {
		tb.hand.Players[0].Chips += 25
	})
	require.NoError(t, tb.SubmitAction("p1", engine.Call, 0))

	require.NotNil(t, s0.last(protocol.EventTableError))
	assert.Equal(t, 0, s0.count(protocol.EventGameHandComplete))
	inspect(tb, func() {
		assert.False(t, tb.inProgress)
		assert.Zero(t, tb.hand.Pot)
		assert.Zero(t, tb.hand.Rake)
		assert.Equal(t, 200, tb.hand.Players[0].Chips)
		assert.Equal(t, 200, tb.hand.Players[1].Chips)
	})
}

func TestConcurrentSubmissionsExactlyOneApplies(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	s0, _ := startHeadsUp(t, tb, mock)

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = tb.SubmitAction("p0", engine.Call, 0)
		}()
	}
	wg.Wait()
	flush(tb)

	assert.Equal(t, 1, s0.count(protocol.EventGameActionTaken), "one submission wins")
	assert.Equal(t, n-1, s0.count(protocol.EventTableError), "the rest are rejected")
	inspect(tb, func() {
		assert.Equal(t, 1, tb.hand.CurrentPlayer, "action passed to the big blind")
	})
}

func TestAllInShowdownBustsLoser(t *testing.T) {
	cfg := testConfig()
	records := &recordingRecords{}
	tb, mock := newTestTable(t, cfg, records, Hooks{})

	s0, s1 := &recordingSink{}, &recordingSink{}
	_, err := tb.Sit("p0", Profile{Name: "alice"}, 30, s0)
	require.NoError(t, err)
	_, err = tb.Sit("p1", Profile{Name: "bob"}, 100, s1)
	require.NoError(t, err)
	advance(t, mock, cfg.InterHandDelay)
	flush(tb)

	require.NoError(t, tb.SubmitAction("p0", engine.AllIn, 29))
	require.NoError(t, tb.SubmitAction("p1", engine.Call, 28))
	flush(tb)

	require.Equal(t, 1, s1.count(protocol.EventGameShowdown))
	require.Len(t, records.records, 1)
	rec := records.records[0]
	assert.Len(t, rec.Board, 5)
	assert.NotEmpty(t, rec.Winners)
	assert.NotNil(t, rec.AllInEV, "all-in before the river must carry EV")

	// Either the short stack doubled and both remain, or the loser busted
	// and left. Seated chips are conserved either way.
	total := 0
	zeroStacks := 0
	inspect(tb, func() {
		for _, p := range tb.hand.Players {
			if p == nil {
				continue
			}
			total += p.Chips
			if p.Chips == 0 {
				zeroStacks++
			}
		}
	})
	assert.Equal(t, 0, zeroStacks, "busted seats must be removed")
	assert.Equal(t, 130, total)
}

func TestHandRecordProfitsSumToZeroWithoutRake(t *testing.T) {
	records := &recordingRecords{}
	tb, mock := newTestTable(t, testConfig(), records, Hooks{})
	startHeadsUp(t, tb, mock)

	advance(t, mock, tb.cfg.ActionTimeout)
	flush(tb)

	require.Len(t, records.records, 1)
	rec := records.records[0]
	assert.Equal(t, 1, rec.SmallBlind)
	assert.Equal(t, 2, rec.BigBlind)
	assert.NotEmpty(t, rec.History)
	sum := 0
	for _, s := range rec.Seats {
		sum += s.Profit
	}
	assert.Equal(t, -rec.Rake, sum)
}

func TestBotsFillAndFinishHands(t *testing.T) {
	cfg := testConfig()
	cfg.BotFill = 3
	records := &recordingRecords{}
	tb, mock := newTestTable(t, cfg, records, Hooks{})

	s0 := &recordingSink{}
	_, err := tb.Sit("p0", Profile{Name: "alice"}, 200, s0)
	require.NoError(t, err)
	advance(t, mock, cfg.InterHandDelay)
	flush(tb)

	assert.Equal(t, 3, tb.SeatedCount())
	assert.Equal(t, 1, tb.HumanCount())

	// Let the human time out and the bots play the hand down. Bot actions
	// run on the queue without the clock, one per flush.
	for i := 0; i < 100; i++ {
		flush(tb)
		records.mu.Lock()
		n := len(records.records)
		records.mu.Unlock()
		if n > 0 {
			break
		}
		advance(t, mock, cfg.ActionTimeout)
	}
	records.mu.Lock()
	defer records.mu.Unlock()
	require.NotEmpty(t, records.records, "bot hand never finished")
}

func TestSpectatorSeesStateButStreamsAllCards(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	spec := &recordingSink{}
	require.NoError(t, tb.AddSpectator("watcher", spec))
	startHeadsUp(t, tb, mock)

	assert.Equal(t, 1, spec.count(protocol.EventTableSpectating))
	assert.GreaterOrEqual(t, spec.count(protocol.EventGameState), 1)
	require.Equal(t, 1, spec.count(protocol.EventGameAllHoleCards))

	var state protocol.GameStateData
	require.NoError(t, spec.last(protocol.EventGameState).DecodeData(&state))
	for _, seat := range state.State.Seats {
		assert.Empty(t, seat.HoleCards)
	}
}

func TestMaskedNamesHiddenFromOthers(t *testing.T) {
	tb, mock := newTestTable(t, testConfig(), nil, Hooks{})
	s0, s1 := &recordingSink{}, &recordingSink{}
	_, err := tb.Sit("p0", Profile{Name: "alice", Avatar: "cat.png", NameMasked: true}, 200, s0)
	require.NoError(t, err)
	_, err = tb.Sit("p1", Profile{Name: "bob"}, 200, s1)
	require.NoError(t, err)
	advance(t, mock, tb.cfg.InterHandDelay)
	flush(tb)

	var state protocol.GameStateData
	require.NoError(t, s1.last(protocol.EventGameState).DecodeData(&state))
	for _, seat := range state.State.Seats {
		if seat.SeatIndex == 0 {
			assert.Equal(t, "Player 1", seat.Name)
			assert.Empty(t, seat.Avatar)
		}
	}
	require.NoError(t, s0.last(protocol.EventGameState).DecodeData(&state))
	for _, seat := range state.State.Seats {
		if seat.SeatIndex == 0 {
			assert.Equal(t, "alice", seat.Name)
			assert.Equal(t, "cat.png", seat.Avatar)
		}
	}
}
