package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixmax/plosrv/internal/protocol"
	"github.com/sixmax/plosrv/internal/randutil"
)

func newTestServer(t *testing.T, mutate ...func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Game.InterHandDelayMs = 50
	for _, f := range mutate {
		f(cfg)
	}
	srv := New(cfg, log.New(io.Discard), quartz.NewReal(), randutil.New(1), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.mm.Close()
	})
	return srv, ts
}

func dialWS(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readUntil reads messages until one of the wanted type arrives
func readUntil(t *testing.T, ws *websocket.Conn, want protocol.EventType) *protocol.Message {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
		var msg protocol.Message
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("reading for %s: %v", want, err)
		}
		if msg.Type == want {
			return &msg
		}
	}
	t.Fatalf("never received %s", want)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ok")
}

func TestConnectEstablishesIdentity(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialWS(t, ts, "")

	msg := readUntil(t, ws, protocol.EventConnectionEstablished)
	var data protocol.ConnectionEstablishedData
	require.NoError(t, msg.DecodeData(&data))
	assert.NotEmpty(t, data.PlayerID)
}

func TestMatchmakingJoinSeatsPlayer(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialWS(t, ts, "")
	readUntil(t, ws, protocol.EventConnectionEstablished)

	join := protocol.MustMessage(protocol.EventMatchmakingJoin, protocol.MatchmakingJoinData{
		Blinds: "1/2",
		Name:   "alice",
		BuyIn:  200,
	})
	require.NoError(t, ws.WriteJSON(join))

	msg := readUntil(t, ws, protocol.EventTableJoined)
	var joined protocol.TableJoinedData
	require.NoError(t, msg.DecodeData(&joined))
	assert.NotEmpty(t, joined.TableID)
	assert.GreaterOrEqual(t, joined.Seat, 0)
}

func TestJoinUnknownStakesRejected(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dialWS(t, ts, "")
	readUntil(t, ws, protocol.EventConnectionEstablished)

	join := protocol.MustMessage(protocol.EventMatchmakingJoin, protocol.MatchmakingJoinData{
		Blinds: "3/7",
	})
	require.NoError(t, ws.WriteJSON(join))

	msg := readUntil(t, ws, protocol.EventConnectionError)
	var errData protocol.ErrorData
	require.NoError(t, msg.DecodeData(&errData))
	assert.Contains(t, errData.Message, "3/7")
}

func TestTwoPlayersGetDealtAHand(t *testing.T) {
	_, ts := newTestServer(t)

	var conns []*websocket.Conn
	for _, name := range []string{"alice", "bob"} {
		ws := dialWS(t, ts, "")
		readUntil(t, ws, protocol.EventConnectionEstablished)
		join := protocol.MustMessage(protocol.EventMatchmakingJoin, protocol.MatchmakingJoinData{
			Blinds: "1/2",
			Name:   name,
		})
		require.NoError(t, ws.WriteJSON(join))
		readUntil(t, ws, protocol.EventTableJoined)
		conns = append(conns, ws)
	}

	for _, ws := range conns {
		msg := readUntil(t, ws, protocol.EventGameHoleCards)
		var cards protocol.GameHoleCardsData
		require.NoError(t, msg.DecodeData(&cards))
		assert.Len(t, cards.Cards, 4)
	}
}

func TestReconnectResumesSeat(t *testing.T) {
	_, ts := newTestServer(t)

	ws := dialWS(t, ts, "")
	est := readUntil(t, ws, protocol.EventConnectionEstablished)
	var id protocol.ConnectionEstablishedData
	require.NoError(t, est.DecodeData(&id))

	join := protocol.MustMessage(protocol.EventMatchmakingJoin, protocol.MatchmakingJoinData{
		Blinds: "1/2",
		Name:   "alice",
	})
	require.NoError(t, ws.WriteJSON(join))
	readUntil(t, ws, protocol.EventTableJoined)
	_ = ws.Close()

	back := dialWS(t, ts, "?player="+id.PlayerID)
	msg := readUntil(t, back, protocol.EventTableJoined)
	var joined protocol.TableJoinedData
	require.NoError(t, msg.DecodeData(&joined))
	assert.NotEmpty(t, joined.TableID)
}

func TestMaintenanceBroadcast(t *testing.T) {
	srv, ts := newTestServer(t)
	ws := dialWS(t, ts, "")
	readUntil(t, ws, protocol.EventConnectionEstablished)

	srv.SetMaintenance(true, "back in five")

	msg := readUntil(t, ws, protocol.EventMaintenanceStatus)
	var status protocol.MaintenanceStatusData
	require.NoError(t, msg.DecodeData(&status))
	assert.True(t, status.IsActive)
	assert.Equal(t, "back in five", status.Message)

	// New connections learn about maintenance on arrival.
	late := dialWS(t, ts, "")
	readUntil(t, late, protocol.EventMaintenanceStatus)
}
