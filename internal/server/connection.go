package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/sixmax/plosrv/internal/engine"
	"github.com/sixmax/plosrv/internal/matchmaker"
	"github.com/sixmax/plosrv/internal/protocol"
	"github.com/sixmax/plosrv/internal/table"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	sendBuffer = 256
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection wraps one WebSocket client. It implements table.Sink, so table
// broadcasts land directly in its send buffer.
type Connection struct {
	conn     *websocket.Conn
	send     chan *protocol.Message
	playerID string
	server   *Server
	logger   *log.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConnection(ws *websocket.Conn, playerID string, server *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:     ws,
		send:     make(chan *protocol.Message, sendBuffer),
		playerID: playerID,
		server:   server,
		logger:   logger.WithPrefix("conn").With("player", playerID[:8]),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Connection) start() {
	go c.writePump()
	go c.readPump()
}

// Close shuts the connection down once
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// Send queues a message for the client. A full buffer closes the connection:
// a client that cannot keep up with game state is better off reconnecting.
func (c *Connection) Send(msg *protocol.Message) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

func (c *Connection) readPump() {
	defer func() {
		_ = c.Close()
		c.server.dropConnection(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "err", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("write failed", "err", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) handleMessage(msg *protocol.Message) {
	c.logger.Debug("received message", "type", msg.Type)

	switch msg.Type {
	case protocol.EventMatchmakingJoin:
		var data protocol.MatchmakingJoinData
		if err := msg.DecodeData(&data); err != nil {
			c.sendError("failed to parse matchmaking join data")
			return
		}
		c.handleJoin(data)

	case protocol.EventMatchmakingLeave, protocol.EventTableLeave:
		if err := c.server.mm.Leave(c.playerID); err != nil && !errors.Is(err, matchmaker.ErrNotPlaying) {
			c.sendError(err.Error())
		}

	case protocol.EventGameAction:
		var data protocol.GameActionData
		if err := msg.DecodeData(&data); err != nil {
			c.sendError("failed to parse game action data")
			return
		}
		c.handleAction(data)

	case protocol.EventTableSpectate:
		var data protocol.TableSpectateData
		if err := msg.DecodeData(&data); err != nil {
			c.sendError("failed to parse spectate data")
			return
		}
		if err := c.server.mm.Spectate(c.playerID, data.TableID, c); err != nil {
			c.sendError(err.Error())
		}

	default:
		c.sendError("unknown message type: " + string(msg.Type))
	}
}

func (c *Connection) handleJoin(data protocol.MatchmakingJoinData) {
	stakes, err := c.server.cfg.StakesFor(data.Blinds, data.FastFold)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	buyIn := data.BuyIn
	if buyIn == 0 {
		buyIn = stakes.BigBlind * 100
	}
	if buyIn < stakes.BuyInMin && stakes.BuyInMin > 0 || stakes.BuyInMax > 0 && buyIn > stakes.BuyInMax {
		c.sendError("buy-in outside table limits")
		return
	}
	name := data.Name
	if name == "" {
		name = "anon-" + c.playerID[:8]
	}

	profile := table.Profile{Name: name, Avatar: data.Avatar, NameMasked: data.NameMasked}
	_, _, err = c.server.mm.Join(c.playerID, profile, stakes.Key(), buyIn, c)
	if err != nil {
		c.sendError(err.Error())
	}
}

func (c *Connection) handleAction(data protocol.GameActionData) {
	tb := c.server.mm.TableFor(c.playerID)
	if tb == nil {
		c.sendError("not seated at a table")
		return
	}

	// At fast-fold stakes a fold is a request to move on; falling back to a
	// normal fold when the player has already put chips in voluntarily.
	if tb.Key().FastFold && data.Action == engine.Fold {
		err := c.server.mm.FastFold(c.playerID)
		if err == nil {
			return
		}
		if !errors.Is(err, table.ErrActionCommitted) {
			c.sendError(err.Error())
			return
		}
	}

	if err := tb.SubmitAction(c.playerID, data.Action, data.Amount); err != nil {
		c.sendError(err.Error())
	}
}

func (c *Connection) sendError(message string) {
	_ = c.Send(protocol.MustMessage(protocol.EventConnectionError, protocol.ErrorData{Message: message}))
}
