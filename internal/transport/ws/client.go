package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/app"
	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Size of the send channel buffer
	sendBufferSize = 256
)

// Client represents a WebSocket client connection. A client starts outside
// any room and is bound to one by createRoom or joinRoom.
type Client struct {
	conn         *websocket.Conn
	hub          *app.GameHub
	session      *app.RoomSession // only touched from the read pump
	connectionID string
	limiter      *rate.Limiter
	send         chan []byte
	done         chan struct{}
	logger       *slog.Logger
	mu           sync.Mutex
	closed       bool
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *app.GameHub, connectionID string, limiter *rate.Limiter, logger *slog.Logger) *Client {
	return &Client{
		conn:         conn,
		hub:          hub,
		connectionID: connectionID,
		limiter:      limiter,
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
		logger:       logger.With("connectionID", connectionID),
	}
}

// GetConnectionID returns the connection ID for this client
func (c *Client) GetConnectionID() string {
	return c.connectionID
}

// Send implements app.ClientConnection interface
func (c *Client) Send(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer full, message dropped
		c.logger.Warn("send buffer full, message dropped")
		return nil
	}
}

// Close implements app.ClientConnection interface. The write pump flushes
// pending messages and then closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)
	return nil
}

// Run starts the client's read and write pumps
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump pumps messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		if c.session != nil {
			c.session.Disconnect(c.connectionID)
		}
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Flush what the room queued before it closed us
			c.drain()
			return
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(message []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

func (c *Client) drain() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		default:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleMessage processes an incoming message from the client
func (c *Client) handleMessage(data []byte) {
	if !c.limiter.Allow() {
		c.sendError(ErrCodeRateLimited, "Too many messages, slow down")
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(ErrCodeInvalidMessage, "Invalid message format")
		return
	}

	switch msg.Type {
	case MsgCreateRoom:
		c.handleCreateRoom(msg.Payload)
	case MsgJoinRoom:
		c.handleJoinRoom(msg.Payload)
	case MsgPing:
		c.sendPong()
	default:
		if c.session == nil {
			c.sendError(ErrCodeNotInRoom, "Join a room first")
			return
		}
		c.handleRoomMessage(msg)
	}
}

// handleCreateRoom handles a createRoom message
func (c *Client) handleCreateRoom(raw json.RawMessage) {
	if c.session != nil {
		c.sendError(ErrCodeAlreadyInRoom, "Leave your current room first")
		return
	}

	var payload NamePayload
	if !c.decode(raw, &payload) {
		return
	}

	session, _, err := c.hub.CreateRoom(c, payload.Name)
	if err != nil {
		c.reportError(err)
		return
	}
	c.session = session
}

// handleJoinRoom handles a joinRoom message
func (c *Client) handleJoinRoom(raw json.RawMessage) {
	if c.session != nil {
		c.sendError(ErrCodeAlreadyInRoom, "Leave your current room first")
		return
	}

	var payload JoinRoomPayload
	if !c.decode(raw, &payload) {
		return
	}
	if payload.RoomCode == "" {
		c.sendError(ErrCodeInvalidMessage, "Room code is required")
		return
	}

	session, _, err := c.hub.JoinRoom(c, payload.RoomCode, payload.Name)
	if err != nil {
		c.reportError(err)
		return
	}
	c.session = session
}

// handleRoomMessage dispatches a message that acts on the client's room
func (c *Client) handleRoomMessage(msg ClientMessage) {
	session := c.session
	id := c.connectionID

	var err error
	switch msg.Type {
	case MsgLeaveRoom, MsgLeaveGame:
		if err = session.Leave(id); err == nil {
			c.session = nil
			c.Send(NewServerMessage(MsgPlayerLeft, &domain.MessagePayload{Message: "You left the room"}))
		}
	case MsgStartGame:
		err = session.StartGame(id)
	case MsgPlayStandardCard:
		var payload CardPayload
		if !c.decode(msg.Payload, &payload) {
			return
		}
		err = session.PlayStandardCard(id, payload.Label)
	case MsgWildCardSelected:
		var payload CardPayload
		if !c.decode(msg.Payload, &payload) {
			return
		}
		err = session.SelectWildCard(id, payload.Label)
	case MsgWildCardConfirmed:
		var payload WildConfirmPayload
		if !c.decode(msg.Payload, &payload) {
			return
		}
		err = session.ConfirmWildCard(id, payload.Label, payload.Player)
	case MsgEveryoneDrinks:
		err = session.EveryoneDrinks(id)
	case MsgAssignDrinks:
		var payload AssignDrinksPayload
		if !c.decode(msg.Payload, &payload) {
			return
		}
		err = session.AssignDrinks(id, payload.Grants())
	case MsgNextQuarter:
		err = session.NextQuarter(id)
	case MsgWildCardSwap:
		var payload CardPayload
		if !c.decode(msg.Payload, &payload) {
			return
		}
		err = session.SwapWildCard(id, payload.Label)
	case MsgAssignNewHost:
		var payload NewHostPayload
		if !c.decode(msg.Payload, &payload) {
			return
		}
		err = session.AssignNewHost(id, payload.NewHostID)
	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
		c.sendError(ErrCodeInvalidMessage, "Unknown message type")
		return
	}

	if err != nil {
		c.reportError(err)
	}
}

// decode unmarshals a payload, telling the client when it is malformed
func (c *Client) decode(raw json.RawMessage, v interface{}) bool {
	if len(raw) == 0 {
		c.sendError(ErrCodeInvalidMessage, "Payload is required")
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.sendError(ErrCodeInvalidMessage, "Invalid payload")
		return false
	}
	return true
}

// reportError tells only this client why its request was rejected
func (c *Client) reportError(err error) {
	if errors.Is(err, domain.ErrActionInProgress) {
		c.Send(NewServerMessage(MsgActionInProgress, &domain.MessagePayload{
			Message: "Another round is in progress, wait for it to finish",
		}))
		return
	}

	code := ErrorCode(err)
	if code == ErrCodeInternalError {
		c.logger.Warn("request failed", "error", err)
	}
	c.sendError(code, err.Error())
}

// sendError sends an error message to the client
func (c *Client) sendError(code, message string) {
	payload := &domain.ErrorPayload{
		Code:    code,
		Message: message,
	}

	msg := NewServerMessage(MsgError, payload)
	c.Send(msg)
}

// sendPong sends a pong message in response to ping
func (c *Client) sendPong() {
	msg := NewServerMessage(MsgPong, nil)
	c.Send(msg)
}
