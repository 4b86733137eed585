package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vibestore237/live-competition/internal/notification"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/status"
	"github.com/vibestore237/live-competition/internal/types"
	"go.uber.org/zap"
)

const (
	DefaultReconnectDelay = 3 * time.Second

	DefaultPongWait = 60 * time.Second

	writeWait        = 10 * time.Second
	reconnectTimeout = 10 * time.Second
	sendBufferSize   = 256
	inboundQueueSize = 256
)

// WebSocketConfig configures the live signaling client.
type WebSocketConfig struct {
	URL            string
	Notifier       notification.Notifier
	ReconnectDelay time.Duration
	// PongWait is how long the connection may stay silent before it is
	// treated as lost. Pings are sent at 90% of it.
	PongWait time.Duration
	Dialer   *websocket.Dialer
}

// WebSocketClient はシグナリングサーバーへの WebSocket 接続を管理する。
// 異常切断時は ReconnectDelay 後に1回だけ再接続を試みる。
type WebSocketClient struct {
	url            string
	notifier       notification.Notifier
	reconnectDelay time.Duration
	pongWait       time.Duration
	dialer         *websocket.Dialer

	messages chan Inbound

	mu             sync.Mutex
	conn           *connection
	state          State
	roomID         string
	identity       types.Identity
	closed         bool
	reconnectTimer *time.Timer
}

// connection は1本の WebSocket 接続と、その送信キュー
type connection struct {
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func (c *connection) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func NewWebSocketClient(cfg WebSocketConfig) *WebSocketClient {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &WebSocketClient{
		url:            cfg.URL,
		notifier:       cfg.Notifier,
		reconnectDelay: cfg.ReconnectDelay,
		pongWait:       cfg.PongWait,
		dialer:         cfg.Dialer,
		messages:       make(chan Inbound, inboundQueueSize),
		state:          StateClosed,
	}
}

// Connect dials the server and joins roomID. On failure the returned error
// wraps ErrSignalingUnavailable and an offline notice is surfaced.
func (c *WebSocketClient) Connect(ctx context.Context, roomID string, identity types.Identity) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: client closed", ErrSignalingUnavailable)
	}
	c.roomID = roomID
	c.identity = identity
	c.mu.Unlock()

	c.setState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateClosed)
		logger.Warn("Failed to connect to signaling server",
			zap.String("url", c.url),
			zap.Error(err))
		c.notify(notification.LevelInfo, "Offline mode", "Live server unavailable. Running in simulation mode.")
		return fmt.Errorf("%w: %v", ErrSignalingUnavailable, err)
	}

	c.attach(conn)
	logger.Info("Connected to signaling server",
		zap.String("url", c.url),
		zap.String("room_id", roomID))
	return nil
}

func (c *WebSocketClient) dial(ctx context.Context) (*connection, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	return &connection{
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}, nil
}

// attach は接続を有効化してポンプを起動し、join-room を送る
func (c *WebSocketClient) attach(conn *connection) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.stop()
		return
	}
	c.conn = conn
	identity := c.identity
	roomID := c.roomID
	c.mu.Unlock()

	c.setState(StateOpen)
	go c.writePump(conn)
	go c.readPump(conn)

	c.Send(JoinRoom{
		RoomID:   roomID,
		UserID:   identity.UserID,
		UserName: identity.DisplayName,
		UserRole: identity.Role,
	})
}

// Send encodes msg and queues it. When the connection is not open the
// message is dropped with a warning.
func (c *WebSocketClient) Send(msg Outbound) {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil || state != StateOpen {
		logger.Warn("Signaling not connected, message dropped",
			zap.String("type", msg.MessageType()),
			zap.String("state", string(state)))
		return
	}

	data, err := Encode(msg)
	if err != nil {
		logger.Error("Failed to encode signaling message", zap.Error(err))
		return
	}

	select {
	case <-conn.done:
		logger.Warn("Signaling connection closing, message dropped", zap.String("type", msg.MessageType()))
	case conn.send <- data:
	default:
		// 送信バッファがフルの場合
		logger.Warn("Signaling send buffer full, message dropped", zap.String("type", msg.MessageType()))
	}
}

func (c *WebSocketClient) Messages() <-chan Inbound { return c.messages }

func (c *WebSocketClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *WebSocketClient) Simulated() bool { return false }

// Close sends a normal closure and disables reconnection.
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.stop()
	}
	c.setState(StateClosed)
	return nil
}

func (c *WebSocketClient) readPump(conn *connection) {
	// 半開きの接続は pong が途絶えた時点で切断扱いにする
	conn.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			conn.stop()
			c.handleDisconnect(conn, err)
			return
		}
		conn.ws.SetReadDeadline(time.Now().Add(c.pongWait))

		msg, err := Decode(data)
		if err != nil {
			logger.Warn("Invalid signaling message", zap.Error(err))
			continue
		}
		if unknown, ok := msg.(Unknown); ok {
			logger.Debug("Unhandled signaling message", zap.String("type", unknown.Type))
			continue
		}

		select {
		case c.messages <- msg:
		case <-conn.done:
			return
		}
	}
}

func (c *WebSocketClient) writePump(conn *connection) {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("Signaling ping error", zap.Error(err))
				conn.stop()
				return
			}
		case data := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("Signaling write error", zap.Error(err))
				conn.stop()
				return
			}
		case <-conn.done:
			return
		}
	}
}

func (c *WebSocketClient) handleDisconnect(conn *connection, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Close 済み、または古い接続
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	c.setState(StateClosed)

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		logger.Info("Signaling connection closed normally")
		return
	}

	logger.Warn("Signaling connection lost, reconnecting",
		zap.Duration("delay", c.reconnectDelay),
		zap.Error(err))

	c.mu.Lock()
	if !c.closed {
		c.reconnectTimer = time.AfterFunc(c.reconnectDelay, c.reconnect)
	}
	c.mu.Unlock()
}

// reconnect は1回だけ再接続を試みる。失敗したらオフライン通知を出して諦める。
func (c *WebSocketClient) reconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	ctx, cancel := context.WithTimeout(context.Background(), reconnectTimeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateClosed)
		logger.Warn("Signaling reconnect failed", zap.Error(err))
		c.notify(notification.LevelInfo, "Offline mode", "Lost connection to the live server.")
		return
	}

	c.attach(conn)
	logger.Info("Reconnected to signaling server", zap.String("url", c.url))
	c.notify(notification.LevelSuccess, "Reconnected", "Connection to the live server restored.")
}

func (c *WebSocketClient) setState(state State) {
	c.mu.Lock()
	if c.closed && state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()
	status.SetSignalingState(string(state), false)
}

func (c *WebSocketClient) notify(level notification.Level, title, message string) {
	if c.notifier == nil {
		return
	}
	switch level {
	case notification.LevelSuccess:
		c.notifier.Success(title, message)
	default:
		c.notifier.Info(title, message)
	}
}

// IsUnavailable reports whether err came from an unreachable signaling server.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrSignalingUnavailable)
}
