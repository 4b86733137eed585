package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/signaling"
	"github.com/vibestore237/live-competition/internal/types"
	"go.uber.org/zap"
)

const (
	relayWriteWait  = 10 * time.Second
	relaySendBuffer = 64
)

var relayUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 開発用なので全てのオリジンを許可
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// member はルームに参加中の1接続
type member struct {
	clientID     string
	conn         *websocket.Conn
	send         chan []byte
	userID       string
	userName     string
	role         types.Role
	roomID       string
	broadcasting bool

	sendMu sync.Mutex
	closed bool
}

// Relay is a minimal signaling server: it tracks room membership and forwards
// broadcast, participant and WebRTC messages between members.
type Relay struct {
	mu    sync.Mutex
	rooms map[string]map[string]*member
}

func NewRelay() *Relay {
	return &Relay{rooms: make(map[string]map[string]*member)}
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := relayUpgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		clientID = fmt.Sprintf("client-%d", time.Now().UnixNano())
	}
	m := &member{clientID: clientID, conn: conn, send: make(chan []byte, relaySendBuffer)}

	go m.writePump()
	m.deliver("connection-established", signaling.ConnectionEstablished{ClientID: clientID})
	r.readPump(m)
}

func (r *Relay) readPump(m *member) {
	defer func() {
		r.leave(m)
		m.close()
	}()

	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Relay read error", zap.String("client_id", m.clientID), zap.Error(err))
			}
			return
		}
		if err := r.handle(m, data); err != nil {
			logger.Warn("Rejected relay message", zap.String("client_id", m.clientID), zap.Error(err))
			m.deliver("error", signaling.ServerError{Message: err.Error()})
		}
	}
}

func (r *Relay) handle(m *member, data []byte) error {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	switch envelope.Type {
	case "join-room":
		var msg signaling.JoinRoom
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		return r.join(m, msg)
	case "heartbeat":
		var msg signaling.Heartbeat
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		m.deliver("heartbeat-response", signaling.HeartbeatResponse{Timestamp: msg.Timestamp})
		return nil
	}

	if r.room(m) == "" {
		return fmt.Errorf("%s sent before join-room", envelope.Type)
	}

	switch envelope.Type {
	case "start-broadcasting", "stop-broadcasting":
		started := envelope.Type == "start-broadcasting"
		r.mu.Lock()
		m.broadcasting = started
		r.mu.Unlock()

		if started {
			r.fanOut(m, "broadcasting-started", signaling.BroadcastingStarted{UserID: m.userID, UserName: m.userName, UserRole: m.role})
		} else {
			r.fanOut(m, "broadcasting-stopped", signaling.BroadcastingStopped{UserID: m.userID, UserName: m.userName, UserRole: m.role})
		}
	case "participant-change":
		var msg signaling.ParticipantChange
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		r.fanOut(m, "participant-changed", signaling.ParticipantChanged{
			NewPerformerID:   msg.NewPerformerID,
			NewPerformerName: msg.NewPerformerName,
		})
	case "user-speaking":
		var msg signaling.Speaking
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		r.fanOut(m, "user-speaking", signaling.UserSpeaking{UserID: m.userID, UserRole: m.role, Volume: msg.Volume})
	case "webrtc-offer":
		var msg signaling.Offer
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		return r.forward(m, msg.TargetUserID, envelope.Type, signaling.RemoteOffer{FromUserID: m.userID, Offer: msg.Offer})
	case "webrtc-answer":
		var msg signaling.Answer
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		return r.forward(m, msg.TargetUserID, envelope.Type, signaling.RemoteAnswer{FromUserID: m.userID, Answer: msg.Answer})
	case "webrtc-ice-candidate":
		var msg signaling.ICECandidate
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		return r.forward(m, msg.TargetUserID, envelope.Type, signaling.RemoteICECandidate{FromUserID: m.userID, Candidate: msg.Candidate})
	default:
		return fmt.Errorf("unknown message type %q", envelope.Type)
	}
	return nil
}

// join は m をルームに登録し、参加者一覧を返して他の参加者に通知する
func (r *Relay) join(m *member, msg signaling.JoinRoom) error {
	if msg.RoomID == "" || msg.UserID == "" {
		return fmt.Errorf("join-room requires roomId and userId")
	}

	r.mu.Lock()
	if m.roomID != "" {
		r.removeLocked(m)
	}
	m.roomID = msg.RoomID
	m.userID = msg.UserID
	m.userName = msg.UserName
	m.role = msg.UserRole

	room, ok := r.rooms[msg.RoomID]
	if !ok {
		room = make(map[string]*member)
		r.rooms[msg.RoomID] = room
	}
	if previous, ok := room[msg.UserID]; ok && previous != m {
		// 同じユーザーの再接続は古い接続を置き換える
		previous.roomID = ""
	}
	room[msg.UserID] = m

	users := make([]signaling.RoomUser, 0, len(room))
	for _, other := range room {
		users = append(users, signaling.RoomUser{
			UserID:       other.userID,
			UserName:     other.userName,
			UserRole:     other.role,
			Broadcasting: other.broadcasting,
		})
	}
	viewers := len(room)
	r.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	m.deliver("room-joined", signaling.RoomJoined{RoomID: msg.RoomID, Users: users, ViewerCount: viewers})
	r.fanOut(m, "user-joined", signaling.UserJoined{UserID: m.userID, UserName: m.userName, UserRole: m.role})

	logger.Info("User joined room",
		zap.String("room_id", msg.RoomID),
		zap.String("user_id", msg.UserID),
		zap.Int("viewers", viewers))
	return nil
}

func (r *Relay) leave(m *member) {
	r.mu.Lock()
	roomID := m.roomID
	wasBroadcasting := m.broadcasting
	if roomID != "" {
		r.removeLocked(m)
	}
	r.mu.Unlock()

	if roomID == "" {
		return
	}
	if wasBroadcasting {
		r.fanOutRoom(roomID, m, "broadcasting-stopped", signaling.BroadcastingStopped{UserID: m.userID, UserName: m.userName, UserRole: m.role})
	}
	r.fanOutRoom(roomID, m, "user-left", signaling.UserLeft{UserID: m.userID, UserName: m.userName})
	logger.Info("User left room", zap.String("room_id", roomID), zap.String("user_id", m.userID))
}

// removeLocked must be called with r.mu held.
func (r *Relay) removeLocked(m *member) {
	room := r.rooms[m.roomID]
	if room[m.userID] == m {
		delete(room, m.userID)
	}
	if len(room) == 0 {
		delete(r.rooms, m.roomID)
	}
	m.roomID = ""
	m.broadcasting = false
}

func (r *Relay) room(m *member) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return m.roomID
}

func (r *Relay) fanOut(from *member, msgType string, payload any) {
	r.fanOutRoom(r.room(from), from, msgType, payload)
}

// fanOutRoom sends to every member of roomID except from.
func (r *Relay) fanOutRoom(roomID string, from *member, msgType string, payload any) {
	r.mu.Lock()
	targets := make([]*member, 0, len(r.rooms[roomID]))
	for _, other := range r.rooms[roomID] {
		if other != from {
			targets = append(targets, other)
		}
	}
	r.mu.Unlock()

	for _, target := range targets {
		target.deliver(msgType, payload)
	}
}

func (r *Relay) forward(from *member, targetUserID, msgType string, payload any) error {
	r.mu.Lock()
	target := r.rooms[from.roomID][targetUserID]
	r.mu.Unlock()

	if target == nil {
		return fmt.Errorf("%s: user %q is not in the room", msgType, targetUserID)
	}
	target.deliver(msgType, payload)
	return nil
}

// RoomSize returns the number of members in roomID.
func (r *Relay) RoomSize(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}

// frame encodes payload as a flat JSON object with a "type" field.
func frame(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(msgType)
	return json.Marshal(fields)
}

func (m *member) deliver(msgType string, payload any) {
	data, err := frame(msgType, payload)
	if err != nil {
		logger.Error("Failed to encode relay message", zap.String("type", msgType), zap.Error(err))
		return
	}
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.send <- data:
	default:
		logger.Warn("Relay send buffer full, message dropped",
			zap.String("client_id", m.clientID),
			zap.String("type", msgType))
	}
}

func (m *member) close() {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.send)
	}
}

func (m *member) writePump() {
	defer m.conn.Close()
	for data := range m.send {
		m.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
		if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	m.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
	m.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
