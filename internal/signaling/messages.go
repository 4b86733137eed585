package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/vibestore237/live-competition/internal/types"
)

// Outbound はクライアントからサーバーへ送るメッセージ
type Outbound interface {
	MessageType() string
}

type JoinRoom struct {
	RoomID   string     `json:"roomId"`
	UserID   string     `json:"userId"`
	UserName string     `json:"userName"`
	UserRole types.Role `json:"userRole"`
}

type StartBroadcasting struct {
	UserID   string     `json:"userId"`
	UserName string     `json:"userName"`
	UserRole types.Role `json:"userRole"`
}

type StopBroadcasting struct {
	UserID   string     `json:"userId"`
	UserName string     `json:"userName"`
	UserRole types.Role `json:"userRole"`
}

type ParticipantChange struct {
	NewPerformerID   string `json:"newPerformerId"`
	NewPerformerName string `json:"newPerformerName"`
}

type Speaking struct {
	UserID   string     `json:"userId"`
	UserRole types.Role `json:"userRole"`
	Volume   float64    `json:"volume"`
}

type Offer struct {
	TargetUserID string                    `json:"targetUserId"`
	Offer        webrtc.SessionDescription `json:"offer"`
}

type Answer struct {
	TargetUserID string                    `json:"targetUserId"`
	Answer       webrtc.SessionDescription `json:"answer"`
}

type ICECandidate struct {
	TargetUserID string                  `json:"targetUserId"`
	Candidate    webrtc.ICECandidateInit `json:"candidate"`
}

type Heartbeat struct {
	Timestamp int64 `json:"timestamp"`
}

func (JoinRoom) MessageType() string          { return "join-room" }
func (StartBroadcasting) MessageType() string { return "start-broadcasting" }
func (StopBroadcasting) MessageType() string  { return "stop-broadcasting" }
func (ParticipantChange) MessageType() string { return "participant-change" }
func (Speaking) MessageType() string          { return "user-speaking" }
func (Offer) MessageType() string             { return "webrtc-offer" }
func (Answer) MessageType() string            { return "webrtc-answer" }
func (ICECandidate) MessageType() string      { return "webrtc-ice-candidate" }
func (Heartbeat) MessageType() string         { return "heartbeat" }

// Encode serializes msg as a flat JSON object with a "type" field.
func Encode(msg Outbound) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msg.MessageType(), err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("failed to flatten %s: %w", msg.MessageType(), err)
	}
	typeValue, _ := json.Marshal(msg.MessageType())
	fields["type"] = typeValue
	return json.Marshal(fields)
}

// Inbound はサーバーから受け取るメッセージ。未知の type は Unknown になる。
type Inbound interface {
	inbound()
}

type ConnectionEstablished struct {
	ClientID string `json:"clientId"`
}

type RoomUser struct {
	UserID       string     `json:"userId"`
	UserName     string     `json:"userName"`
	UserRole     types.Role `json:"userRole"`
	Broadcasting bool       `json:"isBroadcasting"`
}

type RoomJoined struct {
	RoomID      string     `json:"roomId"`
	Users       []RoomUser `json:"users"`
	ViewerCount int        `json:"viewerCount"`
}

type UserJoined struct {
	UserID   string     `json:"userId"`
	UserName string     `json:"userName"`
	UserRole types.Role `json:"userRole"`
}

type UserLeft struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type BroadcastingStarted struct {
	UserID   string     `json:"userId"`
	UserName string     `json:"userName"`
	UserRole types.Role `json:"userRole"`
}

type BroadcastingStopped struct {
	UserID   string     `json:"userId"`
	UserName string     `json:"userName"`
	UserRole types.Role `json:"userRole"`
}

type ParticipantChanged struct {
	NewPerformerID   string `json:"newPerformerId"`
	NewPerformerName string `json:"newPerformerName"`
}

type UserSpeaking struct {
	UserID   string     `json:"userId"`
	UserRole types.Role `json:"userRole"`
	Volume   float64    `json:"volume"`
}

type RemoteOffer struct {
	FromUserID string                    `json:"fromUserId"`
	Offer      webrtc.SessionDescription `json:"offer"`
}

type RemoteAnswer struct {
	FromUserID string                    `json:"fromUserId"`
	Answer     webrtc.SessionDescription `json:"answer"`
}

type RemoteICECandidate struct {
	FromUserID string                  `json:"fromUserId"`
	Candidate  webrtc.ICECandidateInit `json:"candidate"`
}

type CompetitionUpdated struct {
	Competition  *types.Competition             `json:"competition,omitempty"`
	Participants []types.Participant            `json:"participants,omitempty"`
	Reactions    map[string]types.ReactionTally `json:"reactions,omitempty"`
	ViewerCount  int                            `json:"viewerCount,omitempty"`
}

type ServerError struct {
	Message string `json:"message"`
}

type HeartbeatResponse struct {
	Timestamp int64 `json:"timestamp"`
}

type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (ConnectionEstablished) inbound() {}
func (RoomJoined) inbound()            {}
func (UserJoined) inbound()            {}
func (UserLeft) inbound()              {}
func (BroadcastingStarted) inbound()   {}
func (BroadcastingStopped) inbound()   {}
func (ParticipantChanged) inbound()    {}
func (UserSpeaking) inbound()          {}
func (RemoteOffer) inbound()           {}
func (RemoteAnswer) inbound()          {}
func (RemoteICECandidate) inbound()    {}
func (CompetitionUpdated) inbound()    {}
func (ServerError) inbound()           {}
func (HeartbeatResponse) inbound()     {}
func (Unknown) inbound()               {}

// Decode parses a server message into its concrete type.
func Decode(data []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid signaling message: %w", err)
	}

	var msg Inbound
	switch envelope.Type {
	case "connection-established":
		msg = &ConnectionEstablished{}
	case "room-joined":
		msg = &RoomJoined{}
	case "user-joined":
		msg = &UserJoined{}
	case "user-left":
		msg = &UserLeft{}
	case "broadcasting-started":
		msg = &BroadcastingStarted{}
	case "broadcasting-stopped":
		msg = &BroadcastingStopped{}
	case "participant-changed":
		msg = &ParticipantChanged{}
	case "user-speaking":
		msg = &UserSpeaking{}
	case "webrtc-offer":
		msg = &RemoteOffer{}
	case "webrtc-answer":
		msg = &RemoteAnswer{}
	case "webrtc-ice-candidate":
		msg = &RemoteICECandidate{}
	case "competition-updated":
		msg = &CompetitionUpdated{}
	case "error":
		msg = &ServerError{}
	case "heartbeat-response":
		msg = &HeartbeatResponse{}
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Unknown{Type: envelope.Type, Raw: raw}, nil
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("invalid %s message: %w", envelope.Type, err)
	}
	return deref(msg), nil
}

// deref returns the value form so callers can switch on value types.
func deref(msg Inbound) Inbound {
	switch m := msg.(type) {
	case *ConnectionEstablished:
		return *m
	case *RoomJoined:
		return *m
	case *UserJoined:
		return *m
	case *UserLeft:
		return *m
	case *BroadcastingStarted:
		return *m
	case *BroadcastingStopped:
		return *m
	case *ParticipantChanged:
		return *m
	case *UserSpeaking:
		return *m
	case *RemoteOffer:
		return *m
	case *RemoteAnswer:
		return *m
	case *RemoteICECandidate:
		return *m
	case *CompetitionUpdated:
		return *m
	case *ServerError:
		return *m
	case *HeartbeatResponse:
		return *m
	}
	return msg
}
