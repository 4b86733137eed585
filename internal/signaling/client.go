package signaling

import (
	"context"
	"errors"

	"github.com/vibestore237/live-competition/internal/types"
)

// ErrSignalingUnavailable はシグナリングサーバーに接続できないときのエラー
var ErrSignalingUnavailable = errors.New("signaling server unavailable")

// State is the connection state of a signaling client.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Sender sends outbound messages. Send never fails; when the connection is
// not open the message is dropped with a warning.
type Sender interface {
	Send(msg Outbound)
}

// Client is implemented by WebSocketClient (live) and SimulatedClient.
type Client interface {
	Sender
	Connect(ctx context.Context, roomID string, identity types.Identity) error
	Messages() <-chan Inbound
	State() State
	Simulated() bool
	Close() error
}

var (
	_ Client = (*WebSocketClient)(nil)
	_ Client = (*SimulatedClient)(nil)
)
