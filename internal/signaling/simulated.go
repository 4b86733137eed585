package signaling

import (
	"context"

	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/status"
	"github.com/vibestore237/live-competition/internal/types"
	"go.uber.org/zap"
)

// SimulatedClient はデモ/オフライン用のヌルアダプタ。
// 受信メッセージは一切なく、送信はログに残すだけ。
type SimulatedClient struct {
	messages chan Inbound
}

func NewSimulatedClient() *SimulatedClient {
	return &SimulatedClient{messages: make(chan Inbound)}
}

func (c *SimulatedClient) Connect(ctx context.Context, roomID string, identity types.Identity) error {
	logger.Info("Simulated signaling in use",
		zap.String("room_id", roomID),
		zap.String("user_id", identity.UserID))
	status.SetSignalingState(string(StateClosed), true)
	return nil
}

func (c *SimulatedClient) Send(msg Outbound) {
	logger.Debug("Simulated signaling dropped message", zap.String("type", msg.MessageType()))
}

func (c *SimulatedClient) Messages() <-chan Inbound { return c.messages }

func (c *SimulatedClient) State() State { return StateClosed }

func (c *SimulatedClient) Simulated() bool { return true }

func (c *SimulatedClient) Close() error { return nil }
