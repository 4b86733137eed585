package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/vibestore237/live-competition/internal/signaling"
	"github.com/vibestore237/live-competition/internal/types"
)

var (
	hostUser   = types.Identity{UserID: "admin-1", DisplayName: "Host", Role: types.RoleAdmin}
	viewerUser = types.Identity{UserID: "viewer-1", DisplayName: "Viewer", Role: types.RoleSpectator}
)

func connectClient(t *testing.T, url string, identity types.Identity) *signaling.WebSocketClient {
	t.Helper()
	client := signaling.NewWebSocketClient(signaling.WebSocketConfig{URL: url})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx, "competition-42", identity); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// expect は型 T のメッセージが届くまで他のメッセージを読み飛ばす
func expect[T signaling.Inbound](t *testing.T, client *signaling.WebSocketClient) T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-client.Messages():
			if v, ok := msg.(T); ok {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func waitRoomSize(t *testing.T, relay *Relay, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if relay.RoomSize("competition-42") == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("unexpected room size: got=%d want=%d", relay.RoomSize("competition-42"), want)
}

func TestRelay_RoomAndForwarding(t *testing.T) {
	relay := NewRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	host := connectClient(t, url, hostUser)
	joined := expect[signaling.RoomJoined](t, host)
	if joined.ViewerCount != 1 || len(joined.Users) != 1 {
		t.Fatalf("unexpected room-joined: %+v", joined)
	}

	viewer := connectClient(t, url, viewerUser)
	joined = expect[signaling.RoomJoined](t, viewer)
	if joined.ViewerCount != 2 {
		t.Fatalf("unexpected viewer count: got=%d want=2", joined.ViewerCount)
	}
	if arrived := expect[signaling.UserJoined](t, host); arrived.UserID != viewerUser.UserID {
		t.Fatalf("unexpected user-joined: %+v", arrived)
	}

	host.Send(signaling.StartBroadcasting{UserID: hostUser.UserID, UserName: hostUser.DisplayName, UserRole: hostUser.Role})
	if started := expect[signaling.BroadcastingStarted](t, viewer); started.UserID != hostUser.UserID {
		t.Fatalf("unexpected broadcasting-started: %+v", started)
	}

	host.Send(signaling.Offer{
		TargetUserID: viewerUser.UserID,
		Offer:        webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})
	offer := expect[signaling.RemoteOffer](t, viewer)
	if offer.FromUserID != hostUser.UserID || offer.Offer.SDP != "v=0" {
		t.Fatalf("unexpected relayed offer: %+v", offer)
	}

	viewer.Send(signaling.Answer{
		TargetUserID: hostUser.UserID,
		Answer:       webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"},
	})
	if answer := expect[signaling.RemoteAnswer](t, host); answer.FromUserID != viewerUser.UserID {
		t.Fatalf("unexpected relayed answer: %+v", answer)
	}

	host.Send(signaling.ParticipantChange{NewPerformerID: "B", NewPerformerName: "Bea"})
	if changed := expect[signaling.ParticipantChanged](t, viewer); changed.NewPerformerID != "B" {
		t.Fatalf("unexpected participant-changed: %+v", changed)
	}

	host.Send(signaling.Heartbeat{Timestamp: 1234})
	if pong := expect[signaling.HeartbeatResponse](t, host); pong.Timestamp != 1234 {
		t.Fatalf("unexpected heartbeat-response: %+v", pong)
	}

	_ = viewer.Close()
	if left := expect[signaling.UserLeft](t, host); left.UserID != viewerUser.UserID {
		t.Fatalf("unexpected user-left: %+v", left)
	}
	waitRoomSize(t, relay, 1)
}

func TestRelay_Errors(t *testing.T) {
	relay := NewRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	host := connectClient(t, url, hostUser)
	expect[signaling.RoomJoined](t, host)

	host.Send(signaling.ICECandidate{TargetUserID: "nobody"})
	if serverErr := expect[signaling.ServerError](t, host); !strings.Contains(serverErr.Message, "nobody") {
		t.Fatalf("unexpected error message: %q", serverErr.Message)
	}
}

func TestFrame(t *testing.T) {
	data, err := frame("user-left", signaling.UserLeft{UserID: "u1", UserName: "A"})
	if err != nil {
		t.Fatalf("frame failed: %v", err)
	}
	msg, err := signaling.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	left, ok := msg.(signaling.UserLeft)
	if !ok || left.UserID != "u1" {
		t.Fatalf("unexpected decoded message: %#v", msg)
	}
}
