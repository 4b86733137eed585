package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vibestore237/live-competition/internal/live"
	"github.com/vibestore237/live-competition/internal/localdb"
	"github.com/vibestore237/live-competition/internal/signaling"
	"github.com/vibestore237/live-competition/internal/types"
)

var (
	adminUser     = types.Identity{UserID: "admin-1", DisplayName: "Admin", Role: types.RoleAdmin}
	spectatorUser = types.Identity{UserID: "viewer-1", DisplayName: "Viewer", Role: types.RoleSpectator}
)

type stubClient struct {
	mu       sync.Mutex
	sent     []signaling.Outbound
	messages chan signaling.Inbound
}

func (c *stubClient) Connect(ctx context.Context, roomID string, identity types.Identity) error {
	return nil
}

func (c *stubClient) Send(msg signaling.Outbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
}

func (c *stubClient) Messages() <-chan signaling.Inbound { return c.messages }
func (c *stubClient) State() signaling.State             { return signaling.StateOpen }
func (c *stubClient) Simulated() bool                    { return false }
func (c *stubClient) Close() error                       { return nil }

const testTokenSecret = "test-secret"

// openTestSession は admin として開いたセッションを webserver に登録する
func openTestSession(t *testing.T) *live.Session {
	t.Helper()
	return openTestSessionAs(t, adminUser)
}

func openTestSessionAs(t *testing.T, identity types.Identity) *live.Session {
	t.Helper()

	s, err := live.Open(context.Background(), live.Config{
		Identity:      identity,
		CompetitionID: "42",
		Competition:   &types.Competition{ID: "42", Title: "Live Battle", DurationMinutes: 60},
		Participants: []types.Participant{
			{ID: "A", User: types.User{ID: "ua", DisplayName: "A"}, Status: types.StatusWaiting},
			{ID: "B", User: types.User{ID: "ub", DisplayName: "B"}, Status: types.StatusWaiting},
		},
		Signaling:    &stubClient{messages: make(chan signaling.Inbound)},
		TickInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("live.Open failed: %v", err)
	}
	SetSession(s)
	SetTokenSecret(testTokenSecret)
	t.Cleanup(func() {
		SetSession(nil)
		SetTokenSecret("")
		_ = s.Close()
	})
	return s
}

func setupTestDB(t *testing.T) {
	t.Helper()
	_ = localdb.CloseDB()
	if _, err := localdb.SetupDB(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() { _ = localdb.CloseDB() })
}

func tokenFor(t *testing.T, identity types.Identity) string {
	t.Helper()
	return signedToken(t, identity, testTokenSecret)
}

func signedToken(t *testing.T, identity types.Identity, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  identity.UserID,
		"name": identity.DisplayName,
		"role": string(identity.Role),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func doRequest(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
