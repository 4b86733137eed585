package webserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/vibestore237/live-competition/internal/env"
	"github.com/vibestore237/live-competition/internal/localdb"
	"github.com/vibestore237/live-competition/internal/notification"
	"github.com/vibestore237/live-competition/internal/settings"
)

func TestSettings_GetMasksSecrets(t *testing.T) {
	setupTestDB(t)
	sm := settings.NewSettingsManager(localdb.GetDB())
	if err := sm.SetSetting("API_TOKEN", "super-secret"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	rec := doRequest(t, http.MethodGet, "/api/settings", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Settings map[string]settings.Setting `json:"settings"`
	}
	decodeResponse(t, rec, &resp)
	token := resp.Settings["API_TOKEN"]
	if token.Value == "super-secret" || !token.HasValue {
		t.Fatalf("secret should be masked: %+v", token)
	}
}

func TestSettings_Update(t *testing.T) {
	setupTestDB(t)
	previous := env.Value
	t.Cleanup(func() { env.Value = previous })

	tests := []struct {
		name   string
		body   map[string]string
		expect int
	}{
		{name: "empty", body: map[string]string{}, expect: http.StatusBadRequest},
		{name: "unknown key", body: map[string]string{"NOPE": "1"}, expect: http.StatusBadRequest},
		{name: "invalid value", body: map[string]string{"SERVER_PORT": "99999"}, expect: http.StatusBadRequest},
		{name: "valid", body: map[string]string{"PERFORMANCE_SECONDS": "120", "DEMO_MODE": "true"}, expect: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, http.MethodPost, "/api/settings", tc.body, "")
			if rec.Code != tc.expect {
				t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, tc.expect, rec.Body.String())
			}
		})
	}

	if env.Value.PerformanceSeconds != 120 || !env.Value.DemoMode {
		t.Fatalf("configuration should be reloaded: %+v", env.Value)
	}
}

func TestSettings_PartialUpdateRejected(t *testing.T) {
	setupTestDB(t)
	sm := settings.NewSettingsManager(localdb.GetDB())

	rec := doRequest(t, http.MethodPut, "/api/settings", map[string]string{
		"PERFORMANCE_SECONDS": "240",
		"TIMEZONE":            "Nowhere/Invalid",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
	if got, _ := sm.GetSetting("PERFORMANCE_SECONDS"); got != "180" {
		t.Fatalf("no setting should be saved: got=%q want=%q", got, "180")
	}
}

func TestSettingsStatus(t *testing.T) {
	setupTestDB(t)

	rec := doRequest(t, http.MethodGet, "/api/settings/status", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusOK)
	}
	var status settings.FeatureStatus
	decodeResponse(t, rec, &status)
	if status.APIConfigured {
		t.Fatalf("API should not be configured without a competition id")
	}
}

func TestChatHistory(t *testing.T) {
	setupTestDB(t)
	now := time.Now().UnixMilli()
	rows := []localdb.ChatTranscriptRow{
		{CompetitionID: "42", MessageID: "m1", Author: "A", Body: "hello", CreatedAt: now - 1000},
		{CompetitionID: "42", MessageID: "m2", Author: "System", Body: "winner", IsSystem: true, IsWinner: true, CreatedAt: now},
		{CompetitionID: "7", MessageID: "m3", Author: "B", Body: "other", CreatedAt: now},
		{CompetitionID: "42", MessageID: "m4", Author: "C", Body: "stale", CreatedAt: time.Now().AddDate(0, 0, -30).UnixMilli()},
	}
	for _, row := range rows {
		if _, err := localdb.AddChatTranscript(row); err != nil {
			t.Fatalf("AddChatTranscript failed: %v", err)
		}
	}

	SetSession(nil)
	if rec := doRequest(t, http.MethodGet, "/api/chat/history", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing competition: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}

	rec := doRequest(t, http.MethodGet, "/api/chat/history?competition=42", nil, "")
	var resp struct {
		Messages []chatHistoryMessage `json:"messages"`
		Count    int                  `json:"count"`
	}
	decodeResponse(t, rec, &resp)
	if resp.Count != 2 {
		t.Fatalf("unexpected count: got=%d want=2", resp.Count)
	}
	if resp.Messages[0].MessageID != "m1" || !resp.Messages[1].IsWinner {
		t.Fatalf("unexpected messages: %+v", resp.Messages)
	}
}

type staticHistory []notification.Toast

func (h staticHistory) Recent() []notification.Toast { return h }

func TestStatusAndNotifications(t *testing.T) {
	openTestSession(t)

	rec := doRequest(t, http.MethodGet, "/status", nil, "")
	var status map[string]any
	decodeResponse(t, rec, &status)
	if status["competition_id"] != "42" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if _, ok := status["version"]; !ok {
		t.Fatalf("status should include version")
	}

	SetNotificationHistory(staticHistory{{Level: notification.LevelInfo, Title: "Offline mode"}})
	t.Cleanup(func() { SetNotificationHistory(nil) })

	rec = doRequest(t, http.MethodGet, "/api/notifications", nil, "")
	var resp struct {
		Count int `json:"count"`
	}
	decodeResponse(t, rec, &resp)
	if resp.Count != 1 {
		t.Fatalf("unexpected notification count: got=%d want=1", resp.Count)
	}
}
