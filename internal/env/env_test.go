package env

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/vibestore237/live-competition/internal/localdb"
	"github.com/vibestore237/live-competition/internal/settings"
)

func TestParse_Defaults(t *testing.T) {
	v, err := Parse(map[string]string{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if v.PerformanceSeconds != 180 || v.DemoPerformanceSeconds != 60 {
		t.Fatalf("unexpected durations: %d/%d", v.PerformanceSeconds, v.DemoPerformanceSeconds)
	}
	if v.ServerPort != 8090 || v.WebsocketPort != 8080 {
		t.Fatalf("unexpected ports: %d/%d", v.ServerPort, v.WebsocketPort)
	}
	if len(v.ICEServers) != 0 {
		t.Fatalf("no ICE servers expected: %v", v.ICEServers)
	}
}

func TestParse_ICEServersTrimmed(t *testing.T) {
	v, err := Parse(map[string]string{"ICE_SERVERS": "stun:a.example.com:3478, turn:b.example.com,"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []string{"stun:a.example.com:3478", "turn:b.example.com"}
	if len(v.ICEServers) != len(want) {
		t.Fatalf("unexpected servers: got=%v want=%v", v.ICEServers, want)
	}
	for i := range want {
		if v.ICEServers[i] != want[i] {
			t.Fatalf("unexpected server %d: got=%q want=%q", i, v.ICEServers[i], want[i])
		}
	}
}

func TestParse_InvalidNumber(t *testing.T) {
	if _, err := Parse(map[string]string{"SERVER_PORT": "abc"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSignalingDisabled(t *testing.T) {
	tests := []struct {
		name string
		v    EnvValue
		want bool
	}{
		{name: "dev enabled", v: EnvValue{AppEnv: "development"}, want: false},
		{name: "dev disabled", v: EnvValue{AppEnv: "development", WebsocketDisabledDev: true}, want: true},
		{name: "prod ignores dev flag", v: EnvValue{AppEnv: "production", WebsocketDisabledDev: true}, want: false},
		{name: "prod disabled", v: EnvValue{AppEnv: "production", WebsocketDisabledProd: true}, want: true},
		{name: "demo", v: EnvValue{AppEnv: "production", DemoMode: true}, want: true},
	}

	for _, tc := range tests {
		if got := tc.v.SignalingDisabled(); got != tc.want {
			t.Fatalf("%s: got=%v want=%v", tc.name, got, tc.want)
		}
	}
}

func TestSignalingURL(t *testing.T) {
	tests := []struct {
		v    EnvValue
		want string
	}{
		{v: EnvValue{SignalingHost: "localhost", WebsocketPort: 8080}, want: "ws://localhost:8080/ws"},
		{v: EnvValue{SignalingHost: "signal.example.com:443", WebsocketPort: 8080, SignalingSecure: true}, want: "wss://signal.example.com:443/ws"},
		{v: EnvValue{WebsocketPort: 9000}, want: "ws://localhost:9000/ws"},
	}

	for _, tc := range tests {
		if got := tc.v.SignalingURL(); got != tc.want {
			t.Fatalf("unexpected url: got=%q want=%q", got, tc.want)
		}
	}
}

func TestPerformanceDuration(t *testing.T) {
	v := EnvValue{PerformanceSeconds: 180, DemoPerformanceSeconds: 60}
	if got := v.PerformanceDuration(); got != 180*time.Second {
		t.Fatalf("unexpected duration: got=%v", got)
	}
	v.DemoMode = true
	if got := v.PerformanceDuration(); got != 60*time.Second {
		t.Fatalf("unexpected demo duration: got=%v", got)
	}
}

func TestSpectatorURL(t *testing.T) {
	v := EnvValue{SpectatorBaseURL: "https://vibestore237.com/"}
	if got := v.SpectatorURL("42"); got != "https://vibestore237.com/competitions/42/live" {
		t.Fatalf("unexpected url: %q", got)
	}
}

func TestReloadFromDatabase_SettingsOverrideEnvironment(t *testing.T) {
	_ = localdb.CloseDB()
	db, err := localdb.SetupDB(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() { _ = localdb.CloseDB() })

	t.Setenv("PERFORMANCE_SECONDS", "120")
	t.Setenv("COMPETITION_ID", "from-env")

	if err := settings.NewSettingsManager(db).SetSetting("COMPETITION_ID", "from-db"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	previous := Value
	t.Cleanup(func() { Value = previous })

	if err := ReloadFromDatabase(); err != nil {
		t.Fatalf("ReloadFromDatabase failed: %v", err)
	}
	if Value.CompetitionID != "from-db" {
		t.Fatalf("settings should win: got=%q", Value.CompetitionID)
	}
	if Value.PerformanceSeconds != 120 {
		t.Fatalf("environment should apply when no setting is stored: got=%d", Value.PerformanceSeconds)
	}
}
