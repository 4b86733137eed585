package main

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
	"github.com/vibestore237/live-competition/internal/env"
	"github.com/vibestore237/live-competition/internal/types"
)

func TestResolveIdentity(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "org-1",
		"name": "Organizer",
		"role": "organizer",
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		demo   bool
		userID string
		role   types.Role
	}{
		{name: "token", token: token, userID: "org-1", role: types.RoleOrganizer},
		{name: "demo host", demo: true, userID: "demo-host", role: types.RoleAdmin},
		{name: "anonymous", userID: "local-viewer", role: types.RoleSpectator},
		{name: "broken token", token: "garbage", userID: "local-viewer", role: types.RoleSpectator},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := resolveIdentity(tc.token, tc.demo)
			if got.UserID != tc.userID || got.Role != tc.role {
				t.Fatalf("unexpected identity: got=%+v want=%s/%s", got, tc.userID, tc.role)
			}
		})
	}
}

func TestApplyFlags_OnlyChanged(t *testing.T) {
	previous := env.Value
	t.Cleanup(func() { env.Value = previous })
	env.Value = env.EnvValue{CompetitionID: "from-env", ServerHost: "127.0.0.1", ServerPort: 8090}

	var opts options
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flagSet.BoolVar(&opts.demo, "demo", false, "")
	flagSet.StringVar(&opts.competitionID, "competition", "", "")
	flagSet.StringVar(&opts.token, "token", "", "")
	flagSet.StringVar(&opts.host, "host", "", "")
	flagSet.IntVar(&opts.port, "port", 0, "")
	flagSet.BoolVar(&opts.debug, "debug", false, "")
	flagSet.StringVar(&opts.audioFile, "audio", "", "")
	if err := flagSet.Parse([]string{"--demo", "--port", "9000"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	applyFlags(flagSet, opts)
	if !env.Value.DemoMode || env.Value.ServerPort != 9000 {
		t.Fatalf("changed flags should apply: %+v", env.Value)
	}
	if env.Value.ServerHost != "127.0.0.1" {
		t.Fatalf("bind address should stay on loopback: got=%q", env.Value.ServerHost)
	}
	if env.Value.CompetitionID != "from-env" {
		t.Fatalf("unchanged flags should not override: got=%q want=%q", env.Value.CompetitionID, "from-env")
	}

	env.Value.CompetitionID = ""
	applyFlags(flagSet, opts)
	if env.Value.CompetitionID != demoCompetitionID {
		t.Fatalf("demo without competition: got=%q want=%q", env.Value.CompetitionID, demoCompetitionID)
	}
}

func TestICEServers(t *testing.T) {
	if got := iceServers(nil); got != nil {
		t.Fatalf("no servers expected: %+v", got)
	}
	got := iceServers([]string{"stun:stun.l.google.com:19302"})
	if len(got) != 1 || len(got[0].URLs) != 1 {
		t.Fatalf("unexpected servers: %+v", got)
	}
}
