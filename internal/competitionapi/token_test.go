package competitionapi

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vibestore237/live-competition/internal/types"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestIdentityFromToken(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		expect types.Identity
	}{
		{
			name:   "admin",
			claims: jwt.MapClaims{"sub": "u1", "name": "Ada", "role": "admin"},
			expect: types.Identity{UserID: "u1", DisplayName: "Ada", Role: types.RoleAdmin},
		},
		{
			name:   "unknown role falls back to spectator",
			claims: jwt.MapClaims{"sub": "u2", "role": "superuser"},
			expect: types.Identity{UserID: "u2", DisplayName: "u2", Role: types.RoleSpectator},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			token := signToken(t, tc.claims)
			got, err := IdentityFromToken(token)
			if err != nil {
				t.Fatalf("IdentityFromToken failed: %v", err)
			}
			if got.UserID != tc.expect.UserID || got.DisplayName != tc.expect.DisplayName || got.Role != tc.expect.Role {
				t.Fatalf("unexpected identity: got=%+v want=%+v", got, tc.expect)
			}
			if got.Token != token {
				t.Fatalf("token should be kept on the identity")
			}
		})
	}
}

func TestIdentityFromToken_Invalid(t *testing.T) {
	if _, err := IdentityFromToken("not-a-token"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
	if _, err := IdentityFromToken(signToken(t, jwt.MapClaims{"name": "nobody"})); err == nil {
		t.Fatalf("expected error for missing subject")
	}
}

func TestVerifyIdentityToken(t *testing.T) {
	valid := signToken(t, jwt.MapClaims{"sub": "u1", "name": "Ada", "role": "admin"})
	expired := signToken(t, jwt.MapClaims{"sub": "u1", "role": "admin", "exp": time.Now().Add(-time.Minute).Unix()})
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "role": "admin"}).SignedString([]byte("anything"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "role": "admin"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		secret  string
		wantErr bool
	}{
		{name: "valid", token: valid, secret: "test-key"},
		{name: "signed with another key", token: forged, secret: "test-key", wantErr: true},
		{name: "alg none", token: unsigned, secret: "test-key", wantErr: true},
		{name: "expired", token: expired, secret: "test-key", wantErr: true},
		{name: "no key configured", token: valid, secret: "", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := VerifyIdentityToken(tc.token, []byte(tc.secret))
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error: got=%v wantErr=%v", err, tc.wantErr)
			}
			if !tc.wantErr && (got.UserID != "u1" || got.Role != types.RoleAdmin) {
				t.Fatalf("unexpected identity: %+v", got)
			}
		})
	}

	if _, err := VerifyIdentityToken(valid, nil); !errors.Is(err, ErrNoTokenSecret) {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrNoTokenSecret)
	}
}
