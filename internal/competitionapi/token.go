package competitionapi

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vibestore237/live-competition/internal/types"
)

// ErrNoTokenSecret is returned when no verification key is configured.
var ErrNoTokenSecret = errors.New("token verification key not configured")

type identityClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IdentityFromToken は起動時に渡された自分のトークンから身元を取り出す。
// 署名検証は大会APIが行うのでここでは検証しない。他人のリクエストの認可には
// VerifyIdentityToken を使う。
func IdentityFromToken(token string) (types.Identity, error) {
	var claims identityClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return types.Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	return identityFromClaims(token, claims)
}

// VerifyIdentityToken は HMAC 署名と有効期限を検証してから身元を取り出す。
func VerifyIdentityToken(token string, secret []byte) (types.Identity, error) {
	if len(secret) == 0 {
		return types.Identity{}, ErrNoTokenSecret
	}
	var claims identityClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return types.Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	return identityFromClaims(token, claims)
}

func identityFromClaims(token string, claims identityClaims) (types.Identity, error) {
	if claims.Subject == "" {
		return types.Identity{}, fmt.Errorf("invalid token: missing subject")
	}

	role := types.Role(claims.Role)
	switch role {
	case types.RoleAdmin, types.RoleOrganizer, types.RoleParticipant, types.RoleSpectator:
	default:
		role = types.RoleSpectator
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return types.Identity{
		UserID:      claims.Subject,
		DisplayName: name,
		Role:        role,
		Token:       token,
	}, nil
}
