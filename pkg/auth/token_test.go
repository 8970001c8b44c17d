package auth

import (
	"testing"
	"time"

	"github.com/angelmondragon/holopos/pkg/config"
	"github.com/angelmondragon/holopos/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

func signClaims(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestParseAccessTokenAcceptsNumericUserID(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret"}
	token := signClaims(t, "secret", jwt.MapClaims{
		"user_id":    42,
		"username":   "ana",
		"role":       "cashier",
		"token_type": "access",
		"exp":        time.Now().Add(time.Hour).Unix(),
		"jti":        "abc",
	})

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != "42" {
		t.Fatalf("expected user_id 42, got %q", claims.UserID)
	}
	if claims.Role != enums.StaffRoleCashier || claims.Username != "ana" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID != "abc" {
		t.Fatalf("expected jti abc, got %q", claims.ID)
	}
}

func TestParseAccessTokenAcceptsStringUserID(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "holo"}
	token := signClaims(t, "secret", jwt.MapClaims{
		"user_id": "u-7",
		"iss":     "holo",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID.String() != "u-7" {
		t.Fatalf("unexpected user id %q", claims.UserID)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "holo"}
	valid := jwt.MapClaims{"user_id": 1, "iss": "holo", "exp": time.Now().Add(time.Hour).Unix()}

	with := func(overrides jwt.MapClaims) jwt.MapClaims {
		out := jwt.MapClaims{}
		for k, v := range valid {
			out[k] = v
		}
		for k, v := range overrides {
			if v == nil {
				delete(out, k)
				continue
			}
			out[k] = v
		}
		return out
	}

	cases := map[string]string{
		"wrong secret":  signClaims(t, "other", valid),
		"expired":       signClaims(t, "secret", with(jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})),
		"no expiry":     signClaims(t, "secret", with(jwt.MapClaims{"exp": nil})),
		"wrong issuer":  signClaims(t, "secret", with(jwt.MapClaims{"iss": "someone"})),
		"refresh token": signClaims(t, "secret", with(jwt.MapClaims{"token_type": "refresh"})),
		"unknown role":  signClaims(t, "secret", with(jwt.MapClaims{"role": "owner"})),
		"no user":       signClaims(t, "secret", with(jwt.MapClaims{"user_id": nil})),
		"garbage":       "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseAccessToken(cfg, token); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestParseAccessTokenRequiresSecret(t *testing.T) {
	if _, err := ParseAccessToken(config.JWTConfig{}, "x"); err == nil {
		t.Fatal("expected error without secret")
	}
}
