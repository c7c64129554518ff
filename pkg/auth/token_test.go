package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/paymall/paymall-backend/pkg/config"
	"github.com/paymall/paymall-backend/pkg/enums"
)

func testConfig(minutes int) config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "paymall", ExpirationMinutes: minutes}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testConfig(30)
	now := time.Now().UTC()
	userID := uuid.New()
	mallID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: userID, Role: enums.RoleGateStaff, MallID: &mallID})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Role != enums.RoleGateStaff {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.MallID == nil || *claims.MallID != mallID {
		t.Fatalf("mall id not preserved")
	}
	if claims.Issuer != cfg.Issuer || claims.Subject != userID.String() {
		t.Fatalf("unexpected registered claims %+v", claims.RegisteredClaims)
	}
	if claims.ID == "" {
		t.Fatal("expected generated jti")
	}

	exp := now.Add(30 * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt.UTC())
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := testConfig(10)
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleShopper})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}
	other := cfg
	other.Secret = "other"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected wrong secret to fail")
	}
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	cfg := testConfig(10)
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleShopper})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected issuer mismatch")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testConfig(15)
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleShopper})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	_, err = ParseAccessToken(cfg, token)
	if err == nil {
		t.Fatal("expected expiration error")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMintAccessTokenRejectsBadPayload(t *testing.T) {
	cfg := testConfig(5)
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New()}); err == nil {
		t.Fatal("expected invalid role error")
	}
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.RoleShopper}); err == nil {
		t.Fatal("expected missing user error")
	}
	if _, err := MintAccessToken(testConfig(0), time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleShopper}); err == nil {
		t.Fatal("expected ttl error")
	}
}
