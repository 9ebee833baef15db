package auth

import (
	"testing"
	"time"

	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/config"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	cfg := config.AuthConfig{
		Enabled:   true,
		JWTSecret: "test-secret",
		Issuer:    "car-aircon-services",
		Audience:  "car-aircon-services",
	}

	token, exp, err := GenerateAccessToken(cfg, "u-1", "ADMIN", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expected expiry in the future, got %v", exp)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != "u-1" {
		t.Fatalf("subject mismatch: %s", claims.Subject)
	}
	if claims.Role != "ADMIN" {
		t.Fatalf("role mismatch: %s", claims.Role)
	}

	// 错误的 secret 必须拒绝
	bad := cfg
	bad.JWTSecret = "other-secret"
	if _, err := ParseAccessToken(bad, token); err == nil {
		t.Fatalf("expected verify failure with wrong secret")
	}

	// issuer 不匹配必须拒绝
	badIss := cfg
	badIss.Issuer = "someone-else"
	if _, err := ParseAccessToken(badIss, token); err == nil {
		t.Fatalf("expected verify failure with wrong issuer")
	}
}

func TestGenerateAccessTokenRequiresSubject(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "s"}
	if _, _, err := GenerateAccessToken(cfg, "", "CUSTOMER", time.Hour); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}
