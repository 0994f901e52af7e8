package auth

import (
	"testing"
	"time"

	"nvrd/internal/config"
)

func testIssuer() *Issuer {
	return NewIssuer(config.JWTConfig{
		Secret:        "test-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 720 * time.Hour,
	})
}

func TestIssueAndParseAccessToken(t *testing.T) {
	iss := testIssuer()
	signed, err := iss.IssueAccessToken(42, "a@example.com")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	claims, err := iss.Parse(signed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != 42 || claims.Type != "access" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestIssueRefreshTokenCarriesJTI(t *testing.T) {
	iss := testIssuer()
	rt, err := iss.IssueRefreshToken(1, "a@example.com")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if rt.JTI == "" {
		t.Fatalf("expected non-empty JTI")
	}

	claims, err := iss.Parse(rt.Signed)
	if err != nil {
		t.Fatalf("Parse refresh token: %v", err)
	}
	if claims.ID != rt.JTI {
		t.Errorf("claims.ID = %q, want %q", claims.ID, rt.JTI)
	}
}

func TestParseRejectsTamperedSecret(t *testing.T) {
	iss := testIssuer()
	signed, _ := iss.IssueAccessToken(1, "a@example.com")

	other := NewIssuer(config.JWTConfig{Secret: "different-secret", AccessExpiry: time.Minute})
	if _, err := other.Parse(signed); err == nil {
		t.Fatalf("expected parse with wrong secret to fail")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(hash, "s3cret!") {
		t.Fatalf("expected VerifyPassword to accept the correct password")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatalf("expected VerifyPassword to reject an incorrect password")
	}
}
