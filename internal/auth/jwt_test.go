package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenService_RoundTrip(t *testing.T) {
	service, err := NewTokenService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService failed: %v", err)
	}

	token, expiresAt, err := service.GenerateMonitorToken("cli")
	if err != nil {
		t.Fatalf("GenerateMonitorToken failed: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("Expected expiry in the future, got %s", expiresAt)
	}

	claims, err := service.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Role != RoleMonitor || claims.Subject != "cli" {
		t.Errorf("Unexpected claims %+v", claims)
	}
}

func TestTokenService_Rejects(t *testing.T) {
	service, _ := NewTokenService("test-secret", time.Hour)
	other, _ := NewTokenService("other-secret", time.Hour)

	foreign, _, _ := other.GenerateMonitorToken("cli")
	if _, err := service.ValidateToken(foreign); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}

	service.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, _ := service.GenerateMonitorToken("cli")
	service.now = time.Now
	if _, err := service.ValidateToken(expired); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("Expected expired token error, got %v", err)
	}

	wrongRole := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		Role: "device",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, _ := wrongRole.SignedString([]byte("test-secret"))
	if _, err := service.ValidateToken(signed); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Expected ErrInvalidRole, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{Role: RoleMonitor})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := service.ValidateToken(unsigned); err == nil {
		t.Error("Expected unsigned token to be rejected")
	}

	if _, err := service.ValidateToken("garbage"); err == nil {
		t.Error("Expected malformed token to be rejected")
	}
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	if _, err := NewTokenService("", time.Hour); !errors.Is(err, ErrNoSecret) {
		t.Errorf("Expected ErrNoSecret, got %v", err)
	}
}
