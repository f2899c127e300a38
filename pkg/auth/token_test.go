package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/config"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/enums"
)

var testJWTConfig = config.JWTConfig{
	Secret:            "test-secret",
	Issuer:            "weightlossclinic-test",
	ExpirationMinutes: 30,
}

func TestMintAndParseRoundTrip(t *testing.T) {
	userID := uuid.New()
	token, err := MintAccessToken(testJWTConfig, time.Now(), AccessTokenPayload{
		UserID: userID,
		Role:   enums.UserRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := ParseAccessToken(testJWTConfig, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user id %s got %s", userID, claims.UserID)
	}
	if claims.Role != enums.UserRoleAdmin {
		t.Fatalf("expected admin role got %s", claims.Role)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := MintAccessToken(testJWTConfig, time.Now().Add(-2*time.Hour), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRolePatient,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(testJWTConfig, token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	other := testJWTConfig
	other.Issuer = "someone-else"
	token, err := MintAccessToken(other, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRolePatient,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(testJWTConfig, token); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestMintRejectsInvalidRole(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRole("superuser"),
	})
	if err == nil {
		t.Fatal("expected invalid role to be rejected")
	}
}
