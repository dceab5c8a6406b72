package auth

import (
	"context"
	"testing"
	"time"
)

func TestVerifyRoundTrip(t *testing.T) {
	token, _, err := SignAccessToken("42", "ada", time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken() error = %v", err)
	}
	id, err := NewJWTVerifier().Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UserID != "42" || id.Username != "ada" {
		t.Fatalf("Verify() = %+v, want user 42/ada", id)
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	_, err := NewJWTVerifier().Verify(context.Background(), "")
	if err != ErrUnauthenticated {
		t.Fatalf("Verify(\"\") error = %v, want ErrUnauthenticated", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	token, _, err := SignAccessToken("42", "ada", -time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken() error = %v", err)
	}
	if _, err := NewJWTVerifier().Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() accepted an expired token")
	}
}

func TestVerifyGarbageToken(t *testing.T) {
	if _, err := NewJWTVerifier().Verify(context.Background(), "not-a-jwt"); err == nil {
		t.Fatal("Verify() accepted a malformed token")
	}
}
