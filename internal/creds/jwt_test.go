package creds

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func fakeJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	body, err := json.Marshal(claims)
	if err != nil {
		t.Fatal(err)
	}
	payload := base64.RawURLEncoding.EncodeToString(body)
	return strings.Join([]string{header, payload, "sig"}, ".")
}

func TestDecodeJWTPayload_ExtractsClaims(t *testing.T) {
	token := fakeJWT(t, map[string]any{"exp": float64(time.Now().Add(time.Hour).Unix()), "sub": "user-1"})
	payload := DecodeJWTPayload(token)
	if payload == nil {
		t.Fatal("expected a non-nil payload")
	}
	if payload["sub"] != "user-1" {
		t.Errorf("sub = %v, want user-1", payload["sub"])
	}
}

func TestDecodeJWTPayload_MalformedTokenReturnsNil(t *testing.T) {
	if payload := DecodeJWTPayload("not-a-jwt"); payload != nil {
		t.Errorf("expected nil payload for a malformed token, got %v", payload)
	}
}

func TestIsTokenExpired_MissingExpIsExpired(t *testing.T) {
	token := fakeJWT(t, map[string]any{"sub": "user-1"})
	if !IsTokenExpired(token, 0) {
		t.Error("token without exp should be treated as expired")
	}
}

func TestIsTokenExpired_WithinBufferIsExpired(t *testing.T) {
	token := fakeJWT(t, map[string]any{"exp": float64(time.Now().Add(time.Minute).Unix())})
	if !IsTokenExpired(token, 2) {
		t.Error("token expiring within the buffer window should be treated as expired")
	}
}

func TestIsTokenExpired_FarFutureIsValid(t *testing.T) {
	token := fakeJWT(t, map[string]any{"exp": float64(time.Now().Add(24 * time.Hour).Unix())})
	if IsTokenExpired(token, 2) {
		t.Error("token expiring far in the future should not be treated as expired")
	}
}

func TestIsQuotaExhausted(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"429 with quota message", 429, "No remaining quota for this account", true},
		{"429 with alternate message", 429, "No AI requests remaining today", true},
		{"429 with unrelated body", 429, "rate limited, try later", false},
		{"200 is never quota exhaustion", 200, "No remaining quota", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsQuotaExhausted(tt.status, tt.body); got != tt.want {
				t.Errorf("IsQuotaExhausted(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
			}
		})
	}
}
