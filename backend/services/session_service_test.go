package services

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/huhumeme2002/Webtokenv2/webtoken"
)

func newTestSessionService() *SessionService {
	cfg := &webtoken.Config{}
	cfg.Auth.SessionKey = "test-session-key-0123456789abcdef"
	cfg.Auth.AdminSecret = "correct-horse-battery-staple"
	return NewSessionService(cfg, "development")
}

func TestSignDataRoundTrip(t *testing.T) {
	svc := newTestSessionService()

	payload := []byte(`{"key_id":"3f6c1d2e"}`)
	signed, err := svc.signData(payload)
	if err != nil {
		t.Fatalf("signData() error = %v", err)
	}

	decoded, err := svc.verifyAndDecodeData(signed)
	if err != nil {
		t.Fatalf("verifyAndDecodeData() error = %v", err)
	}
	if string(decoded) != string(payload) {
		t.Errorf("decoded = %q, want %q", decoded, payload)
	}
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	svc := newTestSessionService()

	signed, err := svc.signData([]byte(`{"key_id":"3f6c1d2e"}`))
	if err != nil {
		t.Fatalf("signData() error = %v", err)
	}

	raw, _ := base64.URLEncoding.DecodeString(signed)
	raw[2] ^= 0xff
	tampered := base64.URLEncoding.EncodeToString(raw)

	if _, err := svc.verifyAndDecodeData(tampered); err == nil {
		t.Error("verifyAndDecodeData() accepted tampered payload")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	svc := newTestSessionService()

	signed, err := svc.signData([]byte(`{"key_id":"3f6c1d2e"}`))
	if err != nil {
		t.Fatalf("signData() error = %v", err)
	}

	other := newTestSessionService()
	other.config.Auth.SessionKey = "another-session-key-entirely-here"

	if _, err := other.verifyAndDecodeData(signed); err == nil {
		t.Error("verifyAndDecodeData() accepted payload signed with a different key")
	}
}

func TestVerifyRejectsShortData(t *testing.T) {
	svc := newTestSessionService()

	short := base64.URLEncoding.EncodeToString([]byte("tiny"))
	if _, err := svc.verifyAndDecodeData(short); err == nil {
		t.Error("verifyAndDecodeData() accepted undersized payload")
	}
	if _, err := svc.verifyAndDecodeData("%%%not-base64%%%"); err == nil {
		t.Error("verifyAndDecodeData() accepted malformed base64")
	}
}

func TestSignDataRequiresKey(t *testing.T) {
	svc := newTestSessionService()
	svc.config.Auth.SessionKey = ""

	if _, err := svc.signData([]byte("payload")); err == nil || !strings.Contains(err.Error(), "session key") {
		t.Errorf("signData() error = %v, want session key error", err)
	}
}

func TestVerifyAdminSecret(t *testing.T) {
	svc := newTestSessionService()

	tests := []struct {
		name   string
		secret string
		want   bool
	}{
		{"correct secret", "correct-horse-battery-staple", true},
		{"wrong secret", "incorrect-horse", false},
		{"empty submission", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.VerifyAdminSecret(tt.secret); got != tt.want {
				t.Errorf("VerifyAdminSecret(%q) = %v, want %v", tt.secret, got, tt.want)
			}
		})
	}
}

func TestVerifyAdminSecretUnconfigured(t *testing.T) {
	svc := newTestSessionService()
	svc.config.Auth.AdminSecret = ""

	if svc.VerifyAdminSecret("") {
		t.Error("VerifyAdminSecret() accepted empty secret with no secret configured")
	}
}
