package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/huhumeme2002/Webtokenv2/backend/models"
	"github.com/huhumeme2002/Webtokenv2/webtoken"
)

const (
	SessionCookieName      = "webtoken_session"
	AdminSessionCookieName = "webtoken_admin"
)

// SessionService handles claimant and admin session management. Sessions
// are HMAC-SHA256 signed JSON payloads stored client side in cookies; the
// server keeps no session state.
type SessionService struct {
	config *webtoken.Config

	environment string
}

// NewSessionService creates a new session service
func NewSessionService(cfg *webtoken.Config, environment string) *SessionService {
	return &SessionService{
		config:      cfg,
		environment: environment,
	}
}

// CreateSession creates a claimant session and sets the session cookie
func (s *SessionService) CreateSession(c *fiber.Ctx, keyID string) (*models.UserSession, error) {
	session := &models.UserSession{
		KeyID:     keyID,
		ExpiresAt: time.Now().Add(s.config.Auth.SessionTTL()),
	}

	if err := s.setSignedCookie(c, SessionCookieName, session, s.config.Auth.SessionTTL()); err != nil {
		return nil, err
	}

	slog.Info("Session created",
		slog.String("type", "api"),
		slog.String("key_id", keyID))

	return session, nil
}

// GetSession retrieves and validates the claimant session from the request
func (s *SessionService) GetSession(c *fiber.Ctx) (*models.UserSession, error) {
	data, err := s.readSignedCookie(c, SessionCookieName)
	if err != nil {
		return nil, err
	}

	var session models.UserSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if time.Now().After(session.ExpiresAt) {
		s.DestroySession(c)
		return nil, fmt.Errorf("session expired")
	}

	return &session, nil
}

// DestroySession removes the claimant session cookie
func (s *SessionService) DestroySession(c *fiber.Ctx) {
	s.clearCookie(c, SessionCookieName)
}

// CreateAdminSession creates an admin session and sets the admin cookie
func (s *SessionService) CreateAdminSession(c *fiber.Ctx) (*models.AdminSession, error) {
	session := &models.AdminSession{
		ExpiresAt: time.Now().Add(s.config.Auth.AdminSessionTTL()),
	}

	if err := s.setSignedCookie(c, AdminSessionCookieName, session, s.config.Auth.AdminSessionTTL()); err != nil {
		return nil, err
	}

	slog.Info("Admin session created",
		slog.String("type", "api"),
		slog.String("ip", c.IP()))

	return session, nil
}

// GetAdminSession retrieves and validates the admin session from the request
func (s *SessionService) GetAdminSession(c *fiber.Ctx) (*models.AdminSession, error) {
	data, err := s.readSignedCookie(c, AdminSessionCookieName)
	if err != nil {
		return nil, err
	}

	var session models.AdminSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if time.Now().After(session.ExpiresAt) {
		s.DestroyAdminSession(c)
		return nil, fmt.Errorf("session expired")
	}

	return &session, nil
}

// DestroyAdminSession removes the admin session cookie
func (s *SessionService) DestroyAdminSession(c *fiber.Ctx) {
	s.clearCookie(c, AdminSessionCookieName)
}

// VerifyAdminSecret compares a submitted secret against the configured
// admin secret in constant time.
func (s *SessionService) VerifyAdminSecret(secret string) bool {
	if s.config.Auth.AdminSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.config.Auth.AdminSecret)) == 1
}

func (s *SessionService) setSignedCookie(c *fiber.Ctx, name string, payload interface{}, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	signed, err := s.signData(data)
	if err != nil {
		return fmt.Errorf("failed to sign session: %w", err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Secure:   s.environment == "production",
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return nil
}

func (s *SessionService) readSignedCookie(c *fiber.Ctx, name string) ([]byte, error) {
	cookie := c.Cookies(name)
	if cookie == "" {
		return nil, fmt.Errorf("no session cookie found")
	}

	data, err := s.verifyAndDecodeData(cookie)
	if err != nil {
		return nil, fmt.Errorf("invalid session signature: %w", err)
	}

	return data, nil
}

func (s *SessionService) clearCookie(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   s.environment == "production",
		HTTPOnly: true,
		SameSite: "Lax",
	})
}

// signData signs data using HMAC-SHA256
func (s *SessionService) signData(data []byte) (string, error) {
	if s.config.Auth.SessionKey == "" {
		return "", fmt.Errorf("session key not configured")
	}

	h := hmac.New(sha256.New, []byte(s.config.Auth.SessionKey))
	h.Write(data)
	signature := h.Sum(nil)

	combined := append(data, signature...)

	return base64.URLEncoding.EncodeToString(combined), nil
}

// verifyAndDecodeData verifies the signature and returns the original data
func (s *SessionService) verifyAndDecodeData(encodedData string) ([]byte, error) {
	if s.config.Auth.SessionKey == "" {
		return nil, fmt.Errorf("session key not configured")
	}

	combined, err := base64.URLEncoding.DecodeString(encodedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}

	// Signature is the last 32 bytes
	if len(combined) < 32 {
		return nil, fmt.Errorf("invalid data length")
	}

	data := combined[:len(combined)-32]
	receivedSignature := combined[len(combined)-32:]

	h := hmac.New(sha256.New, []byte(s.config.Auth.SessionKey))
	h.Write(data)
	expectedSignature := h.Sum(nil)

	if !hmac.Equal(receivedSignature, expectedSignature) {
		return nil, fmt.Errorf("signature verification failed")
	}

	return data, nil
}
