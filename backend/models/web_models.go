package models

import (
	"fmt"
	"time"

	"github.com/huhumeme2002/Webtokenv2/webtoken/database/repositories"
)

// UserSession represents a claimant session for web authentication
type UserSession struct {
	KeyID     string    `json:"key_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminSession represents an admin panel session
type AdminSession struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// Repositories aggregates the data access layer for handler wiring
type Repositories struct {
	Key    repositories.KeyRepository
	Token  repositories.TokenRepository
	Notice repositories.NoticeRepository
}

func NewRepositories(key repositories.KeyRepository, token repositories.TokenRepository, notice repositories.NoticeRepository) *Repositories {
	return &Repositories{
		Key:    key,
		Token:  token,
		Notice: notice,
	}
}

// LoginRequest represents a claimant login attempt
type LoginRequest struct {
	Key string `json:"key"`
}

// AdminLoginRequest represents an admin login attempt
type AdminLoginRequest struct {
	Secret string `json:"secret"`
}

// CreateKeyRequest represents an admin request to register a new key
type CreateKeyRequest struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UploadTokensRequest carries raw token text for bulk ingestion, one
// value per line
type UploadTokensRequest struct {
	Tokens string `json:"tokens"`
}

// DeleteTokensRequest names a deletion window: an anchor token (id or
// value) and how many tokens from it onward to remove
type DeleteTokensRequest struct {
	StartTokenID string `json:"startTokenId"`
	Count        int    `json:"count"`
}

// NoticeRequest represents an admin notice update
type NoticeRequest struct {
	Content     string `json:"content"`
	DisplayMode string `json:"displayMode"`
	IsActive    bool   `json:"isActive"`
}

// ClaimResponse represents a successful token claim
type ClaimResponse struct {
	Token           string     `json:"token"`
	CreatedAt       time.Time  `json:"createdAt"`
	NextAvailableAt *time.Time `json:"nextAvailableAt"`
}

// MeResponse is the claimant-facing account view
type MeResponse struct {
	KeyID           string     `json:"keyId"`
	KeyMask         string     `json:"keyMask"`
	IsActive        bool       `json:"isActive"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	LastTokenAt     *time.Time `json:"lastTokenAt"`
	ClaimedCount    int        `json:"claimedCount"`
	NextAvailableAt *time.Time `json:"nextAvailableAt"`
}

// KeyDTO represents a key in admin listings; the credential itself is
// never sent back in full
type KeyDTO struct {
	ID           string     `json:"id"`
	KeyMask      string     `json:"keyMask"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	IsActive     bool       `json:"isActive"`
	LastTokenAt  *time.Time `json:"lastTokenAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	ClaimedCount int        `json:"claimedCount"`
}

// TokenDTO represents a pool token in admin listings
type TokenDTO struct {
	ID         string     `json:"id"`
	Value      string     `json:"value"`
	ClaimCount int        `json:"claimCount"`
	AssignedTo *string    `json:"assignedTo"`
	AssignedAt *time.Time `json:"assignedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// UploadResult reports a bulk ingestion outcome
type UploadResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	Total      int `json:"total"`
}

// DeleteResult reports a bulk deletion outcome
type DeleteResult struct {
	DeletedTokens     int `json:"deletedTokens"`
	DeletedDeliveries int `json:"deletedDeliveries"`
}

// StatsResponse is the admin dashboard summary
type StatsResponse struct {
	TokensAvailable int `json:"tokensAvailable"`
	TokensExhausted int `json:"tokensExhausted"`
	KeysActive      int `json:"keysActive"`
	KeysExpired     int `json:"keysExpired"`
}

// NoticeResponse is the notice view shared by the public and admin endpoints
type NoticeResponse struct {
	Content     string     `json:"content"`
	DisplayMode string     `json:"displayMode"`
	IsActive    bool       `json:"isActive"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// Validate validates the login request
func (r *LoginRequest) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("key is required")
	}
	return nil
}

// Validate validates the key creation request
func (r *CreateKeyRequest) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("key is required")
	}
	if len(r.Key) < 8 {
		return fmt.Errorf("key must be at least 8 characters")
	}
	if r.ExpiresAt.IsZero() {
		return fmt.Errorf("expiresAt is required")
	}
	if !r.ExpiresAt.After(time.Now()) {
		return fmt.Errorf("expiresAt must be in the future")
	}
	return nil
}

// Validate validates the deletion window
func (r *DeleteTokensRequest) Validate() error {
	if r.StartTokenID == "" {
		return fmt.Errorf("startTokenId is required")
	}
	if r.Count < 10 || r.Count > 20 {
		return fmt.Errorf("count must be between 10 and 20")
	}
	return nil
}
