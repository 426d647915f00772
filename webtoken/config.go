package webtoken

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log  LogConfig  `toml:"log"`
	Web  WebConfig  `toml:"web"`
	DB   DBConfig   `toml:"db"`
	Auth AuthConfig `toml:"auth"`
	Pool PoolConfig `toml:"pool"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

// WebConfig controls the HTTP listener. TrustedProxies lists the peers
// whose X-Forwarded-For header is believed; empty means forwarding
// headers are ignored entirely.
type WebConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowOrigins   string   `toml:"allow_origins"`
	Environment    string   `toml:"environment"`
	TrustedProxies []string `toml:"trusted_proxies"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

// AuthConfig carries the session and admin credentials. SessionKey signs
// both user and admin cookies, so rotating it invalidates every session.
type AuthConfig struct {
	SessionKey       string `toml:"session_key"`
	AdminSecret      string `toml:"admin_secret"`
	SessionTTLDays   int    `toml:"session_ttl_days"`
	AdminSessionDays int    `toml:"admin_session_days"`
}

// PoolConfig controls the token allocation engine.
type PoolConfig struct {
	CooldownMinutes int `toml:"cooldown_minutes"`
	ClaimRetries    int `toml:"claim_retries"`
	UploadBatchCap  int `toml:"upload_batch_cap"`
}

// Cooldown returns the claim cooldown window, defaulting to 15 minutes.
func (p PoolConfig) Cooldown() time.Duration {
	if p.CooldownMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(p.CooldownMinutes) * time.Minute
}

// Retries returns the bounded retry count for claim commit conflicts.
func (p PoolConfig) Retries() int {
	if p.ClaimRetries <= 0 {
		return 3
	}
	return p.ClaimRetries
}

// BatchCap returns the maximum tokens accepted per bulk upload.
func (p PoolConfig) BatchCap() int {
	if p.UploadBatchCap <= 0 {
		return 2000
	}
	return p.UploadBatchCap
}

func (a AuthConfig) SessionTTL() time.Duration {
	days := a.SessionTTLDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

func (a AuthConfig) AdminSessionTTL() time.Duration {
	days := a.AdminSessionDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}
