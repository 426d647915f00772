// Package allocation implements the token claim sequence: key validation,
// cooldown enforcement, contention-safe token selection, and delivery
// recording, all inside one transaction so a failed claim never advances
// the key's cooldown without granting a token.
package allocation

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/huhumeme2002/Webtokenv2/webtoken/database/models"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database/repositories"
	"github.com/huhumeme2002/Webtokenv2/webtoken/ratelimit"
)

//go:generate mockgen -source=engine.go -destination=mock/mock.go -package=mock

// Directory exposes the key reads and the conditional issue-timestamp
// update the engine needs. Satisfied by repositories.KeyRepository.
type Directory interface {
	GetByID(ctx context.Context, id string) (*models.Key, error)
	MarkIssuedNow(ctx context.Context, idb bun.IDB, id string, cooldown time.Duration) (time.Time, error)
}

// Pool exposes token selection and commit. Satisfied by
// repositories.TokenRepository.
type Pool interface {
	Reserve(ctx context.Context, idb bun.IDB, keyID string) (*models.Token, error)
	CommitReservation(ctx context.Context, idb bun.IDB, tokenID, keyID string) (string, error)
	RecordDelivery(ctx context.Context, idb bun.IDB, keyID, tokenID string) error
}

// TxRunner is the transaction boundary. Satisfied by *bun.DB.
type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error
}

// Grant is a successful claim outcome.
type Grant struct {
	Token           string
	CreatedAt       time.Time
	NextAvailableAt *time.Time
}

// Engine orchestrates claims against the shared pool.
type Engine struct {
	db          TxRunner
	directory   Directory
	pool        Pool
	cooldown    time.Duration
	maxAttempts int
	backoff     time.Duration

	now   func() time.Time
	sleep func(time.Duration)

	// savepoint isolates one allocation attempt inside the outer
	// transaction. A unique violation aborts every later statement on a
	// Postgres transaction, so without the savepoint rollback the retry
	// loop would only see "transaction is aborted" errors.
	savepoint func(ctx context.Context, tx bun.Tx, fn func(ctx context.Context, tx bun.Tx) error) error
}

func NewEngine(db TxRunner, directory Directory, pool Pool, cooldown time.Duration, maxAttempts int) *Engine {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Engine{
		db:          db,
		directory:   directory,
		pool:        pool,
		cooldown:    cooldown,
		maxAttempts: maxAttempts,
		backoff:     50 * time.Millisecond,
		now:         time.Now,
		sleep:       time.Sleep,
		savepoint: func(ctx context.Context, tx bun.Tx, fn func(ctx context.Context, tx bun.Tx) error) error {
			return tx.RunInTx(ctx, nil, fn)
		},
	}
}

// Cooldown returns the configured claim cooldown window.
func (e *Engine) Cooldown() time.Duration {
	return e.cooldown
}

// Claim runs the full allocation sequence for the key. Rejections come back
// as ErrUnauthorized, *RateLimitedError, or ErrOutOfStock; anything else is
// an internal failure.
func (e *Engine) Claim(ctx context.Context, keyID string) (*Grant, error) {
	key, err := e.directory.GetByID(ctx, keyID)
	if err != nil {
		var nfe *repositories.NotFoundError
		if errors.As(err, &nfe) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	now := e.now()
	if !key.Usable(now) {
		return nil, ErrUnauthorized
	}

	// Advisory pre-check; the conditional update inside the transaction is
	// the authoritative gate.
	if res := ratelimit.Check(key.LastTokenAt, e.cooldown, now); res.Limited {
		slog.Info("Claim rejected by cooldown",
			slog.String("type", "api"),
			slog.String("key_id", keyID),
			slog.Time("blocked_until", *res.NextAvailableAt))
		return nil, &RateLimitedError{BlockedUntil: *res.NextAvailableAt}
	}

	var grant *Grant
	err = e.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		issuedAt, err := e.directory.MarkIssuedNow(ctx, tx, keyID, e.cooldown)
		if err != nil {
			if errors.Is(err, repositories.ErrCooldownActive) {
				return &RateLimitedError{BlockedUntil: e.blockedUntil(ctx, keyID, now)}
			}
			return err
		}

		value, err := e.allocate(ctx, tx, keyID)
		if err != nil {
			return err
		}

		next := issuedAt.Add(e.cooldown)
		grant = &Grant{
			Token:           value,
			CreatedAt:       issuedAt,
			NextAvailableAt: &next,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Token claimed",
		slog.String("type", "api"),
		slog.String("key_id", keyID),
		slog.Time("next_available_at", *grant.NextAvailableAt))
	return grant, nil
}

// allocate performs the bounded select-commit-record loop. A conflict means
// another claim beat this one to the candidate; the next attempt sees a
// fresh candidate because the lost one now reads claim_count = 2.
func (e *Engine) allocate(ctx context.Context, tx bun.Tx, keyID string) (string, error) {
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		value, err := e.tryAllocate(ctx, tx, keyID)
		if err == nil {
			return value, nil
		}
		if errors.Is(err, repositories.ErrNoTokens) {
			slog.Info("Claim rejected, pool exhausted",
				slog.String("type", "api"),
				slog.String("key_id", keyID))
			return "", ErrOutOfStock
		}
		if errors.Is(err, repositories.ErrTokenConflict) {
			slog.Info("Reservation lost race, retrying",
				slog.String("type", "api"),
				slog.String("key_id", keyID),
				slog.Int("attempt", attempt))
			e.sleep(e.backoff * time.Duration(attempt))
			continue
		}
		return "", err
	}

	// Persistent conflicts and a truly empty pool look identical to the
	// client; the log lines above are the only place they differ.
	slog.Info("Claim retries exhausted",
		slog.String("type", "api"),
		slog.String("key_id", keyID),
		slog.Int("attempts", e.maxAttempts))
	return "", ErrOutOfStock
}

// tryAllocate runs one select-commit-record attempt in a savepoint, so a
// failed attempt rolls back cleanly and the outer transaction stays usable.
func (e *Engine) tryAllocate(ctx context.Context, tx bun.Tx, keyID string) (string, error) {
	var value string
	err := e.savepoint(ctx, tx, func(ctx context.Context, tx bun.Tx) error {
		token, err := e.pool.Reserve(ctx, tx, keyID)
		if err != nil {
			return err
		}

		v, err := e.pool.CommitReservation(ctx, tx, token.ID, keyID)
		if err != nil {
			return err
		}

		if err := e.pool.RecordDelivery(ctx, tx, keyID, token.ID); err != nil {
			return err
		}

		value = v
		return nil
	})
	return value, err
}

// blockedUntil recomputes the retry time after MarkIssuedNow lost a
// cooldown race. The conditional update only returns zero rows once the
// competing claim has committed a newer last_token_at, so a fresh read
// reflects it; the pre-transaction snapshot would place the window start
// at or before now.
func (e *Engine) blockedUntil(ctx context.Context, keyID string, now time.Time) time.Time {
	key, err := e.directory.GetByID(ctx, keyID)
	if err == nil {
		if next := ratelimit.NextAvailableAt(key.LastTokenAt, e.cooldown); next != nil && next.After(now) {
			return *next
		}
	}
	return now.Add(e.cooldown)
}
