package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/huhumeme2002/Webtokenv2/webtoken/database/models"
)

var (
	// ErrNoTokens means no token in the pool is eligible for the key: every
	// remaining token is either exhausted or already delivered to it.
	ErrNoTokens = errors.New("no eligible tokens in pool")

	// ErrTokenConflict means a concurrent claim won the race between
	// selection and commit. Retryable, never surfaced to clients directly.
	ErrTokenConflict = errors.New("token claimed concurrently")
)

// TokenFilter narrows token listings by claim state.
type TokenFilter string

const (
	FilterAll       TokenFilter = "all"
	FilterAvailable TokenFilter = "available"
	FilterPartial   TokenFilter = "partial"
	FilterFull      TokenFilter = "full"
)

// BulkInsertResult reports the outcome of a batch ingestion.
type BulkInsertResult struct {
	Inserted   int
	Duplicates int
}

// BulkDeleteResult reports the outcome of a windowed deletion.
type BulkDeleteResult struct {
	DeletedTokens     int
	DeletedDeliveries int
}

type TokenRepository interface {
	Reserve(ctx context.Context, idb bun.IDB, keyID string) (*models.Token, error)
	CommitReservation(ctx context.Context, idb bun.IDB, tokenID, keyID string) (string, error)
	RecordDelivery(ctx context.Context, idb bun.IDB, keyID, tokenID string) error
	BulkInsert(ctx context.Context, values []string) (BulkInsertResult, error)
	BulkDelete(ctx context.Context, anchor string, count int) (BulkDeleteResult, error)
	List(ctx context.Context, filter TokenFilter, limit, offset int) ([]*models.Token, error)
	CountAvailable(ctx context.Context) (int, error)
	CountExhausted(ctx context.Context) (int, error)
}

type tokenRepository struct {
	*BaseRepository
	db *bun.DB
}

func NewTokenRepository(db *bun.DB) TokenRepository {
	return &tokenRepository{
		BaseRepository: NewBaseRepository(db),
		db:             db,
	}
}

// Reserve selects one candidate token for the key: claim count below the
// cap, never delivered to this key before. Partially claimed tokens are
// filled before fresh ones are opened, oldest first. SKIP LOCKED keeps
// concurrent selectors from blocking on each other; they each see the next
// free candidate instead.
func (r *tokenRepository) Reserve(ctx context.Context, idb bun.IDB, keyID string) (*models.Token, error) {
	token := new(models.Token)
	err := idb.NewSelect().
		Model(token).
		Where("t.claim_count < ?", models.MaxClaims).
		Where("t.id NOT IN (SELECT token_id FROM deliveries WHERE key_id = ?)", keyID).
		OrderExpr("t.claim_count DESC, t.created_at ASC").
		Limit(1).
		For("UPDATE SKIP LOCKED").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoTokens
		}
		return nil, r.HandleError("reserve", "token", err)
	}
	return token, nil
}

// CommitReservation increments the claim counter, conditioned on the cap
// still holding at commit time. Zero rows affected means another claim
// pushed the counter in between; the caller retries with a new candidate.
func (r *tokenRepository) CommitReservation(ctx context.Context, idb bun.IDB, tokenID, keyID string) (string, error) {
	var value string
	_, err := idb.NewUpdate().
		Model((*models.Token)(nil)).
		Set("claim_count = claim_count + 1").
		Set("assigned_to = ?", keyID).
		Set("assigned_at = now()").
		Where("id = ?", tokenID).
		Where("claim_count < ?", models.MaxClaims).
		Returning("value").
		Exec(ctx, &value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrTokenConflict
		}
		return "", r.HandleErrorWithID("commit_reservation", "token", tokenID, err)
	}
	return value, nil
}

// RecordDelivery inserts the audit row tying the key to the token. A unique
// violation here means the key already holds this token; Reserve's exclusion
// filter makes that unreachable in practice, but it is handled as a conflict
// rather than a fatal error.
func (r *tokenRepository) RecordDelivery(ctx context.Context, idb bun.IDB, keyID, tokenID string) error {
	delivery := &models.Delivery{
		ID:          uuid.NewString(),
		KeyID:       keyID,
		TokenID:     tokenID,
		DeliveredAt: time.Now().UTC(),
	}

	_, err := idb.NewInsert().Model(delivery).Exec(ctx)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrTokenConflict
		}
		return r.HandleError("record_delivery", "delivery", err)
	}
	return nil
}

// BulkInsert ingests a batch of opaque values inside one transaction.
// Values already present in the pool are counted as duplicates, not raised.
func (r *tokenRepository) BulkInsert(ctx context.Context, values []string) (BulkInsertResult, error) {
	var result BulkInsertResult

	err := r.Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		for _, value := range values {
			token := &models.Token{
				ID:        uuid.NewString(),
				Value:     value,
				CreatedAt: time.Now().UTC(),
			}

			res, err := tx.NewInsert().
				Model(token).
				On("CONFLICT (value) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return err
			}

			rows, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if rows == 0 {
				result.Duplicates++
			} else {
				result.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return BulkInsertResult{}, r.HandleError("bulk_insert", "token", err)
	}
	return result, nil
}

// BulkDelete removes up to count tokens created at or after the anchor's
// creation time, oldest first, together with their delivery rows. The anchor
// may be a token id or its opaque value. Runs in one transaction so an
// in-flight claim against a doomed token either completes first or fails as
// a plain conflict.
func (r *tokenRepository) BulkDelete(ctx context.Context, anchor string, count int) (BulkDeleteResult, error) {
	var result BulkDeleteResult

	err := r.Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		anchorToken := new(models.Token)
		q := tx.NewSelect().Model(anchorToken).Limit(1)
		if _, err := uuid.Parse(anchor); err == nil {
			q = q.Where("t.id = ?", anchor)
		} else {
			q = q.Where("t.value = ?", anchor)
		}
		if err := q.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &NotFoundError{Entity: "token", ID: anchor}
			}
			return err
		}

		var tokenIDs []string
		err := tx.NewSelect().
			Model((*models.Token)(nil)).
			Column("id").
			Where("t.created_at >= ?", anchorToken.CreatedAt).
			Order("created_at ASC").
			Limit(count).
			Scan(ctx, &tokenIDs)
		if err != nil {
			return err
		}
		if len(tokenIDs) == 0 {
			return &NotFoundError{Entity: "token", ID: anchor}
		}

		// Deliveries go first to satisfy referential integrity.
		res, err := tx.NewDelete().
			Model((*models.Delivery)(nil)).
			Where("d.token_id IN (?)", bun.In(tokenIDs)).
			Exec(ctx)
		if err != nil {
			return err
		}
		deliveries, err := res.RowsAffected()
		if err != nil {
			return err
		}

		res, err = tx.NewDelete().
			Model((*models.Token)(nil)).
			Where("t.id IN (?)", bun.In(tokenIDs)).
			Exec(ctx)
		if err != nil {
			return err
		}
		tokens, err := res.RowsAffected()
		if err != nil {
			return err
		}

		result.DeletedTokens = int(tokens)
		result.DeletedDeliveries = int(deliveries)
		return nil
	})
	if err != nil {
		var nfe *NotFoundError
		if errors.As(err, &nfe) {
			return BulkDeleteResult{}, nfe
		}
		return BulkDeleteResult{}, r.HandleError("bulk_delete", "token", err)
	}
	return result, nil
}

func (r *tokenRepository) List(ctx context.Context, filter TokenFilter, limit, offset int) ([]*models.Token, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var tokens []*models.Token
	q := r.db.NewSelect().
		Model(&tokens).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset)

	switch filter {
	case FilterAvailable:
		q = q.Where("t.claim_count = 0")
	case FilterPartial:
		q = q.Where("t.claim_count = 1")
	case FilterFull:
		q = q.Where("t.claim_count >= ?", models.MaxClaims)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, r.HandleError("list", "token", err)
	}
	return tokens, nil
}

func (r *tokenRepository) CountAvailable(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Token)(nil)).
		Where("t.claim_count < ?", models.MaxClaims).
		Count(ctx)
	if err != nil {
		return 0, r.HandleError("count_available", "token", err)
	}
	return count, nil
}

func (r *tokenRepository) CountExhausted(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Token)(nil)).
		Where("t.claim_count >= ?", models.MaxClaims).
		Count(ctx)
	if err != nil {
		return 0, r.HandleError("count_exhausted", "token", err)
	}
	return count, nil
}
