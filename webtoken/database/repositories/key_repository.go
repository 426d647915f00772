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

// ErrCooldownActive is returned by MarkIssuedNow when the conditional update
// affects zero rows: the key's cooldown window is still open as seen by the
// database clock. Callers treat it exactly like a rate-limit rejection.
var ErrCooldownActive = errors.New("claim cooldown still active")

type KeyRepository interface {
	Create(ctx context.Context, credential string, expiresAt time.Time) (*models.Key, error)
	GetByID(ctx context.Context, id string) (*models.Key, error)
	GetByCredential(ctx context.Context, credential string) (*models.Key, error)
	Search(ctx context.Context, query string, limit, offset int) ([]*models.Key, error)
	ToggleActive(ctx context.Context, id string) (*models.Key, error)
	MarkIssuedNow(ctx context.Context, idb bun.IDB, id string, cooldown time.Duration) (time.Time, error)
	CountDeliveries(ctx context.Context, keyID string) (int, error)
	CountActive(ctx context.Context) (int, error)
	CountExpired(ctx context.Context) (int, error)
}

type keyRepository struct {
	*BaseRepository
	db *bun.DB
}

func NewKeyRepository(db *bun.DB) KeyRepository {
	return &keyRepository{
		BaseRepository: NewBaseRepository(db),
		db:             db,
	}
}

func (r *keyRepository) Create(ctx context.Context, credential string, expiresAt time.Time) (*models.Key, error) {
	key := &models.Key{
		ID:        uuid.NewString(),
		Key:       credential,
		ExpiresAt: expiresAt,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.NewInsert().Model(key).Exec(ctx)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, &ConflictError{Entity: "key", Field: "key", Value: "<redacted>"}
		}
		return nil, r.HandleError("create", "key", err)
	}
	return key, nil
}

func (r *keyRepository) GetByID(ctx context.Context, id string) (*models.Key, error) {
	key := new(models.Key)
	err := r.db.NewSelect().
		Model(key).
		Where("k.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("get", "key", id, err)
	}
	return key, nil
}

func (r *keyRepository) GetByCredential(ctx context.Context, credential string) (*models.Key, error) {
	key := new(models.Key)
	err := r.db.NewSelect().
		Model(key).
		Where("k.key = ?", credential).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("get_by_credential", "key", err)
	}
	return key, nil
}

func (r *keyRepository) Search(ctx context.Context, query string, limit, offset int) ([]*models.Key, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var keys []*models.Key
	q := r.db.NewSelect().
		Model(&keys).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
	if query != "" {
		q = q.Where("k.key ILIKE ?", "%"+query+"%")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, r.HandleError("search", "key", err)
	}
	return keys, nil
}

// ToggleActive flips the active flag. Read-then-flip is enough here: the
// flag only restricts future claims, it never reverses a completed one.
func (r *keyRepository) ToggleActive(ctx context.Context, id string) (*models.Key, error) {
	key, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	key.IsActive = !key.IsActive
	_, err = r.db.NewUpdate().
		Model(key).
		Column("is_active").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, r.HandleErrorWithID("toggle", "key", id, err)
	}
	return key, nil
}

// MarkIssuedNow advances last_token_at, conditioned on the cooldown window
// having elapsed as evaluated by the database clock. This serializes
// per-key issuance: of two concurrent claims only one can win the update,
// the loser gets ErrCooldownActive.
func (r *keyRepository) MarkIssuedNow(ctx context.Context, idb bun.IDB, id string, cooldown time.Duration) (time.Time, error) {
	var lastTokenAt time.Time
	_, err := idb.NewUpdate().
		Model((*models.Key)(nil)).
		Set("last_token_at = now()").
		Where("id = ?", id).
		Where("(last_token_at IS NULL OR now() >= last_token_at + make_interval(secs => ?))", cooldown.Seconds()).
		Returning("last_token_at").
		Exec(ctx, &lastTokenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrCooldownActive
		}
		return time.Time{}, r.HandleErrorWithID("mark_issued", "key", id, err)
	}
	return lastTokenAt, nil
}

func (r *keyRepository) CountDeliveries(ctx context.Context, keyID string) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Delivery)(nil)).
		Where("d.key_id = ?", keyID).
		Count(ctx)
	if err != nil {
		return 0, r.HandleErrorWithID("count_deliveries", "key", keyID, err)
	}
	return count, nil
}

func (r *keyRepository) CountActive(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Key)(nil)).
		Where("k.is_active = TRUE").
		Where("k.expires_at > now()").
		Count(ctx)
	if err != nil {
		return 0, r.HandleError("count_active", "key", err)
	}
	return count, nil
}

func (r *keyRepository) CountExpired(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Key)(nil)).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("k.is_active = FALSE").WhereOr("k.expires_at <= now()")
		}).
		Count(ctx)
	if err != nil {
		return 0, r.HandleError("count_expired", "key", err)
	}
	return count, nil
}
