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

type NoticeRepository interface {
	GetLatest(ctx context.Context) (*models.Notice, error)
	GetLatestActive(ctx context.Context) (*models.Notice, error)
	Upsert(ctx context.Context, content string, mode models.NoticeDisplayMode, isActive bool) (*models.Notice, error)
}

type noticeRepository struct {
	*BaseRepository
	db *bun.DB
}

func NewNoticeRepository(db *bun.DB) NoticeRepository {
	return &noticeRepository{
		BaseRepository: NewBaseRepository(db),
		db:             db,
	}
}

func (r *noticeRepository) GetLatest(ctx context.Context) (*models.Notice, error) {
	notice := new(models.Notice)
	err := r.db.NewSelect().
		Model(notice).
		Order("updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("get_latest", "notice", err)
	}
	return notice, nil
}

func (r *noticeRepository) GetLatestActive(ctx context.Context) (*models.Notice, error) {
	notice := new(models.Notice)
	err := r.db.NewSelect().
		Model(notice).
		Where("n.is_active = TRUE").
		Order("updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, r.HandleError("get_latest_active", "notice", err)
	}
	return notice, nil
}

// Upsert replaces the latest notice in place, or creates the first one.
// There is a single logical announcement; history is not kept.
func (r *noticeRepository) Upsert(ctx context.Context, content string, mode models.NoticeDisplayMode, isActive bool) (*models.Notice, error) {
	latest, err := r.GetLatest(ctx)
	if err != nil {
		var nfe *NotFoundError
		if !errors.As(err, &nfe) && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		notice := &models.Notice{
			ID:          uuid.NewString(),
			Content:     content,
			DisplayMode: mode,
			IsActive:    isActive,
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		if _, err := r.db.NewInsert().Model(notice).Exec(ctx); err != nil {
			return nil, r.HandleError("create", "notice", err)
		}
		return notice, nil
	}

	latest.Content = content
	latest.DisplayMode = mode
	latest.IsActive = isActive
	latest.UpdatedAt = time.Now().UTC()

	_, err = r.db.NewUpdate().
		Model(latest).
		Column("content", "display_mode", "is_active", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, r.HandleError("update", "notice", err)
	}
	return latest, nil
}
