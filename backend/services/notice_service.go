package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/huhumeme2002/Webtokenv2/webtoken/database/models"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database/repositories"
)

const (
	noticeCacheSize = 8
	noticeCacheTTL  = time.Minute

	activeNoticeKey = "active"
	latestNoticeKey = "latest"
)

type cachedNotice struct {
	notice    *models.Notice
	fetchedAt time.Time
}

// NoticeService serves the site notice. Reads go through a small LRU so
// the public endpoint does not hit the database on every page load.
type NoticeService struct {
	repo  repositories.NoticeRepository
	cache *lru.Cache

	now func() time.Time
}

// NewNoticeService creates a new notice service
func NewNoticeService(repo repositories.NoticeRepository) (*NoticeService, error) {
	cache, err := lru.New(noticeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create notice cache: %w", err)
	}

	return &NoticeService{
		repo:  repo,
		cache: cache,
		now:   time.Now,
	}, nil
}

// GetActive returns the notice if one is currently active, nil otherwise.
func (s *NoticeService) GetActive(ctx context.Context) (*models.Notice, error) {
	return s.get(ctx, activeNoticeKey, s.repo.GetLatestActive)
}

// GetLatest returns the stored notice regardless of active state, nil if
// none has ever been saved.
func (s *NoticeService) GetLatest(ctx context.Context) (*models.Notice, error) {
	return s.get(ctx, latestNoticeKey, s.repo.GetLatest)
}

// Save validates and persists the notice, then drops cached copies so the
// next read sees the update.
func (s *NoticeService) Save(ctx context.Context, content, displayMode string, isActive bool) (*models.Notice, error) {
	if content == "" {
		return nil, fmt.Errorf("notice content is required")
	}
	if !models.ValidDisplayMode(displayMode) {
		return nil, fmt.Errorf("invalid display mode: %s", displayMode)
	}

	notice, err := s.repo.Upsert(ctx, content, models.NoticeDisplayMode(displayMode), isActive)
	if err != nil {
		return nil, err
	}

	s.cache.Remove(activeNoticeKey)
	s.cache.Remove(latestNoticeKey)

	slog.Info("Notice updated",
		slog.String("type", "api"),
		slog.String("display_mode", displayMode),
		slog.Bool("is_active", isActive))

	return notice, nil
}

func (s *NoticeService) get(ctx context.Context, key string, fetch func(context.Context) (*models.Notice, error)) (*models.Notice, error) {
	if v, ok := s.cache.Get(key); ok {
		entry := v.(cachedNotice)
		if s.now().Sub(entry.fetchedAt) < noticeCacheTTL {
			return entry.notice, nil
		}
		s.cache.Remove(key)
	}

	notice, err := fetch(ctx)
	if err != nil {
		var nfe *repositories.NotFoundError
		if !errors.As(err, &nfe) {
			return nil, err
		}
		notice = nil
	}

	s.cache.Add(key, cachedNotice{notice: notice, fetchedAt: s.now()})
	return notice, nil
}
