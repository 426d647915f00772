package services

import (
	"context"
	"testing"
	"time"

	"github.com/huhumeme2002/Webtokenv2/webtoken/database/models"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database/repositories"
)

type fakeNoticeRepo struct {
	notice      *models.Notice
	activeCalls int
	latestCalls int
	upserts     int
}

func (f *fakeNoticeRepo) GetLatest(ctx context.Context) (*models.Notice, error) {
	f.latestCalls++
	if f.notice == nil {
		return nil, &repositories.NotFoundError{Entity: "notice", ID: "latest"}
	}
	return f.notice, nil
}

func (f *fakeNoticeRepo) GetLatestActive(ctx context.Context) (*models.Notice, error) {
	f.activeCalls++
	if f.notice == nil || !f.notice.IsActive {
		return nil, &repositories.NotFoundError{Entity: "notice", ID: "active"}
	}
	return f.notice, nil
}

func (f *fakeNoticeRepo) Upsert(ctx context.Context, content string, mode models.NoticeDisplayMode, isActive bool) (*models.Notice, error) {
	f.upserts++
	f.notice = &models.Notice{
		ID:          "n-1",
		Content:     content,
		DisplayMode: mode,
		IsActive:    isActive,
		UpdatedAt:   time.Now(),
	}
	return f.notice, nil
}

func newTestNoticeService(t *testing.T, repo repositories.NoticeRepository) *NoticeService {
	t.Helper()
	svc, err := NewNoticeService(repo)
	if err != nil {
		t.Fatalf("NewNoticeService() error = %v", err)
	}
	return svc
}

func TestGetActiveCachesWithinTTL(t *testing.T) {
	repo := &fakeNoticeRepo{notice: &models.Notice{
		ID:          "n-1",
		Content:     "maintenance tonight",
		DisplayMode: models.NoticeModal,
		IsActive:    true,
	}}
	svc := newTestNoticeService(t, repo)

	for i := 0; i < 5; i++ {
		notice, err := svc.GetActive(context.Background())
		if err != nil {
			t.Fatalf("GetActive() error = %v", err)
		}
		if notice == nil || notice.Content != "maintenance tonight" {
			t.Fatalf("GetActive() = %+v, want cached notice", notice)
		}
	}

	if repo.activeCalls != 1 {
		t.Errorf("repo queried %d times, want 1", repo.activeCalls)
	}
}

func TestGetActiveRefetchesAfterTTL(t *testing.T) {
	repo := &fakeNoticeRepo{notice: &models.Notice{
		ID:       "n-1",
		Content:  "old",
		IsActive: true,
	}}
	svc := newTestNoticeService(t, repo)

	current := time.Now()
	svc.now = func() time.Time { return current }

	if _, err := svc.GetActive(context.Background()); err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}

	current = current.Add(noticeCacheTTL + time.Second)
	if _, err := svc.GetActive(context.Background()); err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}

	if repo.activeCalls != 2 {
		t.Errorf("repo queried %d times, want 2 after TTL expiry", repo.activeCalls)
	}
}

func TestGetActiveNoNoticeIsNotAnError(t *testing.T) {
	repo := &fakeNoticeRepo{}
	svc := newTestNoticeService(t, repo)

	notice, err := svc.GetActive(context.Background())
	if err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}
	if notice != nil {
		t.Errorf("GetActive() = %+v, want nil", notice)
	}
}

func TestSaveInvalidatesCache(t *testing.T) {
	repo := &fakeNoticeRepo{notice: &models.Notice{
		ID:       "n-1",
		Content:  "before",
		IsActive: true,
	}}
	svc := newTestNoticeService(t, repo)

	if _, err := svc.GetActive(context.Background()); err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}

	if _, err := svc.Save(context.Background(), "after", string(models.NoticeBoth), true); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	notice, err := svc.GetActive(context.Background())
	if err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}
	if notice.Content != "after" {
		t.Errorf("GetActive() content = %q, want updated notice", notice.Content)
	}
	if repo.activeCalls != 2 {
		t.Errorf("repo queried %d times, want refetch after save", repo.activeCalls)
	}
}

func TestSaveValidation(t *testing.T) {
	svc := newTestNoticeService(t, &fakeNoticeRepo{})

	tests := []struct {
		name    string
		content string
		mode    string
	}{
		{"empty content", "", "modal"},
		{"unknown display mode", "hello", "banner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Save(context.Background(), tt.content, tt.mode, true); err == nil {
				t.Error("Save() accepted invalid input")
			}
		})
	}
}
