package allocation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/mock/gomock"

	"github.com/huhumeme2002/Webtokenv2/webtoken/allocation/mock"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database/models"
	"github.com/huhumeme2002/Webtokenv2/webtoken/database/repositories"
)

var (
	testNow      = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	testCooldown = 15 * time.Minute
)

func activeKey() *models.Key {
	return &models.Key{
		ID:        "key-1",
		Key:       "SECRET-CREDENTIAL",
		IsActive:  true,
		ExpiresAt: testNow.Add(24 * time.Hour),
	}
}

func passthroughTx(runner *mock.MockTxRunner) {
	runner.EXPECT().
		RunInTx(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ *sql.TxOptions, fn func(context.Context, bun.Tx) error) error {
			return fn(ctx, bun.Tx{})
		}).
		AnyTimes()
}

func newTestEngine(runner *mock.MockTxRunner, dir *mock.MockDirectory, pool *mock.MockPool) *Engine {
	e := NewEngine(runner, dir, pool, testCooldown, 3)
	e.now = func() time.Time { return testNow }
	e.sleep = func(time.Duration) {}
	e.savepoint = func(ctx context.Context, tx bun.Tx, fn func(context.Context, bun.Tx) error) error {
		return fn(ctx, tx)
	}
	return e
}

func TestEngine_Claim_Unauthorized(t *testing.T) {
	inactive := activeKey()
	inactive.IsActive = false

	expired := activeKey()
	expired.ExpiresAt = testNow.Add(-time.Hour)

	tests := []struct {
		name string
		key  *models.Key
		err  error
	}{
		{name: "unknown key", key: nil, err: &repositories.NotFoundError{Entity: "key", ID: "key-1"}},
		{name: "inactive key", key: inactive},
		{name: "expired key", key: expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			dir := mock.NewMockDirectory(ctrl)
			pool := mock.NewMockPool(ctrl)
			runner := mock.NewMockTxRunner(ctrl)

			dir.EXPECT().GetByID(gomock.Any(), "key-1").Return(tt.key, tt.err)

			e := newTestEngine(runner, dir, pool)
			_, err := e.Claim(context.Background(), "key-1")
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Claim() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestEngine_Claim_RateLimitedPreCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mock.NewMockDirectory(ctrl)
	pool := mock.NewMockPool(ctrl)
	runner := mock.NewMockTxRunner(ctrl)

	key := activeKey()
	last := testNow.Add(-5 * time.Minute)
	key.LastTokenAt = &last

	dir.EXPECT().GetByID(gomock.Any(), "key-1").Return(key, nil)

	e := newTestEngine(runner, dir, pool)
	_, err := e.Claim(context.Background(), "key-1")

	var rle *RateLimitedError
	if !errors.As(err, &rle) {
		t.Fatalf("Claim() error = %v, want *RateLimitedError", err)
	}
	if want := last.Add(testCooldown); !rle.BlockedUntil.Equal(want) {
		t.Errorf("BlockedUntil = %v, want %v", rle.BlockedUntil, want)
	}
}

func TestEngine_Claim_CooldownRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mock.NewMockDirectory(ctrl)
	pool := mock.NewMockPool(ctrl)
	runner := mock.NewMockTxRunner(ctrl)

	// First read passes the pre-check; the re-read after the lost race
	// still carries no issue timestamp, so the recomputed window starts
	// at the evaluation instant.
	dir.EXPECT().GetByID(gomock.Any(), "key-1").Return(activeKey(), nil).Times(2)
	dir.EXPECT().
		MarkIssuedNow(gomock.Any(), gomock.Any(), "key-1", testCooldown).
		Return(time.Time{}, repositories.ErrCooldownActive)
	passthroughTx(runner)

	e := newTestEngine(runner, dir, pool)
	_, err := e.Claim(context.Background(), "key-1")

	var rle *RateLimitedError
	if !errors.As(err, &rle) {
		t.Fatalf("Claim() error = %v, want *RateLimitedError", err)
	}
	if want := testNow.Add(testCooldown); !rle.BlockedUntil.Equal(want) {
		t.Errorf("BlockedUntil = %v, want %v", rle.BlockedUntil, want)
	}
}

func TestEngine_Claim_CooldownRaceRecomputesWindow(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mock.NewMockDirectory(ctrl)
	pool := mock.NewMockPool(ctrl)
	runner := mock.NewMockTxRunner(ctrl)

	// The snapshot loaded before the transaction has an expired window, so
	// the pre-check passes; the concurrent claim then wins MarkIssuedNow
	// and commits a fresh last_token_at.
	stale := activeKey()
	last := testNow.Add(-testCooldown)
	stale.LastTokenAt = &last

	refreshed := activeKey()
	refreshed.LastTokenAt = &testNow

	gomock.InOrder(
		dir.EXPECT().GetByID(gomock.Any(), "key-1").Return(stale, nil),
		dir.EXPECT().
			MarkIssuedNow(gomock.Any(), gomock.Any(), "key-1", testCooldown).
			Return(time.Time{}, repositories.ErrCooldownActive),
		dir.EXPECT().GetByID(gomock.Any(), "key-1").Return(refreshed, nil),
	)
	passthroughTx(runner)

	e := newTestEngine(runner, dir, pool)
	_, err := e.Claim(context.Background(), "key-1")

	var rle *RateLimitedError
	if !errors.As(err, &rle) {
		t.Fatalf("Claim() error = %v, want *RateLimitedError", err)
	}
	// The surfaced retry time must come from the winner's committed
	// timestamp, never from the stale snapshot.
	if !rle.BlockedUntil.After(testNow) {
		t.Errorf("BlockedUntil = %v, want after %v", rle.BlockedUntil, testNow)
	}
	if want := testNow.Add(testCooldown); !rle.BlockedUntil.Equal(want) {
		t.Errorf("BlockedUntil = %v, want %v", rle.BlockedUntil, want)
	}
}

func TestEngine_Claim_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mock.NewMockDirectory(ctrl)
	pool := mock.NewMockPool(ctrl)
	runner := mock.NewMockTxRunner(ctrl)

	issuedAt := testNow
	token := &models.Token{ID: "tok-1", Value: "OPAQUE-VALUE", ClaimCount: 1}

	dir.EXPECT().GetByID(gomock.Any(), "key-1").Return(activeKey(), nil)
	dir.EXPECT().
		MarkIssuedNow(gomock.Any(), gomock.Any(), "key-1", testCooldown).
		Return(issuedAt, nil)
	pool.EXPECT().Reserve(gomock.Any(), gomock.Any(), "key-1").Return(token, nil)
	pool.EXPECT().
		CommitReservation(gomock.Any(), gomock.Any(), "tok-1", "key-1").
		Return("OPAQUE-VALUE", nil)
	pool.EXPECT().RecordDelivery(gomock.Any(), gomock.Any(), "key-1", "tok-1").Return(nil)
	passthroughTx(runner)

	e := newTestEngine(runner, dir, pool)
	grant, err := e.Claim(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if grant.Token != "OPAQUE-VALUE" {
		t.Errorf("Token = %q, want OPAQUE-VALUE", grant.Token)
	}
	if !grant.CreatedAt.Equal(issuedAt) {
		t.Errorf("CreatedAt = %v, want %v", grant.CreatedAt, issuedAt)
	}
	if want := issuedAt.Add(testCooldown); grant.NextAvailableAt == nil || !grant.NextAvailableAt.Equal(want) {
		t.Errorf("NextAvailableAt = %v, want %v", grant.NextAvailableAt, want)
	}
}

func TestEngine_Claim_ConflictRetriesNewCandidate(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mock.NewMockDirectory(ctrl)
	pool := mock.NewMockPool(ctrl)
	runner := mock.NewMockTxRunner(ctrl)

	first := &models.Token{ID: "tok-1", Value: "FIRST", ClaimCount: 1}
	second := &models.Token{ID: "tok-2", Value: "SECOND", ClaimCount: 1}

	dir.EXPECT().GetByID(gomock.Any(), "key-1").Return(activeKey(), nil)
	dir.EXPECT().
		MarkIssuedNow(gomock.Any(), gomock.Any(), "key-1", testCooldown).
		Return(testNow, nil)

	gomock.InOrder(
		pool.EXPECT().Reserve(gomock.Any(), gomock.Any(), "key-1").Return(first, nil),
		pool.EXPECT().
			CommitReservation(gomock.Any(), gomock.Any(), "tok-1", "key-1").
			Return("", repositories.ErrTokenConflict),
		pool.EXPECT().Reserve(gomock.Any(), gomock.Any(), "key-1").Return(second, nil),
		pool.EXPECT().
			CommitReservation(gomock.Any(), gomock.Any(), "tok-2", "key-1").
			Return("SECOND", nil),
		pool.EXPECT().RecordDelivery(gomock.Any(), gomock.Any(), "key-1", "tok-2").Return(nil),
	)
	passthroughTx(runner)

	e := newTestEngine(runner, dir, pool)
	savepoints := 0
	inner := e.savepoint
	e.savepoint = func(ctx context.Context, tx bun.Tx, fn func(context.Context, bun.Tx) error) error {
		savepoints++
		return inner(ctx, tx, fn)
	}

	grant, err := e.Claim(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if grant.Token != "SECOND" {
		t.Errorf("Token = %q, want SECOND", grant.Token)
	}
	// Each attempt gets its own savepoint; the failed first attempt must
	// not poison the second.
	if savepoints != 2 {
		t.Errorf("savepoint count = %d, want 2", savepoints)
	}
}

func TestEngine_Claim_RetriesExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mock.NewMockDirectory(ctrl)
	pool := mock.NewMockPool(ctrl)
	runner := mock.NewMockTxRunner(ctrl)

	token := &models.Token{ID: "tok-1", Value: "CONTESTED", ClaimCount: 1}

	dir.EXPECT().GetByID(gomock.Any(), "key-1").Return(activeKey(), nil)
	dir.EXPECT().
		MarkIssuedNow(gomock.Any(), gomock.Any(), "key-1", testCooldown).
		Return(testNow, nil)
	pool.EXPECT().Reserve(gomock.Any(), gomock.Any(), "key-1").Return(token, nil).Times(3)
	pool.EXPECT().
		CommitReservation(gomock.Any(), gomock.Any(), "tok-1", "key-1").
		Return("", repositories.ErrTokenConflict).
		Times(3)
	passthroughTx(runner)

	e := newTestEngine(runner, dir, pool)
	_, err := e.Claim(context.Background(), "key-1")
	if !errors.Is(err, ErrOutOfStock) {
		t.Errorf("Claim() error = %v, want ErrOutOfStock", err)
	}
}

func TestEngine_Claim_OutOfStock(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mock.NewMockDirectory(ctrl)
	pool := mock.NewMockPool(ctrl)
	runner := mock.NewMockTxRunner(ctrl)

	dir.EXPECT().GetByID(gomock.Any(), "key-1").Return(activeKey(), nil)
	dir.EXPECT().
		MarkIssuedNow(gomock.Any(), gomock.Any(), "key-1", testCooldown).
		Return(testNow, nil)
	pool.EXPECT().Reserve(gomock.Any(), gomock.Any(), "key-1").Return(nil, repositories.ErrNoTokens)
	passthroughTx(runner)

	e := newTestEngine(runner, dir, pool)
	_, err := e.Claim(context.Background(), "key-1")
	if !errors.Is(err, ErrOutOfStock) {
		t.Errorf("Claim() error = %v, want ErrOutOfStock", err)
	}
}

func TestEngine_Claim_DeliveryUniqueViolationRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mock.NewMockDirectory(ctrl)
	pool := mock.NewMockPool(ctrl)
	runner := mock.NewMockTxRunner(ctrl)

	first := &models.Token{ID: "tok-1", Value: "FIRST", ClaimCount: 0}
	second := &models.Token{ID: "tok-2", Value: "SECOND", ClaimCount: 0}

	dir.EXPECT().GetByID(gomock.Any(), "key-1").Return(activeKey(), nil)
	dir.EXPECT().
		MarkIssuedNow(gomock.Any(), gomock.Any(), "key-1", testCooldown).
		Return(testNow, nil)

	gomock.InOrder(
		pool.EXPECT().Reserve(gomock.Any(), gomock.Any(), "key-1").Return(first, nil),
		pool.EXPECT().
			CommitReservation(gomock.Any(), gomock.Any(), "tok-1", "key-1").
			Return("FIRST", nil),
		pool.EXPECT().
			RecordDelivery(gomock.Any(), gomock.Any(), "key-1", "tok-1").
			Return(repositories.ErrTokenConflict),
		pool.EXPECT().Reserve(gomock.Any(), gomock.Any(), "key-1").Return(second, nil),
		pool.EXPECT().
			CommitReservation(gomock.Any(), gomock.Any(), "tok-2", "key-1").
			Return("SECOND", nil),
		pool.EXPECT().RecordDelivery(gomock.Any(), gomock.Any(), "key-1", "tok-2").Return(nil),
	)
	passthroughTx(runner)

	e := newTestEngine(runner, dir, pool)
	savepoints := 0
	inner := e.savepoint
	e.savepoint = func(ctx context.Context, tx bun.Tx, fn func(context.Context, bun.Tx) error) error {
		savepoints++
		return inner(ctx, tx, fn)
	}

	grant, err := e.Claim(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if grant.Token != "SECOND" {
		t.Errorf("Token = %q, want SECOND", grant.Token)
	}
	// The unique violation aborts everything after it on a plain Postgres
	// transaction; the second attempt only works because the first ran in
	// its own savepoint.
	if savepoints != 2 {
		t.Errorf("savepoint count = %d, want 2", savepoints)
	}
}
