package account

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creditplane/pkg/db/option"
	"creditplane/pkg/errutil"
	"creditplane/pkg/repository"
	"creditplane/services/testutil"
)

type repoMock[T any] struct {
	findOneFn func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] { return m }

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error { return nil }

func (m *repoMock[T]) Update(ctx context.Context, resourceID string, resource any) error {
	return nil
}

func (m *repoMock[T]) BatchCreate(ctx context.Context, resources []*T) error { return nil }

func (m *repoMock[T]) BatchUpdate(ctx context.Context, resources []*T) error { return nil }

func (m *repoMock[T]) Count(ctx context.Context, query *T) (int64, error) { return 0, nil }

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Account{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func requireStatus(t *testing.T, err error, want errutil.CoreStatus) {
	t.Helper()

	var be errutil.BaseError
	require.True(t, errors.As(err, &be), "expected BaseError, got %v", err)
	require.Equal(t, want, be.Status())
}

func TestNewService(t *testing.T) {
	svc := newTestService(t)
	require.NotNil(t, svc.accounts)
}

func TestGetAccountStoreFailure(t *testing.T) {
	storeErr := errors.New("connection reset")
	svc := &Service{
		accounts: &repoMock[Account]{
			findOneFn: func(ctx context.Context, _ *Account, opts ...option.QueryOption) (*Account, error) {
				return nil, storeErr
			},
		},
	}

	_, err := svc.GetAccount(context.Background(), "user-1")
	require.ErrorIs(t, err, storeErr)
}

func TestGetAccountNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetAccount(context.Background(), "missing")
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestGetBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.accounts.Create(ctx, &Account{
		ID:                "user-1",
		DisplayName:       "User One",
		Credits:           250,
		RedeemedGiftCodes: 3,
	}))

	balance, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", balance.AccountID)
	require.Equal(t, float64(250), balance.Credits)
	require.Equal(t, int64(3), balance.RedeemedGiftCodes)
	require.Equal(t, int64(0), balance.RedeemedThinkCodes)
}

func TestSpendCreditsSuccess(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.accounts.Create(ctx, &Account{ID: "user-1", Credits: 100}))

	require.NoError(t, svc.SpendCredits(ctx, "user-1", 40, "order-1"))

	acc, err := svc.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, float64(60), acc.Credits)
}

func TestSpendCreditsInsufficient(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.accounts.Create(ctx, &Account{ID: "user-1", Credits: 10}))

	err := svc.SpendCredits(ctx, "user-1", 25, "order-1")
	requireStatus(t, err, errutil.StatusUnprocessableEntity)

	acc, err := svc.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, float64(10), acc.Credits)
}

func TestSpendCreditsUnknownAccount(t *testing.T) {
	svc := newTestService(t)

	err := svc.SpendCredits(context.Background(), "missing", 5, "order-1")
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestSpendCreditsInvalidAmount(t *testing.T) {
	svc := newTestService(t)

	for _, amount := range []float64{0, -10} {
		err := svc.SpendCredits(context.Background(), "user-1", amount, "order-1")
		requireStatus(t, err, errutil.StatusBadRequest)
	}
}

func TestSpendCreditsNeverNegative(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.accounts.Create(ctx, &Account{ID: "user-1", Credits: 50}))

	var wg sync.WaitGroup
	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.SpendCredits(ctx, "user-1", 30, "race")
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			requireStatus(t, err, errutil.StatusUnprocessableEntity)
		}
	}
	require.Equal(t, 1, succeeded)

	acc, err := svc.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, float64(20), acc.Credits)
}
