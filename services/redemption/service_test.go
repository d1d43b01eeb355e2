package redemption

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"creditplane/pkg/config"
	"creditplane/pkg/errutil"
	"creditplane/services/account"
	"creditplane/services/identity"
	"creditplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeGenerator struct {
	mu   sync.Mutex
	next int
	err  error
}

func (g *fakeGenerator) NextCode(ctx context.Context, pool string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%03d", pool, g.next), nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &account.Account{}, &RedemptionCode{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Economy.MaxCodesPerBatch = 5

	return NewService(ServiceParams{
		DB:        db,
		Node:      node,
		Config:    cfg,
		Generator: &fakeGenerator{},
	})
}

func requireStatus(t *testing.T, err error, want errutil.CoreStatus) {
	t.Helper()

	var be errutil.BaseError
	require.True(t, errors.As(err, &be), "expected BaseError, got %v", err)
	require.Equal(t, want, be.Status())
}

func TestRedeemSuccess(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.codes.Create(ctx, &RedemptionCode{Code: "abc123", Pool: PoolGift}))
	require.NoError(t, svc.accounts.Create(ctx, &account.Account{ID: "user-1"}))

	caller := identity.Caller{UserID: "user-1", DisplayName: "User One"}
	redeemed, err := svc.Redeem(ctx, caller, PoolGift, "abc123")
	require.NoError(t, err)
	require.True(t, redeemed.IsUsed)
	require.NotNil(t, redeemed.UsedBy)
	require.Equal(t, "user-1", *redeemed.UsedBy)
	require.NotNil(t, redeemed.UsedAt)

	acc, err := svc.accounts.FindOne(ctx, &account.Account{ID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), acc.RedeemedGiftCodes)
	require.Equal(t, int64(0), acc.RedeemedThinkCodes)
}

func TestRedeemCreatesAccountOnFirstContact(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.codes.Create(ctx, &RedemptionCode{Code: "first", Pool: PoolThink}))

	caller := identity.Caller{UserID: "new-user", DisplayName: "Newcomer", PhotoURL: "https://example.com/p.png"}
	_, err := svc.Redeem(ctx, caller, PoolThink, "first")
	require.NoError(t, err)

	acc, err := svc.accounts.FindOne(ctx, &account.Account{ID: "new-user"})
	require.NoError(t, err)
	require.NotNil(t, acc)
	require.Equal(t, "Newcomer", acc.DisplayName)
	require.Equal(t, int64(1), acc.RedeemedThinkCodes)
	require.Equal(t, int64(0), acc.RedeemedGiftCodes)
	require.Equal(t, float64(0), acc.Credits)
}

func TestRedeemUnknownCode(t *testing.T) {
	svc := newTestService(t)

	caller := identity.Caller{UserID: "user-1"}
	_, err := svc.Redeem(context.Background(), caller, PoolGift, "nope")
	requireStatus(t, err, errutil.StatusUnprocessableEntity)
}

func TestRedeemUsedCodeRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.codes.Create(ctx, &RedemptionCode{Code: "abc123", Pool: PoolGift}))

	caller := identity.Caller{UserID: "user-1"}
	_, err := svc.Redeem(ctx, caller, PoolGift, "abc123")
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, identity.Caller{UserID: "user-2"}, PoolGift, "abc123")
	requireStatus(t, err, errutil.StatusUnprocessableEntity)

	// Rejected attempt leaves both the code owner and the counter untouched.
	acc, err := svc.accounts.FindOne(ctx, &account.Account{ID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), acc.RedeemedGiftCodes)

	other, err := svc.accounts.FindOne(ctx, &account.Account{ID: "user-2"})
	require.NoError(t, err)
	require.Nil(t, other)
}

func TestRedeemWrongPool(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.codes.Create(ctx, &RedemptionCode{Code: "giftonly", Pool: PoolGift}))

	_, err := svc.Redeem(ctx, identity.Caller{UserID: "user-1"}, PoolThink, "giftonly")
	requireStatus(t, err, errutil.StatusUnprocessableEntity)

	code, err := svc.codes.FindOne(ctx, &RedemptionCode{Code: "giftonly"})
	require.NoError(t, err)
	require.False(t, code.IsUsed)
}

func TestRedeemInvalidInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Redeem(ctx, identity.Caller{UserID: "user-1"}, "bogus", "abc123")
	requireStatus(t, err, errutil.StatusBadRequest)

	_, err = svc.Redeem(ctx, identity.Caller{UserID: "user-1"}, PoolGift, "   ")
	requireStatus(t, err, errutil.StatusBadRequest)

	_, err = svc.Redeem(ctx, identity.Caller{}, PoolGift, "abc123")
	requireStatus(t, err, errutil.StatusUnauthorized)
}

func TestRedeemConcurrentSingleWinner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.codes.Create(ctx, &RedemptionCode{Code: "contested", Pool: PoolGift}))

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, userID := range []string{"user-a", "user-b"} {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := svc.Redeem(ctx, identity.Caller{UserID: userID}, PoolGift, "contested")
			results <- err
		}(userID)
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
}

func TestGenerateCodesRequiresAdmin(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GenerateCodes(context.Background(), identity.Caller{UserID: "user-1"}, PoolGift, 3)
	requireStatus(t, err, errutil.StatusForbidden)
}

func TestGenerateCodes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	admin := identity.Caller{UserID: "admin-1", IsAdmin: true}
	codes, err := svc.GenerateCodes(ctx, admin, PoolGift, 3)
	require.NoError(t, err)
	require.Len(t, codes, 3)

	for _, code := range codes {
		require.False(t, code.IsUsed)
		require.Equal(t, PoolGift, code.Pool)
		require.Equal(t, "admin-1", code.CreatedBy)
	}

	count, err := svc.codes.Count(ctx, &RedemptionCode{Pool: PoolGift})
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestGenerateCodesBatchLimit(t *testing.T) {
	svc := newTestService(t)
	admin := identity.Caller{UserID: "admin-1", IsAdmin: true}

	_, err := svc.GenerateCodes(context.Background(), admin, PoolGift, 6)
	requireStatus(t, err, errutil.StatusBadRequest)

	_, err = svc.GenerateCodes(context.Background(), admin, PoolGift, 0)
	requireStatus(t, err, errutil.StatusBadRequest)
}

func TestListCodes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := identity.Caller{UserID: "admin-1", IsAdmin: true}

	userID := "user-1"
	require.NoError(t, svc.codes.Create(ctx, &RedemptionCode{Code: "g-1", Pool: PoolGift}))
	require.NoError(t, svc.codes.Create(ctx, &RedemptionCode{Code: "g-2", Pool: PoolGift, IsUsed: true, UsedBy: &userID}))
	require.NoError(t, svc.codes.Create(ctx, &RedemptionCode{Code: "t-1", Pool: PoolThink}))

	all, err := svc.ListCodes(ctx, admin, ListCodesQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	gift, err := svc.ListCodes(ctx, admin, ListCodesQuery{Pool: PoolGift})
	require.NoError(t, err)
	require.Len(t, gift, 2)

	used := true
	usedOnly, err := svc.ListCodes(ctx, admin, ListCodesQuery{Used: &used})
	require.NoError(t, err)
	require.Len(t, usedOnly, 1)
	require.Equal(t, "g-2", usedOnly[0].Code)

	_, err = svc.ListCodes(ctx, identity.Caller{UserID: "user-1"}, ListCodesQuery{})
	requireStatus(t, err, errutil.StatusForbidden)
}
