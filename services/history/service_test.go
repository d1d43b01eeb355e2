package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"creditplane/pkg/errutil"
	"creditplane/services/giveaway"
	"creditplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &giveaway.GiveawayHistoryEntry{})
	return NewService(ServiceParams{DB: db})
}

func requireStatus(t *testing.T, err error, want errutil.CoreStatus) {
	t.Helper()

	var be errutil.BaseError
	require.True(t, errors.As(err, &be), "expected BaseError, got %v", err)
	require.Equal(t, want, be.Status())
}

func TestListHistoryOrdering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, entryID := range []string{"e-1", "e-2", "e-3"} {
		require.NoError(t, svc.entries.Create(ctx, &giveaway.GiveawayHistoryEntry{
			EntryID:        entryID,
			RunID:          "run-1",
			RecipientID:    "user-1",
			GiverID:        "admin-1",
			AmountReceived: float64(10 * (i + 1)),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, svc.entries.Create(ctx, &giveaway.GiveawayHistoryEntry{
		EntryID:     "other",
		RunID:       "run-1",
		RecipientID: "user-2",
		GiverID:     "admin-1",
		CreatedAt:   base,
	}))

	entries, err := svc.ListHistory(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Most recent first.
	require.Equal(t, "e-3", entries[0].EntryID)
	require.Equal(t, "e-2", entries[1].EntryID)
	require.Equal(t, "e-1", entries[2].EntryID)
	for _, entry := range entries {
		require.Equal(t, "user-1", entry.RecipientID)
	}
}

func TestListHistoryLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.entries.Create(ctx, &giveaway.GiveawayHistoryEntry{
			EntryID:     string(rune('a' + i)),
			RunID:       "run-1",
			RecipientID: "user-1",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := svc.ListHistory(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestListHistoryEmpty(t *testing.T) {
	svc := newTestService(t)

	entries, err := svc.ListHistory(context.Background(), "nobody", 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestListHistoryRequiresUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ListHistory(context.Background(), "", 0)
	requireStatus(t, err, errutil.StatusBadRequest)
}

func TestWatchWithoutRedis(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Watch(context.Background(), "user-1")
	requireStatus(t, err, errutil.StatusServiceUnavailable)
}
