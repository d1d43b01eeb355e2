package history

import (
	"context"

	"creditplane/pkg/db/option"
	"creditplane/pkg/errutil"
	"creditplane/pkg/rediskey"
	"creditplane/pkg/repository"
	"creditplane/services/giveaway"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the read side of giveaway history: point-in-time listings plus a
// live view that refreshes whenever a distribution credits the user.
type Service struct {
	db  *gorm.DB
	rdb *redis.Client

	entries repository.Repository[giveaway.GiveawayHistoryEntry]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Redis *redis.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:  p.DB,
		rdb: p.Redis,

		entries: repository.ProvideStore[giveaway.GiveawayHistoryEntry](p.DB),
	}
}

// ListHistory returns the user's received entries, most recent first.
func (s *Service) ListHistory(ctx context.Context, userID string, limit int) ([]*giveaway.GiveawayHistoryEntry, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user id is required")
	}

	return s.entries.Find(ctx, &giveaway.GiveawayHistoryEntry{RecipientID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit),
	)
}

// Watch streams history snapshots for the user: one immediately, then a fresh
// one each time a distribution signals the user's channel. The stream closes
// when ctx is done. Snapshots are re-queried rather than patched, so a missed
// signal costs staleness, never corruption.
func (s *Service) Watch(ctx context.Context, userID string) (<-chan []*giveaway.GiveawayHistoryEntry, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user id is required")
	}
	if s.rdb == nil {
		return nil, errutil.ServiceUnavailable("live history requires redis")
	}

	sub := s.rdb.Subscribe(ctx, rediskey.BuildHistoryChannel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, errutil.ServiceUnavailable("failed to subscribe to history channel", errutil.WithErr(err))
	}

	out := make(chan []*giveaway.GiveawayHistoryEntry, 1)

	emit := func() {
		entries, err := s.ListHistory(ctx, userID, 0)
		if err != nil {
			zap.L().Warn("failed to refresh history snapshot",
				zap.String("user_id", userID), zap.Error(err))
			return
		}
		select {
		case out <- entries:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(out)
		defer sub.Close()

		emit()

		signals := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				emit()
			}
		}
	}()

	return out, nil
}
