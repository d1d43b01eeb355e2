package giveaway

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"creditplane/pkg/db/option"
	"creditplane/pkg/errutil"
	"creditplane/pkg/metrics"
	"creditplane/pkg/rediskey"
	"creditplane/pkg/repository"
	"creditplane/pkg/task"
	"creditplane/pkg/taskname"
	"creditplane/services/account"
	"creditplane/services/identity"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	rdb  *redis.Client
	enq  task.Enqueuer

	accounts repository.Repository[account.Account]
	runs     repository.Repository[GiveawayRun]
	entries  repository.Repository[GiveawayHistoryEntry]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Redis    *redis.Client `optional:"true"`
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		rdb:  p.Redis,
		enq:  p.Enqueuer,

		accounts: repository.ProvideStore[account.Account](p.DB),
		runs:     repository.ProvideStore[GiveawayRun](p.DB),
		entries:  repository.ProvideStore[GiveawayHistoryEntry](p.DB),
	}
}

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// Result is a completed distribution: the run record plus the per-recipient
// history entries written with it.
type Result struct {
	Run     *GiveawayRun
	Entries []*GiveawayHistoryEntry
}

// Distribute splits amount across all accounts in proportion to their
// redeemed gift codes. Credit increments, history entries and the run record
// commit in one transaction; a failure anywhere leaves nothing applied.
//
// The account set is read under row locks, so a redemption landing mid-run
// waits rather than racing the payout.
func (s *Service) Distribute(ctx context.Context, caller identity.Caller, amount float64) (*Result, error) {
	if !caller.IsAdmin {
		return nil, errutil.Forbidden("distribution requires admin")
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, errutil.BadRequest("amount must be a positive number")
	}

	zapLog := zap.L().With(traceFields(ctx)...).With(
		zap.String("giver_id", caller.UserID),
		zap.Float64("total_amount", amount),
	)

	var result *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Zero-share accounts contribute nothing to the denominator, so the
		// locked read can skip them.
		accounts, err := s.accounts.WithTrx(tx).Find(ctx, &account.Account{},
			option.ApplyOperator(option.Condition{Field: "redeemed_gift_codes", Operator: option.GT, Value: 0}),
			option.WithLockingUpdate(),
		)
		if err != nil {
			zapLog.Error("failed to read accounts", zap.Error(err))
			return err
		}

		var totalShares int64
		for _, acc := range accounts {
			totalShares += acc.RedeemedGiftCodes
		}
		if totalShares == 0 {
			return errutil.UnprocessableEntity("no eligible recipients")
		}

		now := time.Now()
		run := &GiveawayRun{
			RunID:         s.node.Generate().String(),
			GiverID:       caller.UserID,
			GiverName:     caller.DisplayName,
			GiverPhotoURL: caller.PhotoURL,
			TotalAmount:   amount,
			TotalShares:   totalShares,
			CreatedAt:     now,
		}

		var entries []*GiveawayHistoryEntry
		for _, acc := range accounts {
			if acc.RedeemedGiftCodes == 0 {
				continue
			}

			creditsToGive := amount * float64(acc.RedeemedGiftCodes) / float64(totalShares)

			res := tx.Model(&account.Account{}).
				Where("account_id = ?", acc.ID).
				Updates(map[string]any{
					"credits":    gorm.Expr("credits + ?", creditsToGive),
					"updated_at": now,
				})
			if res.Error != nil {
				zapLog.Error("failed to credit recipient", zap.String("recipient_id", acc.ID), zap.Error(res.Error))
				return res.Error
			}

			entries = append(entries, &GiveawayHistoryEntry{
				EntryID:        s.node.Generate().String(),
				RunID:          run.RunID,
				RecipientID:    acc.ID,
				GiverID:        caller.UserID,
				GiverName:      caller.DisplayName,
				GiverPhotoURL:  caller.PhotoURL,
				AmountReceived: creditsToGive,
				CreatedAt:      now,
			})
		}

		run.RecipientCount = len(entries)
		if metadata, err := json.Marshal(map[string]any{"share_basis": "redeemed_gift_codes"}); err == nil {
			run.Metadata = metadata
		}

		if err := s.entries.WithTrx(tx).BatchCreate(ctx, entries); err != nil {
			zapLog.Error("failed to write history entries", zap.Error(err))
			return err
		}
		if err := s.runs.WithTrx(tx).Create(ctx, run); err != nil {
			zapLog.Error("failed to write run record", zap.Error(err))
			return err
		}

		result = &Result{Run: run, Entries: entries}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.GiveawayRunsTotal.Inc()
	metrics.GiveawayCreditsDistributed.Add(amount)

	s.notifyRecipients(ctx, result)

	zapLog.Info("distribution committed",
		zap.String("run_id", result.Run.RunID),
		zap.Int64("total_shares", result.Run.TotalShares),
		zap.Int("recipients", result.Run.RecipientCount),
	)
	return result, nil
}

// notifyRecipients fans out post-commit signals: a pub/sub nudge per
// recipient so open history views refresh, and a background notification
// task. Both are best effort; the distribution is already durable.
func (s *Service) notifyRecipients(ctx context.Context, result *Result) {
	for _, entry := range result.Entries {
		if s.rdb != nil {
			channel := rediskey.BuildHistoryChannel(entry.RecipientID)
			if err := s.rdb.Publish(ctx, channel, result.Run.RunID).Err(); err != nil {
				zap.L().With(traceFields(ctx)...).Warn("failed to publish history signal",
					zap.String("channel", channel), zap.Error(err))
			}
		}

		if s.enq != nil {
			notifyTask, err := NewRecipientNotifyTask(NotifyPayload{
				RunID:       entry.RunID,
				EntryID:     entry.EntryID,
				RecipientID: entry.RecipientID,
				Amount:      entry.AmountReceived,
			})
			if err != nil {
				zap.L().With(traceFields(ctx)...).Warn("failed to build notify task", zap.Error(err))
				continue
			}
			if _, err := s.enq.Enqueue(notifyTask, asynq.Queue("low")); err != nil {
				zap.L().With(traceFields(ctx)...).Warn("failed to enqueue notify task",
					zap.String("task_type", taskname.GiveawayNotifyRecipient), zap.Error(err))
			}
		}
	}
}

// GetRun returns a single run record.
func (s *Service) GetRun(ctx context.Context, runID string) (*GiveawayRun, error) {
	run, err := s.runs.FindOne(ctx, &GiveawayRun{RunID: runID})
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, errutil.NotFound("giveaway run not found")
	}
	return run, nil
}

// ListRuns returns distribution runs newest first.
func (s *Service) ListRuns(ctx context.Context, caller identity.Caller, limit int) ([]*GiveawayRun, error) {
	if !caller.IsAdmin {
		return nil, errutil.Forbidden("run listing requires admin")
	}

	return s.runs.Find(ctx, &GiveawayRun{},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit),
	)
}
