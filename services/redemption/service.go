package redemption

import (
	"context"
	"strings"
	"time"

	"creditplane/pkg/config"
	"creditplane/pkg/db/option"
	"creditplane/pkg/errutil"
	"creditplane/pkg/metrics"
	"creditplane/pkg/repository"
	"creditplane/pkg/sequence"
	"creditplane/services/account"
	"creditplane/services/identity"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	cfg  *config.Config
	gen  sequence.Generator

	codes    repository.Repository[RedemptionCode]
	accounts repository.Repository[account.Account]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Config    *config.Config
	Generator sequence.Generator
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		cfg:  p.Config,
		gen:  p.Generator,

		codes:    repository.ProvideStore[RedemptionCode](p.DB),
		accounts: repository.ProvideStore[account.Account](p.DB),
	}
}

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

func counterColumn(pool string) string {
	if pool == PoolThink {
		return "redeemed_think_codes"
	}
	return "redeemed_gift_codes"
}

// Redeem consumes a single-use code on behalf of the caller. The code flip
// and the caller's counter bump commit together. Unknown codes and already
// used codes are indistinguishable to the caller.
func (s *Service) Redeem(ctx context.Context, caller identity.Caller, pool, codeString string) (*RedemptionCode, error) {
	pool = strings.TrimSpace(strings.ToLower(pool))
	codeString = strings.TrimSpace(codeString)

	if !ValidPool(pool) {
		return nil, errutil.BadRequest("unknown code pool")
	}
	if codeString == "" {
		return nil, errutil.BadRequest("code is required")
	}
	if caller.UserID == "" {
		return nil, errutil.Unauthorized("caller identity is required")
	}

	zapLog := zap.L().With(traceFields(ctx)...).With(
		zap.String("pool", pool),
		zap.String("user_id", caller.UserID),
	)

	var redeemed *RedemptionCode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		res := tx.Model(&RedemptionCode{}).
			Where("code = ? AND pool = ? AND is_used = ?", codeString, pool, false).
			Updates(map[string]any{
				"is_used": true,
				"used_by": caller.UserID,
				"used_at": now,
			})
		if res.Error != nil {
			zapLog.Error("failed to claim code", zap.Error(res.Error))
			return res.Error
		}

		if res.RowsAffected == 0 {
			return errutil.UnprocessableEntity("invalid or already used code")
		}

		counter := counterColumn(pool)
		bump := tx.Model(&account.Account{}).
			Where("account_id = ?", caller.UserID).
			Updates(map[string]any{
				counter:      gorm.Expr(counter+" + ?", 1),
				"updated_at": now,
			})
		if bump.Error != nil {
			zapLog.Error("failed to bump redemption counter", zap.Error(bump.Error))
			return bump.Error
		}

		if bump.RowsAffected == 0 {
			acc := &account.Account{
				ID:          caller.UserID,
				DisplayName: caller.DisplayName,
				PhotoURL:    caller.PhotoURL,
			}
			if pool == PoolThink {
				acc.RedeemedThinkCodes = 1
			} else {
				acc.RedeemedGiftCodes = 1
			}
			if err := s.accounts.WithTrx(tx).Create(ctx, acc); err != nil {
				zapLog.Error("failed to create account on first redemption", zap.Error(err))
				return err
			}
		}

		code, err := s.codes.WithTrx(tx).FindOne(ctx, &RedemptionCode{Code: codeString})
		if err != nil {
			return err
		}
		redeemed = code
		return nil
	})
	if err != nil {
		metrics.RedemptionsTotal.WithLabelValues(pool, "rejected").Inc()
		return nil, err
	}

	metrics.RedemptionsTotal.WithLabelValues(pool, "ok").Inc()
	zapLog.Info("code redeemed", zap.String("code", codeString))
	return redeemed, nil
}

// GenerateCodes mints a batch of unused codes into the given pool.
func (s *Service) GenerateCodes(ctx context.Context, caller identity.Caller, pool string, count int) ([]*RedemptionCode, error) {
	if !caller.IsAdmin {
		return nil, errutil.Forbidden("code generation requires admin")
	}

	pool = strings.TrimSpace(strings.ToLower(pool))
	if !ValidPool(pool) {
		return nil, errutil.BadRequest("unknown code pool")
	}
	if count <= 0 {
		return nil, errutil.BadRequest("count must be greater than zero")
	}
	if count > s.cfg.Economy.MaxCodesPerBatch {
		return nil, errutil.BadRequest("count exceeds batch limit")
	}

	codes := make([]*RedemptionCode, 0, count)
	for i := 0; i < count; i++ {
		value, err := s.gen.NextCode(ctx, pool)
		if err != nil {
			zap.L().With(traceFields(ctx)...).Error("failed to generate code", zap.Error(err))
			return nil, errutil.ServiceUnavailable("code generator unavailable", errutil.WithErr(err))
		}
		codes = append(codes, &RedemptionCode{
			Code:      value,
			Pool:      pool,
			CreatedBy: caller.UserID,
		})
	}

	if err := s.codes.BatchCreate(ctx, codes); err != nil {
		zap.L().With(traceFields(ctx)...).Error("failed to persist code batch", zap.Error(err))
		return nil, err
	}

	return codes, nil
}

type ListCodesQuery struct {
	Pool  string
	Used  *bool
	Limit int
}

// ListCodes returns codes newest first, optionally filtered by pool and
// used state.
func (s *Service) ListCodes(ctx context.Context, caller identity.Caller, query ListCodesQuery) ([]*RedemptionCode, error) {
	if !caller.IsAdmin {
		return nil, errutil.Forbidden("code listing requires admin")
	}

	if query.Pool != "" && !ValidPool(query.Pool) {
		return nil, errutil.BadRequest("unknown code pool")
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(query.Limit),
	}
	if query.Used != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "is_used",
			Operator: option.EQ,
			Value:    *query.Used,
		}))
	}

	return s.codes.Find(ctx, &RedemptionCode{Pool: query.Pool}, opts...)
}
