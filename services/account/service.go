package account

import (
	"context"
	"time"

	"creditplane/pkg/errutil"
	"creditplane/pkg/metrics"
	"creditplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	accounts repository.Repository[Account]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		accounts: repository.ProvideStore[Account](p.DB),
	}
}

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	acc, err := s.accounts.FindOne(ctx, &Account{ID: accountID})
	if err != nil {
		zap.L().With(traceFields(ctx)...).Error("failed to query account", zap.Error(err))
		return nil, err
	}

	if acc == nil {
		return nil, errutil.NotFound("account not found")
	}

	return acc, nil
}

func (s *Service) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	acc, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &Balance{
		AccountID:          acc.ID,
		Credits:            acc.Credits,
		RedeemedGiftCodes:  acc.RedeemedGiftCodes,
		RedeemedThinkCodes: acc.RedeemedThinkCodes,
		UpdatedAt:          acc.UpdatedAt,
	}, nil
}

// SpendCredits consumes credits from the account. The decrement is a single
// conditional UPDATE guarded on the current balance, so a balance can never
// go negative regardless of how many spenders race on the same account.
func (s *Service) SpendCredits(ctx context.Context, accountID string, amount float64, reference string) error {
	if amount <= 0 {
		return errutil.BadRequest("amount must be greater than zero")
	}

	zapLog := zap.L().With(traceFields(ctx)...).With(
		zap.String("account_id", accountID),
		zap.Float64("amount", amount),
		zap.String("reference", reference),
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Account{}).
			Where("account_id = ? AND credits >= ?", accountID, amount).
			Updates(map[string]any{
				"credits":    gorm.Expr("credits - ?", amount),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			zapLog.Error("failed to spend credits", zap.Error(res.Error))
			return res.Error
		}

		if res.RowsAffected == 0 {
			acc, err := s.accounts.WithTrx(tx).FindOne(ctx, &Account{ID: accountID})
			if err != nil {
				return err
			}
			if acc == nil {
				return errutil.NotFound("account not found")
			}
			return errutil.UnprocessableEntity("insufficient credits")
		}

		return nil
	})
	if err != nil {
		return err
	}

	metrics.CreditsSpentTotal.Add(amount)
	zapLog.Info("credits spent")
	return nil
}
