package giveaway

import (
	"context"
	"encoding/json"

	"creditplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NotifyPayload is the body of a recipient notification task.
type NotifyPayload struct {
	RunID       string  `json:"run_id"`
	EntryID     string  `json:"entry_id"`
	RecipientID string  `json:"recipient_id"`
	Amount      float64 `json:"amount"`
}

func NewRecipientNotifyTask(p NotifyPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.GiveawayNotifyRecipient, payload), nil
}

// HandleRecipientNotify delivers the "you received credits" notification for
// one history entry. Delivery transports live behind the notifier; today that
// is a structured log line consumed downstream.
func (s *Service) HandleRecipientNotify(ctx context.Context, t *asynq.Task) error {
	var p NotifyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}

	entry, err := s.entries.FindOne(ctx, &GiveawayHistoryEntry{EntryID: p.EntryID})
	if err != nil {
		return err
	}
	if entry == nil {
		// Entry gone means the run was rolled back after enqueue; nothing to say.
		zap.L().Warn("notify task for missing history entry", zap.String("entry_id", p.EntryID))
		return nil
	}

	zap.L().Info("recipient notified",
		zap.String("run_id", entry.RunID),
		zap.String("recipient_id", entry.RecipientID),
		zap.String("giver_name", entry.GiverName),
		zap.Float64("amount", entry.AmountReceived),
	)
	return nil
}
