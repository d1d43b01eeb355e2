package giveaway

import (
	"creditplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("giveaway.service",
	fx.Provide(NewService),
)

// Worker registers the background task handlers on the asynq mux.
var Worker = fx.Module("giveaway.worker",
	fx.Provide(NewService),
	fx.Invoke(registerTaskHandlers),
)

func registerTaskHandlers(mux *asynq.ServeMux, service *Service) {
	mux.HandleFunc(taskname.GiveawayNotifyRecipient, service.HandleRecipientNotify)
}
