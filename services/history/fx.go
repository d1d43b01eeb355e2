package history

import (
	"go.uber.org/fx"
)

var Module = fx.Module("history.service",
	fx.Provide(NewService),
)
