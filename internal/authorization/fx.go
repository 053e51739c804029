package authorization

import (
	"github.com/smallbiznis/learnboard/internal/cache"
	"go.uber.org/fx"
)

var Module = fx.Module("authorization",
	fx.Provide(cache.NewEmployeeCache),
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
