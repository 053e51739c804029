package membership

import (
	"github.com/smallbiznis/learnboard/internal/membership/repository"
	"github.com/smallbiznis/learnboard/internal/membership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membership.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
