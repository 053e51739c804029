package learning

import (
	"github.com/smallbiznis/learnboard/internal/learning/domain"
	"github.com/smallbiznis/learnboard/internal/learning/repository"
	"github.com/smallbiznis/learnboard/internal/learning/service"
	"go.uber.org/fx"
)

var Module = fx.Module("learning.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(
		func(s *service.Service) domain.Service { return s },
		func(s *service.Service) domain.EventLog { return s },
	),
)
