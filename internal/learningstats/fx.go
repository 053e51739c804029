package learningstats

import (
	learningdomain "github.com/smallbiznis/learnboard/internal/learning/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/refresh"
	"github.com/smallbiznis/learnboard/internal/learningstats/service"
	"github.com/smallbiznis/learnboard/internal/learningstats/store"
	"go.uber.org/fx"
)

var Module = fx.Module("learningstats",
	fx.Provide(store.New),
	fx.Provide(service.New),
	fx.Provide(refresh.New),
	fx.Provide(refresh.NewWorker),
	fx.Provide(
		func(s *store.Store) domain.Store { return s },
		func(s *service.Service) domain.Service { return s },
		func(s *refresh.Service) learningdomain.EventObserver { return s },
	),
	fx.Invoke(refresh.RunWorker),
)
