package ratelimit

import "go.uber.org/fx"

// Module provides the per-employee learning log limiter. It shares the
// redis client provided by the lock module.
var Module = fx.Module("ratelimit",
	fx.Provide(NewLearningLogLimiter),
)
