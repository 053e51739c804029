package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/learnboard/internal/config"
	"go.uber.org/zap"
)

const keyLearningLog = "learnboard:ratelimit:learning_log:%s"

// LearningLogLimiter throttles event logging per employee.
type LearningLogLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewLearningLogLimiter returns nil when limiting is disabled or redis is
// not configured. A nil limiter allows everything.
func NewLearningLogLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*LearningLogLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		log.Warn("rate limiting enabled without redis, learning log limiter off")
		return nil, nil
	}
	if limitCfg.LearningLogRate <= 0 || limitCfg.LearningLogBurst <= 0 {
		return nil, fmt.Errorf("%w: learning log rate and burst must be positive", ErrInvalidRate)
	}

	return &LearningLogLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.LearningLogRate,
		burst:  limitCfg.LearningLogBurst,
	}, nil
}

func (l *LearningLogLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *LearningLogLimiter) Allow(ctx context.Context, employeeID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, ErrEmptyKey
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyLearningLog, employeeID), l.rate, l.burst)
}
