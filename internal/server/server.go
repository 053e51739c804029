package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/learnboard/internal/authorization"
	"github.com/smallbiznis/learnboard/internal/config"
	learningdomain "github.com/smallbiznis/learnboard/internal/learning/domain"
	statsdomain "github.com/smallbiznis/learnboard/internal/learningstats/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/refresh"
	"github.com/smallbiznis/learnboard/internal/observability"
	obsmiddleware "github.com/smallbiznis/learnboard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/learnboard/internal/observability/metrics"
	obstracing "github.com/smallbiznis/learnboard/internal/observability/tracing"
	"github.com/smallbiznis/learnboard/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	ratelimit.Module,
	fx.Provide(func(s *refresh.Service) Rebuilder { return s }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// Rebuilder queues projection rebuilds. A nil target means every scope.
type Rebuilder interface {
	RequestRebuild(ctx context.Context, target *statsdomain.Scope) (int, error)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	redis       *redis.Client
	authzSvc    authorization.Service
	statsSvc    statsdomain.Service
	learningSvc learningdomain.Service
	rebuilder   Rebuilder
	limiter     *ratelimit.LearningLogLimiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Redis       *redis.Client `optional:"true"`
	AuthzSvc    authorization.Service
	StatsSvc    statsdomain.Service
	LearningSvc learningdomain.Service
	Rebuilder   Rebuilder
	Limiter     *ratelimit.LearningLogLimiter `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics           `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		redis:       p.Redis,
		authzSvc:    p.AuthzSvc,
		statsSvc:    p.StatsSvc,
		learningSvc: p.LearningSvc,
		rebuilder:   p.Rebuilder,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerHealthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health", s.Health)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.RequesterRequired())

	// -------- Learnings --------
	api.POST("/learnings",
		s.authorizeAction(authorization.ObjectLearnings, authorization.ActionLog),
		s.LearningLogRateLimit(),
		s.LogLearning,
	)
	api.GET("/learnings", s.ListLearnings)

	// -------- Stats --------
	api.GET("/stats/employees/:id", s.GetEmployeeStats)
	api.GET("/stats/teams/:id", s.GetTeamStats)
	api.GET("/stats/org", s.GetOrgStats)
	api.POST("/stats/rebuild",
		s.authorizeAction(authorization.ObjectStats, authorization.ActionRebuild),
		s.RebuildStats,
	)
}
