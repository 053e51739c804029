package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	statsdomain "github.com/smallbiznis/learnboard/internal/learningstats/domain"
	obscontext "github.com/smallbiznis/learnboard/internal/observability/context"
)

type statsQuery struct {
	Precomputed string `form:"precomputed"`
	WindowDays  string `form:"window_days"`
}

type statsFetcher func(ctx context.Context, opts statsdomain.Options) (*statsdomain.Projection, error)

func (s *Server) GetEmployeeStats(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	s.serveStats(c, statsdomain.EmployeeScope(id), func(ctx context.Context, opts statsdomain.Options) (*statsdomain.Projection, error) {
		return s.statsSvc.GetEmployeeStats(ctx, id, opts)
	})
}

func (s *Server) GetTeamStats(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	s.serveStats(c, statsdomain.TeamScope(id), func(ctx context.Context, opts statsdomain.Options) (*statsdomain.Projection, error) {
		return s.statsSvc.GetTeamStats(ctx, id, opts)
	})
}

func (s *Server) GetOrgStats(c *gin.Context) {
	s.serveStats(c, statsdomain.OrgScope(strings.TrimSpace(s.cfg.DefaultOrgID)), s.statsSvc.GetOrgStats)
}

func (s *Server) serveStats(c *gin.Context, scope statsdomain.Scope, fetch statsFetcher) {
	if scope.ID == "" {
		AbortWithError(c, statsdomain.ErrInvalidScope)
		return
	}

	opts, err := parseStatsOptions(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	requester, ok := requesterFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	ctx := obscontext.WithScope(c.Request.Context(), scope.String())
	if err := s.authzSvc.CanView(ctx, requester, scope); err != nil {
		AbortWithError(c, err)
		return
	}

	projection, err := fetch(ctx, opts)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	source := "fallback"
	if opts.Precomputed {
		source = "precomputed"
	}
	c.Set("stats_source", source)
	c.JSON(http.StatusOK, gin.H{"data": newStatsView(projection, opts.Precomputed)})
}

// parseStatsOptions reads precomputed (default true) and window_days.
func parseStatsOptions(c *gin.Context) (statsdomain.Options, error) {
	var query statsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return statsdomain.Options{}, invalidRequestError()
	}

	opts := statsdomain.Options{Precomputed: true}
	precomputed, err := parseOptionalBool(query.Precomputed)
	if err != nil {
		return opts, newValidationError("precomputed", "invalid_precomputed", "precomputed must be a boolean")
	}
	if precomputed != nil {
		opts.Precomputed = *precomputed
	}

	window, err := parseOptionalInt(query.WindowDays)
	if err != nil {
		return opts, newValidationError("window_days", "invalid_window_days", "window_days must be an integer")
	}
	if window != nil {
		if *window <= 0 {
			return opts, statsdomain.ErrInvalidWindow
		}
		opts.WindowDays = *window
	}
	return opts, nil
}

type rebuildRequest struct {
	ScopeKind string `json:"scope_kind"`
	ScopeID   string `json:"scope_id"`
}

// RebuildStats invalidates one scope, or every scope when the body names
// none, and queues recomputation.
func (s *Server) RebuildStats(c *gin.Context) {
	var req rebuildRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	var target *statsdomain.Scope
	kind := strings.TrimSpace(req.ScopeKind)
	id := strings.TrimSpace(req.ScopeID)
	if kind != "" || id != "" {
		scope := statsdomain.Scope{Kind: statsdomain.ScopeKind(kind), ID: id}
		if scope.Kind == statsdomain.ScopeOrg && scope.ID == "" {
			scope.ID = strings.TrimSpace(s.cfg.DefaultOrgID)
		}
		if !scope.Kind.Valid() || scope.ID == "" {
			AbortWithError(c, statsdomain.ErrInvalidScope)
			return
		}
		target = &scope
	}

	queued, err := s.rebuilder.RequestRebuild(c.Request.Context(), target)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	scope := "all"
	if target != nil {
		scope = target.String()
	}
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"scope": scope, "queued": queued}})
}
