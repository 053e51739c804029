package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/learnboard/internal/authorization"
	obscontext "github.com/smallbiznis/learnboard/internal/observability/context"
)

const (
	// HeaderEmployeeID carries the employee id asserted by the trusted gateway.
	HeaderEmployeeID = "X-Employee-Id"

	contextRequesterKey = "requester"
)

// RequesterRequired resolves the gateway-asserted employee into a requester.
// The role always comes from the membership record.
func (s *Server) RequesterRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		employeeID := strings.TrimSpace(c.GetHeader(HeaderEmployeeID))
		if employeeID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		requester, err := s.authzSvc.Resolve(c.Request.Context(), employeeID)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithRequester(c.Request.Context(), requester.EmployeeID, requester.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextRequesterKey, requester)
		c.Next()
	}
}

func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requester, ok := requesterFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), requester, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func requesterFrom(c *gin.Context) (authorization.Requester, bool) {
	value, ok := c.Get(contextRequesterKey)
	if !ok {
		return authorization.Requester{}, false
	}
	requester, ok := value.(authorization.Requester)
	return requester, ok && requester.EmployeeID != ""
}
