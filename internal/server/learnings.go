package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	learningdomain "github.com/smallbiznis/learnboard/internal/learning/domain"
	statsdomain "github.com/smallbiznis/learnboard/internal/learningstats/domain"
	"github.com/smallbiznis/learnboard/pkg/db/pagination"
)

// LogLearning records an activity for the requesting employee.
func (s *Server) LogLearning(c *gin.Context) {
	var req learningdomain.LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	requester, ok := requesterFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	req.EmployeeID = requester.EmployeeID

	event, err := s.learningSvc.Log(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": event})
}

// ListLearnings pages through raw events of one employee, newest first.
// Without employee_id the requester's own events are listed.
func (s *Server) ListLearnings(c *gin.Context) {
	var query struct {
		pagination.Pagination
		EmployeeID string `form:"employee_id"`
		Since      string `form:"since"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	requester, ok := requesterFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	employeeID := strings.TrimSpace(query.EmployeeID)
	if employeeID == "" {
		employeeID = requester.EmployeeID
	}
	if err := s.authzSvc.CanView(c.Request.Context(), requester, statsdomain.EmployeeScope(employeeID)); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.learningSvc.List(c.Request.Context(), learningdomain.ListRequest{
		EmployeeID: employeeID,
		Since:      strings.TrimSpace(query.Since),
		PageToken:  query.PageToken,
		PageSize:   query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
