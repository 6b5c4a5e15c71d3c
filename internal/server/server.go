package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"approval-service/internal/domain"
	"approval-service/internal/metrics"
	"approval-service/internal/service"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

// ActorHeader carries the caller's user id. Authentication happens upstream.
const ActorHeader = "X-User-ID"

type Server struct {
	approvalService service.ApprovalServiceInterface
	db              *sql.DB
}

func NewServer(approvalService service.ApprovalServiceInterface, db *sql.DB) *Server {
	return &Server{
		approvalService: approvalService,
		db:              db,
	}
}

func (s *Server) HealthCheck(c echo.Context) error {
	if s.db == nil {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	}
	if err := s.db.PingContext(c.Request().Context()); err != nil {
		log.WithField("error", err).Error("Health check failed: database is down")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database connection error",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// RegisterRoutes mounts the approval API on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.Use(RequestMetrics)

	e.GET("/health", s.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	approvals := e.Group("/api/approvals")
	approvals.POST("", s.SubmitApproval)
	approvals.GET("/queue", s.GetQueue)
	approvals.GET("/stats", s.GetStatistics)
	approvals.GET("/:id", s.GetApproval)
	approvals.GET("/:id/audit", s.GetAuditTrail)
	approvals.POST("/:id/decision", s.ProcessDecision)
	approvals.POST("/:id/review", s.StartReview)
	approvals.POST("/:id/reassign", s.ReassignApproval)
}

// RequestMetrics records latency per matched route, not per raw path.
func RequestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request().Method, route, c.Response().Status, time.Since(start).Seconds())
		return nil
	}
}

func handleApprovalError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "an open approval request already exists for this entity"
	case errors.Is(err, domain.ErrApprovalNotFound):
		return http.StatusNotFound, "approval request not found"
	case errors.Is(err, domain.ErrApprovalAlreadyProcessed):
		return http.StatusConflict, "approval request already processed"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "approval request is not in a state that allows this action"
	case errors.Is(err, domain.ErrInvalidEntityType):
		return http.StatusBadRequest, "invalid entity type"
	case errors.Is(err, domain.ErrInvalidPriority):
		return http.StatusBadRequest, "invalid priority"
	case errors.Is(err, domain.ErrInvalidDecision):
		return http.StatusBadRequest, "invalid decision"
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, domain.ErrSideEffectFailed):
		return http.StatusBadGateway, "decision recorded but applying it to the entity failed"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func errorJSON(c echo.Context, err error) error {
	statusCode, message := handleApprovalError(err)
	return c.JSON(statusCode, map[string]string{
		"error": message,
		"code":  domain.ErrorCode(err),
	})
}

func actor(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(ActorHeader))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
