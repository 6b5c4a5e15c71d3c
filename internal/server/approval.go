package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"approval-service/internal/domain"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

type ReassignRequest struct {
	ReviewerID string `json:"reviewer_id"`
}

type StartReviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
}

func (s *Server) SubmitApproval(c echo.Context) error {
	var req domain.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	req.RequestedBy = firstNonEmpty(req.RequestedBy, actor(c))

	approval, err := s.approvalService.SubmitForApproval(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrSideEffectFailed) && approval != nil {
			return sideEffectJSON(c, approval, err)
		}
		log.WithError(err).WithFields(log.Fields{
			"entity_type": req.EntityType,
			"entity_id":   req.EntityID,
		}).Error("Failed to submit approval request")
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, approval)
}

func (s *Server) GetApproval(c echo.Context) error {
	id := c.Param("id")

	approval, err := s.approvalService.GetApproval(c.Request().Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrApprovalNotFound) {
			log.WithError(err).WithField("approval_id", id).Error("Failed to get approval request")
		}
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, approval)
}

func (s *Server) GetAuditTrail(c echo.Context) error {
	id := c.Param("id")

	entries, err := s.approvalService.GetAuditTrail(c.Request().Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrApprovalNotFound) {
			log.WithError(err).WithField("approval_id", id).Error("Failed to get audit trail")
		}
		return errorJSON(c, err)
	}
	if entries == nil {
		entries = []domain.AuditLogEntry{}
	}

	return c.JSON(http.StatusOK, entries)
}

func (s *Server) ProcessDecision(c echo.Context) error {
	id := c.Param("id")

	var decision domain.Decision
	if err := c.Bind(&decision); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	decision.Decision = domain.DecisionType(strings.ToUpper(strings.TrimSpace(string(decision.Decision))))
	decision.ReviewerID = firstNonEmpty(decision.ReviewerID, actor(c))

	approval, err := s.approvalService.ProcessApproval(c.Request().Context(), id, decision)
	if err != nil {
		if errors.Is(err, domain.ErrSideEffectFailed) && approval != nil {
			return sideEffectJSON(c, approval, err)
		}
		log.WithError(err).WithFields(log.Fields{
			"approval_id": id,
			"decision":    decision.Decision,
		}).Warn("Failed to process approval decision")
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, approval)
}

func (s *Server) StartReview(c echo.Context) error {
	id := c.Param("id")

	var req StartReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	reviewer := firstNonEmpty(req.ReviewerID, actor(c))

	approval, err := s.approvalService.StartReview(c.Request().Context(), id, reviewer)
	if err != nil {
		log.WithError(err).WithField("approval_id", id).Warn("Failed to start review")
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, approval)
}

func (s *Server) ReassignApproval(c echo.Context) error {
	id := c.Param("id")

	var req ReassignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	approval, err := s.approvalService.ReassignApproval(c.Request().Context(), id, req.ReviewerID, actor(c))
	if err != nil {
		log.WithError(err).WithField("approval_id", id).Warn("Failed to reassign approval request")
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, approval)
}

func (s *Server) GetQueue(c echo.Context) error {
	filter, err := parseQueueFilter(c)
	if err != nil {
		return errorJSON(c, err)
	}

	limit := 0
	offset := 0
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil {
		offset = o
	}

	page, err := s.approvalService.GetApprovalQueue(c.Request().Context(), filter, limit, offset)
	if err != nil {
		log.WithError(err).Error("Failed to get approval queue")
		return errorJSON(c, err)
	}
	if page.Items == nil {
		page.Items = []domain.ApprovalRequest{}
	}

	return c.JSON(http.StatusOK, page)
}

func (s *Server) GetStatistics(c echo.Context) error {
	from, err := parseTimeParam(c, "from")
	if err != nil {
		return errorJSON(c, err)
	}
	to, err := parseTimeParam(c, "to")
	if err != nil {
		return errorJSON(c, err)
	}

	stats, err := s.approvalService.GetApprovalStatistics(c.Request().Context(), from, to)
	if err != nil {
		log.WithError(err).Error("Failed to get approval statistics")
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, stats)
}

func sideEffectJSON(c echo.Context, approval *domain.ApprovalRequest, err error) error {
	log.WithError(err).WithField("approval_id", approval.ID).Error("Approval recorded but side effect failed")
	statusCode, message := handleApprovalError(err)
	return c.JSON(statusCode, map[string]interface{}{
		"error":    message,
		"code":     domain.ErrorCode(err),
		"approval": approval,
	})
}

func parseQueueFilter(c echo.Context) (domain.QueueFilter, error) {
	var filter domain.QueueFilter

	if v := c.QueryParam("entity_type"); v != "" {
		t := domain.EntityType(strings.ToUpper(v))
		if !t.Valid() {
			return filter, domain.ErrInvalidEntityType
		}
		filter.EntityType = &t
	}
	if v := c.QueryParam("status"); v != "" {
		st := domain.Status(strings.ToUpper(v))
		if !st.Valid() {
			return filter, domain.ErrInvalidRequest
		}
		filter.Status = &st
	}
	if v := c.QueryParam("priority"); v != "" {
		p := domain.Priority(strings.ToUpper(v))
		if !p.Valid() {
			return filter, domain.ErrInvalidPriority
		}
		filter.Priority = &p
	}
	if v := strings.TrimSpace(c.QueryParam("assigned_to")); v != "" {
		filter.AssignedTo = &v
	}
	if v := c.QueryParam("sla_breached"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, domain.ErrInvalidRequest
		}
		filter.SLABreached = b
	}

	var err error
	if filter.From, err = parseTimeParam(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseTimeParam(c, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseTimeParam(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, domain.ErrInvalidRequest
	}
	return &t, nil
}
