package service

import (
	"context"
	"fmt"
	"sync"

	"approval-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

// EntityHandler performs the real-world effect of a decision on one entity type.
type EntityHandler interface {
	Handle(ctx context.Context, req *domain.ApprovalRequest, approved bool) error
}

type EntityHandlerFunc func(ctx context.Context, req *domain.ApprovalRequest, approved bool) error

func (f EntityHandlerFunc) Handle(ctx context.Context, req *domain.ApprovalRequest, approved bool) error {
	return f(ctx, req, approved)
}

// ActionExecutor dispatches committed decisions to the handler registered
// for the request's entity type.
type ActionExecutor struct {
	mu       sync.RWMutex
	handlers map[domain.EntityType]EntityHandler
}

func NewActionExecutor() *ActionExecutor {
	return &ActionExecutor{handlers: make(map[domain.EntityType]EntityHandler)}
}

func (e *ActionExecutor) Register(entityType domain.EntityType, handler EntityHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[entityType] = handler
}

func (e *ActionExecutor) handler(entityType domain.EntityType) (EntityHandler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[entityType]
	return h, ok
}

// Execute runs the side effect. An entity type without a handler is a no-op;
// a handler failure is returned wrapped in domain.ErrSideEffectFailed.
func (e *ActionExecutor) Execute(ctx context.Context, req *domain.ApprovalRequest, approved bool) error {
	h, ok := e.handler(req.EntityType)
	if !ok {
		log.WithFields(log.Fields{
			"approval_id": req.ID,
			"entity_type": req.EntityType,
		}).Warn("No action handler registered for entity type, skipping side effect")
		return nil
	}

	if err := h.Handle(ctx, req, approved); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"approval_id": req.ID,
			"entity_type": req.EntityType,
			"entity_id":   req.EntityID,
			"approved":    approved,
		}).Error("Approval side effect failed; approval record and entity may be out of sync")
		return fmt.Errorf("%w: %s %s: %w", domain.ErrSideEffectFailed, req.EntityType, req.EntityID, err)
	}
	return nil
}

type entityMessage struct {
	approvedTitle, approvedContent string
	rejectedTitle, rejectedContent string
}

var entityMessages = map[domain.EntityType]entityMessage{
	domain.EntityInvestment: {
		"Investment Approved", "Your investment has been approved and is proceeding to funding.",
		"Investment Not Approved", "Your investment was not approved.",
	},
	domain.EntityPitch: {
		"Pitch Approved", "Your pitch is now live for investors.",
		"Pitch Not Approved", "Your pitch was not approved.",
	},
	domain.EntitySyndicate: {
		"Syndicate Approved", "Your syndicate is now active and can accept members.",
		"Syndicate Not Approved", "Your syndicate was not approved.",
	},
	domain.EntityUser: {
		"Account Activated", "Your account has been reviewed and activated.",
		"Account Suspended", "Your account did not pass review and has been suspended.",
	},
	domain.EntitySPV: {
		"SPV Approved", "Your SPV has been approved and is now active.",
		"SPV Not Approved", "Your SPV was not approved.",
	},
	domain.EntityDocument: {
		"Document Verified", "Your document has been verified.",
		"Document Rejected", "Your document was rejected. Please upload a new version.",
	},
}

// statusHandler updates the owning entity's status and tells its owner.
type statusHandler struct {
	entityType domain.EntityType
	target     domain.EntityTarget
	entities   EntityStatusUpdater
	dispatcher *NotificationDispatcher
}

func (h *statusHandler) Handle(ctx context.Context, req *domain.ApprovalRequest, approved bool) error {
	status := h.target.StatusFor(approved)

	ownerID, err := h.entities.UpdateStatus(ctx, h.entityType, req.EntityID, status)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"approval_id": req.ID,
		"entity_type": h.entityType,
		"entity_id":   req.EntityID,
		"status":      status,
	}).Info("Applied approval decision to entity")

	msg := entityMessages[h.entityType]
	title, content := msg.approvedTitle, msg.approvedContent
	if !approved {
		title, content = msg.rejectedTitle, msg.rejectedContent
		if req.ReviewNotes != nil && *req.ReviewNotes != "" {
			content = content + " Reviewer notes: " + *req.ReviewNotes
		}
	}

	h.dispatcher.NotifyUser(ctx, ownerID, title, content, req.Priority, map[string]interface{}{
		"approval_id": req.ID,
		"entity_type": string(h.entityType),
		"entity_id":   req.EntityID,
		"status":      status,
	})
	return nil
}

// recordOnlyHandler is used for entity types whose owning service applies
// the change before asking for approval.
func recordOnlyHandler(_ context.Context, req *domain.ApprovalRequest, approved bool) error {
	log.WithFields(log.Fields{
		"approval_id": req.ID,
		"entity_type": req.EntityType,
		"approved":    approved,
	}).Debug("Decision recorded; entity already updated by its owning service")
	return nil
}

// NewDefaultActionExecutor registers a handler for every known entity type.
func NewDefaultActionExecutor(entities EntityStatusUpdater, dispatcher *NotificationDispatcher) *ActionExecutor {
	e := NewActionExecutor()
	for _, t := range domain.EntityTypes() {
		target, ok := domain.TargetFor(t)
		if !ok {
			e.Register(t, EntityHandlerFunc(recordOnlyHandler))
			continue
		}
		e.Register(t, &statusHandler{
			entityType: t,
			target:     target,
			entities:   entities,
			dispatcher: dispatcher,
		})
	}
	return e
}
