package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"approval-service/internal/domain"
)

type fakeApprovalRepo struct {
	mu       sync.Mutex
	requests map[string]*domain.ApprovalRequest
	audit    []domain.AuditLogEntry

	createErr error
	assignErr error
}

func newFakeApprovalRepo() *fakeApprovalRepo {
	return &fakeApprovalRepo{requests: make(map[string]*domain.ApprovalRequest)}
}

func clone(r *domain.ApprovalRequest) *domain.ApprovalRequest {
	c := *r
	c.Tags = append([]string{}, r.Tags...)
	return &c
}

func (f *fakeApprovalRepo) put(r *domain.ApprovalRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[r.ID] = clone(r)
}

func (f *fakeApprovalRepo) Create(_ context.Context, req *domain.ApprovalRequest, entry domain.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, r := range f.requests {
		if r.EntityType == req.EntityType && r.EntityID == req.EntityID && r.Status.IsOpen() && req.Status.IsOpen() {
			return domain.ErrDuplicateRequest
		}
	}
	f.requests[req.ID] = clone(req)
	f.audit = append(f.audit, entry)
	return nil
}

func (f *fakeApprovalRepo) GetByID(_ context.Context, id string) (*domain.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, domain.ErrApprovalNotFound
	}
	return clone(r), nil
}

func (f *fakeApprovalRepo) FindOpenByEntity(_ context.Context, entityType domain.EntityType, entityID string) (*domain.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.EntityType == entityType && r.EntityID == entityID && r.Status.IsOpen() {
			return clone(r), nil
		}
	}
	return nil, domain.ErrApprovalNotFound
}

func (f *fakeApprovalRepo) Transition(_ context.Context, id string, from []domain.Status, change domain.TransitionChange, entry domain.AuditLogEntry) (*domain.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, domain.ErrApprovalNotFound
	}

	allowed := false
	for _, s := range from {
		if r.Status == s {
			allowed = true
		}
	}
	if !allowed {
		if r.Status.IsTerminal() {
			return nil, domain.ErrApprovalAlreadyProcessed
		}
		return nil, domain.ErrInvalidTransition
	}

	r.Status = change.Status
	if change.Priority != nil {
		r.Priority = *change.Priority
	}
	if change.SLADeadline != nil {
		r.SLADeadline = *change.SLADeadline
	}
	if change.AssignedTo != nil {
		v := *change.AssignedTo
		r.AssignedTo = &v
	}
	if change.ReviewedBy != nil {
		v := *change.ReviewedBy
		r.ReviewedBy = &v
	}
	if change.ReviewedAt != nil {
		v := *change.ReviewedAt
		r.ReviewedAt = &v
	}
	if change.ReviewNotes != nil {
		v := *change.ReviewNotes
		r.ReviewNotes = &v
	}
	if change.Tags != nil {
		r.Tags = append([]string{}, change.Tags...)
	}
	f.audit = append(f.audit, entry)
	return clone(r), nil
}

func (f *fakeApprovalRepo) AssignIfUnassigned(_ context.Context, id, reviewerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assignErr != nil {
		return false, f.assignErr
	}
	r, ok := f.requests[id]
	if !ok || r.AssignedTo != nil {
		return false, nil
	}
	v := reviewerID
	r.AssignedTo = &v
	return true, nil
}

func (f *fakeApprovalRepo) Reassign(_ context.Context, id, reviewerID string) (*domain.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, domain.ErrApprovalNotFound
	}
	v := reviewerID
	r.AssignedTo = &v
	return clone(r), nil
}

func (f *fakeApprovalRepo) CountOpenAssigned(_ context.Context, reviewerIDs []string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, id := range reviewerIDs {
		counts[id] = 0
	}
	for _, r := range f.requests {
		if r.AssignedTo != nil && r.Status.IsOpen() {
			if _, ok := counts[*r.AssignedTo]; ok {
				counts[*r.AssignedTo]++
			}
		}
	}
	return counts, nil
}

func (f *fakeApprovalRepo) ListQueue(_ context.Context, filter domain.QueueFilter, limit, offset int, now time.Time) ([]domain.ApprovalRequest, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []domain.ApprovalRequest
	for _, r := range f.requests {
		if filter.EntityType != nil && r.EntityType != *filter.EntityType {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && r.Priority != *filter.Priority {
			continue
		}
		if filter.AssignedTo != nil && (r.AssignedTo == nil || *r.AssignedTo != *filter.AssignedTo) {
			continue
		}
		if filter.SLABreached && !r.SLABreached(now) {
			continue
		}
		matched = append(matched, *clone(r))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority.Rank() != matched[j].Priority.Rank() {
			return matched[i].Priority.Rank() > matched[j].Priority.Rank()
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (f *fakeApprovalRepo) ListCreatedBetween(_ context.Context, from, to *time.Time) ([]domain.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ApprovalRequest
	for _, r := range f.requests {
		if from != nil && r.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && r.CreatedAt.After(*to) {
			continue
		}
		out = append(out, *clone(r))
	}
	return out, nil
}

func (f *fakeApprovalRepo) entriesFor(id string) []domain.AuditLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditLogEntry
	for _, e := range f.audit {
		if e.ApprovalID == id {
			out = append(out, e)
		}
	}
	return out
}

// fakeAuditRepo shares storage with the approval repo so trails include
// entries written inside transitions.
type fakeAuditRepo struct {
	repo      *fakeApprovalRepo
	appendErr error
}

func (f *fakeAuditRepo) Append(_ context.Context, entry domain.AuditLogEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	f.repo.audit = append(f.repo.audit, entry)
	return nil
}

func (f *fakeAuditRepo) ListByApproval(_ context.Context, approvalID string) ([]domain.AuditLogEntry, error) {
	return f.repo.entriesFor(approvalID), nil
}

type fakeAuditPublisher struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (f *fakeAuditPublisher) Publish(_ context.Context, event domain.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type fakeDirectory struct {
	reviewers []domain.Reviewer
	seniors   []domain.Reviewer
	err       error
}

func (f *fakeDirectory) ListActiveReviewers(context.Context) ([]domain.Reviewer, error) {
	return f.reviewers, f.err
}

func (f *fakeDirectory) ListSeniorReviewers(context.Context) ([]domain.Reviewer, error) {
	return f.seniors, f.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, n := range f.sent {
		out = append(out, n.UserID)
	}
	return out
}

func (f *fakeNotifier) titlesFor(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, n := range f.sent {
		if n.UserID == userID {
			out = append(out, n.Title)
		}
	}
	return out
}

type statusUpdate struct {
	EntityType domain.EntityType
	EntityID   string
	Status     string
}

type fakeEntities struct {
	mu      sync.Mutex
	owners  map[string]string
	updates []statusUpdate
	err     error
}

func (f *fakeEntities) UpdateStatus(ctx context.Context, entityType domain.EntityType, entityID, status string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	owner, ok := f.owners[entityID]
	if !ok {
		return "", domain.ErrEntityNotFound
	}
	f.updates = append(f.updates, statusUpdate{EntityType: entityType, EntityID: entityID, Status: status})
	return owner, nil
}

var errBoom = errors.New("boom")

type harness struct {
	svc       *ApprovalService
	repo      *fakeApprovalRepo
	auditRepo *fakeAuditRepo
	publisher *fakeAuditPublisher
	directory *fakeDirectory
	notifier  *fakeNotifier
	entities  *fakeEntities
	now       time.Time
}

func newHarness() *harness {
	h := &harness{
		repo:      newFakeApprovalRepo(),
		publisher: &fakeAuditPublisher{},
		directory: &fakeDirectory{
			reviewers: []domain.Reviewer{{ID: "rev-a", Role: "REVIEWER"}, {ID: "rev-b", Role: "REVIEWER"}, {ID: "rev-c", Role: "ADMIN"}},
			seniors:   []domain.Reviewer{{ID: "rev-c", Role: "ADMIN"}},
		},
		notifier: &fakeNotifier{},
		entities: &fakeEntities{owners: map[string]string{
			"inv_1":  "investor_7",
			"doc_1":  "founder_2",
			"p_1":    "founder_3",
			"user_1": "user_1",
			"spv_1":  "manager_4",
			"syn_1":  "lead_5",
		}},
		now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	h.auditRepo = &fakeAuditRepo{repo: h.repo}

	audit := NewAuditLogger(h.auditRepo, h.publisher)
	dispatcher := NewNotificationDispatcher(h.notifier, h.directory)
	executor := NewDefaultActionExecutor(h.entities, dispatcher)
	h.svc = NewApprovalService(h.repo, audit, h.directory, dispatcher, executor, WithClock(func() time.Time { return h.now }))
	return h
}

func actions(entries []domain.AuditLogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}
