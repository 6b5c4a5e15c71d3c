package domain

import "time"

var defaultPriorities = map[EntityType]Priority{
	EntityInvestment:    PriorityHigh,
	EntityPitch:         PriorityMedium,
	EntitySyndicate:     PriorityMedium,
	EntityUser:          PriorityLow,
	EntityKYC:           PriorityUrgent,
	EntityAccreditation: PriorityUrgent,
	EntitySPV:           PriorityHigh,
	EntityDocument:      PriorityLow,
}

var slaHours = map[Priority]int{
	PriorityUrgent: 4,
	PriorityHigh:   24,
	PriorityMedium: 72,
	PriorityLow:    168,
}

// Only DOCUMENT may skip manual review. Money- and compliance-bearing
// types always go to a reviewer, whatever the submitter asks for.
var autoApprovalRules = map[EntityType]bool{
	EntityInvestment:    false,
	EntityPitch:         false,
	EntitySyndicate:     false,
	EntityUser:          false,
	EntityKYC:           false,
	EntityAccreditation: false,
	EntitySPV:           false,
	EntityDocument:      true,
}

// DefaultPriority returns the priority used when a submission does not specify one.
func DefaultPriority(t EntityType) Priority {
	if p, ok := defaultPriorities[t]; ok {
		return p
	}
	return PriorityMedium
}

// SLAWindow returns how long a request of the given priority may stay open.
func SLAWindow(p Priority) time.Duration {
	hours, ok := slaHours[p]
	if !ok {
		hours = slaHours[PriorityMedium]
	}
	return time.Duration(hours) * time.Hour
}

// SLADeadline is a pure function of priority and the moment the clock starts.
func SLADeadline(p Priority, from time.Time) time.Time {
	return from.Add(SLAWindow(p))
}

func CanAutoApprove(t EntityType) bool {
	return autoApprovalRules[t]
}

// EntityTarget describes where an entity's review outcome is written.
type EntityTarget struct {
	Table          string
	OwnerColumn    string
	ApprovedStatus string
	RejectedStatus string
}

func (t EntityTarget) StatusFor(approved bool) string {
	if approved {
		return t.ApprovedStatus
	}
	return t.RejectedStatus
}

var entityTargets = map[EntityType]EntityTarget{
	EntityInvestment: {Table: "investments", OwnerColumn: "investor_id", ApprovedStatus: "APPROVED", RejectedStatus: "REJECTED"},
	EntityPitch:      {Table: "pitches", OwnerColumn: "founder_id", ApprovedStatus: "ACTIVE", RejectedStatus: "REJECTED"},
	EntitySyndicate:  {Table: "syndicates", OwnerColumn: "lead_investor_id", ApprovedStatus: "ACTIVE", RejectedStatus: "REJECTED"},
	EntityUser:       {Table: "users", OwnerColumn: "id", ApprovedStatus: "ACTIVE", RejectedStatus: "SUSPENDED"},
	EntitySPV:        {Table: "spvs", OwnerColumn: "manager_id", ApprovedStatus: "ACTIVE", RejectedStatus: "REJECTED"},
	EntityDocument:   {Table: "documents", OwnerColumn: "uploaded_by", ApprovedStatus: "VERIFIED", RejectedStatus: "REJECTED"},
}

// TargetFor returns the status target for entity types whose owning record
// is mutated on decision. KYC and ACCREDITATION have none.
func TargetFor(t EntityType) (EntityTarget, bool) {
	target, ok := entityTargets[t]
	return target, ok
}
