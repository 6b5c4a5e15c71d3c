package domain

import "time"

type ApprovalStatistics struct {
	Total                int                `json:"total"`
	ByStatus             map[Status]int     `json:"by_status"`
	ByEntityType         map[EntityType]int `json:"by_entity_type"`
	ByPriority           map[Priority]int   `json:"by_priority"`
	SLABreached          int                `json:"sla_breached"`
	ProcessedCount       int                `json:"processed_count"`
	AvgProcessingTime    time.Duration      `json:"-"`
	AvgProcessingSeconds float64            `json:"avg_processing_seconds"`
	AvgProcessingHours   float64            `json:"avg_processing_hours"`
	From                 *time.Time         `json:"from,omitempty"`
	To                   *time.Time         `json:"to,omitempty"`
}

// ComputeStatistics aggregates requests as of now. Only requests with a
// ReviewedAt contribute to the processing-time mean.
func ComputeStatistics(requests []ApprovalRequest, now time.Time) ApprovalStatistics {
	stats := ApprovalStatistics{
		Total:        len(requests),
		ByStatus:     make(map[Status]int),
		ByEntityType: make(map[EntityType]int),
		ByPriority:   make(map[Priority]int),
	}

	var total time.Duration
	for i := range requests {
		r := &requests[i]
		stats.ByStatus[r.Status]++
		stats.ByEntityType[r.EntityType]++
		stats.ByPriority[r.Priority]++

		if r.SLABreached(now) {
			stats.SLABreached++
		}
		if r.ReviewedAt != nil {
			total += r.ReviewedAt.Sub(r.CreatedAt)
			stats.ProcessedCount++
		}
	}

	if stats.ProcessedCount > 0 {
		stats.AvgProcessingTime = total / time.Duration(stats.ProcessedCount)
		stats.AvgProcessingSeconds = stats.AvgProcessingTime.Seconds()
		stats.AvgProcessingHours = stats.AvgProcessingTime.Hours()
	}

	return stats
}
