package models

import "math"

// CategoryCount is one bucket of the category distribution
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// DashboardStats is the cached aggregate snapshot shown on the admin dashboard
type DashboardStats struct {
	Total                int             `json:"total"`
	Pending              int             `json:"pending"`
	InProgress           int             `json:"in_progress"`
	Fixed                int             `json:"fixed"`
	Rejected             int             `json:"rejected"`
	AvgResolutionDays    float64         `json:"avg_resolution_days"`
	CategoryDistribution []CategoryCount `json:"category_distribution"`
}

// ApplyStatusCounts fills the per-status fields and total from a grouped count
func (s *DashboardStats) ApplyStatusCounts(counts map[ReportStatus]int) {
	s.Pending = counts[StatusPending]
	s.InProgress = counts[StatusInProgress]
	s.Fixed = counts[StatusFixed]
	s.Rejected = counts[StatusRejected]
	s.Total = 0
	for _, n := range counts {
		s.Total += n
	}
}

// RoundDays rounds a day count to one decimal place
func RoundDays(days float64) float64 {
	if math.IsNaN(days) || math.IsInf(days, 0) {
		return 0
	}
	return math.Round(days*10) / 10
}
