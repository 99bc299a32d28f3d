package models

import "strings"

// FilterAll is the filter value that disables a status or category restriction
const FilterAll = "all"

// ReportFilter restricts listings by status and/or category; empty or "all" means unfiltered
type ReportFilter struct {
	Status   ReportStatus
	Category string
}

// NormalizeFilterValue maps "" and "all" (any case) to ""
func NormalizeFilterValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, FilterAll) {
		return ""
	}
	return v
}

// SortKey selects the listing order
type SortKey string

// Supported sort keys
const (
	SortByCreatedAt SortKey = "created_at"
	SortByVotes     SortKey = "votes"
)

// ParseSortKey accepts the canonical keys plus "createdAt"/"voteCount" aliases
func ParseSortKey(raw string) (SortKey, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "created_at", "createdat", "created":
		return SortByCreatedAt, true
	case "votes", "vote_count", "votecount", "upvotes":
		return SortByVotes, true
	}
	return "", false
}

// SortDirection is ascending or descending
type SortDirection string

// Supported sort directions
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection defaults to descending
func ParseSortDirection(raw string) (SortDirection, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "desc", "descending", "-1":
		return SortDesc, true
	case "asc", "ascending", "1":
		return SortAsc, true
	}
	return "", false
}

// ReportListQuery describes one page of a report listing
type ReportListQuery struct {
	Filter       ReportFilter
	Page         int
	PageSize     int
	SortKey      SortKey
	Direction    SortDirection
	IncludeOwner bool
}

// Offset returns the number of rows skipped before the page
func (q ReportListQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

// ReportPage is one page of an enriched listing plus the total match count
type ReportPage struct {
	Items    []EnrichedReport `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}
