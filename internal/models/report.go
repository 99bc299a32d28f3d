// Package models defines data structures used throughout the civic reporting service.
package models

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// ReportStatus is the moderation state of a report
type ReportStatus string

// Report statuses. The wire and storage value of InProgress contains a space.
const (
	StatusPending    ReportStatus = "Pending"
	StatusInProgress ReportStatus = "In Progress"
	StatusFixed      ReportStatus = "Fixed"
	StatusRejected   ReportStatus = "Rejected"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []ReportStatus{StatusPending, StatusInProgress, StatusFixed, StatusRejected}

// ParseReportStatus accepts the canonical names plus the common spellings
// "InProgress", "in_progress" and "in-progress", case-insensitively.
func ParseReportStatus(raw string) (ReportStatus, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)
	switch normalized {
	case "pending":
		return StatusPending, true
	case "inprogress":
		return StatusInProgress, true
	case "fixed":
		return StatusFixed, true
	case "rejected":
		return StatusRejected, true
	}
	return "", false
}

// EditableByOwner reports whether the owning user may still update or delete the report
func (s ReportStatus) EditableByOwner() bool {
	return s == StatusPending
}

// GeoPoint is a WGS84 latitude/longitude pair
type GeoPoint struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Valid reports whether both coordinates are within range
func (p GeoPoint) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Report is a citizen-submitted civic issue
type Report struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Category     string         `json:"category"`
	Location     GeoPoint       `json:"location"`
	Description  string         `json:"description"`
	ImageURLs    []string       `json:"image_urls"`
	Status       ReportStatus   `json:"status"`
	RejectReason sql.NullString `json:"reject_reason"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// MarshalJSON renders the nullable reject reason as null or a string
func (r Report) MarshalJSON() ([]byte, error) {
	type alias Report
	imageURLs := r.ImageURLs
	if imageURLs == nil {
		imageURLs = []string{}
	}
	return json.Marshal(&struct {
		alias
		ImageURLs    []string `json:"image_urls"`
		RejectReason *string  `json:"reject_reason"`
	}{
		alias:        alias(r),
		ImageURLs:    imageURLs,
		RejectReason: nullStringToPointer(r.RejectReason),
	})
}

// NewReport carries the owner-supplied fields of a report submission
type NewReport struct {
	Category    string   `json:"category" validate:"required,max=100"`
	Location    GeoPoint `json:"location"`
	Description string   `json:"description" validate:"required,max=5000"`
	ImageURLs   []string `json:"image_urls" validate:"omitempty,dive,required"`
}

// ReportUpdate lists the owner-editable fields; nil means "leave unchanged"
type ReportUpdate struct {
	Category    *string   `json:"category,omitempty"`
	Description *string   `json:"description,omitempty"`
	Location    *GeoPoint `json:"location,omitempty"`
	ImageURLs   *[]string `json:"image_urls,omitempty"`
}

// IsEmpty reports whether no field was supplied
func (u ReportUpdate) IsEmpty() bool {
	return u.Category == nil && u.Description == nil && u.Location == nil && u.ImageURLs == nil
}

// ApplyTo returns a copy of r with the supplied fields replaced
func (u ReportUpdate) ApplyTo(r Report) Report {
	if u.Category != nil {
		r.Category = *u.Category
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Location != nil {
		r.Location = *u.Location
	}
	if u.ImageURLs != nil {
		r.ImageURLs = append([]string(nil), (*u.ImageURLs)...)
	}
	return r
}

// StatusChange is an administrator's moderation decision
type StatusChange struct {
	Status       string `json:"status" binding:"required"`
	RejectReason string `json:"reject_reason"`
}

// ReportOwner is the subset of the owning user shown in administrator listings
type ReportOwner struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// EnrichedReport is a report joined with engagement counts and, optionally, its owner
type EnrichedReport struct {
	Report
	VoteCount    int          `json:"vote_count"`
	CommentCount *int         `json:"comment_count,omitempty"`
	Owner        *ReportOwner `json:"owner,omitempty"`
}

// MarshalJSON flattens the embedded report next to the enrichment fields
func (e EnrichedReport) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(e.Report)
	if err != nil {
		return nil, err
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	merged["vote_count"] = e.VoteCount
	if e.CommentCount != nil {
		merged["comment_count"] = *e.CommentCount
	}
	if e.Owner != nil {
		merged["owner"] = e.Owner
	}
	return json.Marshal(merged)
}

func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}
