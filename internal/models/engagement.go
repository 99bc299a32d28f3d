package models

import "time"

// Vote is one user's upvote on a report; (UserID, ReportID) is unique
type Vote struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ReportID  string    `json:"report_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Comment is an immutable remark on a report
type Comment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ReportID   string    `json:"report_id"`
	Text       string    `json:"text"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewComment is the body of a comment submission
type NewComment struct {
	Text string `json:"text" binding:"required"`
}
