package store

import "time"

// Content kinds for polymorphic references (credits, approvals, tag
// requests, notification subjects).
const (
	KindFilm  = "film"
	KindPhoto = "photo"
)

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Tag request statuses.
const (
	TagRequestPending  = "pending"
	TagRequestApproved = "approved"
	TagRequestDenied   = "denied"
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type Film struct {
	ID          string
	OwnerID     string // empty for legacy imports with no known uploader
	Title       string
	Description string
	VideoKey    string
	ThumbKey    string
	// Single-valued role columns. EditorID is the only editor slot; the
	// filmer/company columns predate the credits table and still count as
	// tagged participants.
	EditorID        string
	LegacyFilmerID  string
	LegacyCompanyID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Photo struct {
	ID        string
	OwnerID   string
	Title     string
	Caption   string
	ImageKey  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credit is one row of the multi-value tagging join table.
type Credit struct {
	ContentKind string
	ContentID   string
	UserID      string
	Role        string
	CreatedAt   time.Time
}

// Approval is one tagged participant's decision on one role of one
// content item. Unique per (content_kind, content_id, approver_id, type).
type Approval struct {
	ID              string
	ContentKind     string
	ContentID       string
	ApproverID      string
	Type            string
	Status          string
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type TagRequest struct {
	ID          string
	ContentKind string
	ContentID   string
	RequesterID string
	Role        string
	Status      string
	Message     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Notification struct {
	ID          string
	RecipientID string
	ActorID     string
	SubjectKind string
	SubjectID   string
	Action      string
	Title       string
	Message     string
	Path        string
	IsRead      bool
	CreatedAt   time.Time
}
