// Package notify delivers user-facing notifications for approval and
// tagging activity. Delivery is best-effort and at-least-once: a failed
// write is logged and never propagated to the transition that caused it.
package notify

// Action identifies what happened to the subject.
type Action string

const (
	ActionTagApproved        Action = "tag_approved"
	ActionTagRejected        Action = "tag_rejected"
	ActionContentPublished   Action = "content_published"
	ActionTagRequested       Action = "tag_requested"
	ActionTagRequestApproved Action = "tag_request_approved"
	ActionTagRequestDenied   Action = "tag_request_denied"
)

// SubjectKind identifies the entity a notification points at. The set is
// open-ended; follows and comments would slot in here without touching the
// emitter.
type SubjectKind string

const (
	SubjectFilm       SubjectKind = "film"
	SubjectPhoto      SubjectKind = "photo"
	SubjectApproval   SubjectKind = "approval"
	SubjectTagRequest SubjectKind = "tag_request"
)

// Event is one notification to one recipient.
type Event struct {
	RecipientID    string
	RecipientEmail string // optional, enables the email channel
	ActorID        string
	ActorName      string
	SubjectKind    SubjectKind
	SubjectID      string
	Action         Action
	Role           string
	ContentKind    string
	ContentID      string
	ContentTitle   string
}
