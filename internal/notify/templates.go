package notify

import (
	"fmt"
	"strings"
	"text/template"
)

type templateKey struct {
	Kind   SubjectKind
	Action Action
}

type messageTemplate struct {
	title   string
	body    *template.Template
	pathFmt string // formatted with the event's content kind and id
}

// The (subject kind, action) table is the single source for notification
// copy and link targets.
var messageTemplates = map[templateKey]messageTemplate{
	{SubjectApproval, ActionTagApproved}: {
		title:   "Credit approved",
		body:    mustParse("tag_approved", "{{.ActorName}} approved their {{.Role}} credit on {{.ContentTitle}}"),
		pathFmt: "/%ss/%s",
	},
	{SubjectApproval, ActionTagRejected}: {
		title:   "Credit declined",
		body:    mustParse("tag_rejected", "{{.ActorName}} declined their {{.Role}} credit on {{.ContentTitle}}"),
		pathFmt: "/%ss/%s",
	},
	{SubjectFilm, ActionContentPublished}: {
		title:   "Film published",
		body:    mustParse("film_published", "{{.ContentTitle}} has been approved by everyone credited and is now public"),
		pathFmt: "/%ss/%s",
	},
	{SubjectPhoto, ActionContentPublished}: {
		title:   "Photo published",
		body:    mustParse("photo_published", "{{.ContentTitle}} has been approved by everyone credited and is now public"),
		pathFmt: "/%ss/%s",
	},
	{SubjectTagRequest, ActionTagRequested}: {
		title:   "Credit requested",
		body:    mustParse("tag_requested", "{{.ActorName}} asked to be credited as {{.Role}} on {{.ContentTitle}}"),
		pathFmt: "/%ss/%s/tag-requests",
	},
	{SubjectTagRequest, ActionTagRequestApproved}: {
		title:   "Credit request accepted",
		body:    mustParse("tag_request_approved", "Your request to be credited as {{.Role}} on {{.ContentTitle}} was accepted"),
		pathFmt: "/%ss/%s",
	},
	{SubjectTagRequest, ActionTagRequestDenied}: {
		title:   "Credit request declined",
		body:    mustParse("tag_request_denied", "Your request to be credited as {{.Role}} on {{.ContentTitle}} was declined"),
		pathFmt: "/%ss/%s",
	},
}

func mustParse(name, body string) *template.Template {
	return template.Must(template.New(name).Parse(body))
}

// Render produces the title, message, and link path for an event.
func Render(event Event) (title, message, path string, err error) {
	tmpl, ok := messageTemplates[templateKey{event.SubjectKind, event.Action}]
	if !ok {
		return "", "", "", fmt.Errorf("no template for %s/%s", event.SubjectKind, event.Action)
	}
	var out strings.Builder
	if err := tmpl.body.Execute(&out, event); err != nil {
		return "", "", "", fmt.Errorf("render %s/%s: %w", event.SubjectKind, event.Action, err)
	}
	return tmpl.title, out.String(), fmt.Sprintf(tmpl.pathFmt, event.ContentKind, event.ContentID), nil
}
