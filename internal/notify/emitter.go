package notify

import (
	"context"
	"log"

	"streetwatch/api/internal/store"
	"streetwatch/api/internal/util"
)

// Sink is the persistence surface the emitter writes to.
type Sink interface {
	InsertNotification(ctx context.Context, notification store.Notification) error
	NotificationExists(ctx context.Context, recipientID, subjectKind, subjectID, action string) (bool, error)
}

// Mailer is an optional secondary channel.
type Mailer interface {
	IsConfigured() bool
	SendEmail(to []string, subject, body string) error
}

type Emitter struct {
	sink   Sink
	mailer Mailer
}

func NewEmitter(sink Sink, mailer Mailer) *Emitter {
	return &Emitter{sink: sink, mailer: mailer}
}

// Notify records the event for its recipient. Failures are logged and
// swallowed: a notification must never roll back the transition that
// produced it.
func (e *Emitter) Notify(ctx context.Context, event Event) {
	title, message, path, err := Render(event)
	if err != nil {
		log.Printf("notify: %v", err)
		return
	}

	if err := e.sink.InsertNotification(ctx, store.Notification{
		ID:          util.NewID("ntf"),
		RecipientID: event.RecipientID,
		ActorID:     event.ActorID,
		SubjectKind: string(event.SubjectKind),
		SubjectID:   event.SubjectID,
		Action:      string(event.Action),
		Title:       title,
		Message:     message,
		Path:        path,
	}); err != nil {
		log.Printf("notify: deliver %s to %s: %v", event.Action, event.RecipientID, err)
	}

	if e.mailer != nil && e.mailer.IsConfigured() && event.RecipientEmail != "" {
		if err := e.mailer.SendEmail([]string{event.RecipientEmail}, title, message); err != nil {
			log.Printf("notify: email %s to %s: %v", event.Action, event.RecipientEmail, err)
		}
	}
}

// Exists reports whether the recipient was already notified about this
// subject and action. Used to keep publish notifications single-shot when
// approvals land close together.
func (e *Emitter) Exists(ctx context.Context, recipientID string, subjectKind SubjectKind, subjectID string, action Action) (bool, error) {
	return e.sink.NotificationExists(ctx, recipientID, string(subjectKind), subjectID, string(action))
}
