package notify

import (
	"context"
	"errors"
	"testing"

	"streetwatch/api/internal/store"
)

type recordingSink struct {
	inserted  []store.Notification
	insertErr error
	existing  map[string]bool
}

func (s *recordingSink) InsertNotification(_ context.Context, n store.Notification) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, n)
	return nil
}

func (s *recordingSink) NotificationExists(_ context.Context, recipientID, subjectKind, subjectID, action string) (bool, error) {
	return s.existing[recipientID+"|"+subjectKind+"|"+subjectID+"|"+action], nil
}

func TestNotifyWritesRenderedRow(t *testing.T) {
	sink := &recordingSink{}
	emitter := NewEmitter(sink, nil)

	emitter.Notify(context.Background(), Event{
		RecipientID:  "usr-owner",
		ActorID:      "usr-rider",
		ActorName:    "Jonas",
		SubjectKind:  SubjectApproval,
		SubjectID:    "apr-1",
		Action:       ActionTagApproved,
		Role:         "rider",
		ContentKind:  "film",
		ContentID:    "flm-1",
		ContentTitle: "Night Lines",
	})

	if len(sink.inserted) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sink.inserted))
	}
	row := sink.inserted[0]
	if row.RecipientID != "usr-owner" || row.ActorID != "usr-rider" {
		t.Fatalf("unexpected recipient/actor: %+v", row)
	}
	if row.Action != string(ActionTagApproved) || row.SubjectKind != string(SubjectApproval) {
		t.Fatalf("unexpected action/subject: %+v", row)
	}
	if row.Title == "" || row.Message == "" || row.Path == "" {
		t.Fatalf("expected rendered fields, got %+v", row)
	}
}

func TestNotifySwallowsSinkFailure(t *testing.T) {
	sink := &recordingSink{insertErr: errors.New("connection reset")}
	emitter := NewEmitter(sink, nil)

	// Must not panic or propagate.
	emitter.Notify(context.Background(), Event{
		RecipientID:  "usr-owner",
		SubjectKind:  SubjectFilm,
		SubjectID:    "flm-1",
		Action:       ActionContentPublished,
		ContentKind:  "film",
		ContentID:    "flm-1",
		ContentTitle: "Night Lines",
	})
}

func TestExistsChecksSink(t *testing.T) {
	sink := &recordingSink{existing: map[string]bool{
		"usr-a|film|flm-1|content_published": true,
	}}
	emitter := NewEmitter(sink, nil)

	exists, err := emitter.Exists(context.Background(), "usr-a", SubjectFilm, "flm-1", ActionContentPublished)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Fatal("expected existing notification to be reported")
	}
	exists, err = emitter.Exists(context.Background(), "usr-b", SubjectFilm, "flm-1", ActionContentPublished)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Fatal("expected no notification for usr-b")
	}
}
