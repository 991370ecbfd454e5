package notify

import (
	"strings"
	"testing"
)

func TestRenderTagApproved(t *testing.T) {
	title, message, path, err := Render(Event{
		SubjectKind:  SubjectApproval,
		SubjectID:    "apr-1",
		Action:       ActionTagApproved,
		ActorName:    "Jonas",
		Role:         "rider",
		ContentKind:  "film",
		ContentID:    "flm-1",
		ContentTitle: "Night Lines",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if title != "Credit approved" {
		t.Fatalf("unexpected title %q", title)
	}
	if !strings.Contains(message, "Jonas") || !strings.Contains(message, "rider") || !strings.Contains(message, "Night Lines") {
		t.Fatalf("unexpected message %q", message)
	}
	if path != "/films/flm-1" {
		t.Fatalf("unexpected path %q", path)
	}
}

func TestRenderPublishedPerKind(t *testing.T) {
	cases := []struct {
		kind SubjectKind
		path string
	}{
		{SubjectFilm, "/films/c-1"},
		{SubjectPhoto, "/photos/c-1"},
	}
	for _, tc := range cases {
		title, _, path, err := Render(Event{
			SubjectKind:  tc.kind,
			SubjectID:    "c-1",
			Action:       ActionContentPublished,
			ContentKind:  string(tc.kind),
			ContentID:    "c-1",
			ContentTitle: "Rooftop Set",
		})
		if err != nil {
			t.Fatalf("Render(%s) error = %v", tc.kind, err)
		}
		if title == "" {
			t.Fatalf("expected title for %s", tc.kind)
		}
		if path != tc.path {
			t.Fatalf("path for %s = %q, want %q", tc.kind, path, tc.path)
		}
	}
}

func TestRenderUnknownPairFails(t *testing.T) {
	if _, _, _, err := Render(Event{SubjectKind: SubjectFilm, Action: ActionTagRequested}); err == nil {
		t.Fatal("expected error for unmapped (kind, action) pair")
	}
}
