package app

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"streetwatch/api/internal/notify"
	"streetwatch/api/internal/store"
)

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected a domain error, got %v", err)
	}
	return domainErr.Code
}

func TestTagRequestLifecycle(t *testing.T) {
	service, st, emitter := newTestService()
	owner := seedUser(t, st, "usr_owner", "Owner")
	requester := seedUser(t, st, "usr_f", "Filmer")
	ctx := context.Background()

	filmID := createFilmWithRiders(t, service, owner)

	view, err := service.CreateTagRequest(ctx, requester, store.KindFilm, filmID, "filmer", "I shot the second line")
	if err != nil {
		t.Fatalf("create tag request: %v", err)
	}
	requestID := view["id"].(string)
	if view["status"] != store.TagRequestPending {
		t.Fatalf("expected pending, got %v", view["status"])
	}
	if got := emitter.byAction(notify.ActionTagRequested); len(got) != 1 || got[0].RecipientID != owner.UserID {
		t.Fatalf("owner should be notified of the request, got %+v", got)
	}

	approved, err := service.ApproveTagRequest(ctx, owner, requestID)
	if err != nil {
		t.Fatalf("approve tag request: %v", err)
	}
	if approved["status"] != store.TagRequestApproved {
		t.Fatalf("expected approved, got %v", approved["status"])
	}

	// Asking to be tagged is consent: the approval starts approved and the
	// film stays publishable without another round trip.
	approval := approvalByApprover(t, st, store.KindFilm, filmID, "usr_f", "filmer")
	if approval.Status != store.ApprovalApproved {
		t.Fatalf("requester's approval should be pre-approved, got %s", approval.Status)
	}
	published, err := service.IsPublished(ctx, store.KindFilm, filmID)
	if err != nil {
		t.Fatalf("is published: %v", err)
	}
	if !published {
		t.Fatal("pre-approved tag must not gate publication")
	}

	if got := emitter.byAction(notify.ActionTagRequestApproved); len(got) != 1 || got[0].RecipientID != requester.UserID {
		t.Fatalf("requester should be notified of approval, got %+v", got)
	}
}

func TestTagRequestDuplicateBlocked(t *testing.T) {
	service, st, _ := newTestService()
	owner := seedUser(t, st, "usr_owner", "Owner")
	requester := seedUser(t, st, "usr_f", "Filmer")
	ctx := context.Background()

	filmID := createFilmWithRiders(t, service, owner)

	if _, err := service.CreateTagRequest(ctx, requester, store.KindFilm, filmID, "filmer", ""); err != nil {
		t.Fatalf("create tag request: %v", err)
	}
	_, err := service.CreateTagRequest(ctx, requester, store.KindFilm, filmID, "filmer", "")
	if code := domainCode(t, err); code != "DUPLICATE_TAG" {
		t.Fatalf("expected DUPLICATE_TAG for pending duplicate, got %s", code)
	}

	// A different role is a separate request.
	if _, err := service.CreateTagRequest(ctx, requester, store.KindFilm, filmID, "rider", ""); err != nil {
		t.Fatalf("different role should be allowed: %v", err)
	}
}

func TestTagRequestBlockedWhenAlreadyTagged(t *testing.T) {
	service, st, _ := newTestService()
	owner := seedUser(t, st, "usr_owner", "Owner")
	rider := seedUser(t, st, "usr_a", "A")
	ctx := context.Background()

	filmID := createFilmWithRiders(t, service, owner, "usr_a")

	_, err := service.CreateTagRequest(ctx, rider, store.KindFilm, filmID, "rider", "")
	if code := domainCode(t, err); code != "DUPLICATE_TAG" {
		t.Fatalf("expected DUPLICATE_TAG for existing tag, got %s", code)
	}
}

func TestTagRequestRoleValidation(t *testing.T) {
	service, st, _ := newTestService()
	owner := seedUser(t, st, "usr_owner", "Owner")
	requester := seedUser(t, st, "usr_p", "P")
	ctx := context.Background()

	view, err := service.CreatePhoto(ctx, owner, PhotoInput{Title: "Rooftop"})
	if err != nil {
		t.Fatalf("create photo: %v", err)
	}
	photoID := view["id"].(string)

	// Editor is a film role only.
	_, err = service.CreateTagRequest(ctx, requester, store.KindPhoto, photoID, "editor", "")
	if code := domainCode(t, err); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
	if _, err := service.CreateTagRequest(ctx, requester, store.KindPhoto, photoID, "photographer", ""); err != nil {
		t.Fatalf("photographer should be valid for photos: %v", err)
	}
}

func TestTagRequestEditorRoleSetsFilmColumn(t *testing.T) {
	service, st, _ := newTestService()
	owner := seedUser(t, st, "usr_owner", "Owner")
	editor := seedUser(t, st, "usr_e", "E")
	ctx := context.Background()

	filmID := createFilmWithRiders(t, service, owner)

	view, err := service.CreateTagRequest(ctx, editor, store.KindFilm, filmID, "editor", "")
	if err != nil {
		t.Fatalf("create tag request: %v", err)
	}
	if _, err := service.ApproveTagRequest(ctx, owner, view["id"].(string)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	film, err := st.GetFilm(ctx, filmID)
	if err != nil {
		t.Fatalf("get film: %v", err)
	}
	if film.EditorID != "usr_e" {
		t.Fatalf("editor approval should fill the editor slot, got %q", film.EditorID)
	}
	approval := approvalByApprover(t, st, store.KindFilm, filmID, "usr_e", "editor")
	if approval.Status != store.ApprovalApproved {
		t.Fatalf("expected pre-approved editor, got %s", approval.Status)
	}
}

func TestTagRequestDecisionsAreFinal(t *testing.T) {
	service, st, _ := newTestService()
	owner := seedUser(t, st, "usr_owner", "Owner")
	requester := seedUser(t, st, "usr_f", "Filmer")
	ctx := context.Background()

	filmID := createFilmWithRiders(t, service, owner)
	view, err := service.CreateTagRequest(ctx, requester, store.KindFilm, filmID, "filmer", "")
	if err != nil {
		t.Fatalf("create tag request: %v", err)
	}
	requestID := view["id"].(string)

	if _, err := service.DenyTagRequest(ctx, owner, requestID); err != nil {
		t.Fatalf("deny: %v", err)
	}
	_, err = service.ApproveTagRequest(ctx, owner, requestID)
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %s", code)
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", domainErr.Status)
	}

	// Denied means free to ask again.
	if _, err := service.CreateTagRequest(ctx, requester, store.KindFilm, filmID, "filmer", ""); err != nil {
		t.Fatalf("new request after denial should be allowed: %v", err)
	}
}

func TestTagRequestOnlyOwnerDecides(t *testing.T) {
	service, st, emitter := newTestService()
	owner := seedUser(t, st, "usr_owner", "Owner")
	requester := seedUser(t, st, "usr_f", "Filmer")
	stranger := seedUser(t, st, "usr_x", "X")
	ctx := context.Background()

	filmID := createFilmWithRiders(t, service, owner)
	view, err := service.CreateTagRequest(ctx, requester, store.KindFilm, filmID, "filmer", "")
	if err != nil {
		t.Fatalf("create tag request: %v", err)
	}
	requestID := view["id"].(string)

	if _, err := service.ApproveTagRequest(ctx, stranger, requestID); err == nil {
		t.Fatal("stranger must not approve")
	}
	if _, err := service.ApproveTagRequest(ctx, requester, requestID); err == nil {
		t.Fatal("requester must not approve their own request")
	}

	if got := emitter.byAction(notify.ActionTagRequestDenied); len(got) != 0 {
		t.Fatalf("no denial was issued, got %d events", len(got))
	}
}
