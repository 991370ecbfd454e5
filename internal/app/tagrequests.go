package app

import (
	"context"
	"log"
	"net/http"
	"strings"

	"streetwatch/api/internal/notify"
	"streetwatch/api/internal/store"
	"streetwatch/api/internal/util"
)

// CreateTagRequest lets a user ask the content owner to be tagged in a
// role. One pending request per (content, requester, role); an existing
// tag in that role also blocks the request.
func (s *Service) CreateTagRequest(ctx context.Context, session Session, contentKind, contentID, role, message string) (map[string]any, error) {
	role = strings.TrimSpace(role)
	if !validRole(contentKind, role) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown role for this content kind", nil)
	}

	head, err := s.contentHead(ctx, contentKind, contentID)
	if err != nil {
		return nil, err
	}

	participants, err := s.taggedParticipants(ctx, contentKind, contentID)
	if err != nil {
		return nil, err
	}
	if _, tagged := participants[creditKey{UserID: session.UserID, Role: role}]; tagged {
		return nil, domainError(http.StatusUnprocessableEntity, "DUPLICATE_TAG", "Already tagged in this role", nil)
	}

	pending, err := s.store.HasPendingTagRequest(ctx, contentKind, contentID, session.UserID, role)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, domainError(http.StatusUnprocessableEntity, "DUPLICATE_TAG", "A request for this role is already pending", nil)
	}

	request := store.TagRequest{
		ID:          util.NewID("tgr"),
		ContentKind: contentKind,
		ContentID:   contentID,
		RequesterID: session.UserID,
		Role:        role,
		Status:      store.TagRequestPending,
		Message:     strings.TrimSpace(message),
	}
	if err := s.store.InsertTagRequest(ctx, request); err != nil {
		return nil, err
	}

	if head.OwnerID != "" && head.OwnerID != session.UserID {
		s.emitter.Notify(ctx, notify.Event{
			RecipientID:    head.OwnerID,
			RecipientEmail: s.userEmail(ctx, head.OwnerID),
			ActorID:        session.UserID,
			ActorName:      session.UserName,
			SubjectKind:    notify.SubjectTagRequest,
			SubjectID:      request.ID,
			Action:         notify.ActionTagRequested,
			Role:           role,
			ContentKind:    contentKind,
			ContentID:      contentID,
			ContentTitle:   head.Title,
		})
	}

	return tagRequestView(request), nil
}

// ApproveTagRequest is the owner accepting the request: the requester is
// tagged, and their approval is created pre-approved since asking to be
// tagged is consent.
func (s *Service) ApproveTagRequest(ctx context.Context, session Session, requestID string) (map[string]any, error) {
	request, err := s.store.GetTagRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	head, err := s.contentHead(ctx, request.ContentKind, request.ContentID)
	if err != nil {
		return nil, err
	}
	if head.OwnerID == "" || head.OwnerID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}
	if request.Status != store.TagRequestPending {
		return nil, domainError(http.StatusConflict, "INVALID_TRANSITION", "Request already decided", nil)
	}

	if request.ContentKind == store.KindFilm && request.Role == "editor" {
		if err := s.store.SetFilmEditor(ctx, request.ContentID, request.RequesterID); err != nil {
			return nil, err
		}
	} else {
		if err := s.store.AddCredit(ctx, request.ContentKind, request.ContentID, request.RequesterID, request.Role); err != nil {
			return nil, err
		}
	}
	if err := s.store.SetTagRequestStatus(ctx, request.ID, store.TagRequestApproved); err != nil {
		return nil, err
	}
	request.Status = store.TagRequestApproved

	preapproved := map[creditKey]struct{}{
		{UserID: request.RequesterID, Role: request.Role}: {},
	}
	if warn := s.ReconcileTags(ctx, request.ContentKind, request.ContentID, preapproved); warn != nil {
		log.Printf("approve tag request: %v", warn)
	}
	// A pre-approved tag adds no pending work, so the gate may now be clear.
	s.evaluatePublication(ctx, request.ContentKind, request.ContentID)

	s.notifyRequester(ctx, session, request, head, notify.ActionTagRequestApproved)

	return tagRequestView(request), nil
}

// DenyTagRequest is the owner declining; no tag is created.
func (s *Service) DenyTagRequest(ctx context.Context, session Session, requestID string) (map[string]any, error) {
	request, err := s.store.GetTagRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	head, err := s.contentHead(ctx, request.ContentKind, request.ContentID)
	if err != nil {
		return nil, err
	}
	if head.OwnerID == "" || head.OwnerID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}
	if request.Status != store.TagRequestPending {
		return nil, domainError(http.StatusConflict, "INVALID_TRANSITION", "Request already decided", nil)
	}

	if err := s.store.SetTagRequestStatus(ctx, request.ID, store.TagRequestDenied); err != nil {
		return nil, err
	}
	request.Status = store.TagRequestDenied

	s.notifyRequester(ctx, session, request, head, notify.ActionTagRequestDenied)

	return tagRequestView(request), nil
}

// ContentTagRequests lists a content item's requests for its owner.
func (s *Service) ContentTagRequests(ctx context.Context, session Session, contentKind, contentID string) (map[string]any, error) {
	head, err := s.contentHead(ctx, contentKind, contentID)
	if err != nil {
		return nil, err
	}
	if !s.canEditContent(session, head.OwnerID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}
	requests, err := s.store.ListTagRequestsByContent(ctx, contentKind, contentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tagRequests": tagRequestViews(requests)}, nil
}

// MyTagRequests lists the requests the caller has filed.
func (s *Service) MyTagRequests(ctx context.Context, session Session) (map[string]any, error) {
	requests, err := s.store.ListTagRequestsByRequester(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tagRequests": tagRequestViews(requests)}, nil
}

func (s *Service) notifyRequester(ctx context.Context, session Session, request store.TagRequest, head contentHead, action notify.Action) {
	s.emitter.Notify(ctx, notify.Event{
		RecipientID:    request.RequesterID,
		RecipientEmail: s.userEmail(ctx, request.RequesterID),
		ActorID:        session.UserID,
		ActorName:      session.UserName,
		SubjectKind:    notify.SubjectTagRequest,
		SubjectID:      request.ID,
		Action:         action,
		Role:           request.Role,
		ContentKind:    request.ContentKind,
		ContentID:      request.ContentID,
		ContentTitle:   head.Title,
	})
}

func tagRequestViews(requests []store.TagRequest) []map[string]any {
	views := make([]map[string]any, 0, len(requests))
	for _, request := range requests {
		views = append(views, tagRequestView(request))
	}
	return views
}

func tagRequestView(request store.TagRequest) map[string]any {
	view := map[string]any{
		"id":          request.ID,
		"contentKind": request.ContentKind,
		"contentId":   request.ContentID,
		"requesterId": request.RequesterID,
		"role":        request.Role,
		"status":      request.Status,
	}
	if request.Message != "" {
		view["message"] = request.Message
	}
	return view
}
