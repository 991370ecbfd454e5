package app

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"streetwatch/api/internal/rbac"
	"streetwatch/api/internal/store"
	"streetwatch/api/internal/util"
)

type FilmInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	VideoKey    string   `json:"videoKey"`
	ThumbKey    string   `json:"thumbKey"`
	EditorID    *string  `json:"editorId"`
	FilmerID    *string  `json:"filmerId"`
	CompanyID   *string  `json:"companyId"`
	RiderIDs    []string `json:"riderIds"`
	FilmerIDs   []string `json:"filmerIds"`
	CompanyIDs  []string `json:"companyIds"`
}

type PhotoInput struct {
	Title           string   `json:"title"`
	Caption         string   `json:"caption"`
	ImageKey        string   `json:"imageKey"`
	RiderIDs        []string `json:"riderIds"`
	PhotographerIDs []string `json:"photographerIds"`
	CompanyIDs      []string `json:"companyIds"`
}

func (s *Service) CreateFilm(ctx context.Context, session Session, input FilmInput) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionUpload) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	film := store.Film{
		ID:          util.NewID("flm"),
		OwnerID:     session.UserID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		VideoKey:    input.VideoKey,
		ThumbKey:    input.ThumbKey,
	}
	if input.EditorID != nil {
		film.EditorID = *input.EditorID
	}
	if input.FilmerID != nil {
		film.LegacyFilmerID = *input.FilmerID
	}
	if input.CompanyID != nil {
		film.LegacyCompanyID = *input.CompanyID
	}

	if err := s.store.InsertFilm(ctx, film); err != nil {
		return nil, err
	}
	if err := s.saveFilmCredits(ctx, film.ID, input, true); err != nil {
		return nil, err
	}
	if warn := s.ReconcileTags(ctx, store.KindFilm, film.ID, nil); warn != nil {
		log.Printf("create film: %v", warn)
	}

	return s.filmView(ctx, session, film.ID)
}

func (s *Service) UpdateFilm(ctx context.Context, session Session, filmID string, input FilmInput) (map[string]any, error) {
	film, err := s.store.GetFilm(ctx, filmID)
	if err != nil {
		return nil, err
	}
	if !s.canEditContent(session, film.OwnerID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}

	if strings.TrimSpace(input.Title) != "" {
		film.Title = strings.TrimSpace(input.Title)
	}
	if input.Description != "" {
		film.Description = input.Description
	}
	if input.VideoKey != "" {
		film.VideoKey = input.VideoKey
	}
	if input.ThumbKey != "" {
		film.ThumbKey = input.ThumbKey
	}
	if input.EditorID != nil {
		film.EditorID = *input.EditorID
	}
	if input.FilmerID != nil {
		film.LegacyFilmerID = *input.FilmerID
	}
	if input.CompanyID != nil {
		film.LegacyCompanyID = *input.CompanyID
	}

	if err := s.store.UpdateFilm(ctx, film); err != nil {
		return nil, err
	}
	if err := s.saveFilmCredits(ctx, film.ID, input, false); err != nil {
		return nil, err
	}
	if warn := s.ReconcileTags(ctx, store.KindFilm, film.ID, nil); warn != nil {
		log.Printf("update film: %v", warn)
	}

	return s.filmView(ctx, session, film.ID)
}

// saveFilmCredits replaces the multi-value role lists. On update a nil
// slice means "leave this role alone"; on create everything is written.
func (s *Service) saveFilmCredits(ctx context.Context, filmID string, input FilmInput, create bool) error {
	roles := []struct {
		role string
		ids  []string
	}{
		{"rider", input.RiderIDs},
		{"filmer", input.FilmerIDs},
		{"company", input.CompanyIDs},
	}
	for _, r := range roles {
		if r.ids == nil && !create {
			continue
		}
		if err := s.store.ReplaceCredits(ctx, store.KindFilm, filmID, r.role, r.ids); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) DeleteFilm(ctx context.Context, session Session, filmID string) error {
	film, err := s.store.GetFilm(ctx, filmID)
	if err != nil {
		return err
	}
	if !s.canEditContent(session, film.OwnerID) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}
	return s.store.DeleteFilm(ctx, filmID)
}

func (s *Service) GetFilm(ctx context.Context, session Session, filmID string) (map[string]any, error) {
	if err := s.checkContentVisible(ctx, session, store.KindFilm, filmID); err != nil {
		return nil, err
	}
	return s.filmView(ctx, session, filmID)
}

func (s *Service) ListFilms(ctx context.Context, session Session, limit int) (map[string]any, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	films, err := s.store.ListPublishedFilms(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(films))
	for _, film := range films {
		items = append(items, s.filmSummary(ctx, film))
	}
	return map[string]any{"films": items}, nil
}

func (s *Service) ListMyFilms(ctx context.Context, session Session) (map[string]any, error) {
	films, err := s.store.ListFilmsByOwner(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(films))
	for _, film := range films {
		summary := s.filmSummary(ctx, film)
		published, err := s.IsPublished(ctx, store.KindFilm, film.ID)
		if err == nil {
			summary["published"] = published
		}
		items = append(items, summary)
	}
	return map[string]any{"films": items}, nil
}

func (s *Service) CreatePhoto(ctx context.Context, session Session, input PhotoInput) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionUpload) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	photo := store.Photo{
		ID:       util.NewID("pht"),
		OwnerID:  session.UserID,
		Title:    strings.TrimSpace(input.Title),
		Caption:  input.Caption,
		ImageKey: input.ImageKey,
	}
	if err := s.store.InsertPhoto(ctx, photo); err != nil {
		return nil, err
	}
	if err := s.savePhotoCredits(ctx, photo.ID, input, true); err != nil {
		return nil, err
	}
	if warn := s.ReconcileTags(ctx, store.KindPhoto, photo.ID, nil); warn != nil {
		log.Printf("create photo: %v", warn)
	}

	return s.photoView(ctx, session, photo.ID)
}

func (s *Service) UpdatePhoto(ctx context.Context, session Session, photoID string, input PhotoInput) (map[string]any, error) {
	photo, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}
	if !s.canEditContent(session, photo.OwnerID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}

	if strings.TrimSpace(input.Title) != "" {
		photo.Title = strings.TrimSpace(input.Title)
	}
	if input.Caption != "" {
		photo.Caption = input.Caption
	}
	if input.ImageKey != "" {
		photo.ImageKey = input.ImageKey
	}

	if err := s.store.UpdatePhoto(ctx, photo); err != nil {
		return nil, err
	}
	if err := s.savePhotoCredits(ctx, photo.ID, input, false); err != nil {
		return nil, err
	}
	if warn := s.ReconcileTags(ctx, store.KindPhoto, photo.ID, nil); warn != nil {
		log.Printf("update photo: %v", warn)
	}

	return s.photoView(ctx, session, photo.ID)
}

func (s *Service) savePhotoCredits(ctx context.Context, photoID string, input PhotoInput, create bool) error {
	roles := []struct {
		role string
		ids  []string
	}{
		{"rider", input.RiderIDs},
		{"photographer", input.PhotographerIDs},
		{"company", input.CompanyIDs},
	}
	for _, r := range roles {
		if r.ids == nil && !create {
			continue
		}
		if err := s.store.ReplaceCredits(ctx, store.KindPhoto, photoID, r.role, r.ids); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) DeletePhoto(ctx context.Context, session Session, photoID string) error {
	photo, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return err
	}
	if !s.canEditContent(session, photo.OwnerID) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}
	return s.store.DeletePhoto(ctx, photoID)
}

func (s *Service) GetPhoto(ctx context.Context, session Session, photoID string) (map[string]any, error) {
	if err := s.checkContentVisible(ctx, session, store.KindPhoto, photoID); err != nil {
		return nil, err
	}
	return s.photoView(ctx, session, photoID)
}

func (s *Service) ListPhotos(ctx context.Context, session Session, limit int) (map[string]any, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	photos, err := s.store.ListPublishedPhotos(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(photos))
	for _, photo := range photos {
		items = append(items, s.photoSummary(ctx, photo))
	}
	return map[string]any{"photos": items}, nil
}

// IsPublished reports whether a content item has cleared its publication
// gate: no pending approvals. Untagged content is trivially published.
func (s *Service) IsPublished(ctx context.Context, contentKind, contentID string) (bool, error) {
	if _, err := s.contentHead(ctx, contentKind, contentID); err != nil {
		return false, err
	}
	pending, err := s.store.PendingApprovalCount(ctx, contentKind, contentID)
	if err != nil {
		return false, err
	}
	return pending == 0, nil
}

// canEditContent: the owner and moderators may mutate a content item.
func (s *Service) canEditContent(session Session, ownerID string) bool {
	if ownerID != "" && session.UserID == ownerID {
		return true
	}
	return s.Can(session.Role, rbac.ActionModerate)
}

// checkContentVisible enforces read visibility: published content is
// public, unpublished content is visible only to the owner, tagged
// participants, and moderators. Hidden content reads as missing.
func (s *Service) checkContentVisible(ctx context.Context, session Session, contentKind, contentID string) error {
	head, err := s.contentHead(ctx, contentKind, contentID)
	if err != nil {
		return err
	}
	published, err := s.IsPublished(ctx, contentKind, contentID)
	if err != nil {
		return err
	}
	if published {
		return nil
	}
	if s.canEditContent(session, head.OwnerID) {
		return nil
	}
	if session.UserID != "" {
		participants, err := s.taggedParticipants(ctx, contentKind, contentID)
		if err != nil {
			return err
		}
		for key := range participants {
			if key.UserID == session.UserID {
				return nil
			}
		}
	}
	return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *Service) filmView(ctx context.Context, session Session, filmID string) (map[string]any, error) {
	film, err := s.store.GetFilm(ctx, filmID)
	if err != nil {
		return nil, err
	}
	view := s.filmSummary(ctx, film)

	credits, err := s.store.ListCredits(ctx, store.KindFilm, film.ID)
	if err != nil {
		return nil, err
	}
	view["credits"] = creditViews(credits)

	published, err := s.IsPublished(ctx, store.KindFilm, film.ID)
	if err != nil {
		return nil, err
	}
	view["published"] = published

	if s.viewerInvolved(ctx, session, film.OwnerID, store.KindFilm, film.ID) {
		approvals, err := s.store.ListApprovals(ctx, store.KindFilm, film.ID)
		if err != nil {
			return nil, err
		}
		view["approvals"] = approvalViews(approvals)
	}
	return view, nil
}

func (s *Service) filmSummary(ctx context.Context, film store.Film) map[string]any {
	summary := map[string]any{
		"id":          film.ID,
		"ownerId":     film.OwnerID,
		"title":       film.Title,
		"description": film.Description,
		"createdAt":   film.CreatedAt.UTC().Format(time.RFC3339),
	}
	if film.EditorID != "" {
		summary["editorId"] = film.EditorID
	}
	if film.LegacyFilmerID != "" {
		summary["filmerId"] = film.LegacyFilmerID
	}
	if film.LegacyCompanyID != "" {
		summary["companyId"] = film.LegacyCompanyID
	}
	if url := s.mediaURL(ctx, "video", film.VideoKey); url != "" {
		summary["videoUrl"] = url
	}
	if url := s.mediaURL(ctx, "thumbnail", film.ThumbKey); url != "" {
		summary["thumbUrl"] = url
	}
	return summary
}

func (s *Service) photoView(ctx context.Context, session Session, photoID string) (map[string]any, error) {
	photo, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}
	view := s.photoSummary(ctx, photo)

	credits, err := s.store.ListCredits(ctx, store.KindPhoto, photo.ID)
	if err != nil {
		return nil, err
	}
	view["credits"] = creditViews(credits)

	published, err := s.IsPublished(ctx, store.KindPhoto, photo.ID)
	if err != nil {
		return nil, err
	}
	view["published"] = published

	if s.viewerInvolved(ctx, session, photo.OwnerID, store.KindPhoto, photo.ID) {
		approvals, err := s.store.ListApprovals(ctx, store.KindPhoto, photo.ID)
		if err != nil {
			return nil, err
		}
		view["approvals"] = approvalViews(approvals)
	}
	return view, nil
}

func (s *Service) photoSummary(ctx context.Context, photo store.Photo) map[string]any {
	summary := map[string]any{
		"id":        photo.ID,
		"ownerId":   photo.OwnerID,
		"title":     photo.Title,
		"caption":   photo.Caption,
		"createdAt": photo.CreatedAt.UTC().Format(time.RFC3339),
	}
	if url := s.mediaURL(ctx, "photo", photo.ImageKey); url != "" {
		summary["imageUrl"] = url
	}
	return summary
}

// viewerInvolved: approval state is visible to the owner, moderators, and
// anyone holding one of the item's approvals.
func (s *Service) viewerInvolved(ctx context.Context, session Session, ownerID, contentKind, contentID string) bool {
	if session.UserID == "" {
		return false
	}
	if s.canEditContent(session, ownerID) {
		return true
	}
	participants, err := s.taggedParticipants(ctx, contentKind, contentID)
	if err != nil {
		return false
	}
	for key := range participants {
		if key.UserID == session.UserID {
			return true
		}
	}
	return false
}

func creditViews(credits []store.Credit) []map[string]any {
	views := make([]map[string]any, 0, len(credits))
	for _, credit := range credits {
		views = append(views, map[string]any{
			"userId": credit.UserID,
			"role":   credit.Role,
		})
	}
	return views
}

func approvalViews(approvals []store.Approval) []map[string]any {
	views := make([]map[string]any, 0, len(approvals))
	for _, approval := range approvals {
		views = append(views, approvalView(approval))
	}
	return views
}

func approvalView(approval store.Approval) map[string]any {
	view := map[string]any{
		"id":          approval.ID,
		"contentKind": approval.ContentKind,
		"contentId":   approval.ContentID,
		"approverId":  approval.ApproverID,
		"role":        approval.Type,
		"status":      approval.Status,
	}
	if approval.RejectionReason != "" {
		view["rejectionReason"] = approval.RejectionReason
	}
	return view
}
