package app

import (
	"context"
	"fmt"

	"streetwatch/api/internal/store"
	"streetwatch/api/internal/util"
)

// creditKey identifies one tagged participant in one role. Approvals are
// unique per key, so the reconciler operates on sets of these.
type creditKey struct {
	UserID string
	Role   string
}

var filmRoles = map[string]struct{}{
	"rider":   {},
	"filmer":  {},
	"company": {},
	"editor":  {},
}

var photoRoles = map[string]struct{}{
	"rider":        {},
	"photographer": {},
	"company":      {},
}

func validRole(contentKind, role string) bool {
	switch contentKind {
	case store.KindFilm:
		_, ok := filmRoles[role]
		return ok
	case store.KindPhoto:
		_, ok := photoRoles[role]
		return ok
	default:
		return false
	}
}

// contentHead is the slice of a content item the workflow engine needs:
// who owns it and what to call it in notification copy.
type contentHead struct {
	OwnerID string
	Title   string
}

func (s *Service) contentHead(ctx context.Context, contentKind, contentID string) (contentHead, error) {
	switch contentKind {
	case store.KindFilm:
		film, err := s.store.GetFilm(ctx, contentID)
		if err != nil {
			return contentHead{}, err
		}
		return contentHead{OwnerID: film.OwnerID, Title: film.Title}, nil
	case store.KindPhoto:
		photo, err := s.store.GetPhoto(ctx, contentID)
		if err != nil {
			return contentHead{}, err
		}
		return contentHead{OwnerID: photo.OwnerID, Title: photo.Title}, nil
	default:
		return contentHead{}, fmt.Errorf("unknown content kind %q", contentKind)
	}
}

// taggedParticipants merges the credits join table with the single-valued
// role columns on films into one deduplicated set. A user tagged both ways
// in the same role yields one entry, so at most one approval.
func (s *Service) taggedParticipants(ctx context.Context, contentKind, contentID string) (map[creditKey]struct{}, error) {
	credits, err := s.store.ListCredits(ctx, contentKind, contentID)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}

	set := make(map[creditKey]struct{}, len(credits))
	for _, credit := range credits {
		if credit.UserID == "" {
			continue
		}
		set[creditKey{UserID: credit.UserID, Role: credit.Role}] = struct{}{}
	}

	if contentKind == store.KindFilm {
		film, err := s.store.GetFilm(ctx, contentID)
		if err != nil {
			return nil, fmt.Errorf("load film: %w", err)
		}
		if film.EditorID != "" {
			set[creditKey{UserID: film.EditorID, Role: "editor"}] = struct{}{}
		}
		if film.LegacyFilmerID != "" {
			set[creditKey{UserID: film.LegacyFilmerID, Role: "filmer"}] = struct{}{}
		}
		if film.LegacyCompanyID != "" {
			set[creditKey{UserID: film.LegacyCompanyID, Role: "company"}] = struct{}{}
		}
	}

	return set, nil
}

// ReconcileWarning collects the per-pair failures of one reconciliation
// pass. The pass visits every pair regardless, and the caller treats the
// result as a log line, not a failure: the next pass converges.
type ReconcileWarning struct {
	ContentKind string
	ContentID   string
	Errs        []error
}

func (w *ReconcileWarning) Error() string {
	return fmt.Sprintf("reconcile %s %s: %d pair(s) failed: %v", w.ContentKind, w.ContentID, len(w.Errs), w.Errs)
}

// ReconcileTags aligns the approval rows of a content item with its tagged
// participants: stale approvals are deleted, missing ones are created
// pending. A participant in preapproved (or the owner) starts approved
// instead. Running it twice in a row is a no-op.
func (s *Service) ReconcileTags(ctx context.Context, contentKind, contentID string, preapproved map[creditKey]struct{}) *ReconcileWarning {
	warn := &ReconcileWarning{ContentKind: contentKind, ContentID: contentID}

	head, err := s.contentHead(ctx, contentKind, contentID)
	if err != nil {
		warn.Errs = append(warn.Errs, err)
		return warn
	}
	desired, err := s.taggedParticipants(ctx, contentKind, contentID)
	if err != nil {
		warn.Errs = append(warn.Errs, err)
		return warn
	}
	existing, err := s.store.ListApprovals(ctx, contentKind, contentID)
	if err != nil {
		warn.Errs = append(warn.Errs, err)
		return warn
	}

	existingByKey := make(map[creditKey]store.Approval, len(existing))
	for _, approval := range existing {
		existingByKey[creditKey{UserID: approval.ApproverID, Role: approval.Type}] = approval
	}

	for key := range existingByKey {
		if _, stillTagged := desired[key]; stillTagged {
			continue
		}
		if err := s.store.DeleteApproval(ctx, contentKind, contentID, key.UserID, key.Role); err != nil {
			warn.Errs = append(warn.Errs, fmt.Errorf("delete approval %s/%s: %w", key.UserID, key.Role, err))
		}
	}

	for key := range desired {
		if _, exists := existingByKey[key]; exists {
			continue
		}
		status := store.ApprovalPending
		if key.UserID == head.OwnerID {
			// Self-tags need no second signature.
			status = store.ApprovalApproved
		} else if _, ok := preapproved[key]; ok {
			status = store.ApprovalApproved
		}
		// InsertApproval is conflict-safe: a concurrent pass inserting the
		// same pair first is benign, not an error.
		if _, err := s.store.InsertApproval(ctx, store.Approval{
			ID:          util.NewID("apr"),
			ContentKind: contentKind,
			ContentID:   contentID,
			ApproverID:  key.UserID,
			Type:        key.Role,
			Status:      status,
		}); err != nil {
			warn.Errs = append(warn.Errs, fmt.Errorf("insert approval %s/%s: %w", key.UserID, key.Role, err))
		}
	}

	if len(warn.Errs) == 0 {
		return nil
	}
	return warn
}
