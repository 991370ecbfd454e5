package app

import (
	"context"
	"log"
	"net/http"

	"streetwatch/api/internal/notify"
	"streetwatch/api/internal/store"
)

// MyApprovals lists the approvals where the caller is the approver, the
// pending ones being their review queue.
func (s *Service) MyApprovals(ctx context.Context, session Session) (map[string]any, error) {
	approvals, err := s.store.ListApprovalsByApprover(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"approvals": approvalViews(approvals)}, nil
}

// ContentApprovals lists the approval state of one content item for
// involved viewers.
func (s *Service) ContentApprovals(ctx context.Context, session Session, contentKind, contentID string) (map[string]any, error) {
	head, err := s.contentHead(ctx, contentKind, contentID)
	if err != nil {
		return nil, err
	}
	if !s.viewerInvolved(ctx, session, head.OwnerID, contentKind, contentID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}
	approvals, err := s.store.ListApprovals(ctx, contentKind, contentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"approvals": approvalViews(approvals)}, nil
}

// ApproveCredit moves an approval to approved. Only the approver named on
// the record may act on it. Approving re-evaluates the publication gate.
func (s *Service) ApproveCredit(ctx context.Context, session Session, approvalID string) (map[string]any, error) {
	approval, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval.ApproverID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}

	if err := s.store.SetApprovalStatus(ctx, approval.ID, store.ApprovalApproved, ""); err != nil {
		return nil, err
	}
	approval.Status = store.ApprovalApproved
	approval.RejectionReason = ""

	s.notifyOwnerOfDecision(ctx, session, approval, notify.ActionTagApproved)
	s.evaluatePublication(ctx, approval.ContentKind, approval.ContentID)

	return approvalView(approval), nil
}

// RejectCredit moves an approval to rejected, recording why. An empty
// reason is stored as "No reason provided".
func (s *Service) RejectCredit(ctx context.Context, session Session, approvalID, reason string) (map[string]any, error) {
	approval, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval.ApproverID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}

	if reason == "" {
		reason = "No reason provided"
	}
	if err := s.store.SetApprovalStatus(ctx, approval.ID, store.ApprovalRejected, reason); err != nil {
		return nil, err
	}
	approval.Status = store.ApprovalRejected
	approval.RejectionReason = reason

	s.notifyOwnerOfDecision(ctx, session, approval, notify.ActionTagRejected)

	return approvalView(approval), nil
}

// ResetCredit returns an approval to pending, clearing any rejection
// reason. Lets an approver withdraw a decision while the owner sorts the
// tag out. No notification: nothing actionable changed for the owner.
func (s *Service) ResetCredit(ctx context.Context, session Session, approvalID string) (map[string]any, error) {
	approval, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval.ApproverID != session.UserID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}

	if err := s.store.SetApprovalStatus(ctx, approval.ID, store.ApprovalPending, ""); err != nil {
		return nil, err
	}
	approval.Status = store.ApprovalPending
	approval.RejectionReason = ""

	return approvalView(approval), nil
}

// notifyOwnerOfDecision tells the content owner about an approve/reject.
// Self-decided approvals (owner is the approver) stay silent.
func (s *Service) notifyOwnerOfDecision(ctx context.Context, session Session, approval store.Approval, action notify.Action) {
	head, err := s.contentHead(ctx, approval.ContentKind, approval.ContentID)
	if err != nil {
		log.Printf("notify decision: load content: %v", err)
		return
	}
	if head.OwnerID == "" || head.OwnerID == session.UserID {
		return
	}
	s.emitter.Notify(ctx, notify.Event{
		RecipientID:    head.OwnerID,
		RecipientEmail: s.userEmail(ctx, head.OwnerID),
		ActorID:        session.UserID,
		ActorName:      session.UserName,
		SubjectKind:    notify.SubjectApproval,
		SubjectID:      approval.ID,
		Action:         action,
		Role:           approval.Type,
		ContentKind:    approval.ContentKind,
		ContentID:      approval.ContentID,
		ContentTitle:   head.Title,
	})
}

// evaluatePublication checks the gate after an approval flips to approved
// and, on the first time the item clears it, notifies every stakeholder
// once. The dedup check keeps near-simultaneous final approvals from
// double-announcing. Failures are logged, never propagated.
func (s *Service) evaluatePublication(ctx context.Context, contentKind, contentID string) {
	pending, err := s.store.PendingApprovalCount(ctx, contentKind, contentID)
	if err != nil {
		log.Printf("publication gate %s %s: %v", contentKind, contentID, err)
		return
	}
	if pending != 0 {
		return
	}

	head, err := s.contentHead(ctx, contentKind, contentID)
	if err != nil {
		log.Printf("publication gate %s %s: %v", contentKind, contentID, err)
		return
	}
	participants, err := s.taggedParticipants(ctx, contentKind, contentID)
	if err != nil {
		log.Printf("publication gate %s %s: %v", contentKind, contentID, err)
		return
	}
	if len(participants) == 0 {
		// Untagged content never waited on anyone; no announcement.
		return
	}

	recipients := make(map[string]struct{}, len(participants)+1)
	if head.OwnerID != "" {
		recipients[head.OwnerID] = struct{}{}
	}
	for key := range participants {
		recipients[key.UserID] = struct{}{}
	}

	subjectKind := notify.SubjectFilm
	if contentKind == store.KindPhoto {
		subjectKind = notify.SubjectPhoto
	}

	for recipientID := range recipients {
		exists, err := s.emitter.Exists(ctx, recipientID, subjectKind, contentID, notify.ActionContentPublished)
		if err != nil {
			log.Printf("publication gate %s %s: dedup check for %s: %v", contentKind, contentID, recipientID, err)
			continue
		}
		if exists {
			continue
		}
		s.emitter.Notify(ctx, notify.Event{
			RecipientID:    recipientID,
			RecipientEmail: s.userEmail(ctx, recipientID),
			SubjectKind:    subjectKind,
			SubjectID:      contentID,
			Action:         notify.ActionContentPublished,
			ContentKind:    contentKind,
			ContentID:      contentID,
			ContentTitle:   head.Title,
		})
	}
}
