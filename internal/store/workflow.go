package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) ListApprovals(ctx context.Context, contentKind, contentID string) ([]Approval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_kind, content_id, approver_id, approval_type, status, COALESCE(rejection_reason, ''), created_at, updated_at
		FROM approvals
		WHERE content_kind=$1 AND content_id=$2
		ORDER BY approval_type ASC, created_at ASC
	`, contentKind, contentID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	items := make([]Approval, 0)
	for rows.Next() {
		var item Approval
		if err := rows.Scan(&item.ID, &item.ContentKind, &item.ContentID, &item.ApproverID, &item.Type,
			&item.Status, &item.RejectionReason, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approvals: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListApprovalsByApprover(ctx context.Context, approverID string) ([]Approval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_kind, content_id, approver_id, approval_type, status, COALESCE(rejection_reason, ''), created_at, updated_at
		FROM approvals
		WHERE approver_id=$1
		ORDER BY created_at DESC
	`, approverID)
	if err != nil {
		return nil, fmt.Errorf("list approvals by approver: %w", err)
	}
	defer rows.Close()

	items := make([]Approval, 0)
	for rows.Next() {
		var item Approval
		if err := rows.Scan(&item.ID, &item.ContentKind, &item.ContentID, &item.ApproverID, &item.Type,
			&item.Status, &item.RejectionReason, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approvals: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetApproval(ctx context.Context, approvalID string) (Approval, error) {
	var item Approval
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content_kind, content_id, approver_id, approval_type, status, COALESCE(rejection_reason, ''), created_at, updated_at
		FROM approvals
		WHERE id=$1
	`, approvalID).Scan(&item.ID, &item.ContentKind, &item.ContentID, &item.ApproverID, &item.Type,
		&item.Status, &item.RejectionReason, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Approval{}, err
	}
	return item, nil
}

// InsertApproval creates an approval row unless one already exists for the
// same (content, approver, type) key. Concurrent reconciliations racing on
// the same pair land on the unique index; the loser's insert is a no-op.
func (s *PostgresStore) InsertApproval(ctx context.Context, approval Approval) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, content_kind, content_id, approver_id, approval_type, status, rejection_reason)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		ON CONFLICT (content_kind, content_id, approver_id, approval_type) DO NOTHING
	`, approval.ID, approval.ContentKind, approval.ContentID, approval.ApproverID, approval.Type,
		approval.Status, approval.RejectionReason)
	if err != nil {
		return false, fmt.Errorf("insert approval: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert approval rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteApproval(ctx context.Context, contentKind, contentID, approverID, approvalType string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM approvals
		WHERE content_kind=$1 AND content_id=$2 AND approver_id=$3 AND approval_type=$4
	`, contentKind, contentID, approverID, approvalType)
	if err != nil {
		return fmt.Errorf("delete approval: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetApprovalStatus(ctx context.Context, approvalID, status, rejectionReason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE approvals
		SET status=$2, rejection_reason=NULLIF($3, ''), updated_at=NOW()
		WHERE id=$1
	`, approvalID, status, rejectionReason)
	if err != nil {
		return fmt.Errorf("set approval status: %w", err)
	}
	return nil
}

func (s *PostgresStore) PendingApprovalCount(ctx context.Context, contentKind, contentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM approvals
		WHERE content_kind=$1 AND content_id=$2 AND status='pending'
	`, contentKind, contentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending approvals: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertTagRequest(ctx context.Context, request TagRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tag_requests (id, content_kind, content_id, requester_id, role, status, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, request.ID, request.ContentKind, request.ContentID, request.RequesterID, request.Role,
		request.Status, request.Message)
	if err != nil {
		return fmt.Errorf("insert tag request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTagRequest(ctx context.Context, requestID string) (TagRequest, error) {
	var item TagRequest
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content_kind, content_id, requester_id, role, status, COALESCE(message, ''), created_at, updated_at
		FROM tag_requests
		WHERE id=$1
	`, requestID).Scan(&item.ID, &item.ContentKind, &item.ContentID, &item.RequesterID, &item.Role,
		&item.Status, &item.Message, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return TagRequest{}, err
	}
	return item, nil
}

func (s *PostgresStore) SetTagRequestStatus(ctx context.Context, requestID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tag_requests SET status=$2, updated_at=NOW() WHERE id=$1
	`, requestID, status)
	if err != nil {
		return fmt.Errorf("set tag request status: %w", err)
	}
	return nil
}

func (s *PostgresStore) HasPendingTagRequest(ctx context.Context, contentKind, contentID, requesterID, role string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM tag_requests
			WHERE content_kind=$1 AND content_id=$2 AND requester_id=$3 AND role=$4 AND status='pending'
		)
	`, contentKind, contentID, requesterID, role).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending tag request: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListTagRequestsByContent(ctx context.Context, contentKind, contentID string) ([]TagRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_kind, content_id, requester_id, role, status, COALESCE(message, ''), created_at, updated_at
		FROM tag_requests
		WHERE content_kind=$1 AND content_id=$2
		ORDER BY created_at DESC
	`, contentKind, contentID)
	if err != nil {
		return nil, fmt.Errorf("list tag requests: %w", err)
	}
	defer rows.Close()

	items := make([]TagRequest, 0)
	for rows.Next() {
		var item TagRequest
		if err := rows.Scan(&item.ID, &item.ContentKind, &item.ContentID, &item.RequesterID, &item.Role,
			&item.Status, &item.Message, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tag request: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag requests: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListTagRequestsByRequester(ctx context.Context, requesterID string) ([]TagRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_kind, content_id, requester_id, role, status, COALESCE(message, ''), created_at, updated_at
		FROM tag_requests
		WHERE requester_id=$1
		ORDER BY created_at DESC
	`, requesterID)
	if err != nil {
		return nil, fmt.Errorf("list tag requests by requester: %w", err)
	}
	defer rows.Close()

	items := make([]TagRequest, 0)
	for rows.Next() {
		var item TagRequest
		if err := rows.Scan(&item.ID, &item.ContentKind, &item.ContentID, &item.RequesterID, &item.Role,
			&item.Status, &item.Message, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tag request: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag requests: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertNotification(ctx context.Context, notification Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, actor_id, subject_kind, subject_id, action, title, message, path)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
	`, notification.ID, notification.RecipientID, notification.ActorID, notification.SubjectKind,
		notification.SubjectID, notification.Action, notification.Title, notification.Message, notification.Path)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) NotificationExists(ctx context.Context, recipientID, subjectKind, subjectID, action string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notifications
			WHERE recipient_id=$1 AND subject_kind=$2 AND subject_id=$3 AND action=$4
		)
	`, recipientID, subjectKind, subjectID, action).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, recipientID string, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, COALESCE(actor_id, ''), subject_kind, subject_id, action, title, message, COALESCE(path, ''), is_read, created_at
		FROM notifications
		WHERE recipient_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.RecipientID, &item.ActorID, &item.SubjectKind, &item.SubjectID,
			&item.Action, &item.Title, &item.Message, &item.Path, &item.IsRead, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, recipientID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read=TRUE WHERE id=$1 AND recipient_id=$2
	`, notificationID, recipientID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification rows: %w", err)
	}
	return affected > 0, nil
}
