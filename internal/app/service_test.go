package app

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"streetwatch/api/internal/config"
	"streetwatch/api/internal/notify"
	"streetwatch/api/internal/store"
)

// memStore is an in-memory dataStore with the same row semantics as the
// Postgres implementation: missing rows read as sql.ErrNoRows, conflicting
// approval and credit inserts are silent no-ops.
type memStore struct {
	mu sync.Mutex

	users         map[string]store.User
	films         map[string]store.Film
	photos        map[string]store.Photo
	credits       []store.Credit
	approvals     map[string]store.Approval
	tagRequests   map[string]store.TagRequest
	notifications []store.Notification
	sessions      map[string]string // token hash -> user ID
	revokedJTIs   map[string]bool

	failDeleteApproval bool
	failInsertApproval bool
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]store.User{},
		films:       map[string]store.Film{},
		photos:      map[string]store.Photo{},
		approvals:   map[string]store.Approval{},
		tagRequests: map[string]store.TagRequest{},
		sessions:    map[string]string{},
		revokedJTIs: map[string]bool{},
	}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) CreateUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = userID
	return nil
}

func (m *memStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.sessions[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	user, ok := m.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokedJTIs[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokedJTIs[jti], nil
}

func (m *memStore) InsertFilm(_ context.Context, film store.Film) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	film.CreatedAt = time.Now()
	m.films[film.ID] = film
	return nil
}

func (m *memStore) GetFilm(_ context.Context, filmID string) (store.Film, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	film, ok := m.films[filmID]
	if !ok {
		return store.Film{}, sql.ErrNoRows
	}
	return film, nil
}

func (m *memStore) UpdateFilm(_ context.Context, film store.Film) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.films[film.ID]; !ok {
		return sql.ErrNoRows
	}
	m.films[film.ID] = film
	return nil
}

func (m *memStore) DeleteFilm(_ context.Context, filmID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.films, filmID)
	return nil
}

func (m *memStore) SetFilmEditor(_ context.Context, filmID, editorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	film, ok := m.films[filmID]
	if !ok {
		return sql.ErrNoRows
	}
	film.EditorID = editorID
	m.films[filmID] = film
	return nil
}

func (m *memStore) ListPublishedFilms(ctx context.Context, limit int) ([]store.Film, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	films := make([]store.Film, 0)
	for _, film := range m.films {
		if m.pendingCountLocked(store.KindFilm, film.ID) == 0 {
			films = append(films, film)
		}
		if len(films) == limit {
			break
		}
	}
	return films, nil
}

func (m *memStore) ListFilmsByOwner(_ context.Context, ownerID string) ([]store.Film, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	films := make([]store.Film, 0)
	for _, film := range m.films {
		if film.OwnerID == ownerID {
			films = append(films, film)
		}
	}
	return films, nil
}

func (m *memStore) InsertPhoto(_ context.Context, photo store.Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	photo.CreatedAt = time.Now()
	m.photos[photo.ID] = photo
	return nil
}

func (m *memStore) GetPhoto(_ context.Context, photoID string) (store.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	photo, ok := m.photos[photoID]
	if !ok {
		return store.Photo{}, sql.ErrNoRows
	}
	return photo, nil
}

func (m *memStore) UpdatePhoto(_ context.Context, photo store.Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.photos[photo.ID]; !ok {
		return sql.ErrNoRows
	}
	m.photos[photo.ID] = photo
	return nil
}

func (m *memStore) DeletePhoto(_ context.Context, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.photos, photoID)
	return nil
}

func (m *memStore) ListPublishedPhotos(_ context.Context, limit int) ([]store.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	photos := make([]store.Photo, 0)
	for _, photo := range m.photos {
		if m.pendingCountLocked(store.KindPhoto, photo.ID) == 0 {
			photos = append(photos, photo)
		}
		if len(photos) == limit {
			break
		}
	}
	return photos, nil
}

func (m *memStore) ListCredits(_ context.Context, contentKind, contentID string) ([]store.Credit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	credits := make([]store.Credit, 0)
	for _, credit := range m.credits {
		if credit.ContentKind == contentKind && credit.ContentID == contentID {
			credits = append(credits, credit)
		}
	}
	return credits, nil
}

func (m *memStore) AddCredit(_ context.Context, contentKind, contentID, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, credit := range m.credits {
		if credit.ContentKind == contentKind && credit.ContentID == contentID && credit.UserID == userID && credit.Role == role {
			return nil
		}
	}
	m.credits = append(m.credits, store.Credit{ContentKind: contentKind, ContentID: contentID, UserID: userID, Role: role})
	return nil
}

func (m *memStore) ReplaceCredits(ctx context.Context, contentKind, contentID, role string, userIDs []string) error {
	m.mu.Lock()
	kept := m.credits[:0]
	for _, credit := range m.credits {
		if credit.ContentKind == contentKind && credit.ContentID == contentID && credit.Role == role {
			continue
		}
		kept = append(kept, credit)
	}
	m.credits = kept
	m.mu.Unlock()
	for _, userID := range userIDs {
		if err := m.AddCredit(ctx, contentKind, contentID, userID, role); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) ListApprovals(_ context.Context, contentKind, contentID string) ([]store.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	approvals := make([]store.Approval, 0)
	for _, approval := range m.approvals {
		if approval.ContentKind == contentKind && approval.ContentID == contentID {
			approvals = append(approvals, approval)
		}
	}
	return approvals, nil
}

func (m *memStore) ListApprovalsByApprover(_ context.Context, approverID string) ([]store.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	approvals := make([]store.Approval, 0)
	for _, approval := range m.approvals {
		if approval.ApproverID == approverID {
			approvals = append(approvals, approval)
		}
	}
	return approvals, nil
}

func (m *memStore) GetApproval(_ context.Context, approvalID string) (store.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	approval, ok := m.approvals[approvalID]
	if !ok {
		return store.Approval{}, sql.ErrNoRows
	}
	return approval, nil
}

func (m *memStore) InsertApproval(_ context.Context, approval store.Approval) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsertApproval {
		return false, sql.ErrConnDone
	}
	for _, existing := range m.approvals {
		if existing.ContentKind == approval.ContentKind && existing.ContentID == approval.ContentID &&
			existing.ApproverID == approval.ApproverID && existing.Type == approval.Type {
			return false, nil
		}
	}
	m.approvals[approval.ID] = approval
	return true, nil
}

func (m *memStore) DeleteApproval(_ context.Context, contentKind, contentID, approverID, approvalType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeleteApproval {
		return sql.ErrConnDone
	}
	for id, approval := range m.approvals {
		if approval.ContentKind == contentKind && approval.ContentID == contentID &&
			approval.ApproverID == approverID && approval.Type == approvalType {
			delete(m.approvals, id)
		}
	}
	return nil
}

func (m *memStore) SetApprovalStatus(_ context.Context, approvalID, status, rejectionReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	approval, ok := m.approvals[approvalID]
	if !ok {
		return sql.ErrNoRows
	}
	approval.Status = status
	approval.RejectionReason = rejectionReason
	m.approvals[approvalID] = approval
	return nil
}

func (m *memStore) PendingApprovalCount(_ context.Context, contentKind, contentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingCountLocked(contentKind, contentID), nil
}

func (m *memStore) pendingCountLocked(contentKind, contentID string) int {
	count := 0
	for _, approval := range m.approvals {
		if approval.ContentKind == contentKind && approval.ContentID == contentID && approval.Status == store.ApprovalPending {
			count++
		}
	}
	return count
}

func (m *memStore) InsertTagRequest(_ context.Context, request store.TagRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagRequests[request.ID] = request
	return nil
}

func (m *memStore) GetTagRequest(_ context.Context, requestID string) (store.TagRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.tagRequests[requestID]
	if !ok {
		return store.TagRequest{}, sql.ErrNoRows
	}
	return request, nil
}

func (m *memStore) SetTagRequestStatus(_ context.Context, requestID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.tagRequests[requestID]
	if !ok {
		return sql.ErrNoRows
	}
	request.Status = status
	m.tagRequests[requestID] = request
	return nil
}

func (m *memStore) HasPendingTagRequest(_ context.Context, contentKind, contentID, requesterID, role string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, request := range m.tagRequests {
		if request.ContentKind == contentKind && request.ContentID == contentID &&
			request.RequesterID == requesterID && request.Role == role && request.Status == store.TagRequestPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListTagRequestsByContent(_ context.Context, contentKind, contentID string) ([]store.TagRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	requests := make([]store.TagRequest, 0)
	for _, request := range m.tagRequests {
		if request.ContentKind == contentKind && request.ContentID == contentID {
			requests = append(requests, request)
		}
	}
	return requests, nil
}

func (m *memStore) ListTagRequestsByRequester(_ context.Context, requesterID string) ([]store.TagRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	requests := make([]store.TagRequest, 0)
	for _, request := range m.tagRequests {
		if request.RequesterID == requesterID {
			requests = append(requests, request)
		}
	}
	return requests, nil
}

func (m *memStore) ListNotifications(_ context.Context, recipientID string, limit int) ([]store.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	notifications := make([]store.Notification, 0)
	for _, n := range m.notifications {
		if n.RecipientID == recipientID {
			notifications = append(notifications, n)
		}
		if len(notifications) == limit {
			break
		}
	}
	return notifications, nil
}

func (m *memStore) MarkNotificationRead(_ context.Context, notificationID, recipientID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.notifications {
		if n.ID == notificationID && n.RecipientID == recipientID {
			m.notifications[i].IsRead = true
			return true, nil
		}
	}
	return false, nil
}

// recordingNotifier captures emitted events; Exists answers from the
// captured log, matching the sink-backed dedup behavior.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) Exists(_ context.Context, recipientID string, subjectKind notify.SubjectKind, subjectID string, action notify.Action) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.RecipientID == recipientID && event.SubjectKind == subjectKind &&
			event.SubjectID == subjectID && event.Action == action {
			return true, nil
		}
	}
	return false, nil
}

func (r *recordingNotifier) byAction(action notify.Action) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]notify.Event, 0)
	for _, event := range r.events {
		if event.Action == action {
			matched = append(matched, event)
		}
	}
	return matched
}

func testConfig() config.Config {
	return config.Config{
		TokenSecret: "test-secret",
		AccessTTL:   time.Hour,
		RefreshTTL:  24 * time.Hour,
	}
}

func newTestService() (*Service, *memStore, *recordingNotifier) {
	st := newMemStore()
	emitter := &recordingNotifier{}
	return New(testConfig(), st, emitter), st, emitter
}

func seedUser(t *testing.T, st *memStore, id, name string) Session {
	t.Helper()
	err := st.CreateUser(context.Background(), store.User{
		ID:          id,
		DisplayName: name,
		Email:       id + "@example.com",
		Role:        "user",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return Session{UserID: id, UserName: name, Role: "user"}
}

func TestSignUpAndSignIn(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	session, err := service.SignUp(ctx, "ana@example.com", "long-enough", "Ana")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatalf("expected tokens, got %+v", session)
	}

	if _, err := service.SignUp(ctx, "ana@example.com", "long-enough", "Ana Again"); err == nil {
		t.Fatal("expected duplicate email to fail")
	}

	signedIn, err := service.SignIn(ctx, "ana@example.com", "long-enough")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if signedIn.UserName != "Ana" {
		t.Fatalf("expected Ana, got %q", signedIn.UserName)
	}

	if _, err := service.SignIn(ctx, "ana@example.com", "wrong-password"); err == nil {
		t.Fatal("expected bad password to fail")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	session, err := service.SignUp(ctx, "bo@example.com", "long-enough", "Bo")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	refreshed, err := service.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == session.RefreshToken {
		t.Fatal("expected refresh token rotation")
	}
	if _, err := service.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatal("expected old refresh token to be revoked")
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	session, err := service.SignUp(ctx, "cy@example.com", "long-enough", "Cy")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	parsed, err := service.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if err := service.Logout(ctx, parsed, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := service.SessionFromToken(ctx, session.Token); err == nil {
		t.Fatal("expected revoked token to be rejected")
	}
}
