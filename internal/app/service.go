package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"streetwatch/api/internal/auth"
	"streetwatch/api/internal/authpw"
	"streetwatch/api/internal/config"
	"streetwatch/api/internal/media"
	"streetwatch/api/internal/notify"
	"streetwatch/api/internal/rbac"
	"streetwatch/api/internal/store"
	"streetwatch/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the persistence surface the service depends on. PostgresStore
// implements it; tests substitute a fake.
type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	InsertFilm(ctx context.Context, film store.Film) error
	GetFilm(ctx context.Context, filmID string) (store.Film, error)
	UpdateFilm(ctx context.Context, film store.Film) error
	DeleteFilm(ctx context.Context, filmID string) error
	SetFilmEditor(ctx context.Context, filmID, editorID string) error
	ListPublishedFilms(ctx context.Context, limit int) ([]store.Film, error)
	ListFilmsByOwner(ctx context.Context, ownerID string) ([]store.Film, error)

	InsertPhoto(ctx context.Context, photo store.Photo) error
	GetPhoto(ctx context.Context, photoID string) (store.Photo, error)
	UpdatePhoto(ctx context.Context, photo store.Photo) error
	DeletePhoto(ctx context.Context, photoID string) error
	ListPublishedPhotos(ctx context.Context, limit int) ([]store.Photo, error)

	ListCredits(ctx context.Context, contentKind, contentID string) ([]store.Credit, error)
	AddCredit(ctx context.Context, contentKind, contentID, userID, role string) error
	ReplaceCredits(ctx context.Context, contentKind, contentID, role string, userIDs []string) error

	ListApprovals(ctx context.Context, contentKind, contentID string) ([]store.Approval, error)
	ListApprovalsByApprover(ctx context.Context, approverID string) ([]store.Approval, error)
	GetApproval(ctx context.Context, approvalID string) (store.Approval, error)
	InsertApproval(ctx context.Context, approval store.Approval) (bool, error)
	DeleteApproval(ctx context.Context, contentKind, contentID, approverID, approvalType string) error
	SetApprovalStatus(ctx context.Context, approvalID, status, rejectionReason string) error
	PendingApprovalCount(ctx context.Context, contentKind, contentID string) (int, error)

	InsertTagRequest(ctx context.Context, request store.TagRequest) error
	GetTagRequest(ctx context.Context, requestID string) (store.TagRequest, error)
	SetTagRequestStatus(ctx context.Context, requestID, status string) error
	HasPendingTagRequest(ctx context.Context, contentKind, contentID, requesterID, role string) (bool, error)
	ListTagRequestsByContent(ctx context.Context, contentKind, contentID string) ([]store.TagRequest, error)
	ListTagRequestsByRequester(ctx context.Context, requesterID string) ([]store.TagRequest, error)

	ListNotifications(ctx context.Context, recipientID string, limit int) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID, recipientID string) (bool, error)
}

// sessionStore holds refresh sessions. Normally the Redis store; the
// database store doubles as a fallback when Redis is not configured.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// notifier is the notification fan-out surface.
type notifier interface {
	Notify(ctx context.Context, event notify.Event)
	Exists(ctx context.Context, recipientID string, subjectKind notify.SubjectKind, subjectID string, action notify.Action) (bool, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts *authpw.Service
	emitter  notifier
	media    *media.Storage
}

func New(cfg config.Config, dataStore dataStore, emitter notifier) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		accounts: authpw.NewService(dataStore),
		emitter:  emitter,
	}
}

// WithSessionStore swaps refresh-session persistence onto a dedicated
// store (Redis).
func (s *Service) WithSessionStore(sessions sessionStore) *Service {
	s.sessions = sessions
	return s
}

// WithMedia enables presigned upload/download URLs.
func (s *Service) WithMedia(storage *media.Storage) *Service {
	s.media = storage
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.accounts.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		if errors.Is(err, authpw.ErrEmailTaken) {
			return Session{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		}
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The session store may carry only the user ID; re-read the full
	// record so the new token has the current role and name.
	if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
		user = full
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// userEmail resolves a recipient's address for the optional email channel.
func (s *Service) userEmail(ctx context.Context, userID string) string {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Email
}

func (s *Service) Notifications(ctx context.Context, session Session, limit int) (map[string]any, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.store.ListNotifications(ctx, session.UserID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(rows))
	unread := 0
	for _, n := range rows {
		if !n.IsRead {
			unread++
		}
		items = append(items, map[string]any{
			"id":          n.ID,
			"subjectKind": n.SubjectKind,
			"subjectId":   n.SubjectID,
			"action":      n.Action,
			"title":       n.Title,
			"message":     n.Message,
			"path":        n.Path,
			"isRead":      n.IsRead,
			"createdAt":   n.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return map[string]any{"notifications": items, "unreadCount": unread}, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	marked, err := s.store.MarkNotificationRead(ctx, notificationID, session.UserID)
	if err != nil {
		return err
	}
	if !marked {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
	}
	return nil
}

// MediaUploadURL hands the client a presigned PUT target for a new object.
func (s *Service) MediaUploadURL(ctx context.Context, session Session, mediaType, fileName string) (map[string]any, error) {
	if s.media == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage not configured", nil)
	}
	if !s.Can(session.Role, rbac.ActionUpload) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Unauthorized", nil)
	}
	if fileName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "fileName is required", nil)
	}
	key := media.NewObjectKey(session.UserID, fileName)
	url, err := s.media.UploadURL(ctx, mediaType, key)
	if err != nil {
		return nil, err
	}
	return map[string]any{"objectKey": key, "uploadUrl": url}, nil
}

func (s *Service) mediaURL(ctx context.Context, mediaType, objectKey string) string {
	if s.media == nil || objectKey == "" {
		return ""
	}
	url, err := s.media.DownloadURL(ctx, mediaType, objectKey)
	if err != nil {
		return ""
	}
	return url
}
