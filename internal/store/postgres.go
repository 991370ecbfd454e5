package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at
		FROM users
		WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.role, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) InsertFilm(ctx context.Context, film Film) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO films (id, owner_id, title, description, video_key, thumb_key, editor_id, filmer_id, company_id)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''))
	`, film.ID, film.OwnerID, film.Title, film.Description, film.VideoKey, film.ThumbKey,
		film.EditorID, film.LegacyFilmerID, film.LegacyCompanyID)
	if err != nil {
		return fmt.Errorf("insert film: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFilm(ctx context.Context, filmID string) (Film, error) {
	var film Film
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(owner_id, ''), title, COALESCE(description, ''), COALESCE(video_key, ''), COALESCE(thumb_key, ''),
			COALESCE(editor_id, ''), COALESCE(filmer_id, ''), COALESCE(company_id, ''), created_at, updated_at
		FROM films
		WHERE id=$1
	`, filmID).Scan(&film.ID, &film.OwnerID, &film.Title, &film.Description, &film.VideoKey, &film.ThumbKey,
		&film.EditorID, &film.LegacyFilmerID, &film.LegacyCompanyID, &film.CreatedAt, &film.UpdatedAt)
	if err != nil {
		return Film{}, err
	}
	return film, nil
}

func (s *PostgresStore) UpdateFilm(ctx context.Context, film Film) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE films
		SET title=$2, description=$3, video_key=$4, thumb_key=$5,
			editor_id=NULLIF($6, ''), filmer_id=NULLIF($7, ''), company_id=NULLIF($8, ''), updated_at=NOW()
		WHERE id=$1
	`, film.ID, film.Title, film.Description, film.VideoKey, film.ThumbKey,
		film.EditorID, film.LegacyFilmerID, film.LegacyCompanyID)
	if err != nil {
		return fmt.Errorf("update film: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update film rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteFilm(ctx context.Context, filmID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM films WHERE id=$1`, filmID)
	if err != nil {
		return fmt.Errorf("delete film: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetFilmEditor(ctx context.Context, filmID, editorID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE films SET editor_id=NULLIF($2, ''), updated_at=NOW() WHERE id=$1
	`, filmID, editorID)
	if err != nil {
		return fmt.Errorf("set film editor: %w", err)
	}
	return nil
}

// ListPublishedFilms returns films with no pending approvals, newest first.
func (s *PostgresStore) ListPublishedFilms(ctx context.Context, limit int) ([]Film, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(owner_id, ''), title, COALESCE(description, ''), COALESCE(video_key, ''), COALESCE(thumb_key, ''),
			COALESCE(editor_id, ''), COALESCE(filmer_id, ''), COALESCE(company_id, ''), created_at, updated_at
		FROM films f
		WHERE NOT EXISTS (
			SELECT 1 FROM approvals a
			WHERE a.content_kind='film' AND a.content_id=f.id AND a.status='pending'
		)
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list published films: %w", err)
	}
	defer rows.Close()

	items := make([]Film, 0)
	for rows.Next() {
		var film Film
		if err := rows.Scan(&film.ID, &film.OwnerID, &film.Title, &film.Description, &film.VideoKey, &film.ThumbKey,
			&film.EditorID, &film.LegacyFilmerID, &film.LegacyCompanyID, &film.CreatedAt, &film.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan film: %w", err)
		}
		items = append(items, film)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate films: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListFilmsByOwner(ctx context.Context, ownerID string) ([]Film, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(owner_id, ''), title, COALESCE(description, ''), COALESCE(video_key, ''), COALESCE(thumb_key, ''),
			COALESCE(editor_id, ''), COALESCE(filmer_id, ''), COALESCE(company_id, ''), created_at, updated_at
		FROM films
		WHERE owner_id=$1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list films by owner: %w", err)
	}
	defer rows.Close()

	items := make([]Film, 0)
	for rows.Next() {
		var film Film
		if err := rows.Scan(&film.ID, &film.OwnerID, &film.Title, &film.Description, &film.VideoKey, &film.ThumbKey,
			&film.EditorID, &film.LegacyFilmerID, &film.LegacyCompanyID, &film.CreatedAt, &film.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan film: %w", err)
		}
		items = append(items, film)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate films: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertPhoto(ctx context.Context, photo Photo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO photos (id, owner_id, title, caption, image_key)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
	`, photo.ID, photo.OwnerID, photo.Title, photo.Caption, photo.ImageKey)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPhoto(ctx context.Context, photoID string) (Photo, error) {
	var photo Photo
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(owner_id, ''), title, COALESCE(caption, ''), COALESCE(image_key, ''), created_at, updated_at
		FROM photos
		WHERE id=$1
	`, photoID).Scan(&photo.ID, &photo.OwnerID, &photo.Title, &photo.Caption, &photo.ImageKey, &photo.CreatedAt, &photo.UpdatedAt)
	if err != nil {
		return Photo{}, err
	}
	return photo, nil
}

func (s *PostgresStore) UpdatePhoto(ctx context.Context, photo Photo) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE photos
		SET title=$2, caption=$3, image_key=$4, updated_at=NOW()
		WHERE id=$1
	`, photo.ID, photo.Title, photo.Caption, photo.ImageKey)
	if err != nil {
		return fmt.Errorf("update photo: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update photo rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeletePhoto(ctx context.Context, photoID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM photos WHERE id=$1`, photoID)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPublishedPhotos(ctx context.Context, limit int) ([]Photo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(owner_id, ''), title, COALESCE(caption, ''), COALESCE(image_key, ''), created_at, updated_at
		FROM photos p
		WHERE NOT EXISTS (
			SELECT 1 FROM approvals a
			WHERE a.content_kind='photo' AND a.content_id=p.id AND a.status='pending'
		)
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list published photos: %w", err)
	}
	defer rows.Close()

	items := make([]Photo, 0)
	for rows.Next() {
		var photo Photo
		if err := rows.Scan(&photo.ID, &photo.OwnerID, &photo.Title, &photo.Caption, &photo.ImageKey, &photo.CreatedAt, &photo.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		items = append(items, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListCredits(ctx context.Context, contentKind, contentID string) ([]Credit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_kind, content_id, user_id, role, created_at
		FROM credits
		WHERE content_kind=$1 AND content_id=$2
		ORDER BY role ASC, created_at ASC
	`, contentKind, contentID)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	defer rows.Close()

	items := make([]Credit, 0)
	for rows.Next() {
		var credit Credit
		if err := rows.Scan(&credit.ContentKind, &credit.ContentID, &credit.UserID, &credit.Role, &credit.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credit: %w", err)
		}
		items = append(items, credit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credits: %w", err)
	}
	return items, nil
}

// AddCredit inserts a tagging row; duplicates are a no-op.
func (s *PostgresStore) AddCredit(ctx context.Context, contentKind, contentID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credits (content_kind, content_id, user_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_kind, content_id, user_id, role) DO NOTHING
	`, contentKind, contentID, userID, role)
	if err != nil {
		return fmt.Errorf("add credit: %w", err)
	}
	return nil
}

// ReplaceCredits swaps the full tagged set for one role of one content item.
func (s *PostgresStore) ReplaceCredits(ctx context.Context, contentKind, contentID, role string, userIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace credits: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM credits WHERE content_kind=$1 AND content_id=$2 AND role=$3
	`, contentKind, contentID, role); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear credits: %w", err)
	}
	for _, userID := range userIDs {
		if userID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO credits (content_kind, content_id, user_id, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (content_kind, content_id, user_id, role) DO NOTHING
		`, contentKind, contentID, userID, role); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert credit: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace credits: %w", err)
	}
	return nil
}
