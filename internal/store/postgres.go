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

// ── Users ──

const userColumns = `id, email, display_name, password_hash, plan, role, phone_number,
	is_email_verified, COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at`

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Plan,
		&user.Role,
		&user.PhoneNumber,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email))
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, plan, role, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Plan, user.Role, user.IsEmailVerified, nullable(user.VerificationToken))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.DisplayName,
			&user.PasswordHash,
			&user.Plan,
			&user.Role,
			&user.PhoneNumber,
			&user.IsEmailVerified,
			&user.VerificationToken,
			&user.VerificationExpiresAt,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateUserDisplayName(ctx context.Context, userID, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET display_name=$2, updated_at=NOW() WHERE id=$1
	`, userID, displayName)
	if err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	return nil
}

// SetUserPhone stores a canonical phone number. Validation happens at the
// service boundary; this only persists what it is given.
func (s *PostgresStore) SetUserPhone(ctx context.Context, userID, phone string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET phone_number=$2, updated_at=NOW() WHERE id=$1
	`, userID, phone)
	if err != nil {
		return fmt.Errorf("set user phone: %w", err)
	}
	return nil
}

// AdminUpdateUser applies the recognized admin PATCH fields. updated_at is
// bumped even when only one field changes.
func (s *PostgresStore) AdminUpdateUser(ctx context.Context, userID string, update AdminUserUpdate) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET plan = COALESCE($2, plan),
			phone_number = COALESCE($3, phone_number),
			updated_at = NOW()
		WHERE id=$1
		RETURNING `+userColumns+`
	`, userID, update.Plan, update.PhoneNumber)
	return s.scanUser(row)
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// ── Workspaces ──

func (s *PostgresStore) CreateWorkspace(ctx context.Context, workspace Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, owner_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, workspace.ID, workspace.OwnerID, workspace.Name)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	var item Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, created_at FROM workspaces WHERE id=$1
	`, workspaceID).Scan(&item.ID, &item.OwnerID, &item.Name, &item.CreatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return item, nil
}

// GetWorkspaceOwned returns the workspace only when userID owns it.
func (s *PostgresStore) GetWorkspaceOwned(ctx context.Context, workspaceID, userID string) (Workspace, error) {
	var item Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, created_at FROM workspaces WHERE id=$1 AND owner_id=$2
	`, workspaceID, userID).Scan(&item.ID, &item.OwnerID, &item.Name, &item.CreatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return item, nil
}

func (s *PostgresStore) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM workspace_members WHERE workspace_id=$1 AND user_id=$2)
	`, workspaceID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT w.id, w.owner_id, w.name, w.created_at
		FROM workspaces w
		LEFT JOIN workspace_members wm ON wm.workspace_id = w.id
		WHERE w.owner_id=$1 OR wm.user_id=$1
		ORDER BY w.created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]Workspace, 0)
	for rows.Next() {
		var item Workspace
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Name, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]WorkspaceMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wm.workspace_id, wm.user_id, u.display_name, u.email, wm.added_at
		FROM workspace_members wm
		JOIN users u ON u.id = wm.user_id
		WHERE wm.workspace_id=$1
		ORDER BY wm.added_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]WorkspaceMember, 0)
	for rows.Next() {
		var item WorkspaceMember
		if err := rows.Scan(&item.WorkspaceID, &item.UserID, &item.DisplayName, &item.Email, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

// ── Canvases ──

const canvasColumns = `id, workspace_id, title, is_public, content, created_by, created_at, updated_at`

func (s *PostgresStore) GetCanvas(ctx context.Context, canvasID string) (Canvas, error) {
	var item Canvas
	err := s.db.QueryRowContext(ctx, `
		SELECT `+canvasColumns+` FROM canvases WHERE id=$1
	`, canvasID).Scan(&item.ID, &item.WorkspaceID, &item.Title, &item.IsPublic, &item.Content, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Canvas{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertCanvas(ctx context.Context, item Canvas) error {
	content := item.Content
	if len(content) == 0 {
		content = []byte(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canvases (id, workspace_id, title, is_public, content, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.WorkspaceID, item.Title, item.IsPublic, content, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert canvas: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCanvas(ctx context.Context, canvasID, title string, isPublic bool, content []byte) error {
	if len(content) == 0 {
		content = []byte(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE canvases SET title=$2, is_public=$3, content=$4, updated_at=NOW() WHERE id=$1
	`, canvasID, title, isPublic, content)
	if err != nil {
		return fmt.Errorf("update canvas: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCanvas(ctx context.Context, canvasID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM canvases WHERE id=$1`, canvasID)
	if err != nil {
		return fmt.Errorf("delete canvas: %w", err)
	}
	return nil
}

// ListCanvasesForUser returns every canvas in a workspace the user owns or
// belongs to, newest first.
func (s *PostgresStore) ListCanvasesForUser(ctx context.Context, userID string) ([]Canvas, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT c.id, c.workspace_id, c.title, c.is_public, c.content, c.created_by, c.created_at, c.updated_at
		FROM canvases c
		JOIN workspaces w ON w.id = c.workspace_id
		LEFT JOIN workspace_members wm ON wm.workspace_id = w.id
		WHERE w.owner_id=$1 OR wm.user_id=$1
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list canvases: %w", err)
	}
	defer rows.Close()
	return scanCanvases(rows)
}

func (s *PostgresStore) ListCanvasesByWorkspace(ctx context.Context, workspaceID string) ([]Canvas, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+canvasColumns+` FROM canvases WHERE workspace_id=$1 ORDER BY updated_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workspace canvases: %w", err)
	}
	defer rows.Close()
	return scanCanvases(rows)
}

func (s *PostgresStore) CountCanvasesCreatedBy(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canvases WHERE created_by=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count canvases: %w", err)
	}
	return count, nil
}

func scanCanvases(rows *sql.Rows) ([]Canvas, error) {
	items := make([]Canvas, 0)
	for rows.Next() {
		var item Canvas
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.Title, &item.IsPublic, &item.Content, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan canvas: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canvases: %w", err)
	}
	return items, nil
}

// ── Refresh sessions (Postgres fallback when Redis is unconfigured) ──

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
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return User{}, err
	}
	return s.GetUserByID(ctx, userID)
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

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
