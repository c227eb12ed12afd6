package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"canvasai/api/internal/access"
	"canvasai/api/internal/auth"
	"canvasai/api/internal/authpw"
	"canvasai/api/internal/canvasrepo"
	"canvasai/api/internal/config"
	"canvasai/api/internal/crawl"
	"canvasai/api/internal/email"
	"canvasai/api/internal/export"
	"canvasai/api/internal/files"
	"canvasai/api/internal/pdftext"
	"canvasai/api/internal/phone"
	"canvasai/api/internal/search"
	"canvasai/api/internal/store"
	"canvasai/api/internal/util"
	"canvasai/api/internal/websearch"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	Plan         string
	JTI          string
	ExpiresAt    time.Time
}

// CanvasInput carries a partial canvas update. Nil fields are left untouched.
type CanvasInput struct {
	Title    *string         `json:"title"`
	IsPublic *bool           `json:"isPublic"`
	Content  json.RawMessage `json:"content"`
}

// AdminUserInput carries a partial admin update. Nil fields are left untouched.
type AdminUserInput struct {
	Plan        *string `json:"plan"`
	PhoneNumber *string `json:"phoneNumber"`
}

var allowedPlans = map[string]struct{}{
	"free": {},
	"pro":  {},
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	ListUsers(context.Context) ([]store.User, error)
	UpdateUserDisplayName(context.Context, string, string) error
	SetUserPhone(context.Context, string, string) error
	AdminUpdateUser(context.Context, string, store.AdminUserUpdate) (store.User, error)
	CreateWorkspace(context.Context, store.Workspace) error
	GetWorkspace(context.Context, string) (store.Workspace, error)
	GetWorkspaceOwned(context.Context, string, string) (store.Workspace, error)
	IsWorkspaceMember(context.Context, string, string) (bool, error)
	ListWorkspacesForUser(context.Context, string) ([]store.Workspace, error)
	ListWorkspaceMembers(context.Context, string) ([]store.WorkspaceMember, error)
	GetCanvas(context.Context, string) (store.Canvas, error)
	InsertCanvas(context.Context, store.Canvas) error
	UpdateCanvas(context.Context, string, string, bool, []byte) error
	DeleteCanvas(context.Context, string) error
	ListCanvasesForUser(context.Context, string) ([]store.Canvas, error)
	CountCanvasesCreatedBy(context.Context, string) (int, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

// refreshStore holds refresh sessions. Redis when configured, Postgres otherwise.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type snapshotService interface {
	EnsureCanvasRepo(canvasID string, initial canvasrepo.Content, author string) error
	CommitSnapshot(canvasID string, content canvasrepo.Content, author, message string) (store.CommitInfo, error)
	History(canvasID string, limit int) ([]store.CommitInfo, error)
	GetContentByHash(canvasID, hash string) (canvasrepo.Content, error)
	RemoveCanvasRepo(canvasID string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  refreshStore
	checker   *access.Checker
	snapshots snapshotService
	search    *search.Service
	authPW    *authpw.Service
	email     *email.Service
	webSearch *websearch.Client
	crawler   *crawl.Service
	exporter  *export.Service
	uploads   *files.Store
}

func New(cfg config.Config, dataStore *store.PostgresStore, snapshots *canvasrepo.Service) *Service {
	return newService(cfg, dataStore, dataStore, snapshots)
}

func newService(cfg config.Config, ds dataStore, rs refreshStore, snapshots snapshotService) *Service {
	s := &Service{
		cfg:       cfg,
		store:     ds,
		sessions:  rs,
		checker:   access.NewChecker(ds),
		snapshots: snapshots,
	}
	s.exporter = export.NewService(&exportStore{service: s})
	return s
}

// SetSessionStore swaps refresh-token storage, used when Redis is configured.
func (s *Service) SetSessionStore(rs refreshStore) { s.sessions = rs }

func (s *Service) SetSearch(svc *search.Service)         { s.search = svc }
func (s *Service) SetAuthPassword(svc *authpw.Service)   { s.authPW = svc }
func (s *Service) SetEmail(svc *email.Service)           { s.email = svc }
func (s *Service) SetWebSearch(client *websearch.Client) { s.webSearch = client }
func (s *Service) SetCrawler(svc *crawl.Service)         { s.crawler = svc }
func (s *Service) SetUploads(fs *files.Store)            { s.uploads = fs }

// AuthPasswordService exposes the email/password service to HTTP handlers.
func (s *Service) AuthPasswordService() *authpw.Service { return s.authPW }

// SMTPConfigured reports whether outbound email is available.
func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ── Accounts and sessions ──

// SignUp creates the user plus their default workspace.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	if s.authPW == nil {
		return nil, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	resp, err := s.authPW.SignUp(ctx, req)
	if err != nil {
		if errors.Is(err, authpw.ErrEmailExists) {
			return nil, err
		}
		return nil, domainError(http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
	}

	workspace := store.Workspace{
		ID:      util.NewID("ws"),
		OwnerID: resp.UserID,
		Name:    strings.TrimSpace(req.DisplayName) + "'s Workspace",
	}
	if err := s.store.CreateWorkspace(ctx, workspace); err != nil {
		return nil, fmt.Errorf("create default workspace: %w", err)
	}

	if s.SMTPConfigured() {
		verifyURL := s.cfg.AppBaseURL + "/verify-email?token=" + resp.VerificationToken
		if err := s.email.SendVerificationEmail(req.Email, req.DisplayName, verifyURL); err != nil {
			log.Printf("signup: send verification email: %v", err)
		}
	}
	return resp, nil
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// The session record may carry only the user ID; re-read for current
	// plan and role.
	user, err = s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		Plan: user.Plan,
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
		Plan:         user.Plan,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
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
		Plan:      user.Plan,
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

// ── Profile ──

func (s *Service) Profile(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          user.ID,
		"email":       user.Email,
		"displayName": user.DisplayName,
		"plan":        user.Plan,
		"role":        user.Role,
		"phoneMasked": maskedPhone(user.PhoneNumber),
	}, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID, displayName string) (map[string]any, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "displayName is required", nil)
	}
	if err := s.store.UpdateUserDisplayName(ctx, userID, displayName); err != nil {
		return nil, err
	}
	return s.Profile(ctx, userID)
}

// SetPhone normalizes the input, rejects anything that is not a canonical
// mobile number, and stores the canonical form. The raw digits are never
// echoed back.
func (s *Service) SetPhone(ctx context.Context, userID, phoneNumber string) (map[string]any, error) {
	normalized := phone.Normalize(phoneNumber)
	if !phone.IsValid(normalized) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "phoneNumber is not a valid mobile number", nil)
	}
	if err := s.store.SetUserPhone(ctx, userID, normalized); err != nil {
		return nil, err
	}
	return map[string]any{
		"ok":          true,
		"phoneMasked": phone.Masked,
	}, nil
}

// ── Dashboard ──

func (s *Service) Dashboard(ctx context.Context, session Session) (map[string]any, error) {
	workspaces, err := s.store.ListWorkspacesForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	canvases, err := s.store.ListCanvasesForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"workspaceCount": len(workspaces),
		"canvasCount":    len(canvases),
		"plan":           session.Plan,
	}
	if session.Plan == "free" {
		created, err := s.store.CountCanvasesCreatedBy(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		remaining := s.cfg.FreeCanvasLimit - created
		if remaining < 0 {
			remaining = 0
		}
		payload["canvasLimit"] = s.cfg.FreeCanvasLimit
		payload["canvasesRemaining"] = remaining
	}
	return payload, nil
}

// ── Admin ──

func (s *Service) AdminListUsers(ctx context.Context) (map[string]any, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, map[string]any{
			"id":          user.ID,
			"email":       user.Email,
			"displayName": user.DisplayName,
			"plan":        user.Plan,
			"role":        user.Role,
			"phoneMasked": maskedPhone(user.PhoneNumber),
			"createdAt":   user.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{"users": items}, nil
}

// AdminUpdateUser applies a partial update to plan and phone. An empty body
// is rejected rather than silently accepted, and updated_at is always bumped
// when a field is written.
func (s *Service) AdminUpdateUser(ctx context.Context, userID string, input AdminUserInput) (map[string]any, error) {
	if input.Plan == nil && input.PhoneNumber == nil {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "no fields to update", nil)
	}

	update := store.AdminUserUpdate{}
	if input.Plan != nil {
		plan := strings.TrimSpace(*input.Plan)
		if _, ok := allowedPlans[plan]; !ok {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "plan must be 'free' or 'pro'", nil)
		}
		update.Plan = &plan
	}
	if input.PhoneNumber != nil {
		normalized := phone.Normalize(*input.PhoneNumber)
		if !phone.IsValid(normalized) {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "phoneNumber is not a valid mobile number", nil)
		}
		update.PhoneNumber = &normalized
	}

	user, err := s.store.AdminUpdateUser(ctx, userID, update)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          user.ID,
		"plan":        user.Plan,
		"phoneMasked": maskedPhone(user.PhoneNumber),
		"updatedAt":   user.UpdatedAt.Format(time.RFC3339),
	}, nil
}

// ── Workspaces ──

func (s *Service) ListWorkspaces(ctx context.Context, userID string) (map[string]any, error) {
	workspaces, err := s.store.ListWorkspacesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(workspaces))
	for _, workspace := range workspaces {
		items = append(items, map[string]any{
			"id":      workspace.ID,
			"name":    workspace.Name,
			"ownerId": workspace.OwnerID,
			"isOwner": workspace.OwnerID == userID,
		})
	}
	return map[string]any{"workspaces": items}, nil
}

func (s *Service) WorkspaceMembers(ctx context.Context, userID, workspaceID string) (map[string]any, error) {
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	if err := s.requireWorkspace(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	members, err := s.store.ListWorkspaceMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, member := range members {
		items = append(items, map[string]any{
			"userId":      member.UserID,
			"displayName": member.DisplayName,
			"email":       member.Email,
			"addedAt":     member.AddedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{"workspaceId": workspaceID, "members": items}, nil
}

// requireWorkspace allows the workspace owner and listed members.
func (s *Service) requireWorkspace(ctx context.Context, workspaceID, userID string) error {
	if _, err := s.store.GetWorkspaceOwned(ctx, workspaceID, userID); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	member, err := s.store.IsWorkspaceMember(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if !member {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

// ── Canvases ──

func (s *Service) ListCanvases(ctx context.Context, userID string) (map[string]any, error) {
	canvases, err := s.store.ListCanvasesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(canvases))
	for _, canvas := range canvases {
		items = append(items, canvasSummary(canvas))
	}
	return map[string]any{"canvases": items}, nil
}

func (s *Service) CreateCanvas(ctx context.Context, session Session, workspaceID, title string) (map[string]any, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		workspaces, err := s.store.ListWorkspacesForUser(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		for _, workspace := range workspaces {
			if workspace.OwnerID == session.UserID {
				workspaceID = workspace.ID
				break
			}
		}
		if workspaceID == "" {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "workspaceId is required", nil)
		}
	} else {
		if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
			return nil, err
		}
		if err := s.requireWorkspace(ctx, workspaceID, session.UserID); err != nil {
			return nil, err
		}
	}

	if session.Plan == "free" {
		created, err := s.store.CountCanvasesCreatedBy(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		if created >= s.cfg.FreeCanvasLimit {
			return nil, domainError(http.StatusForbidden, "PLAN_LIMIT", "Free plan canvas limit reached", map[string]any{
				"limit": s.cfg.FreeCanvasLimit,
			})
		}
	}

	canvasTitle := strings.TrimSpace(title)
	if canvasTitle == "" {
		canvasTitle = "Untitled Canvas"
	}
	canvas := store.Canvas{
		ID:          util.NewID("cv"),
		WorkspaceID: workspaceID,
		Title:       canvasTitle,
		Content:     json.RawMessage(`{"blocks":[]}`),
		CreatedBy:   session.UserID,
	}
	if err := s.store.InsertCanvas(ctx, canvas); err != nil {
		return nil, err
	}
	if err := s.snapshots.EnsureCanvasRepo(canvas.ID, canvasrepo.Content{
		Title: canvas.Title,
		Doc:   canvas.Content,
	}, session.UserName); err != nil {
		return nil, err
	}
	s.indexCanvas(canvas)

	created, err := s.store.GetCanvas(ctx, canvas.ID)
	if err != nil {
		return nil, err
	}
	return canvasPayload(created), nil
}

func (s *Service) GetCanvas(ctx context.Context, session Session, canvasID string) (map[string]any, error) {
	decision, err := s.checker.RequireAccess(ctx, canvasID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, decisionError(decision)
	}
	return canvasPayload(decision.Canvas), nil
}

func (s *Service) UpdateCanvas(ctx context.Context, session Session, canvasID string, input CanvasInput) (map[string]any, error) {
	decision, err := s.checker.RequireAccess(ctx, canvasID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, decisionError(decision)
	}

	canvas := decision.Canvas
	title := canvas.Title
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title cannot be empty", nil)
		}
	}
	isPublic := canvas.IsPublic
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}
	content := []byte(canvas.Content)
	if len(input.Content) > 0 {
		if !json.Valid(input.Content) {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "content must be valid JSON", nil)
		}
		content = input.Content
	}

	if err := s.store.UpdateCanvas(ctx, canvasID, title, isPublic, content); err != nil {
		return nil, err
	}
	if _, err := s.snapshots.CommitSnapshot(canvasID, canvasrepo.Content{
		Title:    title,
		IsPublic: isPublic,
		Doc:      content,
	}, session.UserName, "Update canvas"); err != nil {
		return nil, err
	}

	updated, err := s.store.GetCanvas(ctx, canvasID)
	if err != nil {
		return nil, err
	}
	s.indexCanvas(updated)
	return canvasPayload(updated), nil
}

func (s *Service) DeleteCanvas(ctx context.Context, session Session, canvasID string) error {
	decision, err := s.checker.RequireAccess(ctx, canvasID, session.UserID)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return decisionError(decision)
	}
	if err := s.store.DeleteCanvas(ctx, canvasID); err != nil {
		return err
	}
	if err := s.snapshots.RemoveCanvasRepo(canvasID); err != nil {
		log.Printf("delete canvas %s: remove snapshots: %v", canvasID, err)
	}
	if s.search != nil {
		s.search.DeleteCanvas(canvasID)
	}
	return nil
}

func (s *Service) CanvasHistory(ctx context.Context, session Session, canvasID string) (map[string]any, error) {
	decision, err := s.checker.RequireAccess(ctx, canvasID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, decisionError(decision)
	}
	commits, err := s.snapshots.History(canvasID, 50)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		items = append(items, map[string]any{
			"hash":      commit.Hash,
			"message":   strings.TrimSpace(commit.Message),
			"author":    commit.Author,
			"createdAt": commit.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{"canvasId": canvasID, "commits": items}, nil
}

// RestoreCanvas replaces current content with a prior snapshot and records
// the restore itself as a new snapshot.
func (s *Service) RestoreCanvas(ctx context.Context, session Session, canvasID, hash string) (map[string]any, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "hash is required", nil)
	}
	decision, err := s.checker.RequireAccess(ctx, canvasID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, decisionError(decision)
	}

	content, err := s.snapshots.GetContentByHash(canvasID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Snapshot not found", nil)
	}

	doc := content.Doc
	if len(doc) == 0 {
		doc = json.RawMessage(`{"blocks":[]}`)
	}
	if err := s.store.UpdateCanvas(ctx, canvasID, content.Title, content.IsPublic, doc); err != nil {
		return nil, err
	}
	if _, err := s.snapshots.CommitSnapshot(canvasID, canvasrepo.Content{
		Title:    content.Title,
		IsPublic: content.IsPublic,
		Doc:      doc,
	}, session.UserName, "Restore snapshot "+hash); err != nil {
		return nil, err
	}

	updated, err := s.store.GetCanvas(ctx, canvasID)
	if err != nil {
		return nil, err
	}
	s.indexCanvas(updated)
	return canvasPayload(updated), nil
}

func (s *Service) ExportCanvas(ctx context.Context, session Session, canvasID, version string) (*export.Result, error) {
	decision, err := s.checker.RequireAccess(ctx, canvasID, session.UserID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, decisionError(decision)
	}
	return s.exporter.Export(ctx, export.Request{CanvasID: canvasID, Version: version})
}

// ── Canvas search ──

func (s *Service) SearchCanvases(ctx context.Context, userID, query string, limit, offset int) (search.Response, error) {
	workspaces, err := s.store.ListWorkspacesForUser(ctx, userID)
	if err != nil {
		return search.Response{}, err
	}
	workspaceIDs := make([]string, 0, len(workspaces))
	for _, workspace := range workspaces {
		workspaceIDs = append(workspaceIDs, workspace.ID)
	}
	if len(workspaceIDs) == 0 {
		return search.Response{Results: []search.Result{}, Query: query}, nil
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query}, nil
	}
	return s.search.Search(search.Query{
		Text:         query,
		WorkspaceIDs: workspaceIDs,
		Limit:        limit,
		Offset:       offset,
	}), nil
}

// ── Tools ──

func (s *Service) WebSearch(ctx context.Context, query string, count int) (websearch.Response, error) {
	if s.webSearch == nil || !s.webSearch.Configured() {
		return websearch.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Web search provider not configured", nil)
	}
	resp, err := s.webSearch.Search(ctx, query, count)
	if err != nil {
		if errors.Is(err, websearch.ErrEmptyQuery) {
			return websearch.Response{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "q must be a non-empty string", nil)
		}
		return websearch.Response{}, domainError(http.StatusInternalServerError, "UPSTREAM_ERROR", "Search provider failed", map[string]any{
			"message": err.Error(),
		})
	}
	return resp, nil
}

func (s *Service) CrawlPage(ctx context.Context, target string) (crawl.Result, error) {
	if err := crawl.ValidateURL(target); err != nil {
		return crawl.Result{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}
	if s.crawler == nil {
		return crawl.Result{Success: false, Error: "No content found"}, nil
	}
	return s.crawler.Crawl(ctx, target), nil
}

// ExtractPDF pulls the text out of an uploaded PDF and archives the original
// when object storage is configured.
func (s *Service) ExtractPDF(ctx context.Context, userID string, data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "request body is empty", nil)
	}
	text, err := pdftext.Extract(data)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "PDF_PARSE_FAILED", "Could not parse PDF", map[string]any{
			"message": err.Error(),
		})
	}
	key := fmt.Sprintf("uploads/%s/%s.pdf", userID, util.NewID("pdf"))
	if err := s.uploads.StorePDF(ctx, key, data); err != nil {
		log.Printf("pdf extract: archive original: %v", err)
	}
	return map[string]any{"text": text}, nil
}

// ── Helpers ──

func (s *Service) indexCanvas(canvas store.Canvas) {
	if s.search == nil {
		return
	}
	s.search.IndexCanvas(search.CanvasRecord{
		ID:          canvas.ID,
		Title:       canvas.Title,
		WorkspaceID: canvas.WorkspaceID,
		IsPublic:    canvas.IsPublic,
	})
}

func decisionError(decision access.Decision) error {
	switch decision.Kind {
	case access.ErrorUnauthorized:
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	case access.ErrorNotFound:
		return domainError(http.StatusNotFound, "NOT_FOUND", "Canvas not found", nil)
	case access.ErrorForbidden:
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	default:
		return domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	}
}

func maskedPhone(stored *string) any {
	if stored == nil {
		return nil
	}
	masked, ok := phone.Mask(*stored)
	if !ok {
		return nil
	}
	return masked
}

func canvasSummary(canvas store.Canvas) map[string]any {
	return map[string]any{
		"id":          canvas.ID,
		"workspaceId": canvas.WorkspaceID,
		"title":       canvas.Title,
		"isPublic":    canvas.IsPublic,
		"updatedAt":   canvas.UpdatedAt.Format(time.RFC3339),
	}
}

func canvasPayload(canvas store.Canvas) map[string]any {
	var content any
	if len(canvas.Content) > 0 {
		var parsed any
		if err := json.Unmarshal(canvas.Content, &parsed); err == nil {
			content = parsed
		}
	}
	return map[string]any{
		"id":          canvas.ID,
		"workspaceId": canvas.WorkspaceID,
		"title":       canvas.Title,
		"isPublic":    canvas.IsPublic,
		"content":     content,
		"createdBy":   canvas.CreatedBy,
		"createdAt":   canvas.CreatedAt.Format(time.RFC3339),
		"updatedAt":   canvas.UpdatedAt.Format(time.RFC3339),
	}
}

// exportStore adapts the service to the exporter's data needs.
type exportStore struct {
	service *Service
}

func (e *exportStore) GetCanvasForExport(ctx context.Context, canvasID, version string) (export.Canvas, error) {
	svc := e.service
	canvas, err := svc.store.GetCanvas(ctx, canvasID)
	if err != nil {
		return export.Canvas{}, err
	}
	workspace, err := svc.store.GetWorkspace(ctx, canvas.WorkspaceID)
	if err != nil {
		return export.Canvas{}, err
	}

	author := canvas.CreatedBy
	if user, err := svc.store.GetUserByID(ctx, canvas.CreatedBy); err == nil {
		author = user.DisplayName
	}

	title := canvas.Title
	doc := canvas.Content
	if version != "" && version != "latest" {
		snapshot, err := svc.snapshots.GetContentByHash(canvasID, version)
		if err != nil {
			return export.Canvas{}, fmt.Errorf("%w: %s", export.ErrContentUnavailable, version)
		}
		title = snapshot.Title
		doc = snapshot.Doc
	}

	var content any
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &content); err != nil {
			return export.Canvas{}, fmt.Errorf("parse canvas content: %w", err)
		}
	}

	return export.Canvas{
		ID:            canvas.ID,
		Title:         title,
		WorkspaceName: workspace.Name,
		Author:        author,
		UpdatedAt:     canvas.UpdatedAt,
		Content:       content,
	}, nil
}
