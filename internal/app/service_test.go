package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"canvasai/api/internal/canvasrepo"
	"canvasai/api/internal/config"
	"canvasai/api/internal/store"
)

type fakeStore struct {
	mu         sync.Mutex
	users      map[string]store.User
	workspaces map[string]store.Workspace
	members    map[string][]string
	canvases   map[string]store.Canvas
	refresh    map[string]refreshRecord
	revoked    map[string]bool
	resets     map[string]resetRecord
}

type refreshRecord struct {
	userID    string
	expiresAt time.Time
}

type resetRecord struct {
	userID string
	used   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      map[string]store.User{},
		workspaces: map[string]store.Workspace{},
		members:    map[string][]string{},
		canvases:   map[string]store.Canvas{},
		refresh:    map[string]refreshRecord{},
		revoked:    map[string]bool{},
		resets:     map[string]resetRecord{},
	}
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.VerificationToken = token
	f.users[userID] = user
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.users {
		if user.VerificationToken == token && token != "" {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			f.users[id] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = resetRecord{userID: userID}
	return nil
}

func (f *fakeStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.resets[token]
	if !ok || record.used {
		return "", sql.ErrNoRows
	}
	return record.userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.resets[token]
	if !ok {
		return sql.ErrNoRows
	}
	record.used = true
	f.resets[token] = record
	return nil
}

func (f *fakeStore) ListUsers(context.Context) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.User, 0, len(f.users))
	for _, user := range f.users {
		out = append(out, user)
	}
	return out, nil
}

func (f *fakeStore) UpdateUserDisplayName(_ context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.DisplayName = name
	user.UpdatedAt = time.Now()
	f.users[id] = user
	return nil
}

func (f *fakeStore) SetUserPhone(_ context.Context, id, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.PhoneNumber = &phone
	user.UpdatedAt = time.Now()
	f.users[id] = user
	return nil
}

func (f *fakeStore) AdminUpdateUser(_ context.Context, id string, update store.AdminUserUpdate) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	if update.Plan != nil {
		user.Plan = *update.Plan
	}
	if update.PhoneNumber != nil {
		user.PhoneNumber = update.PhoneNumber
	}
	user.UpdatedAt = time.Now()
	f.users[id] = user
	return user, nil
}

func (f *fakeStore) CreateWorkspace(_ context.Context, workspace store.Workspace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workspaces[workspace.ID] = workspace
	return nil
}

func (f *fakeStore) GetWorkspace(_ context.Context, id string) (store.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	workspace, ok := f.workspaces[id]
	if !ok {
		return store.Workspace{}, sql.ErrNoRows
	}
	return workspace, nil
}

func (f *fakeStore) GetWorkspaceOwned(_ context.Context, workspaceID, userID string) (store.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	workspace, ok := f.workspaces[workspaceID]
	if !ok || workspace.OwnerID != userID {
		return store.Workspace{}, sql.ErrNoRows
	}
	return workspace, nil
}

func (f *fakeStore) IsWorkspaceMember(_ context.Context, workspaceID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range f.members[workspaceID] {
		if member == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListWorkspacesForUser(_ context.Context, userID string) ([]store.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Workspace
	for _, workspace := range f.workspaces {
		if workspace.OwnerID == userID {
			out = append(out, workspace)
			continue
		}
		for _, member := range f.members[workspace.ID] {
			if member == userID {
				out = append(out, workspace)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListWorkspaceMembers(_ context.Context, workspaceID string) ([]store.WorkspaceMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.WorkspaceMember
	for _, userID := range f.members[workspaceID] {
		user := f.users[userID]
		out = append(out, store.WorkspaceMember{
			WorkspaceID: workspaceID,
			UserID:      userID,
			DisplayName: user.DisplayName,
			Email:       user.Email,
		})
	}
	return out, nil
}

func (f *fakeStore) GetCanvas(_ context.Context, id string) (store.Canvas, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	canvas, ok := f.canvases[id]
	if !ok {
		return store.Canvas{}, sql.ErrNoRows
	}
	return canvas, nil
}

func (f *fakeStore) InsertCanvas(_ context.Context, canvas store.Canvas) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	canvas.CreatedAt = time.Now()
	canvas.UpdatedAt = canvas.CreatedAt
	f.canvases[canvas.ID] = canvas
	return nil
}

func (f *fakeStore) UpdateCanvas(_ context.Context, id, title string, isPublic bool, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	canvas, ok := f.canvases[id]
	if !ok {
		return sql.ErrNoRows
	}
	canvas.Title = title
	canvas.IsPublic = isPublic
	canvas.Content = content
	canvas.UpdatedAt = time.Now()
	f.canvases[id] = canvas
	return nil
}

func (f *fakeStore) DeleteCanvas(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.canvases, id)
	return nil
}

func (f *fakeStore) ListCanvasesForUser(ctx context.Context, userID string) ([]store.Canvas, error) {
	workspaces, _ := f.ListWorkspacesForUser(ctx, userID)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Canvas
	for _, canvas := range f.canvases {
		for _, workspace := range workspaces {
			if canvas.WorkspaceID == workspace.ID {
				out = append(out, canvas)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CountCanvasesCreatedBy(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, canvas := range f.canvases {
		if canvas.CreatedBy == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = refreshRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.refresh[tokenHash]
	if !ok || time.Now().After(record.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	return store.User{ID: record.userID}, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeSnapshots struct {
	mu       sync.Mutex
	history  map[string][]store.CommitInfo
	contents map[string]map[string]canvasrepo.Content
	seq      int
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{
		history:  map[string][]store.CommitInfo{},
		contents: map[string]map[string]canvasrepo.Content{},
	}
}

func (f *fakeSnapshots) EnsureCanvasRepo(canvasID string, initial canvasrepo.Content, author string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.history[canvasID]; ok {
		return nil
	}
	f.record(canvasID, initial, author, "Create canvas")
	return nil
}

func (f *fakeSnapshots) CommitSnapshot(canvasID string, content canvasrepo.Content, author, message string) (store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(canvasID, content, author, message), nil
}

func (f *fakeSnapshots) record(canvasID string, content canvasrepo.Content, author, message string) store.CommitInfo {
	f.seq++
	info := store.CommitInfo{
		Hash:      fmt.Sprintf("hash%03d", f.seq),
		Message:   message,
		Author:    author,
		CreatedAt: time.Now(),
	}
	f.history[canvasID] = append([]store.CommitInfo{info}, f.history[canvasID]...)
	if f.contents[canvasID] == nil {
		f.contents[canvasID] = map[string]canvasrepo.Content{}
	}
	f.contents[canvasID][info.Hash] = content
	return info
}

func (f *fakeSnapshots) History(canvasID string, limit int) ([]store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	commits := f.history[canvasID]
	if limit > 0 && len(commits) > limit {
		commits = commits[:limit]
	}
	return commits, nil
}

func (f *fakeSnapshots) GetContentByHash(canvasID, hash string) (canvasrepo.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.contents[canvasID][hash]
	if !ok {
		return canvasrepo.Content{}, fmt.Errorf("unknown hash %s", hash)
	}
	return content, nil
}

func (f *fakeSnapshots) RemoveCanvasRepo(canvasID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.history, canvasID)
	delete(f.contents, canvasID)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:       "test-secret",
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      24 * time.Hour,
		FreeCanvasLimit: 3,
		CORSOrigin:      "*",
	}
}

func newTestService() (*Service, *fakeStore, *fakeSnapshots) {
	fs := newFakeStore()
	snaps := newFakeSnapshots()
	svc := newService(testConfig(), fs, fs, snaps)
	return svc, fs, snaps
}

func seedUser(fs *fakeStore, id, plan, role string) store.User {
	user := store.User{
		ID:          id,
		Email:       id + "@example.com",
		DisplayName: "User " + id,
		Plan:        plan,
		Role:        role,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	fs.users[id] = user
	return user
}

func domainStatus(t *testing.T, err error) (int, string) {
	t.Helper()
	var domainErr *DomainError
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.As(err, &domainErr) {
		t.Fatalf("not a domain error: %v", err)
	}
	return domainErr.Status, domainErr.Code
}

func TestSetPhoneNormalizesAndMasks(t *testing.T) {
	svc, fs, _ := newTestService()
	seedUser(fs, "u1", "free", "user")

	payload, err := svc.SetPhone(context.Background(), "u1", "1234-5678")
	if err != nil {
		t.Fatalf("set phone: %v", err)
	}
	if payload["ok"] != true {
		t.Fatalf("expected ok, got %v", payload)
	}
	if payload["phoneMasked"] != "010********" {
		t.Fatalf("unexpected mask: %v", payload["phoneMasked"])
	}
	if stored := fs.users["u1"].PhoneNumber; stored == nil || *stored != "01012345678" {
		t.Fatalf("stored phone = %v, want 01012345678", stored)
	}
}

func TestSetPhoneRejectsInvalid(t *testing.T) {
	svc, fs, _ := newTestService()
	seedUser(fs, "u1", "free", "user")

	_, err := svc.SetPhone(context.Background(), "u1", "123")
	status, code := domainStatus(t, err)
	if status != http.StatusBadRequest || code != "VALIDATION_ERROR" {
		t.Fatalf("got %d %s", status, code)
	}
	if fs.users["u1"].PhoneNumber != nil {
		t.Fatal("phone should not be stored")
	}
}

func TestAdminUpdateUserEmptyBody(t *testing.T) {
	svc, fs, _ := newTestService()
	seedUser(fs, "u1", "free", "user")

	_, err := svc.AdminUpdateUser(context.Background(), "u1", AdminUserInput{})
	status, code := domainStatus(t, err)
	if status != http.StatusBadRequest || code != "VALIDATION_ERROR" {
		t.Fatalf("got %d %s", status, code)
	}
}

func TestAdminUpdateUserRejectsUnknownPlan(t *testing.T) {
	svc, fs, _ := newTestService()
	seedUser(fs, "u1", "free", "user")

	plan := "enterprise"
	_, err := svc.AdminUpdateUser(context.Background(), "u1", AdminUserInput{Plan: &plan})
	status, _ := domainStatus(t, err)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if fs.users["u1"].Plan != "free" {
		t.Fatal("plan should not change")
	}
}

func TestAdminUpdateUserAppliesPlanAndPhone(t *testing.T) {
	svc, fs, _ := newTestService()
	seedUser(fs, "u1", "free", "user")

	plan := "pro"
	phoneNumber := "010-1234-5678"
	payload, err := svc.AdminUpdateUser(context.Background(), "u1", AdminUserInput{Plan: &plan, PhoneNumber: &phoneNumber})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if payload["plan"] != "pro" {
		t.Fatalf("plan = %v", payload["plan"])
	}
	if payload["phoneMasked"] != "010********" {
		t.Fatalf("phoneMasked = %v", payload["phoneMasked"])
	}
	if stored := fs.users["u1"].PhoneNumber; stored == nil || *stored != "01012345678" {
		t.Fatalf("stored phone = %v", stored)
	}
}

func TestCreateCanvasFreePlanLimit(t *testing.T) {
	svc, fs, _ := newTestService()
	user := seedUser(fs, "u1", "free", "user")
	fs.workspaces["ws1"] = store.Workspace{ID: "ws1", OwnerID: "u1", Name: "W"}
	session := Session{UserID: user.ID, UserName: user.DisplayName, Plan: user.Plan}

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateCanvas(context.Background(), session, "ws1", fmt.Sprintf("Canvas %d", i)); err != nil {
			t.Fatalf("create canvas %d: %v", i, err)
		}
	}

	_, err := svc.CreateCanvas(context.Background(), session, "ws1", "One too many")
	status, code := domainStatus(t, err)
	if status != http.StatusForbidden || code != "PLAN_LIMIT" {
		t.Fatalf("got %d %s, want 403 PLAN_LIMIT", status, code)
	}
}

func TestCreateCanvasProPlanUnlimited(t *testing.T) {
	svc, fs, _ := newTestService()
	user := seedUser(fs, "u1", "pro", "user")
	fs.workspaces["ws1"] = store.Workspace{ID: "ws1", OwnerID: "u1", Name: "W"}
	session := Session{UserID: user.ID, UserName: user.DisplayName, Plan: user.Plan}

	for i := 0; i < 5; i++ {
		if _, err := svc.CreateCanvas(context.Background(), session, "ws1", fmt.Sprintf("Canvas %d", i)); err != nil {
			t.Fatalf("create canvas %d: %v", i, err)
		}
	}
}

func TestGetCanvasAccessDecisions(t *testing.T) {
	svc, fs, _ := newTestService()
	owner := seedUser(fs, "owner", "pro", "user")
	member := seedUser(fs, "member", "free", "user")
	seedUser(fs, "outsider", "free", "user")
	fs.workspaces["ws1"] = store.Workspace{ID: "ws1", OwnerID: owner.ID, Name: "W"}
	fs.members["ws1"] = []string{member.ID}
	fs.canvases["cv1"] = store.Canvas{ID: "cv1", WorkspaceID: "ws1", Title: "T", Content: json.RawMessage(`{}`), CreatedBy: owner.ID}

	ctx := context.Background()
	if _, err := svc.GetCanvas(ctx, Session{UserID: owner.ID}, "cv1"); err != nil {
		t.Fatalf("owner: %v", err)
	}
	if _, err := svc.GetCanvas(ctx, Session{UserID: member.ID}, "cv1"); err != nil {
		t.Fatalf("member: %v", err)
	}

	_, err := svc.GetCanvas(ctx, Session{UserID: "outsider"}, "cv1")
	if status, _ := domainStatus(t, err); status != http.StatusForbidden {
		t.Fatalf("outsider status = %d, want 403", status)
	}

	_, err = svc.GetCanvas(ctx, Session{UserID: owner.ID}, "missing")
	if status, _ := domainStatus(t, err); status != http.StatusNotFound {
		t.Fatalf("missing status = %d, want 404", status)
	}

	_, err = svc.GetCanvas(ctx, Session{UserID: ""}, "cv1")
	if status, _ := domainStatus(t, err); status != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", status)
	}
}

func TestRestoreCanvasReplacesContent(t *testing.T) {
	svc, fs, _ := newTestService()
	user := seedUser(fs, "u1", "pro", "user")
	fs.workspaces["ws1"] = store.Workspace{ID: "ws1", OwnerID: user.ID, Name: "W"}
	session := Session{UserID: user.ID, UserName: user.DisplayName, Plan: user.Plan}
	ctx := context.Background()

	created, err := svc.CreateCanvas(ctx, session, "ws1", "Draft")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	canvasID := created["id"].(string)

	first := json.RawMessage(`{"blocks":[{"type":"text","text":"v1"}]}`)
	if _, err := svc.UpdateCanvas(ctx, session, canvasID, CanvasInput{Content: first}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	second := json.RawMessage(`{"blocks":[{"type":"text","text":"v2"}]}`)
	if _, err := svc.UpdateCanvas(ctx, session, canvasID, CanvasInput{Content: second}); err != nil {
		t.Fatalf("second update: %v", err)
	}

	history, err := svc.CanvasHistory(ctx, session, canvasID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	commits := history["commits"].([]map[string]any)
	if len(commits) != 3 {
		t.Fatalf("len(commits) = %d, want 3", len(commits))
	}
	firstHash := commits[1]["hash"].(string)

	restored, err := svc.RestoreCanvas(ctx, session, canvasID, firstHash)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	raw, _ := json.Marshal(restored["content"])
	if !strings.Contains(string(raw), `"v1"`) {
		t.Fatalf("restored content = %s, want v1", raw)
	}
	if string(fs.canvases[canvasID].Content) != string(first) {
		t.Fatal("store content not replaced")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, fs, _ := newTestService()
	seedUser(fs, "u1", "free", "user")
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "u1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	next, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == session.RefreshToken {
		t.Fatal("refresh token not rotated")
	}

	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatal("old refresh token should be revoked")
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	svc, fs, _ := newTestService()
	seedUser(fs, "u1", "free", "user")
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "u1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, session.Token); err != nil {
		t.Fatalf("token should be valid before logout: %v", err)
	}

	if err := svc.Logout(ctx, session, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, session.Token); err == nil {
		t.Fatal("token should be rejected after logout")
	}
}
