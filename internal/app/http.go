package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"canvasai/api/internal/auth"
	"canvasai/api/internal/authpw"
	"canvasai/api/internal/config"
	"canvasai/api/internal/export"
	"canvasai/api/internal/util"
)

const maxUploadBytes = 20 << 20

// sensitiveQueryParams are credentials that must never appear in a URL.
// Requests carrying any of them are redirected to the cleaned URL.
var sensitiveQueryParams = []string{
	"token",
	"jwt",
	"id_token",
	"access_token",
	"session",
	"session_token",
	"sessionId",
	"authorization",
}

// protectedPrefixes require a valid bearer token before routing.
var protectedPrefixes = []string{
	"/api/dashboard",
	"/api/canvases",
	"/api/admin",
}

type Server struct {
	service *Service
	cfg     config.Config
}

func NewServer(service *Service, cfg config.Config) *Server {
	return &Server{service: service, cfg: cfg}
}

func (s *Server) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.route))
}

type requestIDKey struct{}

type sessionKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		s.setSecurityHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if prefix := matchProtectedPrefix(r.URL.Path); prefix != "" {
			session, err := s.service.SessionFromToken(r.Context(), bearerToken(r))
			if err != nil {
				writeError(rec, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
				s.logRequest(r, rec.status, requestID, start)
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, session))
		}

		if cleaned, dirty := stripSensitiveParams(r.URL); dirty {
			http.Redirect(rec, r, cleaned, http.StatusTemporaryRedirect)
			s.logRequest(r, rec.status, requestID, start)
			return
		}

		next.ServeHTTP(rec, r)
		s.logRequest(r, rec.status, requestID, start)
	})
}

func (s *Server) logRequest(r *http.Request, status int, requestID string, start time.Time) {
	entry, _ := json.Marshal(map[string]any{
		"method":     r.Method,
		"path":       r.URL.Path,
		"status":     status,
		"durationMs": time.Since(start).Milliseconds(),
		"requestId":  requestID,
	})
	log.Printf("%s", entry)
}

func (s *Server) setSecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
	h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
}

// stripSensitiveParams removes credential-bearing query parameters. The
// second return is true when at least one was present.
func stripSensitiveParams(u *url.URL) (string, bool) {
	query := u.Query()
	dirty := false
	for _, param := range sensitiveQueryParams {
		if query.Has(param) {
			query.Del(param)
			dirty = true
		}
	}
	if !dirty {
		return "", false
	}
	cleaned := *u
	cleaned.RawQuery = query.Encode()
	return cleaned.String(), true
}

func matchProtectedPrefix(path string) string {
	for _, prefix := range protectedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return prefix
		}
	}
	return ""
}

func splitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return nil
	}
	return parts
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	body := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", nil)
}

func mapError(w http.ResponseWriter, err error) {
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details)
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
	case errors.Is(err, authpw.ErrEmailExists):
		writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, export.ErrPDFDependencyMissing):
		writeError(w, http.StatusServiceUnavailable, "PDF_RENDERER_UNAVAILABLE", "PDF rendering is not available", nil)
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
	}
}

func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	if session, ok := r.Context().Value(sessionKey{}).(Session); ok {
		return session, true
	}
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return Session{}, false
	}
	return session, true
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) == 0 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	rest := parts[1:]

	switch {
	case len(rest) == 1 && rest[0] == "health":
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case len(rest) == 1 && rest[0] == "ready":
		s.handleReady(w, r)
	case len(rest) >= 1 && rest[0] == "auth":
		s.routeAuth(w, r, rest[1:])
	case len(rest) >= 1 && rest[0] == "session":
		s.routeSession(w, r, rest[1:])
	case len(rest) >= 1 && rest[0] == "profile":
		s.routeProfile(w, r, rest[1:])
	case len(rest) == 1 && rest[0] == "dashboard" && r.Method == http.MethodGet:
		s.handleDashboard(w, r)
	case len(rest) >= 1 && rest[0] == "canvases":
		s.routeCanvases(w, r, rest[1:])
	case len(rest) >= 1 && rest[0] == "workspaces":
		s.routeWorkspaces(w, r, rest[1:])
	case len(rest) == 1 && rest[0] == "search" && r.Method == http.MethodGet:
		s.handleSearch(w, r)
	case len(rest) >= 1 && rest[0] == "admin":
		s.routeAdmin(w, r, rest[1:])
	case len(rest) >= 1 && rest[0] == "tools":
		s.routeTools(w, r, rest[1:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "Database unavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// ── Auth ──

func (s *Server) routeAuth(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if s.service.AuthPasswordService() == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return
	}
	switch {
	case len(rest) == 1 && rest[0] == "signup":
		s.handleSignUp(w, r)
	case len(rest) == 1 && rest[0] == "signin":
		s.handleSignIn(w, r)
	case len(rest) == 1 && rest[0] == "verify-email":
		s.handleVerifyEmail(w, r)
	case len(rest) == 2 && rest[0] == "reset-password" && rest[1] == "request":
		s.handleResetRequest(w, r)
	case len(rest) == 1 && rest[0] == "reset-password":
		s.handleResetPassword(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req authpw.SignUpRequest
	if err := decodeBody(r, &req); err != nil {
		mapError(w, err)
		return
	}
	resp, err := s.service.SignUp(r.Context(), req)
	if err != nil {
		mapError(w, err)
		return
	}
	payload := map[string]any{
		"userId":              resp.UserID,
		"requiresEmailVerify": resp.RequiresEmailVerify,
	}
	if !s.service.SMTPConfigured() {
		payload["verificationToken"] = resp.VerificationToken
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req authpw.SignInRequest
	if err := decodeBody(r, &req); err != nil {
		mapError(w, err)
		return
	}
	resp, err := s.service.AuthPasswordService().SignIn(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}
	if resp.RequiresVerify {
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Email address is not verified", nil)
		return
	}
	session, err := s.service.CreateSession(r.Context(), resp.User.ID)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil {
		mapError(w, err)
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "token is required", nil)
		return
	}
	if err := s.service.AuthPasswordService().VerifyEmail(r.Context(), req.Token); err != nil {
		writeError(w, http.StatusBadRequest, "VERIFICATION_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		mapError(w, err)
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email is required", nil)
		return
	}
	// Existence of the address is never revealed.
	token, _ := s.service.AuthPasswordService().RequestPasswordReset(r.Context(), req.Email)
	payload := map[string]any{"ok": true}
	if token != "" && !s.service.SMTPConfigured() {
		payload["resetToken"] = token
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authpw.ResetPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		mapError(w, err)
		return
	}
	if err := s.service.AuthPasswordService().ResetPassword(r.Context(), req); err != nil {
		writeError(w, http.StatusBadRequest, "RESET_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ── Session ──

func (s *Server) routeSession(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":    session.UserID,
			"userName":  session.UserName,
			"role":      session.Role,
			"plan":      session.Plan,
			"expiresAt": session.ExpiresAt.Format(time.RFC3339),
		})
	case len(rest) == 1 && rest[0] == "refresh" && r.Method == http.MethodPost:
		s.handleRefresh(w, r)
	case len(rest) == 1 && rest[0] == "logout" && r.Method == http.MethodPost:
		s.handleLogout(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &req); err != nil {
		mapError(w, err)
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "refreshToken is required", nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid refresh token", nil)
			return
		}
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &req); err != nil {
		mapError(w, err)
		return
	}
	if err := s.service.Logout(r.Context(), session, req.RefreshToken); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
		"plan":         session.Plan,
		"expiresAt":    session.ExpiresAt.Format(time.RFC3339),
	}
}

// ── Profile ──

func (s *Server) routeProfile(w http.ResponseWriter, r *http.Request, rest []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		payload, err := s.service.Profile(r.Context(), session.UserID)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 0 && r.Method == http.MethodPut:
		var req struct {
			DisplayName string `json:"displayName"`
		}
		if err := decodeBody(r, &req); err != nil {
			mapError(w, err)
			return
		}
		payload, err := s.service.UpdateProfile(r.Context(), session.UserID, req.DisplayName)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 1 && rest[0] == "phone" && r.Method == http.MethodPost:
		var req struct {
			PhoneNumber string `json:"phoneNumber"`
		}
		if err := decodeBody(r, &req); err != nil {
			mapError(w, err)
			return
		}
		payload, err := s.service.SetPhone(r.Context(), session.UserID, req.PhoneNumber)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// ── Dashboard ──

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	payload, err := s.service.Dashboard(r.Context(), session)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// ── Canvases ──

func (s *Server) routeCanvases(w http.ResponseWriter, r *http.Request, rest []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		payload, err := s.service.ListCanvases(r.Context(), session.UserID)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 0 && r.Method == http.MethodPost:
		var req struct {
			WorkspaceID string `json:"workspaceId"`
			Title       string `json:"title"`
		}
		if err := decodeBody(r, &req); err != nil {
			mapError(w, err)
			return
		}
		payload, err := s.service.CreateCanvas(r.Context(), session, req.WorkspaceID, req.Title)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
	case len(rest) == 1 && r.Method == http.MethodGet:
		payload, err := s.service.GetCanvas(r.Context(), session, rest[0])
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 1 && r.Method == http.MethodPut:
		var req CanvasInput
		if err := decodeBody(r, &req); err != nil {
			mapError(w, err)
			return
		}
		payload, err := s.service.UpdateCanvas(r.Context(), session, rest[0], req)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteCanvas(r.Context(), session, rest[0]); err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case len(rest) == 2 && rest[1] == "history" && r.Method == http.MethodGet:
		payload, err := s.service.CanvasHistory(r.Context(), session, rest[0])
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 2 && rest[1] == "restore" && r.Method == http.MethodPost:
		var req struct {
			Hash string `json:"hash"`
		}
		if err := decodeBody(r, &req); err != nil {
			mapError(w, err)
			return
		}
		payload, err := s.service.RestoreCanvas(r.Context(), session, rest[0], req.Hash)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 2 && rest[1] == "export" && r.Method == http.MethodPost:
		s.handleExport(w, r, session, rest[0])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, session Session, canvasID string) {
	var req struct {
		Version string `json:"version"`
	}
	if err := decodeBody(r, &req); err != nil {
		mapError(w, err)
		return
	}
	result, err := s.service.ExportCanvas(r.Context(), session, canvasID, req.Version)
	if err != nil {
		mapError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// ── Workspaces ──

func (s *Server) routeWorkspaces(w http.ResponseWriter, r *http.Request, rest []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		payload, err := s.service.ListWorkspaces(r.Context(), session.UserID)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 2 && rest[1] == "members" && r.Method == http.MethodGet:
		payload, err := s.service.WorkspaceMembers(r.Context(), session.UserID, rest[0])
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// ── Canvas search ──

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "q must be a non-empty string", nil)
		return
	}
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	payload, err := s.service.SearchCanvases(r.Context(), session.UserID, query, limit, offset)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// ── Admin ──

func (s *Server) routeAdmin(w http.ResponseWriter, r *http.Request, rest []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if session.Role != "admin" {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin role required", nil)
		return
	}
	switch {
	case len(rest) == 1 && rest[0] == "users" && r.Method == http.MethodGet:
		payload, err := s.service.AdminListUsers(r.Context())
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case len(rest) == 2 && rest[0] == "users" && r.Method == http.MethodPatch:
		var req AdminUserInput
		if err := decodeBody(r, &req); err != nil {
			mapError(w, err)
			return
		}
		payload, err := s.service.AdminUpdateUser(r.Context(), rest[1], req)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// ── Tools ──

func (s *Server) routeTools(w http.ResponseWriter, r *http.Request, rest []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	switch {
	case len(rest) == 1 && rest[0] == "search" && r.Method == http.MethodGet:
		query := r.URL.Query().Get("q")
		count := queryInt(r, "count", 10)
		resp, err := s.service.WebSearch(r.Context(), query, count)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case len(rest) == 1 && rest[0] == "crawl" && r.Method == http.MethodPost:
		var req struct {
			URL string `json:"url"`
		}
		if err := decodeBody(r, &req); err != nil {
			mapError(w, err)
			return
		}
		result, err := s.service.CrawlPage(r.Context(), req.URL)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case len(rest) == 2 && rest[0] == "pdf" && rest[1] == "extract" && r.Method == http.MethodPost:
		data, err := readPDFUpload(r)
		if err != nil {
			mapError(w, err)
			return
		}
		payload, err := s.service.ExtractPDF(r.Context(), session.UserID, data)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// readPDFUpload accepts either a raw body or a multipart form with a "file"
// field.
func readPDFUpload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid multipart form", nil)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "file field is required", nil)
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return nil, err
	}
	return data, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
