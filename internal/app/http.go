package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fallen/dashboard/internal/catalog"
	"fallen/dashboard/internal/clan"
	"fallen/dashboard/internal/members"
	"fallen/dashboard/internal/metrics"
	"fallen/dashboard/internal/outbox"
	"fallen/dashboard/internal/rbac"
	"fallen/dashboard/internal/store"
)

// SessionCookie carries the session token for browser clients. API clients
// send the same token as a bearer token.
const SessionCookie = "fallen_session"

type HTTPServer struct {
	service        *Service
	corsOrigin     string
	log            logrus.FieldLogger
	metrics        *metrics.Metrics
	metricsHandler http.Handler
}

// NewHTTPServer builds the API server. metricsHandler is mounted at /metrics
// when it is not nil.
func NewHTTPServer(service *Service, corsOrigin string, m *metrics.Metrics, metricsHandler http.Handler) *HTTPServer {
	return &HTTPServer{
		service:        service,
		corsOrigin:     corsOrigin,
		log:            service.Log,
		metrics:        m,
		metricsHandler: metricsHandler,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/api/ready", s.handleReady)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/api/me", s.handleMe)
		r.Get("/api/me/permissions", s.handlePermissions)

		r.Get("/api/users/search", s.handleSearch)
		r.Get("/api/users/{userID}", s.handleUser)
		r.Get("/api/users/{userID}/rank", s.handleUserRank)
		r.Get("/api/users/{userID}/duels", s.handleUserDuels)
		r.Get("/api/users/{userID}/applications", s.handleUserApplications)

		r.Get("/api/leaderboard", s.handleLeaderboard)
		r.Get("/api/stats", s.handleStats)
		r.Get("/api/analytics", s.handleAnalytics)
		r.Get("/api/economy", s.handleEconomy)
		r.Get("/api/elo/distribution", s.handleEloDistribution)
		r.Get("/api/roster", s.handleRoster)
		r.Get("/api/guardian", s.handleGuardian)
		r.Get("/api/duels/recent", s.handleRecentDuels)
		r.Get("/api/shop/items", s.handleShopItems)

		r.Get("/api/raids", s.handleRaids)
		r.Get("/api/raids/leaderboard", s.handleRaidLeaderboard)
		r.Get("/api/wars", s.handleWars)
		r.Get("/api/wars/record", s.handleWarRecord)
		r.Get("/api/tournaments", s.handleTournaments)
		r.Get("/api/recruitment/positions", s.handlePositions)
		r.Post("/api/recruitment/applications", s.handleSubmitApplication)

		// The outbox gates each action by its own tier.
		r.Post("/api/actions", s.handleSubmitAction)

		r.Group(func(r chi.Router) {
			r.Use(s.requireGrant(rbac.ActionViewStaff))
			r.Get("/api/users/{userID}/warnings", s.handleUserWarnings)
			r.Get("/api/users/{userID}/actions", s.handleUserActions)
			r.Get("/api/warnings/recent", s.handleRecentWarnings)
			r.Get("/api/actions/pending", s.handlePendingActions)
			r.Get("/api/actions/recent", s.handleRecentActions)
			r.Get("/api/recruitment/applications", s.handleApplications)
		})

		r.With(s.requireGrant(rbac.ActionViewAudit)).Get("/api/audit", s.handleAudit)

		r.Route("/api/settings", func(r chi.Router) {
			r.Use(s.requireGrant(rbac.ActionManageSettings))
			r.Get("/staff", s.handleListStaff)
			r.Put("/staff/{userID}", s.handleGrantStaff)
			r.Delete("/staff/{userID}", s.handleRevokeStaff)
			r.Get("/roles", s.handleListRoles)
			r.Put("/roles/{roleID}", s.handleSetRole)
			r.Delete("/roles/{roleID}", s.handleRemoveRole)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

type requestIDKey struct{}

type sessionKey struct{}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(started)
		s.metrics.ObserveRequest(route, strconv.Itoa(writer.status), elapsed)
		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": elapsed.Milliseconds(),
		}).Info("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			s.fail(w, errNoSession)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			s.fail(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func (s *HTTPServer) requireGrant(action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionFrom(r)
			if !rbac.Can(session.Grant, action) {
				s.forbid(w, r, session, action)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forbid writes a 403 and logs the denial.
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) {
	s.log.WithFields(logrus.Fields{
		"user_id": session.UserID,
		"tier":    session.Grant.Tier,
		"action":  action,
		"path":    r.URL.Path,
	}).Info("permission denied")
	if !session.Grant.IsStaff {
		writeError(w, http.StatusForbidden, "NOT_STAFF", "Staff only", nil)
		return
	}
	required, _ := rbac.RequiredTier(action)
	writeError(w, http.StatusForbidden, "INSUFFICIENT_TIER", "Forbidden", map[string]any{"required_tier": required})
}

func sessionFrom(r *http.Request) Session {
	session, _ := r.Context().Value(sessionKey{}).(Session)
	return session
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

// =============================================================================
// Health
// =============================================================================

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	if s.service.Redis != nil {
		checks["redis"] = map[string]any{"status": "ok"}
		if err := s.service.Redis.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["redis"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// =============================================================================
// Caller
// =============================================================================

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    strconv.FormatInt(session.UserID, 10),
		"name":       session.Name,
		"avatar_url": members.AvatarURL(session.UserID, session.Avatar),
		"is_staff":   session.Grant.IsStaff,
		"tier":       session.Grant.Tier,
	})
}

func (s *HTTPServer) handlePermissions(w http.ResponseWriter, r *http.Request) {
	grant := sessionFrom(r).Grant
	allowed := make([]rbac.Action, 0)
	for _, action := range rbac.ModerationActions() {
		if rbac.Can(grant, action) {
			allowed = append(allowed, action)
		}
	}
	sources := grant.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_staff":            grant.IsStaff,
		"tier":                grant.Tier,
		"sources":             sources,
		"actions":             allowed,
		"can_view_staff":      rbac.Can(grant, rbac.ActionViewStaff),
		"can_view_audit":      rbac.Can(grant, rbac.ActionViewAudit),
		"can_manage_settings": rbac.Can(grant, rbac.ActionManageSettings),
	})
}

// =============================================================================
// Members
// =============================================================================

func (s *HTTPServer) handleUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	user, status := s.service.Members.GetUser(r.Context(), userID)
	if user == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found", map[string]any{"status": status})
		return
	}
	writeData(w, user, status)
}

func (s *HTTPServer) handleUserRank(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	field := members.NormalizeSortField(r.URL.Query().Get("sort"))
	rank, status := s.service.Members.GetUserRank(r.Context(), userID, field)
	writeData(w, map[string]any{"rank": rank, "sort_by": field}, status)
}

func (s *HTTPServer) handleUserWarnings(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	summary, status := s.service.Members.GetUserWarnings(r.Context(), userID)
	writeData(w, summary, status)
}

func (s *HTTPServer) handleUserDuels(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	duels, status := s.service.Members.UserDuels(r.Context(), userID, queryInt(r, "limit", 20))
	writeData(w, duels, status)
}

// handleUserApplications serves a user's own applications, or anyone's to staff.
func (s *HTTPServer) handleUserApplications(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	session := sessionFrom(r)
	if session.UserID != userID && !rbac.Can(session.Grant, rbac.ActionViewStaff) {
		s.forbid(w, r, session, rbac.ActionViewStaff)
		return
	}
	rows, status := s.service.Clan.UserApplications(r.Context(), userID)
	writeData(w, rows, status)
}

func (s *HTTPServer) handleUserActions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	actions, status := s.service.Outbox.ListForTarget(r.Context(), userID, queryInt(r, "limit", 50))
	writeData(w, actions, status)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "q is required", nil)
		return
	}
	entries, status := s.service.Members.SearchUsers(r.Context(), query, queryInt(r, "limit", 0))
	writeData(w, entries, status)
}

func (s *HTTPServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	board, status := s.service.Members.GetLeaderboard(r.Context(), q.Get("sort"), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	writeData(w, board, status)
}

func (s *HTTPServer) handleRoster(w http.ResponseWriter, r *http.Request) {
	roster, status := s.service.Members.GetRoster(r.Context())
	writeData(w, roster, status)
}

func (s *HTTPServer) handleGuardian(w http.ResponseWriter, r *http.Request) {
	stats, status := s.service.Members.GuardianStats(r.Context())
	writeData(w, stats, status)
}

func (s *HTTPServer) handleRecentDuels(w http.ResponseWriter, r *http.Request) {
	duels, status := s.service.Members.RecentDuels(r.Context(), queryInt(r, "limit", 20))
	writeData(w, duels, status)
}

func (s *HTTPServer) handleRecentWarnings(w http.ResponseWriter, r *http.Request) {
	warnings, status := s.service.Members.GetRecentWarnings(r.Context(), queryInt(r, "limit", 0))
	writeData(w, warnings, status)
}

func (s *HTTPServer) handleShopItems(w http.ResponseWriter, _ *http.Request) {
	writeData(w, catalog.All(), store.StatusLoaded)
}

// =============================================================================
// Analytics
// =============================================================================

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, status := s.service.Analytics.ServerStats(r.Context())
	writeData(w, stats, status)
}

func (s *HTTPServer) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	report, status := s.service.Analytics.Analytics(r.Context())
	writeData(w, report, status)
}

func (s *HTTPServer) handleEconomy(w http.ResponseWriter, r *http.Request) {
	economy, status := s.service.Analytics.Economy(r.Context())
	writeData(w, economy, status)
}

func (s *HTTPServer) handleEloDistribution(w http.ResponseWriter, r *http.Request) {
	tiers, status := s.service.Analytics.EloDistribution(r.Context())
	writeData(w, tiers, status)
}

// =============================================================================
// Clan tables
// =============================================================================

func (s *HTTPServer) handleRaids(w http.ResponseWriter, r *http.Request) {
	rows, status := s.service.Clan.RecentRaids(r.Context(), queryInt(r, "limit", 0))
	writeData(w, rows, status)
}

func (s *HTTPServer) handleRaidLeaderboard(w http.ResponseWriter, r *http.Request) {
	stats, status := s.service.Clan.RaidLeaderboard(r.Context(), queryInt(r, "limit", 0))
	writeData(w, stats, status)
}

func (s *HTTPServer) handleWars(w http.ResponseWriter, r *http.Request) {
	rows, status := s.service.Clan.Wars(r.Context(), queryInt(r, "limit", 0))
	writeData(w, rows, status)
}

func (s *HTTPServer) handleWarRecord(w http.ResponseWriter, r *http.Request) {
	record, status := s.service.Clan.WarRecord(r.Context())
	writeData(w, record, status)
}

func (s *HTTPServer) handleTournaments(w http.ResponseWriter, r *http.Request) {
	rows, status := s.service.Clan.Tournaments(r.Context(), queryInt(r, "limit", 0))
	writeData(w, rows, status)
}

func (s *HTTPServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	rows, status := s.service.Clan.OpenPositions(r.Context())
	writeData(w, rows, status)
}

func (s *HTTPServer) handleApplications(w http.ResponseWriter, r *http.Request) {
	rows, status := s.service.Clan.Applications(r.Context(), r.URL.Query().Get("status"), queryInt(r, "limit", 0))
	writeData(w, rows, status)
}

func (s *HTTPServer) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	var body clan.ApplicationRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	body.UserID = session.UserID
	body.Username = session.Name
	id, err := s.service.Clan.SubmitApplication(r.Context(), body)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "status": "pending"})
}

// =============================================================================
// Outbox and audit
// =============================================================================

type actionBody struct {
	Action         string          `json:"action"`
	TargetUserID   flexibleID      `json:"target_user_id"`
	Params         json.RawMessage `json:"params"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func (s *HTTPServer) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	var body actionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	key := body.IdempotencyKey
	if header := strings.TrimSpace(r.Header.Get("Idempotency-Key")); header != "" {
		key = header
	}
	receipt, err := s.service.Outbox.Submit(r.Context(), outbox.Request{
		Action:         body.Action,
		TargetUserID:   int64(body.TargetUserID),
		Staff:          s.service.staff(sessionFrom(r)),
		Params:         body.Params,
		IdempotencyKey: key,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	status := http.StatusCreated
	if receipt.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, receipt)
}

func (s *HTTPServer) handlePendingActions(w http.ResponseWriter, r *http.Request) {
	actions, status := s.service.Outbox.ListPending(r.Context(), queryInt(r, "limit", 0))
	writeData(w, actions, status)
}

func (s *HTTPServer) handleRecentActions(w http.ResponseWriter, r *http.Request) {
	actions, status := s.service.Outbox.ListRecent(r.Context(), queryInt(r, "limit", 0))
	writeData(w, actions, status)
}

func (s *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, status := s.service.Audit.Recent(r.Context(), queryInt(r, "limit", 0))
	writeData(w, entries, status)
}

// =============================================================================
// Settings
// =============================================================================

func (s *HTTPServer) handleListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := s.service.ListStaff(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": staff})
}

func (s *HTTPServer) handleGrantStaff(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var body StaffGrantRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	body.UserID = userID
	if err := s.service.GrantStaff(r.Context(), sessionFrom(r), body); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleRevokeStaff(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.service.RevokeStaff(r.Context(), sessionFrom(r), userID); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.service.ListRoleTiers(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (s *HTTPServer) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var body RoleTierRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	body.RoleID = chi.URLParam(r, "roleID")
	if err := s.service.SetRoleTier(r.Context(), sessionFrom(r), body); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveRoleTier(r.Context(), sessionFrom(r), chi.URLParam(r, "roleID")); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// =============================================================================
// Helpers
// =============================================================================

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, Idempotency-Key")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeData wraps a read result with where it came from, so clients can tell
// stored data from a default.
func writeData(w http.ResponseWriter, data any, status store.Status) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data":      data,
		"status":    status,
		"defaulted": status.Defaulted(),
	})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func sessionToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func pathUserID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domainError(http.StatusBadRequest, "INVALID_ID", "user id must be a positive integer", nil)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// flexibleID accepts a user ID as a JSON number or a decimal string. Snowflake
// IDs overflow a float64, so browser clients send them as strings.
type flexibleID int64

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		*id = 0
		return nil
	}
	parsed, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", data)
	}
	*id = flexibleID(parsed)
	return nil
}
