package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"medipos/backend/internal/analytics"
	"medipos/backend/internal/domain"
	"medipos/backend/internal/remotesync"
	"medipos/backend/internal/service"
	"medipos/backend/internal/session"
	"medipos/backend/internal/store"
)

const importPath = "/api/v1/data/import"

type API struct {
	service       *service.Service
	sessions      *session.Manager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        *zap.Logger
}

func New(svc *service.Service, sessions *session.Manager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		sessions:      sessions,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        logger,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))
	r.Use(a.withMiddleware)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(a.requireAuth)

			pr.Post("/auth/logout", a.handleLogout)
			pr.Get("/auth/me", a.handleMe)
			pr.Post("/auth/password", a.handleChangePassword)
			pr.Put("/auth/profile", a.handleProfile)

			pr.Route("/medicines", func(r chi.Router) {
				r.Get("/", a.handleListMedicines)
				r.Post("/", a.handleCreateMedicine)
				r.Get("/{id}", a.handleGetMedicine)
				r.Put("/{id}", a.handleUpdateMedicine)
				r.Delete("/{id}", a.handleDeleteMedicine)
			})

			pr.Route("/sales", func(r chi.Router) {
				r.Get("/", a.handleListSales)
				r.Post("/", a.handleCreateSale)
				r.Get("/{id}", a.handleGetSale)
				r.With(requireRole(domain.RoleAdmin, domain.RoleManager)).Put("/{id}", a.handleUpdateSale)
				r.With(requireRole(domain.RoleAdmin, domain.RoleManager)).Delete("/{id}", a.handleDeleteSale)
			})

			pr.Get("/analytics/sales", a.handleSalesAnalytics)
			pr.Get("/analytics/medicines/{id}", a.handleMedicineHistory)

			pr.Get("/shop", a.handleGetShop)
			pr.Put("/shop", a.handleUpdateShop)

			pr.Route("/users", func(r chi.Router) {
				r.Use(requireRole(domain.RoleAdmin))
				r.Get("/", a.handleListUsers)
				r.Post("/", a.handleCreateUser)
				r.Put("/{id}", a.handleUpdateUser)
				r.Delete("/{id}", a.handleDeleteUser)
			})

			pr.Get("/sync/status", a.handleSyncStatus)
			pr.Post("/sync/flush", a.handleSyncFlush)
			pr.Post("/sync/reconcile", a.handleSyncReconcile)

			pr.Route("/data", func(r chi.Router) {
				r.Use(requireRole(domain.RoleAdmin))
				r.Get("/export", a.handleExport)
				r.Post("/import", a.handleImport)
				r.Post("/reset", a.handleReset)
			})
		})
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.sessions.ResolveToken(r.Context(), token)
		if err != nil {
			status := http.StatusUnauthorized
			if !isAuthFailure(err) {
				status = http.StatusInternalServerError
				a.logger.Error("token resolution failed", zap.Error(err))
			}
			writeError(w, status, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func isAuthFailure(err error) bool {
	return errors.Is(err, session.ErrInvalidToken) ||
		errors.Is(err, session.ErrSessionExpired) ||
		errors.Is(err, session.ErrUserNotFound) ||
		errors.Is(err, session.ErrAccountInactive)
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.sessions.Authenticate(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !result.Success {
		writeJSON(w, http.StatusUnauthorized, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Logout(r.Context()); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok, err := a.sessions.CurrentUser(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, session.ErrSessionExpired)
		return
	}
	current, _, err := a.sessions.CurrentSession(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "session": current})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())

	var req domain.ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.sessions.ChangePassword(r.Context(), actor.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !result.Success {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())

	var req domain.UserUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := a.sessions.UpdateProfile(r.Context(), actor, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handleListMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := a.service.ListMedicines(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicines": medicines})
}

func (a *API) handleGetMedicine(w http.ResponseWriter, r *http.Request) {
	medicine, ok, err := a.service.GetMedicine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("medicine not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicine": medicine})
}

func (a *API) handleCreateMedicine(w http.ResponseWriter, r *http.Request) {
	var req domain.MedicineCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	medicine, err := a.service.CreateMedicine(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"medicine": medicine})
}

func (a *API) handleUpdateMedicine(w http.ResponseWriter, r *http.Request) {
	var req domain.MedicineUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	medicine, ok, err := a.service.UpdateMedicine(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("medicine not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicine": medicine})
}

func (a *API) handleDeleteMedicine(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.service.DeleteMedicine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, errors.New("medicine not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, to, err := analytics.ParseRange(domain.AnalyticsRequest{
		StartDate: query.Get("start_date"),
		EndDate:   query.Get("end_date"),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sales, err := a.service.ListSales(r.Context(), domain.SaleFilter{
		From:         from,
		To:           to,
		MedicineName: query.Get("medicine"),
		Limit:        parsePositiveLimit(query.Get("limit"), 100, 1000),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, ok, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("sale not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sale, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sale, ok, err := a.service.UpdateSale(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("sale not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.service.DeleteSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, errors.New("sale not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleSalesAnalytics(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	summary, err := a.service.SalesAnalytics(r.Context(), domain.AnalyticsRequest{
		StartDate: query.Get("start_date"),
		EndDate:   query.Get("end_date"),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleMedicineHistory(w http.ResponseWriter, r *http.Request) {
	days := parsePositiveLimit(r.URL.Query().Get("days"), 30, 365)
	history, err := a.service.MedicineSalesHistory(r.Context(), chi.URLParam(r, "id"), days)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *API) handleGetShop(w http.ResponseWriter, r *http.Request) {
	shop, err := a.service.GetShop(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shop": shop})
}

func (a *API) handleUpdateShop(w http.ResponseWriter, r *http.Request) {
	var req domain.ShopUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	shop, err := a.service.UpdateShop(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shop": shop})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	users, err := a.sessions.ListUsers(r.Context(), actor)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())

	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := a.sessions.CreateUser(r.Context(), actor, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())

	var req domain.UserUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := a.sessions.UpdateUser(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	if err := a.sessions.DeleteUser(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.SyncStatus(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleSyncFlush(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.FlushSync(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleSyncReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.Reconcile(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := a.service.ExportData(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="medipos-backup-`+data.ExportedAt.Format("2006-01-02")+`.json"`)
	writeJSON(w, http.StatusOK, data)
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	var data domain.DataExport
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.ImportData(r.Context(), data); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": true})
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ResetData(r.Context()); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// writeServiceError maps domain errors onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalidRecord),
		errors.Is(err, session.ErrWeakPassword),
		errors.Is(err, session.ErrInvalidUsername),
		errors.Is(err, session.ErrInvalidRole),
		errors.Is(err, session.ErrCannotDeleteSelf):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrInsufficientPermissions):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrUsernameTaken), errors.Is(err, store.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, store.ErrStorageFull):
		status = http.StatusInsufficientStorage
	case errors.Is(err, remotesync.ErrSyncDisabled):
		status = http.StatusConflict
	}
	if status >= 500 {
		a.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, err)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			limit := int64(1 << 20)
			if r.URL.Path == importPath {
				limit = 32 << 20
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(startedAt)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies carry a generic message; 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
