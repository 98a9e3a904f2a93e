package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"agencyflow/agent"
	"agencyflow/analytics"
	"agencyflow/auth"
	"agencyflow/hierarchy"
	"agencyflow/policy"
	"agencyflow/takeaction"
)

type contextKey string

const (
	ctxKeyNPN  contextKey = "npn"
	ctxKeyRole contextKey = "role"
)

type analyticsEngine interface {
	ListPolicies(ctx context.Context, f policy.Filter, mode policy.BobMode) (analytics.PolicyList, error)
	StatusCounts(ctx context.Context, f policy.Filter, mode policy.BobMode) (analytics.StatusCountsResult, error)
	Aging(ctx context.Context, f policy.Filter, mode policy.BobMode) (analytics.AgingResult, error)
	Persistency(ctx context.Context, f policy.Filter, mode policy.BobMode) (analytics.PersistencyResult, error)
	PremiumByProduct(ctx context.Context, f policy.Filter, mode policy.BobMode) (analytics.PremiumResult, error)
	AgentPerformance(ctx context.Context, f policy.Filter, mode policy.BobMode) (analytics.AgentPerformanceResult, error)
}

type hierarchyResolver interface {
	Resolve(ctx context.Context, root string) hierarchy.Set
	Clear(ctx context.Context) error
}

type agentReader interface {
	Get(ctx context.Context, npn string) (agent.Agent, error)
}

type policyService interface {
	Get(ctx context.Context, id string) (policy.Policy, error)
	GetByNumber(ctx context.Context, number string) (policy.Policy, error)
	UpdateActionStatus(ctx context.Context, id, status string) (policy.Policy, error)
}

type noteService interface {
	CreateNote(ctx context.Context, req takeaction.NoteRequest) (takeaction.Record, error)
	History(ctx context.Context, policyNumber string) ([]takeaction.Record, error)
}

type tokenVerifier interface {
	VerifyToken(token string) (auth.Principal, error)
}

// Server carries the HTTP handlers. A nil tokens verifier disables
// authentication and every caller is treated as an admin.
type Server struct {
	engine         analyticsEngine
	resolver       hierarchyResolver
	agents         agentReader
	policies       policyService
	notes          noteService
	tokens         tokenVerifier
	log            *zap.Logger
	location       *time.Location
	allowedOrigins []string
}

func (s *Server) logger() *zap.Logger {
	if s.log == nil {
		return zap.NewNop()
	}
	return s.log
}

// Routes builds the chi router with the middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/book-of-business", func(r chi.Router) {
			r.Get("/policies", s.handleListPolicies)
			r.Get("/status-counts", s.handleStatusCounts)
			r.Get("/aging", s.handleAging)
			r.Get("/persistency", s.handlePersistency)
			r.Get("/premium-by-product", s.handlePremiumByProduct)
		})
		r.Get("/employee-performance/agents", s.handleAgentPerformance)

		r.Patch("/policies/{id}/action-status", s.handleUpdateActionStatus)
		r.Post("/policies/{policyNumber}/take-actions", s.handleCreateNote)
		r.Get("/policies/{policyNumber}/take-actions", s.handleListNotes)

		r.Get("/agents/{npn}/downline", s.handleDownline)
		r.Delete("/hierarchy/cache", s.handleClearCache)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// authenticate verifies the bearer token and stores the caller in the context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokens == nil {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		p, err := s.tokens.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyNPN, p.NPN)
		ctx = context.WithValue(ctx, ctxKeyRole, p.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorize lets admins and unauthenticated deployments through. Agents may
// only reach NPNs inside their own downline.
func (s *Server) authorize(ctx context.Context, npn string) error {
	role, ok := ctx.Value(ctxKeyRole).(auth.Role)
	if !ok || role == auth.RoleAdmin {
		return nil
	}
	caller, _ := ctx.Value(ctxKeyNPN).(string)
	if caller == "" {
		return auth.ErrForbidden
	}
	if caller == npn || s.resolver.Resolve(ctx, caller).Has(npn) {
		return nil
	}
	return auth.ErrForbidden
}

func requireAdmin(ctx context.Context) error {
	role, ok := ctx.Value(ctxKeyRole).(auth.Role)
	if ok && role != auth.RoleAdmin {
		return auth.ErrForbidden
	}
	return nil
}

// analyticsHandler parses the filter, checks scope and writes the result.
func analyticsHandler[T any](s *Server, mode policy.BobMode, run func(context.Context, policy.Filter, policy.BobMode) (T, error), render func(T) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := filterFromQuery(r)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if err := f.Validate(); err != nil {
			s.writeServiceError(w, err)
			return
		}
		if err := s.authorize(r.Context(), f.NPN); err != nil {
			s.writeServiceError(w, err)
			return
		}
		res, err := run(r.Context(), f, mode)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if render == nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
		writeJSON(w, http.StatusOK, render(res))
	}
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	analyticsHandler(s, policy.BobInclusive, s.engine.ListPolicies, func(l analytics.PolicyList) any {
		return toPolicyListResponse(l, s.location)
	})(w, r)
}

func (s *Server) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	analyticsHandler[analytics.StatusCountsResult](s, policy.BobInclusive, s.engine.StatusCounts, nil)(w, r)
}

func (s *Server) handleAging(w http.ResponseWriter, r *http.Request) {
	analyticsHandler[analytics.AgingResult](s, policy.BobInclusive, s.engine.Aging, nil)(w, r)
}

func (s *Server) handlePersistency(w http.ResponseWriter, r *http.Request) {
	analyticsHandler[analytics.PersistencyResult](s, policy.BobStrict, s.engine.Persistency, nil)(w, r)
}

func (s *Server) handlePremiumByProduct(w http.ResponseWriter, r *http.Request) {
	analyticsHandler[analytics.PremiumResult](s, policy.BobStrict, s.engine.PremiumByProduct, nil)(w, r)
}

func (s *Server) handleAgentPerformance(w http.ResponseWriter, r *http.Request) {
	analyticsHandler[analytics.AgentPerformanceResult](s, policy.BobInclusive, s.engine.AgentPerformance, nil)(w, r)
}

func (s *Server) handleUpdateActionStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "policy id is required")
		return
	}
	var body actionStatusRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, err := s.policies.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.authorize(r.Context(), current.OwnerNPN); err != nil {
		s.writeServiceError(w, err)
		return
	}

	updated, err := s.policies.UpdateActionStatus(r.Context(), id, body.ActionStatus)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyResponse(updated, s.location))
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(chi.URLParam(r, "policyNumber"))
	if number == "" {
		writeError(w, http.StatusBadRequest, "policy number is required")
		return
	}
	var body noteRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pol, err := s.policies.GetByNumber(r.Context(), number)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.authorize(r.Context(), pol.OwnerNPN); err != nil {
		s.writeServiceError(w, err)
		return
	}

	sender := body.Sender
	if sender == "" {
		sender, _ = r.Context().Value(ctxKeyNPN).(string)
	}
	rec, err := s.notes.CreateNote(r.Context(), takeaction.NoteRequest{
		PolicyNumber: number,
		Status:       body.Status,
		Requirements: body.Requirements,
		Sender:       sender,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordResponse(rec))
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(chi.URLParam(r, "policyNumber"))
	if number == "" {
		writeError(w, http.StatusBadRequest, "policy number is required")
		return
	}
	pol, err := s.policies.GetByNumber(r.Context(), number)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.authorize(r.Context(), pol.OwnerNPN); err != nil {
		s.writeServiceError(w, err)
		return
	}

	records, err := s.notes.History(r.Context(), number)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := historyResponse{PolicyNumber: number, TakeActions: make([]recordResponse, 0, len(records))}
	for _, rec := range records {
		out.TakeActions = append(out.TakeActions, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDownline(w http.ResponseWriter, r *http.Request) {
	npn := strings.TrimSpace(chi.URLParam(r, "npn"))
	if npn == "" {
		writeError(w, http.StatusBadRequest, "npn is required")
		return
	}
	if _, err := s.agents.Get(r.Context(), npn); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.authorize(r.Context(), npn); err != nil {
		s.writeServiceError(w, err)
		return
	}
	set := s.resolver.Resolve(r.Context(), npn)
	writeJSON(w, http.StatusOK, downlineResponse{
		NPN:      npn,
		Downline: set.Slice(),
		Total:    set.Len(),
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.resolver.Clear(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func filterFromQuery(r *http.Request) (policy.Filter, error) {
	q := r.URL.Query()
	f := policy.Filter{
		NPN:          strings.TrimSpace(q.Get("npn")),
		Carrier:      q.Get("carrier"),
		StartDate:    q.Get("startDate"),
		EndDate:      q.Get("endDate"),
		Search:       q.Get("search"),
		Status:       q.Get("status"),
		ActionStatus: q.Get("actionStatus"),
		Bob:          q.Get("bob"),
	}
	var err error
	if f.Page, err = queryInt(q.Get("page")); err != nil {
		return policy.Filter{}, fmt.Errorf("%w: page: %v", policy.ErrInvalidFilter, err)
	}
	if f.Limit, err = queryInt(q.Get("limit")); err != nil {
		return policy.Filter{}, fmt.Errorf("%w: limit: %v", policy.ErrInvalidFilter, err)
	}
	if v := q.Get("selfOnly"); v != "" {
		if f.SelfOnly, err = strconv.ParseBool(v); err != nil {
			return policy.Filter{}, fmt.Errorf("%w: selfOnly: %v", policy.ErrInvalidFilter, err)
		}
	}
	return f, nil
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, policy.ErrInvalidFilter),
		errors.Is(err, policy.ErrInvalidStatus),
		errors.Is(err, takeaction.ErrInvalidNote):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, policy.ErrNotFound),
		errors.Is(err, agent.ErrNotFound),
		errors.Is(err, takeaction.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		s.logger().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
