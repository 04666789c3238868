package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"tutorboard/internal/auth"
	"tutorboard/internal/pricing"
	"tutorboard/internal/store"
	"tutorboard/pkg/types"
)

// Store is the slice of the persistence layer the REST surface depends on.
// Satisfied by *store.Store.
type Store interface {
	HealthCheck(ctx context.Context) error
	IsContactUnlocked(ctx context.Context, userA, userB string) (bool, error)
	UnlockContact(ctx context.Context, unlockerID, targetID string) (*types.ContactUnlock, bool, error)
	Balance(ctx context.Context, userID string) (int, error)
	GetJob(ctx context.Context, jobID string) (*types.Job, error)
	HasJobUnlock(ctx context.Context, jobID, tutorID string) (bool, error)
	UnlockJob(ctx context.Context, jobID, tutorID string, points int) (*types.JobUnlock, error)
}

// Registry exposes connection stats for the health endpoint.
type Registry interface {
	Stats() map[string]int
}

// Server is the REST surface for unlock purchases, previews and the ledger.
// Chat traffic does not pass through here; it lives on the websocket.
type Server struct {
	store    Store
	pricing  *pricing.Provider
	registry Registry
	resolver auth.Resolver
	router   *mux.Router
}

func NewServer(st Store, pr *pricing.Provider, reg Registry, resolver auth.Resolver) *Server {
	s := &Server{
		store:    st,
		pricing:  pr,
		registry: reg,
		resolver: resolver,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.corsMiddleware, s.jsonMiddleware, s.authMiddleware)

	api.HandleFunc("/contacts/unlock", s.unlockContact).Methods(http.MethodPost)
	api.HandleFunc("/contacts/status", s.contactStatus).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/unlock", s.unlockJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/preview", s.previewJob).Methods(http.MethodGet)
	api.HandleFunc("/credits/balance", s.creditBalance).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type contextKey string

const identityKey contextKey = "identity"

// authMiddleware resolves the Bearer token and stores the identity on the
// request context. Every /api route requires it.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			token = ""
		}

		identity, err := s.resolver.Resolve(token)
		if err != nil {
			s.sendError(w, "Invalid or missing token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFrom(r *http.Request) *auth.Identity {
	identity, _ := r.Context().Value(identityKey).(*auth.Identity)
	return identity
}

type unlockContactRequest struct {
	TargetID string `json:"target_id"`
}

// unlockContact opens the messaging channel to the target for one point.
// Repeating the call once the channel is open in either direction succeeds
// without charging again.
func (s *Server) unlockContact(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	var req unlockContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetID == "" {
		s.sendError(w, "target_id is required", http.StatusBadRequest)
		return
	}
	if req.TargetID == identity.UserID {
		s.sendError(w, "You cannot unlock yourself", http.StatusBadRequest)
		return
	}

	unlock, created, err := s.store.UnlockContact(r.Context(), identity.UserID, req.TargetID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	if !created {
		s.sendJSON(w, map[string]string{"detail": "Contact already unlocked"}, http.StatusOK)
		return
	}
	s.sendJSON(w, unlock, http.StatusCreated)
}

// contactStatus reports whether messaging is open between the caller and
// the target, in either direction.
func (s *Server) contactStatus(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	targetID := r.URL.Query().Get("target_id")
	if targetID == "" {
		s.sendError(w, "target_id is required", http.StatusBadRequest)
		return
	}

	unlocked, err := s.store.IsContactUnlocked(r.Context(), identity.UserID, targetID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.sendJSON(w, map[string]bool{"unlocked": unlocked}, http.StatusOK)
}

// unlockJob quotes the job at its current price and purchases it. The quote
// happens before the purchase transaction, so two tutors racing for the same
// job may both pay the pre-race price.
func (s *Server) unlockJob(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	jobID := mux.Vars(r)["id"]

	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	points, err := s.pricing.QuoteJob(r.Context(), job, time.Now().UTC())
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	unlock, err := s.store.UnlockJob(r.Context(), jobID, identity.UserID, points)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.sendJSON(w, unlock, http.StatusCreated)
}

type previewResponse struct {
	Unlocked     bool `json:"unlocked"`
	PointsNeeded int  `json:"points_needed"`
}

// previewJob returns the current price without purchasing. An already
// unlocked job previews at zero.
func (s *Server) previewJob(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	jobID := mux.Vars(r)["id"]

	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	unlocked, err := s.store.HasJobUnlock(r.Context(), jobID, identity.UserID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}

	resp := previewResponse{Unlocked: unlocked}
	if !unlocked {
		points, err := s.pricing.QuoteJob(r.Context(), job, time.Now().UTC())
		if err != nil {
			s.sendStoreError(w, err)
			return
		}
		resp.PointsNeeded = points
	}
	s.sendJSON(w, resp, http.StatusOK)
}

func (s *Server) creditBalance(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	balance, err := s.store.Balance(r.Context(), identity.UserID)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	s.sendJSON(w, map[string]int{"balance": balance}, http.StatusOK)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := "healthy"
	code := http.StatusOK
	if err := s.store.HealthCheck(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, map[string]interface{}{
		"status":      status,
		"connections": s.registry.Stats(),
		"timestamp":   time.Now().UTC(),
	}, code)
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}, code int) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, detail string, code int) {
	s.sendJSON(w, map[string]string{"detail": detail}, code)
}

// sendStoreError maps the storage taxonomy onto HTTP statuses.
func (s *Server) sendStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.sendError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, store.ErrInsufficientCredits):
		s.sendError(w, "Insufficient points", http.StatusPaymentRequired)
	case errors.Is(err, store.ErrAlreadyUnlocked):
		s.sendError(w, "Job already unlocked", http.StatusBadRequest)
	case errors.Is(err, store.ErrSelfUnlock):
		s.sendError(w, "You cannot unlock yourself", http.StatusBadRequest)
	case errors.Is(err, store.ErrConflict):
		s.sendError(w, "Temporary conflict, please retry", http.StatusConflict)
	default:
		log.Printf("storage error: %v", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
	}
}
