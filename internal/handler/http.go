package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/minigame-engine/internal/domain"
	"github.com/minigame-engine/internal/service"
	"github.com/minigame-engine/internal/websocket"
)

// Handler provides HTTP handlers for the mini-game API
type Handler struct {
	games      *service.MiniGameService
	challenges *service.ChallengeService
	activities *service.ActivityService
	hub        *websocket.Hub
	logger     *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	games *service.MiniGameService,
	challenges *service.ChallengeService,
	activities *service.ActivityService,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		games:      games,
		challenges: challenges,
		activities: activities,
		hub:        hub,
		logger:     logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", h.RegisterUser)

		// Activity ingestion
		r.Post("/activities", h.SubmitActivity)
		r.Post("/activities/batch", h.SubmitActivityBatch)

		// Challenge operations
		r.Route("/challenges", func(r chi.Router) {
			r.Post("/", h.CreateChallenge)

			r.Route("/{challengeID}", func(r chi.Router) {
				r.Get("/", h.GetChallenge)
				r.Post("/join", h.JoinChallenge)
				r.Post("/admins", h.AddChallengeAdmin)
				r.Get("/leaderboard", h.GetLeaderboard)
				r.Get("/standings/{userID}", h.GetMemberStanding)

				r.Get("/games", h.ListGames)
				r.Post("/games", h.CreateGame)
			})
		})

		// Mini-game operations
		r.Route("/games/{gameID}", func(r chi.Router) {
			r.Get("/", h.GetGame)
			r.Patch("/", h.UpdateGame)
			r.Delete("/", h.DeleteGame)
			r.Post("/start", h.StartGame)
			r.Post("/end", h.EndGame)
			r.Get("/participants", h.GetParticipants)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-User-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// actorID returns the calling user's ID, as asserted by the gateway
func actorID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeCreated writes a successful creation response
func (h *Handler) writeCreated(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error to its HTTP status
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrUnknownGameType):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeError(w, http.StatusForbidden, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsConflictError(err):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrLedgerUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, err)
	default:
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// RegisterUser creates or refreshes a platform member
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var user domain.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	created, err := h.challenges.RegisterUser(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, err, "failed to register user")
		return
	}

	h.writeCreated(w, created)
}

// CreateChallenge creates a new challenge owned by the caller
func (h *Handler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	var req domain.CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	challenge, err := h.challenges.Create(r.Context(), actor, req)
	if err != nil {
		h.writeServiceError(w, err, "failed to create challenge")
		return
	}

	h.writeCreated(w, challenge)
}

// GetChallenge returns a challenge by ID
func (h *Handler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	challengeID := chi.URLParam(r, "challengeID")
	if challengeID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	challenge, err := h.challenges.Get(r.Context(), challengeID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get challenge")
		return
	}

	h.writeSuccess(w, challenge)
}

// JoinChallenge adds a user to the challenge roster. The body may name a
// user; otherwise the caller joins.
func (h *Handler) JoinChallenge(w http.ResponseWriter, r *http.Request) {
	challengeID := chi.URLParam(r, "challengeID")
	if challengeID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
	}
	if req.UserID == "" {
		req.UserID = actorID(r)
	}

	if err := h.challenges.Join(r.Context(), challengeID, req.UserID); err != nil {
		h.writeServiceError(w, err, "failed to join challenge")
		return
	}

	h.writeSuccess(w, map[string]string{"status": "joined"})
}

// AddChallengeAdmin grants admin rights to a user
func (h *Handler) AddChallengeAdmin(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	challengeID := chi.URLParam(r, "challengeID")
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.challenges.AddAdmin(r.Context(), actor, challengeID, req.UserID); err != nil {
		h.writeServiceError(w, err, "failed to add challenge admin")
		return
	}

	h.writeSuccess(w, map[string]string{"status": "granted"})
}

// GetLeaderboard returns the challenge's live standings
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	challengeID := chi.URLParam(r, "challengeID")
	if challengeID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, total, err := h.challenges.Leaderboard(r.Context(), challengeID, limit)
	if err != nil {
		h.writeServiceError(w, err, "failed to get leaderboard")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"standings":     entries,
		"total_members": total,
	})
}

// GetMemberStanding returns one member's live rank and total
func (h *Handler) GetMemberStanding(w http.ResponseWriter, r *http.Request) {
	challengeID := chi.URLParam(r, "challengeID")
	userID := chi.URLParam(r, "userID")
	if challengeID == "" || userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	standing, err := h.challenges.MemberStanding(r.Context(), challengeID, userID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get member standing")
		return
	}

	h.writeSuccess(w, standing)
}

// ListGames returns all mini-games attached to a challenge
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	challengeID := chi.URLParam(r, "challengeID")
	if challengeID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	games, err := h.games.ListByChallenge(r.Context(), challengeID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list games")
		return
	}

	h.writeSuccess(w, games)
}

// CreateGame creates a new draft mini-game
func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	challengeID := chi.URLParam(r, "challengeID")
	var req domain.CreateMiniGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	game, err := h.games.Create(r.Context(), actor, challengeID, req)
	if err != nil {
		h.writeServiceError(w, err, "failed to create game")
		return
	}

	h.writeCreated(w, game)
}

// GetGame returns a mini-game by ID
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	if gameID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	game, err := h.games.Get(r.Context(), gameID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get game")
		return
	}

	h.writeSuccess(w, game)
}

// UpdateGame patches a draft mini-game
func (h *Handler) UpdateGame(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	gameID := chi.URLParam(r, "gameID")
	var req domain.UpdateMiniGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	game, err := h.games.Update(r.Context(), actor, gameID, req)
	if err != nil {
		h.writeServiceError(w, err, "failed to update game")
		return
	}

	h.writeSuccess(w, game)
}

// DeleteGame removes a draft mini-game
func (h *Handler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	gameID := chi.URLParam(r, "gameID")
	if err := h.games.Delete(r.Context(), actor, gameID); err != nil {
		h.writeServiceError(w, err, "failed to delete game")
		return
	}

	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// StartGame activates a draft mini-game against the current standings
func (h *Handler) StartGame(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	gameID := chi.URLParam(r, "gameID")
	game, err := h.games.Start(r.Context(), actor, gameID)
	if err != nil {
		h.writeServiceError(w, err, "failed to start game")
		return
	}

	h.writeSuccess(w, game)
}

// EndGame settles a mini-game and awards bonuses
func (h *Handler) EndGame(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	gameID := chi.URLParam(r, "gameID")
	game, err := h.games.End(r.Context(), actor, gameID)
	if err != nil {
		h.writeServiceError(w, err, "failed to end game")
		return
	}

	h.writeSuccess(w, game)
}

// GetParticipants returns a mini-game's participants and outcomes
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	if gameID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	participants, err := h.games.Participants(r.Context(), gameID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get participants")
		return
	}

	h.writeSuccess(w, participants)
}

// SubmitActivity records a single activity in the points ledger
func (h *Handler) SubmitActivity(w http.ResponseWriter, r *http.Request) {
	var sub domain.ActivitySubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	activity, err := h.activities.Submit(r.Context(), sub)
	if err != nil {
		h.writeServiceError(w, err, "failed to submit activity")
		return
	}

	h.writeCreated(w, activity)
}

// SubmitActivityBatch records multiple activities
func (h *Handler) SubmitActivityBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Activities []domain.ActivitySubmission `json:"activities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if len(req.Activities) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.activities.SubmitBatch(r.Context(), req.Activities); err != nil {
		h.logger.Error("failed to submit activity batch", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"status":   "accepted",
		"received": len(req.Activities),
	})
}
