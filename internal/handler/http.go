package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/attendance-mainframe/internal/domain"
	"github.com/attendance-mainframe/internal/service"
	"github.com/attendance-mainframe/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler provides HTTP handlers for the attendance API
type Handler struct {
	service *service.AttendanceService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.AttendanceService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
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

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/profiles", func(r chi.Router) {
			r.Post("/", h.CreateProfile)
			r.Get("/promotable", h.GetPromotable)
			r.Get("/{userID}", h.GetProfile)
			r.Post("/{userID}/increment", h.IncrementEvents)
		})

		r.Route("/events", func(r chi.Router) {
			r.Put("/", h.SubmitEvent)
			r.Get("/info/{eventID}", h.GetEvent)
			r.Get("/hosted/{userID}", h.GetHostedEvents)
			r.Get("/attended/{userID}", h.GetAttendedEvents)
			r.Get("/num-attended/{userID}", h.GetAttendedCount)
		})

		r.Get("/marks/top", h.GetTopMarks)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
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

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// userIDParam parses the userID URL parameter
func userIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidRequest
	}
	return id, nil
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

// SubmitEvent records a new event and logs attendance for everyone on it
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var sub domain.EventSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	event, err := h.service.LogEvent(r.Context(), sub)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to log event", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    event,
	})
}

// GetProfile returns a member's profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get profile", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, profile)
}

// CreateProfile explicitly creates a profile
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	profile, err := h.service.CreateProfile(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to create profile", "user_id", req.UserID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    profile,
	})
}

// IncrementEvents adjusts a member's weekly attendance counter
func (h *Handler) IncrementEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var body struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	profile, err := h.service.IncrementEvents(r.Context(), userID, body.Delta)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to increment events", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, profile)
}

// GetPromotable returns members whose marks hit their rank threshold
func (h *Handler) GetPromotable(w http.ResponseWriter, r *http.Request) {
	promotable, err := h.service.ListPromotable(r.Context())
	if err != nil {
		h.logger.Error("failed to list promotable members", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, promotable)
}

// GetEvent returns an event by id
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := userIDParam(r, "eventID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	event, err := h.service.GetEvent(r.Context(), eventID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get event", "event_id", eventID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, event)
}

// GetHostedEvents returns the events a member hosted
func (h *Handler) GetHostedEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	events, err := h.service.GetHostedEvents(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get hosted events", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, events)
}

// GetAttendedEvents returns the ids of events a member attended
func (h *Handler) GetAttendedEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	ids, err := h.service.GetAttendedEventIDs(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get attended events", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, ids)
}

// GetAttendedCount returns how many events a member attended
func (h *Handler) GetAttendedCount(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r, "userID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	count, err := h.service.GetAttendedCount(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count attended events", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, count)
}

// GetTopMarks returns the top members by lifetime marks
func (h *Handler) GetTopMarks(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.service.TopMarks(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to get top marks", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}
