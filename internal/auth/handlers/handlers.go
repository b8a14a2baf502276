// Package handlers provides HTTP handlers for authentication and user
// administration.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/auth"
)

// Handler handles auth HTTP requests.
type Handler struct {
	users    *auth.UserRepository
	tokens   *auth.TokenService
	registry *auth.SessionRegistry
	log      zerolog.Logger
}

// NewHandler creates a new auth handler.
func NewHandler(users *auth.UserRepository, tokens *auth.TokenService, registry *auth.SessionRegistry, log zerolog.Logger) *Handler {
	return &Handler{
		users:    users,
		tokens:   tokens,
		registry: registry,
		log:      log.With().Str("handler", "auth").Logger(),
	}
}

// HandleLogin authenticates a user and issues a session token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "name and password are required")
		return
	}

	user, err := h.users.Authenticate(req.Name, req.Password)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if user == nil {
		h.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sessionID := uuid.New().String()
	token, err := h.tokens.Generate(user.ID, user.Name, user.Role, sessionID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.registry.Register(sessionID, user.Name, user.Role)
	h.log.Info().Str("user", user.Name).Msg("User logged in")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"session_id": sessionID,
		"user": map[string]interface{}{
			"id":   user.ID,
			"name": user.Name,
			"role": user.Role,
		},
	})
}

// HandleLogout drops the caller's session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "no session")
		return
	}
	h.registry.Unregister(claims.SessionID)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "logged-out"})
}

// HandleMe returns the caller's session claims.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "no session")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    claims.UserID,
		"name":       claims.Name,
		"role":       claims.Role,
		"session_id": claims.SessionID,
	})
}

// HandleForceLogout kicks every terminal. Admin only.
func (h *Handler) HandleForceLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())

	var req struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Message == "" {
		req.Message = "Session terminated by administrator"
	}

	h.registry.ForceLogoutAll(claims.Name, req.Message)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "force-logout-sent"})
}

// HandleListUsers returns all users without password hashes.
func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		result = append(result, map[string]interface{}{
			"id":         u.ID,
			"name":       u.Name,
			"role":       u.Role,
			"phone":      u.Phone,
			"created_at": u.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleCreateUser adds a user. Admin only.
func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string  `json:"name"`
		Role     string  `json:"role"`
		Password string  `json:"password"`
		Phone    *string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "name and password are required")
		return
	}
	if req.Role == "" {
		req.Role = "cashier"
	}

	user, err := h.users.Create(req.Name, req.Role, req.Password, req.Phone)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":   user.ID,
		"name": user.Name,
		"role": user.Role,
	})
}

// HandleDeleteUser removes a user. Admin only.
func (h *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.users.Delete(id); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted"})
}

// HandleActiveUsers returns the currently signed-in user names.
func (h *Handler) HandleActiveUsers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_users": h.registry.ActiveUsers(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
