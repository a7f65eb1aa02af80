package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/voxgate/voxgate/internal/api/middleware"
	"github.com/voxgate/voxgate/internal/database"
	"github.com/voxgate/voxgate/internal/database/models"
)

// credentialsRequest is the JSON body for setup and login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleSetup creates the first admin account. It only works while no admin
// user exists yet.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if errMsg := validateRequiredStringLen("username", req.Username, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if len(req.Password) < minPasswordLen || len(req.Password) > maxPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be 8-256 characters")
		return
	}

	count, err := s.adminUsers.Count(r.Context())
	if err != nil {
		slog.Error("setup: failed to count admin users", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if count > 0 {
		writeError(w, http.StatusConflict, "setup already completed")
		return
	}

	hash, err := database.HashPassword(req.Password)
	if err != nil {
		slog.Error("setup: failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user := &models.AdminUser{Username: req.Username, PasswordHash: hash}
	if err := s.adminUsers.Create(r.Context(), user); err != nil {
		slog.Error("setup: failed to create admin user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("admin user created", "username", user.Username)

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
	})
}

// handleLogin verifies credentials and issues a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	user, err := s.adminUsers.GetByUsername(r.Context(), req.Username)
	if err != nil {
		slog.Error("login: failed to query admin user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ok, err := database.CheckPassword(req.Password, user.PasswordHash)
	if err != nil {
		slog.Error("login: failed to verify password", "error", err, "username", req.Username)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		slog.Warn("login rejected", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := middleware.GenerateAdminToken(s.jwtSecret, user.ID, user.Username)
	if err != nil {
		slog.Error("login: failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("admin logged in", "username", user.Username)

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}
