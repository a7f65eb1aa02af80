package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voxgate/voxgate/internal/database/models"
)

// tenantRequest is the JSON request body for creating/updating a tenant.
type tenantRequest struct {
	Name            string `json:"name"`
	DialedNumber    string `json:"dialed_number"`
	SystemPrompt    string `json:"system_prompt"`
	EscalationPhone string `json:"escalation_phone"`
	OpeningHours    string `json:"opening_hours"`
	Address         string `json:"address"`
}

// tenantResponse is the JSON response for a single tenant.
type tenantResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	DialedNumber    string `json:"dialed_number"`
	SystemPrompt    string `json:"system_prompt"`
	EscalationPhone string `json:"escalation_phone"`
	OpeningHours    string `json:"opening_hours"`
	Address         string `json:"address"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toTenantResponse(t *models.Tenant) tenantResponse {
	return tenantResponse{
		ID:              t.ID,
		Name:            t.Name,
		DialedNumber:    t.DialedNumber,
		SystemPrompt:    t.SystemPrompt,
		EscalationPhone: t.EscalationPhone,
		OpeningHours:    t.OpeningHours,
		Address:         t.Address,
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       t.UpdatedAt.Format(time.RFC3339),
	}
}

// handleListTenants returns all tenants.
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.tenants.List(r.Context())
	if err != nil {
		slog.Error("list tenants: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]tenantResponse, len(tenants))
	for i := range tenants {
		items[i] = toTenantResponse(&tenants[i])
	}

	writeJSON(w, http.StatusOK, items)
}

// handleCreateTenant creates a new tenant.
func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if errMsg := validateTenantRequest(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	existing, err := s.tenants.GetByDialedNumber(r.Context(), req.DialedNumber)
	if err != nil {
		slog.Error("create tenant: failed to check dialed number", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "dialed number already assigned")
		return
	}

	tenant := &models.Tenant{
		Name:            req.Name,
		DialedNumber:    req.DialedNumber,
		SystemPrompt:    req.SystemPrompt,
		EscalationPhone: req.EscalationPhone,
		OpeningHours:    req.OpeningHours,
		Address:         req.Address,
	}

	if err := s.tenants.Create(r.Context(), tenant); err != nil {
		slog.Error("create tenant: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Re-fetch to get timestamps populated by the database.
	created, err := s.tenants.GetByID(r.Context(), tenant.ID)
	if err != nil || created == nil {
		slog.Error("create tenant: failed to re-fetch", "error", err, "tenant_id", tenant.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("tenant created", "tenant_id", created.ID, "dialed_number", created.DialedNumber)

	writeJSON(w, http.StatusCreated, toTenantResponse(created))
}

// handleGetTenant returns a single tenant by ID.
func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	id, err := parseTenantID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	tenant, err := s.tenants.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get tenant: failed to query", "error", err, "tenant_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}

	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

// handleUpdateTenant updates an existing tenant.
func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	id, err := parseTenantID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	existing, err := s.tenants.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update tenant: failed to query", "error", err, "tenant_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}

	var req tenantRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if errMsg := validateTenantRequest(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.DialedNumber != existing.DialedNumber {
		other, err := s.tenants.GetByDialedNumber(r.Context(), req.DialedNumber)
		if err != nil {
			slog.Error("update tenant: failed to check dialed number", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if other != nil {
			writeError(w, http.StatusConflict, "dialed number already assigned")
			return
		}
	}

	existing.Name = req.Name
	existing.DialedNumber = req.DialedNumber
	existing.SystemPrompt = req.SystemPrompt
	existing.EscalationPhone = req.EscalationPhone
	existing.OpeningHours = req.OpeningHours
	existing.Address = req.Address

	if err := s.tenants.Update(r.Context(), existing); err != nil {
		slog.Error("update tenant: failed to update", "error", err, "tenant_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	updated, err := s.tenants.GetByID(r.Context(), id)
	if err != nil || updated == nil {
		slog.Error("update tenant: failed to re-fetch", "error", err, "tenant_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("tenant updated", "tenant_id", id, "dialed_number", updated.DialedNumber)

	writeJSON(w, http.StatusOK, toTenantResponse(updated))
}

// handleDeleteTenant removes a tenant by ID.
func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	id, err := parseTenantID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	existing, err := s.tenants.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("delete tenant: failed to query", "error", err, "tenant_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}

	if err := s.tenants.Delete(r.Context(), id); err != nil {
		slog.Error("delete tenant: failed to delete", "error", err, "tenant_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("tenant deleted", "tenant_id", id, "dialed_number", existing.DialedNumber)

	w.WriteHeader(http.StatusNoContent)
}

// parseTenantID extracts and parses the tenant ID from the URL parameter.
func parseTenantID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// validateTenantRequest checks required fields for a tenant create/update.
func validateTenantRequest(req tenantRequest) string {
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validatePhoneNumber("dialed_number", req.DialedNumber); errMsg != "" {
		return errMsg
	}
	if errMsg := validateStringLen("system_prompt", req.SystemPrompt, maxPromptLen); errMsg != "" {
		return errMsg
	}
	if req.EscalationPhone != "" && !phoneRe.MatchString(req.EscalationPhone) {
		return "escalation_phone must be digits with an optional leading +"
	}
	if errMsg := validateStringLen("opening_hours", req.OpeningHours, maxShortStringLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateStringLen("address", req.Address, maxShortStringLen); errMsg != "" {
		return errMsg
	}
	return ""
}
