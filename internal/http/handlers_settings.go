package http

import (
	"net/http"

	"famfinance/internal/core"
	"famfinance/internal/services"
)

type inviteRequest struct {
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  core.Role `json:"role"`
}

type familySettingsPatch struct {
	MonthCloseDay          *int    `json:"month_close_day"`
	DefaultCurrency        *string `json:"default_currency"`
	BudgetWarningThreshold *int    `json:"budget_warning_threshold"`
}

func (s *Server) handleFamilySettings(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	fs, err := s.deps.Settings.Family(r.Context(), id.FamilyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

// handleUpdateFamilySettings overlays the given keys on the current
// settings. The admin check happens in the service.
func (s *Server) handleUpdateFamilySettings(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req familySettingsPatch
	if !readJSON(w, r, &req) {
		return
	}
	current, err := s.deps.Settings.Family(r.Context(), id.FamilyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.MonthCloseDay != nil {
		current.MonthCloseDay = *req.MonthCloseDay
	}
	if req.DefaultCurrency != nil {
		current.DefaultCurrency = *req.DefaultCurrency
	}
	if req.BudgetWarningThreshold != nil {
		current.BudgetWarningThreshold = *req.BudgetWarningThreshold
	}
	updated, err := s.deps.Settings.UpdateFamily(r.Context(), id.FamilyID, id.Role, current)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleUserSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	us, err := s.deps.Settings.User(r.Context(), id.FamilyID, id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, us)
}

func (s *Server) handleUpdateUserSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.UserSettings
	if !readJSON(w, r, &req) {
		return
	}
	us, err := s.deps.Settings.UpdateUser(r.Context(), id.FamilyID, id.UserID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, us)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	members, err := s.deps.Settings.Members(r.Context(), id.FamilyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": members})
}

func (s *Server) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if !readJSON(w, r, &req) {
		return
	}
	inv, err := s.deps.Settings.InviteMember(r.Context(), id.FamilyID, id.Role, services.InviteInput{
		Email: req.Email,
		Name:  sanitizeInput(req.Name),
		Role:  req.Role,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := s.deps.Settings.RemoveMember(r.Context(), id.FamilyID, id.UserID, id.Role, pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().NoContent().Write(w)
}
