package http

import (
	"net/http"

	"famfinance/internal/services"
)

type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	FamilyName string `json:"family_name"`
	FamilyID   string `json:"family_id"`
}

type profileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !readJSON(w, r, &req) {
		return
	}
	user, err := s.deps.Auth.Register(r.Context(), services.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		Name:       sanitizeInput(req.Name),
		FamilyName: sanitizeInput(req.FamilyName),
		FamilyID:   sanitizeInput(req.FamilyID),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	user, err := s.deps.Auth.Me(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		req.Name = &name
	}
	user, err := s.deps.Auth.UpdateProfile(r.Context(), id.UserID, services.ProfilePatch{Name: req.Name, Email: req.Email})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleRefresh trades a still-valid token for a fresh one.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Auth.Refresh(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
