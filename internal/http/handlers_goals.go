package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"famfinance/internal/core"
	"famfinance/internal/services"
)

type goalRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Icon         string          `json:"icon"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	CurrencyCode string          `json:"currency_code"`
	Deadline     core.Date       `json:"deadline"`
	GoalType     core.GoalType   `json:"goal_type"`
}

type goalPatchRequest struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Icon         *string          `json:"icon"`
	TargetAmount *decimal.Decimal `json:"target_amount"`
	Deadline     *core.Date       `json:"deadline"`
	GoalType     *core.GoalType   `json:"goal_type"`
	IsActive     *bool            `json:"is_active"`
}

type contributionRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	IsWithdrawal bool            `json:"is_withdrawal"`
	Notes        string          `json:"notes"`
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	p := NewQueryParser(r)
	includeInactive := p.Bool("include_inactive", false)
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	goals, err := s.deps.Goals.List(r.Context(), id.FamilyID, id.UserID, includeInactive)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(goals)})
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req goalRequest
	if !readJSON(w, r, &req) {
		return
	}
	g, err := s.deps.Goals.Create(r.Context(), id.FamilyID, id.UserID, services.GoalInput{
		Name:         sanitizeInput(req.Name),
		Description:  sanitizeInput(req.Description),
		Icon:         sanitizeInput(req.Icon),
		TargetAmount: req.TargetAmount,
		CurrencyCode: req.CurrencyCode,
		Deadline:     req.Deadline,
		GoalType:     req.GoalType,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleGoalSavings(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	sav, err := s.deps.Goals.Savings(r.Context(), id.FamilyID, id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sav)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	g, err := s.deps.Goals.Get(r.Context(), id.FamilyID, id.UserID, pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req goalPatchRequest
	if !readJSON(w, r, &req) {
		return
	}
	g, err := s.deps.Goals.Update(r.Context(), id.FamilyID, id.UserID, pathID(r), services.GoalPatch{
		Name:         sanitizePtr(req.Name),
		Description:  sanitizePtr(req.Description),
		Icon:         sanitizePtr(req.Icon),
		TargetAmount: req.TargetAmount,
		Deadline:     req.Deadline,
		GoalType:     req.GoalType,
		IsActive:     req.IsActive,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := s.deps.Goals.Delete(r.Context(), id.FamilyID, id.UserID, pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().NoContent().Write(w)
}

func (s *Server) handleListContributions(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	items, err := s.deps.Goals.Contributions(r.Context(), id.FamilyID, id.UserID, pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (s *Server) handleAddContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req contributionRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := s.deps.Goals.AddContribution(r.Context(), id.FamilyID, id.UserID, pathID(r),
		req.Amount, req.IsWithdrawal, sanitizeInput(req.Notes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
