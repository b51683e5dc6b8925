package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"famfinance/internal/core"
	"famfinance/internal/services"
)

type budgetRequest struct {
	CategoryID     int64             `json:"category_id"`
	BudgetAmount   decimal.Decimal   `json:"budget_amount"`
	CurrencyCode   string            `json:"currency_code"`
	Period         core.BudgetPeriod `json:"period"`
	AlertThreshold *int              `json:"alert_threshold"`
}

type budgetPatchRequest struct {
	BudgetAmount   *decimal.Decimal   `json:"budget_amount"`
	CurrencyCode   *string            `json:"currency_code"`
	Period         *core.BudgetPeriod `json:"period"`
	AlertThreshold *int               `json:"alert_threshold"`
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	items, err := s.deps.Budgets.List(r.Context(), id.FamilyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req budgetRequest
	if !readJSON(w, r, &req) {
		return
	}
	b, err := s.deps.Budgets.Create(r.Context(), id.FamilyID, services.BudgetInput{
		CategoryID:     req.CategoryID,
		BudgetAmount:   req.BudgetAmount,
		CurrencyCode:   req.CurrencyCode,
		Period:         req.Period,
		AlertThreshold: req.AlertThreshold,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleAllBudgetStatuses(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	items, err := s.deps.Budgets.AllStatuses(r.Context(), id.FamilyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	b, err := s.deps.Budgets.Get(r.Context(), id.FamilyID, pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req budgetPatchRequest
	if !readJSON(w, r, &req) {
		return
	}
	b, err := s.deps.Budgets.Update(r.Context(), id.FamilyID, pathID(r), services.BudgetPatch{
		BudgetAmount:   req.BudgetAmount,
		CurrencyCode:   req.CurrencyCode,
		Period:         req.Period,
		AlertThreshold: req.AlertThreshold,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := s.deps.Budgets.Delete(r.Context(), id.FamilyID, pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().NoContent().Write(w)
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	p := NewQueryParser(r)
	asOf := p.Date("as_of")
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.deps.Budgets.Status(r.Context(), id.FamilyID, pathID(r), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
