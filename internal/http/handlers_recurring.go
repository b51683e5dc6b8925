package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"famfinance/internal/core"
	"famfinance/internal/services"
)

type recurringRequest struct {
	CategoryID   *int64          `json:"category_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
	Frequency    core.Frequency  `json:"frequency"`
	NextDueDate  core.Date       `json:"next_due_date"`
	IsAutomatic  bool            `json:"is_automatic"`
}

type recurringPatchRequest struct {
	CategoryID   *int64           `json:"category_id"`
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Amount       *decimal.Decimal `json:"amount"`
	CurrencyCode *string          `json:"currency_code"`
	Frequency    *core.Frequency  `json:"frequency"`
	NextDueDate  *core.Date       `json:"next_due_date"`
	IsAutomatic  *bool            `json:"is_automatic"`
	IsActive     *bool            `json:"is_active"`
}

type executeRequest struct {
	Description   string    `json:"description"`
	ExecutionDate core.Date `json:"execution_date"`
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
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
	items, err := s.deps.Recurring.List(r.Context(), id.FamilyID, includeInactive)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req recurringRequest
	if !readJSON(w, r, &req) {
		return
	}
	re, err := s.deps.Recurring.Create(r.Context(), id.FamilyID, services.RecurringInput{
		CategoryID:   req.CategoryID,
		Name:         sanitizeInput(req.Name),
		Description:  sanitizeInput(req.Description),
		Amount:       req.Amount,
		CurrencyCode: req.CurrencyCode,
		Frequency:    req.Frequency,
		NextDueDate:  req.NextDueDate,
		IsAutomatic:  req.IsAutomatic,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, re)
}

func (s *Server) handleDueRecurring(w http.ResponseWriter, r *http.Request) {
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
	items, err := s.deps.Recurring.Due(r.Context(), id.FamilyID, asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (s *Server) handleAutoExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Recurring.AutoExecuteDue(r.Context(), id.FamilyID, id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleConvertOverdue(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Recurring.ConvertOverdueToDebts(r.Context(), id.FamilyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetRecurring(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	re, err := s.deps.Recurring.Get(r.Context(), id.FamilyID, pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, re)
}

func (s *Server) handleUpdateRecurring(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req recurringPatchRequest
	if !readJSON(w, r, &req) {
		return
	}
	re, err := s.deps.Recurring.Update(r.Context(), id.FamilyID, pathID(r), services.RecurringPatch{
		CategoryID:   req.CategoryID,
		Name:         sanitizePtr(req.Name),
		Description:  sanitizePtr(req.Description),
		Amount:       req.Amount,
		CurrencyCode: req.CurrencyCode,
		Frequency:    req.Frequency,
		NextDueDate:  req.NextDueDate,
		IsAutomatic:  req.IsAutomatic,
		IsActive:     req.IsActive,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, re)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := s.deps.Recurring.Delete(r.Context(), id.FamilyID, pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().NoContent().Write(w)
}

// handleExecuteRecurring accepts an empty body: today and the default
// description.
func (s *Server) handleExecuteRecurring(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req executeRequest
	if !readOptionalJSON(w, r, &req) {
		return
	}
	res, err := s.deps.Recurring.Execute(r.Context(), id.FamilyID, pathID(r), id.UserID,
		req.ExecutionDate, sanitizeInput(req.Description))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
