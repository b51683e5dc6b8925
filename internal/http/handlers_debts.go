package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"famfinance/internal/core"
	"famfinance/internal/services"
)

type debtRequest struct {
	Creditor          string           `json:"creditor"`
	Description       string           `json:"description"`
	DebtType          core.DebtType    `json:"debt_type"`
	TotalAmount       decimal.Decimal  `json:"total_amount"`
	CurrencyCode      string           `json:"currency_code"`
	ExchangeRateFixed decimal.Decimal  `json:"exchange_rate_fixed"`
	InterestRate      *decimal.Decimal `json:"interest_rate"`
	DueDate           core.Date        `json:"due_date"`
}

type debtPatchRequest struct {
	Creditor     *string          `json:"creditor"`
	Description  *string          `json:"description"`
	DebtType     *core.DebtType   `json:"debt_type"`
	InterestRate *decimal.Decimal `json:"interest_rate"`
	DueDate      *core.Date       `json:"due_date"`
	IsArchived   *bool            `json:"is_archived"`
}

type paymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate core.Date       `json:"payment_date"`
	Notes       string          `json:"notes"`
}

type adjustmentRequest struct {
	OriginalPaymentID string          `json:"original_payment_id"`
	AdjustmentAmount  decimal.Decimal `json:"adjustment_amount"`
	Notes             string          `json:"notes"`
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	p := NewQueryParser(r)
	includeArchived := p.Bool("include_archived", false)
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	debts, err := s.deps.Debts.List(r.Context(), id.FamilyID, includeArchived)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(debts)})
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req debtRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.ExchangeRateFixed.IsNegative() {
		writeError(w, r, core.ErrInvalidRate)
		return
	}
	d, err := s.deps.Debts.Create(r.Context(), id.FamilyID, services.DebtInput{
		Creditor:          sanitizeInput(req.Creditor),
		Description:       sanitizeInput(req.Description),
		DebtType:          req.DebtType,
		TotalAmount:       req.TotalAmount,
		CurrencyCode:      req.CurrencyCode,
		ExchangeRateFixed: req.ExchangeRateFixed,
		InterestRate:      req.InterestRate,
		DueDate:           req.DueDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleDebtSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	sum, err := s.deps.Debts.Summary(r.Context(), id.FamilyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleGetDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	d, err := s.deps.Debts.Get(r.Context(), id.FamilyID, pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpdateDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req debtPatchRequest
	if !readJSON(w, r, &req) {
		return
	}
	d, err := s.deps.Debts.Update(r.Context(), id.FamilyID, pathID(r), services.DebtPatch{
		Creditor:     sanitizePtr(req.Creditor),
		Description:  sanitizePtr(req.Description),
		DebtType:     req.DebtType,
		InterestRate: req.InterestRate,
		DueDate:      req.DueDate,
		IsArchived:   req.IsArchived,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := s.deps.Debts.Delete(r.Context(), id.FamilyID, pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().NoContent().Write(w)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	payments, err := s.deps.Debts.Payments(r.Context(), id.FamilyID, pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(payments)})
}

func (s *Server) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := s.deps.Debts.AddPayment(r.Context(), id.FamilyID, pathID(r), id.UserID,
		req.Amount, req.PaymentDate, sanitizeInput(req.Notes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req adjustmentRequest
	if !readJSON(w, r, &req) {
		return
	}
	p, err := s.deps.Debts.CreateAdjustment(r.Context(), id.FamilyID, pathID(r),
		sanitizeInput(req.OriginalPaymentID), req.AdjustmentAmount, sanitizeInput(req.Notes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
