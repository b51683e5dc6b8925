package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"famfinance/internal/attachments"
	"famfinance/internal/core"
	"famfinance/internal/log"
	"famfinance/internal/services"
	"famfinance/internal/storage"
)

type transactionRequest struct {
	CategoryID     *int64               `json:"category_id"`
	AmountOriginal decimal.Decimal      `json:"amount_original"`
	CurrencyCode   string               `json:"currency_code"`
	ExchangeRate   decimal.Decimal      `json:"exchange_rate"`
	TrxDate        timestamp            `json:"trx_date"`
	Type           core.TransactionType `json:"type"`
	Description    string               `json:"description"`
	IsInvoiced     bool                 `json:"is_invoiced"`
	SyncID         string               `json:"sync_id"`
}

type transactionPatchRequest struct {
	CategoryID     *int64                `json:"category_id"`
	AmountOriginal *decimal.Decimal      `json:"amount_original"`
	CurrencyCode   *string               `json:"currency_code"`
	ExchangeRate   *decimal.Decimal      `json:"exchange_rate"`
	TrxDate        *timestamp            `json:"trx_date"`
	Type           *core.TransactionType `json:"type"`
	Description    *string               `json:"description"`
	IsInvoiced     *bool                 `json:"is_invoiced"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req transactionRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.ExchangeRate.IsNegative() {
		writeError(w, r, core.ErrInvalidRate)
		return
	}
	t, err := s.deps.Ledger.Create(r.Context(), id.FamilyID, id.UserID, services.TransactionInput{
		CategoryID:     req.CategoryID,
		AmountOriginal: req.AmountOriginal,
		CurrencyCode:   req.CurrencyCode,
		ExchangeRate:   req.ExchangeRate,
		TrxDate:        req.TrxDate.Time,
		Type:           req.Type,
		Description:    sanitizeInput(req.Description),
		IsInvoiced:     req.IsInvoiced,
		SyncID:         req.SyncID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).LogTransactionRecorded(r.Context(),
		t.FamilyID, id.UserID, t.ID, string(t.Type),
		t.AmountOriginal.String(), t.CurrencyCode, t.AmountBase.String())
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	p := NewQueryParser(r)
	page, size := p.Pagination(services.DefaultPageSize, services.MaxPageSize)
	f := storage.TransactionFilter{
		Type:         core.TransactionType(p.String("type")),
		CategoryID:   p.Int64Ptr("category_id"),
		CurrencyCode: p.String("currency_code"),
		UserID:       p.String("user_id"),
		DateFrom:     p.TimePtr("date_from", false),
		DateTo:       p.TimePtr("date_to", true),
		MinAmount:    p.DecimalPtr("min_amount"),
		MaxAmount:    p.DecimalPtr("max_amount"),
		Search:       p.String("search"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Type != "" && !f.Type.Valid() {
		writeError(w, r, core.ErrInvalidType)
		return
	}

	res, err := s.deps.Ledger.List(r.Context(), id.FamilyID, f, page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	t, err := s.deps.Ledger.Get(r.Context(), id.FamilyID, pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req transactionPatchRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Description != nil {
		d := sanitizeInput(*req.Description)
		req.Description = &d
	}
	t, err := s.deps.Ledger.Update(r.Context(), id.FamilyID, pathID(r), services.TransactionPatch{
		CategoryID:     req.CategoryID,
		AmountOriginal: req.AmountOriginal,
		CurrencyCode:   req.CurrencyCode,
		ExchangeRate:   req.ExchangeRate,
		TrxDate:        req.TrxDate.ptr(),
		Type:           req.Type,
		Description:    req.Description,
		IsInvoiced:     req.IsInvoiced,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := s.deps.Ledger.Delete(r.Context(), id.FamilyID, pathID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().NoContent().Write(w)
}

// handleUploadAttachment stores the multipart "file" part and records its
// urls on the transaction.
func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if s.deps.Attachments == nil {
		writeError(w, r, errNotConfigured("attachment storage"))
		return
	}
	txID := pathID(r)
	if _, err := s.deps.Ledger.Get(r.Context(), id.FamilyID, txID); err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, attachments.MaxSize+(1<<20))
	file, _, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ErrorResponse(http.StatusRequestEntityTooLarge, CodeTooLarge, attachments.ErrTooLarge.Message).Write(w)
			return
		}
		BadRequestError("multipart form with a file part is required").Write(w)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, attachments.MaxSize+1))
	if err != nil {
		BadRequestError("failed to read uploaded file").Write(w)
		return
	}
	if len(data) > attachments.MaxSize {
		ErrorResponse(http.StatusRequestEntityTooLarge, CodeTooLarge, attachments.ErrTooLarge.Message).Write(w)
		return
	}

	stored, err := s.deps.Attachments.Save(r.Context(), id.FamilyID, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.deps.Ledger.SetAttachment(r.Context(), id.FamilyID, txID, stored.URL, stored.ThumbnailURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	p := NewQueryParser(r)
	from, to := p.TimePtr("date_from", false), p.TimePtr("date_to", true)
	categoryID := p.Int64Ptr("category_id")
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.deps.Ledger.Summary(r.Context(), id.FamilyID, from, to, categoryID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleComparison defaults to the current month to date.
func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	p := NewQueryParser(r)
	from, to := p.TimePtr("date_from", false), p.TimePtr("date_to", true)
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	now := time.Now().UTC()
	if to == nil {
		to = &now
	}
	if from == nil {
		start := core.DateOf(*to).FirstOfMonth().Time
		from = &start
	}
	c, err := s.deps.Ledger.SummaryWithComparison(r.Context(), id.FamilyID, *from, *to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleMemberSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	p := NewQueryParser(r)
	from, to := p.TimePtr("date_from", false), p.TimePtr("date_to", true)
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	members, err := s.deps.Ledger.MemberSummary(r.Context(), id.FamilyID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	d, err := s.deps.Ledger.Dashboard(r.Context(), id.FamilyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
