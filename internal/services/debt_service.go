package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"famfinance/internal/amqp"
	"famfinance/internal/core"
	"famfinance/internal/storage"
)

const debtPaymentsLimit = 100

// DebtInput carries the fields of a new debt.
type DebtInput struct {
	Creditor     string
	Description  string
	DebtType     core.DebtType
	TotalAmount  decimal.Decimal
	CurrencyCode string
	// ExchangeRateFixed zero selects the current rate to the base currency.
	ExchangeRateFixed decimal.Decimal
	InterestRate      *decimal.Decimal
	DueDate           core.Date
}

type DebtPatch struct {
	Creditor     *string
	Description  *string
	DebtType     *core.DebtType
	InterestRate *decimal.Decimal
	DueDate      *core.Date
	IsArchived   *bool
}

// DebtDetail is a debt with the sum of its payment rows.
type DebtDetail struct {
	core.Debt
	TotalPaid decimal.Decimal `json:"total_paid"`
}

// PaymentResult is the outcome of AddPayment.
type PaymentResult struct {
	Payment     core.DebtPayment  `json:"payment"`
	Debt        core.Debt         `json:"debt"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
}

type DebtService struct {
	store Store
	rates RateSource
	opts  options
}

func NewDebtService(store Store, rates RateSource, opts ...Option) *DebtService {
	return &DebtService{store: store, rates: rates, opts: buildOptions(opts)}
}

// Create opens a debt with current_balance equal to total_amount.
func (s *DebtService) Create(ctx context.Context, familyID string, in DebtInput) (core.Debt, error) {
	d := core.Debt{
		FamilyID:          familyID,
		Creditor:          strings.TrimSpace(in.Creditor),
		Description:       strings.TrimSpace(in.Description),
		DebtType:          in.DebtType,
		TotalAmount:       core.RoundMoney(in.TotalAmount),
		CurrencyCode:      core.NormalizeCurrency(in.CurrencyCode),
		ExchangeRateFixed: core.RoundRate(in.ExchangeRateFixed),
		InterestRate:      in.InterestRate,
		DueDate:           in.DueDate,
	}
	if d.DebtType == "" {
		d.DebtType = core.DebtOther
	}
	if d.CurrencyCode == "" {
		d.CurrencyCode = baseCurrency(s.rates)
	}
	if d.ExchangeRateFixed.IsZero() {
		d.ExchangeRateFixed = defaultRate(s.rates, d.CurrencyCode)
	}
	d.CurrentBalance = d.TotalAmount
	if err := d.Validate(); err != nil {
		return core.Debt{}, err
	}

	created, err := s.store.Queries().CreateDebt(ctx, d)
	if err != nil {
		return core.Debt{}, err
	}

	slog.InfoContext(ctx, "Debt created",
		"family_id", familyID,
		"debt_id", created.ID,
		"creditor", created.Creditor,
		"total_amount", created.TotalAmount.String())
	return created, nil
}

// Get returns the debt with its total paid.
func (s *DebtService) Get(ctx context.Context, familyID, id string) (DebtDetail, error) {
	q := s.store.Queries()
	d, err := q.GetDebt(ctx, familyID, id)
	if err != nil {
		return DebtDetail{}, err
	}
	paid, err := q.SumDebtPayments(ctx, d.ID)
	if err != nil {
		return DebtDetail{}, err
	}
	return DebtDetail{Debt: d, TotalPaid: paid}, nil
}

// List returns the debts newest first; archived debts only on request.
func (s *DebtService) List(ctx context.Context, familyID string, includeArchived bool) ([]core.Debt, error) {
	return s.store.Queries().ListDebts(ctx, familyID, includeArchived)
}

func (s *DebtService) Update(ctx context.Context, familyID, id string, patch DebtPatch) (core.Debt, error) {
	var updated core.Debt
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		d, err := q.GetDebt(ctx, familyID, id)
		if err != nil {
			return err
		}
		if patch.Creditor != nil {
			d.Creditor = strings.TrimSpace(*patch.Creditor)
		}
		if patch.Description != nil {
			d.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.DebtType != nil {
			d.DebtType = *patch.DebtType
		}
		if patch.InterestRate != nil {
			d.InterestRate = patch.InterestRate
		}
		if patch.DueDate != nil {
			d.DueDate = *patch.DueDate
		}
		if err := d.Validate(); err != nil {
			return err
		}
		if d, err = q.UpdateDebt(ctx, d); err != nil {
			return err
		}
		if patch.IsArchived != nil && *patch.IsArchived != d.IsArchived {
			if err := q.SetDebtBalance(ctx, d.ID, d.CurrentBalance, *patch.IsArchived); err != nil {
				return err
			}
			d.IsArchived = *patch.IsArchived
		}
		updated = d
		return nil
	})
	return updated, err
}

// Delete removes the debt and its payment history.
func (s *DebtService) Delete(ctx context.Context, familyID, id string) error {
	if err := s.store.Queries().DeleteDebt(ctx, familyID, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Debt deleted", "family_id", familyID, "debt_id", id)
	return nil
}

// AddPayment records a payment, lowers the balance and, when userID is
// set, writes the matching DEBT transaction in the same unit of work.
// A zero date means today.
func (s *DebtService) AddPayment(ctx context.Context, familyID, debtID, userID string, amount decimal.Decimal, date core.Date, notes string) (PaymentResult, error) {
	amount = core.RoundMoney(amount)
	if err := core.CheckAmount(amount); err != nil {
		return PaymentResult{}, err
	}
	if date.IsZero() {
		date = core.DateOf(s.opts.now())
	}

	var res PaymentResult
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		d, err := q.GetDebt(ctx, familyID, debtID)
		if err != nil {
			return err
		}
		if d.IsArchived {
			return core.ErrDebtArchived
		}

		p, err := q.CreateDebtPayment(ctx, core.DebtPayment{
			DebtID:      d.ID,
			Amount:      amount,
			PaymentDate: date,
			Notes:       strings.TrimSpace(notes),
		})
		if err != nil {
			return err
		}

		d.CurrentBalance = core.ClampZero(d.CurrentBalance.Sub(amount))
		d.IsArchived = d.CurrentBalance.IsZero()
		if err := q.SetDebtBalance(ctx, d.ID, d.CurrentBalance, d.IsArchived); err != nil {
			return err
		}

		if userID != "" {
			t, err := insertTransaction(ctx, q, core.Transaction{
				FamilyID:       familyID,
				UserID:         userID,
				AmountOriginal: amount,
				CurrencyCode:   d.CurrencyCode,
				ExchangeRate:   d.ExchangeRateFixed,
				TrxDate:        date.Time,
				Type:           core.TypeDebt,
				Description:    fmt.Sprintf("Debt payment: %s (debt %s)", d.Creditor, d.ID),
				DebtID:         d.ID,
			})
			if err != nil {
				return err
			}
			res.Transaction = &t
		}
		res.Payment, res.Debt = p, d
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	slog.InfoContext(ctx, "Debt payment recorded",
		"family_id", familyID,
		"debt_id", debtID,
		"amount", amount.String(),
		"new_balance", res.Debt.CurrentBalance.String(),
		"archived", res.Debt.IsArchived)

	if res.Transaction != nil {
		s.opts.publish(ctx, amqp.EventCreated, familyID, res.Transaction.ID, res.Transaction.SyncID)
	}
	if res.Debt.IsArchived {
		s.opts.notify(ctx, amqp.Notification{
			Kind:     amqp.NotifyDebtPaidOff,
			FamilyID: familyID,
			UserID:   userID,
			Subject:  "Debt paid off: " + res.Debt.Creditor,
			Body: fmt.Sprintf("The debt with %s (%s %s) is fully paid.",
				res.Debt.Creditor, res.Debt.TotalAmount.StringFixed(2), res.Debt.CurrencyCode),
		})
	}
	return res, nil
}

// CreateAdjustment corrects a debt balance by a signed amount: positive
// lowers the balance, negative raises it. No ledger transaction is written.
func (s *DebtService) CreateAdjustment(ctx context.Context, familyID, debtID, originalPaymentID string, amount decimal.Decimal, notes string) (core.DebtPayment, error) {
	amount = core.RoundMoney(amount)
	if amount.IsZero() {
		return core.DebtPayment{}, core.ErrZeroAdjustment
	}
	if err := core.CheckAmount(amount.Abs()); err != nil {
		return core.DebtPayment{}, err
	}

	var adj core.DebtPayment
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		d, err := q.GetDebt(ctx, familyID, debtID)
		if err != nil {
			return err
		}
		balance := core.ClampZero(d.CurrentBalance.Sub(amount))
		if balance.GreaterThan(core.MaxAmount) {
			return core.ErrAmountTooLarge
		}

		text := "Adjustment for payment " + originalPaymentID
		if n := strings.TrimSpace(notes); n != "" {
			text += ": " + n
		}
		adj, err = q.CreateDebtPayment(ctx, core.DebtPayment{
			DebtID:       d.ID,
			Amount:       amount,
			PaymentDate:  core.DateOf(s.opts.now()),
			Notes:        text,
			IsAdjustment: true,
		})
		if err != nil {
			return err
		}

		return q.SetDebtBalance(ctx, d.ID, balance, balance.IsZero())
	})
	if err != nil {
		return core.DebtPayment{}, err
	}

	slog.InfoContext(ctx, "Debt adjustment recorded",
		"family_id", familyID,
		"debt_id", debtID,
		"original_payment_id", originalPaymentID,
		"amount", amount.String())
	return adj, nil
}

// Payments returns the newest payment rows of a debt.
func (s *DebtService) Payments(ctx context.Context, familyID, debtID string) ([]core.DebtPayment, error) {
	q := s.store.Queries()
	if _, err := q.GetDebt(ctx, familyID, debtID); err != nil {
		return nil, err
	}
	return q.ListDebtPayments(ctx, debtID, debtPaymentsLimit)
}

func (s *DebtService) Summary(ctx context.Context, familyID string) (core.DebtSummary, error) {
	debts, err := s.store.Queries().ListDebts(ctx, familyID, false)
	if err != nil {
		return core.DebtSummary{}, err
	}
	return core.SummarizeDebts(debts, baseCurrency(s.rates)), nil
}
