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

const contributionsLimit = 50

type GoalInput struct {
	Name         string
	Description  string
	Icon         string
	TargetAmount decimal.Decimal
	CurrencyCode string
	Deadline     core.Date
	GoalType     core.GoalType
}

type GoalPatch struct {
	Name         *string
	Description  *string
	Icon         *string
	TargetAmount *decimal.Decimal
	Deadline     *core.Date
	GoalType     *core.GoalType
	IsActive     *bool
}

// ContributionResult is the outcome of AddContribution.
type ContributionResult struct {
	Contribution core.GoalContribution `json:"contribution"`
	Goal         core.Goal             `json:"goal"`
}

// GoalSavings totals current_saved over the active goals a user can see.
type GoalSavings struct {
	TotalSaved  decimal.Decimal `json:"total_saved"`
	ActiveGoals int             `json:"active_goals"`
	Currency    string          `json:"currency"`
}

// GoalService manages savings goals. Every call is made on behalf of a
// user: PERSONAL goals of other members behave as if they did not exist.
type GoalService struct {
	store Store
	rates RateSource
	opts  options
}

func NewGoalService(store Store, rates RateSource, opts ...Option) *GoalService {
	return &GoalService{store: store, rates: rates, opts: buildOptions(opts)}
}

func (s *GoalService) Create(ctx context.Context, familyID, userID string, in GoalInput) (core.Goal, error) {
	g := core.Goal{
		FamilyID:     familyID,
		CreatedBy:    userID,
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		Icon:         strings.TrimSpace(in.Icon),
		TargetAmount: core.RoundMoney(in.TargetAmount),
		CurrentSaved: decimal.Zero,
		CurrencyCode: core.NormalizeCurrency(in.CurrencyCode),
		Deadline:     in.Deadline,
		GoalType:     in.GoalType,
		IsActive:     true,
	}
	if g.CurrencyCode == "" {
		g.CurrencyCode = baseCurrency(s.rates)
	}
	if g.GoalType == "" {
		g.GoalType = core.GoalFamily
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}

	created, err := s.store.Queries().CreateGoal(ctx, g)
	if err != nil {
		return core.Goal{}, err
	}

	slog.InfoContext(ctx, "Goal created",
		"family_id", familyID,
		"goal_id", created.ID,
		"goal_type", created.GoalType,
		"target_amount", created.TargetAmount.String())
	return created, nil
}

// Get returns a visible goal, inactive ones included.
func (s *GoalService) Get(ctx context.Context, familyID, userID, id string) (core.Goal, error) {
	return s.store.Queries().GetGoal(ctx, familyID, userID, id)
}

func (s *GoalService) List(ctx context.Context, familyID, userID string, includeInactive bool) ([]core.Goal, error) {
	return s.store.Queries().ListGoals(ctx, familyID, userID, includeInactive)
}

func (s *GoalService) Update(ctx context.Context, familyID, userID, id string, patch GoalPatch) (core.Goal, error) {
	q := s.store.Queries()
	g, err := q.GetGoal(ctx, familyID, userID, id)
	if err != nil {
		return core.Goal{}, err
	}
	if patch.Name != nil {
		g.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		g.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Icon != nil {
		g.Icon = strings.TrimSpace(*patch.Icon)
		if g.Icon == "" {
			g.Icon = core.DefaultGoalIcon
		}
	}
	if patch.TargetAmount != nil {
		g.TargetAmount = core.RoundMoney(*patch.TargetAmount)
	}
	if patch.Deadline != nil {
		g.Deadline = *patch.Deadline
	}
	if patch.GoalType != nil {
		g.GoalType = *patch.GoalType
	}
	if patch.IsActive != nil {
		g.IsActive = *patch.IsActive
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	return q.UpdateGoal(ctx, g)
}

// Delete deactivates the goal; contributions are kept.
func (s *GoalService) Delete(ctx context.Context, familyID, userID, id string) error {
	q := s.store.Queries()
	if _, err := q.GetGoal(ctx, familyID, userID, id); err != nil {
		return err
	}
	if err := q.DeactivateGoal(ctx, familyID, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Goal deactivated", "family_id", familyID, "goal_id", id)
	return nil
}

// AddContribution deposits into or withdraws from a goal. A withdrawal
// larger than current_saved is rejected before anything is written.
func (s *GoalService) AddContribution(ctx context.Context, familyID, userID, goalID string, amount decimal.Decimal, withdrawal bool, notes string) (ContributionResult, error) {
	amount = core.RoundMoney(amount)
	if err := core.CheckAmount(amount); err != nil {
		return ContributionResult{}, err
	}

	var (
		res     ContributionResult
		reached bool
	)
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		g, err := q.GetGoal(ctx, familyID, userID, goalID)
		if err != nil {
			return err
		}
		if !g.IsActive {
			return core.ErrGoalInactive
		}
		if withdrawal && amount.GreaterThan(g.CurrentSaved) {
			return core.ErrWithdrawalTooLarge
		}
		if !withdrawal && g.CurrentSaved.Add(amount).GreaterThan(core.MaxAmount) {
			return core.ErrAmountTooLarge
		}

		c, err := q.CreateContribution(ctx, core.GoalContribution{
			GoalID:       g.ID,
			UserID:       userID,
			Amount:       amount,
			IsWithdrawal: withdrawal,
			Notes:        strings.TrimSpace(notes),
		})
		if err != nil {
			return err
		}

		before := g.CurrentSaved
		if withdrawal {
			g.CurrentSaved = core.ClampZero(g.CurrentSaved.Sub(amount))
		} else {
			g.CurrentSaved = g.CurrentSaved.Add(amount)
		}
		if err := q.SetGoalSaved(ctx, g.ID, g.CurrentSaved); err != nil {
			return err
		}
		g.ProgressPercentage = g.Progress()

		reached = !withdrawal && before.LessThan(g.TargetAmount) && !g.CurrentSaved.LessThan(g.TargetAmount)
		res = ContributionResult{Contribution: c, Goal: g}
		return nil
	})
	if err != nil {
		return ContributionResult{}, err
	}

	slog.InfoContext(ctx, "Goal contribution recorded",
		"family_id", familyID,
		"goal_id", goalID,
		"amount", amount.String(),
		"withdrawal", withdrawal,
		"current_saved", res.Goal.CurrentSaved.String())

	if reached {
		s.opts.notify(ctx, amqp.Notification{
			Kind:     amqp.NotifyGoalReached,
			FamilyID: familyID,
			UserID:   userID,
			Subject:  "Goal reached: " + res.Goal.Name,
			Body: fmt.Sprintf("%s %s saved of %s %s.",
				res.Goal.CurrentSaved.StringFixed(2), res.Goal.CurrencyCode,
				res.Goal.TargetAmount.StringFixed(2), res.Goal.CurrencyCode),
		})
	}
	return res, nil
}

// Contributions returns the newest contributions of a visible goal.
func (s *GoalService) Contributions(ctx context.Context, familyID, userID, goalID string) ([]core.GoalContribution, error) {
	q := s.store.Queries()
	if _, err := q.GetGoal(ctx, familyID, userID, goalID); err != nil {
		return nil, err
	}
	return q.ListContributions(ctx, goalID, contributionsLimit)
}

func (s *GoalService) Savings(ctx context.Context, familyID, userID string) (GoalSavings, error) {
	total, n, err := s.store.Queries().SumActiveSaved(ctx, familyID, userID)
	if err != nil {
		return GoalSavings{}, err
	}
	return GoalSavings{TotalSaved: total, ActiveGoals: n, Currency: baseCurrency(s.rates)}, nil
}
