package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	TypeIncome  TransactionType = "INCOME"
	TypeExpense TransactionType = "EXPENSE"
	TypeDebt    TransactionType = "DEBT"
	TypeSaving  TransactionType = "SAVING"
)

const (
	Daily    Frequency = "DAILY"
	Weekly   Frequency = "WEEKLY"
	Biweekly Frequency = "BIWEEKLY"
	Monthly  Frequency = "MONTHLY"
)

const (
	GoalFamily   GoalType = "FAMILY"
	GoalPersonal GoalType = "PERSONAL"
)

const (
	PeriodWeekly  BudgetPeriod = "WEEKLY"
	PeriodMonthly BudgetPeriod = "MONTHLY"
)

const (
	CategoryIncome  CategoryType = "INCOME"
	CategoryExpense CategoryType = "EXPENSE"
)

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

const (
	DebtCreditCard   DebtType = "credit_card"
	DebtPersonalLoan DebtType = "personal_loan"
	DebtMortgage     DebtType = "mortgage"
	DebtCarLoan      DebtType = "car_loan"
	DebtOther        DebtType = "other"
)

// DefaultGoalIcon is used when a goal is created without an icon.
const DefaultGoalIcon = "piggy_bank"

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

type (
	TransactionType string
	Frequency       string
	GoalType        string
	BudgetPeriod    string
	CategoryType    string
	Role            string
	DebtType        string

	// Date is a calendar day in UTC.
	Date struct {
		time.Time
	}

	Family struct {
		ID        string         `json:"id"`
		Name      string         `json:"name"`
		Settings  map[string]any `json:"settings"`
		CreatedAt time.Time      `json:"created_at"`
	}

	User struct {
		ID           string    `json:"id"`
		FamilyID     string    `json:"family_id"`
		Email        string    `json:"email"`
		Name         string    `json:"name,omitempty"`
		PasswordHash string    `json:"-"`
		Role         Role      `json:"role"`
		IsActive     bool      `json:"is_active"`
		CreatedAt    time.Time `json:"created_at"`
	}

	Category struct {
		ID   int64        `json:"id"`
		Name string       `json:"name"`
		Icon string       `json:"icon,omitempty"`
		Type CategoryType `json:"type"`
	}

	Transaction struct {
		ID                 string          `json:"id"`
		FamilyID           string          `json:"family_id"`
		UserID             string          `json:"user_id,omitempty"`
		CategoryID         *int64          `json:"category_id"`
		AmountOriginal     decimal.Decimal `json:"amount_original"`
		CurrencyCode       string          `json:"currency_code"`
		ExchangeRate       decimal.Decimal `json:"exchange_rate"`
		AmountBase         decimal.Decimal `json:"amount_base"`
		TrxDate            time.Time       `json:"trx_date"`
		Type               TransactionType `json:"type"`
		Description        string          `json:"description,omitempty"`
		AttachmentURL      string          `json:"attachment_url,omitempty"`
		AttachmentThumbURL string          `json:"attachment_thumb_url,omitempty"`
		IsInvoiced         bool            `json:"is_invoiced"`
		SyncID             string          `json:"sync_id"`
		DebtID             string          `json:"debt_id,omitempty"`
		RecurringExpenseID string          `json:"recurring_expense_id,omitempty"`
		CreatedAt          time.Time       `json:"created_at"`
		UpdatedAt          time.Time       `json:"updated_at"`
	}

	Debt struct {
		ID                string           `json:"id"`
		FamilyID          string           `json:"family_id"`
		Creditor          string           `json:"creditor"`
		Description       string           `json:"description,omitempty"`
		DebtType          DebtType         `json:"debt_type"`
		TotalAmount       decimal.Decimal  `json:"total_amount"`
		CurrentBalance    decimal.Decimal  `json:"current_balance"`
		CurrencyCode      string           `json:"currency_code"`
		ExchangeRateFixed decimal.Decimal  `json:"exchange_rate_fixed"`
		InterestRate      *decimal.Decimal `json:"interest_rate"`
		IsArchived        bool             `json:"is_archived"`
		DueDate           Date             `json:"due_date"`
		SourceRecurringID string           `json:"source_recurring_id,omitempty"`
		CreatedAt         time.Time        `json:"created_at"`
		UpdatedAt         time.Time        `json:"updated_at"`
	}

	DebtPayment struct {
		ID           string          `json:"id"`
		DebtID       string          `json:"debt_id"`
		Amount       decimal.Decimal `json:"amount"`
		PaymentDate  Date            `json:"payment_date"`
		Notes        string          `json:"notes,omitempty"`
		IsAdjustment bool            `json:"is_adjustment"`
		CreatedAt    time.Time       `json:"created_at"`
	}

	Goal struct {
		ID                 string          `json:"id"`
		FamilyID           string          `json:"family_id"`
		CreatedBy          string          `json:"created_by"`
		Name               string          `json:"name"`
		Description        string          `json:"description,omitempty"`
		Icon               string          `json:"icon"`
		TargetAmount       decimal.Decimal `json:"target_amount"`
		CurrentSaved       decimal.Decimal `json:"current_saved"`
		CurrencyCode       string          `json:"currency_code"`
		Deadline           Date            `json:"deadline"`
		GoalType           GoalType        `json:"goal_type"`
		IsActive           bool            `json:"is_active"`
		ProgressPercentage decimal.Decimal `json:"progress_percentage"`
		CreatedAt          time.Time       `json:"created_at"`
		UpdatedAt          time.Time       `json:"updated_at"`
	}

	GoalContribution struct {
		ID           string          `json:"id"`
		GoalID       string          `json:"goal_id"`
		UserID       string          `json:"user_id"`
		Amount       decimal.Decimal `json:"amount"`
		IsWithdrawal bool            `json:"is_withdrawal"`
		Notes        string          `json:"notes,omitempty"`
		CreatedAt    time.Time       `json:"created_at"`
	}

	RecurringExpense struct {
		ID               string          `json:"id"`
		FamilyID         string          `json:"family_id"`
		CategoryID       *int64          `json:"category_id"`
		Name             string          `json:"name"`
		Description      string          `json:"description,omitempty"`
		Amount           decimal.Decimal `json:"amount"`
		CurrencyCode     string          `json:"currency_code"`
		Frequency        Frequency       `json:"frequency"`
		NextDueDate      Date            `json:"next_due_date"`
		LastExecutedDate Date            `json:"last_executed_date"`
		IsAutomatic      bool            `json:"is_automatic"`
		IsActive         bool            `json:"is_active"`
		CreatedAt        time.Time       `json:"created_at"`
		UpdatedAt        time.Time       `json:"updated_at"`
	}

	CategoryBudget struct {
		ID             string          `json:"id"`
		FamilyID       string          `json:"family_id"`
		CategoryID     int64           `json:"category_id"`
		BudgetAmount   decimal.Decimal `json:"budget_amount"`
		CurrencyCode   string          `json:"currency_code"`
		Period         BudgetPeriod    `json:"period"`
		AlertThreshold int             `json:"alert_threshold"`
		CreatedAt      time.Time       `json:"created_at"`
		UpdatedAt      time.Time       `json:"updated_at"`
	}
)

var (
	ErrInvalidAmount       = &Error{Kind: KindValidation, Message: "amount must be greater than zero"}
	ErrAmountTooLarge      = &Error{Kind: KindValidation, Message: "amount exceeds the maximum of 100000000000000"}
	ErrInvalidRate         = &Error{Kind: KindValidation, Message: "exchange rate must be greater than zero"}
	ErrRateTooLarge        = &Error{Kind: KindValidation, Message: "exchange rate exceeds the maximum of 1000000000"}
	ErrDebtPaymentLocked   = &Error{Kind: KindBusinessRule, Message: "amount, currency, rate and type of a debt payment cannot be changed; delete it and record a new payment"}
	ErrInvalidCurrency     = &Error{Kind: KindValidation, Message: "currency code must be 3 letters"}
	ErrInvalidType         = &Error{Kind: KindValidation, Message: "invalid transaction type"}
	ErrInvalidFrequency    = &Error{Kind: KindValidation, Message: "invalid frequency"}
	ErrInvalidPeriod       = &Error{Kind: KindValidation, Message: "invalid budget period"}
	ErrInvalidGoalType     = &Error{Kind: KindValidation, Message: "invalid goal type"}
	ErrInvalidDebtType     = &Error{Kind: KindValidation, Message: "invalid debt type"}
	ErrEmptyName           = &Error{Kind: KindValidation, Message: "name cannot be empty"}
	ErrEmptyCreditor       = &Error{Kind: KindValidation, Message: "creditor cannot be empty"}
	ErrDescriptionTooLong  = &Error{Kind: KindValidation, Message: "description too long (max 500 characters)"}
	ErrInvalidThreshold    = &Error{Kind: KindValidation, Message: "alert threshold must be between 0 and 100"}
	ErrMissingDueDate      = &Error{Kind: KindValidation, Message: "next due date is required"}
	ErrInvalidCategory     = &Error{Kind: KindValidation, Message: "category is required"}
	ErrNegativeInterest    = &Error{Kind: KindValidation, Message: "interest rate cannot be negative"}
	ErrZeroAdjustment      = &Error{Kind: KindValidation, Message: "adjustment amount cannot be zero"}
	ErrInvalidDate         = &Error{Kind: KindValidation, Message: "invalid date"}
	ErrDebtArchived        = &Error{Kind: KindBusinessRule, Message: "cannot add payment to archived debt"}
	ErrWithdrawalTooLarge  = &Error{Kind: KindBusinessRule, Message: "withdrawal amount exceeds current savings"}
	ErrRecurringInactive   = &Error{Kind: KindBusinessRule, Message: "cannot execute inactive recurring expense"}
	ErrGoalInactive        = &Error{Kind: KindBusinessRule, Message: "cannot contribute to inactive goal"}
	ErrDuplicateSyncID     = &Error{Kind: KindConflict, Message: "transaction with this sync_id already exists"}
	ErrDuplicateBudget     = &Error{Kind: KindConflict, Message: "budget already exists for this category"}
	ErrDuplicateEmail      = &Error{Kind: KindConflict, Message: "email already registered"}
	ErrAdminRequired       = &Error{Kind: KindAuthorization, Message: "admin role required"}
	ErrInvalidCredentials  = &Error{Kind: KindAuthentication, Message: "invalid email or password"}
	ErrInactiveUser        = &Error{Kind: KindAuthentication, Message: "user not found or inactive"}
	ErrCannotRemoveSelf    = &Error{Kind: KindBusinessRule, Message: "cannot remove yourself"}
	ErrInvalidRole         = &Error{Kind: KindValidation, Message: "role must be ADMIN or MEMBER"}
	ErrNameTooLong         = &Error{Kind: KindValidation, Message: "name too long (max 100 characters)"}
	ErrWeakPassword        = &Error{Kind: KindValidation, Message: "password must be at least 8 characters"}
	ErrTransactionNotFound = &Error{Kind: KindNotFound, Message: "transaction not found"}
	ErrDebtNotFound        = &Error{Kind: KindNotFound, Message: "debt not found"}
	ErrGoalNotFound        = &Error{Kind: KindNotFound, Message: "goal not found"}
	ErrRecurringNotFound   = &Error{Kind: KindNotFound, Message: "recurring expense not found"}
	ErrBudgetNotFound      = &Error{Kind: KindNotFound, Message: "budget not found"}
	ErrCategoryNotFound    = &Error{Kind: KindNotFound, Message: "category not found"}
	ErrFamilyNotFound      = &Error{Kind: KindNotFound, Message: "family not found"}
	ErrUserNotFound        = &Error{Kind: KindNotFound, Message: "user not found"}
	ErrMemberNotFound      = &Error{Kind: KindNotFound, Message: "member not found"}
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

func (t TransactionType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeDebt, TypeSaving:
		return true
	}
	return false
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Biweekly, Monthly:
		return true
	}
	return false
}

func (g GoalType) Valid() bool {
	return g == GoalFamily || g == GoalPersonal
}

func (p BudgetPeriod) Valid() bool {
	return p == PeriodWeekly || p == PeriodMonthly
}

func (d DebtType) Valid() bool {
	switch d {
	case DebtCreditCard, DebtPersonalLoan, DebtMortgage, DebtCarLoan, DebtOther:
		return true
	}
	return false
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// IsEmpty returns true if the date is zero (optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// EndOfDay returns the last second of the day.
func (d Date) EndOfDay() time.Time {
	return d.Time.Add(24*time.Hour - time.Second)
}

// FirstOfMonth returns the first day of d's month.
func (d Date) FirstOfMonth() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

// StartOfWeek returns the Monday of d's week.
func (d Date) StartOfWeek() Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return ErrInvalidDate
	}
	// Accept full timestamps as well as plain dates.
	if len(raw) > len(DateLayout) {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ErrInvalidDate
		}
		*d = DateOf(t)
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DisplayName falls back from the profile name to the email local part.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	return u.Email
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// tooLong counts characters, not bytes.
func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (t Transaction) Validate() error {
	if err := CheckAmount(t.AmountOriginal); err != nil {
		return err
	}
	if err := CheckRate(t.ExchangeRate); err != nil {
		return err
	}
	if BaseAmount(t.AmountOriginal, t.ExchangeRate).GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	if !validCurrency(t.CurrencyCode) {
		return ErrInvalidCurrency
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if tooLong(t.Description, 500) {
		return ErrDescriptionTooLong
	}
	return nil
}

func (d Debt) Validate() error {
	if strings.TrimSpace(d.Creditor) == "" {
		return ErrEmptyCreditor
	}
	if tooLong(d.Creditor, 200) {
		return Validationf("creditor too long (max 200 characters)")
	}
	if tooLong(d.Description, 500) {
		return ErrDescriptionTooLong
	}
	if err := CheckAmount(d.TotalAmount); err != nil {
		return err
	}
	if err := CheckRate(d.ExchangeRateFixed); err != nil {
		return err
	}
	if !validCurrency(d.CurrencyCode) {
		return ErrInvalidCurrency
	}
	if !d.DebtType.Valid() {
		return ErrInvalidDebtType
	}
	if d.InterestRate != nil && d.InterestRate.IsNegative() {
		return ErrNegativeInterest
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if tooLong(g.Name, 200) {
		return Validationf("name too long (max 200 characters)")
	}
	if err := CheckAmount(g.TargetAmount); err != nil {
		return err
	}
	if !validCurrency(g.CurrencyCode) {
		return ErrInvalidCurrency
	}
	if !g.GoalType.Valid() {
		return ErrInvalidGoalType
	}
	return nil
}

// Progress returns current_saved / target_amount × 100 rounded to 2 places.
func (g Goal) Progress() decimal.Decimal {
	return Percentage(g.CurrentSaved, g.TargetAmount)
}

// VisibleTo applies the personal-goal rule: only the creator sees a PERSONAL goal.
func (g Goal) VisibleTo(userID string) bool {
	return g.GoalType != GoalPersonal || g.CreatedBy == userID
}

func (re RecurringExpense) Validate() error {
	if strings.TrimSpace(re.Name) == "" {
		return ErrEmptyName
	}
	if tooLong(re.Name, 200) {
		return Validationf("name too long (max 200 characters)")
	}
	if err := CheckAmount(re.Amount); err != nil {
		return err
	}
	if !validCurrency(re.CurrencyCode) {
		return ErrInvalidCurrency
	}
	if !re.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if re.NextDueDate.IsZero() {
		return ErrMissingDueDate
	}
	return nil
}

func (b CategoryBudget) Validate() error {
	if b.CategoryID <= 0 {
		return ErrInvalidCategory
	}
	if err := CheckAmount(b.BudgetAmount); err != nil {
		return err
	}
	if !validCurrency(b.CurrencyCode) {
		return ErrInvalidCurrency
	}
	if !b.Period.Valid() {
		return ErrInvalidPeriod
	}
	if b.AlertThreshold < 0 || b.AlertThreshold > 100 {
		return ErrInvalidThreshold
	}
	return nil
}
