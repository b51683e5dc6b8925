package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"famfinance/internal/cli"
	"famfinance/internal/core"
	"famfinance/internal/currency"
	"famfinance/internal/services"
	"famfinance/internal/storage"
)

type Globals struct {
	DB       string        `help:"SQLite database path." env:"SQLITE_DB_PATH" default:"./data/famfinance.db" name:"db"`
	Base     string        `help:"Base currency." env:"BASE_CURRENCY" default:"MXN"`
	RatesURL string        `help:"Exchange rate endpoint; %s is replaced by the base." env:"RATES_URL" name:"rates-url"`
	LogLevel string        `help:"Log level." env:"LOG_LEVEL" default:"warn" name:"log-level"`
	Timeout  time.Duration `help:"Deadline for the whole command." default:"2m"`
}

func (g *Globals) logger() *slog.Logger {
	return cli.SetupLogger(g.LogLevel)
}

func (g *Globals) deadline() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.Timeout)
}

func (g *Globals) open() (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(g.DB)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", g.DB, err)
	}
	return repo, nil
}

func (g *Globals) converter(ctx context.Context, logger *slog.Logger) *currency.Converter {
	c := currency.NewConverter(g.Base, currency.WithRatesURL(g.RatesURL))
	if err := c.Refresh(ctx); err != nil {
		logger.Warn("Exchange rate refresh failed, using fallback rates", "error", err)
	}
	return c
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type MigrateCmd struct{}

func (cmd *MigrateCmd) Run(g *Globals) error {
	g.logger()
	version, err := storage.RunMigrations(g.DB)
	if err != nil {
		return err
	}
	printf("database %s at schema version %d", g.DB, version)
	return nil
}

type RatesCmd struct {
	Amount string `help:"Show this amount of each currency in the base." default:"1"`
}

func (cmd *RatesCmd) Run(g *Globals) error {
	logger := g.logger()
	ctx, cancel := g.deadline()
	defer cancel()

	amount, err := decimal.NewFromString(cmd.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", cmd.Amount, err)
	}
	c := g.converter(ctx, logger)
	updated := "fallback table"
	if at := c.UpdatedAt(); !at.IsZero() {
		updated = at.UTC().Format(time.RFC3339)
	}
	printf("base %s (%s)", c.Base(), updated)
	for _, code := range c.Currencies() {
		printf("%-4s %s = %s", code,
			currency.Format(amount, code),
			currency.Format(amount.Mul(c.RateToBase(code)), c.Base()))
	}
	return nil
}

type ConvertOverdueCmd struct {
	Family string `help:"Family id. All families when empty."`
}

func (cmd *ConvertOverdueCmd) Run(g *Globals) error {
	logger := g.logger()
	ctx, cancel := g.deadline()
	defer cancel()

	repo, err := g.open()
	if err != nil {
		return err
	}
	defer repo.Close()

	recurring := services.NewRecurringService(repo, g.converter(ctx, logger))
	if cmd.Family == "" {
		ids, err := repo.Queries().ListFamilyIDs(ctx)
		if err != nil {
			return err
		}
		total := services.OverdueResult{}
		for _, id := range ids {
			res, err := recurring.ConvertOverdueToDebts(ctx, id)
			if err != nil {
				logger.Error("Overdue conversion failed", "family_id", id, "error", err)
				continue
			}
			total.DebtsCreated += res.DebtsCreated
			total.ExpensesAdvanced += res.ExpensesAdvanced
			total.Conversions = append(total.Conversions, res.Conversions...)
		}
		return printJSON(total)
	}
	res, err := recurring.ConvertOverdueToDebts(ctx, cmd.Family)
	if err != nil {
		return err
	}
	return printJSON(res)
}

type AutoExecuteCmd struct {
	Family string `help:"Family id." required:""`
	User   string `help:"User recorded as the creator. Defaults to the family's first admin."`
}

func (cmd *AutoExecuteCmd) Run(g *Globals) error {
	logger := g.logger()
	ctx, cancel := g.deadline()
	defer cancel()

	repo, err := g.open()
	if err != nil {
		return err
	}
	defer repo.Close()

	userID := cmd.User
	if userID == "" {
		admin, err := repo.Queries().FirstAdmin(ctx, cmd.Family)
		if err != nil {
			return err
		}
		userID = admin.ID
	}

	recurring := services.NewRecurringService(repo, g.converter(ctx, logger))
	res, err := recurring.AutoExecuteDue(ctx, cmd.Family, userID)
	if err != nil {
		return err
	}
	return printJSON(res)
}

type ProcessCmd struct {
	Concurrency    int  `help:"Families processed at once." default:"4"`
	ConvertOverdue bool `help:"Also turn overdue manual expenses into debts." default:"true" negatable:""`
}

func (cmd *ProcessCmd) Run(g *Globals) error {
	logger := g.logger()
	ctx, cancel := g.deadline()
	defer cancel()

	repo, err := g.open()
	if err != nil {
		return err
	}
	defer repo.Close()

	p := services.NewRecurringProcessor(repo, services.NewRecurringService(repo, g.converter(ctx, logger)), cmd.Concurrency)
	p.SetConvertOverdue(cmd.ConvertOverdue)
	res, err := p.ProcessAll(ctx)
	if err != nil {
		return err
	}
	return printJSON(res)
}

type BootstrapCmd struct {
	Email      string `help:"Admin email." required:""`
	Password   string `help:"Admin password." env:"BOOTSTRAP_PASSWORD" required:""`
	Name       string `help:"Admin display name."`
	FamilyName string `help:"Family name." default:"Family"`
}

func (cmd *BootstrapCmd) Run(g *Globals) error {
	g.logger()
	ctx, cancel := g.deadline()
	defer cancel()

	repo, err := g.open()
	if err != nil {
		return err
	}
	defer repo.Close()

	user, err := services.NewAuthService(repo, nil).Register(ctx, services.RegisterInput{
		Email:      cmd.Email,
		Password:   cmd.Password,
		Name:       cmd.Name,
		FamilyName: cmd.FamilyName,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", core.MessageOf(err), err)
	}
	printf("created family %s with admin %s (%s)", user.FamilyID, user.Email, user.ID)
	return nil
}

type Commands struct {
	Globals

	Migrate        MigrateCmd        `cmd:"" help:"Apply pending database migrations."`
	Rates          RatesCmd          `cmd:"" help:"Refresh and print the exchange rate table."`
	Process        ProcessCmd        `cmd:"" help:"Run one recurring expense pass over every family."`
	ConvertOverdue ConvertOverdueCmd `cmd:"" help:"Turn overdue manual recurring expenses into debts."`
	AutoExecute    AutoExecuteCmd    `cmd:"" help:"Execute a family's due automatic recurring expenses."`
	Bootstrap      BootstrapCmd      `cmd:"" help:"Create a family and its first admin."`
}
