// Package services holds the ledger consistency rules: every money event is
// written to the transaction log together with the balance it affects, in
// one database transaction.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"famfinance/internal/amqp"
	"famfinance/internal/core"
	"famfinance/internal/storage"
)

// Store is the unit-of-work boundary the services run against.
type Store interface {
	Queries() *storage.Queries
	InTx(ctx context.Context, fn func(q *storage.Queries) error) error
}

// RateSource resolves exchange rates into the base currency.
type RateSource interface {
	Base() string
	RateToBase(code string) decimal.Decimal
}

// EventPublisher announces committed ledger changes.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev amqp.LedgerEvent) error
}

// Notifier delivers user-facing notifications. Implementations must not
// block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n amqp.Notification)
}

// DefaultBaseCurrency is used when no RateSource is configured.
const DefaultBaseCurrency = "MXN"

func baseCurrency(r RateSource) string {
	if r == nil {
		return DefaultBaseCurrency
	}
	return r.Base()
}

// defaultRate is 1 for the base currency and the current rate to base,
// rounded to rate precision, otherwise.
func defaultRate(r RateSource, code string) decimal.Decimal {
	if r == nil || code == r.Base() {
		return decimal.NewFromInt(1)
	}
	return core.RoundRate(r.RateToBase(code))
}

type options struct {
	now       func() time.Time
	publisher EventPublisher
	notifier  Notifier
}

type Option func(*options)

// WithClock sets the time source used for "today" and "now".
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) publish(ctx context.Context, kind amqp.EventKind, familyID, txID, syncID string) {
	if o.publisher == nil {
		return
	}
	ev := amqp.NewLedgerEvent(kind, familyID, txID, syncID)
	if err := o.publisher.PublishLedgerEvent(ctx, *ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger event",
			"kind", kind,
			"transaction_id", txID,
			"error", err)
	}
}

func (o options) notify(ctx context.Context, n amqp.Notification) {
	if o.notifier == nil {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = o.now()
	}
	o.notifier.Notify(ctx, n)
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

func newPage[T any](items []T, total, page, size int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if total > 0 {
		pages = (total + size - 1) / size
	}
	return Page[T]{Items: items, Total: total, Page: page, Size: size, Pages: pages}
}
