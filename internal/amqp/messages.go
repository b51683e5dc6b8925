package amqp

import (
	"encoding/json"
	"time"
)

// EventKind names the ledger mutation carried by a LedgerEvent.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// LedgerEvent announces a committed change to one transaction. It carries
// only identifiers; consumers load the row from the database. SyncID is kept
// so a deleted row can still be located in downstream copies.
type LedgerEvent struct {
	Kind          EventKind `json:"kind"`
	FamilyID      string    `json:"family_id"`
	TransactionID string    `json:"transaction_id"`
	SyncID        string    `json:"sync_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEvent(kind EventKind, familyID, transactionID, syncID string) *LedgerEvent {
	return &LedgerEvent{
		Kind:          kind,
		FamilyID:      familyID,
		TransactionID: transactionID,
		SyncID:        syncID,
		Timestamp:     time.Now(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// NotificationKind identifies the domain event behind a Notification.
type NotificationKind string

const (
	NotifyDebtPaidOff   NotificationKind = "debt_paid_off"
	NotifyGoalReached   NotificationKind = "goal_reached"
	NotifyBudgetAlert   NotificationKind = "budget_alert"
	NotifyMemberInvited NotificationKind = "member_invited"
)

// Notification is a fire-and-forget message for the delivery side (email,
// push). UserID is empty when the whole family should be told.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	FamilyID  string           `json:"family_id"`
	UserID    string           `json:"user_id,omitempty"`
	Subject   string           `json:"subject"`
	Body      string           `json:"body"`
	Timestamp time.Time        `json:"timestamp"`
}

func (n *Notification) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}

func NotificationFromJSON(data []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
