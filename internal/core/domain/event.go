package domain

import "github.com/google/uuid"

type EventType string

const (
	EventKittyCreated     EventType = "CreatedKitty"
	EventKittyTransferred EventType = "TransferKitty"
)

type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	DNA       DNA       `json:"dna"`
	Owner     AccountID `json:"owner,omitempty"`
	From      AccountID `json:"from,omitempty"`
	To        AccountID `json:"to,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

func NewKittyCreatedEvent(dna DNA, owner AccountID, timestamp int64) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      EventKittyCreated,
		DNA:       dna,
		Owner:     owner,
		Timestamp: timestamp,
	}
}

func NewKittyTransferredEvent(dna DNA, from, to AccountID, timestamp int64) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      EventKittyTransferred,
		DNA:       dna,
		From:      from,
		To:        to,
		Timestamp: timestamp,
	}
}

// Involves reports whether the account took part in the event.
func (e Event) Involves(account AccountID) bool {
	return e.Owner == account || e.From == account || e.To == account
}
