package emitter

import (
	"time"

	"github.com/google/uuid"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type EventType string

const (
	EventTransferCreated     EventType = "transfer.created"
	EventTransferProcessed   EventType = "transfer.processed"
	EventTransferCompleted   EventType = "transfer.completed"
	EventTransferCanceled    EventType = "transfer.canceled"
	EventTransferNeedsReview EventType = "transfer.needs_review"
	EventLedgerApplyFailed   EventType = "ledger.apply_failed"
)

type Event struct {
	ID         uuid.UUID            `json:"id"`
	Type       EventType            `json:"type"`
	TransferID uint                 `json:"transfer_id"`
	UserID     uint                 `json:"user_id"`
	Kind       model.TransferType   `json:"kind"`
	Status     model.TransferStatus `json:"status"`
	TxID       string               `json:"tx_id,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// NewTransferEvent snapshots t into an event of the given type.
func NewTransferEvent(eventType EventType, t *model.Transfer, reason string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		TransferID: t.ID,
		UserID:     t.UserID,
		Kind:       t.Type,
		Status:     t.Status,
		TxID:       t.TxIDValue(),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
