package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifyDocumentEvent forwards a transfer document event to the
	// external notification collaborator.
	TaskNotifyDocumentEvent = "notify:document_event"
	// TaskLedgerIntegritySweep recomputes cached item aggregates from the
	// issue/receipt ledgers and repairs drift.
	TaskLedgerIntegritySweep = "ledger:integrity_sweep"
)

// DocumentEventPayload is the wire shape handed to the delivery worker.
// EventID plus document id and kind let the collaborator deduplicate
// at-least-once redelivery.
type DocumentEventPayload struct {
	EventID         string `json:"event_id"`
	Kind            string `json:"kind"`
	DocumentID      int64  `json:"document_id"`
	DocumentNumber  string `json:"document_number"`
	SourceWarehouse string `json:"source_warehouse,omitempty"`
	TargetWarehouse string `json:"target_warehouse,omitempty"`
	ActorID         string `json:"actor_id,omitempty"`
}

// NewDocumentEventTask constructs an Asynq task for one document event.
func NewDocumentEventTask(payload DocumentEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyDocumentEvent, data), nil
}

// NewLedgerIntegrityTask constructs the periodic sweep task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegritySweep, nil)
}
