package transfer

import "context"

// Event kinds forwarded to the external notification collaborator.
const (
	EventDocumentCreated  = "document_created"
	EventDocumentIssued   = "document_issued"
	EventPackageRequested = "package_requested"
)

// DocumentEvent carries the details the notification collaborator needs to
// select recipients (role, warehouse subscription) and render a message.
// Recipient selection and delivery transport live entirely outside this core.
type DocumentEvent struct {
	Kind            string
	DocumentID      int64
	DocumentNumber  string
	SourceWarehouse string
	TargetWarehouse string
	ActorID         string
}

// Notifier receives fire-and-forget notification requests at meaningful
// document transitions. Implementations must never fail the triggering
// mutation: errors are swallowed and logged by the implementation, and
// redelivery is tolerated because events are idempotent by document id and
// kind.
type Notifier interface {
	Notify(ctx context.Context, evt DocumentEvent)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, DocumentEvent) {}
