// Package notify hands notification requests to the external delivery
// collaborator. Recipient filtering by role and warehouse subscription, and
// the push transport itself, live on the collaborator side; this package only
// posts the event to the role channels that should hear about it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/atlas-wms/atlas-wms/jobs"
)

// Role channels the collaborator multiplexes recipients from.
const (
	ChannelWarehouseman = "warehouseman"
	ChannelDispatcher   = "dispatcher"
)

// channelsFor returns which role channels an event kind addresses. Creation
// concerns the warehouse crew picking stock; issued and package-request
// signals additionally concern dispatchers waiting to receive.
func channelsFor(kind string) []string {
	switch kind {
	case "document_created", "document_issued", "package_requested":
		return []string{ChannelWarehouseman, ChannelDispatcher}
	default:
		return []string{ChannelDispatcher}
	}
}

// Deliverer posts document events to the collaborator webhook.
type Deliverer struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
	delivered  *prometheus.CounterVec
}

// NewDeliverer constructs a Deliverer. The counter vec is optional.
func NewDeliverer(webhookURL string, logger *slog.Logger, delivered *prometheus.CounterVec) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		delivered:  delivered,
	}
}

type webhookBody struct {
	EventID         string `json:"event_id"`
	Kind            string `json:"kind"`
	Channel         string `json:"channel"`
	DocumentID      int64  `json:"document_id"`
	DocumentNumber  string `json:"document_number"`
	SourceWarehouse string `json:"source_warehouse,omitempty"`
	TargetWarehouse string `json:"target_warehouse,omitempty"`
	ActorID         string `json:"actor_id,omitempty"`
}

// Handle processes one queued document event. Returning an error lets asynq
// retry, which is safe because the collaborator dedupes on event id.
func (d *Deliverer) Handle(ctx context.Context, t *asynq.Task) error {
	var payload jobs.DocumentEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if d.webhookURL == "" {
		d.logger.Info("notification webhook not configured, dropping event",
			slog.String("kind", payload.Kind),
			slog.Int64("document_id", payload.DocumentID))
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, channel := range channelsFor(payload.Kind) {
		channel := channel
		g.Go(func() error {
			return d.post(ctx, channel, payload)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if d.delivered != nil {
		d.delivered.WithLabelValues(payload.Kind).Inc()
	}
	return nil
}

func (d *Deliverer) post(ctx context.Context, channel string, payload jobs.DocumentEventPayload) error {
	body, err := json.Marshal(webhookBody{
		EventID:         payload.EventID,
		Kind:            payload.Kind,
		Channel:         channel,
		DocumentID:      payload.DocumentID,
		DocumentNumber:  payload.DocumentNumber,
		SourceWarehouse: payload.SourceWarehouse,
		TargetWarehouse: payload.TargetWarehouse,
		ActorID:         payload.ActorID,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", payload.EventID+":"+channel)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %d for channel %s", resp.StatusCode, channel)
	}
	d.logger.Info("notification delivered",
		slog.String("kind", payload.Kind),
		slog.String("channel", channel),
		slog.Int64("document_id", payload.DocumentID))
	return nil
}
