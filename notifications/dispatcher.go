// Package notifications delivers promoted alerts to an external webhook.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	models "form4-sentinel/database/models_pkg"
)

// DispatchStore is the slice of the repository the dispatcher needs.
type DispatchStore interface {
	GetAlerts(delivered *bool, limit int) ([]models.InsiderAlert, error)
	MarkAlertDelivered(id int64) error
}

const (
	pollInterval   = 30 * time.Second
	deliveryLimit  = 20
	requestTimeout = 10 * time.Second
)

// AlertDispatcher is a background worker that polls undelivered alerts and
// POSTs them to the configured webhook. An alert is marked delivered only
// after a 2xx response; anything else leaves it queued for the next cycle.
type AlertDispatcher struct {
	store      DispatchStore
	webhookURL string
	httpClient *http.Client
	done       chan bool
}

// NewAlertDispatcher creates a dispatcher for the given webhook URL.
func NewAlertDispatcher(store DispatchStore, webhookURL string) *AlertDispatcher {
	return &AlertDispatcher{
		store:      store,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		done:       make(chan bool),
	}
}

// Start launches the delivery loop. A dispatcher without a webhook URL does
// nothing.
func (d *AlertDispatcher) Start(ctx context.Context) {
	if d.webhookURL == "" {
		log.Println("⚠️ Alert webhook URL not configured, dispatcher idle")
		return
	}

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		log.Printf("🚀 Alert dispatcher started (webhook=%s)", d.webhookURL)
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.done:
				return
			case <-ticker.C:
				d.deliverPending(ctx)
			}
		}
	}()
}

// Stop terminates the delivery loop.
func (d *AlertDispatcher) Stop() {
	close(d.done)
}

func (d *AlertDispatcher) deliverPending(ctx context.Context) {
	undelivered := false
	alerts, err := d.store.GetAlerts(&undelivered, deliveryLimit)
	if err != nil {
		log.Printf("⚠️ Failed to load pending alerts: %v", err)
		return
	}

	for _, alert := range alerts {
		if ctx.Err() != nil {
			return
		}
		if err := d.deliver(ctx, alert); err != nil {
			log.Printf("⚠️ Webhook delivery failed for alert %d (%s): %v", alert.ID, alert.Ticker, err)
			continue
		}
		if err := d.store.MarkAlertDelivered(alert.ID); err != nil {
			log.Printf("⚠️ Failed to mark alert %d delivered: %v", alert.ID, err)
			continue
		}
		log.Printf("✅ Alert %d delivered (%s, score %.2f)", alert.ID, alert.Ticker, alert.AnomalyScore)
	}
}

// deliver POSTs one alert as JSON.
func (d *AlertDispatcher) deliver(ctx context.Context, alert models.InsiderAlert) error {
	payload, err := json.Marshal(map[string]interface{}{
		"type":  "insider_alert",
		"alert": alert,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
