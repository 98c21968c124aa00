package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	models "form4-sentinel/database/models_pkg"
)

type fakeDispatchStore struct {
	alerts    []models.InsiderAlert
	delivered map[int64]bool
}

func (s *fakeDispatchStore) GetAlerts(delivered *bool, limit int) ([]models.InsiderAlert, error) {
	var out []models.InsiderAlert
	for _, a := range s.alerts {
		if delivered != nil && s.delivered[a.ID] != *delivered {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeDispatchStore) MarkAlertDelivered(id int64) error {
	if s.delivered == nil {
		s.delivered = make(map[int64]bool)
	}
	s.delivered[id] = true
	return nil
}

func TestDeliverPendingMarksOnSuccess(t *testing.T) {
	var received []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad webhook payload: %v", err)
		}
		received = append(received, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &fakeDispatchStore{alerts: []models.InsiderAlert{
		{ID: 1, Ticker: "AAPL", AnomalyScore: 0.9},
		{ID: 2, Ticker: "MSFT", AnomalyScore: 0.7},
	}}
	d := NewAlertDispatcher(store, server.URL)
	d.deliverPending(context.Background())

	if len(received) != 2 {
		t.Fatalf("webhook received %d payloads, want 2", len(received))
	}
	if received[0]["type"] != "insider_alert" {
		t.Errorf("payload type = %v", received[0]["type"])
	}
	if !store.delivered[1] || !store.delivered[2] {
		t.Errorf("delivered flags = %v, want both set", store.delivered)
	}
}

func TestDeliverPendingKeepsQueuedOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := &fakeDispatchStore{alerts: []models.InsiderAlert{
		{ID: 1, Ticker: "AAPL", AnomalyScore: 0.9},
	}}
	d := NewAlertDispatcher(store, server.URL)
	d.deliverPending(context.Background())

	if store.delivered[1] {
		t.Error("alert marked delivered despite webhook failure")
	}
}
