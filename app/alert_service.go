package app

import (
	"fmt"
	"log"

	models "form4-sentinel/database/models_pkg"
)

// AlertStore is the slice of the repository the alert service needs.
type AlertStore interface {
	SaveAlert(alert *models.InsiderAlert) (int64, error)
	GetAlerts(delivered *bool, limit int) ([]models.InsiderAlert, error)
}

// AlertBroadcaster pushes new alerts to realtime subscribers. Optional.
type AlertBroadcaster interface {
	BroadcastAlert(alert models.InsiderAlert)
}

// AlertService evaluates insider signals and promotes the actionable ones to
// persisted alerts.
type AlertService struct {
	store     AlertStore
	threshold float64

	// Broadcaster receives every persisted alert when set.
	Broadcaster AlertBroadcaster
}

// NewAlertService creates an alert service with the given promotion threshold.
func NewAlertService(store AlertStore, threshold float64) *AlertService {
	return &AlertService{store: store, threshold: threshold}
}

// Evaluate filters signals to those at or above the threshold, persists them
// as alerts and returns the kept subset. Persistence failures surface as
// errors; an undelivered alert must never be silently dropped.
func (s *AlertService) Evaluate(signals []*models.InsiderSignal) ([]*models.InsiderSignal, error) {
	var actionable []*models.InsiderSignal
	for _, sig := range signals {
		if sig.AnomalyScore < s.threshold {
			continue
		}

		alert := models.InsiderAlert{
			Ticker:              sig.Ticker,
			AnomalyScore:        sig.AnomalyScore,
			InsiderSentiment:    sig.InsiderSentiment,
			Recommendation:      sig.Recommendation,
			CompositeAlphaScore: sig.CompositeAlphaScore,
		}
		if _, err := s.store.SaveAlert(&alert); err != nil {
			return actionable, fmt.Errorf("Evaluate: %w", err)
		}
		if s.Broadcaster != nil {
			s.Broadcaster.BroadcastAlert(alert)
		}
		actionable = append(actionable, sig)
	}

	log.Printf("✅ Alert evaluation complete: %d/%d actionable (threshold %.2f)",
		len(actionable), len(signals), s.threshold)
	return actionable, nil
}

// GetActive retrieves recent undelivered alerts, newest first.
func (s *AlertService) GetActive(limit int) ([]models.InsiderAlert, error) {
	delivered := false
	return s.store.GetAlerts(&delivered, limit)
}
