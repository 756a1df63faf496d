package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pantry-alerts/auth"
	"pantry-alerts/pkg/pantry"
)

func authMessage(err error) string {
	if errors.Is(err, auth.ErrMissingToken) {
		return "Missing or invalid authorization header"
	}
	return "Invalid authentication token"
}

type alertsResponse struct {
	Alerts      []*pantry.AlertRecord `json:"alerts"`
	UnreadCount int                   `json:"unreadCount"`
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authorize(w, r)
	if !ok {
		return
	}

	all, err := s.store.ListAlerts(r.Context(), userID)
	if err != nil {
		s.logger.Error("Failed to list alerts", "user_id", userID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load alerts"})
		return
	}

	now := s.now()
	resp := alertsResponse{Alerts: make([]*pantry.AlertRecord, 0, len(all))}
	for _, a := range all {
		if a.Status == pantry.AlertUnread {
			resp.UnreadCount++
		}
		if a.Active(now) {
			resp.Alerts = append(resp.Alerts, a)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type snoozeRequest struct {
	Until time.Time `json:"until"`
}

func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authorize(w, r)
	if !ok {
		return
	}

	alertID := r.PathValue("id")
	action := r.PathValue("action")

	var snoozeUntil time.Time
	switch action {
	case "read", "dismiss":
	case "snooze":
		var req snoozeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil || req.Until.IsZero() {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "snooze requires an RFC 3339 \"until\" time"})
			return
		}
		snoozeUntil = req.Until.UTC()
	default:
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown action"})
		return
	}

	a, err := s.store.LoadAlert(r.Context(), userID, alertID)
	if err != nil {
		if s.isNotFound(err) {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Alert not found"})
			return
		}
		s.logger.Error("Failed to load alert", "user_id", userID, "alert_id", alertID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load alert"})
		return
	}
	// Stores scope lookups by owner; this guards stores that do not.
	if a.OwnerID != userID {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Alert not found"})
		return
	}

	applyAction(a, action, snoozeUntil)

	if err := s.store.SaveAlert(r.Context(), a); err != nil {
		s.logger.Error("Failed to save alert", "user_id", userID, "alert_id", alertID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update alert"})
		return
	}

	s.logger.Info("Alert updated", "user_id", userID, "alert_id", alertID, "status", a.Status)
	s.writeJSON(w, http.StatusOK, a)
}

// applyAction moves an alert to the status named by action. SentAt is never touched.
func applyAction(a *pantry.AlertRecord, action string, snoozeUntil time.Time) {
	switch action {
	case "read":
		a.Status = pantry.AlertRead
		a.SnoozedUntil = nil
	case "dismiss":
		a.Status = pantry.AlertDismissed
		a.SnoozedUntil = nil
	case "snooze":
		a.Status = pantry.AlertSnoozed
		a.SnoozedUntil = &snoozeUntil
	}
}
