// Package alerts generates expiration alerts for inventory records and sends
// one consolidated push notification per user per run.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"pantry-alerts/pkg/pantry"
)

// windowDays bounds the candidate query on both sides of today.
const windowDays = 7

// triggerDays are the day offsets that warrant a fresh alert. Any negative
// offset (already expired) also triggers.
var triggerDays = map[int]bool{0: true, 1: true, 3: true, 7: true}

// Store is the document store used by a run.
type Store interface {
	ActiveExpiringBetween(ctx context.Context, from, to string) ([]*pantry.InventoryRecord, error)
	Preference(ctx context.Context, userID string) (pantry.UserAlertPreference, error)
	LatestAlert(ctx context.Context, ownerID, itemID string) (*pantry.AlertRecord, error)
	CreateAlert(ctx context.Context, a *pantry.AlertRecord) error
}

// Notifier delivers the consolidated notification for one user.
type Notifier interface {
	SendExpiring(ctx context.Context, token string, items []string) error
}

// IsNotFound checks if a store error means the document does not exist.
type IsNotFound func(error) bool

// Config holds generator dependencies.
type Config struct {
	Store      Store
	Notifier   Notifier
	Logger     *slog.Logger
	IsNotFound IsNotFound
	Now        func() time.Time // Defaults to time.Now
	NewID      func() string    // Defaults to uuid.NewString
}

// Generator runs the expiration alert algorithm.
type Generator struct {
	store      Store
	notifier   Notifier
	logger     *slog.Logger
	isNotFound IsNotFound
	now        func() time.Time
	newID      func() string
}

// Result summarizes one run.
type Result struct {
	Candidates        int `json:"candidates"`
	AlertsCreated     int `json:"alertsCreated"`
	NotificationsSent int `json:"notificationsSent"`
	SkippedWrongTime  int `json:"skippedWrongTime"`
	SkippedOff        int `json:"skippedOff"`
	Failed            int `json:"failed"`
}

// New creates a new alert generator.
func New(cfg *Config) *Generator {
	g := &Generator{
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		logger:     cfg.Logger,
		isNotFound: cfg.IsNotFound,
		now:        cfg.Now,
		newID:      cfg.NewID,
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.newID == nil {
		g.newID = uuid.NewString
	}
	if g.isNotFound == nil {
		g.isNotFound = func(error) bool { return false }
	}
	return g
}

// pending collects the item names to notify a single user about.
type pending struct {
	token string
	items []string
}

// Run scans expiring inventory, creates alerts and sends notifications.
// Runs are safe to repeat: an item is alerted at most once per UTC day.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	now := g.now().UTC()
	today := Today(now)
	from, to := Window(today)

	g.logger.Info("Starting expiration alert generation", "today", today.Format(pantry.DateLayout), "from", from, "to", to)

	recs, err := g.store.ActiveExpiringBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query expiring items: %w", err)
	}

	res := &Result{Candidates: len(recs)}
	g.logger.Info("Found items expiring soon", "count", len(recs))

	prefs := make(map[string]pantry.UserAlertPreference)
	byUser := make(map[string]*pending)
	var order []string

	for _, rec := range recs {
		select {
		case <-ctx.Done():
			g.logger.Info("Context cancelled, stopping alert generation", "error", ctx.Err())
			return res, ctx.Err()
		default:
		}

		pref, ok := prefs[rec.OwnerID]
		if !ok {
			pref, err = g.preference(ctx, rec.OwnerID)
			if err != nil {
				g.logger.Warn("Failed to load user preference", "user_id", rec.OwnerID, "item_id", rec.ID, "error", err)
				res.Failed++
				continue
			}
			prefs[rec.OwnerID] = pref
		}

		if pref.AlertTime == pantry.AlertOff {
			res.SkippedOff++
			continue
		}
		// Time-of-day gating via InAlertWindow is intentionally not applied
		// here; alerts fire on every run. SkippedWrongTime stays zero.

		days, err := DaysUntil(rec.ExpirationDate, today)
		if err != nil {
			g.logger.Warn("Invalid expiration date", "item_id", rec.ID, "expiration_date", rec.ExpirationDate, "error", err)
			res.Failed++
			continue
		}
		if !ShouldAlert(days) {
			continue
		}

		created, err := g.alertOnce(ctx, rec, days, today, now)
		if err != nil {
			g.logger.Warn("Failed to create alert", "item_id", rec.ID, "user_id", rec.OwnerID, "error", err)
			res.Failed++
			continue
		}
		if !created {
			continue
		}
		res.AlertsCreated++

		if pref.PushToken == "" {
			continue
		}
		p, ok := byUser[rec.OwnerID]
		if !ok {
			p = &pending{token: pref.PushToken}
			byUser[rec.OwnerID] = p
			order = append(order, rec.OwnerID)
		}
		p.items = append(p.items, rec.Name)
	}

	// One combined notification per user, after every record is resolved.
	for _, userID := range order {
		p := byUser[userID]
		if err := g.notifier.SendExpiring(ctx, p.token, p.items); err != nil {
			g.logger.Error("Failed to send push", "user_id", userID, "item_count", len(p.items), "error", err)
			continue
		}
		res.NotificationsSent++
	}

	g.logger.Info("Expiration alert generation completed",
		"candidates", res.Candidates,
		"alerts_created", res.AlertsCreated,
		"notifications_sent", res.NotificationsSent,
		"skipped_wrong_time", res.SkippedWrongTime,
		"skipped_off", res.SkippedOff,
		"failed", res.Failed)

	return res, nil
}

func (g *Generator) preference(ctx context.Context, userID string) (pantry.UserAlertPreference, error) {
	pref, err := g.store.Preference(ctx, userID)
	if err != nil {
		if g.isNotFound(err) {
			return pantry.DefaultPreference(), nil
		}
		return pref, err
	}
	return pref.WithDefaults(), nil
}

// alertOnce writes an alert for rec unless one was already sent today.
func (g *Generator) alertOnce(ctx context.Context, rec *pantry.InventoryRecord, days int, today, now time.Time) (bool, error) {
	last, err := g.store.LatestAlert(ctx, rec.OwnerID, rec.ID)
	if err != nil {
		return false, fmt.Errorf("load latest alert: %w", err)
	}
	if last != nil && SameDay(last.SentAt, today) {
		g.logger.Debug("Already alerted today", "item_id", rec.ID, "last_sent_at", last.SentAt.Format(time.RFC3339))
		return false, nil
	}

	a := &pantry.AlertRecord{
		ID:                  g.newID(),
		InventoryRecordID:   rec.ID,
		InventoryRecordName: rec.Name,
		Message:             Message(days),
		ExpirationDate:      rec.ExpirationDate,
		Status:              pantry.AlertUnread,
		SentAt:              now,
		OwnerID:             rec.OwnerID,
	}
	if err := g.store.CreateAlert(ctx, a); err != nil {
		return false, fmt.Errorf("create alert: %w", err)
	}
	g.logger.Info("Alert created", "item_id", rec.ID, "user_id", rec.OwnerID, "days_until_expiration", days)
	return true, nil
}

// Today truncates t to midnight UTC.
func Today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Window returns the closed date range [today-7d, today+7d] as YYYY-MM-DD.
func Window(today time.Time) (from, to string) {
	return today.AddDate(0, 0, -windowDays).Format(pantry.DateLayout),
		today.AddDate(0, 0, windowDays).Format(pantry.DateLayout)
}

// SameDay reports whether t falls on the UTC calendar day that starts at today.
func SameDay(t, today time.Time) bool {
	return Today(t).Equal(today)
}

// ParseDate parses an expiration date given as YYYY-MM-DD or RFC 3339 and
// truncates it to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(pantry.DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("expiration date must be YYYY-MM-DD or RFC 3339")
	}
	return Today(t), nil
}

// DaysUntil returns the number of calendar days from today to the expiration date.
func DaysUntil(expirationDate string, today time.Time) (int, error) {
	exp, err := ParseDate(expirationDate)
	if err != nil {
		return 0, err
	}
	return int(math.Ceil(exp.Sub(today).Hours() / 24)), nil
}

// ShouldAlert reports whether an item days from expiration warrants an alert.
func ShouldAlert(days int) bool {
	return days < 0 || triggerDays[days]
}

// Message returns the alert text for an item days from expiration.
func Message(days int) string {
	switch {
	case days < 0:
		n := -days
		if n == 1 {
			return "Expired 1 day ago"
		}
		return fmt.Sprintf("Expired %d days ago", n)
	case days == 0:
		return "Expires today! Use it before it goes bad."
	case days == 1:
		return "Expires tomorrow. Plan to use it soon!"
	default:
		return fmt.Sprintf("Expires in %d days", days)
	}
}
