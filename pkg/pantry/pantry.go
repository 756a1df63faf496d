// Package pantry contains the core domain types for the expiration alert service.
package pantry

import "time"

// DateLayout is the calendar-date format used for expiration dates.
const DateLayout = "2006-01-02"

// ItemStatus is the lifecycle state of an inventory record.
type ItemStatus string

const (
	ItemActive ItemStatus = "active"
	ItemUsed   ItemStatus = "used"
)

// AlertTime is a user's preferred time of day for alerts.
type AlertTime string

const (
	AlertMorning   AlertTime = "morning"
	AlertAfternoon AlertTime = "afternoon"
	AlertEvening   AlertTime = "evening"
	AlertOff       AlertTime = "off"
)

// AlertStatus is the read state of an alert record.
type AlertStatus string

const (
	AlertUnread    AlertStatus = "unread"
	AlertRead      AlertStatus = "read"
	AlertSnoozed   AlertStatus = "snoozed"
	AlertDismissed AlertStatus = "dismissed"
)

// InventoryRecord is one tracked food item.
type InventoryRecord struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Quantity       float64    `json:"quantity,omitempty"`
	Unit           string     `json:"unit,omitempty"`
	StorageSpaceID string     `json:"storageSpaceId,omitempty"`
	Category       string     `json:"category,omitempty"`
	ExpirationDate string     `json:"expirationDate"` // YYYY-MM-DD
	Status         ItemStatus `json:"status"`
	OwnerID        string     `json:"userId"`
	AddedAt        time.Time  `json:"addedAt,omitzero"`
}

// UserAlertPreference holds the alert settings read from a user profile.
type UserAlertPreference struct {
	AlertTime AlertTime `json:"alertTime,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`
	PushToken string    `json:"fcmToken,omitempty"`
}

// DefaultPreference is applied when a user has no profile document.
func DefaultPreference() UserAlertPreference {
	return UserAlertPreference{AlertTime: AlertMorning, Timezone: "UTC"}
}

// WithDefaults fills missing fields with the defaults.
func (p UserAlertPreference) WithDefaults() UserAlertPreference {
	if p.AlertTime == "" {
		p.AlertTime = AlertMorning
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	return p
}

// AlertRecord is a generated notification event for one inventory record.
type AlertRecord struct {
	ID                  string      `json:"id"`
	InventoryRecordID   string      `json:"foodItemId"`
	InventoryRecordName string      `json:"foodItemName"` // Snapshot at alert time
	Message             string      `json:"message"`
	ExpirationDate      string      `json:"expirationDate"`
	Status              AlertStatus `json:"status"`
	SentAt              time.Time   `json:"sentAt"`
	SnoozedUntil        *time.Time  `json:"snoozedUntil,omitempty"`
	OwnerID             string      `json:"userId"`
}

// Active reports whether the alert should still be shown to its owner at now.
// Dismissed alerts are hidden; snoozed alerts reappear once the snooze ends.
func (a *AlertRecord) Active(now time.Time) bool {
	switch a.Status {
	case AlertDismissed:
		return false
	case AlertSnoozed:
		return a.SnoozedUntil != nil && !a.SnoozedUntil.After(now)
	default:
		return true
	}
}
