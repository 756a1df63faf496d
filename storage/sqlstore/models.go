package sqlstore

import (
	"time"

	"pantry-alerts/pkg/pantry"
)

// Migrations is the list of gorm models managed by the SQL store.
var Migrations = []any{
	&itemRow{},
	&preferenceRow{},
	&alertRow{},
}

type itemRow struct {
	ID             string `gorm:"primaryKey;size:128"`
	Name           string
	Quantity       float64
	Unit           string `gorm:"size:32"`
	StorageSpaceID string `gorm:"size:64"`
	Category       string `gorm:"size:64"`
	ExpirationDate string `gorm:"size:32;index:idx_items_status_expiration,priority:2"`
	Status         string `gorm:"size:16;index:idx_items_status_expiration,priority:1"`
	OwnerID        string `gorm:"size:128;index"`
	AddedAt        time.Time
}

func (itemRow) TableName() string { return "inventory_items" }

type preferenceRow struct {
	UserID    string `gorm:"primaryKey;size:128"`
	AlertTime string `gorm:"size:16"`
	Timezone  string `gorm:"size:64"`
	PushToken string
}

func (preferenceRow) TableName() string { return "user_preferences" }

type alertRow struct {
	ID                  string `gorm:"primaryKey;size:64"`
	InventoryRecordID   string `gorm:"size:128;index:idx_alerts_owner_item_sent,priority:2"`
	InventoryRecordName string
	Message             string
	ExpirationDate      string    `gorm:"size:32"`
	Status              string    `gorm:"size:16"`
	SentAt              time.Time `gorm:"index:idx_alerts_owner_item_sent,priority:3"`
	SnoozedUntil        *time.Time
	OwnerID             string `gorm:"size:128;index:idx_alerts_owner_item_sent,priority:1"`
}

func (alertRow) TableName() string { return "alerts" }

func toItemRow(r *pantry.InventoryRecord) *itemRow {
	return &itemRow{
		ID:             r.ID,
		Name:           r.Name,
		Quantity:       r.Quantity,
		Unit:           r.Unit,
		StorageSpaceID: r.StorageSpaceID,
		Category:       r.Category,
		ExpirationDate: r.ExpirationDate,
		Status:         string(r.Status),
		OwnerID:        r.OwnerID,
		AddedAt:        r.AddedAt,
	}
}

func (r *itemRow) record() *pantry.InventoryRecord {
	return &pantry.InventoryRecord{
		ID:             r.ID,
		Name:           r.Name,
		Quantity:       r.Quantity,
		Unit:           r.Unit,
		StorageSpaceID: r.StorageSpaceID,
		Category:       r.Category,
		ExpirationDate: r.ExpirationDate,
		Status:         pantry.ItemStatus(r.Status),
		OwnerID:        r.OwnerID,
		AddedAt:        r.AddedAt,
	}
}

func (r *preferenceRow) preference() pantry.UserAlertPreference {
	return pantry.UserAlertPreference{
		AlertTime: pantry.AlertTime(r.AlertTime),
		Timezone:  r.Timezone,
		PushToken: r.PushToken,
	}
}

func toAlertRow(a *pantry.AlertRecord) *alertRow {
	return &alertRow{
		ID:                  a.ID,
		InventoryRecordID:   a.InventoryRecordID,
		InventoryRecordName: a.InventoryRecordName,
		Message:             a.Message,
		ExpirationDate:      a.ExpirationDate,
		Status:              string(a.Status),
		SentAt:              a.SentAt.UTC(),
		SnoozedUntil:        a.SnoozedUntil,
		OwnerID:             a.OwnerID,
	}
}

func (r *alertRow) alert() *pantry.AlertRecord {
	return &pantry.AlertRecord{
		ID:                  r.ID,
		InventoryRecordID:   r.InventoryRecordID,
		InventoryRecordName: r.InventoryRecordName,
		Message:             r.Message,
		ExpirationDate:      r.ExpirationDate,
		Status:              pantry.AlertStatus(r.Status),
		SentAt:              r.SentAt.UTC(),
		SnoozedUntil:        r.SnoozedUntil,
		OwnerID:             r.OwnerID,
	}
}
