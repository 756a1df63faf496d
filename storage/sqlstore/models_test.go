package sqlstore

import (
	"testing"
	"time"

	"pantry-alerts/pkg/pantry"
)

func TestItemRowRoundTrip(t *testing.T) {
	rec := &pantry.InventoryRecord{
		ID:             "milk-1",
		Name:           "Milk",
		Quantity:       1.5,
		Unit:           "l",
		StorageSpaceID: "fridge",
		Category:       "dairy",
		ExpirationDate: "2026-03-15",
		Status:         pantry.ItemActive,
		OwnerID:        "alice",
		AddedAt:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	got := toItemRow(rec).record()
	if *got != *rec {
		t.Errorf("round trip = %+v, want %+v", got, rec)
	}
}

func TestAlertRowRoundTrip(t *testing.T) {
	sentAt := time.Date(2026, 3, 14, 15, 4, 5, 0, time.FixedZone("CET", 3600))
	until := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	a := &pantry.AlertRecord{
		ID:                  "alert-1",
		InventoryRecordID:   "milk-1",
		InventoryRecordName: "Milk",
		Message:             "Expires tomorrow. Plan to use it soon!",
		ExpirationDate:      "2026-03-15",
		Status:              pantry.AlertSnoozed,
		SentAt:              sentAt,
		SnoozedUntil:        &until,
		OwnerID:             "alice",
	}

	row := toAlertRow(a)
	if row.SentAt.Location() != time.UTC {
		t.Errorf("row SentAt location = %v, want UTC", row.SentAt.Location())
	}

	got := row.alert()
	if !got.SentAt.Equal(sentAt) {
		t.Errorf("SentAt = %v, want %v", got.SentAt, sentAt)
	}
	if got.SnoozedUntil == nil || !got.SnoozedUntil.Equal(until) {
		t.Errorf("SnoozedUntil = %v, want %v", got.SnoozedUntil, until)
	}
	if got.Status != pantry.AlertSnoozed || got.OwnerID != "alice" || got.InventoryRecordID != "milk-1" {
		t.Errorf("alert = %+v", got)
	}
}

func TestPreferenceRow(t *testing.T) {
	row := &preferenceRow{UserID: "alice", AlertTime: "evening", Timezone: "Europe/Berlin", PushToken: "tok"}
	want := pantry.UserAlertPreference{AlertTime: pantry.AlertEvening, Timezone: "Europe/Berlin", PushToken: "tok"}
	if got := row.preference(); got != want {
		t.Errorf("preference() = %+v, want %+v", got, want)
	}
}
