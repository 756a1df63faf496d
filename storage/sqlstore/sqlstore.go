// Package sqlstore persists inventory records, preferences and alerts in
// Postgres through gorm.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"pantry-alerts/pkg/pantry"
	"pantry-alerts/storage"
)

// Store is a SQL-backed document store.
type Store struct {
	db *gorm.DB
}

// New wraps an existing gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres at dsn and migrates the schema.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger.New(
			slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
			gormLogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.AutoMigrate(Migrations...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Successfully connected to the database")
	return New(db), nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// notFound maps gorm's missing-row error to storage.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// SaveRecord upserts an inventory record.
func (s *Store) SaveRecord(ctx context.Context, rec *pantry.InventoryRecord) error {
	return s.db.WithContext(ctx).Save(toItemRow(rec)).Error
}

// ActiveExpiringBetween returns active records with expiration in [from, to].
func (s *Store) ActiveExpiringBetween(ctx context.Context, from, to string) ([]*pantry.InventoryRecord, error) {
	var rows []itemRow
	err := s.db.WithContext(ctx).
		Where("status = ? AND expiration_date >= ? AND expiration_date <= ?", string(pantry.ItemActive), from, to).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	recs := make([]*pantry.InventoryRecord, 0, len(rows))
	for i := range rows {
		recs = append(recs, rows[i].record())
	}
	return recs, nil
}

// SavePreference upserts a user's alert preference.
func (s *Store) SavePreference(ctx context.Context, userID string, pref pantry.UserAlertPreference) error {
	return s.db.WithContext(ctx).Save(&preferenceRow{
		UserID:    userID,
		AlertTime: string(pref.AlertTime),
		Timezone:  pref.Timezone,
		PushToken: pref.PushToken,
	}).Error
}

// Preference loads a user's alert preference. Returns storage.ErrNotFound
// when the user has none.
func (s *Store) Preference(ctx context.Context, userID string) (pantry.UserAlertPreference, error) {
	var row preferenceRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return pantry.UserAlertPreference{}, notFound(err)
	}
	return row.preference(), nil
}

// CreateAlert inserts a new alert.
func (s *Store) CreateAlert(ctx context.Context, a *pantry.AlertRecord) error {
	return s.db.WithContext(ctx).Create(toAlertRow(a)).Error
}

// SaveAlert updates an alert's mutable fields.
func (s *Store) SaveAlert(ctx context.Context, a *pantry.AlertRecord) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "snoozed_until"}),
	}).Create(toAlertRow(a)).Error
}

// LatestAlert returns the most recent alert for an item, or nil.
func (s *Store) LatestAlert(ctx context.Context, ownerID, itemID string) (*pantry.AlertRecord, error) {
	var rows []alertRow
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND inventory_record_id = ?", ownerID, itemID).
		Order("sent_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].alert(), nil
}

// ListAlerts returns a user's alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, ownerID string) ([]*pantry.AlertRecord, error) {
	var rows []alertRow
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("sent_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	alerts := make([]*pantry.AlertRecord, 0, len(rows))
	for i := range rows {
		alerts = append(alerts, rows[i].alert())
	}
	return alerts, nil
}

// LoadAlert loads one alert owned by ownerID.
func (s *Store) LoadAlert(ctx context.Context, ownerID, alertID string) (*pantry.AlertRecord, error) {
	var row alertRow
	if err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", alertID, ownerID).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.alert(), nil
}
