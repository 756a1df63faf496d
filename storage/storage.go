// Package storage persists inventory records, user preferences and alerts as
// JSON documents in Cloud Storage or a local directory.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"

	"pantry-alerts/pkg/pantry"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("storage: object doesn't exist")

const (
	itemsPrefix  = "items/"
	usersPrefix  = "users/"
	alertsPrefix = "alerts/"
)

var idRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Store handles document persistence.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a new storage handler. When localPath is set, documents are
// kept on the local filesystem and client may be nil.
func New(client *storage.Client, bucket string, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// ValidID reports whether id is safe to use as a path segment.
func ValidID(id string) bool {
	return idRegex.MatchString(id)
}

func itemKey(id string) string { return itemsPrefix + id + ".json" }

func userKey(id string) string { return usersPrefix + id + ".json" }

func alertDir(ownerID, itemID string) string {
	return alertsPrefix + ownerID + "/" + itemID + "/"
}

func alertKey(a *pantry.AlertRecord) string {
	return alertDir(a.OwnerID, a.InventoryRecordID) + a.ID + ".json"
}

// SaveRecord saves an inventory record.
func (s *Store) SaveRecord(ctx context.Context, rec *pantry.InventoryRecord) error {
	if !ValidID(rec.ID) || !ValidID(rec.OwnerID) {
		return errors.New("invalid record id")
	}
	return s.write(ctx, itemKey(rec.ID), rec)
}

// ActiveExpiringBetween returns active records whose expiration date lies in
// the closed range [from, to]. Dates compare as YYYY-MM-DD strings.
func (s *Store) ActiveExpiringBetween(ctx context.Context, from, to string) ([]*pantry.InventoryRecord, error) {
	keys, err := s.list(ctx, itemsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	var recs []*pantry.InventoryRecord
	for _, key := range keys {
		var rec pantry.InventoryRecord
		if err := s.read(ctx, key, &rec); err != nil {
			s.logger.Warn("Failed to load inventory record", "key", key, "error", err)
			continue
		}
		if rec.Status != pantry.ItemActive {
			continue
		}
		if rec.ExpirationDate < from || rec.ExpirationDate > to {
			continue
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

// SavePreference stores the alert preference for a user.
func (s *Store) SavePreference(ctx context.Context, userID string, pref pantry.UserAlertPreference) error {
	if !ValidID(userID) {
		return errors.New("invalid user id")
	}
	return s.write(ctx, userKey(userID), pref)
}

// Preference loads the alert preference for a user. Returns ErrNotFound when
// the user has no profile document.
func (s *Store) Preference(ctx context.Context, userID string) (pantry.UserAlertPreference, error) {
	var pref pantry.UserAlertPreference
	if !ValidID(userID) {
		return pref, ErrNotFound
	}
	if err := s.read(ctx, userKey(userID), &pref); err != nil {
		return pref, err
	}
	return pref, nil
}

// CreateAlert writes a new alert record.
func (s *Store) CreateAlert(ctx context.Context, a *pantry.AlertRecord) error {
	if !ValidID(a.ID) || !ValidID(a.OwnerID) || !ValidID(a.InventoryRecordID) {
		return errors.New("invalid alert id")
	}
	if err := s.write(ctx, alertKey(a), a); err != nil {
		return err
	}
	s.logger.Debug("Alert created", "alert_id", a.ID, "item_id", a.InventoryRecordID, "owner", a.OwnerID)
	return nil
}

// SaveAlert overwrites an existing alert record.
func (s *Store) SaveAlert(ctx context.Context, a *pantry.AlertRecord) error {
	return s.CreateAlert(ctx, a)
}

// LatestAlert returns the most recently sent alert for an inventory record,
// or nil when none exists.
func (s *Store) LatestAlert(ctx context.Context, ownerID, itemID string) (*pantry.AlertRecord, error) {
	if !ValidID(ownerID) || !ValidID(itemID) {
		return nil, nil
	}
	alerts, err := s.loadAlerts(ctx, alertDir(ownerID, itemID))
	if err != nil {
		return nil, err
	}
	var latest *pantry.AlertRecord
	for _, a := range alerts {
		if latest == nil || a.SentAt.After(latest.SentAt) {
			latest = a
		}
	}
	return latest, nil
}

// ListAlerts returns all alerts owned by a user, newest first.
func (s *Store) ListAlerts(ctx context.Context, ownerID string) ([]*pantry.AlertRecord, error) {
	if !ValidID(ownerID) {
		return nil, nil
	}
	alerts, err := s.loadAlerts(ctx, alertsPrefix+ownerID+"/")
	if err != nil {
		return nil, err
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].SentAt.After(alerts[j].SentAt) })
	return alerts, nil
}

// LoadAlert finds one alert owned by ownerID.
func (s *Store) LoadAlert(ctx context.Context, ownerID, alertID string) (*pantry.AlertRecord, error) {
	if !ValidID(ownerID) || !ValidID(alertID) {
		return nil, ErrNotFound
	}
	keys, err := s.list(ctx, alertsPrefix+ownerID+"/")
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, "/"+alertID+".json") {
			continue
		}
		var a pantry.AlertRecord
		if err := s.read(ctx, key, &a); err != nil {
			return nil, err
		}
		return &a, nil
	}
	return nil, ErrNotFound
}

func (s *Store) loadAlerts(ctx context.Context, prefix string) ([]*pantry.AlertRecord, error) {
	keys, err := s.list(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	alerts := make([]*pantry.AlertRecord, 0, len(keys))
	for _, key := range keys {
		var a pantry.AlertRecord
		if err := s.read(ctx, key, &a); err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("load alert %s: %w", key, err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, nil
}

func (s *Store) retryOptions(ctx context.Context, op, key string) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2 * time.Minute),
		retry.MaxJitter(10 * time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying storage operation after error", "op", op, "attempt", n, "key", key, "error", err)
		}),
	}
}

func (s *Store) write(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	// Local filesystem storage
	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
			return fmt.Errorf("create local storage directory: %w", err)
		}
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		return nil
	}

	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		s.retryOptions(ctx, "write", key)...,
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, key string, v any) error {
	var data []byte

	if s.localPath != "" {
		var err error
		data, err = os.ReadFile(filepath.Join(s.localPath, filepath.FromSlash(key)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return ErrNotFound
			}
			return fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		err := retry.Do(
			func() error {
				r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
				if openErr != nil {
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						return retry.Unrecoverable(ErrNotFound)
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						s.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				data, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			s.retryOptions(ctx, "read", key)...,
		)
		if err != nil {
			if IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("load after retries: %w", err)
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// list returns the keys of all JSON documents under prefix in lexical order.
func (s *Store) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	if s.localPath != "" {
		root := filepath.Join(s.localPath, filepath.FromSlash(prefix))
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
				return nil
			}
			rel, err := filepath.Rel(s.localPath, path)
			if err != nil {
				return err
			}
			keys = append(keys, filepath.ToSlash(rel))
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read local storage directory: %w", err)
		}
		sort.Strings(keys)
		return keys, nil
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		if strings.HasSuffix(attrs.Name, ".json") {
			keys = append(keys, attrs.Name)
		}
	}
	return keys, nil
}

// IsNotFound checks if an error indicates a document was not found.
func IsNotFound(err error) bool {
	return err != nil && (errors.Is(err, ErrNotFound) || strings.Contains(err.Error(), ErrNotFound.Error()))
}
