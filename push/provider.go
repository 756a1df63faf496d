// Package push sends expiration notifications through pluggable push providers.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	// TypeExpirationAlert tags the payload so clients can route a tap to the alerts view.
	TypeExpirationAlert = "expiration_alert"

	androidChannel = "expiration_alerts"
	androidIcon    = "ic_notification"
	maxListedItems = 3
)

// ErrInvalidToken indicates the device token is no longer deliverable.
// Sends failing with it are not retried.
var ErrInvalidToken = errors.New("push: invalid or unregistered token")

// Notification is a provider-neutral push message.
type Notification struct {
	Title string
	Body  string
	Badge int
	Data  map[string]string
}

// Provider defines the interface for push delivery implementations.
type Provider interface {
	// Send delivers n to the device identified by token.
	Send(ctx context.Context, token string, n *Notification) error
}

// Expiring builds the consolidated notification for a user's newly alerted items.
func Expiring(items []string) *Notification {
	count := len(items)
	n := &Notification{
		Badge: count,
		Data: map[string]string{
			"type":      TypeExpirationAlert,
			"itemCount": strconv.Itoa(count),
		},
	}
	if count == 1 {
		n.Title = fmt.Sprintf("🍎 %s is expiring!", items[0])
		n.Body = "Check your inventory for details"
		return n
	}

	n.Title = fmt.Sprintf("🍎 %d items need attention", count)
	listed := items
	if count > maxListedItems {
		listed = items[:maxListedItems]
	}
	n.Body = strings.Join(listed, ", ")
	if count > maxListedItems {
		n.Body += fmt.Sprintf(" and %d more", count-maxListedItems)
	}
	return n
}

// Sender sends notifications using a pluggable provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	attempts uint
}

// New creates a new push sender with the given provider.
func New(provider Provider, logger *slog.Logger) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
		attempts: 3,
	}
}

// SendExpiring sends one consolidated expiration notification to token.
func (s *Sender) SendExpiring(ctx context.Context, token string, items []string) error {
	if len(items) == 0 {
		return nil
	}
	n := Expiring(items)

	s.logger.Info("Sending push notification", "title", n.Title, "item_count", len(items))

	err := retry.Do(
		func() error {
			startTime := time.Now()
			err := s.provider.Send(ctx, token, n)
			if err != nil {
				s.logger.Warn("Push send failed",
					"duration_ms", time.Since(startTime).Milliseconds(),
					"error", err)
				if errors.Is(err, ErrInvalidToken) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying push send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("after retries: %w", err)
	}

	s.logger.Info("Push successfully sent", "item_count", len(items))
	return nil
}
