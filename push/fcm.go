package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/fcm/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// FCMProvider sends notifications via the Firebase Cloud Messaging HTTP v1 API.
type FCMProvider struct {
	service *fcm.Service
	parent  string // projects/{project_id}
	logger  *slog.Logger
}

// NewFCMProvider creates a new FCM provider for the given Firebase project.
func NewFCMProvider(ctx context.Context, projectID string, logger *slog.Logger, opts ...option.ClientOption) (*FCMProvider, error) {
	if projectID == "" {
		return nil, errors.New("firebase project id required")
	}
	svc, err := fcm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create fcm service: %w", err)
	}
	return &FCMProvider{
		service: svc,
		parent:  "projects/" + projectID,
		logger:  logger,
	}, nil
}

// fcmMessage converts a notification into an FCM v1 message.
func fcmMessage(token string, n *Notification) (*fcm.Message, error) {
	aps, err := json.Marshal(map[string]any{
		"aps": map[string]any{
			"badge": n.Badge,
			"sound": "default",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal apns payload: %w", err)
	}
	return &fcm.Message{
		Token: token,
		Notification: &fcm.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
		Android: &fcm.AndroidConfig{
			Priority: "HIGH",
			Notification: &fcm.AndroidNotification{
				ChannelId: androidChannel,
				Icon:      androidIcon,
			},
		},
		Apns: &fcm.ApnsConfig{
			Payload: googleapi.RawMessage(aps),
		},
	}, nil
}

// Send sends a notification via FCM.
func (f *FCMProvider) Send(ctx context.Context, token string, n *Notification) error {
	msg, err := fcmMessage(token, n)
	if err != nil {
		return err
	}

	f.logger.Info("FCM API request starting", "endpoint", "projects.messages.send", "parent", f.parent)
	startTime := time.Now()
	resp, err := f.service.Projects.Messages.Send(f.parent, &fcm.SendMessageRequest{Message: msg}).Context(ctx).Do()
	duration := time.Since(startTime)
	if err != nil {
		if unregistered(err) {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return fmt.Errorf("fcm send: %w", err)
	}

	f.logger.Info("FCM API request completed",
		"endpoint", "projects.messages.send",
		"message", resp.Name,
		"duration_ms", duration.Milliseconds())
	return nil
}

// unregistered reports whether FCM rejected the device token rather than the
// message. INVALID_ARGUMENT responses describe a bad payload and stay retryable.
func unregistered(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusNotFound || strings.Contains(apiErr.Body, "UNREGISTERED")
}
