package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"google.golang.org/api/googleapi"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExpiring(t *testing.T) {
	tests := []struct {
		name      string
		items     []string
		wantTitle string
		wantBody  string
	}{
		{
			name:      "single item",
			items:     []string{"Milk"},
			wantTitle: "🍎 Milk is expiring!",
			wantBody:  "Check your inventory for details",
		},
		{
			name:      "two items",
			items:     []string{"Milk", "Eggs"},
			wantTitle: "🍎 2 items need attention",
			wantBody:  "Milk, Eggs",
		},
		{
			name:      "three items",
			items:     []string{"Milk", "Eggs", "Bread"},
			wantTitle: "🍎 3 items need attention",
			wantBody:  "Milk, Eggs, Bread",
		},
		{
			name:      "four items",
			items:     []string{"ItemA", "ItemB", "ItemC", "ItemD"},
			wantTitle: "🍎 4 items need attention",
			wantBody:  "ItemA, ItemB, ItemC and 1 more",
		},
		{
			name:      "many items",
			items:     []string{"A", "B", "C", "D", "E", "F", "G"},
			wantTitle: "🍎 7 items need attention",
			wantBody:  "A, B, C and 4 more",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Expiring(tt.items)
			if n.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", n.Title, tt.wantTitle)
			}
			if n.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", n.Body, tt.wantBody)
			}
			if n.Badge != len(tt.items) {
				t.Errorf("Badge = %d, want %d", n.Badge, len(tt.items))
			}
			if n.Data["type"] != TypeExpirationAlert {
				t.Errorf("Data[type] = %q, want %q", n.Data["type"], TypeExpirationAlert)
			}
		})
	}
}

type recordingProvider struct {
	calls int
	err   error
	last  *Notification
	token string
}

func (p *recordingProvider) Send(_ context.Context, token string, n *Notification) error {
	p.calls++
	p.last = n
	p.token = token
	return p.err
}

func TestSenderSendExpiring(t *testing.T) {
	p := &recordingProvider{}
	s := New(p, discardLogger())

	if err := s.SendExpiring(context.Background(), "device", []string{"Milk", "Eggs"}); err != nil {
		t.Fatalf("SendExpiring() error = %v", err)
	}
	if p.calls != 1 || p.token != "device" {
		t.Fatalf("provider calls = %d token = %q", p.calls, p.token)
	}
	if p.last.Badge != 2 || p.last.Data["itemCount"] != "2" {
		t.Errorf("notification = %+v", p.last)
	}
}

func TestSenderNoItems(t *testing.T) {
	p := &recordingProvider{}
	if err := New(p, discardLogger()).SendExpiring(context.Background(), "device", nil); err != nil {
		t.Fatalf("SendExpiring() error = %v", err)
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times for an empty list", p.calls)
	}
}

func TestSenderInvalidTokenNotRetried(t *testing.T) {
	p := &recordingProvider{err: ErrInvalidToken}
	err := New(p, discardLogger()).SendExpiring(context.Background(), "stale", []string{"Milk"})
	if err == nil {
		t.Fatal("SendExpiring() error = nil, want error")
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1", p.calls)
	}
}

func TestFCMMessage(t *testing.T) {
	n := Expiring([]string{"A", "B", "C", "D"})
	msg, err := fcmMessage("device", n)
	if err != nil {
		t.Fatalf("fcmMessage() error = %v", err)
	}
	if msg.Token != "device" || msg.Notification.Title != n.Title || msg.Notification.Body != n.Body {
		t.Errorf("message = %+v", msg)
	}
	if msg.Android.Priority != "HIGH" || msg.Android.Notification.ChannelId != "expiration_alerts" {
		t.Errorf("android config = %+v", msg.Android)
	}
	if msg.Data["itemCount"] != "4" || msg.Data["type"] != "expiration_alert" {
		t.Errorf("data = %v", msg.Data)
	}

	var payload struct {
		Aps struct {
			Badge int    `json:"badge"`
			Sound string `json:"sound"`
		} `json:"aps"`
	}
	if err := json.Unmarshal(msg.Apns.Payload, &payload); err != nil {
		t.Fatalf("unmarshal apns payload: %v", err)
	}
	if payload.Aps.Badge != 4 || payload.Aps.Sound != "default" {
		t.Errorf("aps = %+v", payload.Aps)
	}
}

type fakeSNS struct {
	endpointErr error
	publishErr  error
	published   *sns.PublishInput
}

func (f *fakeSNS) CreatePlatformEndpoint(_ context.Context, in *sns.CreatePlatformEndpointInput, _ ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error) {
	if f.endpointErr != nil {
		return nil, f.endpointErr
	}
	return &sns.CreatePlatformEndpointOutput{EndpointArn: aws.String("arn:endpoint/" + aws.ToString(in.Token))}, nil
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = in
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSProviderSend(t *testing.T) {
	fake := &fakeSNS{}
	p := &SNSProvider{client: fake, platformArn: "arn:app", logger: discardLogger()}

	if err := p.Send(context.Background(), "device", Expiring([]string{"Milk"})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if aws.ToString(fake.published.TargetArn) != "arn:endpoint/device" {
		t.Errorf("TargetArn = %q", aws.ToString(fake.published.TargetArn))
	}
	if aws.ToString(fake.published.MessageStructure) != "json" {
		t.Errorf("MessageStructure = %q", aws.ToString(fake.published.MessageStructure))
	}

	var envelope map[string]string
	if err := json.Unmarshal([]byte(aws.ToString(fake.published.Message)), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	var gcm struct {
		Notification map[string]string `json:"notification"`
		Data         map[string]string `json:"data"`
	}
	if err := json.Unmarshal([]byte(envelope["GCM"]), &gcm); err != nil {
		t.Fatalf("GCM value is not a JSON string: %v", err)
	}
	if gcm.Notification["title"] != "🍎 Milk is expiring!" || gcm.Data["type"] != "expiration_alert" {
		t.Errorf("GCM payload = %+v", gcm)
	}
	if envelope["default"] != "Check your inventory for details" {
		t.Errorf("default = %q", envelope["default"])
	}
}

func TestSNSProviderPublishError(t *testing.T) {
	fake := &fakeSNS{publishErr: errors.New("throttled")}
	p := &SNSProvider{client: fake, platformArn: "arn:app", logger: discardLogger()}

	err := p.Send(context.Background(), "device", Expiring([]string{"Milk"}))
	if err == nil || errors.Is(err, ErrInvalidToken) {
		t.Errorf("Send() error = %v, want a retryable error", err)
	}
}

func TestUnregistered(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "not found",
			err:  &googleapi.Error{Code: 404, Message: "Requested entity was not found."},
			want: true,
		},
		{
			name: "unregistered detail",
			err: &googleapi.Error{
				Code: 400,
				Body: `{"error":{"code":400,"status":"INVALID_ARGUMENT","details":[{"errorCode":"UNREGISTERED"}]}}`,
			},
			want: true,
		},
		{
			name: "invalid payload",
			err: &googleapi.Error{
				Code: 400,
				Body: `{"error":{"code":400,"status":"INVALID_ARGUMENT","details":[{"errorCode":"INVALID_ARGUMENT"}]}}`,
			},
			want: false,
		},
		{
			name: "server error",
			err:  &googleapi.Error{Code: 503},
			want: false,
		},
		{
			name: "wrapped not found",
			err:  fmt.Errorf("send: %w", &googleapi.Error{Code: 404}),
			want: true,
		},
		{
			name: "not an api error",
			err:  errors.New("dial tcp: timeout"),
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unregistered(tt.err); got != tt.want {
				t.Errorf("unregistered() = %v, want %v", got, tt.want)
			}
		})
	}
}
