package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// snsAPI is the subset of the SNS client used for delivery.
type snsAPI interface {
	CreatePlatformEndpoint(ctx context.Context, in *sns.CreatePlatformEndpointInput, optFns ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error)
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSProvider sends notifications through an Amazon SNS platform application.
type SNSProvider struct {
	client      snsAPI
	platformArn string
	logger      *slog.Logger
}

// NewSNSProvider creates a new SNS provider using the default AWS credential chain.
func NewSNSProvider(ctx context.Context, region, platformArn string, logger *slog.Logger) (*SNSProvider, error) {
	if platformArn == "" {
		return nil, errors.New("SNS platform application ARN required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SNSProvider{
		client:      sns.NewFromConfig(cfg),
		platformArn: platformArn,
		logger:      logger,
	}, nil
}

// snsMessage builds the per-platform JSON message structure. SNS expects
// each platform value to be a JSON-encoded string.
func snsMessage(n *Notification) (string, error) {
	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title":              n.Title,
			"body":               n.Body,
			"android_channel_id": androidChannel,
			"icon":               androidIcon,
		},
		"data":     n.Data,
		"priority": "high",
	})
	if err != nil {
		return "", err
	}
	apns, err := json.Marshal(map[string]any{
		"aps": map[string]any{
			"alert": map[string]string{"title": n.Title, "body": n.Body},
			"badge": n.Badge,
			"sound": "default",
		},
		"type":      n.Data["type"],
		"itemCount": n.Data["itemCount"],
	})
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(map[string]string{
		"default":      n.Body,
		"GCM":          string(gcm),
		"APNS":         string(apns),
		"APNS_SANDBOX": string(apns),
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Send registers token as a platform endpoint and publishes n to it.
// CreatePlatformEndpoint is idempotent for a token already registered.
func (p *SNSProvider) Send(ctx context.Context, token string, n *Notification) error {
	msg, err := snsMessage(n)
	if err != nil {
		return fmt.Errorf("marshal sns message: %w", err)
	}

	ep, err := p.client.CreatePlatformEndpoint(ctx, &sns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(p.platformArn),
		Token:                  aws.String(token),
	})
	if err != nil {
		var invalid *types.InvalidParameterException
		if errors.As(err, &invalid) {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return fmt.Errorf("create platform endpoint: %w", err)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		MessageStructure: aws.String("json"),
		Message:          aws.String(msg),
		TargetArn:        ep.EndpointArn,
	})
	if err != nil {
		var disabled *types.EndpointDisabledException
		if errors.As(err, &disabled) {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return fmt.Errorf("sns publish: %w", err)
	}

	p.logger.Info("SNS publish completed", "message_id", aws.ToString(out.MessageId))
	return nil
}
