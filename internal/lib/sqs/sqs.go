// Package sqs forwards events to a project's Amazon SQS queue.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/smithy-go"

	"github.com/deppfellow/trackr/internal/model"
)

// MaxMessageSize is the SQS message body limit.
const MaxMessageSize = 256 * 1024

var (
	ErrInvalidConfig = errors.New("invalid sqs configuration")
	// ErrPermanent wraps failures that retrying cannot fix.
	ErrPermanent = errors.New("sqs forward failed permanently")
)

var permanentCodes = map[string]bool{
	"AccessDenied":                                true,
	"AccessDeniedException":                       true,
	"AWS.SimpleQueueService.NonExistentQueue":     true,
	"QueueDoesNotExist":                           true,
	"InvalidClientTokenId":                        true,
	"SignatureDoesNotMatch":                       true,
	"UnrecognizedClientException":                 true,
	"KMS.AccessDeniedException":                   true,
	"AWS.SimpleQueueService.MessageTooLong":       true,
	"InvalidParameterValue":                       true,
	"MissingParameter":                            true,
	"AWS.SimpleQueueService.UnsupportedOperation": true,
}

// Sender is the slice of the SQS API the forwarder uses.
type Sender interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
}

// SenderFactory builds a Sender for one project's credentials.
type SenderFactory func(ctx context.Context, cfg model.SQSConfig) (Sender, error)

// Validate checks a plugin configuration before it is stored.
func Validate(cfg model.SQSConfig) error {
	var problems []string
	u, err := url.Parse(cfg.QueueURL)
	if cfg.QueueURL == "" || err != nil || u.Scheme != "https" || u.Host == "" {
		problems = append(problems, "queue_url must be an https url")
	}
	if cfg.Region == "" {
		problems = append(problems, "region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		problems = append(problems, "access_key and secret_key are required")
	}
	if cfg.IsFIFO() && cfg.MessageGroupID == "" {
		problems = append(problems, "message_group_id is required for FIFO queues")
	}
	if cfg.Endpoint != "" {
		if e, err := url.Parse(cfg.Endpoint); err != nil || e.Host == "" {
			problems = append(problems, "endpoint must be a url")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// NewSender builds an SQS client with the project's static credentials.
func NewSender(ctx context.Context, cfg model.SQSConfig) (Sender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return awssqs.NewFromConfig(awsCfg, func(o *awssqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Send delivers body to the configured queue. FIFO queues deduplicate on
// dedupID.
func Send(ctx context.Context, sender Sender, cfg model.SQSConfig, dedupID string, body []byte) error {
	if len(body) > MaxMessageSize {
		return fmt.Errorf("%w: message is %d bytes, limit is %d", ErrPermanent, len(body), MaxMessageSize)
	}

	input := &awssqs.SendMessageInput{
		QueueUrl:    aws.String(cfg.QueueURL),
		MessageBody: aws.String(string(body)),
	}
	if cfg.IsFIFO() {
		input.MessageGroupId = aws.String(cfg.MessageGroupID)
		input.MessageDeduplicationId = aws.String(dedupID)
	}

	if _, err := sender.SendMessage(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && permanentCodes[apiErr.ErrorCode()] {
			return fmt.Errorf("%w: %s: %s", ErrPermanent, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}
