// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sink submits audit records to the remote log service.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"
)

// DefaultTimeout bounds one Put round trip.
const DefaultTimeout = 10 * time.Second

// cloudwatchAPI is the slice of the CloudWatch Logs client the sink uses.
type cloudwatchAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput,
		optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput,
		optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput,
		optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
}

// CloudWatch delivers events to CloudWatch Logs, lazily creating the log
// group and stream on first use.
type CloudWatch struct {
	api     cloudwatchAPI
	timeout time.Duration

	mu      sync.Mutex
	ensured map[string]bool
}

// NewCloudWatch builds a CloudWatch sink from the ambient AWS configuration
// for the given region, optionally pinning a shared-config profile.
func NewCloudWatch(ctx context.Context, region, profile string, timeout time.Duration) (*CloudWatch, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return newFromAWSConfig(cfg, timeout), nil
}

// NewCloudWatchStatic builds a sink with fixed credentials, bypassing the
// ambient chain. Meant for tests and CloudWatch-compatible local endpoints
// where no shared config or instance role exists.
func NewCloudWatchStatic(ctx context.Context, region, accessKeyID, secretKey string, timeout time.Duration) (*CloudWatch, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return newFromAWSConfig(cfg, timeout), nil
}

func newFromAWSConfig(cfg aws.Config, timeout time.Duration) *CloudWatch {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CloudWatch{
		api:     cloudwatchlogs.NewFromConfig(cfg),
		timeout: timeout,
		ensured: make(map[string]bool),
	}
}

// Put submits one batch. A missing group or stream is created and the batch
// retried once; DataAlreadyAccepted from the service counts as success since
// the events are already stored remotely.
func (c *CloudWatch) Put(ctx context.Context, group, stream string, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	// PutLogEvents requires events in ascending timestamp order.
	sorted := append([]Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampMs < sorted[j].TimestampMs })

	input := make([]types.InputLogEvent, len(sorted))
	for i, e := range sorted {
		input[i] = types.InputLogEvent{
			Timestamp: aws.Int64(e.TimestampMs),
			Message:   aws.String(e.Message),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.api.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
		LogEvents:     input,
	})
	if err != nil && errorCode(err) == "ResourceNotFoundException" {
		if err = c.ensureStream(ctx, group, stream); err != nil {
			return err
		}
		_, err = c.api.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(group),
			LogStreamName: aws.String(stream),
			LogEvents:     input,
		})
	}
	return classify(err)
}

// ensureStream creates the log group and stream, tolerating both already
// existing. Each group/stream pair is ensured once per sink lifetime.
func (c *CloudWatch) ensureStream(ctx context.Context, group, stream string) error {
	key := group + "\x00" + stream
	c.mu.Lock()
	done := c.ensured[key]
	c.mu.Unlock()
	if done {
		return nil
	}

	_, err := c.api.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(group),
	})
	if err != nil && errorCode(err) != "ResourceAlreadyExistsException" {
		return classify(fmt.Errorf("failed to create log group %s: %w", group, err))
	}

	_, err = c.api.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
	})
	if err != nil && errorCode(err) != "ResourceAlreadyExistsException" {
		return classify(fmt.Errorf("failed to create log stream %s: %w", stream, err))
	}

	c.mu.Lock()
	c.ensured[key] = true
	c.mu.Unlock()
	return nil
}

// errorCode extracts the service error code, empty for non-API errors.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// classify maps a raw delivery error onto the sentinel the retry logic
// dispatches on.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch errorCode(err) {
	case "ThrottlingException", "TooManyRequestsException", "Throttling":
		return fmt.Errorf("%w: %v", ErrThrottled, err)
	case "DataAlreadyAcceptedException":
		// The service already holds these events; treat as acknowledged.
		return nil
	case "AccessDeniedException", "UnrecognizedClientException", "UnauthorizedException",
		"InvalidSignatureException", "ExpiredTokenException":
		return fmt.Errorf("%w: %v", ErrAuth, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}
