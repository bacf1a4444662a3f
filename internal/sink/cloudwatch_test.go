// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sink submits audit records to the remote log service.
package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/smithy-go"
)

type fakeCloudWatchAPI struct {
	putErrs   []error
	groupErr  error
	streamErr error

	putInputs    []*cloudwatchlogs.PutLogEventsInput
	groupInputs  []*cloudwatchlogs.CreateLogGroupInput
	streamInputs []*cloudwatchlogs.CreateLogStreamInput
}

func (f *fakeCloudWatchAPI) PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput,
	optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	f.putInputs = append(f.putInputs, params)
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &cloudwatchlogs.PutLogEventsOutput{}, nil
}

func (f *fakeCloudWatchAPI) CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput,
	optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	f.groupInputs = append(f.groupInputs, params)
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	return &cloudwatchlogs.CreateLogGroupOutput{}, nil
}

func (f *fakeCloudWatchAPI) CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput,
	optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	f.streamInputs = append(f.streamInputs, params)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func newTestSink(api *fakeCloudWatchAPI) *CloudWatch {
	return &CloudWatch{api: api, timeout: time.Second, ensured: make(map[string]bool)}
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "simulated " + code}
}

// ===== DELIVERY =====

func TestPut_Success(t *testing.T) {
	api := &fakeCloudWatchAPI{}
	s := newTestSink(api)

	err := s.Put(context.Background(), "/rigtrail/audit", "records", []Event{
		{TimestampMs: 1700000000000, Message: `{"trace_id":"a"}`},
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if len(api.putInputs) != 1 {
		t.Fatalf("expected 1 PutLogEvents call, got %d", len(api.putInputs))
	}

	in := api.putInputs[0]
	if aws.ToString(in.LogGroupName) != "/rigtrail/audit" {
		t.Errorf("log group = %q", aws.ToString(in.LogGroupName))
	}
	if aws.ToString(in.LogStreamName) != "records" {
		t.Errorf("log stream = %q", aws.ToString(in.LogStreamName))
	}
	if len(in.LogEvents) != 1 || aws.ToString(in.LogEvents[0].Message) != `{"trace_id":"a"}` {
		t.Errorf("unexpected log events: %+v", in.LogEvents)
	}
}

func TestPut_EmptyBatch(t *testing.T) {
	api := &fakeCloudWatchAPI{}
	s := newTestSink(api)

	if err := s.Put(context.Background(), "g", "s", nil); err != nil {
		t.Fatalf("Put failed on empty batch: %v", err)
	}
	if len(api.putInputs) != 0 {
		t.Error("empty batch still reached the service")
	}
}

func TestPut_OrdersEventsByTimestamp(t *testing.T) {
	api := &fakeCloudWatchAPI{}
	s := newTestSink(api)

	err := s.Put(context.Background(), "g", "s", []Event{
		{TimestampMs: 2000, Message: "second"},
		{TimestampMs: 1000, Message: "first"},
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	events := api.putInputs[0].LogEvents
	if aws.ToInt64(events[0].Timestamp) != 1000 || aws.ToInt64(events[1].Timestamp) != 2000 {
		t.Errorf("events not in ascending timestamp order: %+v", events)
	}
}

// ===== LAZY STREAM CREATION =====

func TestPut_CreatesMissingStream(t *testing.T) {
	api := &fakeCloudWatchAPI{putErrs: []error{apiError("ResourceNotFoundException"), nil}}
	s := newTestSink(api)

	err := s.Put(context.Background(), "g", "s", []Event{{TimestampMs: 1, Message: "m"}})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if len(api.groupInputs) != 1 || len(api.streamInputs) != 1 {
		t.Errorf("group created %d times, stream %d times; want 1 and 1",
			len(api.groupInputs), len(api.streamInputs))
	}
	if len(api.putInputs) != 2 {
		t.Errorf("expected the batch to be retried once, got %d calls", len(api.putInputs))
	}
}

func TestPut_ToleratesExistingGroupAndStream(t *testing.T) {
	api := &fakeCloudWatchAPI{
		putErrs:   []error{apiError("ResourceNotFoundException"), nil},
		groupErr:  apiError("ResourceAlreadyExistsException"),
		streamErr: apiError("ResourceAlreadyExistsException"),
	}
	s := newTestSink(api)

	err := s.Put(context.Background(), "g", "s", []Event{{TimestampMs: 1, Message: "m"}})
	if err != nil {
		t.Fatalf("Put failed when group and stream already exist: %v", err)
	}
}

func TestPut_EnsureStreamAuthFailure(t *testing.T) {
	api := &fakeCloudWatchAPI{
		putErrs:  []error{apiError("ResourceNotFoundException")},
		groupErr: apiError("AccessDeniedException"),
	}
	s := newTestSink(api)

	err := s.Put(context.Background(), "g", "s", []Event{{TimestampMs: 1, Message: "m"}})
	if !errors.Is(err, ErrAuth) {
		t.Errorf("error = %v, want ErrAuth", err)
	}
}

// ===== ERROR CLASSIFICATION =====

func TestPut_ThrottlingSignals(t *testing.T) {
	for _, code := range []string{"ThrottlingException", "TooManyRequestsException", "Throttling"} {
		t.Run(code, func(t *testing.T) {
			api := &fakeCloudWatchAPI{putErrs: []error{apiError(code)}}
			s := newTestSink(api)

			err := s.Put(context.Background(), "g", "s", []Event{{TimestampMs: 1, Message: "m"}})
			if !errors.Is(err, ErrThrottled) {
				t.Errorf("error = %v, want ErrThrottled", err)
			}
		})
	}
}

func TestPut_DataAlreadyAcceptedIsSuccess(t *testing.T) {
	api := &fakeCloudWatchAPI{putErrs: []error{apiError("DataAlreadyAcceptedException")}}
	s := newTestSink(api)

	err := s.Put(context.Background(), "g", "s", []Event{{TimestampMs: 1, Message: "m"}})
	if err != nil {
		t.Errorf("duplicate acceptance should count as success, got %v", err)
	}
}

func TestPut_AuthSignals(t *testing.T) {
	codes := []string{
		"AccessDeniedException",
		"UnrecognizedClientException",
		"UnauthorizedException",
		"ExpiredTokenException",
	}
	for _, code := range codes {
		t.Run(code, func(t *testing.T) {
			api := &fakeCloudWatchAPI{putErrs: []error{apiError(code)}}
			s := newTestSink(api)

			err := s.Put(context.Background(), "g", "s", []Event{{TimestampMs: 1, Message: "m"}})
			if !errors.Is(err, ErrAuth) {
				t.Errorf("error = %v, want ErrAuth", err)
			}
		})
	}
}

func TestPut_TransportSignals(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"service fault", apiError("ServiceUnavailableException")},
		{"invalid parameter", apiError("InvalidParameterException")},
		{"plain network error", errors.New("dial tcp: connection refused")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeCloudWatchAPI{putErrs: []error{tt.err}}
			s := newTestSink(api)

			err := s.Put(context.Background(), "g", "s", []Event{{TimestampMs: 1, Message: "m"}})
			if !errors.Is(err, ErrTransport) {
				t.Errorf("error = %v, want ErrTransport", err)
			}
		})
	}
}

// ===== CONSTRUCTION =====

func TestNewCloudWatchStatic(t *testing.T) {
	s, err := NewCloudWatchStatic(context.Background(), "ap-northeast-1", "AKIDEXAMPLE", "secret", 0)
	if err != nil {
		t.Fatalf("NewCloudWatchStatic failed: %v", err)
	}
	if s.api == nil {
		t.Error("expected a constructed CloudWatch Logs client")
	}
	if s.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want DefaultTimeout %v", s.timeout, DefaultTimeout)
	}
}

func TestNewCloudWatchStatic_KeepsTimeout(t *testing.T) {
	s, err := NewCloudWatchStatic(context.Background(), "us-east-1", "AKIDEXAMPLE", "secret", 5*time.Second)
	if err != nil {
		t.Fatalf("NewCloudWatchStatic failed: %v", err)
	}
	if s.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", s.timeout)
	}
}
