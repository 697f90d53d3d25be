// Package kinesisstream adapts an AWS Kinesis client to streamclient.Transport.
package kinesisstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	kinesistypes "github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/illmade-knight/go-batchsend/pkg/streamclient"
	"github.com/illmade-knight/go-batchsend/pkg/types"
	"github.com/rs/zerolog"
)

// PutRecordsAPI is the part of *kinesis.Client the transport uses.
type PutRecordsAPI interface {
	PutRecords(ctx context.Context, params *kinesis.PutRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error)
}

// Transport sends stream batches with the Kinesis PutRecords call.
type Transport struct {
	api    PutRecordsAPI
	logger zerolog.Logger
}

var _ streamclient.Transport = (*Transport)(nil)

// NewTransport wraps api, usually a *kinesis.Client.
func NewTransport(api PutRecordsAPI, logger zerolog.Logger) (*Transport, error) {
	if api == nil {
		return nil, errors.New("kinesis api cannot be nil")
	}
	return &Transport{
		api:    api,
		logger: logger.With().Str("component", "KinesisTransport").Logger(),
	}, nil
}

// NewTransportFromConfig creates a Kinesis client from cfg and wraps it.
func NewTransportFromConfig(cfg aws.Config, logger zerolog.Logger) (*Transport, error) {
	return NewTransport(kinesis.NewFromConfig(cfg), logger)
}

// PutRecords sends entries to streamName in a single call.
func (t *Transport) PutRecords(ctx context.Context, streamName string, entries []types.StreamEntry) (*types.PutRecordsOutput, error) {
	records := make([]kinesistypes.PutRecordsRequestEntry, len(entries))
	for i, e := range entries {
		records[i] = kinesistypes.PutRecordsRequestEntry{
			Data:         []byte(e.Blob),
			PartitionKey: aws.String(e.PartitionKey),
		}
	}

	out, err := t.api.PutRecords(ctx, &kinesis.PutRecordsInput{
		Records:    records,
		StreamName: aws.String(streamName),
	})
	if err != nil {
		return nil, fmt.Errorf("kinesis put records to %s: %w", streamName, err)
	}

	result := &types.PutRecordsOutput{
		FailedCount: int(aws.ToInt32(out.FailedRecordCount)),
		Records:     make([]types.RecordResult, len(out.Records)),
	}
	for i, r := range out.Records {
		result.Records[i] = types.RecordResult{
			ErrorCode:      aws.ToString(r.ErrorCode),
			ErrorMessage:   aws.ToString(r.ErrorMessage),
			SequenceNumber: aws.ToString(r.SequenceNumber),
			ShardID:        aws.ToString(r.ShardId),
		}
	}
	if result.FailedCount > 0 {
		t.logger.Debug().Str("stream_name", streamName).Int("failed_count", result.FailedCount).
			Int("batch_size", len(entries)).Msg("Kinesis rejected records.")
	}
	return result, nil
}
