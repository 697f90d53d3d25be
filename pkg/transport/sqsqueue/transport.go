// Package sqsqueue adapts an AWS SQS client to queueclient.Transport.
package sqsqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/illmade-knight/go-batchsend/pkg/queueclient"
	"github.com/illmade-knight/go-batchsend/pkg/types"
	"github.com/rs/zerolog"
)

// API is the part of *sqs.Client the transport uses.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

// Transport sends and deletes queue messages with SQS batch calls.
type Transport struct {
	api    API
	logger zerolog.Logger
}

var _ queueclient.Transport = (*Transport)(nil)

// NewTransport wraps api, usually a *sqs.Client.
func NewTransport(api API, logger zerolog.Logger) (*Transport, error) {
	if api == nil {
		return nil, errors.New("sqs api cannot be nil")
	}
	return &Transport{
		api:    api,
		logger: logger.With().Str("component", "SQSTransport").Logger(),
	}, nil
}

// NewTransportFromConfig creates an SQS client from cfg and wraps it.
func NewTransportFromConfig(cfg aws.Config, logger zerolog.Logger) (*Transport, error) {
	return NewTransport(sqs.NewFromConfig(cfg), logger)
}

// SendMessage enqueues a single message.
func (t *Transport) SendMessage(ctx context.Context, queueURL, body string) error {
	out, err := t.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	t.logger.Debug().Str("queue_url", queueURL).Str("message_id", aws.ToString(out.MessageId)).Msg("Message sent.")
	return nil
}

// SendMessageBatch sends entries in one call.
func (t *Transport) SendMessageBatch(ctx context.Context, queueURL string, entries []types.SendEntry) (*types.BatchOutput, error) {
	reqEntries := make([]sqstypes.SendMessageBatchRequestEntry, len(entries))
	for i, e := range entries {
		reqEntries[i] = sqstypes.SendMessageBatchRequestEntry{
			Id:          aws.String(e.ID),
			MessageBody: aws.String(e.Body),
		}
	}
	out, err := t.api.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(queueURL),
		Entries:  reqEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs send message batch: %w", err)
	}
	return toBatchOutput(out.Failed), nil
}

// DeleteMessageBatch deletes entries in one call.
func (t *Transport) DeleteMessageBatch(ctx context.Context, queueURL string, entries []types.DeleteEntry) (*types.BatchOutput, error) {
	reqEntries := make([]sqstypes.DeleteMessageBatchRequestEntry, len(entries))
	for i, e := range entries {
		reqEntries[i] = sqstypes.DeleteMessageBatchRequestEntry{
			Id:            aws.String(e.ID),
			ReceiptHandle: aws.String(e.ReceiptHandle),
		}
	}
	out, err := t.api.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(queueURL),
		Entries:  reqEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs delete message batch: %w", err)
	}
	return toBatchOutput(out.Failed), nil
}

func toBatchOutput(failed []sqstypes.BatchResultErrorEntry) *types.BatchOutput {
	out := &types.BatchOutput{Failed: make([]types.BatchFailure, len(failed))}
	for i, f := range failed {
		out.Failed[i] = types.BatchFailure{
			ID:      aws.ToString(f.Id),
			Code:    aws.ToString(f.Code),
			Message: aws.ToString(f.Message),
		}
	}
	return out
}
