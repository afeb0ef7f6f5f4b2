package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// ErrDropMessage tells the consumer to delete a message without retrying it.
var ErrDropMessage = errors.New("drop message")

// MessageHandler is a function that processes an SQS message body
type MessageHandler func(ctx context.Context, body string) error

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
)

// SQSConsumer long-polls one queue and hands each message to a handler
type SQSConsumer struct {
	client     sqsAPI
	queueURL   string
	log        *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewSQSConsumer(cfg sdkaws.Config, queueURL string, log *zap.Logger) *SQSConsumer {
	return &SQSConsumer{
		client:     sqs.NewFromConfig(cfg),
		queueURL:   queueURL,
		log:        log,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
}

// StartPolling runs until ctx is cancelled. A message is deleted when the
// handler succeeds or returns ErrDropMessage; any other error leaves it to
// reappear after the visibility timeout. Receive errors back off
// exponentially up to maxBackoff and reset after a successful poll.
func (c *SQSConsumer) StartPolling(ctx context.Context, handler MessageHandler) error {
	c.log.Info("Starting SQS polling", zap.String("queue_url", c.queueURL))

	backoff := c.minBackoff
	for {
		if ctx.Err() != nil {
			c.log.Info("SQS polling stopped", zap.String("queue_url", c.queueURL))
			return ctx.Err()
		}

		err := c.PollOnce(ctx, handler)
		if err == nil {
			backoff = c.minBackoff
			continue
		}
		if ctx.Err() != nil {
			continue
		}

		c.log.Error("Error polling SQS", zap.Error(err), zap.Duration("retry_in", backoff))
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func (c *SQSConsumer) PollOnce(ctx context.Context, handler MessageHandler) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            sdkaws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   30,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range result.Messages {
		if msg.Body == nil {
			continue
		}

		if err := handler(ctx, *msg.Body); err != nil {
			if !errors.Is(err, ErrDropMessage) {
				c.log.Warn("Failed to process message, leaving for redelivery",
					zap.String("message_id", sdkaws.ToString(msg.MessageId)),
					zap.Error(err))
				continue
			}
			c.log.Warn("Dropping unprocessable message",
				zap.String("message_id", sdkaws.ToString(msg.MessageId)),
				zap.Error(err))
		}

		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      sdkaws.String(c.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			c.log.Error("Failed to delete message", zap.Error(err))
		}
	}

	return nil
}

// snsEnvelope is the wrapper SNS adds when a topic fans out to SQS.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// UnwrapSNS returns the inner message when body is an SNS notification
// envelope, and body unchanged otherwise.
func UnwrapSNS(body string) string {
	var env snsEnvelope
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Type == "Notification" && env.Message != "" {
		return env.Message
	}
	return body
}
