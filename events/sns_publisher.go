package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dodomiyake/zenhaven/models"
	awspkg "github.com/dodomiyake/zenhaven/pkg/aws"
)

// SNSPublisher publishes order events to an SNS topic with a "type"
// attribute for subscription filtering.
type SNSPublisher struct {
	sns      awspkg.SNSPublisher
	topicArn string
}

func NewSNSPublisher(sns awspkg.SNSPublisher, topicArn string) *SNSPublisher {
	return &SNSPublisher{sns: sns, topicArn: topicArn}
}

func (p *SNSPublisher) PublishOrderStatus(ctx context.Context, event models.OrderStatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return p.sns.Publish(ctx, p.topicArn, payload, map[string]string{
		"type":   event.Type,
		"status": string(event.Status),
	})
}
