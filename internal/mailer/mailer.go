// Package mailer hands template dispatch requests to the outbound
// email queue. Delivery is fire-and-forget: a failure is logged and
// reported as a collaborator error, but callers never let it fail the
// business operation that triggered the mail.
package mailer

import (
	"context"
	"time"

	"github.com/dkrylov/fashion_store/internal/apperr"
	"github.com/dkrylov/fashion_store/internal/logging"
	"github.com/dkrylov/fashion_store/internal/mykafka"
)

const (
	TemplateOrderConfirmed = "order_confirmed"
	TemplateOrderDelivered = "order_delivered"
)

type Dispatcher interface {
	Send(ctx context.Context, templateID string, params map[string]string) error
}

// KafkaDispatcher publishes send requests onto the email topic; a
// separate worker renders and delivers them.
type KafkaDispatcher struct {
	Producer *mykafka.Producer
}

func (d *KafkaDispatcher) Send(ctx context.Context, templateID string, params map[string]string) error {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	event := map[string]any{
		"template": templateID,
		"params":   params,
	}
	if err := d.Producer.PublishEvent(pubCtx, mykafka.TopicEmailEvents, params["email"], event); err != nil {
		logging.FromContext(ctx).Error("email dispatch failed",
			"template", templateID, "error", err)
		return apperr.ErrCollaboratorUnavailable
	}
	return nil
}
