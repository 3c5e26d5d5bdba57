package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	alertdomain "buddyalert-backend/internal/alert/domain"
	"buddyalert-backend/internal/fanout"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// AlertEvent is the change-stream message published when an alert is
// created. The fan-out engine absorbs at-least-once delivery.
type AlertEvent struct {
	AlertID string `json:"alertId"`
}

// Service subscribes to alert-created events and triggers fan-out runs.
type Service struct {
	pubsubClient *pubsub.Client
	engine       *fanout.Engine
	projectID    string
	topicName    string
	subName      string
}

// NewService creates the Pub/Sub-backed trigger.
func NewService(projectID, topicName string, engine *fanout.Engine, credentialsFile string) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &Service{
		pubsubClient: client,
		engine:       engine,
		projectID:    projectID,
		topicName:    topicName,
		subName:      topicName + "-sub", // Convention: topic-sub
	}, nil
}

// PublishAlertCreated emits the creation event that triggers fan-out.
func (s *Service) PublishAlertCreated(ctx context.Context, alertID string) error {
	data, err := json.Marshal(AlertEvent{AlertID: alertID})
	if err != nil {
		return err
	}
	result := s.pubsubClient.Topic(s.topicName).Publish(ctx, &pubsub.Message{Data: data})
	_, err = result.Get(ctx)
	return err
}

// Start ensures the subscription exists and begins receiving events.
func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting trigger with topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			if topic, err = s.pubsubClient.CreateTopic(ctx, s.topicName); err != nil {
				log.Printf("[PubSub] Failed to create topic: %v", err)
				return
			}
			log.Printf("[PubSub] Created topic: %s", s.topicName)
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for alert events on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var event AlertEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Printf("[PubSub] Failed to unmarshal alert event: %v", err)
		msg.Ack()
		return
	}
	if event.AlertID == "" {
		log.Printf("[PubSub] Alert event without alertId, dropping")
		msg.Ack()
		return
	}

	result, err := s.engine.Run(ctx, event.AlertID, PayloadForAlert(event.AlertID))
	switch {
	case errors.Is(err, fanout.ErrCandidateQuery):
		// Nack so Pub/Sub redelivers with backoff; retry policy lives
		// with the trigger, not the engine.
		log.Printf("[PubSub] Fan-out for alert %s failed, will retry: %v", event.AlertID, err)
		msg.Nack()
		return
	case errors.Is(err, fanout.ErrDeliveryLog):
		// Ack: the pushes already went out. Redelivery would duplicate
		// them because the idempotency keys were not persisted.
		log.Printf("[PubSub] Fan-out for alert %s delivered but the audit log is incomplete: %v", event.AlertID, err)
	case errors.Is(err, alertdomain.ErrAlertNotFound):
		log.Printf("[PubSub] Alert %s not found, dropping event", event.AlertID)
	case err != nil:
		log.Printf("[PubSub] Fan-out for alert %s failed: %v", event.AlertID, err)
	case result.Outcome == fanout.OutcomeNoOp:
		log.Printf("[PubSub] Fan-out for alert %s was a no-op", event.AlertID)
	default:
		log.Printf("[PubSub] Fan-out for alert %s reached %d recipients", event.AlertID, result.Recipients)
	}
	msg.Ack()
}

// PayloadForAlert builds the standard SOS notification content.
func PayloadForAlert(alertID string) fanout.Payload {
	return fanout.Payload{
		Title: "Emergency alert nearby",
		Body:  "Someone close to you needs help. Open the map to respond.",
		Data: map[string]string{
			"type":         "sos_alert",
			"alertId":      alertID,
			"click_action": "/map",
		},
	}
}
