package fanout

import (
	"context"
	"log"

	"buddyalert-backend/pkg/fcm"
)

// fcmProvider adapts the FCM client to the PushProvider interface.
type fcmProvider struct {
	client *fcm.Client
}

// NewFCMProvider wraps an FCM client as the delivery channel.
func NewFCMProvider(client *fcm.Client) PushProvider {
	return &fcmProvider{client: client}
}

func (p *fcmProvider) Send(ctx context.Context, token string, payload Payload) error {
	return p.client.SendToDevice(ctx, token, fcm.NotificationData{
		Title: payload.Title,
		Body:  payload.Body,
		Data:  payload.Data,
	})
}

// logProvider is the fallback when no push credentials are configured: it
// only logs what would have been sent, so local development still
// exercises the full fan-out path.
type logProvider struct{}

// NewLogProvider returns the logging fallback provider.
func NewLogProvider() PushProvider {
	return logProvider{}
}

func (logProvider) Send(_ context.Context, token string, payload Payload) error {
	log.Printf("[Push] would send %q to token %.12s...", payload.Title, token)
	return nil
}
