package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// DomainEvent is what downstream consumers (kitchen display, reporting) receive
// after an order or inventory change has committed.
type DomainEvent struct {
	Type          string          `json:"type"`
	ReferenceType string          `json:"reference_type"`
	ReferenceId   int             `json:"reference_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationId string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	// Cloud Run sets this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return ""
}

// EventsEnabled reports whether a topic is configured. Publishing is skipped otherwise.
func EventsEnabled() bool {
	return os.Getenv("PUBSUB_TOPIC_EVENTS") != "" && getPubSubProjectID() != ""
}

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		// Application Default Credentials
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}
	pubsubClient = c
	log.Printf("pubsub client ready (project_id=%s)", projectID)
	return pubsubClient, nil
}

// PublishDomainEvent publishes evt to PUBSUB_TOPIC_EVENTS and returns the
// server-assigned message id. It is a no-op when events are not configured.
func PublishDomainEvent(ctx context.Context, evt DomainEvent) (string, error) {
	if !EventsEnabled() {
		return "", nil
	}
	// the client outlives this call, so it is not bound to ctx
	client, err := getPubSubClient(context.Background())
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return "", err
	}

	t := client.Topic(os.Getenv("PUBSUB_TOPIC_EVENTS"))
	result := t.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":           evt.Type,
			"reference_type": evt.ReferenceType,
		},
	})
	return result.Get(ctx)
}
