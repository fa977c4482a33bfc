package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/campusmart/campusmart-backend/pkg/db/models"
)

// InAppSink persists the bell notification row.
type InAppSink struct {
	repo Repository
}

// NewInAppSink builds the database-backed sink.
func NewInAppSink(repo Repository) (*InAppSink, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return &InAppSink{repo: repo}, nil
}

func (s *InAppSink) Name() string { return "inapp" }

func (s *InAppSink) Deliver(ctx context.Context, msg Message) error {
	row := &models.Notification{
		UserID:  msg.UserID,
		Type:    msg.Type,
		Title:   msg.Title,
		Message: msg.Body,
	}
	if link := strings.TrimSpace(msg.Link); link != "" {
		row.Link = &link
	}
	return s.repo.Create(ctx, row)
}

// Publisher sends a raw payload to the push topic.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// PushSink forwards notifications to the push delivery topic.
type PushSink struct {
	publisher Publisher
}

// NewPushSink builds the Pub/Sub-backed sink.
func NewPushSink(publisher Publisher) (*PushSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher required")
	}
	return &PushSink{publisher: publisher}, nil
}

type pushPayload struct {
	UserID  string `json:"user_id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

func (s *PushSink) Name() string { return "pubsub" }

func (s *PushSink) Deliver(ctx context.Context, msg Message) error {
	data, err := json.Marshal(pushPayload{
		UserID:  msg.UserID.String(),
		Type:    string(msg.Type),
		Title:   msg.Title,
		Message: msg.Body,
		Link:    msg.Link,
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}
	_, err = s.publisher.Publish(ctx, data, map[string]string{
		"user_id": msg.UserID.String(),
		"type":    string(msg.Type),
	})
	return err
}
