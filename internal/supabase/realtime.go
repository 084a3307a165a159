package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"progress-tracker-backend/internal/workflow"
)

const (
	EventStepUpdated       = "step_updated"
	EventMilestoneAchieved = "milestone_achieved"
	EventProjectUpdated    = "project_updated"
	EventProjectDeleted    = "project_deleted"
)

// Event is the JSON message published on a project channel.
type Event struct {
	Type      string                 `json:"type"`
	ProjectID string                 `json:"project_id"`
	Payload   map[string]interface{} `json:"payload"`
	At        time.Time              `json:"at"`
}

// RealtimeClient fans project events out over Redis pub/sub.
type RealtimeClient struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRealtimeClient(rdb *redis.Client) *RealtimeClient {
	return &RealtimeClient{
		rdb: rdb,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func ProjectChannel(projectID uuid.UUID) string {
	return fmt.Sprintf("project:%s", projectID.String())
}

func (r *RealtimeClient) PublishEvent(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (r *RealtimeClient) PublishProjectEvent(ctx context.Context, projectID uuid.UUID, event string, payload map[string]interface{}) error {
	return r.PublishEvent(ctx, ProjectChannel(projectID), Event{
		Type:      event,
		ProjectID: projectID.String(),
		Payload:   payload,
		At:        r.now(),
	})
}

// Subscribe listens on the project channel until ctx is cancelled, then
// closes the returned channel. Messages that fail to decode are skipped.
func (r *RealtimeClient) Subscribe(ctx context.Context, projectID uuid.UUID) (<-chan Event, error) {
	pubsub := r.rdb.Subscribe(ctx, ProjectChannel(projectID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Event payloads
func StepUpdatedPayload(steps []workflow.Step) map[string]interface{} {
	payload := map[string]interface{}{
		"progress":        workflow.ProgressPercentage(steps),
		"completed_count": workflow.CompletedCount(steps),
		"total_steps":     len(steps),
	}
	if current, ok := workflow.CurrentStep(steps); ok {
		payload["current_step"] = current.Order
		payload["current_step_name"] = current.Name
	}
	return payload
}

func MilestoneAchievedPayload(m workflow.Milestone) map[string]interface{} {
	return map[string]interface{}{
		"milestone_id": m.ID,
		"name":         m.Name,
		"icon":         m.Icon,
	}
}

func ProjectUpdatedPayload(name, deliveryURL string) map[string]interface{} {
	payload := map[string]interface{}{"name": name}
	if deliveryURL != "" {
		payload["delivery_url"] = deliveryURL
	}
	return payload
}
