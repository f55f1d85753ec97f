package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEmitter mirrors progress events into Redis for out-of-process
// monitoring, using a hybrid delivery model:
//
//   - every event is published to a per-run pub/sub channel
//     (nodeflow:runs:<runID>:events) for ephemeral real-time monitoring;
//   - execution_error events are additionally appended to a per-run stream
//     (nodeflow:runs:<runID>:errors) with a TTL, for guaranteed delivery to
//     failure detectors that attach late.
//
// Delivery failures are logged and dropped; the emitter never blocks long
// or fails a run.
type RedisEmitter struct {
	client   *redis.Client
	errorTTL time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRedisEmitter creates a RedisEmitter over client. A nil logger falls
// back to slog.Default().
func NewRedisEmitter(client *redis.Client, logger *slog.Logger) *RedisEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisEmitter{
		client:   client,
		errorTTL: time.Hour,
		timeout:  2 * time.Second,
		logger:   logger,
	}
}

// Emit publishes the event to the run's channel and, for errors, appends to
// the run's error stream.
func (r *RedisEmitter) Emit(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	payload, err := json.Marshal(logRecord{
		Kind:      string(event.Kind),
		RunID:     event.RunID,
		NodeID:    event.NodeID,
		ClassType: event.ClassType,
		Nodes:     event.Nodes,
		Progress:  event.Progress,
		Err:       event.Err,
		Meta:      event.Meta,
	})
	if err != nil {
		r.logger.Warn("redis emitter: encoding event", "error", err)
		return
	}

	channel := fmt.Sprintf("nodeflow:runs:%s:events", event.RunID)
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		r.logger.Warn("redis emitter: publish failed", "channel", channel, "error", err)
	}

	if event.Kind != KindExecutionError || event.Err == nil {
		return
	}
	stream := fmt.Sprintf("nodeflow:runs:%s:errors", event.RunID)
	values := map[string]any{
		"node_id":    event.Err.NodeID,
		"class_type": event.Err.ClassType,
		"code":       event.Err.Code,
		"message":    event.Err.Message,
		"timestamp":  time.Now().UnixMilli(),
	}
	if err := r.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Err(); err != nil {
		r.logger.Warn("redis emitter: stream append failed", "stream", stream, "error", err)
		return
	}
	if err := r.client.Expire(ctx, stream, r.errorTTL).Err(); err != nil {
		r.logger.Warn("redis emitter: setting stream TTL", "stream", stream, "error", err)
	}
}
