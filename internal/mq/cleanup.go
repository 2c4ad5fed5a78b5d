package mq

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// CleanupTaskType is the message type attribute of image cleanup tasks.
const CleanupTaskType = "image.cleanup"

// CleanupTask asks a worker to delete stored objects that are no longer
// referenced by any listing.
type CleanupTask struct {
	Keys        []string  `json:"keys"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// PublishCleanup encodes task as JSON and publishes it to channel.
func (m *MQ) PublishCleanup(ctx context.Context, channel string, task CleanupTask) (string, error) {
	if len(task.Keys) == 0 {
		return "", errors.New("cleanup task has no keys")
	}
	if task.RequestedAt.IsZero() {
		task.RequestedAt = time.Now().UTC()
	}
	data, err := json.Marshal(task)
	if err != nil {
		return "", err
	}
	return m.Publish(ctx, channel, data, map[string]string{"type": CleanupTaskType})
}

// DecodeCleanupTask parses a message produced by PublishCleanup.
func DecodeCleanupTask(msg Message) (CleanupTask, error) {
	if msgType, ok := msg.Attributes["type"]; ok && msgType != CleanupTaskType {
		return CleanupTask{}, errors.New("unexpected message type " + msgType)
	}
	var task CleanupTask
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		return CleanupTask{}, err
	}
	return task, nil
}
