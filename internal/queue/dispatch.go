package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/agscout/trapsync/internal/protocol"
)

// TaskDispatcher publishes chunk tasks to the task topic instead of
// applying them in-process. Satisfies the chunk writer's applier
// interface; the chunkworker service executes the tasks.
type TaskDispatcher struct {
	producer *Producer
}

// NewTaskDispatcher creates a dispatcher over a producer.
func NewTaskDispatcher(producer *Producer) *TaskDispatcher {
	return &TaskDispatcher{producer: producer}
}

// ApplyChunk encodes the task and publishes it, keyed by region so all
// chunks of one run land on one partition in dispatch order.
func (d *TaskDispatcher) ApplyChunk(ctx context.Context, task *protocol.ChunkTask) error {
	data, err := protocol.EncodeChunkTask(task)
	if err != nil {
		return fmt.Errorf("failed to encode chunk task: %w", err)
	}

	key := strconv.FormatInt(task.RegionID, 10)
	if err := d.producer.Publish(ctx, key, data); err != nil {
		return fmt.Errorf("failed to dispatch chunk task %s: %w", task.TaskID, err)
	}

	fmt.Printf("Dispatched %s chunk task %s (%d rows)\n", task.Table, task.TaskID, task.Rows())
	return nil
}
