package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/agscout/trapsync/internal/database"
	"github.com/agscout/trapsync/internal/protocol"
)

// TaskWriter consumes dispatched chunk tasks and applies their inserts
// to the destination database. Delivery is at-least-once: the offset is
// committed only after the insert succeeds, and the destination's
// identity indexes absorb any replay.
type TaskWriter struct {
	consumer *Consumer
	db       *database.DestDB
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewTaskWriter creates a task writer.
func NewTaskWriter(consumer *Consumer, db *database.DestDB) *TaskWriter {
	return &TaskWriter{
		consumer: consumer,
		db:       db,
		stopCh:   make(chan struct{}),
	}
}

// Start begins consuming and applying tasks.
func (tw *TaskWriter) Start(ctx context.Context) {
	tw.wg.Add(1)
	go tw.run(ctx)
}

// Stop stops the task writer gracefully.
func (tw *TaskWriter) Stop() {
	close(tw.stopCh)
	tw.wg.Wait()
}

func (tw *TaskWriter) run(ctx context.Context) {
	defer tw.wg.Done()

	for {
		select {
		case <-tw.stopCh:
			return
		default:
		}

		msg, err := tw.consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Printf("Consumer error: %v\n", err)
			continue
		}

		task, err := protocol.DecodeChunkTask(msg.Value)
		if err != nil {
			// Malformed tasks can never succeed; drop them instead of
			// redelivering forever.
			fmt.Printf("Dropping undecodable chunk task (partition=%d, offset=%d): %v\n",
				msg.Partition, msg.Offset, err)
			if err := tw.consumer.Commit(ctx, msg); err != nil {
				fmt.Printf("Failed to commit offset: %v\n", err)
			}
			continue
		}

		if err := tw.applyTask(ctx, task); err != nil {
			// Failure is confined to this one task. The offset stays
			// uncommitted so the task is redelivered.
			fmt.Printf("Failed to process chunk task (partition=%d, offset=%d): %v\n",
				msg.Partition, msg.Offset, err)
			continue
		}

		if err := tw.consumer.Commit(ctx, msg); err != nil {
			fmt.Printf("Failed to commit offset: %v\n", err)
		}
	}
}

func (tw *TaskWriter) applyTask(ctx context.Context, task *protocol.ChunkTask) error {
	var err error
	switch task.Table {
	case protocol.TableLocations:
		err = tw.db.InsertLocations(ctx, task.Locations)
	case protocol.TableTrapCounts:
		err = tw.db.InsertTrapCounts(ctx, task.Counts)
	default:
		return fmt.Errorf("unknown chunk task table %q", task.Table)
	}
	if err != nil {
		return fmt.Errorf("failed to apply chunk task %s: %w", task.TaskID, err)
	}

	fmt.Printf("Applied %s chunk task %s (%d rows)\n", task.Table, task.TaskID, task.Rows())
	return nil
}
