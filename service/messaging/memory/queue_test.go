package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/chainorch/service/messaging"
)

type TestPayload struct {
	ID    string
	Count int
}

func TestQueue(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx := context.Background()
	payload := TestPayload{ID: "job-1", Count: 1}

	err := queue.Publish(ctx, &payload)
	assert.NoError(t, err)
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, message)
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, payload, *message.T())

	assert.NoError(t, message.Ack())
	assert.Error(t, message.Ack())
}

func TestQueueFIFO(t *testing.T) {
	queue := NewQueue[TestPayload](Config{Capacity: 10})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.NoError(t, queue.Publish(ctx, &TestPayload{Count: i}))
	}
	for i := 0; i < 5; i++ {
		message, err := queue.Consume(ctx)
		assert.NoError(t, err)
		assert.Equal(t, i, message.T().Count)
	}
}

func TestQueueBoundedPublishWaits(t *testing.T) {
	queue := NewQueue[TestPayload](Config{Capacity: 1})
	ctx := context.Background()
	assert.NoError(t, queue.Publish(ctx, &TestPayload{ID: "first"}))

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := queue.Publish(timeoutCtx, &TestPayload{ID: "second"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseDrains(t *testing.T) {
	queue := NewQueue[TestPayload](Config{Capacity: 4})
	ctx := context.Background()
	assert.NoError(t, queue.Publish(ctx, &TestPayload{ID: "a"}))
	assert.NoError(t, queue.Publish(ctx, &TestPayload{ID: "b"}))
	assert.NoError(t, queue.Close())
	assert.NoError(t, queue.Close())

	assert.ErrorIs(t, queue.Publish(ctx, &TestPayload{ID: "c"}), messaging.ErrQueueClosed)

	for _, expect := range []string{"a", "b"} {
		message, err := queue.Consume(ctx)
		assert.NoError(t, err)
		assert.Equal(t, expect, message.T().ID)
	}
	_, err := queue.Consume(ctx)
	assert.ErrorIs(t, err, messaging.ErrQueueClosed)
}

func TestQueueConcurrency(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx := context.Background()
	concurrency := 10
	messagesPerProducer := 10

	var wg sync.WaitGroup
	wg.Add(concurrency * 2)
	var consumedCount int
	var consumedMu sync.Mutex

	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < messagesPerProducer; j++ {
				message, err := queue.Consume(ctx)
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, message.Ack())
				consumedMu.Lock()
				consumedCount++
				consumedMu.Unlock()
			}
		}()
	}
	for i := 0; i < concurrency; i++ {
		go func(producerID int) {
			defer wg.Done()
			for j := 0; j < messagesPerProducer; j++ {
				payload := TestPayload{ID: fmt.Sprintf("p%d-m%d", producerID, j), Count: j}
				assert.NoError(t, queue.Publish(ctx, &payload))
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Test timed out")
	}
	assert.Equal(t, concurrency*messagesPerProducer, consumedCount)
	assert.Equal(t, 0, queue.Size())
}

func TestQueueContextCancellation(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	payload := TestPayload{ID: "test"}
	assert.Error(t, queue.Publish(ctx, &payload))

	ctxWithTimeout, cancelTimeout := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelTimeout()
	_, err := queue.Consume(ctxWithTimeout)
	assert.Error(t, err)

	assert.NoError(t, queue.Publish(context.Background(), &payload))
	message, err := queue.Consume(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, message)
}
