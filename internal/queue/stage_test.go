package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStageQueue_FIFO(t *testing.T) {
	q := NewStageQueue[int]("jobs", 4)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}

	for want := 1; want <= 4; want++ {
		got, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != want {
			t.Errorf("Expected %d, got %d", want, got)
		}
	}
}

func TestStageQueue_PutBlocksWhenFull(t *testing.T) {
	q := NewStageQueue[int]("jobs", 1)
	if err := q.Put(context.Background(), 1); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := q.Put(ctx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected Put on a full queue to block until the deadline, got %v", err)
	}
}

func TestStageQueue_GetBlocksWhenEmpty(t *testing.T) {
	q := NewStageQueue[int]("jobs", 1)

	done := make(chan int)
	go func() {
		v, _ := q.Get(context.Background())
		done <- v
	}()

	select {
	case <-done:
		t.Fatal("Get returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	q.Put(context.Background(), 7)
	select {
	case v := <-done:
		if v != 7 {
			t.Errorf("Expected 7, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up after Put")
	}
}

func TestStageQueue_CloseDrainsThenSentinel(t *testing.T) {
	q := NewStageQueue[string]("transcripts", 3)
	ctx := context.Background()

	q.Put(ctx, "a")
	q.Put(ctx, "b")
	q.Close()
	q.Close()

	if err := q.Put(ctx, "c"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}

	for _, want := range []string{"a", "b"} {
		got, err := q.Get(ctx)
		if err != nil || got != want {
			t.Errorf("Expected %q, got %q (%v)", want, got, err)
		}
	}

	if _, err := q.Get(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on drained queue, got %v", err)
	}
}

func TestStageQueue_CloseWakesBlockedPut(t *testing.T) {
	q := NewStageQueue[int]("jobs", 1)
	q.Put(context.Background(), 1)

	errCh := make(chan error)
	go func() {
		errCh <- q.Put(context.Background(), 2)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not release the blocked Put")
	}
}

func TestStageQueue_SentinelReachesEveryConsumer(t *testing.T) {
	q := NewStageQueue[int]("jobs", 8)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := 0
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, err := q.Get(ctx); err != nil {
					return
				}
				mu.Lock()
				seen++
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < 20; i++ {
		q.Put(ctx, i)
	}
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Consumers did not exit after Close")
	}
	if seen != 20 {
		t.Errorf("Expected 20 items consumed, got %d", seen)
	}
}
