package graph

import (
	"context"
	"errors"
	"testing"
	"time"
)

func enqueueRun(t *testing.T, q *SubmissionQueue, runID string, front bool) (int64, string) {
	t.Helper()
	seq, id, err := q.Enqueue(&QueuedRun{RunID: runID, Front: front})
	if err != nil {
		t.Fatalf("Enqueue(%s) failed: %v", runID, err)
	}
	return seq, id
}

func TestEnqueueAssignsSequenceAndRunID(t *testing.T) {
	q := NewSubmissionQueue()

	seq1, id1 := enqueueRun(t, q, "", false)
	seq2, id2 := enqueueRun(t, q, "explicit", false)

	if seq1 != 1 || seq2 != 2 {
		t.Errorf("sequences %d, %d, want 1, 2", seq1, seq2)
	}
	if id1 == "" {
		t.Error("empty RunID should get a generated identity")
	}
	if id2 != "explicit" {
		t.Errorf("caller-assigned RunID replaced with %q", id2)
	}
}

func TestDequeueFIFO(t *testing.T) {
	q := NewSubmissionQueue()
	for _, id := range []string{"first", "second", "third"} {
		enqueueRun(t, q, id, false)
	}

	for _, want := range []string{"first", "second", "third"} {
		run, ok := q.TryDequeue()
		if !ok || run.RunID != want {
			t.Fatalf("dequeued %v, want %s", run, want)
		}
	}
	if _, ok := q.TryDequeue(); ok {
		t.Error("empty queue should not dequeue")
	}
}

func TestFrontJumpsQueue(t *testing.T) {
	q := NewSubmissionQueue()
	enqueueRun(t, q, "normal1", false)
	enqueueRun(t, q, "normal2", false)
	enqueueRun(t, q, "urgent1", true)
	enqueueRun(t, q, "urgent2", true)

	// Front runs first, FIFO among themselves, then the normal backlog.
	want := []string{"urgent1", "urgent2", "normal1", "normal2"}
	got := q.PendingRunIDs()
	if len(got) != len(want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pending = %v, want %v", got, want)
		}
	}

	for _, id := range want {
		run, ok := q.TryDequeue()
		if !ok || run.RunID != id {
			t.Fatalf("dequeued %v, want %s", run, id)
		}
	}
}

func TestCancelPending(t *testing.T) {
	q := NewSubmissionQueue()
	enqueueRun(t, q, "keep", false)
	enqueueRun(t, q, "drop", false)

	if !q.CancelPending("drop") {
		t.Fatal("cancel of a queued run should succeed")
	}
	if q.CancelPending("drop") {
		t.Error("second cancel should report not found")
	}
	if q.CancelPending("never-queued") {
		t.Error("cancel of an unknown run should report not found")
	}

	if q.Len() != 1 {
		t.Fatalf("queue length %d after cancel, want 1", q.Len())
	}
	run, ok := q.TryDequeue()
	if !ok || run.RunID != "keep" {
		t.Errorf("dequeued %v, want keep", run)
	}
}

func TestDequeueNextBlocksUntilEnqueue(t *testing.T) {
	q := NewSubmissionQueue()

	got := make(chan *QueuedRun, 1)
	go func() {
		run, err := q.DequeueNext(context.Background())
		if err != nil {
			t.Errorf("DequeueNext failed: %v", err)
			return
		}
		got <- run
	}()

	time.Sleep(20 * time.Millisecond)
	enqueueRun(t, q, "late", false)

	select {
	case run := <-got:
		if run.RunID != "late" {
			t.Errorf("dequeued %s, want late", run.RunID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DequeueNext did not wake up after enqueue")
	}
}

func TestDequeueNextHonorsContext(t *testing.T) {
	q := NewSubmissionQueue()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.DequeueNext(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DequeueNext did not observe cancellation")
	}
}

func TestCloseRejectsAndUnblocks(t *testing.T) {
	q := NewSubmissionQueue()

	errCh := make(chan error, 1)
	go func() {
		_, err := q.DequeueNext(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not unblock the consumer")
	}

	if _, _, err := q.Enqueue(&QueuedRun{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("enqueue after close: %v, want ErrQueueClosed", err)
	}
}

func TestCloseDrainsRemainingRuns(t *testing.T) {
	q := NewSubmissionQueue()
	enqueueRun(t, q, "queued", false)
	q.Close()

	run, err := q.DequeueNext(context.Background())
	if err != nil || run.RunID != "queued" {
		t.Fatalf("expected to drain queued run, got %v, %v", run, err)
	}
	if _, err := q.DequeueNext(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("drained closed queue: %v, want ErrQueueClosed", err)
	}
}
