package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/entity"
)

type countingProcessor struct {
	mu      sync.Mutex
	names   []string
	callers []string
}

func (p *countingProcessor) Process(ctx context.Context, doc entity.Document) (*entity.FinalRecord, error) {
	p.mu.Lock()
	p.names = append(p.names, doc.Name)
	p.callers = append(p.callers, common.CallerIDFromContext(ctx))
	p.mu.Unlock()
	return &entity.FinalRecord{JobID: uuid.New(), State: constants.StateCompleted}, nil
}

func TestQueueProcessesAllJobs(t *testing.T) {
	proc := &countingProcessor{}
	q := NewQueue(proc, nil, WithWorkers(3), WithQueueSize(16))

	for i := 0; i < 10; i++ {
		job := Job{Document: entity.Document{Name: "doc.pdf"}, CallerID: "batch", SubmittedAt: time.Now()}
		if err := q.Enqueue(context.Background(), job); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if len(proc.names) != 10 {
		t.Fatalf("processed %d jobs, want 10", len(proc.names))
	}
	for _, c := range proc.callers {
		if c != "batch" {
			t.Fatalf("caller id not propagated: %q", c)
		}
	}
}

func TestEnqueueAfterShutdownFails(t *testing.T) {
	q := NewQueue(&countingProcessor{}, nil, WithWorkers(1))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)

	err := q.Enqueue(context.Background(), Job{Document: entity.Document{Name: "late.pdf"}})
	if err == nil {
		t.Fatal("expected error enqueuing after shutdown")
	}
}

type blockingProcessor struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingProcessor) Process(context.Context, entity.Document) (*entity.FinalRecord, error) {
	p.started <- struct{}{}
	<-p.release
	return &entity.FinalRecord{JobID: uuid.New(), State: constants.StateCompleted}, nil
}

func TestShutdownUnblocksBackpressuredEnqueue(t *testing.T) {
	proc := &blockingProcessor{started: make(chan struct{}, 4), release: make(chan struct{})}
	q := NewQueue(proc, nil, WithWorkers(1), WithQueueSize(1))

	if err := q.Enqueue(context.Background(), Job{Document: entity.Document{Name: "a.pdf"}}); err != nil {
		t.Fatalf("Enqueue a: %v", err)
	}
	<-proc.started // worker busy; next job fills the buffer
	if err := q.Enqueue(context.Background(), Job{Document: entity.Document{Name: "b.pdf"}}); err != nil {
		t.Fatalf("Enqueue b: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Enqueue(context.Background(), Job{Document: entity.Document{Name: "c.pdf"}})
	}()
	time.Sleep(50 * time.Millisecond) // let the third enqueue block on backpressure

	shutdownDone := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Shutdown(ctx)
		close(shutdownDone)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("backpressured enqueue should fail when the queue shuts down")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue still blocked after shutdown started")
	}

	close(proc.release)
	select {
	case <-shutdownDone:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	q := NewQueue(&countingProcessor{}, nil, WithWorkers(1))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)
	q.Shutdown(ctx)
}
