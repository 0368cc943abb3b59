package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/rnaught/internal/adapters/mq/queue"
	worker "github.com/okian/rnaught/internal/adapters/mq/worker"
	logging "github.com/okian/rnaught/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	taskChan   chan queue.Task
	closeError error
	closeOnce  sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{taskChan: make(chan queue.Task, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Task {
	return mq.taskChan
}

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.taskChan) })
	return mq.closeError
}

type mockProcessor struct {
	mu     sync.Mutex
	seen   map[string]string
	errors map[string]error
	panics map[string]bool
	delay  time.Duration
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{
		seen:   make(map[string]string),
		errors: make(map[string]error),
		panics: make(map[string]bool),
	}
}

func (mp *mockProcessor) Process(ctx context.Context, t queue.Task) error {
	if mp.delay > 0 {
		time.Sleep(mp.delay)
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.panics[t.Code] {
		panic("boom")
	}
	if err, ok := mp.errors[t.Code]; ok {
		return err
	}
	mp.seen[t.Code] = t.Stage
	return nil
}

func (mp *mockProcessor) processed(code string) (string, bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	stage, ok := mp.seen[code]
	return stage, ok
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		proc := newMockProcessor()

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, proc, worker.WithName("test-worker"))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
				convey.So(w.Stats(), convey.ShouldResemble, worker.Stats{})
			})
		})

		convey.Convey("When the queue is drained and closed", func() {
			w := worker.NewInMemoryWorker(q, proc)
			proc.errors["BBB"] = errors.New("regression failed")
			proc.panics["CCC"] = true

			q.taskChan <- queue.Task{Stage: "growth", Code: "AAA"}
			q.taskChan <- queue.Task{Stage: "growth", Code: "BBB"}
			q.taskChan <- queue.Task{Stage: "growth", Code: "CCC"}
			q.taskChan <- queue.Task{Stage: "growth", Code: "DDD"}
			_ = q.Close()

			done := make(chan struct{})
			go func() {
				w.Run(context.Background())
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				convey.So("worker did not stop", convey.ShouldBeEmpty)
			}

			convey.Convey("Then failures do not stop later tasks", func() {
				stage, ok := proc.processed("AAA")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(stage, convey.ShouldEqual, "growth")
				_, ok = proc.processed("DDD")
				convey.So(ok, convey.ShouldBeTrue)
				_, ok = proc.processed("BBB")
				convey.So(ok, convey.ShouldBeFalse)
			})

			convey.Convey("Then outcomes are counted", func() {
				convey.So(w.Stats(), convey.ShouldResemble, worker.Stats{Processed: 4, Failed: 2})
			})
		})

		convey.Convey("When shutting down a running worker", func() {
			w := worker.NewInMemoryWorker(q, proc)
			go w.Run(context.Background())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then it should shutdown gracefully", func() {
				convey.So(err, convey.ShouldBeNil)
			})

			convey.Convey("Then a second shutdown is harmless", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, proc)
			ctx, cancel := context.WithCancel(context.Background())

			done := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(done)
			}()
			cancel()

			convey.Convey("Then the worker stops", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool over a real queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		proc := newMockProcessor()
		proc.delay = time.Millisecond
		proc.errors["C05"] = errors.New("bad matrix")

		pool := worker.NewPool(3, q, proc)
		convey.So(pool.Size(), convey.ShouldEqual, 3)

		codes := []string{"C00", "C01", "C02", "C03", "C04", "C05", "C06", "C07", "C08", "C09"}
		for _, c := range codes {
			convey.So(q.Enqueue(context.Background(), queue.Task{Stage: "eigen", Code: c}), convey.ShouldBeNil)
		}
		convey.So(q.Close(), convey.ShouldBeNil)

		pool.Start(context.Background())
		stats := pool.Wait()

		convey.Convey("Then every task is attempted exactly once", func() {
			convey.So(stats, convey.ShouldResemble, worker.Stats{Processed: 10, Failed: 1})
			for _, c := range codes {
				_, ok := proc.processed(c)
				convey.So(ok, convey.ShouldEqual, c != "C05")
			}
		})
	})

	convey.Convey("Given a pool with the default worker count", t, func() {
		_ = logging.Init()
		pool := worker.NewPool(0, newMockQueue(), newMockProcessor())
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})

	convey.Convey("Given a running pool", t, func() {
		_ = logging.Init()
		q := newMockQueue()
		pool := worker.NewPool(2, q, worker.ProcessorFunc(func(context.Context, queue.Task) error { return nil }))
		pool.Start(context.Background())

		convey.Convey("When shutting down", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(pool.Wait(), convey.ShouldResemble, worker.Stats{})
		})
	})

	convey.Convey("Given a pool whose queue was already closed", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		convey.So(q.Enqueue(context.Background(), queue.Task{Stage: "growth", Code: "AAA"}), convey.ShouldBeNil)
		convey.So(q.Close(), convey.ShouldBeNil)

		started, release := make(chan struct{}), make(chan struct{})
		pool := worker.NewPool(1, q, worker.ProcessorFunc(func(context.Context, queue.Task) error {
			close(started)
			<-release
			return nil
		}))
		pool.Start(context.Background())
		<-started

		convey.Convey("When shutdown times out on a busy worker", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(ctx)
			close(release)

			convey.Convey("Then the timeout is reported and the worker still finishes", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(pool.Wait(), convey.ShouldResemble, worker.Stats{Processed: 1})
			})
		})
	})
}
