package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/learnmatch/internal/adapters/mq/queue"
	worker "github.com/okian/learnmatch/internal/adapters/mq/worker"
	features "github.com/okian/learnmatch/internal/domain/features"
	logging "github.com/okian/learnmatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	eventChan chan queue.Event
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Event {
	return mq.eventChan
}

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.eventChan) })
	return nil
}

func (mq *mockQueue) addEvent(event queue.Event) { //nolint:gocritic // hugeParam: Event must be passed by value for channel semantics
	mq.eventChan <- event
}

type mockExtractor struct {
	errors map[int64]error
	mu     sync.RWMutex
}

func newMockExtractor() *mockExtractor {
	return &mockExtractor{errors: make(map[int64]error)}
}

func (me *mockExtractor) Extract(ctx context.Context, ev queue.Event) (features.FeatureVector, error) { //nolint:gocritic // hugeParam: mirrors the Extractor signature
	me.mu.RLock()
	defer me.mu.RUnlock()
	if err, ok := me.errors[ev.UserID]; ok {
		return features.FeatureVector{}, err
	}
	return features.FeatureVector{
		UserID:       ev.UserID,
		Category:     features.Beginner,
		AccuracyRate: ev.XPEarned / 100,
	}, nil
}

func (me *mockExtractor) setError(userID int64, err error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.errors[userID] = err
}

type mockUpdater struct {
	profiles map[int64]features.FeatureVector
	errors   map[int64]error
	mu       sync.RWMutex
}

func newMockUpdater() *mockUpdater {
	return &mockUpdater{
		profiles: make(map[int64]features.FeatureVector),
		errors:   make(map[int64]error),
	}
}

func (mu *mockUpdater) Upsert(ctx context.Context, v features.FeatureVector) (bool, error) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	if err, ok := mu.errors[v.UserID]; ok {
		return false, err
	}
	_, existed := mu.profiles[v.UserID]
	mu.profiles[v.UserID] = v
	return !existed, nil
}

func (mu *mockUpdater) setError(userID int64, err error) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	mu.errors[userID] = err
}

func (mu *mockUpdater) get(userID int64) (features.FeatureVector, bool) {
	mu.mu.RLock()
	defer mu.mu.RUnlock()
	v, ok := mu.profiles[userID]
	return v, ok
}

func (mu *mockUpdater) count() int {
	mu.mu.RLock()
	defer mu.mu.RUnlock()
	return len(mu.profiles)
}

func eventFor(userID int64, xp int) queue.Event {
	return queue.Event{
		EventID:  fmt.Sprintf("evt-%d-%d", userID, xp),
		UserID:   userID,
		Category: "beginner",
		XPEarned: float64(xp),
	}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	_ = logging.Init()

	convey.Convey("Given a worker wired to a queue, extractor and updater", t, func() {
		mq := newMockQueue()
		ex := newMockExtractor()
		up := newMockUpdater()
		w := worker.NewInMemoryWorker(mq, ex, up, worker.WithName("test-worker"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.Convey("When an event is queued", func() {
			go w.Run(ctx)
			mq.addEvent(eventFor(7, 50))

			convey.Convey("Then the extracted profile is stored", func() {
				convey.So(waitFor(func() bool { return up.count() == 1 }), convey.ShouldBeTrue)
				v, ok := up.get(7)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(v.AccuracyRate, convey.ShouldAlmostEqual, 0.5)
				convey.So(waitFor(func() bool { return w.Processed() == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When extraction fails for one event", func() {
			ex.setError(1, errors.New("bad snapshot"))
			go w.Run(ctx)
			mq.addEvent(eventFor(1, 10))
			mq.addEvent(eventFor(2, 20))

			convey.Convey("Then the worker skips it and keeps going", func() {
				convey.So(waitFor(func() bool { return up.count() == 1 }), convey.ShouldBeTrue)
				_, ok := up.get(1)
				convey.So(ok, convey.ShouldBeFalse)
				_, ok = up.get(2)
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the store rejects a profile", func() {
			up.setError(3, errors.New("disk full"))
			go w.Run(ctx)
			mq.addEvent(eventFor(3, 10))
			mq.addEvent(eventFor(4, 10))

			convey.Convey("Then only successful writes count as processed", func() {
				convey.So(waitFor(func() bool { return up.count() == 1 }), convey.ShouldBeTrue)
				convey.So(waitFor(func() bool { return w.Processed() == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			go w.Run(ctx)
			shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
			defer stop()

			convey.Convey("Then Shutdown returns without error and is repeatable", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the queue channel closes", func() {
			done := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(done)
			}()
			_ = mq.Close()

			convey.Convey("Then Run returns", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("worker did not exit after queue close")
				}
			})
		})
	})
}

func TestPool(t *testing.T) {
	_ = logging.Init()

	convey.Convey("Given a pool of workers", t, func() {
		mq := newMockQueue()
		ex := newMockExtractor()
		up := newMockUpdater()

		convey.Convey("When the worker count is not positive", func() {
			p := worker.NewPool(0, mq, ex, up)

			convey.Convey("Then a CPU-based default is used", func() {
				convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When events are processed and the pool is shut down", func() {
			p := worker.NewPool(3, mq, ex, up)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p.Start(ctx)

			for i := range 5 {
				mq.addEvent(eventFor(int64(i+1), 10))
			}
			err := p.Shutdown(context.Background())

			convey.Convey("Then every queued event is drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(up.count(), convey.ShouldEqual, 5)
				convey.So(p.Processed(), convey.ShouldEqual, int64(5))
			})
		})

		convey.Convey("When the pool is stopped", func() {
			p := worker.NewPool(2, mq, ex, up)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p.Start(ctx)

			done := make(chan struct{})
			go func() {
				p.Stop()
				close(done)
			}()

			convey.Convey("Then Stop returns promptly", func() {
				select {
				case <-done:
				case <-time.After(2 * time.Second):
					t.Fatal("pool did not stop")
				}
			})
		})
	})
}

type blockingExtractor struct {
	next *mockExtractor
}

func (b *blockingExtractor) Extract(ctx context.Context, ev queue.Event) (features.FeatureVector, error) { //nolint:gocritic // hugeParam: mirrors the Extractor signature
	if ev.UserID == 9 {
		<-ctx.Done()
		return features.FeatureVector{}, ctx.Err()
	}
	return b.next.Extract(ctx, ev)
}

func TestEventTimeout(t *testing.T) {
	_ = logging.Init()

	convey.Convey("Given a worker with an event timeout", t, func() {
		mq := newMockQueue()
		up := newMockUpdater()
		w := worker.NewInMemoryWorker(mq, &blockingExtractor{next: newMockExtractor()}, up,
			worker.WithEventTimeout(20*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When an extraction hangs", func() {
			mq.addEvent(eventFor(9, 10))
			mq.addEvent(eventFor(10, 10))

			convey.Convey("Then it is abandoned and the next event is stored", func() {
				convey.So(waitFor(func() bool { return up.count() == 1 }), convey.ShouldBeTrue)
				_, ok := up.get(10)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(waitFor(func() bool { return w.Processed() == 1 }), convey.ShouldBeTrue)
			})
		})
	})
}
