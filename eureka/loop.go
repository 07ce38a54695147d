package eureka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// loopHandle 后台周期任务的生命周期句柄：Start 创建，Stop 消费
// 每个句柄独占一个 gocron 调度器和一个单例模式的 DurationJob，
// 同一时刻最多一个 tick 在执行；running 标志在每次 tick 开头检查。
type loopHandle struct {
	name      string
	scheduler gocron.Scheduler
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	stopErr   error
}

// startLoop runs tick first after delay, then every interval.
// stopTimeout bounds how long Stop waits for an in-flight tick.
func startLoop(name string, delay, interval, stopTimeout time.Duration, tick func(ctx context.Context)) (*loopHandle, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%s loop: interval must be positive", name)
	}
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}

	scheduler, err := gocron.NewScheduler(gocron.WithStopTimeout(stopTimeout))
	if err != nil {
		return nil, fmt.Errorf("%s loop: create scheduler: %w", name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &loopHandle{name: name, scheduler: scheduler, ctx: ctx, cancel: cancel}
	h.running.Store(true)

	startAt := gocron.WithStartImmediately()
	if delay > 0 {
		startAt = gocron.WithStartDateTime(time.Now().Add(delay))
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if !h.running.Load() {
				return
			}
			tick(h.ctx)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(startAt),
	)
	if err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("%s loop: create job: %w", name, err)
	}

	scheduler.Start()
	return h, nil
}

// Running reports whether Stop has not been called yet.
func (h *loopHandle) Running() bool {
	return h.running.Load()
}

// Stop clears the running flag and shuts the scheduler down. An in-flight
// tick is not interrupted. Safe to call more than once.
func (h *loopHandle) Stop() error {
	h.stopOnce.Do(func() {
		h.running.Store(false)
		h.stopErr = h.scheduler.Shutdown()
		h.cancel()
	})
	return h.stopErr
}
