package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Aggregator 并发执行已注册的检查项，任一失败即整体 DOWN
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	metadata map[string]string
	timeout  time.Duration
}

// NewAggregator creates an aggregator; timeout <= 0 means 5s.
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{
		metadata: make(map[string]string),
		timeout:  timeout,
	}
}

// Register adds checkers; nil values are skipped.
func (a *Aggregator) Register(checkers ...Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range checkers {
		if c != nil {
			a.checkers = append(a.checkers, c)
		}
	}
}

// SetMetadata 附加到每次响应的静态信息，如 app、instance_id
func (a *Aggregator) SetMetadata(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metadata[key] = value
}

// Check runs all checkers under the aggregator timeout.
func (a *Aggregator) Check(ctx context.Context) *Response {
	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	metadata := make(map[string]string, len(a.metadata))
	for k, v := range a.metadata {
		metadata[k] = v
	}
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make([]CheckResult, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = checkOne(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	resp := &Response{
		Status:    StatusUp,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(results)),
		Metadata:  metadata,
	}
	for _, r := range results {
		resp.Checks[r.Name] = r
		if r.Status != StatusUp {
			resp.Status = StatusDown
		}
	}
	return resp
}

func checkOne(ctx context.Context, c Checker) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.Name(), Status: StatusUp}
	if err := c.Check(ctx); err != nil {
		result.Status = StatusDown
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}
