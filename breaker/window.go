package breaker

import "time"

// Snapshot 资源在滑动窗口内的统计
type Snapshot struct {
	Resource            string  `json:"resource"`
	State               State   `json:"-"`
	Requests            int64   `json:"requests"`
	Failures            int64   `json:"failures"`
	SlowCalls           int64   `json:"slow_calls"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	ErrorRate           float64 `json:"error_rate"`
	SlowCallRate        float64 `json:"slow_call_rate"`
}

type bucket struct {
	start    time.Time
	requests int64
	failures int64
	slow     int64
}

// window 按时间桶滚动的计数窗口，调用方负责加锁
type window struct {
	bucketSize time.Duration
	span       time.Duration
	buckets    []bucket
}

func newWindow(size, bucketSize time.Duration) *window {
	n := int(size / bucketSize)
	if n < 1 {
		n = 1
	}
	return &window{
		bucketSize: bucketSize,
		span:       time.Duration(n) * bucketSize,
		buckets:    make([]bucket, n),
	}
}

func (w *window) current(now time.Time) *bucket {
	start := now.Truncate(w.bucketSize)
	idx := int((start.UnixNano() / int64(w.bucketSize)) % int64(len(w.buckets)))
	b := &w.buckets[idx]
	if !b.start.Equal(start) {
		*b = bucket{start: start}
	}
	return b
}

func (w *window) record(now time.Time, failed, slow bool) {
	b := w.current(now)
	b.requests++
	if failed {
		b.failures++
	}
	if slow {
		b.slow++
	}
}

func (w *window) snapshot(now time.Time) Snapshot {
	var s Snapshot
	for _, b := range w.buckets {
		if b.start.IsZero() || now.Sub(b.start) >= w.span {
			continue
		}
		s.Requests += b.requests
		s.Failures += b.failures
		s.SlowCalls += b.slow
	}
	if s.Requests > 0 {
		s.ErrorRate = float64(s.Failures) / float64(s.Requests)
		s.SlowCallRate = float64(s.SlowCalls) / float64(s.Requests)
	}
	return s
}

func (w *window) reset() {
	for i := range w.buckets {
		w.buckets[i] = bucket{}
	}
}
