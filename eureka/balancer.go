package eureka

import (
	"math/rand"
	"sync"
	"time"
)

// Balancer picks one index in [0, n). n is always > 0.
type Balancer interface {
	Pick(n int) int
	Name() string
}

// RandomBalancer 随机负载均衡器（无权重、每次独立选择）
type RandomBalancer struct {
	rand *rand.Rand
	mu   sync.Mutex
}

// NewRandomBalancer seeds from the clock.
func NewRandomBalancer() *RandomBalancer {
	return NewSeededBalancer(rand.NewSource(time.Now().UnixNano()))
}

// NewSeededBalancer uses src, for deterministic tests.
func NewSeededBalancer(src rand.Source) *RandomBalancer {
	return &RandomBalancer{rand: rand.New(src)}
}

// Pick 随机选择下标
func (b *RandomBalancer) Pick(n int) int {
	b.mu.Lock()
	idx := b.rand.Intn(n)
	b.mu.Unlock()
	return idx
}

// Name 负载均衡器名称
func (b *RandomBalancer) Name() string {
	return "random"
}
