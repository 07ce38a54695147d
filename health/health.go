// Package health 聚合组件健康检查，供 sidecar 的 /health 路由使用
package health

import (
	"time"

	"github.com/KOMKZ/go-yogan-eureka/component"
)

// Status 健康状态，取值与 Eureka 实例状态一致
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// Checker 即 component.HealthChecker
type Checker = component.HealthChecker

// CheckResult 单个检查项结果
type CheckResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Response /health 响应体
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// IsUp reports whether every check passed.
func (r *Response) IsUp() bool {
	return r.Status == StatusUp
}
