package breaker

// Strategy 熔断策略：根据窗口统计决定是否打开
type Strategy interface {
	ShouldOpen(s Snapshot, cfg ResourceConfig) bool
	Name() string
}

type errorRateStrategy struct{}

func (errorRateStrategy) Name() string { return StrategyErrorRate }

func (errorRateStrategy) ShouldOpen(s Snapshot, cfg ResourceConfig) bool {
	if s.Requests < int64(cfg.MinRequests) {
		return false
	}
	return s.ErrorRate >= cfg.ErrorRateThreshold
}

type slowCallRateStrategy struct{}

func (slowCallRateStrategy) Name() string { return StrategySlowCallRate }

func (slowCallRateStrategy) ShouldOpen(s Snapshot, cfg ResourceConfig) bool {
	if s.Requests < int64(cfg.MinRequests) {
		return false
	}
	return s.SlowCallRate >= cfg.SlowRateThreshold
}

type consecutiveFailuresStrategy struct{}

func (consecutiveFailuresStrategy) Name() string { return StrategyConsecutiveFailures }

func (consecutiveFailuresStrategy) ShouldOpen(s Snapshot, cfg ResourceConfig) bool {
	return s.ConsecutiveFailures >= cfg.ConsecutiveFailures
}

// StrategyByName 未知名称回退到 error_rate
func StrategyByName(name string) Strategy {
	switch name {
	case StrategySlowCallRate:
		return slowCallRateStrategy{}
	case StrategyConsecutiveFailures:
		return consecutiveFailuresStrategy{}
	default:
		return errorRateStrategy{}
	}
}
