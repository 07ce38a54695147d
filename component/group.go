package component

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Group 按依赖顺序管理一组组件：Init/Start 正序，Stop 逆序
type Group struct {
	components []Component
	ordered    []Component
	started    []Component
	meters     metric.MeterProvider
}

// NewGroup creates a group. meters may be nil, in which case metrics
// providers are not registered.
func NewGroup(meters metric.MeterProvider, comps ...Component) *Group {
	return &Group{components: comps, meters: meters}
}

// Resolve 拓扑排序；依赖未注册或存在循环时报错
func (g *Group) Resolve() ([]Component, error) {
	byName := make(map[string]Component, len(g.components))
	for _, c := range g.components {
		if _, dup := byName[c.Name()]; dup {
			return nil, fmt.Errorf("component %s registered twice", c.Name())
		}
		byName[c.Name()] = c
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(byName))
	ordered := make([]Component, 0, len(byName))

	var visit func(c Component) error
	visit = func(c Component) error {
		switch state[c.Name()] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle at component %s", c.Name())
		}
		state[c.Name()] = visiting
		for _, dep := range c.DependsOn() {
			d, ok := byName[dep]
			if !ok {
				return fmt.Errorf("component %s depends on unregistered %s", c.Name(), dep)
			}
			if err := visit(d); err != nil {
				return err
			}
		}
		state[c.Name()] = done
		ordered = append(ordered, c)
		return nil
	}

	for _, c := range g.components {
		if err := visit(c); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// Init initializes every component in dependency order.
func (g *Group) Init(ctx context.Context, loader ConfigLoader) error {
	ordered, err := g.Resolve()
	if err != nil {
		return err
	}
	g.ordered = ordered

	for _, c := range ordered {
		if err := c.Init(ctx, loader); err != nil {
			return fmt.Errorf("init component %s: %w", c.Name(), err)
		}
		if mp, ok := c.(MetricsProvider); ok && g.meters != nil && mp.IsMetricsEnabled() {
			if err := mp.RegisterMetrics(g.meters.Meter(mp.MetricsName())); err != nil {
				return fmt.Errorf("register metrics for %s: %w", c.Name(), err)
			}
		}
	}
	return nil
}

// Start starts components in order. On failure the already started ones are
// stopped before returning.
func (g *Group) Start(ctx context.Context) error {
	for _, c := range g.ordered {
		if err := c.Start(ctx); err != nil {
			_ = g.Stop(ctx)
			return fmt.Errorf("start component %s: %w", c.Name(), err)
		}
		g.started = append(g.started, c)
	}
	return nil
}

// Stop stops started components in reverse order; all are attempted.
func (g *Group) Stop(ctx context.Context) error {
	var errs []error
	for i := len(g.started) - 1; i >= 0; i-- {
		if err := g.started[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop component %s: %w", g.started[i].Name(), err))
		}
	}
	g.started = nil
	return errors.Join(errs...)
}

// HealthCheckers collects checkers from components that provide one.
func (g *Group) HealthCheckers() []HealthChecker {
	var out []HealthChecker
	for _, c := range g.ordered {
		if p, ok := c.(HealthCheckProvider); ok {
			if hc := p.GetHealthChecker(); hc != nil {
				out = append(out, hc)
			}
		}
	}
	return out
}
