// Package component 提供组件接口定义
// 这是最底层的包，不依赖任何业务包，避免循环依赖
package component

import "context"

// Component 组件接口（统一生命周期管理）
// 生命周期：Init → Start → Stop
type Component interface {
	// Name 组件名称（唯一标识）
	Name() string

	// DependsOn 声明依赖的组件名称，Group 按此排序
	DependsOn() []string

	// Init 从 loader 读取配置并创建资源，不启动后台任务
	Init(ctx context.Context, loader ConfigLoader) error

	// Start 启动后台任务或对外服务
	Start(ctx context.Context) error

	// Stop 释放资源，必须幂等
	Stop(ctx context.Context) error
}

// HealthChecker 健康检查接口
type HealthChecker interface {
	// Check 返回 nil 表示健康
	Check(ctx context.Context) error
	Name() string
}

// HealthCheckProvider 组件可选实现，提供健康检查器
type HealthCheckProvider interface {
	GetHealthChecker() HealthChecker
}
