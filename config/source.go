package config

// ConfigSource 配置数据源（文件、环境变量、命令行参数）
//
// 建议优先级：
//   - 配置文件: 10
//   - 环境变量: 50
//   - 命令行参数: 100
type ConfigSource interface {
	Name() string
	Priority() int
	// Load returns a flat map with dot-separated keys, e.g. "eureka.instance.app".
	Load() (map[string]interface{}, error)
}
