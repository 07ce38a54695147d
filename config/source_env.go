package config

import (
	"os"
	"strings"
)

// EnvSource 环境变量数据源
//
// 只读取显式绑定的 key：EUREKA_HEARTBEAT_INTERVAL 无法从名字推断出
// "eureka.heartbeat_interval" 还是 "eureka.heartbeat.interval"。
type EnvSource struct {
	prefix   string
	priority int
	bindings map[string]string // config key -> env name
}

// NewEnvSource creates an env source; prefix is prepended to derived names.
func NewEnvSource(prefix string, priority int) *EnvSource {
	return &EnvSource{
		prefix:   strings.ToUpper(prefix),
		priority: priority,
		bindings: make(map[string]string),
	}
}

// AddBinding maps key to envKey. The prefix is prepended unless envKey
// already carries it.
func (s *EnvSource) AddBinding(key, envKey string) {
	if s.prefix != "" && !strings.HasPrefix(envKey, s.prefix+"_") {
		envKey = s.prefix + "_" + envKey
	}
	s.bindings[key] = envKey
}

// BindKeys binds keys with derived names:
// "eureka.heartbeat_interval" -> EUREKA_HEARTBEAT_INTERVAL (prefix EUREKA).
// A leading segment equal to the prefix is not repeated.
func (s *EnvSource) BindKeys(keys ...string) {
	for _, key := range keys {
		s.AddBinding(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
}

// EnvName returns the env variable bound to key.
func (s *EnvSource) EnvName(key string) (string, bool) {
	name, ok := s.bindings[key]
	return name, ok
}

// Name implements ConfigSource.
func (s *EnvSource) Name() string {
	return "env:" + s.prefix
}

// Priority implements ConfigSource.
func (s *EnvSource) Priority() int {
	return s.priority
}

// Load implements ConfigSource. Empty variables are ignored.
func (s *EnvSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	for key, envKey := range s.bindings {
		if value, ok := os.LookupEnv(envKey); ok && value != "" {
			result[key] = value
		}
	}
	return result, nil
}
