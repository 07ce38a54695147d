package config

import (
	"github.com/spf13/pflag"
)

// FlagSource 命令行参数数据源：只采用用户显式设置（Changed）的 flag，
// 未设置的 flag 默认值不会覆盖文件和环境变量
type FlagSource struct {
	flags    *pflag.FlagSet
	priority int
	bindings map[string]string // config key -> flag name
}

// NewFlagSource creates a flag source over fs.
func NewFlagSource(fs *pflag.FlagSet, priority int) *FlagSource {
	return &FlagSource{
		flags:    fs,
		priority: priority,
		bindings: make(map[string]string),
	}
}

// Bind maps a config key to a flag name.
func (s *FlagSource) Bind(key, flagName string) *FlagSource {
	s.bindings[key] = flagName
	return s
}

// Name implements ConfigSource.
func (s *FlagSource) Name() string {
	return "flags"
}

// Priority implements ConfigSource.
func (s *FlagSource) Priority() int {
	return s.priority
}

// Load implements ConfigSource.
func (s *FlagSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	if s.flags == nil {
		return result, nil
	}
	for key, name := range s.bindings {
		f := s.flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		result[key] = f.Value.String()
	}
	return result, nil
}
