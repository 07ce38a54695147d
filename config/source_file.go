package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// FileSource reads a yaml/json/toml file through viper.
type FileSource struct {
	path     string
	priority int
	loaded   bool
}

// NewFileSource creates a file source. A missing file yields an empty config.
func NewFileSource(path string, priority int) *FileSource {
	return &FileSource{path: path, priority: priority}
}

// Name implements ConfigSource.
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Priority implements ConfigSource.
func (s *FileSource) Priority() int {
	return s.priority
}

// Load implements ConfigSource.
func (s *FileSource) Load() (map[string]interface{}, error) {
	s.loaded = false
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("stat config file %s: %w", s.path, err)
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", s.path, err)
	}
	s.loaded = true
	return flattenMap("", v.AllSettings()), nil
}

// flattenMap {"eureka": {"port": 8761}} -> {"eureka.port": 8761}
func flattenMap(prefix string, data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for key, value := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			for k, v := range flattenMap(fullKey, nested) {
				result[k] = v
			}
			continue
		}
		result[fullKey] = value
	}
	return result
}
