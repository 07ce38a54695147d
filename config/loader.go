package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Loader merges several ConfigSource by priority and exposes the result
// through viper.
type Loader struct {
	sources     []ConfigSource
	merged      map[string]interface{}
	v           *viper.Viper
	loadedFiles []string
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{
		merged: make(map[string]interface{}),
		v:      viper.New(),
	}
}

// AddSource registers a source; order does not matter, priority does.
func (l *Loader) AddSource(source ConfigSource) {
	l.sources = append(l.sources, source)
}

// Load 按优先级从低到高依次加载并合并（高优先级覆盖低优先级）
func (l *Loader) Load() error {
	sort.SliceStable(l.sources, func(i, j int) bool {
		return l.sources[i].Priority() < l.sources[j].Priority()
	})

	merged := make(map[string]interface{})
	var files []string
	for _, source := range l.sources {
		data, err := source.Load()
		if err != nil {
			return fmt.Errorf("load config source %s failed: %w", source.Name(), err)
		}
		if fs, ok := source.(*FileSource); ok && fs.loaded {
			files = append(files, fs.path)
		}
		for k, v := range data {
			merged[strings.ToLower(k)] = v
		}
	}

	l.merged = merged
	l.loadedFiles = files
	l.v = viper.New()
	for k, v := range unflatten(merged) {
		l.v.Set(k, v)
	}
	return nil
}

// unflatten {"eureka.instance.app": "X"} -> {"eureka": {"instance": {"app": "X"}}}
func unflatten(flat map[string]interface{}) map[string]interface{} {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	// 短 key 先写，保证更深的 key 能覆盖同名标量
	sort.Strings(keys)

	result := make(map[string]interface{})
	for _, key := range keys {
		parts := strings.Split(key, ".")
		current := result
		for _, p := range parts[:len(parts)-1] {
			next, ok := current[p].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				current[p] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = flat[key]
	}
	return result
}

// Unmarshal decodes the section under key into v. Fields absent from the
// merged configuration keep the values already present in v.
func (l *Loader) Unmarshal(key string, v interface{}) error {
	if key == "" {
		return l.v.Unmarshal(v)
	}
	return l.v.UnmarshalKey(key, v)
}

// Get returns a raw value.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// GetString returns a string value.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// GetInt returns an int value.
func (l *Loader) GetInt(key string) int {
	return l.v.GetInt(key)
}

// GetBool returns a bool value.
func (l *Loader) GetBool(key string) bool {
	return l.v.GetBool(key)
}

// IsSet reports whether key was provided by any source.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// GetLoadedFiles lists files that existed and were read.
func (l *Loader) GetLoadedFiles() []string {
	return l.loadedFiles
}

