package config

import (
	"github.com/spf13/pflag"
)

// Source priorities used by LoaderBuilder.
const (
	PriorityFile = 10
	PriorityEnv  = 50
	PriorityFlag = 100
)

// LoaderBuilder assembles the usual file < env < flags stack.
type LoaderBuilder struct {
	configFile string
	envPrefix  string
	envKeys    []string
	flags      *pflag.FlagSet
	flagBinds  map[string]string
}

// NewLoaderBuilder creates an empty builder.
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{flagBinds: make(map[string]string)}
}

// WithConfigFile sets the config file path (optional).
func (b *LoaderBuilder) WithConfigFile(path string) *LoaderBuilder {
	b.configFile = path
	return b
}

// WithEnv binds keys to PREFIX_KEY environment variables.
func (b *LoaderBuilder) WithEnv(prefix string, keys ...string) *LoaderBuilder {
	b.envPrefix = prefix
	b.envKeys = append(b.envKeys, keys...)
	return b
}

// WithFlags uses changed flags of fs, bound key -> flag name.
func (b *LoaderBuilder) WithFlags(fs *pflag.FlagSet, bindings map[string]string) *LoaderBuilder {
	b.flags = fs
	for k, v := range bindings {
		b.flagBinds[k] = v
	}
	return b
}

// Build creates and loads the loader.
func (b *LoaderBuilder) Build() (*Loader, error) {
	loader := NewLoader()

	if b.configFile != "" {
		loader.AddSource(NewFileSource(b.configFile, PriorityFile))
	}
	if len(b.envKeys) > 0 {
		env := NewEnvSource(b.envPrefix, PriorityEnv)
		env.BindKeys(b.envKeys...)
		loader.AddSource(env)
	}
	if b.flags != nil {
		fs := NewFlagSource(b.flags, PriorityFlag)
		for k, name := range b.flagBinds {
			fs.Bind(k, name)
		}
		loader.AddSource(fs)
	}

	if err := loader.Load(); err != nil {
		return nil, err
	}
	return loader, nil
}
