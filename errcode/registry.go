package errcode

import (
	"fmt"
	"sync"
)

// Registry 错误码注册表，防止不同模块之间的错误码冲突
type Registry struct {
	mu    sync.RWMutex
	codes map[int]string // code -> module:msgKey
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{codes: make(map[int]string)}
}

// Register 注册错误码；同 code 不同 key 时 panic，相同 key 幂等
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register adds err to r.
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := err.Module() + ":" + err.MsgKey()
	if existing, ok := r.codes[err.Code()]; ok && existing != key {
		panic(fmt.Sprintf("error code conflict: code %d is already registered as %s, cannot register as %s",
			err.Code(), existing, key))
	}
	r.codes[err.Code()] = key
	return err
}

// Lookup returns the module:msgKey registered for code.
func (r *Registry) Lookup(code int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.codes[code]
	return key, ok
}

// Lookup queries the global registry.
func Lookup(code int) (string, bool) {
	return globalRegistry.Lookup(code)
}
