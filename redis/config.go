// Package redis 把每次拉取到的注册表快照写入 Redis，供 eurekactl backup 查看
package redis

import (
	"time"

	"github.com/KOMKZ/go-yogan-eureka/validator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Connection modes.
const (
	ModeStandalone = "standalone"
	ModeCluster    = "cluster"
)

// Config redis 配置段
type Config struct {
	// standalone 只用第一个地址；cluster 用全部地址
	Mode     string   `mapstructure:"mode"`
	Addrs    []string `mapstructure:"addrs"`
	Addr     string   `mapstructure:"addr"` // 单地址写法，等价于 addrs: [addr]
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"` // 仅 standalone

	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// 备份
	Key string        `mapstructure:"key"`
	TTL time.Duration `mapstructure:"ttl"` // 0 = 不过期
}

// DefaultConfig returns the defaults applied before the section is read.
func DefaultConfig() Config {
	return Config{
		Mode:         ModeStandalone,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Key:          "eureka:registry:backup",
		TTL:          24 * time.Hour,
	}
}

// ApplyDefaults folds Addr into Addrs.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeStandalone
	}
	if c.Addr != "" && len(c.Addrs) == 0 {
		c.Addrs = []string{c.Addr}
	}
}

// Validate implements validation.Validatable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.Required, validation.In(ModeStandalone, ModeCluster)),
		validation.Field(&c.Addrs, validation.Required),
		validation.Field(&c.DB, validation.When(c.Mode == ModeStandalone, validation.Min(0), validation.Max(15))),
		validation.Field(&c.PoolSize, validation.Min(0)),
		validation.Field(&c.MinIdleConns, validation.Min(0)),
		validation.Field(&c.Key, validation.Required),
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
	)
}

// ValidateConfig converts field errors into a LayeredError.
func ValidateConfig(c Config) error {
	return validator.Validate(c)
}
