package eureka

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/config"
	"github.com/KOMKZ/go-yogan-eureka/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:8761/eureka", cfg.BaseURL())
	assert.Equal(t, FormatXML, cfg.Format)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, cfg.RegistryFetchInterval)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.True(t, cfg.FetchRegistry)
	assert.True(t, cfg.RegisterWithEureka)
	assert.True(t, cfg.FilterUpInstances)
	assert.True(t, cfg.PreferIPAddress)
	assert.Equal(t, 90, cfg.Instance.LeaseDuration)
}

func TestConfig_BaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "registry.internal"
	cfg.Port = 443
	cfg.SSL = true
	cfg.ServicePath = "/eureka/v2"
	assert.Equal(t, "https://registry.internal:443/eureka/v2", cfg.BaseURL())

	cfg.Host = "::1"
	cfg.SSL = false
	cfg.ServicePath = ""
	assert.Equal(t, "http://[::1]:443", cfg.BaseURL())
}

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Instance.App = "orders"
	cfg.Instance.Port = 8080
	return cfg
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig(validConfig()))

	t.Run("registration disabled skips instance", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RegisterWithEureka = false
		assert.NoError(t, ValidateConfig(cfg))
	})

	t.Run("field errors", func(t *testing.T) {
		cfg := validConfig()
		cfg.Port = 0
		cfg.Format = "yaml"
		cfg.ServicePath = "eureka"
		cfg.Instance.App = ""

		err := ValidateConfig(cfg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))

		le, ok := errcode.As(err)
		require.True(t, ok)
		fields, _ := le.Data()["fields"].(map[string]string)
		assert.Contains(t, fields, "Port")
		assert.Contains(t, fields, "Format")
		assert.Contains(t, fields, "ServicePath")
		assert.Contains(t, fields, "instance.App")
	})

	t.Run("intervals must be positive", func(t *testing.T) {
		cfg := validConfig()
		cfg.HeartbeatInterval = 0
		assert.Error(t, ValidateConfig(cfg))
	})

	t.Run("enabled port required", func(t *testing.T) {
		cfg := validConfig()
		cfg.Instance.Port = 0
		assert.Error(t, ValidateConfig(cfg))

		cfg.Instance.PortEnabled = false
		assert.NoError(t, ValidateConfig(cfg))
	})
}

func TestInstanceConfig_Build(t *testing.T) {
	ic := validConfig().Instance
	ic.HostName = "orders-1.local"
	ic.IPAddr = "10.0.0.1"
	ic.Metadata = map[string]string{"zone": "a"}

	inst, err := ic.Build(30 * time.Second)
	require.NoError(t, err)

	assert.Equal(t, "orders", inst.App)
	assert.Equal(t, "orders-1.local", inst.ID())
	assert.Equal(t, StatusStarting, inst.Status)
	assert.Equal(t, NewPort(8080), inst.Port)
	_, secure := inst.SecurePort.Get()
	assert.False(t, secure)
	assert.Equal(t, "http://orders-1.local:8080/", inst.HomePageURL)
	assert.Equal(t, DataCenterMyOwn, inst.DataCenterInfo.Name)
	require.NotNil(t, inst.LeaseInfo)
	assert.Equal(t, 30, inst.LeaseInfo.RenewalIntervalInSecs)
	assert.Equal(t, 90, inst.LeaseInfo.DurationInSecs)
	assert.Equal(t, Metadata{"zone": "a"}, inst.Metadata)
}

func TestInstanceConfig_BuildDefaultsHostAndIP(t *testing.T) {
	ic := validConfig().Instance
	inst, err := ic.Build(30 * time.Second)
	require.NoError(t, err)

	host, _ := os.Hostname()
	assert.Equal(t, host, inst.HostName)
	assert.NotEmpty(t, inst.IPAddr)
}

func TestInstanceConfig_BuildAmazon(t *testing.T) {
	ic := validConfig().Instance
	ic.HostName = "h"
	ic.IPAddr = "10.0.0.1"
	ic.DataCenter = "Amazon"
	ic.AmazonMetadata = map[string]string{"instance-id": "i-0abc", "availability-zone": "us-east-1a"}

	inst, err := ic.Build(30 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, DataCenterAmazon, inst.DataCenterInfo.Name)
	assert.Equal(t, "i-0abc", inst.DataCenterInfo.Metadata.InstanceID)
	assert.Equal(t, "us-east-1a", inst.DataCenterInfo.Metadata.AvailabilityZone)
}

const eurekaYAML = `
eureka:
  host: registry.local
  port: 8762
  format: json
  heartbeat_interval: 10s
  registry_fetch_interval: 1m
  filter_up_instances: false
  instance:
    app: orders
    port: 8080
    secure_port_enabled: true
    metadata:
      zone: east
`

func TestConfig_FromLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(eurekaYAML), 0o644))

	loader, err := config.NewLoaderBuilder().WithConfigFile(path).Build()
	require.NoError(t, err)

	cfg := DefaultConfig()
	require.NoError(t, loader.Unmarshal("eureka", &cfg))
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, "http://registry.local:8762/eureka", cfg.BaseURL())
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, time.Minute, cfg.RegistryFetchInterval)
	assert.False(t, cfg.FilterUpInstances)
	// 未配置的项保留默认值
	assert.Equal(t, 30*time.Second, cfg.HeartbeatGracePeriod)
	assert.True(t, cfg.Instance.PortEnabled)
	assert.True(t, cfg.Instance.SecurePortEnabled)
	assert.Equal(t, 443, cfg.Instance.SecurePort)
	assert.Equal(t, map[string]string{"zone": "east"}, cfg.Instance.Metadata)
}
