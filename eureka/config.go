package eureka

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/breaker"
	"github.com/KOMKZ/go-yogan-eureka/validator"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config eureka 配置段（对应配置文件中的 eureka: ...）
type Config struct {
	// 注册中心地址
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	ServicePath string `mapstructure:"service_path"`
	SSL         bool   `mapstructure:"ssl"`
	Format      string `mapstructure:"format"` // xml | json

	// 周期任务
	HeartbeatInterval     time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatGracePeriod  time.Duration `mapstructure:"heartbeat_grace_period"`
	RegistryFetchInterval time.Duration `mapstructure:"registry_fetch_interval"`
	RegisterRetryDelay    time.Duration `mapstructure:"register_retry_delay"`

	// 请求
	MaxRetries        int           `mapstructure:"max_retries"` // initial registry fetch attempts
	RequestRetryDelay time.Duration `mapstructure:"request_retry_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`

	FetchRegistry      bool `mapstructure:"fetch_registry"`
	RegisterWithEureka bool `mapstructure:"register_with_eureka"`
	FilterUpInstances  bool `mapstructure:"filter_up_instances"`
	PreferIPAddress    bool `mapstructure:"prefer_ip_address"`
	EnableMetrics      bool `mapstructure:"enable_metrics"`

	Instance InstanceConfig `mapstructure:"instance"`

	// Breaker 对外调用（DoRequest/Call）按 app 熔断
	Breaker breaker.Config `mapstructure:"breaker"`
}

// InstanceConfig describes the local instance to register.
type InstanceConfig struct {
	App               string            `mapstructure:"app"`
	HostName          string            `mapstructure:"host_name"` // default os.Hostname()
	InstanceID        string            `mapstructure:"instance_id"`
	IPAddr            string            `mapstructure:"ip_addr"` // default first non-loopback IPv4
	Port              int               `mapstructure:"port"`
	PortEnabled       bool              `mapstructure:"port_enabled"`
	SecurePort        int               `mapstructure:"secure_port"`
	SecurePortEnabled bool              `mapstructure:"secure_port_enabled"`
	VIPAddress        string            `mapstructure:"vip_address"`
	SecureVIPAddress  string            `mapstructure:"secure_vip_address"`
	HomePageURL       string            `mapstructure:"home_page_url"`
	StatusPageURL     string            `mapstructure:"status_page_url"`
	HealthCheckURL    string            `mapstructure:"health_check_url"`
	DataCenter        string            `mapstructure:"data_center"`     // MyOwn | Amazon
	AmazonMetadata    map[string]string `mapstructure:"amazon_metadata"` // kebab-case keys, e.g. availability-zone
	LeaseDuration     int               `mapstructure:"lease_duration"`  // eviction duration in seconds
	Metadata          map[string]string `mapstructure:"metadata"`
}

// DefaultConfig returns the defaults applied before the config section is read.
func DefaultConfig() Config {
	return Config{
		Host:                  "localhost",
		Port:                  8761,
		ServicePath:           "/eureka",
		SSL:                   false,
		Format:                FormatXML,
		HeartbeatInterval:     30 * time.Second,
		HeartbeatGracePeriod:  30 * time.Second,
		RegistryFetchInterval: 30 * time.Second,
		RegisterRetryDelay:    15 * time.Second,
		MaxRetries:            3,
		RequestRetryDelay:     500 * time.Millisecond,
		RequestTimeout:        10 * time.Second,
		FetchRegistry:         true,
		RegisterWithEureka:    true,
		FilterUpInstances:     true,
		PreferIPAddress:       true,
		EnableMetrics:         true,
		Instance: InstanceConfig{
			PortEnabled:   true,
			SecurePort:    443,
			DataCenter:    string(DataCenterMyOwn),
			LeaseDuration: 90,
		},
		Breaker: breaker.DefaultConfig(),
	}
}

// Validate 校验配置（ozzo-validation）
func (c Config) Validate() error {
	positive := validation.Min(time.Millisecond)
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ServicePath, validation.By(func(v interface{}) error {
			if p, _ := v.(string); p != "" && !strings.HasPrefix(p, "/") {
				return fmt.Errorf("must start with /")
			}
			return nil
		})),
		validation.Field(&c.Format, validation.In(FormatXML, FormatJSON)),
		validation.Field(&c.HeartbeatInterval, validation.Required, positive),
		validation.Field(&c.HeartbeatGracePeriod, validation.Min(time.Duration(0))),
		validation.Field(&c.RegistryFetchInterval, validation.Required, positive),
		validation.Field(&c.RegisterRetryDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxRetries, validation.Required, validation.Min(1)),
		validation.Field(&c.RequestRetryDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.RequestTimeout, validation.Required, positive),
	)
	errs := validation.Errors{}
	if err != nil {
		if !errors.As(err, &errs) {
			return err
		}
	}
	// 不注册时 instance 段可以为空
	if c.RegisterWithEureka {
		if ierr := c.Instance.Validate(); ierr != nil {
			errs["instance"] = ierr
		}
	}
	if berr := c.Breaker.Validate(); berr != nil {
		errs["breaker"] = berr
	}
	return errs.Filter()
}

// Validate checks the fields that cannot be defaulted.
func (c InstanceConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.App, validation.Required),
		validation.Field(&c.Port, validation.When(c.PortEnabled, validation.Required, validation.Min(1), validation.Max(65535))),
		validation.Field(&c.SecurePort, validation.When(c.SecurePortEnabled, validation.Required, validation.Min(1), validation.Max(65535))),
		validation.Field(&c.DataCenter, validation.In(string(DataCenterMyOwn), string(DataCenterAmazon))),
		validation.Field(&c.LeaseDuration, validation.Min(0)),
	)
}

// BaseURL 注册中心基础地址 {http|https}://{host}:{port}{service_path}
func (c Config) BaseURL() string {
	scheme := "http"
	if c.SSL {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) + c.ServicePath
}

// ValidateConfig runs Validate and converts field errors into ErrInvalidConfig.
func ValidateConfig(c Config) error {
	return validator.ValidateAs(c, ErrInvalidConfig)
}

// Build creates the Instance to register. Host name and IP fall back to the
// local machine; the initial status is STARTING.
func (c InstanceConfig) Build(heartbeatInterval time.Duration) (*Instance, error) {
	hostName := c.HostName
	if hostName == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, ErrInvalidConfig.WithMsg("resolve host name").Wrap(err)
		}
		hostName = h
	}
	ip := c.IPAddr
	if ip == "" {
		ip, _ = localIP()
	}

	inst := &Instance{
		InstanceID:       c.InstanceID,
		HostName:         hostName,
		App:              c.App,
		IPAddr:           ip,
		VIPAddress:       c.VIPAddress,
		SecureVIPAddress: c.SecureVIPAddress,
		Status:           StatusStarting,
		Port:             Port{Value: c.Port, Enabled: c.PortEnabled},
		SecurePort:       Port{Value: c.SecurePort, Enabled: c.SecurePortEnabled},
		HomePageURL:      c.HomePageURL,
		StatusPageURL:    c.StatusPageURL,
		HealthCheckURL:   c.HealthCheckURL,
		DataCenterInfo:   MyOwnDataCenter(),
	}

	if inst.HomePageURL == "" && c.PortEnabled {
		inst.HomePageURL = "http://" + net.JoinHostPort(hostName, strconv.Itoa(c.Port)) + "/"
	}
	if DataCenterName(c.DataCenter) == DataCenterAmazon {
		inst.DataCenterInfo = AmazonDataCenter(amazonMetadataFromMap(c.AmazonMetadata))
	}
	if c.LeaseDuration > 0 {
		inst.LeaseInfo = &LeaseInfo{
			RenewalIntervalInSecs: int(heartbeatInterval / time.Second),
			DurationInSecs:        c.LeaseDuration,
		}
	}
	if len(c.Metadata) > 0 {
		inst.Metadata = make(Metadata, len(c.Metadata))
		for k, v := range c.Metadata {
			inst.Metadata[k] = v
		}
	}

	if err := validator.ValidateAs(inst, ErrInvalidConfig); err != nil {
		return nil, err
	}
	return inst, nil
}

func amazonMetadataFromMap(m map[string]string) AmazonMetadata {
	return AmazonMetadata{
		AmiLaunchIndex:   m["ami-launch-index"],
		LocalHostname:    m["local-hostname"],
		AvailabilityZone: m["availability-zone"],
		InstanceID:       m["instance-id"],
		PublicIPv4:       m["public-ipv4"],
		PublicHostname:   m["public-hostname"],
		AmiManifestPath:  m["ami-manifest-path"],
		LocalIPv4:        m["local-ipv4"],
		Hostname:         m["hostname"],
		AmiID:            m["ami-id"],
		InstanceType:     m["instance-type"],
	}
}

// localIP returns the first non-loopback IPv4, or 127.0.0.1.
func localIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1", err
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}
	return "127.0.0.1", fmt.Errorf("no valid IP found")
}
