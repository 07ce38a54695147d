package main

import (
	"encoding/json"
	"fmt"

	"github.com/KOMKZ/go-yogan-eureka/application"
	"github.com/KOMKZ/go-yogan-eureka/config"
	"github.com/KOMKZ/go-yogan-eureka/eureka"
	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/spf13/cobra"
)

// envKeys 可通过 EUREKA_* 覆盖的配置项
var envKeys = []string{
	"eureka.host",
	"eureka.port",
	"eureka.service_path",
	"eureka.ssl",
	"eureka.format",
	"eureka.request_timeout",
	"eureka.heartbeat_interval",
	"eureka.registry_fetch_interval",
	"eureka.instance.app",
	"eureka.instance.host_name",
	"eureka.instance.instance_id",
	"eureka.instance.ip_addr",
	"eureka.instance.port",
	"logger.level",
}

// flagBindings config key -> persistent flag
var flagBindings = map[string]string{
	"eureka.host":         "host",
	"eureka.port":         "port",
	"eureka.service_path": "service-path",
	"eureka.ssl":          "ssl",
	"eureka.format":       "format",
	"logger.level":        "log-level",
}

type rootOptions struct {
	configFile  string
	host        string
	port        int
	servicePath string
	ssl         bool
	format      string
	logLevel    string

	agentReady func(*application.Agent) error
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&rootOptions{})
}

func newRootCmdWith(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "eurekactl",
		Short:         "Eureka registry client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "config file (yaml)")
	pf.StringVar(&opts.host, "host", "localhost", "registry host")
	pf.IntVar(&opts.port, "port", 8761, "registry port")
	pf.StringVar(&opts.servicePath, "service-path", "/eureka", "registry service path")
	pf.BoolVar(&opts.ssl, "ssl", false, "use https")
	pf.StringVar(&opts.format, "format", eureka.FormatXML, "wire format: xml | json")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "debug | info | warn | error")

	root.AddCommand(
		newAppsCmd(opts),
		newAppCmd(opts),
		newInstanceCmd(opts),
		newVIPCmd(opts, false),
		newVIPCmd(opts, true),
		newResolveCmd(opts),
		newRegisterCmd(opts),
		newDeregisterCmd(opts),
		newHeartbeatCmd(opts),
		newStatusCmd(opts),
		newMetadataCmd(opts),
		newAgentCmd(opts),
		newBackupCmd(opts),
	)
	return root
}

// load 合并配置文件、EUREKA_* 环境变量与显式设置的 flag，并初始化日志
func (o *rootOptions) load(cmd *cobra.Command, defaultLevel string) (*config.Loader, error) {
	builder := config.NewLoaderBuilder().
		WithEnv("EUREKA", envKeys...).
		WithFlags(cmd.Flags(), flagBindings)
	if o.configFile != "" {
		builder = builder.WithConfigFile(o.configFile)
	}
	loader, err := builder.Build()
	if err != nil {
		return nil, err
	}

	logCfg := logger.DefaultManagerConfig()
	logCfg.Level = defaultLevel
	if loader.IsSet("logger") {
		if err := loader.Unmarshal("logger", &logCfg); err != nil {
			return nil, fmt.Errorf("load logger config: %w", err)
		}
	}
	if err := logCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger config: %w", err)
	}
	logger.InitManager(logCfg)
	return loader, nil
}

// eurekaConfig reads the eureka section. Unless register is set the
// instance section is not required.
func (o *rootOptions) eurekaConfig(cmd *cobra.Command, register bool) (eureka.Config, error) {
	cfg := eureka.DefaultConfig()
	loader, err := o.load(cmd, o.logLevel)
	if err != nil {
		return cfg, err
	}
	if err := loader.Unmarshal("eureka", &cfg); err != nil {
		return cfg, fmt.Errorf("load eureka config: %w", err)
	}
	if !register {
		cfg.RegisterWithEureka = false
	}
	if err := eureka.ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (o *rootOptions) wire(cmd *cobra.Command) (eureka.WireClient, error) {
	cfg, err := o.eurekaConfig(cmd, false)
	if err != nil {
		return nil, err
	}
	return newWire(cfg)
}

func newWire(cfg eureka.Config) (eureka.WireClient, error) {
	codec, err := eureka.CodecFor(cfg.Format)
	if err != nil {
		return nil, err
	}
	return eureka.NewHTTPWireClient(cfg.BaseURL(), codec, cfg.RequestTimeout), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
