package main

import (
	"github.com/KOMKZ/go-yogan-eureka/eureka"
	"github.com/KOMKZ/go-yogan-eureka/flagx"
	"github.com/spf13/cobra"
)

// opResult 写操作的输出
type opResult struct {
	Op     string `json:"op"`
	App    string `json:"app"`
	ID     string `json:"id"`
	Result string `json:"result"`
}

// registerOptions 覆盖配置文件中 instance 段的部分字段
type registerOptions struct {
	Status     string            `flag:"status,s" usage:"status sent with the registration" default:"UP"`
	InstanceID string            `flag:"instance-id" usage:"instance id (default: host name)"`
	Metadata   map[string]string `flag:"metadata,m" usage:"extra metadata, key=value"`
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var ro registerOptions
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the instance described by the eureka.instance config section",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := flagx.ParseFlags(cmd, &ro); err != nil {
				return err
			}
			status, err := eureka.ParseStatus(ro.Status)
			if err != nil {
				return err
			}

			cfg, err := opts.eurekaConfig(cmd, true)
			if err != nil {
				return err
			}
			if ro.InstanceID != "" {
				cfg.Instance.InstanceID = ro.InstanceID
			}
			inst, err := cfg.Instance.Build(cfg.HeartbeatInterval)
			if err != nil {
				return err
			}
			inst.Status = status
			for k, v := range ro.Metadata {
				if inst.Metadata == nil {
					inst.Metadata = make(eureka.Metadata, len(ro.Metadata))
				}
				inst.Metadata[k] = v
			}
			if inst.VIPAddress == "" {
				inst.VIPAddress = inst.App
			}
			if inst.SecureVIPAddress == "" {
				inst.SecureVIPAddress = inst.VIPAddress
			}

			wire, err := newWire(cfg)
			if err != nil {
				return err
			}
			if err := wire.Register(cmd.Context(), inst.App, inst); err != nil {
				return err
			}
			return printJSON(cmd, inst)
		},
	}
	if err := flagx.BindFlags(cmd, &ro); err != nil {
		panic(err)
	}
	return cmd
}

// newInstanceOpCmd 以 <app> <id> 为参数、只需 WireClient 的写操作
func newInstanceOpCmd(opts *rootOptions, use, short, op string, nargs int, run func(cmd *cobra.Command, wire eureka.WireClient, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			wire, err := opts.wire(cmd)
			if err != nil {
				return err
			}
			if err := run(cmd, wire, args); err != nil {
				return err
			}
			return printJSON(cmd, opResult{Op: op, App: args[0], ID: args[1], Result: "ok"})
		},
	}
}

func newDeregisterCmd(opts *rootOptions) *cobra.Command {
	return newInstanceOpCmd(opts, "deregister <app> <id>", "Remove an instance from the registry", "deregister", 2,
		func(cmd *cobra.Command, wire eureka.WireClient, args []string) error {
			return wire.Deregister(cmd.Context(), args[0], args[1])
		})
}

func newHeartbeatCmd(opts *rootOptions) *cobra.Command {
	return newInstanceOpCmd(opts, "heartbeat <app> <id>", "Renew the lease of an instance once", "heartbeat", 2,
		func(cmd *cobra.Command, wire eureka.WireClient, args []string) error {
			return wire.Heartbeat(cmd.Context(), args[0], args[1])
		})
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return newInstanceOpCmd(opts, "status <app> <id> <STATUS>", "Override the status of an instance", "status", 3,
		func(cmd *cobra.Command, wire eureka.WireClient, args []string) error {
			status, err := eureka.ParseStatus(args[2])
			if err != nil {
				return err
			}
			return wire.SetStatus(cmd.Context(), args[0], args[1], status)
		})
}

func newMetadataCmd(opts *rootOptions) *cobra.Command {
	return newInstanceOpCmd(opts, "metadata <app> <id> <key> <value>", "Set one metadata entry of an instance", "metadata", 4,
		func(cmd *cobra.Command, wire eureka.WireClient, args []string) error {
			return wire.SetMetadata(cmd.Context(), args[0], args[1], args[2], args[3])
		})
}
