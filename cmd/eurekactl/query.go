package main

import (
	"context"
	"sort"
	"strings"

	"github.com/KOMKZ/go-yogan-eureka/eureka"
	"github.com/spf13/cobra"
)

// instanceSummary apps 命令的单实例摘要
type instanceSummary struct {
	ID      string        `json:"id"`
	Status  eureka.Status `json:"status"`
	Address string        `json:"address"`
}

type appSummary struct {
	App       string            `json:"app"`
	Instances []instanceSummary `json:"instances"`
}

func summarize(instances []eureka.Instance) []appSummary {
	byApp := make(map[string][]instanceSummary)
	for i := range instances {
		inst := &instances[i]
		addr := inst.IPAddr
		if port, ok := inst.Port.Get(); ok {
			addr = eureka.Endpoint{Host: inst.IPAddr, Port: port}.Address()
		}
		app := strings.ToUpper(inst.App)
		byApp[app] = append(byApp[app], instanceSummary{ID: inst.ID(), Status: inst.Status, Address: addr})
	}

	out := make([]appSummary, 0, len(byApp))
	for app, list := range byApp {
		out = append(out, appSummary{App: app, Instances: list})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].App < out[j].App })
	return out
}

func newAppsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List every application in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wire, err := opts.wire(cmd)
			if err != nil {
				return err
			}
			instances, err := wire.FetchAll(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, summarize(instances))
		},
	}
}

func newAppCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "app <app>",
		Short: "Show the instances of one application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wire, err := opts.wire(cmd)
			if err != nil {
				return err
			}
			instances, err := wire.FetchByApp(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, instances)
		},
	}
}

func newInstanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "instance <app> <id>",
		Short: "Show one instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wire, err := opts.wire(cmd)
			if err != nil {
				return err
			}
			inst, err := wire.FetchByInstance(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, inst)
		},
	}
}

// newVIPCmd builds vip or, with secure, svip.
func newVIPCmd(opts *rootOptions, secure bool) *cobra.Command {
	use, short := "vip <vip>", "Show the instances behind a VIP address"
	if secure {
		use, short = "svip <svip>", "Show the instances behind a secure VIP address"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wire, err := opts.wire(cmd)
			if err != nil {
				return err
			}
			fetch := wire.FetchByVIP
			if secure {
				fetch = wire.FetchBySecureVIP
			}
			instances, err := fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, instances)
		},
	}
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <app>",
		Short: "Pick one UP instance of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.eurekaConfig(cmd, false)
			if err != nil {
				return err
			}
			cfg.FetchRegistry = true
			client, err := eureka.NewClient(cfg, nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := client.Start(ctx); err != nil {
				return err
			}
			defer client.Stop(context.WithoutCancel(ctx))

			ep, err := client.Resolve(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, struct {
				eureka.Endpoint
				Address string `json:"address"`
			}{ep, ep.Address()})
		},
	}
}
