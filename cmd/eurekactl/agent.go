package main

import (
	"time"

	"github.com/KOMKZ/go-yogan-eureka/application"
	"github.com/KOMKZ/go-yogan-eureka/component"
	"github.com/KOMKZ/go-yogan-eureka/eureka"
	"github.com/KOMKZ/go-yogan-eureka/redis"
	"github.com/KOMKZ/go-yogan-eureka/sidecar"
	"github.com/spf13/cobra"
)

func newAgentCmd(opts *rootOptions) *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Register this service and keep it alive until SIGINT/SIGTERM",
		Long: "Runs the eureka client (registry refresh, registration, heartbeats) " +
			"and the local sidecar HTTP API. The instance is deregistered on shutdown.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := "info"
			if cmd.Flags().Changed("log-level") {
				level = opts.logLevel
			}
			loader, err := opts.load(cmd, level)
			if err != nil {
				return err
			}

			var comps []component.Component
			ec := eureka.NewComponent()
			if loader.IsSet("redis") {
				// redis 先于 eureka 初始化，每次刷新后写入快照
				rc := redis.NewComponent()
				ec = eureka.NewComponent(eureka.WithClientBackup(rc))
				comps = append(comps, rc, ec, sidecar.NewComponent(ec, rc.GetHealthChecker()))
			} else {
				comps = append(comps, ec, sidecar.NewComponent(ec))
			}
			agent := application.NewAgent(loader, comps...).
				WithShutdownTimeout(shutdownTimeout)
			if opts.agentReady != nil {
				agent.OnReady(opts.agentReady)
			}
			return agent.Run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", application.DefaultShutdownTimeout, "time allowed for deregistration and shutdown")
	return cmd
}
