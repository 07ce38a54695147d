package main

import (
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-eureka/redis"
	"github.com/spf13/cobra"
)

// backupView backup 命令输出
type backupView struct {
	Key     string       `json:"key"`
	SavedAt time.Time    `json:"saved_at"`
	Age     string       `json:"age"`
	Apps    []appSummary `json:"apps"`
}

func newBackupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Show the registry snapshot the agent last wrote to redis",
		Long: "Reads the redis section of the config file. The snapshot is for " +
			"inspection only; the agent never serves it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := opts.load(cmd, opts.logLevel)
			if err != nil {
				return err
			}
			if !loader.IsSet("redis") {
				return fmt.Errorf("no redis section in config")
			}
			cfg := redis.DefaultConfig()
			if err := loader.Unmarshal("redis", &cfg); err != nil {
				return fmt.Errorf("load redis config: %w", err)
			}

			ctx := cmd.Context()
			client, err := redis.NewClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			instances, savedAt, err := redis.NewBackupStore(client, cfg.Key, cfg.TTL).Load(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, backupView{
				Key:     cfg.Key,
				SavedAt: savedAt,
				Age:     time.Since(savedAt).Round(time.Second).String(),
				Apps:    summarize(instances),
			})
		},
	}
}
