package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeromv/zeromv/pkg/cache"
	"github.com/zeromv/zeromv/pkg/config"
	"github.com/zeromv/zeromv/pkg/errors"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the composite cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached composite",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd, config.Layer{})
			if err != nil {
				return err
			}
			if cfg.Cache.Backend == cache.BackendNone {
				printInfo("Cache is disabled")
				return nil
			}

			ctx := cmd.Context()
			cc, err := cache.Open(ctx, cacheOptions(cfg))
			if err != nil {
				return err
			}
			defer cc.Close()

			clearer, ok := cc.(cache.Clearer)
			if !ok {
				return errors.New(errors.ErrCodeUnsupported, "%s cache cannot be cleared", cfg.Cache.Backend)
			}
			if err := clearer.Clear(ctx); err != nil {
				return err
			}
			printSuccess("Cleared the %s cache", cfg.Cache.Backend)
			printDetail("Location: %s", cacheLocation(cfg))
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache location",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd, config.Layer{})
			if err != nil {
				return err
			}
			fmt.Println(cacheLocation(cfg))
			return nil
		},
	}
}

func cacheOptions(cfg config.Config) cache.Options {
	return cache.Options{
		Backend:       cfg.Cache.Backend,
		Dir:           cfg.Cache.Dir,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
	}
}

// cacheLocation describes where the configured cache lives.
func cacheLocation(cfg config.Config) string {
	switch cfg.Cache.Backend {
	case cache.BackendRedis:
		return fmt.Sprintf("redis://%s/%d (prefix %s)", cfg.Cache.RedisAddr, cfg.Cache.RedisDB, cache.DefaultRedisPrefix)
	case cache.BackendNone:
		return "disabled"
	}
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir
	}
	dir, err := cache.DefaultDir()
	if err != nil {
		return "unavailable: " + err.Error()
	}
	return dir
}
