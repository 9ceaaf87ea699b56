package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/goforj/callcache"
)

// RootOptions holds global flags and the lazily opened cache shared by subcommands.
type RootOptions struct {
	Verbose bool
	Driver  string
	Prefix  string

	// Store overrides the configured backend. Tests use it to share one store
	// across several command invocations.
	Store callcache.Store

	logger *slog.Logger
	cache  *callcache.Cache
}

// NewRootCommand creates the callcache command tree.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}

	cmd := &cobra.Command{
		Use:   "callcache",
		Short: "Instrumented key-value cache",
		Long: `Store scalar values under generated keys, read them back, and replay
every recorded store call from the backing key-value store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every cache operation")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "backend driver, overrides CALLCACHE_DRIVER")
	cmd.PersistentFlags().StringVar(&opts.Prefix, "prefix", "", "key prefix, overrides CALLCACHE_PREFIX")

	cmd.AddCommand(NewStoreCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewExpireCommand(opts))
	cmd.AddCommand(NewFlushCommand(opts))

	return cmd
}

// openCache builds the cache on first use and checks the backend is reachable.
func (o *RootOptions) openCache(ctx context.Context) (*callcache.Cache, error) {
	if o.cache != nil {
		return o.cache, nil
	}
	logger := o.log()

	store := o.Store
	if store == nil {
		cfg, err := LoadConfig()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "load config", err)
		}
		if o.Driver != "" {
			cfg.Driver = o.Driver
		}
		if o.Prefix != "" {
			cfg.Prefix = o.Prefix
		}
		store = callcache.NewStore(ctx, cfg.StoreConfig())
	}
	if err := store.Ready(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s backend unavailable", store.Driver()), err)
	}
	logger.Debug("backend ready", "driver", string(store.Driver()))

	c := callcache.NewCache(store)
	if o.Verbose {
		c.WithObserver(callcache.NewLogObserver(logger))
	}
	o.cache = c
	return c, nil
}

func (o *RootOptions) log() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}
