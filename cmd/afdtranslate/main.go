package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	afdtranslator "github.com/ferro-labs/afd-translator"
	"github.com/ferro-labs/afd-translator/internal/logging"
	"github.com/ferro-labs/afd-translator/internal/version"
	"github.com/ferro-labs/afd-translator/providers"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "afdtranslate",
		Short:        "Translate NWS Area Forecast Discussions into plain language",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (.yaml, .yml or .json); defaults to $"+afdtranslator.EnvConfigPath)

	root.AddCommand(
		newServeCmd(opts),
		newTranslateCmd(opts),
		newValidateCmd(),
		newHistoryCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load resolves the effective config and sets up logging. CLI commands log
// to stderr so stdout stays machine readable.
func (o *rootOptions) load(cmd *cobra.Command, logToStderr bool) (*afdtranslator.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv(afdtranslator.EnvConfigPath)
	}
	cfg, err := afdtranslator.Load(path, os.Getenv)
	if err != nil {
		return nil, err
	}
	if logToStderr {
		logging.SetupWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	} else {
		logging.Setup(cfg.Log.Level, cfg.Log.Format)
	}
	return cfg, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := afdtranslator.Load(args[0], os.Getenv)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Config is valid.")
			fmt.Fprintf(out, "  Listen:    %s%s\n", cfg.Server.Addr, cfg.Server.Path)
			fmt.Fprintf(out, "  Upstream:  %s (%s, max_tokens=%d, timeout=%s, retries=%d)\n",
				cfg.Upstream.Provider, cfg.Upstream.Model, cfg.Upstream.MaxTokens, cfg.Upstream.Timeout, cfg.Upstream.Retries)
			fmt.Fprintf(out, "  Key env:   %s\n", cfg.Upstream.APIKeyEnv)
			fmt.Fprintf(out, "  Providers: %s\n", strings.Join(providers.DefaultRegistry().List(), ", "))
			fmt.Fprintf(out, "  Cache:     ttl=%s sweep_threshold=%d redis=%t\n",
				cfg.Cache.TTL, cfg.Cache.SweepThreshold, cfg.Cache.RedisURL != "")
			fmt.Fprintf(out, "  Breaker:   %t\n", cfg.CircuitBreaker.Enabled())
			fmt.Fprintf(out, "  RateLimit: %t\n", cfg.RateLimit.Enabled())
			if cfg.RequestLog.Driver != "" {
				fmt.Fprintf(out, "  RequestLog: %s\n", cfg.RequestLog.Driver)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "afdtranslate %s\n", version.String())
		},
	}
}

// commandContext returns cmd's context, or Background when run outside
// Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
