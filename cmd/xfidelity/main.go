// Command xfidelity is the CLI entrypoint (component M): a cobra root
// command whose default action is `scan`, with configuration resolved
// through viper (flag > env `XFI_*` > `.xfidelity.yaml` > default),
// matching the configuration-options surface in SPEC_FULL.md §6.
//
// Bootstrap conventions (startup-fatal logging, SIGINT/SIGTERM -> context
// cancellation, graceful shutdown) are carried over from
// cmd/catalog-server/main.go, adapted from that server's K8s/HA-oriented
// bootstrap to a single-process CLI/server split.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xfidelity/xfidelity/internal/xfconfig"
)

func main() {
	rootCmd := newRootCommand()
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var ce *configError
	switch {
	case errors.Is(err, errFindings):
		os.Exit(1)
	case errors.As(err, &ce):
		fmt.Fprintln(os.Stderr, "xfidelity:", err)
		os.Exit(2)
	default:
		glog.Fatalf("xfidelity: %v", err)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("XFI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "xfidelity",
		Short: "Archetype-driven static fidelity scanner",
		RunE: func(cmd *cobra.Command, args []string) error {
			// v was last bound to the scan subcommand's flags; rebind to the
			// root's own flags so values given on the root command apply.
			_ = v.BindPFlags(cmd.Flags())
			return runScan(cmd.Context(), v)
		},
	}
	bindOptionFlags(root, v)

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the current repository against its archetype's rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), v)
		},
	}
	bindOptionFlags(scanCmd, v)
	root.AddCommand(scanCmd)

	ctx, cancel := withSignalCancellation()
	root.SetContext(ctx)
	cobra.OnFinalize(cancel)

	return root
}

// withSignalCancellation wires os/signal SIGINT/SIGTERM through to a
// context, matching the teacher's signal-to-context shutdown convention.
func withSignalCancellation() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

// bindOptionFlags registers every §6 configuration option as a pflag on
// cmd and binds it into v so flag > env > config-file > default precedence
// holds regardless of which path supplied the value.
func bindOptionFlags(cmd *cobra.Command, v *viper.Viper) {
	defaults := xfconfig.DefaultCoreOptions()
	flags := cmd.Flags()

	flags.String("archetype", defaults.Archetype, "Archetype name to scan against")
	flags.String("config-server", "", "Remote config server base URL")
	flags.String("local-config-path", "", "Local directory holding archetype/exemption files")
	flags.String("github-config-location", "", "Git URL of a hosted archetype-config repository")
	flags.StringSlice("extra-plugins", nil, "Additional plugin names to load")
	flags.Bool("openai-enabled", defaults.OpenAIEnabled, "Enable OpenAI-backed recommendations")
	flags.String("log-level", defaults.LogLevel, "Log level (trace|debug|info|warning|error)")
	flags.Bool("telemetry-enabled", defaults.TelemetryEnabled, "Enable telemetry envelope collection")
	flags.String("telemetry-collector", "", "Telemetry collector URL")
	flags.Int64("max-file-size", defaults.MaxFileSize, "Maximum file size (bytes) to scan")
	flags.Duration("timeout", defaults.Timeout, "Per-operation timeout")
	flags.Duration("json-ttl", defaults.JSONTTL, "Config cache TTL")
	flags.Duration("file-cache-ttl", defaults.FileCacheTTL, "File content cache TTL")
	flags.Bool("enable-file-logging", defaults.EnableFileLogging, "Mirror logs to a file")
	flags.String("mode", defaults.Mode, "Run mode: cli|vscode|server|hook")
	flags.Int("concurrency", defaults.Concurrency, "Worker-pool concurrency (0 or 1 = sequential)")
	flags.String("repo-path", ".", "Path to the repository to scan")
	flags.Bool("json", false, "Print machine-readable JSON instead of the human-readable summary")

	v.BindPFlags(flags)
	v.SetConfigName(".xfidelity")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // absent config file is not an error
}

// optionsFromViper materializes the bound configuration into a
// xfconfig.CoreOptions value.
func optionsFromViper(v *viper.Viper) xfconfig.CoreOptions {
	return xfconfig.CoreOptions{
		Archetype:            v.GetString("archetype"),
		ConfigServer:         v.GetString("config-server"),
		LocalConfigPath:      v.GetString("local-config-path"),
		GithubConfigLocation: v.GetString("github-config-location"),
		ExtraPlugins:         v.GetStringSlice("extra-plugins"),
		OpenAIEnabled:        v.GetBool("openai-enabled"),
		LogLevel:             v.GetString("log-level"),
		TelemetryEnabled:     v.GetBool("telemetry-enabled"),
		TelemetryCollector:   v.GetString("telemetry-collector"),
		MaxFileSize:          v.GetInt64("max-file-size"),
		Timeout:              v.GetDuration("timeout"),
		JSONTTL:              v.GetDuration("json-ttl"),
		FileCacheTTL:         v.GetDuration("file-cache-ttl"),
		EnableFileLogging:    v.GetBool("enable-file-logging"),
		Mode:                 v.GetString("mode"),
		Concurrency:          v.GetInt("concurrency"),
		LogPrefix:            "xfidelity",
	}
}
