package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openfroyo/zabbix-web/pkg/telemetry"
)

// envPrefix prefixes the environment variables that mirror every flag,
// e.g. ZBXWEB_LOG_LEVEL for --log-level.
const envPrefix = "ZBXWEB"

// app holds the state shared by the subcommands of one invocation.
type app struct {
	v         *viper.Viper
	tel       *telemetry.Telemetry
	version   string
	logWriter io.Writer
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr, version, commit, buildDate)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, version, commit, buildDate string) error {
	// Logs and stdout spans share stderr from different goroutines.
	a := &app{v: viper.New(), version: version, logWriter: zerolog.SyncWriter(stderr)}

	rootCmd := newRootCommand(a, version, commit, buildDate)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	return errors.Join(err, a.shutdown())
}

func newRootCommand(a *app, version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zbxweb",
		Short: "Zabbix web front-end catalog compiler",
		Long: `zbxweb compiles the parameters of a Zabbix web front-end deployment into
the ordered catalog of resources a configuration agent applies to a host.

The catalog covers:
  - Package repositories and front-end packages
  - The generated zabbix.conf.php and API credentials file
  - The Apache virtual host and its PHP settings
  - The PHP-FPM pool where the OS family runs one
  - SELinux booleans and the optional API resources

Every flag can also be set through a ZBXWEB_ environment variable or a
settings file given with --config.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "settings file (YAML, JSON or TOML)")
	pf.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")
	pf.String("trace", "none", "trace exporter (none, stdout, otlp)")
	pf.String("trace-endpoint", "", "OTLP collector endpoint, host:port")
	pf.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")
	pf.StringP("output", "o", "", "output format (json, yaml); each command has its own default")

	rootCmd.AddCommand(newCompileCommand(a))
	rootCmd.AddCommand(newValidateCommand(a))
	rootCmd.AddCommand(newFactsCommand(a))
	rootCmd.AddCommand(newRenderCommand(a))
	rootCmd.AddCommand(newGraphCommand(a))
	rootCmd.AddCommand(newDiffCommand(a))
	rootCmd.AddCommand(newHistoryCommand(a))

	return rootCmd
}

// setup binds the flags of the executing command to viper, reads the optional
// settings file and builds the telemetry stack.
func (a *app) setup(cmd *cobra.Command) error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read settings file %s: %w", path, err)
		}
	}

	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = a.version
	cfg.Logging.Level = a.v.GetString("log-level")
	cfg.Logging.Format = a.v.GetString("log-format")
	if exporter := a.v.GetString("trace"); exporter != "" && exporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = exporter
		cfg.Tracing.Endpoint = a.v.GetString("trace-endpoint")
	}
	cfg.Metrics.TextfilePath = a.v.GetString("metrics-file")

	tel, err := telemetry.NewTelemetryWithWriter(cfg, a.logWriter)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.tel = tel

	zerolog.SetGlobalLevel(telemetry.ParseLevel(cfg.Logging.Level))
	log.Logger = tel.Logger.Zerolog()

	cmd.SetContext(tel.WithContext(cmd.Context()))

	log.Debug().
		Str("command", cmd.Name()).
		Str("settings", a.v.ConfigFileUsed()).
		Msg("Command initialized")
	return nil
}

// shutdown flushes spans and writes the metrics textfile.
func (a *app) shutdown() error {
	if a.tel == nil {
		return nil
	}
	return a.tel.Shutdown(context.Background())
}

// outputFormat returns the --output value, or def when it is unset.
func (a *app) outputFormat(def string) string {
	if format := a.v.GetString("output"); format != "" {
		return format
	}
	return def
}
