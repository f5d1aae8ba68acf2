package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pders01/searchable-files/internal/config"
	"github.com/pders01/searchable-files/internal/models"
	"github.com/pders01/searchable-files/internal/telemetry"
)

// Version is set at build time
var Version = "dev"

var (
	cfgFile  string
	logLevel string

	tracing *telemetry.Provider
)

var rootCmd = &cobra.Command{
	Use:   "searchable-files",
	Short: "Extract file metadata and make it searchable with Globus Search",
	Long: `searchable-files turns a directory tree into a searchable index:

  extract    read per-file metadata into JSON records
  assemble   apply visibility rules and pack records into ingest batches
  submit     send batches to the index as ingest tasks
  watch      poll the submitted tasks until they complete

Use create-index or set-index once before submitting, and login before any
command that talks to the service.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setupRuntime,
	PersistentPostRunE: shutdownRuntime,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if tracing != nil {
			_ = tracing.Shutdown(context.Background())
		}
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	if models.IsUsageError(err) {
		fmt.Fprintln(os.Stderr, "Usage error:", err)
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/searchable-files/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := config.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(strings.ReplaceAll(config.AppName, "-", "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "Warning: failed to read config:", err)
		}
	}
}

func setupRuntime(cmd *cobra.Command, args []string) error {
	level, err := config.GetLogLevel()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	if used := viper.ConfigFileUsed(); used != "" {
		slog.Debug("using config file", "path", filepath.Clean(used))
	}

	tracing, err = telemetry.Setup(commandContext(cmd), telemetry.Config{
		ServiceVersion: Version,
		OTLPEndpoint:   config.GetOTLPEndpoint(),
		Insecure:       config.GetOTLPInsecure(),
	})
	return err
}

func shutdownRuntime(cmd *cobra.Command, args []string) error {
	if tracing == nil {
		return nil
	}
	return tracing.Shutdown(context.WithoutCancel(commandContext(cmd)))
}

// commandContext tolerates the nil command tests pass to runX
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
