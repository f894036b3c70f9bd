// Command studybuddy runs the study assistant as an HTTP service or an
// interactive terminal chat.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sweetpotato0/studybuddy/config"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
)

const (
	appName = "studybuddy"
	Version = "0.1.0"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Study assistant that routes questions across subjects",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loaded := godotenv.Load() == nil
			configureLogging(&flags, nil)
			if loaded {
				slog.Debug("loaded .env file")
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format (json, text)")

	cmd.AddCommand(serveCmd(&flags), chatCmd(&flags))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})
	return cmd
}

// configureLogging installs the shared logger. Flags win over the log section
// of cfg, which already carries the STUDYBUDDY_LOG_* overrides. A nil cfg
// falls back to the environment.
func configureLogging(flags *globalFlags, cfg *config.Config) {
	opts := logging.OptionsFromEnv()
	if cfg != nil {
		opts.Level, opts.Format = cfg.Log.Level, cfg.Log.Format
	}
	if flags.logLevel != "" {
		opts.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		opts.Format = flags.logFormat
	}
	opts.Output = os.Stderr
	logging.Configure(opts)
}

// loadConfig reads the configuration and reconfigures logging from it.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	configureLogging(flags, cfg)
	return cfg, nil
}
