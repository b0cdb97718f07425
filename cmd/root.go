// Package cmd provides the sitepipe command line.
//
// Configuration is read from, highest priority first:
//
//  1. command-line flags
//  2. SITEPIPE_* environment variables (SITEPIPE_SERVER_PORT, ...), with a
//     .env file in the project directory (--root) loaded into the
//     environment first
//  3. the file named by --config or SITEPIPE_CONFIG_FILE
//  4. .sitepipe.yml in the project directory
//
// NODE_ENV=production, SITEPIPE_ENVIRONMENT=production or --production
// select the production pipeline.
package cmd

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/services"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	rootDir    string
	production bool
	logLevel   = levelFlag{level: logging.LevelInfo}
	logFormat  = choiceFlag{value: "text", choices: []string{"text", "json"}}

	// configErr holds a config file that exists but could not be read.
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "sitepipe",
	Short: "Build and serve a static site",
	Long: `sitepipe drives a static site build: it runs the content generator,
compiles the stylesheet, bundles the scripts and serves the result with
live reload.

Quick Start:
  sitepipe build                  Build the site once
  sitepipe build --production     Build with the production pipeline
  sitepipe serve                  Build, watch and serve on :8080

Single producers:
  sitepipe eleventy [--watch]     Content generator only
  sitepipe css [--watch]          Stylesheet only
  sitepipe js [--watch]           Scripts only`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command line until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(rootCmd.ErrOrStderr(), "%v", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .sitepipe.yml, can also use SITEPIPE_CONFIG_FILE env var)")
	flags.StringVarP(&rootDir, "root", "C", ".", "project directory that relative paths resolve against")
	flags.BoolVar(&production, "production", false, "use the production pipeline regardless of NODE_ENV")
	flags.VarP(&logLevel, "log-level", "l", "log level (debug, info, warn, error)")
	flags.Var(&logFormat, "log-format", "log format (text, json)")
}

// initConfig wires viper: .env first, then the config file and the
// SITEPIPE_ environment.
func initConfig() {
	if err := godotenv.Load(filepath.Join(rootDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		printWarning(rootCmd.ErrOrStderr(), "Ignoring .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SITEPIPE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(rootDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sitepipe")
	}

	viper.SetEnvPrefix("SITEPIPE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.SetDefaults(viper.GetViper())

	configErr = nil
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			configErr = err
		}
		return
	}
	printInfo(rootCmd.ErrOrStderr(), "Using config file: %s", viper.ConfigFileUsed())
}

// loadConfig decodes the viper state into a validated configuration.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	if production {
		viper.Set("environment", config.Production)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		printWarning(rootCmd.ErrOrStderr(), "%s", w)
	}
	return cfg, nil
}

func newLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     logLevel.level,
		Format:    logFormat.value,
		Output:    os.Stderr,
		Component: "sitepipe",
	})
}

func loadApp() (*services.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return services.NewApp(cfg, rootDir, newLogger())
}
