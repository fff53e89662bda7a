// Package cmd provides the command-line interface for pagesmith.
//
// Configuration is read, highest priority first, from:
//
//  1. Command-line flags (--config, --port, ...)
//  2. PAGESMITH_CONFIG_FILE: path to a custom configuration file
//  3. Individual environment variables (PAGESMITH_SERVER_PORT, ...)
//  4. The .pagesmith.yml file in the working directory
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/pagesmith/internal/config"
	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/pipeline"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pagesmith",
	Short: "Render template pages with layered data",
	Long: `pagesmith renders the pages of a static site through a template engine.
Every page receives a data context merged from configured globals, JSON data
files and an optional per-page data file.

Quick Start:
  pagesmith serve                 Start the development server
  pagesmith build                 Render the site into the output directory
  pagesmith config show           Print the effective configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SetGlobalNormalizationFunc(wordSepNormalizeFunc)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .pagesmith.yml, can also use PAGESMITH_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().String("root", "", "template root, relative to the project directory")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
}

// wordSepNormalizeFunc accepts --out_dir for --out-dir, matching the
// configuration key spelling.
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("PAGESMITH_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pagesmith")
	}

	viper.SetEnvPrefix("PAGESMITH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	}), nil
}

// loadPipeline loads the configuration and binds a pipeline to dir.
func loadPipeline(dir string) (*pipeline.Pipeline, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New(cfg,
		pipeline.WithLogger(logger),
		pipeline.WithChannel(errors.NewChannel(os.Stderr)),
	)
	if err := p.Configure(dir); err != nil {
		return nil, nil, err
	}
	return p, logger, nil
}

// projectDir returns the first argument or the working directory.
func projectDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
